package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/keihibook/keihibook/internal/common"
	"github.com/keihibook/keihibook/internal/entity"
)

type sqliteQueueStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteQueueStore(db *sql.DB, logger *slog.Logger) QueueStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &sqliteQueueStore{db: db, logger: logger}
}

func (s *sqliteQueueStore) Register(ctx context.Context, req RegisterRequest) error {
	now := time.Now().UnixNano()
	const q = `
		INSERT INTO receipt_queue (
			receipt_id, blob_url, pathname, file_name, mime_type, size_bytes,
			status, next_retry_at, uploaded_at
		) VALUES (?, ?, ?, ?, ?, ?, 'UNPROCESSED', ?, ?)
		ON CONFLICT (receipt_id) DO UPDATE
			SET blob_url  = excluded.blob_url,
			    pathname  = excluded.pathname,
			    file_name = excluded.file_name,
			    mime_type = excluded.mime_type,
			    size_bytes = excluded.size_bytes`
	if _, err := s.db.ExecContext(ctx, q,
		req.ReceiptID, req.BlobURL, req.Pathname, req.FileName, req.MIMEType, req.SizeBytes,
		now, now,
	); err != nil {
		s.logger.Error("queue.register failed", "receipt_id", req.ReceiptID, "error", err)
		return common.WrapError(err, "register receipt")
	}
	s.logger.Info("queue.register ok", "receipt_id", req.ReceiptID, "size_bytes", req.SizeBytes)
	return nil
}

// Reserve emulates the Postgres skip-locked claim with an optimistic
// compare-and-swap: candidates are selected, then each transition is guarded
// by a status re-check so a row claimed by a racing caller counts zero
// affected rows and is dropped from this caller's result.
func (s *sqliteQueueStore) Reserve(ctx context.Context, limit int) ([]*entity.QueueItem, error) {
	now := time.Now().UnixNano()
	var claimed []string

	const maxPasses = 3
	for pass := 0; pass < maxPasses && len(claimed) < limit; pass++ {
		candidates, err := s.selectCandidates(ctx, now, limit-len(claimed))
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			break
		}
		progressed := false
		for _, id := range candidates {
			res, err := s.db.ExecContext(ctx, `
				UPDATE receipt_queue
				SET status = 'PROCESSING', processing_started_at = ?
				WHERE receipt_id = ?
				  AND status IN ('UNPROCESSED', 'ERROR')
				  AND next_retry_at <= ?`,
				now, id, now)
			if err != nil {
				return nil, common.WrapError(err, "claim receipt")
			}
			if n, _ := res.RowsAffected(); n == 1 {
				claimed = append(claimed, id)
				progressed = true
				if len(claimed) == limit {
					break
				}
			}
		}
		if !progressed {
			break
		}
	}

	items, err := s.getMany(ctx, claimed)
	if err != nil {
		return nil, err
	}
	s.logger.Info("queue.reserve ok", "limit", limit, "claimed", len(items))
	return items, nil
}

func (s *sqliteQueueStore) selectCandidates(ctx context.Context, now int64, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT receipt_id
		FROM receipt_queue
		WHERE status IN ('UNPROCESSED', 'ERROR') AND next_retry_at <= ?
		ORDER BY uploaded_at ASC
		LIMIT ?`, now, limit)
	if err != nil {
		return nil, common.WrapError(err, "select reservation candidates")
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, common.WrapError(err, "scan candidate id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *sqliteQueueStore) MarkProcessed(ctx context.Context, receiptID string, journalID int64, extractResponse []byte) error {
	now := time.Now().UnixNano()
	if _, err := s.db.ExecContext(ctx, `
		UPDATE receipt_queue
		SET status = 'PROCESSED', processed_at = ?, ledger_journal_id = ?, gemini_response = ?
		WHERE receipt_id = ?`,
		now, journalID, extractResponse, receiptID); err != nil {
		s.logger.Error("queue.mark_processed failed", "receipt_id", receiptID, "error", err)
		return common.WrapError(err, "mark processed")
	}
	s.logger.Info("queue.mark_processed ok", "receipt_id", receiptID, "journal_id", journalID)
	return nil
}

func (s *sqliteQueueStore) MarkError(ctx context.Context, receiptID string, message string, backoff time.Duration) error {
	now := time.Now()
	if _, err := s.db.ExecContext(ctx, `
		UPDATE receipt_queue
		SET status = 'ERROR',
		    error_count = error_count + 1,
		    last_error_message = ?,
		    next_retry_at = ?
		WHERE receipt_id = ?`,
		message, now.Add(backoff).UnixNano(), receiptID); err != nil {
		s.logger.Error("queue.mark_error failed", "receipt_id", receiptID, "error", err)
		return common.WrapError(err, "mark error")
	}
	s.logger.Warn("queue.mark_error ok", "receipt_id", receiptID, "message", message)
	return nil
}

func (s *sqliteQueueStore) GetByID(ctx context.Context, receiptID string) (*entity.QueueItem, error) {
	items, err := s.getMany(ctx, []string{receiptID})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, common.ErrNotFound
	}
	return items[0], nil
}

func (s *sqliteQueueStore) getMany(ctx context.Context, ids []string) ([]*entity.QueueItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT receipt_id, blob_url, pathname, file_name, mime_type, size_bytes,
		       status, error_count, last_error_message, next_retry_at,
		       ledger_journal_id, gemini_response, uploaded_at, processing_started_at, processed_at
		FROM receipt_queue
		WHERE receipt_id IN (`+placeholders+`)
		ORDER BY uploaded_at ASC`, args...)
	if err != nil {
		return nil, common.WrapError(err, "get queue items")
	}
	defer rows.Close()

	var items []*entity.QueueItem
	for rows.Next() {
		var it entity.QueueItem
		var lastErr sql.NullString
		var journalID sql.NullInt64
		var nextRetry, uploaded int64
		var started, processed sql.NullInt64
		if err := rows.Scan(
			&it.ReceiptID, &it.BlobURL, &it.Pathname, &it.FileName, &it.MIMEType, &it.SizeBytes,
			&it.Status, &it.ErrorCount, &lastErr, &nextRetry,
			&journalID, &it.ExtractResponse, &uploaded, &started, &processed,
		); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, common.ErrNotFound
			}
			return nil, common.WrapError(err, "scan queue row")
		}
		if lastErr.Valid {
			it.LastErrorMessage = &lastErr.String
		}
		if journalID.Valid {
			it.LedgerJournalID = &journalID.Int64
		}
		it.NextRetryAt = nanosToTime(nextRetry)
		it.UploadedAt = nanosToTime(uploaded)
		it.ProcessingStartedAt = nanosToTimePtr(started)
		it.ProcessedAt = nanosToTimePtr(processed)
		items = append(items, &it)
	}
	return items, rows.Err()
}
