package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keihibook/keihibook/internal/common"
	"github.com/keihibook/keihibook/internal/entity"
)

type postgresQueueStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresQueueStore(pool *pgxpool.Pool, logger *slog.Logger) QueueStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &postgresQueueStore{pool: pool, logger: logger}
}

const queueColumns = `receipt_id, blob_url, pathname, file_name, mime_type, size_bytes,
	status, error_count, last_error_message, next_retry_at,
	ledger_journal_id, gemini_response, uploaded_at, processing_started_at, processed_at`

func (s *postgresQueueStore) Register(ctx context.Context, req RegisterRequest) error {
	// Duplicate registration refreshes payload metadata only. Status and
	// retry bookkeeping are deliberately absent from the update set.
	const q = `
		INSERT INTO receipt_queue (
			receipt_id, blob_url, pathname, file_name, mime_type, size_bytes,
			status, next_retry_at
		) VALUES ($1, $2, $3, $4, $5, $6, 'UNPROCESSED', now())
		ON CONFLICT (receipt_id) DO UPDATE
			SET blob_url  = EXCLUDED.blob_url,
			    pathname  = EXCLUDED.pathname,
			    file_name = EXCLUDED.file_name,
			    mime_type = EXCLUDED.mime_type,
			    size_bytes = EXCLUDED.size_bytes`
	if _, err := s.pool.Exec(ctx, q,
		req.ReceiptID, req.BlobURL, req.Pathname, req.FileName, req.MIMEType, req.SizeBytes,
	); err != nil {
		s.logger.Error("queue.register failed", "receipt_id", req.ReceiptID, "error", err)
		return common.WrapError(err, "register receipt")
	}
	s.logger.Info("queue.register ok", "receipt_id", req.ReceiptID, "size_bytes", req.SizeBytes)
	return nil
}

func (s *postgresQueueStore) Reserve(ctx context.Context, limit int) ([]*entity.QueueItem, error) {
	// Selection and transition happen in one statement. SKIP LOCKED makes a
	// racing reservation see a reduced, disjoint candidate set instead of
	// blocking on the rows we claim.
	const q = `
		WITH cte AS (
			SELECT receipt_id
			FROM receipt_queue
			WHERE status IN ('UNPROCESSED', 'ERROR')
			  AND next_retry_at <= now()
			ORDER BY uploaded_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE receipt_queue q
		SET status = 'PROCESSING',
		    processing_started_at = now()
		FROM cte
		WHERE q.receipt_id = cte.receipt_id
		RETURNING ` + queueColumns
	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		s.logger.Error("queue.reserve failed", "limit", limit, "error", err)
		return nil, common.WrapError(err, "reserve receipts")
	}
	defer rows.Close()

	items, err := scanQueueRows(rows)
	if err != nil {
		return nil, err
	}
	s.logger.Info("queue.reserve ok", "limit", limit, "claimed", len(items))
	return items, nil
}

func (s *postgresQueueStore) MarkProcessed(ctx context.Context, receiptID string, journalID int64, extractResponse []byte) error {
	const q = `
		UPDATE receipt_queue
		SET status = 'PROCESSED',
		    processed_at = now(),
		    ledger_journal_id = $2,
		    gemini_response = $3
		WHERE receipt_id = $1`
	if _, err := s.pool.Exec(ctx, q, receiptID, journalID, extractResponse); err != nil {
		s.logger.Error("queue.mark_processed failed", "receipt_id", receiptID, "journal_id", journalID, "error", err)
		return common.WrapError(err, "mark processed")
	}
	s.logger.Info("queue.mark_processed ok", "receipt_id", receiptID, "journal_id", journalID)
	return nil
}

func (s *postgresQueueStore) MarkError(ctx context.Context, receiptID string, message string, backoff time.Duration) error {
	const q = `
		UPDATE receipt_queue
		SET status = 'ERROR',
		    error_count = error_count + 1,
		    last_error_message = $2,
		    next_retry_at = now() + $3
		WHERE receipt_id = $1`
	if _, err := s.pool.Exec(ctx, q, receiptID, message, backoff); err != nil {
		s.logger.Error("queue.mark_error failed", "receipt_id", receiptID, "error", err)
		return common.WrapError(err, "mark error")
	}
	s.logger.Warn("queue.mark_error ok", "receipt_id", receiptID, "message", message)
	return nil
}

func (s *postgresQueueStore) GetByID(ctx context.Context, receiptID string) (*entity.QueueItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+queueColumns+` FROM receipt_queue WHERE receipt_id = $1`, receiptID)
	if err != nil {
		return nil, common.WrapError(err, "get queue item")
	}
	defer rows.Close()
	items, err := scanQueueRows(rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, common.ErrNotFound
	}
	return items[0], nil
}

func scanQueueRows(rows pgx.Rows) ([]*entity.QueueItem, error) {
	var items []*entity.QueueItem
	for rows.Next() {
		it, err := scanQueueRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, common.WrapError(err, "iterate queue rows")
	}
	return items, nil
}

func scanQueueRow(row pgx.Row) (*entity.QueueItem, error) {
	var it entity.QueueItem
	err := row.Scan(
		&it.ReceiptID, &it.BlobURL, &it.Pathname, &it.FileName, &it.MIMEType, &it.SizeBytes,
		&it.Status, &it.ErrorCount, &it.LastErrorMessage, &it.NextRetryAt,
		&it.LedgerJournalID, &it.ExtractResponse, &it.UploadedAt, &it.ProcessingStartedAt, &it.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, common.WrapError(err, "scan queue row")
	}
	return &it, nil
}
