package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keihibook/keihibook/internal/common"
	"github.com/keihibook/keihibook/internal/entity"
)

type postgresLedgerStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresLedgerStore(pool *pgxpool.Pool, logger *slog.Logger) LedgerStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &postgresLedgerStore{pool: pool, logger: logger}
}

const ledgerColumns = `journal_id, transaction_date,
	debit_account, debit_vendor, debit_amount, debit_tax, debit_invoice_category,
	credit_account, credit_vendor, credit_amount, credit_tax, credit_invoice_category,
	description, memo,
	drive_file_id, drive_file_name, drive_mime_type,
	gemini_response, created_at, processed_at`

func (s *postgresLedgerStore) Insert(ctx context.Context, e *entity.LedgerEntry) (int64, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, common.WrapError(err, "begin ledger tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const q = `
		INSERT INTO expense_ledger (
			transaction_date,
			debit_account, debit_vendor, debit_amount, debit_tax, debit_invoice_category,
			credit_account, credit_vendor, credit_amount, credit_tax, credit_invoice_category,
			description, memo,
			drive_file_id, drive_file_name, drive_mime_type,
			gemini_response
		) VALUES (
			$1,
			$2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13,
			$14, $15, $16,
			$17
		)
		RETURNING journal_id`
	var journalID int64
	err = tx.QueryRow(ctx, q,
		e.TransactionDate,
		e.DebitAccount, e.DebitVendor, e.DebitAmount, e.DebitTax, e.DebitInvoiceCategory,
		e.CreditAccount, e.CreditVendor, e.CreditAmount, e.CreditTax, e.CreditInvoiceCategory,
		e.Description, e.Memo,
		nullIfEmpty(e.SourceReceiptID), nullIfEmpty(e.SourceFileName), nullIfEmpty(e.SourceMIMEType),
		e.ExtractResponse,
	).Scan(&journalID)
	if err != nil {
		s.logger.Error("ledger.insert failed", "receipt_id", e.SourceReceiptID, "error", err)
		return 0, common.WrapError(err, "insert ledger entry")
	}
	if err := tx.Commit(ctx); err != nil {
		s.logger.Error("ledger.insert commit failed", "receipt_id", e.SourceReceiptID, "error", err)
		return 0, common.WrapError(err, "commit ledger entry")
	}
	s.logger.Info("ledger.insert ok",
		"journal_id", journalID,
		"receipt_id", e.SourceReceiptID,
		"debit_account", e.DebitAccount,
		"debit_amount", e.DebitAmount,
	)
	return journalID, nil
}

func (s *postgresLedgerStore) GetByID(ctx context.Context, journalID int64) (*entity.LedgerEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+ledgerColumns+` FROM expense_ledger WHERE journal_id = $1`, journalID)
	return scanLedgerRow(row)
}

func (s *postgresLedgerStore) List(ctx context.Context, p ListLedgerParams) ([]*entity.LedgerEntry, int, error) {
	if p.Limit <= 0 {
		p.Limit = 50
	}

	where := ""
	args := []any{}
	if q := strings.TrimSpace(p.Query); q != "" {
		where = `
			WHERE journal_id::text ILIKE $1
			   OR transaction_date::text ILIKE $1
			   OR debit_account ILIKE $1
			   OR debit_vendor ILIKE $1
			   OR credit_account ILIKE $1
			   OR description ILIKE $1
			   OR memo ILIKE $1
			   OR drive_file_id ILIKE $1
			   OR drive_file_name ILIKE $1`
		args = append(args, "%"+q+"%")
	}

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*)::int FROM expense_ledger`+where, args...).Scan(&total); err != nil {
		return nil, 0, common.WrapError(err, "count ledger entries")
	}

	listQ := fmt.Sprintf(`SELECT %s FROM expense_ledger%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		ledgerColumns, where, len(args)+1, len(args)+2)
	args = append(args, p.Limit, p.Offset)

	rows, err := s.pool.Query(ctx, listQ, args...)
	if err != nil {
		s.logger.Error("ledger.list failed", "error", err)
		return nil, 0, common.WrapError(err, "list ledger entries")
	}
	defer rows.Close()

	var out []*entity.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerRow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, common.WrapError(err, "iterate ledger rows")
	}
	return out, total, nil
}

func (s *postgresLedgerStore) Update(ctx context.Context, journalID int64, req UpdateLedgerRequest) (*entity.LedgerEntry, error) {
	sets, args := ledgerUpdateSets(req, func(i int) string { return fmt.Sprintf("$%d", i) })
	if len(sets) == 0 {
		return s.GetByID(ctx, journalID)
	}
	args = append(args, journalID)
	q := fmt.Sprintf(`UPDATE expense_ledger SET %s WHERE journal_id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), ledgerColumns)
	e, err := scanLedgerRow(s.pool.QueryRow(ctx, q, args...))
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			s.logger.Error("ledger.update failed", "journal_id", journalID, "error", err)
		}
		return nil, err
	}
	s.logger.Info("ledger.update ok", "journal_id", journalID, "fields", len(sets))
	return e, nil
}

// ledgerUpdateSets builds the SET clause for the editable fields. The
// placeholder function abstracts over $n (postgres) vs ? (sqlite).
func ledgerUpdateSets(req UpdateLedgerRequest, ph func(int) string) ([]string, []any) {
	var sets []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, col+" = "+ph(len(args)))
	}
	if req.TransactionDate != nil {
		add("transaction_date", *req.TransactionDate)
	}
	if req.DebitAccount != nil {
		add("debit_account", *req.DebitAccount)
	}
	if req.DebitVendor != nil {
		add("debit_vendor", *req.DebitVendor)
	}
	if req.DebitAmount != nil {
		add("debit_amount", *req.DebitAmount)
	}
	if req.DebitTax != nil {
		add("debit_tax", *req.DebitTax)
	}
	if req.DebitInvoiceCategory != nil {
		add("debit_invoice_category", *req.DebitInvoiceCategory)
	}
	if req.CreditAccount != nil {
		add("credit_account", *req.CreditAccount)
	}
	if req.CreditVendor != nil {
		add("credit_vendor", *req.CreditVendor)
	}
	if req.CreditAmount != nil {
		add("credit_amount", *req.CreditAmount)
	}
	if req.CreditTax != nil {
		add("credit_tax", *req.CreditTax)
	}
	if req.CreditInvoiceCategory != nil {
		add("credit_invoice_category", *req.CreditInvoiceCategory)
	}
	if req.Description != nil {
		add("description", *req.Description)
	}
	if req.Memo != nil {
		add("memo", *req.Memo)
	}
	return sets, args
}

func scanLedgerRow(row pgx.Row) (*entity.LedgerEntry, error) {
	var e entity.LedgerEntry
	var fileID, fileName, mimeType *string
	err := row.Scan(
		&e.JournalID, &e.TransactionDate,
		&e.DebitAccount, &e.DebitVendor, &e.DebitAmount, &e.DebitTax, &e.DebitInvoiceCategory,
		&e.CreditAccount, &e.CreditVendor, &e.CreditAmount, &e.CreditTax, &e.CreditInvoiceCategory,
		&e.Description, &e.Memo,
		&fileID, &fileName, &mimeType,
		&e.ExtractResponse, &e.CreatedAt, &e.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, common.WrapError(err, "scan ledger row")
	}
	e.SourceReceiptID = deref(fileID)
	e.SourceFileName = deref(fileName)
	e.SourceMIMEType = deref(mimeType)
	return &e, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
