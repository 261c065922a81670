package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/keihibook/keihibook/internal/common"
	"github.com/keihibook/keihibook/internal/entity"
)

type sqliteLedgerStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteLedgerStore(db *sql.DB, logger *slog.Logger) LedgerStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &sqliteLedgerStore{db: db, logger: logger}
}

const sqliteLedgerColumns = `journal_id, transaction_date,
	debit_account, debit_vendor, debit_amount, debit_tax, debit_invoice_category,
	credit_account, credit_vendor, credit_amount, credit_tax, credit_invoice_category,
	description, memo,
	drive_file_id, drive_file_name, drive_mime_type,
	gemini_response, created_at, processed_at`

func (s *sqliteLedgerStore) Insert(ctx context.Context, e *entity.LedgerEntry) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, common.WrapError(err, "begin ledger tx")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO expense_ledger (
			transaction_date,
			debit_account, debit_vendor, debit_amount, debit_tax, debit_invoice_category,
			credit_account, credit_vendor, credit_amount, credit_tax, credit_invoice_category,
			description, memo,
			drive_file_id, drive_file_name, drive_mime_type,
			gemini_response, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TransactionDate.Format("2006-01-02"),
		e.DebitAccount, e.DebitVendor, e.DebitAmount, e.DebitTax, e.DebitInvoiceCategory,
		e.CreditAccount, e.CreditVendor, e.CreditAmount, e.CreditTax, e.CreditInvoiceCategory,
		e.Description, e.Memo,
		nullIfEmpty(e.SourceReceiptID), nullIfEmpty(e.SourceFileName), nullIfEmpty(e.SourceMIMEType),
		e.ExtractResponse, time.Now().UnixNano())
	if err != nil {
		s.logger.Error("ledger.insert failed", "receipt_id", e.SourceReceiptID, "error", err)
		return 0, common.WrapError(err, "insert ledger entry")
	}
	journalID, err := res.LastInsertId()
	if err != nil {
		return 0, common.WrapError(err, "ledger journal id")
	}
	if err := tx.Commit(); err != nil {
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

func (s *sqliteLedgerStore) GetByID(ctx context.Context, journalID int64) (*entity.LedgerEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteLedgerColumns+` FROM expense_ledger WHERE journal_id = ?`, journalID)
	return scanSQLiteLedgerRow(row)
}

func (s *sqliteLedgerStore) List(ctx context.Context, p ListLedgerParams) ([]*entity.LedgerEntry, int, error) {
	if p.Limit <= 0 {
		p.Limit = 50
	}

	where := ""
	args := []any{}
	if q := strings.TrimSpace(p.Query); q != "" {
		like := "%" + q + "%"
		where = `
			WHERE CAST(journal_id AS TEXT) LIKE ?
			   OR transaction_date LIKE ?
			   OR debit_account LIKE ?
			   OR debit_vendor LIKE ?
			   OR credit_account LIKE ?
			   OR description LIKE ?
			   OR memo LIKE ?
			   OR drive_file_id LIKE ?
			   OR drive_file_name LIKE ?`
		for i := 0; i < 9; i++ {
			args = append(args, like)
		}
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM expense_ledger`+where, args...).Scan(&total); err != nil {
		return nil, 0, common.WrapError(err, "count ledger entries")
	}

	args = append(args, p.Limit, p.Offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteLedgerColumns+` FROM expense_ledger`+where+
			` ORDER BY created_at DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		s.logger.Error("ledger.list failed", "error", err)
		return nil, 0, common.WrapError(err, "list ledger entries")
	}
	defer rows.Close()

	var out []*entity.LedgerEntry
	for rows.Next() {
		e, err := scanSQLiteLedgerRow(rows)
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

func (s *sqliteLedgerStore) Update(ctx context.Context, journalID int64, req UpdateLedgerRequest) (*entity.LedgerEntry, error) {
	sets, args := ledgerUpdateSets(req, func(int) string { return "?" })
	if len(sets) == 0 {
		return s.GetByID(ctx, journalID)
	}
	// transaction_date is stored as a YYYY-MM-DD string in this backend.
	for i, a := range args {
		if t, ok := a.(time.Time); ok {
			args[i] = t.Format("2006-01-02")
		}
	}
	args = append(args, journalID)
	q := fmt.Sprintf(`UPDATE expense_ledger SET %s WHERE journal_id = ?`, strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		s.logger.Error("ledger.update failed", "journal_id", journalID, "error", err)
		return nil, common.WrapError(err, "update ledger entry")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, common.ErrNotFound
	}
	s.logger.Info("ledger.update ok", "journal_id", journalID, "fields", len(sets))
	return s.GetByID(ctx, journalID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteLedgerRow(row rowScanner) (*entity.LedgerEntry, error) {
	var e entity.LedgerEntry
	var txDate string
	var fileID, fileName, mimeType sql.NullString
	var createdAt int64
	var processedAt sql.NullInt64
	err := row.Scan(
		&e.JournalID, &txDate,
		&e.DebitAccount, &e.DebitVendor, &e.DebitAmount, &e.DebitTax, &e.DebitInvoiceCategory,
		&e.CreditAccount, &e.CreditVendor, &e.CreditAmount, &e.CreditTax, &e.CreditInvoiceCategory,
		&e.Description, &e.Memo,
		&fileID, &fileName, &mimeType,
		&e.ExtractResponse, &createdAt, &processedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, common.WrapError(err, "scan ledger row")
	}
	if t, err := time.Parse("2006-01-02", txDate); err == nil {
		e.TransactionDate = t
	}
	e.SourceReceiptID = fileID.String
	e.SourceFileName = fileName.String
	e.SourceMIMEType = mimeType.String
	e.CreatedAt = nanosToTime(createdAt)
	e.ProcessedAt = nanosToTimePtr(processedAt)
	return &e, nil
}
