package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/keihibook/keihibook/internal/common"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS receipt_queue (
	receipt_id            TEXT PRIMARY KEY,
	blob_url              TEXT    NOT NULL,
	pathname              TEXT    NOT NULL,
	file_name             TEXT    NOT NULL,
	mime_type             TEXT    NOT NULL,
	size_bytes            INTEGER NOT NULL,
	status                TEXT    NOT NULL DEFAULT 'UNPROCESSED',
	error_count           INTEGER NOT NULL DEFAULT 0,
	last_error_message    TEXT,
	next_retry_at         INTEGER NOT NULL,
	ledger_journal_id     INTEGER,
	gemini_response       BLOB,
	uploaded_at           INTEGER NOT NULL,
	processing_started_at INTEGER,
	processed_at          INTEGER
);

CREATE INDEX IF NOT EXISTS idx_receipt_queue_eligible
	ON receipt_queue (status, next_retry_at, uploaded_at);

CREATE TABLE IF NOT EXISTS cron_locks (
	lock_name    TEXT PRIMARY KEY,
	locked_until INTEGER NOT NULL,
	locked_by    TEXT    NOT NULL,
	locked_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS expense_ledger (
	journal_id              INTEGER PRIMARY KEY AUTOINCREMENT,
	transaction_date        TEXT    NOT NULL,
	debit_account           TEXT    NOT NULL,
	debit_vendor            TEXT    NOT NULL DEFAULT '',
	debit_amount            INTEGER NOT NULL DEFAULT 0,
	debit_tax               INTEGER NOT NULL DEFAULT 0,
	debit_invoice_category  TEXT    NOT NULL DEFAULT '区分記載',
	credit_account          TEXT    NOT NULL,
	credit_vendor           TEXT    NOT NULL DEFAULT '',
	credit_amount           INTEGER NOT NULL DEFAULT 0,
	credit_tax              INTEGER NOT NULL DEFAULT 0,
	credit_invoice_category TEXT    NOT NULL DEFAULT '区分記載',
	description             TEXT    NOT NULL DEFAULT '',
	memo                    TEXT    NOT NULL DEFAULT '',
	drive_file_id           TEXT,
	drive_file_name         TEXT,
	drive_mime_type         TEXT,
	gemini_response         BLOB,
	created_at              INTEGER NOT NULL,
	processed_at            INTEGER
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_expense_ledger_source_file
	ON expense_ledger (drive_file_id) WHERE drive_file_id IS NOT NULL;
`

// OpenSQLite opens (and bootstraps) a SQLite database at path. This backend
// serves local single-node deployments and the test suite; timestamps are
// stored as unix nanoseconds.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, common.WrapError(err, "open sqlite")
	}
	// SQLite has a single writer anyway; one connection sidesteps
	// SQLITE_BUSY under concurrent access.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, common.WrapError(err, "ping sqlite")
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, common.WrapError(err, "apply sqlite schema")
	}
	logger.Info("sqlite ready", "path", path)
	return db, nil
}

// NewSQLiteStore wires the three SQLite-backed stores over one handle.
func NewSQLiteStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{
		Queue:  NewSQLiteQueueStore(db, logger),
		Locks:  NewSQLiteCronLockStore(db, logger),
		Ledger: NewSQLiteLedgerStore(db, logger),
	}
}

func nanosToTime(n int64) time.Time {
	return time.Unix(0, n)
}

func nanosToTimePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64)
	return &t
}
