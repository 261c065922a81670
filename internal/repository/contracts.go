package repository

import (
	"context"
	"time"

	"github.com/keihibook/keihibook/internal/entity"
)

// RegisterRequest wraps parameters for registering an uploaded receipt.
type RegisterRequest struct {
	ReceiptID string
	BlobURL   string
	Pathname  string
	FileName  string
	MIMEType  string
	SizeBytes int64
}

// QueueStore is the durable receipt work queue. Register is an idempotent
// upsert; Reserve is the lease manager's atomic claim; MarkProcessed and
// MarkError are the commit protocol's terminal transitions. No other code
// path writes queue status.
type QueueStore interface {
	// Register inserts the item as UNPROCESSED with next_retry_at = now, or,
	// if the receipt id already exists, updates payload metadata in place
	// leaving status and retry bookkeeping untouched.
	Register(ctx context.Context, req RegisterRequest) error

	// Reserve atomically claims up to limit eligible items, oldest first,
	// moving each to PROCESSING. Two concurrent callers never receive
	// overlapping sets; an empty result is not an error.
	Reserve(ctx context.Context, limit int) ([]*entity.QueueItem, error)

	// MarkProcessed records terminal success with the committed journal id
	// and the raw extraction payload.
	MarkProcessed(ctx context.Context, receiptID string, journalID int64, extractResponse []byte) error

	// MarkError records a failure: status ERROR, error_count incremented,
	// next_retry_at pushed out by backoff.
	MarkError(ctx context.Context, receiptID string, message string, backoff time.Duration) error

	GetByID(ctx context.Context, receiptID string) (*entity.QueueItem, error)
}

// CronLockStore is a named TTL-based mutual-exclusion lock. Acquire is a
// single atomic conditional upsert; it returns false without side effects
// when the lock is currently held.
type CronLockStore interface {
	Acquire(ctx context.Context, name string, ttl time.Duration, holder string) (bool, error)
	// Release makes the lock immediately acquirable. It is unconditional and
	// must run on every exit path of the protected work.
	Release(ctx context.Context, name, holder string) error
	Get(ctx context.Context, name string) (*entity.CronLock, error)
}

// ListLedgerParams filters and pages the ledger listing.
type ListLedgerParams struct {
	Query  string
	Limit  int
	Offset int
}

// UpdateLedgerRequest carries the editable accounting fields; nil means
// leave the column unchanged.
type UpdateLedgerRequest struct {
	TransactionDate *time.Time

	DebitAccount         *string
	DebitVendor          *string
	DebitAmount          *int64
	DebitTax             *int64
	DebitInvoiceCategory *string

	CreditAccount         *string
	CreditVendor          *string
	CreditAmount          *int64
	CreditTax             *int64
	CreditInvoiceCategory *string

	Description *string
	Memo        *string
}

// LedgerStore owns expense_ledger rows. The pipeline only calls Insert;
// the remaining operations serve the listing and edit screens.
type LedgerStore interface {
	// Insert commits one double-entry line in its own transaction and
	// returns the generated journal id.
	Insert(ctx context.Context, e *entity.LedgerEntry) (int64, error)
	GetByID(ctx context.Context, journalID int64) (*entity.LedgerEntry, error)
	List(ctx context.Context, p ListLedgerParams) ([]*entity.LedgerEntry, int, error)
	Update(ctx context.Context, journalID int64, req UpdateLedgerRequest) (*entity.LedgerEntry, error)
}

// Store bundles the three stores a worker run touches.
type Store struct {
	Queue  QueueStore
	Locks  CronLockStore
	Ledger LedgerStore
}
