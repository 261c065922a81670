package entity

import (
	"time"

	"github.com/keihibook/keihibook/constants"
)

// QueueItem is the durable tracking record for one uploaded receipt.
// Exactly one row exists per receipt id; payload bytes live behind BlobURL
// and are never copied into the queue.
type QueueItem struct {
	ReceiptID string                `json:"receipt_id"`
	BlobURL   string                `json:"blob_url"`
	Pathname  string                `json:"pathname"`
	FileName  string                `json:"file_name"`
	MIMEType  string                `json:"mime_type"`
	SizeBytes int64                 `json:"size_bytes"`
	Status    constants.QueueStatus `json:"status"`

	ErrorCount       int       `json:"error_count"`
	LastErrorMessage *string   `json:"last_error_message,omitempty"`
	NextRetryAt      time.Time `json:"next_retry_at"`

	// Set on terminal success only.
	LedgerJournalID *int64 `json:"ledger_journal_id,omitempty"`
	ExtractResponse []byte `json:"extract_response,omitempty"`

	UploadedAt          time.Time  `json:"uploaded_at"`
	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty"`
	ProcessedAt         *time.Time `json:"processed_at,omitempty"`
}
