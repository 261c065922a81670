package entity

import "time"

// LedgerEntry is one double-entry accounting line in expense_ledger.
// Amounts are integer yen. The pipeline only ever inserts these; the edit
// screens update them afterwards through the same row shape.
type LedgerEntry struct {
	JournalID       int64     `json:"journal_id"`
	TransactionDate time.Time `json:"transaction_date"`

	DebitAccount         string `json:"debit_account"`
	DebitVendor          string `json:"debit_vendor"`
	DebitAmount          int64  `json:"debit_amount"`
	DebitTax             int64  `json:"debit_tax"`
	DebitInvoiceCategory string `json:"debit_invoice_category"`

	CreditAccount         string `json:"credit_account"`
	CreditVendor          string `json:"credit_vendor"`
	CreditAmount          int64  `json:"credit_amount"`
	CreditTax             int64  `json:"credit_tax"`
	CreditInvoiceCategory string `json:"credit_invoice_category"`

	Description string `json:"description"`
	Memo        string `json:"memo"`

	// Source-file linkage back to the queue item that produced this row.
	// Unique where present: one receipt yields at most one ledger entry.
	SourceReceiptID string `json:"source_receipt_id,omitempty"`
	SourceFileName  string `json:"source_file_name,omitempty"`
	SourceMIMEType  string `json:"source_mime_type,omitempty"`

	ExtractResponse []byte `json:"extract_response,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}
