package extract

import "context"

// Record is the structured output we require from the document-understanding
// service. Amounts are integer yen; missing amounts decode as 0.
type Record struct {
	StoreName             string `json:"store_name"`
	TransactionDate       string `json:"transaction_date"` // YYYY-MM-DD
	TotalAmount           int64  `json:"total_amount"`
	TaxAmount             int64  `json:"tax_amount"`
	InvoiceCategory       string `json:"invoice_category"` // 適格 or 区分記載
	SuggestedDebitAccount string `json:"suggested_debit_account"`
	Description           string `json:"description"`
	Memo                  string `json:"memo"`
	ItemsSummary          string `json:"items_summary"`
}

// Extractor is the boundary the worker depends on. Any transport error,
// timeout, or malformed reply surfaces as a single error with a readable
// message; the caller applies generic backoff and never inspects subtypes.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (Record, []byte /*rawJSON*/, error)
}
