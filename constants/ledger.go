package constants

// Invoice categories under the Japanese qualified-invoice system.
// Stored verbatim in the ledger, exactly as the extraction service returns them.
const (
	InvoiceQualified   = "適格"   // issuer carries a qualified-invoice registration number
	InvoiceCategorized = "区分記載" // categorized-receipt fallback
)

// NormalizeInvoiceCategory maps unknown input to the categorized fallback.
func NormalizeInvoiceCategory(s string) string {
	if s == InvoiceQualified {
		return InvoiceQualified
	}
	return InvoiceCategorized
}
