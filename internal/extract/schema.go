package extract

import "github.com/keihibook/keihibook/constants"

// BuildReceiptJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. We pass it to the extraction service as a structured-output
// constraint and also use it locally to validate the reply.
func BuildReceiptJSONSchema() map[string]any {
	props := map[string]any{
		"store_name":       map[string]any{"type": "string"},
		"transaction_date": map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
		"total_amount":     map[string]any{"type": "integer", "minimum": 0},
		"tax_amount":       map[string]any{"type": "integer", "minimum": 0},
		"invoice_category": map[string]any{
			"type": "string",
			"enum": []string{constants.InvoiceQualified, constants.InvoiceCategorized},
		},
		"suggested_debit_account": map[string]any{"type": "string"},
		"description":             map[string]any{"type": "string"},
		"memo":                    map[string]any{"type": "string"},
		"items_summary":           map[string]any{"type": "string"},
	}
	required := []string{"store_name", "transaction_date", "invoice_category"}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             required,
	}
}
