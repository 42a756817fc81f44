package llm

// InvoiceFieldKeys lists the keys of InvoiceFields in prompt order.
var InvoiceFieldKeys = []string{
	"vendor_name", "invoice_number", "issue_date", "due_date", "amount", "currency", "tax_amount",
}

// BuildInvoiceJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a generic map.
// It is sent to the model as the output contract and used locally to validate.
func BuildInvoiceJSONSchema() map[string]any {
	props := map[string]any{
		"vendor_name":    nullable(map[string]any{"type": "string", "minLength": 1}),
		"invoice_number": nullable(map[string]any{"type": "string", "pattern": `^[A-Za-z0-9_\-/.]+$`}),
		"issue_date":     nullable(dateProp()),
		"due_date":       nullable(dateProp()),
		"amount":         nullable(map[string]any{"type": "number", "minimum": 0}),
		"currency":       nullable(map[string]any{"type": "string", "pattern": `^[A-Z]{3}$`}),
		"tax_amount":     nullable(map[string]any{"type": "number", "minimum": 0}),
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             InvoiceFieldKeys,
	}
}

func dateProp() map[string]any {
	return map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`}
}

func nullable(p map[string]any) map[string]any {
	return map[string]any{"anyOf": []any{p, map[string]any{"type": "null"}}}
}
