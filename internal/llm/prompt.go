package llm

import (
	"encoding/json"
	"strings"
)

// BuildVisionSystemPrompt fixes the output contract for invoice images.
func BuildVisionSystemPrompt() string {
	schema, _ := json.Marshal(BuildInvoiceJSONSchema())
	parts := []string{
		"You read invoices. Return ONLY a JSON object with exactly these keys: " + strings.Join(InvoiceFieldKeys, ", ") + ".",
		"Use null for anything not visible on the document. Never guess.",
		"Dates are ISO-8601 (YYYY-MM-DD). Amounts are JSON numbers with '.' as decimal separator and no currency symbol.",
		"'amount' is the grand total payable, including tax. 'tax_amount' is the total tax or VAT.",
		"'currency' is a 3-letter ISO 4217 code.",
		"'vendor_name' is the issuing company, not the customer.",
		"JSON Schema: " + string(schema),
	}
	return strings.Join(parts, " ")
}

// BuildVisionUserPrompt names the source file; the image travels alongside.
func BuildVisionUserPrompt(filename string) string {
	var b strings.Builder
	if f := strings.TrimSpace(filename); f != "" {
		b.WriteString("Filename: ")
		b.WriteString(f)
		b.WriteString("\n")
	}
	b.WriteString("Extract the invoice fields from the attached image.")
	return b.String()
}
