package llm

import (
	"context"
	"encoding/json"
)

// InvoiceFields is the strict output shape asked of a multimodal model.
// Every key is present in a valid response; absent values are null.
type InvoiceFields struct {
	VendorName    *string      `json:"vendor_name"`
	InvoiceNumber *string      `json:"invoice_number"`
	IssueDate     *string      `json:"issue_date"` // YYYY-MM-DD
	DueDate       *string      `json:"due_date"`   // YYYY-MM-DD
	Amount        *json.Number `json:"amount"`
	Currency      *string      `json:"currency"` // ISO 4217
	TaxAmount     *json.Number `json:"tax_amount"`
}

// VisionRequest carries one rendered page or image.
type VisionRequest struct {
	Filename string
	MimeType string
	Image    []byte
}

// VisionExtractor is what the vision stage of the cascade depends on.
type VisionExtractor interface {
	ExtractInvoice(ctx context.Context, req VisionRequest) (InvoiceFields, []byte /*rawJSON*/, error)
}
