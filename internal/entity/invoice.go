package entity

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceKey is the deterministic identity of one physical attachment.
type InvoiceKey struct {
	UserID       string `json:"user_id"`
	MessageID    string `json:"message_id"`
	AttachmentID string `json:"attachment_id"`
}

func (k InvoiceKey) Valid() bool {
	return k.UserID != "" && k.MessageID != "" && k.AttachmentID != ""
}

// Invoice is the durable record. Written once per accepted candidate and
// never updated by the pipeline afterwards.
type Invoice struct {
	InvoiceKey
	OriginalFilename string           `json:"original_filename"`
	VendorName       *string          `json:"vendor_name,omitempty"`
	InvoiceNumber    *string          `json:"invoice_number,omitempty"`
	IssueDate        *time.Time       `json:"issue_date,omitempty"`
	DueDate          *time.Time       `json:"due_date,omitempty"`
	Amount           *decimal.Decimal `json:"amount,omitempty"`
	Currency         *string          `json:"currency,omitempty"`
	TaxAmount        *decimal.Decimal `json:"tax_amount,omitempty"`
	Confidence       float64          `json:"confidence"`
	ExtractionMethod string           `json:"extraction_method"`
	StorageFileID    *string          `json:"storage_file_id,omitempty"`
	StorageLink      *string          `json:"storage_link,omitempty"`
	Processed        bool             `json:"processed"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// NewInvoice builds a record from an extraction. Processed is set when at
// least one field came out of the cascade.
func NewInvoice(key InvoiceKey, filename string, res ExtractionResult, now time.Time) Invoice {
	return Invoice{
		InvoiceKey:       key,
		OriginalFilename: filename,
		VendorName:       res.VendorName,
		InvoiceNumber:    res.InvoiceNumber,
		IssueDate:        res.IssueDate,
		DueDate:          res.DueDate,
		Amount:           res.Amount,
		Currency:         res.Currency,
		TaxAmount:        res.TaxAmount,
		Confidence:       res.Confidence,
		ExtractionMethod: res.Method,
		Processed:        !res.IsEmpty(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// NormalizeInvoiceNumber is the lookup form used for content matching.
func NormalizeInvoiceNumber(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeVendor folds case and whitespace runs so "ACME  Corp" == "acme corp".
func NormalizeVendor(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
