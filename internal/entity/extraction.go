package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExtractionResult is what the cascade hands back. Every field is optional on
// its own; a result with only an amount is still a valid partial extraction.
type ExtractionResult struct {
	VendorName    *string          `json:"vendor_name,omitempty"`
	InvoiceNumber *string          `json:"invoice_number,omitempty"`
	IssueDate     *time.Time       `json:"issue_date,omitempty"`
	DueDate       *time.Time       `json:"due_date,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Currency      *string          `json:"currency,omitempty"`
	TaxAmount     *decimal.Decimal `json:"tax_amount,omitempty"`
	Confidence    float64          `json:"confidence"`
	Method        string           `json:"method"`
}

// FieldCount returns how many of the seven fields are populated.
func (r ExtractionResult) FieldCount() int {
	n := 0
	for _, set := range []bool{
		r.VendorName != nil,
		r.InvoiceNumber != nil,
		r.IssueDate != nil,
		r.DueDate != nil,
		r.Amount != nil,
		r.Currency != nil,
		r.TaxAmount != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

func (r ExtractionResult) IsEmpty() bool {
	return r.FieldCount() == 0
}

// HasContentKey reports whether vendor, invoice number and amount are all present.
func (r ExtractionResult) HasContentKey() bool {
	return r.VendorName != nil && r.InvoiceNumber != nil && r.Amount != nil
}

// StrPtr returns nil for empty strings.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
