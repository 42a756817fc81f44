// Package sheets projects invoice records into spreadsheets. The records
// stay the source of truth; a projection can always be rebuilt from them.
package sheets

import (
	"context"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoices-tracker/internal/entity"
)

// Appender is the spreadsheet collaborator. Rewrite replaces the user's
// whole projection.
type Appender interface {
	AppendRow(ctx context.Context, userID string, row []string) error
	Rewrite(ctx context.Context, userID string, rows [][]string) error
}

// Header is the first row of every projection.
var Header = []string{
	"Recorded At", "Vendor", "Invoice Number", "Issue Date", "Due Date",
	"Amount", "Currency", "Tax", "Confidence", "Method",
	"File", "Filename", "Message ID", "Attachment ID",
}

// Row renders a record in Header order. Unknown fields are empty cells.
func Row(inv entity.Invoice) []string {
	return []string{
		inv.CreatedAt.UTC().Format(time.RFC3339),
		deref(inv.VendorName),
		deref(inv.InvoiceNumber),
		date(inv.IssueDate),
		date(inv.DueDate),
		money(inv.Amount),
		deref(inv.Currency),
		money(inv.TaxAmount),
		formatFloat(inv.Confidence),
		inv.ExtractionMethod,
		deref(inv.StorageLink),
		inv.OriginalFilename,
		inv.MessageID,
		inv.AttachmentID,
	}
}

// Rows renders records in order.
func Rows(invs []entity.Invoice) [][]string {
	out := make([][]string, 0, len(invs))
	for _, inv := range invs {
		out = append(out, Row(inv))
	}
	return out
}

// TabName makes a user id safe as a sheet title.
func TabName(userID string) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(userID))
	if name == "" {
		name = "invoices"
	}
	if len([]rune(name)) > 100 {
		name = string([]rune(name)[:100])
	}
	return name
}
