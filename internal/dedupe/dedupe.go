// Package dedupe decides whether a candidate attachment is already on record.
package dedupe

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoices-tracker/internal/common"
	"github.com/joseph-ayodele/invoices-tracker/internal/entity"
)

const (
	ReasonNone        = ""
	ReasonSameKey     = "same_attachment"
	ReasonSameContent = "same_content"
)

// DefaultTolerance is the largest amount difference still treated as equal.
var DefaultTolerance = decimal.RequireFromString("0.01")

// Store is the lookup surface the resolver needs.
type Store interface {
	FindByKey(ctx context.Context, key entity.InvoiceKey) (*entity.Invoice, error)
	FindByContent(ctx context.Context, userID, invoiceNumber string) ([]entity.Invoice, error)
}

type Decision struct {
	IsDuplicate bool
	Reason      string
	// Existing is the record that matched, when there is one.
	Existing *entity.Invoice
}

type Resolver struct {
	store     Store
	tolerance decimal.Decimal
	logger    *slog.Logger
}

func NewResolver(store Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, tolerance: DefaultTolerance, logger: logger}
}

// WithTolerance overrides the amount tolerance of the content rule.
func (r *Resolver) WithTolerance(t decimal.Decimal) *Resolver {
	r.tolerance = t.Abs()
	return r
}

// Check applies the key rule, then the content rule when data is given.
// A key lookup error is returned; the content rule fails open.
func (r *Resolver) Check(ctx context.Context, key entity.InvoiceKey, data *entity.ExtractionResult) (Decision, error) {
	if !key.Valid() {
		return Decision{}, common.NewAppError("INVALID_KEY", "user, message and attachment ids are required", common.ErrInvalidInput)
	}
	existing, err := r.store.FindByKey(ctx, key)
	if err != nil {
		return Decision{}, common.WrapError(err, "dedupe key lookup")
	}
	if existing != nil {
		return Decision{IsDuplicate: true, Reason: ReasonSameKey, Existing: existing}, nil
	}
	if data == nil {
		return Decision{}, nil
	}
	return r.byContent(ctx, key, *data), nil
}

func (r *Resolver) byContent(ctx context.Context, key entity.InvoiceKey, data entity.ExtractionResult) Decision {
	if !data.HasContentKey() {
		return Decision{}
	}
	log := common.LoggerFrom(ctx, r.logger)
	number := entity.NormalizeInvoiceNumber(*data.InvoiceNumber)
	candidates, err := r.store.FindByContent(ctx, key.UserID, number)
	if err != nil {
		log.Warn("dedupe.content.lookup_failed", "message_id", key.MessageID, "attachment_id", key.AttachmentID, "err", err)
		return Decision{}
	}
	vendor := entity.NormalizeVendor(*data.VendorName)
	for i := range candidates {
		c := candidates[i]
		if c.InvoiceKey == key || c.VendorName == nil || c.Amount == nil {
			continue
		}
		if entity.NormalizeVendor(*c.VendorName) != vendor {
			continue
		}
		if c.Amount.Sub(*data.Amount).Abs().GreaterThan(r.tolerance) {
			continue
		}
		log.Info("dedupe.content.match", "message_id", key.MessageID, "existing_message_id", c.MessageID, "invoice_number", number)
		return Decision{IsDuplicate: true, Reason: ReasonSameContent, Existing: &c}
	}
	return Decision{}
}
