package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoices-tracker/internal/common"
	"github.com/joseph-ayodele/invoices-tracker/internal/entity"
)

var invoiceColumns = []string{
	"user_id", "message_id", "attachment_id", "original_filename",
	"vendor_name", "invoice_number", "invoice_number_norm",
	"issue_date", "due_date", "amount", "currency", "tax_amount",
	"confidence", "extraction_method", "storage_file_id", "storage_link",
	"processed", "created_at", "updated_at",
}

// FindByKey returns nil, nil when no record has the key.
func (s *Store) FindByKey(ctx context.Context, key entity.InvoiceKey) (*entity.Invoice, error) {
	b := s.builder()
	query, args := b.Select(invoiceColumns...).
		From(b.Table(tableInvoices)).
		Where(entsql.And(
			entsql.EQ("user_id", key.UserID),
			entsql.EQ("message_id", key.MessageID),
			entsql.EQ("attachment_id", key.AttachmentID),
		)).
		Limit(1).
		Query()

	inv, err := scanInvoice(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("failed to find invoice", "user_id", key.UserID, "message_id", key.MessageID, "error", err)
		return nil, err
	}
	return &inv, nil
}

// FindByContent lists a user's records with the given normalized invoice number.
func (s *Store) FindByContent(ctx context.Context, userID, invoiceNumber string) ([]entity.Invoice, error) {
	b := s.builder()
	query, args := b.Select(invoiceColumns...).
		From(b.Table(tableInvoices)).
		Where(entsql.And(
			entsql.EQ("user_id", userID),
			entsql.EQ("invoice_number_norm", entity.NormalizeInvoiceNumber(invoiceNumber)),
		)).
		Query()
	return s.queryInvoices(ctx, query, args)
}

// Save inserts the record once. inserted is false when the key already exists.
func (s *Store) Save(ctx context.Context, inv entity.Invoice) (inserted bool, err error) {
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = s.now().UTC()
	}
	if inv.UpdatedAt.IsZero() {
		inv.UpdatedAt = inv.CreatedAt
	}
	var norm sql.NullString
	if inv.InvoiceNumber != nil {
		norm = sql.NullString{String: entity.NormalizeInvoiceNumber(*inv.InvoiceNumber), Valid: true}
	}
	query, args := s.builder().Insert(tableInvoices).
		Columns(invoiceColumns...).
		Values(
			inv.UserID, inv.MessageID, inv.AttachmentID, inv.OriginalFilename,
			nullString(inv.VendorName), nullString(inv.InvoiceNumber), norm,
			nullDate(inv.IssueDate), nullDate(inv.DueDate),
			nullDecimal(inv.Amount), nullString(inv.Currency), nullDecimal(inv.TaxAmount),
			inv.Confidence, inv.ExtractionMethod,
			nullString(inv.StorageFileID), nullString(inv.StorageLink),
			inv.Processed, toMillis(inv.CreatedAt), toMillis(inv.UpdatedAt),
		).
		OnConflict(
			entsql.ConflictColumns("user_id", "message_id", "attachment_id"),
			entsql.DoNothing(),
		).
		Query()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("failed to save invoice", "user_id", inv.UserID, "message_id", inv.MessageID, "error", err)
		return false, fmt.Errorf("save invoice: %w: %w", common.ErrDatabase, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListByUser returns the user's records oldest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]entity.Invoice, error) {
	b := s.builder()
	query, args := b.Select(invoiceColumns...).
		From(b.Table(tableInvoices)).
		Where(entsql.EQ("user_id", userID)).
		OrderBy("created_at", "message_id", "attachment_id").
		Query()
	return s.queryInvoices(ctx, query, args)
}

func (s *Store) queryInvoices(ctx context.Context, query string, args []any) ([]entity.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("failed to query invoices", "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []entity.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (entity.Invoice, error) {
	var (
		inv                  entity.Invoice
		vendor, number, norm sql.NullString
		issue, due, currency sql.NullString
		fileID, link         sql.NullString
		amount, tax          decimal.NullDecimal
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&inv.UserID, &inv.MessageID, &inv.AttachmentID, &inv.OriginalFilename,
		&vendor, &number, &norm,
		&issue, &due, &amount, &currency, &tax,
		&inv.Confidence, &inv.ExtractionMethod, &fileID, &link,
		&inv.Processed, &createdAt, &updatedAt,
	)
	if err != nil {
		return entity.Invoice{}, err
	}
	inv.VendorName = stringPtr(vendor)
	inv.InvoiceNumber = stringPtr(number)
	inv.IssueDate = datePtr(issue)
	inv.DueDate = datePtr(due)
	inv.Amount = decimalPtr(amount)
	inv.Currency = stringPtr(currency)
	inv.TaxAmount = decimalPtr(tax)
	inv.StorageFileID = stringPtr(fileID)
	inv.StorageLink = stringPtr(link)
	inv.CreatedAt = fromMillis(createdAt)
	inv.UpdatedAt = fromMillis(updatedAt)
	return inv, nil
}
