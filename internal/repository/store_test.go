package repository

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoices-tracker/constants"
	"github.com/joseph-ayodele/invoices-tracker/internal/entity"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(context.Background(), Config{Driver: "sqlite", DSN: ":memory:"}, logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func sampleInvoice(msg, att string) entity.Invoice {
	vendor, number, currency := "Acme Corp", "inv-42", "EUR"
	amount := decimal.RequireFromString("120.50")
	issue := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	res := entity.ExtractionResult{
		VendorName: &vendor, InvoiceNumber: &number, Amount: &amount,
		Currency: &currency, IssueDate: &issue, Confidence: 0.5, Method: constants.StageRegex,
	}
	key := entity.InvoiceKey{UserID: "u1", MessageID: msg, AttachmentID: att}
	return entity.NewInvoice(key, "invoice.pdf", res, time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC))
}

func TestSaveIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	inv := sampleInvoice("m1", "a1")

	inserted, err := s.Save(ctx, inv)
	if err != nil || !inserted {
		t.Fatalf("first save: inserted=%v err=%v", inserted, err)
	}
	inserted, err = s.Save(ctx, inv)
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if inserted {
		t.Fatal("second save of the same key must not insert")
	}

	got, err := s.FindByKey(ctx, inv.InvoiceKey)
	if err != nil || got == nil {
		t.Fatalf("find by key: %v %v", got, err)
	}
	if !got.Amount.Equal(decimal.RequireFromString("120.5")) {
		t.Fatalf("amount round trip: %s", got.Amount)
	}
	if got.IssueDate == nil || !got.IssueDate.Equal(*inv.IssueDate) {
		t.Fatalf("issue date round trip: %v", got.IssueDate)
	}
	if got.DueDate != nil || got.TaxAmount != nil || got.StorageLink != nil {
		t.Fatalf("unset fields should stay nil: %+v", got)
	}
	if !got.Processed || !got.CreatedAt.Equal(inv.CreatedAt) {
		t.Fatalf("unexpected record %+v", got)
	}

	missing, err := s.FindByKey(ctx, entity.InvoiceKey{UserID: "u1", MessageID: "m9", AttachmentID: "a9"})
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing key, got %v %v", missing, err)
	}
}

func TestFindByContentUsesNormalizedNumber(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.Save(ctx, sampleInvoice("m1", "a1")); err != nil {
		t.Fatal(err)
	}
	got, err := s.FindByContent(ctx, "u1", " INV-42 ")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].MessageID != "m1" {
		t.Fatalf("expected the stored record, got %+v", got)
	}
	other, _ := s.FindByContent(ctx, "u2", "INV-42")
	if len(other) != 0 {
		t.Fatal("content lookup must be scoped to the user")
	}

	list, err := s.ListByUser(ctx, "u1")
	if err != nil || len(list) != 1 {
		t.Fatalf("list by user: %v %v", list, err)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c, err := s.GetCursor(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !c.IsFirstScan || !c.LastProcessedAt.IsZero() {
		t.Fatalf("unknown user should get a first-scan cursor, got %+v", c)
	}

	newest := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	next := c.Advance(newest, 77, newest.Add(time.Minute))
	if err := s.SetCursor(ctx, next); err != nil {
		t.Fatal(err)
	}
	later := next.Advance(newest.Add(time.Hour), 0, newest.Add(2*time.Hour))
	if err := s.SetCursor(ctx, later); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetCursor(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got.IsFirstScan || !got.LastProcessedAt.Equal(newest.Add(time.Hour)) || got.LastHistoryID != 77 {
		t.Fatalf("unexpected cursor %+v", got)
	}

	users, err := s.ListUsers(ctx)
	if err != nil || len(users) != 1 || users[0] != "u1" {
		t.Fatalf("list users: %v %v", users, err)
	}
}

func TestLogsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, status := range []constants.RunStatus{constants.RunCompleted, constants.RunTimedOut} {
		_, err := s.AppendLog(ctx, entity.ProcessingLog{
			UserID:        "u1",
			Trigger:       constants.TriggerUnattended,
			Status:        status,
			EmailsScanned: i + 1,
			Errors:        []string{"m1/a1: download failed"},
			StartedAt:     base.Add(time.Duration(i) * time.Hour),
			FinishedAt:    base.Add(time.Duration(i)*time.Hour + time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	latest, err := s.LatestLog(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if latest.Status != constants.RunTimedOut || latest.EmailsScanned != 2 || latest.ID == "" {
		t.Fatalf("unexpected latest log %+v", latest)
	}
	if len(latest.Errors) != 1 || latest.Errors[0] != "m1/a1: download failed" {
		t.Fatalf("errors round trip: %v", latest.Errors)
	}

	if _, err := s.LatestLog(ctx, "nobody"); err == nil {
		t.Fatal("expected not found for a user without logs")
	}
}
