package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joseph-ayodele/invoices-tracker/internal/llm"
)

func serve(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		resp := map[string]any{"choices": []any{map[string]any{"message": map[string]any{"content": content}}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newTestClient(url string, strict bool) *Client {
	return NewClient(Config{APIKey: "test-key", BaseURL: url, Strict: strict}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestExtractInvoiceValidResponse(t *testing.T) {
	srv := serve(t, `{"vendor_name":"Acme S.L.","invoice_number":"F-2024-7","issue_date":"2024-03-01","due_date":null,"amount":121.5,"currency":"EUR","tax_amount":21.5}`)
	defer srv.Close()

	out, _, err := newTestClient(srv.URL, true).ExtractInvoice(context.Background(), llm.VisionRequest{Filename: "f.png", MimeType: "image/png", Image: []byte{1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.VendorName == nil || *out.VendorName != "Acme S.L." {
		t.Fatalf("unexpected vendor %+v", out.VendorName)
	}
	if out.Amount == nil || out.Amount.String() != "121.5" {
		t.Fatalf("unexpected amount %+v", out.Amount)
	}
	if out.DueDate != nil {
		t.Fatalf("expected nil due date")
	}
}

func TestExtractInvoiceLenientRepair(t *testing.T) {
	srv := serve(t, "```json\n{\"supplier_name\":\"Acme\",\"total\":\"€1.234,50\",\"currency\":\"eur\",\"notes\":\"x\"}\n```")
	defer srv.Close()

	out, _, err := newTestClient(srv.URL, false).ExtractInvoice(context.Background(), llm.VisionRequest{MimeType: "image/png", Image: []byte{1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Amount == nil || out.Amount.String() != "1234.5" {
		t.Fatalf("expected repaired amount 1234.5, got %+v", out.Amount)
	}
	if out.Currency == nil || *out.Currency != "EUR" {
		t.Fatalf("expected EUR, got %+v", out.Currency)
	}
}

func TestExtractInvoiceRejectsNonJSON(t *testing.T) {
	srv := serve(t, "I could not read this document.")
	defer srv.Close()

	if _, _, err := newTestClient(srv.URL, false).ExtractInvoice(context.Background(), llm.VisionRequest{MimeType: "image/png", Image: []byte{1}}); err == nil {
		t.Fatalf("expected an error for a non-JSON response")
	}
}

func TestExtractInvoiceStrictRejectsShapeDrift(t *testing.T) {
	srv := serve(t, `{"vendor_name":"Acme"}`)
	defer srv.Close()

	if _, _, err := newTestClient(srv.URL, true).ExtractInvoice(context.Background(), llm.VisionRequest{MimeType: "image/png", Image: []byte{1}}); err == nil {
		t.Fatalf("expected strict mode to reject missing keys")
	}
}

func TestExtractInvoiceReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, _, err := newTestClient(srv.URL, true).ExtractInvoice(context.Background(), llm.VisionRequest{Filename: "f.png", MimeType: "image/png", Image: []byte{1}})
	var apiErr *llm.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusTooManyRequests || !apiErr.Retryable() {
		t.Fatalf("expected a retryable 429 APIError, got %v", err)
	}
}
