package ocr

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

type fakeRunner struct {
	out   map[string]string
	fail  map[string]bool
	calls []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, name)
	if f.fail[name] {
		return nil, []byte("boom"), errors.New(name + " failed")
	}
	return []byte(f.out[name]), nil, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExtractImageUsesTesseract(t *testing.T) {
	r := &fakeRunner{out: map[string]string{"tesseract": "Invoice\t No:  42\r\n\n\n\nTotal: 10.00"}}
	e := NewExtractor(Config{}, quietLogger()).WithRunner(r)

	res, err := e.ExtractBytes(context.Background(), "scan.png", []byte("not really a png"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Method != "image-ocr" {
		t.Fatalf("expected image-ocr, got %q", res.Method)
	}
	if res.Text != "Invoice No: 42\n\nTotal: 10.00" {
		t.Fatalf("unexpected normalized text %q", res.Text)
	}
}

func TestExtractPDFFallsBackToPdftotext(t *testing.T) {
	long := strings.Repeat("Invoice Number: INV-1 Total: 99.00 ", 3)
	r := &fakeRunner{out: map[string]string{"pdftotext": long + "\f"}}
	e := NewExtractor(Config{}, quietLogger()).WithRunner(r)

	// garbage bytes: the in-process text layer fails and pdftotext takes over
	res, err := e.ExtractBytes(context.Background(), "inv.pdf", []byte("%PDF-garbage"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Method != "pdf-text" {
		t.Fatalf("expected pdf-text, got %q (warnings %v)", res.Method, res.Warnings)
	}
	if res.Pages != 1 {
		t.Fatalf("expected 1 page, got %d", res.Pages)
	}
	for _, c := range r.calls {
		if c == "pdftoppm" || c == "tesseract" {
			t.Fatalf("OCR should not run when pdftotext yields enough text, calls=%v", r.calls)
		}
	}
}

func TestExtractPDFAllMethodsFail(t *testing.T) {
	r := &fakeRunner{fail: map[string]bool{"pdftotext": true, "pdftoppm": true}}
	e := NewExtractor(Config{}, quietLogger()).WithRunner(r)

	if _, err := e.ExtractText(context.Background(), "inv.pdf", []byte("junk")); err == nil {
		t.Fatalf("expected an error when every method fails")
	}
}

func TestExtractUnsupported(t *testing.T) {
	e := NewExtractor(Config{}, quietLogger()).WithRunner(&fakeRunner{})
	if _, err := e.ExtractBytes(context.Background(), "notes.docx", []byte("x")); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}

func TestRenderForVisionPlaceholder(t *testing.T) {
	r := &fakeRunner{fail: map[string]bool{"pdftoppm": true}}
	e := NewExtractor(Config{}, quietLogger()).WithRunner(r)

	out := e.RenderForVision(context.Background(), "inv.pdf", []byte("junk"))
	if !out.Placeholder {
		t.Fatalf("expected placeholder when rendering fails")
	}
	if out.MimeType != "image/png" || len(out.Data) == 0 {
		t.Fatalf("expected a png placeholder, got %q (%d bytes)", out.MimeType, len(out.Data))
	}
}

func TestStreamText(t *testing.T) {
	stream := []byte("BT\n/F1 12 Tf\n72 712 Td\n(Invoice Number: INV\\055001) Tj\n0 -14 Td\n[(Total: ) -20 (\\(EUR\\) 12.50)] TJ\nET\n")
	got := Normalize(streamText(stream))
	want := "Invoice Number: INV-001\nTotal: (EUR) 12.50"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestNormalizeKeepsDigits(t *testing.T) {
	if got := Normalize("Date: 05/01/2024"); got != "Date: 05/01/2024" {
		t.Fatalf("digits must survive normalization, got %q", got)
	}
}

type tsvRunner struct{ text, tsv string }

func (r tsvRunner) Run(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
	if args[len(args)-1] == "tsv" {
		return []byte(r.tsv), nil, nil
	}
	return []byte(r.text), nil, nil
}

func TestExtractImageBlendsWordConfidence(t *testing.T) {
	tsv := "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
		"1\t1\t0\t0\t0\t0\t0\t0\t100\t100\t-1\t\n" +
		"5\t1\t1\t1\t1\t1\t10\t10\t40\t12\t90\tInvoice\n" +
		"5\t1\t1\t1\t1\t2\t60\t10\t40\t12\t70\t42\n"
	e := NewExtractor(Config{EnableTSVConfidence: true, PSM: 6}, quietLogger()).
		WithRunner(tsvRunner{text: "Invoice 42", tsv: tsv})

	res, err := e.ExtractBytes(context.Background(), "scan.jpg", []byte("x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := min(0.7*0.8+0.3*heuristicConfidence("Invoice 42"), 1)
	if diff := res.Confidence - want; diff > 0.001 || diff < -0.001 {
		t.Fatalf("expected confidence %.3f, got %.3f", want, res.Confidence)
	}
	if args := e.tesseractArgs("a.png"); strings.Join(args, " ") != "a.png stdout -l eng --psm 6" {
		t.Fatalf("unexpected tesseract args %v", args)
	}
}
