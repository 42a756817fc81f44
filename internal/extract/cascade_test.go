package extract

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoices-tracker/constants"
	"github.com/joseph-ayodele/invoices-tracker/internal/common"
	"github.com/joseph-ayodele/invoices-tracker/internal/entity"
	"github.com/joseph-ayodele/invoices-tracker/internal/llm"
	"github.com/joseph-ayodele/invoices-tracker/internal/ocr"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubStage struct {
	name   string
	res    entity.ExtractionResult
	err    error
	panics bool
	calls  int
}

func (s *stubStage) Name() string { return s.name }

func (s *stubStage) Extract(context.Context, *Document) (entity.ExtractionResult, error) {
	s.calls++
	if s.panics {
		panic("kaboom")
	}
	return s.res, s.err
}

func TestCascadeFallsThroughInOrder(t *testing.T) {
	vision := &stubStage{name: constants.StageVision, err: errors.New("quota exceeded")}
	ents := &stubStage{name: constants.StageEntities, err: common.ErrStageEmpty}
	regex := NewRegexStage(NewRegexExtractor(nil))

	c := NewCascade(quietLogger(), vision, ents, regex)
	out := c.Extract(context.Background(), NewTextDocument("a.pdf", "Total Due: €120"))

	if out.Result.Method != constants.StageRegex {
		t.Fatalf("method = %q", out.Result.Method)
	}
	if out.Result.Confidence != constants.ConfidenceRegex {
		t.Fatalf("confidence = %v", out.Result.Confidence)
	}
	if len(out.Failures) != 1 || out.Failures[0].Stage != constants.StageVision {
		t.Fatalf("failures = %v", out.Failures)
	}
	if vision.calls != 1 || ents.calls != 1 {
		t.Fatalf("each earlier stage should run once: %d %d", vision.calls, ents.calls)
	}
}

func TestCascadeStopsAtFirstSuccess(t *testing.T) {
	amt := decimal.NewFromInt(5)
	first := &stubStage{name: "first", res: entity.ExtractionResult{Amount: &amt, Confidence: 0.9}}
	second := &stubStage{name: "second"}

	out := NewCascade(quietLogger(), first, second).Extract(context.Background(), NewTextDocument("x", ""))
	if out.Result.Method != "first" {
		t.Fatalf("method = %q", out.Result.Method)
	}
	if second.calls != 0 {
		t.Fatal("later stage must not run after a success")
	}
}

func TestCascadeRecoversPanicsAndExhausts(t *testing.T) {
	boom := &stubStage{name: "boom", panics: true}
	empty := &stubStage{name: "empty"} // no error, no fields
	out := NewCascade(quietLogger(), boom, empty).Extract(context.Background(), NewTextDocument("x", ""))

	if out.Result.Method != constants.StageNone || out.Result.Confidence != 0 {
		t.Fatalf("expected exhausted cascade, got %+v", out.Result)
	}
	if !out.Result.IsEmpty() {
		t.Fatalf("exhausted result should carry no fields")
	}
	if len(out.Failures) != 1 || out.Failures[0].Stage != "boom" {
		t.Fatalf("failures = %v", out.Failures)
	}
}

type stubModel struct {
	fields llm.InvoiceFields
	err    error
	req    llm.VisionRequest
}

func (m *stubModel) ExtractInvoice(_ context.Context, req llm.VisionRequest) (llm.InvoiceFields, []byte, error) {
	m.req = req
	return m.fields, nil, m.err
}

type stubRenderer struct{}

func (stubRenderer) RenderForVision(context.Context, string, []byte) ocr.Rendered {
	return ocr.Rendered{Data: []byte("png"), MimeType: "image/png"}
}

func strp(s string) *string { return &s }

func TestVisionStageMapsFields(t *testing.T) {
	amount := "99.90"
	n := jsonNumber(amount)
	m := &stubModel{fields: llm.InvoiceFields{
		VendorName:    strp(" Acme "),
		InvoiceNumber: strp("A-1"),
		IssueDate:     strp("2024-05-01"),
		DueDate:       strp("not a date"),
		Amount:        &n,
		Currency:      strp("eur"),
	}}
	res, err := NewVisionStage(m, stubRenderer{}).Extract(context.Background(), NewDocument("a.pdf", "", []byte("%PDF"), nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *res.VendorName != "Acme" || *res.Currency != "EUR" {
		t.Fatalf("unexpected fields %+v", res)
	}
	if res.DueDate != nil {
		t.Fatalf("unparseable due date should be nil")
	}
	if !res.Amount.Equal(decimal.RequireFromString(amount)) {
		t.Fatalf("amount = %s", res.Amount)
	}
	if res.Confidence != constants.ConfidenceVision {
		t.Fatalf("confidence = %v", res.Confidence)
	}
	if m.req.MimeType != "image/png" {
		t.Fatalf("model should see the rendered image, got %q", m.req.MimeType)
	}
}

type stubParser struct {
	doc ParsedDocument
	err error
}

func (p stubParser) Parse(context.Context, string, string, []byte) (ParsedDocument, error) {
	return p.doc, p.err
}

func TestEntityStageUsesSynonymsAndFillsGaps(t *testing.T) {
	p := stubParser{doc: ParsedDocument{
		Text: "Invoice Number: INV-77\nTotal: €10.00\n",
		Entities: []Entity{
			{Type: "supplier_name", Mention: "Acme  GmbH"},
			{Type: "vendor_name", Mention: "ignored"},
			{Type: "total_amount", Mention: "€ 10,00", Normalized: "10", Currency: "EUR"},
			{Type: "invoice_date", Mention: "1 May 2024", Normalized: "2024-05-01"},
		},
	}}
	res, err := NewEntityStage(p, nil).Extract(context.Background(), NewDocument("a.pdf", "", []byte("x"), nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *res.VendorName != "Acme GmbH" {
		t.Fatalf("vendor = %q", *res.VendorName)
	}
	if *res.InvoiceNumber != "INV-77" {
		t.Fatalf("number should be filled from text, got %v", res.InvoiceNumber)
	}
	if !res.Amount.Equal(decimal.NewFromInt(10)) || *res.Currency != "EUR" {
		t.Fatalf("amount/currency = %s %v", res.Amount, res.Currency)
	}
	if res.Confidence != constants.ConfidenceEntities {
		t.Fatalf("confidence = %v", res.Confidence)
	}
}

func TestEntityStageFirstEntityPerFieldWins(t *testing.T) {
	p := stubParser{doc: ParsedDocument{Entities: []Entity{
		{Type: "total", Mention: "50.00", Normalized: "50"},
		{Type: "total_amount", Mention: "100.00", Normalized: "100"},
		{Type: "invoice_no", Mention: "A-1"},
		{Type: "invoice_id", Mention: "B-2"},
	}}}
	res, err := NewEntityStage(p, nil).Extract(context.Background(), NewDocument("a.pdf", "", []byte("x"), nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Amount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected the first amount entity (50), got %s", res.Amount)
	}
	if *res.InvoiceNumber != "A-1" {
		t.Fatalf("expected the first number entity, got %q", *res.InvoiceNumber)
	}
}

func TestEntityStageTextOnly(t *testing.T) {
	p := stubParser{doc: ParsedDocument{Text: "Total Due: €120"}}
	res, err := NewEntityStage(p, nil).Extract(context.Background(), NewDocument("a.pdf", "", []byte("x"), nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Confidence != constants.ConfidenceEntitiesText {
		t.Fatalf("confidence = %v", res.Confidence)
	}
}

func TestEntityStageNothingFound(t *testing.T) {
	_, err := NewEntityStage(stubParser{}, nil).Extract(context.Background(), NewDocument("a.pdf", "", []byte("x"), nil))
	if !errors.Is(err, common.ErrStageEmpty) {
		t.Fatalf("expected ErrStageEmpty, got %v", err)
	}
}

type errSource struct{}

func (errSource) ExtractText(context.Context, string, []byte) (string, error) {
	return "", errors.New("ocr unavailable")
}

func TestRegexStageReportsTextFailure(t *testing.T) {
	doc := NewDocument("a.png", "", []byte("x"), errSource{})
	_, err := NewRegexStage(NewRegexExtractor(nil)).Extract(context.Background(), doc)
	if err == nil || errors.Is(err, common.ErrStageEmpty) {
		t.Fatalf("expected a text failure, got %v", err)
	}
}

func jsonNumber(s string) json.Number { return json.Number(s) }
