package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoices-tracker/constants"
	"github.com/joseph-ayodele/invoices-tracker/internal/common"
	"github.com/joseph-ayodele/invoices-tracker/internal/entity"
	"github.com/joseph-ayodele/invoices-tracker/internal/llm"
	"github.com/joseph-ayodele/invoices-tracker/internal/ocr"
)

// Renderer produces the image a vision model sees.
type Renderer interface {
	RenderForVision(ctx context.Context, filename string, data []byte) ocr.Rendered
}

// VisionStage asks a multimodal model for the fields.
type VisionStage struct {
	model    llm.VisionExtractor
	renderer Renderer
}

func NewVisionStage(model llm.VisionExtractor, renderer Renderer) *VisionStage {
	return &VisionStage{model: model, renderer: renderer}
}

func (s *VisionStage) Name() string { return constants.StageVision }

func (s *VisionStage) Extract(ctx context.Context, doc *Document) (entity.ExtractionResult, error) {
	img := s.renderer.RenderForVision(ctx, doc.Filename, doc.Data)
	if len(img.Data) == 0 {
		return entity.ExtractionResult{}, fmt.Errorf("nothing to render")
	}
	fields, _, err := s.model.ExtractInvoice(ctx, llm.VisionRequest{
		Filename: doc.Filename,
		MimeType: img.MimeType,
		Image:    img.Data,
	})
	if err != nil {
		return entity.ExtractionResult{}, err
	}
	res := fromInvoiceFields(fields)
	res.Method = constants.StageVision
	res.Confidence = constants.ConfidenceVision
	return res, nil
}

func fromInvoiceFields(f llm.InvoiceFields) entity.ExtractionResult {
	var res entity.ExtractionResult
	if f.VendorName != nil {
		res.VendorName = entity.StrPtr(strings.TrimSpace(*f.VendorName))
	}
	if f.InvoiceNumber != nil {
		res.InvoiceNumber = entity.StrPtr(strings.TrimSpace(*f.InvoiceNumber))
	}
	res.IssueDate = isoDate(f.IssueDate)
	res.DueDate = isoDate(f.DueDate)
	res.Amount = jsonDecimal(f.Amount)
	res.TaxAmount = jsonDecimal(f.TaxAmount)
	if f.Currency != nil {
		res.Currency = entity.StrPtr(strings.ToUpper(strings.TrimSpace(*f.Currency)))
	}
	return res
}

func isoDate(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, err := time.Parse("2006-01-02", *s)
	if err != nil {
		return nil
	}
	return &t
}

func jsonDecimal[T ~string](n *T) *decimal.Decimal {
	if n == nil {
		return nil
	}
	d, err := decimal.NewFromString(string(*n))
	if err != nil {
		return nil
	}
	return &d
}

// RegexStage runs the regex extractor over the document's plain text.
type RegexStage struct {
	x *RegexExtractor
}

func NewRegexStage(x *RegexExtractor) *RegexStage {
	return &RegexStage{x: x}
}

func (s *RegexStage) Name() string { return constants.StageRegex }

func (s *RegexStage) Extract(ctx context.Context, doc *Document) (entity.ExtractionResult, error) {
	text := doc.Text(ctx)
	if strings.TrimSpace(text) == "" {
		if err := doc.TextErr(); err != nil {
			return entity.ExtractionResult{}, fmt.Errorf("no text: %w", err)
		}
		return entity.ExtractionResult{}, common.ErrStageEmpty
	}
	res := s.x.Extract(text)
	if res.IsEmpty() {
		return res, common.ErrStageEmpty
	}
	return res, nil
}
