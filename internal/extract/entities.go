package extract

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoices-tracker/constants"
	"github.com/joseph-ayodele/invoices-tracker/internal/common"
	"github.com/joseph-ayodele/invoices-tracker/internal/entity"
	"github.com/joseph-ayodele/invoices-tracker/internal/patterns"
)

// Entity is one typed span returned by a document-parsing service.
type Entity struct {
	Type       string
	Mention    string
	Normalized string // service-normalized value, e.g. "2024-03-01" or "120.5"
	Currency   string
	Confidence float32
}

// ParsedDocument is the parsing service's view of a document.
type ParsedDocument struct {
	Text     string
	Entities []Entity
}

// EntityParser is the document-parsing service the entity stage depends on.
type EntityParser interface {
	Parse(ctx context.Context, filename, mimeType string, data []byte) (ParsedDocument, error)
}

// entitySynonyms maps each result field to the entity types that denote it.
var entitySynonyms = map[patterns.Field][]string{
	patterns.FieldVendor:        {"supplier_name", "vendor_name", "supplier", "seller_name", "company_name", "remit_to_name"},
	patterns.FieldInvoiceNumber: {"invoice_id", "invoice_number", "invoice_no"},
	patterns.FieldIssueDate:     {"invoice_date", "issue_date", "receipt_date", "date"},
	patterns.FieldDueDate:       {"due_date", "payment_due_date"},
	patterns.FieldAmount:        {"total_amount", "invoice_total", "amount_due", "grand_total", "total"},
	patterns.FieldCurrency:      {"currency", "currency_code"},
	patterns.FieldTaxAmount:     {"total_tax_amount", "tax_amount", "vat_amount"},
}

var entityFields = func() map[string]patterns.Field {
	out := map[string]patterns.Field{}
	for f, types := range entitySynonyms {
		for _, t := range types {
			out[t] = f
		}
	}
	return out
}()

// EntityStage maps parser entities onto result fields and fills the gaps by
// running the regex extractor over the parser's text.
type EntityStage struct {
	parser EntityParser
	regex  *RegexExtractor
}

func NewEntityStage(parser EntityParser, regex *RegexExtractor) *EntityStage {
	if regex == nil {
		regex = NewRegexExtractor(nil)
	}
	return &EntityStage{parser: parser, regex: regex}
}

func (s *EntityStage) Name() string { return constants.StageEntities }

func (s *EntityStage) Extract(ctx context.Context, doc *Document) (entity.ExtractionResult, error) {
	parsed, err := s.parser.Parse(ctx, doc.Filename, doc.MimeType, doc.Data)
	if err != nil {
		return entity.ExtractionResult{}, err
	}
	res := s.fromEntities(parsed.Entities)
	fromEntities := !res.IsEmpty()

	if strings.TrimSpace(parsed.Text) != "" {
		fill(&res, s.regex.Extract(parsed.Text))
	}
	if res.IsEmpty() {
		return res, common.ErrStageEmpty
	}
	res.Method = constants.StageEntities
	res.Confidence = constants.ConfidenceEntities
	if !fromEntities {
		res.Confidence = constants.ConfidenceEntitiesText
	}
	return res, nil
}

// fromEntities walks entities in document order. The first entity mapped
// to a field claims it; later ones for the same field are ignored.
func (s *EntityStage) fromEntities(ents []Entity) entity.ExtractionResult {
	var res entity.ExtractionResult
	claimed := map[patterns.Field]bool{}
	for _, e := range ents {
		f, ok := entityFields[strings.ToLower(strings.TrimSpace(e.Type))]
		if !ok || claimed[f] {
			continue
		}
		claimed[f] = true
		switch f {
		case patterns.FieldVendor:
			res.VendorName = entity.StrPtr(cleanMention(e.Mention))
		case patterns.FieldInvoiceNumber:
			res.InvoiceNumber = entity.StrPtr(cleanMention(e.Mention))
		case patterns.FieldIssueDate:
			res.IssueDate = s.entityDate(e)
		case patterns.FieldDueDate:
			res.DueDate = s.entityDate(e)
		case patterns.FieldAmount:
			res.Amount = entityMoney(e)
			// A currency entity, when present, still takes precedence.
			if e.Currency != "" && !claimed[patterns.FieldCurrency] {
				res.Currency = entity.StrPtr(strings.ToUpper(e.Currency))
			}
		case patterns.FieldCurrency:
			code := strings.ToUpper(cleanMention(firstNonEmpty(e.Normalized, e.Mention)))
			if len(code) == 3 {
				res.Currency = &code
			}
		case patterns.FieldTaxAmount:
			res.TaxAmount = entityMoney(e)
		}
	}
	return res
}

func (s *EntityStage) entityDate(e Entity) *time.Time {
	if e.Normalized != "" {
		if t, err := time.Parse("2006-01-02", e.Normalized); err == nil {
			return &t
		}
	}
	if t, ok := ParseDate(cleanMention(e.Mention), patterns.MonthFirst, s.regex.Bank()); ok {
		return &t
	}
	return nil
}

func entityMoney(e Entity) *decimal.Decimal {
	if e.Normalized != "" {
		if d, err := decimal.NewFromString(e.Normalized); err == nil {
			return &d
		}
	}
	if d, ok := ParseAmount(e.Mention); ok {
		return &d
	}
	return nil
}

// fill copies fields from src that dst lacks.
func fill(dst *entity.ExtractionResult, src entity.ExtractionResult) {
	if dst.VendorName == nil {
		dst.VendorName = src.VendorName
	}
	if dst.InvoiceNumber == nil {
		dst.InvoiceNumber = src.InvoiceNumber
	}
	if dst.IssueDate == nil {
		dst.IssueDate = src.IssueDate
	}
	if dst.DueDate == nil {
		dst.DueDate = src.DueDate
	}
	if dst.Amount == nil {
		dst.Amount = src.Amount
	}
	if dst.Currency == nil {
		dst.Currency = src.Currency
	}
	if dst.TaxAmount == nil {
		dst.TaxAmount = src.TaxAmount
	}
}

func cleanMention(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
