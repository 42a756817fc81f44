package extract

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoices-tracker/constants"
	"github.com/joseph-ayodele/invoices-tracker/internal/entity"
	"github.com/joseph-ayodele/invoices-tracker/internal/patterns"
)

var (
	reInvoiceNumber = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)
	reHasDigit      = regexp.MustCompile(`[0-9]`)
	reThreeLetters  = regexp.MustCompile(`^[A-Z]{3}$`)
)

// RegexExtractor applies a pattern bank to plain text.
type RegexExtractor struct {
	bank  *patterns.Bank
	isoRe *regexp.Regexp
}

func NewRegexExtractor(bank *patterns.Bank) *RegexExtractor {
	if bank == nil {
		bank = patterns.Default()
	}
	known := map[string]bool{}
	var codes []string
	for _, c := range bank.Currencies() {
		if !known[c.Code] {
			known[c.Code] = true
			codes = append(codes, regexp.QuoteMeta(c.Code))
		}
	}
	x := &RegexExtractor{bank: bank}
	if len(codes) > 0 {
		x.isoRe = regexp.MustCompile(`\b(` + strings.Join(codes, "|") + `)\b`)
	}
	return x
}

func (x *RegexExtractor) Bank() *patterns.Bank { return x.bank }

// Extract is best-effort and total: any field it cannot read stays nil.
func (x *RegexExtractor) Extract(text string) entity.ExtractionResult {
	res := entity.ExtractionResult{Method: constants.StageRegex}
	if strings.TrimSpace(text) == "" {
		return res
	}

	res.VendorName = x.vendor(text)
	res.InvoiceNumber = x.invoiceNumber(text)

	amount, span, ok := x.largestAmount(text)
	if ok {
		res.Amount = &amount
	}
	res.Currency = x.currency(text, span, ok)
	res.TaxAmount = x.firstAmount(text, patterns.FieldTaxAmount)
	res.IssueDate = x.date(text, patterns.FieldIssueDate)
	res.DueDate = x.date(text, patterns.FieldDueDate)

	res.Confidence = regexConfidence(res)
	return res
}

func regexConfidence(res entity.ExtractionResult) float64 {
	n := res.FieldCount()
	switch {
	case n == 0:
		return 0
	case res.Amount != nil && n >= 3:
		return constants.ConfidenceRegexRich
	default:
		return constants.ConfidenceRegex
	}
}

func (x *RegexExtractor) vendor(text string) *string {
	for _, r := range x.bank.Rules(patterns.FieldVendor) {
		for _, m := range r.Re.FindAllStringSubmatch(text, -1) {
			v := strings.Trim(strings.TrimSpace(m[1]), " ,;:-")
			if utf8.RuneCountInString(v) > 3 {
				return &v
			}
		}
	}
	return nil
}

func (x *RegexExtractor) invoiceNumber(text string) *string {
	for _, r := range x.bank.Rules(patterns.FieldInvoiceNumber) {
		for _, m := range r.Re.FindAllStringSubmatch(text, -1) {
			v := strings.Trim(m[1], "-_")
			if reInvoiceNumber.MatchString(v) && reHasDigit.MatchString(v) {
				return &v
			}
		}
	}
	return nil
}

// largestAmount collects every match of every amount rule and keeps the
// largest value; ties go to the earliest rule. span is the byte range of
// the winning capture.
func (x *RegexExtractor) largestAmount(text string) (decimal.Decimal, [2]int, bool) {
	var (
		best  decimal.Decimal
		span  [2]int
		found bool
	)
	for _, r := range x.bank.Rules(patterns.FieldAmount) {
		for _, idx := range r.Re.FindAllStringSubmatchIndex(text, -1) {
			if len(idx) < 4 || idx[2] < 0 {
				continue
			}
			v, ok := ParseAmount(text[idx[2]:idx[3]])
			if !ok || !v.IsPositive() {
				continue
			}
			if !found || v.GreaterThan(best) {
				best, span, found = v, [2]int{idx[2], idx[3]}, true
			}
		}
	}
	return best, span, found
}

func (x *RegexExtractor) firstAmount(text string, f patterns.Field) *decimal.Decimal {
	for _, r := range x.bank.Rules(f) {
		for _, m := range r.Re.FindAllStringSubmatch(text, -1) {
			if v, ok := ParseAmount(m[1]); ok {
				return &v
			}
		}
	}
	return nil
}

// currency tries labelled codes and bare ISO codes first, then currency
// symbols anywhere in the text. With an amount, the symbol nearest to it
// wins; without one, the first symbol does.
func (x *RegexExtractor) currency(text string, span [2]int, haveAmount bool) *string {
	for _, r := range x.bank.Rules(patterns.FieldCurrency) {
		for _, m := range r.Re.FindAllStringSubmatch(text, -1) {
			code := strings.ToUpper(m[1])
			if reThreeLetters.MatchString(code) {
				return &code
			}
		}
	}
	if x.isoRe != nil {
		if m := x.isoRe.FindStringSubmatch(text); m != nil {
			code := m[1]
			return &code
		}
	}

	bestDist := -1
	var best string
	for _, c := range x.bank.Currencies() {
		for _, sym := range c.Symbols {
			for off := 0; off < len(text); {
				i := strings.Index(text[off:], sym)
				if i < 0 {
					break
				}
				pos := off + i
				dist := pos
				if haveAmount {
					dist = symbolDistance(pos, pos+len(sym), span)
				}
				if bestDist < 0 || dist < bestDist {
					bestDist, best = dist, c.Code
				}
				off = pos + len(sym)
			}
		}
	}
	if best == "" {
		return nil
	}
	return &best
}

// symbolDistance is the byte gap between a symbol at [start,end) and the
// amount span; zero when they touch or overlap.
func symbolDistance(start, end int, span [2]int) int {
	switch {
	case end <= span[0]:
		return span[0] - end
	case start >= span[1]:
		return start - span[1]
	default:
		return 0
	}
}

func (x *RegexExtractor) date(text string, f patterns.Field) *time.Time {
	for _, r := range x.bank.Rules(f) {
		for _, m := range r.Re.FindAllStringSubmatch(text, -1) {
			if t, ok := ParseDate(m[1], r.DateOrder, x.bank); ok {
				return &t
			}
		}
	}
	return nil
}
