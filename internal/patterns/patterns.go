// Package patterns holds the declarative field-pattern library used by the
// regex extractor and the invoice classifier. Rules are data: a new language
// or field is a new table row (or a YAML file), not new control flow.
package patterns

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Field names an ExtractionResult field a rule targets.
type Field string

const (
	FieldVendor        Field = "vendor"
	FieldInvoiceNumber Field = "invoice_number"
	FieldAmount        Field = "amount"
	FieldTaxAmount     Field = "tax_amount"
	FieldCurrency      Field = "currency"
	FieldIssueDate     Field = "issue_date"
	FieldDueDate       Field = "due_date"
)

var knownFields = map[Field]struct{}{
	FieldVendor: {}, FieldInvoiceNumber: {}, FieldAmount: {}, FieldTaxAmount: {},
	FieldCurrency: {}, FieldIssueDate: {}, FieldDueDate: {},
}

// DateOrder resolves ambiguous numeric dates like 03/04/2024.
type DateOrder string

const (
	DayFirst   DateOrder = "dmy"
	MonthFirst DateOrder = "mdy"
)

// RuleSpec is the uncompiled, serializable form of a rule.
type RuleSpec struct {
	Field     Field     `yaml:"field"`
	Lang      string    `yaml:"lang"`
	Pattern   string    `yaml:"pattern"`
	DateOrder DateOrder `yaml:"date_order,omitempty"`
	// Fallback rules are only consulted after every regular rule for the field.
	Fallback bool `yaml:"fallback,omitempty"`
}

// Rule is a compiled RuleSpec. The value is always capture group 1.
type Rule struct {
	RuleSpec
	Re *regexp.Regexp
}

// Currency maps an ISO code to the symbols that denote it in text.
type Currency struct {
	Code    string   `yaml:"code"`
	Symbols []string `yaml:"symbols"`
}

// Bank is an immutable, compiled set of rules plus the keyword tables.
type Bank struct {
	rules           map[Field][]Rule
	invoiceKeywords []string
	indicators      []string
	currencies      []Currency
	months          map[string]time.Month
}

// Compile validates and compiles a single spec.
func Compile(spec RuleSpec) (Rule, error) {
	if _, ok := knownFields[spec.Field]; !ok {
		return Rule{}, fmt.Errorf("unknown field %q", spec.Field)
	}
	if strings.TrimSpace(spec.Pattern) == "" {
		return Rule{}, fmt.Errorf("%s/%s: empty pattern", spec.Field, spec.Lang)
	}
	re, err := regexp.Compile(spec.Pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("%s/%s: %w", spec.Field, spec.Lang, err)
	}
	if re.NumSubexp() < 1 {
		return Rule{}, fmt.Errorf("%s/%s: pattern needs a capture group", spec.Field, spec.Lang)
	}
	if spec.Lang == "" {
		spec.Lang = "any"
	}
	if spec.DateOrder == "" {
		spec.DateOrder = DayFirst
		if spec.Lang == "en" {
			spec.DateOrder = MonthFirst
		}
	}
	return Rule{RuleSpec: spec, Re: re}, nil
}

// Rules returns the ordered rules for a field: regular rules in declaration
// order, then fallbacks.
func (b *Bank) Rules(f Field) []Rule {
	return b.rules[f]
}

func (b *Bank) InvoiceKeywords() []string { return b.invoiceKeywords }
func (b *Bank) Indicators() []string      { return b.indicators }
func (b *Bank) Currencies() []Currency    { return b.currencies }

// Month resolves a month name or abbreviation in any known language.
func (b *Bank) Month(name string) (time.Month, bool) {
	key := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")
	m, ok := b.months[key]
	return m, ok
}

// Languages lists the language tags present in the bank.
func (b *Bank) Languages() []string {
	seen := map[string]bool{}
	var out []string
	for _, f := range []Field{FieldVendor, FieldInvoiceNumber, FieldAmount, FieldTaxAmount, FieldCurrency, FieldIssueDate, FieldDueDate} {
		for _, r := range b.rules[f] {
			if !seen[r.Lang] {
				seen[r.Lang] = true
				out = append(out, r.Lang)
			}
		}
	}
	return out
}

// Extension is additive data merged into a bank.
type Extension struct {
	Rules           []RuleSpec            `yaml:"rules"`
	InvoiceKeywords []string              `yaml:"invoice_keywords"`
	Indicators      []string              `yaml:"indicators"`
	Currencies      []Currency            `yaml:"currencies"`
	Months          map[string]time.Month `yaml:"months"`
}

// Extend returns a new bank with ext merged in. Extension rules are placed
// after the existing regular rules of their field and before its fallbacks.
func (b *Bank) Extend(ext Extension) (*Bank, error) {
	next := &Bank{
		rules:           make(map[Field][]Rule, len(b.rules)),
		invoiceKeywords: appendLower(append([]string(nil), b.invoiceKeywords...), ext.InvoiceKeywords),
		indicators:      appendLower(append([]string(nil), b.indicators...), ext.Indicators),
		currencies:      append(append([]Currency(nil), b.currencies...), ext.Currencies...),
		months:          make(map[string]time.Month, len(b.months)+len(ext.Months)),
	}
	for k, v := range b.months {
		next.months[k] = v
	}
	for k, v := range ext.Months {
		if v < time.January || v > time.December {
			return nil, fmt.Errorf("month %q: %d out of range", k, v)
		}
		next.months[strings.ToLower(k)] = v
	}

	added := map[Field][]Rule{}
	for _, spec := range ext.Rules {
		r, err := Compile(spec)
		if err != nil {
			return nil, err
		}
		added[r.Field] = append(added[r.Field], r)
	}
	for f := range knownFields {
		var regular, fallback []Rule
		for _, r := range append(append([]Rule(nil), b.rules[f]...), added[f]...) {
			if r.Fallback {
				fallback = append(fallback, r)
			} else {
				regular = append(regular, r)
			}
		}
		if rules := append(regular, fallback...); len(rules) > 0 {
			next.rules[f] = rules
		}
	}
	return next, nil
}

func appendLower(dst, src []string) []string {
	for _, s := range src {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			dst = append(dst, s)
		}
	}
	return dst
}
