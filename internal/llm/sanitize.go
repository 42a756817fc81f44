package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

var (
	reFence    = regexp.MustCompile("(?s)^\\s*```(?:json)?\\s*(.*?)\\s*```\\s*$")
	reISODate  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	reCurrency = regexp.MustCompile(`^[A-Za-z]{3}$`)
	reNonMoney = regexp.MustCompile(`[^0-9.,\-]`)
)

// synonyms are applied in order; the first one to fill a key wins.
var synonyms = [][2]string{
	{"vendor", "vendor_name"},
	{"supplier_name", "vendor_name"},
	{"merchant_name", "vendor_name"},
	{"invoice_id", "invoice_number"},
	{"invoice_no", "invoice_number"},
	{"invoice_date", "issue_date"},
	{"date", "issue_date"},
	{"total_amount", "amount"},
	{"total", "amount"},
	{"currency_code", "currency"},
	{"tax", "tax_amount"},
	{"vat", "tax_amount"},
	{"payment_due_date", "due_date"},
}

// StripCodeFence removes a ```json fence some models wrap output in.
func StripCodeFence(raw []byte) []byte {
	if m := reFence.FindSubmatch(raw); m != nil {
		return m[1]
	}
	return bytes.TrimSpace(raw)
}

// NormalizeAndSanitizeJSON coerces a near-miss model response onto the invoice shape:
//   - renames known synonyms (total -> amount)
//   - turns "" / "null" into null and adds missing keys as null
//   - coerces money strings like "€1.234,50" to numbers
//   - drops unknown keys and values that cannot be repaired
func NormalizeAndSanitizeJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var m map[string]any
	if err := json.Unmarshal(StripCodeFence(raw), &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var changed []string
	for _, syn := range synonyms {
		from, to := syn[0], syn[1]
		if v, ok := m[from]; ok {
			if cur, exists := m[to]; !exists || cur == nil {
				m[to] = v
			}
			delete(m, from)
			changed = append(changed, from+"->"+to)
		}
	}

	allowed := map[string]struct{}{}
	for _, k := range InvoiceFieldKeys {
		allowed[k] = struct{}{}
	}
	for k := range m {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			changed = append(changed, k+"(unknown)")
		}
	}

	for _, k := range InvoiceFieldKeys {
		v, ok := m[k]
		if !ok {
			m[k] = nil
			continue
		}
		if s, isStr := v.(string); isStr {
			s = strings.TrimSpace(s)
			if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "n/a") {
				m[k] = nil
				changed = append(changed, k+"(empty)")
				continue
			}
			m[k] = s
		}
	}

	for _, k := range []string{"amount", "tax_amount"} {
		switch t := m[k].(type) {
		case nil, float64:
		case string:
			if f, ok := coerceMoney(t); ok {
				m[k] = f
			} else {
				m[k] = nil
			}
			changed = append(changed, k+"(coerced)")
		default:
			m[k] = nil
			changed = append(changed, k+"(type)")
		}
	}
	for _, k := range []string{"issue_date", "due_date"} {
		if s, ok := m[k].(string); ok {
			if d := reISODate.FindString(s); d != "" {
				m[k] = d
			} else {
				m[k] = nil
				changed = append(changed, k+"(format)")
			}
		}
	}
	if s, ok := m["currency"].(string); ok {
		if reCurrency.MatchString(s) {
			m["currency"] = strings.ToUpper(s)
		} else {
			m["currency"] = nil
			changed = append(changed, "currency(format)")
		}
	}
	for _, k := range []string{"vendor_name", "invoice_number"} {
		if _, ok := m[k].(string); !ok && m[k] != nil {
			m[k] = nil
			changed = append(changed, k+"(type)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, changed, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(changed) > 0 {
		logger.Warn("llm.extract.normalize_sanitize", "changed", changed)
	}
	return out, changed, nil
}

// coerceMoney reads model-formatted money. Whichever of ',' and '.' comes
// last is taken as the decimal separator.
func coerceMoney(s string) (float64, bool) {
	s = reNonMoney.ReplaceAllString(s, "")
	if s == "" {
		return 0, false
	}
	lastComma, lastDot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case lastComma > lastDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	default:
		s = strings.ReplaceAll(s, ",", "")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return f, true
}
