package ocr

import (
	"regexp"
	"strings"
)

var (
	reDate    = regexp.MustCompile(`\b(20\d{2}[-/.]\d{1,2}[-/.]\d{1,2}|\d{1,2}[-/.]\d{1,2}[-/.](20)?\d{2})\b`)
	reMoney   = regexp.MustCompile(`(?i)\b(usd|eur|gbp|chf|mxn|brl|cad)\b|r\$|[$£€¥]`)
	reAmount  = regexp.MustCompile(`\b\d{1,3}([.,]\d{3})*[.,]\d{2}\b`)
	reInvoice = regexp.MustCompile(`(?i)\b(invoice|factura|fattura|facture|fatura|rechnung|total|iva|vat|tva)\b`)
)

// heuristicConfidence scores how much the text looks like a billing document.
// It only ranks OCR output; it is not the extraction confidence.
func heuristicConfidence(txt string) float32 {
	score := float32(0.2)
	for _, sig := range []struct {
		re *regexp.Regexp
		w  float32
	}{
		{reDate, 0.2},
		{reMoney, 0.15},
		{reAmount, 0.15},
		{reInvoice, 0.1},
	} {
		if sig.re.MatchString(txt) {
			score += sig.w
		}
	}
	if len(strings.TrimSpace(txt)) > 120 {
		score += 0.1
	}
	return min(score, 1)
}
