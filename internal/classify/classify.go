// Package classify decides whether an attachment looks like an invoice
// before any extraction budget is spent on it.
package classify

import (
	"context"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joseph-ayodele/invoices-tracker/internal/common"
	"github.com/joseph-ayodele/invoices-tracker/internal/extract"
	"github.com/joseph-ayodele/invoices-tracker/internal/patterns"
)

// Score contributions. The sum is the verdict's confidence.
const (
	WeightFilename  = 0.3
	WeightKeyword   = 0.4
	WeightIndicator = 0.3
	Threshold       = 0.5
)

// Verdict is the classifier's answer plus which signals fired.
type Verdict struct {
	IsInvoice  bool
	Confidence float64
	Signals    []string
}

// Classifier scores a document against the bank's keyword tables.
type Classifier struct {
	keywords   []string
	indicators *regexp.Regexp
	logger     *slog.Logger
}

func New(bank *patterns.Bank, logger *slog.Logger) *Classifier {
	if bank == nil {
		bank = patterns.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Classifier{keywords: bank.InvoiceKeywords(), logger: logger}
	if ind := bank.Indicators(); len(ind) > 0 {
		quoted := make([]string, len(ind))
		for i, s := range ind {
			quoted[i] = regexp.QuoteMeta(s)
		}
		c.indicators = regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
	}
	return c
}

// Classify is total: text extraction failures count as no evidence.
func (c *Classifier) Classify(ctx context.Context, doc *extract.Document) Verdict {
	var v Verdict
	name := strings.ToLower(filepath.Base(doc.Filename))
	if containsAny(name, c.keywords) {
		v.Confidence += WeightFilename
		v.Signals = append(v.Signals, "filename")
	}

	text := strings.ToLower(doc.Text(ctx))
	if err := doc.TextErr(); err != nil {
		common.LoggerFrom(ctx, c.logger).Debug("classify.text.unavailable", "filename", doc.Filename, "err", err)
	}
	if text != "" {
		if containsAny(text, c.keywords) {
			v.Confidence += WeightKeyword
			v.Signals = append(v.Signals, "keyword")
		}
		if c.indicators != nil && c.indicators.MatchString(text) {
			v.Confidence += WeightIndicator
			v.Signals = append(v.Signals, "indicator")
		}
	}
	// two decimals, so 0.3+0.3 compares equal to 0.6
	v.Confidence = float64(int(v.Confidence*100+0.5)) / 100
	v.IsInvoice = v.Confidence >= Threshold
	return v
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(s, w) {
			return true
		}
	}
	return false
}
