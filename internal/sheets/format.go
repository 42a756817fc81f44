package sheets

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func date(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func money(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
