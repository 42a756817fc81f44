package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoices-tracker/internal/patterns"
)

var (
	reAmountChars  = regexp.MustCompile(`[^0-9.,]`)
	reAmountPrefix = regexp.MustCompile(`^[0-9]+(?:\.[0-9]+)?`)

	reISO      = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	reNumeric  = regexp.MustCompile(`^(\d{1,2})[./\-](\d{1,2})[./\-](\d{2,4})$`)
	reDayMonth = regexp.MustCompile(`^(\d{1,2})(?:\s+de)?\s+(\p{L}+)\.?(?:\s+de)?,?\s+(\d{4})$`)
	reMonthDay = regexp.MustCompile(`^(\p{L}+)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})$`)
)

// ParseAmount keeps digits and separators, reads every ',' as a decimal
// point and takes the leading number. "1,234.56" therefore reads as 1.234:
// thousands separators are not told apart from decimal commas.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = reAmountChars.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, ",", ".")
	num := reAmountPrefix.FindString(s)
	if num == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// ParseDate reads the date shapes the pattern bank captures. order settles
// numeric dates where both leading parts could be a month.
func ParseDate(s string, order patterns.DateOrder, bank *patterns.Bank) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if m := reISO.FindStringSubmatch(s); m != nil {
		return mkDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}
	if m := reNumeric.FindStringSubmatch(s); m != nil {
		a, b, y := atoi(m[1]), atoi(m[2]), atoi(m[3])
		if len(m[3]) == 2 {
			y += 2000
		} else if len(m[3]) == 3 {
			return time.Time{}, false
		}
		switch {
		case a > 12:
			return mkDate(y, b, a)
		case b > 12:
			return mkDate(y, a, b)
		case order == patterns.MonthFirst:
			return mkDate(y, a, b)
		default:
			return mkDate(y, b, a)
		}
	}
	if bank == nil {
		return time.Time{}, false
	}
	if m := reDayMonth.FindStringSubmatch(s); m != nil {
		if mon, ok := bank.Month(m[2]); ok {
			return mkDate(atoi(m[3]), int(mon), atoi(m[1]))
		}
	}
	if m := reMonthDay.FindStringSubmatch(s); m != nil {
		if mon, ok := bank.Month(m[1]); ok {
			return mkDate(atoi(m[3]), int(mon), atoi(m[2]))
		}
	}
	return time.Time{}, false
}

// mkDate rejects impossible calendar dates instead of normalizing them.
func mkDate(y, m, d int) (time.Time, bool) {
	if y < 1990 || y > 2100 || m < 1 || m > 12 || d < 1 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != m {
		return time.Time{}, false
	}
	return t, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
