package ccb

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FormatBRL renders v as Brazilian currency, e.g. "R$ 10.000,00" or "-R$ 1,50".
func FormatBRL(v float64) string {
	d := decimal.NewFromFloat(v).Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}

	fixed := d.StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return sign + "R$ " + b.String() + "," + frac
}

// FormatDate renders t as dd/mm/yyyy in t's own location.
func FormatDate(t time.Time) string {
	return t.Format("02/01/2006")
}

// FormatDateTime renders t as "dd/mm/yyyy às hh:mm:ss".
func FormatDateTime(t time.Time) string {
	return t.Format("02/01/2006") + " às " + t.Format("15:04:05")
}

// FormatPercent renders v with two decimals and a percent sign, e.g. "12.50%".
func FormatPercent(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2) + "%"
}
