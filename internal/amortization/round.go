package amortization

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Round2 rounds to cents, half away from zero, on the shortest decimal
// representation of v (so 1.005 rounds to 1.01).
// NaN and infinities are returned unchanged.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	r := decimal.NewFromFloat(v).Round(2).InexactFloat64()
	if r == 0 {
		return 0 // drop negative zero
	}
	return r
}

// AddMonths moves t forward by n calendar months. When the anchor day does not
// exist in the target month the last day of that month is used, so an anchor
// on the 31st yields Feb 28/29, Mar 31, Apr 30 and so on. The result is a
// date at midnight in t's location.
func AddMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()

	// day 0 of the following month is the last day of the target month
	target := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	last := time.Date(target.Year(), target.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
	if day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, 0, 0, 0, 0, t.Location())
}
