package amortization_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/boddenberg/ccb-backoffice-go/internal/amortization"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var anchor = time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

func TestCalculate_KnownValues(t *testing.T) {
	tests := []struct {
		name          string
		principal     float64
		periods       int
		rate          float64
		installment   float64
		totalAmount   float64
		totalInterest float64
	}{
		{"12 months at 12% a year", 10000, 12, 12, 888.49, 10661.85, 661.85},
		{"6 months at 24% a year", 5000, 6, 24, 892.63, 5355.77, 355.77},
		{"single installment", 1000, 1, 12, 1010.00, 1010.00, 10.00},
		{"zero rate", 1200, 12, 0, 100.00, 1200.00, 0.00},
		{"30 years at 9.6% a year", 100000, 360, 9.6, 848.16, 305337.59, 205337.59},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc := amortization.Calculate(tt.principal, tt.periods, tt.rate)

			assert.Equal(t, tt.principal, calc.Principal)
			assert.Equal(t, tt.periods, calc.Periods)
			assert.Equal(t, tt.rate, calc.AnnualRatePercent)
			assert.InDelta(t, tt.installment, calc.InstallmentValue, 0.01)
			assert.InDelta(t, tt.totalAmount, calc.TotalAmount, 0.01)
			assert.InDelta(t, tt.totalInterest, calc.TotalInterest, 0.01)
		})
	}
}

func TestCalculate_ZeroRateIsExact(t *testing.T) {
	calc := amortization.Calculate(1200, 12, 0)

	assert.Equal(t, 100.00, calc.InstallmentValue)
	assert.Equal(t, 0.00, calc.TotalInterest)
	assert.Equal(t, 1200.00, calc.TotalAmount)
}

func TestCalculate_RoundsToCents(t *testing.T) {
	calc := amortization.Calculate(7350.5, 48, 18.9)

	for _, v := range []float64{calc.InstallmentValue, calc.TotalAmount, calc.TotalInterest} {
		assert.InDelta(t, 0, v*100-math.Round(v*100), 1e-6, "value %v has more than two decimals", v)
	}
}

func TestCalculate_RoundsIndependently(t *testing.T) {
	// 888.4878... * 12 = 10661.854..., not 888.49 * 12 = 10661.88
	calc := amortization.Calculate(10000, 12, 12)

	assert.Equal(t, 888.49, calc.InstallmentValue)
	assert.Equal(t, 10661.85, calc.TotalAmount)
	assert.NotEqual(t, amortization.Round2(calc.InstallmentValue*12), calc.TotalAmount)
}

func TestCalculate_LongTermIsFinite(t *testing.T) {
	calc := amortization.Calculate(100000, 360, 9.6)

	for _, v := range []float64{calc.InstallmentValue, calc.TotalAmount, calc.TotalInterest} {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
	assert.Greater(t, calc.InstallmentValue, 100000.0/360)
	assert.Less(t, calc.InstallmentValue, 100000.0*amortization.MonthlyRate(9.6)*2)
}

func TestCalculate_DegenerateInputStaysFinite(t *testing.T) {
	calc := amortization.Calculate(1000, 0, 12)

	assert.Equal(t, 0.0, calc.InstallmentValue)
	assert.Equal(t, 0.0, calc.TotalAmount)
	assert.Equal(t, 0.0, calc.TotalInterest)
	assert.Empty(t, amortization.GenerateSchedule(calc, anchor))
}

func TestLoanTerms_Validate(t *testing.T) {
	tests := []struct {
		name    string
		terms   amortization.LoanTerms
		wantErr bool
	}{
		{"valid", amortization.LoanTerms{Principal: 1000, Periods: 12, AnnualRatePercent: 12}, false},
		{"zero rate is valid", amortization.LoanTerms{Principal: 1000, Periods: 12}, false},
		{"zero principal", amortization.LoanTerms{Principal: 0, Periods: 12, AnnualRatePercent: 12}, true},
		{"negative principal", amortization.LoanTerms{Principal: -5, Periods: 12, AnnualRatePercent: 12}, true},
		{"zero periods", amortization.LoanTerms{Principal: 1000, Periods: 0, AnnualRatePercent: 12}, true},
		{"negative rate", amortization.LoanTerms{Principal: 1000, Periods: 12, AnnualRatePercent: -1}, true},
		{"NaN principal", amortization.LoanTerms{Principal: math.NaN(), Periods: 12}, true},
		{"infinite rate", amortization.LoanTerms{Principal: 1000, Periods: 12, AnnualRatePercent: math.Inf(1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.terms.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, amortization.ErrInvalidTerms))
		})
	}
}

// scheduleCases covers realistic magnitudes: 1 to 360 periods, 0 to ~100% a year.
var scheduleCases = []struct {
	principal float64
	periods   int
	rate      float64
}{
	{10000, 12, 12},
	{5000, 6, 24},
	{1000, 1, 12},
	{1200, 12, 0},
	{100000, 360, 9.6},
	{250000, 240, 13.75},
	{50000, 60, 99.9},
	{7350.5, 48, 18.9},
}

func TestGenerateSchedule_LengthAndIndexes(t *testing.T) {
	for _, c := range scheduleCases {
		calc := amortization.Calculate(c.principal, c.periods, c.rate)
		schedule := amortization.GenerateSchedule(calc, anchor)

		require.Len(t, schedule, c.periods)
		for i, line := range schedule {
			assert.Equal(t, i+1, line.Index)
		}
	}
}

func TestGenerateSchedule_BalanceIsMonotonicAndCloses(t *testing.T) {
	for _, c := range scheduleCases {
		calc := amortization.Calculate(c.principal, c.periods, c.rate)
		schedule := amortization.GenerateSchedule(calc, anchor)

		for i := 1; i < len(schedule); i++ {
			assert.LessOrEqual(t, schedule[i].RemainingBalance, schedule[i-1].RemainingBalance,
				"balance increased at line %d for %+v", i+1, c)
		}
		for _, line := range schedule {
			assert.GreaterOrEqual(t, line.RemainingBalance, 0.0)
		}
		assert.InDelta(t, 0, schedule[len(schedule)-1].RemainingBalance, 0.05)
	}
}

func TestGenerateSchedule_ConservesPrincipalAndInterest(t *testing.T) {
	for _, c := range scheduleCases {
		calc := amortization.Calculate(c.principal, c.periods, c.rate)
		schedule := amortization.GenerateSchedule(calc, anchor)

		var principal, interest float64
		for _, line := range schedule {
			principal += line.PrincipalPortion
			interest += line.InterestPortion
		}

		assert.InDelta(t, c.principal, principal, 0.50, "principal sum for %+v", c)
		assert.InDelta(t, calc.TotalInterest, interest, 0.50, "interest sum for %+v", c)
	}
}

func TestGenerateSchedule_ConstantInstallment(t *testing.T) {
	calc := amortization.Calculate(10000, 12, 12)
	schedule := amortization.GenerateSchedule(calc, anchor)

	for _, line := range schedule {
		assert.Equal(t, calc.InstallmentValue, line.TotalPayment)
		assert.InDelta(t, line.TotalPayment, line.PrincipalPortion+line.InterestPortion, 0.02)
	}
}

func TestGenerateSchedule_AmortizationCurve(t *testing.T) {
	for _, c := range scheduleCases {
		if c.rate == 0 || c.periods < 2 {
			continue
		}
		calc := amortization.Calculate(c.principal, c.periods, c.rate)
		schedule := amortization.GenerateSchedule(calc, anchor)
		first, last := schedule[0], schedule[len(schedule)-1]

		assert.Greater(t, first.InterestPortion, last.InterestPortion)
		assert.Less(t, first.PrincipalPortion, last.PrincipalPortion)
	}
}

func TestGenerateSchedule_FirstLineValues(t *testing.T) {
	calc := amortization.Calculate(10000, 12, 12)
	schedule := amortization.GenerateSchedule(calc, anchor)

	assert.Equal(t, 100.00, schedule[0].InterestPortion)
	assert.Equal(t, 788.49, schedule[0].PrincipalPortion)
	assert.Equal(t, 9211.51, schedule[0].RemainingBalance)
}

func TestGenerateSchedule_SinglePeriod(t *testing.T) {
	calc := amortization.Calculate(1000, 1, 12)
	schedule := amortization.GenerateSchedule(calc, anchor)

	require.Len(t, schedule, 1)
	assert.Equal(t, 10.00, schedule[0].InterestPortion)
	assert.InDelta(t, 1000, schedule[0].PrincipalPortion, 0.01)
	assert.InDelta(t, 0, schedule[0].RemainingBalance, 0.01)
}

func TestGenerateSchedule_ZeroRateIsLinear(t *testing.T) {
	calc := amortization.Calculate(1200, 12, 0)
	schedule := amortization.GenerateSchedule(calc, anchor)

	for i, line := range schedule {
		assert.Equal(t, 0.0, line.InterestPortion)
		assert.Equal(t, 100.0, line.PrincipalPortion)
		assert.InDelta(t, 1200-100*float64(i+1), line.RemainingBalance, 0.001)
	}
}

// The schedule does not force the final balance to zero. Whatever the float
// residue is, the rounded final balance lands on zero for these terms.
func TestGenerateSchedule_FinalBalanceResidue(t *testing.T) {
	calc := amortization.Calculate(100000, 360, 9.6)
	schedule := amortization.GenerateSchedule(calc, anchor)

	assert.Equal(t, 0.0, schedule[len(schedule)-1].RemainingBalance)
}

func TestGenerateSchedule_UsesGivenInstallmentWhenInconsistent(t *testing.T) {
	calc := amortization.LoanCalculation{
		Principal:         1000,
		Periods:           4,
		AnnualRatePercent: 0,
		InstallmentValue:  300,
	}
	schedule := amortization.GenerateSchedule(calc, anchor)

	require.Len(t, schedule, 4)
	assert.Equal(t, 300.0, schedule[0].PrincipalPortion)
	assert.Equal(t, 700.0, schedule[0].RemainingBalance)
	assert.Equal(t, 0.0, schedule[3].RemainingBalance, "overpayment is floored at zero")
}

func TestGenerateSchedule_DueDatesAreMonthly(t *testing.T) {
	calc := amortization.Calculate(10000, 24, 12)
	schedule := amortization.GenerateSchedule(calc, anchor)

	assert.Equal(t, time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC), schedule[0].DueDate)
	assert.Equal(t, time.Date(2027, 3, 10, 0, 0, 0, 0, time.UTC), schedule[23].DueDate)

	for i := 1; i < len(schedule); i++ {
		assert.Equal(t, 1, monthIndex(schedule[i].DueDate)-monthIndex(schedule[i-1].DueDate))
		assert.True(t, schedule[i].DueDate.After(schedule[i-1].DueDate))
	}
}

func TestGenerateSchedule_MonthEndAnchor(t *testing.T) {
	jan31 := time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)
	calc := amortization.Calculate(1200, 14, 12)
	schedule := amortization.GenerateSchedule(calc, jan31)

	want := []time.Time{
		time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC),
	}
	for i, w := range want {
		assert.Equal(t, w, schedule[i].DueDate)
	}
	assert.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), schedule[12].DueDate)

	for i := 1; i < len(schedule); i++ {
		assert.Equal(t, 1, monthIndex(schedule[i].DueDate)-monthIndex(schedule[i-1].DueDate),
			"month skipped or repeated at line %d", i+1)
	}
}

func TestAddMonths(t *testing.T) {
	tests := []struct {
		from time.Time
		n    int
		want time.Time
	}{
		{time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), 1, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)},
		{time.Date(2025, 12, 15, 0, 0, 0, 0, time.UTC), 1, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)},
		{time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC), 3, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)},
		{time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC), 13, time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)},
		{time.Date(2025, 3, 1, 23, 59, 0, 0, time.UTC), 0, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, amortization.AddMonths(tt.from, tt.n), "AddMonths(%s, %d)", tt.from, tt.n)
	}
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.01, amortization.Round2(1.005))
	assert.Equal(t, -1.01, amortization.Round2(-1.005))
	assert.Equal(t, 888.49, amortization.Round2(888.4878867834168))
	assert.Equal(t, 0.0, amortization.Round2(-0.001))
	assert.False(t, math.Signbit(amortization.Round2(-0.001)))
	assert.True(t, math.IsNaN(amortization.Round2(math.NaN())))
}

func TestGenerateSchedule_ConcurrentCallsAreIndependent(t *testing.T) {
	calc := amortization.Calculate(10000, 12, 12)
	want := amortization.GenerateSchedule(calc, anchor)

	results := make(chan []amortization.InstallmentLine, 8)
	for i := 0; i < 8; i++ {
		go func() { results <- amortization.GenerateSchedule(calc, anchor) }()
	}
	for i := 0; i < 8; i++ {
		assert.Equal(t, want, <-results)
	}
}

func monthIndex(t time.Time) int {
	return t.Year()*12 + int(t.Month())
}
