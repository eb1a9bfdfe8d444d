// Package amortization implements the fixed-installment (Price table / French
// system) loan engine: installment calculation and schedule expansion.
//
// Everything here is pure arithmetic over its arguments. Nothing is cached or
// shared, so every function is safe to call from any goroutine.
package amortization

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidTerms is wrapped by LoanTerms.Validate.
var ErrInvalidTerms = errors.New("invalid loan terms")

// LoanTerms is the input of a loan calculation.
type LoanTerms struct {
	Principal         float64 `json:"principal"`
	Periods           int     `json:"periods"`
	AnnualRatePercent float64 `json:"annualRatePercent"` // 12.5 means 12.5% a year
}

// Validate reports whether the terms are inside the engine's domain.
// Calculate does not call it; range policy belongs to the caller.
func (t LoanTerms) Validate() error {
	switch {
	case math.IsNaN(t.Principal) || math.IsInf(t.Principal, 0):
		return fmt.Errorf("%w: principal must be a finite number", ErrInvalidTerms)
	case t.Principal <= 0:
		return fmt.Errorf("%w: principal must be positive", ErrInvalidTerms)
	case t.Periods < 1:
		return fmt.Errorf("%w: periods must be at least 1", ErrInvalidTerms)
	case math.IsNaN(t.AnnualRatePercent) || math.IsInf(t.AnnualRatePercent, 0):
		return fmt.Errorf("%w: annual rate must be a finite number", ErrInvalidTerms)
	case t.AnnualRatePercent < 0:
		return fmt.Errorf("%w: annual rate must not be negative", ErrInvalidTerms)
	}
	return nil
}

// LoanCalculation is the result of Calculate. The derived values are rounded
// to cents; the echoed inputs are kept as given.
type LoanCalculation struct {
	Principal         float64 `json:"requestedAmount"`
	Periods           int     `json:"installments"`
	AnnualRatePercent float64 `json:"interestRate"`
	InstallmentValue  float64 `json:"installmentValue"`
	TotalAmount       float64 `json:"totalAmount"`
	TotalInterest     float64 `json:"totalInterest"`
}

// Terms returns the inputs the calculation was made from.
func (c LoanCalculation) Terms() LoanTerms {
	return LoanTerms{
		Principal:         c.Principal,
		Periods:           c.Periods,
		AnnualRatePercent: c.AnnualRatePercent,
	}
}

// InstallmentLine is one row of an amortization schedule.
type InstallmentLine struct {
	Index            int       `json:"installmentNumber"`
	DueDate          time.Time `json:"dueDate"`
	PrincipalPortion float64   `json:"principal"`
	InterestPortion  float64   `json:"interest"`
	TotalPayment     float64   `json:"total"`
	RemainingBalance float64   `json:"balance"`
}

// MonthlyRate converts an annual percentage into the periodic (monthly) rate.
func MonthlyRate(annualRatePercent float64) float64 {
	return annualRatePercent / 12 / 100
}

// installment returns the unrounded fixed payment for the given terms.
func installment(principal float64, periods int, monthlyRate float64) float64 {
	if periods < 1 {
		return 0
	}
	if monthlyRate == 0 {
		return principal / float64(periods)
	}
	growth := math.Pow(1+monthlyRate, float64(periods))
	return principal * (monthlyRate * growth) / (growth - 1)
}

// Calculate computes the fixed installment of a loan and its totals.
//
// Installment, total amount and total interest are each rounded from their
// unrounded values; none of them is derived from another rounded figure.
func Calculate(principal float64, periods int, annualRatePercent float64) LoanCalculation {
	value := installment(principal, periods, MonthlyRate(annualRatePercent))

	var total, interest float64
	if periods >= 1 {
		total = value * float64(periods)
		interest = total - principal
	}

	return LoanCalculation{
		Principal:         principal,
		Periods:           periods,
		AnnualRatePercent: annualRatePercent,
		InstallmentValue:  Round2(value),
		TotalAmount:       Round2(total),
		TotalInterest:     Round2(interest),
	}
}

// GenerateSchedule expands a calculation into one line per period. The first
// line is due one calendar month after today.
//
// The running balance is never rounded; only the emitted lines are. When the
// calculation's installment matches its terms (it came from Calculate), the
// balance is driven by the unrounded installment so the schedule closes at
// zero; otherwise the given installment value is used as is.
func GenerateSchedule(calc LoanCalculation, today time.Time) []InstallmentLine {
	if calc.Periods < 1 {
		return []InstallmentLine{}
	}

	rate := MonthlyRate(calc.AnnualRatePercent)
	payment := installment(calc.Principal, calc.Periods, rate)
	if math.Abs(Round2(payment)-calc.InstallmentValue) > 0.005 {
		payment = calc.InstallmentValue
	}
	emittedPayment := Round2(calc.InstallmentValue)

	schedule := make([]InstallmentLine, 0, calc.Periods)
	balance := calc.Principal

	for i := 1; i <= calc.Periods; i++ {
		interest := balance * rate
		principal := payment - interest
		balance -= principal

		schedule = append(schedule, InstallmentLine{
			Index:            i,
			DueDate:          AddMonths(today, i),
			PrincipalPortion: Round2(principal),
			InterestPortion:  Round2(interest),
			TotalPayment:     emittedPayment,
			RemainingBalance: Round2(math.Max(0, balance)),
		})
	}

	return schedule
}
