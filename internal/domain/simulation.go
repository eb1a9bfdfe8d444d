package domain

import (
	"time"

	"github.com/boddenberg/ccb-backoffice-go/internal/amortization"
)

// SimulationStatus tracks a simulation through the approval workflow.
type SimulationStatus string

const (
	StatusPending   SimulationStatus = "PENDING"
	StatusApproved  SimulationStatus = "APPROVED"
	StatusRejected  SimulationStatus = "REJECTED"
	StatusConverted SimulationStatus = "CONVERTED"
)

// transitions lists the statuses reachable from each status.
var transitions = map[SimulationStatus][]SimulationStatus{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusConverted, StatusRejected},
}

// Valid reports whether s is a known status.
func (s SimulationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusConverted:
		return true
	}
	return false
}

// CanTransitionTo reports whether the workflow allows moving from s to next.
// Staying on the same status is always allowed.
func (s SimulationStatus) CanTransitionTo(next SimulationStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Label is the Portuguese name printed on the credit note.
func (s SimulationStatus) Label() string {
	switch s {
	case StatusPending:
		return "Pendente"
	case StatusApproved:
		return "Aprovada"
	case StatusRejected:
		return "Rejeitada"
	case StatusConverted:
		return "Convertida"
	}
	return string(s)
}

// Simulation is a persisted loan calculation for a customer.
type Simulation struct {
	ID               string           `json:"id"`
	CustomerID       string           `json:"customerId"`
	CreatedByID      string           `json:"createdById"`
	RequestedAmount  float64          `json:"requestedAmount"`
	InterestRate     float64          `json:"interestRate"`
	Installments     int              `json:"installments"`
	InstallmentValue float64          `json:"installmentValue"`
	TotalAmount      float64          `json:"totalAmount"`
	TotalInterest    float64          `json:"totalInterest"`
	Status           SimulationStatus `json:"status"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// NewSimulation builds a pending simulation from an engine result.
func NewSimulation(customerID, createdByID string, calc amortization.LoanCalculation, now time.Time) *Simulation {
	return &Simulation{
		CustomerID:       customerID,
		CreatedByID:      createdByID,
		RequestedAmount:  calc.Principal,
		InterestRate:     calc.AnnualRatePercent,
		Installments:     calc.Periods,
		InstallmentValue: calc.InstallmentValue,
		TotalAmount:      calc.TotalAmount,
		TotalInterest:    calc.TotalInterest,
		Status:           StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Calculation returns the engine view of the simulation.
func (s *Simulation) Calculation() amortization.LoanCalculation {
	return amortization.LoanCalculation{
		Principal:         s.RequestedAmount,
		Periods:           s.Installments,
		AnnualRatePercent: s.InterestRate,
		InstallmentValue:  s.InstallmentValue,
		TotalAmount:       s.TotalAmount,
		TotalInterest:     s.TotalInterest,
	}
}

// SimulationSummary is the simulation block embedded in customer detail.
type SimulationSummary struct {
	ID              string           `json:"id"`
	RequestedAmount float64          `json:"requestedAmount"`
	InterestRate    float64          `json:"interestRate"`
	Installments    int              `json:"installments"`
	Status          SimulationStatus `json:"status"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// Summary returns the list view of the simulation.
func (s *Simulation) Summary() SimulationSummary {
	return SimulationSummary{
		ID:              s.ID,
		RequestedAmount: s.RequestedAmount,
		InterestRate:    s.InterestRate,
		Installments:    s.Installments,
		Status:          s.Status,
		CreatedAt:       s.CreatedAt,
	}
}

// ScheduleEntry is one persisted installment of a simulation.
type ScheduleEntry struct {
	SimulationID string `json:"-"`
	amortization.InstallmentLine
}

// NewSchedule attaches engine lines to a simulation id.
func NewSchedule(simulationID string, lines []amortization.InstallmentLine) []ScheduleEntry {
	out := make([]ScheduleEntry, len(lines))
	for i, l := range lines {
		out[i] = ScheduleEntry{SimulationID: simulationID, InstallmentLine: l}
	}
	return out
}

// SimulationListItem is one row of GET /v1/simulations.
type SimulationListItem struct {
	Simulation
	Customer  *CustomerSummary `json:"customer,omitempty"`
	CreatedBy *UserSummary     `json:"createdBy,omitempty"`
}

// SimulationDetail is returned by GET /v1/simulations/{id}.
type SimulationDetail struct {
	Simulation
	Customer  *Customer       `json:"customer,omitempty"`
	CreatedBy *UserSummary    `json:"createdBy,omitempty"`
	Schedule  []ScheduleEntry `json:"schedule"`
}

// ScheduleTotals sums the columns of a schedule.
type ScheduleTotals struct {
	Principal float64 `json:"principal"`
	Interest  float64 `json:"interest"`
	Total     float64 `json:"total"`
}

// ScheduleView is returned by GET /v1/simulations/{id}/schedule.
type ScheduleView struct {
	Simulation SimulationSummary `json:"simulation"`
	Summary    ScheduleSummary   `json:"summary"`
	Schedule   []ScheduleEntry   `json:"schedule"`
	Totals     ScheduleTotals    `json:"totals"`
}

// ScheduleSummary is the financial header of a schedule view.
type ScheduleSummary struct {
	RequestedAmount  float64 `json:"requestedAmount"`
	InstallmentValue float64 `json:"installmentValue"`
	TotalAmount      float64 `json:"totalAmount"`
	TotalInterest    float64 `json:"totalInterest"`
	MonthlyRate      float64 `json:"monthlyRate"`
}

// CreateSimulationRequest is the body for POST /v1/simulations.
type CreateSimulationRequest struct {
	CustomerID      string  `json:"customerId"`
	RequestedAmount float64 `json:"requestedAmount"`
	Installments    int     `json:"installments"`
}

// QuoteRequest is the body for POST /v1/simulations/quote.
type QuoteRequest struct {
	RequestedAmount float64 `json:"requestedAmount"`
	Installments    int     `json:"installments"`
	AnnualRate      float64 `json:"annualRate"`
}

// Quote is an unsaved calculation with its schedule.
type Quote struct {
	amortization.LoanCalculation
	Schedule []amortization.InstallmentLine `json:"schedule"`
}

// UpdateStatusRequest is the body for PATCH /v1/simulations/{id}.
type UpdateStatusRequest struct {
	Status SimulationStatus `json:"status"`
}

// SimulationFilter selects and orders simulations for listing.
type SimulationFilter struct {
	CustomerID  string
	CreatedByID string
	Status      SimulationStatus
	Page        int
	Limit       int
	SortBy      string
	SortOrder   string
}

// Offset is the number of rows skipped before the requested page.
func (f SimulationFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// SimulationSortColumns maps the accepted sortBy values to table columns.
var SimulationSortColumns = map[string]string{
	"createdAt":       "created_at",
	"requestedAmount": "requested_amount",
	"installments":    "installments",
	"status":          "status",
}
