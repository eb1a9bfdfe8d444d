package domain

import "time"

// RiskCategory is the credit risk band assigned to a customer.
type RiskCategory string

const (
	RiskLow    RiskCategory = "LOW"
	RiskMedium RiskCategory = "MEDIUM"
	RiskHigh   RiskCategory = "HIGH"
)

// Valid reports whether r is a known risk band.
func (r RiskCategory) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// Label is the Portuguese name printed on the credit note.
func (r RiskCategory) Label() string {
	switch r {
	case RiskLow:
		return "Baixo"
	case RiskMedium:
		return "Médio"
	case RiskHigh:
		return "Alto"
	}
	return string(r)
}

// Customer is a borrower. InterestRate is the annual percentage applied to
// every simulation made for them.
type Customer struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	CPF           string       `json:"cpf"`
	Email         string       `json:"email"`
	Phone         string       `json:"phone,omitempty"`
	InterestRate  float64      `json:"interestRate"`
	CreditScore   int          `json:"creditScore"`
	MonthlyIncome float64      `json:"monthlyIncome"`
	RiskCategory  RiskCategory `json:"riskCategory"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// CustomerSummary is the customer block embedded in simulation listings.
type CustomerSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	CPF  string `json:"cpf"`
}

// Summary returns the identifying part of the customer.
func (c *Customer) Summary() *CustomerSummary {
	if c == nil {
		return nil
	}
	return &CustomerSummary{ID: c.ID, Name: c.Name, CPF: c.CPF}
}

// CustomerDetail is returned by GET /v1/customers/{id}.
type CustomerDetail struct {
	Customer
	Simulations []SimulationSummary `json:"simulations"`
}

// CreateCustomerRequest is the body for POST /v1/customers.
type CreateCustomerRequest struct {
	Name          string       `json:"name"`
	CPF           string       `json:"cpf"`
	Email         string       `json:"email"`
	Phone         string       `json:"phone,omitempty"`
	InterestRate  *float64     `json:"interestRate"`
	CreditScore   *int         `json:"creditScore"`
	MonthlyIncome *float64     `json:"monthlyIncome"`
	RiskCategory  RiskCategory `json:"riskCategory"`
}

// UpdateCustomerRequest is the body for PATCH /v1/customers/{id}.
// Nil fields are left untouched.
type UpdateCustomerRequest struct {
	Name          *string       `json:"name,omitempty"`
	CPF           *string       `json:"cpf,omitempty"`
	Email         *string       `json:"email,omitempty"`
	Phone         *string       `json:"phone,omitempty"`
	InterestRate  *float64      `json:"interestRate,omitempty"`
	CreditScore   *int          `json:"creditScore,omitempty"`
	MonthlyIncome *float64      `json:"monthlyIncome,omitempty"`
	RiskCategory  *RiskCategory `json:"riskCategory,omitempty"`
}

// Apply copies the set fields onto c.
func (u *UpdateCustomerRequest) Apply(c *Customer) {
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.CPF != nil {
		c.CPF = *u.CPF
	}
	if u.Email != nil {
		c.Email = *u.Email
	}
	if u.Phone != nil {
		c.Phone = *u.Phone
	}
	if u.InterestRate != nil {
		c.InterestRate = *u.InterestRate
	}
	if u.CreditScore != nil {
		c.CreditScore = *u.CreditScore
	}
	if u.MonthlyIncome != nil {
		c.MonthlyIncome = *u.MonthlyIncome
	}
	if u.RiskCategory != nil {
		c.RiskCategory = *u.RiskCategory
	}
}

// CustomerFilter selects and orders customers for listing.
type CustomerFilter struct {
	Name         string // case-insensitive substring
	CPF          string // exact
	RiskCategory RiskCategory
	Page         int
	Limit        int
	SortBy       string
	SortOrder    string
}

// Offset is the number of rows skipped before the requested page.
func (f CustomerFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// CustomerSortColumns maps the accepted sortBy values to table columns.
var CustomerSortColumns = map[string]string{
	"name":        "name",
	"cpf":         "cpf",
	"email":       "email",
	"createdAt":   "created_at",
	"creditScore": "credit_score",
}
