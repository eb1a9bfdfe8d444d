package supabase

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/boddenberg/ccb-backoffice-go/internal/domain"
)

// ============================================================
// Row mapping (snake_case columns <-> domain)
// ============================================================

type customerRow struct {
	ID            string    `json:"id,omitempty"`
	Name          string    `json:"name"`
	CPF           string    `json:"cpf"`
	Email         string    `json:"email"`
	Phone         *string   `json:"phone"`
	InterestRate  float64   `json:"interest_rate"`
	CreditScore   int       `json:"credit_score"`
	MonthlyIncome float64   `json:"monthly_income"`
	RiskCategory  string    `json:"risk_category"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func customerToRow(c *domain.Customer) customerRow {
	r := customerRow{
		ID:            c.ID,
		Name:          c.Name,
		CPF:           c.CPF,
		Email:         c.Email,
		InterestRate:  c.InterestRate,
		CreditScore:   c.CreditScore,
		MonthlyIncome: c.MonthlyIncome,
		RiskCategory:  string(c.RiskCategory),
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
	if c.Phone != "" {
		r.Phone = &c.Phone
	}
	return r
}

func (r customerRow) toDomain() domain.Customer {
	c := domain.Customer{
		ID:            r.ID,
		Name:          r.Name,
		CPF:           r.CPF,
		Email:         r.Email,
		InterestRate:  r.InterestRate,
		CreditScore:   r.CreditScore,
		MonthlyIncome: r.MonthlyIncome,
		RiskCategory:  domain.RiskCategory(r.RiskCategory),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.Phone != nil {
		c.Phone = *r.Phone
	}
	return c
}

type simulationRow struct {
	ID               string    `json:"id,omitempty"`
	CustomerID       string    `json:"customer_id"`
	CreatedByID      string    `json:"created_by_id"`
	RequestedAmount  float64   `json:"requested_amount"`
	InterestRate     float64   `json:"interest_rate"`
	Installments     int       `json:"installments"`
	InstallmentValue float64   `json:"installment_value"`
	TotalAmount      float64   `json:"total_amount"`
	TotalInterest    float64   `json:"total_interest"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func simulationToRow(s *domain.Simulation) simulationRow {
	return simulationRow{
		ID:               s.ID,
		CustomerID:       s.CustomerID,
		CreatedByID:      s.CreatedByID,
		RequestedAmount:  s.RequestedAmount,
		InterestRate:     s.InterestRate,
		Installments:     s.Installments,
		InstallmentValue: s.InstallmentValue,
		TotalAmount:      s.TotalAmount,
		TotalInterest:    s.TotalInterest,
		Status:           string(s.Status),
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

func (r simulationRow) toDomain() domain.Simulation {
	return domain.Simulation{
		ID:               r.ID,
		CustomerID:       r.CustomerID,
		CreatedByID:      r.CreatedByID,
		RequestedAmount:  r.RequestedAmount,
		InterestRate:     r.InterestRate,
		Installments:     r.Installments,
		InstallmentValue: r.InstallmentValue,
		TotalAmount:      r.TotalAmount,
		TotalInterest:    r.TotalInterest,
		Status:           domain.SimulationStatus(r.Status),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type scheduleRow struct {
	SimulationID      string    `json:"simulation_id,omitempty"`
	InstallmentNumber int       `json:"installment_number"`
	DueDate           time.Time `json:"due_date"`
	Principal         float64   `json:"principal"`
	Interest          float64   `json:"interest"`
	Total             float64   `json:"total"`
	Balance           float64   `json:"balance"`
}

func scheduleToRows(entries []domain.ScheduleEntry) []scheduleRow {
	rows := make([]scheduleRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, scheduleRow{
			InstallmentNumber: e.Index,
			DueDate:           e.DueDate,
			Principal:         e.PrincipalPortion,
			Interest:          e.InterestPortion,
			Total:             e.TotalPayment,
			Balance:           e.RemainingBalance,
		})
	}
	return rows
}

func (r scheduleRow) toDomain() domain.ScheduleEntry {
	var e domain.ScheduleEntry
	e.SimulationID = r.SimulationID
	e.Index = r.InstallmentNumber
	e.DueDate = r.DueDate
	e.PrincipalPortion = r.Principal
	e.InterestPortion = r.Interest
	e.TotalPayment = r.Total
	e.RemainingBalance = r.Balance
	return e
}

type userRow struct {
	ID             string     `json:"id,omitempty"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	Role           string     `json:"role"`
	PasswordHash   string     `json:"password_hash"`
	FailedAttempts int        `json:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until"`
	LastLoginAt    *time.Time `json:"last_login_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (r userRow) toDomain() domain.User {
	return domain.User{
		ID:             r.ID,
		Email:          r.Email,
		Name:           r.Name,
		Role:           domain.Role(r.Role),
		PasswordHash:   r.PasswordHash,
		FailedAttempts: r.FailedAttempts,
		LockedUntil:    r.LockedUntil,
		LastLoginAt:    r.LastLoginAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

type refreshTokenRow struct {
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"token_hash"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
}

// ============================================================
// PostgREST query strings
// ============================================================

// in renders a query-escaped PostgREST in.(...) filter value.
func in(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = `"` + strings.ReplaceAll(id, `"`, `\"`) + `"`
	}
	return url.QueryEscape("in.(" + strings.Join(quoted, ",") + ")")
}

// order renders the order parameter from a sort whitelist.
func order(columns map[string]string, sortBy, sortOrder string) string {
	col, ok := columns[sortBy]
	if !ok {
		col = "created_at"
	}
	dir := "desc"
	if sortOrder == domain.SortAsc {
		dir = "asc"
	}
	return fmt.Sprintf("%s.%s,id.%s", col, dir, dir)
}

// ilikeEscape drops the PostgREST wildcard so user input matches literally.
func ilikeEscape(s string) string {
	return strings.NewReplacer("*", "", "%", `\%`, "_", `\_`).Replace(s)
}

func customerQuery(f domain.CustomerFilter) url.Values {
	q := url.Values{}
	if f.Name != "" {
		q.Set("name", "ilike.*"+ilikeEscape(f.Name)+"*")
	}
	if f.CPF != "" {
		q.Set("cpf", "eq."+f.CPF)
	}
	if f.RiskCategory != "" {
		q.Set("risk_category", "eq."+string(f.RiskCategory))
	}
	return q
}

func simulationQuery(f domain.SimulationFilter) url.Values {
	q := url.Values{}
	if f.CustomerID != "" {
		q.Set("customer_id", "eq."+f.CustomerID)
	}
	if f.CreatedByID != "" {
		q.Set("created_by_id", "eq."+f.CreatedByID)
	}
	if f.Status != "" {
		q.Set("status", "eq."+string(f.Status))
	}
	return q
}

func paginate(q url.Values, limit, offset int) {
	if offset < 0 {
		offset = 0
	}
	q.Set("limit", fmt.Sprint(limit))
	q.Set("offset", fmt.Sprint(offset))
}

func eq(column, value string) string {
	return column + "=eq." + url.QueryEscape(value)
}
