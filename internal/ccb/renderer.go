// Package ccb renders the printable credit note (Cédula de Crédito Bancário)
// of a simulation.
package ccb

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"time"

	"github.com/boddenberg/ccb-backoffice-go/internal/domain"
)

//go:embed templates/ccb.html
var templateFS embed.FS

const notInformed = "Não informado"

// Renderer fills the embedded credit note template.
type Renderer struct {
	tmpl *template.Template
	loc  *time.Location
	now  func() time.Time
}

// NewRenderer parses the template and resolves the São Paulo zone,
// falling back to UTC when the zone database is missing.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/ccb.html")
	if err != nil {
		return nil, fmt.Errorf("parse ccb template: %w", err)
	}
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		loc = time.UTC
	}
	return &Renderer{tmpl: tmpl, loc: loc, now: time.Now}, nil
}

type customerBlock struct {
	Name          string
	CPF           string
	Email         string
	Phone         string
	CreditScore   string
	MonthlyIncome string
	RiskCategory  string
	InterestRate  string
}

type scheduleRow struct {
	Number    int
	DueDate   string
	Principal string
	Interest  string
	Total     string
	Balance   string
}

type document struct {
	SimulationID     string
	CreatedAt        string
	Status           string
	Customer         customerBlock
	RequestedAmount  string
	InstallmentValue string
	Installments     int
	InterestRate     string
	MonthlyRate      string
	TotalAmount      string
	TotalInterest    string
	Schedule         []scheduleRow
	CreatorName      string
	GeneratedAt      string
}

// Render writes the HTML credit note of d to w.
func (r *Renderer) Render(w io.Writer, d *domain.SimulationDetail) error {
	if err := r.tmpl.Execute(w, r.document(d)); err != nil {
		return fmt.Errorf("render ccb: %w", err)
	}
	return nil
}

func (r *Renderer) document(d *domain.SimulationDetail) document {
	doc := document{
		SimulationID:     d.ID,
		CreatedAt:        FormatDate(d.CreatedAt.In(r.loc)),
		Status:           d.Status.Label(),
		RequestedAmount:  FormatBRL(d.RequestedAmount),
		InstallmentValue: FormatBRL(d.InstallmentValue),
		Installments:     d.Installments,
		InterestRate:     FormatPercent(d.InterestRate) + " a.a.",
		MonthlyRate:      FormatPercent(d.InterestRate / 12),
		TotalAmount:      FormatBRL(d.TotalAmount),
		TotalInterest:    FormatBRL(d.TotalInterest),
		Schedule:         make([]scheduleRow, 0, len(d.Schedule)),
		GeneratedAt:      FormatDateTime(r.now().In(r.loc)),
	}

	if c := d.Customer; c != nil {
		doc.Customer = customerBlock{
			Name:          c.Name,
			CPF:           c.CPF,
			Email:         c.Email,
			Phone:         c.Phone,
			CreditScore:   strconv.Itoa(c.CreditScore),
			MonthlyIncome: FormatBRL(c.MonthlyIncome),
			RiskCategory:  c.RiskCategory.Label(),
			InterestRate:  FormatPercent(c.InterestRate) + " a.a.",
		}
		if doc.Customer.Phone == "" {
			doc.Customer.Phone = notInformed
		}
	}
	if d.CreatedBy != nil {
		doc.CreatorName = d.CreatedBy.Name
	}

	for _, line := range d.Schedule {
		doc.Schedule = append(doc.Schedule, scheduleRow{
			Number:    line.Index,
			DueDate:   FormatDate(line.DueDate.In(r.loc)),
			Principal: FormatBRL(line.PrincipalPortion),
			Interest:  FormatBRL(line.InterestPortion),
			Total:     FormatBRL(line.TotalPayment),
			Balance:   FormatBRL(line.RemainingBalance),
		})
	}
	return doc
}
