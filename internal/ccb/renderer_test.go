package ccb

import (
	"bytes"
	"testing"
	"time"

	"github.com/boddenberg/ccb-backoffice-go/internal/amortization"
	"github.com/boddenberg/ccb-backoffice-go/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatBRL(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "R$ 0,00"},
		{1.5, "R$ 1,50"},
		{-1.5, "-R$ 1,50"},
		{999.999, "R$ 1.000,00"},
		{10000, "R$ 10.000,00"},
		{1234567.891, "R$ 1.234.567,89"},
		{100000, "R$ 100.000,00"},
		{0.005, "R$ 0,01"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBRL(tt.in), "FormatBRL(%v)", tt.in)
	}
}

func TestFormatDate(t *testing.T) {
	d := time.Date(2024, 2, 9, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "09/02/2024", FormatDate(d))
	assert.Equal(t, "09/02/2024 às 23:59:00", FormatDateTime(d))
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "12.50%", FormatPercent(12.5))
	assert.Equal(t, "1.15%", FormatPercent(13.75/12))
	assert.Equal(t, "0.00%", FormatPercent(0))
}

func sampleDetail() *domain.SimulationDetail {
	created := time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC)
	calc := amortization.Calculate(10000, 3, 12)
	sim := domain.NewSimulation("cust-1", "user-1", calc, created)
	sim.ID = "sim-123"
	return &domain.SimulationDetail{
		Simulation: *sim,
		Customer: &domain.Customer{
			ID: "cust-1", Name: "Ana <Souza>", CPF: "123.456.789-00", Email: "ana@example.com",
			InterestRate: 12, CreditScore: 810, MonthlyIncome: 12500, RiskCategory: domain.RiskMedium,
		},
		CreatedBy: &domain.UserSummary{ID: "user-1", Name: "Carlos Operador", Email: "carlos@example.com"},
		Schedule:  domain.NewSchedule("sim-123", amortization.GenerateSchedule(calc, created)),
	}
}

func TestRender(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)
	r.loc = time.UTC
	r.now = func() time.Time { return time.Date(2024, 1, 16, 8, 30, 5, 0, time.UTC) }

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, sampleDetail()))
	html := buf.String()

	assert.Contains(t, html, "sim-123")
	assert.Contains(t, html, "15/01/2024")
	assert.Contains(t, html, "Pendente")
	assert.Contains(t, html, "Ana &lt;Souza&gt;", "customer data must be escaped")
	assert.Contains(t, html, "Não informado")
	assert.Contains(t, html, "810")
	assert.Contains(t, html, "R$ 12.500,00")
	assert.Contains(t, html, "Médio")
	assert.Contains(t, html, "12.00% a.a.")
	assert.Contains(t, html, "1.00%")
	assert.Contains(t, html, "R$ 10.000,00")
	assert.Contains(t, html, "R$ 3.400,22")
	assert.Contains(t, html, "15/02/2024")
	assert.Contains(t, html, "15/04/2024")
	assert.Contains(t, html, "Carlos Operador")
	assert.Contains(t, html, "16/01/2024 às 08:30:05")
}

func TestRender_WithoutRelations(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	d := sampleDetail()
	d.Customer = nil
	d.CreatedBy = nil
	d.Schedule = nil

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, d))
	assert.Contains(t, buf.String(), "sim-123")
}
