package postgres

import (
	"testing"

	"github.com/boddenberg/ccb-backoffice-go/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestCustomerWhere(t *testing.T) {
	w := customerWhere(domain.CustomerFilter{Name: "50%_off", RiskCategory: domain.RiskHigh})

	assert.Equal(t, " WHERE name ILIKE $1 AND risk_category = $2", w.String())
	assert.Equal(t, []any{`%50\%\_off%`, "HIGH"}, w.args)
}

func TestCustomerWhere_Empty(t *testing.T) {
	w := customerWhere(domain.CustomerFilter{})
	assert.Empty(t, w.String())
	assert.Empty(t, w.args)
}

func TestSimulationWhere(t *testing.T) {
	w := simulationWhere(domain.SimulationFilter{CustomerID: "c1", CreatedByID: "u1", Status: domain.StatusApproved})

	assert.Equal(t, " WHERE customer_id::text = $1 AND created_by_id::text = $2 AND status = $3", w.String())
	assert.Equal(t, []any{"c1", "u1", "APPROVED"}, w.args)
}

func TestOrderBy(t *testing.T) {
	tests := []struct {
		name      string
		sortBy    string
		sortOrder string
		want      string
	}{
		{"whitelisted asc", "creditScore", domain.SortAsc, " ORDER BY credit_score ASC, id ASC"},
		{"whitelisted default desc", "name", "", " ORDER BY name DESC, id DESC"},
		{"unknown column", "1; DROP TABLE customers", domain.SortAsc, " ORDER BY created_at ASC, id ASC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, orderBy(domain.CustomerSortColumns, tt.sortBy, tt.sortOrder))
		})
	}
}

func TestLimitOffset(t *testing.T) {
	w := customerWhere(domain.CustomerFilter{CPF: "111.111.111-11"})

	sql := w.String() + limitOffset(w, 10, 20)

	assert.Equal(t, " WHERE cpf = $1 LIMIT $2 OFFSET $3", sql)
	assert.Equal(t, []any{"111.111.111-11", 10, 20}, w.args)

	neg := &where{}
	assert.Equal(t, " LIMIT $1 OFFSET $2", limitOffset(neg, 5, -3))
	assert.Equal(t, []any{5, 0}, neg.args)
}
