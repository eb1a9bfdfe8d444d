package postgres

import (
	"fmt"
	"strings"

	"github.com/boddenberg/ccb-backoffice-go/internal/domain"
)

// where accumulates AND-ed conditions with positional arguments.
type where struct {
	conds []string
	args  []any
}

// add appends cond, whose single %d is replaced by the next placeholder.
func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// escapeLike neutralises LIKE wildcards in user input.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func customerWhere(f domain.CustomerFilter) *where {
	w := &where{}
	if f.Name != "" {
		w.add("name ILIKE $%d", "%"+escapeLike(f.Name)+"%")
	}
	if f.CPF != "" {
		w.add("cpf = $%d", f.CPF)
	}
	if f.RiskCategory != "" {
		w.add("risk_category = $%d", string(f.RiskCategory))
	}
	return w
}

func simulationWhere(f domain.SimulationFilter) *where {
	w := &where{}
	if f.CustomerID != "" {
		w.add("customer_id::text = $%d", f.CustomerID)
	}
	if f.CreatedByID != "" {
		w.add("created_by_id::text = $%d", f.CreatedByID)
	}
	if f.Status != "" {
		w.add("status = $%d", string(f.Status))
	}
	return w
}

// orderBy renders an ORDER BY clause. Only columns from the whitelist reach
// the SQL text; anything else sorts by created_at. id breaks ties so pages
// are stable.
func orderBy(columns map[string]string, sortBy, sortOrder string) string {
	col, ok := columns[sortBy]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if sortOrder == domain.SortAsc {
		dir = "ASC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, id %s", col, dir, dir)
}

// limitOffset appends LIMIT/OFFSET placeholders to w's args.
func limitOffset(w *where, limit, offset int) string {
	if offset < 0 {
		offset = 0
	}
	w.args = append(w.args, limit, offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(w.args)-1, len(w.args))
}
