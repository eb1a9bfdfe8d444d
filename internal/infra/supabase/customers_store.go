package supabase

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/ccb-backoffice-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// CustomerStore implementation via PostgREST
// ============================================================

func (c *Client) CreateCustomer(ctx context.Context, cust *domain.Customer) (*domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateCustomer")
	defer span.End()

	resp, err := c.call(ctx, request{
		method: http.MethodPost,
		path:   "customers",
		body:   customerToRow(cust),
		prefer: "return=representation",
	})
	if err != nil {
		if errCode(err) == codeUniqueViolation {
			return nil, &domain.ErrConflict{Message: "CPF already registered"}
		}
		return nil, wrapErr("customers", err)
	}
	return firstCustomer(resp)
}

func firstCustomer(resp *response) (*domain.Customer, error) {
	rows, err := decodeRows[customerRow](resp)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	out := rows[0].toDomain()
	return &out, nil
}

func (c *Client) getCustomer(ctx context.Context, filter string) (*domain.Customer, error) {
	resp, err := c.call(ctx, request{method: http.MethodGet, path: "customers?" + filter + "&limit=1"})
	if err != nil {
		if errCode(err) == codeInvalidText {
			return nil, nil
		}
		return nil, wrapErr("customers", err)
	}
	return firstCustomer(resp)
}

func (c *Client) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetCustomer")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", id))

	return c.getCustomer(ctx, eq("id", id))
}

func (c *Client) GetCustomerByCPF(ctx context.Context, cpf string) (*domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetCustomerByCPF")
	defer span.End()

	return c.getCustomer(ctx, eq("cpf", cpf))
}

func (c *Client) GetCustomersByIDs(ctx context.Context, ids []string) (map[string]*domain.Customer, error) {
	out := make(map[string]*domain.Customer, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	resp, err := c.call(ctx, request{method: http.MethodGet, path: "customers?id=" + in(ids)})
	if err != nil {
		return nil, wrapErr("customers", err)
	}
	rows, err := decodeRows[customerRow](resp)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		cust := r.toDomain()
		out[cust.ID] = &cust
	}
	return out, nil
}

func (c *Client) ListCustomers(ctx context.Context, f domain.CustomerFilter) ([]domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListCustomers")
	defer span.End()

	q := customerQuery(f)
	q.Set("order", order(domain.CustomerSortColumns, f.SortBy, f.SortOrder))
	paginate(q, f.Limit, f.Offset())

	resp, err := c.call(ctx, request{method: http.MethodGet, path: "customers?" + q.Encode()})
	if err != nil {
		return nil, wrapErr("customers", err)
	}
	rows, err := decodeRows[customerRow](resp)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Customer, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (c *Client) CountCustomers(ctx context.Context, f domain.CustomerFilter) (int, error) {
	q := customerQuery(f)
	q.Set("select", "id")
	q.Set("limit", "0")

	resp, err := c.call(ctx, request{method: http.MethodGet, path: "customers?" + q.Encode(), prefer: "count=exact"})
	if err != nil {
		return 0, wrapErr("customers", err)
	}
	return contentRangeTotal(resp.header)
}

func (c *Client) UpdateCustomer(ctx context.Context, cust *domain.Customer) (*domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateCustomer")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", cust.ID))

	row := customerToRow(cust)
	resp, err := c.call(ctx, request{
		method: http.MethodPatch,
		path:   "customers?" + eq("id", cust.ID),
		body: map[string]any{
			"name":           row.Name,
			"cpf":            row.CPF,
			"email":          row.Email,
			"phone":          row.Phone,
			"interest_rate":  row.InterestRate,
			"credit_score":   row.CreditScore,
			"monthly_income": row.MonthlyIncome,
			"risk_category":  row.RiskCategory,
			"updated_at":     row.UpdatedAt.Format(time.RFC3339Nano),
		},
		prefer: "return=representation",
	})
	if err != nil {
		switch errCode(err) {
		case codeUniqueViolation:
			return nil, &domain.ErrConflict{Message: "CPF already registered"}
		case codeInvalidText:
			return nil, &domain.ErrNotFound{Resource: "customer", ID: cust.ID}
		}
		return nil, wrapErr("customers", err)
	}

	out, err := firstCustomer(resp)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, &domain.ErrNotFound{Resource: "customer", ID: cust.ID}
	}
	return out, nil
}

func (c *Client) DeleteCustomer(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteCustomer")
	defer span.End()

	resp, err := c.call(ctx, request{
		method: http.MethodDelete,
		path:   "customers?" + eq("id", id),
		prefer: "return=representation",
	})
	if err != nil {
		switch errCode(err) {
		case codeForeignKeyViolation:
			return &domain.ErrConflict{Message: "customer has simulations"}
		case codeInvalidText:
			return &domain.ErrNotFound{Resource: "customer", ID: id}
		}
		return wrapErr("customers", err)
	}

	deleted, err := decodeRows[customerRow](resp)
	if err != nil {
		return err
	}
	if len(deleted) == 0 {
		return &domain.ErrNotFound{Resource: "customer", ID: id}
	}
	return nil
}
