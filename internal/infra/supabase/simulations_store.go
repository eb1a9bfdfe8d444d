package supabase

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/ccb-backoffice-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// SimulationStore implementation via PostgREST
// ============================================================

// CreateSimulation goes through the create_simulation function so the
// simulation and its schedule land in one database transaction.
func (c *Client) CreateSimulation(ctx context.Context, sim *domain.Simulation, schedule []domain.ScheduleEntry) (*domain.Simulation, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateSimulation")
	defer span.End()
	span.SetAttributes(attribute.Int("schedule.lines", len(schedule)))

	resp, err := c.call(ctx, request{
		method: http.MethodPost,
		path:   "rpc/create_simulation",
		body: map[string]any{
			"simulation": simulationToRow(sim),
			"schedule":   scheduleToRows(schedule),
		},
	})
	if err != nil {
		switch errCode(err) {
		case codeForeignKeyViolation, codeInvalidText:
			return nil, &domain.ErrNotFound{Resource: "customer", ID: sim.CustomerID}
		}
		return nil, wrapErr("rpc/create_simulation", err)
	}
	return firstSimulation(resp)
}

func firstSimulation(resp *response) (*domain.Simulation, error) {
	rows, err := decodeRows[simulationRow](resp)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	out := rows[0].toDomain()
	return &out, nil
}

func decodeSimulations(resp *response) ([]domain.Simulation, error) {
	rows, err := decodeRows[simulationRow](resp)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Simulation, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (c *Client) GetSimulation(ctx context.Context, id string) (*domain.Simulation, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetSimulation")
	defer span.End()
	span.SetAttributes(attribute.String("simulation.id", id))

	resp, err := c.call(ctx, request{method: http.MethodGet, path: "simulations?" + eq("id", id) + "&limit=1"})
	if err != nil {
		if errCode(err) == codeInvalidText {
			return nil, nil
		}
		return nil, wrapErr("simulations", err)
	}
	return firstSimulation(resp)
}

func (c *Client) GetSchedule(ctx context.Context, simulationID string) ([]domain.ScheduleEntry, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetSchedule")
	defer span.End()

	resp, err := c.call(ctx, request{
		method: http.MethodGet,
		path:   "amortization_schedules?" + eq("simulation_id", simulationID) + "&order=installment_number.asc",
	})
	if err != nil {
		if errCode(err) == codeInvalidText {
			return []domain.ScheduleEntry{}, nil
		}
		return nil, wrapErr("amortization_schedules", err)
	}

	rows, err := decodeRows[scheduleRow](resp)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ScheduleEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (c *Client) ListSimulations(ctx context.Context, f domain.SimulationFilter) ([]domain.Simulation, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListSimulations")
	defer span.End()

	q := simulationQuery(f)
	q.Set("order", order(domain.SimulationSortColumns, f.SortBy, f.SortOrder))
	paginate(q, f.Limit, f.Offset())

	resp, err := c.call(ctx, request{method: http.MethodGet, path: "simulations?" + q.Encode()})
	if err != nil {
		if errCode(err) == codeInvalidText {
			return []domain.Simulation{}, nil
		}
		return nil, wrapErr("simulations", err)
	}
	return decodeSimulations(resp)
}

func (c *Client) CountSimulations(ctx context.Context, f domain.SimulationFilter) (int, error) {
	q := simulationQuery(f)
	q.Set("select", "id")
	q.Set("limit", "0")

	resp, err := c.call(ctx, request{method: http.MethodGet, path: "simulations?" + q.Encode(), prefer: "count=exact"})
	if err != nil {
		if errCode(err) == codeInvalidText {
			return 0, nil
		}
		return 0, wrapErr("simulations", err)
	}
	return contentRangeTotal(resp.header)
}

func (c *Client) ListSimulationsByCustomer(ctx context.Context, customerID string) ([]domain.Simulation, error) {
	resp, err := c.call(ctx, request{
		method: http.MethodGet,
		path:   "simulations?" + eq("customer_id", customerID) + "&order=created_at.desc",
	})
	if err != nil {
		if errCode(err) == codeInvalidText {
			return []domain.Simulation{}, nil
		}
		return nil, wrapErr("simulations", err)
	}
	return decodeSimulations(resp)
}

func (c *Client) UpdateSimulationStatus(ctx context.Context, id string, status domain.SimulationStatus, updatedAt time.Time) (*domain.Simulation, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateSimulationStatus")
	defer span.End()
	span.SetAttributes(attribute.String("simulation.status", string(status)))

	resp, err := c.call(ctx, request{
		method: http.MethodPatch,
		path:   "simulations?" + eq("id", id),
		body: map[string]any{
			"status":     string(status),
			"updated_at": updatedAt.Format(time.RFC3339Nano),
		},
		prefer: "return=representation",
	})
	if err != nil {
		if errCode(err) == codeInvalidText {
			return nil, &domain.ErrNotFound{Resource: "simulation", ID: id}
		}
		return nil, wrapErr("simulations", err)
	}

	out, err := firstSimulation(resp)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, &domain.ErrNotFound{Resource: "simulation", ID: id}
	}
	return out, nil
}

func (c *Client) DeleteSimulation(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteSimulation")
	defer span.End()

	resp, err := c.call(ctx, request{
		method: http.MethodDelete,
		path:   "simulations?" + eq("id", id),
		prefer: "return=representation",
	})
	if err != nil {
		if errCode(err) == codeInvalidText {
			return &domain.ErrNotFound{Resource: "simulation", ID: id}
		}
		return wrapErr("simulations", err)
	}

	deleted, err := decodeRows[simulationRow](resp)
	if err != nil {
		return err
	}
	if len(deleted) == 0 {
		return &domain.ErrNotFound{Resource: "simulation", ID: id}
	}
	return nil
}
