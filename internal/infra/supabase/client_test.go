package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/ccb-backoffice-go/internal/domain"
	"github.com/boddenberg/ccb-backoffice-go/internal/infra/observability"
	"github.com/boddenberg/ccb-backoffice-go/internal/infra/resilience"
	"github.com/boddenberg/ccb-backoffice-go/internal/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var _ port.Store = (*Client)(nil)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxConcurrency: 4}
	return NewClient(srv.Client(), srv.URL+"/", "anon", "service", resilience.NewCircuitBreaker("test"), cfg, zap.NewNop())
}

func TestClient_SendsAuthHeaders(t *testing.T) {
	var gotPath, gotKey, gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`[]`))
	})

	got, err := c.GetCustomer(context.Background(), "abc")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, "/rest/v1/customers", gotPath)
	assert.Equal(t, "anon", gotKey)
	assert.Equal(t, "Bearer service", gotAuth)
}

func TestClient_ListCustomersQuery(t *testing.T) {
	var query map[string][]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Write([]byte(`[{"id":"c1","name":"Ana Lima","cpf":"111.111.111-11","email":"ana@x.com","phone":null,
			"interest_rate":12.5,"credit_score":700,"monthly_income":5000,"risk_category":"LOW",
			"created_at":"2025-01-10T12:00:00+00:00","updated_at":"2025-01-10T12:00:00+00:00"}]`))
	})

	list, err := c.ListCustomers(context.Background(), domain.CustomerFilter{
		Name: "lima", RiskCategory: domain.RiskLow, Page: 2, Limit: 5, SortBy: "creditScore", SortOrder: domain.SortAsc,
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Ana Lima", list[0].Name)
	assert.Equal(t, 12.5, list[0].InterestRate)
	assert.Empty(t, list[0].Phone)

	assert.Equal(t, []string{"ilike.*lima*"}, query["name"])
	assert.Equal(t, []string{"eq.LOW"}, query["risk_category"])
	assert.Equal(t, []string{"credit_score.asc,id.asc"}, query["order"])
	assert.Equal(t, []string{"5"}, query["limit"])
	assert.Equal(t, []string{"5"}, query["offset"])
}

func TestClient_CountFromContentRange(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "count=exact", r.Header.Get("Prefer"))
		w.Header().Set("Content-Range", "*/42")
		w.Write([]byte(`[]`))
	})

	n, err := c.CountSimulations(context.Background(), domain.SimulationFilter{Status: domain.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestClient_DuplicateCPFIsConflict(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"code":"23505","message":"duplicate key value violates unique constraint"}`))
	})

	_, err := c.CreateCustomer(context.Background(), &domain.Customer{Name: "Ana", CPF: "111.111.111-11"})
	var conflict *domain.ErrConflict
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, int32(1), calls.Load(), "client errors are not retried")
}

func TestClient_DeleteCustomerWithSimulations(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"code":"23503","message":"violates foreign key constraint"}`))
	})

	err := c.DeleteCustomer(context.Background(), "c1")
	var conflict *domain.ErrConflict
	assert.True(t, errors.As(err, &conflict))
}

func TestClient_DeleteMissingIsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	err := c.DeleteSimulation(context.Background(), "s1")
	var notFound *domain.ErrNotFound
	assert.True(t, errors.As(err, &notFound))
}

func TestClient_InvalidUUIDIsMissing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"22P02","message":"invalid input syntax for type uuid"}`))
	})

	sim, err := c.GetSimulation(context.Background(), "not-a-uuid")
	require.NoError(t, err)
	assert.Nil(t, sim)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[{"id":"s1","status":"PENDING","installments":12}]`))
	})

	sim, err := c.GetSimulation(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, sim)
	assert.Equal(t, domain.StatusPending, sim.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ServerErrorIsExternal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.ListCustomers(context.Background(), domain.CustomerFilter{Page: 1, Limit: 10})
	var ext *domain.ErrExternalService
	assert.True(t, errors.As(err, &ext))
}

func TestClient_CountsUpstreamFailures(t *testing.T) {
	var fail atomic.Bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"code":"23505","message":"duplicate key"}`))
	})
	metrics := observability.NewMetrics()
	c.WithMetrics(metrics)

	_, err := c.CreateCustomer(context.Background(), &domain.Customer{CPF: "111.111.111-11"})
	require.Error(t, err)
	assert.Empty(t, metrics.Snapshot().ExternalErrors, "client errors are not upstream failures")

	fail.Store(true)
	_, err = c.ListCustomers(context.Background(), domain.CustomerFilter{Page: 1, Limit: 10})
	require.Error(t, err)
	assert.Equal(t, map[string]float64{"supabase": 1}, metrics.Snapshot().ExternalErrors)
}

func TestClient_CreateSimulationUsesRPC(t *testing.T) {
	var body struct {
		Simulation simulationRow `json:"simulation"`
		Schedule   []scheduleRow `json:"schedule"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/rpc/create_simulation", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Write([]byte(`[{"id":"s1","customer_id":"c1","status":"PENDING","installments":2}]`))
	})

	sim := &domain.Simulation{CustomerID: "c1", CreatedByID: "u1", Installments: 2, Status: domain.StatusPending}
	var line domain.ScheduleEntry
	line.Index = 1
	line.TotalPayment = 507.51

	out, err := c.CreateSimulation(context.Background(), sim, []domain.ScheduleEntry{line})
	require.NoError(t, err)
	assert.Equal(t, "s1", out.ID)
	assert.Equal(t, "c1", body.Simulation.CustomerID)
	require.Len(t, body.Schedule, 1)
	assert.Equal(t, 1, body.Schedule[0].InstallmentNumber)
	assert.Equal(t, 507.51, body.Schedule[0].Total)
}

func TestClient_CircuitOpens(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	c.cfg.MaxRetries = 0

	for i := 0; i < 5; i++ {
		_, _ = c.GetCustomer(context.Background(), "c1")
	}

	_, err := c.GetCustomer(context.Background(), "c1")
	var open *domain.ErrCircuitOpen
	assert.True(t, errors.As(err, &open))
}

func TestIn(t *testing.T) {
	assert.Equal(t, `in.%28%22a%22%2C%22b%22%29`, in([]string{"a", "b"}))
}
