package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/ccb-backoffice-go/internal/domain"
	"github.com/boddenberg/ccb-backoffice-go/internal/infra/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Fakes ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func ptr[T any](v T) *T { return &v }

func validCustomerRequest(cpf string) *domain.CreateCustomerRequest {
	return &domain.CreateCustomerRequest{
		Name:          "João da Silva",
		CPF:           cpf,
		Email:         "joao@example.com",
		Phone:         "(11) 98765-4321",
		InterestRate:  ptr(12.0),
		CreditScore:   ptr(720),
		MonthlyIncome: ptr(8500.0),
		RiskCategory:  domain.RiskLow,
	}
}

func newTestCustomerService() (*CustomerService, *memory.Store, *recordingPublisher) {
	store := memory.New()
	pub := &recordingPublisher{}
	svc := NewCustomerService(store, store, pub, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }
	return svc, store, pub
}

// --- Tests ---

func TestCustomerCreate_Success(t *testing.T) {
	svc, _, pub := newTestCustomerService()

	c, err := svc.Create(context.Background(), "user-1", validCustomerRequest("123.456.789-00"))
	require.NoError(t, err)

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "João da Silva", c.Name)
	assert.Equal(t, 12.0, c.InterestRate)
	assert.Equal(t, []string{domain.EventCustomerCreated}, pub.types())
	assert.Equal(t, "user-1", pub.events[0].ActorID)
}

func TestCustomerCreate_Validation(t *testing.T) {
	svc, _, _ := newTestCustomerService()

	tests := []struct {
		name   string
		mutate func(r *domain.CreateCustomerRequest)
		field  string
	}{
		{"short name", func(r *domain.CreateCustomerRequest) { r.Name = "Jo" }, "name"},
		{"bad cpf", func(r *domain.CreateCustomerRequest) { r.CPF = "12345678900" }, "cpf"},
		{"bad email", func(r *domain.CreateCustomerRequest) { r.Email = "joao.example.com" }, "email"},
		{"bad phone", func(r *domain.CreateCustomerRequest) { r.Phone = "11987654321" }, "phone"},
		{"rate too high", func(r *domain.CreateCustomerRequest) { r.InterestRate = ptr(101.0) }, "interestRate"},
		{"missing rate", func(r *domain.CreateCustomerRequest) { r.InterestRate = nil }, "interestRate"},
		{"score too high", func(r *domain.CreateCustomerRequest) { r.CreditScore = ptr(1001) }, "creditScore"},
		{"negative income", func(r *domain.CreateCustomerRequest) { r.MonthlyIncome = ptr(-1.0) }, "monthlyIncome"},
		{"unknown risk", func(r *domain.CreateCustomerRequest) { r.RiskCategory = "EXTREME" }, "riskCategory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCustomerRequest("123.456.789-00")
			tt.mutate(req)
			_, err := svc.Create(context.Background(), "user-1", req)
			var ve *domain.ErrValidation
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestCustomerCreate_PhoneOptional(t *testing.T) {
	svc, _, _ := newTestCustomerService()
	req := validCustomerRequest("123.456.789-00")
	req.Phone = ""

	_, err := svc.Create(context.Background(), "user-1", req)
	assert.NoError(t, err)
}

func TestCustomerCreate_DuplicateCPF(t *testing.T) {
	svc, _, _ := newTestCustomerService()
	ctx := context.Background()

	_, err := svc.Create(ctx, "user-1", validCustomerRequest("123.456.789-00"))
	require.NoError(t, err)

	_, err = svc.Create(ctx, "user-1", validCustomerRequest("123.456.789-00"))
	var ce *domain.ErrConflict
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "CPF already registered", ce.Message)
}

func TestCustomerList_PaginationAndFilters(t *testing.T) {
	svc, _, _ := newTestCustomerService()
	ctx := context.Background()

	for i, cpf := range []string{"111.111.111-11", "222.222.222-22", "333.333.333-33"} {
		req := validCustomerRequest(cpf)
		req.Name = []string{"Ana Souza", "Bruno Lima", "Carla Souza"}[i]
		if i == 2 {
			req.RiskCategory = domain.RiskHigh
		}
		_, err := svc.Create(ctx, "user-1", req)
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, domain.CustomerFilter{Limit: 2, SortBy: "name", SortOrder: "asc"})
	require.NoError(t, err)
	assert.Equal(t, domain.PageMeta{Total: 3, Page: 1, Limit: 2, TotalPages: 2}, page.Meta)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "Ana Souza", page.Data[0].Name)

	page, err = svc.List(ctx, domain.CustomerFilter{Name: "souza"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Meta.Total)
	assert.Equal(t, 10, page.Meta.Limit)

	page, err = svc.List(ctx, domain.CustomerFilter{RiskCategory: domain.RiskHigh})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "Carla Souza", page.Data[0].Name)

	page, err = svc.List(ctx, domain.CustomerFilter{CPF: "999.999.999-99"})
	require.NoError(t, err)
	assert.NotNil(t, page.Data)
	assert.Empty(t, page.Data)
}

func TestCustomerList_RejectsUnknownSort(t *testing.T) {
	svc, _, _ := newTestCustomerService()

	_, err := svc.List(context.Background(), domain.CustomerFilter{SortBy: "password"})
	var ve *domain.ErrValidation
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "sortBy", ve.Field)
}

func TestCustomerGet(t *testing.T) {
	svc, store, _ := newTestCustomerService()
	ctx := context.Background()

	c, err := svc.Create(ctx, "user-1", validCustomerRequest("123.456.789-00"))
	require.NoError(t, err)
	_, err = store.CreateSimulation(ctx, &domain.Simulation{CustomerID: c.ID, RequestedAmount: 1000, Installments: 10, Status: domain.StatusPending}, nil)
	require.NoError(t, err)

	detail, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, detail.ID)
	require.Len(t, detail.Simulations, 1)
	assert.Equal(t, 1000.0, detail.Simulations[0].RequestedAmount)

	_, err = svc.Get(ctx, "missing")
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestCustomerUpdate(t *testing.T) {
	svc, _, _ := newTestCustomerService()
	ctx := context.Background()

	a, err := svc.Create(ctx, "user-1", validCustomerRequest("111.111.111-11"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, "user-1", validCustomerRequest("222.222.222-22"))
	require.NoError(t, err)

	updated, err := svc.Update(ctx, a.ID, &domain.UpdateCustomerRequest{InterestRate: ptr(18.5), Name: ptr("João Atualizado")})
	require.NoError(t, err)
	assert.Equal(t, 18.5, updated.InterestRate)
	assert.Equal(t, "João Atualizado", updated.Name)
	assert.Equal(t, "111.111.111-11", updated.CPF)

	// keeping its own CPF is fine, taking another customer's is not
	_, err = svc.Update(ctx, a.ID, &domain.UpdateCustomerRequest{CPF: ptr("111.111.111-11")})
	require.NoError(t, err)
	_, err = svc.Update(ctx, a.ID, &domain.UpdateCustomerRequest{CPF: ptr("222.222.222-22")})
	var ce *domain.ErrConflict
	assert.ErrorAs(t, err, &ce)

	_, err = svc.Update(ctx, a.ID, &domain.UpdateCustomerRequest{CreditScore: ptr(-5)})
	var ve *domain.ErrValidation
	assert.ErrorAs(t, err, &ve)

	_, err = svc.Update(ctx, "missing", &domain.UpdateCustomerRequest{})
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestCustomerDelete(t *testing.T) {
	svc, store, pub := newTestCustomerService()
	ctx := context.Background()

	withSim, err := svc.Create(ctx, "user-1", validCustomerRequest("111.111.111-11"))
	require.NoError(t, err)
	plain, err := svc.Create(ctx, "user-1", validCustomerRequest("222.222.222-22"))
	require.NoError(t, err)
	_, err = store.CreateSimulation(ctx, &domain.Simulation{CustomerID: withSim.ID, Status: domain.StatusPending}, nil)
	require.NoError(t, err)

	err = svc.Delete(ctx, "admin-1", withSim.ID)
	var ce *domain.ErrConflict
	require.ErrorAs(t, err, &ce)

	require.NoError(t, svc.Delete(ctx, "admin-1", plain.ID))
	assert.Contains(t, pub.types(), domain.EventCustomerDeleted)

	err = svc.Delete(ctx, "admin-1", plain.ID)
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestCustomerCreate_PublishFailureIsNotFatal(t *testing.T) {
	svc, _, pub := newTestCustomerService()
	pub.err = errors.New("broker down")

	c, err := svc.Create(context.Background(), "user-1", validCustomerRequest("123.456.789-00"))
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
}
