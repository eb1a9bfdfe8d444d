package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/ccb-backoffice-go/internal/domain"
	"github.com/boddenberg/ccb-backoffice-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var customerTracer = otel.Tracer("service/customer")

// CustomerService manages borrowers.
type CustomerService struct {
	customers   port.CustomerStore
	simulations port.SimulationStore
	events      port.EventPublisher
	now         func() time.Time
	logger      *zap.Logger
}

// NewCustomerService creates a new customer service.
func NewCustomerService(customers port.CustomerStore, simulations port.SimulationStore, events port.EventPublisher, logger *zap.Logger) *CustomerService {
	return &CustomerService{
		customers:   customers,
		simulations: simulations,
		events:      events,
		now:         time.Now,
		logger:      logger,
	}
}

// validateCustomer checks every field of a complete customer record.
func validateCustomer(c *domain.Customer) error {
	if err := validateLength("name", c.Name, 3, 100); err != nil {
		return err
	}
	if !cpfPattern.MatchString(c.CPF) {
		return &domain.ErrValidation{Field: "cpf", Message: "must match XXX.XXX.XXX-XX"}
	}
	if err := validateEmail("email", c.Email); err != nil {
		return err
	}
	if c.Phone != "" && !phonePattern.MatchString(c.Phone) {
		return &domain.ErrValidation{Field: "phone", Message: "must match (XX) XXXXX-XXXX"}
	}
	if err := validateRange("interestRate", c.InterestRate, 0, 100); err != nil {
		return err
	}
	if c.CreditScore < 0 || c.CreditScore > 1000 {
		return &domain.ErrValidation{Field: "creditScore", Message: "must be between 0 and 1000"}
	}
	if err := validateRange("monthlyIncome", c.MonthlyIncome, 0, 1e13); err != nil {
		return err
	}
	if !c.RiskCategory.Valid() {
		return &domain.ErrValidation{Field: "riskCategory", Message: "must be LOW, MEDIUM or HIGH"}
	}
	return nil
}

// ============================================================
// Create: POST /v1/customers
// ============================================================

func (s *CustomerService) Create(ctx context.Context, actorID string, req *domain.CreateCustomerRequest) (*domain.Customer, error) {
	ctx, span := customerTracer.Start(ctx, "CustomerService.Create")
	defer span.End()

	switch {
	case req.InterestRate == nil:
		return nil, &domain.ErrValidation{Field: "interestRate", Message: "is required"}
	case req.CreditScore == nil:
		return nil, &domain.ErrValidation{Field: "creditScore", Message: "is required"}
	case req.MonthlyIncome == nil:
		return nil, &domain.ErrValidation{Field: "monthlyIncome", Message: "is required"}
	}

	now := s.now().UTC()
	c := &domain.Customer{
		Name:          strings.TrimSpace(req.Name),
		CPF:           strings.TrimSpace(req.CPF),
		Email:         strings.TrimSpace(req.Email),
		Phone:         strings.TrimSpace(req.Phone),
		InterestRate:  *req.InterestRate,
		CreditScore:   *req.CreditScore,
		MonthlyIncome: *req.MonthlyIncome,
		RiskCategory:  req.RiskCategory,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := validateCustomer(c); err != nil {
		return nil, err
	}

	existing, err := s.customers.GetCustomerByCPF(ctx, c.CPF)
	if err != nil {
		return nil, fmt.Errorf("check existing customer: %w", err)
	}
	if existing != nil {
		return nil, &domain.ErrConflict{Message: "CPF already registered"}
	}

	created, err := s.customers.CreateCustomer(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	span.SetAttributes(attribute.String("customer.id", created.ID))

	s.logger.Info("customer created",
		zap.String("customer_id", created.ID),
		zap.String("user_id", actorID),
		zap.String("risk_category", string(created.RiskCategory)),
	)
	s.publish(ctx, domain.Event{
		Type:    domain.EventCustomerCreated,
		Key:     created.ID,
		ActorID: actorID,
		Payload: map[string]any{"riskCategory": created.RiskCategory, "creditScore": created.CreditScore},
	})

	return created, nil
}

// ============================================================
// List: GET /v1/customers
// ============================================================

func (s *CustomerService) List(ctx context.Context, f domain.CustomerFilter) (*domain.Page[domain.Customer], error) {
	ctx, span := customerTracer.Start(ctx, "CustomerService.List")
	defer span.End()

	if f.RiskCategory != "" && !f.RiskCategory.Valid() {
		return nil, &domain.ErrValidation{Field: "riskCategory", Message: "must be LOW, MEDIUM or HIGH"}
	}
	f.Page, f.Limit = normalizePage(f.Page, f.Limit)
	sortBy, sortOrder, err := normalizeSort(domain.CustomerSortColumns, f.SortBy, f.SortOrder)
	if err != nil {
		return nil, err
	}
	f.SortBy, f.SortOrder = sortBy, sortOrder

	var (
		items []domain.Customer
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = s.customers.ListCustomers(gctx, f)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.customers.CountCustomers(gctx, f)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}

	if items == nil {
		items = []domain.Customer{}
	}
	return &domain.Page[domain.Customer]{Data: items, Meta: domain.NewPageMeta(total, f.Page, f.Limit)}, nil
}

// ============================================================
// Get: GET /v1/customers/{id}
// ============================================================

func (s *CustomerService) Get(ctx context.Context, id string) (*domain.CustomerDetail, error) {
	ctx, span := customerTracer.Start(ctx, "CustomerService.Get")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", id))

	var (
		c    *domain.Customer
		sims []domain.Simulation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		c, err = s.customers.GetCustomer(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		sims, err = s.simulations.ListSimulationsByCustomer(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	if c == nil {
		return nil, &domain.ErrNotFound{Resource: "customer", ID: id}
	}

	detail := &domain.CustomerDetail{Customer: *c, Simulations: make([]domain.SimulationSummary, 0, len(sims))}
	for i := range sims {
		detail.Simulations = append(detail.Simulations, sims[i].Summary())
	}
	return detail, nil
}

// ============================================================
// Update: PATCH /v1/customers/{id}
// ============================================================

func (s *CustomerService) Update(ctx context.Context, id string, req *domain.UpdateCustomerRequest) (*domain.Customer, error) {
	ctx, span := customerTracer.Start(ctx, "CustomerService.Update")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", id))

	c, err := s.customers.GetCustomer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	if c == nil {
		return nil, &domain.ErrNotFound{Resource: "customer", ID: id}
	}

	req.Apply(c)
	c.Name = strings.TrimSpace(c.Name)
	c.CPF = strings.TrimSpace(c.CPF)
	c.Email = strings.TrimSpace(c.Email)
	c.Phone = strings.TrimSpace(c.Phone)
	if err := validateCustomer(c); err != nil {
		return nil, err
	}

	if req.CPF != nil {
		other, err := s.customers.GetCustomerByCPF(ctx, c.CPF)
		if err != nil {
			return nil, fmt.Errorf("check existing customer: %w", err)
		}
		if other != nil && other.ID != id {
			return nil, &domain.ErrConflict{Message: "CPF already registered"}
		}
	}

	c.UpdatedAt = s.now().UTC()
	updated, err := s.customers.UpdateCustomer(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("update customer: %w", err)
	}

	s.logger.Info("customer updated", zap.String("customer_id", id))
	return updated, nil
}

// ============================================================
// Delete: DELETE /v1/customers/{id}
// ============================================================

func (s *CustomerService) Delete(ctx context.Context, actorID, id string) error {
	ctx, span := customerTracer.Start(ctx, "CustomerService.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", id))

	c, err := s.customers.GetCustomer(ctx, id)
	if err != nil {
		return fmt.Errorf("get customer: %w", err)
	}
	if c == nil {
		return &domain.ErrNotFound{Resource: "customer", ID: id}
	}

	sims, err := s.simulations.ListSimulationsByCustomer(ctx, id)
	if err != nil {
		return fmt.Errorf("list customer simulations: %w", err)
	}
	if len(sims) > 0 {
		return &domain.ErrConflict{Message: "customer has simulations"}
	}

	if err := s.customers.DeleteCustomer(ctx, id); err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}

	s.logger.Info("customer deleted", zap.String("customer_id", id), zap.String("user_id", actorID))
	s.publish(ctx, domain.Event{Type: domain.EventCustomerDeleted, Key: id, ActorID: actorID})
	return nil
}

func (s *CustomerService) publish(ctx context.Context, evt domain.Event) {
	evt.OccurredAt = s.now().UTC()
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Error("publish event", zap.String("type", evt.Type), zap.String("key", evt.Key), zap.Error(err))
	}
}
