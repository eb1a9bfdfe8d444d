package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/ccb-backoffice-go/internal/amortization"
	"github.com/boddenberg/ccb-backoffice-go/internal/domain"
	"github.com/boddenberg/ccb-backoffice-go/internal/infra/observability"
	"github.com/boddenberg/ccb-backoffice-go/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var simulationTracer = otel.Tracer("service/simulation")

// Limits bounds what a simulation may request.
type Limits struct {
	MinAmount       float64
	MaxInstallments int
}

// SimulationService creates simulations, moves them through the approval
// workflow and serves their schedules.
type SimulationService struct {
	customers   port.CustomerStore
	simulations port.SimulationStore
	users       port.UserStore
	cache       port.Cache[*domain.SimulationDetail]
	events      port.EventPublisher
	metrics     *observability.Metrics
	limits      Limits
	now         func() time.Time
	logger      *zap.Logger
}

// NewSimulationService creates the simulation service with all dependencies injected.
func NewSimulationService(
	store port.Store,
	cache port.Cache[*domain.SimulationDetail],
	events port.EventPublisher,
	metrics *observability.Metrics,
	limits Limits,
	logger *zap.Logger,
) *SimulationService {
	return &SimulationService{
		customers:   store,
		simulations: store,
		users:       store,
		cache:       cache,
		events:      events,
		metrics:     metrics,
		limits:      limits,
		now:         time.Now,
		logger:      logger,
	}
}

func cacheKey(id string) string {
	return "simulation:" + id
}

// validateTerms applies the business limits on top of the engine's own checks.
func (s *SimulationService) validateTerms(amount float64, installments int) error {
	if err := validateRange("requestedAmount", amount, s.limits.MinAmount, 1e13); err != nil {
		return &domain.ErrValidation{
			Field:   "requestedAmount",
			Message: fmt.Sprintf("minimum loan amount is R$ %s", decimal.NewFromFloat(s.limits.MinAmount).StringFixed(2)),
		}
	}
	if installments < 1 || installments > s.limits.MaxInstallments {
		return &domain.ErrValidation{
			Field:   "installments",
			Message: fmt.Sprintf("must be between 1 and %d", s.limits.MaxInstallments),
		}
	}
	return nil
}

// ============================================================
// Create: POST /v1/simulations
// ============================================================

func (s *SimulationService) Create(ctx context.Context, actorID string, req *domain.CreateSimulationRequest) (*domain.SimulationDetail, error) {
	ctx, span := simulationTracer.Start(ctx, "SimulationService.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("customer.id", req.CustomerID),
		attribute.Int("installments", req.Installments),
	)

	if req.CustomerID == "" {
		return nil, &domain.ErrValidation{Field: "customerId", Message: "is required"}
	}
	if err := s.validateTerms(req.RequestedAmount, req.Installments); err != nil {
		return nil, err
	}

	customer, err := s.customers.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	if customer == nil {
		return nil, &domain.ErrNotFound{Resource: "customer", ID: req.CustomerID}
	}

	calc := amortization.Calculate(req.RequestedAmount, req.Installments, customer.InterestRate)
	now := s.now().UTC()
	lines := amortization.GenerateSchedule(calc, now)

	created, err := s.simulations.CreateSimulation(ctx, domain.NewSimulation(customer.ID, actorID, calc, now), domain.NewSchedule("", lines))
	if err != nil {
		return nil, fmt.Errorf("create simulation: %w", err)
	}
	span.SetAttributes(attribute.String("simulation.id", created.ID))

	creator, err := s.users.GetUserByID(ctx, actorID)
	if err != nil {
		s.logger.Warn("create simulation: load creator", zap.String("user_id", actorID), zap.Error(err))
	}

	s.metrics.RecordSimulationCreated(created.RequestedAmount)
	s.logger.Info("simulation created",
		zap.String("simulation_id", created.ID),
		zap.String("customer_id", customer.ID),
		zap.String("user_id", actorID),
		zap.Float64("requested_amount", created.RequestedAmount),
		zap.Int("installments", created.Installments),
		zap.Float64("installment_value", created.InstallmentValue),
	)
	s.publish(ctx, domain.Event{
		Type:    domain.EventSimulationCreated,
		Key:     created.ID,
		ActorID: actorID,
		Payload: map[string]any{
			"customerId":       customer.ID,
			"requestedAmount":  created.RequestedAmount,
			"installments":     created.Installments,
			"interestRate":     created.InterestRate,
			"installmentValue": created.InstallmentValue,
		},
	})

	return &domain.SimulationDetail{
		Simulation: *created,
		Customer:   customer,
		CreatedBy:  creator.Summary(),
		Schedule:   domain.NewSchedule(created.ID, lines),
	}, nil
}

// ============================================================
// Quote: POST /v1/simulations/quote
// ============================================================

// Quote runs the engine without persisting anything.
func (s *SimulationService) Quote(ctx context.Context, req *domain.QuoteRequest) (*domain.Quote, error) {
	_, span := simulationTracer.Start(ctx, "SimulationService.Quote")
	defer span.End()

	if err := s.validateTerms(req.RequestedAmount, req.Installments); err != nil {
		return nil, err
	}
	if err := validateRange("annualRate", req.AnnualRate, 0, 100); err != nil {
		return nil, err
	}
	terms := amortization.LoanTerms{Principal: req.RequestedAmount, Periods: req.Installments, AnnualRatePercent: req.AnnualRate}
	if err := terms.Validate(); err != nil {
		return nil, &domain.ErrValidation{Field: "terms", Message: err.Error()}
	}

	calc := amortization.Calculate(terms.Principal, terms.Periods, terms.AnnualRatePercent)
	return &domain.Quote{
		LoanCalculation: calc,
		Schedule:        amortization.GenerateSchedule(calc, s.now().UTC()),
	}, nil
}

// ============================================================
// List: GET /v1/simulations
// ============================================================

func (s *SimulationService) List(ctx context.Context, f domain.SimulationFilter) (*domain.Page[domain.SimulationListItem], error) {
	ctx, span := simulationTracer.Start(ctx, "SimulationService.List")
	defer span.End()

	if f.Status != "" && !f.Status.Valid() {
		return nil, &domain.ErrValidation{Field: "status", Message: "unknown status " + string(f.Status)}
	}
	f.Page, f.Limit = normalizePage(f.Page, f.Limit)
	sortBy, sortOrder, err := normalizeSort(domain.SimulationSortColumns, f.SortBy, f.SortOrder)
	if err != nil {
		return nil, err
	}
	f.SortBy, f.SortOrder = sortBy, sortOrder

	var (
		sims  []domain.Simulation
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sims, err = s.simulations.ListSimulations(gctx, f)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.simulations.CountSimulations(gctx, f)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("list simulations: %w", err)
	}

	customerIDs := make([]string, 0, len(sims))
	userIDs := make([]string, 0, len(sims))
	for _, sim := range sims {
		customerIDs = append(customerIDs, sim.CustomerID)
		userIDs = append(userIDs, sim.CreatedByID)
	}

	var (
		customers map[string]*domain.Customer
		users     map[string]*domain.User
	)
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		customers, err = s.customers.GetCustomersByIDs(gctx, unique(customerIDs))
		return err
	})
	g.Go(func() error {
		var err error
		users, err = s.users.GetUsersByIDs(gctx, unique(userIDs))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("enrich simulations: %w", err)
	}

	items := make([]domain.SimulationListItem, 0, len(sims))
	for _, sim := range sims {
		items = append(items, domain.SimulationListItem{
			Simulation: sim,
			Customer:   customers[sim.CustomerID].Summary(),
			CreatedBy:  users[sim.CreatedByID].Summary(),
		})
	}
	return &domain.Page[domain.SimulationListItem]{Data: items, Meta: domain.NewPageMeta(total, f.Page, f.Limit)}, nil
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ============================================================
// Get: GET /v1/simulations/{id}
// ============================================================

func (s *SimulationService) Get(ctx context.Context, id string) (*domain.SimulationDetail, error) {
	ctx, span := simulationTracer.Start(ctx, "SimulationService.Get")
	defer span.End()
	span.SetAttributes(attribute.String("simulation.id", id))

	if detail, ok := s.cache.Get(cacheKey(id)); ok && detail != nil {
		s.metrics.IncrCacheHit("simulation")
		return detail, nil
	}
	s.metrics.IncrCacheMiss("simulation")

	sim, err := s.simulations.GetSimulation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get simulation: %w", err)
	}
	if sim == nil {
		return nil, &domain.ErrNotFound{Resource: "simulation", ID: id}
	}

	detail := &domain.SimulationDetail{Simulation: *sim}
	var creator *domain.User
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		detail.Customer, err = s.customers.GetCustomer(gctx, sim.CustomerID)
		return err
	})
	g.Go(func() error {
		var err error
		creator, err = s.users.GetUserByID(gctx, sim.CreatedByID)
		return err
	})
	g.Go(func() error {
		var err error
		detail.Schedule, err = s.simulations.GetSchedule(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load simulation detail: %w", err)
	}
	detail.CreatedBy = creator.Summary()
	if detail.Schedule == nil {
		detail.Schedule = []domain.ScheduleEntry{}
	}

	s.cache.Set(cacheKey(id), detail)
	return detail, nil
}

// ============================================================
// Schedule: GET /v1/simulations/{id}/schedule
// ============================================================

func (s *SimulationService) Schedule(ctx context.Context, id string) (*domain.ScheduleView, error) {
	ctx, span := simulationTracer.Start(ctx, "SimulationService.Schedule")
	defer span.End()

	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var principal, interest, total decimal.Decimal
	for _, line := range detail.Schedule {
		principal = principal.Add(decimal.NewFromFloat(line.PrincipalPortion))
		interest = interest.Add(decimal.NewFromFloat(line.InterestPortion))
		total = total.Add(decimal.NewFromFloat(line.TotalPayment))
	}

	sim := detail.Simulation
	return &domain.ScheduleView{
		Simulation: sim.Summary(),
		Summary: domain.ScheduleSummary{
			RequestedAmount:  sim.RequestedAmount,
			InstallmentValue: sim.InstallmentValue,
			TotalAmount:      sim.TotalAmount,
			TotalInterest:    sim.TotalInterest,
			MonthlyRate:      MonthlyRatePercent(sim.InterestRate),
		},
		Schedule: detail.Schedule,
		Totals: domain.ScheduleTotals{
			Principal: principal.Round(2).InexactFloat64(),
			Interest:  interest.Round(2).InexactFloat64(),
			Total:     total.Round(2).InexactFloat64(),
		},
	}, nil
}

// MonthlyRatePercent is the nominal monthly rate in percent, to four places.
func MonthlyRatePercent(annualRatePercent float64) float64 {
	return decimal.NewFromFloat(annualRatePercent).Div(decimal.NewFromInt(12)).Round(4).InexactFloat64()
}

// ============================================================
// UpdateStatus: PATCH /v1/simulations/{id}
// ============================================================

func (s *SimulationService) UpdateStatus(ctx context.Context, actorID, id string, req *domain.UpdateStatusRequest) (*domain.Simulation, error) {
	ctx, span := simulationTracer.Start(ctx, "SimulationService.UpdateStatus")
	defer span.End()
	span.SetAttributes(
		attribute.String("simulation.id", id),
		attribute.String("simulation.status", string(req.Status)),
	)

	if !req.Status.Valid() {
		return nil, &domain.ErrValidation{Field: "status", Message: "must be PENDING, APPROVED, REJECTED or CONVERTED"}
	}

	sim, err := s.simulations.GetSimulation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get simulation: %w", err)
	}
	if sim == nil {
		return nil, &domain.ErrNotFound{Resource: "simulation", ID: id}
	}
	if sim.Status == req.Status {
		return sim, nil
	}
	if !sim.Status.CanTransitionTo(req.Status) {
		return nil, &domain.ErrInvalidTransition{From: sim.Status, To: req.Status}
	}

	updated, err := s.simulations.UpdateSimulationStatus(ctx, id, req.Status, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("update simulation status: %w", err)
	}
	s.cache.Delete(cacheKey(id))

	s.metrics.IncrStatusChange(string(updated.Status))
	s.logger.Info("simulation status changed",
		zap.String("simulation_id", id),
		zap.String("user_id", actorID),
		zap.String("from", string(sim.Status)),
		zap.String("status", string(updated.Status)),
	)
	s.publish(ctx, domain.Event{
		Type:    domain.EventSimulationStatusChanged,
		Key:     id,
		ActorID: actorID,
		Payload: map[string]any{"from": sim.Status, "to": updated.Status},
	})

	return updated, nil
}

// ============================================================
// Delete: DELETE /v1/simulations/{id}
// ============================================================

func (s *SimulationService) Delete(ctx context.Context, actorID, id string) error {
	ctx, span := simulationTracer.Start(ctx, "SimulationService.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("simulation.id", id))

	if err := s.simulations.DeleteSimulation(ctx, id); err != nil {
		return fmt.Errorf("delete simulation: %w", err)
	}
	s.cache.Delete(cacheKey(id))

	s.logger.Info("simulation deleted", zap.String("simulation_id", id), zap.String("user_id", actorID))
	s.publish(ctx, domain.Event{Type: domain.EventSimulationDeleted, Key: id, ActorID: actorID})
	return nil
}

func (s *SimulationService) publish(ctx context.Context, evt domain.Event) {
	evt.OccurredAt = s.now().UTC()
	if err := s.events.Publish(ctx, evt); err != nil {
		s.metrics.IncrEventPublished("error")
		s.logger.Error("publish event", zap.String("type", evt.Type), zap.String("key", evt.Key), zap.Error(err))
		return
	}
	s.metrics.IncrEventPublished("ok")
}
