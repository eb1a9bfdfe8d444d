// Package memory is the in-process persistence backend. It implements every
// store port behind one mutex and is the default for local runs and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/ccb-backoffice-go/internal/domain"

	"github.com/google/uuid"
)

// Store keeps all entities in maps. Values are copied on the way in and out
// so callers never share memory with the store.
type Store struct {
	mu sync.RWMutex

	customers     map[string]domain.Customer
	simulations   map[string]domain.Simulation
	schedules     map[string][]domain.ScheduleEntry
	users         map[string]domain.User
	refreshTokens map[string]domain.RefreshToken // by token hash

	now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		customers:     make(map[string]domain.Customer),
		simulations:   make(map[string]domain.Simulation),
		schedules:     make(map[string][]domain.ScheduleEntry),
		users:         make(map[string]domain.User),
		refreshTokens: make(map[string]domain.RefreshToken),
		now:           time.Now,
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// ============================================================
// Customers
// ============================================================

func (s *Store) CreateCustomer(_ context.Context, c *domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.customers {
		if existing.CPF == c.CPF {
			return nil, &domain.ErrConflict{Message: "CPF already registered"}
		}
	}

	out := *c
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	s.customers[out.ID] = out
	return &out, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *Store) GetCustomerByCPF(_ context.Context, cpf string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.customers {
		if c.CPF == cpf {
			return &c, nil
		}
	}
	return nil, nil
}

func (s *Store) GetCustomersByIDs(_ context.Context, ids []string) (map[string]*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*domain.Customer, len(ids))
	for _, id := range ids {
		if c, ok := s.customers[id]; ok {
			out[id] = &c
		}
	}
	return out, nil
}

func (s *Store) ListCustomers(_ context.Context, f domain.CustomerFilter) ([]domain.Customer, error) {
	s.mu.RLock()
	matched := s.filterCustomers(f)
	s.mu.RUnlock()

	less := customerLess(f.SortBy)
	desc := f.SortOrder == domain.SortDesc
	sort.SliceStable(matched, func(i, j int) bool {
		if desc {
			return less(matched[j], matched[i])
		}
		return less(matched[i], matched[j])
	})

	return paginate(matched, f.Offset(), f.Limit), nil
}

func (s *Store) CountCustomers(_ context.Context, f domain.CustomerFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filterCustomers(f)), nil
}

func (s *Store) UpdateCustomer(_ context.Context, c *domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[c.ID]; !ok {
		return nil, &domain.ErrNotFound{Resource: "customer", ID: c.ID}
	}
	for id, existing := range s.customers {
		if id != c.ID && existing.CPF == c.CPF {
			return nil, &domain.ErrConflict{Message: "CPF already registered"}
		}
	}

	out := *c
	s.customers[c.ID] = out
	return &out, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[id]; !ok {
		return &domain.ErrNotFound{Resource: "customer", ID: id}
	}
	for _, sim := range s.simulations {
		if sim.CustomerID == id {
			return &domain.ErrConflict{Message: "customer has simulations"}
		}
	}
	delete(s.customers, id)
	return nil
}

// filterCustomers must be called with the lock held.
func (s *Store) filterCustomers(f domain.CustomerFilter) []domain.Customer {
	name := strings.ToLower(f.Name)
	out := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if name != "" && !strings.Contains(strings.ToLower(c.Name), name) {
			continue
		}
		if f.CPF != "" && c.CPF != f.CPF {
			continue
		}
		if f.RiskCategory != "" && c.RiskCategory != f.RiskCategory {
			continue
		}
		out = append(out, c)
	}
	return out
}

func customerLess(sortBy string) func(a, b domain.Customer) bool {
	switch sortBy {
	case "name":
		return func(a, b domain.Customer) bool { return a.Name < b.Name }
	case "cpf":
		return func(a, b domain.Customer) bool { return a.CPF < b.CPF }
	case "email":
		return func(a, b domain.Customer) bool { return a.Email < b.Email }
	case "creditScore":
		return func(a, b domain.Customer) bool { return a.CreditScore < b.CreditScore }
	default:
		return func(a, b domain.Customer) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}
}

// ============================================================
// Simulations
// ============================================================

func (s *Store) CreateSimulation(_ context.Context, sim *domain.Simulation, schedule []domain.ScheduleEntry) (*domain.Simulation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[sim.CustomerID]; !ok {
		return nil, &domain.ErrNotFound{Resource: "customer", ID: sim.CustomerID}
	}

	out := *sim
	if out.ID == "" {
		out.ID = uuid.NewString()
	}

	lines := make([]domain.ScheduleEntry, len(schedule))
	for i, e := range schedule {
		e.SimulationID = out.ID
		lines[i] = e
	}

	s.simulations[out.ID] = out
	s.schedules[out.ID] = lines
	return &out, nil
}

func (s *Store) GetSimulation(_ context.Context, id string) (*domain.Simulation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sim, ok := s.simulations[id]
	if !ok {
		return nil, nil
	}
	return &sim, nil
}

func (s *Store) GetSchedule(_ context.Context, simulationID string) ([]domain.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := s.schedules[simulationID]
	out := make([]domain.ScheduleEntry, len(lines))
	copy(out, lines)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *Store) ListSimulations(_ context.Context, f domain.SimulationFilter) ([]domain.Simulation, error) {
	s.mu.RLock()
	matched := s.filterSimulations(f)
	s.mu.RUnlock()

	less := simulationLess(f.SortBy)
	desc := f.SortOrder == domain.SortDesc
	sort.SliceStable(matched, func(i, j int) bool {
		if desc {
			return less(matched[j], matched[i])
		}
		return less(matched[i], matched[j])
	})

	return paginate(matched, f.Offset(), f.Limit), nil
}

func (s *Store) CountSimulations(_ context.Context, f domain.SimulationFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filterSimulations(f)), nil
}

func (s *Store) ListSimulationsByCustomer(_ context.Context, customerID string) ([]domain.Simulation, error) {
	s.mu.RLock()
	out := s.filterSimulations(domain.SimulationFilter{CustomerID: customerID})
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateSimulationStatus(_ context.Context, id string, status domain.SimulationStatus, updatedAt time.Time) (*domain.Simulation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sim, ok := s.simulations[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "simulation", ID: id}
	}
	sim.Status = status
	sim.UpdatedAt = updatedAt
	s.simulations[id] = sim
	return &sim, nil
}

func (s *Store) DeleteSimulation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.simulations[id]; !ok {
		return &domain.ErrNotFound{Resource: "simulation", ID: id}
	}
	delete(s.simulations, id)
	delete(s.schedules, id)
	return nil
}

// filterSimulations must be called with the lock held.
func (s *Store) filterSimulations(f domain.SimulationFilter) []domain.Simulation {
	out := make([]domain.Simulation, 0, len(s.simulations))
	for _, sim := range s.simulations {
		if f.CustomerID != "" && sim.CustomerID != f.CustomerID {
			continue
		}
		if f.CreatedByID != "" && sim.CreatedByID != f.CreatedByID {
			continue
		}
		if f.Status != "" && sim.Status != f.Status {
			continue
		}
		out = append(out, sim)
	}
	return out
}

func simulationLess(sortBy string) func(a, b domain.Simulation) bool {
	switch sortBy {
	case "requestedAmount":
		return func(a, b domain.Simulation) bool { return a.RequestedAmount < b.RequestedAmount }
	case "installments":
		return func(a, b domain.Simulation) bool { return a.Installments < b.Installments }
	case "status":
		return func(a, b domain.Simulation) bool { return a.Status < b.Status }
	default:
		return func(a, b domain.Simulation) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}
}

// ============================================================
// Users / refresh tokens
// ============================================================

func (s *Store) CreateUser(_ context.Context, u *domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return nil, &domain.ErrConflict{Message: "email already registered"}
		}
	}

	out := *u
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	s.users[out.ID] = out
	return &out, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, nil
}

func (s *Store) GetUsersByIDs(_ context.Context, ids []string) (map[string]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*domain.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = &u
		}
	}
	return out, nil
}

func (s *Store) UpdateCredentials(_ context.Context, userID string, upd domain.CredentialUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return &domain.ErrNotFound{Resource: "user", ID: userID}
	}
	u.FailedAttempts = upd.FailedAttempts
	u.LockedUntil = upd.LockedUntil
	if upd.LastLoginAt != nil {
		u.LastLoginAt = upd.LastLoginAt
	}
	if upd.PasswordHash != "" {
		u.PasswordHash = upd.PasswordHash
	}
	u.UpdatedAt = s.now()
	s.users[userID] = u
	return nil
}

func (s *Store) StoreRefreshToken(_ context.Context, userID, tokenHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshTokens[tokenHash] = domain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
	}
	return nil
}

// GetRefreshToken returns only tokens that were not revoked.
func (s *Store) GetRefreshToken(_ context.Context, tokenHash string) (*domain.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.refreshTokens[tokenHash]
	if !ok || t.Revoked {
		return nil, nil
	}
	return &t, nil
}

func (s *Store) RevokeRefreshToken(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.refreshTokens[tokenHash]; ok {
		t.Revoked = true
		s.refreshTokens[tokenHash] = t
	}
	return nil
}

func (s *Store) RevokeAllRefreshTokens(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for h, t := range s.refreshTokens {
		if t.UserID == userID {
			t.Revoked = true
			s.refreshTokens[h] = t
		}
	}
	return nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
