// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/ccb-backoffice-go/internal/domain"
)

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// CustomerStore persists customers.
// Lookups that find nothing return (nil, nil); the service decides whether
// that is an error.
type CustomerStore interface {
	CreateCustomer(ctx context.Context, c *domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	GetCustomerByCPF(ctx context.Context, cpf string) (*domain.Customer, error)
	GetCustomersByIDs(ctx context.Context, ids []string) (map[string]*domain.Customer, error)
	ListCustomers(ctx context.Context, f domain.CustomerFilter) ([]domain.Customer, error)
	CountCustomers(ctx context.Context, f domain.CustomerFilter) (int, error)
	UpdateCustomer(ctx context.Context, c *domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error
}

// SimulationStore persists simulations and their schedules.
// CreateSimulation must store the simulation and every schedule line
// atomically: either both are visible or neither is.
type SimulationStore interface {
	CreateSimulation(ctx context.Context, sim *domain.Simulation, schedule []domain.ScheduleEntry) (*domain.Simulation, error)
	GetSimulation(ctx context.Context, id string) (*domain.Simulation, error)
	GetSchedule(ctx context.Context, simulationID string) ([]domain.ScheduleEntry, error)
	ListSimulations(ctx context.Context, f domain.SimulationFilter) ([]domain.Simulation, error)
	CountSimulations(ctx context.Context, f domain.SimulationFilter) (int, error)
	ListSimulationsByCustomer(ctx context.Context, customerID string) ([]domain.Simulation, error)
	UpdateSimulationStatus(ctx context.Context, id string, status domain.SimulationStatus, updatedAt time.Time) (*domain.Simulation, error)
	DeleteSimulation(ctx context.Context, id string) error
}

// UserStore persists back-office users and their refresh tokens.
type UserStore interface {
	CreateUser(ctx context.Context, u *domain.User) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error)
	UpdateCredentials(ctx context.Context, userID string, upd domain.CredentialUpdate) error

	StoreRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	RevokeAllRefreshTokens(ctx context.Context, userID string) error
}

// Store is everything a persistence backend provides.
type Store interface {
	CustomerStore
	SimulationStore
	UserStore
	Ping(ctx context.Context) error
}

// EventPublisher emits lifecycle events to the message bus.
type EventPublisher interface {
	Publish(ctx context.Context, evt domain.Event) error
	Close() error
}
