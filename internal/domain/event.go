package domain

import "time"

// Event types published on the simulations topic.
const (
	EventSimulationCreated       = "simulation.created"
	EventSimulationStatusChanged = "simulation.status_changed"
	EventSimulationDeleted       = "simulation.deleted"
	EventCustomerCreated         = "customer.created"
	EventCustomerDeleted         = "customer.deleted"
)

// Event is a lifecycle notification. Key is the aggregate id and is used as
// the partition key so events of one simulation stay ordered.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Key        string         `json:"key"`
	ActorID    string         `json:"actorId,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
	Payload    map[string]any `json:"payload,omitempty"`
}
