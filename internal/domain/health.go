package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
	Error       string `json:"error,omitempty"`
}

// MetricsSummary is returned by GET /v1/metrics/summary.
type MetricsSummary struct {
	SimulationsCreated float64            `json:"simulationsCreated"`
	StatusChanges      map[string]float64 `json:"statusChanges"`
	CacheHits          float64            `json:"cacheHits"`
	CacheMisses        float64            `json:"cacheMisses"`
	CacheHitRate       float64            `json:"cacheHitRate"`
	EventsPublished    map[string]float64 `json:"eventsPublished"`
	ExternalErrors     map[string]float64 `json:"externalErrors"`
}

// ============================================================
// Envelopes
// ============================================================

// SuccessEnvelope wraps every successful JSON response.
type SuccessEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// ErrorEnvelope wraps every error response.
type ErrorEnvelope struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}
