package observability

import (
	"time"

	"github.com/boddenberg/ccb-backoffice-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "ccb"

// Metrics holds all Prometheus metrics of the service.
type Metrics struct {
	// Registry owns these metrics and backs the /metrics endpoint.
	Registry *prometheus.Registry

	requestDuration    *prometheus.HistogramVec
	externalErrors     *prometheus.CounterVec
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	simulationsCreated prometheus.Counter
	statusChanges      *prometheus.CounterVec
	requestedAmount    prometheus.Histogram
	eventsPublished    *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. A private registry lets tests call NewMetrics
// repeatedly without duplicate collector panics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of service operations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "external_errors_total",
				Help:      "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total cache misses.",
			},
			[]string{"cache"},
		),
		simulationsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "simulations_created_total",
				Help:      "Total simulations persisted.",
			},
		),
		statusChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "simulation_status_changes_total",
				Help:      "Simulation status changes by target status.",
			},
			[]string{"status"},
		),
		requestedAmount: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "requested_amount_brl",
				Help:      "Requested loan amounts in BRL.",
				Buckets:   prometheus.ExponentialBuckets(100, 4, 9), // 100 .. 6.5M
			},
		),
		eventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Lifecycle events by publish result.",
			},
			[]string{"result"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordSimulationCreated counts a new simulation and its amount.
func (m *Metrics) RecordSimulationCreated(amount float64) {
	m.simulationsCreated.Inc()
	m.requestedAmount.Observe(amount)
}

// IncrStatusChange counts a status change to status.
func (m *Metrics) IncrStatusChange(status string) {
	m.statusChanges.WithLabelValues(status).Inc()
}

// IncrEventPublished counts a publish attempt; result is "ok" or "error".
func (m *Metrics) IncrEventPublished(result string) {
	m.eventsPublished.WithLabelValues(result).Inc()
}

// Snapshot gathers the business counters for GET /v1/metrics/summary.
func (m *Metrics) Snapshot() *domain.MetricsSummary {
	families, err := m.Registry.Gather()
	if err != nil {
		families = nil
	}
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}

	hits := sumCounter(byName["ccb_cache_hits_total"])
	misses := sumCounter(byName["ccb_cache_misses_total"])
	hitRate := 0.0
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.MetricsSummary{
		SimulationsCreated: sumCounter(byName["ccb_simulations_created_total"]),
		StatusChanges:      counterByLabel(byName["ccb_simulation_status_changes_total"], "status"),
		CacheHits:          hits,
		CacheMisses:        misses,
		CacheHitRate:       hitRate,
		EventsPublished:    counterByLabel(byName["ccb_events_published_total"], "result"),
		ExternalErrors:     counterByLabel(byName["ccb_external_errors_total"], "service"),
	}
}

func sumCounter(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		total += m.GetCounter().GetValue()
	}
	return total
}

// counterByLabel splits a counter family by the value of one label.
func counterByLabel(f *dto.MetricFamily, label string) map[string]float64 {
	out := map[string]float64{}
	if f == nil {
		return out
	}
	for _, m := range f.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label {
				out[lp.GetValue()] += m.GetCounter().GetValue()
			}
		}
	}
	return out
}
