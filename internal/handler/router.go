package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/ccb-backoffice-go/internal/ccb"
	"github.com/boddenberg/ccb-backoffice-go/internal/domain"
	"github.com/boddenberg/ccb-backoffice-go/internal/infra/observability"
	"github.com/boddenberg/ccb-backoffice-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies groups what the router serves.
type Dependencies struct {
	Auth        *service.AuthService
	Customers   *service.CustomerService
	Simulations *service.SimulationService
	Renderer    *ccb.Renderer
	Store       Pinger
	Metrics     *observability.Metrics
	CORSOrigins []string
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(deps Dependencies, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.TracingMiddleware)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware(deps.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(deps.Store, logger))
	r.Get("/readyz", readyzHandler(deps.Store))
	r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		if deps.Auth == nil {
			r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusServiceUnavailable, "auth service unavailable")
			}))
			return
		}

		// =============================================
		// Auth
		// =============================================
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authRegisterHandler(deps.Auth, logger))
			r.Post("/login", authLoginHandler(deps.Auth, logger))
			r.Post("/refresh", authRefreshHandler(deps.Auth, logger))

			r.Group(func(r chi.Router) {
				r.Use(JWTAuthMiddleware(deps.Auth, logger))
				r.Post("/logout", authLogoutHandler(deps.Auth, logger))
				r.Get("/me", authMeHandler(deps.Auth, logger))
				r.Put("/password", authChangePasswordHandler(deps.Auth, logger))
			})
		})

		// Everything below needs a token.
		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(deps.Auth, logger))
			staff := RequireRoles(logger, domain.RoleAdmin, domain.RoleOperator)
			admin := RequireRoles(logger, domain.RoleAdmin)

			// =============================================
			// Customers
			// =============================================
			r.Route("/customers", func(r chi.Router) {
				r.Get("/", listCustomersHandler(deps.Customers, logger))
				r.With(staff).Post("/", createCustomerHandler(deps.Customers, logger))
				r.Get("/{id}", getCustomerHandler(deps.Customers, logger))
				r.With(staff).Patch("/{id}", updateCustomerHandler(deps.Customers, logger))
				r.With(admin).Delete("/{id}", deleteCustomerHandler(deps.Customers, logger))
			})

			// =============================================
			// Simulations
			// =============================================
			r.Route("/simulations", func(r chi.Router) {
				r.Get("/", listSimulationsHandler(deps.Simulations, logger))
				r.With(staff).Post("/", createSimulationHandler(deps.Simulations, logger))
				r.Post("/quote", quoteHandler(deps.Simulations, logger))
				r.Get("/{id}", getSimulationHandler(deps.Simulations, logger))
				r.Get("/{id}/schedule", getScheduleHandler(deps.Simulations, logger))
				r.Post("/{id}/ccb", ccbHandler(deps.Simulations, deps.Renderer, logger))
				r.With(staff).Patch("/{id}", updateSimulationStatusHandler(deps.Simulations, logger))
				r.With(admin).Delete("/{id}", deleteSimulationHandler(deps.Simulations, logger))
			})

			// =============================================
			// Metrics
			// =============================================
			r.With(admin).Get("/metrics/summary", metricsSummaryHandler(deps.Metrics))
		})
	})

	return r
}

// ============================================================
// Operational endpoints
// ============================================================

func healthzHandler(store Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		now := time.Now().UTC().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "ccb-api", Status: "healthy", LastChecked: now},
		}

		if store != nil {
			start := time.Now()
			err := store.Ping(ctx)
			sh := domain.ServiceHealth{
				Name:        "store",
				Status:      "healthy",
				LatencyMs:   time.Since(start).Milliseconds(),
				LastChecked: now,
			}
			if err != nil {
				logger.Warn("health check: store unreachable", zap.Error(err))
				sh.Status = "unhealthy"
				sh.Error = err.Error()
			}
			services = append(services, sh)
		}

		overall := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overall = "unhealthy"
				break
			}
		}

		status := http.StatusOK
		if overall != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, domain.HealthStatus{Status: overall, Services: services})
	}
}

func readyzHandler(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func metricsSummaryHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, metrics.Snapshot())
	}
}
