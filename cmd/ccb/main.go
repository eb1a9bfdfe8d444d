package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/ccb-backoffice-go/internal/ccb"
	"github.com/boddenberg/ccb-backoffice-go/internal/config"
	"github.com/boddenberg/ccb-backoffice-go/internal/domain"
	"github.com/boddenberg/ccb-backoffice-go/internal/handler"
	"github.com/boddenberg/ccb-backoffice-go/internal/infra/cache"
	"github.com/boddenberg/ccb-backoffice-go/internal/infra/events"
	"github.com/boddenberg/ccb-backoffice-go/internal/infra/memory"
	"github.com/boddenberg/ccb-backoffice-go/internal/infra/observability"
	"github.com/boddenberg/ccb-backoffice-go/internal/infra/postgres"
	"github.com/boddenberg/ccb-backoffice-go/internal/infra/resilience"
	"github.com/boddenberg/ccb-backoffice-go/internal/infra/supabase"
	"github.com/boddenberg/ccb-backoffice-go/internal/port"
	"github.com/boddenberg/ccb-backoffice-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_backend", cfg.StoreBackend),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("jwt_access_ttl", cfg.JWTAccessTTL),
		zap.Duration("jwt_refresh_ttl", cfg.JWTRefreshTTL),
		zap.Float64("min_loan_amount", cfg.MinLoanAmount),
		zap.Int("max_installments", cfg.MaxInstallments),
	)

	ctx := context.Background()

	// --- Tracing ---
	shutdown, err := observability.InitTracer(ctx, cfg.OTLPEndpoint, "ccb-backoffice")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	// --- Store ---
	store, closeStore, err := openStore(ctx, cfg, resilienceCfg, metrics, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer closeStore()

	// --- Cache ---
	var detailCache port.Cache[*domain.SimulationDetail]
	if cfg.RedisAddr != "" {
		rdb := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rdb.Close()
		detailCache = cache.NewRedis[*domain.SimulationDetail](rdb, "ccb:", cfg.CacheTTL, logger)
		logger.Info("using Redis cache", zap.String("addr", cfg.RedisAddr))
	} else {
		mem := cache.New[*domain.SimulationDetail](cfg.CacheTTL)
		defer mem.Close()
		detailCache = mem
		logger.Info("using in-memory cache")
	}

	// --- Events ---
	var publisher port.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, resilienceCfg, logger)
		logger.Info("publishing events to Kafka",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
		)
	} else {
		publisher = events.NewLogPublisher(logger)
		logger.Warn("KAFKA_BROKERS not set, events are only logged")
	}
	defer publisher.Close()

	// --- Services ---
	authSvc := service.NewAuthService(store, cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL, logger)
	customerSvc := service.NewCustomerService(store, store, publisher, logger)
	simulationSvc := service.NewSimulationService(store, detailCache, publisher, metrics, service.Limits{
		MinAmount:       cfg.MinLoanAmount,
		MaxInstallments: cfg.MaxInstallments,
	}, logger)

	renderer, err := ccb.NewRenderer()
	if err != nil {
		logger.Fatal("failed to load ccb template", zap.Error(err))
	}

	// --- Router ---
	router := handler.NewRouter(handler.Dependencies{
		Auth:        authSvc,
		Customers:   customerSvc,
		Simulations: simulationSvc,
		Renderer:    renderer,
		Store:       store,
		Metrics:     metrics,
		CORSOrigins: cfg.CORSAllowedOrigins,
	}, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// openStore builds the persistence backend selected by STORE_BACKEND and
// returns a func releasing its resources.
func openStore(ctx context.Context, cfg *config.Config, resilienceCfg resilience.Config, metrics *observability.Metrics, logger *zap.Logger) (port.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, int32(cfg.DBMaxConns))
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("using PostgreSQL store", zap.Int("max_conns", cfg.DBMaxConns))
		store := postgres.NewStore(pool)
		return store, store.Close, nil

	case config.BackendSupabase:
		logger.Info("using Supabase store", zap.String("supabase_url", cfg.SupabaseURL))
		client := supabase.NewClient(
			&http.Client{Timeout: cfg.HTTPTimeout},
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase"),
			resilienceCfg,
			logger,
		).WithMetrics(metrics)
		return client, func() {}, nil

	default:
		logger.Warn("using in-memory store, data is lost on restart")
		return memory.New(), func() {}, nil
	}
}
