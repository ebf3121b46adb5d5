package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ctnfastfood/cart/internal/config"
	"github.com/ctnfastfood/cart/internal/event"
	handler "github.com/ctnfastfood/cart/internal/handler/http"
	"github.com/ctnfastfood/cart/internal/idgen"
	"github.com/ctnfastfood/cart/internal/notify"
	"github.com/ctnfastfood/cart/internal/session"
	"github.com/ctnfastfood/cart/internal/storage"
	"github.com/ctnfastfood/cart/pkg/health"
	pkgkafka "github.com/ctnfastfood/cart/pkg/kafka"
	"github.com/ctnfastfood/cart/pkg/middleware"
	"github.com/ctnfastfood/cart/pkg/tracing"
)

// App wires together all dependencies and runs the cart service.
type App struct {
	cfg             *config.Config
	logger          *slog.Logger
	storage         storage.Storage
	closeStorage    func()
	registry        *session.Registry
	producer        *pkgkafka.Producer
	tracingShutdown tracing.ShutdownFunc
	handler         http.Handler
	httpServer      *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracingShutdown, err := tracing.InitTracer(ctx, cfg.Tracing())
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	// Cart metrics go to a per-app registry; the HTTP and breaker metrics
	// live on the default one. /metrics serves both.
	reg := prometheus.NewRegistry()

	st, closeStorage, err := OpenStorage(ctx, cfg, logger, reg)
	if err != nil {
		_ = tracingShutdown(ctx)
		return nil, err
	}

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("storage", st.Ping)

	// Change notification fan-out.
	bus := notify.NewBus(logger)
	bus.Subscribe(event.NewLogObserver(logger))
	bus.Subscribe(event.NewMetrics(reg))

	var producer *pkgkafka.Producer
	if cfg.KafkaEnabled {
		producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		bus.Subscribe(event.NewProducer(producer, event.DefaultBreakerConfig(), cfg.KafkaPublishTimeout, logger))
		healthHandler.RegisterNonCritical("kafka", producer.Ping)
		logger.Info("kafka producer initialized",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("topic", event.TopicCartChanged),
		)
	}

	registry := session.NewRegistry(st, cfg.BaseKey(), idgen.ByName(cfg.IDGenerator), bus, logger)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSOrigins
	corsCfg.Environment = cfg.Environment

	router := handler.NewRouter(registry, healthHandler, logger, handler.RouterConfig{
		ServiceName: config.ServiceName,
		CORS:        corsCfg,
		Gatherer:    prometheus.Gatherers{prometheus.DefaultGatherer, reg},
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &App{
		cfg:             cfg,
		logger:          logger,
		storage:         st,
		closeStorage:    closeStorage,
		registry:        registry,
		producer:        producer,
		tracingShutdown: tracingShutdown,
		handler:         router,
		httpServer:      httpServer,
	}, nil
}

// Handler returns the HTTP handler served by Run.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Sessions returns the session registry backing the HTTP API.
func (a *App) Sessions() *session.Registry {
	return a.registry
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	if idle := a.cfg.SessionIdleTimeout; idle > 0 {
		go a.registry.RunEvictor(ctx, idle/2, idle)
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
			slog.String("storage", a.cfg.StorageDriver),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown stops accepting requests, flushes every open cart and releases
// the backing connections. Cart flush failures are returned.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	flushErr := a.registry.FlushAll(shutdownCtx)

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}

	a.closeStorage()

	if err := a.tracingShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracing shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return flushErr
}
