package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/doctor-booking-engine/internal/api/router"
	"github.com/wolfman30/doctor-booking-engine/internal/app/bootstrap"
	appconfig "github.com/wolfman30/doctor-booking-engine/internal/config"
	httpmiddleware "github.com/wolfman30/doctor-booking-engine/internal/http/middleware"
	"github.com/wolfman30/doctor-booking-engine/pkg/logging"
)

func main() {
	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting doctor-booking-engine API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backends, cleanup, err := connectBackends(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect backends", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	metricsHandler, registry := setupMetrics()
	svc := bootstrap.BuildServices(cfg, backends, logger, bootstrap.Options{Registerer: registry})
	svc.RunBackground(ctx)

	var limiter *httpmiddleware.RateLimiter
	if cfg.BookingRateLimitRPS > 0 {
		limiter = httpmiddleware.NewRateLimiter(cfg.BookingRateLimitRPS, cfg.BookingRateLimitBurst)
		go limiter.RunEviction(ctx, time.Minute, 10*time.Minute)
	}

	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; admin routes are disabled")
	}

	// Setup router
	r := router.New(&router.Config{
		Logger:             logger,
		Booking:            svc.BookingHTTP,
		Billing:            svc.BillingHTTP,
		AuthSecret:         cfg.AuthJWTSecret,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		BookingLimiter:     limiter,
		Ready:              svc.Ready,
	})

	srv := newServer(cfg, r)

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func newServer(cfg *appconfig.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// setupMetrics returns the /metrics handler and the registry the services
// register their collectors on.
func setupMetrics() (http.Handler, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), registry
}

// connectBackends opens Postgres and Redis when configured. Without
// DATABASE_URL the server runs on in-memory stores.
func connectBackends(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (bootstrap.Backends, func(), error) {
	var b bootstrap.Backends
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	pool, err := bootstrap.BuildPgxPool(ctx, cfg)
	if err != nil {
		return b, cleanup, err
	}
	if pool != nil {
		b.Pool = pool
		closers = append(closers, pool.Close)

		db, err := bootstrap.BuildSQLDB(cfg)
		if err != nil {
			cleanup()
			return bootstrap.Backends{}, func() {}, err
		}
		b.SQL = db
		closers = append(closers, func() { _ = db.Close() })
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory stores")
	}

	if rdb := bootstrap.BuildRedisClient(ctx, cfg, logger, true); rdb != nil {
		b.Redis = rdb
		closers = append(closers, func() { _ = rdb.Close() })
	}
	return b, cleanup, nil
}
