package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"concordia/internal/engine/actions"
	"concordia/internal/engine/metrics"
	"concordia/internal/engine/reports"
	"concordia/internal/engine/rules"
	"concordia/internal/engine/service"
	"concordia/internal/engine/workers/auditor"
	"concordia/internal/platform/config"
	"concordia/internal/platform/database"
	"concordia/internal/platform/health"
	"concordia/internal/platform/logger"
	"concordia/internal/platform/middleware"
	"concordia/internal/records/store"
)

// main wires the store, the consistency engine and the per-tenant audit
// scheduler, and exposes an operational HTTP surface (health, metrics).
// Record CRUD lives in the upstream application, not here.
func main() {
	_ = godotenv.Load()

	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing concordia",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"audit_tenants", len(cfg.Tenants),
		"audit_interval", cfg.AuditInterval.String(),
	)

	db, err := database.Connect(ctx, database.Config{
		URI:      cfg.MongoURI,
		Database: cfg.MongoDatabase,
	})
	if err != nil {
		log.Error("mongodb connection failed", "error", err)
		os.Exit(1)
	}

	var gw store.Gateway
	if db != nil {
		gw = store.NewMongoGateway(db.Database())
		log.Info("using mongodb gateway", "database", cfg.MongoDatabase)
	} else {
		gw = store.NewInMemoryGateway()
		log.Warn("no mongodb uri configured, using in-memory gateway")
	}

	m := metrics.New()
	reportStore := reports.NewStore(gw, reports.WithLogger(log))
	detector := rules.NewDetector(gw, rules.DefaultRegistry(),
		rules.WithLogger(log),
		rules.WithRuleTimeout(cfg.RuleTimeout),
	)
	dispatcher := actions.NewDispatcher(gw, reportStore,
		actions.WithLogger(log),
		actions.WithMetrics(m),
		actions.WithActionTimeout(cfg.ActionTimeout),
	)
	engine := service.New(gw, detector, dispatcher, reportStore,
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithCycleTimeout(cfg.CycleTimeout),
	)

	scheduler := auditor.New(engine,
		auditor.WithLogger(log),
		auditor.WithInterval(cfg.AuditInterval),
	)
	for _, tenantID := range cfg.Tenants {
		scheduler.StartTenant(ctx, tenantID)
	}

	healthHandler := health.New(cfg.Environment)
	if db != nil {
		healthHandler.RegisterCheck("mongodb", func() error {
			return db.HealthCheck(context.Background())
		})
	}

	router := chi.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(log))
	router.Use(middleware.Timeout(30 * time.Second))
	healthHandler.Register(router)
	router.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down gracefully")

	scheduler.StopAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	if db != nil {
		if err := db.Close(shutdownCtx); err != nil {
			log.Error("mongodb disconnect failed", "error", err)
		}
	}

	log.Info("server stopped")
}
