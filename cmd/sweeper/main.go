// Command sweeper runs the overdue materialization loop and the audit outbox,
// and serves the ops endpoints. Business logic lives in the internal service
// packages; main only wires dependencies and the process lifecycle.
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
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orgcore/internal/audit"
	"orgcore/internal/audit/outbox"
	compliancemetrics "orgcore/internal/compliance/metrics"
	complianceservice "orgcore/internal/compliance/service"
	compliancestore "orgcore/internal/compliance/store"
	orgstore "orgcore/internal/org/store/organization"
	"orgcore/internal/platform/config"
	"orgcore/internal/platform/database"
	"orgcore/internal/platform/httpserver"
	"orgcore/internal/platform/logger"
	id "orgcore/pkg/domain"
	"orgcore/pkg/platform/tx"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tenants := make([]id.TenantID, 0, len(cfg.SweepTenants))
	for _, raw := range cfg.SweepTenants {
		tenantID, err := id.ParseTenantID(raw)
		if err != nil {
			log.Error("invalid tenant id in ORGCORE_SWEEP_TENANTS", "value", raw, "error", err)
			os.Exit(1)
		}
		tenants = append(tenants, tenantID)
	}

	var (
		orgs       complianceservice.OrgGetter
		items      complianceservice.ItemStore
		auditStore audit.Store
		runner     tx.Runner
	)
	if cfg.DatabaseDSN != "" {
		db, err := database.Open(ctx, cfg.DatabaseDSN)
		if err != nil {
			log.Error("database open failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := database.Migrate(ctx, db); err != nil {
			log.Error("schema migration failed", "error", err)
			os.Exit(1)
		}
		orgs = orgstore.NewPostgres(db)
		items = compliancestore.NewPostgres(db)
		auditStore = audit.NewPostgres(db)
		runner = tx.NewSQL(db)
		log.Info("running on postgres")
	} else {
		orgs = orgstore.NewInMemory()
		items = compliancestore.NewInMemory()
		auditStore = audit.NewInMemory()
		runner = tx.NewInMemory()
		log.Warn("no ORGCORE_DATABASE_DSN set, running on in-memory stores")
	}

	recorder := audit.NewRecorder(auditStore)
	tracker := complianceservice.New(items, orgs, recorder, runner,
		complianceservice.WithLogger(log),
		complianceservice.WithMetrics(compliancemetrics.New()),
	)

	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := outbox.NewKafkaPublisher(ctx, cfg.KafkaBrokers, cfg.KafkaTopic, 3)
		if err != nil {
			log.Error("kafka publisher init failed", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		worker := outbox.NewWorker(auditStore, publisher, outbox.WithLogger(log))
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("outbox worker stopped", "error", err)
			}
		}()
		log.Info("audit outbox enabled", "topic", cfg.KafkaTopic)
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := httpserver.New(cfg.OpsAddr, router)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("ops server error", "error", err)
		}
	}()
	log.Info("sweeper started", "ops_addr", cfg.OpsAddr,
		"interval", cfg.SweepInterval, "tenants", len(tenants))

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			for _, tenantID := range tenants {
				count, err := tracker.MaterializeOverdue(ctx, tenantID)
				if err != nil {
					log.Error("overdue sweep failed", "tenant_id", tenantID, "error", err)
					continue
				}
				if count > 0 {
					log.Info("overdue sweep complete", "tenant_id", tenantID, "stamped", count)
				}
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
