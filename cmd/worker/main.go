package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	_ "github.com/lib/pq"

	"github.com/apptracker/balancer-api/internal/config"
	"github.com/apptracker/balancer-api/internal/engine"
	"github.com/apptracker/balancer-api/internal/repository/postgres"
	auditService "github.com/apptracker/balancer-api/internal/service/audit"
	"github.com/apptracker/balancer-api/internal/service/notification"
	"github.com/apptracker/balancer-api/internal/worker"
	"github.com/apptracker/balancer-api/pkg/logger"
	"github.com/apptracker/balancer-api/pkg/messaging/redis"
	"github.com/apptracker/balancer-api/pkg/metrics"
	pkgworker "github.com/apptracker/balancer-api/pkg/worker"
)

// The worker binary runs everything that ticks: the engine cadence, the
// outbox drain, and audit retention. The API binary stays request-driven.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{Level: logger.InfoLevel, Output: os.Stdout})

	db, err := postgres.NewDB(postgres.DBConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Name:     cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: 100 * time.Millisecond,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &appLogger.ZL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create redis broker")
	}
	defer broker.Close()

	appointmentRepo := postgres.NewAppointmentRepository(db)
	providerRepo := postgres.NewProviderRepository(db)
	auditRepo := postgres.NewAuditRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	registry := prometheus.NewRegistry()
	m := metrics.NewWith(registry, "balancer_worker")
	clock := engine.SystemClock()

	auditSvc := auditService.NewService(auditRepo, outboxRepo, appLogger)

	snapshot := engine.NewSnapshotSource(providerRepo, appointmentRepo, engine.SnapshotConfig{
		TTL:       cfg.Engine.SnapshotTTL(),
		Freshness: cfg.Engine.SnapshotFreshness(),
	}, clock)
	detector := engine.NewDetector(appointmentRepo, auditSvc, cfg.Engine.Grace(), clock, appLogger)
	planner := engine.NewPlanner(appointmentRepo, snapshot, auditSvc, m, appLogger)
	propagator := engine.NewPropagator(appointmentRepo, planner, auditSvc, appLogger)
	eng := engine.New(appointmentRepo, detector, planner, propagator, m, clock, engine.Config{
		Grace:      cfg.Engine.Grace(),
		MaxCascade: cfg.Engine.MaxCascade,
	}, appLogger)
	dispatcher := engine.NewDispatcher(eng, appLogger)

	cadenceWorker := worker.NewEngineCadenceWorker(appointmentRepo, dispatcher, cfg.Engine.Cadence(), appLogger)
	outboxProcessor := pkgworker.NewOutboxProcessor(outboxRepo, broker, pkgworker.OutboxProcessorConfig{
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  cfg.Outbox.PollInterval(),
		RetryAttempts: cfg.Outbox.RetryAttempts,
		RetryDelay:    cfg.Outbox.RetryDelay(),
	}, appLogger, m)
	cleanupWorker := worker.NewAuditCleanupWorker(auditSvc, cfg.Audit.RetentionDays, cfg.Audit.CleanupInterval(), appLogger)

	notifier := notification.NewService(notification.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}, broker, appLogger)
	notificationWorker := worker.NewNotificationWorker(broker, appointmentRepo, providerRepo, notifier, appLogger)

	setupHealthAndMetrics(appLogger, registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	start := func(name string, run func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			appLogger.ZL.Info().Str("worker", name).Msg("worker started")
			run(ctx)
		}()
	}
	start("engine-cadence", cadenceWorker.Start)
	start("outbox-processor", outboxProcessor.Start)
	start("audit-cleanup", cleanupWorker.Start)
	start("notifications", notificationWorker.Start)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	appLogger.ZL.Info().Msg("shutting down workers")
	cancel()
	dispatcher.Stop()
	wg.Wait()
	appLogger.ZL.Info().Msg("workers exited")
}

func setupHealthAndMetrics(appLogger *logger.Logger, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	go func() {
		if err := http.ListenAndServe(":8081", mux); err != nil {
			appLogger.ZL.Error().Err(err).Msg("health check server failed")
			os.Exit(1)
		}
	}()
}
