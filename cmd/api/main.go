package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	_ "github.com/lib/pq"

	"github.com/apptracker/balancer-api/internal/config"
	"github.com/apptracker/balancer-api/internal/engine"
	appointmentHandler "github.com/apptracker/balancer-api/internal/handler/appointment"
	auditHandler "github.com/apptracker/balancer-api/internal/handler/audit"
	engineHandler "github.com/apptracker/balancer-api/internal/handler/engine"
	healthHandler "github.com/apptracker/balancer-api/internal/handler/health"
	prometheusHandler "github.com/apptracker/balancer-api/internal/handler/prometheus"
	providerHandler "github.com/apptracker/balancer-api/internal/handler/provider"
	"github.com/apptracker/balancer-api/internal/middleware"
	"github.com/apptracker/balancer-api/internal/repository/postgres"
	"github.com/apptracker/balancer-api/internal/router"
	appointmentService "github.com/apptracker/balancer-api/internal/service/appointment"
	auditService "github.com/apptracker/balancer-api/internal/service/audit"
	providerService "github.com/apptracker/balancer-api/internal/service/provider"
	"github.com/apptracker/balancer-api/pkg/auth"
	"github.com/apptracker/balancer-api/pkg/logger"
	"github.com/apptracker/balancer-api/pkg/metrics"
	"github.com/apptracker/balancer-api/pkg/validator"
)

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

	appointmentRepo := postgres.NewAppointmentRepository(db)
	providerRepo := postgres.NewProviderRepository(db)
	auditRepo := postgres.NewAuditRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	promH := prometheusHandler.New()
	m := metrics.NewWith(promH.Registry(), "balancer")
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
	defer dispatcher.Stop()

	validate := validator.New()
	appointmentSvc := appointmentService.NewService(appointmentRepo, eng, dispatcher, auditSvc, validate)
	providerSvc := providerService.NewService(providerRepo, validate)

	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)

	r := router.NewRouter(
		jwtSvc,
		healthHandler.NewHandler(db),
		promH,
		router.Config{
			RateLimit:  rate.Limit(cfg.Server.RateLimit),
			RateBurst:  cfg.Server.RateBurst,
			Timeout:    cfg.ServerTimeout(),
			CORSConfig: middleware.DefaultCORSConfig(),
		},
		appointmentHandler.NewHandler(appointmentSvc),
		providerHandler.NewHandler(providerSvc),
		auditHandler.NewHandler(auditSvc),
		engineHandler.NewHandler(eng, planner, snapshot, clock, cfg.Engine.ReassignThresholdMinutes),
	)
	r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	go func() {
		appLogger.ZL.Info().Int("port", cfg.Server.Port).Msg("starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.ZL.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	appLogger.ZL.Info().Msg("server exited")
}
