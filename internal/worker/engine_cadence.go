package worker

import (
	"context"
	"time"

	"github.com/apptracker/balancer-api/internal/engine"
	"github.com/apptracker/balancer-api/internal/repository"
	"github.com/apptracker/balancer-api/pkg/logger"
)

// EngineCadenceWorker wakes the dispatcher for every business with open
// appointments on a fixed cadence. The dispatcher serializes per business,
// so a tick landing while a cycle is still running simply coalesces.
type EngineCadenceWorker struct {
	appointments repository.AppointmentRepository
	dispatcher   *engine.Dispatcher
	cadence      time.Duration
	logger       *logger.Logger
}

func NewEngineCadenceWorker(appointments repository.AppointmentRepository, dispatcher *engine.Dispatcher, cadence time.Duration, log *logger.Logger) *EngineCadenceWorker {
	if cadence <= 0 {
		cadence = time.Minute
	}
	return &EngineCadenceWorker{
		appointments: appointments,
		dispatcher:   dispatcher,
		cadence:      cadence,
		logger:       log,
	}
}

func (w *EngineCadenceWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cadence)
	defer ticker.Stop()

	w.logger.ZL.Info().Dur("cadence", w.cadence).Msg("engine cadence worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.ZL.Info().Msg("engine cadence worker shutting down")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *EngineCadenceWorker) tick(ctx context.Context) {
	businessIDs, err := w.appointments.ListActiveBusinessIDs(ctx)
	if err != nil {
		w.logger.ZL.Error().Err(err).Msg("failed to list businesses with open appointments")
		return
	}
	for _, id := range businessIDs {
		w.dispatcher.Trigger(id)
	}
}
