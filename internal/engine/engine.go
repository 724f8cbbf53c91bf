package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/apptracker/balancer-api/internal/model"
	"github.com/apptracker/balancer-api/internal/repository"
	apperrors "github.com/apptracker/balancer-api/pkg/errors"
	"github.com/apptracker/balancer-api/pkg/logger"
	"github.com/apptracker/balancer-api/pkg/metrics"
)

// CycleReport summarizes one engine pass over a business.
type CycleReport struct {
	BusinessID    uuid.UUID   `json:"business_id"`
	StartedAt     time.Time   `json:"started_at"`
	Duration      string      `json:"duration"`
	DelaysFound   int         `json:"delays_found"`
	Reassigned    int         `json:"reassigned"`
	DelayAccepted int         `json:"delay_accepted"`
	Propagated    int         `json:"propagated"`
	Touched       []uuid.UUID `json:"touched,omitempty"`
	Deferred      int         `json:"deferred"`
}

// Config carries the engine's timing knobs.
type Config struct {
	Grace      time.Duration
	MaxCascade int
}

// Engine runs the full balancing cycle for a business: detect slippage,
// plan each delayed appointment, then ripple accepted delays down the
// affected provider queues.
type Engine struct {
	store      repository.AppointmentRepository
	detector   *Detector
	planner    *Planner
	propagator *Propagator
	metrics    *metrics.Metrics
	clock      Clock
	maxCascade int
	logger     *logger.Logger
}

func New(store repository.AppointmentRepository, det *Detector, pl *Planner, prop *Propagator, m *metrics.Metrics, clock Clock, cfg Config, log *logger.Logger) *Engine {
	maxCascade := cfg.MaxCascade
	if maxCascade <= 0 {
		maxCascade = 32
	}
	return &Engine{
		store:      store,
		detector:   det,
		planner:    pl,
		propagator: prop,
		metrics:    m,
		clock:      clock,
		maxCascade: maxCascade,
		logger:     log,
	}
}

// RunCycle executes one detection and planning pass. Appointments whose
// roster snapshot cannot be trusted are deferred, never guessed about;
// they come back around on the next pass.
func (e *Engine) RunCycle(ctx context.Context, businessID uuid.UUID) (*CycleReport, error) {
	start := e.clock.Now()
	report := &CycleReport{BusinessID: businessID, StartedAt: start}

	e.metrics.DetectorPasses.Inc()

	records, err := e.detector.Scan(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("engine cycle: %w", err)
	}
	report.DelaysFound = len(records)
	if len(records) > 0 {
		e.metrics.DelaysDetected.WithLabelValues(businessID.String()).Add(float64(len(records)))
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		out, err := e.planner.Consider(ctx, rec)
		if err != nil {
			if apperrors.IsStale(err) {
				report.Deferred++
				e.logger.ZL.Warn().
					Str("appointment_id", rec.AppointmentID.String()).
					Msg("roster snapshot stale, deferring appointment")
				continue
			}
			return report, fmt.Errorf("engine cycle: %w", err)
		}

		if out.Reassigned {
			report.Reassigned++
			e.metrics.Reassignments.WithLabelValues("reassigned").Inc()
		} else {
			report.DelayAccepted++
			e.metrics.Reassignments.WithLabelValues("delay_accepted").Inc()
		}

		// A delay accepted in place pushes on everything behind it.
		if !out.Reassigned && out.DelayMinutes > 0 {
			trigger, err := e.store.Get(ctx, rec.AppointmentID)
			if err != nil {
				return report, fmt.Errorf("engine cycle: %w", err)
			}
			if trigger.Status.Terminal() {
				continue
			}
			touched, err := e.propagator.Propagate(ctx, trigger, e.maxCascade)
			if len(touched) > 0 {
				report.Propagated += len(touched)
				report.Touched = append(report.Touched, touched...)
				e.metrics.CascadeDepth.Observe(float64(len(touched)))
			}
			if err != nil {
				return report, fmt.Errorf("engine cycle: %w", err)
			}
		}
	}

	report.Duration = e.clock.Now().Sub(start).String()
	e.logger.ZL.Info().
		Str("business_id", businessID.String()).
		Int("delays", report.DelaysFound).
		Int("reassigned", report.Reassigned).
		Int("propagated", report.Propagated).
		Str("took", report.Duration).
		Msg("engine cycle complete")

	return report, nil
}

// MarkStatus transitions an appointment and, when the move is a
// completion or cancellation ahead of downstream slippage, the next
// cycle naturally re-evaluates the freed capacity.
func (e *Engine) MarkStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus, actor uuid.UUID) error {
	apt, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := e.store.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	e.planner.audit.Emit(ctx, apt.BusinessID, model.AuditEventStatusChange, actor, model.JSONMap{
		"appointment_id": apt.ID,
		"provider_id":    apt.AssignedProviderID,
		"from":           string(apt.Status),
		"to":             string(status),
	})
	return nil
}
