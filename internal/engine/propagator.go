package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/apptracker/balancer-api/internal/model"
	"github.com/apptracker/balancer-api/internal/repository"
	apperrors "github.com/apptracker/balancer-api/pkg/errors"
	"github.com/apptracker/balancer-api/pkg/logger"
)

// Propagator ripples one appointment's delay down the rest of its
// provider's same-day queue. Each pushed appointment is handed to the
// planner, which may relocate it instead of letting it slip.
type Propagator struct {
	store   repository.AppointmentRepository
	planner *Planner
	audit   Auditor
	logger  *logger.Logger
}

func NewPropagator(store repository.AppointmentRepository, planner *Planner, audit Auditor, log *logger.Logger) *Propagator {
	return &Propagator{
		store:   store,
		planner: planner,
		audit:   audit,
		logger:  log,
	}
}

// Propagate walks the trigger provider's queue in scheduled order and
// returns the IDs of every appointment it touched. The walk stops at the
// first appointment with zero slippage: a gap in the schedule absorbs the
// delay and nothing past it can be affected. A positive limit caps how
// many appointments one cascade may touch; the remainder carries the
// recorded delays into the next detector pass. Cancelling the trigger
// between steps halts the walk.
func (p *Propagator) Propagate(ctx context.Context, trigger *model.Appointment, limit int) ([]uuid.UUID, error) {
	queue, err := p.store.ListByProviderDay(ctx, trigger.AssignedProviderID, trigger.ScheduledStart)
	if err != nil {
		return nil, fmt.Errorf("propagate: %w", err)
	}

	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].ScheduledStart.Before(queue[j].ScheduledStart)
	})

	prevEnd := trigger.EffectiveEnd()
	var touched []uuid.UUID

	for _, apt := range queue {
		if err := ctx.Err(); err != nil {
			return touched, err
		}
		if limit > 0 && len(touched) >= limit {
			p.logger.ZL.Warn().
				Str("trigger_id", trigger.ID.String()).
				Int("limit", limit).
				Msg("cascade reached touch limit, stopping walk")
			break
		}
		if apt.ID == trigger.ID || apt.Status.Terminal() {
			continue
		}
		if !apt.ScheduledStart.After(trigger.ScheduledStart) {
			continue
		}

		// A delay can push an appointment later, never pull it earlier.
		effStart := apt.ScheduledStart
		if prevEnd.After(effStart) {
			effStart = prevEnd
		}
		newDelay := int(effStart.Sub(apt.ScheduledStart).Minutes())
		if newDelay == 0 {
			break
		}
		if newDelay < apt.DelayMinutes {
			newDelay = apt.DelayMinutes
			effStart = apt.ScheduledStart.Add(time.Duration(newDelay) * time.Minute)
		}

		if newDelay != apt.DelayMinutes {
			if err := p.store.UpdateDelay(ctx, apt.ID, newDelay, apt.Version); err != nil {
				if apperrors.IsConflict(err) {
					p.logger.ZL.Debug().
						Str("appointment_id", apt.ID.String()).
						Msg("propagated delay lost a write race, skipping")
					prevEnd = effStart.Add(apt.Duration())
					continue
				}
				return touched, fmt.Errorf("propagate: %w", err)
			}
			apt.DelayMinutes = newDelay
			apt.Version++

			p.audit.Emit(ctx, apt.BusinessID, model.AuditEventDelayPropagate, model.SystemActorID, model.JSONMap{
				"appointment_id":         apt.ID,
				"provider_id":            apt.AssignedProviderID,
				"delay_minutes":          newDelay,
				"trigger_appointment_id": trigger.ID,
			})
		}
		touched = append(touched, apt.ID)

		rec := model.DelayRecord{
			AppointmentID: apt.ID,
			ProviderID:    apt.AssignedProviderID,
			BusinessID:    apt.BusinessID,
			DelayMinutes:  newDelay,
			TriggerID:     trigger.ID,
		}
		if _, err := p.planner.Consider(ctx, rec); err != nil {
			// The planner failing on one appointment should not strand the
			// rest of the queue with unrecorded delays.
			p.logger.ZL.Error().Err(err).
				Str("appointment_id", apt.ID.String()).
				Msg("planner failed during propagation")
		}

		// Re-read: if the planner moved the appointment elsewhere it no
		// longer occupies this provider's timeline.
		fresh, err := p.store.Get(ctx, apt.ID)
		if err != nil {
			return touched, fmt.Errorf("propagate: %w", err)
		}
		if fresh.AssignedProviderID == trigger.AssignedProviderID && !fresh.Status.Terminal() {
			prevEnd = fresh.EffectiveEnd()
		}

		// The trigger may have been cancelled mid-walk.
		cur, err := p.store.Get(ctx, trigger.ID)
		if err != nil {
			return touched, fmt.Errorf("propagate: %w", err)
		}
		if cur.Status.Terminal() {
			p.logger.ZL.Info().
				Str("trigger_id", trigger.ID.String()).
				Msg("trigger closed mid-propagation, halting walk")
			break
		}
	}

	return touched, nil
}
