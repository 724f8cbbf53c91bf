package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/apptracker/balancer-api/internal/model"
	"github.com/apptracker/balancer-api/internal/repository"
	"github.com/apptracker/balancer-api/pkg/logger"
)

// Auditor records engine decisions. Fire-and-forget: implementations log
// their own failures, the engine never blocks or aborts on audit problems.
type Auditor interface {
	Emit(ctx context.Context, businessID uuid.UUID, event string, actor uuid.UUID, payload model.JSONMap)
}

// Detector finds schedule slippage: pending appointments whose start has
// come and gone without the status advancing.
type Detector struct {
	store  repository.AppointmentRepository
	audit  Auditor
	grace  time.Duration
	clock  Clock
	logger *logger.Logger
}

func NewDetector(store repository.AppointmentRepository, audit Auditor, grace time.Duration, clock Clock, log *logger.Logger) *Detector {
	if grace < 0 {
		grace = 0
	}
	return &Detector{
		store:  store,
		audit:  audit,
		grace:  grace,
		clock:  clock,
		logger: log,
	}
}

// Scan returns one DelayRecord per appointment whose observed delay grew
// since the last pass. Reported delays are monotonic: an unchanged queue
// yields nothing on a second scan, and delays only clear when the
// appointment reaches a terminal state. Scan never mutates status.
func (d *Detector) Scan(ctx context.Context, businessID uuid.UUID) ([]model.DelayRecord, error) {
	apts, err := d.store.ListPendingOrActive(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("detector scan: %w", err)
	}

	now := d.clock.Now()
	var records []model.DelayRecord

	for _, apt := range apts {
		// Active appointments have started; only a pending one can be late.
		if apt.Status != model.AppointmentStatusPending {
			continue
		}
		if !now.After(apt.ScheduledStart.Add(d.grace)) {
			continue
		}

		observed := int(now.Sub(apt.ScheduledStart).Minutes())
		if observed <= apt.DelayMinutes {
			continue
		}

		rec := model.DelayRecord{
			AppointmentID: apt.ID,
			ProviderID:    apt.AssignedProviderID,
			BusinessID:    apt.BusinessID,
			DelayMinutes:  observed,
			ObservedAt:    now,
		}
		records = append(records, rec)

		d.audit.Emit(ctx, businessID, model.AuditEventDelayDetect, model.SystemActorID, model.JSONMap{
			"appointment_id": apt.ID,
			"provider_id":    apt.AssignedProviderID,
			"delay_minutes":  observed,
		})
	}

	return records, nil
}
