package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/apptracker/balancer-api/internal/model"
)

// All repository interfaces in one file
type (
	// AppointmentRepository is the engine's store boundary for appointments.
	// UpdateAssignment carries an expected version so planner retries can
	// detect concurrent writes instead of clobbering them.
	AppointmentRepository interface {
		Create(ctx context.Context, apt *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
		ListByProviderDay(ctx context.Context, providerID uuid.UUID, day time.Time) ([]*model.Appointment, error)
		ListPendingOrActive(ctx context.Context, businessID uuid.UUID) ([]*model.Appointment, error)
		ListActiveBusinessIDs(ctx context.Context) ([]uuid.UUID, error)
		UpdateAssignment(ctx context.Context, id, providerID uuid.UUID, shiftedFrom *uuid.UUID, delayMinutes, expectedVersion int) error
		UpdateDelay(ctx context.Context, id uuid.UUID, delayMinutes, expectedVersion int) error
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus) error
	}

	// ProviderRepository supplies the roster snapshot inputs.
	ProviderRepository interface {
		Create(ctx context.Context, provider *model.Provider) error
		Get(ctx context.Context, id uuid.UUID) (*model.Provider, error)
		ListByBusiness(ctx context.Context, businessID uuid.UUID) ([]*model.Provider, error)
		ListWorkingHours(ctx context.Context, providerIDs []uuid.UUID) ([]*model.WorkingHours, error)
		ListBreaks(ctx context.Context, providerIDs []uuid.UUID) ([]*model.Break, error)
		UpdatePresence(ctx context.Context, id uuid.UUID, isOnline bool, lastSeen time.Time) error
	}

	// AuditRepository is append-only; entries are never updated or
	// selectively deleted, only listed and aged out.
	AuditRepository interface {
		Create(ctx context.Context, entry *model.AuditEntry) error
		List(ctx context.Context, filters *model.AuditFilters) ([]*model.AuditEntry, error)
		Cleanup(ctx context.Context, before time.Time) (int64, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEventsWithLock(ctx context.Context, batchSize int) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status string, errorMsg *string, retryAt *time.Time) error
	}
)
