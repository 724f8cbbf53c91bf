package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/apptracker/balancer-api/internal/engine"
	"github.com/apptracker/balancer-api/internal/model"
	"github.com/apptracker/balancer-api/internal/repository"
	"github.com/apptracker/balancer-api/internal/service/audit"
	apperrors "github.com/apptracker/balancer-api/pkg/errors"
	"github.com/apptracker/balancer-api/pkg/validator"
)

const (
	MinAppointmentDuration = 5 * time.Minute
	MaxAppointmentDuration = 8 * time.Hour
)

// Service is the booking surface. Writes that change a provider's day
// nudge the dispatcher so the balancing engine re-evaluates the business
// without waiting for the next cadence tick.
type Service struct {
	repo       repository.AppointmentRepository
	engine     *engine.Engine
	dispatcher *engine.Dispatcher
	auditor    *audit.Service
	validate   *validator.Validator
}

func NewService(repo repository.AppointmentRepository, eng *engine.Engine, dispatcher *engine.Dispatcher, auditor *audit.Service, validate *validator.Validator) *Service {
	return &Service{
		repo:       repo,
		engine:     eng,
		dispatcher: dispatcher,
		auditor:    auditor,
		validate:   validate,
	}
}

func (s *Service) Create(ctx context.Context, req *model.CreateAppointmentRequest, actor uuid.UUID) (*model.Appointment, error) {
	if err := s.validate.Validate(req); err != nil {
		return nil, apperrors.NewBadRequest(err.Error(), err)
	}

	dur := time.Duration(req.DurationMinutes) * time.Minute
	if dur < MinAppointmentDuration || dur > MaxAppointmentDuration {
		return nil, apperrors.NewBadRequest(
			fmt.Sprintf("duration must be between %v and %v", MinAppointmentDuration, MaxAppointmentDuration), nil)
	}

	now := time.Now()
	apt := &model.Appointment{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		BusinessID:         req.BusinessID,
		AssignedProviderID: req.ProviderID,
		ClientID:           req.ClientID,
		TreatmentName:      req.TreatmentName,
		RequiredSkills:     req.RequiredSkills,
		ScheduledStart:     req.ScheduledStart,
		DurationMinutes:    req.DurationMinutes,
		Status:             model.AppointmentStatusPending,
		Version:            1,
	}
	if err := apt.Validate(); err != nil {
		return nil, apperrors.NewBadRequest(err.Error(), err)
	}

	if err := s.repo.Create(ctx, apt); err != nil {
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}

	s.auditor.Emit(ctx, apt.BusinessID, model.AuditEventStatusChange, actor, model.JSONMap{
		"appointment_id": apt.ID,
		"provider_id":    apt.AssignedProviderID,
		"from":           "",
		"to":             string(apt.Status),
	})
	s.dispatcher.Trigger(apt.BusinessID)
	return apt, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	return s.repo.List(ctx, filters)
}

// UpdateStatus runs the transition through the engine so the audit trail
// records it, then wakes the balancer: a completion or cancellation frees
// capacity the very next cycle can use.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus, actor uuid.UUID) error {
	if !status.Valid() {
		return apperrors.NewBadRequest(fmt.Sprintf("invalid status %q", status), nil)
	}
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if apt.Status.Terminal() {
		return apperrors.NewBadRequest("appointment is already closed", nil)
	}

	if err := s.engine.MarkStatus(ctx, id, status, actor); err != nil {
		return err
	}
	s.dispatcher.Trigger(apt.BusinessID)
	return nil
}
