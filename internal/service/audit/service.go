package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/apptracker/balancer-api/internal/model"
	"github.com/apptracker/balancer-api/internal/repository"
	"github.com/apptracker/balancer-api/pkg/logger"
)

// Service writes the append-only audit trail and mirrors every entry into
// the outbox so downstream consumers see the same stream of decisions.
type Service struct {
	repo   repository.AuditRepository
	outbox repository.OutboxRepository
	logger *logger.Logger
}

func NewService(repo repository.AuditRepository, outbox repository.OutboxRepository, log *logger.Logger) *Service {
	return &Service{repo: repo, outbox: outbox, logger: log}
}

// Emit records one decision. It never returns an error: the audit trail is
// an observer of the engine, not a participant, so a failed write must not
// stall or abort a planning cycle. Failures are logged and dropped.
func (s *Service) Emit(ctx context.Context, businessID uuid.UUID, event string, actor uuid.UUID, payload model.JSONMap) {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.ZL.Error().Err(err).Str("event", event).Msg("failed to marshal audit payload")
		return
	}

	entry := &model.AuditEntry{
		ID:         uuid.New(),
		BusinessID: businessID,
		ActorID:    actor,
		Event:      event,
		Payload:    raw,
		CreatedAt:  time.Now(),
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.ZL.Error().Err(err).
			Str("event", event).
			Str("business_id", businessID.String()).
			Msg("failed to write audit entry")
		return
	}

	outboxEvent := &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: event,
		Payload:   raw,
		Status:    string(model.OutboxStatusPending),
		CreatedAt: entry.CreatedAt,
		UpdatedAt: entry.CreatedAt,
	}
	if err := s.outbox.Create(ctx, outboxEvent); err != nil {
		// The durable entry exists; only the broadcast is lost.
		s.logger.ZL.Error().Err(err).Str("event", event).Msg("failed to enqueue audit outbox event")
	}
}

// List returns audit entries matching the filters, newest first.
func (s *Service) List(ctx context.Context, filters *model.AuditFilters) ([]*model.AuditEntry, error) {
	return s.repo.List(ctx, filters)
}

// Cleanup ages out entries older than the retention cutoff.
func (s *Service) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	return s.repo.Cleanup(ctx, before)
}
