package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/apptracker/balancer-api/internal/model"
	"github.com/apptracker/balancer-api/internal/repository"
	apperrors "github.com/apptracker/balancer-api/pkg/errors"
	"github.com/apptracker/balancer-api/pkg/validator"
)

// Service manages the provider roster. Presence heartbeats feed the
// planner's tie-break, so UpdateHeartbeat is the hottest path here.
type Service struct {
	repo     repository.ProviderRepository
	validate *validator.Validator
}

func NewService(repo repository.ProviderRepository, validate *validator.Validator) *Service {
	return &Service{repo: repo, validate: validate}
}

func (s *Service) Create(ctx context.Context, req *model.CreateProviderRequest) (*model.Provider, error) {
	if err := s.validate.Validate(req); err != nil {
		return nil, apperrors.NewBadRequest(err.Error(), err)
	}

	now := time.Now()

	// Providers take transfers unless they explicitly opt out.
	acceptsTransfers := true
	if req.AcceptsTransfers != nil {
		acceptsTransfers = *req.AcceptsTransfers
	}

	p := &model.Provider{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		BusinessID:       req.BusinessID,
		Name:             req.Name,
		Email:            req.Email,
		WhatsApp:         req.WhatsApp,
		Skills:           req.Skills,
		AcceptsTransfers: acceptsTransfers,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Provider, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByBusiness(ctx context.Context, businessID uuid.UUID) ([]*model.Provider, error) {
	return s.repo.ListByBusiness(ctx, businessID)
}

// Heartbeat records presence. last_seen is advisory for the planner's
// tie-break, so a write here never invalidates roster snapshots.
func (s *Service) Heartbeat(ctx context.Context, id uuid.UUID, isOnline bool) error {
	return s.repo.UpdatePresence(ctx, id, isOnline, time.Now())
}
