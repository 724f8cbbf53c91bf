package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/apptracker/balancer-api/internal/model"
	apperrors "github.com/apptracker/balancer-api/pkg/errors"
)

const providerColumns = `
	id, business_id, name, email, whatsapp, skills, accepts_transfers,
	is_online, last_seen, created_at, updated_at
`

func (r *providerRepository) Create(ctx context.Context, provider *model.Provider) error {
	query := `
		INSERT INTO providers (
			id, business_id, name, email, whatsapp, skills, accepts_transfers,
			is_online, last_seen, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if provider.ID == uuid.Nil {
		provider.ID = uuid.New()
	}
	provider.CreatedAt = time.Now()
	provider.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		provider.ID,
		provider.BusinessID,
		provider.Name,
		provider.Email,
		provider.WhatsApp,
		provider.Skills,
		provider.AcceptsTransfers,
		provider.IsOnline,
		provider.LastSeen,
		provider.CreatedAt,
		provider.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}
	return nil
}

func (r *providerRepository) Get(ctx context.Context, id uuid.UUID) (*model.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers WHERE id = $1`

	var provider model.Provider
	err := r.db.GetContext(ctx, &provider, query, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("provider", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	return &provider, nil
}

func (r *providerRepository) ListByBusiness(ctx context.Context, businessID uuid.UUID) ([]*model.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers WHERE business_id = $1 ORDER BY id ASC`

	var providers []*model.Provider
	if err := r.db.SelectContext(ctx, &providers, query, businessID); err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	return providers, nil
}

func (r *providerRepository) ListWorkingHours(ctx context.Context, providerIDs []uuid.UUID) ([]*model.WorkingHours, error) {
	query := `
		SELECT provider_id, day_of_week, start_time, end_time, is_active
		FROM working_hours
		WHERE provider_id = ANY($1) AND is_active = true
	`
	var hours []*model.WorkingHours
	if err := r.db.SelectContext(ctx, &hours, query, pq.Array(providerIDs)); err != nil {
		return nil, fmt.Errorf("failed to list working hours: %w", err)
	}
	return hours, nil
}

func (r *providerRepository) ListBreaks(ctx context.Context, providerIDs []uuid.UUID) ([]*model.Break, error) {
	query := `
		SELECT provider_id, day_of_week, start_time, duration_minutes
		FROM breaks
		WHERE provider_id = ANY($1)
	`
	var breaks []*model.Break
	if err := r.db.SelectContext(ctx, &breaks, query, pq.Array(providerIDs)); err != nil {
		return nil, fmt.Errorf("failed to list breaks: %w", err)
	}
	return breaks, nil
}

func (r *providerRepository) UpdatePresence(ctx context.Context, id uuid.UUID, isOnline bool, lastSeen time.Time) error {
	query := `
		UPDATE providers
		SET is_online = $1, last_seen = $2, updated_at = $3
		WHERE id = $4
	`
	result, err := r.db.ExecContext(ctx, query, isOnline, lastSeen, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update presence: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewNotFound("provider", nil)
	}
	return nil
}
