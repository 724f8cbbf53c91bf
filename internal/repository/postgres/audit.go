package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/apptracker/balancer-api/internal/model"
)

func (r *auditRepository) Create(ctx context.Context, entry *model.AuditEntry) error {
	query := `
		INSERT INTO audit_logs (id, business_id, actor_id, event, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.BusinessID,
		entry.ActorID,
		entry.Event,
		entry.Payload,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}
	return nil
}

func (r *auditRepository) List(ctx context.Context, filters *model.AuditFilters) ([]*model.AuditEntry, error) {
	query := `
		SELECT id, business_id, actor_id, event, payload, created_at
		FROM audit_logs
		WHERE business_id = $1
	`
	args := []interface{}{filters.BusinessID}
	argCount := 2

	if filters.Event != "" {
		query += fmt.Sprintf(" AND event = $%d", argCount)
		args = append(args, filters.Event)
		argCount++
	}
	if filters.AppointmentID != uuid.Nil {
		query += fmt.Sprintf(" AND payload->>'appointment_id' = $%d", argCount)
		args = append(args, filters.AppointmentID.String())
		argCount++
	}
	if !filters.Since.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argCount)
		args = append(args, filters.Since)
		argCount++
	}
	if !filters.Until.IsZero() {
		query += fmt.Sprintf(" AND created_at < $%d", argCount)
		args = append(args, filters.Until)
		argCount++
	}

	query += " ORDER BY created_at ASC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, filters.Limit)
	}

	var entries []*model.AuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}

func (r *auditRepository) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM audit_logs WHERE created_at < $1`

	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit logs: %w", err)
	}
	return result.RowsAffected()
}
