package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/apptracker/balancer-api/internal/model"
	apperrors "github.com/apptracker/balancer-api/pkg/errors"
)

const appointmentColumns = `
	id, business_id, assigned_provider_id, shifted_from_id, client_id,
	treatment_name, required_skills, scheduled_start, duration_minutes,
	status, delay_minutes, version, created_at, updated_at
`

func (r *appointmentRepository) Create(ctx context.Context, apt *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, business_id, assigned_provider_id, shifted_from_id, client_id,
			treatment_name, required_skills, scheduled_start, duration_minutes,
			status, delay_minutes, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	if apt.ID == uuid.Nil {
		apt.ID = uuid.New()
	}
	apt.Version = 1
	apt.CreatedAt = time.Now()
	apt.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		apt.ID,
		apt.BusinessID,
		apt.AssignedProviderID,
		apt.ShiftedFromID,
		apt.ClientID,
		apt.TreatmentName,
		apt.RequiredSkills,
		apt.ScheduledStart,
		apt.DurationMinutes,
		apt.Status,
		apt.DelayMinutes,
		apt.Version,
		apt.CreatedAt,
		apt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	var apt model.Appointment
	err := r.db.GetContext(ctx, &apt, query, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("appointment", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &apt, nil
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE business_id = $1`
	args := []interface{}{filters.BusinessID}
	argCount := 2

	if filters.ProviderID != uuid.Nil {
		query += fmt.Sprintf(" AND assigned_provider_id = $%d", argCount)
		args = append(args, filters.ProviderID)
		argCount++
	}
	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, filters.Status)
		argCount++
	}
	if !filters.StartDate.IsZero() {
		query += fmt.Sprintf(" AND scheduled_start >= $%d", argCount)
		args = append(args, filters.StartDate)
		argCount++
	}
	if !filters.EndDate.IsZero() {
		query += fmt.Sprintf(" AND scheduled_start < $%d", argCount)
		args = append(args, filters.EndDate)
		argCount++
	}

	query += " ORDER BY scheduled_start ASC"

	var apts []*model.Appointment
	if err := r.db.SelectContext(ctx, &apts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return apts, nil
}

func (r *appointmentRepository) ListByProviderDay(ctx context.Context, providerID uuid.UUID, day time.Time) ([]*model.Appointment, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE assigned_provider_id = $1
		AND scheduled_start >= $2
		AND scheduled_start < $3
		AND status NOT IN ('cancelled', 'completed')
		ORDER BY scheduled_start ASC
	`
	var apts []*model.Appointment
	if err := r.db.SelectContext(ctx, &apts, query, providerID, dayStart, dayEnd); err != nil {
		return nil, fmt.Errorf("failed to list provider day queue: %w", err)
	}
	return apts, nil
}

func (r *appointmentRepository) ListPendingOrActive(ctx context.Context, businessID uuid.UUID) ([]*model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE business_id = $1
		AND status IN ('pending', 'active')
		ORDER BY scheduled_start ASC
	`
	var apts []*model.Appointment
	if err := r.db.SelectContext(ctx, &apts, query, businessID); err != nil {
		return nil, fmt.Errorf("failed to list pending/active appointments: %w", err)
	}
	return apts, nil
}

func (r *appointmentRepository) ListActiveBusinessIDs(ctx context.Context) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT business_id
		FROM appointments
		WHERE status IN ('pending', 'active')
	`
	var ids []uuid.UUID
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("failed to list active businesses: %w", err)
	}
	return ids, nil
}

// UpdateAssignment moves an appointment to a new provider, recording where it
// came from. The version predicate makes concurrent commits lose cleanly.
func (r *appointmentRepository) UpdateAssignment(ctx context.Context, id, providerID uuid.UUID, shiftedFrom *uuid.UUID, delayMinutes, expectedVersion int) error {
	query := `
		UPDATE appointments
		SET assigned_provider_id = $1,
			shifted_from_id = $2,
			delay_minutes = $3,
			version = version + 1,
			updated_at = $4
		WHERE id = $5 AND version = $6
	`
	result, err := r.db.ExecContext(ctx, query, providerID, shiftedFrom, delayMinutes, time.Now(), id, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update assignment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.ErrVersionConflict
	}
	return nil
}

func (r *appointmentRepository) UpdateDelay(ctx context.Context, id uuid.UUID, delayMinutes, expectedVersion int) error {
	query := `
		UPDATE appointments
		SET delay_minutes = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4
	`
	result, err := r.db.ExecContext(ctx, query, delayMinutes, time.Now(), id, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update delay: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.ErrVersionConflict
	}
	return nil
}

// UpdateStatus advances the lifecycle. Terminal states clear the cached
// delay: a completed or cancelled appointment is no longer late.
func (r *appointmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus) error {
	query := `
		UPDATE appointments
		SET status = $1,
			delay_minutes = CASE WHEN $1 IN ('completed', 'cancelled') THEN 0 ELSE delay_minutes END,
			version = version + 1,
			updated_at = $2
		WHERE id = $3
	`
	result, err := r.db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewNotFound("appointment", nil)
	}
	return nil
}
