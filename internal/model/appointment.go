package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusActive    AppointmentStatus = "active"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

// Valid reports whether s is one of the closed set of appointment statuses.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusPending, AppointmentStatusActive,
		AppointmentStatusCompleted, AppointmentStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether an appointment in this status can no longer be
// delayed or reassigned.
func (s AppointmentStatus) Terminal() bool {
	return s == AppointmentStatusCompleted || s == AppointmentStatusCancelled
}

type Appointment struct {
	Base
	BusinessID         uuid.UUID         `db:"business_id" json:"business_id"`
	AssignedProviderID uuid.UUID         `db:"assigned_provider_id" json:"assigned_provider_id"`
	ShiftedFromID      *uuid.UUID        `db:"shifted_from_id" json:"shifted_from_id,omitempty"`
	ClientID           uuid.UUID         `db:"client_id" json:"client_id"`
	TreatmentName      string            `db:"treatment_name" json:"treatment_name"`
	RequiredSkills     pq.StringArray    `db:"required_skills" json:"required_skills"`
	ScheduledStart     time.Time         `db:"scheduled_start" json:"scheduled_start"`
	DurationMinutes    int               `db:"duration_minutes" json:"duration_minutes"`
	Status             AppointmentStatus `db:"status" json:"status"`
	DelayMinutes       int               `db:"delay_minutes" json:"delay_minutes"`
	Version            int               `db:"version" json:"version"`
}

// EffectiveStart is the start time after accounting for the cached delay.
func (a *Appointment) EffectiveStart() time.Time {
	return a.ScheduledStart.Add(time.Duration(a.DelayMinutes) * time.Minute)
}

// EffectiveEnd is the half-open upper bound of the appointment's slot.
func (a *Appointment) EffectiveEnd() time.Time {
	return a.EffectiveStart().Add(a.Duration())
}

func (a *Appointment) Duration() time.Duration {
	return time.Duration(a.DurationMinutes) * time.Minute
}

// Overlaps reports whether [start, start+d) intersects the appointment's
// effective slot. Both intervals are half-open so back-to-back slots never
// count as a conflict.
func (a *Appointment) Overlaps(start time.Time, d time.Duration) bool {
	end := start.Add(d)
	return start.Before(a.EffectiveEnd()) && a.EffectiveStart().Before(end)
}

// Validate rejects malformed appointments at ingestion. Bad data is never
// silently coerced.
func (a *Appointment) Validate() error {
	if a.BusinessID == uuid.Nil {
		return fmt.Errorf("business ID is required")
	}
	if a.AssignedProviderID == uuid.Nil {
		return fmt.Errorf("assigned provider ID is required")
	}
	if a.DurationMinutes <= 0 {
		return fmt.Errorf("duration must be positive, got %d", a.DurationMinutes)
	}
	if a.ScheduledStart.IsZero() {
		return fmt.Errorf("scheduled start is required")
	}
	if !a.Status.Valid() {
		return fmt.Errorf("unknown status %q", a.Status)
	}
	if a.DelayMinutes < 0 {
		return fmt.Errorf("delay minutes cannot be negative, got %d", a.DelayMinutes)
	}
	return nil
}

type CreateAppointmentRequest struct {
	BusinessID      uuid.UUID `json:"business_id" binding:"required"`
	ProviderID      uuid.UUID `json:"provider_id" binding:"required"`
	ClientID        uuid.UUID `json:"client_id" binding:"required"`
	TreatmentName   string    `json:"treatment_name" binding:"max=200"`
	RequiredSkills  []string  `json:"required_skills" binding:"dive,max=32" validate:"omitempty,dive,skillcode"`
	ScheduledStart  time.Time `json:"scheduled_start" binding:"required"`
	DurationMinutes int       `json:"duration_minutes" binding:"required,gt=0"`
}

type UpdateStatusRequest struct {
	Status AppointmentStatus `json:"status" binding:"required"`
}

type AppointmentFilters struct {
	BusinessID uuid.UUID
	ProviderID uuid.UUID
	Status     AppointmentStatus
	StartDate  time.Time
	EndDate    time.Time
}
