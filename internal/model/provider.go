package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Provider is a staff member who performs appointments. Presence fields are
// advisory signals for ranking, never hard availability gates.
type Provider struct {
	Base
	BusinessID       uuid.UUID      `db:"business_id" json:"business_id"`
	Name             string         `db:"name" json:"name"`
	Email            string         `db:"email" json:"email"`
	WhatsApp         string         `db:"whatsapp" json:"whatsapp,omitempty"`
	Skills           pq.StringArray `db:"skills" json:"skills"`
	AcceptsTransfers bool           `db:"accepts_transfers" json:"accepts_transfers"`
	IsOnline         bool           `db:"is_online" json:"is_online"`
	LastSeen         *time.Time     `db:"last_seen" json:"last_seen,omitempty"`
}

// WorkingHours is one weekday's shift for a provider. Open and Close are
// wall-clock "HH:MM" strings in the business's local time, matching how the
// scheduling tables store them.
type WorkingHours struct {
	ProviderID uuid.UUID    `db:"provider_id" json:"provider_id"`
	Weekday    time.Weekday `db:"day_of_week" json:"day_of_week"`
	Open       string       `db:"start_time" json:"start_time"`
	Close      string       `db:"end_time" json:"end_time"`
	IsActive   bool         `db:"is_active" json:"is_active"`
}

// Break is a recurring pause within a provider's shift.
type Break struct {
	ProviderID      uuid.UUID    `db:"provider_id" json:"provider_id"`
	Weekday         time.Weekday `db:"day_of_week" json:"day_of_week"`
	Start           string       `db:"start_time" json:"start_time"`
	DurationMinutes int          `db:"duration_minutes" json:"duration_minutes"`
}

type CreateProviderRequest struct {
	BusinessID       uuid.UUID `json:"business_id" binding:"required"`
	Name             string    `json:"name" binding:"required,max=200"`
	Email            string    `json:"email" binding:"required,email"`
	WhatsApp         string    `json:"whatsapp" binding:"max=32"`
	Skills           []string  `json:"skills" binding:"dive,max=32" validate:"omitempty,dive,skillcode"`
	AcceptsTransfers *bool     `json:"accepts_transfers"`
}

type PresenceUpdateRequest struct {
	IsOnline bool `json:"is_online"`
}
