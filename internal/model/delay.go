package model

import (
	"time"

	"github.com/google/uuid"
)

// DelayRecord is the detector's signal that an appointment has slipped past
// its scheduled start. It is derived state: only DelayMinutes is persisted
// back onto the appointment row, the rest exists for the duration of one
// planning cycle.
type DelayRecord struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	ProviderID    uuid.UUID `json:"provider_id"`
	BusinessID    uuid.UUID `json:"business_id"`
	DelayMinutes  int       `json:"delay_minutes"`
	ObservedAt    time.Time `json:"observed_at"`

	// TriggerID is set when the delay was introduced by an upstream
	// appointment's cascade rather than observed directly.
	TriggerID uuid.UUID `json:"trigger_appointment_id,omitempty"`
}
