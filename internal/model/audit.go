package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Audit event names emitted by the engine. The names mirror the dotted
// convention used across the audit log so replay tooling can correlate
// cascades.
const (
	AuditEventDelayDetect    = "delay.detect"
	AuditEventDelayPropagate = "delay.propagate"
	AuditEventReassign       = "appointment.reassign"
	AuditEventAssistantCycle = "appointment.assistant_cycle"
	AuditEventStatusChange   = "appointment.status_change"
)

// AuditEntry is an immutable record of one engine decision. Entries are
// append-only; replaying them in order reconstructs every assignment the
// engine ever made.
type AuditEntry struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	BusinessID uuid.UUID       `json:"business_id" db:"business_id"`
	ActorID    uuid.UUID       `json:"actor_id" db:"actor_id"`
	Event      string          `json:"event" db:"event"`
	Payload    json.RawMessage `json:"payload" db:"payload"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// AuditFilters narrows audit listings.
type AuditFilters struct {
	BusinessID    uuid.UUID
	Event         string
	AppointmentID uuid.UUID
	Since         time.Time
	Until         time.Time
	Limit         int
}
