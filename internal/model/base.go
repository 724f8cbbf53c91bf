package model

import (
	"time"

	"github.com/google/uuid"
)

// Base contains common fields for all models
type Base struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Pagination represents common pagination parameters
type Pagination struct {
	Page     int `json:"page" form:"page"`
	PageSize int `json:"page_size" form:"page_size"`
}

// JSONMap represents a generic JSON object
type JSONMap map[string]interface{}

// SystemActorID is the reserved actor recorded on audit entries written by
// the engine itself rather than a human operator.
var SystemActorID = uuid.MustParse("00000000-0000-0000-0000-000000000000")
