package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Workspace struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	OwnerID   uuid.UUID       `json:"owner_id" db:"owner_id"`
	Settings  json.RawMessage `json:"settings" db:"settings"`
	Archived  bool            `json:"archived" db:"archived"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}
