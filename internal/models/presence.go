package models

import (
	"time"

	"github.com/google/uuid"
)

// AgentActivity is the per-workspace presence record, upserted on every
// agent-authenticated call. Primary key is WorkspaceID: only the latest
// activity matters, no history is kept.
type AgentActivity struct {
	WorkspaceID    uuid.UUID  `json:"workspace_id" db:"workspace_id"`
	LastActivityAt time.Time  `json:"last_activity_at" db:"last_activity_at"`
	APIKeyID       *uuid.UUID `json:"api_key_id,omitempty" db:"api_key_id"`
}
