package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey is a long-lived credential for unattended agents. Exactly one
// scoping mode applies:
//
//   - user-level: UserID set, WorkspaceID nil. Valid for every
//     workspace the user owns, selected per request.
//   - workspace-level: WorkspaceID set, UserID nil. Bound to that one
//     workspace.
//
// The schema enforces user_id IS NOT NULL OR workspace_id IS NOT NULL.
type APIKey struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	UserID      *uuid.UUID `json:"user_id,omitempty" db:"user_id"`
	WorkspaceID *uuid.UUID `json:"workspace_id,omitempty" db:"workspace_id"`
	Name        string     `json:"name" db:"name"`
	KeyHash     string     `json:"-" db:"key_hash"`
	Scopes      []string   `json:"scopes" db:"scopes"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// IsUserLevel reports whether the key authorizes any workspace owned by
// its user rather than a single bound workspace.
func (k *APIKey) IsUserLevel() bool {
	return k.UserID != nil
}
