// Package presence derives agent liveness for a workspace from its
// last recorded activity. The classification is computed at query time
// from elapsed seconds, so it needs no timers or background sweeps and
// is always consistent with "now".
package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewdeck/crewdeck/internal/models"
)

type Status string

const (
	StatusConnected Status = "connected"
	StatusIdle      Status = "idle"
	StatusOffline   Status = "offline"

	// connectedWindow and idleWindow bound the elapsed-time bands:
	// [0, 7m) connected, [7m, 10m) idle, [10m, ∞) offline.
	connectedWindow = 420 * time.Second
	idleWindow      = 600 * time.Second
)

// Classify maps elapsed time since last activity to a status. A nil
// lastActivity means no agent has ever been active.
func Classify(lastActivity *time.Time, now time.Time) Status {
	if lastActivity == nil {
		return StatusOffline
	}
	elapsed := now.Sub(*lastActivity)
	switch {
	case elapsed < connectedWindow:
		return StatusConnected
	case elapsed < idleWindow:
		return StatusIdle
	default:
		return StatusOffline
	}
}

// StatusMessage is the human-readable line shown next to the presence
// indicator.
func StatusMessage(s Status) string {
	switch s {
	case StatusConnected:
		return "Agent is connected"
	case StatusIdle:
		return "Agent may be busy"
	default:
		return "Agent is offline"
	}
}

// Repository persists the one activity record per workspace.
type Repository interface {
	Upsert(ctx context.Context, workspaceID, apiKeyID uuid.UUID, now time.Time) error
	Get(ctx context.Context, workspaceID uuid.UUID) (*models.AgentActivity, error)
}

type PgRepository struct {
	db *pgxpool.Pool
}

func NewPgRepository(db *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: db}
}

// Upsert is last-writer-wins; concurrent agent calls may clobber each
// other's timestamps, which is acceptable.
func (r *PgRepository) Upsert(ctx context.Context, workspaceID, apiKeyID uuid.UUID, now time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO workspace_agent_activity (workspace_id, last_activity_at, api_key_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (workspace_id)
		 DO UPDATE SET last_activity_at = EXCLUDED.last_activity_at,
		               api_key_id = EXCLUDED.api_key_id`,
		workspaceID, now, apiKeyID)
	if err != nil {
		return fmt.Errorf("upsert agent activity: %w", err)
	}
	return nil
}

func (r *PgRepository) Get(ctx context.Context, workspaceID uuid.UUID) (*models.AgentActivity, error) {
	var a models.AgentActivity
	err := r.db.QueryRow(ctx,
		`SELECT workspace_id, last_activity_at, api_key_id
		 FROM workspace_agent_activity WHERE workspace_id = $1`, workspaceID,
	).Scan(&a.WorkspaceID, &a.LastActivityAt, &a.APIKeyID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agent activity: %w", err)
	}
	return &a, nil
}

// Report is the presence query response.
type Report struct {
	Status               Status     `json:"status"`
	LastActivity         *time.Time `json:"last_activity"`
	SecondsSinceActivity *int       `json:"seconds_since_activity,omitempty"`
	Message              string     `json:"message"`
}

// BuildReport classifies an activity record (possibly nil) at now.
func BuildReport(activity *models.AgentActivity, now time.Time) Report {
	if activity == nil {
		return Report{
			Status:  StatusOffline,
			Message: "No agent connected",
		}
	}
	status := Classify(&activity.LastActivityAt, now)
	secs := int(now.Sub(activity.LastActivityAt).Seconds())
	return Report{
		Status:               status,
		LastActivity:         &activity.LastActivityAt,
		SecondsSinceActivity: &secs,
		Message:              StatusMessage(status),
	}
}
