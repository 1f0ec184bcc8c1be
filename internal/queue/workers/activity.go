package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewdeck/crewdeck/internal/presence"
	"github.com/crewdeck/crewdeck/internal/queue"
)

// ActivityWorker applies the best-effort side effects of agent
// authentication: the presence upsert and the api-key last-used touch.
// Both are last-writer-wins; a stale task overwriting a newer timestamp
// is harmless because only recency matters and the windows are minutes
// wide.
type ActivityWorker struct {
	db       *pgxpool.Pool
	presence presence.Repository
}

func NewActivityWorker(db *pgxpool.Pool) *ActivityWorker {
	return &ActivityWorker{db: db, presence: presence.NewPgRepository(db)}
}

func (w *ActivityWorker) ProcessPresenceRecord(ctx context.Context, t *asynq.Task) error {
	var payload queue.PresenceRecordPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	workspaceID, err := uuid.Parse(payload.WorkspaceID)
	if err != nil {
		return fmt.Errorf("invalid workspace id: %w", err)
	}
	keyID, err := uuid.Parse(payload.APIKeyID)
	if err != nil {
		return fmt.Errorf("invalid api key id: %w", err)
	}

	activityAt := payload.ActivityAt
	if activityAt.IsZero() {
		activityAt = time.Now().UTC()
	}
	if err := w.presence.Upsert(ctx, workspaceID, keyID, activityAt); err != nil {
		return err
	}
	slog.Debug("recorded agent activity", "workspace_id", workspaceID)
	return nil
}

func (w *ActivityWorker) ProcessAPIKeyTouch(ctx context.Context, t *asynq.Task) error {
	var payload queue.APIKeyTouchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	keyID, err := uuid.Parse(payload.APIKeyID)
	if err != nil {
		return fmt.Errorf("invalid api key id: %w", err)
	}

	usedAt := payload.UsedAt
	if usedAt.IsZero() {
		usedAt = time.Now().UTC()
	}
	if _, err := w.db.Exec(ctx,
		`UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, usedAt, keyID); err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}
