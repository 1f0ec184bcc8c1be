package queue

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/crewdeck/crewdeck/internal/config"
)

type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// TouchAPIKey and RecordActivity implement auth.SideEffects. They are
// best-effort by contract: an enqueue failure is logged and swallowed
// so the authorization decision that triggered them is never blocked
// or failed.

func (c *Client) TouchAPIKey(keyID uuid.UUID) {
	err := c.enqueue(TypeAPIKeyTouch, APIKeyTouchPayload{
		APIKeyID: keyID.String(),
		UsedAt:   time.Now().UTC(),
	}, asynq.MaxRetry(1), asynq.Timeout(10*time.Second))
	if err != nil {
		slog.Warn("api key touch enqueue failed", "api_key_id", keyID, "error", err)
	}
}

func (c *Client) RecordActivity(workspaceID, keyID uuid.UUID) {
	err := c.enqueue(TypePresenceRecord, PresenceRecordPayload{
		WorkspaceID: workspaceID.String(),
		APIKeyID:    keyID.String(),
		ActivityAt:  time.Now().UTC(),
	}, asynq.MaxRetry(1), asynq.Timeout(10*time.Second))
	if err != nil {
		slog.Warn("presence record enqueue failed", "workspace_id", workspaceID, "error", err)
	}
}

func (c *Client) enqueue(taskType string, payload interface{}, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	_, err = c.client.Enqueue(task, opts...)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
