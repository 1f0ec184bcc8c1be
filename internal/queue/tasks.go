package queue

import "time"

const (
	TypePresenceRecord = "presence:record"
	TypeAPIKeyTouch    = "apikey:touch"
)

type PresenceRecordPayload struct {
	WorkspaceID string    `json:"workspace_id"`
	APIKeyID    string    `json:"api_key_id"`
	ActivityAt  time.Time `json:"activity_at"`
}

type APIKeyTouchPayload struct {
	APIKeyID string    `json:"api_key_id"`
	UsedAt   time.Time `json:"used_at"`
}
