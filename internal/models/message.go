package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	MessageTypeChat   = "chat"
	MessageTypeSystem = "system"
)

// Message is append-only. The single mutable field is SeenAt, set once
// by agent acknowledgment and only for user-authored messages.
// CreatedAt is the pagination cursor.
type Message struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	WorkspaceID uuid.UUID       `json:"workspace_id" db:"workspace_id"`
	UserID      *uuid.UUID      `json:"user_id,omitempty" db:"user_id"`
	AgentName   *string         `json:"agent_name,omitempty" db:"agent_name"`
	Content     string          `json:"content" db:"content"`
	Metadata    json.RawMessage `json:"message_metadata" db:"metadata"`
	MessageType string          `json:"message_type" db:"message_type"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	SeenAt      *time.Time      `json:"seen_at,omitempty" db:"seen_at"`
}

// Sender is the tagged "exactly one author" view of the two nullable
// columns: either a human user id or an agent name.
type Sender struct {
	UserID    *uuid.UUID
	AgentName string
}

func (s Sender) IsHuman() bool { return s.UserID != nil }

func (m *Message) Sender() Sender {
	if m.UserID != nil {
		return Sender{UserID: m.UserID}
	}
	if m.AgentName != nil {
		return Sender{AgentName: *m.AgentName}
	}
	return Sender{}
}

// HumanSender builds the author tag for a user-authored message.
func HumanSender(userID uuid.UUID) Sender {
	return Sender{UserID: &userID}
}

// AgentSender builds the author tag for an agent-authored message.
func AgentSender(name string) Sender {
	return Sender{AgentName: name}
}
