package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/crewdeck/crewdeck/internal/apperr"
	"github.com/crewdeck/crewdeck/internal/models"
	"github.com/crewdeck/crewdeck/internal/workspace"
)

const (
	defaultPageSize = 50
	humanPageCap    = 1000 // large cap supports chat export
	agentPageCap    = 100
)

// Broadcaster fans a new-message event out to live subscribers.
// Satisfied by *hub.Hub.
type Broadcaster interface {
	Broadcast(workspaceID uuid.UUID, event any)
}

// SettingsSource supplies workspace settings for the agent read path.
// Satisfied by *workspace.Service.
type SettingsSource interface {
	GetSettings(ctx context.Context, id uuid.UUID) (workspace.Settings, error)
}

type Service struct {
	repo     Repository
	hub      Broadcaster
	settings SettingsSource
	now      func() time.Time
}

func NewService(repo Repository, hub Broadcaster, settings SettingsSource) *Service {
	return &Service{repo: repo, hub: hub, settings: settings, now: time.Now}
}

type CreateRequest struct {
	Content     string          `json:"content"`
	Metadata    json.RawMessage `json:"metadata"`
	MessageType string          `json:"message_type"`
}

// View is the wire shape of a message, with sender display fields
// joined in.
type View struct {
	ID              uuid.UUID       `json:"id"`
	WorkspaceID     uuid.UUID       `json:"workspace_id"`
	UserID          *uuid.UUID      `json:"user_id"`
	AgentName       *string         `json:"agent_name"`
	SenderName      *string         `json:"sender_name"`
	SenderAvatarURL *string         `json:"sender_avatar_url,omitempty"`
	Content         string          `json:"content"`
	Metadata        json.RawMessage `json:"message_metadata"`
	MessageType     string          `json:"message_type"`
	CreatedAt       time.Time       `json:"created_at"`
	SeenAt          *time.Time      `json:"seen_at,omitempty"`
}

type Page struct {
	Messages []View `json:"messages"`
	HasMore  bool   `json:"has_more"`
	Total    int    `json:"total"`
}

// Post persists a message and then broadcasts it to the workspace's
// live subscribers. Persistence always happens first: a lost broadcast
// is recoverable by polling, a lost write is not.
func (s *Service) Post(ctx context.Context, workspaceID uuid.UUID, sender models.Sender, req CreateRequest) (*View, error) {
	if req.Content == "" {
		return nil, apperr.BadRequest("content required")
	}
	messageType := req.MessageType
	if messageType == "" {
		messageType = models.MessageTypeChat
	}
	if messageType != models.MessageTypeChat && messageType != models.MessageTypeSystem {
		return nil, apperr.BadRequest("invalid message_type")
	}

	m := &models.Message{
		WorkspaceID: workspaceID,
		UserID:      sender.UserID,
		Content:     req.Content,
		Metadata:    req.Metadata,
		MessageType: messageType,
	}
	if !sender.IsHuman() {
		m.AgentName = &sender.AgentName
		if len(m.Metadata) == 0 {
			m.Metadata = json.RawMessage(fmt.Sprintf(`{"source":"mcp","api_key":%q}`, sender.AgentName))
		}
	}

	stored, err := s.repo.Append(ctx, m)
	if err != nil {
		return nil, apperr.Internal("store message", err)
	}

	view := s.viewOf(stored)
	if sender.IsHuman() {
		if names, err := s.repo.SenderNames(ctx, []uuid.UUID{*sender.UserID}); err == nil {
			if info, ok := names[*sender.UserID]; ok {
				view.SenderName = &info.Name
				view.SenderAvatarURL = info.AvatarURL
			}
		}
	}

	s.hub.Broadcast(workspaceID, map[string]any{
		"type":    "new_message",
		"message": view,
	})
	return &view, nil
}

// ListForHuman serves the web UI's backward pagination: a page anchored
// at the newest messages (or those before the cursor), returned in
// chronological order, content untransformed.
func (s *Service) ListForHuman(ctx context.Context, workspaceID uuid.UUID, limit int, before *time.Time) (*Page, error) {
	msgs, hasMore, err := s.repo.List(ctx, workspaceID, ListOptions{
		Limit:       clampLimit(limit, humanPageCap),
		Before:      before,
		NewestFirst: true,
	})
	if err != nil {
		return nil, apperr.Internal("list messages", err)
	}
	views, err := s.withSenders(ctx, msgs)
	if err != nil {
		return nil, err
	}
	return &Page{Messages: views, HasMore: hasMore, Total: len(views)}, nil
}

// AgentListOptions are the agent polling filters. After is a message id
// cursor; Unseen restricts to unacknowledged user messages.
type AgentListOptions struct {
	Limit  int
	Before *time.Time
	After  string
	Unseen bool
}

// ListForAgent serves agent polling in forward chronological order and
// applies the read-time content transform to user-authored messages.
func (s *Service) ListForAgent(ctx context.Context, workspaceID uuid.UUID, opts AgentListOptions) (*Page, error) {
	listOpts := ListOptions{
		Limit:      clampLimit(opts.Limit, agentPageCap),
		Before:     opts.Before,
		UnseenOnly: opts.Unseen,
	}
	if opts.After != "" {
		afterID, err := uuid.Parse(opts.After)
		if err != nil {
			return nil, apperr.BadRequest("invalid after cursor")
		}
		listOpts.AfterID = &afterID
		listOpts.Before = nil
	}

	msgs, hasMore, err := s.repo.List(ctx, workspaceID, listOpts)
	if errors.Is(err, ErrCursorNotFound) {
		return nil, apperr.NotFound("after message not found")
	}
	if err != nil {
		return nil, apperr.Internal("list messages", err)
	}

	views, err := s.withSenders(ctx, msgs)
	if err != nil {
		return nil, err
	}

	settings, err := s.settings.GetSettings(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	for i := range views {
		if views[i].UserID != nil {
			name := "Unknown User"
			if views[i].SenderName != nil {
				name = *views[i].SenderName
			}
			views[i].Content = RenderForAgent(views[i].Content, name, settings)
		}
	}
	return &Page{Messages: views, HasMore: hasMore, Total: len(views)}, nil
}

// Acknowledge marks user-authored messages as seen by the agent.
// Unknown, foreign-workspace, agent-authored, and already-seen ids are
// silently skipped; only the updated count is reported.
func (s *Service) Acknowledge(ctx context.Context, workspaceID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, apperr.BadRequest("message_ids required")
	}
	count, err := s.repo.Acknowledge(ctx, workspaceID, ids, s.now())
	if err != nil {
		return 0, apperr.Internal("acknowledge messages", err)
	}
	return count, nil
}

func (s *Service) withSenders(ctx context.Context, msgs []models.Message) ([]View, error) {
	var userIDs []uuid.UUID
	seen := map[uuid.UUID]bool{}
	for _, m := range msgs {
		if m.UserID != nil && !seen[*m.UserID] {
			seen[*m.UserID] = true
			userIDs = append(userIDs, *m.UserID)
		}
	}
	names, err := s.repo.SenderNames(ctx, userIDs)
	if err != nil {
		return nil, apperr.Internal("resolve sender names", err)
	}

	views := make([]View, 0, len(msgs))
	for i := range msgs {
		v := s.viewOf(&msgs[i])
		if msgs[i].UserID != nil {
			if info, ok := names[*msgs[i].UserID]; ok {
				v.SenderName = &info.Name
				v.SenderAvatarURL = info.AvatarURL
			}
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *Service) viewOf(m *models.Message) View {
	v := View{
		ID:          m.ID,
		WorkspaceID: m.WorkspaceID,
		UserID:      m.UserID,
		AgentName:   m.AgentName,
		Content:     m.Content,
		Metadata:    m.Metadata,
		MessageType: m.MessageType,
		CreatedAt:   m.CreatedAt,
		SeenAt:      m.SeenAt,
	}
	if m.AgentName != nil {
		v.SenderName = m.AgentName
	}
	return v
}

// clampLimit keeps limits in [1, max]; out-of-range values are clamped
// rather than rejected.
func clampLimit(limit, max int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > max {
		return max
	}
	return limit
}
