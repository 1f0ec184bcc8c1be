// Package principal carries the resolved caller identity through a
// request's context. A Human principal is a *models.User; an Agent
// principal is the API key plus the single workspace it resolved to.
package principal

import (
	"context"

	"github.com/google/uuid"

	"github.com/crewdeck/crewdeck/internal/models"
)

type contextKey string

const (
	userKey  contextKey = "user"
	agentKey contextKey = "agent"
)

// Agent is the principal produced by API-key resolution. Workspace is
// the one workspace this request is authorized for. User is set only
// for user-level keys.
type Agent struct {
	Key       *models.APIKey
	Workspace *models.Workspace
	User      *models.User
}

// DisplayName is the sender tag used for agent-authored messages.
func (a *Agent) DisplayName() string {
	if a.Key != nil && a.Key.Name != "" {
		return a.Key.Name
	}
	return "agent"
}

func (a *Agent) WorkspaceID() uuid.UUID {
	return a.Workspace.ID
}

func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func UserFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}

func WithAgent(ctx context.Context, a *Agent) context.Context {
	return context.WithValue(ctx, agentKey, a)
}

func AgentFromContext(ctx context.Context) *Agent {
	a, _ := ctx.Value(agentKey).(*Agent)
	return a
}
