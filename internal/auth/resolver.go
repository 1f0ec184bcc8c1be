package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/crewdeck/crewdeck/internal/apperr"
	"github.com/crewdeck/crewdeck/internal/models"
	"github.com/crewdeck/crewdeck/internal/principal"
)

// SideEffects are the best-effort mutations that ride along with a
// successful agent authorization. They must never block or fail the
// authorization decision; implementations log and swallow their own
// errors.
type SideEffects interface {
	TouchAPIKey(keyID uuid.UUID)
	RecordActivity(workspaceID, keyID uuid.UUID)
}

// NopSideEffects is used when no queue is wired (tests, degraded mode).
type NopSideEffects struct{}

func (NopSideEffects) TouchAPIKey(uuid.UUID)            {}
func (NopSideEffects) RecordActivity(uuid.UUID, uuid.UUID) {}

// Resolver turns a raw credential presentation into a principal bound
// to exactly one workspace scope.
type Resolver struct {
	store   Store
	secret  []byte
	effects SideEffects
	now     func() time.Time
}

func NewResolver(store Store, jwtSecret string, effects SideEffects) *Resolver {
	if effects == nil {
		effects = NopSideEffects{}
	}
	return &Resolver{
		store:   store,
		secret:  []byte(jwtSecret),
		effects: effects,
		now:     time.Now,
	}
}

// ResolveAccessToken is the human path: a signed bearer token with
// type=access whose subject is a known user.
func (r *Resolver) ResolveAccessToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, apperr.Unauthorized("missing authorization token")
	}
	claims, err := ParseToken(r.secret, token, TokenTypeAccess)
	if err != nil {
		return nil, apperr.Unauthorized("could not validate credentials")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, apperr.Unauthorized("could not validate credentials")
	}
	user, err := r.store.GetUserByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.Unauthorized("could not validate credentials")
	}
	if err != nil {
		return nil, apperr.Internal("user lookup failed", err)
	}
	return user, nil
}

// ResolveTrustedIdentity is the delegated human path: the fronting
// proxy has already verified the caller and asserts email + display
// name. Users are auto-provisioned on first sight, matched by email.
func (r *Resolver) ResolveTrustedIdentity(ctx context.Context, email, name string) (*models.User, error) {
	if email == "" {
		return nil, apperr.Unauthorized("missing identity assertion")
	}
	user, err := r.store.GetUserByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, apperr.Internal("user lookup failed", err)
	}
	if name == "" {
		name = email
	}
	user, err = r.store.CreateUser(ctx, email, name)
	if err != nil {
		return nil, apperr.Internal("user provisioning failed", err)
	}
	return user, nil
}

// ResolveAPIKey is the agent path. workspaceSelector is the caller's
// explicit workspace choice; it is required for user-level keys and
// ignored for workspace-level keys.
func (r *Resolver) ResolveAPIKey(ctx context.Context, rawKey, workspaceSelector string) (*principal.Agent, error) {
	if rawKey == "" {
		return nil, apperr.Unauthorized("X-API-Key header required")
	}

	key, err := r.store.GetAPIKeyByHash(ctx, HashAPIKey(rawKey))
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.Unauthorized("invalid API key")
	}
	if err != nil {
		return nil, apperr.Internal("api key lookup failed", err)
	}
	if key.ExpiresAt != nil && key.ExpiresAt.Before(r.now()) {
		return nil, apperr.Unauthorized("API key has expired")
	}

	// Best-effort, lost updates acceptable.
	r.effects.TouchAPIKey(key.ID)

	var agent *principal.Agent
	if key.IsUserLevel() {
		agent, err = r.resolveUserLevel(ctx, key, workspaceSelector)
	} else {
		agent, err = r.resolveWorkspaceLevel(ctx, key)
	}
	if err != nil {
		return nil, err
	}

	r.effects.RecordActivity(agent.Workspace.ID, key.ID)
	return agent, nil
}

func (r *Resolver) resolveUserLevel(ctx context.Context, key *models.APIKey, selector string) (*principal.Agent, error) {
	if selector == "" {
		return nil, apperr.BadRequest("X-Workspace-ID header required for user-level API keys")
	}
	workspaceID, err := uuid.Parse(selector)
	if err != nil {
		return nil, apperr.BadRequest("invalid X-Workspace-ID format")
	}

	workspace, err := r.store.GetWorkspaceByID(ctx, workspaceID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("workspace not found")
	}
	if err != nil {
		return nil, apperr.Internal("workspace lookup failed", err)
	}
	if workspace.OwnerID != *key.UserID {
		return nil, apperr.Forbidden("API key does not have access to this workspace")
	}

	// User context for user-level keys; absence is not fatal.
	user, err := r.store.GetUserByID(ctx, *key.UserID)
	if err != nil {
		user = nil
	}

	return &principal.Agent{Key: key, Workspace: workspace, User: user}, nil
}

func (r *Resolver) resolveWorkspaceLevel(ctx context.Context, key *models.APIKey) (*principal.Agent, error) {
	workspace, err := r.store.GetWorkspaceByID(ctx, *key.WorkspaceID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("workspace not found")
	}
	if err != nil {
		return nil, apperr.Internal("workspace lookup failed", err)
	}
	return &principal.Agent{Key: key, Workspace: workspace}, nil
}
