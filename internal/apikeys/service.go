// Package apikeys provisions agent credentials. A raw key is exposed
// to its owner exactly once, at creation or regeneration; only the
// hash and metadata are stored.
package apikeys

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewdeck/crewdeck/internal/apperr"
	"github.com/crewdeck/crewdeck/internal/auth"
	"github.com/crewdeck/crewdeck/internal/models"
)

type Service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

type CreateRequest struct {
	Name          string   `json:"name"`
	Scopes        []string `json:"scopes"`
	ExpiresInDays int      `json:"expires_in_days"`
}

// Created pairs the stored record with the raw secret; the only place
// the raw value ever appears.
type Created struct {
	Key *models.APIKey `json:"api_key"`
	Raw string         `json:"key"`
}

// CreateForWorkspace issues a workspace-level key bound permanently to
// one workspace.
func (s *Service) CreateForWorkspace(ctx context.Context, workspaceID uuid.UUID, req CreateRequest) (*Created, error) {
	return s.create(ctx, nil, &workspaceID, req)
}

// CreateForUser issues a user-level key valid for every workspace the
// user owns, selected per request.
func (s *Service) CreateForUser(ctx context.Context, userID uuid.UUID, req CreateRequest) (*Created, error) {
	return s.create(ctx, &userID, nil, req)
}

func (s *Service) create(ctx context.Context, userID, workspaceID *uuid.UUID, req CreateRequest) (*Created, error) {
	raw, hash := auth.GenerateAPIKey()
	var expiresAt *time.Time
	if req.ExpiresInDays > 0 {
		t := time.Now().UTC().AddDate(0, 0, req.ExpiresInDays)
		expiresAt = &t
	}
	scopes := req.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	k := &models.APIKey{UserID: userID, WorkspaceID: workspaceID, Name: req.Name, Scopes: scopes, ExpiresAt: expiresAt}
	err := s.db.QueryRow(ctx,
		`INSERT INTO api_keys (user_id, workspace_id, name, key_hash, scopes, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		userID, workspaceID, req.Name, hash, scopes, expiresAt,
	).Scan(&k.ID, &k.CreatedAt)
	if err != nil {
		return nil, apperr.Internal("create api key", err)
	}
	k.KeyHash = hash
	return &Created{Key: k, Raw: raw}, nil
}

func (s *Service) ListForWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]models.APIKey, error) {
	return s.list(ctx,
		`SELECT id, user_id, workspace_id, name, key_hash, scopes, expires_at, last_used_at, created_at
		 FROM api_keys WHERE workspace_id = $1 ORDER BY created_at DESC`, workspaceID)
}

// ListForUser returns every key the user owns directly (user-level
// keys).
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error) {
	return s.list(ctx,
		`SELECT id, user_id, workspace_id, name, key_hash, scopes, expires_at, last_used_at, created_at
		 FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (s *Service) list(ctx context.Context, query string, arg any) ([]models.APIKey, error) {
	rows, err := s.db.Query(ctx, query, arg)
	if err != nil {
		return nil, apperr.Internal("list api keys", err)
	}
	defer rows.Close()

	keys := []models.APIKey{}
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.WorkspaceID, &k.Name, &k.KeyHash,
			&k.Scopes, &k.ExpiresAt, &k.LastUsedAt, &k.CreatedAt); err != nil {
			return nil, apperr.Internal("scan api key", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeWorkspaceKey deletes a key scoped to the given workspace.
func (s *Service) RevokeWorkspaceKey(ctx context.Context, workspaceID, keyID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM api_keys WHERE id = $1 AND workspace_id = $2`, keyID, workspaceID)
	if err != nil {
		return apperr.Internal("revoke api key", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("API key not found")
	}
	return nil
}

// RevokeUserKey deletes a user-level key owned by userID.
func (s *Service) RevokeUserKey(ctx context.Context, userID, keyID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM api_keys WHERE id = $1 AND user_id = $2`, keyID, userID)
	if err != nil {
		return apperr.Internal("revoke api key", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("API key not found")
	}
	return nil
}

// Regenerate replaces the secret of a user-level key, keeping its id,
// name, and scopes. The old raw key stops working immediately.
func (s *Service) Regenerate(ctx context.Context, userID, keyID uuid.UUID) (*Created, error) {
	raw, hash := auth.GenerateAPIKey()

	var k models.APIKey
	err := s.db.QueryRow(ctx,
		`UPDATE api_keys SET key_hash = $1, last_used_at = NULL
		 WHERE id = $2 AND user_id = $3
		 RETURNING id, user_id, workspace_id, name, key_hash, scopes, expires_at, last_used_at, created_at`,
		hash, keyID, userID,
	).Scan(&k.ID, &k.UserID, &k.WorkspaceID, &k.Name, &k.KeyHash,
		&k.Scopes, &k.ExpiresAt, &k.LastUsedAt, &k.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("API key not found")
	}
	if err != nil {
		return nil, apperr.Internal("regenerate api key", err)
	}
	return &Created{Key: &k, Raw: raw}, nil
}
