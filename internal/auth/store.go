package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewdeck/crewdeck/internal/models"
)

// ErrNotFound is returned by Store lookups when no record matches.
var ErrNotFound = errors.New("not found")

// Store is the credential/identity lookup surface the resolver needs.
// The pgx implementation is used in production; tests supply fakes.
type Store interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, email, name string) (*models.User, error)
	GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error)
	GetWorkspaceByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error)
}

type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.scanUser(s.db.QueryRow(ctx,
		`SELECT id, email, name, password_hash, avatar_url, created_at, updated_at
		 FROM users WHERE id = $1`, id))
}

func (s *PgStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.scanUser(s.db.QueryRow(ctx,
		`SELECT id, email, name, password_hash, avatar_url, created_at, updated_at
		 FROM users WHERE email = $1`, email))
}

func (s *PgStore) CreateUser(ctx context.Context, email, name string) (*models.User, error) {
	return s.scanUser(s.db.QueryRow(ctx,
		`INSERT INTO users (email, name, password_hash) VALUES ($1, $2, '')
		 RETURNING id, email, name, password_hash, avatar_url, created_at, updated_at`,
		email, name))
}

func (s *PgStore) scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func (s *PgStore) GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	var k models.APIKey
	err := s.db.QueryRow(ctx,
		`SELECT id, user_id, workspace_id, name, key_hash, scopes, expires_at, last_used_at, created_at
		 FROM api_keys WHERE key_hash = $1`, hash,
	).Scan(&k.ID, &k.UserID, &k.WorkspaceID, &k.Name, &k.KeyHash, &k.Scopes,
		&k.ExpiresAt, &k.LastUsedAt, &k.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return &k, nil
}

func (s *PgStore) GetWorkspaceByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	var w models.Workspace
	err := s.db.QueryRow(ctx,
		`SELECT id, name, owner_id, settings, archived, created_at, updated_at
		 FROM workspaces WHERE id = $1`, id,
	).Scan(&w.ID, &w.Name, &w.OwnerID, &w.Settings, &w.Archived, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}
	return &w, nil
}
