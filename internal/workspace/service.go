package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewdeck/crewdeck/internal/apperr"
	"github.com/crewdeck/crewdeck/internal/cache"
	"github.com/crewdeck/crewdeck/internal/models"
)

const settingsCacheTTL = 30 * time.Second

type Service struct {
	db    *pgxpool.Pool
	cache *cache.Cache
}

func NewService(db *pgxpool.Pool, c *cache.Cache) *Service {
	return &Service{db: db, cache: c}
}

type CreateRequest struct {
	Name     string          `json:"name"`
	Settings json.RawMessage `json:"settings"`
}

type UpdateRequest struct {
	Name     *string         `json:"name"`
	Settings json.RawMessage `json:"settings"`
	Archived *bool           `json:"archived"`
}

func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, req CreateRequest) (*models.Workspace, error) {
	if req.Name == "" {
		req.Name = "My Workspace"
	}
	if len(req.Settings) == 0 {
		req.Settings = json.RawMessage(`{}`)
	}
	var w models.Workspace
	err := s.db.QueryRow(ctx,
		`INSERT INTO workspaces (name, owner_id, settings) VALUES ($1, $2, $3)
		 RETURNING id, name, owner_id, settings, archived, created_at, updated_at`,
		req.Name, ownerID, req.Settings,
	).Scan(&w.ID, &w.Name, &w.OwnerID, &w.Settings, &w.Archived, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, apperr.Internal("create workspace", err)
	}
	return &w, nil
}

// List returns the caller's workspaces. archived filters by archive
// state; nil means all.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID, archived *bool) ([]models.Workspace, error) {
	query := `SELECT id, name, owner_id, settings, archived, created_at, updated_at
	          FROM workspaces WHERE owner_id = $1`
	args := []any{ownerID}
	if archived != nil {
		query += ` AND archived = $2`
		args = append(args, *archived)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internal("list workspaces", err)
	}
	defer rows.Close()

	workspaces := []models.Workspace{}
	for rows.Next() {
		var w models.Workspace
		if err := rows.Scan(&w.ID, &w.Name, &w.OwnerID, &w.Settings, &w.Archived, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, apperr.Internal("scan workspace", err)
		}
		workspaces = append(workspaces, w)
	}
	return workspaces, rows.Err()
}

// GetOwned returns the workspace only if the caller owns it; a foreign
// or missing workspace is NotFound either way, so existence is not
// leaked across tenants.
func (s *Service) GetOwned(ctx context.Context, id, ownerID uuid.UUID) (*models.Workspace, error) {
	var w models.Workspace
	err := s.db.QueryRow(ctx,
		`SELECT id, name, owner_id, settings, archived, created_at, updated_at
		 FROM workspaces WHERE id = $1 AND owner_id = $2`, id, ownerID,
	).Scan(&w.ID, &w.Name, &w.OwnerID, &w.Settings, &w.Archived, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("workspace not found")
	}
	if err != nil {
		return nil, apperr.Internal("get workspace", err)
	}
	return &w, nil
}

func (s *Service) Update(ctx context.Context, id, ownerID uuid.UUID, req UpdateRequest) (*models.Workspace, error) {
	w, err := s.GetOwned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		w.Name = *req.Name
	}
	if req.Settings != nil {
		w.Settings = req.Settings
	}
	if req.Archived != nil {
		w.Archived = *req.Archived
	}

	err = s.db.QueryRow(ctx,
		`UPDATE workspaces SET name = $1, settings = $2, archived = $3, updated_at = now()
		 WHERE id = $4 RETURNING updated_at`,
		w.Name, w.Settings, w.Archived, w.ID,
	).Scan(&w.UpdatedAt)
	if err != nil {
		return nil, apperr.Internal("update workspace", err)
	}

	s.invalidateSettings(ctx, w.ID)
	return w, nil
}

func (s *Service) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	if _, err := s.GetOwned(ctx, id, ownerID); err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM workspaces WHERE id = $1`, id); err != nil {
		return apperr.Internal("delete workspace", err)
	}
	s.invalidateSettings(ctx, id)
	return nil
}

// GetSettings fetches parsed settings for the agent read hot path,
// through the redis cache when one is wired.
func (s *Service) GetSettings(ctx context.Context, id uuid.UUID) (Settings, error) {
	key := settingsCacheKey(id)
	if s.cache != nil {
		var raw json.RawMessage
		if err := s.cache.Get(ctx, key, &raw); err == nil {
			return ParseSettings(raw), nil
		}
	}

	var raw json.RawMessage
	err := s.db.QueryRow(ctx, `SELECT settings FROM workspaces WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return Settings{}, apperr.NotFound("workspace not found")
	}
	if err != nil {
		return Settings{}, apperr.Internal("get workspace settings", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, raw, settingsCacheTTL); err != nil {
			slog.Warn("settings cache set failed", "workspace_id", id, "error", err)
		}
	}
	return ParseSettings(raw), nil
}

func (s *Service) invalidateSettings(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, settingsCacheKey(id)); err != nil {
		slog.Warn("settings cache invalidation failed", "workspace_id", id, "error", err)
	}
}

func settingsCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("workspace:settings:%s", id)
}
