// Package users handles account registration and password credential
// checks for the human session path. Token signing lives in
// internal/auth; this package only owns the user records.
package users

import (
	"context"
	"errors"

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

func (s *Service) Register(ctx context.Context, email, name, password string) (*models.User, error) {
	if email == "" || password == "" {
		return nil, apperr.BadRequest("email and password required")
	}
	if name == "" {
		name = email
	}

	var exists bool
	if err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists); err != nil {
		return nil, apperr.Internal("check email", err)
	}
	if exists {
		return nil, apperr.BadRequest("email already registered")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}

	var u models.User
	err = s.db.QueryRow(ctx,
		`INSERT INTO users (email, name, password_hash) VALUES ($1, $2, $3)
		 RETURNING id, email, name, password_hash, avatar_url, created_at, updated_at`,
		email, name, hash,
	).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, apperr.Internal("create user", err)
	}
	return &u, nil
}

// Authenticate verifies an email/password pair. The same Unauthorized
// comes back whether the email or the password was wrong.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx,
		`SELECT id, email, name, password_hash, avatar_url, created_at, updated_at
		 FROM users WHERE email = $1`, email,
	).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Unauthorized("incorrect email or password")
	}
	if err != nil {
		return nil, apperr.Internal("get user", err)
	}
	if u.PasswordHash == "" || !auth.CheckPassword(u.PasswordHash, password) {
		return nil, apperr.Unauthorized("incorrect email or password")
	}
	return &u, nil
}

type UpdateRequest struct {
	Name      *string `json:"name"`
	AvatarURL *string `json:"avatar_url"`
}

func (s *Service) Update(ctx context.Context, userID uuid.UUID, req UpdateRequest) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx,
		`UPDATE users
		 SET name = COALESCE($1, name), avatar_url = COALESCE($2, avatar_url), updated_at = now()
		 WHERE id = $3
		 RETURNING id, email, name, password_hash, avatar_url, created_at, updated_at`,
		req.Name, req.AvatarURL, userID,
	).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Internal("update user", err)
	}
	return &u, nil
}

func (s *Service) ChangePassword(ctx context.Context, user *models.User, current, next string) error {
	if next == "" {
		return apperr.BadRequest("new password required")
	}
	if user.PasswordHash != "" && !auth.CheckPassword(user.PasswordHash, current) {
		return apperr.Unauthorized("incorrect password")
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return apperr.Internal("hash password", err)
	}
	if _, err := s.db.Exec(ctx,
		`UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2`, hash, user.ID); err != nil {
		return apperr.Internal("update password", err)
	}
	return nil
}
