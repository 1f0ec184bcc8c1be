package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewdeck/crewdeck/internal/models"
)

// ErrCursorNotFound is returned when an after-cursor id does not
// resolve to a message in the workspace.
var ErrCursorNotFound = errors.New("cursor message not found")

// ListOptions control a cursor page. Exactly one ordering convention is
// observable: pages are always returned in chronological order. When
// NewestFirst is set the page is anchored at the newest matching
// messages (fetched descending, then reversed); otherwise it is
// anchored at the oldest (fetched ascending). Before and AfterID are
// exclusive bounds on the creation marker.
type ListOptions struct {
	Limit       int
	Before      *time.Time
	AfterID     *uuid.UUID
	UnseenOnly  bool
	NewestFirst bool
}

// Repository is the append-only message store. The pgx implementation
// backs production; tests use an in-memory fake.
type Repository interface {
	Append(ctx context.Context, m *models.Message) (*models.Message, error)
	List(ctx context.Context, workspaceID uuid.UUID, opts ListOptions) ([]models.Message, bool, error)
	// Acknowledge sets seen_at for the given ids that belong to the
	// workspace, are user-authored, and are still unseen. Idempotent;
	// returns the number actually updated.
	Acknowledge(ctx context.Context, workspaceID uuid.UUID, ids []uuid.UUID, now time.Time) (int64, error)
	// SenderNames resolves user ids to display names for the response
	// envelope.
	SenderNames(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]senderInfo, error)
}

type senderInfo struct {
	Name      string
	AvatarURL *string
}

type PgRepository struct {
	db *pgxpool.Pool
}

func NewPgRepository(db *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: db}
}

func (r *PgRepository) Append(ctx context.Context, m *models.Message) (*models.Message, error) {
	metadata := m.Metadata
	if len(metadata) == 0 {
		metadata = []byte(`{}`)
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO messages (workspace_id, user_id, agent_name, content, metadata, message_type)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		m.WorkspaceID, m.UserID, m.AgentName, m.Content, metadata, m.MessageType,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	m.Metadata = metadata
	return m, nil
}

func (r *PgRepository) List(ctx context.Context, workspaceID uuid.UUID, opts ListOptions) ([]models.Message, bool, error) {
	query := `SELECT id, workspace_id, user_id, agent_name, content, metadata, message_type, created_at, seen_at
	          FROM messages WHERE workspace_id = $1`
	args := []any{workspaceID}

	if opts.UnseenOnly {
		query += ` AND seen_at IS NULL AND user_id IS NOT NULL`
	}

	if opts.AfterID != nil {
		// Resolve the cursor id to its creation marker, scoped to the
		// workspace so foreign ids cannot anchor a page here.
		var after time.Time
		err := r.db.QueryRow(ctx,
			`SELECT created_at FROM messages WHERE id = $1 AND workspace_id = $2`,
			*opts.AfterID, workspaceID).Scan(&after)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrCursorNotFound
		}
		if err != nil {
			return nil, false, fmt.Errorf("resolve after cursor: %w", err)
		}
		args = append(args, after)
		query += fmt.Sprintf(` AND created_at > $%d`, len(args))
	} else if opts.Before != nil {
		args = append(args, *opts.Before)
		query += fmt.Sprintf(` AND created_at < $%d`, len(args))
	}

	order := "ASC"
	if opts.NewestFirst {
		order = "DESC"
	}
	args = append(args, opts.Limit+1)
	query += fmt.Sprintf(` ORDER BY created_at %s LIMIT $%d`, order, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var page []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.WorkspaceID, &m.UserID, &m.AgentName, &m.Content,
			&m.Metadata, &m.MessageType, &m.CreatedAt, &m.SeenAt); err != nil {
			return nil, false, fmt.Errorf("scan message: %w", err)
		}
		page = append(page, m)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	hasMore := len(page) > opts.Limit
	if hasMore {
		page = page[:opts.Limit]
	}
	if opts.NewestFirst {
		reverse(page)
	}
	return page, hasMore, nil
}

func (r *PgRepository) Acknowledge(ctx context.Context, workspaceID uuid.UUID, ids []uuid.UUID, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE messages SET seen_at = $1
		 WHERE id = ANY($2)
		   AND workspace_id = $3
		   AND user_id IS NOT NULL
		   AND seen_at IS NULL`,
		now, ids, workspaceID)
	if err != nil {
		return 0, fmt.Errorf("acknowledge messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) SenderNames(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]senderInfo, error) {
	names := make(map[uuid.UUID]senderInfo, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, name, avatar_url FROM users WHERE id = ANY($1)`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("sender names: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		var info senderInfo
		if err := rows.Scan(&id, &info.Name, &info.AvatarURL); err != nil {
			return nil, fmt.Errorf("scan sender: %w", err)
		}
		names[id] = info
	}
	return names, rows.Err()
}

func reverse(msgs []models.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
