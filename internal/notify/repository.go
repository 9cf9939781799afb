package notify

import (
	"context"
	"database/sql"
	"sort"
	"sync"
)

// Repository stores in-app notifications.
type Repository interface {
	Insert(ctx context.Context, n Notification) error
	// List returns the user's notifications, or admin-audience ones when userID is empty.
	List(ctx context.Context, userID string, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
}

type MemoryRepo struct {
	mu   sync.Mutex
	rows []Notification
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Insert(ctx context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, n)
	return nil
}

func (r *MemoryRepo) List(ctx context.Context, userID string, limit int) ([]Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, 0)
	for _, n := range r.rows {
		if matchesRecipient(n, userID) {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) MarkRead(ctx context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, n := range r.rows {
		if n.ID == id && matchesRecipient(n, userID) {
			r.rows[i].IsRead = true
		}
	}
	return nil
}

func matchesRecipient(n Notification, userID string) bool {
	if userID == "" {
		return n.Audience == AudienceAdmin
	}
	return n.Audience == AudienceUser && n.UserID == userID
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Insert(ctx context.Context, n Notification) error {
	const q = `
INSERT INTO notifications (id, user_id, audience, type, title, message, is_read, created_at)
VALUES ($1, NULLIF($2,''), $3, $4, $5, $6, $7, $8)
`
	_, err := r.db.ExecContext(ctx, q, n.ID, n.UserID, string(n.Audience), n.Type, n.Title, n.Message, n.IsRead, n.CreatedAt)
	return err
}

func (r *PostgresRepo) List(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, COALESCE(user_id,''), audience, type, title, message, is_read, created_at
FROM notifications
WHERE CASE WHEN $1::text = '' THEN audience = 'admin' ELSE audience = 'user' AND user_id = $1 END
ORDER BY created_at DESC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Notification, 0)
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Audience, &n.Type, &n.Title, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) MarkRead(ctx context.Context, userID, id string) error {
	const q = `
UPDATE notifications SET is_read = TRUE
WHERE id = $2 AND CASE WHEN $1::text = '' THEN audience = 'admin' ELSE user_id = $1 END
`
	_, err := r.db.ExecContext(ctx, q, userID, id)
	return err
}
