package settings

import (
	"context"
	"database/sql"
	"errors"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Get(ctx context.Context, key string) (Record, bool, error) {
	const q = `
SELECT key, value, COALESCE(updated_by, ''), updated_at
FROM platform_settings
WHERE key = $1
`
	var rec Record
	if err := r.db.QueryRowContext(ctx, q, key).Scan(&rec.Key, &rec.Value, &rec.UpdatedBy, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return rec, true, nil
}

func (r *PostgresRepo) Put(ctx context.Context, rec Record) error {
	const q = `
INSERT INTO platform_settings (key, value, updated_by, updated_at)
VALUES ($1, $2, NULLIF($3, ''), $4)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at
`
	_, err := r.db.ExecContext(ctx, q, rec.Key, rec.Value, rec.UpdatedBy, rec.UpdatedAt)
	return err
}
