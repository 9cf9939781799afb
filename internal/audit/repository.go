package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo writes to audit_events, which rejects UPDATE and DELETE.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, type, actor_user_id, actor_role, ip_address, subject_user, entity_type, entity_id, message, metadata, created_at
) VALUES (
  $1, $2, NULLIF($3,''), NULLIF($4,''), NULLIF($5,''), NULLIF($6,''), NULLIF($7,''), NULLIF($8,''), NULLIF($9,''),
  NULLIF($10,'')::jsonb, $11
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		string(e.Type),
		e.ActorUserID,
		e.ActorRole,
		e.IPAddress,
		e.SubjectUserID,
		e.EntityType,
		e.EntityID,
		e.Message,
		e.Metadata,
		e.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) List(ctx context.Context, f Filter) ([]Event, error) {
	const q = `
SELECT id, type, COALESCE(actor_user_id,''), COALESCE(actor_role,''), COALESCE(ip_address,''),
       COALESCE(subject_user,''), COALESCE(entity_type,''), COALESCE(entity_id,''), COALESCE(message,''),
       COALESCE(metadata::text,''), created_at
FROM audit_events
WHERE ($1::text = '' OR subject_user = $1)
  AND ($2::text = '' OR actor_user_id = $2)
  AND ($3::text = '' OR type = $3)
  AND ($4::text = '' OR entity_type = $4)
  AND ($5::text = '' OR entity_id = $5)
  AND ($6::timestamptz IS NULL OR created_at >= $6)
ORDER BY created_at DESC
LIMIT $7
`
	var since any
	if !f.Since.IsZero() {
		since = f.Since
	}
	rows, err := r.db.QueryContext(ctx, q,
		f.SubjectUserID, f.ActorUserID, string(f.Type), f.EntityType, f.EntityID, since, f.limit())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var e Event
		if err := rows.Scan(
			&e.ID,
			&e.Type,
			&e.ActorUserID,
			&e.ActorRole,
			&e.IPAddress,
			&e.SubjectUserID,
			&e.EntityType,
			&e.EntityID,
			&e.Message,
			&e.Metadata,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
