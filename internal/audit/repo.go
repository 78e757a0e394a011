package audit

import (
	"context"
	"database/sql"
	"time"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Record(ctx context.Context, entityType, entityID, from, to, reason string) error {
	query := `INSERT INTO status_transitions (entity_type, entity_id, from_status, to_status, reason) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query, entityType, entityID, from, to, reason)
	return err
}

func (r *PostgresRepo) List(ctx context.Context, entityID string) ([]Transition, error) {
	query := `SELECT id, entity_type, entity_id, from_status, to_status, reason, created_at FROM status_transitions WHERE entity_id = $1 ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transitions []Transition
	for rows.Next() {
		var t Transition
		if err := rows.Scan(&t.ID, &t.EntityType, &t.EntityID, &t.FromStatus, &t.ToStatus, &t.Reason, &t.CreatedAt); err != nil {
			return nil, err
		}
		transitions = append(transitions, t)
	}
	return transitions, rows.Err()
}

// Stuck finds entities whose most recent transition moved them into the
// given status longer ago than olderThan, with no transition since.
func (r *PostgresRepo) Stuck(ctx context.Context, entityType, status string, olderThan time.Duration) ([]StuckEntity, error) {
	query := `SELECT t.entity_id, t.created_at
		FROM status_transitions t
		JOIN (
			SELECT entity_id, MAX(created_at) AS latest
			FROM status_transitions
			WHERE entity_type = $1
			GROUP BY entity_id
		) last ON last.entity_id = t.entity_id AND last.latest = t.created_at
		WHERE t.entity_type = $1 AND t.to_status = $2 AND t.created_at < $3
		ORDER BY t.created_at ASC`

	cutoff := time.Now().Add(-olderThan)
	rows, err := r.db.QueryContext(ctx, query, entityType, status, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stuck []StuckEntity
	for rows.Next() {
		s := StuckEntity{EntityType: entityType, Status: status}
		if err := rows.Scan(&s.EntityID, &s.Since); err != nil {
			return nil, err
		}
		stuck = append(stuck, s)
	}
	return stuck, rows.Err()
}
