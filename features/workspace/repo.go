package workspace

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"ragmine/internal/engine"
)

var (
	ErrNotFound  = errors.New("workspace not found")
	ErrNameTaken = errors.New("workspace name already in use")
)

type Repository interface {
	Save(ctx context.Context, ws *Workspace) error
	Get(ctx context.Context, id string) (*Workspace, error)
	List(ctx context.Context, owner string) ([]Workspace, error)
	// TransitionStatus applies a conditional status update: it succeeds
	// only when the row's current status matches expected. A false return
	// with nil error means someone else already moved the row.
	TransitionStatus(ctx context.Context, id, expected, next string) (bool, error)
	SetError(ctx context.Context, id, reason string) error
	Rename(ctx context.Context, id, name string) error
	SetCollectionRef(ctx context.Context, id, ref string) error
	Delete(ctx context.Context, id string) error
	CountByStatus(ctx context.Context) (map[string]int, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, ws *Workspace) error {
	query := `INSERT INTO workspaces (name, owner, engine, status, embedding_model, dimensions, chunk_size, chunk_overlap, hybrid, index_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		ws.Name, ws.Owner, string(ws.Engine), ws.Status, ws.EmbeddingModel,
		ws.Dimensions, ws.ChunkSize, ws.ChunkOverlap, ws.Hybrid, ws.IndexRef,
	).Scan(&ws.ID, &ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrNameTaken
		}
		return err
	}
	return nil
}

const workspaceColumns = `id, name, owner, engine, status, embedding_model, dimensions, chunk_size, chunk_overlap, hybrid, index_ref, collection_ref, error_reason, created_at, updated_at`

func (r *PostgresRepo) scan(row interface{ Scan(...interface{}) error }) (*Workspace, error) {
	ws := &Workspace{}
	var eng string
	err := row.Scan(&ws.ID, &ws.Name, &ws.Owner, &eng, &ws.Status, &ws.EmbeddingModel,
		&ws.Dimensions, &ws.ChunkSize, &ws.ChunkOverlap, &ws.Hybrid, &ws.IndexRef,
		&ws.CollectionRef, &ws.ErrorReason, &ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		return nil, err
	}
	ws.Engine = engine.Kind(eng)
	return ws, nil
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Workspace, error) {
	query := `SELECT ` + workspaceColumns + ` FROM workspaces WHERE id = $1`
	ws, err := r.scan(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ws, err
}

func (r *PostgresRepo) List(ctx context.Context, owner string) ([]Workspace, error) {
	query := `SELECT ` + workspaceColumns + ` FROM workspaces ORDER BY created_at DESC`
	args := []interface{}{}
	if owner != "" {
		query = `SELECT ` + workspaceColumns + ` FROM workspaces WHERE owner = $1 ORDER BY created_at DESC`
		args = append(args, owner)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workspaces []Workspace
	for rows.Next() {
		ws, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		workspaces = append(workspaces, *ws)
	}
	return workspaces, rows.Err()
}

func (r *PostgresRepo) TransitionStatus(ctx context.Context, id, expected, next string) (bool, error) {
	query := `UPDATE workspaces SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`
	res, err := r.db.ExecContext(ctx, query, next, id, expected)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *PostgresRepo) SetError(ctx context.Context, id, reason string) error {
	query := `UPDATE workspaces SET status = $1, error_reason = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, StatusError, reason, id)
	return err
}

func (r *PostgresRepo) Rename(ctx context.Context, id, name string) error {
	query := `UPDATE workspaces SET name = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, name, id)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrNameTaken
		}
		return err
	}
	return nil
}

func (r *PostgresRepo) SetCollectionRef(ctx context.Context, id, ref string) error {
	query := `UPDATE workspaces SET collection_ref = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, ref, id)
	return err
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM workspaces WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM workspaces GROUP BY status`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
