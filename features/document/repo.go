package document

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("document not found")

// Page is one page of a filtered document listing. NextToken is opaque
// to callers and empty on the last page.
type Page struct {
	Documents []Document `json:"documents"`
	NextToken string     `json:"next_token,omitempty"`
}

type Repository interface {
	Save(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	// List pages through a workspace's documents, optionally filtered by
	// status, ordered by (created_at, id) descending with keyset
	// pagination.
	List(ctx context.Context, workspaceID, status, pageToken string, limit int) (*Page, error)
	TransitionStatus(ctx context.Context, id, expected, next string) (bool, error)
	SetError(ctx context.Context, id, reason string) error
	MarkProcessed(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	DeleteByWorkspace(ctx context.Context, workspaceID string) error

	ReplaceChunks(ctx context.Context, doc *Document, chunks []Chunk) error
	GetChunks(ctx context.Context, documentID string) ([]Chunk, error)
	CountByStatus(ctx context.Context, workspaceID string) (map[string]int, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, doc *Document) error {
	query := `INSERT INTO documents (workspace_id, type, title, source_location, inline_payload, status, size_bytes, crawl_depth)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query,
		doc.WorkspaceID, doc.Type, doc.Title, doc.SourceLocation, doc.InlinePayload,
		doc.Status, doc.SizeBytes, doc.CrawlDepth,
	).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
}

const documentColumns = `id, workspace_id, type, title, source_location, inline_payload, status, size_bytes, error_reason, crawl_depth, created_at, updated_at, processed_at`

func scanDocument(row interface{ Scan(...interface{}) error }) (*Document, error) {
	doc := &Document{}
	var processedAt sql.NullTime
	err := row.Scan(&doc.ID, &doc.WorkspaceID, &doc.Type, &doc.Title, &doc.SourceLocation,
		&doc.InlinePayload, &doc.Status, &doc.SizeBytes, &doc.ErrorReason, &doc.CrawlDepth,
		&doc.CreatedAt, &doc.UpdatedAt, &processedAt)
	if err != nil {
		return nil, err
	}
	if processedAt.Valid {
		doc.ProcessedAt = &processedAt.Time
	}
	return doc, nil
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return doc, err
}

func (r *PostgresRepo) List(ctx context.Context, workspaceID, status, pageToken string, limit int) (*Page, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	conds := []string{"workspace_id = $1"}
	args := []interface{}{workspaceID}
	if status != "" {
		args = append(args, status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if pageToken != "" {
		createdAt, id, err := decodeToken(pageToken)
		if err != nil {
			return nil, err
		}
		args = append(args, createdAt, id)
		conds = append(conds, fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}

	query := fmt.Sprintf(`SELECT `+documentColumns+` FROM documents WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d`,
		strings.Join(conds, " AND "), limit+1)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page := &Page{}
	if len(docs) > limit {
		docs = docs[:limit]
		last := docs[len(docs)-1]
		page.NextToken = encodeToken(last.CreatedAt, last.ID)
	}
	page.Documents = docs
	return page, nil
}

func (r *PostgresRepo) TransitionStatus(ctx context.Context, id, expected, next string) (bool, error) {
	query := `UPDATE documents SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`
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
	query := `UPDATE documents SET status = $1, error_reason = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, StatusError, reason, id)
	return err
}

func (r *PostgresRepo) MarkProcessed(ctx context.Context, id string) (bool, error) {
	query := `UPDATE documents SET status = $1, processed_at = NOW(), updated_at = NOW(), error_reason = '' WHERE id = $2 AND status = $3`
	res, err := r.db.ExecContext(ctx, query, StatusProcessed, id, StatusProcessing)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	// Chunks go via ON DELETE CASCADE.
	query := `DELETE FROM documents WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresRepo) DeleteByWorkspace(ctx context.Context, workspaceID string) error {
	query := `DELETE FROM documents WHERE workspace_id = $1`
	_, err := r.db.ExecContext(ctx, query, workspaceID)
	return err
}

// ReplaceChunks swaps a document's chunk set atomically. Reprocessing a
// document always runs through here, so a retried cycle can never leave
// a mix of old and new chunks behind.
func (r *PostgresRepo) ReplaceChunks(ctx context.Context, doc *Document, chunks []Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, doc.ID); err != nil {
		return err
	}

	insert := `INSERT INTO chunks (id, document_id, workspace_id, chunk_index, content, start_offset, end_offset)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx, insert, c.ID, doc.ID, doc.WorkspaceID, c.Index, c.Content, c.StartOffset, c.EndOffset); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *PostgresRepo) GetChunks(ctx context.Context, documentID string) ([]Chunk, error) {
	query := `SELECT id, document_id, workspace_id, chunk_index, content, start_offset, end_offset FROM chunks WHERE document_id = $1 ORDER BY chunk_index ASC`
	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.WorkspaceID, &c.Index, &c.Content, &c.StartOffset, &c.EndOffset); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (r *PostgresRepo) CountByStatus(ctx context.Context, workspaceID string) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM documents GROUP BY status`
	args := []interface{}{}
	if workspaceID != "" {
		query = `SELECT status, COUNT(*) FROM documents WHERE workspace_id = $1 GROUP BY status`
		args = append(args, workspaceID)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
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

func encodeToken(createdAt time.Time, id string) string {
	raw := fmt.Sprintf("%s|%s", createdAt.UTC().Format(time.RFC3339Nano), id)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

func decodeToken(token string) (time.Time, string, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid page token")
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", fmt.Errorf("invalid page token")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid page token")
	}
	return createdAt, parts[1], nil
}
