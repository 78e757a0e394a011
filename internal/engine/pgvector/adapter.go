// Package pgvector implements the relational-vector engine: one pgvector
// table per workspace inside the service's Postgres instance.
package pgvector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"ragmine/internal/engine"
)

type Adapter struct {
	db *sql.DB
}

func NewAdapter(db *sql.DB) *Adapter {
	return &Adapter{db: db}
}

// tableName derives a stable, safe identifier from the workspace id.
// Identifiers cannot be parameterized, so everything outside [a-z0-9] is
// stripped before interpolation.
func tableName(workspaceID string) string {
	var b strings.Builder
	b.WriteString("ws_")
	for _, r := range strings.ToLower(workspaceID) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (a *Adapter) CreateCollection(ctx context.Context, spec engine.CollectionSpec) (engine.Collection, error) {
	coll := engine.Collection{
		WorkspaceID: spec.WorkspaceID,
		Kind:        engine.KindPGVector,
		Ref:         tableName(spec.WorkspaceID),
		Dimensions:  spec.Dimensions,
	}
	if spec.Dimensions <= 0 {
		return engine.Collection{}, fmt.Errorf("%w: dimensions must be positive", engine.ErrEngineConfig)
	}

	// IF NOT EXISTS makes a second provisioning call resolve to the
	// existing table rather than fail.
	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		chunk_id uuid PRIMARY KEY,
		document_id uuid NOT NULL,
		chunk_index int NOT NULL,
		content text NOT NULL,
		title text NOT NULL DEFAULT '',
		source_url text NOT NULL DEFAULT '',
		embedding vector(%d) NOT NULL
	)`, coll.Ref, spec.Dimensions)
	if _, err := a.db.ExecContext(ctx, createTable); err != nil {
		return engine.Collection{}, classify(err)
	}

	createIndex := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`,
		coll.Ref, coll.Ref)
	if _, err := a.db.ExecContext(ctx, createIndex); err != nil {
		return engine.Collection{}, classify(err)
	}

	return coll, nil
}

func (a *Adapter) UpsertVectors(ctx context.Context, coll engine.Collection, records []engine.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := engine.CheckDimensions(coll, records); err != nil {
		return err
	}

	// One transaction per batch: the batch lands whole or not at all.
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`INSERT INTO %s (chunk_id, document_id, chunk_index, content, title, source_url, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7::vector)
		ON CONFLICT (chunk_id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			chunk_index = EXCLUDED.chunk_index,
			content = EXCLUDED.content,
			title = EXCLUDED.title,
			source_url = EXCLUDED.source_url,
			embedding = EXCLUDED.embedding`, coll.Ref)

	for _, rec := range records {
		_, err := tx.ExecContext(ctx, query,
			rec.ChunkID, rec.DocumentID, rec.ChunkIndex, rec.Content, rec.Title, rec.SourceURL,
			vectorLiteral(rec.Vector))
		if err != nil {
			return classify(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

func (a *Adapter) Query(ctx context.Context, coll engine.Collection, q engine.Query) ([]engine.Match, error) {
	if len(q.Vector) != coll.Dimensions {
		return nil, fmt.Errorf("%w: query has %d dims, collection wants %d",
			engine.ErrDimensionMismatch, len(q.Vector), coll.Dimensions)
	}

	args := []interface{}{vectorLiteral(q.Vector)}
	where := ""
	if q.DocumentID != "" {
		where = "WHERE document_id = $2"
		args = append(args, q.DocumentID)
	}

	// Cosine distance ordering; equal scores fall back to chunk order so
	// results are stable.
	query := fmt.Sprintf(`SELECT chunk_id, document_id, chunk_index, content, source_url,
			1 - (embedding <=> $1::vector) AS score
		FROM %s %s
		ORDER BY embedding <=> $1::vector, chunk_index
		LIMIT %d`, coll.Ref, where, q.TopK)

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var matches []engine.Match
	for rows.Next() {
		var m engine.Match
		if err := rows.Scan(&m.ChunkID, &m.DocumentID, &m.ChunkIndex, &m.Content, &m.SourceURL, &m.Score); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (a *Adapter) DeleteDocument(ctx context.Context, coll engine.Collection, documentID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, coll.Ref)
	if _, err := a.db.ExecContext(ctx, query, documentID); err != nil {
		if isUndefinedTable(err) {
			return nil
		}
		return classify(err)
	}
	return nil
}

func (a *Adapter) DeleteCollection(ctx context.Context, coll engine.Collection) error {
	query := fmt.Sprintf(`DROP TABLE IF EXISTS %s`, coll.Ref)
	if _, err := a.db.ExecContext(ctx, query); err != nil {
		return classify(err)
	}
	return nil
}

// vectorLiteral renders a float32 slice in pgvector's input syntax.
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", f)
	}
	b.WriteByte(']')
	return b.String()
}

func isUndefinedTable(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "42P01"
	}
	return false
}

// classify maps Postgres failures onto the engine error taxonomy.
func classify(err error) error {
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code.Class() {
		case "53": // insufficient_resources
			return fmt.Errorf("%w: %v", engine.ErrQuotaExceeded, err)
		case "08", "57": // connection_exception, operator_intervention
			return fmt.Errorf("%w: %v", engine.ErrEngineUnavailable, err)
		case "42": // syntax_error_or_access_rule_violation
			return fmt.Errorf("%w: %v", engine.ErrEngineConfig, err)
		}
		return err
	}
	// Driver-level failures (dead connection, context timeouts) are
	// transient from the caller's point of view.
	return fmt.Errorf("%w: %v", engine.ErrEngineUnavailable, err)
}
