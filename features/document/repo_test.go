package document_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragmine/features/document"
)

func documentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "workspace_id", "type", "title", "source_location", "inline_payload",
		"status", "size_bytes", "error_reason", "crawl_depth", "created_at",
		"updated_at", "processed_at",
	})
}

func TestPostgresRepo_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	doc := &document.Document{
		WorkspaceID:   "ws-1",
		Type:          document.TypeText,
		Title:         "Returns policy",
		InlinePayload: "Items can be returned within 30 days.",
		Status:        document.StatusSubmitted,
		SizeBytes:     37,
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO documents")).
		WithArgs("ws-1", "text", "Returns policy", "", doc.InlinePayload, "submitted", int64(37), 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("doc-1", time.Now(), time.Now()))

	require.NoError(t, repo.Save(context.Background(), doc))
	assert.Equal(t, "doc-1", doc.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	t.Run("Success", func(t *testing.T) {
		processedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		mock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE id = $1")).
			WithArgs("doc-1").
			WillReturnRows(documentRows().AddRow(
				"doc-1", "ws-1", "file", "Manual", "data/uploads/abc_manual.pdf", "",
				"processed", int64(2048), "", 0, time.Now(), time.Now(), processedAt,
			))

		doc, err := repo.Get(context.Background(), "doc-1")
		require.NoError(t, err)
		assert.Equal(t, document.TypeFile, doc.Type)
		assert.Equal(t, "data/uploads/abc_manual.pdf", doc.SourceLocation)
		require.NotNil(t, doc.ProcessedAt)
		assert.True(t, doc.ProcessedAt.Equal(processedAt))
	})

	t.Run("NullProcessedAt", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE id = $1")).
			WithArgs("doc-2").
			WillReturnRows(documentRows().AddRow(
				"doc-2", "ws-1", "text", "", "", "hello",
				"pending", int64(5), "", 0, time.Now(), time.Now(), nil,
			))

		doc, err := repo.Get(context.Background(), "doc-2")
		require.NoError(t, err)
		assert.Nil(t, doc.ProcessedAt)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE id = $1")).
			WithArgs("missing").
			WillReturnRows(documentRows())

		_, err := repo.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, document.ErrNotFound)
	})
}

func TestPostgresRepo_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("FirstPageOverfetchesByOne", func(t *testing.T) {
		// limit 2 asks for 3 rows; a full extra row means there is a
		// next page.
		mock.ExpectQuery(regexp.QuoteMeta("WHERE workspace_id = $1 ORDER BY created_at DESC, id DESC LIMIT 3")).
			WithArgs("ws-1").
			WillReturnRows(documentRows().
				AddRow("doc-3", "ws-1", "text", "", "", "c", "processed", int64(1), "", 0, base.Add(2*time.Hour), base, nil).
				AddRow("doc-2", "ws-1", "text", "", "", "b", "processed", int64(1), "", 0, base.Add(time.Hour), base, nil).
				AddRow("doc-1", "ws-1", "text", "", "", "a", "processed", int64(1), "", 0, base, base, nil))

		page, err := repo.List(context.Background(), "ws-1", "", "", 2)
		require.NoError(t, err)
		require.Len(t, page.Documents, 2)
		assert.Equal(t, "doc-3", page.Documents[0].ID)
		assert.NotEmpty(t, page.NextToken)

		// The token resumes strictly after the last returned row.
		mock.ExpectQuery(regexp.QuoteMeta("WHERE workspace_id = $1 AND (created_at, id) < ($2, $3) ORDER BY created_at DESC, id DESC LIMIT 3")).
			WithArgs("ws-1", base.Add(time.Hour), "doc-2").
			WillReturnRows(documentRows().
				AddRow("doc-1", "ws-1", "text", "", "", "a", "processed", int64(1), "", 0, base, base, nil))

		next, err := repo.List(context.Background(), "ws-1", "", page.NextToken, 2)
		require.NoError(t, err)
		require.Len(t, next.Documents, 1)
		assert.Equal(t, "doc-1", next.Documents[0].ID)
		assert.Empty(t, next.NextToken)
	})

	t.Run("StatusFilter", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("WHERE workspace_id = $1 AND status = $2 ORDER BY created_at DESC, id DESC LIMIT 51")).
			WithArgs("ws-1", "error").
			WillReturnRows(documentRows())

		page, err := repo.List(context.Background(), "ws-1", "error", "", 0)
		require.NoError(t, err)
		assert.Empty(t, page.Documents)
	})

	t.Run("GarbageToken", func(t *testing.T) {
		_, err := repo.List(context.Background(), "ws-1", "", "not-base64!", 10)
		assert.Error(t, err)
	})
}

func TestPostgresRepo_TransitionStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	t.Run("Moved", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3")).
			WithArgs("pending", "doc-1", "submitted").
			WillReturnResult(sqlmock.NewResult(0, 1))

		moved, err := repo.TransitionStatus(context.Background(), "doc-1", "submitted", "pending")
		require.NoError(t, err)
		assert.True(t, moved)
	})

	t.Run("GuardFails", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET status")).
			WithArgs("pending", "doc-1", "submitted").
			WillReturnResult(sqlmock.NewResult(0, 0))

		moved, err := repo.TransitionStatus(context.Background(), "doc-1", "submitted", "pending")
		require.NoError(t, err)
		assert.False(t, moved)
	})
}

func TestPostgresRepo_MarkProcessed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	t.Run("FromProcessing", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET status = $1, processed_at = NOW()")).
			WithArgs("processed", "doc-1", "processing").
			WillReturnResult(sqlmock.NewResult(0, 1))

		moved, err := repo.MarkProcessed(context.Background(), "doc-1")
		require.NoError(t, err)
		assert.True(t, moved)
	})

	t.Run("LostRace", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET status = $1, processed_at = NOW()")).
			WithArgs("processed", "doc-1", "processing").
			WillReturnResult(sqlmock.NewResult(0, 0))

		moved, err := repo.MarkProcessed(context.Background(), "doc-1")
		require.NoError(t, err)
		assert.False(t, moved)
	})
}

func TestPostgresRepo_ReplaceChunks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)
	doc := &document.Document{ID: "doc-1", WorkspaceID: "ws-1"}
	chunks := []document.Chunk{
		{ID: "c-1", Index: 0, Content: "first", StartOffset: 0, EndOffset: 5},
		{ID: "c-2", Index: 1, Content: "second", StartOffset: 5, EndOffset: 11},
	}

	t.Run("SwapIsTransactional", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM chunks WHERE document_id = $1")).
			WithArgs("doc-1").
			WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO chunks")).
			WithArgs("c-1", "doc-1", "ws-1", 0, "first", 0, 5).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO chunks")).
			WithArgs("c-2", "doc-1", "ws-1", 1, "second", 5, 11).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.ReplaceChunks(context.Background(), doc, chunks))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InsertFailureRollsBack", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM chunks")).
			WithArgs("doc-1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO chunks")).
			WithArgs("c-1", "doc-1", "ws-1", 0, "first", 0, 5).
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		assert.Error(t, repo.ReplaceChunks(context.Background(), doc, chunks))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresRepo_CountByStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	t.Run("AllWorkspaces", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) FROM documents GROUP BY status")).
			WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
				AddRow("processed", 12).
				AddRow("error", 2))

		counts, err := repo.CountByStatus(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"processed": 12, "error": 2}, counts)
	})

	t.Run("SingleWorkspace", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("WHERE workspace_id = $1 GROUP BY status")).
			WithArgs("ws-1").
			WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
				AddRow("processing", 1))

		counts, err := repo.CountByStatus(context.Background(), "ws-1")
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"processing": 1}, counts)
	})
}
