// Package worker hosts the NSQ consumers that run the asynchronous
// units of work: one document's processing cycle, one website crawl, one
// workspace teardown. Every consumer is idempotent because NSQ delivers
// at least once.
package worker

import (
	"context"

	"ragmine/features/document"
	"ragmine/features/workspace"
	"ragmine/internal/embeddings"
	"ragmine/internal/importer"
)

// WorkspaceStore is the slice of the workspace repository the consumers
// need. Status is re-read before every engine write so a deletion in
// flight aborts ingestion at the next suspension point.
type WorkspaceStore interface {
	Get(ctx context.Context, id string) (*workspace.Workspace, error)
	TransitionStatus(ctx context.Context, id, expected, next string) (bool, error)
	SetCollectionRef(ctx context.Context, id, ref string) error
	Delete(ctx context.Context, id string) error
}

type DocumentStore interface {
	Get(ctx context.Context, id string) (*document.Document, error)
	TransitionStatus(ctx context.Context, id, expected, next string) (bool, error)
	SetError(ctx context.Context, id, reason string) error
	MarkProcessed(ctx context.Context, id string) (bool, error)
	ReplaceChunks(ctx context.Context, doc *document.Document, chunks []document.Chunk) error
	DeleteByWorkspace(ctx context.Context, workspaceID string) error
}

type Embedder interface {
	Embed(ctx context.Context, model embeddings.Model, texts []string) ([][]float32, error)
}

// EmbedderResolver picks the provider for a workspace's pinned model.
type EmbedderResolver interface {
	For(m embeddings.Model) (embeddings.Provider, error)
}

type Crawler interface {
	Crawl(ctx context.Context, startURL string, maxDepth int) ([]importer.Page, error)
}

type PageImporter interface {
	ImportPages(ctx context.Context, workspaceID string, pages []importer.Page) ([]string, error)
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}
