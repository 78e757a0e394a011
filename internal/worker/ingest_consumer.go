package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"
	"golang.org/x/sync/errgroup"

	"ragmine/features/document"
	"ragmine/features/job"
	"ragmine/features/workspace"
	"ragmine/internal/audit"
	"ragmine/internal/config"
	"ragmine/internal/embeddings"
	"ragmine/internal/engine"
	"ragmine/internal/importer"
	"ragmine/internal/metrics"
	"ragmine/internal/middleware"
	"ragmine/internal/text"
)

// upsertBatch bounds how many vector records travel in one engine write.
const upsertBatch = 32

type IngestConsumer struct {
	docs        DocumentStore
	workspaces  WorkspaceStore
	engines     *engine.Registry
	catalog     *embeddings.Catalog
	providers   EmbedderResolver
	jobs        job.Repository
	recorder    audit.Recorder
	concurrency int
}

func NewIngestConsumer(docs DocumentStore, workspaces WorkspaceStore, engines *engine.Registry, catalog *embeddings.Catalog, providers EmbedderResolver, jobs job.Repository, recorder audit.Recorder, concurrency int) *IngestConsumer {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &IngestConsumer{
		docs:        docs,
		workspaces:  workspaces,
		engines:     engines,
		catalog:     catalog,
		providers:   providers,
		jobs:        jobs,
		recorder:    recorder,
		concurrency: concurrency,
	}
}

func (c *IngestConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var task IngestTask
	if err := json.Unmarshal(m.Body, &task); err != nil {
		slog.Error("poison pill: invalid ingest task", "error", err)
		return nil
	}
	if task.DocumentID == "" || task.WorkspaceID == "" {
		slog.Error("dropping ingest task with missing ids", "document_id", task.DocumentID, "workspace_id", task.WorkspaceID)
		return nil
	}

	correlationID := task.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	return c.process(ctx, m.Body, task)
}

func (c *IngestConsumer) process(ctx context.Context, raw []byte, task IngestTask) error {
	started := time.Now()

	doc, err := c.docs.Get(ctx, task.DocumentID)
	if errors.Is(err, document.ErrNotFound) {
		slog.InfoContext(ctx, "document gone, dropping task", "document_id", task.DocumentID)
		return nil
	}
	if err != nil {
		return err // repo hiccup: requeue
	}
	if doc.Status == document.StatusProcessed {
		// Redelivered after completion; already converged.
		return nil
	}
	if doc.Status == document.StatusError {
		// Error is terminal for this cycle; a retry arrives as a fresh
		// document, never by reviving this row.
		slog.InfoContext(ctx, "dropping task for errored document", "document_id", doc.ID)
		return nil
	}
	if doc.Status == document.StatusDisabled {
		// Disabled between publish and delivery; stays out of the
		// engine until someone enables it again.
		slog.InfoContext(ctx, "dropping task for disabled document", "document_id", doc.ID)
		return nil
	}

	ws, err := c.workspaces.Get(ctx, doc.WorkspaceID)
	if errors.Is(err, workspace.ErrNotFound) {
		slog.InfoContext(ctx, "workspace gone, dropping ingest", "workspace_id", doc.WorkspaceID)
		return nil
	}
	if err != nil {
		return err
	}
	if ws.Status != workspace.StatusReady {
		slog.InfoContext(ctx, "workspace not ready, dropping ingest", "workspace_id", ws.ID, "status", ws.Status)
		return nil
	}

	if err := c.run(ctx, ws, doc); err != nil {
		if errors.Is(err, engine.ErrWorkspaceGone) {
			slog.InfoContext(ctx, "ingest aborted: workspace deleted mid-flight", "document_id", doc.ID)
			return nil
		}
		c.fail(ctx, doc, raw, err)
		metrics.DocumentsProcessed.WithLabelValues("error").Inc()
		return nil
	}

	metrics.DocumentsProcessed.WithLabelValues("processed").Inc()
	metrics.IngestDuration.Observe(time.Since(started).Seconds())
	return nil
}

// run executes one full processing cycle: extract, chunk, embed, write.
// Reprocessing starts from scratch every time: old vectors and chunks
// are replaced wholesale, so a cycle that died half-way leaves nothing
// inconsistent behind once a later cycle finishes.
func (c *IngestConsumer) run(ctx context.Context, ws *workspace.Workspace, doc *document.Document) error {
	adapter, err := c.engines.Get(ws.Engine)
	if err != nil {
		return err
	}
	model, err := c.catalog.Lookup(ws.EmbeddingModel)
	if err != nil {
		return err
	}
	provider, err := c.providers.For(model)
	if err != nil {
		return err
	}
	coll := ws.Collection()

	content, err := c.extract(doc)
	if err != nil {
		return err
	}

	raw := text.Split(text.Normalize(content), ws.ChunkSize, ws.ChunkOverlap)
	if len(raw) == 0 {
		return fmt.Errorf("no extractable text")
	}
	chunks := make([]document.Chunk, len(raw))
	for i, ch := range raw {
		chunks[i] = document.Chunk{
			ID:          uuid.New().String(),
			DocumentID:  doc.ID,
			WorkspaceID: ws.ID,
			Index:       ch.Index,
			Content:     ch.Content,
			StartOffset: ch.Start,
			EndOffset:   ch.End,
		}
	}

	// Clear vectors from any earlier cycle before the new ones land.
	if err := adapter.DeleteDocument(ctx, coll, doc.ID); err != nil {
		metrics.EngineErrors.WithLabelValues(string(ws.Engine)).Inc()
		return err
	}
	if err := c.docs.ReplaceChunks(ctx, doc, chunks); err != nil {
		return err
	}
	c.transition(ctx, doc, document.StatusSubmitted, document.StatusPending)

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = contextualize(ws, doc, ch)
	}

	c.transition(ctx, doc, document.StatusPending, document.StatusProcessing)

	vectors, err := provider.Embed(ctx, model, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: %d vectors for %d chunks", len(vectors), len(chunks))
	}

	records := make([]engine.VectorRecord, len(chunks))
	for i, ch := range chunks {
		records[i] = engine.VectorRecord{
			ChunkID:    ch.ID,
			DocumentID: doc.ID,
			ChunkIndex: ch.Index,
			Vector:     vectors[i],
			Content:    ch.Content,
			Title:      doc.Title,
			SourceURL:  doc.SourceLocation,
		}
	}

	// Batches may land in any order; each record carries its own chunk
	// index, so nothing depends on write order.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for start := 0; start < len(records); start += upsertBatch {
		end := start + upsertBatch
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]
		g.Go(func() error {
			// A workspace deletion must stop us before the next write.
			current, err := c.workspaces.Get(gctx, ws.ID)
			if errors.Is(err, workspace.ErrNotFound) {
				return engine.ErrWorkspaceGone
			}
			if err != nil {
				return err
			}
			if current.Status != workspace.StatusReady {
				return engine.ErrWorkspaceGone
			}

			if err := adapter.UpsertVectors(gctx, coll, batch); err != nil {
				metrics.EngineErrors.WithLabelValues(string(ws.Engine)).Inc()
				return err
			}
			metrics.ChunksEmbedded.Add(float64(len(batch)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	moved, err := c.docs.MarkProcessed(ctx, doc.ID)
	if err != nil {
		return err
	}
	if moved {
		c.record(ctx, doc.ID, document.StatusProcessing, document.StatusProcessed, "")
		slog.InfoContext(ctx, "document processed", "document_id", doc.ID, "chunks", len(chunks))
	}
	return nil
}

func (c *IngestConsumer) extract(doc *document.Document) (string, error) {
	switch doc.Type {
	case document.TypeFile:
		return importer.ExtractFile(doc.SourceLocation)
	case document.TypeText, document.TypeQnA, document.TypeRSSFeed, document.TypeWebsite:
		if doc.InlinePayload == "" {
			return "", fmt.Errorf("document %s has no payload", doc.ID)
		}
		return doc.InlinePayload, nil
	}
	return "", fmt.Errorf("unknown document type %q", doc.Type)
}

// contextualize prepends provenance to the chunk body so the embedding
// captures where the text came from, not just what it says.
func contextualize(ws *workspace.Workspace, doc *document.Document, ch document.Chunk) string {
	header := fmt.Sprintf("Workspace: %s\nType: %s", ws.Name, doc.Type)
	if doc.Title != "" {
		header += "\nTitle: " + doc.Title
	}
	if doc.SourceLocation != "" {
		header += "\nSource: " + doc.SourceLocation
	}
	return header + "\n---\n" + ch.Content
}

// fail records the terminal error on the document and parks the original
// payload as a failed job so an operator can relaunch a fresh cycle.
func (c *IngestConsumer) fail(ctx context.Context, doc *document.Document, raw []byte, cause error) {
	slog.ErrorContext(ctx, "ingestion failed", "document_id", doc.ID, "error", cause)

	if err := c.docs.SetError(ctx, doc.ID, cause.Error()); err != nil {
		slog.ErrorContext(ctx, "failed to mark document as errored", "document_id", doc.ID, "error", err)
	}
	c.record(ctx, doc.ID, doc.Status, document.StatusError, cause.Error())

	failedJob := &job.Job{
		WorkspaceID: doc.WorkspaceID,
		DocumentID:  doc.ID,
		Topic:       config.TopicDocumentIngest,
		Payload:     raw,
		Error:       cause.Error(),
	}
	if err := c.jobs.Save(ctx, failedJob); err != nil {
		slog.ErrorContext(ctx, "failed to save failed job", "document_id", doc.ID, "error", err)
	}
}

func (c *IngestConsumer) transition(ctx context.Context, doc *document.Document, from, to string) {
	moved, err := c.docs.TransitionStatus(ctx, doc.ID, from, to)
	if err != nil {
		slog.WarnContext(ctx, "status transition failed", "document_id", doc.ID, "from", from, "to", to, "error", err)
		return
	}
	if moved {
		doc.Status = to
		c.record(ctx, doc.ID, from, to, "")
	}
}

func (c *IngestConsumer) record(ctx context.Context, id, from, to, reason string) {
	if err := c.recorder.Record(ctx, audit.EntityDocument, id, from, to, reason); err != nil {
		slog.WarnContext(ctx, "failed to record document transition", "document_id", id, "error", err)
	}
}
