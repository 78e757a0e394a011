package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"ragmine/features/workspace"
	"ragmine/internal/audit"
	"ragmine/internal/config"
	"ragmine/internal/engine"
	"ragmine/internal/importer"
	"ragmine/internal/middleware"
)

var ErrValidation = errors.New("validation error")

type WorkspaceResolver interface {
	EnsureReady(ctx context.Context, id string) (*workspace.Workspace, error)
	Get(ctx context.Context, id string) (*workspace.Workspace, error)
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// IngestRequest covers the inline and website import paths. File
// uploads arrive through IngestFile because the payload travels as a
// stored file, not a JSON body.
type IngestRequest struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	URL        string `json:"url"`
	CrawlDepth int    `json:"crawl_depth"`
}

type Service struct {
	repo       Repository
	workspaces WorkspaceResolver
	engines    *engine.Registry
	pub        EventPublisher
	recorder   audit.Recorder

	maxFileBytes  int64
	maxCrawlDepth int
}

func NewService(repo Repository, workspaces WorkspaceResolver, engines *engine.Registry, pub EventPublisher, recorder audit.Recorder, maxFileBytes int64, maxCrawlDepth int) *Service {
	return &Service{
		repo:          repo,
		workspaces:    workspaces,
		engines:       engines,
		pub:           pub,
		recorder:      recorder,
		maxFileBytes:  maxFileBytes,
		maxCrawlDepth: maxCrawlDepth,
	}
}

// Ingest registers a document for an inline payload or schedules a
// website crawl. Validation failures reject the request before any
// record exists.
func (s *Service) Ingest(ctx context.Context, workspaceID string, req IngestRequest) (*Document, error) {
	ws, err := s.workspaces.EnsureReady(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	switch req.Type {
	case TypeText, TypeQnA, TypeRSSFeed:
		return s.ingestInline(ctx, ws, req)
	case TypeWebsite:
		return nil, s.scheduleCrawl(ctx, ws, req)
	case TypeFile:
		return nil, fmt.Errorf("%w: file documents are ingested via upload", ErrValidation)
	default:
		return nil, fmt.Errorf("%w: unknown document type %q", ErrValidation, req.Type)
	}
}

func (s *Service) ingestInline(ctx context.Context, ws *workspace.Workspace, req IngestRequest) (*Document, error) {
	payload := strings.TrimSpace(req.Content)
	if req.Type == TypeQnA {
		question := strings.TrimSpace(req.Question)
		answer := strings.TrimSpace(req.Answer)
		if question == "" || answer == "" {
			return nil, fmt.Errorf("%w: qna documents require question and answer", ErrValidation)
		}
		payload = question + "\n\n" + answer
	}
	if payload == "" {
		return nil, fmt.Errorf("%w: content is required", ErrValidation)
	}

	doc := &Document{
		WorkspaceID:   ws.ID,
		Type:          req.Type,
		Title:         req.Title,
		InlinePayload: payload,
		Status:        StatusSubmitted,
		SizeBytes:     int64(len(payload)),
	}
	if err := s.repo.Save(ctx, doc); err != nil {
		return nil, err
	}
	s.record(ctx, doc.ID, "", StatusSubmitted, "")
	s.publishIngest(ctx, doc)
	return doc, nil
}

// IngestFile registers an uploaded file that has already been persisted
// to local storage by the handler. The extension and size were validated
// before the upload was accepted.
func (s *Service) IngestFile(ctx context.Context, workspaceID, storedPath, title string, sizeBytes int64) (*Document, error) {
	ws, err := s.workspaces.EnsureReady(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if err := importer.ValidateFile(storedPath, sizeBytes, s.maxFileBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	doc := &Document{
		WorkspaceID:    ws.ID,
		Type:           TypeFile,
		Title:          title,
		SourceLocation: storedPath,
		Status:         StatusSubmitted,
		SizeBytes:      sizeBytes,
	}
	if err := s.repo.Save(ctx, doc); err != nil {
		return nil, err
	}
	s.record(ctx, doc.ID, "", StatusSubmitted, "")
	s.publishIngest(ctx, doc)
	return doc, nil
}

// ImportPages registers one document per crawled page, deduplicated by
// the crawler, and schedules each for processing. Called by the crawl
// worker, not the API.
func (s *Service) ImportPages(ctx context.Context, workspaceID string, pages []importer.Page) ([]string, error) {
	ids := make([]string, 0, len(pages))
	for _, page := range pages {
		doc := &Document{
			WorkspaceID:    workspaceID,
			Type:           TypeWebsite,
			Title:          page.Title,
			SourceLocation: page.URL,
			InlinePayload:  page.Text,
			Status:         StatusSubmitted,
			SizeBytes:      int64(len(page.Text)),
			CrawlDepth:     page.Depth,
		}
		if err := s.repo.Save(ctx, doc); err != nil {
			return ids, err
		}
		s.record(ctx, doc.ID, "", StatusSubmitted, "")
		s.publishIngest(ctx, doc)
		ids = append(ids, doc.ID)
	}
	return ids, nil
}

func (s *Service) scheduleCrawl(ctx context.Context, ws *workspace.Workspace, req IngestRequest) error {
	if strings.TrimSpace(req.URL) == "" {
		return fmt.Errorf("%w: url is required", ErrValidation)
	}
	depth := req.CrawlDepth
	if depth <= 0 {
		depth = 1
	}
	if depth > s.maxCrawlDepth {
		depth = s.maxCrawlDepth
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"workspace_id":   ws.ID,
		"url":            req.URL,
		"max_depth":      depth,
		"correlation_id": middleware.GetCorrelationID(ctx),
	})
	if err := s.pub.Publish(config.TopicWebsiteCrawl, payload); err != nil {
		return fmt.Errorf("failed to publish crawl task: %w", err)
	}
	slog.InfoContext(ctx, "website crawl scheduled", "workspace_id", ws.ID, "url", req.URL, "max_depth", depth)
	return nil
}

type Detail struct {
	Document
	Chunks      []Chunk            `json:"chunks"`
	TotalChunks int                `json:"total_chunks"`
	History     []audit.Transition `json:"history,omitempty"`
}

type TransitionLister interface {
	List(ctx context.Context, entityID string) ([]audit.Transition, error)
}

func (s *Service) Get(ctx context.Context, id string, history TransitionLister) (*Detail, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	chunks, err := s.repo.GetChunks(ctx, id)
	if err != nil {
		slog.WarnContext(ctx, "failed to fetch chunks", "document_id", id, "error", err)
		chunks = []Chunk{}
	}

	detail := &Detail{Document: *doc, Chunks: chunks, TotalChunks: len(chunks)}
	if history != nil {
		if transitions, err := history.List(ctx, id); err == nil {
			detail.History = transitions
		}
	}
	return detail, nil
}

func (s *Service) List(ctx context.Context, workspaceID, status, pageToken string, limit int) (*Page, error) {
	if status != "" {
		switch status {
		case StatusSubmitted, StatusPending, StatusProcessing, StatusProcessed, StatusError, StatusDisabled:
		default:
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
		}
	}
	return s.repo.List(ctx, workspaceID, status, pageToken, limit)
}

// Delete removes one document: engine-side vectors first, then the row
// (chunks cascade). Safe to repeat; a missing document is a no-op.
func (s *Service) Delete(ctx context.Context, id string) error {
	doc, err := s.repo.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	ws, err := s.workspaces.Get(ctx, doc.WorkspaceID)
	if err == nil && ws.CollectionRef != "" {
		adapter, aerr := s.engines.Get(ws.Engine)
		if aerr == nil {
			if derr := adapter.DeleteDocument(ctx, ws.Collection(), doc.ID); derr != nil {
				return fmt.Errorf("failed to delete document vectors: %w", derr)
			}
		}
	}

	return s.repo.Delete(ctx, id)
}

// Relaunch starts a fresh processing cycle for a document whose last
// cycle ended in error. The errored row is replaced by a brand-new
// document, so the new cycle runs the full state machine from
// submitted; the audit trail of the old document survives.
func (s *Service) Relaunch(ctx context.Context, id string) (*Document, error) {
	old, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if old.Status != StatusError {
		return nil, fmt.Errorf("%w: only errored documents can be relaunched", ErrValidation)
	}
	if _, err := s.workspaces.EnsureReady(ctx, old.WorkspaceID); err != nil {
		return nil, err
	}

	fresh := &Document{
		WorkspaceID:    old.WorkspaceID,
		Type:           old.Type,
		Title:          old.Title,
		SourceLocation: old.SourceLocation,
		InlinePayload:  old.InlinePayload,
		Status:         StatusSubmitted,
		SizeBytes:      old.SizeBytes,
		CrawlDepth:     old.CrawlDepth,
	}
	if err := s.repo.Save(ctx, fresh); err != nil {
		return nil, err
	}
	s.record(ctx, fresh.ID, "", StatusSubmitted, "relaunch of "+old.ID)

	if err := s.Delete(ctx, old.ID); err != nil {
		slog.WarnContext(ctx, "failed to remove errored document after relaunch", "document_id", old.ID, "error", err)
	}

	s.publishIngest(ctx, fresh)
	return fresh, nil
}

// Disable takes a processed document out of retrieval without deleting
// it. Its vectors are removed from the engine, the row and its audit
// trail stay, and Enable brings it back later.
func (s *Service) Disable(ctx context.Context, id string) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if doc.Status != StatusProcessed {
		return fmt.Errorf("%w: only processed documents can be disabled", ErrValidation)
	}

	ws, err := s.workspaces.Get(ctx, doc.WorkspaceID)
	if err != nil {
		return err
	}
	if ws.CollectionRef != "" {
		adapter, aerr := s.engines.Get(ws.Engine)
		if aerr == nil {
			if derr := adapter.DeleteDocument(ctx, ws.Collection(), doc.ID); derr != nil {
				return fmt.Errorf("failed to remove document vectors: %w", derr)
			}
		}
	}

	moved, err := s.repo.TransitionStatus(ctx, id, StatusProcessed, StatusDisabled)
	if err != nil {
		return err
	}
	if !moved {
		return fmt.Errorf("%w: document is no longer processed", ErrValidation)
	}
	s.record(ctx, id, StatusProcessed, StatusDisabled, "")
	return nil
}

// Enable puts a disabled document back through the full processing
// cycle. Its vectors were dropped on disable, so re-embedding from the
// stored payload is the only way back into retrieval.
func (s *Service) Enable(ctx context.Context, id string) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if doc.Status != StatusDisabled {
		return fmt.Errorf("%w: only disabled documents can be enabled", ErrValidation)
	}
	if _, err := s.workspaces.EnsureReady(ctx, doc.WorkspaceID); err != nil {
		return err
	}

	moved, err := s.repo.TransitionStatus(ctx, id, StatusDisabled, StatusSubmitted)
	if err != nil {
		return err
	}
	if !moved {
		return fmt.Errorf("%w: document is no longer disabled", ErrValidation)
	}
	s.record(ctx, id, StatusDisabled, StatusSubmitted, "")
	s.publishIngest(ctx, doc)
	return nil
}

func (s *Service) publishIngest(ctx context.Context, doc *Document) {
	payload, _ := json.Marshal(map[string]interface{}{
		"document_id":    doc.ID,
		"workspace_id":   doc.WorkspaceID,
		"correlation_id": middleware.GetCorrelationID(ctx),
	})
	if err := s.pub.Publish(config.TopicDocumentIngest, payload); err != nil {
		slog.ErrorContext(ctx, "failed to publish ingest task", "document_id", doc.ID, "error", err)
	} else {
		slog.InfoContext(ctx, "ingest task published", "document_id", doc.ID, "workspace_id", doc.WorkspaceID)
	}
}

func (s *Service) record(ctx context.Context, id, from, to, reason string) {
	if err := s.recorder.Record(ctx, audit.EntityDocument, id, from, to, reason); err != nil {
		slog.WarnContext(ctx, "failed to record document transition", "document_id", id, "error", err)
	}
}
