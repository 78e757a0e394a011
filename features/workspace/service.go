package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"ragmine/internal/audit"
	"ragmine/internal/config"
	"ragmine/internal/embeddings"
	"ragmine/internal/engine"
	"ragmine/internal/middleware"
)

var (
	ErrNotReady = errors.New("workspace is not ready")

	// ErrImmutableEngine rejects any attempt to rebind a workspace to a
	// different engine after creation.
	ErrImmutableEngine = errors.New("workspace engine cannot be changed")

	// ErrImmutableModel: vectors already written under one model cannot
	// be searched with another, so the pin never moves.
	ErrImmutableModel = errors.New("workspace embedding model cannot be changed")
)

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// CreateRequest carries the caller-supplied workspace configuration.
// Everything here is frozen onto the workspace row at creation.
type CreateRequest struct {
	Name           string  `json:"name"`
	Owner          string  `json:"owner"`
	Engine         string  `json:"engine"`
	EmbeddingModel string  `json:"embedding_model"`
	ChunkSize      int     `json:"chunk_size"`
	ChunkOverlap   float64 `json:"chunk_overlap"`
	Hybrid         bool    `json:"hybrid"`
	IndexRef       string  `json:"index_ref"`
}

type Service struct {
	repo     Repository
	engines  *engine.Registry
	catalog  *embeddings.Catalog
	pub      EventPublisher
	recorder audit.Recorder

	defaultChunkSize    int
	defaultChunkOverlap float64
}

func NewService(repo Repository, engines *engine.Registry, catalog *embeddings.Catalog, pub EventPublisher, recorder audit.Recorder, defaultChunkSize int, defaultChunkOverlap float64) *Service {
	return &Service{
		repo:                repo,
		engines:             engines,
		catalog:             catalog,
		pub:                 pub,
		recorder:            recorder,
		defaultChunkSize:    defaultChunkSize,
		defaultChunkOverlap: defaultChunkOverlap,
	}
}

// Create validates the request, persists the workspace in `creating`,
// provisions the engine collection and transitions to `ready` (or
// `error`, leaving the row in place for inspection).
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Workspace, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, errors.New("name is required")
	}
	kind, err := engine.ParseKind(req.Engine)
	if err != nil {
		return nil, err
	}
	adapter, err := s.engines.Get(kind)
	if err != nil {
		return nil, err
	}
	model, err := s.catalog.Lookup(req.EmbeddingModel)
	if err != nil {
		return nil, err
	}

	ws := &Workspace{
		Name:           strings.TrimSpace(req.Name),
		Owner:          req.Owner,
		Engine:         kind,
		Status:         StatusCreating,
		EmbeddingModel: model.Name,
		Dimensions:     model.Dimensions,
		ChunkSize:      req.ChunkSize,
		ChunkOverlap:   req.ChunkOverlap,
		Hybrid:         req.Hybrid,
		IndexRef:       req.IndexRef,
	}
	if ws.ChunkSize <= 0 {
		ws.ChunkSize = s.defaultChunkSize
	}
	if ws.ChunkOverlap <= 0 {
		ws.ChunkOverlap = s.defaultChunkOverlap
	}

	// Name uniqueness per owner is enforced by the unique index; a
	// violation surfaces as ErrNameTaken before anything was provisioned.
	if err := s.repo.Save(ctx, ws); err != nil {
		return nil, err
	}
	s.record(ctx, ws.ID, "", StatusCreating, "")

	coll, err := adapter.CreateCollection(ctx, ws.CollectionSpec())
	if err != nil {
		slog.ErrorContext(ctx, "collection provisioning failed", "workspace_id", ws.ID, "engine", kind, "error", err)
		reason := fmt.Sprintf("provisioning failed: %v", err)
		if setErr := s.repo.SetError(ctx, ws.ID, reason); setErr != nil {
			slog.ErrorContext(ctx, "failed to mark workspace as errored", "workspace_id", ws.ID, "error", setErr)
		}
		s.record(ctx, ws.ID, StatusCreating, StatusError, reason)
		ws.Status = StatusError
		ws.ErrorReason = reason
		return ws, nil
	}

	if err := s.repo.SetCollectionRef(ctx, ws.ID, coll.Ref); err != nil {
		return nil, err
	}
	ws.CollectionRef = coll.Ref

	moved, err := s.repo.TransitionStatus(ctx, ws.ID, StatusCreating, StatusReady)
	if err != nil {
		return nil, err
	}
	if moved {
		s.record(ctx, ws.ID, StatusCreating, StatusReady, "")
		ws.Status = StatusReady
	}
	return ws, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Workspace, error) {
	return s.repo.Get(ctx, id)
}

// UpdateRequest covers the only mutable pieces of a workspace. Engine
// and embedding model are frozen: chunks already written under one
// engine/model pairing cannot be reinterpreted under another.
type UpdateRequest struct {
	Name           string `json:"name"`
	Engine         string `json:"engine"`
	EmbeddingModel string `json:"embedding_model"`
}

func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*Workspace, error) {
	ws, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Engine != "" && req.Engine != string(ws.Engine) {
		return nil, ErrImmutableEngine
	}
	if req.EmbeddingModel != "" && req.EmbeddingModel != ws.EmbeddingModel {
		return nil, ErrImmutableModel
	}
	if name := strings.TrimSpace(req.Name); name != "" && name != ws.Name {
		if err := s.repo.Rename(ctx, id, name); err != nil {
			return nil, err
		}
		ws.Name = name
	}
	return ws, nil
}

func (s *Service) List(ctx context.Context, owner string) ([]Workspace, error) {
	return s.repo.List(ctx, owner)
}

// EnsureReady loads a workspace and rejects every lifecycle state except
// `ready`. Ingestion and retrieval both gate on this.
func (s *Service) EnsureReady(ctx context.Context, id string) (*Workspace, error) {
	ws, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ws.Status != StatusReady {
		return nil, fmt.Errorf("%w: status is %s", ErrNotReady, ws.Status)
	}
	return ws, nil
}

// Delete moves the workspace into `deleting` and hands the teardown to
// the asynchronous delete worker. Calling it on a workspace that is
// already deleting, or already gone, succeeds without side effects: the
// whole path has to stay idempotent for retried triggers.
func (s *Service) Delete(ctx context.Context, id string) error {
	ws, err := s.repo.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	switch ws.Status {
	case StatusDeleting:
		// Already in flight; re-publishing is harmless because the
		// consumer is idempotent, and it un-sticks a lost message.
	case StatusCreating, StatusReady, StatusError:
		// `creating` is deletable too: a crash between Save and the
		// ready transition would otherwise strand the row forever,
		// with its name still reserved.
		moved, err := s.repo.TransitionStatus(ctx, ws.ID, ws.Status, StatusDeleting)
		if err != nil {
			return err
		}
		if !moved {
			// Lost the race; whoever won is responsible now.
			return nil
		}
		s.record(ctx, ws.ID, ws.Status, StatusDeleting, "")
	default:
		return fmt.Errorf("workspace %s cannot be deleted while %s", ws.ID, ws.Status)
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"workspace_id":   ws.ID,
		"correlation_id": middleware.GetCorrelationID(ctx),
	})
	if err := s.pub.Publish(config.TopicWorkspaceDelete, payload); err != nil {
		return fmt.Errorf("failed to publish delete task: %w", err)
	}
	slog.InfoContext(ctx, "workspace delete scheduled", "workspace_id", ws.ID)
	return nil
}

func (s *Service) record(ctx context.Context, id, from, to, reason string) {
	if err := s.recorder.Record(ctx, audit.EntityWorkspace, id, from, to, reason); err != nil {
		slog.WarnContext(ctx, "failed to record workspace transition", "workspace_id", id, "error", err)
	}
}
