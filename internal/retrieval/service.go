// Package retrieval answers workspace queries: embed the query text
// with the workspace's pinned model, run it through the workspace's
// engine, and cache hot results for a short window.
package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"ragmine/features/workspace"
	"ragmine/internal/embeddings"
	"ragmine/internal/engine"
	"ragmine/internal/metrics"
)

const DefaultTopK = 10

type WorkspaceGetter interface {
	EnsureReady(ctx context.Context, id string) (*workspace.Workspace, error)
}

type Request struct {
	Text       string `json:"query"`
	TopK       int    `json:"top_k"`
	DocumentID string `json:"document_id"`
}

type Service struct {
	workspaces WorkspaceGetter
	engines    *engine.Registry
	catalog    *embeddings.Catalog
	providers  *embeddings.Registry
	cache      *redis.Client
	cacheTTL   time.Duration
	logger     *QueryLogger
}

// NewService builds the query path. cache may be nil; results are then
// computed fresh on every call.
func NewService(workspaces WorkspaceGetter, engines *engine.Registry, catalog *embeddings.Catalog, providers *embeddings.Registry, cache *redis.Client, cacheTTL time.Duration, logger *QueryLogger) *Service {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &Service{
		workspaces: workspaces,
		engines:    engines,
		catalog:    catalog,
		providers:  providers,
		cache:      cache,
		cacheTTL:   cacheTTL,
		logger:     logger,
	}
}

func (s *Service) Query(ctx context.Context, workspaceID string, req Request) ([]engine.Match, error) {
	started := time.Now()

	ws, err := s.workspaces.EnsureReady(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if req.TopK <= 0 {
		req.TopK = DefaultTopK
	}

	key := s.cacheKey(ws.ID, req)
	if cached, ok := s.fromCache(ctx, key); ok {
		return cached, nil
	}

	adapter, err := s.engines.Get(ws.Engine)
	if err != nil {
		return nil, err
	}

	query := engine.Query{Text: req.Text, TopK: req.TopK, DocumentID: req.DocumentID}

	// The managed engine searches by keyword on its own side; everyone
	// else needs the query embedded with the workspace's pinned model.
	if ws.Engine != engine.KindManaged {
		vector, err := s.embed(ctx, ws, req.Text)
		if err != nil {
			return nil, err
		}
		query.Vector = vector
	}

	matches, err := adapter.Query(ctx, ws.Collection(), query)
	if err != nil {
		metrics.EngineErrors.WithLabelValues(string(ws.Engine)).Inc()
		return nil, err
	}
	metrics.QueryDuration.WithLabelValues(string(ws.Engine)).Observe(time.Since(started).Seconds())

	if s.logger != nil {
		s.logger.Log(ctx, QueryLogEntry{
			WorkspaceID: ws.ID,
			Engine:      string(ws.Engine),
			Query:       req.Text,
			NumResults:  len(matches),
			Duration:    time.Since(started),
		})
	}

	s.toCache(ctx, key, matches)
	return matches, nil
}

func (s *Service) embed(ctx context.Context, ws *workspace.Workspace, text string) ([]float32, error) {
	model, err := s.catalog.Lookup(ws.EmbeddingModel)
	if err != nil {
		return nil, err
	}
	provider, err := s.providers.For(model)
	if err != nil {
		return nil, err
	}
	vectors, err := embeddings.WithRetry(provider, 2).Embed(ctx, model, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return vectors[0], nil
}

func (s *Service) cacheKey(workspaceID string, req Request) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", req.Text, req.TopK, req.DocumentID)))
	return "query:" + workspaceID + ":" + hex.EncodeToString(sum[:])
}

func (s *Service) fromCache(ctx context.Context, key string) ([]engine.Match, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.WarnContext(ctx, "query cache read failed", "error", err)
		return nil, false
	}
	var matches []engine.Match
	if err := json.Unmarshal(raw, &matches); err != nil {
		return nil, false
	}
	return matches, true
}

func (s *Service) toCache(ctx context.Context, key string, matches []engine.Match) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(matches)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cacheTTL).Err(); err != nil {
		slog.WarnContext(ctx, "query cache write failed", "error", err)
	}
}
