package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"ragmine/features/document"
	"ragmine/features/job"
	"ragmine/features/query"
	"ragmine/features/stats"
	"ragmine/features/workspace"
	"ragmine/internal/audit"
	"ragmine/internal/config"
	"ragmine/internal/embeddings"
	"ragmine/internal/embeddings/gemini"
	"ragmine/internal/embeddings/hosted"
	"ragmine/internal/embeddings/openai"
	"ragmine/internal/engine"
	"ragmine/internal/engine/managed"
	"ragmine/internal/engine/pgvector"
	weaviateengine "ragmine/internal/engine/weaviate"
	"ragmine/internal/importer"
	"ragmine/internal/middleware"
	"ragmine/internal/retrieval"
	"ragmine/internal/worker"
)

type App struct {
	Handler http.Handler
	Port    int

	WorkspaceService *workspace.Service
	DocumentService  *document.Service

	IngestConsumer *worker.IngestConsumer
	CrawlConsumer  *worker.CrawlConsumer
	DeleteConsumer *worker.DeleteConsumer
}

func New(ctx context.Context, cfg *config.Config, deps *Dependencies) (*App, error) {
	engines, err := buildEngines(cfg, deps)
	if err != nil {
		return nil, err
	}
	catalog := embeddings.NewCatalog()
	providers, err := buildProviders(ctx, cfg)
	if err != nil {
		return nil, err
	}

	auditRepo := audit.NewPostgresRepo(deps.DB)

	// Feature: Workspace
	workspaceRepo := workspace.NewPostgresRepo(deps.DB)
	workspaceService := workspace.NewService(workspaceRepo, engines, catalog, deps.NSQProducer, auditRepo, cfg.DefaultChunkSize, cfg.DefaultChunkOverlap)
	workspaceHandler := workspace.NewHandler(workspaceService, auditRepo)

	// Feature: Document
	documentRepo := document.NewPostgresRepo(deps.DB)
	documentService := document.NewService(documentRepo, workspaceService, engines, deps.NSQProducer, auditRepo, cfg.MaxUploadSizeMB<<20, cfg.MaxCrawlDepth)
	documentHandler := document.NewHandler(documentService, auditRepo, cfg.UploadDir, cfg.MaxUploadSizeMB<<20)

	// Feature: Job
	jobRepo := job.NewPostgresRepo(deps.DB)
	jobService := job.NewService(jobRepo, documentService)
	jobHandler := job.NewHandler(jobService)

	// Feature: Stats
	statsHandler := stats.NewHandler(workspaceRepo, documentRepo, jobRepo, auditRepo)

	// Feature: Query
	queryLogger, err := retrieval.NewFileQueryLogger("data/logs/query.log")
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	retrievalService := retrieval.NewService(workspaceService, engines, catalog, providers, deps.Redis, 30*time.Second, queryLogger)
	queryHandler := query.NewHandler(retrievalService)

	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, PATCH, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	mux := http.NewServeMux()

	mux.Handle("POST /workspaces", middleware.CorrelationID(enableCORS(workspaceHandler.Create)))
	mux.Handle("GET /workspaces", middleware.CorrelationID(enableCORS(workspaceHandler.List)))
	mux.Handle("GET /workspaces/{id}", middleware.CorrelationID(enableCORS(workspaceHandler.Get)))
	mux.Handle("PATCH /workspaces/{id}", middleware.CorrelationID(enableCORS(workspaceHandler.Update)))
	mux.Handle("DELETE /workspaces/{id}", middleware.CorrelationID(enableCORS(workspaceHandler.Delete)))

	mux.Handle("POST /workspaces/{id}/documents", middleware.CorrelationID(enableCORS(documentHandler.Ingest)))
	mux.Handle("POST /workspaces/{id}/documents/upload", middleware.CorrelationID(enableCORS(documentHandler.Upload)))
	mux.Handle("GET /workspaces/{id}/documents", middleware.CorrelationID(enableCORS(documentHandler.List)))
	mux.Handle("GET /documents/{id}", middleware.CorrelationID(enableCORS(documentHandler.Get)))
	mux.Handle("DELETE /documents/{id}", middleware.CorrelationID(enableCORS(documentHandler.Delete)))
	mux.Handle("POST /documents/{id}/disable", middleware.CorrelationID(enableCORS(documentHandler.Disable)))
	mux.Handle("POST /documents/{id}/enable", middleware.CorrelationID(enableCORS(documentHandler.Enable)))

	mux.Handle("POST /workspaces/{id}/query", middleware.CorrelationID(enableCORS(queryHandler.Query)))

	mux.Handle("GET /jobs/failed", middleware.CorrelationID(enableCORS(jobHandler.List)))
	mux.Handle("POST /jobs/{id}/retry", middleware.CorrelationID(enableCORS(jobHandler.Retry)))

	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))
	mux.Handle("GET /stats/stuck", middleware.CorrelationID(enableCORS(statsHandler.GetStuck)))

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	resolver := &retryingResolver{inner: providers, maxRetries: cfg.EmbedMaxRetries}
	crawler := importer.NewCrawler(cfg.MaxCrawlPages)

	ingestConsumer := worker.NewIngestConsumer(documentRepo, workspaceRepo, engines, catalog, resolver, jobRepo, auditRepo, cfg.IngestionConcurrency)
	crawlConsumer := worker.NewCrawlConsumer(workspaceRepo, crawler, documentService)
	deleteConsumer := worker.NewDeleteConsumer(workspaceRepo, documentRepo, engines, auditRepo)

	return &App{
		Handler:          mux,
		Port:             cfg.ServerPort,
		WorkspaceService: workspaceService,
		DocumentService:  documentService,
		IngestConsumer:   ingestConsumer,
		CrawlConsumer:    crawlConsumer,
		DeleteConsumer:   deleteConsumer,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Port),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.Port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func buildEngines(cfg *config.Config, deps *Dependencies) (*engine.Registry, error) {
	registry := engine.NewRegistry()
	for _, kind := range cfg.EnabledEngines {
		switch engine.Kind(kind) {
		case engine.KindPGVector:
			registry.Register(engine.KindPGVector, pgvector.NewAdapter(deps.DB))
		case engine.KindWeaviate:
			if deps.Weaviate == nil {
				return nil, fmt.Errorf("weaviate engine enabled but no client configured")
			}
			registry.Register(engine.KindWeaviate, weaviateengine.NewAdapter(deps.Weaviate))
		case engine.KindManaged:
			if cfg.ManagedIndexURL == "" {
				return nil, fmt.Errorf("managed engine enabled but MANAGED_INDEX_URL is empty")
			}
			registry.Register(engine.KindManaged, managed.NewAdapter(cfg.ManagedIndexURL, cfg.ManagedIndexAPIKey))
		}
	}
	return registry, nil
}

func buildProviders(ctx context.Context, cfg *config.Config) (*embeddings.Registry, error) {
	registry := embeddings.NewRegistry()
	limiter := rate.NewLimiter(rate.Limit(cfg.EmbedRPS), cfg.EmbedRPS)

	if cfg.GeminiAPIKey != "" {
		embedder, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, limiter)
		if err != nil {
			return nil, fmt.Errorf("gemini embedder error: %w", err)
		}
		registry.Register("gemini", embedder)
	}
	if cfg.OpenAIAPIKey != "" {
		registry.Register("openai", openai.NewEmbedder(cfg.OpenAIAPIKey, limiter))
	}
	if cfg.HostedEmbedURL != "" {
		registry.Register("hosted", hosted.NewEmbedder(cfg.HostedEmbedURL, limiter))
	}
	return registry, nil
}

// retryingResolver wraps every resolved provider with bounded backoff so
// the ingest worker survives transient provider outages.
type retryingResolver struct {
	inner      *embeddings.Registry
	maxRetries int
}

func (r *retryingResolver) For(m embeddings.Model) (embeddings.Provider, error) {
	p, err := r.inner.For(m)
	if err != nil {
		return nil, err
	}
	return embeddings.WithRetry(p, r.maxRetries), nil
}
