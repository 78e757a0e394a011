package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"ragmine/features/workspace"
	"ragmine/internal/metrics"
	"ragmine/internal/middleware"
)

type CrawlConsumer struct {
	workspaces WorkspaceStore
	crawler    Crawler
	docs       PageImporter
}

func NewCrawlConsumer(workspaces WorkspaceStore, crawler Crawler, docs PageImporter) *CrawlConsumer {
	return &CrawlConsumer{workspaces: workspaces, crawler: crawler, docs: docs}
}

func (c *CrawlConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var task CrawlTask
	if err := json.Unmarshal(m.Body, &task); err != nil {
		slog.Error("poison pill: invalid crawl task", "error", err)
		return nil
	}
	if task.WorkspaceID == "" || task.URL == "" {
		slog.Error("dropping crawl task with missing fields", "workspace_id", task.WorkspaceID, "url", task.URL)
		return nil
	}

	correlationID := task.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	ws, err := c.workspaces.Get(ctx, task.WorkspaceID)
	if errors.Is(err, workspace.ErrNotFound) {
		slog.InfoContext(ctx, "workspace gone, dropping crawl", "workspace_id", task.WorkspaceID)
		return nil
	}
	if err != nil {
		return err
	}
	if ws.Status != workspace.StatusReady {
		slog.InfoContext(ctx, "workspace not ready, dropping crawl", "workspace_id", ws.ID, "status", ws.Status)
		return nil
	}

	pages, err := c.crawler.Crawl(ctx, task.URL, task.MaxDepth)
	if err != nil {
		slog.ErrorContext(ctx, "crawl failed", "url", task.URL, "error", err)
		return err
	}
	if len(pages) == 0 {
		slog.WarnContext(ctx, "crawl produced no pages", "url", task.URL)
		return nil
	}
	metrics.PagesCrawled.Add(float64(len(pages)))

	ids, err := c.docs.ImportPages(ctx, ws.ID, pages)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "crawl imported", "url", task.URL, "pages", len(pages), "documents", len(ids))
	return nil
}
