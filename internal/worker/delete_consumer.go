package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"ragmine/features/workspace"
	"ragmine/internal/audit"
	"ragmine/internal/engine"
	"ragmine/internal/middleware"
)

// DeleteConsumer tears a workspace down: engine collection first, then
// documents and chunks, and the workspace row last so a crash anywhere
// leaves the task replayable.
type DeleteConsumer struct {
	workspaces WorkspaceStore
	docs       DocumentStore
	engines    *engine.Registry
	recorder   audit.Recorder
}

func NewDeleteConsumer(workspaces WorkspaceStore, docs DocumentStore, engines *engine.Registry, recorder audit.Recorder) *DeleteConsumer {
	return &DeleteConsumer{workspaces: workspaces, docs: docs, engines: engines, recorder: recorder}
}

func (c *DeleteConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var task DeleteTask
	if err := json.Unmarshal(m.Body, &task); err != nil {
		slog.Error("poison pill: invalid delete task", "error", err)
		return nil
	}
	if task.WorkspaceID == "" {
		slog.Error("dropping delete task with no workspace id")
		return nil
	}

	correlationID := task.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	ws, err := c.workspaces.Get(ctx, task.WorkspaceID)
	if errors.Is(err, workspace.ErrNotFound) {
		// Redelivery after a completed teardown.
		return nil
	}
	if err != nil {
		return err
	}
	if ws.Status != workspace.StatusDeleting {
		slog.WarnContext(ctx, "dropping delete task for workspace not marked deleting", "workspace_id", ws.ID, "status", ws.Status)
		return nil
	}

	if err := c.dropCollection(ctx, ws); err != nil {
		slog.ErrorContext(ctx, "engine teardown failed, will retry", "workspace_id", ws.ID, "error", err)
		return err
	}
	if err := c.docs.DeleteByWorkspace(ctx, ws.ID); err != nil {
		return err
	}
	if err := c.workspaces.Delete(ctx, ws.ID); err != nil {
		return err
	}

	if err := c.recorder.Record(ctx, audit.EntityWorkspace, ws.ID, workspace.StatusDeleting, "deleted", ""); err != nil {
		slog.WarnContext(ctx, "failed to record workspace deletion", "workspace_id", ws.ID, "error", err)
	}
	slog.InfoContext(ctx, "workspace deleted", "workspace_id", ws.ID, "engine", ws.Engine)
	return nil
}

func (c *DeleteConsumer) dropCollection(ctx context.Context, ws *workspace.Workspace) error {
	adapter, err := c.engines.Get(ws.Engine)
	if err != nil {
		// Engine disabled since the workspace was created; nothing we
		// can reach to clean up.
		slog.WarnContext(ctx, "engine unavailable for teardown, skipping collection drop", "workspace_id", ws.ID, "engine", ws.Engine, "error", err)
		return nil
	}

	coll := ws.Collection()
	if coll.Ref == "" {
		// Creation failed before the handle was stored. CreateCollection
		// is idempotent, so resolving the handle this way is safe.
		resolved, err := adapter.CreateCollection(ctx, ws.CollectionSpec())
		if errors.Is(err, engine.ErrEngineConfig) {
			return nil
		}
		if err != nil {
			return err
		}
		coll = resolved
	}
	return adapter.DeleteCollection(ctx, coll)
}
