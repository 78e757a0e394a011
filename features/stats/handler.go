package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"ragmine/internal/audit"
	"ragmine/internal/middleware"
)

type WorkspaceRepo interface {
	CountByStatus(ctx context.Context) (map[string]int, error)
}

type DocumentRepo interface {
	CountByStatus(ctx context.Context, workspaceID string) (map[string]int, error)
}

type JobRepo interface {
	Count(ctx context.Context) (int, error)
}

type AuditRepo interface {
	Stuck(ctx context.Context, entityType, status string, olderThan time.Duration) ([]audit.StuckEntity, error)
}

type Handler struct {
	workspaceRepo WorkspaceRepo
	documentRepo  DocumentRepo
	jobRepo       JobRepo
	auditRepo     AuditRepo
}

func NewHandler(ws WorkspaceRepo, docs DocumentRepo, jobs JobRepo, auditRepo AuditRepo) *Handler {
	return &Handler{workspaceRepo: ws, documentRepo: docs, jobRepo: jobs, auditRepo: auditRepo}
}

type StatsResponse struct {
	Workspaces map[string]int `json:"workspaces"`
	Documents  map[string]int `json:"documents"`
	FailedJobs int            `json:"failed_jobs"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	slog.InfoContext(ctx, "getting stats", "correlationId", correlationID)

	wsCounts, err := h.workspaceRepo.CountByStatus(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count workspaces", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count workspaces", http.StatusInternalServerError)
		return
	}

	docCounts, err := h.documentRepo.CountByStatus(ctx, r.URL.Query().Get("workspace_id"))
	if err != nil {
		slog.ErrorContext(ctx, "failed to count documents", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count documents", http.StatusInternalServerError)
		return
	}

	jCount, err := h.jobRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count jobs", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Workspaces: wsCounts,
		Documents:  docCounts,
		FailedJobs: jCount,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// GetStuck lists entities sitting in one status for too long, for
// external monitoring to poll. Defaults: documents in processing older
// than 30 minutes.
func (h *Handler) GetStuck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entityType := r.URL.Query().Get("entity")
	if entityType == "" {
		entityType = audit.EntityDocument
	}
	status := r.URL.Query().Get("status")
	if status == "" {
		status = "processing"
	}
	olderThan := 30 * time.Minute
	if raw := r.URL.Query().Get("older_than"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			h.writeError(ctx, w, "VALIDATION_ERROR", "older_than must be a positive duration", http.StatusUnprocessableEntity)
			return
		}
		olderThan = d
	}

	stuck, err := h.auditRepo.Stuck(ctx, entityType, status, olderThan)
	if err != nil {
		slog.ErrorContext(ctx, "failed to query stuck entities", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to query stuck entities", http.StatusInternalServerError)
		return
	}
	if stuck == nil {
		stuck = []audit.StuckEntity{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"data": stuck,
		"meta": map[string]interface{}{"count": len(stuck)},
	}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
