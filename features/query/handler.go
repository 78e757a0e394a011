// Package query exposes the retrieval contract over HTTP.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"ragmine/features/workspace"
	"ragmine/internal/engine"
	"ragmine/internal/middleware"
	"ragmine/internal/retrieval"
)

type Handler struct {
	service *retrieval.Service
}

func NewHandler(s *retrieval.Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)
	workspaceID := r.PathValue("id")

	var req retrieval.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "query is required", http.StatusUnprocessableEntity)
		return
	}

	slog.InfoContext(ctx, "querying workspace", "workspace_id", workspaceID, "top_k", req.TopK, "correlationId", correlationID)

	matches, err := h.service.Query(ctx, workspaceID, req)
	if err != nil {
		slog.ErrorContext(ctx, "query failed", "workspace_id", workspaceID, "error", err, "correlationId", correlationID)
		switch {
		case errors.Is(err, workspace.ErrNotFound):
			h.writeError(ctx, w, "NOT_FOUND", "Workspace not found", http.StatusNotFound)
		case errors.Is(err, workspace.ErrNotReady):
			h.writeError(ctx, w, "WORKSPACE_NOT_READY", err.Error(), http.StatusConflict)
		case errors.Is(err, engine.ErrEngineUnavailable), errors.Is(err, engine.ErrQuotaExceeded):
			h.writeError(ctx, w, "ENGINE_UNAVAILABLE", err.Error(), http.StatusServiceUnavailable)
		default:
			h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		}
		return
	}

	if matches == nil {
		matches = []engine.Match{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": matches,
		"meta": map[string]int{"count": len(matches)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
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
