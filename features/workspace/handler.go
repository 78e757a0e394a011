package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"ragmine/internal/audit"
	"ragmine/internal/embeddings"
	"ragmine/internal/engine"
	"ragmine/internal/middleware"
)

type Handler struct {
	service *Service
	history audit.Store
}

func NewHandler(service *Service, history audit.Store) *Handler {
	return &Handler{service: service, history: history}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "invalid JSON body", http.StatusBadRequest)
		return
	}

	slog.InfoContext(ctx, "creating workspace", "name", req.Name, "engine", req.Engine, "correlationId", correlationID)

	ws, err := h.service.Create(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create workspace", "name", req.Name, "error", err, "correlationId", correlationID)
		switch {
		case errors.Is(err, ErrNameTaken):
			h.writeError(ctx, w, "CONFLICT", err.Error(), http.StatusConflict)
		case errors.Is(err, engine.ErrUnknownKind), errors.Is(err, embeddings.ErrUnknownModel):
			h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusUnprocessableEntity)
		default:
			h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusUnprocessableEntity)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": ws}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	workspaces, err := h.service.List(ctx, r.URL.Query().Get("owner"))
	if err != nil {
		slog.ErrorContext(ctx, "failed to list workspaces", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	if workspaces == nil {
		workspaces = []Workspace{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": workspaces,
		"meta": map[string]int{"count": len(workspaces)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	ws, err := h.service.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(ctx, w, "NOT_FOUND", "Workspace not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to get workspace", "id", id, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{"data": ws}
	if h.history != nil {
		if transitions, err := h.history.List(ctx, id); err == nil {
			resp["history"] = transitions
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "invalid JSON body", http.StatusBadRequest)
		return
	}

	ws, err := h.service.Update(ctx, id, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			h.writeError(ctx, w, "NOT_FOUND", "Workspace not found", http.StatusNotFound)
		case errors.Is(err, ErrImmutableEngine), errors.Is(err, ErrImmutableModel):
			h.writeError(ctx, w, "IMMUTABLE_FIELD", err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, ErrNameTaken):
			h.writeError(ctx, w, "CONFLICT", err.Error(), http.StatusConflict)
		default:
			slog.ErrorContext(ctx, "failed to update workspace", "id", id, "error", err)
			h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": ws}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// Delete schedules the asynchronous teardown and returns 202; the
// workspace stays visible in `deleting` until the worker finishes.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)
	id := r.PathValue("id")

	slog.InfoContext(ctx, "deleting workspace", "id", id, "correlationId", correlationID)

	if err := h.service.Delete(ctx, id); err != nil {
		slog.ErrorContext(ctx, "failed to delete workspace", "id", id, "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": "workspace deletion scheduled"}); err != nil {
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
