package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"ragmine/features/workspace"
	"ragmine/internal/audit"
	"ragmine/internal/importer"
	"ragmine/internal/middleware"
)

type Handler struct {
	service *Service
	history audit.Store

	uploadDir      string
	maxUploadBytes int64
}

func NewHandler(service *Service, history audit.Store, uploadDir string, maxUploadBytes int64) *Handler {
	return &Handler{
		service:        service,
		history:        history,
		uploadDir:      uploadDir,
		maxUploadBytes: maxUploadBytes,
	}
}

// Ingest accepts inline documents (text, qna, rssfeed) and website
// crawl requests. File uploads go through Upload.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)
	workspaceID := r.PathValue("id")

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "invalid JSON body", http.StatusBadRequest)
		return
	}

	slog.InfoContext(ctx, "ingesting document", "workspace_id", workspaceID, "type", req.Type, "correlationId", correlationID)

	doc, err := h.service.Ingest(ctx, workspaceID, req)
	if err != nil {
		h.writeServiceError(ctx, w, workspaceID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	resp := map[string]interface{}{}
	if doc != nil {
		resp["data"] = doc
	} else {
		resp["data"] = "crawl scheduled"
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)
	workspaceID := r.PathValue("id")

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "File too large", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "Unable to retrieve file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if err := importer.ValidateFile(header.Filename, header.Size, h.maxUploadBytes); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusUnprocessableEntity)
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0o750); err != nil {
		slog.ErrorContext(ctx, "failed to create upload directory", "error", err, "path", h.uploadDir)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to create upload directory", http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("%s_%s", uuid.New().String(), filepath.Base(header.Filename))
	path := filepath.Clean(filepath.Join(h.uploadDir, filename))

	dst, err := os.Create(path) // #nosec G304 -- path is UUID + sanitized basename under a configured directory
	if err != nil {
		slog.ErrorContext(ctx, "failed to create file", "error", err, "path", path)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to save file", http.StatusInternalServerError)
		return
	}
	defer dst.Close()

	written, err := io.Copy(dst, file)
	if err != nil {
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to write file", http.StatusInternalServerError)
		return
	}

	title := r.FormValue("title")
	if title == "" {
		title = header.Filename
	}

	slog.InfoContext(ctx, "file uploaded", "workspace_id", workspaceID, "file", header.Filename, "bytes", written, "correlationId", correlationID)

	doc, err := h.service.IngestFile(ctx, workspaceID, path, title, written)
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			slog.WarnContext(ctx, "failed to remove rejected upload", "path", path, "error", rmErr)
		}
		h.writeServiceError(ctx, w, workspaceID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": doc}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workspaceID := r.PathValue("id")

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(ctx, w, "VALIDATION_ERROR", "limit must be a positive integer", http.StatusUnprocessableEntity)
			return
		}
		limit = parsed
	}

	page, err := h.service.List(ctx, workspaceID, r.URL.Query().Get("status"), r.URL.Query().Get("page_token"), limit)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusUnprocessableEntity)
			return
		}
		slog.ErrorContext(ctx, "failed to list documents", "workspace_id", workspaceID, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	if page.Documents == nil {
		page.Documents = []Document{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": page.Documents,
		"meta": map[string]interface{}{
			"count":           len(page.Documents),
			"next_page_token": page.NextToken,
		},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	detail, err := h.service.Get(ctx, id, h.history)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(ctx, w, "NOT_FOUND", "Document not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to get document", "id", id, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": detail}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// Delete removes a document and its vectors. Deleting an already-gone
// document succeeds: the caller only cares that it no longer exists.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)
	id := r.PathValue("id")

	slog.InfoContext(ctx, "deleting document", "id", id, "correlationId", correlationID)

	if err := h.service.Delete(ctx, id); err != nil {
		slog.ErrorContext(ctx, "failed to delete document", "id", id, "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Disable takes a processed document out of retrieval; Enable schedules
// a fresh processing cycle to bring it back.
func (h *Handler) Disable(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.service.Disable, http.StatusNoContent)
}

func (h *Handler) Enable(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.service.Enable, http.StatusAccepted)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, op func(context.Context, string) error, okStatus int) {
	ctx := r.Context()
	id := r.PathValue("id")

	if err := op(ctx, id); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			h.writeError(ctx, w, "NOT_FOUND", "Document not found", http.StatusNotFound)
		case errors.Is(err, ErrValidation):
			h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, workspace.ErrNotReady):
			h.writeError(ctx, w, "WORKSPACE_NOT_READY", err.Error(), http.StatusConflict)
		default:
			slog.ErrorContext(ctx, "failed to toggle document", "id", id, "error", err)
			h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(okStatus)
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, workspaceID string, err error) {
	slog.ErrorContext(ctx, "ingestion rejected", "workspace_id", workspaceID, "error", err)
	switch {
	case errors.Is(err, workspace.ErrNotFound):
		h.writeError(ctx, w, "NOT_FOUND", "Workspace not found", http.StatusNotFound)
	case errors.Is(err, workspace.ErrNotReady):
		h.writeError(ctx, w, "WORKSPACE_NOT_READY", err.Error(), http.StatusConflict)
	case errors.Is(err, ErrValidation):
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusUnprocessableEntity)
	default:
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
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
