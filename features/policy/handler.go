package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"claimscompanion/backend/internal/middleware"
)

type Handler struct {
	service    *Service
	storageDir string
	maxSizeMB  int64
}

func NewHandler(service *Service, storageDir string, maxSizeMB int64) *Handler {
	return &Handler{service: service, storageDir: storageDir, maxSizeMB: maxSizeMB}
}

var allowedPolicyExt = map[string]bool{
	".pdf": true,
	".txt": true,
	".md":  true,
}

// Upload accepts a multipart policy document and queues it for indexing.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := h.maxSizeMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "File too large", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedPolicyExt[ext] {
		h.writeError(ctx, w, "VALIDATION_ERROR", fmt.Sprintf("unsupported file type %s", ext), http.StatusBadRequest)
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "failed to read file", http.StatusBadRequest)
		return
	}

	if err := os.MkdirAll(h.storageDir, 0o750); err != nil {
		slog.ErrorContext(ctx, "failed to create policy dir", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	name := filepath.Base(header.Filename)
	path := filepath.Join(h.storageDir, name)
	if err := os.WriteFile(path, content, 0o640); err != nil {
		slog.ErrorContext(ctx, "failed to store policy file", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	p, err := h.service.Add(ctx, name, path, content)
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			h.writeError(ctx, w, "CONFLICT", err.Error(), http.StatusConflict)
			return
		}
		slog.ErrorContext(ctx, "failed to add policy", "error", err, "file", name)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": p}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	policies, err := h.service.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list policies", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if policies == nil {
		policies = []Policy{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": policies}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	if err := h.service.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(ctx, w, "NOT_FOUND", "Policy not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to delete policy", "id", id, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
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
