package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"claimscompanion/backend/internal/middleware"
)

type Handler struct {
	service     *Service
	maxUploadMB int
}

func NewHandler(s *Service, maxUploadMB int) *Handler {
	return &Handler{service: s, maxUploadMB: maxUploadMB}
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claimID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "id must be an integer", http.StatusBadRequest)
		return
	}

	limit := int64(h.maxUploadMB) * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "Invalid multipart form or file too large", http.StatusBadRequest)
		return
	}

	docType := r.FormValue("doc_type")
	if docType == "" {
		h.writeError(ctx, w, "INVALID_REQUEST", "doc_type is required", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	result, err := h.service.Upload(ctx, claimID, docType, header.Filename, header.Size, file)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			h.writeError(ctx, w, "NOT_FOUND", "Claim not found", http.StatusNotFound)
		case errors.Is(err, ErrUnknownDocType):
			h.writeError(ctx, w, "INVALID_DOC_TYPE", err.Error(), http.StatusBadRequest)
		case errors.Is(err, ErrUnsupportedType):
			h.writeError(ctx, w, "UNSUPPORTED_FILE_TYPE", err.Error(), http.StatusBadRequest)
		case errors.Is(err, ErrTooLarge):
			h.writeError(ctx, w, "FILE_TOO_LARGE", err.Error(), http.StatusRequestEntityTooLarge)
		default:
			slog.ErrorContext(ctx, "failed to upload document", "claim_id", claimID, "error", err)
			h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		}
		return
	}

	slog.InfoContext(ctx, "document uploaded",
		"claim_id", claimID,
		"document_id", result.Document.ID,
		"doc_type", result.Document.DocType,
		"progress", result.Snapshot.Progress)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	h.encode(ctx, w, map[string]interface{}{"data": result})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claimID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "id must be an integer", http.StatusBadRequest)
		return
	}

	docs, err := h.service.List(ctx, claimID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list documents", "claim_id", claimID, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	h.encode(ctx, w, map[string]interface{}{
		"data": docs,
		"meta": map[string]int{"count": len(docs)},
	})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "id must be an integer", http.StatusBadRequest)
		return
	}

	if err := h.service.Remove(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(ctx, w, "NOT_FOUND", "Document not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to delete document", "document_id", id, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	h.encode(ctx, w, map[string]interface{}{"data": "document deleted"})
}

func (h *Handler) encode(ctx context.Context, w http.ResponseWriter, body interface{}) {
	if err := json.NewEncoder(w).Encode(body); err != nil {
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
