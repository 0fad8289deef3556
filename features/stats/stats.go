package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"claimscompanion/backend/internal/middleware"
)

// Counter counts rows in one of the backing stores.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// ChunkCounter reports the number of indexed policy chunks.
type ChunkCounter interface {
	Count(ctx context.Context) (int, error)
}

type Overview struct {
	Claims        int `json:"claims"`
	Documents     int `json:"documents"`
	Messages      int `json:"messages"`
	IndexedChunks int `json:"indexed_chunks"`
}

type Service struct {
	claims    Counter
	documents Counter
	messages  Counter
	chunks    ChunkCounter
}

func NewService(claims, documents, messages Counter, chunks ChunkCounter) *Service {
	return &Service{claims: claims, documents: documents, messages: messages, chunks: chunks}
}

func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	var (
		o   Overview
		err error
	)
	if o.Claims, err = s.claims.Count(ctx); err != nil {
		return nil, err
	}
	if o.Documents, err = s.documents.Count(ctx); err != nil {
		return nil, err
	}
	if o.Messages, err = s.messages.Count(ctx); err != nil {
		return nil, err
	}
	if o.IndexedChunks, err = s.chunks.Count(ctx); err != nil {
		return nil, err
	}
	return &o, nil
}

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	overview, err := h.service.Overview(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to collect stats", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": overview}); err != nil {
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
