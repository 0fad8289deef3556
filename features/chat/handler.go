package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"claimscompanion/backend/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

type sendRequest struct {
	UserID          int64  `json:"user_id"`
	MessageText     string `json:"message_text"`
	ClientMessageID string `json:"client_message_id"`
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claimID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "id must be an integer", http.StatusBadRequest)
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "Invalid JSON body", http.StatusBadRequest)
		return
	}
	text := strings.TrimSpace(req.MessageText)
	if text == "" {
		h.writeError(ctx, w, "INVALID_REQUEST", "message_text is required", http.StatusBadRequest)
		return
	}

	exchange, err := h.service.Send(ctx, claimID, req.UserID, text, req.ClientMessageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(ctx, w, "NOT_FOUND", "Claim not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to send message", "claim_id", claimID, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	h.encode(ctx, w, map[string]interface{}{"data": exchange})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claimID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "id must be an integer", http.StatusBadRequest)
		return
	}

	messages, err := h.service.History(ctx, claimID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(ctx, w, "NOT_FOUND", "Claim not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to load history", "claim_id", claimID, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	h.encode(ctx, w, map[string]interface{}{
		"data": messages,
		"meta": map[string]int{"count": len(messages)},
	})
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
