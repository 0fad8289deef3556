package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"claimscompanion/backend/internal/middleware"
	"claimscompanion/backend/internal/retrieval"
)

const maxTopK = 20

// Handler exposes the retrieval pipeline directly, for agent tooling and
// corpus debugging.
type Handler struct {
	rag         *retrieval.Service
	defaultTopK int
}

func NewHandler(rag *retrieval.Service, defaultTopK int) *Handler {
	return &Handler{rag: rag, defaultTopK: defaultTopK}
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
	Mode  string `json:"mode"` // basic or hybrid, hybrid by default
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "Invalid JSON body", http.StatusBadRequest)
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		h.writeError(ctx, w, "INVALID_REQUEST", "query is required", http.StatusBadRequest)
		return
	}
	if req.TopK <= 0 {
		req.TopK = h.defaultTopK
	}
	if req.TopK > maxTopK {
		req.TopK = maxTopK
	}

	var results []retrieval.Result
	if req.Mode == "basic" {
		results = h.rag.Retrieve(ctx, req.Query, req.TopK)
	} else {
		results = h.rag.RetrieveHybrid(ctx, req.Query, req.TopK)
	}
	if results == nil {
		results = []retrieval.Result{}
	}

	w.Header().Set("Content-Type", "application/json")
	h.encode(ctx, w, map[string]interface{}{
		"data": results,
		"meta": map[string]interface{}{
			"count":  len(results),
			"intent": retrieval.ClassifyIntent(req.Query),
		},
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
