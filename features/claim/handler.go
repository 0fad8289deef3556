package claim

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"claimscompanion/backend/internal/checklist"
	"claimscompanion/backend/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

type createRequest struct {
	UserID              int64  `json:"user_id"`
	ClaimType           string `json:"claim_type"`
	IncidentDate        string `json:"incident_date"`
	IncidentDescription string `json:"incident_description"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.UserID == 0 {
		h.writeError(ctx, w, "INVALID_REQUEST", "user_id is required", http.StatusBadRequest)
		return
	}

	c := &Claim{
		UserID:              req.UserID,
		ClaimType:           req.ClaimType,
		IncidentDate:        req.IncidentDate,
		IncidentDescription: req.IncidentDescription,
	}
	if err := h.service.Create(ctx, c); err != nil {
		slog.ErrorContext(ctx, "failed to create claim", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	slog.InfoContext(ctx, "claim created", "claim_id", c.ID, "claim_number", c.ClaimNumber, "claim_type", c.ClaimType)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	h.encode(ctx, w, map[string]interface{}{"data": c})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var userID int64
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.writeError(ctx, w, "INVALID_REQUEST", "user_id must be an integer", http.StatusBadRequest)
			return
		}
		userID = parsed
	}

	claims, err := h.service.List(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list claims", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	h.encode(ctx, w, map[string]interface{}{
		"data": claims,
		"meta": map[string]int{"count": len(claims)},
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r)
	if err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "id must be an integer", http.StatusBadRequest)
		return
	}

	c, err := h.service.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(ctx, w, "NOT_FOUND", "Claim not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to get claim", "claim_id", id, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	h.encode(ctx, w, map[string]interface{}{"data": c})
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r)
	if err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "id must be an integer", http.StatusBadRequest)
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		h.writeError(ctx, w, "INVALID_REQUEST", "status is required", http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateStatus(ctx, id, req.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(ctx, w, "NOT_FOUND", "Claim not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to update claim status", "claim_id", id, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	h.encode(ctx, w, map[string]interface{}{"data": "status updated"})
}

// Validation recomputes and returns the checklist snapshot for a claim.
func (h *Handler) Validation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r)
	if err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "id must be an integer", http.StatusBadRequest)
		return
	}

	snap, err := h.service.RefreshValidation(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(ctx, w, "NOT_FOUND", "Claim not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to build validation status", "claim_id", id, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	h.encode(ctx, w, map[string]interface{}{"data": snap})
}

// Requirements lists the document checklist for a claim type without
// needing an existing claim.
func (h *Handler) Requirements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claimType := r.PathValue("claimType")
	items := checklist.ForClaimType(claimType)

	w.Header().Set("Content-Type", "application/json")
	h.encode(ctx, w, map[string]interface{}{
		"data": items,
		"meta": map[string]interface{}{"claim_type": claimType, "count": len(items)},
	})
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
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
