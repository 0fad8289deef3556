package claim

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"claimscompanion/backend/internal/validation"
)

// Claim statuses driven by the validation workflow.
const (
	StatusSubmitted = "submitted"
	StatusInReview  = "in_review"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusClosed    = "closed"
)

type Claim struct {
	ID                   int64  `json:"id"`
	ClaimNumber          string `json:"claim_number"`
	UserID               int64  `json:"user_id"`
	ClaimType            string `json:"claim_type"`
	Status               string `json:"status"`
	IncidentDate         string `json:"incident_date,omitempty"`
	IncidentDescription  string `json:"incident_description,omitempty"`
	EstimatedCompletion  string `json:"estimated_completion,omitempty"`
	ValidationProgress   int    `json:"validation_progress"`
	ValidationStatus     string `json:"validation_status,omitempty"`
	ManualReviewRequired bool   `json:"manual_review_required"`
	LastValidationUpdate string `json:"last_validation_update,omitempty"`
	CreatedAt            string `json:"created_at,omitempty"`
	UpdatedAt            string `json:"updated_at,omitempty"`
}

// Summary is the compact claim context handed to answer generation.
type Summary struct {
	ClaimNumber        string
	ClaimType          string
	Status             string
	Created            string
	Description        string
	ValidationProgress int
	ValidationStatus   string
}

type Repository interface {
	Save(ctx context.Context, c *Claim) error
	Get(ctx context.Context, id int64) (*Claim, error)
	List(ctx context.Context, userID int64) ([]Claim, error)
	UpdateStatus(ctx context.Context, id int64, status string, manualReview bool) error
	UpdateValidation(ctx context.Context, id int64, progress int, status string) error
	Count(ctx context.Context) (int, error)
}

// DocumentSource supplies the full current document set of a claim.
type DocumentSource interface {
	EngineDocuments(ctx context.Context, claimID int64) ([]validation.Document, error)
}

// StatusBuilder is the checklist/progress engine boundary.
type StatusBuilder interface {
	BuildStatus(ctx context.Context, claim validation.ClaimInfo, docs []validation.Document) validation.Snapshot
}

type Service struct {
	repo   Repository
	docs   DocumentSource
	engine StatusBuilder
}

func NewService(repo Repository, engine StatusBuilder) *Service {
	return &Service{repo: repo, engine: engine}
}

// BindDocuments breaks the construction loop with the document service.
// Must be called before RefreshValidation.
func (s *Service) BindDocuments(docs DocumentSource) {
	s.docs = docs
}

func (s *Service) Create(ctx context.Context, c *Claim) error {
	if strings.TrimSpace(c.ClaimType) == "" {
		return fmt.Errorf("claim type is required")
	}
	c.ClaimNumber = newClaimNumber()
	c.Status = StatusSubmitted
	return s.repo.Save(ctx, c)
}

func (s *Service) Get(ctx context.Context, id int64) (*Claim, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, userID int64) ([]Claim, error) {
	return s.repo.List(ctx, userID)
}

func (s *Service) UpdateStatus(ctx context.Context, id int64, status string) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.repo.UpdateStatus(ctx, id, status, c.ManualReviewRequired)
}

// ClaimType implements the document feature's claim lookup boundary.
func (s *Service) ClaimType(ctx context.Context, id int64) (string, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return c.ClaimType, nil
}

// Describe returns the claim context for answer generation, using the
// validation fields as of the last computation.
func (s *Service) Describe(ctx context.Context, id int64) (*Summary, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Summary{
		ClaimNumber:        c.ClaimNumber,
		ClaimType:          c.ClaimType,
		Status:             c.Status,
		Created:            c.CreatedAt,
		Description:        c.IncidentDescription,
		ValidationProgress: c.ValidationProgress,
		ValidationStatus:   c.ValidationStatus,
	}, nil
}

// RefreshValidation recomputes the checklist snapshot from the full current
// document set, writes the deciding fields back onto the claim, and
// escalates to human review once every required item is satisfied.
func (s *Service) RefreshValidation(ctx context.Context, id int64) (validation.Snapshot, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return validation.Snapshot{}, err
	}

	docs, err := s.docs.EngineDocuments(ctx, id)
	if err != nil {
		return validation.Snapshot{}, err
	}

	snap := s.engine.BuildStatus(ctx, validation.ClaimInfo{
		ID:        c.ID,
		ClaimType: c.ClaimType,
		Fields: map[string]string{
			"incident_date":        c.IncidentDate,
			"incident_description": c.IncidentDescription,
		},
	}, docs)

	if err := s.repo.UpdateValidation(ctx, id, snap.Progress, string(snap.DecisionHint)); err != nil {
		return validation.Snapshot{}, err
	}

	if validation.ShouldEscalate(snap) && c.Status == StatusSubmitted {
		if err := s.repo.UpdateStatus(ctx, id, StatusInReview, true); err != nil {
			slog.ErrorContext(ctx, "failed to escalate claim", "claim_id", id, "error", err)
		} else {
			slog.InfoContext(ctx, "claim escalated to human review", "claim_id", id, "progress", snap.Progress)
		}
	}

	return snap, nil
}

func newClaimNumber() string {
	id := strings.ToUpper(uuid.New().String())
	return "CLM-" + strings.ReplaceAll(id, "-", "")[:10]
}
