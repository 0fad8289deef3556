package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"claimscompanion/backend/internal/checklist"
	"claimscompanion/backend/internal/validation"
)

var (
	ErrUnknownDocType  = errors.New("document type is not on the checklist for this claim")
	ErrUnsupportedType = errors.New("file type is not accepted for this document")
	ErrTooLarge        = errors.New("file exceeds the size limit for this document")
)

type ClaimDocument struct {
	ID            int64                  `json:"id"`
	ClaimID       int64                  `json:"claim_id"`
	FileName      string                 `json:"file_name"`
	FilePath      string                 `json:"-"`
	FileType      string                 `json:"file_type"`
	FileSize      int64                  `json:"file_size"`
	DocType       string                 `json:"doc_type"`
	IsValid       *bool                  `json:"is_valid"`
	Confidence    float64                `json:"confidence"`
	Issues        []string               `json:"issues"`
	Suggestions   []string               `json:"suggestions"`
	ExtractedData map[string]interface{} `json:"extracted_data,omitempty"`
	UploadedAt    string                 `json:"uploaded_at,omitempty"`
}

type Repository interface {
	Save(ctx context.Context, d *ClaimDocument) error
	Get(ctx context.Context, id int64) (*ClaimDocument, error)
	ListByClaim(ctx context.Context, claimID int64) ([]ClaimDocument, error)
	UpdateValidation(ctx context.Context, id int64, outcome validation.Outcome) error
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

// ClaimLookup resolves the claim type that selects the checklist.
type ClaimLookup interface {
	ClaimType(ctx context.Context, id int64) (string, error)
}

// Refresher recomputes the owning claim's validation snapshot after the
// document set changes.
type Refresher interface {
	RefreshValidation(ctx context.Context, claimID int64) (validation.Snapshot, error)
}

type Service struct {
	repo      Repository
	validator validation.DocumentValidator
	claims    ClaimLookup
	refresher Refresher
	uploadDir string
}

func NewService(repo Repository, validator validation.DocumentValidator, claims ClaimLookup, uploadDir string) *Service {
	return &Service{repo: repo, validator: validator, claims: claims, uploadDir: uploadDir}
}

// BindRefresher breaks the construction loop between the claim and document
// services. Must be called before Upload or Remove.
func (s *Service) BindRefresher(r Refresher) {
	s.refresher = r
}

// UploadResult pairs the stored document with the snapshot recomputed from
// the claim's full document set.
type UploadResult struct {
	Document *ClaimDocument      `json:"document"`
	Snapshot validation.Snapshot `json:"validation"`
}

func (s *Service) Upload(ctx context.Context, claimID int64, docType, fileName string, size int64, file io.Reader) (*UploadResult, error) {
	claimType, err := s.claims.ClaimType(ctx, claimID)
	if err != nil {
		return nil, err
	}

	item, ok := checklistItem(claimType, docType)
	if !ok {
		return nil, ErrUnknownDocType
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	if !item.Accepts(ext) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}
	if size > int64(item.MaxSizeMB)*1024*1024 {
		return nil, fmt.Errorf("%w: limit %dMB", ErrTooLarge, item.MaxSizeMB)
	}

	path, written, err := s.store(claimID, ext, file)
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	doc := &ClaimDocument{
		ClaimID:  claimID,
		FileName: fileName,
		FilePath: path,
		FileType: strings.TrimPrefix(ext, "."),
		FileSize: written,
		DocType:  item.DocType,
	}
	if err := s.repo.Save(ctx, doc); err != nil {
		os.Remove(path)
		return nil, err
	}

	outcome := s.validator.Validate(ctx, path, item)
	if err := s.repo.UpdateValidation(ctx, doc.ID, outcome); err != nil {
		slog.ErrorContext(ctx, "failed to persist validation outcome", "document_id", doc.ID, "error", err)
	}
	doc.IsValid = &outcome.IsValid
	doc.Confidence = outcome.Confidence
	doc.Issues = outcome.Issues
	doc.Suggestions = outcome.Suggestions
	doc.ExtractedData = outcome.ExtractedData

	snap, err := s.refresher.RefreshValidation(ctx, claimID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to refresh claim validation", "claim_id", claimID, "error", err)
	}

	return &UploadResult{Document: doc, Snapshot: snap}, nil
}

func (s *Service) List(ctx context.Context, claimID int64) ([]ClaimDocument, error) {
	return s.repo.ListByClaim(ctx, claimID)
}

func (s *Service) Remove(ctx context.Context, id int64) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
		slog.WarnContext(ctx, "failed to remove stored file", "path", doc.FilePath, "error", err)
	}
	if _, err := s.refresher.RefreshValidation(ctx, doc.ClaimID); err != nil {
		slog.ErrorContext(ctx, "failed to refresh claim validation", "claim_id", doc.ClaimID, "error", err)
	}
	return nil
}

// EngineDocuments implements the claim feature's document source boundary.
func (s *Service) EngineDocuments(ctx context.Context, claimID int64) ([]validation.Document, error) {
	docs, err := s.repo.ListByClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	out := make([]validation.Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, validation.Document{
			ID:       d.ID,
			FileName: d.FileName,
			FilePath: d.FilePath,
			DocType:  d.DocType,
		})
	}
	return out, nil
}

func (s *Service) store(claimID int64, ext string, file io.Reader) (string, int64, error) {
	dir := filepath.Join(s.uploadDir, fmt.Sprintf("claim_%d", claimID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, err
	}
	path := filepath.Join(dir, uuid.New().String()+ext)
	dst, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}
	defer dst.Close()

	written, err := io.Copy(dst, file)
	if err != nil {
		os.Remove(path)
		return "", 0, err
	}
	return path, written, nil
}

// checklistItem finds the checklist entry a document type satisfies,
// matching alternates as well as the primary type.
func checklistItem(claimType, docType string) (checklist.ItemSpec, bool) {
	for _, item := range checklist.ForClaimType(claimType) {
		if item.DocType == "" {
			continue
		}
		if item.DocType == docType {
			return item, true
		}
		for _, alt := range item.AlternateDocTypes {
			if alt == docType {
				return item, true
			}
		}
	}
	return checklist.ItemSpec{}, false
}
