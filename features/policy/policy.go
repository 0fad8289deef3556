package policy

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"

	"claimscompanion/backend/internal/config"
	"claimscompanion/backend/internal/middleware"
	"claimscompanion/backend/internal/worker"
)

// Policy is one document of the policy corpus that grounds AI answers.
type Policy struct {
	ID          string `json:"id"`
	FileName    string `json:"file_name"`
	FilePath    string `json:"-"`
	ContentHash string `json:"-"`
	Status      string `json:"status"` // pending, completed, failed
	ChunkCount  int    `json:"chunk_count"`
	CreatedAt   string `json:"created_at"`
}

type Repository interface {
	Save(ctx context.Context, p *Policy) error
	ExistsByHash(ctx context.Context, hash string) (bool, error)
	Get(ctx context.Context, id string) (*Policy, error)
	List(ctx context.Context) ([]Policy, error)
	UpdateStatus(ctx context.Context, id, status string, chunkCount int) error
	SoftDelete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// ChunkPurger removes a purged document's chunks from the index, so no
// embedding record outlives its source.
type ChunkPurger interface {
	DeleteBySource(ctx context.Context, docID string) error
}

type Service struct {
	repo   Repository
	pub    EventPublisher
	purger ChunkPurger
}

func NewService(repo Repository, pub EventPublisher, purger ChunkPurger) *Service {
	return &Service{repo: repo, pub: pub, purger: purger}
}

var ErrDuplicate = fmt.Errorf("duplicate policy document")

// Add registers a stored policy file and queues it for ingestion.
// Re-adding identical content is rejected by content hash.
func (s *Service) Add(ctx context.Context, fileName, filePath string, content []byte) (*Policy, error) {
	hash := sha256.Sum256(content)

	p := &Policy{
		FileName:    fileName,
		FilePath:    filePath,
		ContentHash: fmt.Sprintf("%x", hash),
		Status:      "pending",
	}

	exists, err := s.repo.ExistsByHash(ctx, p.ContentHash)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicate
	}

	if err := s.repo.Save(ctx, p); err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(worker.PolicyIngestPayload{
		PolicyID:      p.ID,
		FileName:      p.FileName,
		Path:          p.FilePath,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err := s.pub.Publish(config.TopicPolicyIngest, payload); err != nil {
		slog.ErrorContext(ctx, "failed to publish policy ingest task", "error", err)
		if uerr := s.repo.UpdateStatus(ctx, p.ID, "failed", 0); uerr != nil {
			slog.WarnContext(ctx, "failed to mark policy failed", "error", uerr)
		}
		return nil, fmt.Errorf("queue ingestion: %w", err)
	}

	return p, nil
}

func (s *Service) List(ctx context.Context) ([]Policy, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*Policy, error) {
	return s.repo.Get(ctx, id)
}

// Delete soft-deletes the record and purges its chunks from the index.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	if err := s.purger.DeleteBySource(ctx, id); err != nil {
		slog.ErrorContext(ctx, "failed to purge policy chunks", "policy_id", id, "error", err)
		return err
	}
	return nil
}
