package job

import (
	"context"
	"log/slog"

	"claimscompanion/backend/internal/config"
)

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo Repository
	pub  EventPublisher
}

func NewService(repo Repository, pub EventPublisher) *Service {
	return &Service{repo: repo, pub: pub}
}

func (s *Service) List(ctx context.Context) ([]Job, error) {
	return s.repo.List(ctx)
}

// Retry republishes the dead-lettered task and removes the job record.
func (s *Service) Retry(ctx context.Context, id string) error {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.pub.Publish(config.TopicPolicyIngest, j.Payload); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		// Already republished; a duplicate retry is harmless because the
		// index deduplicates by content hash.
		slog.WarnContext(ctx, "failed to delete retried job", "id", id, "error", err)
	}
	return nil
}
