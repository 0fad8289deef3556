package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"claimscompanion/backend/internal/middleware"
)

const ingestTimeout = 120 * time.Second

// IngestConsumer consumes policy.ingest tasks: extract text, chunk, embed,
// add to the index. Failures are dead-lettered, not retried in place.
type IngestConsumer struct {
	splitter   Splitter
	extractor  Extractor
	index      ChunkIndex
	updater    PolicyUpdater
	deadLetter DeadLetter
}

func NewIngestConsumer(sp Splitter, ex Extractor, idx ChunkIndex, up PolicyUpdater, dl DeadLetter) *IngestConsumer {
	return &IngestConsumer{
		splitter:   sp,
		extractor:  ex,
		index:      idx,
		updater:    up,
		deadLetter: dl,
	}
}

func (h *IngestConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload PolicyIngestPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison pill: invalid JSON, don't retry.
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}

	correlationID := payload.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if payload.PolicyID == "" || payload.Path == "" {
		slog.ErrorContext(ctx, "missing required fields, dropping", "policy_id", payload.PolicyID, "path", payload.Path)
		return nil
	}

	ingestCtx, cancel := context.WithTimeout(ctx, ingestTimeout)
	defer cancel()

	count, err := h.ingest(ingestCtx, payload)
	if err != nil {
		slog.ErrorContext(ctx, "policy ingestion failed", "policy_id", payload.PolicyID, "error", err)
		if uerr := h.updater.UpdateStatus(ctx, payload.PolicyID, "failed", 0); uerr != nil {
			slog.WarnContext(ctx, "failed to update policy status", "error", uerr)
		}
		if derr := h.deadLetter.SaveFailed(ctx, payload.PolicyID, "policy-ingest", m.Body, err.Error()); derr != nil {
			slog.WarnContext(ctx, "failed to dead-letter task", "error", derr)
		}
		return nil
	}

	if err := h.updater.UpdateStatus(ctx, payload.PolicyID, "completed", count); err != nil {
		slog.WarnContext(ctx, "failed to update policy status", "error", err)
	}
	slog.InfoContext(ctx, "policy indexed", "policy_id", payload.PolicyID, "chunks", count)
	return nil
}

func (h *IngestConsumer) ingest(ctx context.Context, payload PolicyIngestPayload) (int, error) {
	text, err := h.loadText(ctx, payload.Path)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("no text extracted from %s", payload.FileName)
	}

	chunks := h.splitter.Split(payload.PolicyID, text)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("document produced no chunks")
	}

	if err := h.index.Add(ctx, chunks); err != nil {
		return 0, fmt.Errorf("index chunks: %w", err)
	}
	return len(chunks), nil
}

func (h *IngestConsumer) loadText(ctx context.Context, path string) (string, error) {
	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("read policy file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return string(raw), nil
	case ".pdf":
		return h.extractor.ExtractText(ctx, raw, "application/pdf")
	default:
		return h.extractor.ExtractText(ctx, raw, "application/octet-stream")
	}
}
