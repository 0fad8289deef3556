package worker

import (
	"context"

	"claimscompanion/backend/internal/chunk"
)

// ChunkIndex receives chunks produced by policy ingestion.
type ChunkIndex interface {
	Add(ctx context.Context, chunks []chunk.Chunk) error
}

// Splitter turns extracted policy text into chunks.
type Splitter interface {
	Split(docID, text string) []chunk.Chunk
}

// Extractor is the OCR/text-extraction boundary for non-text formats.
type Extractor interface {
	ExtractText(ctx context.Context, data []byte, mimeType string) (string, error)
}

// PolicyUpdater reports ingestion outcomes back to the policy record.
type PolicyUpdater interface {
	UpdateStatus(ctx context.Context, id, status string, chunkCount int) error
}

// DeadLetter stores tasks that could not be processed.
type DeadLetter interface {
	SaveFailed(ctx context.Context, policyID, handler string, payload []byte, errMsg string) error
}
