package index

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"claimscompanion/backend/internal/chunk"
	"claimscompanion/backend/internal/retrieval"
)

// Embedder is the external embedding provider boundary. Batched: one call
// encodes a whole document's chunks.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

var ErrDimensionMismatch = errors.New("embedding dimensionality changed across index")

type record struct {
	chunk  chunk.Chunk
	vector []float32
}

// Memory is the process-wide in-memory embedding index: exhaustive cosine
// scan over every stored vector. Mutation goes through a single-writer
// mutex; searches read a stable snapshot under the read lock.
type Memory struct {
	embedder Embedder

	mu      sync.RWMutex
	records []record
	seen    map[[32]byte]bool
	dim     int
}

func NewMemory(embedder Embedder) *Memory {
	return &Memory{embedder: embedder, seen: map[[32]byte]bool{}}
}

// Add encodes and stores chunks. Additive only; chunks whose content hash
// is already present are skipped so repeated uploads don't grow the index.
func (m *Memory) Add(ctx context.Context, chunks []chunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	// Dedup before paying for embeddings.
	m.mu.RLock()
	var fresh []chunk.Chunk
	for _, c := range chunks {
		if !m.seen[sha256.Sum256([]byte(c.Text))] {
			fresh = append(fresh, c)
		}
	}
	m.mu.RUnlock()
	if len(fresh) == 0 {
		return nil
	}

	texts := make([]string, len(fresh))
	for i, c := range fresh {
		texts[i] = c.Text
	}
	vectors, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(fresh) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(fresh))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Check every vector before touching the index so a mismatch cannot
	// leave part of the batch behind.
	dim := m.dim
	for _, v := range vectors {
		if dim == 0 {
			dim = len(v)
		} else if len(v) != dim {
			return ErrDimensionMismatch
		}
	}
	m.dim = dim

	for i, c := range fresh {
		key := sha256.Sum256([]byte(c.Text))
		if m.seen[key] {
			continue
		}
		m.records = append(m.records, record{chunk: c, vector: vectors[i]})
		m.seen[key] = true
	}
	return nil
}

// Search returns the k nearest chunks by cosine similarity. An empty index
// yields an empty result set, never an error. Equal scores preserve
// insertion order.
func (m *Memory) Search(ctx context.Context, query string, k int) ([]retrieval.Result, error) {
	m.mu.RLock()
	snapshot := m.records
	m.mu.RUnlock()

	if len(snapshot) == 0 || k <= 0 {
		return nil, nil
	}

	vectors, err := m.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vectors))
	}
	qv := vectors[0]

	scored := make([]retrieval.Result, 0, len(snapshot))
	for _, rec := range snapshot {
		scored = append(scored, toResult(rec.chunk, cosine(qv, rec.vector)))
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

// ResolveRefs returns chunks whose section heading matches any of the given
// cross-references (e.g. "section 4.2").
func (m *Memory) ResolveRefs(ctx context.Context, refs []string) ([]retrieval.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []retrieval.Result
	for _, rec := range m.records {
		for _, ref := range refs {
			if refMatches(rec.chunk.HierarchyPath, ref) {
				out = append(out, toResult(rec.chunk, 1.0))
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// DeleteBySource drops every chunk of a purged document, keeping the
// chunk/vector correspondence intact. The surviving records go into a
// fresh slice; Search reads its snapshot outside the lock, so the old
// backing array must never be rewritten in place.
func (m *Memory) DeleteBySource(ctx context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := make([]record, 0, len(m.records))
	for _, rec := range m.records {
		if rec.chunk.SourceDocID == docID {
			delete(m.seen, sha256.Sum256([]byte(rec.chunk.Text)))
			continue
		}
		kept = append(kept, rec)
	}
	m.records = kept
	return nil
}

func toResult(c chunk.Chunk, score float64) retrieval.Result {
	return retrieval.Result{
		ChunkID:     c.ID,
		Text:        c.Text,
		Score:       score,
		SourceDocID: c.SourceDocID,
		Section:     c.Section,
		CrossRefs:   c.CrossRefs,
		Metadata: map[string]interface{}{
			"sequence":  c.Sequence,
			"hierarchy": c.HierarchyPath,
		},
	}
}

func refMatches(hierarchy, ref string) bool {
	if hierarchy == "" || ref == "" {
		return false
	}
	hier := strings.ToLower(hierarchy)
	if strings.Contains(hier, ref) {
		return true
	}
	// "section 4.2" should also match a bare "4.2 Fire Damage" heading.
	if num, ok := strings.CutPrefix(ref, "section "); ok {
		return strings.HasPrefix(hier, num+" ") || strings.HasPrefix(hier, num+".") ||
			strings.HasPrefix(hier, num+")") || strings.HasPrefix(hier, num+":")
	}
	return false
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
