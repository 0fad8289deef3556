package index

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claimscompanion/backend/internal/chunk"
	"claimscompanion/backend/internal/retrieval"
)

// stubEmbedder maps known texts to fixed vectors so similarity is
// controlled by the test, not by a remote model.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := s.vectors[t]
		if !ok {
			v = []float32{0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}

func newChunks(docID string, texts ...string) []chunk.Chunk {
	chunks := make([]chunk.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = chunk.Chunk{
			ID:          docID + "-" + string(rune('a'+i)),
			Text:        t,
			SourceDocID: docID,
			Sequence:    i,
		}
	}
	return chunks
}

func TestMemory_SearchOrdering(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{
		"close":   {1, 0, 0},
		"closer":  {0.9, 0.1, 0},
		"distant": {0, 1, 0},
		"query":   {1, 0, 0},
	}}
	idx := NewMemory(emb)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, newChunks("doc", "distant", "close", "closer")))

	results, err := idx.Search(ctx, "query", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "close", results[0].Text)
	assert.Equal(t, "closer", results[1].Text)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestMemory_SearchEmptyIndex(t *testing.T) {
	emb := &stubEmbedder{}
	idx := NewMemory(emb)

	results, err := idx.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
	// No embedding call should be paid for an empty index.
	assert.Zero(t, emb.calls)
}

func TestMemory_EqualScoresKeepInsertionOrder(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{
		"first":  {1, 0, 0},
		"second": {1, 0, 0},
		"third":  {1, 0, 0},
		"query":  {1, 0, 0},
	}}
	idx := NewMemory(emb)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, newChunks("doc", "first", "second", "third")))

	results, err := idx.Search(ctx, "query", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "first", results[0].Text)
	assert.Equal(t, "second", results[1].Text)
	assert.Equal(t, "third", results[2].Text)
}

func TestMemory_AddDeduplicatesByContent(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{
		"same text": {1, 0, 0},
	}}
	idx := NewMemory(emb)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, newChunks("doc-1", "same text")))
	require.NoError(t, idx.Add(ctx, newChunks("doc-2", "same text")))

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	// The duplicate batch must not reach the embedder.
	assert.Equal(t, 1, emb.calls)
}

// gatedEmbedder pauses query embedding so a test can mutate the index
// while a search is in flight.
type gatedEmbedder struct {
	stubEmbedder
	entered chan struct{}
	release chan struct{}
}

func (g *gatedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 1 && texts[0] == "query" {
		close(g.entered)
		<-g.release
	}
	return g.stubEmbedder.EmbedBatch(ctx, texts)
}

func TestMemory_SearchSnapshotSurvivesDelete(t *testing.T) {
	emb := &gatedEmbedder{
		stubEmbedder: stubEmbedder{vectors: map[string][]float32{
			"old text": {1, 0, 0},
			"new one":  {0, 1, 0},
			"new two":  {0, 0, 1},
			"query":    {1, 0, 0},
		}},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	idx := NewMemory(emb)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, newChunks("doc-old", "old text")))
	require.NoError(t, idx.Add(ctx, newChunks("doc-new", "new one", "new two")))

	type searchOut struct {
		results []retrieval.Result
		err     error
	}
	done := make(chan searchOut, 1)
	go func() {
		r, err := idx.Search(ctx, "query", 3)
		done <- searchOut{r, err}
	}()

	// The search has taken its snapshot and is blocked in the embedder;
	// deleting now must not disturb what it already read.
	<-emb.entered
	require.NoError(t, idx.DeleteBySource(ctx, "doc-old"))
	close(emb.release)

	out := <-done
	require.NoError(t, out.err)
	require.Len(t, out.results, 3)
	texts := make([]string, len(out.results))
	for i, r := range out.results {
		texts[i] = r.Text
	}
	assert.ElementsMatch(t, []string{"old text", "new one", "new two"}, texts)

	// Fresh searches see the post-delete index.
	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMemory_AddDimensionMismatch(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{
		"three dims": {1, 0, 0},
		"two dims":   {1, 0},
	}}
	idx := NewMemory(emb)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, newChunks("doc-1", "three dims")))

	err := idx.Add(ctx, newChunks("doc-2", "two dims"))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMemory_AddDimensionMismatchLeavesNoPartialState(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{
		"anchor": {1, 0, 0},
		"good":   {0, 1, 0},
		"bad":    {1, 0},
	}}
	idx := NewMemory(emb)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, newChunks("doc-1", "anchor")))

	// One bad vector rejects the whole batch, including its valid siblings.
	err := idx.Add(ctx, newChunks("doc-2", "good", "bad"))
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Content from the rejected batch is not marked seen and can be re-added.
	require.NoError(t, idx.Add(ctx, newChunks("doc-3", "good")))
	count, _ = idx.Count(ctx)
	assert.Equal(t, 2, count)
}

func TestMemory_AddEmbedderError(t *testing.T) {
	emb := &stubEmbedder{err: errors.New("quota exceeded")}
	idx := NewMemory(emb)

	err := idx.Add(context.Background(), newChunks("doc", "text"))
	require.Error(t, err)

	count, _ := idx.Count(context.Background())
	assert.Zero(t, count)
}

func TestMemory_DeleteBySource(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{
		"keep":   {1, 0, 0},
		"purge":  {0, 1, 0},
		"purge2": {0, 0, 1},
	}}
	idx := NewMemory(emb)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, newChunks("doc-keep", "keep")))
	require.NoError(t, idx.Add(ctx, newChunks("doc-purge", "purge", "purge2")))

	require.NoError(t, idx.DeleteBySource(ctx, "doc-purge"))

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Purged content is re-addable, not permanently blacklisted.
	require.NoError(t, idx.Add(ctx, newChunks("doc-new", "purge")))
	count, _ = idx.Count(ctx)
	assert.Equal(t, 2, count)
}

func TestMemory_ResolveRefs(t *testing.T) {
	emb := &stubEmbedder{}
	idx := NewMemory(emb)
	ctx := context.Background()

	chunks := newChunks("doc", "fire cover details", "flood cover details", "no heading")
	chunks[0].HierarchyPath = "Section 4.2 Fire Damage"
	chunks[1].HierarchyPath = "4.3 Flood Damage"
	require.NoError(t, idx.Add(ctx, chunks))

	results, err := idx.ResolveRefs(ctx, []string{"section 4.2"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "fire cover details", results[0].Text)

	// A bare numbered heading still matches its "section N" reference.
	results, err = idx.ResolveRefs(ctx, []string{"section 4.3"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "flood cover details", results[0].Text)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosine([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Zero(t, cosine([]float32{0, 0}, []float32{1, 0}))
}
