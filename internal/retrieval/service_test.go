package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"claimscompanion/backend/internal/chunk"
)

// --- Mocks ---

type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) Search(ctx context.Context, query string, k int) ([]Result, error) {
	args := m.Called(ctx, query, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Result), args.Error(1)
}

func (m *MockSearcher) ResolveRefs(ctx context.Context, refs []string) ([]Result, error) {
	args := m.Called(ctx, refs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Result), args.Error(1)
}

// --- Tests ---

func TestService_Retrieve_FailsClosed(t *testing.T) {
	searcher := new(MockSearcher)
	svc := NewService(searcher, nil)

	searcher.On("Search", mock.Anything, "any query", 5).Return(nil, errors.New("index down"))

	results := svc.Retrieve(context.Background(), "any query", 5)
	assert.Empty(t, results)
}

func TestService_Retrieve_PassesThrough(t *testing.T) {
	searcher := new(MockSearcher)
	svc := NewService(searcher, nil)

	stored := []Result{{ChunkID: "c1", Text: "windscreen cover", Score: 0.9}}
	searcher.On("Search", mock.Anything, "windscreen", 3).Return(stored, nil)

	results := svc.Retrieve(context.Background(), "windscreen", 3)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ChunkID)
}

func TestService_RetrieveHybrid_FailsClosed(t *testing.T) {
	searcher := new(MockSearcher)
	svc := NewService(searcher, nil)

	searcher.On("Search", mock.Anything, "query", 10).Return(nil, errors.New("index down"))

	assert.Empty(t, svc.RetrieveHybrid(context.Background(), "query", 5))
}

func TestService_RetrieveHybrid_Oversamples(t *testing.T) {
	searcher := new(MockSearcher)
	svc := NewService(searcher, nil)

	searcher.On("Search", mock.Anything, "fire", 6).Return([]Result{}, nil)

	assert.Empty(t, svc.RetrieveHybrid(context.Background(), "fire", 3))
	searcher.AssertCalled(t, "Search", mock.Anything, "fire", 6)
}

func TestService_RetrieveHybrid_RanksTermOverlapFirst(t *testing.T) {
	searcher := new(MockSearcher)
	svc := NewService(searcher, nil)

	// Higher similarity but no term overlap vs lower similarity with overlap.
	stored := []Result{
		{ChunkID: "c1", Text: "completely unrelated paragraph", Score: 0.95},
		{ChunkID: "c2", Text: "windscreen replacement excess applies", Score: 0.60},
	}
	searcher.On("Search", mock.Anything, mock.Anything, mock.Anything).Return(stored, nil)

	results := svc.RetrieveHybrid(context.Background(), "windscreen excess", 2)
	require.Len(t, results, 2)
	assert.Equal(t, "c2", results[0].ChunkID)
	assert.Equal(t, "c1", results[1].ChunkID)
}

func TestService_RetrieveHybrid_IntentBonusBreaksTies(t *testing.T) {
	searcher := new(MockSearcher)
	svc := NewService(searcher, nil)

	// Both chunks mention the query terms equally; only the section differs.
	stored := []Result{
		{ChunkID: "general", Text: "theft of personal items", Score: 0.9, Section: chunk.SectionGeneral},
		{ChunkID: "exclusion", Text: "theft of personal items", Score: 0.8, Section: chunk.SectionExclusion},
	}
	searcher.On("Search", mock.Anything, mock.Anything, mock.Anything).Return(stored, nil)

	results := svc.RetrieveHybrid(context.Background(), "is theft excluded", 2)
	require.NotEmpty(t, results)
	assert.Equal(t, "exclusion", results[0].ChunkID)
}

func TestService_RetrieveHybrid_ExpandsCrossRefs(t *testing.T) {
	searcher := new(MockSearcher)
	svc := NewService(searcher, nil)

	stored := []Result{
		{ChunkID: "c1", Text: "excess details, see section 4.2", Score: 0.9, CrossRefs: []string{"section 4.2"}},
	}
	expanded := []Result{
		{ChunkID: "ref1", Text: "section 4.2 excess amounts table", Score: 1.0},
	}
	searcher.On("Search", mock.Anything, mock.Anything, mock.Anything).Return(stored, nil)
	searcher.On("ResolveRefs", mock.Anything, []string{"section 4.2"}).Return(expanded, nil)

	results := svc.RetrieveHybrid(context.Background(), "excess", 5)
	require.Len(t, results, 2)

	ids := []string{results[0].ChunkID, results[1].ChunkID}
	assert.Contains(t, ids, "ref1")
	searcher.AssertExpectations(t)
}

func TestService_RetrieveHybrid_ExpansionFailureIsNotFatal(t *testing.T) {
	searcher := new(MockSearcher)
	svc := NewService(searcher, nil)

	stored := []Result{
		{ChunkID: "c1", Text: "fire cover", Score: 0.9, CrossRefs: []string{"section 9"}},
	}
	searcher.On("Search", mock.Anything, mock.Anything, mock.Anything).Return(stored, nil)
	searcher.On("ResolveRefs", mock.Anything, mock.Anything).Return(nil, errors.New("down"))

	results := svc.RetrieveHybrid(context.Background(), "fire", 5)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ChunkID)
}

func TestService_RetrieveHybrid_DedupsByFingerprint(t *testing.T) {
	searcher := new(MockSearcher)
	svc := NewService(searcher, nil)

	stored := []Result{
		{ChunkID: "c1", Text: "identical chunk text", Score: 0.9},
		{ChunkID: "c2", Text: "identical chunk text", Score: 0.8},
		{ChunkID: "c3", Text: "different chunk text", Score: 0.7},
	}
	searcher.On("Search", mock.Anything, mock.Anything, mock.Anything).Return(stored, nil)

	results := svc.RetrieveHybrid(context.Background(), "chunk text", 5)
	require.Len(t, results, 2)
}

func TestService_RetrieveHybrid_TruncatesToTopK(t *testing.T) {
	searcher := new(MockSearcher)
	svc := NewService(searcher, nil)

	stored := []Result{
		{ChunkID: "c1", Text: "one", Score: 0.9},
		{ChunkID: "c2", Text: "two", Score: 0.8},
		{ChunkID: "c3", Text: "three", Score: 0.7},
	}
	searcher.On("Search", mock.Anything, mock.Anything, mock.Anything).Return(stored, nil)

	results := svc.RetrieveHybrid(context.Background(), "anything", 2)
	assert.Len(t, results, 2)
}

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		query string
		want  Intent
	}{
		{"is windscreen damage covered", IntentCoverage},
		{"what is not covered", IntentExclusion},
		{"what does write-off mean", IntentDefinition},
		{"how do i submit a claim", IntentProcedure},
		{"hello there", IntentGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyIntent(tt.query))
		})
	}
}

func TestQueryTerms_DropsStopwords(t *testing.T) {
	terms := queryTerms("What is the excess for a windscreen claim?")
	assert.Equal(t, []string{"excess", "windscreen", "claim"}, terms)
}

func TestTermOverlap(t *testing.T) {
	terms := []string{"windscreen", "excess"}
	assert.InDelta(t, 1.0, termOverlap(terms, "Windscreen excess is EUR 100"), 1e-9)
	assert.InDelta(t, 0.5, termOverlap(terms, "excess only"), 1e-9)
	assert.Zero(t, termOverlap(nil, "anything"))
}
