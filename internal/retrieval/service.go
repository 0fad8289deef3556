package retrieval

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sort"
	"strings"
	"time"

	"claimscompanion/backend/internal/chunk"
)

// Result is one retrieved chunk, ordered by descending relevance.
// Transient: produced per query, never persisted.
type Result struct {
	ChunkID     string                 `json:"chunk_id"`
	Text        string                 `json:"text"`
	Score       float64                `json:"score"`
	SourceDocID string                 `json:"source_doc_id"`
	Section     chunk.SectionType      `json:"section"`
	CrossRefs   []string               `json:"-"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

type Intent string

const (
	IntentCoverage   Intent = "coverage_check"
	IntentExclusion  Intent = "exclusion_lookup"
	IntentDefinition Intent = "definition_lookup"
	IntentProcedure  Intent = "procedure_inquiry"
	IntentGeneral    Intent = "general"
)

// Searcher is the vector index boundary: nearest-neighbour search plus
// resolution of recorded cross-references to their target chunks.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]Result, error)
	ResolveRefs(ctx context.Context, refs []string) ([]Result, error)
}

type Service struct {
	searcher Searcher
	logger   *QueryLogger
}

func NewService(searcher Searcher, logger *QueryLogger) *Service {
	return &Service{searcher: searcher, logger: logger}
}

// Retrieve delegates to the index. Fails closed: if the index is
// unavailable the caller gets an empty set, never an error, so answer
// generation can fall back to an "insufficient context" response.
func (s *Service) Retrieve(ctx context.Context, query string, topK int) []Result {
	start := time.Now()

	results, err := s.searcher.Search(ctx, query, topK)
	if err != nil {
		slog.ErrorContext(ctx, "retrieval failed, returning empty set", "error", err)
		return nil
	}

	s.log(ctx, query, "basic", len(results), start)
	return results
}

// RetrieveHybrid runs the enhanced pipeline: oversampled similarity search,
// cross-reference expansion at a fixed discount, keyword/intent re-ranking,
// and fingerprint dedup down to topK.
func (s *Service) RetrieveHybrid(ctx context.Context, query string, topK int) []Result {
	start := time.Now()

	// 1. Oversample to absorb dedup loss.
	results, err := s.searcher.Search(ctx, query, 2*topK)
	if err != nil {
		slog.ErrorContext(ctx, "retrieval failed, returning empty set", "error", err)
		return nil
	}
	if len(results) == 0 {
		return nil
	}

	intent := ClassifyIntent(query)

	// 2. Expand via recorded cross-references, discounting expanded chunks.
	combined := results
	var refs []string
	for _, r := range results {
		refs = append(refs, r.CrossRefs...)
	}
	if len(refs) > 0 {
		expanded, err := s.searcher.ResolveRefs(ctx, refs)
		if err != nil {
			slog.WarnContext(ctx, "cross-reference expansion failed", "error", err)
		}
		for _, e := range expanded {
			e.Score *= expansionDiscount
			combined = append(combined, e)
		}
	}

	// 3. Re-rank by term overlap plus intent/section bonus. The similarity
	// ordering survives as a tie-break through the stable sort.
	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].Score > combined[j].Score
	})
	terms := queryTerms(query)
	weighted := make([]float64, len(combined))
	for i, r := range combined {
		weighted[i] = termOverlap(terms, r.Text)
		if sectionForIntent(intent) == r.Section {
			weighted[i] += intentBonus
		}
	}
	order := make([]int, len(combined))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return weighted[order[i]] > weighted[order[j]]
	})

	// 4. Dedup by content fingerprint, keeping the highest-ranked instance.
	seen := map[uint64]bool{}
	var final []Result
	for _, idx := range order {
		r := combined[idx]
		fp := fingerprint(r.Text)
		if seen[fp] {
			continue
		}
		seen[fp] = true
		r.Score = weighted[idx]
		final = append(final, r)
		if len(final) == topK {
			break
		}
	}

	s.log(ctx, query, "hybrid", len(final), start)
	return final
}

func (s *Service) log(ctx context.Context, query, mode string, n int, start time.Time) {
	if s.logger == nil {
		return
	}
	s.logger.Log(QueryLogEntry{
		Query:      query,
		Mode:       mode,
		NumResults: n,
		Duration:   time.Since(start),
	})
}

const (
	expansionDiscount = 0.8
	intentBonus       = 0.3
	fingerprintLen    = 100
)

func fingerprint(text string) uint64 {
	if len(text) > fingerprintLen {
		text = text[:fingerprintLen]
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return h.Sum64()
}

var intentKeywords = []struct {
	intent   Intent
	keywords []string
}{
	{IntentExclusion, []string{"exclusion", "excluded", "not covered", "exception"}},
	{IntentDefinition, []string{"what does", "what is", "definition", "mean"}},
	{IntentProcedure, []string{"how do i", "how to", "procedure", "submit", "claim process", "notify"}},
	{IntentCoverage, []string{"cover", "coverage", "insured", "pay", "reimburse"}},
}

// ClassifyIntent buckets a query by keyword match. Exclusion outranks
// coverage so "not covered" queries land on the right bucket.
func ClassifyIntent(query string) Intent {
	lower := strings.ToLower(query)
	for _, entry := range intentKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.intent
			}
		}
	}
	return IntentGeneral
}

func sectionForIntent(i Intent) chunk.SectionType {
	switch i {
	case IntentCoverage:
		return chunk.SectionCoverage
	case IntentExclusion:
		return chunk.SectionExclusion
	case IntentDefinition:
		return chunk.SectionDefinition
	case IntentProcedure:
		return chunk.SectionProcedure
	}
	return chunk.SectionGeneral
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "do": true,
	"does": true, "i": true, "my": true, "me": true, "of": true, "to": true,
	"in": true, "on": true, "for": true, "what": true, "how": true, "and": true,
}

func queryTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if w == "" || stopwords[w] {
			continue
		}
		terms = append(terms, w)
	}
	return terms
}

// termOverlap is the fraction of query terms present in the chunk text.
func termOverlap(terms []string, text string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}
