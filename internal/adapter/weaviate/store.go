package weaviate

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"claimscompanion/backend/internal/chunk"
	"claimscompanion/backend/internal/index"
	"claimscompanion/backend/internal/retrieval"
	"claimscompanion/backend/internal/vector"
)

// Store is the Weaviate-backed alternative to the in-memory index, for
// deployments that need the policy corpus to survive restarts.
type Store struct {
	client   *weaviate.Client
	embedder index.Embedder
}

func NewStore(client *weaviate.Client, embedder index.Embedder) *Store {
	return &Store{client: client, embedder: embedder}
}

func (s *Store) Add(ctx context.Context, chunks []chunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	for i, c := range chunks {
		_, err := s.client.Data().Creator().
			WithClassName(vector.ClassPolicyChunk).
			WithProperties(map[string]interface{}{
				"content":     c.Text,
				"chunkId":     c.ID,
				"sourceDocId": c.SourceDocID,
				"sequence":    c.Sequence,
				"section":     string(c.Section),
				"hierarchy":   c.HierarchyPath,
				"crossRefs":   c.CrossRefs,
			}).
			WithVector(vectors[i]).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("store chunk %s: %w", c.ID, err)
		}
	}
	return nil
}

func (s *Store) Search(ctx context.Context, query string, k int) ([]retrieval.Result, error) {
	if k <= 0 {
		return nil, nil
	}

	vectors, err := s.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vectors))
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vectors[0])

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassPolicyChunk).
		WithNearVector(nearVector).
		WithLimit(k).
		WithFields(chunkFields()...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	return parseResults(res.Data), nil
}

func (s *Store) ResolveRefs(ctx context.Context, refs []string) ([]retrieval.Result, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	var operands []*filters.WhereBuilder
	for _, ref := range refs {
		operands = append(operands, filters.Where().
			WithPath([]string{"hierarchy"}).
			WithOperator(filters.Like).
			WithValueString("*"+ref+"*"))
	}
	where := filters.Where().WithOperator(filters.Or).WithOperands(operands)

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassPolicyChunk).
		WithWhere(where).
		WithLimit(50).
		WithFields(chunkFields()...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	results := parseResults(res.Data)
	for i := range results {
		results[i].Score = 1.0
	}
	return results, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(vector.ClassPolicyChunk).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors)
	}

	if data, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if classes, ok := data[vector.ClassPolicyChunk].([]interface{}); ok && len(classes) > 0 {
			if obj, ok := classes[0].(map[string]interface{}); ok {
				if meta, ok := obj["meta"].(map[string]interface{}); ok {
					if count, ok := meta["count"].(float64); ok {
						return int(count), nil
					}
				}
			}
		}
	}
	return 0, nil
}

func (s *Store) DeleteBySource(ctx context.Context, docID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassPolicyChunk).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"sourceDocId"}).
			WithOperator(filters.Equal).
			WithValueString(docID)).
		Do(ctx)
	return err
}

func chunkFields() []graphql.Field {
	return []graphql.Field{
		{Name: "content"},
		{Name: "chunkId"},
		{Name: "sourceDocId"},
		{Name: "sequence"},
		{Name: "section"},
		{Name: "hierarchy"},
		{Name: "crossRefs"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}
}

func parseResults(data map[string]models.JSONObject) []retrieval.Result {
	var results []retrieval.Result

	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return results
	}
	objects, ok := get[vector.ClassPolicyChunk].([]interface{})
	if !ok {
		return results
	}

	for _, o := range objects {
		props, ok := o.(map[string]interface{})
		if !ok {
			continue
		}

		r := retrieval.Result{Metadata: map[string]interface{}{}}
		if v, ok := props["content"].(string); ok {
			r.Text = v
		}
		if v, ok := props["chunkId"].(string); ok {
			r.ChunkID = v
		}
		if v, ok := props["sourceDocId"].(string); ok {
			r.SourceDocID = v
		}
		if v, ok := props["section"].(string); ok {
			r.Section = chunk.SectionType(v)
		}
		if v, ok := props["sequence"].(float64); ok {
			r.Metadata["sequence"] = int(v)
		}
		if v, ok := props["hierarchy"].(string); ok {
			r.Metadata["hierarchy"] = v
		}
		if v, ok := props["crossRefs"].([]interface{}); ok {
			for _, ref := range v {
				if s, ok := ref.(string); ok {
					r.CrossRefs = append(r.CrossRefs, s)
				}
			}
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if certainty, ok := additional["certainty"].(float64); ok {
				r.Score = certainty
			}
		}
		results = append(results, r)
	}
	return results
}
