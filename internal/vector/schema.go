package vector

import (
	"context"

	"github.com/weaviate/weaviate/entities/models"
)

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

const ClassPolicyChunk = "PolicyChunk"

// EnsureSchema checks if the required classes exist and creates them if not.
func EnsureSchema(ctx context.Context, client SchemaClient) error {
	exists, err := client.ClassExists(ctx, ClassPolicyChunk)
	if err != nil {
		return err
	}

	properties := []*models.Property{
		{
			Name:     "content",
			DataType: []string{"text"},
		},
		{
			Name:     "chunkId",
			DataType: []string{"string"},
		},
		{
			Name:     "sourceDocId",
			DataType: []string{"string"},
		},
		{
			Name:     "sequence",
			DataType: []string{"int"},
		},
		{
			Name:     "section",
			DataType: []string{"string"},
		},
		{
			Name:     "hierarchy",
			DataType: []string{"text"},
		},
		{
			Name:     "crossRefs",
			DataType: []string{"text[]"},
		},
	}

	if !exists {
		class := &models.Class{
			Class:       ClassPolicyChunk,
			Description: "A chunk of an indexed policy document",
			Vectorizer:  "none",
			Properties:  properties,
		}
		return client.CreateClass(ctx, class)
	}

	// Class exists: add any properties introduced since it was created.
	current, err := client.GetClass(ctx, ClassPolicyChunk)
	if err != nil {
		return err
	}
	existing := map[string]bool{}
	for _, p := range current.Properties {
		existing[p.Name] = true
	}
	for _, p := range properties {
		if existing[p.Name] {
			continue
		}
		if err := client.AddProperty(ctx, ClassPolicyChunk, p); err != nil {
			return err
		}
	}
	return nil
}
