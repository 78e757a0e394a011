package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type nopAdapter struct{}

func (nopAdapter) CreateCollection(ctx context.Context, spec CollectionSpec) (Collection, error) {
	return Collection{WorkspaceID: spec.WorkspaceID}, nil
}
func (nopAdapter) UpsertVectors(ctx context.Context, coll Collection, records []VectorRecord) error {
	return nil
}
func (nopAdapter) Query(ctx context.Context, coll Collection, q Query) ([]Match, error) {
	return nil, nil
}
func (nopAdapter) DeleteDocument(ctx context.Context, coll Collection, documentID string) error {
	return nil
}
func (nopAdapter) DeleteCollection(ctx context.Context, coll Collection) error { return nil }

func TestParseKind(t *testing.T) {
	for _, valid := range []string{"pgvector", "weaviate", "managed"} {
		k, err := ParseKind(valid)
		assert.NoError(t, err)
		assert.Equal(t, Kind(valid), k)
	}

	_, err := ParseKind("kendra")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	registry.Register(KindPGVector, nopAdapter{})

	t.Run("Get", func(t *testing.T) {
		a, err := registry.Get(KindPGVector)
		assert.NoError(t, err)
		assert.NotNil(t, a)
	})

	t.Run("Unregistered", func(t *testing.T) {
		_, err := registry.Get(KindWeaviate)
		assert.ErrorIs(t, err, ErrUnknownKind)
	})

	t.Run("Kinds", func(t *testing.T) {
		assert.Equal(t, []Kind{KindPGVector}, registry.Kinds())
	})
}

func TestCheckDimensions(t *testing.T) {
	coll := Collection{Dimensions: 3}

	assert.NoError(t, CheckDimensions(coll, []VectorRecord{
		{ChunkID: "a", Vector: []float32{1, 2, 3}},
	}))

	err := CheckDimensions(coll, []VectorRecord{
		{ChunkID: "a", Vector: []float32{1, 2, 3}},
		{ChunkID: "b", Vector: []float32{1}},
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Contains(t, err.Error(), "chunk b")
}
