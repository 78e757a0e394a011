package embeddings

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCatalog_Lookup(t *testing.T) {
	catalog := NewCatalog()

	t.Run("BuiltinModel", func(t *testing.T) {
		m, err := catalog.Lookup("text-embedding-3-small")
		assert.NoError(t, err)
		assert.Equal(t, "openai", m.Provider)
		assert.Equal(t, 1536, m.Dimensions)
	})

	t.Run("UnknownModel", func(t *testing.T) {
		_, err := catalog.Lookup("does-not-exist")
		assert.ErrorIs(t, err, ErrUnknownModel)
	})
}

func TestCatalog_ExtraModels(t *testing.T) {
	catalog := NewCatalog(Model{Name: "custom-embed", Provider: "hosted", Dimensions: 512, MaxBatch: 16})

	m, err := catalog.Lookup("custom-embed")
	assert.NoError(t, err)
	assert.Equal(t, 512, m.Dimensions)
}

func TestRegistry_For(t *testing.T) {
	registry := NewRegistry()
	provider := &staticProvider{dims: 4}
	registry.Register("hosted", provider)

	t.Run("Registered", func(t *testing.T) {
		p, err := registry.For(Model{Name: "e5-large-v2", Provider: "hosted"})
		assert.NoError(t, err)
		assert.Same(t, provider, p.(*staticProvider))
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := registry.For(Model{Name: "gemini-embedding-001", Provider: "gemini"})
		assert.Error(t, err)
	})
}

func TestInBatches_PreservesOrder(t *testing.T) {
	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%d", i)
	}

	var batchSizes []int
	vectors, err := InBatches(texts, 3, func(batch []string) ([][]float32, error) {
		batchSizes = append(batchSizes, len(batch))
		out := make([][]float32, len(batch))
		for i, s := range batch {
			// encode the ordinal so reassembly order is observable
			var n int
			fmt.Sscanf(s, "text-%d", &n)
			out[i] = []float32{float32(n)}
		}
		return out, nil
	})

	assert.NoError(t, err)
	assert.Len(t, vectors, 10)
	assert.Equal(t, []int{3, 3, 3, 1}, batchSizes)
	for i, v := range vectors {
		assert.Equal(t, float32(i), v[0])
	}
}

func TestInBatches_LengthMismatch(t *testing.T) {
	_, err := InBatches([]string{"a", "b"}, 2, func(batch []string) ([][]float32, error) {
		return [][]float32{{1}}, nil
	})
	assert.Error(t, err)
}

func TestInBatches_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	_, err := InBatches([]string{"a", "b", "c"}, 1, func(batch []string) ([][]float32, error) {
		if batch[0] == "b" {
			return nil, boom
		}
		return [][]float32{{1}}, nil
	})
	assert.ErrorIs(t, err, boom)
}

type staticProvider struct {
	dims int
}

func (p *staticProvider) Embed(ctx context.Context, model Model, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, p.dims)
	}
	return out, nil
}
