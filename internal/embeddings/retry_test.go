package embeddings

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type flakyProvider struct {
	failures int
	calls    int
	err      error
}

func (p *flakyProvider) Embed(ctx context.Context, model Model, texts []string) ([][]float32, error) {
	p.calls++
	if p.calls <= p.failures {
		return nil, p.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}

func TestWithRetry_RecoversFromTransientFailure(t *testing.T) {
	inner := &flakyProvider{failures: 2, err: fmt.Errorf("%w: 503", ErrModelUnavailable)}
	provider := WithRetry(inner, 4)

	vectors, err := provider.Embed(context.Background(), Model{Name: "e5-large-v2"}, []string{"a", "b"})

	assert.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Equal(t, 3, inner.calls)
}

func TestWithRetry_GivesUpAfterMaxRetries(t *testing.T) {
	inner := &flakyProvider{failures: 100, err: fmt.Errorf("%w: 503", ErrModelUnavailable)}
	provider := WithRetry(inner, 2)

	_, err := provider.Embed(context.Background(), Model{Name: "e5-large-v2"}, []string{"a"})

	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Equal(t, 3, inner.calls)
}

func TestWithRetry_PermanentErrorShortCircuits(t *testing.T) {
	inner := &flakyProvider{failures: 100, err: errors.New("invalid api key")}
	provider := WithRetry(inner, 4)

	_, err := provider.Embed(context.Background(), Model{Name: "e5-large-v2"}, []string{"a"})

	assert.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestWithRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inner := &flakyProvider{failures: 100, err: fmt.Errorf("%w: 503", ErrModelUnavailable)}
	provider := WithRetry(inner, 10)

	_, err := provider.Embed(ctx, Model{Name: "e5-large-v2"}, []string{"a"})
	assert.Error(t, err)
}
