package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	"ragmine/internal/embeddings"
)

type Embedder struct {
	client  openai.Client
	limiter *rate.Limiter
}

func NewEmbedder(apiKey string, limiter *rate.Limiter, opts ...option.RequestOption) *Embedder {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Embedder{client: openai.NewClient(opts...), limiter: limiter}
}

func (e *Embedder) Embed(ctx context.Context, model embeddings.Model, texts []string) ([][]float32, error) {
	return embeddings.InBatches(texts, model.MaxBatch, func(batch []string) ([][]float32, error) {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: batch},
			Model: openai.EmbeddingModel(model.Name),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", embeddings.ErrModelUnavailable, err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("openai returned %d embeddings for %d texts", len(resp.Data), len(batch))
		}

		// Data order is not guaranteed to match input, so place by the
		// returned index.
		vectors := make([][]float32, len(batch))
		for _, d := range resp.Data {
			if d.Index < 0 || int(d.Index) >= len(batch) {
				return nil, fmt.Errorf("openai returned out-of-range index %d", d.Index)
			}
			vec := make([]float32, len(d.Embedding))
			for i, f := range d.Embedding {
				vec[i] = float32(f)
			}
			vectors[d.Index] = vec
		}
		for i, v := range vectors {
			if v == nil {
				return nil, fmt.Errorf("missing embedding for input %d", i)
			}
		}
		return vectors, nil
	})
}
