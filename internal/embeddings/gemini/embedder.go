package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"ragmine/internal/embeddings"
)

type Embedder struct {
	client  *genai.Client
	limiter *rate.Limiter
}

func NewEmbedder(ctx context.Context, apiKey string, limiter *rate.Limiter) (*Embedder, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &Embedder{client: client, limiter: limiter}, nil
}

func (e *Embedder) Embed(ctx context.Context, model embeddings.Model, texts []string) ([][]float32, error) {
	em := e.client.EmbeddingModel(model.Name)

	return embeddings.InBatches(texts, model.MaxBatch, func(batch []string) ([][]float32, error) {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		slog.DebugContext(ctx, "embedding batch", "model", model.Name, "size", len(batch))
		b := em.NewBatch()
		for _, text := range batch {
			b = b.AddContent(genai.Text(text))
		}

		res, err := em.BatchEmbedContents(ctx, b)
		if err != nil {
			// The SDK does not expose throttling as a typed error, so
			// every API failure here is treated as transient.
			return nil, fmt.Errorf("%w: %v", embeddings.ErrModelUnavailable, err)
		}
		if len(res.Embeddings) != len(batch) {
			return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(res.Embeddings), len(batch))
		}

		vectors := make([][]float32, len(res.Embeddings))
		for i, emb := range res.Embeddings {
			if emb == nil || len(emb.Values) == 0 {
				return nil, fmt.Errorf("empty embedding at index %d", i)
			}
			vectors[i] = emb.Values
		}
		return vectors, nil
	})
}
