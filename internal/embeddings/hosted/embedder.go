// Package hosted calls a self-hosted embedding server (e5, MiniLM and
// friends behind a plain JSON endpoint).
package hosted

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"ragmine/internal/embeddings"
)

type Embedder struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func NewEmbedder(baseURL string, limiter *rate.Limiter) *Embedder {
	return &Embedder{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
		limiter: limiter,
	}
}

func (e *Embedder) Embed(ctx context.Context, model embeddings.Model, texts []string) ([][]float32, error) {
	return embeddings.InBatches(texts, model.MaxBatch, func(batch []string) ([][]float32, error) {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		reqBody := map[string]interface{}{
			"model":  model.Name,
			"inputs": batch,
		}
		payload, err := json.Marshal(reqBody)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embed", bytes.NewBuffer(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", embeddings.ErrModelUnavailable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: status %d", embeddings.ErrModelUnavailable, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("embedding server error: status %d", resp.StatusCode)
		}

		var result struct {
			Vectors [][]float32 `json:"vectors"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, err
		}
		if len(result.Vectors) != len(batch) {
			return nil, fmt.Errorf("embedding server returned %d vectors for %d texts", len(result.Vectors), len(batch))
		}
		return result.Vectors, nil
	})
}
