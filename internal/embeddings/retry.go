package embeddings

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryingProvider wraps a Provider with bounded exponential backoff on
// transient failures. Anything that is not ErrModelUnavailable passes
// through untouched on the first attempt.
type RetryingProvider struct {
	inner      Provider
	maxRetries uint64
}

func WithRetry(p Provider, maxRetries int) *RetryingProvider {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryingProvider{inner: p, maxRetries: uint64(maxRetries)}
}

func (r *RetryingProvider) Embed(ctx context.Context, model Model, texts []string) ([][]float32, error) {
	var vectors [][]float32

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 15 * time.Second

	operation := func() error {
		var err error
		vectors, err = r.inner.Embed(ctx, model, texts)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrModelUnavailable) {
			slog.WarnContext(ctx, "embedding attempt failed, backing off", "model", model.Name, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, r.maxRetries), ctx))
	if err != nil {
		return nil, err
	}
	return vectors, nil
}
