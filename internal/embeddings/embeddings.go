// Package embeddings turns chunk text into fixed-length vectors through
// one of several pluggable providers. The contract every provider
// honors: N texts in, N vectors out, in the same order, whatever internal
// batching it performs.
package embeddings

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrModelUnavailable marks transient provider failures (throttling,
	// timeouts). Retried with backoff; exhaustion surfaces on the
	// owning document.
	ErrModelUnavailable = errors.New("embedding model unavailable")

	ErrUnknownModel = errors.New("unknown embedding model")
)

// Model declares one embedding model: its provider, its output width and
// how many texts its API accepts per call.
type Model struct {
	Name       string
	Provider   string
	Dimensions int
	MaxBatch   int
}

type Provider interface {
	Embed(ctx context.Context, model Model, texts []string) ([][]float32, error)
}

// Catalog is the static model table built at startup. Workspace creation
// resolves its model here once; the result is pinned to the workspace.
type Catalog struct {
	models map[string]Model
}

func NewCatalog(extra ...Model) *Catalog {
	c := &Catalog{models: make(map[string]Model)}
	for _, m := range builtinModels {
		c.models[m.Name] = m
	}
	for _, m := range extra {
		c.models[m.Name] = m
	}
	return c
}

var builtinModels = []Model{
	{Name: "gemini-embedding-001", Provider: "gemini", Dimensions: 1536, MaxBatch: 100},
	{Name: "text-embedding-3-small", Provider: "openai", Dimensions: 1536, MaxBatch: 256},
	{Name: "text-embedding-3-large", Provider: "openai", Dimensions: 3072, MaxBatch: 256},
	{Name: "e5-large-v2", Provider: "hosted", Dimensions: 1024, MaxBatch: 32},
	{Name: "all-minilm-l6-v2", Provider: "hosted", Dimensions: 384, MaxBatch: 64},
}

func (c *Catalog) Lookup(name string) (Model, error) {
	m, ok := c.models[name]
	if !ok {
		return Model{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return m, nil
}

// Registry maps provider ids to implementations, mirroring the engine
// registry: built once at startup, read-only afterwards.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func (r *Registry) Register(name string, p Provider) {
	r.providers[name] = p
}

func (r *Registry) For(m Model) (Provider, error) {
	p, ok := r.providers[m.Provider]
	if !ok {
		return nil, fmt.Errorf("no provider registered for %q (model %q)", m.Provider, m.Name)
	}
	return p, nil
}

// InBatches slices texts into windows of at most size and stitches the
// per-window results back together in submission order. Providers use it
// so re-batching can never reorder output relative to input.
func InBatches(texts []string, size int, fn func(batch []string) ([][]float32, error)) ([][]float32, error) {
	if size <= 0 {
		size = len(texts)
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := fn(texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), end-start)
		}
		out = append(out, vectors...)
	}
	return out, nil
}
