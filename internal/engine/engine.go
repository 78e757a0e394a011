// Package engine defines the contract every vector/search backend
// implements. A workspace is bound to exactly one engine kind at creation
// time; the adapter for that kind is looked up once through the Registry
// and never re-derived from configuration afterwards.
package engine

import (
	"context"
	"fmt"
)

type Kind string

const (
	// KindPGVector is a relational vector store: one pgvector table per
	// workspace inside the service's own Postgres instance.
	KindPGVector Kind = "pgvector"

	// KindWeaviate is a vector/keyword search cluster: one class per
	// workspace, with an optional hybrid (BM25 + vector) query mode.
	KindWeaviate Kind = "weaviate"

	// KindManaged is an externally managed retrieval index reached over
	// HTTP. The index lifecycle is owned by the external service; the
	// adapter only validates the reference and moves documents.
	KindManaged Kind = "managed"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindPGVector, KindWeaviate, KindManaged:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// CollectionSpec is everything an adapter needs to provision (or resolve)
// the persistent structure backing one workspace.
type CollectionSpec struct {
	WorkspaceID string
	Dimensions  int
	// Hybrid enables keyword+vector fusion on engines that support it.
	Hybrid bool
	// IndexRef names an externally managed index (managed kind only).
	IndexRef string
}

// Collection is the resolved handle for a workspace's backing structure.
// Ref is engine specific: a table name, a class name, or an external
// index id.
type Collection struct {
	WorkspaceID string
	Kind        Kind
	Ref         string
	Dimensions  int
	Hybrid      bool
}

// VectorRecord is one chunk's embedding plus the provenance metadata
// stored next to it. ChunkIndex is the stable ordinal inside the owning
// document; it travels with the record so concurrent writes may land in
// any order.
type VectorRecord struct {
	ChunkID    string
	DocumentID string
	ChunkIndex int
	Vector     []float32
	Content    string
	Title      string
	SourceURL  string
}

// Query is a retrieval request. Vector engines rank by Vector; keyword
// engines (the managed kind) rank by Text. Both are always populated.
type Query struct {
	Vector []float32
	Text   string
	TopK   int
	// DocumentID restricts results to one document when non-empty.
	DocumentID string
}

type Match struct {
	ChunkID    string
	DocumentID string
	ChunkIndex int
	Content    string
	SourceURL  string
	Score      float32
}

// Adapter is implemented once per engine kind.
//
// CreateCollection is idempotent: a second call for the same workspace
// returns the existing handle. DeleteCollection is a no-op on an absent
// collection so deletion retries converge. UpsertVectors applies the
// given batch atomically from the caller's perspective: on error the
// whole batch is retried, and records carry deterministic ids so the
// retry overwrites rather than duplicates.
type Adapter interface {
	CreateCollection(ctx context.Context, spec CollectionSpec) (Collection, error)
	UpsertVectors(ctx context.Context, coll Collection, records []VectorRecord) error
	Query(ctx context.Context, coll Collection, q Query) ([]Match, error)
	DeleteDocument(ctx context.Context, coll Collection, documentID string) error
	DeleteCollection(ctx context.Context, coll Collection) error
}

// Registry maps engine kinds to adapters. It is built once at startup
// from configuration and passed by reference; it is not mutated at
// runtime.
type Registry struct {
	adapters map[Kind]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[Kind]Adapter)}
}

func (r *Registry) Register(k Kind, a Adapter) {
	r.adapters[k] = a
}

func (r *Registry) Get(k Kind) (Adapter, error) {
	a, ok := r.adapters[k]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
	return a, nil
}

func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.adapters))
	for k := range r.adapters {
		kinds = append(kinds, k)
	}
	return kinds
}
