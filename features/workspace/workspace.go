// Package workspace owns the workspace lifecycle: a named document
// collection bound to exactly one engine at creation time, provisioned
// through that engine's adapter, and torn down through an idempotent
// multi-step delete.
package workspace

import (
	"time"

	"ragmine/internal/engine"
)

const (
	StatusCreating = "creating"
	StatusReady    = "ready"
	StatusError    = "error"
	StatusDeleting = "deleting"
)

type Workspace struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Owner  string      `json:"owner"`
	Engine engine.Kind `json:"engine"`
	Status string      `json:"status"`

	// Engine-specific configuration, frozen at creation time together
	// with the engine kind.
	EmbeddingModel string  `json:"embedding_model"`
	Dimensions     int     `json:"dimensions"`
	ChunkSize      int     `json:"chunk_size"`
	ChunkOverlap   float64 `json:"chunk_overlap"`
	Hybrid         bool    `json:"hybrid"`
	IndexRef       string  `json:"index_ref,omitempty"`

	// CollectionRef is the engine handle returned by CreateCollection,
	// stored so later operations never re-derive it from configuration.
	CollectionRef string `json:"-"`

	ErrorReason string    `json:"error_reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CollectionSpec maps the frozen workspace configuration onto what the
// engine adapter needs.
func (w *Workspace) CollectionSpec() engine.CollectionSpec {
	return engine.CollectionSpec{
		WorkspaceID: w.ID,
		Dimensions:  w.Dimensions,
		Hybrid:      w.Hybrid,
		IndexRef:    w.IndexRef,
	}
}

// Collection rebuilds the engine handle from the stored reference. Ref
// is empty when provisioning never completed; callers that tear down
// must resolve it through the adapter first.
func (w *Workspace) Collection() engine.Collection {
	return engine.Collection{
		WorkspaceID: w.ID,
		Kind:        w.Engine,
		Ref:         w.CollectionRef,
		Dimensions:  w.Dimensions,
		Hybrid:      w.Hybrid,
	}
}
