package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineUnavailable marks transient backend failures. Callers retry
	// with backoff.
	ErrEngineUnavailable = errors.New("engine unavailable")

	// ErrEngineConfig marks a fatal misconfiguration (bad index reference,
	// malformed identifier). Never retried.
	ErrEngineConfig = errors.New("engine configuration invalid")

	// ErrQuotaExceeded marks rejected writes due to backend quotas. Fatal
	// unless the caller backs off.
	ErrQuotaExceeded = errors.New("engine quota exceeded")

	// ErrDimensionMismatch is raised before any write when an embedding's
	// length does not match the collection's provisioned dimensions.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrWorkspaceGone aborts an in-flight ingestion whose workspace has
	// been deleted or is being deleted. Not retryable.
	ErrWorkspaceGone = errors.New("workspace gone")

	ErrUnknownKind = errors.New("unknown engine kind")
)

// CheckDimensions guards every write path: a mismatch between the model
// output and the provisioned collection is fatal, caught before the first
// record reaches the backend.
func CheckDimensions(coll Collection, records []VectorRecord) error {
	for _, rec := range records {
		if len(rec.Vector) != coll.Dimensions {
			return fmt.Errorf("%w: chunk %s has %d dims, collection wants %d",
				ErrDimensionMismatch, rec.ChunkID, len(rec.Vector), coll.Dimensions)
		}
	}
	return nil
}
