// Package audit keeps an append-only trail of status transitions for
// workspaces and documents. The trail backs the UI's history view and
// lets external tooling find entities stuck in a status past a
// threshold; the alerting itself lives elsewhere.
package audit

import (
	"context"
	"time"
)

const (
	EntityWorkspace = "workspace"
	EntityDocument  = "document"
)

type Transition struct {
	ID         string    `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// StuckEntity is an entity whose latest transition into a status is
// older than the caller's threshold.
type StuckEntity struct {
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Status     string    `json:"status"`
	Since      time.Time `json:"since"`
}

// Recorder is the write side consumed by services. Recording is
// best-effort from the caller's perspective: a failed audit write is
// logged, never allowed to fail the transition it describes.
type Recorder interface {
	Record(ctx context.Context, entityType, entityID, from, to, reason string) error
}

type Store interface {
	Recorder
	List(ctx context.Context, entityID string) ([]Transition, error)
	Stuck(ctx context.Context, entityType, status string, olderThan time.Duration) ([]StuckEntity, error)
}
