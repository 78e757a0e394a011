// Package document owns document records and their chunks. A document
// belongs to exactly one workspace for its lifetime and moves forward
// through submitted → pending → processing → processed, with error as
// the off-ramp; a failed document is retried by running a fresh
// processing cycle, never by resuming mid-way.
package document

import (
	"time"
)

const (
	TypeFile    = "file"
	TypeText    = "text"
	TypeWebsite = "website"
	TypeQnA     = "qna"
	TypeRSSFeed = "rssfeed"
)

const (
	StatusSubmitted  = "submitted"
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusError      = "error"
	StatusDisabled   = "disabled"
)

func ValidType(t string) bool {
	switch t {
	case TypeFile, TypeText, TypeWebsite, TypeQnA, TypeRSSFeed:
		return true
	}
	return false
}

type Document struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Type        string `json:"type"`
	Title       string `json:"title,omitempty"`
	// SourceLocation is the stored file path, the page URL, or empty for
	// inline payloads.
	SourceLocation string `json:"source_location,omitempty"`
	// InlinePayload holds text/qna content supplied directly.
	InlinePayload string `json:"-"`
	Status        string `json:"status"`
	SizeBytes     int64  `json:"size_bytes"`
	ErrorReason   string `json:"error_reason,omitempty"`
	// CrawlDepth is the depth this page was discovered at (website only).
	CrawlDepth  int        `json:"crawl_depth,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// Chunk rows are owned exclusively by their document and die with it.
type Chunk struct {
	ID          string `json:"id"`
	DocumentID  string `json:"document_id"`
	WorkspaceID string `json:"workspace_id"`
	Index       int    `json:"index"`
	Content     string `json:"content"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
}
