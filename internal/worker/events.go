package worker

// IngestTask is one document's processing cycle.
type IngestTask struct {
	DocumentID    string `json:"document_id"`
	WorkspaceID   string `json:"workspace_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// CrawlTask fans out into one document per discovered page.
type CrawlTask struct {
	WorkspaceID   string `json:"workspace_id"`
	URL           string `json:"url"`
	MaxDepth      int    `json:"max_depth"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// DeleteTask is one workspace teardown. Redelivery resumes a partial
// delete from whichever step crashed.
type DeleteTask struct {
	WorkspaceID   string `json:"workspace_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
}
