package job

import (
	"encoding/json"
	"time"
)

// Job is a parked task whose processing cycle ended in error. The
// original message body is kept verbatim so an operator can inspect
// exactly what the consumer saw.
type Job struct {
	ID          string          `json:"id"`
	WorkspaceID string          `json:"workspace_id"`
	DocumentID  string          `json:"document_id"`
	Topic       string          `json:"topic"`
	Payload     json.RawMessage `json:"payload"`
	Error       string          `json:"error"`
	Retries     int             `json:"retries"`
	CreatedAt   time.Time       `json:"created_at"`
}
