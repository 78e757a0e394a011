// Package managed implements the managed-index engine: an externally
// operated retrieval index reached over HTTP. The index itself is
// provisioned outside this service; a workspace only holds a reference to
// it, and the adapter moves documents in and out of that reference.
package managed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ragmine/internal/engine"
)

type Adapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewAdapter(baseURL, apiKey string) *Adapter {
	return &Adapter{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateCollection resolves the externally managed index named by
// IndexRef. Nothing is provisioned; a missing or inaccessible index is a
// configuration error, not something a retry can fix.
func (a *Adapter) CreateCollection(ctx context.Context, spec engine.CollectionSpec) (engine.Collection, error) {
	if spec.IndexRef == "" {
		return engine.Collection{}, fmt.Errorf("%w: managed engine requires an index reference", engine.ErrEngineConfig)
	}
	coll := engine.Collection{
		WorkspaceID: spec.WorkspaceID,
		Kind:        engine.KindManaged,
		Ref:         spec.IndexRef,
		Dimensions:  spec.Dimensions,
	}

	status, err := a.do(ctx, http.MethodGet, fmt.Sprintf("/v1/indexes/%s", spec.IndexRef), nil, nil)
	if err != nil {
		return engine.Collection{}, err
	}
	if status == http.StatusNotFound {
		return engine.Collection{}, fmt.Errorf("%w: index %q not found", engine.ErrEngineConfig, spec.IndexRef)
	}
	return coll, nil
}

func (a *Adapter) UpsertVectors(ctx context.Context, coll engine.Collection, records []engine.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	type doc struct {
		ID          string `json:"id"`
		WorkspaceID string `json:"workspace_id"`
		DocumentID  string `json:"document_id"`
		ChunkIndex  int    `json:"chunk_index"`
		Content     string `json:"content"`
		Title       string `json:"title,omitempty"`
		SourceURL   string `json:"source_url,omitempty"`
	}
	docs := make([]doc, 0, len(records))
	for _, rec := range records {
		docs = append(docs, doc{
			ID:          rec.ChunkID,
			WorkspaceID: coll.WorkspaceID,
			DocumentID:  rec.DocumentID,
			ChunkIndex:  rec.ChunkIndex,
			Content:     rec.Content,
			Title:       rec.Title,
			SourceURL:   rec.SourceURL,
		})
	}

	body := map[string]interface{}{"documents": docs}
	status, err := a.do(ctx, http.MethodPost, fmt.Sprintf("/v1/indexes/%s/documents", coll.Ref), body, nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return fmt.Errorf("%w: index %q not found", engine.ErrEngineConfig, coll.Ref)
	}
	return nil
}

func (a *Adapter) Query(ctx context.Context, coll engine.Collection, q engine.Query) ([]engine.Match, error) {
	body := map[string]interface{}{
		"query":        q.Text,
		"top_k":        q.TopK,
		"workspace_id": coll.WorkspaceID,
	}
	if q.DocumentID != "" {
		body["document_id"] = q.DocumentID
	}

	var result struct {
		Results []struct {
			ID         string  `json:"id"`
			DocumentID string  `json:"document_id"`
			ChunkIndex int     `json:"chunk_index"`
			Content    string  `json:"content"`
			SourceURL  string  `json:"source_url"`
			Score      float32 `json:"score"`
		} `json:"results"`
	}
	status, err := a.do(ctx, http.MethodPost, fmt.Sprintf("/v1/indexes/%s/query", coll.Ref), body, &result)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: index %q not found", engine.ErrEngineConfig, coll.Ref)
	}

	matches := make([]engine.Match, 0, len(result.Results))
	for _, r := range result.Results {
		matches = append(matches, engine.Match{
			ChunkID:    r.ID,
			DocumentID: r.DocumentID,
			ChunkIndex: r.ChunkIndex,
			Content:    r.Content,
			SourceURL:  r.SourceURL,
			Score:      r.Score,
		})
	}
	return matches, nil
}

func (a *Adapter) DeleteDocument(ctx context.Context, coll engine.Collection, documentID string) error {
	body := map[string]interface{}{
		"workspace_id": coll.WorkspaceID,
		"document_id":  documentID,
	}
	status, err := a.do(ctx, http.MethodPost, fmt.Sprintf("/v1/indexes/%s/documents/delete", coll.Ref), body, nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		// Index already gone: the documents are gone with it.
		return nil
	}
	return nil
}

// DeleteCollection removes this workspace's documents from the shared
// external index. The index itself stays: it is not ours to tear down.
func (a *Adapter) DeleteCollection(ctx context.Context, coll engine.Collection) error {
	body := map[string]interface{}{"workspace_id": coll.WorkspaceID}
	status, err := a.do(ctx, http.MethodPost, fmt.Sprintf("/v1/indexes/%s/documents/delete", coll.Ref), body, nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return nil
	}
	return nil
}

// do runs one JSON round trip. 404 is returned to the caller to map per
// operation; other non-2xx statuses are classified here.
func (a *Adapter) do(ctx context.Context, method, path string, body interface{}, out interface{}) (int, error) {
	var reader *bytes.Buffer
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewBuffer(payload)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", engine.ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return resp.StatusCode, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return resp.StatusCode, fmt.Errorf("%w: status %d", engine.ErrQuotaExceeded, resp.StatusCode)
	case resp.StatusCode >= 500:
		return resp.StatusCode, fmt.Errorf("%w: status %d", engine.ErrEngineUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return resp.StatusCode, fmt.Errorf("%w: status %d", engine.ErrEngineConfig, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}
