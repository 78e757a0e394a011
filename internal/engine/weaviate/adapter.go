// Package weaviate implements the search-cluster engine: one Weaviate
// class per workspace, vectors supplied by us (vectorizer "none"), with
// an optional hybrid BM25+vector query mode.
package weaviate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/fault"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"ragmine/internal/engine"
)

type Adapter struct {
	client *weaviate.Client
}

func NewAdapter(client *weaviate.Client) *Adapter {
	return &Adapter{client: client}
}

// className derives a stable Weaviate class name from the workspace id.
// Class names must start with an uppercase letter and stay alphanumeric.
func className(workspaceID string) string {
	var b strings.Builder
	b.WriteString("Ws")
	for _, r := range strings.ToLower(workspaceID) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (a *Adapter) CreateCollection(ctx context.Context, spec engine.CollectionSpec) (engine.Collection, error) {
	coll := engine.Collection{
		WorkspaceID: spec.WorkspaceID,
		Kind:        engine.KindWeaviate,
		Ref:         className(spec.WorkspaceID),
		Dimensions:  spec.Dimensions,
		Hybrid:      spec.Hybrid,
	}
	if spec.Dimensions <= 0 {
		return engine.Collection{}, fmt.Errorf("%w: dimensions must be positive", engine.ErrEngineConfig)
	}

	exists, err := a.client.Schema().ClassExistenceChecker().WithClassName(coll.Ref).Do(ctx)
	if err != nil {
		return engine.Collection{}, classify(err)
	}
	if exists {
		return coll, nil
	}

	class := &models.Class{
		Class:      coll.Ref,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "chunkId", DataType: []string{"text"}},
			{Name: "documentId", DataType: []string{"text"}},
			{Name: "chunkIndex", DataType: []string{"int"}},
			{Name: "content", DataType: []string{"text"}},
			{Name: "title", DataType: []string{"text"}},
			{Name: "sourceUrl", DataType: []string{"text"}},
		},
	}
	if err := a.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		// Lost a provisioning race: the class is there, which is the
		// outcome we wanted.
		if isStatus(err, 422) {
			return coll, nil
		}
		return engine.Collection{}, classify(err)
	}
	return coll, nil
}

func (a *Adapter) UpsertVectors(ctx context.Context, coll engine.Collection, records []engine.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := engine.CheckDimensions(coll, records); err != nil {
		return err
	}

	objects := make([]*models.Object, 0, len(records))
	for _, rec := range records {
		objects = append(objects, &models.Object{
			Class: coll.Ref,
			// The chunk id doubles as the object id, so a retried batch
			// overwrites instead of duplicating.
			ID:     strfmt.UUID(rec.ChunkID),
			Vector: models.C11yVector(rec.Vector),
			Properties: map[string]interface{}{
				"chunkId":    rec.ChunkID,
				"documentId": rec.DocumentID,
				"chunkIndex": rec.ChunkIndex,
				"content":    rec.Content,
				"title":      rec.Title,
				"sourceUrl":  rec.SourceURL,
			},
		})
	}

	resp, err := a.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return classify(err)
	}
	for _, r := range resp {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("%w: batch object %s: %s",
				engine.ErrEngineUnavailable, r.ID, r.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

func (a *Adapter) Query(ctx context.Context, coll engine.Collection, q engine.Query) ([]engine.Match, error) {
	if len(q.Vector) != coll.Dimensions {
		return nil, fmt.Errorf("%w: query has %d dims, collection wants %d",
			engine.ErrDimensionMismatch, len(q.Vector), coll.Dimensions)
	}

	fields := []graphql.Field{
		{Name: "chunkId"},
		{Name: "documentId"},
		{Name: "chunkIndex"},
		{Name: "content"},
		{Name: "sourceUrl"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "score"}, {Name: "distance"}}},
	}

	builder := a.client.GraphQL().Get().
		WithClassName(coll.Ref).
		WithLimit(q.TopK).
		WithFields(fields...)

	if coll.Hybrid {
		hybrid := a.client.GraphQL().HybridArgumentBuilder().
			WithQuery(q.Text).
			WithVector(q.Vector)
		builder = builder.WithHybrid(hybrid)
	} else {
		near := a.client.GraphQL().NearVectorArgBuilder().WithVector(q.Vector)
		builder = builder.WithNearVector(near)
	}

	if q.DocumentID != "" {
		builder = builder.WithWhere(filters.Where().
			WithPath([]string{"documentId"}).
			WithOperator(filters.Equal).
			WithValueString(q.DocumentID))
	}

	res, err := builder.Do(ctx)
	if err != nil {
		return nil, classify(err)
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("%w: graphql: %v", engine.ErrEngineUnavailable, res.Errors[0].Message)
	}

	var matches []engine.Match
	if data, ok := res.Data["Get"].(map[string]interface{}); ok {
		if rows, ok := data[coll.Ref].([]interface{}); ok {
			for _, row := range rows {
				props, ok := row.(map[string]interface{})
				if !ok {
					continue
				}
				m := engine.Match{}
				if v, ok := props["chunkId"].(string); ok {
					m.ChunkID = v
				}
				if v, ok := props["documentId"].(string); ok {
					m.DocumentID = v
				}
				if v, ok := props["chunkIndex"].(float64); ok {
					m.ChunkIndex = int(v)
				}
				if v, ok := props["content"].(string); ok {
					m.Content = v
				}
				if v, ok := props["sourceUrl"].(string); ok {
					m.SourceURL = v
				}
				m.Score = extractScore(props)
				matches = append(matches, m)
			}
		}
	}

	// Stable ordering: score descending, chunk index as the tie-break.
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ChunkIndex < matches[j].ChunkIndex
	})
	return matches, nil
}

func (a *Adapter) DeleteDocument(ctx context.Context, coll engine.Collection, documentID string) error {
	_, err := a.client.Batch().ObjectsBatchDeleter().
		WithClassName(coll.Ref).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"documentId"}).
			WithOperator(filters.Equal).
			WithValueString(documentID)).
		Do(ctx)
	if err != nil {
		if isStatus(err, 404) {
			return nil
		}
		return classify(err)
	}
	return nil
}

func (a *Adapter) DeleteCollection(ctx context.Context, coll engine.Collection) error {
	exists, err := a.client.Schema().ClassExistenceChecker().WithClassName(coll.Ref).Do(ctx)
	if err != nil {
		return classify(err)
	}
	if !exists {
		return nil
	}
	if err := a.client.Schema().ClassDeleter().WithClassName(coll.Ref).Do(ctx); err != nil {
		if isStatus(err, 404) {
			return nil
		}
		return classify(err)
	}
	return nil
}

// extractScore handles both representations the client returns: hybrid
// scores arrive as strings, nearVector distances as floats.
func extractScore(props map[string]interface{}) float32 {
	additional, ok := props["_additional"].(map[string]interface{})
	if !ok {
		return 0
	}
	if s, ok := additional["score"].(string); ok && s != "" {
		var f float64
		fmt.Sscanf(s, "%f", &f)
		return float32(f)
	}
	if f, ok := additional["score"].(float64); ok {
		return float32(f)
	}
	if d, ok := additional["distance"].(float64); ok {
		return float32(1 - d)
	}
	return 0
}

func isStatus(err error, code int) bool {
	if clientErr, ok := err.(*fault.WeaviateClientError); ok {
		return clientErr.StatusCode == code
	}
	return false
}

func classify(err error) error {
	if clientErr, ok := err.(*fault.WeaviateClientError); ok {
		switch {
		case clientErr.StatusCode == 429:
			return fmt.Errorf("%w: %v", engine.ErrQuotaExceeded, err)
		case clientErr.StatusCode >= 400 && clientErr.StatusCode < 500:
			return fmt.Errorf("%w: %v", engine.ErrEngineConfig, err)
		}
	}
	return fmt.Errorf("%w: %v", engine.ErrEngineUnavailable, err)
}
