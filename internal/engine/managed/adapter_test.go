package managed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragmine/internal/engine"
)

func managedCollection() engine.Collection {
	return engine.Collection{
		WorkspaceID: "ws-1",
		Kind:        engine.KindManaged,
		Ref:         "shared-index",
		Dimensions:  1536,
	}
}

func TestAdapter_CreateCollection(t *testing.T) {
	t.Run("ExistingIndexResolves", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/indexes/shared-index", r.URL.Path)
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		adapter := NewAdapter(srv.URL, "secret")
		coll, err := adapter.CreateCollection(context.Background(), engine.CollectionSpec{WorkspaceID: "ws-1", Dimensions: 1536, IndexRef: "shared-index"})
		require.NoError(t, err)
		assert.Equal(t, "shared-index", coll.Ref)
		assert.Equal(t, engine.KindManaged, coll.Kind)
	})

	t.Run("MissingIndexRef", func(t *testing.T) {
		adapter := NewAdapter("http://unused", "")
		_, err := adapter.CreateCollection(context.Background(), engine.CollectionSpec{WorkspaceID: "ws-1"})
		assert.ErrorIs(t, err, engine.ErrEngineConfig)
	})

	t.Run("UnknownIndex", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		defer srv.Close()

		adapter := NewAdapter(srv.URL, "")
		_, err := adapter.CreateCollection(context.Background(), engine.CollectionSpec{WorkspaceID: "ws-1", IndexRef: "nope"})
		assert.ErrorIs(t, err, engine.ErrEngineConfig)
	})
}

func TestAdapter_UpsertVectors(t *testing.T) {
	var received struct {
		Documents []map[string]interface{} `json:"documents"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/indexes/shared-index/documents", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	adapter := NewAdapter(srv.URL, "")
	records := []engine.VectorRecord{
		{ChunkID: "c1", DocumentID: "d1", ChunkIndex: 0, Content: "hello"},
		{ChunkID: "c2", DocumentID: "d1", ChunkIndex: 1, Content: "world"},
	}

	err := adapter.UpsertVectors(context.Background(), managedCollection(), records)
	require.NoError(t, err)
	require.Len(t, received.Documents, 2)
	assert.Equal(t, "c1", received.Documents[0]["id"])
	assert.Equal(t, "ws-1", received.Documents[0]["workspace_id"])
}

func TestAdapter_Query(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "search terms", body["query"])
		assert.Equal(t, float64(5), body["top_k"])

		fmt.Fprint(w, `{"results":[
			{"id":"c9","document_id":"d3","chunk_index":2,"content":"found it","score":0.88}
		]}`)
	}))
	defer srv.Close()

	adapter := NewAdapter(srv.URL, "")
	matches, err := adapter.Query(context.Background(), managedCollection(), engine.Query{Text: "search terms", TopK: 5})

	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "c9", matches[0].ChunkID)
	assert.InDelta(t, 0.88, matches[0].Score, 0.001)
}

func TestAdapter_DeleteDocument_MissingIndexIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	adapter := NewAdapter(srv.URL, "")
	assert.NoError(t, adapter.DeleteDocument(context.Background(), managedCollection(), "d1"))
	assert.NoError(t, adapter.DeleteCollection(context.Background(), managedCollection()))
}

func TestAdapter_ErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, engine.ErrQuotaExceeded},
		{http.StatusInternalServerError, engine.ErrEngineUnavailable},
		{http.StatusBadRequest, engine.ErrEngineConfig},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		adapter := NewAdapter(srv.URL, "")
		err := adapter.UpsertVectors(context.Background(), managedCollection(), []engine.VectorRecord{{ChunkID: "c1"}})
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
		srv.Close()
	}
}

func TestAdapter_UnreachableServer(t *testing.T) {
	adapter := NewAdapter("http://127.0.0.1:1", "")
	err := adapter.UpsertVectors(context.Background(), managedCollection(), []engine.VectorRecord{{ChunkID: "c1"}})
	assert.ErrorIs(t, err, engine.ErrEngineUnavailable)
}
