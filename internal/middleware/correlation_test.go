package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrelationID_MintsAnID(t *testing.T) {
	var seen string
	handler := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/workspaces", nil))

	assert.NotEmpty(t, seen)
	assert.NotEqual(t, "unknown", seen)
	assert.Equal(t, seen, w.Header().Get("X-Correlation-ID"))
}

func TestCorrelationID_KeepsCallerSuppliedID(t *testing.T) {
	var seen string
	handler := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
	}))

	req := httptest.NewRequest("GET", "/workspaces", nil)
	req.Header.Set("X-Correlation-ID", "caller-42")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "caller-42", seen)
	assert.Equal(t, "caller-42", w.Header().Get("X-Correlation-ID"))
}

func TestGetCorrelationID_OutsideRequestScope(t *testing.T) {
	assert.Equal(t, "unknown", GetCorrelationID(context.Background()))

	ctx := WithCorrelationID(context.Background(), "task-7")
	assert.Equal(t, "task-7", GetCorrelationID(ctx))
}
