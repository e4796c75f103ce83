package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckEmbeddingService_Reachable(t *testing.T) {
	// Given: a healthy embedding service
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	checker := New()
	result := checker.CheckEmbeddingService(context.Background(), srv.URL)

	assert.Equal(t, StatusPass, result.Status)
	assert.False(t, result.Required)
}

func TestCheckEmbeddingService_Unreachable(t *testing.T) {
	checker := New()
	result := checker.CheckEmbeddingService(context.Background(), "http://127.0.0.1:1")

	assert.Equal(t, StatusWarn, result.Status)
	assert.Contains(t, result.Message, "unreachable")
}

func TestCheckEmbeddingService_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	checker := New()
	result := checker.CheckEmbeddingService(context.Background(), srv.URL)

	assert.Equal(t, StatusWarn, result.Status)
}

func TestCheckEmbeddingService_Offline(t *testing.T) {
	checker := New(WithOffline(true))
	result := checker.CheckEmbeddingService(context.Background(), "http://localhost:8765")

	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, "Skipped")
}

func TestCheckEmbeddingService_NoHost(t *testing.T) {
	checker := New()
	result := checker.CheckEmbeddingService(context.Background(), "")

	assert.Equal(t, StatusWarn, result.Status)
}
