package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vferrors "github.com/vidfuse/vidfuse/internal/errors"
)

func TestMapError_Nil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMapError_AnchorsNotInitialized(t *testing.T) {
	result := MapError(vferrors.AnchorsNotInitialized())

	require.NotNil(t, result)
	assert.Equal(t, ErrCodeAnchorsNotReady, result.Code)
	assert.Contains(t, result.Message, "anchor")
}

func TestMapError_EmbeddingFailed(t *testing.T) {
	err := vferrors.New(vferrors.ErrCodeEmbeddingFailed, "embedding service unreachable", nil)

	result := MapError(err)

	require.NotNil(t, result)
	assert.Equal(t, ErrCodeEmbeddingFailed, result.Code)
}

func TestMapError_ValidationBecomesInvalidParams(t *testing.T) {
	err := vferrors.New(vferrors.ErrCodeInvalidModality, "unknown modality \"smell\"", nil)

	result := MapError(err)

	require.NotNil(t, result)
	assert.Equal(t, ErrCodeInvalidParams, result.Code)
}

func TestMapError_BackendBecomesTimeout(t *testing.T) {
	err := vferrors.BackendUnavailable("redis", nil)

	result := MapError(err)

	require.NotNil(t, result)
	assert.Equal(t, ErrCodeTimeout, result.Code)
}

func TestMapError_IncludesSuggestion(t *testing.T) {
	err := vferrors.New(vferrors.ErrCodeAnchorsCorrupt, "anchor model mismatch", nil).
		WithSuggestion("re-run anchor initialization")

	result := MapError(err)

	require.NotNil(t, result)
	assert.Contains(t, result.Message, "re-run anchor initialization")
}

func TestMapError_ContextDeadline(t *testing.T) {
	result := MapError(context.DeadlineExceeded)

	require.NotNil(t, result)
	assert.Equal(t, ErrCodeTimeout, result.Code)
}

func TestMapError_ContextCanceled(t *testing.T) {
	result := MapError(context.Canceled)

	require.NotNil(t, result)
	assert.Equal(t, ErrCodeTimeout, result.Code)
}

func TestMapError_UnknownErrorBecomesInternal(t *testing.T) {
	result := MapError(errors.New("something odd"))

	require.NotNil(t, result)
	assert.Equal(t, ErrCodeInternalError, result.Code)
	// Internal details must not leak to clients.
	assert.NotContains(t, result.Message, "something odd")
}

func TestMCPError_ErrorString(t *testing.T) {
	err := NewInvalidParamsError("query is required")
	assert.Contains(t, err.Error(), "-32602")
	assert.Contains(t, err.Error(), "query is required")
}

func TestNewMethodNotFoundError(t *testing.T) {
	err := NewMethodNotFoundError("frobnicate")
	assert.Equal(t, ErrCodeMethodNotFound, err.Code)
	assert.Contains(t, err.Message, "frobnicate")
}
