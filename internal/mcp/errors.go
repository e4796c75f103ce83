// Package mcp implements the Model Context Protocol server for vidfuse,
// exposing fusion search to AI clients.
package mcp

import (
	"context"
	"errors"
	"fmt"

	vferrors "github.com/vidfuse/vidfuse/internal/errors"
)

// Custom MCP error codes for vidfuse.
const (
	// ErrCodeCorpusEmpty indicates no videos have been ingested.
	ErrCodeCorpusEmpty = -32001

	// ErrCodeEmbeddingFailed indicates query embedding failed.
	ErrCodeEmbeddingFailed = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// ErrCodeAnchorsNotReady indicates dynamic routing was requested before
	// anchor initialization.
	ErrCodeAnchorsNotReady = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var fe *vferrors.FuseError
	if errors.As(err, &fe) {
		return mapFuseError(fe)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// mapFuseError converts a FuseError to an MCPError.
func mapFuseError(fe *vferrors.FuseError) *MCPError {
	message := fe.Message
	if fe.Suggestion != "" {
		message = fmt.Sprintf("%s %s", fe.Message, fe.Suggestion)
	}

	switch fe.Code {
	case vferrors.ErrCodeAnchorsNotInit:
		return &MCPError{Code: ErrCodeAnchorsNotReady, Message: message}
	case vferrors.ErrCodeEmbeddingFailed, vferrors.ErrCodeEmbedUnavailable:
		return &MCPError{Code: ErrCodeEmbeddingFailed, Message: message}
	case vferrors.ErrCodeNetworkTimeout:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	}

	switch fe.Category {
	case vferrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case vferrors.CategoryBackend:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
