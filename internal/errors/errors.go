package errors

import (
	stderrors "errors"
	"fmt"
)

// FuseError carries the code, classification, and presentation context for
// one failure. Category, Severity, and Retryable derive from Code at
// construction, so they stay consistent across the API and CLI surfaces.
type FuseError struct {
	Code       string
	Message    string
	Category   Category
	Severity   Severity
	Details    map[string]string // extra context, e.g. which backend failed
	Cause      error
	Retryable  bool
	Suggestion string // actionable next step shown to the user
}

func (e *FuseError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *FuseError) Unwrap() error {
	return e.Cause
}

// Is matches FuseErrors by code, so errors.Is works across separately
// constructed instances of the same failure.
func (e *FuseError) Is(target error) bool {
	if t, ok := target.(*FuseError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail, returning the error for chaining.
func (e *FuseError) WithDetail(key, value string) *FuseError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion sets the user-facing hint, returning the error for chaining.
func (e *FuseError) WithSuggestion(suggestion string) *FuseError {
	e.Suggestion = suggestion
	return e
}

// New creates a new FuseError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *FuseError {
	return &FuseError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a FuseError from an existing error.
// The error's message becomes the FuseError message.
func Wrap(code string, err error) *FuseError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *FuseError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// BackendUnavailable creates a retryable backend error for one named backend
// or modality. Callers treat these as degradation candidates, not failures.
func BackendUnavailable(name string, cause error) *FuseError {
	return New(ErrCodeBackendUnavailable,
		fmt.Sprintf("backend %q unavailable", name), cause).
		WithDetail("backend", name)
}

// DimensionMismatch creates a fatal embedding-dimension error.
func DimensionMismatch(expected, got int) *FuseError {
	return New(ErrCodeDimensionMismatch,
		fmt.Sprintf("embedding dimension mismatch: index expects %d, got %d", expected, got), nil).
		WithSuggestion("re-ingest the corpus with the configured embedding model")
}

// AnchorsNotInitialized creates the hard precondition error returned when
// dynamic weight routing is requested before anchors are built.
func AnchorsNotInitialized() *FuseError {
	return New(ErrCodeAnchorsNotInit,
		"modality anchors not initialized", nil).
		WithSuggestion("run 'vidfuse anchors init' before using dynamic weighting")
}

// SearchFailed creates the terminal error for a query where every requested
// modality failed to produce results.
func SearchFailed(message string, cause error) *FuseError {
	return New(ErrCodeSearchFailed, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *FuseError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *FuseError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable reports whether the error (anywhere in its chain) is a
// retryable FuseError.
func IsRetryable(err error) bool {
	var fe *FuseError
	if stderrors.As(err, &fe) {
		return fe.Retryable
	}
	return false
}

// IsFatal reports whether the error chain holds a fatal FuseError.
// Fatal errors abort the current operation instead of degrading.
func IsFatal(err error) bool {
	var fe *FuseError
	if stderrors.As(err, &fe) {
		return fe.Severity == SeverityFatal
	}
	return false
}

// GetCode returns the code of the first FuseError in the chain, or "".
func GetCode(err error) string {
	var fe *FuseError
	if stderrors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// GetCategory returns the category of the first FuseError in the chain, or "".
func GetCategory(err error) Category {
	var fe *FuseError
	if stderrors.As(err, &fe) {
		return fe.Category
	}
	return ""
}
