package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatForCLI renders an error for terminal output: the message, an
// optional hint, and the code on its own line so users can report it.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}
	fe := coerce(err)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", fe.Message)
	if fe.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", fe.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", fe.Code)
	return sb.String()
}

type jsonError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Severity   string            `json:"severity"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// FormatJSON marshals an error for machine consumers, used by the
// --format json CLI path.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}
	fe := coerce(err)

	je := jsonError{
		Code:       fe.Code,
		Message:    fe.Message,
		Category:   string(fe.Category),
		Severity:   string(fe.Severity),
		Details:    fe.Details,
		Suggestion: fe.Suggestion,
		Retryable:  fe.Retryable,
	}
	if fe.Cause != nil {
		je.Cause = fe.Cause.Error()
	}
	return json.Marshal(je)
}

// FormatForLog flattens an error into slog attribute pairs. Detail keys
// get a detail_ prefix so they cannot shadow the fixed attributes.
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}
	fe := coerce(err)

	attrs := map[string]any{
		"error_code": fe.Code,
		"message":    fe.Message,
		"category":   string(fe.Category),
		"severity":   string(fe.Severity),
		"retryable":  fe.Retryable,
	}
	if fe.Cause != nil {
		attrs["cause"] = fe.Cause.Error()
	}
	if fe.Suggestion != "" {
		attrs["suggestion"] = fe.Suggestion
	}
	for k, v := range fe.Details {
		attrs["detail_"+k] = v
	}
	return attrs
}

// coerce returns err as a FuseError, wrapping foreign errors as internal.
func coerce(err error) *FuseError {
	if fe, ok := err.(*FuseError); ok {
		return fe
	}
	return Wrap(ErrCodeInternal, err)
}
