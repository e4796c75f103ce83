// Package errors defines the structured error type shared by the engine,
// the HTTP API, and the CLI, plus the retry and circuit breaker helpers
// that wrap calls to modality backends.
//
// Codes follow ERR_XXX_DESCRIPTION; the hundreds digit selects the
// category (1 config, 2 IO, 3 backend, 4 validation, 5 internal).
package errors

// Category classifies an error by subsystem.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryIO         Category = "IO"
	CategoryBackend    Category = "BACKEND"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
)

// Severity tells callers how to react: abort, report, or degrade.
type Severity string

const (
	SeverityFatal   Severity = "FATAL"
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

const (
	ErrCodeConfigNotFound   = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    = "ERR_102_CONFIG_INVALID"
	ErrCodeConfigPermission = "ERR_103_CONFIG_PERMISSION"

	ErrCodeFileNotFound   = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission = "ERR_202_FILE_PERMISSION"
	ErrCodeDiskFull       = "ERR_203_DISK_FULL"
	ErrCodeCorruptIndex   = "ERR_204_CORRUPT_INDEX"
	ErrCodeAnchorsCorrupt = "ERR_205_ANCHORS_CORRUPT"

	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeBackendUnavailable = "ERR_302_BACKEND_UNAVAILABLE"
	ErrCodeEmbedUnavailable   = "ERR_303_EMBED_UNAVAILABLE"

	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeInvalidQuery      = "ERR_403_INVALID_QUERY"
	ErrCodeQueryEmpty        = "ERR_404_QUERY_EMPTY"
	ErrCodeInvalidModality   = "ERR_405_INVALID_MODALITY"
	ErrCodeInvalidWeights    = "ERR_406_INVALID_WEIGHTS"

	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed    = "ERR_503_SEARCH_FAILED"
	ErrCodeAnchorsNotInit  = "ERR_504_ANCHORS_NOT_INITIALIZED"
	ErrCodeIngestFailed    = "ERR_505_INGEST_FAILED"
)

var categoryByDigit = map[byte]Category{
	'1': CategoryConfig,
	'2': CategoryIO,
	'3': CategoryBackend,
	'4': CategoryValidation,
	'5': CategoryInternal,
}

// categoryFromCode reads the hundreds digit of "ERR_NXX_...".
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}
	if cat, ok := categoryByDigit[code[4]]; ok {
		return cat
	}
	return CategoryInternal
}

func severityFromCode(code string) Severity {
	// A dimension mismatch means the corpus and query were embedded with
	// incompatible models. No retry or degradation can repair that.
	switch code {
	case ErrCodeCorruptIndex, ErrCodeDiskFull, ErrCodeDimensionMismatch:
		return SeverityFatal
	}

	// Retryable backend errors get warning severity: the engine degrades
	// rather than failing while at least one modality still answers.
	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeBackendUnavailable, ErrCodeEmbedUnavailable:
		return true
	}
	return false
}
