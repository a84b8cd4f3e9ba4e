// Package errors provides structured error handling for notevault.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors (credentials, base URL)
//   - 2XX: IO errors (vault files, index files)
//   - 3XX: Provider errors (rate limits, timeouts)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates vault and index file I/O errors.
	CategoryIO Category = "IO"
	// CategoryProvider indicates embedding-provider errors.
	CategoryProvider Category = "PROVIDER"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeCredentialsMissing = "ERR_101_CREDENTIALS_MISSING"
	ErrCodeCredentialsInvalid = "ERR_102_CREDENTIALS_INVALID"
	ErrCodeBaseURLMissing     = "ERR_103_BASE_URL_MISSING"
	ErrCodeConfigInvalid      = "ERR_104_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileNotFound   = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFileUnreadable = "ERR_202_FILE_UNREADABLE"
	ErrCodeCorruptIndex   = "ERR_203_CORRUPT_INDEX"

	// Provider errors (300-399)
	ErrCodeRateLimited         = "ERR_301_RATE_LIMITED"
	ErrCodeProviderTimeout     = "ERR_302_PROVIDER_TIMEOUT"
	ErrCodeProviderUnavailable = "ERR_303_PROVIDER_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeModelMismatch     = "ERR_403_MODEL_MISMATCH"
	ErrCodeQueryEmpty        = "ERR_404_QUERY_EMPTY"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed    = "ERR_503_SEARCH_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Leading digit of the numeric portion
	// (e.g., '1' from "ERR_101_CREDENTIALS_MISSING").
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryProvider
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	if code == ErrCodeCorruptIndex {
		return SeverityFatal
	}

	// Retryable provider errors get warning severity.
	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeRateLimited, ErrCodeProviderTimeout, ErrCodeProviderUnavailable:
		return true
	default:
		return false
	}
}
