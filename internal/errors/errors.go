package errors

import (
	"errors"
	"fmt"
)

// VaultError is the structured error type for notevault.
// It provides rich context for error handling, logging, and user presentation.
type VaultError struct {
	// Code is the unique error code (e.g., "ERR_301_RATE_LIMITED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Provider, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *VaultError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *VaultError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with VaultError.
func (e *VaultError) Is(target error) bool {
	if t, ok := target.(*VaultError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *VaultError) WithDetail(key, value string) *VaultError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *VaultError) WithSuggestion(suggestion string) *VaultError {
	e.Suggestion = suggestion
	return e
}

// New creates a new VaultError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *VaultError {
	return &VaultError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a VaultError from an existing error.
// The error's message becomes the VaultError message.
func Wrap(code string, err error) *VaultError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *VaultError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// RateLimitError creates a rate-limit error. Rate-limit errors are retryable.
func RateLimitError(message string, cause error) *VaultError {
	return New(ErrCodeRateLimited, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *VaultError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error (or any error in its chain) is a VaultError
// with the Retryable flag set.
func IsRetryable(err error) bool {
	var ve *VaultError
	if errors.As(err, &ve) {
		return ve.Retryable
	}
	return false
}

// IsConfiguration reports whether an error signals a configuration-repair
// condition (missing or invalid credentials, missing base URL). These abort
// the current run without retry.
func IsConfiguration(err error) bool {
	var ve *VaultError
	if errors.As(err, &ve) {
		switch ve.Code {
		case ErrCodeCredentialsMissing, ErrCodeCredentialsInvalid, ErrCodeBaseURLMissing:
			return true
		}
	}
	return false
}

// IsRateLimited reports whether an error is a rate-limit error.
func IsRateLimited(err error) bool {
	var ve *VaultError
	if errors.As(err, &ve) {
		return ve.Code == ErrCodeRateLimited
	}
	return false
}

// GetCode extracts the error code from a VaultError anywhere in the chain.
// Returns empty string if no VaultError is found.
func GetCode(err error) string {
	var ve *VaultError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

// GetCategory extracts the category from a VaultError anywhere in the chain.
// Returns empty string if no VaultError is found.
func GetCategory(err error) Category {
	var ve *VaultError
	if errors.As(err, &ve) {
		return ve.Category
	}
	return ""
}
