package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesClassification(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{"credentials missing", ErrCodeCredentialsMissing, CategoryConfig, SeverityError, false},
		{"base url missing", ErrCodeBaseURLMissing, CategoryConfig, SeverityError, false},
		{"file unreadable", ErrCodeFileUnreadable, CategoryIO, SeverityError, false},
		{"corrupt index", ErrCodeCorruptIndex, CategoryIO, SeverityFatal, false},
		{"rate limited", ErrCodeRateLimited, CategoryProvider, SeverityWarning, true},
		{"provider timeout", ErrCodeProviderTimeout, CategoryProvider, SeverityWarning, true},
		{"model mismatch", ErrCodeModelMismatch, CategoryValidation, SeverityError, false},
		{"internal", ErrCodeInternal, CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestVaultError_ErrorFormat(t *testing.T) {
	err := New(ErrCodeRateLimited, "too many requests", nil)
	assert.Equal(t, "[ERR_301_RATE_LIMITED] too many requests", err.Error())
}

func TestVaultError_Unwrap(t *testing.T) {
	// Given: an error wrapping a cause
	cause := errors.New("connection refused")
	err := Wrap(ErrCodeProviderUnavailable, cause)

	// Then: errors.Is finds the cause through the chain
	assert.True(t, errors.Is(err, cause))
}

func TestVaultError_IsByCode(t *testing.T) {
	a := New(ErrCodeRateLimited, "a", nil)
	b := New(ErrCodeRateLimited, "b", nil)
	c := New(ErrCodeInternal, "c", nil)

	assert.True(t, errors.Is(a, b), "same code should match")
	assert.False(t, errors.Is(a, c), "different code should not match")
}

func TestIsConfiguration(t *testing.T) {
	assert.True(t, IsConfiguration(New(ErrCodeCredentialsMissing, "m", nil)))
	assert.True(t, IsConfiguration(New(ErrCodeCredentialsInvalid, "m", nil)))
	assert.True(t, IsConfiguration(New(ErrCodeBaseURLMissing, "m", nil)))
	assert.False(t, IsConfiguration(New(ErrCodeRateLimited, "m", nil)))
	assert.False(t, IsConfiguration(errors.New("plain")))
	assert.False(t, IsConfiguration(nil))
}

func TestIsRetryable_ThroughWrapping(t *testing.T) {
	// Given: a retryable error wrapped with fmt.Errorf
	inner := RateLimitError("too many requests", nil)
	wrapped := fmt.Errorf("embed batch 3: %w", inner)

	// Then: classification survives the wrap
	assert.True(t, IsRetryable(wrapped))
	assert.True(t, IsRateLimited(wrapped))
	assert.Equal(t, ErrCodeRateLimited, GetCode(wrapped))
	assert.Equal(t, CategoryProvider, GetCategory(wrapped))
}

func TestWithDetailAndSuggestion(t *testing.T) {
	err := New(ErrCodeCredentialsMissing, "no API key", nil).
		WithDetail("provider", "ollama").
		WithSuggestion("set the API key in settings")

	require.NotNil(t, err.Details)
	assert.Equal(t, "ollama", err.Details["provider"])
	assert.Equal(t, "set the API key in settings", err.Suggestion)
}

func TestWrap_NilIsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}
