package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorMessage(t *testing.T) {
	err := New(ErrCodeNotFound, "key not found")
	assert.Equal(t, "NOT_FOUND: key not found", err.Error())

	wrapped := Wrap(errors.New("disk I/O error"), ErrCodeStoreUnavailable, "failed to read key")
	assert.Equal(t, "STORE_UNAVAILABLE: failed to read key: disk I/O error", wrapped.Error())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := Wrap(cause, ErrCodeStoreUnavailable, "failed to read key")

	assert.ErrorIs(t, err, cause)
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeInvalidInput, GetCode(New(ErrCodeInvalidInput, "bad token")))
	assert.Equal(t, ErrCodeInternalError, GetCode(errors.New("plain error")))

	// Code survives further wrapping with %w
	inner := New(ErrCodeNotFound, "key not found")
	outer := fmt.Errorf("reading config: %w", inner)
	assert.Equal(t, ErrCodeNotFound, GetCode(outer))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(New(ErrCodeNotFound, "key not found")))
	assert.False(t, IsNotFound(New(ErrCodeStoreUnavailable, "ledger closed")))
	assert.False(t, IsNotFound(errors.New("plain error")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(WrapRetryable(errors.New("timeout"), ErrCodeTimeout, "upload timed out")))
	assert.False(t, IsRetryable(New(ErrCodeInvalidInput, "bad token")))
	assert.False(t, IsRetryable(errors.New("plain error")))
}

func TestWithContext(t *testing.T) {
	err := New(ErrCodeNotFound, "key not found").WithContext("key", "sms_messages")

	require.NotNil(t, err.Context)
	assert.Equal(t, "sms_messages", err.Context["key"])
}
