package keycore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "internal", KindInternal.String())
	assert.Equal(t, "invalid_input", KindInvalidInput.String())
	assert.Equal(t, "authentication_failure", KindAuthenticationFailure.String())
	assert.Equal(t, "device_mismatch", KindDeviceMismatch.String())
	assert.Equal(t, "unsupported_format", KindUnsupportedFormat.String())
	assert.Equal(t, "storage_unavailable", KindStorageUnavailable.String())
}

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("boom")
	err := newError(KindInternal, "some_op", "it failed", cause)

	assert.Equal(t, "some_op: it failed: boom", err.Error())
	assert.Equal(t, cause, errors.Unwrap(err))

	bare := newError(KindInvalidInput, "other_op", "bad input", nil)
	assert.Equal(t, "other_op: bad input", bare.Error())
	assert.Nil(t, errors.Unwrap(bare))
}

func TestKindOf(t *testing.T) {
	err := newError(KindDeviceMismatch, "op", "msg", nil)
	assert.Equal(t, KindDeviceMismatch, KindOf(err))

	// Kind survives wrapping by callers.
	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, KindDeviceMismatch, KindOf(wrapped))

	// Foreign errors are internal.
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestKindPredicates(t *testing.T) {
	assert.True(t, IsAuthenticationFailure(newError(KindAuthenticationFailure, "op", "m", nil)))
	assert.True(t, IsDeviceMismatch(newError(KindDeviceMismatch, "op", "m", nil)))
	assert.True(t, IsStorageUnavailable(newError(KindStorageUnavailable, "op", "m", nil)))
	assert.True(t, IsUnsupportedFormat(newError(KindUnsupportedFormat, "op", "m", nil)))

	auth := newError(KindAuthenticationFailure, "op", "m", nil)
	assert.False(t, IsDeviceMismatch(auth))
	assert.False(t, IsAuthenticationFailure(nil))
}
