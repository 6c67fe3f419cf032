package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		code int
		want ErrorType
	}{
		{401, ErrorTypeAuth},
		{403, ErrorTypeForbidden},
		{404, ErrorTypeNotFound},
		{422, ErrorTypeValidation},
		{429, ErrorTypeRateLimit},
		{400, ErrorTypeClient},
		{500, ErrorTypeServerError},
		{522, ErrorTypeServerError},
		{302, ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, FromStatus(tt.code))
		})
	}
}

func TestErrorHelpers(t *testing.T) {
	err := NewHTTPError("GET", "https://pixelfed.social/api/v1/statuses/1", 404, "not found")
	wrapped := fmt.Errorf("fetch post: %w", err)

	assert.True(t, IsNotFound(wrapped))
	assert.Equal(t, 404, StatusOf(wrapped))
	assert.Equal(t, ErrorTypeNotFound, TypeOf(wrapped))
	assert.Contains(t, err.Error(), "GET https://pixelfed.social/api/v1/statuses/1")

	assert.Equal(t, 0, StatusOf(errors.New("plain")))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(errors.New("plain")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrorTypeTimeout))
	assert.True(t, IsRetryable(ErrorTypeRateLimit))
	assert.True(t, IsRetryable(ErrorTypeServerError))
	assert.False(t, IsRetryable(ErrorTypeNotFound))
	assert.False(t, IsRetryable(ErrorTypeAuth))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := &Error{Type: ErrorTypeConnection, Message: "connect failed", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.True(t, err.IsConnectivity())
}
