package mqerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAPIError_Classification(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantKind   error
		retryable  bool
	}{
		{"unauthorized", 401, ErrAuthFailed, false},
		{"forbidden", 403, ErrAuthFailed, false},
		{"not found", 404, ErrNotFound, false},
		{"too many requests", 429, ErrTransient, true},
		{"server error", 500, ErrTransient, true},
		{"bad gateway", 502, ErrTransient, true},
		{"connection failure", 0, ErrTransient, true},
		{"bad request", 400, ErrUpstream, false},
		{"conflict", 409, ErrUpstream, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewAPIError("getQueueStats", tt.statusCode, errors.New("boom"))
			assert.ErrorIs(t, err, tt.wantKind)
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestStatusCode(t *testing.T) {
	err := NewAPIError("op", 503, errors.New("down"))
	code, ok := StatusCode(err)
	assert.True(t, ok)
	assert.Equal(t, 503, code)

	_, ok = StatusCode(errors.New("plain"))
	assert.False(t, ok)
}

func TestIsRetryable_PlainSentinels(t *testing.T) {
	assert.False(t, IsRetryable(ErrConfig))
	assert.False(t, IsRetryable(ErrChannel))
	assert.True(t, IsRetryable(ErrTransient))
}
