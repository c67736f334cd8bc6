package genfail

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromHTTP_Classification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected Kind
	}{
		{"http 429", 429, "slow down", KindRateLimited},
		{"quota marker in 400 body", 400, `{"error":"insufficient quota"}`, KindRateLimited},
		{"rate limit marker", 500, "Rate limit exceeded for model", KindRateLimited},
		{"throttled marker", 503, "request throttled", KindRateLimited},
		{"auth failure", 401, "invalid api key", KindBackendRejected},
		{"validation failure", 422, "prompt too long", KindBackendRejected},
		{"server fault", 500, "internal error", KindBackendRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromHTTP("openai", "text2image", tt.status, tt.body)
			assert.Equal(t, tt.expected, err.Kind)
		})
	}
}

func TestKindOf_WrappedError(t *testing.T) {
	inner := New(KindTaskTimedOut, "kling", "image2video", "budget exhausted")
	wrapped := fmt.Errorf("await task: %w", inner)

	assert.Equal(t, KindTaskTimedOut, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindTaskTimedOut))
	assert.False(t, IsRateLimited(wrapped))
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.False(t, IsRateLimited(errors.New("plain")))
}

func TestError_MessageIncludesContext(t *testing.T) {
	err := New(KindBackendRejected, "vidu", "image2video", "bad duration")

	msg := err.Error()
	assert.Contains(t, msg, "vidu")
	assert.Contains(t, msg, "image2video")
	assert.Contains(t, msg, "bad duration")
}

func TestFromHTTP_TruncatesLongBodies(t *testing.T) {
	body := make([]byte, 2048)
	for i := range body {
		body[i] = 'x'
	}
	err := FromHTTP("flux", "text2image", 400, string(body))
	require.Less(t, len(err.Message), 600)
}
