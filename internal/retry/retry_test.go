package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyforge/mediagen/internal/genfail"
)

func newRecordingExecutor(t *testing.T, delays *[]time.Duration, opts ...Option) *Executor {
	t.Helper()
	opts = append(opts, WithSleep(func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}))
	return NewExecutor(nil, opts...)
}

func TestDo_NonRateLimitErrorNotRetried(t *testing.T) {
	var delays []time.Duration
	e := newRecordingExecutor(t, &delays)

	attempts := 0
	err := e.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return genfail.New(genfail.KindBackendRejected, "openai", "llm", "invalid api key")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, delays)
}

func TestDo_PlainErrorNotRetried(t *testing.T) {
	var delays []time.Duration
	e := newRecordingExecutor(t, &delays)

	attempts := 0
	err := e.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("connection refused")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_RateLimitRetriedWithIncreasingDelay(t *testing.T) {
	var delays []time.Duration
	e := newRecordingExecutor(t, &delays, WithMaxRetries(3), WithBaseDelay(2*time.Second))

	attempts := 0
	err := e.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return genfail.New(genfail.KindRateLimited, "flux", "text2image", "429")
	})

	require.Error(t, err)
	assert.True(t, genfail.IsRateLimited(err))
	assert.Equal(t, 4, attempts) // initial + 3 retries
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, delays)
	for i := 1; i < len(delays); i++ {
		assert.Greater(t, delays[i], delays[i-1])
	}
}

func TestDo_SucceedsAfterTransientRateLimit(t *testing.T) {
	var delays []time.Duration
	e := newRecordingExecutor(t, &delays)

	attempts := 0
	err := e.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return genfail.New(genfail.KindRateLimited, "vidu", "image2video", "quota")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Len(t, delays, 2)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	e := NewExecutor(nil, WithBaseDelay(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Do(ctx, func(ctx context.Context) error {
		return genfail.New(genfail.KindRateLimited, "kling", "image2video", "429")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoValue(t *testing.T) {
	var delays []time.Duration
	e := newRecordingExecutor(t, &delays)

	attempts := 0
	got, err := DoValue(context.Background(), e, func(ctx context.Context) (string, error) {
		attempts++
		if attempts == 1 {
			return "", genfail.New(genfail.KindRateLimited, "minimax", "image2video", "throttled")
		}
		return "task-1", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "task-1", got)
}
