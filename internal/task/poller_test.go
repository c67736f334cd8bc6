package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyforge/mediagen/internal/genfail"
	"github.com/storyforge/mediagen/internal/provider"
)

func testHandle(fetch StatusFunc) Handle {
	return Handle{
		Provider:    "kling",
		Capability:  "image2video",
		ID:          "raw-1",
		Interval:    time.Millisecond,
		MaxAttempts: 5,
		Fetch:       fetch,
	}
}

func TestAwait_SucceedsAfterPending(t *testing.T) {
	var queries int32
	h := testHandle(func(ctx context.Context) (Update, error) {
		n := atomic.AddInt32(&queries, 1)
		if n < 3 {
			return Update{Status: StatusRunning}, nil
		}
		return Update{Status: StatusSucceeded, Result: Result{URL: "https://cdn.example.com/v.mp4"}}, nil
	})

	tk := New(provider.NameKling, provider.CapabilityVideo, "raw-1")
	result, err := NewPoller(nil).Await(context.Background(), tk, h)

	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/v.mp4", result.URL)
	assert.Equal(t, StatusSucceeded, tk.Status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&queries))
}

func TestAwait_TimedOutNotFailed(t *testing.T) {
	var queries int32
	h := testHandle(func(ctx context.Context) (Update, error) {
		atomic.AddInt32(&queries, 1)
		return Update{Status: StatusRunning}, nil
	})

	tk := New(provider.NameKling, provider.CapabilityVideo, "raw-1")
	_, err := NewPoller(nil).Await(context.Background(), tk, h)

	require.Error(t, err)
	assert.True(t, genfail.Is(err, genfail.KindTaskTimedOut))
	assert.False(t, genfail.Is(err, genfail.KindTaskFailed))
	assert.Equal(t, StatusTimedOut, tk.Status)

	// No further queries after the budget is exhausted.
	issued := atomic.LoadInt32(&queries)
	assert.Equal(t, int32(5), issued)
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, issued, atomic.LoadInt32(&queries))
}

func TestAwait_BackendFailure(t *testing.T) {
	h := testHandle(func(ctx context.Context) (Update, error) {
		return Update{Status: StatusFailed, Message: "content policy violation"}, nil
	})

	tk := New(provider.NameKling, provider.CapabilityVideo, "raw-1")
	_, err := NewPoller(nil).Await(context.Background(), tk, h)

	require.Error(t, err)
	assert.True(t, genfail.Is(err, genfail.KindTaskFailed))
	assert.Contains(t, err.Error(), "content policy violation")
	assert.Equal(t, "content policy violation", tk.Error)
}

func TestAwait_SeparateResultFetch(t *testing.T) {
	h := testHandle(func(ctx context.Context) (Update, error) {
		return Update{Status: StatusSucceeded}, nil
	})
	h.FetchResult = func(ctx context.Context) (Result, error) {
		return Result{URL: "https://files.example.com/out.mp4"}, nil
	}

	tk := New(provider.NameMiniMax, provider.CapabilityVideo, "raw-1")
	result, err := NewPoller(nil).Await(context.Background(), tk, h)

	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/out.mp4", result.URL)
}

func TestAwait_ResultFetchFailureDegradesToFailed(t *testing.T) {
	h := testHandle(func(ctx context.Context) (Update, error) {
		return Update{Status: StatusSucceeded}, nil
	})
	h.FetchResult = func(ctx context.Context) (Result, error) {
		return Result{}, errors.New("file retrieve: http 500")
	}

	tk := New(provider.NameMiniMax, provider.CapabilityVideo, "raw-1")
	_, err := NewPoller(nil).Await(context.Background(), tk, h)

	require.Error(t, err)
	assert.True(t, genfail.Is(err, genfail.KindTaskFailed))
	assert.Equal(t, StatusFailed, tk.Status)
}

func TestAwait_CancellationStopsQueries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var queries int32
	h := testHandle(func(ctx context.Context) (Update, error) {
		atomic.AddInt32(&queries, 1)
		cancel() // caller withdraws interest while a query is in flight
		return Update{Status: StatusSucceeded, Result: Result{URL: "late"}}, nil
	})
	h.MaxAttempts = 100

	tk := New(provider.NameVidu, provider.CapabilityVideo, "raw-1")
	result, err := NewPoller(nil).Await(ctx, tk, h)

	// The in-flight query's result is discarded.
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, result.URL)
	assert.Equal(t, int32(1), atomic.LoadInt32(&queries))
}

func TestVocabulary_Canonical(t *testing.T) {
	vocab := Vocabulary{
		"Success":   StatusSucceeded,
		"Fail":      StatusFailed,
		"Queueing":  StatusRunning,
		"submitted": StatusSubmitted,
	}

	assert.Equal(t, StatusSucceeded, vocab.Canonical("Success", nil))
	assert.Equal(t, StatusFailed, vocab.Canonical("Fail", nil))
	// Unknown raw strings keep the poll loop alive.
	assert.Equal(t, StatusRunning, vocab.Canonical("video_generation_mystery_state", nil))
}

func TestTask_TerminalStatesAreFinal(t *testing.T) {
	tk := New(provider.NameRunway, provider.CapabilityVideo, "raw-1")
	p := NewPoller(nil)

	p.transition(tk, StatusSucceeded)
	require.Equal(t, StatusSucceeded, tk.Status)

	p.transition(tk, StatusFailed)
	assert.Equal(t, StatusSucceeded, tk.Status)
}
