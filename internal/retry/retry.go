// Package retry provides the backoff executor that wraps every outbound
// backend call. Only rate-limit classified failures are retried; anything
// else propagates on the first attempt so auth and validation faults are
// never masked as transient.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/storyforge/mediagen/internal/genfail"
)

// Executor retries rate-limited calls with exponential backoff. It is
// stateless per call; concurrent calls do not share counters.
type Executor struct {
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxRetries sets how many retries follow the initial attempt.
func WithMaxRetries(n int) Option {
	return func(e *Executor) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

// WithBaseDelay sets the backoff base; attempt n waits base * 2^n.
func WithBaseDelay(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.baseDelay = d
		}
	}
}

// WithSleep replaces the delay function. Tests use this to observe delays
// without waiting for them.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		e.sleep = fn
	}
}

// NewExecutor creates an Executor with the production defaults: three
// retries on top of the first attempt, 2s base delay, no jitter.
func NewExecutor(logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		maxRetries: 3,
		baseDelay:  2 * time.Second,
		logger:     logger,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Do invokes fn, retrying only when the returned error is classified as
// rate-limited. The delay before retry n is baseDelay * 2^n.
func (e *Executor) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			delay := e.baseDelay << (attempt - 1)
			e.logger.Warn("rate limited, backing off",
				slog.Int("attempt", attempt),
				slog.Int("max_retries", e.maxRetries),
				slog.Duration("delay", delay),
			)
			if err := e.sleep(ctx, delay); err != nil {
				return fmt.Errorf("retry: backoff interrupted: %w", err)
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !genfail.IsRateLimited(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("retry: budget exhausted after %d attempts: %w", e.maxRetries+1, lastErr)
}

// DoValue is Do for calls that produce a result.
func DoValue[T any](ctx context.Context, e *Executor, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Do(ctx, func(ctx context.Context) error {
		var callErr error
		result, callErr = fn(ctx)
		return callErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
