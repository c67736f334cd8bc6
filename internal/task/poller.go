package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/storyforge/mediagen/internal/genfail"
)

// Update is one status observation reported by a backend.
type Update struct {
	Status Status
	Result Result
	// Message carries the backend's raw diagnostic when Status is failed.
	Message string
}

// StatusFunc queries the backend for the current state of a task handle.
type StatusFunc func(ctx context.Context) (Update, error)

// ResultFunc performs a backend's separate "fetch the actual payload" step
// for backends that distinguish "done" from "here is the result".
type ResultFunc func(ctx context.Context) (Result, error)

// Handle is everything the poller needs to drive one backend task to a
// terminal state. Submit closes the backend's credentials and endpoint over
// Fetch/FetchResult, so reconfiguring a provider mid-poll cannot corrupt an
// in-flight task.
type Handle struct {
	Provider    string
	Capability  string
	ID          string // raw backend task id
	Interval    time.Duration
	MaxAttempts int
	Fetch       StatusFunc
	// FetchResult is optional; when set it runs once after the backend
	// reports success. Its failure degrades the task to failed.
	FetchResult ResultFunc
}

// Poller drives task handles to completion at each backend's own cadence.
type Poller struct {
	logger *slog.Logger
}

// NewPoller creates a Poller.
func NewPoller(logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{logger: logger}
}

// Await polls the handle until it reaches a terminal state, the attempt
// budget runs out, or ctx is cancelled. Cancellation stops further status
// queries immediately; a query already in flight is allowed to finish but
// its result is discarded.
func (p *Poller) Await(ctx context.Context, t *Task, h Handle) (Result, error) {
	interval := h.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	maxAttempts := h.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 120
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return Result{}, fmt.Errorf("task: poll cancelled: %w", ctx.Err())
		case <-time.After(interval):
		}

		update, err := h.Fetch(ctx)

		// The caller withdrew interest while the query was in flight:
		// discard whatever came back and stop.
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("task: poll cancelled: %w", ctx.Err())
		}
		if err != nil {
			p.transition(t, StatusFailed)
			t.Error = err.Error()
			return Result{}, err
		}

		switch update.Status {
		case StatusSucceeded:
			result := update.Result
			if result.Empty() && h.FetchResult != nil {
				result, err = h.FetchResult(ctx)
				if err != nil {
					p.transition(t, StatusFailed)
					t.Error = err.Error()
					return Result{}, genfail.Wrap(genfail.KindTaskFailed, h.Provider, h.Capability, err)
				}
			}
			p.transition(t, StatusSucceeded)
			t.Result = result
			p.logger.Info("task succeeded",
				slog.String("task_id", t.ID),
				slog.String("provider", h.Provider),
				slog.Int("attempts", attempt),
			)
			return result, nil

		case StatusFailed:
			p.transition(t, StatusFailed)
			t.Error = update.Message
			return Result{}, genfail.New(genfail.KindTaskFailed, h.Provider, h.Capability, update.Message)

		default:
			p.transition(t, StatusRunning)
		}
	}

	p.transition(t, StatusTimedOut)
	return Result{}, genfail.New(
		genfail.KindTaskTimedOut, h.Provider, h.Capability,
		fmt.Sprintf("no terminal status after %d attempts (interval %s); result may still materialize server-side", maxAttempts, interval),
	)
}

// transition advances the task state. Terminal states are final.
func (p *Poller) transition(t *Task, next Status) {
	if t == nil || t.Status.IsTerminal() {
		return
	}
	if t.Status != next {
		t.Status = next
	}
	t.UpdatedAt = time.Now()
}
