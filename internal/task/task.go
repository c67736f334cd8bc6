// Package task provides the canonical asynchronous-generation state machine
// and the generic poller that drives any backend's task handle to a terminal
// state. Backends report status in their own vocabulary; this package owns
// the canonical states and the mapping discipline so callers never see a
// backend-specific string.
package task

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/storyforge/mediagen/internal/provider"
)

// Status is the canonical task state.
type Status string

const (
	// StatusSubmitted indicates the backend accepted the job.
	StatusSubmitted Status = "submitted"
	// StatusRunning indicates the job is in progress (or queued) server-side.
	StatusRunning Status = "running"
	// StatusSucceeded indicates the job produced a result.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the backend reported a terminal failure.
	StatusFailed Status = "failed"
	// StatusTimedOut indicates the polling budget ran out before a terminal
	// backend state was observed. The job may still complete server-side.
	StatusTimedOut Status = "timed_out"
)

// IsTerminal returns true if the status is final.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusTimedOut:
		return true
	default:
		return false
	}
}

// Result is the payload a succeeded task resolves to: a remote URL, inline
// base64 data, or both.
type Result struct {
	URL    string
	Base64 string
	MIME   string
}

// Empty reports whether the result carries no payload.
func (r Result) Empty() bool {
	return r.URL == "" && r.Base64 == ""
}

// Task records one asynchronous generation job. Terminal states are final:
// the poller never mutates a task after it reaches one.
type Task struct {
	ID         string
	Provider   provider.Name
	Capability provider.Capability
	Handle     string // raw backend task id
	Status     Status
	Result     Result
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// New creates a Task in the submitted state for a raw backend handle.
func New(name provider.Name, capability provider.Capability, handle string) *Task {
	now := time.Now()
	return &Task{
		ID:         uuid.New().String(),
		Provider:   name,
		Capability: capability,
		Handle:     handle,
		Status:     StatusSubmitted,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Vocabulary maps one backend's raw status strings to canonical states.
// Lookups are exact-match on the raw string as the backend reports it.
type Vocabulary map[string]Status

// Canonical translates a raw backend status. Unrecognized strings map to
// StatusRunning so an unexpected vocabulary addition keeps the poll loop
// alive instead of crashing it; the caller logs the raw value.
func (v Vocabulary) Canonical(raw string, logger *slog.Logger) Status {
	if status, ok := v[raw]; ok {
		return status
	}
	if logger != nil {
		logger.Warn("unrecognized backend task status, treating as running",
			slog.String("raw_status", raw),
		)
	}
	return StatusRunning
}
