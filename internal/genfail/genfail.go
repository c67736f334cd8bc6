// Package genfail defines the error taxonomy shared by the generation
// orchestration core. Every failure that crosses a component boundary is
// classified into one of the kinds below so that callers can decide whether
// to retry, surface, or swallow without parsing backend-specific messages.
package genfail

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a generation failure.
type Kind string

const (
	// KindNoProviderConfigured indicates resolution found no usable provider
	// configuration for the requested capability. Never retried.
	KindNoProviderConfigured Kind = "no_provider_configured"
	// KindRateLimited indicates the backend throttled the call. Retried with
	// backoff up to the executor's budget.
	KindRateLimited Kind = "rate_limited"
	// KindBackendRejected indicates the backend refused the call outright
	// (validation, auth, malformed request, server fault). Never retried.
	KindBackendRejected Kind = "backend_rejected"
	// KindTaskFailed indicates an asynchronous task reached a terminal
	// failure state on the backend. Never retried.
	KindTaskFailed Kind = "task_failed"
	// KindTaskTimedOut indicates the polling budget was exhausted before the
	// task reached a terminal state. The job may still complete server-side;
	// callers must not assume absence of a result.
	KindTaskTimedOut Kind = "task_timed_out"
	// KindPersistenceUnavailable indicates artifact persistence failed. This
	// kind never reaches the generation caller; the persistence pipeline
	// swallows it and returns the original artifact location.
	KindPersistenceUnavailable Kind = "persistence_unavailable"
)

// Error carries a classified failure together with the provider and
// capability it originated from. The message is the backend's raw diagnostic,
// sanitized of credentials by construction: adapters never place credential
// values into messages.
type Error struct {
	Kind       Kind
	Provider   string
	Capability string
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Provider != "" {
		b.WriteString(": provider=")
		b.WriteString(e.Provider)
	}
	if e.Capability != "" {
		b.WriteString(" capability=")
		b.WriteString(e.Capability)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error.
func New(kind Kind, provider, capability, message string) *Error {
	return &Error{Kind: kind, Provider: provider, Capability: capability, Message: message}
}

// Wrap creates a classified error around an existing cause.
func Wrap(kind Kind, provider, capability string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Capability: capability, Err: err}
}

// KindOf extracts the Kind from err, or "" if err is not a classified error.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// Is reports whether err is classified with the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRateLimited reports whether err should be retried by the backoff
// executor. Only rate-limit classifications qualify.
func IsRateLimited(err error) bool {
	return Is(err, KindRateLimited)
}

// rateLimitMarkers are substrings that identify a throttling fault when a
// backend reports it in the response body instead of the status code.
var rateLimitMarkers = []string{
	"rate limit",
	"rate_limit",
	"ratelimit",
	"too many requests",
	"quota",
	"throttl",
}

// looksRateLimited reports whether a raw backend message carries a
// rate-limit or quota marker.
func looksRateLimited(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range rateLimitMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// FromBackendMessage classifies a fault a backend reports inside a 2xx
// response envelope. Rate-limit markers become KindRateLimited; everything
// else is KindBackendRejected.
func FromBackendMessage(provider, capability, message string) *Error {
	kind := KindBackendRejected
	if looksRateLimited(message) {
		kind = KindRateLimited
	}
	return &Error{Kind: kind, Provider: provider, Capability: capability, Message: message}
}

// FromHTTP classifies a non-2xx backend response. HTTP 429 and bodies
// carrying a rate-limit marker become KindRateLimited; everything else is
// KindBackendRejected and fails fast.
func FromHTTP(provider, capability string, statusCode int, body string) *Error {
	message := strings.TrimSpace(body)
	if len(message) > 512 {
		message = message[:512]
	}
	kind := KindBackendRejected
	if statusCode == http.StatusTooManyRequests || looksRateLimited(message) {
		kind = KindRateLimited
	}
	return &Error{
		Kind:       kind,
		Provider:   provider,
		Capability: capability,
		Message:    fmt.Sprintf("http %d: %s", statusCode, message),
	}
}
