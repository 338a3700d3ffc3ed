package session

import "errors"

// Caller-visible error conditions. The orchestrator classifies every
// failure into one of these (or wraps it); the API layer maps them to
// status codes.
var (
	// ErrQuotaExceeded means the user has no monthly allowance left.
	// Checked before any provider call or mutation.
	ErrQuotaExceeded = errors.New("monthly usage quota exceeded")

	// ErrSessionNotFound covers both a missing session and a session owned
	// by another user; the two are intentionally not distinguished to avoid
	// leaking existence.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionCompleted means the session is terminal and accepts no
	// further turns.
	ErrSessionCompleted = errors.New("session already completed")

	// ErrInvalidSession means the operation's arguments do not fit the
	// session, e.g. an unrecognized phase value on a phase update.
	ErrInvalidSession = errors.New("invalid session operation")

	// ErrUpstreamUnavailable means the completion provider failed. Persisted
	// state is never corrupted by this condition; the caller may retry.
	ErrUpstreamUnavailable = errors.New("completion provider unavailable")
)
