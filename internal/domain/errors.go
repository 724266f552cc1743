package domain

import "errors"

var (
	// ErrValidation marks malformed input to the source registry or a
	// schedule. Surfaced to the caller, never retried.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a URL already registered for the scope.
	ErrConflict = errors.New("already registered")
	// ErrNotFound marks an operation on a missing source or schedule.
	ErrNotFound = errors.New("not found")
	// ErrAllSourcesUnavailable marks a refresh where every source fetch
	// failed. Reported via the per-source error map; stale data is still
	// served.
	ErrAllSourcesUnavailable = errors.New("all sources unavailable")
	// ErrDownstreamTimeout marks an audio-creation call that exceeded its
	// deadline.
	ErrDownstreamTimeout = errors.New("downstream timeout")
	// ErrDownstream marks an audio-creation call that failed upstream.
	ErrDownstream = errors.New("downstream error")
)
