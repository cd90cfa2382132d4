package eventstore

import "errors"

var (
	// ErrDuplicateEvent signals the provider event identifier already exists.
	// This is the expected outcome for redelivered events, not a failure:
	// callers skip reprocessing and report success upstream.
	ErrDuplicateEvent = errors.New("event already recorded")

	ErrEventNotFound = errors.New("event not found")

	// ErrStoreUnavailable wraps transient storage failures. Retryable.
	ErrStoreUnavailable = errors.New("event store unavailable")
)
