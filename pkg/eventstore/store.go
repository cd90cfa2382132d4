package eventstore

import (
	"context"

	"github.com/google/uuid"
)

// Store persists inbound provider events and their processing lifecycle.
type Store interface {
	// Append records a new event. Returns ErrDuplicateEvent when the
	// (provider, provider event ID) pair already exists; under concurrent
	// delivery exactly one Append for a given identifier succeeds.
	Append(ctx context.Context, event *Event) error

	// Get returns an event by internal ID.
	Get(ctx context.Context, id uuid.UUID) (*Event, error)

	// MarkProcessed finishes an event's lifecycle. The note keeps the
	// permanent-failure detail for the operator view; empty means clean
	// success. Processed events are never picked up again.
	MarkProcessed(ctx context.Context, id uuid.UUID, note string) error

	// MarkFailed records a failed processing attempt: increments the retry
	// count and keeps the event unprocessed so a retry sweep picks it up.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error

	// Quarantine parks an event: unprocessed, carrying the failure reason,
	// but invisible to retry sweeps. Used for malformed payloads and for
	// events that exhausted their retry budget.
	Quarantine(ctx context.Context, id uuid.UUID, reason string) error

	// ListUnprocessed returns unprocessed, non-quarantined events ordered by
	// creation time ascending, up to limit.
	ListUnprocessed(ctx context.Context, limit int) ([]Event, error)
}
