package eventstore

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is one inbound provider event as received. The payload is stored
// verbatim; correlation to ledger records happens at processing time by
// payload content, never by foreign key.
type Event struct {
	ID              uuid.UUID
	Provider        string // originating provider, e.g. "paddle"
	ProviderEventID string // provider-assigned unique identifier, the dedup key
	EventType       string
	Payload         json.RawMessage

	Processed   bool
	ProcessedAt *time.Time
	RetryCount  int
	LastError   string

	// Quarantined events stay unprocessed but are excluded from retry
	// sweeps: malformed payloads and retry-exhausted events land here and
	// wait for manual intervention.
	Quarantined bool

	CreatedAt time.Time
}
