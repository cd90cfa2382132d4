package eventstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type dedupKey struct {
	provider string
	eventID  string
}

// MemoryStore is an in-memory Store for tests and local development.
// The dedup map plays the role of the database unique index: insert and
// membership check happen under one lock, so concurrent appends of the same
// identifier resolve with exactly one winner.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[uuid.UUID]*Event
	dedup  map[dedupKey]uuid.UUID

	now func() time.Time
}

// NewMemoryStore creates an empty in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: make(map[uuid.UUID]*Event),
		dedup:  make(map[dedupKey]uuid.UUID),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the timestamp source. Test helper.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.now = now
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dedupKey{provider: event.Provider, eventID: event.ProviderEventID}
	if _, exists := s.dedup[key]; exists {
		return ErrDuplicateEvent
	}

	cp := *event
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	cp.Payload = append([]byte(nil), event.Payload...)

	s.events[cp.ID] = &cp
	s.dedup[key] = cp.ID
	*event = cp
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	cp := *ev
	return &cp, nil
}

// MarkProcessed implements Store.
func (s *MemoryStore) MarkProcessed(ctx context.Context, id uuid.UUID, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return ErrEventNotFound
	}
	now := s.now()
	ev.Processed = true
	ev.ProcessedAt = &now
	ev.LastError = note
	return nil
}

// MarkFailed implements Store.
func (s *MemoryStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return ErrEventNotFound
	}
	ev.RetryCount++
	ev.LastError = reason
	return nil
}

// Quarantine implements Store.
func (s *MemoryStore) Quarantine(ctx context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return ErrEventNotFound
	}
	ev.Quarantined = true
	ev.LastError = reason
	return nil
}

// ListUnprocessed implements Store.
func (s *MemoryStore) ListUnprocessed(ctx context.Context, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for _, ev := range s.events {
		if !ev.Processed && !ev.Quarantined {
			out = append(out, *ev)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
