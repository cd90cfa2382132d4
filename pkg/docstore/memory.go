package docstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local development.
// Safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryStore creates an empty in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

// Put implements Store. The returned URL uses the memory:// scheme so
// callers can still log something addressable.
func (s *MemoryStore) Put(_ context.Context, doc Document) (string, error) {
	key := doc.Key()
	body := make([]byte, len(doc.Body))
	copy(body, doc.Body)

	s.mu.Lock()
	s.docs[key] = body
	s.mu.Unlock()

	return "memory://" + key, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, tenantID, invoiceID uuid.UUID) ([]byte, error) {
	key := Document{TenantID: tenantID, InvoiceID: invoiceID}.Key()

	s.mu.RLock()
	body, ok := s.docs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrDocumentNotFound
	}

	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
