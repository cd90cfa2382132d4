package lock

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// MemoryLocker implements TenantLocker with in-process mutexes. Suitable for
// single-instance deployments and tests.
type MemoryLocker struct {
	locks sync.Map // uuid.UUID -> *sync.Mutex
}

// NewMemoryLocker creates an in-process tenant locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{}
}

// Acquire implements TenantLocker.
func (l *MemoryLocker) Acquire(ctx context.Context, tenantID uuid.UUID) (func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(ErrNotAcquired, err)
	}
	mu, _ := l.locks.LoadOrStore(tenantID, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return func() error {
		m.Unlock()
		return nil
	}, nil
}

var _ TenantLocker = (*MemoryLocker)(nil)
