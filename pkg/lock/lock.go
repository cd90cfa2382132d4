package lock

import (
	"context"

	"github.com/google/uuid"
)

// TenantLocker serializes work per tenant. Acquire blocks until the lock is
// held, the context is cancelled, or the implementation's wait budget runs
// out; it returns a release function that must be called exactly once.
type TenantLocker interface {
	Acquire(ctx context.Context, tenantID uuid.UUID) (release func() error, err error)
}
