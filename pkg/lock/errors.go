package lock

import "errors"

var (
	// ErrNotAcquired indicates another holder owns the lock and the wait
	// budget ran out.
	ErrNotAcquired = errors.New("lock: not acquired")

	// ErrLockLost indicates the lease expired before release; the critical
	// section may have overlapped with another holder.
	ErrLockLost = errors.New("lock: lease lost before release")
)
