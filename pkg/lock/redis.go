package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while we still own it, so a holder
// whose lease expired cannot release the next holder's lock.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

// RedisLocker implements TenantLocker on a shared Redis instance using
// SET NX leases.
type RedisLocker struct {
	client    redis.UniversalClient
	prefix    string
	ttl       time.Duration
	retryWait time.Duration
}

// RedisOption configures the locker.
type RedisOption func(*RedisLocker)

// WithKeyPrefix namespaces lock keys, default "billing:tenant-lock:".
func WithKeyPrefix(prefix string) RedisOption {
	return func(l *RedisLocker) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

// WithLeaseTTL bounds how long a crashed holder blocks a tenant.
func WithLeaseTTL(ttl time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithRetryWait sets the polling interval while the lock is contended.
func WithRetryWait(d time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if d > 0 {
			l.retryWait = d
		}
	}
}

// NewRedisLocker creates a Redis-backed tenant locker.
func NewRedisLocker(client redis.UniversalClient, opts ...RedisOption) *RedisLocker {
	if client == nil {
		panic("lock: redis client is required")
	}
	l := &RedisLocker{
		client:    client,
		prefix:    "billing:tenant-lock:",
		ttl:       30 * time.Second,
		retryWait: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire implements TenantLocker. Polls until the lease is taken or the
// context ends.
func (l *RedisLocker) Acquire(ctx context.Context, tenantID uuid.UUID) (func() error, error) {
	key := l.prefix + tenantID.String()
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, errors.Join(ErrNotAcquired, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-time.After(l.retryWait):
		}
	}

	release := func() error {
		// Release must work even after the acquiring context was cancelled.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		n, err := releaseScript.Run(rctx, l.client, []string{key}, token).Int()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrLockLost
		}
		return nil
	}
	return release, nil
}

var _ TenantLocker = (*RedisLocker)(nil)
