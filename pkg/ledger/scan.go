package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DueSubscription is a cross-tenant scan hit: a subscription whose billing
// window, trial, or collection grace elapsed. DueAt carries the deadline
// that elapsed — period end, trial end, or the unpaid invoice's due date —
// and anchors the deterministic identifier of the event emitted for it.
type DueSubscription struct {
	TenantID       uuid.UUID
	SubscriptionID uuid.UUID
	ProviderSubID  string
	DueAt          time.Time
}

// Scanner lists subscriptions with elapsed deadlines. Read-only and
// tenant-unscoped: the scans feed the scheduler, which turns hits into
// events; all resulting mutations still go through per-tenant units of
// work. Both ledger stores implement it.
type Scanner interface {
	// DueRollovers returns non-cancelled subscriptions whose current period
	// ended at or before asOf, ordered by period end ascending.
	DueRollovers(ctx context.Context, asOf time.Time, limit int) ([]DueSubscription, error)

	// DueTrials returns trialing subscriptions whose trial ended at or
	// before asOf.
	DueTrials(ctx context.Context, asOf time.Time, limit int) ([]DueSubscription, error)

	// DueDunning returns past-due subscriptions holding an open invoice
	// whose due date passed at least grace ago.
	DueDunning(ctx context.Context, asOf time.Time, grace time.Duration, limit int) ([]DueSubscription, error)
}
