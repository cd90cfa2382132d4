package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Tx is a unit of work scoped to a single tenant. All reads see a consistent
// snapshot and all writes commit together or not at all. Implementations
// stamp UpdatedAt and run entity Validate checks in the write path, so an
// invariant violation surfaces as a failed save rather than a corrupt row.
type Tx interface {
	// Tenant returns the tenant the unit of work is scoped to.
	Tenant(ctx context.Context) (*Tenant, error)

	Plan(ctx context.Context, id uuid.UUID) (*Plan, error)
	PlanByCode(ctx context.Context, code string) (*Plan, error)

	Subscription(ctx context.Context, id uuid.UUID) (*Subscription, error)
	SubscriptionByProviderID(ctx context.Context, providerSubID string) (*Subscription, error)
	SaveSubscription(ctx context.Context, sub *Subscription) error

	Payment(ctx context.Context, id uuid.UUID) (*Payment, error)
	PaymentByProviderID(ctx context.Context, providerPaymentID string) (*Payment, error)
	SavePayment(ctx context.Context, p *Payment) error

	Invoice(ctx context.Context, id uuid.UUID) (*Invoice, error)
	InvoiceByProviderID(ctx context.Context, providerInvoiceID string) (*Invoice, error)
	// OpenInvoice returns the oldest non-settled invoice for a subscription,
	// or ErrInvoiceNotFound when everything is settled.
	OpenInvoice(ctx context.Context, subscriptionID uuid.UUID) (*Invoice, error)
	// HasInvoiceForPeriod reports whether any non-void invoice already
	// covers the billing window. This is the usage-aggregation idempotence
	// check: a covered period must not be billed again.
	HasInvoiceForPeriod(ctx context.Context, subscriptionID uuid.UUID, periodStart, periodEnd time.Time) (bool, error)
	SaveInvoice(ctx context.Context, inv *Invoice) error

	AppendUsage(ctx context.Context, rec *UsageRecord) error
	// UsageInPeriod returns usage records with RecordedAt in [from, to),
	// ordered by RecordedAt ascending.
	UsageInPeriod(ctx context.Context, subscriptionID uuid.UUID, from, to time.Time) ([]UsageRecord, error)

	// EventApplied reports whether MarkEventApplied committed for the given
	// provider event in an earlier unit of work. The pair makes replay
	// detection survive a crash between ledger commit and event-store
	// bookkeeping: the marker commits atomically with the ledger writes it
	// guards, so a replayed event sees it and skips re-application.
	EventApplied(ctx context.Context, provider, providerEventID string) (bool, error)
	MarkEventApplied(ctx context.Context, provider, providerEventID string) error
}

// TxFunc is the body of a unit of work.
type TxFunc func(ctx context.Context, tx Tx) error

// Store gives serialized, transactional access to a tenant's ledger records.
//
// WithinTenant guarantees mutual exclusion per tenant: two concurrent calls
// for the same tenant run one after the other, calls for different tenants
// run in parallel. Returning an error from fn rolls back every write made
// inside the unit of work.
type Store interface {
	WithinTenant(ctx context.Context, tenantID uuid.UUID, fn TxFunc) error
}
