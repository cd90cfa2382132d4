package ledger

import "errors"

var (
	ErrTenantNotFound       = errors.New("tenant not found")
	ErrPlanNotFound         = errors.New("subscription plan not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrInvoiceNotFound      = errors.New("invoice not found")

	// ErrBalanceInvariant rejects any invoice write where
	// amount_remaining != amount_due - amount_paid or a balance is negative.
	ErrBalanceInvariant = errors.New("invoice balance invariant violated")

	// ErrRefundInvariant rejects any payment write where
	// refunded_amount exceeds amount or is negative.
	ErrRefundInvariant = errors.New("payment refund invariant violated")

	// ErrImmutableRecord rejects updates to append-only records (usage).
	ErrImmutableRecord = errors.New("record is immutable")

	// ErrTenantMismatch rejects writes for records belonging to a different
	// tenant than the unit of work is scoped to.
	ErrTenantMismatch = errors.New("record belongs to a different tenant")

	// ErrStoreUnavailable wraps transient storage failures. Callers treat it
	// as retryable.
	ErrStoreUnavailable = errors.New("ledger store unavailable")
)
