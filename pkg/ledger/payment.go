package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/money"
)

// PaymentStatus represents the settlement state of a payment.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentSucceeded  PaymentStatus = "succeeded"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
	PaymentCancelled  PaymentStatus = "cancelled"
)

// Payment is a settlement attempt against a tenant, optionally tied to a
// subscription and an invoice. Payments are audit records: status and
// refunded amount change, rows never disappear.
type Payment struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	SubscriptionID    *uuid.UUID
	InvoiceID         *uuid.UUID
	ProviderPaymentID string // provider-side transaction reference (e.g. txn_...)
	Amount            money.Amount
	RefundedAmount    money.Amount
	Currency          string
	Status            PaymentStatus
	FailureReason     string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Refundable returns how much of the payment can still be refunded.
func (p *Payment) Refundable() money.Amount {
	return p.Amount.Sub(p.RefundedAmount)
}

// Validate checks the refund invariant: 0 <= refunded_amount <= amount.
func (p *Payment) Validate() error {
	if p.RefundedAmount.IsNegative() {
		return ErrRefundInvariant
	}
	if p.RefundedAmount.GreaterThan(p.Amount) {
		return ErrRefundInvariant
	}
	return nil
}
