package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/money"
)

// InvoiceStatus represents the collection state of an invoice.
type InvoiceStatus string

const (
	InvoiceDraft         InvoiceStatus = "draft"
	InvoiceOpen          InvoiceStatus = "open"
	InvoicePaid          InvoiceStatus = "paid"
	InvoiceVoid          InvoiceStatus = "void"
	InvoiceUncollectible InvoiceStatus = "uncollectible"
)

// LineItem is a single billed position on an invoice. For metered usage the
// period window records which billing period the charge covers, which is what
// makes re-aggregation detectable.
type LineItem struct {
	Description string       `json:"description"`
	MetricName  string       `json:"metric_name,omitempty"`
	Quantity    int64        `json:"quantity"`
	UnitPrice   money.Price  `json:"unit_price"`
	Amount      money.Amount `json:"amount"`
	PeriodStart time.Time    `json:"period_start,omitzero"`
	PeriodEnd   time.Time    `json:"period_end,omitzero"`
}

// Invoice is a bill issued to a tenant. AmountRemaining is derived, not
// authoritative: it is recomputed from AmountDue and AmountPaid on every
// write and asserted as an invariant before the row is persisted.
type Invoice struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	SubscriptionID    *uuid.UUID
	ProviderInvoiceID string // provider-side invoice reference (e.g. in_...)
	Status            InvoiceStatus
	AmountDue         money.Amount
	AmountPaid        money.Amount
	AmountRemaining   money.Amount
	Currency          string
	LineItems         []LineItem

	// Billing period the invoice covers. Usage aggregation for an already
	// covered period is rejected based on these bounds.
	PeriodStart *time.Time
	PeriodEnd   *time.Time

	DueDate  *time.Time
	PaidAt   *time.Time
	VoidedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Recompute rederives AmountRemaining from AmountDue and AmountPaid.
// Call after any change to either amount.
func (i *Invoice) Recompute() {
	i.AmountRemaining = i.AmountDue.Sub(i.AmountPaid)
}

// Validate asserts the balance invariant. A violation here means a bug in
// the reconciliation engine, not bad input, so stores refuse the write.
func (i *Invoice) Validate() error {
	if !i.AmountRemaining.Equal(i.AmountDue.Sub(i.AmountPaid)) {
		return ErrBalanceInvariant
	}
	if i.AmountRemaining.IsNegative() || i.AmountPaid.IsNegative() || i.AmountDue.IsNegative() {
		return ErrBalanceInvariant
	}
	if i.Status == InvoicePaid && !i.AmountRemaining.IsZero() {
		return ErrBalanceInvariant
	}
	return nil
}

// IsSettled reports whether the invoice needs no further collection.
func (i *Invoice) IsSettled() bool {
	return i.Status == InvoicePaid || i.Status == InvoiceVoid || i.Status == InvoiceUncollectible
}

// CoversPeriod reports whether the invoice already bills the given window.
func (i *Invoice) CoversPeriod(start, end time.Time) bool {
	if i.PeriodStart == nil || i.PeriodEnd == nil {
		return false
	}
	return i.PeriodStart.Equal(start) && i.PeriodEnd.Equal(end)
}
