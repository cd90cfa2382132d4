package reconcile

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/ledger"
	"github.com/dmitrymomot/billingkit/pkg/money"
)

// Engine applies payments, refunds, and status flips to invoices.
type Engine struct {
	allowOverpayment bool
	now              func() time.Time
	logger           *slog.Logger
}

// Option configures the engine.
type Option func(*Engine)

// WithOverpaymentCredit enables the overpayment policy: a payment larger
// than the remaining balance is applied up to the balance and the excess is
// returned to the caller as credit instead of failing.
func WithOverpaymentCredit() Option {
	return func(e *Engine) { e.allowOverpayment = true }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates a reconciliation engine. Overpayment is rejected by default.
func New(opts ...Option) *Engine {
	e := &Engine{
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ApplyPayment applies a succeeded payment against an invoice: increases
// amount_paid, recomputes the remaining balance, and flips the invoice to
// paid when the balance reaches zero. The returned credit is non-zero only
// when the overpayment policy is enabled and the payment exceeded the
// remaining balance.
//
// The payment is linked to the invoice as a side effect so refunds can find
// their way back.
func (e *Engine) ApplyPayment(inv *ledger.Invoice, p *ledger.Payment) (credit money.Amount, err error) {
	if p.Status != ledger.PaymentSucceeded {
		return money.Zero(), ErrPaymentNotSucceeded
	}
	switch inv.Status {
	case ledger.InvoiceDraft, ledger.InvoiceOpen:
	default:
		return money.Zero(), ErrInvoiceNotOpen
	}

	applied := p.Amount
	if applied.GreaterThan(inv.AmountRemaining) {
		if !e.allowOverpayment {
			return money.Zero(), ErrOverpaymentRejected
		}
		credit = applied.Sub(inv.AmountRemaining)
		applied = inv.AmountRemaining
		e.logger.Warn("overpayment applied as credit",
			slog.String("invoice_id", inv.ID.String()),
			slog.String("payment_id", p.ID.String()),
			slog.String("credit", credit.String()))
	}

	inv.AmountPaid = inv.AmountPaid.Add(applied)
	inv.Recompute()

	if inv.AmountRemaining.IsZero() {
		inv.Status = ledger.InvoicePaid
		paidAt := e.now()
		inv.PaidAt = &paidAt
	} else if inv.Status == ledger.InvoiceDraft {
		// A partial payment finalizes a draft; balances on drafts are
		// otherwise unreachable by collection.
		inv.Status = ledger.InvoiceOpen
	}

	p.InvoiceID = &inv.ID
	return credit, nil
}

// ApplyRefund refunds part or all of a payment and reverses its effect on
// the invoice: refunded_amount grows on the payment, amount_paid shrinks on
// the invoice, and a fully-paid invoice reopens when a balance reappears.
// Refunds against a voided invoice are refused; the void already wrote the
// invoice off and a later refund must not resurrect its balances.
func (e *Engine) ApplyRefund(inv *ledger.Invoice, p *ledger.Payment, amount money.Amount) error {
	if inv.Status == ledger.InvoiceVoid {
		return ErrInvoiceVoided
	}
	if amount.IsNegative() || amount.IsZero() {
		return ErrInvalidRefund
	}
	if amount.GreaterThan(p.Refundable()) {
		return ErrInvalidRefund
	}

	p.RefundedAmount = p.RefundedAmount.Add(amount)
	if p.Refundable().IsZero() {
		p.Status = ledger.PaymentRefunded
	}

	inv.AmountPaid = inv.AmountPaid.Sub(amount)
	inv.Recompute()

	if inv.Status == ledger.InvoicePaid && !inv.AmountRemaining.IsZero() {
		inv.Status = ledger.InvoiceOpen
		inv.PaidAt = nil
		e.logger.Info("invoice reopened by refund",
			slog.String("invoice_id", inv.ID.String()),
			slog.String("amount_remaining", inv.AmountRemaining.String()))
	}
	return nil
}

// Void voids a non-paid invoice. Voided invoices drop out of
// remaining-balance aggregates and refuse further payments.
func (e *Engine) Void(inv *ledger.Invoice) error {
	if inv.Status == ledger.InvoicePaid {
		return ErrCannotVoidPaid
	}
	if inv.Status == ledger.InvoiceVoid {
		return nil // already void, idempotent
	}
	inv.Status = ledger.InvoiceVoid
	voidedAt := e.now()
	inv.VoidedAt = &voidedAt
	return nil
}

// MarkUncollectible flips an open, past-due invoice with a remaining balance
// to uncollectible. The decision that collection is exhausted comes from
// outside (dunning policy is external); this is only the mechanism.
func (e *Engine) MarkUncollectible(inv *ledger.Invoice) error {
	if inv.Status != ledger.InvoiceOpen {
		return ErrNotCollectable
	}
	if inv.AmountRemaining.IsZero() || inv.AmountRemaining.IsNegative() {
		return ErrNotCollectable
	}
	if inv.DueDate == nil || !e.now().After(*inv.DueDate) {
		return ErrNotCollectable
	}
	inv.Status = ledger.InvoiceUncollectible
	return nil
}
