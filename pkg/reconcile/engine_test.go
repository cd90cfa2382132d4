package reconcile_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/ledger"
	"github.com/dmitrymomot/billingkit/pkg/money"
	"github.com/dmitrymomot/billingkit/pkg/reconcile"
)

func openInvoice(due string) *ledger.Invoice {
	inv := &ledger.Invoice{
		ID:        uuid.New(),
		TenantID:  uuid.New(),
		Status:    ledger.InvoiceOpen,
		AmountDue: money.MustParse(due),
		Currency:  "USD",
	}
	inv.Recompute()
	return inv
}

func succeededPayment(amount string) *ledger.Payment {
	return &ledger.Payment{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		Amount:   money.MustParse(amount),
		Status:   ledger.PaymentSucceeded,
		Currency: "USD",
	}
}

func TestEngine_ApplyPayment(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	e := reconcile.New(reconcile.WithClock(func() time.Time { return now }))

	t.Run("full payment settles invoice", func(t *testing.T) {
		t.Parallel()
		inv := openInvoice("99.99")
		p := succeededPayment("99.99")

		credit, err := e.ApplyPayment(inv, p)
		require.NoError(t, err)
		assert.True(t, credit.IsZero())
		assert.Equal(t, ledger.InvoicePaid, inv.Status)
		assert.Equal(t, "0.00", inv.AmountRemaining.String())
		require.NotNil(t, inv.PaidAt)
		assert.Equal(t, now, *inv.PaidAt)
		require.NotNil(t, p.InvoiceID)
		assert.Equal(t, inv.ID, *p.InvoiceID)
		require.NoError(t, inv.Validate())
	})

	t.Run("partial payment keeps invoice open", func(t *testing.T) {
		t.Parallel()
		inv := openInvoice("100.00")
		credit, err := e.ApplyPayment(inv, succeededPayment("40.00"))
		require.NoError(t, err)
		assert.True(t, credit.IsZero())
		assert.Equal(t, ledger.InvoiceOpen, inv.Status)
		assert.Equal(t, "60.00", inv.AmountRemaining.String())
		assert.Nil(t, inv.PaidAt)
	})

	t.Run("overpayment rejected by default", func(t *testing.T) {
		t.Parallel()
		inv := openInvoice("50.00")
		_, err := e.ApplyPayment(inv, succeededPayment("60.00"))
		require.ErrorIs(t, err, reconcile.ErrOverpaymentRejected)
		// Invoice untouched on rejection.
		assert.Equal(t, "50.00", inv.AmountRemaining.String())
		assert.Equal(t, ledger.InvoiceOpen, inv.Status)
	})

	t.Run("overpayment policy returns excess as credit", func(t *testing.T) {
		t.Parallel()
		lenient := reconcile.New(
			reconcile.WithOverpaymentCredit(),
			reconcile.WithClock(func() time.Time { return now }),
		)
		inv := openInvoice("50.00")
		credit, err := lenient.ApplyPayment(inv, succeededPayment("60.00"))
		require.NoError(t, err)
		assert.Equal(t, "10.00", credit.String())
		assert.Equal(t, ledger.InvoicePaid, inv.Status)
		assert.Equal(t, "0.00", inv.AmountRemaining.String())
		require.NoError(t, inv.Validate())
	})

	t.Run("refuses unsettled payment", func(t *testing.T) {
		t.Parallel()
		inv := openInvoice("50.00")
		p := succeededPayment("50.00")
		p.Status = ledger.PaymentPending
		_, err := e.ApplyPayment(inv, p)
		require.ErrorIs(t, err, reconcile.ErrPaymentNotSucceeded)
	})

	t.Run("refuses settled invoices", func(t *testing.T) {
		t.Parallel()
		for _, status := range []ledger.InvoiceStatus{ledger.InvoicePaid, ledger.InvoiceVoid, ledger.InvoiceUncollectible} {
			inv := openInvoice("50.00")
			inv.Status = status
			if status == ledger.InvoicePaid {
				inv.AmountPaid = inv.AmountDue
				inv.Recompute()
			}
			_, err := e.ApplyPayment(inv, succeededPayment("10.00"))
			require.ErrorIs(t, err, reconcile.ErrInvoiceNotOpen, "status %s", status)
		}
	})

	t.Run("partial payment finalizes draft", func(t *testing.T) {
		t.Parallel()
		inv := openInvoice("100.00")
		inv.Status = ledger.InvoiceDraft
		_, err := e.ApplyPayment(inv, succeededPayment("40.00"))
		require.NoError(t, err)
		assert.Equal(t, ledger.InvoiceOpen, inv.Status)
	})
}

func TestEngine_ApplyRefund(t *testing.T) {
	t.Parallel()
	e := reconcile.New()

	// Paid invoice with one full payment, then a partial refund. This is
	// the 99.99 paid / 49.99 refunded walkthrough from the processor docs.
	settled := func() (*ledger.Invoice, *ledger.Payment) {
		inv := openInvoice("99.99")
		p := succeededPayment("99.99")
		_, err := e.ApplyPayment(inv, p)
		require.NoError(t, err)
		return inv, p
	}

	t.Run("partial refund reopens invoice", func(t *testing.T) {
		t.Parallel()
		inv, p := settled()

		require.NoError(t, e.ApplyRefund(inv, p, money.MustParse("49.99")))
		assert.Equal(t, ledger.InvoiceOpen, inv.Status)
		assert.Equal(t, "50.00", inv.AmountPaid.String())
		assert.Equal(t, "49.99", inv.AmountRemaining.String())
		assert.Nil(t, inv.PaidAt)
		assert.Equal(t, "49.99", p.RefundedAmount.String())
		assert.Equal(t, ledger.PaymentSucceeded, p.Status)
		require.NoError(t, inv.Validate())
		require.NoError(t, p.Validate())
	})

	t.Run("full refund flips payment status", func(t *testing.T) {
		t.Parallel()
		inv, p := settled()
		require.NoError(t, e.ApplyRefund(inv, p, money.MustParse("99.99")))
		assert.Equal(t, ledger.PaymentRefunded, p.Status)
		assert.Equal(t, "99.99", inv.AmountRemaining.String())
	})

	t.Run("refund cannot exceed refundable remainder", func(t *testing.T) {
		t.Parallel()
		inv, p := settled()
		require.NoError(t, e.ApplyRefund(inv, p, money.MustParse("60.00")))
		err := e.ApplyRefund(inv, p, money.MustParse("50.00"))
		require.ErrorIs(t, err, reconcile.ErrInvalidRefund)
		// refunded_amount <= amount still holds
		require.NoError(t, p.Validate())
	})

	t.Run("rejects non-positive refunds", func(t *testing.T) {
		t.Parallel()
		inv, p := settled()
		require.ErrorIs(t, e.ApplyRefund(inv, p, money.Zero()), reconcile.ErrInvalidRefund)
		require.ErrorIs(t, e.ApplyRefund(inv, p, money.MustParse("-1.00")), reconcile.ErrInvalidRefund)
	})

	t.Run("rejects refunds against a voided invoice", func(t *testing.T) {
		t.Parallel()
		inv := openInvoice("100.00")
		p := succeededPayment("40.00")
		_, err := e.ApplyPayment(inv, p)
		require.NoError(t, err)
		require.NoError(t, e.Void(inv))

		err = e.ApplyRefund(inv, p, money.MustParse("40.00"))
		require.ErrorIs(t, err, reconcile.ErrInvoiceVoided)
		// The written-off invoice keeps its balances as voided.
		assert.Equal(t, ledger.InvoiceVoid, inv.Status)
		assert.Equal(t, "40.00", inv.AmountPaid.String())
		assert.True(t, p.RefundedAmount.IsZero())
	})
}

func TestEngine_Void(t *testing.T) {
	t.Parallel()
	e := reconcile.New()

	t.Run("voids open invoice", func(t *testing.T) {
		t.Parallel()
		inv := openInvoice("10.00")
		require.NoError(t, e.Void(inv))
		assert.Equal(t, ledger.InvoiceVoid, inv.Status)
		assert.NotNil(t, inv.VoidedAt)
	})

	t.Run("void is idempotent", func(t *testing.T) {
		t.Parallel()
		inv := openInvoice("10.00")
		require.NoError(t, e.Void(inv))
		first := *inv.VoidedAt
		require.NoError(t, e.Void(inv))
		assert.Equal(t, first, *inv.VoidedAt)
	})

	t.Run("refuses paid invoice", func(t *testing.T) {
		t.Parallel()
		inv := openInvoice("10.00")
		_, err := e.ApplyPayment(inv, succeededPayment("10.00"))
		require.NoError(t, err)
		require.ErrorIs(t, e.Void(inv), reconcile.ErrCannotVoidPaid)
	})
}

func TestEngine_MarkUncollectible(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	e := reconcile.New(reconcile.WithClock(func() time.Time { return now }))

	pastDue := func() *ledger.Invoice {
		inv := openInvoice("75.00")
		due := now.AddDate(0, 0, -30)
		inv.DueDate = &due
		return inv
	}

	t.Run("flips eligible invoice", func(t *testing.T) {
		t.Parallel()
		inv := pastDue()
		require.NoError(t, e.MarkUncollectible(inv))
		assert.Equal(t, ledger.InvoiceUncollectible, inv.Status)
	})

	t.Run("refuses invoice not yet due", func(t *testing.T) {
		t.Parallel()
		inv := openInvoice("75.00")
		future := now.AddDate(0, 0, 10)
		inv.DueDate = &future
		require.ErrorIs(t, e.MarkUncollectible(inv), reconcile.ErrNotCollectable)
	})

	t.Run("refuses invoice without due date", func(t *testing.T) {
		t.Parallel()
		require.ErrorIs(t, e.MarkUncollectible(openInvoice("75.00")), reconcile.ErrNotCollectable)
	})

	t.Run("refuses settled invoice", func(t *testing.T) {
		t.Parallel()
		inv := pastDue()
		_, err := e.ApplyPayment(inv, succeededPayment("75.00"))
		require.NoError(t, err)
		require.ErrorIs(t, e.MarkUncollectible(inv), reconcile.ErrNotCollectable)
	})
}
