package reconcile

import "errors"

var (
	// ErrOverpaymentRejected refuses a payment that exceeds the invoice's
	// remaining balance while the overpayment policy is disabled.
	ErrOverpaymentRejected = errors.New("payment exceeds invoice remaining balance")

	// ErrInvoiceNotOpen refuses operations on settled invoices.
	ErrInvoiceNotOpen = errors.New("invoice is not open for payment")

	// ErrPaymentNotSucceeded refuses applying a payment that has not settled.
	ErrPaymentNotSucceeded = errors.New("payment has not succeeded")

	// ErrInvalidRefund refuses refunds that are non-positive or exceed the
	// refundable remainder of the originating payment.
	ErrInvalidRefund = errors.New("invalid refund amount")

	// ErrInvoiceVoided refuses refunds against a voided invoice. The refund
	// may still be legitimate on the provider side, but its effect must not
	// land on an invoice that was taken out of circulation.
	ErrInvoiceVoided = errors.New("invoice is voided")

	// ErrCannotVoidPaid refuses voiding a paid invoice.
	ErrCannotVoidPaid = errors.New("paid invoice cannot be voided")

	// ErrNotCollectable refuses the uncollectible transition for invoices
	// that are not open, not past due, or carry no remaining balance.
	ErrNotCollectable = errors.New("invoice is not eligible for uncollectible")
)
