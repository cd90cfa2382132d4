package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/ledger"
	"github.com/dmitrymomot/billingkit/pkg/lifecycle"
	"github.com/dmitrymomot/billingkit/pkg/notifier"
	"github.com/dmitrymomot/billingkit/pkg/provider"
	"github.com/dmitrymomot/billingkit/pkg/usage"
)

func (p *Processor) applyPaymentSucceeded(ctx context.Context, tx ledger.Tx, ev *provider.Event) (*notifier.Notification, error) {
	sub, err := tx.SubscriptionByProviderID(ctx, ev.SubscriptionID)
	if err != nil {
		return nil, err
	}

	pmt, err := tx.PaymentByProviderID(ctx, ev.PaymentID)
	switch {
	case errors.Is(err, ledger.ErrPaymentNotFound):
		pmt = &ledger.Payment{
			ID:                uuid.New(),
			TenantID:          ev.TenantID,
			SubscriptionID:    &sub.ID,
			ProviderPaymentID: ev.PaymentID,
			Amount:            ev.Amount,
			Currency:          ev.Currency,
			Status:            ledger.PaymentSucceeded,
		}
	case err != nil:
		return nil, err
	default:
		if pmt.Status == ledger.PaymentSucceeded && pmt.InvoiceID != nil {
			// Already applied in a previous unit of work; a distinct event
			// referencing the same settled transaction is a no-op.
			return nil, nil
		}
		pmt.Status = ledger.PaymentSucceeded
		if !ev.Amount.IsZero() {
			pmt.Amount = ev.Amount
		}
	}

	inv, err := p.targetInvoice(ctx, tx, ev, sub.ID)
	if err != nil {
		return nil, err
	}

	credit, err := p.reconciler.ApplyPayment(inv, pmt)
	if err != nil {
		return nil, err
	}

	if err := tx.SaveInvoice(ctx, inv); err != nil {
		return nil, err
	}
	if err := tx.SavePayment(ctx, pmt); err != nil {
		return nil, err
	}

	recurring := sub.Status == ledger.SubscriptionActive || sub.Status == ledger.SubscriptionPastDue
	if err := p.lifecycle.Apply(ctx, sub, lifecycle.TriggerPaymentSucceeded); err != nil {
		return nil, err
	}
	if recurring {
		plan, err := tx.Plan(ctx, sub.PlanID)
		if err != nil {
			return nil, err
		}
		sub.AdvancePeriod(plan.NextPeriodEnd(sub.CurrentPeriodEnd))
	}
	if err := tx.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}

	body := fmt.Sprintf("Payment of %s %s applied, invoice %s is %s.",
		pmt.Amount, pmt.Currency, inv.ID, inv.Status)
	if !credit.IsZero() {
		body += fmt.Sprintf(" Credit of %s carried over.", credit)
	}
	return &notifier.Notification{
		TenantID: ev.TenantID,
		Channel:  notifier.ChannelEmail,
		Subject:  "Payment received",
		Body:     body,
	}, nil
}

// targetInvoice resolves the invoice a payment applies to: the provider's
// invoice reference when the event carries one, otherwise the subscription's
// oldest open invoice.
func (p *Processor) targetInvoice(ctx context.Context, tx ledger.Tx, ev *provider.Event, subID uuid.UUID) (*ledger.Invoice, error) {
	if ev.InvoiceID != "" {
		return tx.InvoiceByProviderID(ctx, ev.InvoiceID)
	}
	return tx.OpenInvoice(ctx, subID)
}

func (p *Processor) applyPaymentFailed(ctx context.Context, tx ledger.Tx, ev *provider.Event) (*notifier.Notification, error) {
	sub, err := tx.SubscriptionByProviderID(ctx, ev.SubscriptionID)
	if err != nil {
		return nil, err
	}

	if ev.PaymentID != "" {
		pmt, err := tx.PaymentByProviderID(ctx, ev.PaymentID)
		if errors.Is(err, ledger.ErrPaymentNotFound) {
			pmt = &ledger.Payment{
				ID:                uuid.New(),
				TenantID:          ev.TenantID,
				SubscriptionID:    &sub.ID,
				ProviderPaymentID: ev.PaymentID,
				Amount:            ev.Amount,
				Currency:          ev.Currency,
			}
		} else if err != nil {
			return nil, err
		}
		pmt.Status = ledger.PaymentFailed
		pmt.FailureReason = ev.ProviderType
		if err := tx.SavePayment(ctx, pmt); err != nil {
			return nil, err
		}
	}

	if err := p.lifecycle.Apply(ctx, sub, lifecycle.TriggerPaymentFailed); err != nil {
		return nil, err
	}
	if err := tx.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}

	return &notifier.Notification{
		TenantID: ev.TenantID,
		Channel:  notifier.ChannelEmail,
		Subject:  "Payment failed",
		Body:     "A recurring payment failed and the subscription is past due. Please update the payment method.",
	}, nil
}

func (p *Processor) applyRefund(ctx context.Context, tx ledger.Tx, ev *provider.Event) (*notifier.Notification, error) {
	pmt, err := tx.PaymentByProviderID(ctx, ev.PaymentID)
	if err != nil {
		return nil, err
	}
	if pmt.InvoiceID == nil {
		return nil, fmt.Errorf("payment %s: %w", pmt.ID, ledger.ErrInvoiceNotFound)
	}
	inv, err := tx.Invoice(ctx, *pmt.InvoiceID)
	if err != nil {
		return nil, err
	}

	if err := p.reconciler.ApplyRefund(inv, pmt, ev.Amount); err != nil {
		return nil, err
	}
	if err := tx.SaveInvoice(ctx, inv); err != nil {
		return nil, err
	}
	if err := tx.SavePayment(ctx, pmt); err != nil {
		return nil, err
	}

	return &notifier.Notification{
		TenantID: ev.TenantID,
		Channel:  notifier.ChannelEmail,
		Subject:  "Refund issued",
		Body: fmt.Sprintf("Refund of %s %s applied to invoice %s, which is now %s.",
			ev.Amount, pmt.Currency, inv.ID, inv.Status),
	}, nil
}

func (p *Processor) applySubscriptionCreated(ctx context.Context, tx ledger.Tx, ev *provider.Event) (*notifier.Notification, error) {
	if _, err := tx.SubscriptionByProviderID(ctx, ev.SubscriptionID); err == nil {
		return nil, nil // already provisioned, distinct-event replay
	} else if !errors.Is(err, ledger.ErrSubscriptionNotFound) {
		return nil, err
	}

	plan, err := tx.PlanByCode(ctx, ev.PlanCode)
	if err != nil {
		return nil, err
	}

	now := p.now()
	sub := &ledger.Subscription{
		ID:                 uuid.New(),
		TenantID:           ev.TenantID,
		PlanID:             plan.ID,
		Status:             lifecycle.InitialStatus(plan),
		ProviderSubID:      ev.SubscriptionID,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   plan.NextPeriodEnd(now),
	}
	if plan.HasTrial() {
		trialEnd := now.AddDate(0, 0, plan.TrialDays)
		sub.TrialStart = &now
		sub.TrialEnd = &trialEnd
	}
	if err := tx.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}

	return &notifier.Notification{
		TenantID: ev.TenantID,
		Channel:  notifier.ChannelEmail,
		Subject:  "Subscription created",
		Body:     fmt.Sprintf("Subscribed to %s, current period ends %s.", plan.Name, sub.CurrentPeriodEnd.Format("2006-01-02")),
	}, nil
}

func (p *Processor) applySubscriptionUpdated(ctx context.Context, tx ledger.Tx, ev *provider.Event) (*notifier.Notification, error) {
	sub, err := tx.SubscriptionByProviderID(ctx, ev.SubscriptionID)
	if err != nil {
		return nil, err
	}

	if ev.PlanCode != "" {
		plan, err := tx.PlanByCode(ctx, ev.PlanCode)
		if err != nil {
			return nil, err
		}
		sub.PlanID = plan.ID
	}
	if ev.CancelAtPeriodEnd && !sub.CancelAtPeriodEnd {
		if err := lifecycle.RequestCancelAtPeriodEnd(sub); err != nil {
			return nil, err
		}
	}
	if err := tx.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}
	if ev.CancelAtPeriodEnd {
		return &notifier.Notification{
			TenantID: ev.TenantID,
			Channel:  notifier.ChannelEmail,
			Subject:  "Cancellation scheduled",
			Body:     fmt.Sprintf("The subscription will cancel at the end of the current period, %s.", sub.CurrentPeriodEnd.Format("2006-01-02")),
		}, nil
	}
	return nil, nil
}

func (p *Processor) applySubscriptionCancelled(ctx context.Context, tx ledger.Tx, ev *provider.Event) (*notifier.Notification, error) {
	sub, err := tx.SubscriptionByProviderID(ctx, ev.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.IsCancelled() {
		return nil, nil
	}

	if err := p.lifecycle.Apply(ctx, sub, lifecycle.TriggerCancelImmediate); err != nil {
		return nil, err
	}
	if err := tx.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}

	return &notifier.Notification{
		TenantID: ev.TenantID,
		Channel:  notifier.ChannelEmail,
		Subject:  "Subscription cancelled",
		Body:     "The subscription has been cancelled.",
	}, nil
}

func (p *Processor) applyLifecycleTrigger(ctx context.Context, tx ledger.Tx, ev *provider.Event, trigger lifecycle.Trigger, subject string) (*notifier.Notification, error) {
	sub, err := tx.SubscriptionByProviderID(ctx, ev.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if err := p.lifecycle.Apply(ctx, sub, trigger); err != nil {
		return nil, err
	}
	if err := tx.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return &notifier.Notification{
		TenantID: ev.TenantID,
		Channel:  notifier.ChannelEmail,
		Subject:  subject,
	}, nil
}

func (p *Processor) applyInvoiceFinalized(ctx context.Context, tx ledger.Tx, ev *provider.Event) (*notifier.Notification, error) {
	inv, err := tx.InvoiceByProviderID(ctx, ev.InvoiceID)
	switch {
	case errors.Is(err, ledger.ErrInvoiceNotFound):
		inv = &ledger.Invoice{
			ID:                uuid.New(),
			TenantID:          ev.TenantID,
			ProviderInvoiceID: ev.InvoiceID,
			Status:            ledger.InvoiceOpen,
			AmountDue:         ev.Amount,
			AmountRemaining:   ev.Amount,
			Currency:          ev.Currency,
		}
		if ev.SubscriptionID != "" {
			sub, err := tx.SubscriptionByProviderID(ctx, ev.SubscriptionID)
			if err != nil {
				return nil, err
			}
			inv.SubscriptionID = &sub.ID
		}
	case err != nil:
		return nil, err
	default:
		if inv.Status == ledger.InvoiceDraft {
			inv.Status = ledger.InvoiceOpen
		}
	}

	if err := tx.SaveInvoice(ctx, inv); err != nil {
		return nil, err
	}
	return nil, nil
}

func (p *Processor) applyPeriodRollover(ctx context.Context, tx ledger.Tx, ev *provider.Event) (*notifier.Notification, error) {
	sub, err := tx.SubscriptionByProviderID(ctx, ev.SubscriptionID)
	if err != nil {
		return nil, err
	}
	plan, err := tx.Plan(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	if err := p.lifecycle.Apply(ctx, sub, lifecycle.TriggerPeriodRollover); err != nil {
		return nil, err
	}
	if sub.IsCancelled() {
		if err := tx.SaveSubscription(ctx, sub); err != nil {
			return nil, err
		}
		return &notifier.Notification{
			TenantID: ev.TenantID,
			Channel:  notifier.ChannelEmail,
			Subject:  "Subscription cancelled",
			Body:     "The subscription ended at the close of its billing period.",
		}, nil
	}

	var note *notifier.Notification
	if sub.Status == ledger.SubscriptionActive || sub.Status == ledger.SubscriptionPastDue {
		inv, err := p.aggregator.BillPeriod(ctx, tx, sub, plan, sub.CurrentPeriodStart, sub.CurrentPeriodEnd)
		if err != nil && !errors.Is(err, usage.ErrPeriodAlreadyInvoiced) {
			return nil, err
		}
		if err != nil {
			// A distinct event already billed this window. Advance the
			// period without issuing a second invoice for it.
			p.logger.WarnContext(ctx, "billing period already invoiced",
				slog.String("subscription_id", sub.ID.String()))
		} else {
			note = &notifier.Notification{
				TenantID: ev.TenantID,
				Channel:  notifier.ChannelEmail,
				Subject:  "Invoice issued",
				Body: fmt.Sprintf("Invoice %s for %s %s is due %s.",
					inv.ID, inv.AmountDue, inv.Currency, inv.DueDate.Format("2006-01-02")),
			}
		}
	}

	sub.AdvancePeriod(plan.NextPeriodEnd(sub.CurrentPeriodEnd))
	if err := tx.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return note, nil
}

func (p *Processor) applyTrialElapsed(ctx context.Context, tx ledger.Tx, ev *provider.Event) (*notifier.Notification, error) {
	sub, err := tx.SubscriptionByProviderID(ctx, ev.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != ledger.SubscriptionTrialing {
		// A payment settled or the subscription was cancelled between the
		// trial-end scan and this event landing.
		return nil, nil
	}

	if err := p.lifecycle.Apply(ctx, sub, lifecycle.TriggerTrialElapsed); err != nil {
		return nil, err
	}
	if err := tx.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}

	return &notifier.Notification{
		TenantID: ev.TenantID,
		Channel:  notifier.ChannelEmail,
		Subject:  "Trial ended",
		Body:     "The trial period has ended. Add a payment method to keep the subscription.",
	}, nil
}

func (p *Processor) applyDunningExhausted(ctx context.Context, tx ledger.Tx, ev *provider.Event) (*notifier.Notification, error) {
	sub, err := tx.SubscriptionByProviderID(ctx, ev.SubscriptionID)
	if err != nil {
		return nil, err
	}

	inv, err := tx.OpenInvoice(ctx, sub.ID)
	if errors.Is(err, ledger.ErrInvoiceNotFound) {
		return nil, nil // a late payment settled the balance
	}
	if err != nil {
		return nil, err
	}

	if err := p.reconciler.MarkUncollectible(inv); err != nil {
		return nil, err
	}
	if err := tx.SaveInvoice(ctx, inv); err != nil {
		return nil, err
	}

	return &notifier.Notification{
		TenantID: ev.TenantID,
		Channel:  notifier.ChannelEmail,
		Subject:  "Invoice written off",
		Body: fmt.Sprintf("Collection on invoice %s stopped after repeated failed payment attempts. %s %s remains unpaid.",
			inv.ID, inv.AmountRemaining, inv.Currency),
	}, nil
}

func (p *Processor) applyUsageRecorded(ctx context.Context, tx ledger.Tx, ev *provider.Event) (*notifier.Notification, error) {
	if ev.Quantity <= 0 {
		return nil, fmt.Errorf("usage quantity must be positive, got %d", ev.Quantity)
	}
	sub, err := tx.SubscriptionByProviderID(ctx, ev.SubscriptionID)
	if err != nil {
		return nil, err
	}

	recordedAt := ev.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = ev.OccurredAt
	}
	rec := &ledger.UsageRecord{
		ID:             uuid.New(),
		TenantID:       ev.TenantID,
		SubscriptionID: &sub.ID,
		MetricName:     ev.MetricName,
		Quantity:       ev.Quantity,
		RecordedAt:     recordedAt,
	}
	if err := tx.AppendUsage(ctx, rec); err != nil {
		return nil, err
	}
	return nil, nil
}
