package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/ledger"
	"github.com/dmitrymomot/billingkit/pkg/statemachine"
)

// Trigger identifies a lifecycle-changing occurrence.
type Trigger string

const (
	// TriggerPaymentSucceeded fires when a payment settles: activates
	// incomplete/trialing subscriptions and recovers past_due ones.
	TriggerPaymentSucceeded Trigger = "payment_succeeded"
	// TriggerPaymentFailed fires when a recurring payment fails.
	TriggerPaymentFailed Trigger = "payment_failed"
	// TriggerTrialElapsed fires when the trial window ends without a
	// confirmed payment method. The target state is policy-configurable.
	TriggerTrialElapsed Trigger = "trial_elapsed"
	// TriggerPeriodRollover fires at the billing period boundary. With
	// cancel_at_period_end set it cancels, otherwise the status is unchanged
	// and the caller advances the period window.
	TriggerPeriodRollover Trigger = "period_rollover"
	// TriggerCancelImmediate cancels right now from any non-terminal state.
	TriggerCancelImmediate Trigger = "cancel_immediate"
	TriggerPause           Trigger = "pause"
	TriggerResume          Trigger = "resume"
)

// Machine computes legal subscription status transitions. Pure logic: it
// mutates only the subscription passed in, never storage.
type Machine struct {
	sm  *statemachine.Machine
	now func() time.Time
}

// Option configures the machine.
type Option func(*config)

type config struct {
	trialElapsedTarget ledger.SubscriptionStatus
	now                func() time.Time
}

// WithTrialElapsedTarget sets where a subscription lands when its trial ends
// without payment-method confirmation. Allowed: incomplete (default) or
// past_due. Panics on anything else to catch misconfiguration at startup.
func WithTrialElapsedTarget(target ledger.SubscriptionStatus) Option {
	return func(c *config) {
		switch target {
		case ledger.SubscriptionIncomplete, ledger.SubscriptionPastDue:
			c.trialElapsedTarget = target
		default:
			panic(fmt.Errorf("lifecycle: invalid trial-elapsed target %q", target))
		}
	}
}

// WithClock overrides the timestamp source for cancelled_at stamping.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// New builds the transition table.
func New(opts ...Option) *Machine {
	cfg := &config{
		trialElapsedTarget: ledger.SubscriptionIncomplete,
		now:                func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(cfg)
	}

	m := &Machine{now: cfg.now}

	stampCancelled := statemachine.WithAction(
		func(ctx context.Context, from, to statemachine.State, trigger statemachine.Trigger, data any) error {
			sub := data.(*ledger.Subscription)
			now := m.now()
			sub.CancelledAt = &now
			return nil
		})

	cancelFlagSet := statemachine.WithGuard(
		func(ctx context.Context, from statemachine.State, trigger statemachine.Trigger, data any) bool {
			return data.(*ledger.Subscription).CancelAtPeriodEnd
		})
	cancelFlagClear := statemachine.WithGuard(
		func(ctx context.Context, from statemachine.State, trigger statemachine.Trigger, data any) bool {
			return !data.(*ledger.Subscription).CancelAtPeriodEnd
		})

	sm := statemachine.New()
	sm.MarkTerminal(state(ledger.SubscriptionCancelled))

	// Payment settled: first invoice activates, recovery from past_due
	// re-activates, and a recurring payment on an active subscription is a
	// legal no-change (the caller advances the period window).
	sm.Permit(state(ledger.SubscriptionIncomplete), trig(TriggerPaymentSucceeded), state(ledger.SubscriptionActive))
	sm.Permit(state(ledger.SubscriptionTrialing), trig(TriggerPaymentSucceeded), state(ledger.SubscriptionActive))
	sm.Permit(state(ledger.SubscriptionPastDue), trig(TriggerPaymentSucceeded), state(ledger.SubscriptionActive))
	sm.Permit(state(ledger.SubscriptionActive), trig(TriggerPaymentSucceeded), state(ledger.SubscriptionActive))

	// Failed recurring payment. past_due self-loop keeps repeated dunning
	// attempts legal without changing state.
	sm.Permit(state(ledger.SubscriptionActive), trig(TriggerPaymentFailed), state(ledger.SubscriptionPastDue))
	sm.Permit(state(ledger.SubscriptionPastDue), trig(TriggerPaymentFailed), state(ledger.SubscriptionPastDue))

	sm.Permit(state(ledger.SubscriptionTrialing), trig(TriggerTrialElapsed), state(cfg.trialElapsedTarget))

	// Period boundary: the cancel flag decides between deferred cancellation
	// and a plain rollover that leaves the status alone.
	sm.Permit(state(ledger.SubscriptionActive), trig(TriggerPeriodRollover), state(ledger.SubscriptionCancelled), cancelFlagSet, stampCancelled)
	sm.Permit(state(ledger.SubscriptionPastDue), trig(TriggerPeriodRollover), state(ledger.SubscriptionCancelled), cancelFlagSet, stampCancelled)
	sm.Permit(state(ledger.SubscriptionActive), trig(TriggerPeriodRollover), state(ledger.SubscriptionActive), cancelFlagClear)
	sm.Permit(state(ledger.SubscriptionPastDue), trig(TriggerPeriodRollover), state(ledger.SubscriptionPastDue), cancelFlagClear)
	sm.Permit(state(ledger.SubscriptionTrialing), trig(TriggerPeriodRollover), state(ledger.SubscriptionTrialing), cancelFlagClear)

	// Immediate cancel from every non-terminal state.
	for _, from := range []ledger.SubscriptionStatus{
		ledger.SubscriptionIncomplete,
		ledger.SubscriptionTrialing,
		ledger.SubscriptionActive,
		ledger.SubscriptionPastDue,
		ledger.SubscriptionPaused,
	} {
		sm.Permit(state(from), trig(TriggerCancelImmediate), state(ledger.SubscriptionCancelled), stampCancelled)
	}

	sm.Permit(state(ledger.SubscriptionActive), trig(TriggerPause), state(ledger.SubscriptionPaused))
	sm.Permit(state(ledger.SubscriptionPaused), trig(TriggerResume), state(ledger.SubscriptionActive))

	m.sm = sm
	return m
}

// Apply fires a trigger against the subscription's current status and, when
// legal, assigns the new status. The subscription is untouched on error.
func (m *Machine) Apply(ctx context.Context, sub *ledger.Subscription, trigger Trigger) error {
	next, err := m.sm.Fire(ctx, state(sub.Status), trig(trigger), sub)
	if err != nil {
		return err
	}
	sub.Status = ledger.SubscriptionStatus(next)
	return nil
}

// CanApply reports whether a trigger would be legal without applying it.
func (m *Machine) CanApply(ctx context.Context, sub *ledger.Subscription, trigger Trigger) bool {
	return m.sm.CanFire(ctx, state(sub.Status), trig(trigger), sub)
}

// InitialStatus returns the status a new subscription starts in:
// trialing when the plan configures a trial window, incomplete otherwise.
func InitialStatus(plan *ledger.Plan) ledger.SubscriptionStatus {
	if plan != nil && plan.HasTrial() {
		return ledger.SubscriptionTrialing
	}
	return ledger.SubscriptionIncomplete
}

// RequestCancelAtPeriodEnd flags a subscription for cancellation at the next
// period boundary. Not a status transition: the status stays as is until the
// rollover trigger fires.
func RequestCancelAtPeriodEnd(sub *ledger.Subscription) error {
	if sub.IsCancelled() {
		return &statemachine.TransitionError{
			From:    state(sub.Status),
			Trigger: trig(TriggerPeriodRollover),
			Reason:  statemachine.ReasonTerminal,
		}
	}
	sub.CancelAtPeriodEnd = true
	return nil
}

func state(s ledger.SubscriptionStatus) statemachine.State {
	return statemachine.State(s)
}

func trig(t Trigger) statemachine.Trigger {
	return statemachine.Trigger(t)
}
