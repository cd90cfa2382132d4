// Package lifecycle owns subscription status transitions.
//
// The machine is the single authority on which status changes are legal;
// the event processor loads a subscription, applies a trigger, and persists
// the result. Illegal transitions fail with ErrInvalidTransition and leave
// the subscription untouched. Cancelled is terminal: no trigger ever moves
// a subscription out of it.
//
//	m := lifecycle.New()
//	err := m.Apply(ctx, sub, lifecycle.TriggerPaymentSucceeded)
//
// What happens when a trial elapses without a confirmed payment method is a
// policy decision, configurable via WithTrialElapsedTarget.
package lifecycle
