// Package statemachine provides a small finite state machine for entities
// whose state lives in a store rather than in memory.
//
// The machine itself is stateless: it holds a transition table and answers
// "given this current state and this trigger, what is the next state".
// Callers load the entity, fire the trigger, and persist the result inside
// their own unit of work.
//
// # Usage
//
//	m := statemachine.New()
//	m.Permit("active", "payment_failed", "past_due")
//	m.Permit("past_due", "payment_succeeded", "active")
//
//	next, err := m.Fire(ctx, "active", "payment_failed", sub)
//	if err != nil {
//		// transition not allowed from the current state
//	}
//
// Guards veto a transition based on runtime data; actions run after the
// target state is resolved and may mutate the data payload. An action error
// aborts the transition.
package statemachine
