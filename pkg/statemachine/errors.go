package statemachine

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is the sentinel all transition failures match via
// errors.Is, so callers can branch without inspecting the concrete error.
var ErrInvalidTransition = errors.New("invalid state transition")

// Reason classifies why a transition was refused.
type Reason string

const (
	ReasonNotPermitted Reason = "not permitted"
	ReasonRejected     Reason = "rejected by guard"
	ReasonTerminal     Reason = "state is terminal"
)

// TransitionError reports a refused transition with enough context to log.
type TransitionError struct {
	From    State
	Trigger Trigger
	Reason  Reason
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %q on trigger %q (%s)", e.From, e.Trigger, e.Reason)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
