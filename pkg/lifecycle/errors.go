package lifecycle

import "github.com/dmitrymomot/billingkit/pkg/statemachine"

// ErrInvalidTransition matches every refused transition via errors.Is.
var ErrInvalidTransition = statemachine.ErrInvalidTransition
