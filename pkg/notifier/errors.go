package notifier

import "errors"

var (
	// ErrInvalidConfig indicates a deliverer was constructed with missing or
	// invalid configuration.
	ErrInvalidConfig = errors.New("notifier: invalid config")

	// ErrUnsupportedChannel indicates no deliverer is registered for the
	// notification's channel.
	ErrUnsupportedChannel = errors.New("notifier: unsupported channel")

	// ErrRecipientUnknown indicates the tenant's delivery address could not
	// be resolved.
	ErrRecipientUnknown = errors.New("notifier: recipient unknown")

	// ErrDeliveryFailed indicates the deliverer exhausted its attempts.
	ErrDeliveryFailed = errors.New("notifier: delivery failed")

	// ErrCircuitOpen indicates delivery was skipped because the endpoint's
	// circuit breaker is open.
	ErrCircuitOpen = errors.New("notifier: circuit breaker open")
)
