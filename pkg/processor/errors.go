package processor

import "errors"

var (
	// ErrUnknownProvider indicates no adapter is registered under the
	// requested provider name.
	ErrUnknownProvider = errors.New("processor: unknown provider")

	// ErrNoTenantReference indicates the event cannot be routed to a tenant
	// unit of work because the payload carries no tenant identifier.
	ErrNoTenantReference = errors.New("processor: event carries no tenant reference")
)
