package provider

import "errors"

var (
	// ErrMalformedEvent signals a payload that cannot be decoded. Such
	// events are stored with the error detail and held for manual review,
	// never retried automatically.
	ErrMalformedEvent = errors.New("malformed provider event")

	// ErrSignatureInvalid signals a failed webhook signature check.
	ErrSignatureInvalid = errors.New("webhook signature verification failed")

	ErrMissingWebhookSecret = errors.New("webhook secret is required")
)
