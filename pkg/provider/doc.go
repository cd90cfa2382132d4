// Package provider normalizes payment-provider webhook payloads into typed
// billing events.
//
// Each Provider implementation verifies the webhook signature with the
// official SDK and maps provider-specific event names onto the engine's
// action set. Event types the adapter does not recognize come back as
// ActionUnknown rather than an error, so new provider events flow through
// the pipeline without breaking it.
package provider
