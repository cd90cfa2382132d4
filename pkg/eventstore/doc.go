// Package eventstore is the durable, deduplicated record of inbound
// payment-provider events.
//
// The provider-assigned event identifier is the idempotency key for the whole
// billing pipeline: Append refuses a second insert of the same identifier
// with ErrDuplicateEvent, and under concurrent delivery exactly one caller
// wins the insert. Everything downstream relies on that single guarantee.
//
// Events are append-only audit records. Processing state (processed flag,
// retry count, last error) is the only thing that changes after insert; the
// payload never does.
package eventstore
