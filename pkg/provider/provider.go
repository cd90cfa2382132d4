package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/money"
)

// Action is the normalized billing meaning of a provider event.
type Action string

const (
	ActionPaymentSucceeded      Action = "payment_succeeded"
	ActionPaymentFailed         Action = "payment_failed"
	ActionRefundIssued          Action = "refund_issued"
	ActionSubscriptionCreated   Action = "subscription_created"
	ActionSubscriptionUpdated   Action = "subscription_updated"
	ActionSubscriptionCancelled Action = "subscription_cancelled"
	ActionSubscriptionPaused    Action = "subscription_paused"
	ActionSubscriptionResumed   Action = "subscription_resumed"
	ActionInvoiceFinalized      Action = "invoice_finalized"
	ActionPeriodRollover        Action = "period_rollover"
	ActionTrialElapsed          Action = "trial_elapsed"
	ActionDunningExhausted      Action = "dunning_exhausted"
	ActionUsageRecorded         Action = "usage_recorded"

	// ActionUnknown marks event types the adapter has no mapping for.
	// Stored and acknowledged, never dispatched.
	ActionUnknown Action = "unknown"
)

// Event is a provider event normalized for the processor. Correlation fields
// carry provider-side identifiers; the tenant ID comes from custom metadata
// the checkout flow attached on the provider side.
type Event struct {
	Provider        string
	ProviderEventID string // dedup key
	ProviderType    string // original provider event name
	Action          Action
	OccurredAt      time.Time

	TenantID       uuid.UUID
	SubscriptionID string // provider subscription reference
	PaymentID      string // provider transaction reference
	InvoiceID      string // provider invoice reference
	PlanCode       string

	Amount   money.Amount // payment or refund amount, zero when absent
	Currency string

	// CancelAtPeriodEnd is set when the provider reports a scheduled
	// cancellation rather than an immediate one.
	CancelAtPeriodEnd bool

	// Usage fields, populated only for usage_recorded events.
	MetricName string
	Quantity   int64
	RecordedAt time.Time

	Raw json.RawMessage
}

// Provider verifies and parses webhooks from one payment provider.
type Provider interface {
	// Name identifies the provider, e.g. "paddle".
	Name() string

	// VerifySignature checks the webhook signature against the raw payload.
	// Returns ErrSignatureInvalid on mismatch. Called on every ingestion, an
	// absent header included: adapters for providers that sign their
	// webhooks must reject an empty signature rather than skip the check.
	VerifySignature(ctx context.Context, payload []byte, signature string) error

	// ParseEvent normalizes a raw payload. Returns ErrMalformedEvent when
	// the payload cannot be decoded at all; unrecognized event types parse
	// successfully with ActionUnknown.
	ParseEvent(ctx context.Context, payload []byte) (*Event, error)
}
