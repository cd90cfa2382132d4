package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InternalConfig holds configuration for the internal event adapter.
type InternalConfig struct {
	SigningSecret string `env:"INTERNAL_EVENT_SECRET,required"`
}

// Internal carries engine-originated billing signals: period rollovers and
// trial expirations emitted by the clock-driven scheduler, dunning
// exhaustion, and metered-usage reports. Payloads are signed with
// HMAC-SHA256 so the ingestion endpoint can accept them from trusted
// internal callers; the scheduler appends directly to the event store and
// never passes through signature verification.
type Internal struct {
	secret []byte
}

// NewInternal creates the internal adapter.
func NewInternal(cfg InternalConfig) (*Internal, error) {
	if cfg.SigningSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	return &Internal{secret: []byte(cfg.SigningSecret)}, nil
}

// Name implements Provider.
func (p *Internal) Name() string {
	return "internal"
}

// Sign computes the hex HMAC-SHA256 signature internal callers attach when
// submitting events over HTTP.
func (p *Internal) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature implements Provider.
func (p *Internal) VerifySignature(ctx context.Context, payload []byte, signature string) error {
	if signature == "" {
		return fmt.Errorf("%w: missing signature", ErrSignatureInvalid)
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return errors.Join(ErrSignatureInvalid, err)
	}
	mac := hmac.New(sha256.New, p.secret)
	mac.Write(payload)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrSignatureInvalid
	}
	return nil
}

// internalEnvelope is the wire shape of every internal event.
type internalEnvelope struct {
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	OccurredAt     time.Time `json:"occurred_at"`
	TenantID       string    `json:"tenant_id"`
	SubscriptionID string    `json:"subscription_id"`
	MetricName     string    `json:"metric_name,omitempty"`
	Quantity       int64     `json:"quantity,omitempty"`
	RecordedAt     time.Time `json:"recorded_at,omitzero"`
}

// ParseEvent implements Provider.
func (p *Internal) ParseEvent(ctx context.Context, payload []byte) (*Event, error) {
	var env internalEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, errors.Join(ErrMalformedEvent, err)
	}
	if env.EventID == "" || env.EventType == "" {
		return nil, fmt.Errorf("%w: missing event_id or event_type", ErrMalformedEvent)
	}
	tenantID, err := uuid.Parse(env.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant_id %q", ErrMalformedEvent, env.TenantID)
	}

	return &Event{
		Provider:        p.Name(),
		ProviderEventID: env.EventID,
		ProviderType:    env.EventType,
		Action:          mapInternalEventType(env.EventType),
		OccurredAt:      env.OccurredAt,
		TenantID:        tenantID,
		SubscriptionID:  env.SubscriptionID,
		MetricName:      env.MetricName,
		Quantity:        env.Quantity,
		RecordedAt:      env.RecordedAt,
		Raw:             payload,
	}, nil
}

func mapInternalEventType(eventType string) Action {
	switch eventType {
	case "period.rollover":
		return ActionPeriodRollover
	case "trial.elapsed":
		return ActionTrialElapsed
	case "dunning.exhausted":
		return ActionDunningExhausted
	case "usage.recorded":
		return ActionUsageRecorded
	default:
		return ActionUnknown
	}
}

// Deterministic event identifiers make emission idempotent: re-scanning the
// same elapsed window produces the same ID and deduplicates at the event
// store's append.

// RolloverEvent builds the canonical rollover event for a billing window
// that closed at periodEnd.
func RolloverEvent(tenantID uuid.UUID, providerSubID string, periodEnd time.Time) (id string, payload []byte, err error) {
	return internalEvent("period.rollover", tenantID, providerSubID, periodEnd)
}

// TrialElapsedEvent builds the canonical trial-expiration event.
func TrialElapsedEvent(tenantID uuid.UUID, providerSubID string, trialEnd time.Time) (id string, payload []byte, err error) {
	return internalEvent("trial.elapsed", tenantID, providerSubID, trialEnd)
}

// DunningExhaustedEvent builds the canonical collection-exhausted event for
// an invoice that was due at dueAt.
func DunningExhaustedEvent(tenantID uuid.UUID, providerSubID string, dueAt time.Time) (id string, payload []byte, err error) {
	return internalEvent("dunning.exhausted", tenantID, providerSubID, dueAt)
}

func internalEvent(eventType string, tenantID uuid.UUID, providerSubID string, at time.Time) (string, []byte, error) {
	at = at.UTC()
	id := fmt.Sprintf("%s:%s:%d", eventType, providerSubID, at.Unix())
	payload, err := json.Marshal(internalEnvelope{
		EventID:        id,
		EventType:      eventType,
		OccurredAt:     at,
		TenantID:       tenantID.String(),
		SubscriptionID: providerSubID,
	})
	if err != nil {
		return "", nil, err
	}
	return id, payload, nil
}

var _ Provider = (*Internal)(nil)
