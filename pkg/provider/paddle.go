package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/money"
)

// PaddleConfig holds configuration for the Paddle webhook adapter.
type PaddleConfig struct {
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
}

// Paddle normalizes Paddle webhook events. Signature verification uses the
// official SDK verifier.
type Paddle struct {
	verifier *paddle.WebhookVerifier
}

// NewPaddle creates a Paddle adapter.
func NewPaddle(cfg PaddleConfig) (*Paddle, error) {
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	return &Paddle{
		verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret),
	}, nil
}

// Name implements Provider.
func (p *Paddle) Name() string {
	return "paddle"
}

// VerifySignature implements Provider. Paddle signs every webhook, so a
// missing signature is rejected outright. The SDK verifier works on an HTTP
// request, so one is reconstructed around the stored payload.
func (p *Paddle) VerifySignature(ctx context.Context, payload []byte, signature string) error {
	if signature == "" {
		return fmt.Errorf("%w: missing signature", ErrSignatureInvalid)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building verification request: %w", err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return errors.Join(ErrSignatureInvalid, err)
	}
	if !valid {
		return ErrSignatureInvalid
	}
	return nil
}

// paddleEnvelope is the common shape of every Paddle webhook.
type paddleEnvelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// paddleData covers the fields the engine correlates on across transaction,
// subscription, and adjustment events. Everything else stays in Raw.
type paddleData struct {
	ID             string         `json:"id"`
	Status         string         `json:"status"`
	SubscriptionID string         `json:"subscription_id"`
	InvoiceID      string         `json:"invoice_id"`
	TransactionID  string         `json:"transaction_id"`
	Action         string         `json:"action"`
	CurrencyCode   string         `json:"currency_code"`
	TotalAmount    string         `json:"total_amount"`
	CustomData     map[string]any `json:"custom_data"`
	ScheduledChange *struct {
		Action string `json:"action"`
	} `json:"scheduled_change"`
	Items []struct {
		Price struct {
			ID string `json:"id"`
		} `json:"price"`
	} `json:"items"`
	Details struct {
		Totals struct {
			GrandTotal string `json:"grand_total"`
		} `json:"totals"`
	} `json:"details"`
}

// ParseEvent implements Provider.
func (p *Paddle) ParseEvent(ctx context.Context, payload []byte) (*Event, error) {
	var env paddleEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, errors.Join(ErrMalformedEvent, err)
	}
	if env.EventID == "" || env.EventType == "" {
		return nil, fmt.Errorf("%w: missing event_id or event_type", ErrMalformedEvent)
	}

	var data paddleData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, errors.Join(ErrMalformedEvent, err)
		}
	}

	ev := &Event{
		Provider:        p.Name(),
		ProviderEventID: env.EventID,
		ProviderType:    env.EventType,
		Action:          mapPaddleEventType(env.EventType, data.Action),
		OccurredAt:      env.OccurredAt,
		Currency:        data.CurrencyCode,
		Raw:             payload,
	}

	// Tenant reference travels in custom data attached at checkout time.
	if raw, ok := data.CustomData["tenant_id"].(string); ok {
		tenantID, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid tenant_id %q", ErrMalformedEvent, raw)
		}
		ev.TenantID = tenantID
	}

	switch {
	case strings.HasPrefix(env.EventType, "subscription."):
		ev.SubscriptionID = data.ID
		if len(data.Items) > 0 {
			ev.PlanCode = data.Items[0].Price.ID
		}
		if data.ScheduledChange != nil && data.ScheduledChange.Action == "cancel" {
			ev.CancelAtPeriodEnd = true
		}
	case strings.HasPrefix(env.EventType, "transaction."):
		ev.PaymentID = data.ID
		ev.SubscriptionID = data.SubscriptionID
		ev.InvoiceID = data.InvoiceID
		if data.Details.Totals.GrandTotal != "" {
			amount, err := minorUnits(data.Details.Totals.GrandTotal)
			if err != nil {
				return nil, err
			}
			ev.Amount = amount
		}
	case strings.HasPrefix(env.EventType, "adjustment."):
		ev.PaymentID = data.TransactionID
		ev.SubscriptionID = data.SubscriptionID
		if data.TotalAmount != "" {
			amount, err := minorUnits(data.TotalAmount)
			if err != nil {
				return nil, err
			}
			ev.Amount = amount
		}
	}

	return ev, nil
}

// minorUnits converts Paddle's minor-unit string amounts ("9999" = 99.99).
func minorUnits(s string) (money.Amount, error) {
	cents, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return money.Zero(), fmt.Errorf("%w: bad amount %q", ErrMalformedEvent, s)
	}
	return money.FromCents(cents), nil
}

// mapPaddleEventType maps Paddle event names onto the engine's action set.
func mapPaddleEventType(eventType, adjustmentAction string) Action {
	switch eventType {
	case "transaction.completed", "transaction.paid":
		return ActionPaymentSucceeded
	case "transaction.payment_failed":
		return ActionPaymentFailed
	case "transaction.billed":
		return ActionInvoiceFinalized
	case "adjustment.created", "adjustment.updated":
		if adjustmentAction == "refund" {
			return ActionRefundIssued
		}
		return ActionUnknown
	case "subscription.created":
		return ActionSubscriptionCreated
	case "subscription.updated":
		return ActionSubscriptionUpdated
	case "subscription.canceled":
		return ActionSubscriptionCancelled
	case "subscription.paused":
		return ActionSubscriptionPaused
	case "subscription.resumed":
		return ActionSubscriptionResumed
	default:
		return ActionUnknown
	}
}

var _ Provider = (*Paddle)(nil)
