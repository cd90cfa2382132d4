package provider_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/money"
	"github.com/dmitrymomot/billingkit/pkg/provider"
)

func TestNewPaddle(t *testing.T) {
	t.Parallel()

	t.Run("requires webhook secret", func(t *testing.T) {
		t.Parallel()

		_, err := provider.NewPaddle(provider.PaddleConfig{})
		require.ErrorIs(t, err, provider.ErrMissingWebhookSecret)
	})

	t.Run("creates adapter", func(t *testing.T) {
		t.Parallel()

		p, err := provider.NewPaddle(provider.PaddleConfig{WebhookSecret: "whsec_test"})
		require.NoError(t, err)
		assert.Equal(t, "paddle", p.Name())
	})
}

func TestPaddleVerifySignature(t *testing.T) {
	t.Parallel()

	p, err := provider.NewPaddle(provider.PaddleConfig{WebhookSecret: "whsec_test"})
	require.NoError(t, err)

	err = p.VerifySignature(context.Background(), []byte(`{"event_id":"evt_1"}`), "ts=1;h1=deadbeef")
	require.ErrorIs(t, err, provider.ErrSignatureInvalid)

	// An absent header is as invalid as a wrong one; verification never
	// gets skipped for unsigned deliveries.
	err = p.VerifySignature(context.Background(), []byte(`{"event_id":"evt_1"}`), "")
	require.ErrorIs(t, err, provider.ErrSignatureInvalid)
}

func TestPaddleParseEvent(t *testing.T) {
	t.Parallel()

	p, err := provider.NewPaddle(provider.PaddleConfig{WebhookSecret: "whsec_test"})
	require.NoError(t, err)

	tenantID := uuid.New()

	t.Run("transaction completed", func(t *testing.T) {
		t.Parallel()

		payload := []byte(`{
			"event_id": "evt_01h8x9",
			"event_type": "transaction.completed",
			"occurred_at": "2025-06-01T12:00:00Z",
			"data": {
				"id": "txn_123",
				"status": "completed",
				"subscription_id": "sub_456",
				"invoice_id": "inv_789",
				"currency_code": "USD",
				"custom_data": {"tenant_id": "` + tenantID.String() + `"},
				"details": {"totals": {"grand_total": "2999"}}
			}
		}`)

		ev, err := p.ParseEvent(context.Background(), payload)
		require.NoError(t, err)

		assert.Equal(t, "paddle", ev.Provider)
		assert.Equal(t, "evt_01h8x9", ev.ProviderEventID)
		assert.Equal(t, provider.ActionPaymentSucceeded, ev.Action)
		assert.Equal(t, tenantID, ev.TenantID)
		assert.Equal(t, "txn_123", ev.PaymentID)
		assert.Equal(t, "sub_456", ev.SubscriptionID)
		assert.Equal(t, "inv_789", ev.InvoiceID)
		assert.Equal(t, "USD", ev.Currency)
		assert.True(t, ev.Amount.Equal(money.MustParse("29.99")))
	})

	t.Run("payment failed", func(t *testing.T) {
		t.Parallel()

		payload := []byte(`{
			"event_id": "evt_fail",
			"event_type": "transaction.payment_failed",
			"occurred_at": "2025-06-01T12:00:00Z",
			"data": {"id": "txn_f1", "subscription_id": "sub_456"}
		}`)

		ev, err := p.ParseEvent(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, provider.ActionPaymentFailed, ev.Action)
		assert.Equal(t, "txn_f1", ev.PaymentID)
	})

	t.Run("refund adjustment", func(t *testing.T) {
		t.Parallel()

		payload := []byte(`{
			"event_id": "evt_adj",
			"event_type": "adjustment.created",
			"occurred_at": "2025-06-02T09:00:00Z",
			"data": {
				"id": "adj_1",
				"action": "refund",
				"transaction_id": "txn_123",
				"currency_code": "USD",
				"total_amount": "1000"
			}
		}`)

		ev, err := p.ParseEvent(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, provider.ActionRefundIssued, ev.Action)
		assert.Equal(t, "txn_123", ev.PaymentID)
		assert.True(t, ev.Amount.Equal(money.MustParse("10.00")))
	})

	t.Run("non refund adjustment is unknown", func(t *testing.T) {
		t.Parallel()

		payload := []byte(`{
			"event_id": "evt_adj2",
			"event_type": "adjustment.created",
			"data": {"id": "adj_2", "action": "credit", "transaction_id": "txn_9"}
		}`)

		ev, err := p.ParseEvent(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, provider.ActionUnknown, ev.Action)
	})

	t.Run("subscription lifecycle", func(t *testing.T) {
		t.Parallel()

		cases := map[string]provider.Action{
			"subscription.created":  provider.ActionSubscriptionCreated,
			"subscription.updated":  provider.ActionSubscriptionUpdated,
			"subscription.canceled": provider.ActionSubscriptionCancelled,
			"subscription.paused":   provider.ActionSubscriptionPaused,
			"subscription.resumed":  provider.ActionSubscriptionResumed,
		}
		for eventType, action := range cases {
			payload := []byte(`{
				"event_id": "evt_` + eventType + `",
				"event_type": "` + eventType + `",
				"data": {
					"id": "sub_456",
					"items": [{"price": {"id": "pri_pro_monthly"}}]
				}
			}`)

			ev, err := p.ParseEvent(context.Background(), payload)
			require.NoError(t, err)
			assert.Equal(t, action, ev.Action, eventType)
			assert.Equal(t, "sub_456", ev.SubscriptionID, eventType)
			assert.Equal(t, "pri_pro_monthly", ev.PlanCode, eventType)
		}
	})

	t.Run("scheduled cancellation", func(t *testing.T) {
		t.Parallel()

		payload := []byte(`{
			"event_id": "evt_sched",
			"event_type": "subscription.updated",
			"data": {
				"id": "sub_456",
				"scheduled_change": {"action": "cancel", "effective_at": "2026-07-01T00:00:00Z"}
			}
		}`)

		ev, err := p.ParseEvent(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, provider.ActionSubscriptionUpdated, ev.Action)
		assert.True(t, ev.CancelAtPeriodEnd)

		// Other scheduled changes do not flag a cancellation.
		payload = []byte(`{
			"event_id": "evt_sched2",
			"event_type": "subscription.updated",
			"data": {
				"id": "sub_456",
				"scheduled_change": {"action": "pause"}
			}
		}`)
		ev, err = p.ParseEvent(context.Background(), payload)
		require.NoError(t, err)
		assert.False(t, ev.CancelAtPeriodEnd)
	})

	t.Run("malformed json", func(t *testing.T) {
		t.Parallel()

		_, err := p.ParseEvent(context.Background(), []byte(`{not json`))
		require.ErrorIs(t, err, provider.ErrMalformedEvent)
	})

	t.Run("missing event id", func(t *testing.T) {
		t.Parallel()

		_, err := p.ParseEvent(context.Background(), []byte(`{"event_type":"transaction.completed"}`))
		require.ErrorIs(t, err, provider.ErrMalformedEvent)
	})

	t.Run("invalid tenant id", func(t *testing.T) {
		t.Parallel()

		payload := []byte(`{
			"event_id": "evt_bad",
			"event_type": "transaction.completed",
			"data": {"id": "txn_1", "custom_data": {"tenant_id": "not-a-uuid"}}
		}`)

		_, err := p.ParseEvent(context.Background(), payload)
		require.ErrorIs(t, err, provider.ErrMalformedEvent)
	})

	t.Run("bad amount", func(t *testing.T) {
		t.Parallel()

		payload := []byte(`{
			"event_id": "evt_amt",
			"event_type": "transaction.completed",
			"data": {"id": "txn_1", "details": {"totals": {"grand_total": "oops"}}}
		}`)

		_, err := p.ParseEvent(context.Background(), payload)
		require.ErrorIs(t, err, provider.ErrMalformedEvent)
	})

	t.Run("unknown event type", func(t *testing.T) {
		t.Parallel()

		payload := []byte(`{"event_id": "evt_x", "event_type": "business.updated", "data": {"id": "biz_1"}}`)

		ev, err := p.ParseEvent(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, provider.ActionUnknown, ev.Action)
	})
}
