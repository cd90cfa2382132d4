package provider_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/provider"
)

func TestNewInternal(t *testing.T) {
	t.Parallel()

	t.Run("requires signing secret", func(t *testing.T) {
		t.Parallel()

		_, err := provider.NewInternal(provider.InternalConfig{})
		require.ErrorIs(t, err, provider.ErrMissingWebhookSecret)
	})

	t.Run("creates adapter", func(t *testing.T) {
		t.Parallel()

		p, err := provider.NewInternal(provider.InternalConfig{SigningSecret: "hush"})
		require.NoError(t, err)
		assert.Equal(t, "internal", p.Name())
	})
}

func TestInternalVerifySignature(t *testing.T) {
	t.Parallel()

	p, err := provider.NewInternal(provider.InternalConfig{SigningSecret: "hush"})
	require.NoError(t, err)
	ctx := context.Background()
	payload := []byte(`{"event_id":"evt_1"}`)

	t.Run("roundtrip", func(t *testing.T) {
		t.Parallel()

		require.NoError(t, p.VerifySignature(ctx, payload, p.Sign(payload)))
	})

	t.Run("tampered payload", func(t *testing.T) {
		t.Parallel()

		sig := p.Sign(payload)
		err := p.VerifySignature(ctx, []byte(`{"event_id":"evt_2"}`), sig)
		require.ErrorIs(t, err, provider.ErrSignatureInvalid)
	})

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()

		other, err := provider.NewInternal(provider.InternalConfig{SigningSecret: "different"})
		require.NoError(t, err)
		require.ErrorIs(t, p.VerifySignature(ctx, payload, other.Sign(payload)), provider.ErrSignatureInvalid)
	})

	t.Run("missing signature", func(t *testing.T) {
		t.Parallel()

		require.ErrorIs(t, p.VerifySignature(ctx, payload, ""), provider.ErrSignatureInvalid)
	})

	t.Run("not hex", func(t *testing.T) {
		t.Parallel()

		require.ErrorIs(t, p.VerifySignature(ctx, payload, "zz"), provider.ErrSignatureInvalid)
	})
}

func TestInternalParseEvent(t *testing.T) {
	t.Parallel()

	p, err := provider.NewInternal(provider.InternalConfig{SigningSecret: "hush"})
	require.NoError(t, err)
	ctx := context.Background()
	tenantID := uuid.New()
	at := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	t.Run("built events parse back", func(t *testing.T) {
		t.Parallel()

		cases := []struct {
			build  func() (string, []byte, error)
			action provider.Action
		}{
			{func() (string, []byte, error) { return provider.RolloverEvent(tenantID, "sub_1", at) }, provider.ActionPeriodRollover},
			{func() (string, []byte, error) { return provider.TrialElapsedEvent(tenantID, "sub_1", at) }, provider.ActionTrialElapsed},
			{func() (string, []byte, error) { return provider.DunningExhaustedEvent(tenantID, "sub_1", at) }, provider.ActionDunningExhausted},
		}
		for _, tc := range cases {
			id, payload, err := tc.build()
			require.NoError(t, err)

			ev, err := p.ParseEvent(ctx, payload)
			require.NoError(t, err)
			assert.Equal(t, "internal", ev.Provider)
			assert.Equal(t, id, ev.ProviderEventID)
			assert.Equal(t, tc.action, ev.Action)
			assert.Equal(t, tenantID, ev.TenantID)
			assert.Equal(t, "sub_1", ev.SubscriptionID)
			assert.Equal(t, at, ev.OccurredAt)
		}
	})

	t.Run("identifiers are deterministic", func(t *testing.T) {
		t.Parallel()

		id1, _, err := provider.RolloverEvent(tenantID, "sub_1", at)
		require.NoError(t, err)
		id2, _, err := provider.RolloverEvent(uuid.New(), "sub_1", at)
		require.NoError(t, err)
		assert.Equal(t, id1, id2, "identifier depends on subscription and deadline only")

		id3, _, err := provider.RolloverEvent(tenantID, "sub_1", at.AddDate(0, 1, 0))
		require.NoError(t, err)
		assert.NotEqual(t, id1, id3, "a later window is a distinct event")
	})

	t.Run("usage event", func(t *testing.T) {
		t.Parallel()

		payload := []byte(`{
			"event_id": "usage:sub_1:1751328000",
			"event_type": "usage.recorded",
			"occurred_at": "2026-07-01T00:00:00Z",
			"tenant_id": "` + tenantID.String() + `",
			"subscription_id": "sub_1",
			"metric_name": "api_calls",
			"quantity": 25,
			"recorded_at": "2026-06-30T23:59:00Z"
		}`)

		ev, err := p.ParseEvent(ctx, payload)
		require.NoError(t, err)
		assert.Equal(t, provider.ActionUsageRecorded, ev.Action)
		assert.Equal(t, "api_calls", ev.MetricName)
		assert.Equal(t, int64(25), ev.Quantity)
		assert.Equal(t, time.Date(2026, 6, 30, 23, 59, 0, 0, time.UTC), ev.RecordedAt)
	})

	t.Run("missing identifiers", func(t *testing.T) {
		t.Parallel()

		_, err := p.ParseEvent(ctx, []byte(`{"event_type":"period.rollover"}`))
		require.ErrorIs(t, err, provider.ErrMalformedEvent)
	})

	t.Run("invalid tenant id", func(t *testing.T) {
		t.Parallel()

		_, err := p.ParseEvent(ctx, []byte(`{"event_id":"e1","event_type":"period.rollover","tenant_id":"nope"}`))
		require.ErrorIs(t, err, provider.ErrMalformedEvent)
	})

	t.Run("unknown event type", func(t *testing.T) {
		t.Parallel()

		ev, err := p.ParseEvent(ctx, []byte(`{"event_id":"e1","event_type":"mystery","tenant_id":"`+tenantID.String()+`"}`))
		require.NoError(t, err)
		assert.Equal(t, provider.ActionUnknown, ev.Action)
	})
}
