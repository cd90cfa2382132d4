package notifier_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/notifier"
)

func TestMulti(t *testing.T) {
	t.Parallel()

	t.Run("routes by channel", func(t *testing.T) {
		t.Parallel()

		var delivered []notifier.Channel
		record := func(ch notifier.Channel) notifier.Gateway {
			return notifier.GatewayFunc(func(ctx context.Context, n notifier.Notification) error {
				delivered = append(delivered, ch)
				return nil
			})
		}

		multi := notifier.NewMulti().
			Register(notifier.ChannelEmail, record(notifier.ChannelEmail)).
			Register(notifier.ChannelWebhook, record(notifier.ChannelWebhook))

		require.NoError(t, multi.Notify(context.Background(), notifier.Notification{
			TenantID: uuid.New(),
			Channel:  notifier.ChannelEmail,
			Subject:  "payment received",
		}))
		require.NoError(t, multi.Notify(context.Background(), notifier.Notification{
			TenantID: uuid.New(),
			Channel:  notifier.ChannelWebhook,
			Subject:  "invoice paid",
		}))

		assert.Equal(t, []notifier.Channel{notifier.ChannelEmail, notifier.ChannelWebhook}, delivered)
	})

	t.Run("unregistered channel", func(t *testing.T) {
		t.Parallel()

		multi := notifier.NewMulti()
		err := multi.Notify(context.Background(), notifier.Notification{
			TenantID: uuid.New(),
			Channel:  notifier.ChannelSMS,
		})
		require.ErrorIs(t, err, notifier.ErrUnsupportedChannel)
	})
}

func TestNoOp(t *testing.T) {
	t.Parallel()

	require.NoError(t, notifier.NoOp().Notify(context.Background(), notifier.Notification{
		TenantID: uuid.New(),
		Channel:  notifier.ChannelEmail,
	}))
}

func TestWebhookGateway(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	resolveTo := func(url string) notifier.EndpointResolver {
		return func(ctx context.Context, id uuid.UUID) (string, error) {
			return url, nil
		}
	}

	t.Run("delivers json payload", func(t *testing.T) {
		t.Parallel()

		var got atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			got.Add(1)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		gw, err := notifier.NewWebhookGateway(resolveTo(srv.URL))
		require.NoError(t, err)

		err = gw.Notify(context.Background(), notifier.Notification{
			TenantID: tenantID,
			Channel:  notifier.ChannelWebhook,
			Subject:  "subscription past due",
			Body:     "payment failed for the current period",
		})
		require.NoError(t, err)
		assert.Equal(t, int32(1), got.Load())
	})

	t.Run("retries then succeeds", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		gw, err := notifier.NewWebhookGateway(resolveTo(srv.URL),
			notifier.WithBackoff(notifier.FixedBackoff{Interval: time.Millisecond}),
			notifier.WithMaxRetries(5))
		require.NoError(t, err)

		err = gw.Notify(context.Background(), notifier.Notification{TenantID: tenantID, Channel: notifier.ChannelWebhook})
		require.NoError(t, err)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("exhausts retries", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		gw, err := notifier.NewWebhookGateway(resolveTo(srv.URL),
			notifier.WithBackoff(notifier.FixedBackoff{Interval: time.Millisecond}),
			notifier.WithMaxRetries(2))
		require.NoError(t, err)

		err = gw.Notify(context.Background(), notifier.Notification{TenantID: tenantID, Channel: notifier.ChannelWebhook})
		require.ErrorIs(t, err, notifier.ErrDeliveryFailed)
	})

	t.Run("no endpoint is a no-op", func(t *testing.T) {
		t.Parallel()

		gw, err := notifier.NewWebhookGateway(resolveTo(""))
		require.NoError(t, err)
		require.NoError(t, gw.Notify(context.Background(), notifier.Notification{TenantID: tenantID}))
	})

	t.Run("open circuit short-circuits", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		cb := notifier.NewCircuitBreaker(2, 1, time.Hour)
		gw, err := notifier.NewWebhookGateway(resolveTo(srv.URL),
			notifier.WithBackoff(notifier.FixedBackoff{Interval: time.Millisecond}),
			notifier.WithMaxRetries(1),
			notifier.WithCircuitBreaker(cb))
		require.NoError(t, err)

		require.ErrorIs(t,
			gw.Notify(context.Background(), notifier.Notification{TenantID: tenantID}),
			notifier.ErrDeliveryFailed)
		assert.Equal(t, notifier.CircuitOpen, cb.State())

		require.ErrorIs(t,
			gw.Notify(context.Background(), notifier.Notification{TenantID: tenantID}),
			notifier.ErrCircuitOpen)
	})

	t.Run("requires resolver", func(t *testing.T) {
		t.Parallel()

		_, err := notifier.NewWebhookGateway(nil)
		require.ErrorIs(t, err, notifier.ErrInvalidConfig)
	})
}

func TestCircuitBreaker(t *testing.T) {
	t.Parallel()

	cb := notifier.NewCircuitBreaker(2, 1, 10*time.Millisecond)

	assert.True(t, cb.Allow())
	cb.RecordFailure()
	assert.True(t, cb.Allow())
	cb.RecordFailure()
	assert.False(t, cb.Allow())
	assert.Equal(t, notifier.CircuitOpen, cb.State())

	time.Sleep(15 * time.Millisecond)
	assert.True(t, cb.Allow()) // half-open trial
	cb.RecordSuccess()
	assert.Equal(t, notifier.CircuitClosed, cb.State())
}

func TestExponentialBackoff(t *testing.T) {
	t.Parallel()

	b := notifier.ExponentialBackoff{
		InitialInterval: time.Second,
		MaxInterval:     10 * time.Second,
		Multiplier:      2,
	}

	assert.Equal(t, time.Duration(0), b.NextInterval(0))
	assert.Equal(t, time.Second, b.NextInterval(1))
	assert.Equal(t, 2*time.Second, b.NextInterval(2))
	assert.Equal(t, 4*time.Second, b.NextInterval(3))
	assert.Equal(t, 10*time.Second, b.NextInterval(10)) // capped
}

func TestEmailGatewayConfig(t *testing.T) {
	t.Parallel()

	resolve := func(ctx context.Context, id uuid.UUID) (string, error) { return "billing@example.com", nil }

	_, err := notifier.NewEmailGateway(notifier.EmailConfig{}, resolve)
	require.ErrorIs(t, err, notifier.ErrInvalidConfig)

	_, err = notifier.NewEmailGateway(notifier.EmailConfig{
		PostmarkServerToken:  "server",
		PostmarkAccountToken: "account",
		SenderEmail:          "no-reply@example.com",
	}, nil)
	require.ErrorIs(t, err, notifier.ErrInvalidConfig)

	gw, err := notifier.NewEmailGateway(notifier.EmailConfig{
		PostmarkServerToken:  "server",
		PostmarkAccountToken: "account",
		SenderEmail:          "no-reply@example.com",
	}, resolve)
	require.NoError(t, err)
	require.NotNil(t, gw)
}
