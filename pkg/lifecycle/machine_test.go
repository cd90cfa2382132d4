package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/ledger"
	"github.com/dmitrymomot/billingkit/pkg/lifecycle"
)

func sub(status ledger.SubscriptionStatus) *ledger.Subscription {
	return &ledger.Subscription{Status: status}
}

func TestMachine_PaymentSucceeded(t *testing.T) {
	t.Parallel()
	m := lifecycle.New()

	t.Run("activates incomplete subscription", func(t *testing.T) {
		t.Parallel()
		s := sub(ledger.SubscriptionIncomplete)
		require.NoError(t, m.Apply(context.Background(), s, lifecycle.TriggerPaymentSucceeded))
		assert.Equal(t, ledger.SubscriptionActive, s.Status)
	})

	t.Run("activates trialing subscription", func(t *testing.T) {
		t.Parallel()
		s := sub(ledger.SubscriptionTrialing)
		require.NoError(t, m.Apply(context.Background(), s, lifecycle.TriggerPaymentSucceeded))
		assert.Equal(t, ledger.SubscriptionActive, s.Status)
	})

	t.Run("recovers past_due subscription", func(t *testing.T) {
		t.Parallel()
		s := sub(ledger.SubscriptionPastDue)
		require.NoError(t, m.Apply(context.Background(), s, lifecycle.TriggerPaymentSucceeded))
		assert.Equal(t, ledger.SubscriptionActive, s.Status)
	})

	t.Run("refused for paused subscription", func(t *testing.T) {
		t.Parallel()
		s := sub(ledger.SubscriptionPaused)
		require.ErrorIs(t, m.Apply(context.Background(), s, lifecycle.TriggerPaymentSucceeded), lifecycle.ErrInvalidTransition)
		assert.Equal(t, ledger.SubscriptionPaused, s.Status)
	})
}

func TestMachine_PaymentFailed(t *testing.T) {
	t.Parallel()
	m := lifecycle.New()

	t.Run("active goes past_due", func(t *testing.T) {
		t.Parallel()
		s := sub(ledger.SubscriptionActive)
		require.NoError(t, m.Apply(context.Background(), s, lifecycle.TriggerPaymentFailed))
		assert.Equal(t, ledger.SubscriptionPastDue, s.Status)
	})

	t.Run("repeated failure keeps past_due", func(t *testing.T) {
		t.Parallel()
		s := sub(ledger.SubscriptionPastDue)
		require.NoError(t, m.Apply(context.Background(), s, lifecycle.TriggerPaymentFailed))
		assert.Equal(t, ledger.SubscriptionPastDue, s.Status)
	})
}

func TestMachine_TrialElapsed(t *testing.T) {
	t.Parallel()

	t.Run("defaults to incomplete", func(t *testing.T) {
		t.Parallel()
		m := lifecycle.New()
		s := sub(ledger.SubscriptionTrialing)
		require.NoError(t, m.Apply(context.Background(), s, lifecycle.TriggerTrialElapsed))
		assert.Equal(t, ledger.SubscriptionIncomplete, s.Status)
	})

	t.Run("policy can choose past_due", func(t *testing.T) {
		t.Parallel()
		m := lifecycle.New(lifecycle.WithTrialElapsedTarget(ledger.SubscriptionPastDue))
		s := sub(ledger.SubscriptionTrialing)
		require.NoError(t, m.Apply(context.Background(), s, lifecycle.TriggerTrialElapsed))
		assert.Equal(t, ledger.SubscriptionPastDue, s.Status)
	})

	t.Run("invalid policy target panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() {
			lifecycle.New(lifecycle.WithTrialElapsedTarget(ledger.SubscriptionCancelled))
		})
	})
}

func TestMachine_PeriodRollover(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	m := lifecycle.New(lifecycle.WithClock(func() time.Time { return now }))

	t.Run("cancel flag set cancels at boundary", func(t *testing.T) {
		t.Parallel()
		s := sub(ledger.SubscriptionActive)
		s.CancelAtPeriodEnd = true
		require.NoError(t, m.Apply(context.Background(), s, lifecycle.TriggerPeriodRollover))
		assert.Equal(t, ledger.SubscriptionCancelled, s.Status)
		require.NotNil(t, s.CancelledAt)
		assert.Equal(t, now, *s.CancelledAt)
	})

	t.Run("cancel flag set cancels past_due at boundary", func(t *testing.T) {
		t.Parallel()
		s := sub(ledger.SubscriptionPastDue)
		s.CancelAtPeriodEnd = true
		require.NoError(t, m.Apply(context.Background(), s, lifecycle.TriggerPeriodRollover))
		assert.Equal(t, ledger.SubscriptionCancelled, s.Status)
	})

	t.Run("without flag the status is unchanged", func(t *testing.T) {
		t.Parallel()
		s := sub(ledger.SubscriptionActive)
		require.NoError(t, m.Apply(context.Background(), s, lifecycle.TriggerPeriodRollover))
		assert.Equal(t, ledger.SubscriptionActive, s.Status)
		assert.Nil(t, s.CancelledAt)
	})
}

func TestMachine_CancelImmediate(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	m := lifecycle.New(lifecycle.WithClock(func() time.Time { return now }))

	for _, from := range []ledger.SubscriptionStatus{
		ledger.SubscriptionIncomplete,
		ledger.SubscriptionTrialing,
		ledger.SubscriptionActive,
		ledger.SubscriptionPastDue,
		ledger.SubscriptionPaused,
	} {
		t.Run(string(from), func(t *testing.T) {
			t.Parallel()
			s := sub(from)
			require.NoError(t, m.Apply(context.Background(), s, lifecycle.TriggerCancelImmediate))
			assert.Equal(t, ledger.SubscriptionCancelled, s.Status)
			require.NotNil(t, s.CancelledAt)
		})
	}
}

func TestMachine_CancelledIsTerminal(t *testing.T) {
	t.Parallel()
	m := lifecycle.New()

	triggers := []lifecycle.Trigger{
		lifecycle.TriggerPaymentSucceeded,
		lifecycle.TriggerPaymentFailed,
		lifecycle.TriggerTrialElapsed,
		lifecycle.TriggerPeriodRollover,
		lifecycle.TriggerCancelImmediate,
		lifecycle.TriggerPause,
		lifecycle.TriggerResume,
	}
	for _, trigger := range triggers {
		s := sub(ledger.SubscriptionCancelled)
		err := m.Apply(context.Background(), s, trigger)
		require.ErrorIs(t, err, lifecycle.ErrInvalidTransition, "trigger %s", trigger)
		assert.Equal(t, ledger.SubscriptionCancelled, s.Status)
	}

	assert.Error(t, lifecycle.RequestCancelAtPeriodEnd(sub(ledger.SubscriptionCancelled)))
}

func TestMachine_PauseResume(t *testing.T) {
	t.Parallel()
	m := lifecycle.New()

	s := sub(ledger.SubscriptionActive)
	require.NoError(t, m.Apply(context.Background(), s, lifecycle.TriggerPause))
	assert.Equal(t, ledger.SubscriptionPaused, s.Status)

	require.NoError(t, m.Apply(context.Background(), s, lifecycle.TriggerResume))
	assert.Equal(t, ledger.SubscriptionActive, s.Status)

	t.Run("cannot pause past_due", func(t *testing.T) {
		t.Parallel()
		s := sub(ledger.SubscriptionPastDue)
		require.ErrorIs(t, m.Apply(context.Background(), s, lifecycle.TriggerPause), lifecycle.ErrInvalidTransition)
	})
}

func TestInitialStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ledger.SubscriptionTrialing, lifecycle.InitialStatus(&ledger.Plan{TrialDays: 14}))
	assert.Equal(t, ledger.SubscriptionIncomplete, lifecycle.InitialStatus(&ledger.Plan{}))
	assert.Equal(t, ledger.SubscriptionIncomplete, lifecycle.InitialStatus(nil))
}

func TestRequestCancelAtPeriodEnd(t *testing.T) {
	t.Parallel()

	s := sub(ledger.SubscriptionActive)
	require.NoError(t, lifecycle.RequestCancelAtPeriodEnd(s))
	assert.True(t, s.CancelAtPeriodEnd)
	// Status is untouched until the boundary event fires.
	assert.Equal(t, ledger.SubscriptionActive, s.Status)
}
