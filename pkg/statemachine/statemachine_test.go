package statemachine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/statemachine"
)

func TestMachine_Fire(t *testing.T) {
	t.Parallel()

	t.Run("permitted transition returns target state", func(t *testing.T) {
		t.Parallel()
		m := statemachine.New()
		m.Permit("open", "close", "closed")

		next, err := m.Fire(context.Background(), "open", "close", nil)
		require.NoError(t, err)
		assert.Equal(t, statemachine.State("closed"), next)
	})

	t.Run("unknown trigger fails with ErrInvalidTransition", func(t *testing.T) {
		t.Parallel()
		m := statemachine.New()
		m.Permit("open", "close", "closed")

		next, err := m.Fire(context.Background(), "open", "reopen", nil)
		require.ErrorIs(t, err, statemachine.ErrInvalidTransition)
		assert.Equal(t, statemachine.State("open"), next)

		var te *statemachine.TransitionError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, statemachine.ReasonNotPermitted, te.Reason)
	})

	t.Run("terminal state refuses everything", func(t *testing.T) {
		t.Parallel()
		m := statemachine.New()
		m.Permit("closed", "reopen", "open")
		m.MarkTerminal("closed")

		_, err := m.Fire(context.Background(), "closed", "reopen", nil)
		require.ErrorIs(t, err, statemachine.ErrInvalidTransition)

		var te *statemachine.TransitionError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, statemachine.ReasonTerminal, te.Reason)
	})

	t.Run("guard vetoes transition", func(t *testing.T) {
		t.Parallel()
		m := statemachine.New()
		m.Permit("open", "close", "closed", statemachine.WithGuard(
			func(ctx context.Context, from statemachine.State, trigger statemachine.Trigger, data any) bool {
				return data == "allowed"
			},
		))

		_, err := m.Fire(context.Background(), "open", "close", "denied")
		require.ErrorIs(t, err, statemachine.ErrInvalidTransition)

		next, err := m.Fire(context.Background(), "open", "close", "allowed")
		require.NoError(t, err)
		assert.Equal(t, statemachine.State("closed"), next)
	})

	t.Run("action error aborts transition", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		m := statemachine.New()
		m.Permit("open", "close", "closed", statemachine.WithAction(
			func(ctx context.Context, from, to statemachine.State, trigger statemachine.Trigger, data any) error {
				return boom
			},
		))

		next, err := m.Fire(context.Background(), "open", "close", nil)
		require.ErrorIs(t, err, boom)
		assert.Equal(t, statemachine.State("open"), next)
	})

	t.Run("action can mutate data", func(t *testing.T) {
		t.Parallel()
		type payload struct{ stamped bool }

		m := statemachine.New()
		m.Permit("open", "close", "closed", statemachine.WithAction(
			func(ctx context.Context, from, to statemachine.State, trigger statemachine.Trigger, data any) error {
				data.(*payload).stamped = true
				return nil
			},
		))

		p := &payload{}
		_, err := m.Fire(context.Background(), "open", "close", p)
		require.NoError(t, err)
		assert.True(t, p.stamped)
	})
}

func TestMachine_CanFire(t *testing.T) {
	t.Parallel()

	m := statemachine.New()
	m.Permit("open", "close", "closed")
	m.MarkTerminal("closed")

	assert.True(t, m.CanFire(context.Background(), "open", "close", nil))
	assert.False(t, m.CanFire(context.Background(), "open", "reopen", nil))
	assert.False(t, m.CanFire(context.Background(), "closed", "close", nil))
}
