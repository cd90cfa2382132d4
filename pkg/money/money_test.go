package money_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/money"
)

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("parses plain decimal", func(t *testing.T) {
		t.Parallel()
		a, err := money.Parse("99.99")
		require.NoError(t, err)
		assert.Equal(t, "99.99", a.String())
	})

	t.Run("rounds to two digits half-up", func(t *testing.T) {
		t.Parallel()
		a, err := money.Parse("10.005")
		require.NoError(t, err)
		assert.Equal(t, "10.01", a.String())
	})

	t.Run("rejects garbage", func(t *testing.T) {
		t.Parallel()
		_, err := money.Parse("not-a-number")
		require.ErrorIs(t, err, money.ErrInvalidAmount)
	})

	t.Run("zero value renders with scale", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "0.00", money.Zero().String())
	})
}

func TestAmount_Arithmetic(t *testing.T) {
	t.Parallel()

	t.Run("add and sub", func(t *testing.T) {
		t.Parallel()
		due := money.MustParse("99.99")
		paid := money.MustParse("50.00")

		assert.Equal(t, "49.99", due.Sub(paid).String())
		assert.Equal(t, "149.99", due.Add(paid).String())
	})

	t.Run("sub below zero is negative", func(t *testing.T) {
		t.Parallel()
		a := money.MustParse("10.00").Sub(money.MustParse("20.00"))
		assert.True(t, a.IsNegative())
	})

	t.Run("equal ignores representation", func(t *testing.T) {
		t.Parallel()
		assert.True(t, money.MustParse("50").Equal(money.MustParse("50.00")))
	})

	t.Run("cents round trip", func(t *testing.T) {
		t.Parallel()
		a := money.FromCents(9999)
		assert.Equal(t, "99.99", a.String())
		assert.Equal(t, int64(9999), a.Cents())
	})
}

func TestPrice_MulQuantity(t *testing.T) {
	t.Parallel()

	t.Run("rounds once after multiplication", func(t *testing.T) {
		t.Parallel()
		// 0.0015 * 333 = 0.4995 -> 0.50; per-unit rounding first would give 0.00
		total := money.UnitPrice("0.0015").MulQuantity(333)
		assert.Equal(t, "0.50", total.String())
	})

	t.Run("metered usage example", func(t *testing.T) {
		t.Parallel()
		total := money.UnitPrice("0.10").MulQuantity(25)
		assert.Equal(t, "2.50", total.String())
	})

	t.Run("keeps four digits", func(t *testing.T) {
		t.Parallel()
		p, err := money.ParsePrice("0.00125")
		require.NoError(t, err)
		assert.Equal(t, "0.0013", p.String())
	})
}

func TestAmount_JSON(t *testing.T) {
	t.Parallel()

	t.Run("marshals as string", func(t *testing.T) {
		t.Parallel()
		data, err := json.Marshal(money.MustParse("99.99"))
		require.NoError(t, err)
		assert.Equal(t, `"99.99"`, string(data))
	})

	t.Run("unmarshals string and number", func(t *testing.T) {
		t.Parallel()
		var a money.Amount
		require.NoError(t, json.Unmarshal([]byte(`"12.34"`), &a))
		assert.Equal(t, "12.34", a.String())

		require.NoError(t, json.Unmarshal([]byte(`12.34`), &a))
		assert.Equal(t, "12.34", a.String())
	})

	t.Run("rejects malformed", func(t *testing.T) {
		t.Parallel()
		var a money.Amount
		require.Error(t, json.Unmarshal([]byte(`"1.2.3"`), &a))
	})
}
