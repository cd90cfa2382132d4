package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Fractional digit counts for stored values. Amounts use cents precision,
// unit prices keep four digits so sub-cent metered rates survive aggregation.
const (
	AmountScale    int32 = 2
	UnitPriceScale int32 = 4
)

// Amount is a fixed-point monetary value with two fractional digits.
// The zero value is 0.00 and ready to use.
type Amount struct {
	d decimal.Decimal
}

// Zero returns a zero amount.
func Zero() Amount {
	return Amount{}
}

// Parse parses a decimal string like "99.99" into an Amount,
// rounding half-up to two fractional digits.
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return Amount{d: d.Round(AmountScale)}, nil
}

// MustParse parses a decimal string and panics on failure.
// Intended for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromCents builds an Amount from a count of the smallest currency unit.
func FromCents(cents int64) Amount {
	return Amount{d: decimal.New(cents, -AmountScale)}
}

// Cents returns the amount as a count of the smallest currency unit.
func (a Amount) Cents() int64 {
	return a.d.Shift(AmountScale).IntPart()
}

func (a Amount) Add(b Amount) Amount {
	return Amount{d: a.d.Add(b.d)}
}

func (a Amount) Sub(b Amount) Amount {
	return Amount{d: a.d.Sub(b.d)}
}

// Equal reports whether two amounts represent the same value.
// Use this instead of == which compares internal representation.
func (a Amount) Equal(b Amount) bool {
	return a.d.Equal(b.d)
}

func (a Amount) LessThan(b Amount) bool {
	return a.d.LessThan(b.d)
}

func (a Amount) GreaterThan(b Amount) bool {
	return a.d.GreaterThan(b.d)
}

func (a Amount) IsZero() bool {
	return a.d.IsZero()
}

func (a Amount) IsNegative() bool {
	return a.d.IsNegative()
}

// String renders the amount with exactly two fractional digits.
func (a Amount) String() string {
	return a.d.StringFixed(AmountScale)
}

// Decimal exposes the underlying decimal for storage drivers.
func (a Amount) Decimal() decimal.Decimal {
	return a.d
}

// FromDecimal wraps a decimal read back from storage, rounding to scale.
func FromDecimal(d decimal.Decimal) Amount {
	return Amount{d: d.Round(AmountScale)}
}

// MarshalJSON encodes the amount as a JSON string to avoid float precision
// loss in transit.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts both string and bare-number encodings.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Price is a per-unit rate with four fractional digits, used for metered
// usage where rates like $0.0015/call are common.
type Price struct {
	d decimal.Decimal
}

// ParsePrice parses a decimal string into a unit price.
func ParsePrice(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Price{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return Price{d: d.Round(UnitPriceScale)}, nil
}

// UnitPrice parses a decimal string into a unit price and panics on failure.
func UnitPrice(s string) Price {
	p, err := ParsePrice(s)
	if err != nil {
		panic(err)
	}
	return p
}

// PriceFromDecimal wraps a decimal read back from storage.
func PriceFromDecimal(d decimal.Decimal) Price {
	return Price{d: d.Round(UnitPriceScale)}
}

func (p Price) IsZero() bool {
	return p.d.IsZero()
}

// String renders the price with exactly four fractional digits.
func (p Price) String() string {
	return p.d.StringFixed(UnitPriceScale)
}

// Decimal exposes the underlying decimal for storage drivers.
func (p Price) Decimal() decimal.Decimal {
	return p.d
}

// MulQuantity multiplies the unit price by a quantity and rounds the result
// to amount scale. Rounding happens once, after multiplication, so line-item
// totals match what an invoice displays.
func (p Price) MulQuantity(qty int64) Amount {
	return Amount{d: p.d.Mul(decimal.NewFromInt(qty)).Round(AmountScale)}
}
