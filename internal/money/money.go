// Package money holds the fixed-point currency and quantity types used by the register.
//
// Amounts are integer minor units (cents). Decimal conversion happens only at the
// HTTP boundary.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// MaxQuantity is the largest quantity a single line item may carry.
const MaxQuantity = 10_000

// ErrInvalidQuantity is returned when a quantity is outside 1..MaxQuantity.
var ErrInvalidQuantity = errors.New("quantity must be between 1 and 10000")

// Cents is an amount of money in minor units.
type Cents int64

// Quantity is a positive number of sold units.
type Quantity int

// NewQuantity validates n as a sold quantity.
func NewQuantity(n int) (Quantity, error) {
	if n <= 0 || n > MaxQuantity {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidQuantity, n)
	}
	return Quantity(n), nil
}

// Int returns the quantity as a plain int.
func (q Quantity) Int() int { return int(q) }

// Mul returns c multiplied by q.
func (c Cents) Mul(q Quantity) Cents {
	return c * Cents(q)
}

// Times returns c multiplied by an arbitrary count (coupon redemptions, for instance).
func (c Cents) Times(n int) Cents {
	return c * Cents(n)
}

// ClampZero returns c, or zero when c is negative.
func (c Cents) ClampZero() Cents {
	if c < 0 {
		return 0
	}
	return c
}

// Decimal converts c to a two-place decimal.
func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

// String renders c with exactly two decimals, e.g. "6.00".
func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}

// FromDecimal converts d to cents, rounding half away from zero at the second place.
func FromDecimal(d decimal.Decimal) Cents {
	return Cents(d.Shift(2).Round(0).IntPart())
}

// ParseCents parses a decimal string such as "3.50" into cents.
func ParseCents(s string) (Cents, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("failed to parse amount %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

// MarshalJSON encodes c as a JSON number with two decimals.
func (c Cents) MarshalJSON() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalJSON accepts either a JSON number or a quoted decimal string.
func (c *Cents) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("failed to decode amount: %w", err)
	}
	*c = FromDecimal(d)
	return nil
}
