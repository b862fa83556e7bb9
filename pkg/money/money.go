// Package money provides decimal-backed monetary arithmetic for
// adjudication math, where the reconciliation tolerance is load-bearing
// and cannot absorb float64 drift.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a decimal-backed monetary value, always in whole units of
// currency (no currency tagging — the simulator is single-currency).
type Amount struct {
	value decimal.Decimal
}

// Zero is the additive identity.
var Zero = Amount{value: decimal.Zero}

// New builds an Amount from a float64. Used only at input boundaries
// (parsing a claim's unit_charge_amount); all subsequent arithmetic stays
// in decimal.
func New(f float64) Amount {
	return Amount{value: decimal.NewFromFloat(f)}
}

// NewFromInt builds an Amount from an integer number of units.
func NewFromInt(i int64) Amount {
	return Amount{value: decimal.NewFromInt(i)}
}

func (a Amount) Add(other Amount) Amount {
	return Amount{value: a.value.Add(other.value)}
}

func (a Amount) Sub(other Amount) Amount {
	return Amount{value: a.value.Sub(other.value)}
}

func (a Amount) Mul(factor float64) Amount {
	return Amount{value: a.value.Mul(decimal.NewFromFloat(factor))}
}

func (a Amount) MulAmount(other Amount) Amount {
	return Amount{value: a.value.Mul(other.value)}
}

func (a Amount) Neg() Amount {
	return Amount{value: a.value.Neg()}
}

func (a Amount) Cmp(other Amount) int {
	return a.value.Cmp(other.value)
}

func (a Amount) IsZero() bool {
	return a.value.IsZero()
}

func (a Amount) IsNegative() bool {
	return a.value.IsNegative()
}

// Abs returns the absolute value.
func (a Amount) Abs() Amount {
	return Amount{value: a.value.Abs()}
}

// Max returns the larger of two amounts.
func Max(a, b Amount) Amount {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// MaxZero clamps a to be no less than zero.
func MaxZero(a Amount) Amount {
	return Max(a, Zero)
}

// RoundCents rounds half-away-from-zero to two decimal places, matching
// the adjudicator's documented cent-rounding rule.
func (a Amount) RoundCents() Amount {
	return Amount{value: a.value.Round(2)}
}

// Float64 returns the float64 approximation, for logging/serialization
// only — never feed it back into further arithmetic.
func (a Amount) Float64() float64 {
	f, _ := a.value.Float64()
	return f
}

func (a Amount) String() string {
	return a.value.StringFixed(2)
}

// MarshalJSON renders the amount as a JSON number with two decimal places.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.value.StringFixed(2)), nil
}

// UnmarshalJSON accepts either a JSON number or string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("money: invalid amount %q: %w", s, err)
	}
	a.value = d
	return nil
}
