// Package money represents USD amounts as integer picodollars so that
// token-rate arithmetic is exact.
package money

import (
	"fmt"
	"math"
)

// Amount is a USD amount in picodollars (1 USD = 1e12).
type Amount int64

// Common units.
const (
	Picodollar  Amount = 1
	Microdollar Amount = 1_000_000
	Dollar      Amount = 1_000_000_000_000
)

// FromDollars converts a float USD value, rounding to the nearest picodollar.
func FromDollars(d float64) Amount {
	return Amount(math.Round(d * float64(Dollar)))
}

// PerMillionTokens converts a USD-per-million-tokens rate into a per-token amount.
func PerMillionTokens(usd float64) Amount {
	return Amount(math.Round(usd * float64(Dollar) / 1e6))
}

// Dollars returns the amount as float USD, for presentation only.
func (a Amount) Dollars() float64 {
	return float64(a) / float64(Dollar)
}

// PerMillion returns a per-token rate expressed in USD per million tokens.
func (a Amount) PerMillion() float64 {
	return float64(a) * 1e6 / float64(Dollar)
}

// Times multiplies the amount by a token count. It wraps on overflow; use Mul
// when n is caller supplied.
func (a Amount) Times(n int64) Amount {
	return a * Amount(n)
}

// Mul multiplies the amount by n. ok is false when the product does not fit.
func (a Amount) Mul(n int64) (Amount, bool) {
	if a == 0 || n == 0 {
		return 0, true
	}
	if (a == -1 && n == math.MinInt64) || (n == -1 && a == math.MinInt64) {
		return 0, false
	}
	p := a * Amount(n)
	if p/Amount(n) != a {
		return 0, false
	}
	return p, true
}

// Add sums two amounts. ok is false on overflow.
func (a Amount) Add(b Amount) (Amount, bool) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return 0, false
	}
	return s, true
}

// Half returns the amount divided by two, rounded half away from zero.
func (a Amount) Half() Amount {
	if a%2 == 0 {
		return a / 2
	}
	return (a + a.sign()) / 2
}

func (a Amount) sign() Amount {
	if a < 0 {
		return -1
	}
	return 1
}

// String formats the amount as dollars with six decimals.
func (a Amount) String() string {
	return fmt.Sprintf("$%.6f", a.Dollars())
}
