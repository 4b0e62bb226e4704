package money

import (
	"math"
	"testing"
)

func TestPerMillionTokens(t *testing.T) {
	tests := []struct {
		usd  float64
		want Amount
	}{
		{0.07, 70_000},
		{0.27, 270_000},
		{1.10, 1_100_000},
		{0.035, 35_000},
		{0, 0},
	}
	for _, tc := range tests {
		if got := PerMillionTokens(tc.usd); got != tc.want {
			t.Errorf("PerMillionTokens(%v) = %d, want %d", tc.usd, got, tc.want)
		}
	}
}

func TestFromDollarsRoundTrip(t *testing.T) {
	a := FromDollars(1.80)
	if a != 1_800_000_000_000 {
		t.Fatalf("FromDollars(1.80) = %d", a)
	}
	if a.Dollars() != 1.8 {
		t.Errorf("Dollars() = %v", a.Dollars())
	}
	if s := FromDollars(0.5).String(); s != "$0.500000" {
		t.Errorf("String() = %q", s)
	}
}

func TestHalfIsExactForEvenRates(t *testing.T) {
	if got := Amount(270_000).Half(); got != 135_000 {
		t.Errorf("Half() = %d", got)
	}
	if got := Amount(3).Half(); got != 2 {
		t.Errorf("Half() of odd = %d, want 2", got)
	}
}

func TestTimes(t *testing.T) {
	if got := Amount(1_100_000).Times(1000); got != 1_100_000_000 {
		t.Errorf("Times() = %d", got)
	}
}

func TestMul(t *testing.T) {
	for _, tc := range []struct {
		a    Amount
		n    int64
		want Amount
		ok   bool
	}{
		{1_100_000, 1000, 1_100_000_000, true},
		{0, math.MaxInt64, 0, true},
		{1_100_000, 0, 0, true},
		{1_100_000, 9_000_000_000_000, 0, false},
		{1_100_000, math.MaxInt64 / 1_100_000, 1_100_000 * (math.MaxInt64 / 1_100_000), true},
		{1_100_000, math.MaxInt64/1_100_000 + 1, 0, false},
		{-1, math.MinInt64, 0, false},
	} {
		got, ok := tc.a.Mul(tc.n)
		if got != tc.want || ok != tc.ok {
			t.Errorf("%d.Mul(%d) = (%d, %v), want (%d, %v)", tc.a, tc.n, got, ok, tc.want, tc.ok)
		}
	}
}

func TestAdd(t *testing.T) {
	if got, ok := Amount(2).Add(3); got != 5 || !ok {
		t.Errorf("Add() = (%d, %v)", got, ok)
	}
	if _, ok := Amount(math.MaxInt64).Add(1); ok {
		t.Error("expected overflow adding to MaxInt64")
	}
	if _, ok := Amount(math.MinInt64).Add(-1); ok {
		t.Error("expected overflow adding to MinInt64")
	}
}
