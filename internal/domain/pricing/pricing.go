// Package pricing selects the per-token rate triple in effect at a moment.
package pricing

import (
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/tokenguard/internal/domain/money"
)

// Default standard rates, USD per million tokens.
const (
	DefaultCacheHitInputPerM  = 0.07
	DefaultCacheMissInputPerM = 0.27
	DefaultOutputPerM         = 1.10
)

// Rates is a per-token rate triple.
type Rates struct {
	CacheHitInput  money.Amount
	CacheMissInput money.Amount
	Output         money.Amount
	Discounted     bool
}

// Input returns the input rate for the given cache outcome.
func (r Rates) Input(cacheHit bool) money.Amount {
	if cacheHit {
		return r.CacheHitInput
	}
	return r.CacheMissInput
}

// ErrCostOverflow is returned when a token count cannot be priced in picodollars.
var ErrCostOverflow = errors.New("cost exceeds representable amount")

// Cost is inputTokens*inputRate + outputTokens*outputRate.
func (r Rates) Cost(inputTokens, outputTokens int64, cacheHit bool) (money.Amount, error) {
	in, ok := r.Input(cacheHit).Mul(inputTokens)
	if !ok {
		return 0, fmt.Errorf("%w: %d input tokens", ErrCostOverflow, inputTokens)
	}
	out, ok := r.Output.Mul(outputTokens)
	if !ok {
		return 0, fmt.Errorf("%w: %d output tokens", ErrCostOverflow, outputTokens)
	}
	total, ok := in.Add(out)
	if !ok {
		return 0, fmt.Errorf("%w: %d input and %d output tokens", ErrCostOverflow, inputTokens, outputTokens)
	}
	return total, nil
}

// Halved returns the discounted counterpart: every rate exactly halved.
func (r Rates) Halved() Rates {
	return Rates{
		CacheHitInput:  r.CacheHitInput.Half(),
		CacheMissInput: r.CacheMissInput.Half(),
		Output:         r.Output.Half(),
		Discounted:     true,
	}
}

// Window is a half-open [Start, End) interval of minutes past UTC midnight.
// Start > End wraps over midnight.
type Window struct {
	Start int
	End   int
}

// DefaultWindow is 16:30 to 00:30 UTC.
var DefaultWindow = Window{Start: 16*60 + 30, End: 30}

// ParseWindow builds a window from two "HH:MM" strings.
func ParseWindow(start, end string) (Window, error) {
	s, err := parseClock(start)
	if err != nil {
		return Window{}, fmt.Errorf("window start: %w", err)
	}
	e, err := parseClock(end)
	if err != nil {
		return Window{}, fmt.Errorf("window end: %w", err)
	}
	if s == e {
		return Window{}, fmt.Errorf("window start and end must differ")
	}
	return Window{Start: s, End: e}, nil
}

func parseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("parse %q as HH:MM: %w", v, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Contains reports whether t falls inside the window, evaluated in UTC.
func (w Window) Contains(t time.Time) bool {
	u := t.UTC()
	m := u.Hour()*60 + u.Minute()
	if w.Start < w.End {
		return m >= w.Start && m < w.End
	}
	return m >= w.Start || m < w.End
}

// String renders the window as "HH:MM-HH:MM UTC".
func (w Window) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d UTC", w.Start/60, w.Start%60, w.End/60, w.End%60)
}

// Schedule is the two-regime price list.
type Schedule struct {
	Standard Rates
	Discount Window
}

// DefaultSchedule returns the stock rate table and discount window.
func DefaultSchedule() Schedule {
	return Schedule{
		Standard: Rates{
			CacheHitInput:  money.PerMillionTokens(DefaultCacheHitInputPerM),
			CacheMissInput: money.PerMillionTokens(DefaultCacheMissInputPerM),
			Output:         money.PerMillionTokens(DefaultOutputPerM),
		},
		Discount: DefaultWindow,
	}
}

// RatesAt returns the rates in effect at t.
func (s Schedule) RatesAt(t time.Time) Rates {
	if s.Discount.Contains(t) {
		return s.Standard.Halved()
	}
	return s.Standard
}
