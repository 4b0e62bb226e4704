package pricing

import (
	"sync"
	"time"

	"github.com/kailas-cloud/tokenguard/internal/domain/money"
)

// Oracle serves rates from a schedule that can be swapped at runtime.
type Oracle struct {
	mu       sync.RWMutex
	schedule Schedule
}

// NewOracle creates an Oracle with the given schedule.
func NewOracle(s Schedule) *Oracle {
	return &Oracle{schedule: s}
}

// RatesAt returns the rate triple in effect at t.
func (o *Oracle) RatesAt(t time.Time) Rates {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.schedule.RatesAt(t)
}

// IsDiscounted reports whether t falls in the discount window.
func (o *Oracle) IsDiscounted(t time.Time) bool {
	return o.RatesAt(t).Discounted
}

// Cost prices a request at t and returns the rates that were applied.
func (o *Oracle) Cost(t time.Time, inputTokens, outputTokens int64, cacheHit bool) (money.Amount, Rates, error) {
	r := o.RatesAt(t)
	cost, err := r.Cost(inputTokens, outputTokens, cacheHit)
	return cost, r, err
}

// Schedule returns the active schedule.
func (o *Oracle) Schedule() Schedule {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.schedule
}

// Update replaces the active schedule.
func (o *Oracle) Update(s Schedule) {
	o.mu.Lock()
	o.schedule = s
	o.mu.Unlock()
}
