// Package budget holds the global spend ceiling value types.
package budget

import (
	"time"

	"github.com/kailas-cloud/tokenguard/internal/domain/money"
)

// Default ceiling bounds and alert thresholds.
var (
	DefaultCeiling    = money.FromDollars(2.00)
	DefaultMin        = money.FromDollars(0.10)
	DefaultMax        = money.FromDollars(100.00)
	DefaultThresholds = []float64{0.80, 0.90, 0.95}
)

// Status is a read-only snapshot of the governor.
type Status struct {
	Ceiling     money.Amount
	Spent       money.Amount
	LastUpdated time.Time
}

// Remaining is ceiling minus spend, never negative.
func (s Status) Remaining() money.Amount {
	return max(s.Ceiling-s.Spent, 0)
}

// Exceeded reports whether spend is strictly above the ceiling.
func (s Status) Exceeded() bool {
	return s.Spent > s.Ceiling
}

// Ratio is spend as a fraction of the ceiling.
func (s Status) Ratio() float64 {
	if s.Ceiling <= 0 {
		return 0
	}
	return float64(s.Spent) / float64(s.Ceiling)
}

// Change records one ceiling mutation.
type Change struct {
	At  time.Time
	Old money.Amount
	New money.Amount
}

// Alert records a threshold crossing.
type Alert struct {
	At        time.Time
	Threshold float64
	Spent     money.Amount
	Remaining money.Amount
}

// Projection is a linear forecast from the recent request window.
type Projection struct {
	AvgCostPerRequest          money.Amount
	EstimatedRemainingRequests float64
	ProjectedTotalCost         money.Amount
	Status                     Status
	WindowSize                 int
}
