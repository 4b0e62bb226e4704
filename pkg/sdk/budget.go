package tokenguard

import (
	"context"
	"time"

	"github.com/kailas-cloud/tokenguard/internal/domain/money"
)

// Budget returns the current spend position.
func (g *Guard) Budget() BudgetStatus {
	return statusFromDomain(g.governor.Status())
}

// SetBudget replaces the ceiling and starts a new alerting period.
// Amounts outside the configured bounds return an error wrapping ErrInvalidBudget.
func (g *Guard) SetBudget(usd float64) (ch BudgetChange, err error) {
	start := time.Now()
	defer func() { g.obs.observe("set_budget", start, err) }()

	c, err := g.governor.SetBudget(money.FromDollars(usd))
	if err != nil {
		return BudgetChange{}, err
	}
	return BudgetChange{At: c.At, Old: c.Old.Dollars(), New: c.New.Dollars()}, nil
}

// BudgetHistory returns the most recent ceiling changes, oldest first.
// limit <= 0 means 10.
func (g *Guard) BudgetHistory(limit int) []BudgetChange {
	changes := g.governor.History(limit)
	out := make([]BudgetChange, len(changes))
	for i, c := range changes {
		out[i] = BudgetChange{At: c.At, Old: c.Old.Dollars(), New: c.New.Dollars()}
	}
	return out
}

// BudgetAlerts returns the thresholds fired since the last ceiling change.
func (g *Guard) BudgetAlerts() []BudgetAlert {
	alerts := g.governor.Alerts()
	out := make([]BudgetAlert, len(alerts))
	for i, a := range alerts {
		out[i] = BudgetAlert{
			At:        a.At,
			Threshold: a.Threshold,
			Spent:     a.Spent.Dollars(),
			Remaining: a.Remaining.Dollars(),
		}
	}
	return out
}

// Projection forecasts spend from recent requests. ok is false until at
// least one request has been metered.
func (g *Guard) Projection(ctx context.Context) (p Projection, ok bool) {
	dp, ok := g.usage.GetProjection(ctx)
	if !ok {
		return Projection{}, false
	}
	return Projection{
		AvgCostPerRequest:          dp.AvgCostPerRequest.Dollars(),
		EstimatedRemainingRequests: dp.EstimatedRemainingRequests,
		ProjectedTotalCost:         dp.ProjectedTotalCost.Dollars(),
		WindowSize:                 dp.WindowSize,
		Budget:                     statusFromDomain(dp.Status),
	}, true
}

// ResetUsage zeroes counters and spend. The ceiling, change history and
// fired alerts are kept.
func (g *Guard) ResetUsage() {
	g.meter.ResetUsage()
}
