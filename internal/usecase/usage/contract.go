package usage

import (
	"context"
	"time"

	"github.com/kailas-cloud/tokenguard/internal/domain/budget"
	"github.com/kailas-cloud/tokenguard/internal/domain/pricing"
	domusage "github.com/kailas-cloud/tokenguard/internal/domain/usage"
	"github.com/kailas-cloud/tokenguard/internal/domain/usage/metrics"
)

// TotalsReader provides the cumulative meter counters.
type TotalsReader interface {
	Totals() metrics.Totals
}

// PriceReader provides the schedule in effect.
type PriceReader interface {
	RatesAt(t time.Time) pricing.Rates
	Schedule() pricing.Schedule
}

// BudgetReader provides read-only access to spend state.
type BudgetReader interface {
	Status() budget.Status
}

// Projector forecasts remaining capacity.
type Projector interface {
	Project(st budget.Status) (budget.Projection, bool)
}

// HistoryReader provides per-day aggregates from the audit log.
type HistoryReader interface {
	Summary(ctx context.Context, since time.Time) ([]domusage.DaySummary, error)
}
