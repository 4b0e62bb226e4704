package usage

import (
	"time"

	"github.com/kailas-cloud/tokenguard/internal/domain/budget"
	"github.com/kailas-cloud/tokenguard/internal/domain/pricing"
	"github.com/kailas-cloud/tokenguard/internal/domain/usage/metrics"
)

// Report is the operator view of metered usage at a moment.
type Report struct {
	generatedAt time.Time
	totals      metrics.Totals
	rates       pricing.Rates
	window      pricing.Window
	budget      budget.Status
}

// NewReport creates a usage report.
func NewReport(at time.Time, t metrics.Totals, r pricing.Rates, w pricing.Window, b budget.Status) Report {
	return Report{
		generatedAt: at,
		totals:      t,
		rates:       r,
		window:      w,
		budget:      b,
	}
}

// GeneratedAt returns the report timestamp.
func (r *Report) GeneratedAt() time.Time { return r.generatedAt }

// Totals returns the cumulative counters.
func (r *Report) Totals() metrics.Totals { return r.totals }

// Rates returns the rates in effect at GeneratedAt.
func (r *Report) Rates() pricing.Rates { return r.rates }

// IsDiscountPeriod reports whether GeneratedAt fell inside the discount window.
func (r *Report) IsDiscountPeriod() bool { return r.rates.Discounted }

// DiscountWindow returns the configured discount window.
func (r *Report) DiscountWindow() pricing.Window { return r.window }

// Budget returns the budget status.
func (r *Report) Budget() budget.Status { return r.budget }
