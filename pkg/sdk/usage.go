package tokenguard

import (
	"context"
	"time"
)

// Usage returns cumulative metering since start or the last ResetUsage,
// with the rates in effect now. Observer always records success; the
// underlying use-case is in-memory and does not produce errors.
func (g *Guard) Usage(ctx context.Context) UsageReport {
	start := time.Now()
	defer func() { g.obs.observe("usage", start, nil) }()

	r := g.usage.GetReport(ctx)
	t := r.Totals()
	return UsageReport{
		GeneratedAt:    r.GeneratedAt(),
		InputTokens:    t.InputTokens(),
		OutputTokens:   t.OutputTokens(),
		CacheHits:      t.CacheHits(),
		CacheMisses:    t.CacheMisses(),
		Requests:       t.Requests(),
		InputCost:      t.InputCost().Dollars(),
		OutputCost:     t.OutputCost().Dollars(),
		TotalCost:      t.TotalCost().Dollars(),
		Rates:          ratesFromDomain(r.Rates()),
		DiscountWindow: r.DiscountWindow().String(),
		Budget:         statusFromDomain(r.Budget()),
	}
}

// DailyUsage returns per-day totals from the audit log for the last days
// days, today included. It returns nil without WithAuditLog.
func (g *Guard) DailyUsage(ctx context.Context, days int) (out []DaySummary, err error) {
	start := time.Now()
	defer func() { g.obs.observe("daily_usage", start, err) }()

	ds, err := g.usage.DailyHistory(ctx, days)
	if err != nil {
		return nil, err
	}
	for _, d := range ds {
		out = append(out, DaySummary{
			Day:          d.Day,
			Requests:     d.Requests,
			InputTokens:  d.InputTokens,
			OutputTokens: d.OutputTokens,
			Cost:         d.Cost.Dollars(),
		})
	}
	return out, nil
}
