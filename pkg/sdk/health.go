package tokenguard

import "context"

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status string            // "ok", "degraded", "error"
	Checks map[string]string // component: "ok", "error" or "exceeded" (budget)
}

// Health checks the key-value store, the audit log when enabled, and whether
// the budget is spent.
func (g *Guard) Health(ctx context.Context) HealthStatus {
	report := g.health.Check(ctx)
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	return HealthStatus{
		Status: string(report.Status),
		Checks: checks,
	}
}
