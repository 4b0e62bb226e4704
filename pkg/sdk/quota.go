package tokenguard

import (
	"context"

	"github.com/kailas-cloud/tokenguard/internal/domain/tier"
)

// QuotaUsage reports a principal's token consumption against its tier.
// Unknown principals report zero usage.
func (g *Guard) QuotaUsage(ctx context.Context, principal string, t Tier) (QuotaUsage, error) {
	parsed, err := tier.Parse(string(t))
	if err != nil {
		return QuotaUsage{}, err
	}
	u, err := g.ledger.GetUsage(ctx, principal, parsed)
	if err != nil {
		return QuotaUsage{}, err
	}
	return QuotaUsage{
		Tier:             Tier(u.Tier),
		DailyLimit:       u.DailyLimit,
		MonthlyLimit:     u.MonthlyLimit,
		DailyUsed:        u.DailyUsed,
		MonthlyUsed:      u.MonthlyUsed,
		RemainingDaily:   u.RemainingDaily,
		RemainingMonthly: u.RemainingMonthly,
	}, nil
}
