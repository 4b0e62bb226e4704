// Package tier defines service classes and their token allowances.
package tier

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/tokenguard/internal/domain"
)

// Tier is a service class.
type Tier string

// Known tiers.
const (
	Free   Tier = "free"
	Pro    Tier = "pro"
	Custom Tier = "custom"
)

// Parse normalizes and validates a tier name. An empty name is Free.
func Parse(s string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return Free, nil
	case Free, Pro, Custom:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidTier, s)
	}
}

// Policy is a tier's allowance. A zero limit is not enforced.
type Policy struct {
	DailyLimit   int64
	MonthlyLimit int64
}

// DailyEnforced reports whether a daily limit applies.
func (p Policy) DailyEnforced() bool { return p.DailyLimit > 0 }

// MonthlyEnforced reports whether a monthly limit applies.
func (p Policy) MonthlyEnforced() bool { return p.MonthlyLimit > 0 }

// Table maps tiers to policies.
type Table map[Tier]Policy

// DefaultTable: free is daily-capped, paid tiers are monthly-capped.
func DefaultTable() Table {
	return Table{
		Free:   {DailyLimit: 10_000},
		Pro:    {MonthlyLimit: 1_000_000},
		Custom: {MonthlyLimit: 5_000_000},
	}
}

// For returns the policy for t. Unknown tiers fall back to Free.
func (tb Table) For(t Tier) Policy {
	if p, ok := tb[t]; ok {
		return p
	}
	return tb[Free]
}
