// Package quota holds per-principal allowance accounts.
package quota

import (
	"time"

	"github.com/kailas-cloud/tokenguard/internal/domain/tier"
)

// Account tracks one principal's consumption.
type Account struct {
	Principal   string
	Tier        tier.Tier
	DailyUsed   int64
	MonthlyUsed int64
	LastReset   time.Time // UTC instant of the last rollover check that reset something, or creation
}

// NewAccount creates a zeroed account anchored at now.
func NewAccount(principal string, t tier.Tier, now time.Time) Account {
	return Account{Principal: principal, Tier: t, LastReset: now.UTC()}
}

// Rollover zeroes counters whose calendar period (UTC) has advanced past LastReset.
// It reports which counters were reset.
func (a *Account) Rollover(now time.Time) (daily, monthly bool) {
	now = now.UTC()
	last := a.LastReset.UTC()

	if truncateToDay(now).After(truncateToDay(last)) {
		a.DailyUsed = 0
		daily = true
	}
	if truncateToMonth(now).After(truncateToMonth(last)) {
		a.MonthlyUsed = 0
		monthly = true
	}
	if daily || monthly {
		a.LastReset = now
	}
	return daily, monthly
}

// Usage is a read-only view of an account against its policy.
// Limit and Remaining pointers are nil when the scope is not enforced.
type Usage struct {
	Tier             tier.Tier
	DailyLimit       *int64
	MonthlyLimit     *int64
	DailyUsed        int64
	MonthlyUsed      int64
	RemainingDaily   *int64
	RemainingMonthly *int64
}

// UsageOf projects an account through a policy.
func UsageOf(a Account, p tier.Policy) Usage {
	u := Usage{Tier: a.Tier, DailyUsed: a.DailyUsed, MonthlyUsed: a.MonthlyUsed}
	if p.DailyEnforced() {
		u.DailyLimit = ptr(p.DailyLimit)
		u.RemainingDaily = ptr(max(p.DailyLimit-a.DailyUsed, 0))
	}
	if p.MonthlyEnforced() {
		u.MonthlyLimit = ptr(p.MonthlyLimit)
		u.RemainingMonthly = ptr(max(p.MonthlyLimit-a.MonthlyUsed, 0))
	}
	return u
}

func ptr(v int64) *int64 { return &v }

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NextDay returns the start of the UTC day after t.
func NextDay(t time.Time) time.Time {
	return truncateToDay(t.UTC()).AddDate(0, 0, 1)
}

// NextMonth returns the start of the UTC month after t.
func NextMonth(t time.Time) time.Time {
	return truncateToMonth(t.UTC()).AddDate(0, 1, 0)
}
