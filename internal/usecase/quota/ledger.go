// Package quota enforces per-principal daily and monthly token allowances.
package quota

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tokenguard/internal/domain"
	domquota "github.com/kailas-cloud/tokenguard/internal/domain/quota"
	"github.com/kailas-cloud/tokenguard/internal/domain/tier"
	"github.com/kailas-cloud/tokenguard/internal/metrics"
)

// Config holds tier limits and the upgrade advisory policy.
type Config struct {
	Tiers tier.Table
	// HardWatermark: remaining daily tokens at or below which the advisory always fires.
	HardWatermark int64
	// SoftWatermark: remaining daily tokens at or below which the advisory fires
	// with probability SoftProbability.
	SoftWatermark   int64
	SoftProbability float64
}

// DefaultConfig returns the stock tier table and advisory policy.
func DefaultConfig() Config {
	return Config{
		Tiers:           tier.DefaultTable(),
		HardWatermark:   1000,
		SoftWatermark:   2000,
		SoftProbability: 0.30,
	}
}

// Result is the state after a successful charge.
type Result struct {
	Usage    domquota.Usage
	Advisory bool
}

// Remaining returns the remaining allowance of the enforced scope, nil if unbounded.
func (r Result) Remaining() *int64 {
	if r.Usage.RemainingDaily != nil {
		return r.Usage.RemainingDaily
	}
	return r.Usage.RemainingMonthly
}

// Ledger charges tokens to principals. Day and month rollovers are evaluated
// lazily on every access, in UTC.
type Ledger struct {
	store   AccountStore
	cfg     Config
	now     func() time.Time
	rand    func() float64
	metrics *metrics.Metering
	logger  *zap.Logger
}

// New creates a Ledger.
func New(store AccountStore, cfg Config, now func() time.Time, logger *zap.Logger) *Ledger {
	if now == nil {
		now = time.Now
	}
	if cfg.Tiers == nil {
		cfg.Tiers = tier.DefaultTable()
	}
	return &Ledger{
		store:   store,
		cfg:     cfg,
		now:     now,
		rand:    rand.Float64,
		metrics: metrics.Default,
		logger:  logger,
	}
}

// WithMetrics replaces the default process-wide collectors.
func (l *Ledger) WithMetrics(sink *metrics.Metering) *Ledger {
	l.metrics = sink
	return l
}

// WithRand replaces the random source used by the soft advisory watermark.
func (l *Ledger) WithRand(r func() float64) *Ledger {
	l.rand = r
	return l
}

// ReportUsage charges tokens and then checks limits. On QuotaExceeded the
// tokens have already been added.
func (l *Ledger) ReportUsage(ctx context.Context, principal string, t tier.Tier, tokens int64) (Result, error) {
	if tokens < 0 {
		return Result{}, fmt.Errorf("%w: negative token count %d", domain.ErrInvalidUsage, tokens)
	}
	now := l.now()

	acc, err := l.store.Update(ctx, principal, func(a *domquota.Account, exists bool) error {
		if !exists {
			*a = domquota.NewAccount(principal, t, now)
		}
		a.Tier = t
		if daily, monthly := a.Rollover(now); daily || monthly {
			l.logger.Debug("Quota counters rolled over",
				zap.String("principal", principal),
				zap.Bool("daily", daily),
				zap.Bool("monthly", monthly),
			)
		}
		a.DailyUsed += tokens
		a.MonthlyUsed += tokens
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("update account %s: %w", principal, err)
	}

	policy := l.cfg.Tiers.For(t)
	res := Result{Usage: domquota.UsageOf(acc, policy)}

	if policy.DailyEnforced() && acc.DailyUsed > policy.DailyLimit {
		return res, domain.NewQuotaExceeded(domain.ScopeDaily, acc.DailyUsed, policy.DailyLimit)
	}
	if policy.MonthlyEnforced() && acc.MonthlyUsed > policy.MonthlyLimit {
		return res, domain.NewQuotaExceeded(domain.ScopeMonthly, acc.MonthlyUsed, policy.MonthlyLimit)
	}

	if policy.DailyEnforced() && l.advise(*res.Usage.RemainingDaily) {
		res.Advisory = true
		l.metrics.QuotaAdvisories.WithLabelValues(string(t)).Inc()
	}
	return res, nil
}

func (l *Ledger) advise(remaining int64) bool {
	if remaining <= l.cfg.HardWatermark {
		return true
	}
	return remaining <= l.cfg.SoftWatermark && l.rand() < l.cfg.SoftProbability
}

// Check rejects a principal that is already at or over an enforced limit,
// without charging anything.
func (l *Ledger) Check(ctx context.Context, principal string, t tier.Tier) error {
	u, err := l.GetUsage(ctx, principal, t)
	if err != nil {
		return err
	}
	if u.DailyLimit != nil && u.DailyUsed >= *u.DailyLimit {
		return domain.NewQuotaExceeded(domain.ScopeDaily, u.DailyUsed, *u.DailyLimit)
	}
	if u.MonthlyLimit != nil && u.MonthlyUsed >= *u.MonthlyLimit {
		return domain.NewQuotaExceeded(domain.ScopeMonthly, u.MonthlyUsed, *u.MonthlyLimit)
	}
	return nil
}

// GetUsage reports a principal's usage against its tier. Unknown principals
// report zero usage and are not created.
func (l *Ledger) GetUsage(ctx context.Context, principal string, t tier.Tier) (domquota.Usage, error) {
	acc, ok, err := l.store.Get(ctx, principal)
	if err != nil {
		return domquota.Usage{}, fmt.Errorf("get account %s: %w", principal, err)
	}
	if !ok {
		acc = domquota.NewAccount(principal, t, l.now())
	}
	acc.Tier = t
	acc.Rollover(l.now())
	return domquota.UsageOf(acc, l.cfg.Tiers.For(t)), nil
}
