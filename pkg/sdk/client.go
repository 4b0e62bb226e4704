package tokenguard

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tokenguard/internal/db"
	"github.com/kailas-cloud/tokenguard/internal/db/memory"
	dbRedis "github.com/kailas-cloud/tokenguard/internal/db/redis"
	dombudget "github.com/kailas-cloud/tokenguard/internal/domain/budget"
	"github.com/kailas-cloud/tokenguard/internal/domain/money"
	"github.com/kailas-cloud/tokenguard/internal/domain/pricing"
	"github.com/kailas-cloud/tokenguard/internal/domain/tier"
	"github.com/kailas-cloud/tokenguard/internal/metrics"
	"github.com/kailas-cloud/tokenguard/internal/repository/anonymous"
	"github.com/kailas-cloud/tokenguard/internal/repository/audit"
	"github.com/kailas-cloud/tokenguard/internal/repository/ipquota"
	quotarepo "github.com/kailas-cloud/tokenguard/internal/repository/quota"
	budgetuc "github.com/kailas-cloud/tokenguard/internal/usecase/budget"
	completionuc "github.com/kailas-cloud/tokenguard/internal/usecase/completion"
	healthuc "github.com/kailas-cloud/tokenguard/internal/usecase/health"
	meteruc "github.com/kailas-cloud/tokenguard/internal/usecase/meter"
	"github.com/kailas-cloud/tokenguard/internal/usecase/projection"
	quotauc "github.com/kailas-cloud/tokenguard/internal/usecase/quota"
	usageuc "github.com/kailas-cloud/tokenguard/internal/usecase/usage"
)

const defaultReadinessTimeout = 10 * time.Second

// Guard is the tokenguard SDK entry point. It is safe for concurrent use.
type Guard struct {
	store      db.Store
	audit      *audit.Store
	oracle     *pricing.Oracle
	governor   *budgetuc.Governor
	meter      *meteruc.Meter
	ledger     *quotauc.Ledger
	completion *completionuc.Service
	usage      *usageuc.Service
	health     *healthuc.Service
	obs        *observer
}

// New creates a Guard. The provided context is used for the initial
// readiness check of a Redis or Valkey store.
func New(ctx context.Context, opts ...Option) (*Guard, error) {
	cfg := &guardConfig{driver: "memory", now: time.Now}
	for _, o := range opts {
		o.apply(cfg)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	store, err := createStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	g, err := wireGuard(ctx, store, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	g.obs = obs
	return g, nil
}

func createStore(ctx context.Context, cfg *guardConfig) (db.Store, error) {
	switch cfg.driver {
	case "memory":
		return memory.NewStore(memory.WithClock(cfg.now)), nil
	case "valkey", "redis":
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.addrs,
			Password: cfg.password,
		})
		if err != nil {
			return nil, fmt.Errorf("tokenguard: create %s store: %w", cfg.driver, err)
		}
		if err := s.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			s.Close()
			return nil, fmt.Errorf("tokenguard: database not ready: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("tokenguard: unknown driver %q", cfg.driver)
	}
}

func wireGuard(ctx context.Context, store db.Store, cfg *guardConfig) (*Guard, error) {
	schedule := pricing.DefaultSchedule()
	if cfg.pricing != nil {
		s, err := cfg.pricing.schedule()
		if err != nil {
			return nil, fmt.Errorf("tokenguard: %w", err)
		}
		schedule = s
	}

	budgetCfg := budgetuc.DefaultConfig()
	if cfg.budget > 0 {
		budgetCfg.Ceiling = money.FromDollars(cfg.budget)
	}
	if cfg.budgetMin > 0 {
		budgetCfg.Min = money.FromDollars(cfg.budgetMin)
	}
	if cfg.budgetMax > 0 {
		budgetCfg.Max = money.FromDollars(cfg.budgetMax)
	}
	if len(cfg.thresholds) > 0 {
		budgetCfg.Thresholds = cfg.thresholds
	}

	quotaCfg := quotauc.DefaultConfig()
	for t, l := range cfg.tiers {
		parsed, err := tier.Parse(string(t))
		if err != nil {
			return nil, fmt.Errorf("tokenguard: %w", err)
		}
		quotaCfg.Tiers[parsed] = tier.Policy{DailyLimit: l.Daily, MonthlyLimit: l.Monthly}
	}
	if cfg.softProbability != nil {
		quotaCfg.HardWatermark = cfg.hardWatermark
		quotaCfg.SoftWatermark = cfg.softWatermark
		quotaCfg.SoftProbability = *cfg.softProbability
	}

	// Engine collectors are per Guard and exported only through the caller's registry.
	sink := metrics.NewMetering()
	if cfg.metricsReg != nil {
		if err := sink.Register(cfg.metricsReg); err != nil {
			return nil, fmt.Errorf("tokenguard: %w", err)
		}
	}
	budgetCfg.Metrics = sink

	logger := zap.NewNop()
	g := &Guard{store: store, oracle: pricing.NewOracle(schedule)}

	var err error
	g.governor, err = budgetuc.New(budgetCfg, cfg.now, logger)
	if err != nil {
		return nil, fmt.Errorf("tokenguard: %w", err)
	}

	proj := projection.New(cfg.projectionWindow)
	g.meter = meteruc.New(g.oracle, g.governor, proj, cfg.now, logger).WithMetrics(sink)

	var (
		history usageuc.HistoryReader
		auditDB healthuc.Pinger
	)
	if cfg.auditPath != "" {
		g.audit, err = audit.Open(ctx, cfg.auditPath)
		if err != nil {
			return nil, fmt.Errorf("tokenguard: %w", err)
		}
		g.meter = g.meter.WithAudit(g.audit)
		history, auditDB = g.audit, g.audit
	}

	g.ledger = quotauc.New(quotarepo.NewMemoryStore(), quotaCfg, cfg.now, logger).WithMetrics(sink)
	if cfg.rand != nil {
		g.ledger = g.ledger.WithRand(cfg.rand)
	}

	g.completion = completionuc.New(
		g.meter, g.governor, g.ledger,
		anonymous.New(store, anonymous.Config{Quota: cfg.anonQuota, TTL: cfg.anonTTL}, cfg.now),
		ipquota.New(store, cfg.ipDailyLimit, cfg.now),
		logger,
	).WithMetrics(sink)
	g.usage = usageuc.New(g.meter, g.oracle, g.governor, proj, history, cfg.now)
	g.health = healthuc.New(store, nil, auditDB).WithBudget(g.governor)
	return g, nil
}

// Close releases all resources.
func (g *Guard) Close() {
	if g.audit != nil {
		_ = g.audit.Close()
	}
	if g.store != nil {
		g.store.Close()
	}
}

// UpdatePricing hot-swaps the rate table. Requests already being priced keep the old rates.
func (g *Guard) UpdatePricing(p Pricing) error {
	s, err := p.schedule()
	if err != nil {
		return err
	}
	g.oracle.Update(s)
	return nil
}

func (p Pricing) schedule() (pricing.Schedule, error) {
	if p.CacheHitInput < 0 || p.CacheMissInput < 0 || p.Output < 0 {
		return pricing.Schedule{}, fmt.Errorf("pricing: negative rate")
	}
	w, err := pricing.ParseWindow(p.DiscountStart, p.DiscountEnd)
	if err != nil {
		return pricing.Schedule{}, fmt.Errorf("pricing: %w", err)
	}
	return pricing.Schedule{
		Standard: pricing.Rates{
			CacheHitInput:  money.PerMillionTokens(p.CacheHitInput),
			CacheMissInput: money.PerMillionTokens(p.CacheMissInput),
			Output:         money.PerMillionTokens(p.Output),
		},
		Discount: w,
	}, nil
}

// RatesAt returns the rates in effect at t.
func (g *Guard) RatesAt(t time.Time) Rates {
	return ratesFromDomain(g.oracle.RatesAt(t))
}

func ratesFromDomain(r pricing.Rates) Rates {
	return Rates{
		CacheHitInput:  r.CacheHitInput.PerMillion(),
		CacheMissInput: r.CacheMissInput.PerMillion(),
		Output:         r.Output.PerMillion(),
		Discounted:     r.Discounted,
	}
}

func statusFromDomain(s dombudget.Status) BudgetStatus {
	return BudgetStatus{
		Ceiling:     s.Ceiling.Dollars(),
		Spent:       s.Spent.Dollars(),
		Remaining:   s.Remaining().Dollars(),
		Exceeded:    s.Exceeded(),
		LastUpdated: s.LastUpdated,
	}
}
