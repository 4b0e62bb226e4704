package tokenguard

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Guard.
type Option interface {
	apply(*guardConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*guardConfig)

func (f optionFunc) apply(c *guardConfig) { f(c) }

type guardConfig struct {
	driver   string // "memory", "valkey" or "redis"
	addrs    []string
	password string

	budget, budgetMin, budgetMax float64
	thresholds                   []float64
	projectionWindow             int

	pricing *Pricing
	tiers   map[Tier]TierLimits

	hardWatermark, softWatermark int64
	softProbability              *float64

	anonQuota    int64
	anonTTL      time.Duration
	ipDailyLimit int64

	auditPath string

	now  func() time.Time
	rand func() float64

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithValkey keeps anonymous tokens and address counters in a Valkey instance.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *guardConfig) {
		c.driver = "valkey"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithRedis keeps anonymous tokens and address counters in a Redis instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *guardConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithBudget sets the initial spend ceiling in USD. Default: 2.00.
func WithBudget(usd float64) Option {
	return optionFunc(func(c *guardConfig) { c.budget = usd })
}

// WithBudgetBounds sets the range SetBudget accepts. Default: [0.10, 100.00].
func WithBudgetBounds(minUSD, maxUSD float64) Option {
	return optionFunc(func(c *guardConfig) {
		c.budgetMin = minUSD
		c.budgetMax = maxUSD
	})
}

// WithAlertThresholds sets the spend ratios that fire budget alerts.
// Default: 0.80, 0.90, 0.95.
func WithAlertThresholds(ratios ...float64) Option {
	return optionFunc(func(c *guardConfig) { c.thresholds = ratios })
}

// WithProjectionWindow sets how many recent requests feed the forecast. Default: 100.
func WithProjectionWindow(n int) Option {
	return optionFunc(func(c *guardConfig) { c.projectionWindow = n })
}

// WithPricing replaces the standard rate table and discount window.
func WithPricing(p Pricing) Option {
	return optionFunc(func(c *guardConfig) { c.pricing = &p })
}

// WithTierLimits overrides one tier's allowance. Zero means not enforced.
func WithTierLimits(t Tier, l TierLimits) Option {
	return optionFunc(func(c *guardConfig) {
		if c.tiers == nil {
			c.tiers = make(map[Tier]TierLimits)
		}
		c.tiers[t] = l
	})
}

// WithAdvisory sets the upgrade advisory policy. Probability 0 makes it deterministic.
func WithAdvisory(hard, soft int64, probability float64) Option {
	return optionFunc(func(c *guardConfig) {
		c.hardWatermark = hard
		c.softWatermark = soft
		c.softProbability = &probability
	})
}

// WithAnonymousQuota sets the allowance and lifetime of issued anonymous tokens.
// Default: 1000 requests over 24h.
func WithAnonymousQuota(quota int64, ttl time.Duration) Option {
	return optionFunc(func(c *guardConfig) {
		c.anonQuota = quota
		c.anonTTL = ttl
	})
}

// WithAddressDailyLimit sets the daily token allowance per client address. Default: 1000.
func WithAddressDailyLimit(tokens int64) Option {
	return optionFunc(func(c *guardConfig) { c.ipDailyLimit = tokens })
}

// WithAuditLog writes every metered request to a SQLite file at path.
func WithAuditLog(path string) Option {
	return optionFunc(func(c *guardConfig) { c.auditPath = path })
}

// WithClock replaces the time source. Rollovers, pricing windows and token
// expiry all follow it.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(c *guardConfig) { c.now = now })
}

// WithRandom replaces the random source of the soft advisory.
func WithRandom(r func() float64) Option {
	return optionFunc(func(c *guardConfig) { c.rand = r })
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *guardConfig) { c.logger = l })
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *guardConfig) { c.metricsReg = reg })
}
