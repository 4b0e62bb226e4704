// Package budget owns the global spend ceiling and its threshold alerts.
package budget

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tokenguard/internal/domain"
	dombudget "github.com/kailas-cloud/tokenguard/internal/domain/budget"
	"github.com/kailas-cloud/tokenguard/internal/domain/money"
	"github.com/kailas-cloud/tokenguard/internal/metrics"
)

// DefaultHistoryLimit is the number of ceiling changes returned when no limit is given.
const DefaultHistoryLimit = 10

// Config holds governor limits.
type Config struct {
	Ceiling    money.Amount
	Min        money.Amount
	Max        money.Amount
	Thresholds []float64
	// Metrics receives the budget gauges; nil means metrics.Default.
	Metrics *metrics.Metering
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{
		Ceiling:    dombudget.DefaultCeiling,
		Min:        dombudget.DefaultMin,
		Max:        dombudget.DefaultMax,
		Thresholds: slices.Clone(dombudget.DefaultThresholds),
	}
}

// InvalidBudgetError wraps ErrInvalidBudget with the rejected amount and bounds.
type InvalidBudgetError struct {
	Amount money.Amount
	Min    money.Amount
	Max    money.Amount
}

func (e *InvalidBudgetError) Error() string {
	return fmt.Sprintf("%s: $%.2f is outside [$%.2f, $%.2f]",
		domain.ErrInvalidBudget.Error(), e.Amount.Dollars(), e.Min.Dollars(), e.Max.Dollars())
}

func (e *InvalidBudgetError) Unwrap() error { return domain.ErrInvalidBudget }

// Governor serializes all mutations of the ceiling and spend under one mutex.
// A ceiling change starts a new alerting epoch.
type Governor struct {
	mu          sync.Mutex
	ceiling     money.Amount
	spent       money.Amount
	lastUpdated time.Time
	min         money.Amount
	max         money.Amount
	thresholds  []float64
	fired       map[float64]bool
	history     []dombudget.Change
	alerts      []dombudget.Alert
	now         func() time.Time
	metrics     *metrics.Metering
	logger      *zap.Logger
}

// New creates a Governor. Thresholds are sorted ascending.
func New(cfg Config, now func() time.Time, logger *zap.Logger) (*Governor, error) {
	if cfg.Min <= 0 || cfg.Max < cfg.Min {
		return nil, fmt.Errorf("budget bounds [%s, %s] are invalid", cfg.Min, cfg.Max)
	}
	if cfg.Ceiling < cfg.Min || cfg.Ceiling > cfg.Max {
		return nil, &InvalidBudgetError{Amount: cfg.Ceiling, Min: cfg.Min, Max: cfg.Max}
	}
	th := slices.Clone(cfg.Thresholds)
	slices.Sort(th)
	for _, t := range th {
		if t <= 0 || t > 1 {
			return nil, fmt.Errorf("alert threshold %v must be in (0, 1]", t)
		}
	}
	if now == nil {
		now = time.Now
	}
	sink := cfg.Metrics
	if sink == nil {
		sink = metrics.Default
	}
	g := &Governor{
		ceiling:     cfg.Ceiling,
		min:         cfg.Min,
		max:         cfg.Max,
		thresholds:  slices.Compact(th),
		fired:       make(map[float64]bool),
		lastUpdated: now().UTC(),
		now:         now,
		metrics:     sink,
		logger:      logger,
	}
	sink.SetBudget(0, cfg.Ceiling)
	return g, nil
}

// SetBudget replaces the ceiling, records the change and re-arms every threshold.
func (g *Governor) SetBudget(amount money.Amount) (dombudget.Change, error) {
	if amount < g.min || amount > g.max {
		return dombudget.Change{}, &InvalidBudgetError{Amount: amount, Min: g.min, Max: g.max}
	}

	g.mu.Lock()
	now := g.now().UTC()
	change := dombudget.Change{At: now, Old: g.ceiling, New: amount}
	g.ceiling = amount
	g.lastUpdated = now
	g.history = append(g.history, change)
	g.fired = make(map[float64]bool)
	g.alerts = nil
	spent := g.spent
	g.mu.Unlock()

	g.metrics.SetBudget(spent, amount)
	g.logger.Info("Budget ceiling changed",
		zap.Float64("old_budget", change.Old.Dollars()),
		zap.Float64("new_budget", change.New.Dollars()),
	)
	return change, nil
}

// AddCost adds delta to spend and returns the status plus any alerts fired by this call,
// in ascending threshold order.
func (g *Governor) AddCost(delta money.Amount) (dombudget.Status, []dombudget.Alert) {
	if delta < 0 {
		delta = 0
	}

	g.mu.Lock()
	now := g.now().UTC()
	if sum, ok := g.spent.Add(delta); ok {
		g.spent = sum
	} else {
		g.spent = math.MaxInt64
	}
	g.lastUpdated = now
	st := g.statusLocked()

	var fired []dombudget.Alert
	ratio := st.Ratio()
	for _, th := range g.thresholds {
		if ratio < th || g.fired[th] {
			continue
		}
		g.fired[th] = true
		a := dombudget.Alert{At: now, Threshold: th, Spent: st.Spent, Remaining: st.Remaining()}
		g.alerts = append(g.alerts, a)
		fired = append(fired, a)
	}
	g.mu.Unlock()

	g.metrics.SetBudget(st.Spent, st.Ceiling)
	for _, a := range fired {
		g.metrics.BudgetAlert(a.Threshold)
		g.logger.Warn("Budget threshold crossed",
			zap.Float64("threshold", a.Threshold),
			zap.Float64("current_cost", a.Spent.Dollars()),
			zap.Float64("remaining_budget", a.Remaining.Dollars()),
		)
	}
	return st, fired
}

// Exceeded reports whether spend is strictly above the ceiling.
func (g *Governor) Exceeded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.spent > g.ceiling
}

// Status returns a snapshot.
func (g *Governor) Status() dombudget.Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusLocked()
}

func (g *Governor) statusLocked() dombudget.Status {
	return dombudget.Status{Ceiling: g.ceiling, Spent: g.spent, LastUpdated: g.lastUpdated}
}

// History returns up to limit most recent ceiling changes, oldest first.
// A non-positive limit means DefaultHistoryLimit.
func (g *Governor) History(limit int) []dombudget.Change {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	start := max(len(g.history)-limit, 0)
	return slices.Clone(g.history[start:])
}

// Alerts returns the alerts of the current epoch in firing order.
func (g *Governor) Alerts() []dombudget.Alert {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.alerts)
}

// Bounds returns the configured [min, max] ceiling range.
func (g *Governor) Bounds() (money.Amount, money.Amount) {
	return g.min, g.max
}

// ResetSpend zeroes spend. Ceiling, history, alerts and fired thresholds are kept,
// so thresholds do not re-fire until the next ceiling change.
func (g *Governor) ResetSpend() {
	g.mu.Lock()
	g.spent = 0
	g.lastUpdated = g.now().UTC()
	ceiling := g.ceiling
	g.mu.Unlock()
	g.metrics.SetBudget(0, ceiling)
}
