package metrics

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/tokenguard/internal/domain/money"
)

const namespace = "tokenguard"

// Metering holds the collectors written by the governor, meter, quota ledger
// and completion service. Default backs the server; every SDK Guard builds its own.
type Metering struct {
	Tokens                *prometheus.CounterVec
	Cost                  *prometheus.CounterVec
	MeteredRequests       *prometheus.CounterVec
	BudgetSpent           prometheus.Gauge
	BudgetCeiling         prometheus.Gauge
	BudgetAlerts          *prometheus.CounterVec
	Denials               *prometheus.CounterVec
	QuotaAdvisories       *prometheus.CounterVec
	AnonymousTokensIssued prometheus.Counter
}

// Default is the process-wide set registered by RegisterMeteringMetrics.
var Default = NewMetering()

// NewMetering builds an unregistered collector set.
func NewMetering() *Metering {
	return &Metering{
		Tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_total",
				Help:      "Metered tokens by kind",
			},
			[]string{"kind"}, // "input_cache_hit" / "input_cache_miss" / "output"
		),
		Cost: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cost_picodollars_total",
				Help:      "Metered cost in picodollars by pricing regime",
			},
			[]string{"regime"}, // "standard" / "discount"
		),
		MeteredRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "metered_requests_total",
				Help:      "Completed upstream calls reported to the meter",
			},
			[]string{"regime"},
		),
		BudgetSpent: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "budget_spent_dollars",
				Help:      "Cumulative spend since the last reset",
			},
		),
		BudgetCeiling: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "budget_ceiling_dollars",
				Help:      "Current spend ceiling",
			},
		),
		BudgetAlerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "budget_alerts_total",
				Help:      "Budget threshold alerts fired",
			},
			[]string{"threshold"},
		),
		Denials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "denials_total",
				Help:      "Requests denied by reason and scope",
			},
			[]string{"reason", "scope"},
		),
		QuotaAdvisories: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quota_advisories_total",
				Help:      "Upgrade advisories attached to allowed requests",
			},
			[]string{"tier"},
		),
		AnonymousTokensIssued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "anonymous_tokens_issued_total",
				Help:      "Anonymous session tokens issued",
			},
		),
	}
}

func (m *Metering) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Tokens, m.Cost, m.MeteredRequests,
		m.BudgetSpent, m.BudgetCeiling, m.BudgetAlerts,
		m.Denials, m.QuotaAdvisories, m.AnonymousTokensIssued,
	}
}

// Register adds the set to reg. A collector already registered under the same
// name is adopted in place of the fresh one.
func (m *Metering) Register(reg prometheus.Registerer) error {
	return errors.Join(
		RegisterOrReuse(reg, &m.Tokens),
		RegisterOrReuse(reg, &m.Cost),
		RegisterOrReuse(reg, &m.MeteredRequests),
		RegisterOrReuse(reg, &m.BudgetSpent),
		RegisterOrReuse(reg, &m.BudgetCeiling),
		RegisterOrReuse(reg, &m.BudgetAlerts),
		RegisterOrReuse(reg, &m.Denials),
		RegisterOrReuse(reg, &m.QuotaAdvisories),
		RegisterOrReuse(reg, &m.AnonymousTokensIssued),
	)
}

// RegisterOrReuse registers c on reg, or swaps in the collector already there.
func RegisterOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	if err := reg.Register(*c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			existing, ok := are.ExistingCollector.(T)
			if !ok {
				return fmt.Errorf("metric already registered with incompatible type: %T", are.ExistingCollector)
			}
			*c = existing
			return nil
		}
		return fmt.Errorf("register metric: %w", err)
	}
	return nil
}

// ObserveUsage records one metered request.
func (m *Metering) ObserveUsage(cacheHit, discounted bool, inputTokens, outputTokens int64, cost money.Amount) {
	inputKind := "input_cache_miss"
	if cacheHit {
		inputKind = "input_cache_hit"
	}
	regime := Regime(discounted)
	m.Tokens.WithLabelValues(inputKind).Add(float64(inputTokens))
	m.Tokens.WithLabelValues("output").Add(float64(outputTokens))
	m.Cost.WithLabelValues(regime).Add(float64(cost))
	m.MeteredRequests.WithLabelValues(regime).Inc()
}

// SetBudget publishes the current spend and ceiling.
func (m *Metering) SetBudget(spent, ceiling money.Amount) {
	m.BudgetSpent.Set(spent.Dollars())
	m.BudgetCeiling.Set(ceiling.Dollars())
}

// BudgetAlert counts one fired threshold.
func (m *Metering) BudgetAlert(threshold float64) {
	m.BudgetAlerts.WithLabelValues(strconv.FormatFloat(threshold, 'f', -1, 64)).Inc()
}

// Upstream chat metrics, written only by the server's upstream client.
var (
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Upstream chat completion requests",
		},
		[]string{"model", "status"},
	)

	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream chat completion duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"model"},
	)
)

var registerOnce sync.Once

// RegisterMeteringMetrics registers Default and the upstream collectors on the default registry.
func RegisterMeteringMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(Default.collectors()...)
		prometheus.MustRegister(UpstreamRequestsTotal, UpstreamRequestDuration)
	})
}

// Regime returns the label value for a pricing regime.
func Regime(discounted bool) string {
	if discounted {
		return "discount"
	}
	return "standard"
}
