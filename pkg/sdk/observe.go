package tokenguard

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/tokenguard/internal/metrics"
)

// sdkMetrics holds prometheus metrics registered for the SDK.
type sdkMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	outcomes   *prometheus.CounterVec
	cost       prometheus.Counter
}

func newSDKMetrics(reg prometheus.Registerer) (*sdkMetrics, error) {
	m := &sdkMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tokenguard",
			Subsystem: "sdk",
			Name:      "operations_total",
			Help:      "Total SDK operations by type and status (ok or error class).",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tokenguard",
			Subsystem: "sdk",
			Name:      "operation_duration_seconds",
			Help:      "SDK operation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tokenguard",
			Subsystem: "sdk",
			Name:      "outcomes_total",
			Help:      "Reported completions by outcome kind and denial reason.",
		}, []string{"kind", "reason"}),
		cost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tokenguard",
			Subsystem: "sdk",
			Name:      "cost_dollars_total",
			Help:      "Cost of every reported completion, allowed or denied.",
		}),
	}
	err := errors.Join(
		metrics.RegisterOrReuse(reg, &m.operations),
		metrics.RegisterOrReuse(reg, &m.duration),
		metrics.RegisterOrReuse(reg, &m.outcomes),
		metrics.RegisterOrReuse(reg, &m.cost),
	)
	if err != nil {
		return nil, fmt.Errorf("tokenguard: %w", err)
	}
	return m, nil
}

// observer provides logging and metrics for SDK operations.
type observer struct {
	logger  *slog.Logger
	metrics *sdkMetrics
}

func newObserver(logger *slog.Logger, reg prometheus.Registerer) (*observer, error) {
	var m *sdkMetrics
	if reg != nil {
		var err error
		m, err = newSDKMetrics(reg)
		if err != nil {
			return nil, err
		}
	}
	return &observer{logger: logger, metrics: m}, nil
}

func (o *observer) observe(
	op string, start time.Time, err error,
) {
	if o == nil {
		return
	}
	dur := time.Since(start)

	class := errorClass(err)
	if o.metrics != nil {
		o.metrics.operations.WithLabelValues(op, class).Inc()
		o.metrics.duration.WithLabelValues(op).Observe(
			dur.Seconds(),
		)
	}

	if o.logger != nil {
		switch class {
		case "ok":
			o.logger.Debug("operation completed",
				"op", op,
				"duration", dur,
			)
		case "invalid", "not_found":
			o.logger.Debug("operation rejected",
				"op", op,
				"error", err,
			)
		default:
			o.logger.Warn("operation failed",
				"op", op,
				"duration", dur,
				"error", err,
			)
		}
	}
}

// errorClass buckets an error for the status label.
func errorClass(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidBudget), errors.Is(err, ErrInvalidTier), errors.Is(err, ErrInvalidUsage):
		return "invalid"
	case errors.Is(err, ErrNoSuchToken):
		return "not_found"
	case errors.Is(err, ErrStoreUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

func (o *observer) outcome(out Outcome) {
	if o == nil {
		return
	}
	if o.metrics != nil {
		o.metrics.outcomes.WithLabelValues(out.Kind, out.Reason).Inc()
		o.metrics.cost.Add(out.CostUSD)
	}
	if o.logger != nil && !out.Allowed() {
		o.logger.Info("completion denied",
			"reason", out.Reason,
			"scope", out.Scope,
			"cost_usd", out.CostUSD,
		)
	}
}
