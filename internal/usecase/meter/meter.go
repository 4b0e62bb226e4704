// Package meter converts token counts into cost and feeds the budget and projection.
package meter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tokenguard/internal/domain"
	"github.com/kailas-cloud/tokenguard/internal/domain/budget"
	"github.com/kailas-cloud/tokenguard/internal/domain/money"
	"github.com/kailas-cloud/tokenguard/internal/domain/pricing"
	"github.com/kailas-cloud/tokenguard/internal/domain/usage"
	usagemetrics "github.com/kailas-cloud/tokenguard/internal/domain/usage/metrics"
	"github.com/kailas-cloud/tokenguard/internal/metrics"
)

const auditTimeout = 2 * time.Second

// Request is one completed upstream call.
type Request struct {
	Principal    string
	InputTokens  int64
	OutputTokens int64
	CacheHit     bool
}

// Charge is what a request cost and where spend stands afterwards.
type Charge struct {
	Cost   money.Amount
	Rates  pricing.Rates
	Status budget.Status
	Alerts []budget.Alert
}

// Meter accumulates counters under a mutex and forwards cost downstream.
// Cost is charged before the ceiling check: an over-budget request is still billed.
type Meter struct {
	mu       sync.Mutex
	counters usagemetrics.Counters

	oracle    PriceOracle
	governor  Governor
	projector Projector
	audit     AuditSink
	metrics   *metrics.Metering
	now       func() time.Time
	logger    *zap.Logger
}

// New creates a Meter. audit may be nil.
func New(oracle PriceOracle, governor Governor, projector Projector, now func() time.Time, logger *zap.Logger) *Meter {
	if now == nil {
		now = time.Now
	}
	return &Meter{
		oracle:    oracle,
		governor:  governor,
		projector: projector,
		metrics:   metrics.Default,
		now:       now,
		logger:    logger,
	}
}

// WithAudit attaches a write-behind audit sink.
func (m *Meter) WithAudit(sink AuditSink) *Meter {
	m.audit = sink
	return m
}

// WithMetrics replaces the default process-wide collectors.
func (m *Meter) WithMetrics(sink *metrics.Metering) *Meter {
	m.metrics = sink
	return m
}

// RecordUsage meters one request. It returns ErrBudgetExceeded, together with the
// charge, when spend is strictly above the ceiling after this request.
func (m *Meter) RecordUsage(ctx context.Context, req Request) (Charge, error) {
	if req.InputTokens < 0 || req.OutputTokens < 0 {
		return Charge{}, fmt.Errorf("%w: negative token count (input=%d, output=%d)",
			domain.ErrInvalidUsage, req.InputTokens, req.OutputTokens)
	}

	at := m.now().UTC()
	cost, rates, err := m.oracle.Cost(at, req.InputTokens, req.OutputTokens, req.CacheHit)
	if err != nil {
		return Charge{}, fmt.Errorf("%w: %w", domain.ErrInvalidUsage, err)
	}
	inputCost := rates.Input(req.CacheHit).Times(req.InputTokens)

	m.mu.Lock()
	m.counters.Requests++
	m.counters.InputTokens += req.InputTokens
	m.counters.OutputTokens += req.OutputTokens
	if req.CacheHit {
		m.counters.CacheHits++
	} else {
		m.counters.CacheMisses++
	}
	m.counters.InputCost += inputCost
	m.counters.OutputCost += cost - inputCost
	m.mu.Unlock()

	st, alerts := m.governor.AddCost(cost)
	m.projector.LogRequest(cost)
	m.metrics.ObserveUsage(req.CacheHit, rates.Discounted, req.InputTokens, req.OutputTokens, cost)

	if m.audit != nil {
		m.appendAudit(ctx, usage.Record{
			ID:           uuid.NewString(),
			At:           at,
			Principal:    req.Principal,
			InputTokens:  req.InputTokens,
			OutputTokens: req.OutputTokens,
			CacheHit:     req.CacheHit,
			Cost:         cost,
			Discounted:   rates.Discounted,
		})
	}

	charge := Charge{Cost: cost, Rates: rates, Status: st, Alerts: alerts}
	if st.Exceeded() {
		m.logger.Warn("Budget exceeded",
			zap.String("principal", req.Principal),
			zap.Float64("current_cost", st.Spent.Dollars()),
			zap.Float64("budget", st.Ceiling.Dollars()),
		)
		return charge, fmt.Errorf("%w: current cost $%.2f, budget $%.2f",
			domain.ErrBudgetExceeded, st.Spent.Dollars(), st.Ceiling.Dollars())
	}
	return charge, nil
}

// appendAudit writes the record with a detached timeout so a slow sink
// does not inherit a cancelled request context.
func (m *Meter) appendAudit(ctx context.Context, r usage.Record) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := m.audit.Append(ctx, r); err != nil {
		m.logger.Warn("Failed to append usage audit record", zap.String("id", r.ID), zap.Error(err))
	}
}

// Totals returns the cumulative counters.
func (m *Meter) Totals() usagemetrics.Totals {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters.Snapshot()
}

// ResetUsage zeroes counters and spend. The ceiling and alert history are untouched.
func (m *Meter) ResetUsage() {
	m.mu.Lock()
	m.counters = usagemetrics.Counters{}
	m.mu.Unlock()
	m.governor.ResetSpend()
	m.logger.Info("Usage statistics reset")
}
