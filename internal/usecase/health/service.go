package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultCheckTimeout bounds each component check.
const DefaultCheckTimeout = 2 * time.Second

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an optional component failed or the budget is spent.
	Degraded Status = "degraded"
	// Unhealthy indicates the quota store is down; anonymous traffic is being denied.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
	// CheckExceeded marks a spent budget: every completion is being denied.
	CheckExceeded CheckResult = "exceeded"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	pingers map[string]func(context.Context) error
	budget  BudgetState
	timeout time.Duration
}

// New creates a Service. upstream and audit can be nil.
func New(db Pinger, upstream UpstreamChecker, audit Pinger) *Service {
	pingers := map[string]func(context.Context) error{"database": db.Ping}
	if upstream != nil {
		pingers["upstream"] = upstream.HealthCheck
	}
	if audit != nil {
		pingers["audit"] = audit.Ping
	}
	return &Service{pingers: pingers, timeout: DefaultCheckTimeout}
}

// WithBudget adds the budget state to the report.
func (s *Service) WithBudget(b BudgetState) *Service {
	s.budget = b
	return s
}

// WithTimeout overrides the per-component timeout.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Check pings every component concurrently.
func (s *Service) Check(ctx context.Context) Report {
	var mu sync.Mutex
	checks := make(map[string]CheckResult, len(s.pingers)+1)

	var g errgroup.Group
	for name, ping := range s.pingers {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			r := result(ping(pctx))
			mu.Lock()
			checks[name] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if s.budget != nil {
		checks["budget"] = CheckOK
		if s.budget.Exceeded() {
			checks["budget"] = CheckExceeded
		}
	}

	status := Healthy
	for _, v := range checks {
		if v != CheckOK {
			status = Degraded
			break
		}
	}
	if checks["database"] == CheckError {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
