package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/tokenguard/internal/domain/budget"
	domusage "github.com/kailas-cloud/tokenguard/internal/domain/usage"
)

// Service handles usage reporting.
type Service struct {
	totals  TotalsReader
	prices  PriceReader
	budget  BudgetReader
	proj    Projector
	history HistoryReader
	now     func() time.Time
}

// New creates a Service. history can be nil (no audit log).
func New(t TotalsReader, p PriceReader, b BudgetReader, proj Projector, history HistoryReader, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{totals: t, prices: p, budget: b, proj: proj, history: history, now: now}
}

// GetReport builds the current usage report.
func (s *Service) GetReport(_ context.Context) domusage.Report {
	now := s.now().UTC()
	return domusage.NewReport(
		now,
		s.totals.Totals(),
		s.prices.RatesAt(now),
		s.prices.Schedule().Discount,
		s.budget.Status(),
	)
}

// GetProjection forecasts remaining capacity. ok is false while the window is empty.
func (s *Service) GetProjection(_ context.Context) (budget.Projection, bool) {
	return s.proj.Project(s.budget.Status())
}

// DailyHistory returns per-day aggregates for the last days calendar days, today included.
func (s *Service) DailyHistory(ctx context.Context, days int) ([]domusage.DaySummary, error) {
	if s.history == nil {
		return nil, nil
	}
	if days <= 0 {
		days = 7
	}
	today := s.now().UTC().Truncate(24 * time.Hour)
	out, err := s.history.Summary(ctx, today.AddDate(0, 0, -(days-1)))
	if err != nil {
		return nil, fmt.Errorf("daily history: %w", err)
	}
	return out, nil
}
