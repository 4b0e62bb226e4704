package usage

import (
	"testing"
	"time"

	"github.com/kailas-cloud/tokenguard/internal/domain/budget"
	"github.com/kailas-cloud/tokenguard/internal/domain/money"
	"github.com/kailas-cloud/tokenguard/internal/domain/pricing"
	"github.com/kailas-cloud/tokenguard/internal/domain/usage/metrics"
)

func TestNewReport(t *testing.T) {
	at := time.Date(2026, 4, 1, 17, 0, 0, 0, time.UTC)
	tot := metrics.Counters{Requests: 2, InputTokens: 10, OutputCost: 5}.Snapshot()
	rates := pricing.DefaultSchedule().RatesAt(at)
	b := budget.Status{Ceiling: money.FromDollars(2), Spent: 5}

	r := NewReport(at, tot, rates, pricing.DefaultWindow, b)

	if !r.GeneratedAt().Equal(at) {
		t.Errorf("GeneratedAt() = %v", r.GeneratedAt())
	}
	if r.Totals().Requests() != 2 {
		t.Errorf("Totals().Requests() = %d", r.Totals().Requests())
	}
	if !r.IsDiscountPeriod() {
		t.Error("17:00 UTC should be discounted")
	}
	if r.DiscountWindow() != pricing.DefaultWindow {
		t.Errorf("DiscountWindow() = %v", r.DiscountWindow())
	}
	if r.Budget().Spent != 5 {
		t.Errorf("Budget().Spent = %d", r.Budget().Spent)
	}
}
