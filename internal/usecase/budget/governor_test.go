package budget

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tokenguard/internal/domain"
	"github.com/kailas-cloud/tokenguard/internal/domain/money"
	"github.com/kailas-cloud/tokenguard/internal/metrics"
)

var fixedNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func newGovernor(t *testing.T, ceiling float64) *Governor {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Ceiling = money.FromDollars(ceiling)
	g, err := New(cfg, func() time.Time { return fixedNow }, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func thresholdsOf(g *Governor) []float64 {
	var out []float64
	for _, a := range g.Alerts() {
		out = append(out, a.Threshold)
	}
	return out
}

func TestAddCost_AlertScenario(t *testing.T) {
	g := newGovernor(t, 2.00)

	for range 3 {
		g.AddCost(money.FromDollars(0.50))
	}
	st := g.Status()
	if st.Spent != money.FromDollars(1.50) {
		t.Fatalf("Spent = %s, want $1.50", st.Spent)
	}
	if len(g.Alerts()) != 0 {
		t.Fatalf("no alert expected at 75%%, got %v", thresholdsOf(g))
	}

	_, fired := g.AddCost(money.FromDollars(0.30))
	if len(fired) != 2 {
		t.Fatalf("fired %d alerts, want 2", len(fired))
	}
	got := thresholdsOf(g)
	if len(got) != 2 || got[0] != 0.80 || got[1] != 0.90 {
		t.Errorf("alerts = %v, want [0.8 0.9]", got)
	}
	if g.Alerts()[1].Spent != money.FromDollars(1.80) {
		t.Errorf("alert spent = %s", g.Alerts()[1].Spent)
	}
}

func TestAddCost_EachThresholdOncePerEpoch(t *testing.T) {
	g := newGovernor(t, 1.00)

	step := money.FromDollars(0.01)
	for range 150 {
		g.AddCost(step)
	}
	got := thresholdsOf(g)
	if len(got) != 3 || got[0] != 0.80 || got[1] != 0.90 || got[2] != 0.95 {
		t.Fatalf("alerts = %v, want each threshold exactly once", got)
	}
	for i, a := range g.Alerts() {
		if a.Spent.Dollars() < a.Threshold*1.00-1e-9 {
			t.Errorf("alert %d fired early: spent %s for threshold %v", i, a.Spent, a.Threshold)
		}
	}
}

func TestSetBudget_RearmsThresholds(t *testing.T) {
	g := newGovernor(t, 1.00)
	g.AddCost(money.FromDollars(0.85))
	if len(g.Alerts()) != 1 {
		t.Fatalf("alerts = %v", thresholdsOf(g))
	}

	change, err := g.SetBudget(money.FromDollars(1.00))
	if err != nil {
		t.Fatal(err)
	}
	if change.Old != money.FromDollars(1.00) || change.New != money.FromDollars(1.00) {
		t.Errorf("change = %+v", change)
	}
	if len(g.Alerts()) != 0 {
		t.Fatal("alerts should be cleared by a ceiling change")
	}

	_, fired := g.AddCost(0)
	if len(fired) != 1 || fired[0].Threshold != 0.80 {
		t.Errorf("0.80 should re-fire in the new epoch, got %v", fired)
	}
}

func TestSetBudget_Bounds(t *testing.T) {
	g := newGovernor(t, 2.00)

	for _, amt := range []float64{0.05, 100.01, 0} {
		_, err := g.SetBudget(money.FromDollars(amt))
		if !errors.Is(err, domain.ErrInvalidBudget) {
			t.Errorf("SetBudget(%v) err = %v, want ErrInvalidBudget", amt, err)
		}
	}
	if len(g.History(0)) != 0 {
		t.Error("rejected changes must not be recorded")
	}
	if g.Status().Ceiling != money.FromDollars(2.00) {
		t.Error("ceiling mutated by rejected change")
	}

	for _, amt := range []float64{0.10, 100.00} {
		if _, err := g.SetBudget(money.FromDollars(amt)); err != nil {
			t.Errorf("SetBudget(%v) at bound: %v", amt, err)
		}
	}
}

func TestHistory_Limit(t *testing.T) {
	g := newGovernor(t, 2.00)
	for i := 1; i <= 12; i++ {
		if _, err := g.SetBudget(money.FromDollars(float64(i))); err != nil {
			t.Fatal(err)
		}
	}

	h := g.History(0)
	if len(h) != DefaultHistoryLimit {
		t.Fatalf("len(History) = %d, want %d", len(h), DefaultHistoryLimit)
	}
	if h[0].New != money.FromDollars(3) || h[9].New != money.FromDollars(12) {
		t.Errorf("history window = %s..%s", h[0].New, h[9].New)
	}
	if len(g.History(3)) != 3 || len(g.History(100)) != 12 {
		t.Error("explicit limits not honoured")
	}
}

func TestResetSpend_KeepsCeilingAndAlerts(t *testing.T) {
	g := newGovernor(t, 1.00)
	g.AddCost(money.FromDollars(0.90))
	g.ResetSpend()

	st := g.Status()
	if st.Spent != 0 || st.Ceiling != money.FromDollars(1.00) {
		t.Errorf("status after reset = %+v", st)
	}
	if len(g.Alerts()) != 2 {
		t.Errorf("alerts should survive reset, got %v", thresholdsOf(g))
	}
	if _, fired := g.AddCost(money.FromDollars(0.85)); len(fired) != 0 {
		t.Errorf("fired thresholds must not re-fire after reset: %v", fired)
	}
}

func TestExceeded_Strict(t *testing.T) {
	g := newGovernor(t, 1.00)
	g.AddCost(money.FromDollars(1.00))
	if g.Exceeded() {
		t.Error("spend equal to ceiling is not exceeded")
	}
	g.AddCost(1)
	if !g.Exceeded() {
		t.Error("spend above ceiling should be exceeded")
	}
}

func TestAddCost_SaturatesInsteadOfWrapping(t *testing.T) {
	g := newGovernor(t, 1.00)
	g.AddCost(math.MaxInt64 - 10)
	st, _ := g.AddCost(money.Dollar)
	if st.Spent != math.MaxInt64 {
		t.Errorf("spent = %d, want MaxInt64", st.Spent)
	}
	if !g.Exceeded() {
		t.Error("saturated spend must stay exceeded")
	}
}

func TestMetricsSink(t *testing.T) {
	sink := metrics.NewMetering()
	cfg := DefaultConfig()
	cfg.Ceiling = money.FromDollars(1.00)
	cfg.Metrics = sink
	g, err := New(cfg, func() time.Time { return fixedNow }, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(sink.BudgetCeiling); got != 1 {
		t.Errorf("ceiling gauge = %v", got)
	}

	g.AddCost(money.FromDollars(0.85))
	if got := testutil.ToFloat64(sink.BudgetSpent); got != 0.85 {
		t.Errorf("spent gauge = %v", got)
	}
	if got := testutil.ToFloat64(sink.BudgetAlerts.WithLabelValues("0.8")); got != 1 {
		t.Errorf("alerts{0.8} = %v", got)
	}

	if _, err := g.SetBudget(money.FromDollars(4)); err != nil {
		t.Fatal(err)
	}
	g.ResetSpend()
	if got := testutil.ToFloat64(sink.BudgetCeiling); got != 4 {
		t.Errorf("ceiling gauge after change = %v", got)
	}
	if got := testutil.ToFloat64(sink.BudgetSpent); got != 0 {
		t.Errorf("spent gauge after reset = %v", got)
	}
}

func TestNew_Validation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Thresholds = []float64{0.5, 1.5}
	if _, err := New(cfg, nil, zap.NewNop()); err == nil {
		t.Error("expected error for threshold > 1")
	}

	cfg = DefaultConfig()
	cfg.Ceiling = money.FromDollars(500)
	if _, err := New(cfg, nil, zap.NewNop()); !errors.Is(err, domain.ErrInvalidBudget) {
		t.Errorf("expected ErrInvalidBudget, got %v", err)
	}
}

func TestAddCost_Concurrent(t *testing.T) {
	g := newGovernor(t, 100.00)

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				g.AddCost(money.Microdollar)
			}
		}()
	}
	wg.Wait()

	if got := g.Status().Spent; got != 10_000*money.Microdollar {
		t.Errorf("Spent = %d, want %d (lost updates)", got, 10_000*money.Microdollar)
	}
}
