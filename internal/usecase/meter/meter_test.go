package meter

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tokenguard/internal/domain"
	"github.com/kailas-cloud/tokenguard/internal/domain/money"
	"github.com/kailas-cloud/tokenguard/internal/domain/pricing"
	"github.com/kailas-cloud/tokenguard/internal/domain/usage"
	"github.com/kailas-cloud/tokenguard/internal/metrics"
	"github.com/kailas-cloud/tokenguard/internal/usecase/budget"
	"github.com/kailas-cloud/tokenguard/internal/usecase/projection"
)

var noon = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type mockAudit struct {
	mu      sync.Mutex
	records []usage.Record
	err     error
}

func (m *mockAudit) Append(_ context.Context, r usage.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return m.err
}

func newMeter(t *testing.T, ceiling float64, at time.Time) (*Meter, *budget.Governor, *projection.Engine) {
	t.Helper()
	now := func() time.Time { return at }
	cfg := budget.DefaultConfig()
	cfg.Ceiling = money.FromDollars(ceiling)
	gov, err := budget.New(cfg, now, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	proj := projection.New(projection.DefaultWindow)
	m := New(pricing.NewOracle(pricing.DefaultSchedule()), gov, proj, now, zap.NewNop())
	return m, gov, proj
}

func TestRecordUsage_CostIsExact(t *testing.T) {
	for _, at := range []time.Time{noon, noon.Add(6 * time.Hour)} {
		m, _, _ := newMeter(t, 100, at)
		rates := pricing.DefaultSchedule().RatesAt(at)

		for _, tc := range []struct {
			in, out  int64
			cacheHit bool
		}{
			{0, 0, false},
			{1, 1, true},
			{12_345, 678, false},
			{1_000_000, 250_000, true},
		} {
			ch, err := m.RecordUsage(context.Background(), Request{InputTokens: tc.in, OutputTokens: tc.out, CacheHit: tc.cacheHit})
			if err != nil {
				t.Fatal(err)
			}
			want := rates.Input(tc.cacheHit)*money.Amount(tc.in) + rates.Output*money.Amount(tc.out)
			if ch.Cost != want {
				t.Errorf("at %s cost(%d,%d,%v) = %d, want %d", at.Format("15:04"), tc.in, tc.out, tc.cacheHit, ch.Cost, want)
			}
		}
	}
}

func TestRecordUsage_Counters(t *testing.T) {
	m, gov, proj := newMeter(t, 10, noon)
	ctx := context.Background()

	_, _ = m.RecordUsage(ctx, Request{InputTokens: 1000, OutputTokens: 200, CacheHit: true})
	_, _ = m.RecordUsage(ctx, Request{InputTokens: 500, OutputTokens: 100})

	tot := m.Totals()
	if tot.Requests() != 2 || tot.InputTokens() != 1500 || tot.OutputTokens() != 300 {
		t.Errorf("totals = %+v", tot)
	}
	if tot.CacheHits() != 1 || tot.CacheMisses() != 1 {
		t.Errorf("cache counters = %d/%d", tot.CacheHits(), tot.CacheMisses())
	}
	if tot.TotalCost() != gov.Status().Spent {
		t.Errorf("meter total %s != governor spent %s", tot.TotalCost(), gov.Status().Spent)
	}
	wantIn := money.PerMillionTokens(0.07)*1000 + money.PerMillionTokens(0.27)*500
	if tot.InputCost() != wantIn {
		t.Errorf("InputCost() = %d, want %d", tot.InputCost(), wantIn)
	}
	if proj.Len() != 2 {
		t.Errorf("projection window = %d", proj.Len())
	}
}

func TestRecordUsage_BudgetExceededAfterCharge(t *testing.T) {
	m, gov, _ := newMeter(t, 0.10, noon)

	// 100k output tokens at $1.10/M = $0.11
	ch, err := m.RecordUsage(context.Background(), Request{Principal: "u1", OutputTokens: 100_000})
	if !errors.Is(err, domain.ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
	if ch.Cost != money.FromDollars(0.11) {
		t.Errorf("Cost = %s", ch.Cost)
	}
	if gov.Status().Spent != money.FromDollars(0.11) {
		t.Errorf("spend must not be rolled back, got %s", gov.Status().Spent)
	}
}

func TestRecordUsage_RejectsNegativeTokens(t *testing.T) {
	m, gov, _ := newMeter(t, 2, noon)
	_, err := m.RecordUsage(context.Background(), Request{InputTokens: -1})
	if !errors.Is(err, domain.ErrInvalidUsage) {
		t.Fatalf("expected ErrInvalidUsage, got %v", err)
	}
	if m.Totals().Requests() != 0 || gov.Status().Spent != 0 {
		t.Error("invalid report must not mutate state")
	}
}

func TestRecordUsage_RejectsUnpriceableTokenCounts(t *testing.T) {
	for _, req := range []Request{
		{Principal: "p", OutputTokens: 9_000_000_000_000},
		{Principal: "p", InputTokens: math.MaxInt64, CacheHit: true},
	} {
		m, gov, proj := newMeter(t, 2, noon)
		sink := &mockAudit{}
		m.WithAudit(sink)

		ch, err := m.RecordUsage(context.Background(), req)
		if !errors.Is(err, domain.ErrInvalidUsage) {
			t.Fatalf("RecordUsage(%+v) error = %v, want ErrInvalidUsage", req, err)
		}
		if !errors.Is(err, pricing.ErrCostOverflow) {
			t.Errorf("error should wrap ErrCostOverflow, got %v", err)
		}
		if ch.Cost != 0 {
			t.Errorf("Cost = %s, want zero", ch.Cost)
		}
		if m.Totals().Requests() != 0 || m.Totals().OutputCost() != 0 {
			t.Errorf("totals mutated: %+v", m.Totals())
		}
		if gov.Status().Spent != 0 {
			t.Errorf("spent = %s, want zero", gov.Status().Spent)
		}
		if proj.Len() != 0 || len(sink.records) != 0 {
			t.Error("rejected request must not reach projection or audit")
		}
	}
}

func TestRecordUsage_MetricsSink(t *testing.T) {
	m, _, _ := newMeter(t, 10, noon)
	sink := metrics.NewMetering()
	m.WithMetrics(sink)

	_, err := m.RecordUsage(context.Background(), Request{InputTokens: 1000, OutputTokens: 200, CacheHit: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(sink.Tokens.WithLabelValues("input_cache_hit")); got != 1000 {
		t.Errorf("input tokens = %v", got)
	}
	if got := testutil.ToFloat64(sink.Tokens.WithLabelValues("output")); got != 200 {
		t.Errorf("output tokens = %v", got)
	}
	// 1000*70_000 + 200*1_100_000 picodollars
	if got := testutil.ToFloat64(sink.Cost.WithLabelValues("standard")); got != 290_000_000 {
		t.Errorf("cost = %v", got)
	}
	if got := testutil.ToFloat64(sink.MeteredRequests.WithLabelValues("standard")); got != 1 {
		t.Errorf("requests = %v", got)
	}

	_, _ = m.RecordUsage(context.Background(), Request{OutputTokens: 9_000_000_000_000})
	if got := testutil.ToFloat64(sink.MeteredRequests.WithLabelValues("standard")); got != 1 {
		t.Errorf("rejected request was counted: %v", got)
	}
}

func TestRecordUsage_Audit(t *testing.T) {
	m, _, _ := newMeter(t, 2, noon.Add(5*time.Hour))
	sink := &mockAudit{err: errors.New("disk full")}
	m.WithAudit(sink)

	if _, err := m.RecordUsage(context.Background(), Request{Principal: "u1", InputTokens: 10}); err != nil {
		t.Fatalf("audit failure must not surface: %v", err)
	}
	if len(sink.records) != 1 {
		t.Fatalf("records = %d", len(sink.records))
	}
	r := sink.records[0]
	if r.Principal != "u1" || r.ID == "" || !r.Discounted {
		t.Errorf("record = %+v", r)
	}
}

func TestResetUsage(t *testing.T) {
	m, gov, _ := newMeter(t, 1, noon)
	_, _ = m.RecordUsage(context.Background(), Request{OutputTokens: 800_000}) // $0.88
	alerts := len(gov.Alerts())

	m.ResetUsage()

	if m.Totals().Requests() != 0 || m.Totals().TotalCost() != 0 {
		t.Error("counters not reset")
	}
	st := gov.Status()
	if st.Spent != 0 || st.Ceiling != money.FromDollars(1) {
		t.Errorf("status after reset = %+v", st)
	}
	if len(gov.Alerts()) != alerts || alerts == 0 {
		t.Errorf("alert history changed by reset: before %d after %d", alerts, len(gov.Alerts()))
	}
}

func TestRecordUsage_Concurrent(t *testing.T) {
	m, gov, _ := newMeter(t, 100, noon)
	var wg sync.WaitGroup
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 25 {
				_, _ = m.RecordUsage(context.Background(), Request{InputTokens: 100, OutputTokens: 10})
			}
		}()
	}
	wg.Wait()

	tot := m.Totals()
	if tot.Requests() != 1600 || tot.InputTokens() != 160_000 {
		t.Errorf("lost updates: %+v", tot)
	}
	if tot.TotalCost() != gov.Status().Spent {
		t.Errorf("meter %s != governor %s", tot.TotalCost(), gov.Status().Spent)
	}
}
