package completion

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tokenguard/internal/db/memory"
	dombudget "github.com/kailas-cloud/tokenguard/internal/domain/budget"
	"github.com/kailas-cloud/tokenguard/internal/domain/money"
	"github.com/kailas-cloud/tokenguard/internal/domain/outcome"
	"github.com/kailas-cloud/tokenguard/internal/domain/pricing"
	"github.com/kailas-cloud/tokenguard/internal/domain/tier"
	"github.com/kailas-cloud/tokenguard/internal/repository/anonymous"
	"github.com/kailas-cloud/tokenguard/internal/repository/ipquota"
	quotarepo "github.com/kailas-cloud/tokenguard/internal/repository/quota"
	"github.com/kailas-cloud/tokenguard/internal/usecase/budget"
	"github.com/kailas-cloud/tokenguard/internal/usecase/meter"
	"github.com/kailas-cloud/tokenguard/internal/usecase/projection"
	"github.com/kailas-cloud/tokenguard/internal/usecase/quota"
)

// TestAdmissionFeatures executes the admission scenarios via godog.
func TestAdmissionFeatures(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "admission",
		ScenarioInitializer: initializeAdmissionScenario,
		Options: &godog.Options{
			Format:   "progress",
			Paths:    []string{"testdata/features"},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero godog status")
	}
}

func initializeAdmissionScenario(sc *godog.ScenarioContext) {
	st := &admissionState{}
	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		st.reset()
		return ctx, nil
	})

	sc.Step(`^a budget ceiling of \$(\d+\.\d+)$`, st.givenCeiling)
	sc.Step(`^the clock is at "([^"]+)"$`, st.setClock)
	sc.Step(`^the clock advances to "([^"]+)"$`, st.setClock)
	sc.Step(`^an anonymous token with (\d+) requests$`, st.givenAnonymousToken)
	sc.Step(`^(\d+) charges of \$(\d+\.\d+) are added$`, st.addCharges)
	sc.Step(`^the budget ceiling is changed to \$(\d+\.\d+)$`, st.changeCeiling)
	sc.Step(`^principal "([^"]+)" on tier "([^"]+)" reports (\d+) input and (\d+) output tokens$`, st.principalReports)
	sc.Step(`^the anonymous token reports (\d+) completions$`, st.anonymousReports)
	sc.Step(`^spend to date is \$(\d+\.\d+)$`, st.spendIs)
	sc.Step(`^no budget alert has fired$`, st.noAlerts)
	sc.Step(`^the alerts fired by the last charge are at "([^"]+)"$`, st.alertsAt)
	sc.Step(`^the outcome is allowed$`, st.outcomeAllowed)
	sc.Step(`^the outcome is denied with reason "([^"]*)" and scope "([^"]*)"$`, st.outcomeDenied)
	sc.Step(`^principal "([^"]+)" on tier "([^"]+)" has used (\d+) tokens today$`, st.usedToday)
	sc.Step(`^principal "([^"]+)" on tier "([^"]+)" has used (\d+) tokens this month$`, st.usedThisMonth)
	sc.Step(`^the charged cost is \$(\d+\.\d+)$`, st.costIs)
	sc.Step(`^every anonymous completion was allowed$`, st.allAllowed)
	sc.Step(`^the anonymous token has (\d+) requests left$`, st.tokenLeft)
}

// admissionState holds one scenario's stack and observations.
type admissionState struct {
	clock  time.Time
	gov    *budget.Governor
	ledger *quota.Ledger
	anon   *anonymous.Store
	svc    *Service

	anonQuota int64
	tokenID   string
	alerts    []dombudget.Alert
	outcomes  []outcome.Outcome
}

func (s *admissionState) reset() {
	*s = admissionState{clock: noon}
}

func (s *admissionState) now() time.Time { return s.clock }

func (s *admissionState) givenCeiling(dollars float64) error {
	cfg := budget.DefaultConfig()
	cfg.Ceiling = money.FromDollars(dollars)
	gov, err := budget.New(cfg, s.now, zap.NewNop())
	if err != nil {
		return err
	}
	s.gov = gov
	s.rebuild()
	return nil
}

func (s *admissionState) givenAnonymousToken(n int64) error {
	s.anonQuota = n
	s.rebuild()
	tok, err := s.svc.IssueAnonymous(context.Background())
	if err != nil {
		return err
	}
	s.tokenID = tok.ID
	return nil
}

func (s *admissionState) rebuild() {
	m := meter.New(pricing.NewOracle(pricing.DefaultSchedule()), s.gov, projection.New(projection.DefaultWindow), s.now, zap.NewNop())
	if s.ledger == nil {
		s.ledger = quota.New(quotarepo.NewMemoryStore(), quota.DefaultConfig(), s.now, zap.NewNop()).
			WithRand(func() float64 { return 0.99 })
	}
	kv := memory.NewStore(memory.WithClock(s.now))
	s.anon = anonymous.New(kv, anonymous.Config{Quota: s.anonQuota}, s.now)
	s.svc = New(m, s.gov, s.ledger, s.anon, ipquota.New(kv, 1000, s.now), zap.NewNop())
}

func (s *admissionState) setClock(raw string) error {
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return err
	}
	s.clock = at
	return nil
}

func (s *admissionState) addCharges(n int, dollars float64) error {
	s.alerts = nil
	for range n {
		_, fired := s.gov.AddCost(money.FromDollars(dollars))
		s.alerts = append(s.alerts, fired...)
	}
	return nil
}

func (s *admissionState) changeCeiling(dollars float64) error {
	_, err := s.gov.SetBudget(money.FromDollars(dollars))
	return err
}

func (s *admissionState) report(r Report) error {
	o, err := s.svc.ReportCompletion(context.Background(), r)
	if err != nil {
		return err
	}
	s.outcomes = append(s.outcomes, o)
	return nil
}

func (s *admissionState) principalReports(principal, rawTier string, in, out int64) error {
	t, err := tier.Parse(rawTier)
	if err != nil {
		return err
	}
	return s.report(Report{
		Caller:      Caller{Principal: principal, Tier: t},
		InputTokens: in, OutputTokens: out,
	})
}

func (s *admissionState) anonymousReports(n int) error {
	s.outcomes = nil
	for range n {
		if err := s.report(Report{Caller: Caller{Principal: s.tokenID, Anonymous: true}, InputTokens: 1}); err != nil {
			return err
		}
	}
	return nil
}

func (s *admissionState) last() (outcome.Outcome, error) {
	if len(s.outcomes) == 0 {
		return outcome.Outcome{}, errors.New("no completion was reported")
	}
	return s.outcomes[len(s.outcomes)-1], nil
}

func (s *admissionState) spendIs(dollars float64) error {
	if got, want := s.gov.Status().Spent, money.FromDollars(dollars); got != want {
		return fmt.Errorf("spent = %s, want %s", got, want)
	}
	return nil
}

func (s *admissionState) noAlerts() error {
	if len(s.alerts) != 0 {
		return fmt.Errorf("unexpected alerts: %+v", s.alerts)
	}
	return nil
}

func (s *admissionState) alertsAt(list string) error {
	parts := strings.Split(list, ",")
	if len(parts) != len(s.alerts) {
		return fmt.Errorf("got %d alerts, want %d", len(s.alerts), len(parts))
	}
	for i, p := range parts {
		want, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return err
		}
		if s.alerts[i].Threshold != want {
			return fmt.Errorf("alert %d threshold = %v, want %v", i, s.alerts[i].Threshold, want)
		}
	}
	return nil
}

func (s *admissionState) outcomeAllowed() error {
	o, err := s.last()
	if err != nil {
		return err
	}
	if o.Kind != outcome.Allowed {
		return fmt.Errorf("outcome = %+v", o)
	}
	return nil
}

func (s *admissionState) outcomeDenied(reason, scope string) error {
	o, err := s.last()
	if err != nil {
		return err
	}
	if o.Kind != outcome.Denied || string(o.Reason) != reason || string(o.Scope) != scope {
		return fmt.Errorf("outcome = %+v", o)
	}
	return nil
}

func (s *admissionState) usedToday(principal, rawTier string, want int64) error {
	return s.checkUsage(principal, rawTier, func(daily, _ int64) (int64, string) { return daily, "daily" }, want)
}

func (s *admissionState) usedThisMonth(principal, rawTier string, want int64) error {
	return s.checkUsage(principal, rawTier, func(_, monthly int64) (int64, string) { return monthly, "monthly" }, want)
}

func (s *admissionState) checkUsage(principal, rawTier string, pick func(daily, monthly int64) (int64, string), want int64) error {
	t, err := tier.Parse(rawTier)
	if err != nil {
		return err
	}
	u, err := s.ledger.GetUsage(context.Background(), principal, t)
	if err != nil {
		return err
	}
	got, scope := pick(u.DailyUsed, u.MonthlyUsed)
	if got != want {
		return fmt.Errorf("%s used = %d, want %d", scope, got, want)
	}
	return nil
}

func (s *admissionState) costIs(dollars float64) error {
	o, err := s.last()
	if err != nil {
		return err
	}
	if want := money.FromDollars(dollars); o.Cost != want {
		return fmt.Errorf("cost = %s, want %s", o.Cost, want)
	}
	return nil
}

func (s *admissionState) allAllowed() error {
	for i, o := range s.outcomes {
		if !o.IsAllowed() {
			return fmt.Errorf("completion %d: %+v", i+1, o)
		}
	}
	return nil
}

func (s *admissionState) tokenLeft(want int64) error {
	tok, err := s.anon.Lookup(context.Background(), s.tokenID)
	if err != nil {
		return err
	}
	if tok.QuotaRemaining != want {
		return fmt.Errorf("remaining = %d, want %d", tok.QuotaRemaining, want)
	}
	return nil
}
