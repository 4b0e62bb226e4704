package tokenguard

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/tokenguard/internal/domain/outcome"
	"github.com/kailas-cloud/tokenguard/internal/domain/tier"
	completionuc "github.com/kailas-cloud/tokenguard/internal/usecase/completion"
)

// ReportCompletion charges the cost of a finished upstream call to the global
// budget and to the caller's allowance, then returns the decision. Charges are
// applied even when the outcome is a denial. The error is non-nil only for
// malformed input.
func (g *Guard) ReportCompletion(ctx context.Context, c Completion) (out Outcome, err error) {
	start := time.Now()
	defer func() { g.obs.observe("report_completion", start, err) }()

	caller, err := callerOf(c)
	if err != nil {
		return Outcome{}, err
	}
	o, err := g.completion.ReportCompletion(ctx, completionuc.Report{
		Caller:       caller,
		InputTokens:  c.InputTokens,
		OutputTokens: c.OutputTokens,
		CacheHit:     c.CacheHit,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("report completion: %w", err)
	}
	out = outcomeFromDomain(o)
	g.obs.outcome(out)
	return out, nil
}

func callerOf(c Completion) (completionuc.Caller, error) {
	switch {
	case c.AnonymousToken != "":
		return completionuc.Caller{Principal: c.AnonymousToken, Anonymous: true}, nil
	case c.Principal == "" && c.ClientAddr != "":
		return completionuc.Caller{ClientIP: c.ClientAddr}, nil
	case c.Principal == "":
		return completionuc.Caller{}, fmt.Errorf("%w: no principal, anonymous token or client address", ErrInvalidUsage)
	}
	t, err := tier.Parse(string(c.Tier))
	if err != nil {
		return completionuc.Caller{}, err
	}
	return completionuc.Caller{Principal: c.Principal, Tier: t}, nil
}

func outcomeFromDomain(o outcome.Outcome) Outcome {
	return Outcome{
		Kind:      string(o.Kind),
		Reason:    string(o.Reason),
		Scope:     string(o.Scope),
		Message:   o.Message,
		Remaining: o.Remaining,
		CostUSD:   o.Cost.Dollars(),
	}
}
