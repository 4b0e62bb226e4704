// Package completion turns a completed upstream call into an admission outcome.
package completion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tokenguard/internal/domain"
	"github.com/kailas-cloud/tokenguard/internal/domain/anonymous"
	"github.com/kailas-cloud/tokenguard/internal/domain/chat"
	"github.com/kailas-cloud/tokenguard/internal/domain/outcome"
	"github.com/kailas-cloud/tokenguard/internal/domain/tier"
	"github.com/kailas-cloud/tokenguard/internal/metrics"
	"github.com/kailas-cloud/tokenguard/internal/usecase/meter"
)

// anonymousConsume is what one completed anonymous request takes from its token.
const anonymousConsume = 1

// Caller identifies who is being charged. Exactly one of the three forms is used:
// an authenticated principal with a tier, an anonymous session token
// (Anonymous set, Principal holds the token id), or a bare client address.
type Caller struct {
	Principal string
	Tier      tier.Tier
	Anonymous bool
	ClientIP  string
}

func (c Caller) byAddress() bool { return c.Principal == "" && c.ClientIP != "" }

// label is the principal recorded in the meter and audit log.
func (c Caller) label() string {
	switch {
	case c.Anonymous:
		return "anonymous:" + c.Principal
	case c.byAddress():
		return "ip:" + c.ClientIP
	default:
		return c.Principal
	}
}

// Report is one completed upstream call.
type Report struct {
	Caller
	InputTokens  int64
	OutputTokens int64
	CacheHit     bool
}

// ChatResult carries the upstream reply (absent on pre-flight denial) and the outcome.
type ChatResult struct {
	Reply   chat.Reply
	Outcome outcome.Outcome
}

// Service coordinates metering, quota charging and the upstream call.
type Service struct {
	meter   Meter
	budget  BudgetChecker
	ledger  QuotaLedger
	anon    AnonymousStore
	ip      IPCounter
	limiter RateLimiter
	chat    ChatClient
	metrics *metrics.Metering
	logger  *zap.Logger
}

// New creates a Service. anon, ip and chat may be nil when those paths are unused.
func New(m Meter, b BudgetChecker, l QuotaLedger, anon AnonymousStore, ip IPCounter, logger *zap.Logger) *Service {
	return &Service{meter: m, budget: b, ledger: l, anon: anon, ip: ip, metrics: metrics.Default, logger: logger}
}

// WithMetrics replaces the default process-wide collectors.
func (s *Service) WithMetrics(sink *metrics.Metering) *Service {
	s.metrics = sink
	return s
}

// WithChat attaches the upstream client used by Chat.
func (s *Service) WithChat(c ChatClient) *Service {
	s.chat = c
	return s
}

// WithRateLimiter enables per-principal admission limiting for authenticated chat.
func (s *Service) WithRateLimiter(l RateLimiter) *Service {
	s.limiter = l
	return s
}

// ReportCompletion charges the meter and the caller's allowance, then decides.
// Both charges always happen; a budget denial wins over a quota denial.
// The error is non-nil only for malformed reports.
func (s *Service) ReportCompletion(ctx context.Context, r Report) (outcome.Outcome, error) {
	if r.InputTokens < 0 || r.OutputTokens < 0 {
		return outcome.Outcome{}, fmt.Errorf("%w: negative token count (input=%d, output=%d)",
			domain.ErrInvalidUsage, r.InputTokens, r.OutputTokens)
	}
	if r.InputTokens > math.MaxInt64-r.OutputTokens {
		return outcome.Outcome{}, fmt.Errorf("%w: token total overflows (input=%d, output=%d)",
			domain.ErrInvalidUsage, r.InputTokens, r.OutputTokens)
	}

	charge, budgetErr := s.meter.RecordUsage(ctx, meter.Request{
		Principal:    r.label(),
		InputTokens:  r.InputTokens,
		OutputTokens: r.OutputTokens,
		CacheHit:     r.CacheHit,
	})
	if budgetErr != nil && !errors.Is(budgetErr, domain.ErrBudgetExceeded) {
		return outcome.Outcome{}, fmt.Errorf("record usage: %w", budgetErr)
	}

	remaining, advisory, quotaErr := s.chargeQuota(ctx, r)

	var o outcome.Outcome
	switch {
	case budgetErr != nil:
		o = outcome.Deny(budgetErr, charge.Cost)
	case quotaErr != nil:
		o = outcome.Deny(quotaErr, charge.Cost)
	case advisory:
		o = outcome.Advise(remaining, charge.Cost)
	default:
		o = outcome.Allow(remaining, charge.Cost)
	}
	if o.Kind == outcome.Denied {
		o.Remaining = remaining
		s.recordDenial(r.Caller, o)
	}
	return o, nil
}

func (s *Service) chargeQuota(ctx context.Context, r Report) (*int64, bool, error) {
	tokens := r.InputTokens + r.OutputTokens
	switch {
	case r.Anonymous:
		if s.anon == nil {
			return nil, false, fmt.Errorf("%w: anonymous sessions disabled", domain.ErrNoSuchToken)
		}
		left, err := s.anon.Consume(ctx, r.Principal, anonymousConsume)
		if err != nil {
			return nil, false, err
		}
		return &left, false, nil

	case r.byAddress():
		if s.ip == nil {
			return nil, false, fmt.Errorf("%w: address quota disabled", domain.ErrStoreUnavailable)
		}
		used, err := s.ip.Record(ctx, r.ClientIP, tokens)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
		left := max(s.ip.Limit()-used, 0)
		return &left, false, nil

	default:
		res, err := s.ledger.ReportUsage(ctx, r.Principal, r.Tier, tokens)
		return res.Remaining(), res.Advisory, err
	}
}

// preflight rejects callers that are already out of budget or allowance
// before the upstream is paid for.
func (s *Service) preflight(ctx context.Context, c Caller) error {
	if s.budget != nil && s.budget.Exceeded() {
		return fmt.Errorf("%w: spend is over the ceiling", domain.ErrBudgetExceeded)
	}
	switch {
	case c.Anonymous:
		if s.anon == nil {
			return domain.ErrNoSuchToken
		}
		tok, err := s.anon.Lookup(ctx, c.Principal)
		if err != nil {
			return err
		}
		if tok.QuotaRemaining <= 0 {
			return domain.NewQuotaExceeded(domain.ScopeAnonymous, 0, 0)
		}
		return nil
	case c.byAddress():
		if s.ip == nil {
			return fmt.Errorf("%w: address quota disabled", domain.ErrStoreUnavailable)
		}
		return s.ip.Check(ctx, c.ClientIP)
	default:
		if s.limiter != nil {
			if err := s.limiter.Allow(ctx, c.Principal); err != nil {
				return err
			}
		}
		return s.ledger.Check(ctx, c.Principal, c.Tier)
	}
}

// Chat runs pre-flight admission, calls the upstream and reports the usage it returned.
// Denials are returned as outcomes; the error is reserved for upstream and input failures.
func (s *Service) Chat(ctx context.Context, c Caller, req chat.Request) (ChatResult, error) {
	if s.chat == nil {
		return ChatResult{}, fmt.Errorf("%w: no upstream configured", domain.ErrUpstream)
	}
	if err := s.preflight(ctx, c); err != nil {
		o := outcome.Deny(err, 0)
		s.recordDenial(c, o)
		return ChatResult{Outcome: o}, nil
	}

	start := time.Now()
	reply, err := s.chat.Complete(ctx, req)
	if err != nil {
		s.logger.Error("Upstream chat failed",
			zap.String("principal", c.label()),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return ChatResult{}, fmt.Errorf("chat: %w", err)
	}

	o, err := s.ReportCompletion(ctx, Report{
		Caller:       c,
		InputTokens:  reply.InputTokens,
		OutputTokens: reply.OutputTokens,
		CacheHit:     reply.CacheHit,
	})
	if err != nil {
		return ChatResult{}, err
	}

	s.logger.Debug("Chat completed",
		zap.String("principal", c.label()),
		zap.String("model", reply.Model),
		zap.Int64("input_tokens", reply.InputTokens),
		zap.Int64("output_tokens", reply.OutputTokens),
		zap.Bool("cache_hit", reply.CacheHit),
		zap.String("cost", o.Cost.String()),
		zap.String("outcome", string(o.Kind)),
	)
	return ChatResult{Reply: reply, Outcome: o}, nil
}

// IssueAnonymous starts an anonymous session.
func (s *Service) IssueAnonymous(ctx context.Context) (anonymous.Token, error) {
	if s.anon == nil {
		return anonymous.Token{}, fmt.Errorf("%w: anonymous sessions disabled", domain.ErrStoreUnavailable)
	}
	tok, err := s.anon.Issue(ctx)
	if err != nil {
		return anonymous.Token{}, err
	}
	s.metrics.AnonymousTokensIssued.Inc()
	return tok, nil
}

// LookupAnonymous reads an anonymous session.
func (s *Service) LookupAnonymous(ctx context.Context, id string) (anonymous.Token, error) {
	if s.anon == nil {
		return anonymous.Token{}, domain.ErrNoSuchToken
	}
	return s.anon.Lookup(ctx, id)
}

func (s *Service) recordDenial(c Caller, o outcome.Outcome) {
	s.metrics.Denials.WithLabelValues(string(o.Reason), string(o.Scope)).Inc()
	s.logger.Info("Request denied",
		zap.String("principal", c.label()),
		zap.String("reason", string(o.Reason)),
		zap.String("scope", string(o.Scope)),
		zap.String("cost", o.Cost.String()),
	)
}
