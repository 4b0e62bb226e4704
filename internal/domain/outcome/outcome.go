// Package outcome describes the decision returned for a completed upstream call.
package outcome

import (
	"errors"

	"github.com/kailas-cloud/tokenguard/internal/domain"
	"github.com/kailas-cloud/tokenguard/internal/domain/money"
)

// UpgradeAdvisory is the message attached to near-exhaustion results.
const UpgradeAdvisory = "You're running low on tokens! Consider upgrading to Pro for unlimited daily usage."

// Kind classifies an outcome.
type Kind string

// Outcome kinds.
const (
	Allowed             Kind = "allowed"
	AllowedWithAdvisory Kind = "allowed_with_advisory"
	Denied              Kind = "denied"
)

// Reason explains a denial.
type Reason string

// Denial reasons.
const (
	ReasonBudgetExceeded   Reason = "budget_exceeded"
	ReasonQuotaExceeded    Reason = "quota_exceeded"
	ReasonNoSuchToken      Reason = "no_such_token"
	ReasonStoreUnavailable Reason = "store_unavailable"
	ReasonRateLimited      Reason = "rate_limited"
)

// Outcome is the result of reporting a completion.
// Remaining is nil when the caller's allowance is unbounded.
type Outcome struct {
	Kind      Kind
	Remaining *int64
	Message   string
	Reason    Reason
	Scope     domain.QuotaScope
	Cost      money.Amount
}

// Allow builds an allowed outcome.
func Allow(remaining *int64, cost money.Amount) Outcome {
	return Outcome{Kind: Allowed, Remaining: remaining, Cost: cost}
}

// Advise builds an allowed outcome carrying the upgrade advisory.
func Advise(remaining *int64, cost money.Amount) Outcome {
	return Outcome{Kind: AllowedWithAdvisory, Remaining: remaining, Message: UpgradeAdvisory, Cost: cost}
}

// Deny builds a denial from a domain error. Unknown errors are treated as a
// store failure so the caller fails closed.
func Deny(err error, cost money.Amount) Outcome {
	o := Outcome{Kind: Denied, Cost: cost, Message: err.Error()}
	switch {
	case errors.Is(err, domain.ErrBudgetExceeded):
		o.Reason = ReasonBudgetExceeded
	case errors.Is(err, domain.ErrQuotaExceeded):
		o.Reason = ReasonQuotaExceeded
		o.Scope = domain.ScopeOf(err)
	case errors.Is(err, domain.ErrNoSuchToken):
		o.Reason = ReasonNoSuchToken
	case errors.Is(err, domain.ErrRateLimited):
		o.Reason = ReasonRateLimited
	default:
		o.Reason = ReasonStoreUnavailable
	}
	return o
}

// IsAllowed reports whether the caller may proceed.
func (o Outcome) IsAllowed() bool {
	return o.Kind != Denied
}
