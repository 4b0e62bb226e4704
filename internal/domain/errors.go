package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidBudget signals a ceiling outside the configured bounds.
	ErrInvalidBudget = errors.New("invalid budget")
	// ErrBudgetExceeded signals that cumulative spend is above the ceiling.
	ErrBudgetExceeded = errors.New("budget exceeded")
	// ErrQuotaExceeded signals an exhausted principal or anonymous allowance.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrNoSuchToken signals a missing or expired anonymous token.
	ErrNoSuchToken = errors.New("no such token")
	// ErrStoreUnavailable signals that the shared quota store could not be reached.
	ErrStoreUnavailable = errors.New("quota store unavailable")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrUpstream signals an upstream model provider failure.
	ErrUpstream = errors.New("upstream provider error")
	// ErrInvalidTier signals an unknown service tier.
	ErrInvalidTier = errors.New("invalid tier")
	// ErrInvalidUsage signals a malformed usage report (negative token counts).
	ErrInvalidUsage = errors.New("invalid usage")
)

// QuotaScope names the allowance that was breached.
type QuotaScope string

// Quota scopes.
const (
	ScopeDaily     QuotaScope = "daily"
	ScopeMonthly   QuotaScope = "monthly"
	ScopeAnonymous QuotaScope = "anonymous"
	ScopeIPDaily   QuotaScope = "ip_daily"
)

// QuotaExceededError wraps ErrQuotaExceeded with the breached scope.
type QuotaExceededError struct {
	Scope QuotaScope
	Used  int64
	Limit int64
}

func (e *QuotaExceededError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("%s: %s usage %d exceeds limit %d", ErrQuotaExceeded.Error(), e.Scope, e.Used, e.Limit)
	}
	return fmt.Sprintf("%s: %s", ErrQuotaExceeded.Error(), e.Scope)
}

func (e *QuotaExceededError) Unwrap() error { return ErrQuotaExceeded }

// NewQuotaExceeded creates a quota exceeded error for a scope.
func NewQuotaExceeded(scope QuotaScope, used, limit int64) error {
	return &QuotaExceededError{Scope: scope, Used: used, Limit: limit}
}

// ScopeOf returns the scope carried by a quota error, or "" if err is not one.
func ScopeOf(err error) QuotaScope {
	var qe *QuotaExceededError
	if errors.As(err, &qe) {
		return qe.Scope
	}
	return ""
}
