package tokenguard

import "github.com/kailas-cloud/tokenguard/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidBudget    = domain.ErrInvalidBudget
	ErrBudgetExceeded   = domain.ErrBudgetExceeded
	ErrQuotaExceeded    = domain.ErrQuotaExceeded
	ErrNoSuchToken      = domain.ErrNoSuchToken
	ErrStoreUnavailable = domain.ErrStoreUnavailable
	ErrInvalidTier      = domain.ErrInvalidTier
	ErrInvalidUsage     = domain.ErrInvalidUsage
)
