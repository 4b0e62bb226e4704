package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tokenguard/internal/domain"
	"github.com/kailas-cloud/tokenguard/internal/domain/outcome"
	logpkg "github.com/kailas-cloud/tokenguard/internal/logger"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

var errorHandlers = []errorHandler{
	quotaHandler,
	sentinelHandler(domain.ErrInvalidBudget, http.StatusBadRequest, CodeInvalidBudget),
	sentinelHandler(domain.ErrInvalidUsage, http.StatusBadRequest, CodeBadRequest),
	sentinelHandler(domain.ErrInvalidTier, http.StatusBadRequest, CodeBadRequest),
	sentinelHandler(domain.ErrBudgetExceeded, http.StatusPaymentRequired, CodeBudgetExceeded),
	sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited),
	sentinelHandler(domain.ErrNoSuchToken, http.StatusUnauthorized, CodeNoSuchToken),
	sentinelHandler(domain.ErrStoreUnavailable, http.StatusServiceUnavailable, CodeStoreUnavailable),
	sentinelHandler(domain.ErrUpstream, http.StatusBadGateway, CodeUpstreamError),
}

// denialStatus maps an outcome reason to its HTTP status and code.
var denialStatus = map[outcome.Reason]struct {
	status int
	code   string
}{
	outcome.ReasonBudgetExceeded:   {http.StatusPaymentRequired, CodeBudgetExceeded},
	outcome.ReasonQuotaExceeded:    {http.StatusTooManyRequests, CodeQuotaExceeded},
	outcome.ReasonNoSuchToken:      {http.StatusUnauthorized, CodeNoSuchToken},
	outcome.ReasonRateLimited:      {http.StatusTooManyRequests, CodeRateLimited},
	outcome.ReasonStoreUnavailable: {http.StatusServiceUnavailable, CodeStoreUnavailable},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// writeDenial renders a denied outcome. The cost is reported because the
// request was already charged.
func writeDenial(w http.ResponseWriter, o outcome.Outcome) {
	m, ok := denialStatus[o.Reason]
	if !ok {
		m = denialStatus[outcome.ReasonStoreUnavailable]
	}
	if o.Reason == outcome.ReasonQuotaExceeded || o.Reason == outcome.ReasonRateLimited {
		w.Header().Set("Retry-After", "60")
	}
	writeJSON(w, m.status, ErrorResponse{
		Code:            m.code,
		Message:         safeDomainMessage(o.Reason),
		Scope:           string(o.Scope),
		RemainingTokens: o.Remaining,
		Cost:            o.Cost.Dollars(),
	})
}

// safeDomainMessage returns a client-facing message without exposing internals.
func safeDomainMessage(r outcome.Reason) string {
	switch r {
	case outcome.ReasonBudgetExceeded:
		return domain.ErrBudgetExceeded.Error()
	case outcome.ReasonQuotaExceeded:
		return domain.ErrQuotaExceeded.Error()
	case outcome.ReasonNoSuchToken:
		return domain.ErrNoSuchToken.Error()
	case outcome.ReasonRateLimited:
		return domain.ErrRateLimited.Error()
	default:
		return domain.ErrStoreUnavailable.Error()
	}
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		msg := sentinel.Error()
		if errors.Is(err, domain.ErrInvalidBudget) || errors.Is(err, domain.ErrInvalidTier) {
			msg = err.Error()
		}
		writeError(w, status, code, msg)
		return true
	}
}

// quotaHandler adds the breached scope to the body.
func quotaHandler(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		return false
	}
	w.Header().Set("Retry-After", "60")
	writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
		Code:    CodeQuotaExceeded,
		Message: domain.ErrQuotaExceeded.Error(),
		Scope:   string(domain.ScopeOf(err)),
	})
	return true
}

func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logpkg.FromContext(r.Context())
	logger.Warn("domain error", zap.Error(err))
	for _, h := range errorHandlers {
		if h(w, err) {
			return
		}
	}
	logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
