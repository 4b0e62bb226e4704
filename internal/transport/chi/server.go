package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tokenguard/internal/domain/chat"
	"github.com/kailas-cloud/tokenguard/internal/domain/money"
	logpkg "github.com/kailas-cloud/tokenguard/internal/logger"
	budgetuc "github.com/kailas-cloud/tokenguard/internal/usecase/budget"
	completionuc "github.com/kailas-cloud/tokenguard/internal/usecase/completion"
	healthuc "github.com/kailas-cloud/tokenguard/internal/usecase/health"
	meteruc "github.com/kailas-cloud/tokenguard/internal/usecase/meter"
	quotauc "github.com/kailas-cloud/tokenguard/internal/usecase/quota"
	usageuc "github.com/kailas-cloud/tokenguard/internal/usecase/usage"
)

const (
	defaultHistoryLimit = 10
	defaultDailyDays    = 7
	maxPromptBytes      = 64 << 10
)

var errMissingPrincipal = errors.New("missing " + HeaderPrincipalID + " header")

// Server holds the HTTP handlers.
type Server struct {
	completion *completionuc.Service
	governor   *budgetuc.Governor
	meter      *meteruc.Meter
	ledger     *quotauc.Ledger
	usage      *usageuc.Service
	health     *healthuc.Service
}

// NewServer creates an HTTP API server.
func NewServer(
	completion *completionuc.Service,
	governor *budgetuc.Governor,
	meter *meteruc.Meter,
	ledger *quotauc.Ledger,
	usage *usageuc.Service,
	health *healthuc.Service,
) *Server {
	return &Server{
		completion: completion,
		governor:   governor,
		meter:      meter,
		ledger:     ledger,
		usage:      usage,
		health:     health,
	}
}

// Chat handles POST /chat for authenticated principals.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	caller, err := principalFromRequest(r)
	if err != nil {
		writeCallerError(w, r, err)
		return
	}
	s.chat(w, r, caller)
}

// AnonymousChat handles POST /api/anonymous/chat for anonymous session tokens.
func (s *Server) AnonymousChat(w http.ResponseWriter, r *http.Request) {
	caller, err := anonymousFromRequest(r)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	s.chat(w, r, caller)
}

// AddressChat handles POST /anonymous-chat, limited per client address.
func (s *Server) AddressChat(w http.ResponseWriter, r *http.Request) {
	s.chat(w, r, completionuc.Caller{ClientIP: clientIP(r)})
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request, caller completionuc.Caller) {
	r = r.WithContext(logpkg.With(r.Context(), zap.String("caller", callerKind(caller))))

	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPromptBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "prompt is required")
		return
	}

	res, err := s.completion.Chat(r.Context(), caller, chat.Request{
		Prompt:   req.Prompt,
		Tone:     req.Tone,
		Language: req.Language,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	logpkg.AddFields(r.Context(),
		zap.String("outcome", string(res.Outcome.Kind)),
		zap.Float64("cost_usd", res.Outcome.Cost.Dollars()),
	)
	if !res.Outcome.IsAllowed() {
		logpkg.AddFields(r.Context(), zap.String("reason", string(res.Outcome.Reason)))
		writeDenial(w, res.Outcome)
		return
	}
	writeJSON(w, http.StatusOK, chatToResponse(res.Reply, res.Outcome))
}

// TokenUsage handles GET /token-usage.
func (s *Server) TokenUsage(w http.ResponseWriter, r *http.Request) {
	caller, err := principalFromRequest(r)
	if err != nil {
		writeCallerError(w, r, err)
		return
	}
	u, err := s.ledger.GetUsage(r.Context(), caller.Principal, caller.Tier)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quotaToResponse(u))
}

// IssueAnonymousToken handles POST /api/anonymous/token.
func (s *Server) IssueAnonymousToken(w http.ResponseWriter, r *http.Request) {
	tok, err := s.completion.IssueAnonymous(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenToResponse(tok))
}

// GetAnonymousToken handles GET /api/anonymous/token/{id}.
func (s *Server) GetAnonymousToken(w http.ResponseWriter, r *http.Request) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true})
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid token id")
		return
	}
	tok, err := s.completion.LookupAnonymous(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenToResponse(tok))
}

// GetBudget handles GET /budget.
func (s *Server) GetBudget(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusToResponse(s.governor.Status()))
}

// SetBudget handles POST /budget.
func (s *Server) SetBudget(w http.ResponseWriter, r *http.Request) {
	var req BudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Amount == nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "amount is required")
		return
	}

	ch, err := s.governor.SetBudget(money.FromDollars(*req.Amount))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	logpkg.FromContext(r.Context()).Info("Budget updated",
		zap.String("old", ch.Old.String()),
		zap.String("new", ch.New.String()),
	)
	writeJSON(w, http.StatusOK, map[string]float64{"new_budget": ch.New.Dollars()})
}

// GetBudgetHistory handles GET /budget/history?limit=N.
func (s *Server) GetBudgetHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "limit must be an integer")
		return
	}

	changes := s.governor.History(limit)
	items := make([]BudgetChangeResponse, len(changes))
	for i, c := range changes {
		items[i] = BudgetChangeResponse{Timestamp: c.At, OldBudget: c.Old.Dollars(), NewBudget: c.New.Dollars()}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": items})
}

// GetBudgetAlerts handles GET /budget/alerts.
func (s *Server) GetBudgetAlerts(w http.ResponseWriter, _ *http.Request) {
	alerts := s.governor.Alerts()
	items := make([]BudgetAlertResponse, len(alerts))
	for i, a := range alerts {
		items[i] = BudgetAlertResponse{
			Timestamp:       a.At,
			Threshold:       a.Threshold,
			CurrentCost:     a.Spent.Dollars(),
			BudgetRemaining: a.Remaining.Dollars(),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": items})
}

// GetUsage handles GET /usage.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, reportToResponse(s.usage.GetReport(r.Context())))
}

// GetProjection handles GET /usage/projection.
func (s *Server) GetProjection(w http.ResponseWriter, r *http.Request) {
	p, ok := s.usage.GetProjection(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, MessageResponse{Message: "Not enough data for projection"})
		return
	}
	writeJSON(w, http.StatusOK, projectionToResponse(p))
}

// GetDailyUsage handles GET /usage/daily?days=N.
func (s *Server) GetDailyUsage(w http.ResponseWriter, r *http.Request) {
	days := defaultDailyDays
	if err := runtime.BindQueryParameter("form", true, false, "days", r.URL.Query(), &days); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "days must be an integer")
		return
	}
	out, err := s.usage.DailyHistory(r.Context(), days)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": daysToResponse(out)})
}

// ResetUsage handles POST /reset.
func (s *Server) ResetUsage(w http.ResponseWriter, _ *http.Request) {
	s.meter.ResetUsage()
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Usage statistics reset successfully"})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, HealthResponse{Status: string(report.Status), Checks: checks})
}

func callerKind(c completionuc.Caller) string {
	switch {
	case c.Anonymous:
		return "anonymous"
	case c.Principal == "":
		return "address"
	default:
		return "principal"
	}
}

func writeCallerError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errMissingPrincipal) {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, err.Error())
		return
	}
	handleDomainError(w, r, err)
}
