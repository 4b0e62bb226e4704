package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tokenguard/internal/metrics"
)

// RouterOptions configures the HTTP surface.
type RouterOptions struct {
	// AdminKeys guard the operator endpoints. Empty disables the check.
	AdminKeys []string
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
}

// NewRouter mounts every route on a chi router.
func NewRouter(s *Server, opts RouterOptions, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	if opts.TrustProxy {
		r.Use(chiMiddleware.RealIP)
	}
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeBadRequest, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})

	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/chat", s.Chat)
	r.Get("/token-usage", s.TokenUsage)

	r.Post("/anonymous-chat", s.AddressChat)
	r.Route("/api/anonymous", func(r chi.Router) {
		r.Post("/token", s.IssueAnonymousToken)
		r.Get("/token/{id}", s.GetAnonymousToken)
		r.Post("/chat", s.AnonymousChat)
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuthMiddleware(opts.AdminKeys))
		r.Get("/budget", s.GetBudget)
		r.Post("/budget", s.SetBudget)
		r.Get("/budget/history", s.GetBudgetHistory)
		r.Get("/budget/alerts", s.GetBudgetAlerts)
		r.Get("/usage", s.GetUsage)
		r.Get("/usage/projection", s.GetProjection)
		r.Get("/usage/daily", s.GetDailyUsage)
		r.Post("/reset", s.ResetUsage)
	})

	return r
}
