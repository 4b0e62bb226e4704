package chi

import (
	"time"

	"github.com/kailas-cloud/tokenguard/internal/domain/anonymous"
	"github.com/kailas-cloud/tokenguard/internal/domain/budget"
	"github.com/kailas-cloud/tokenguard/internal/domain/chat"
	"github.com/kailas-cloud/tokenguard/internal/domain/outcome"
	domquota "github.com/kailas-cloud/tokenguard/internal/domain/quota"
	domusage "github.com/kailas-cloud/tokenguard/internal/domain/usage"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest       = "bad_request"
	CodeUnauthorized     = "unauthorized"
	CodeInvalidBudget    = "invalid_budget"
	CodeBudgetExceeded   = "budget_exceeded"
	CodeQuotaExceeded    = "quota_exceeded"
	CodeNoSuchToken      = "no_such_token"
	CodeRateLimited      = "rate_limited"
	CodeStoreUnavailable = "store_unavailable"
	CodeUpstreamError    = "upstream_error"
	CodeInternalError    = "internal_error"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code            string  `json:"code"`
	Message         string  `json:"message"`
	Scope           string  `json:"scope,omitempty"`
	RemainingTokens *int64  `json:"remaining_tokens,omitempty"`
	Cost            float64 `json:"cost,omitempty"`
}

// ChatRequest is the POST /chat body.
type ChatRequest struct {
	Prompt   string `json:"prompt"`
	Tone     string `json:"tone,omitempty"`
	Language string `json:"language,omitempty"`
}

// TokenUsage reports what one exchange consumed.
type TokenUsage struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalTokens  int64   `json:"total_tokens"`
	CacheHit     bool    `json:"cache_hit"`
	Cost         float64 `json:"cost"`
}

// ChatResponse is returned for an allowed exchange.
type ChatResponse struct {
	Response         string     `json:"response"`
	Model            string     `json:"model"`
	Usage            TokenUsage `json:"usage"`
	RemainingTokens  *int64     `json:"remaining_tokens"`
	SuggestedUpgrade bool       `json:"suggested_upgrade"`
	Message          string     `json:"message,omitempty"`
}

// AnonymousTokenResponse describes an anonymous session.
type AnonymousTokenResponse struct {
	Token          string    `json:"token"`
	QuotaRemaining int64     `json:"quota_remaining"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// BudgetRequest is the POST /budget body.
type BudgetRequest struct {
	Amount *float64 `json:"amount"`
}

// BudgetStatusResponse is the GET /budget body.
type BudgetStatusResponse struct {
	CurrentBudget   float64   `json:"current_budget"`
	BudgetRemaining float64   `json:"budget_remaining"`
	TotalCost       float64   `json:"total_cost"`
	Exceeded        bool      `json:"exceeded"`
	LastUpdated     time.Time `json:"last_updated"`
}

// BudgetChangeResponse is one ceiling change.
type BudgetChangeResponse struct {
	Timestamp time.Time `json:"timestamp"`
	OldBudget float64   `json:"old_budget"`
	NewBudget float64   `json:"new_budget"`
}

// BudgetAlertResponse is one fired threshold.
type BudgetAlertResponse struct {
	Timestamp       time.Time `json:"timestamp"`
	Threshold       float64   `json:"threshold"`
	CurrentCost     float64   `json:"current_cost"`
	BudgetRemaining float64   `json:"budget_remaining"`
}

// UsageResponse is the GET /usage body.
type UsageResponse struct {
	TotalCost        float64              `json:"total_cost"`
	InputCost        float64              `json:"input_cost"`
	OutputCost       float64              `json:"output_cost"`
	TotalTokens      int64                `json:"total_tokens"`
	InputTokens      int64                `json:"input_tokens"`
	OutputTokens     int64                `json:"output_tokens"`
	CacheHits        int64                `json:"cache_hits"`
	CacheMisses      int64                `json:"cache_misses"`
	RequestsCount    int64                `json:"requests_count"`
	IsDiscountPeriod bool                 `json:"is_discount_period"`
	DiscountWindow   string               `json:"discount_window"`
	Rates            RatesResponse        `json:"rates"`
	Budget           BudgetStatusResponse `json:"budget"`
}

// RatesResponse is the rate triple in USD per million tokens.
type RatesResponse struct {
	CacheHitInput  float64 `json:"input_cache_hit_per_million"`
	CacheMissInput float64 `json:"input_cache_miss_per_million"`
	Output         float64 `json:"output_per_million"`
}

// ProjectionResponse is the GET /usage/projection body.
type ProjectionResponse struct {
	AvgCostPerRequest          float64 `json:"avg_cost_per_request"`
	EstimatedRemainingRequests float64 `json:"estimated_remaining_requests"`
	ProjectedTotalCost         float64 `json:"projected_total_cost"`
	CurrentCost                float64 `json:"current_cost"`
	BudgetRemaining            float64 `json:"budget_remaining"`
	WindowSize                 int     `json:"window_size"`
}

// QuotaUsageResponse is the GET /token-usage body. Unenforced limits are null.
type QuotaUsageResponse struct {
	Tier             string `json:"tier"`
	DailyLimit       *int64 `json:"daily_limit"`
	MonthlyLimit     *int64 `json:"monthly_limit"`
	DailyUsed        int64  `json:"daily_used"`
	MonthlyUsed      int64  `json:"monthly_used"`
	RemainingDaily   *int64 `json:"remaining_daily"`
	RemainingMonthly *int64 `json:"remaining_monthly"`
}

// MessageResponse carries a plain message.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func chatToResponse(reply chat.Reply, o outcome.Outcome) ChatResponse {
	return ChatResponse{
		Response: reply.Content,
		Model:    reply.Model,
		Usage: TokenUsage{
			InputTokens:  reply.InputTokens,
			OutputTokens: reply.OutputTokens,
			TotalTokens:  reply.TotalTokens(),
			CacheHit:     reply.CacheHit,
			Cost:         o.Cost.Dollars(),
		},
		RemainingTokens:  o.Remaining,
		SuggestedUpgrade: o.Kind == outcome.AllowedWithAdvisory,
		Message:          o.Message,
	}
}

func tokenToResponse(t anonymous.Token) AnonymousTokenResponse {
	return AnonymousTokenResponse{Token: t.ID, QuotaRemaining: t.QuotaRemaining, ExpiresAt: t.ExpiresAt}
}

func statusToResponse(st budget.Status) BudgetStatusResponse {
	return BudgetStatusResponse{
		CurrentBudget:   st.Ceiling.Dollars(),
		BudgetRemaining: st.Remaining().Dollars(),
		TotalCost:       st.Spent.Dollars(),
		Exceeded:        st.Exceeded(),
		LastUpdated:     st.LastUpdated,
	}
}

func reportToResponse(r domusage.Report) UsageResponse {
	t := r.Totals()
	rates := r.Rates()
	return UsageResponse{
		TotalCost:        t.TotalCost().Dollars(),
		InputCost:        t.InputCost().Dollars(),
		OutputCost:       t.OutputCost().Dollars(),
		TotalTokens:      t.InputTokens() + t.OutputTokens(),
		InputTokens:      t.InputTokens(),
		OutputTokens:     t.OutputTokens(),
		CacheHits:        t.CacheHits(),
		CacheMisses:      t.CacheMisses(),
		RequestsCount:    t.Requests(),
		IsDiscountPeriod: r.IsDiscountPeriod(),
		DiscountWindow:   r.DiscountWindow().String(),
		Rates: RatesResponse{
			CacheHitInput:  rates.CacheHitInput.PerMillion(),
			CacheMissInput: rates.CacheMissInput.PerMillion(),
			Output:         rates.Output.PerMillion(),
		},
		Budget: statusToResponse(r.Budget()),
	}
}

func projectionToResponse(p budget.Projection) ProjectionResponse {
	return ProjectionResponse{
		AvgCostPerRequest:          p.AvgCostPerRequest.Dollars(),
		EstimatedRemainingRequests: p.EstimatedRemainingRequests,
		ProjectedTotalCost:         p.ProjectedTotalCost.Dollars(),
		CurrentCost:                p.Status.Spent.Dollars(),
		BudgetRemaining:            p.Status.Remaining().Dollars(),
		WindowSize:                 p.WindowSize,
	}
}

func quotaToResponse(u domquota.Usage) QuotaUsageResponse {
	return QuotaUsageResponse{
		Tier:             string(u.Tier),
		DailyLimit:       u.DailyLimit,
		MonthlyLimit:     u.MonthlyLimit,
		DailyUsed:        u.DailyUsed,
		MonthlyUsed:      u.MonthlyUsed,
		RemainingDaily:   u.RemainingDaily,
		RemainingMonthly: u.RemainingMonthly,
	}
}

// DaySummaryResponse is one day of audited usage.
type DaySummaryResponse struct {
	Day          string  `json:"day"`
	Requests     int64   `json:"requests"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

func daysToResponse(days []domusage.DaySummary) []DaySummaryResponse {
	out := make([]DaySummaryResponse, len(days))
	for i, d := range days {
		out[i] = DaySummaryResponse{
			Day:          d.Day.Format(time.DateOnly),
			Requests:     d.Requests,
			InputTokens:  d.InputTokens,
			OutputTokens: d.OutputTokens,
			Cost:         d.Cost.Dollars(),
		}
	}
	return out
}
