package tokenguard

import "time"

// Tier is a service class.
type Tier string

// Known tiers.
const (
	TierFree   Tier = "free"
	TierPro    Tier = "pro"
	TierCustom Tier = "custom"
)

// TierLimits is a tier's token allowance. Zero means not enforced.
type TierLimits struct {
	Daily   int64
	Monthly int64
}

// Pricing is the standard rate table in USD per million tokens and the
// discount window as "HH:MM" UTC. Discount rates are half the standard ones.
type Pricing struct {
	CacheHitInput  float64
	CacheMissInput float64
	Output         float64
	DiscountStart  string
	DiscountEnd    string
}

// Completion is one finished upstream call. Set exactly one of Principal,
// AnonymousToken or ClientAddr to choose whose allowance is charged.
type Completion struct {
	Principal      string
	Tier           Tier
	AnonymousToken string
	ClientAddr     string
	InputTokens    int64
	OutputTokens   int64
	CacheHit       bool
}

// Outcome kinds.
const (
	OutcomeAllowed             = "allowed"
	OutcomeAllowedWithAdvisory = "allowed_with_advisory"
	OutcomeDenied              = "denied"
)

// Outcome is the decision for a reported completion. Remaining is nil when
// the caller's allowance is unbounded. The cost is always charged.
type Outcome struct {
	Kind      string
	Reason    string // budget_exceeded, quota_exceeded, no_such_token, store_unavailable
	Scope     string // daily, monthly, anonymous, ip_daily
	Message   string
	Remaining *int64
	CostUSD   float64
}

// Allowed reports whether the caller may continue.
func (o Outcome) Allowed() bool { return o.Kind != OutcomeDenied }

// BudgetStatus is the spend position against the ceiling.
type BudgetStatus struct {
	Ceiling     float64
	Spent       float64
	Remaining   float64
	Exceeded    bool
	LastUpdated time.Time
}

// BudgetChange is one ceiling update.
type BudgetChange struct {
	At  time.Time
	Old float64
	New float64
}

// BudgetAlert is a fired spend threshold.
type BudgetAlert struct {
	At        time.Time
	Threshold float64
	Spent     float64
	Remaining float64
}

// Projection forecasts how much budget the recent request mix will consume.
type Projection struct {
	AvgCostPerRequest          float64
	EstimatedRemainingRequests float64
	ProjectedTotalCost         float64
	WindowSize                 int
	Budget                     BudgetStatus
}

// AnonymousToken is an unauthenticated session allowance.
type AnonymousToken struct {
	ID             string
	QuotaRemaining int64
	IssuedAt       time.Time
	ExpiresAt      time.Time
}

// QuotaUsage is a principal's consumption against its tier. Nil limits are not enforced.
type QuotaUsage struct {
	Tier             Tier
	DailyLimit       *int64
	MonthlyLimit     *int64
	DailyUsed        int64
	MonthlyUsed      int64
	RemainingDaily   *int64
	RemainingMonthly *int64
}

// Rates is the per-million-token price triple in effect.
type Rates struct {
	CacheHitInput  float64
	CacheMissInput float64
	Output         float64
	Discounted     bool
}

// UsageReport is the cumulative metering since start or the last reset.
type UsageReport struct {
	GeneratedAt    time.Time
	InputTokens    int64
	OutputTokens   int64
	CacheHits      int64
	CacheMisses    int64
	Requests       int64
	InputCost      float64
	OutputCost     float64
	TotalCost      float64
	Rates          Rates
	DiscountWindow string
	Budget         BudgetStatus
}

// DaySummary is one UTC day from the audit log.
type DaySummary struct {
	Day          time.Time
	Requests     int64
	InputTokens  int64
	OutputTokens int64
	Cost         float64
}
