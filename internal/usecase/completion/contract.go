package completion

import (
	"context"

	"github.com/kailas-cloud/tokenguard/internal/domain/anonymous"
	"github.com/kailas-cloud/tokenguard/internal/domain/chat"
	"github.com/kailas-cloud/tokenguard/internal/domain/tier"
	"github.com/kailas-cloud/tokenguard/internal/usecase/meter"
	"github.com/kailas-cloud/tokenguard/internal/usecase/quota"
)

// Meter prices and accumulates a completed request.
type Meter interface {
	RecordUsage(ctx context.Context, req meter.Request) (meter.Charge, error)
}

// BudgetChecker reports whether spend is already over the ceiling.
type BudgetChecker interface {
	Exceeded() bool
}

// QuotaLedger charges authenticated principals.
type QuotaLedger interface {
	ReportUsage(ctx context.Context, principal string, t tier.Tier, tokens int64) (quota.Result, error)
	Check(ctx context.Context, principal string, t tier.Tier) error
}

// AnonymousStore consumes anonymous session allowances.
type AnonymousStore interface {
	Issue(ctx context.Context) (anonymous.Token, error)
	Consume(ctx context.Context, id string, amount int64) (int64, error)
	Lookup(ctx context.Context, id string) (anonymous.Token, error)
}

// IPCounter tracks unauthenticated traffic per client address.
type IPCounter interface {
	Check(ctx context.Context, addr string) error
	Record(ctx context.Context, addr string, n int64) (int64, error)
	Limit() int64
}

// RateLimiter admits requests per principal.
type RateLimiter interface {
	Allow(ctx context.Context, principal string) error
}

// ChatClient calls the upstream model.
type ChatClient interface {
	Complete(ctx context.Context, req chat.Request) (chat.Reply, error)
}
