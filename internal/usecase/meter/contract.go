package meter

import (
	"context"
	"time"

	"github.com/kailas-cloud/tokenguard/internal/domain/budget"
	"github.com/kailas-cloud/tokenguard/internal/domain/money"
	"github.com/kailas-cloud/tokenguard/internal/domain/pricing"
	"github.com/kailas-cloud/tokenguard/internal/domain/usage"
)

// PriceOracle prices a request at a moment.
type PriceOracle interface {
	Cost(t time.Time, inputTokens, outputTokens int64, cacheHit bool) (money.Amount, pricing.Rates, error)
}

// Governor accumulates spend against the ceiling.
type Governor interface {
	AddCost(delta money.Amount) (budget.Status, []budget.Alert)
	ResetSpend()
}

// Projector keeps the rolling cost window.
type Projector interface {
	LogRequest(cost money.Amount)
}

// AuditSink persists usage records. Failures are logged, never surfaced.
type AuditSink interface {
	Append(ctx context.Context, r usage.Record) error
}
