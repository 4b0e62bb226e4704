package health

import "context"

// Pinger checks a storage backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// UpstreamChecker checks model provider availability.
type UpstreamChecker interface {
	HealthCheck(ctx context.Context) error
}

// BudgetState reports whether spend has passed the ceiling.
type BudgetState interface {
	Exceeded() bool
}
