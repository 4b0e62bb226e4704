package usage

import (
	"time"

	"github.com/kailas-cloud/tokenguard/internal/domain/money"
)

// Record is one metered request.
type Record struct {
	ID           string
	At           time.Time
	Principal    string
	InputTokens  int64
	OutputTokens int64
	CacheHit     bool
	Cost         money.Amount
	Discounted   bool
}

// DaySummary aggregates records for one UTC calendar day.
type DaySummary struct {
	Day          time.Time
	Requests     int64
	InputTokens  int64
	OutputTokens int64
	Cost         money.Amount
}
