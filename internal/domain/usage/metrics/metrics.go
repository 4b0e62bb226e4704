package metrics

import "github.com/kailas-cloud/tokenguard/internal/domain/money"

// Totals holds cumulative metered consumption since the last reset.
type Totals struct {
	requests     int64
	inputTokens  int64
	outputTokens int64
	cacheHits    int64
	cacheMisses  int64
	inputCost    money.Amount
	outputCost   money.Amount
}

// Counters is the mutable form used while accumulating.
type Counters struct {
	Requests     int64
	InputTokens  int64
	OutputTokens int64
	CacheHits    int64
	CacheMisses  int64
	InputCost    money.Amount
	OutputCost   money.Amount
}

// Snapshot freezes the counters into a Totals value.
func (c Counters) Snapshot() Totals {
	return Totals{
		requests:     c.Requests,
		inputTokens:  c.InputTokens,
		outputTokens: c.OutputTokens,
		cacheHits:    c.CacheHits,
		cacheMisses:  c.CacheMisses,
		inputCost:    c.InputCost,
		outputCost:   c.OutputCost,
	}
}

// Requests returns the number of metered requests.
func (t Totals) Requests() int64 { return t.requests }

// InputTokens returns the total input tokens.
func (t Totals) InputTokens() int64 { return t.inputTokens }

// OutputTokens returns the total output tokens.
func (t Totals) OutputTokens() int64 { return t.outputTokens }

// CacheHits returns the number of requests served from the prompt cache.
func (t Totals) CacheHits() int64 { return t.cacheHits }

// CacheMisses returns the number of requests not served from the prompt cache.
func (t Totals) CacheMisses() int64 { return t.cacheMisses }

// InputCost returns the cost attributed to input tokens.
func (t Totals) InputCost() money.Amount { return t.inputCost }

// OutputCost returns the cost attributed to output tokens.
func (t Totals) OutputCost() money.Amount { return t.outputCost }

// TotalCost returns input plus output cost.
func (t Totals) TotalCost() money.Amount { return t.inputCost + t.outputCost }
