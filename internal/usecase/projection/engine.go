// Package projection forecasts remaining capacity from recent request costs.
package projection

import (
	"math"
	"sync"

	"github.com/kailas-cloud/tokenguard/internal/domain/budget"
	"github.com/kailas-cloud/tokenguard/internal/domain/money"
)

// DefaultWindow is the number of recent requests kept for forecasting.
const DefaultWindow = 100

// Engine is a fixed-capacity FIFO ring of request costs with a running sum.
type Engine struct {
	mu    sync.Mutex
	costs []money.Amount
	head  int // index of the oldest entry once full
	n     int
	sum   money.Amount
}

// New creates an Engine holding at most capacity entries.
func New(capacity int) *Engine {
	if capacity <= 0 {
		capacity = DefaultWindow
	}
	return &Engine{costs: make([]money.Amount, capacity)}
}

// LogRequest appends a cost, evicting the oldest entry when full.
func (e *Engine) LogRequest(cost money.Amount) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.n < len(e.costs) {
		e.costs[(e.head+e.n)%len(e.costs)] = cost
		e.n++
	} else {
		e.sum -= e.costs[e.head]
		e.costs[e.head] = cost
		e.head = (e.head + 1) % len(e.costs)
	}
	e.sum += cost
}

// Len returns the number of entries in the window.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.n
}

// Project extrapolates from the window against the given budget status:
// remaining requests is (ceiling - spent) / mean cost. ok is false when the
// window is empty.
func (e *Engine) Project(st budget.Status) (budget.Projection, bool) {
	e.mu.Lock()
	n, sum := e.n, e.sum
	e.mu.Unlock()

	if n == 0 {
		return budget.Projection{}, false
	}

	// Headroom is signed: once spend passes the ceiling the estimate goes
	// negative and the projected total settles on the ceiling.
	headroom := st.Ceiling - st.Spent
	mean := float64(sum) / float64(n)
	var remainingReqs float64
	projected := st.Spent
	if mean > 0 {
		remainingReqs = float64(headroom) / mean
		projected += headroom
	}

	return budget.Projection{
		AvgCostPerRequest:          money.Amount(math.Round(mean)),
		EstimatedRemainingRequests: remainingReqs,
		ProjectedTotalCost:         projected,
		Status:                     st,
		WindowSize:                 n,
	}, true
}
