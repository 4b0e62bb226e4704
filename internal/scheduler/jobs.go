package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	dombudget "github.com/kailas-cloud/tokenguard/internal/domain/budget"
	"github.com/kailas-cloud/tokenguard/internal/metrics"
)

// Job names.
const (
	JobBudgetSnapshot = "budget_snapshot"
	JobAuditPrune     = "audit_prune"
)

// BudgetReader exposes the current budget status.
type BudgetReader interface {
	Status() dombudget.Status
}

// Pruner deletes audit rows older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// BudgetSnapshot refreshes the budget gauges in sink and logs the current position.
func BudgetSnapshot(b BudgetReader, sink *metrics.Metering, logger *zap.Logger) JobFunc {
	return func(_ context.Context) error {
		st := b.Status()
		sink.SetBudget(st.Spent, st.Ceiling)
		logger.Info("Budget snapshot",
			zap.String("spent", st.Spent.String()),
			zap.String("ceiling", st.Ceiling.String()),
			zap.Float64("ratio", st.Ratio()),
			zap.Bool("exceeded", st.Exceeded()),
		)
		return nil
	}
}

// AuditPrune removes audit rows older than retention.
func AuditPrune(p Pruner, retention time.Duration, now func() time.Time, logger *zap.Logger) JobFunc {
	return func(ctx context.Context) error {
		cutoff := now().Add(-retention)
		n, err := p.Prune(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("prune audit log: %w", err)
		}
		if n > 0 {
			logger.Info("Audit log pruned", zap.Int64("deleted", n), zap.Time("before", cutoff))
		}
		return nil
	}
}
