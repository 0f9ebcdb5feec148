package database

import (
	"context"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// SlowQueryHook logs statements that take longer than a threshold, and
// every failed statement at debug level.
type SlowQueryHook struct {
	logger    *zap.Logger
	threshold time.Duration
}

var _ bun.QueryHook = (*SlowQueryHook)(nil)

// NewSlowQueryHook builds a hook reporting through logger.
func NewSlowQueryHook(logger *zap.Logger, threshold time.Duration) *SlowQueryHook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlowQueryHook{logger: logger.Named("db"), threshold: threshold}
}

func (h *SlowQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *SlowQueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	elapsed := time.Since(event.StartTime)
	if event.Err != nil {
		h.logger.Debug("query failed",
			zap.String("operation", event.Operation()),
			zap.Duration("elapsed", elapsed),
			zap.Error(event.Err),
		)
		return
	}
	if elapsed < h.threshold {
		return
	}
	h.logger.Warn("slow query",
		zap.String("operation", event.Operation()),
		zap.Duration("elapsed", elapsed),
		zap.Duration("threshold", h.threshold),
		zap.String("query", event.Query),
	)
}
