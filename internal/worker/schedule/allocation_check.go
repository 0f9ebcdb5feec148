// Package schedule runs periodic consistency checks with robfig/cron.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/fulfillment/internal/config"
	"github.com/Additional-Code/fulfillment/internal/database"
	"github.com/Additional-Code/fulfillment/internal/entity"
	orderrepo "github.com/Additional-Code/fulfillment/internal/repository/order"
	allocationsvc "github.com/Additional-Code/fulfillment/internal/service/allocation"
)

// batchSize caps the orders checked per run.
const batchSize = 500

var scheduleTracer = otel.Tracer("github.com/Additional-Code/fulfillment/worker/schedule")

// Module runs the allocation check on the worker lifecycle.
var Module = fx.Options(
	fx.Provide(NewAllocationCheck),
	fx.Invoke(func(lc fx.Lifecycle, job *AllocationCheck) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error { return job.Start() },
			OnStop:  job.Stop,
		})
	}),
)

// Report summarises one allocation check run.
type Report struct {
	Checked  int
	Short    int
	Failures int
}

// Params collects the job's dependencies.
type Params struct {
	fx.In

	DB         *database.Connections
	Orders     *orderrepo.Repository
	Allocation *allocationsvc.Service
	Config     config.Config
	Logger     *zap.Logger
}

// AllocationCheck re-validates allocated orders against their reservations
// and reports the ones that fell short.
type AllocationCheck struct {
	db         *database.Connections
	orders     *orderrepo.Repository
	allocation *allocationsvc.Service
	expr       string
	logger     *zap.Logger
	cron       *cron.Cron
	shortages  metric.Int64Counter
}

// NewAllocationCheck builds the job on the configured schedule.
func NewAllocationCheck(p Params) (*AllocationCheck, error) {
	counter, err := otel.Meter("github.com/Additional-Code/fulfillment/worker/schedule").Int64Counter(
		"fulfillment.allocation_shortages",
		metric.WithDescription("Allocated orders found short of their ordered quantity"),
	)
	if err != nil {
		return nil, err
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AllocationCheck{
		db:         p.DB,
		orders:     p.Orders,
		allocation: p.Allocation,
		expr:       p.Config.Fulfillment.AllocationCheckSchedule,
		logger:     logger.With(zap.String("job", "allocation_check")),
		cron:       cron.New(),
		shortages:  counter,
	}, nil
}

// Start schedules the job. An empty schedule disables it.
func (j *AllocationCheck) Start() error {
	if j.expr == "" {
		j.logger.Info("allocation check disabled")

		return nil
	}
	if _, err := j.cron.AddFunc(j.expr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := j.Run(ctx); err != nil {
			j.logger.Error("allocation check failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule allocation check %q: %w", j.expr, err)
	}

	j.cron.Start()
	j.logger.Info("allocation check scheduled", zap.String("schedule", j.expr))

	return nil
}

// Stop halts scheduling and waits for a running check to finish.
func (j *AllocationCheck) Stop(ctx context.Context) error {
	done := j.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run checks every allocated order once.
func (j *AllocationCheck) Run(ctx context.Context) (Report, error) {
	ctx, span := scheduleTracer.Start(ctx, "AllocationCheck.Run")
	defer span.End()

	orders, err := j.orders.ListByStatus(ctx, j.db.Reader, entity.OrderAllocated, batchSize)
	if err != nil {
		return Report{}, err
	}

	var report Report
	for _, o := range orders {
		report.Checked++
		v, err := j.allocation.ValidateAllocation(ctx, o.ID)
		if err != nil {
			report.Failures++
			j.logger.Warn("allocation validation failed", zap.String("order_id", o.ID.String()), zap.Error(err))

			continue
		}
		if v.IsValid {
			continue
		}
		report.Short++
		for _, issue := range v.Issues {
			j.logger.Warn("allocation shortage",
				zap.String("order_id", o.ID.String()),
				zap.String("order_number", o.OrderNumber),
				zap.String("sku", issue.SKU),
				zap.String("ordered", issue.Ordered.String()),
				zap.String("allocated", issue.Allocated.String()),
				zap.String("shortage", issue.Shortage.String()),
			)
		}
	}
	if report.Short > 0 {
		j.shortages.Add(ctx, int64(report.Short))
	}

	span.SetAttributes(
		attribute.Int("orders.checked", report.Checked),
		attribute.Int("orders.short", report.Short),
	)
	j.logger.Info("allocation check finished",
		zap.Int("checked", report.Checked),
		zap.Int("short", report.Short),
		zap.Int("failures", report.Failures),
	)

	return report, nil
}
