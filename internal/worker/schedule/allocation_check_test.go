package schedule_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/fulfillment/internal/config"
	"github.com/Additional-Code/fulfillment/internal/entity"
	"github.com/Additional-Code/fulfillment/internal/service/servicetest"
	"github.com/Additional-Code/fulfillment/internal/worker/schedule"
)

func newJob(t *testing.T, env *servicetest.Env, expr string) *schedule.AllocationCheck {
	t.Helper()
	job, err := schedule.NewAllocationCheck(schedule.Params{
		DB:         env.DB,
		Orders:     env.OrderRepo,
		Allocation: env.Allocation,
		Config:     config.Config{Fulfillment: config.Fulfillment{AllocationCheckSchedule: expr}},
		Logger:     zap.NewNop(),
	})
	require.NoError(t, err)
	return job
}

func allocated(t *testing.T, env *servicetest.Env) *entity.Order {
	t.Helper()
	order := env.ApprovedOrder(t, servicetest.Item("PROD-001", 4, "1.00"))
	_, err := env.Allocation.Allocate(t.Context(), order.ID, servicetest.Actor)
	require.NoError(t, err)
	return order
}

func TestAllocationCheckRun(t *testing.T) {
	t.Run("should pass fully allocated orders", func(t *testing.T) {
		env := servicetest.New(t)
		allocated(t, env)
		allocated(t, env)
		env.ApprovedOrder(t, servicetest.Item("PROD-002", 1, "1.00"))

		report, err := newJob(t, env, "").Run(t.Context())
		require.NoError(t, err)
		assert.Equal(t, schedule.Report{Checked: 2}, report)
	})

	t.Run("should report orders whose reservations fell short", func(t *testing.T) {
		env := servicetest.New(t)
		short := allocated(t, env)
		allocated(t, env)

		_, err := env.DB.Writer.NewUpdate().
			Model((*entity.Allocation)(nil)).
			Set("quantity_reserved = ?", "1").
			Where("order_id = ?", short.ID).
			Exec(t.Context())
		require.NoError(t, err)

		report, err := newJob(t, env, "").Run(t.Context())
		require.NoError(t, err)
		assert.Equal(t, schedule.Report{Checked: 2, Short: 1}, report)
	})
}

func TestAllocationCheckSchedule(t *testing.T) {
	t.Run("should stay idle without a schedule", func(t *testing.T) {
		job := newJob(t, servicetest.New(t), "")

		require.NoError(t, job.Start())
		require.NoError(t, job.Stop(t.Context()))
	})

	t.Run("should reject a malformed schedule", func(t *testing.T) {
		job := newJob(t, servicetest.New(t), "every now and then")

		assert.Error(t, job.Start())
	})

	t.Run("should start and stop on a valid schedule", func(t *testing.T) {
		job := newJob(t, servicetest.New(t), "@every 1h")

		require.NoError(t, job.Start())
		require.NoError(t, job.Stop(t.Context()))
	})
}
