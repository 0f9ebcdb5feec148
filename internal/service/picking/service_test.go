package picking_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/fulfillment/internal/entity"
	pickingsvc "github.com/Additional-Code/fulfillment/internal/service/picking"
	"github.com/Additional-Code/fulfillment/internal/service/servicetest"
	"github.com/Additional-Code/fulfillment/pkg/errorbank"
)

func TestPrefixZone(t *testing.T) {
	cases := []struct {
		name     string
		sep      string
		location string
		want     string
	}{
		{"should take the aisle prefix", "-", "A-01-01", "A"},
		{"should honour another separator", ".", "COLD.3.2", "COLD"},
		{"should leave unzoned locations empty", "-", "DOCK", ""},
		{"should disable zoning without a separator", "", "A-01-01", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, pickingsvc.PrefixZone(tc.sep)(tc.location))
		})
	}
}

func allocatedOrder(t *testing.T, env *servicetest.Env) *entity.Order {
	t.Helper()
	order := env.ApprovedOrder(t,
		servicetest.Item("PROD-001", 5, "10.00"),
		servicetest.Item("PROD-002", 10, "2.50"),
	)
	_, err := env.Allocation.Allocate(t.Context(), order.ID, servicetest.Actor)
	require.NoError(t, err)
	return order
}

func TestGeneratePickingTasks(t *testing.T) {
	t.Run("should create one task per zone", func(t *testing.T) {
		env := servicetest.New(t)
		order := allocatedOrder(t, env)

		result, err := env.Picking.GeneratePickingTasks(t.Context(), order.ID, servicetest.Actor)
		require.NoError(t, err)

		assert.True(t, result.Success)
		assert.Equal(t, 2, result.TasksCreated)
		require.Len(t, result.TaskDetails, 2)
		assert.Equal(t, "A", result.TaskDetails[0].Zone)
		assert.Equal(t, "B", result.TaskDetails[1].Zone)
		assert.Regexp(t, `^PT-\d{14}-[0-9A-F]{6}$`, result.TaskDetails[0].TaskNumber)
		assert.Equal(t, entity.OrderPicking, env.Reload(t, order.ID).Status)

		rows, err := env.PickingRepo.Items(t.Context(), env.DB.Reader, result.TaskDetails[0].TaskID)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "A-01-01", rows[0].Location)
		assert.True(t, decimal.NewFromInt(5).Equal(rows[0].QuantityToPick))
	})

	t.Run("should put everything in one task when zoning is off", func(t *testing.T) {
		env := servicetest.New(t, servicetest.WithZones(func(string) string { return "" }))
		order := allocatedOrder(t, env)

		result, err := env.Picking.GeneratePickingTasks(t.Context(), order.ID, servicetest.Actor)
		require.NoError(t, err)
		assert.Equal(t, 1, result.TasksCreated)
		assert.Equal(t, 2, result.TaskDetails[0].ItemCount)
	})

	t.Run("should refuse to generate twice", func(t *testing.T) {
		env := servicetest.New(t)
		order := allocatedOrder(t, env)
		_, err := env.Picking.GeneratePickingTasks(t.Context(), order.ID, servicetest.Actor)
		require.NoError(t, err)

		_, err = env.Picking.GeneratePickingTasks(t.Context(), order.ID, servicetest.Actor)
		assert.True(t, errorbank.HasCode(err, errorbank.CodePickingTasksExist))
	})

	t.Run("should require an allocated order", func(t *testing.T) {
		env := servicetest.New(t)
		order := env.ApprovedOrder(t, servicetest.Item("PROD-001", 1, "1.00"))

		_, err := env.Picking.GeneratePickingTasks(t.Context(), order.ID, servicetest.Actor)
		assert.True(t, errorbank.IsKind(err, errorbank.KindInvalidStatus))
	})
}

func TestPickingTask(t *testing.T) {
	setup := func(t *testing.T) (*servicetest.Env, *entity.Order, uuid.UUID, entity.PickingItem) {
		env := servicetest.New(t)
		order := allocatedOrder(t, env)
		result, err := env.Picking.GeneratePickingTasks(t.Context(), order.ID, servicetest.Actor)
		require.NoError(t, err)
		taskID := result.TaskDetails[0].TaskID
		rows, err := env.PickingRepo.Items(t.Context(), env.DB.Reader, taskID)
		require.NoError(t, err)
		return env, order, taskID, rows[0]
	}

	t.Run("should assign a picker once", func(t *testing.T) {
		env, _, taskID, _ := setup(t)
		picker := uuid.New()

		task, err := env.Picking.AssignPicker(t.Context(), taskID, picker, servicetest.Actor)
		require.NoError(t, err)
		assert.Equal(t, picker, task.PickerID.UUID)
		assert.False(t, task.AssignedAt.IsZero())

		_, err = env.Picking.AssignPicker(t.Context(), taskID, uuid.New(), servicetest.Actor)
		assert.True(t, errorbank.HasCode(err, errorbank.CodePickerAlreadyAssigned))
	})

	t.Run("should start the task and apply partial picks", func(t *testing.T) {
		env, order, taskID, row := setup(t)

		result, err := env.Picking.UpdatePickedQuantity(t.Context(), taskID, []pickingsvc.ItemUpdate{
			{OrderItemID: row.OrderItemID, QuantityPicked: decimal.NewFromInt(3)},
		}, servicetest.Actor)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Len(t, result.UpdatesApplied, 1)
		assert.Zero(t, result.CompletedItems)

		task, err := env.PickingRepo.GetTask(t.Context(), env.DB.Reader, taskID, false)
		require.NoError(t, err)
		assert.Equal(t, entity.TaskInProgress, task.Status)
		assert.False(t, task.StartedAt.IsZero())

		item, err := env.OrderRepo.GetItem(t.Context(), env.DB.Reader, row.OrderItemID, false)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(3).Equal(item.QuantityPicked))

		_, err = env.Picking.CompletePicking(t.Context(), taskID, servicetest.Actor)
		assert.True(t, errorbank.HasCode(err, errorbank.CodeIncompletePicking))
		assert.Equal(t, entity.OrderPicking, env.Reload(t, order.ID).Status)
	})

	t.Run("should collect invalid updates per item", func(t *testing.T) {
		env, _, taskID, row := setup(t)
		_, err := env.Picking.UpdatePickedQuantity(t.Context(), taskID, []pickingsvc.ItemUpdate{
			{OrderItemID: row.OrderItemID, QuantityPicked: decimal.NewFromInt(4)},
		}, servicetest.Actor)
		require.NoError(t, err)

		result, err := env.Picking.UpdatePickedQuantity(t.Context(), taskID, []pickingsvc.ItemUpdate{
			{OrderItemID: row.OrderItemID, QuantityPicked: decimal.NewFromInt(2)},
			{OrderItemID: row.OrderItemID, QuantityPicked: decimal.NewFromInt(6)},
			{OrderItemID: row.OrderItemID, QuantityPicked: decimal.NewFromInt(-1)},
			{OrderItemID: uuid.New(), QuantityPicked: decimal.NewFromInt(1)},
		}, servicetest.Actor)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Empty(t, result.UpdatesApplied)
		assert.Len(t, result.ValidationErrors, 4)

		item, err := env.OrderRepo.GetItem(t.Context(), env.DB.Reader, row.OrderItemID, false)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(4).Equal(item.QuantityPicked))
	})

	t.Run("should complete a fully picked task", func(t *testing.T) {
		env, _, taskID, row := setup(t)
		result, err := env.Picking.UpdatePickedQuantity(t.Context(), taskID, []pickingsvc.ItemUpdate{
			{OrderItemID: row.OrderItemID, QuantityPicked: row.QuantityToPick},
		}, servicetest.Actor)
		require.NoError(t, err)
		assert.Equal(t, 1, result.CompletedItems)
		assert.Equal(t, 1, result.TotalItems)

		task, err := env.Picking.CompletePicking(t.Context(), taskID, servicetest.Actor)
		require.NoError(t, err)
		assert.Equal(t, entity.TaskCompleted, task.Status)
		assert.False(t, task.CompletedAt.IsZero())

		_, err = env.Picking.UpdatePickedQuantity(t.Context(), taskID, nil, servicetest.Actor)
		assert.True(t, errorbank.HasCode(err, errorbank.CodeInvalidTaskStatus))
	})

	t.Run("should refuse picks once the order is cancelled", func(t *testing.T) {
		env, order, taskID, row := setup(t)
		_, err := env.Orders.CancelOrder(t.Context(), order.ID, servicetest.Actor, "customer request")
		require.NoError(t, err)

		_, err = env.Picking.UpdatePickedQuantity(t.Context(), taskID, []pickingsvc.ItemUpdate{
			{OrderItemID: row.OrderItemID, QuantityPicked: decimal.NewFromInt(1)},
		}, servicetest.Actor)
		assert.True(t, errorbank.HasCode(err, errorbank.CodeInvalidOrderStatus))

		item, err := env.OrderRepo.GetItem(t.Context(), env.DB.Reader, row.OrderItemID, false)
		require.NoError(t, err)
		assert.True(t, item.QuantityPicked.IsZero())
		task, err := env.PickingRepo.GetTask(t.Context(), env.DB.Reader, taskID, false)
		require.NoError(t, err)
		assert.Equal(t, entity.TaskNotStarted, task.Status)
	})

	t.Run("should refuse to complete a task that never started", func(t *testing.T) {
		env, _, taskID, _ := setup(t)
		_, err := env.Picking.CompletePicking(t.Context(), taskID, servicetest.Actor)
		assert.True(t, errorbank.HasCode(err, errorbank.CodeInvalidTaskStatus))
	})
}

func TestGetPickingSummary(t *testing.T) {
	env := servicetest.New(t)
	order := env.PickedOrder(t,
		servicetest.Item("PROD-001", 5, "10.00"),
		servicetest.Item("PROD-002", 10, "2.50"),
	)

	summary, err := env.Picking.GetPickingSummary(t.Context(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalTasks)
	assert.Equal(t, 2, summary.CompletedTasks)
	assert.Zero(t, summary.InProgressTasks)
	require.Len(t, summary.Tasks, 2)

	zones := make(map[string]pickingsvc.TaskProgress)
	for _, task := range summary.Tasks {
		assert.InDelta(t, 100.0, task.ProgressPercentage, 0.001)
		zones[task.Zone] = task
	}
	require.Contains(t, zones, "A")
	require.Len(t, zones["A"].Items, 1)
	assert.Equal(t, "PROD-001", zones["A"].Items[0].ProductSKU)
	assert.True(t, zones["A"].Items[0].IsCompleted)
}
