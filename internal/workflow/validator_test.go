package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/fulfillment/internal/entity"
	"github.com/Additional-Code/fulfillment/pkg/errorbank"
)

func TestValidateOrder(t *testing.T) {
	all := []entity.OrderStatus{
		entity.OrderCreated, entity.OrderApproved, entity.OrderAllocated, entity.OrderPicking,
		entity.OrderPacking, entity.OrderShipped, entity.OrderDelivered, entity.OrderCancelled,
	}
	allowed := map[entity.OrderStatus][]entity.OrderStatus{
		entity.OrderCreated:   {entity.OrderApproved, entity.OrderCancelled},
		entity.OrderApproved:  {entity.OrderAllocated, entity.OrderCancelled},
		entity.OrderAllocated: {entity.OrderPicking, entity.OrderCancelled},
		entity.OrderPicking:   {entity.OrderPacking, entity.OrderCancelled},
		entity.OrderPacking:   {entity.OrderShipped, entity.OrderCancelled},
		entity.OrderShipped:   {entity.OrderDelivered, entity.OrderCancelled},
	}

	for _, from := range all {
		for _, to := range all {
			order := &entity.Order{Status: from}
			err := ValidateOrder(order, to)

			want := from == to
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}

			if want {
				assert.NoError(t, err, "%s -> %s", from, to)
				continue
			}
			require.Error(t, err, "%s -> %s", from, to)
			assert.True(t, errorbank.IsKind(err, errorbank.KindInvalidTransition))
			details := errorbank.From(err).Details()
			assert.Equal(t, string(from), details["current_status"])
			assert.Equal(t, string(to), details["attempted_status"])
			assert.Equal(t, entity.EntityOrder, details["entity_type"])
			assert.Equal(t, from, order.Status, "validator must not mutate")
		}
	}
}

func TestValidateTasks(t *testing.T) {
	t.Run("should allow the forward path", func(t *testing.T) {
		task := &entity.PickingTask{Status: entity.TaskNotStarted}
		require.NoError(t, ValidatePickingTask(task, entity.TaskInProgress))
		task.Status = entity.TaskInProgress
		require.NoError(t, ValidatePickingTask(task, entity.TaskCompleted))
	})

	t.Run("should reject skipping in progress", func(t *testing.T) {
		err := ValidatePackingTask(&entity.PackingTask{Status: entity.TaskNotStarted}, entity.TaskCompleted)
		require.Error(t, err)
		assert.True(t, errorbank.IsKind(err, errorbank.KindInvalidTransition))
		assert.Equal(t, entity.EntityPackingTask, errorbank.From(err).Details()["entity_type"])
	})

	t.Run("should treat completed as terminal", func(t *testing.T) {
		assert.Empty(t, TaskTable().Next(entity.TaskCompleted))
		assert.False(t, CanTransitionTask(entity.TaskCompleted, entity.TaskInProgress))
	})
}

func TestValidateShipment(t *testing.T) {
	path := []entity.ShipmentStatus{
		entity.ShipmentCreated, entity.ShipmentLoaded, entity.ShipmentDispatched,
		entity.ShipmentInTransit, entity.ShipmentOutForDelivery, entity.ShipmentDelivered,
	}
	shipment := &entity.Shipment{Status: path[0]}
	for _, next := range path[1:] {
		require.NoError(t, ValidateShipment(shipment, next))
		shipment.Status = next
	}

	t.Run("should only return from out for delivery", func(t *testing.T) {
		assert.True(t, CanTransitionShipment(entity.ShipmentOutForDelivery, entity.ShipmentReturned))
		assert.False(t, CanTransitionShipment(entity.ShipmentInTransit, entity.ShipmentReturned))
	})

	t.Run("should not cancel once out for delivery", func(t *testing.T) {
		assert.False(t, CanTransitionShipment(entity.ShipmentOutForDelivery, entity.ShipmentCancelled))
	})

	t.Run("should reject unknown statuses as validation errors", func(t *testing.T) {
		err := ValidateShipment(&entity.Shipment{Status: entity.ShipmentCreated}, entity.ShipmentStatus("LOST"))
		require.Error(t, err)
		assert.True(t, errorbank.IsKind(err, errorbank.KindValidation))
	})
}

func TestSameStatusIsNoop(t *testing.T) {
	assert.NoError(t, ValidateOrder(&entity.Order{Status: entity.OrderDelivered}, entity.OrderDelivered))
	assert.NoError(t, ValidateShipment(&entity.Shipment{Status: entity.ShipmentCancelled}, entity.ShipmentCancelled))
	assert.True(t, CanTransitionOrder(entity.OrderCancelled, entity.OrderCancelled))
}
