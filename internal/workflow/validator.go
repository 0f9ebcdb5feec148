// Package workflow holds the allowed status transitions of every workflow entity.
// It never mutates state; services call it immediately before changing a status.
package workflow

import (
	"slices"

	"github.com/Additional-Code/fulfillment/internal/entity"
	"github.com/Additional-Code/fulfillment/pkg/errorbank"
)

type status interface {
	~string
	Valid() bool
}

// Table maps a status to the statuses it may move to. Terminal statuses map to nothing.
type Table[S status] map[S][]S

var orderTable = Table[entity.OrderStatus]{
	entity.OrderCreated:   {entity.OrderApproved, entity.OrderCancelled},
	entity.OrderApproved:  {entity.OrderAllocated, entity.OrderCancelled},
	entity.OrderAllocated: {entity.OrderPicking, entity.OrderCancelled},
	entity.OrderPicking:   {entity.OrderPacking, entity.OrderCancelled},
	entity.OrderPacking:   {entity.OrderShipped, entity.OrderCancelled},
	entity.OrderShipped:   {entity.OrderDelivered, entity.OrderCancelled},
	entity.OrderDelivered: nil,
	entity.OrderCancelled: nil,
}

var taskTable = Table[entity.TaskStatus]{
	entity.TaskNotStarted: {entity.TaskInProgress, entity.TaskCancelled},
	entity.TaskInProgress: {entity.TaskCompleted, entity.TaskCancelled},
	entity.TaskCompleted:  nil,
	entity.TaskCancelled:  nil,
}

var shipmentTable = Table[entity.ShipmentStatus]{
	entity.ShipmentCreated:        {entity.ShipmentLoaded, entity.ShipmentCancelled},
	entity.ShipmentLoaded:         {entity.ShipmentDispatched, entity.ShipmentCancelled},
	entity.ShipmentDispatched:     {entity.ShipmentInTransit, entity.ShipmentCancelled},
	entity.ShipmentInTransit:      {entity.ShipmentOutForDelivery, entity.ShipmentCancelled},
	entity.ShipmentOutForDelivery: {entity.ShipmentDelivered, entity.ShipmentReturned},
	entity.ShipmentDelivered:      nil,
	entity.ShipmentCancelled:      nil,
	entity.ShipmentReturned:       nil,
}

// Allows reports whether from may move to to. Staying in place is always allowed.
func (t Table[S]) Allows(from, to S) bool {
	if from == to {
		return true
	}
	return slices.Contains(t[from], to)
}

// Next lists the statuses reachable from from.
func (t Table[S]) Next(from S) []S {
	return slices.Clone(t[from])
}

func (t Table[S]) validate(entityType string, from, to S) error {
	if !to.Valid() {
		return errorbank.Validation("unknown "+entityType+" status "+string(to),
			errorbank.WithDetail("entity_type", entityType),
			errorbank.WithDetail("attempted_status", string(to)),
		)
	}
	if t.Allows(from, to) {
		return nil
	}
	return errorbank.InvalidTransition(entityType, string(from), string(to))
}

// ValidateOrder guards an order status change.
func ValidateOrder(o *entity.Order, to entity.OrderStatus) error {
	return orderTable.validate(entity.EntityOrder, o.Status, to)
}

// ValidatePickingTask guards a picking task status change.
func ValidatePickingTask(t *entity.PickingTask, to entity.TaskStatus) error {
	return taskTable.validate(entity.EntityPickingTask, t.Status, to)
}

// ValidatePackingTask guards a packing task status change.
func ValidatePackingTask(t *entity.PackingTask, to entity.TaskStatus) error {
	return taskTable.validate(entity.EntityPackingTask, t.Status, to)
}

// ValidateShipment guards a shipment status change.
func ValidateShipment(s *entity.Shipment, to entity.ShipmentStatus) error {
	return shipmentTable.validate(entity.EntityShipment, s.Status, to)
}

func CanTransitionOrder(from, to entity.OrderStatus) bool {
	return orderTable.Allows(from, to)
}

func CanTransitionTask(from, to entity.TaskStatus) bool {
	return taskTable.Allows(from, to)
}

func CanTransitionShipment(from, to entity.ShipmentStatus) bool {
	return shipmentTable.Allows(from, to)
}

// OrderTable exposes the order transitions for reporting.
func OrderTable() Table[entity.OrderStatus] { return orderTable }

// TaskTable exposes the picking/packing task transitions.
func TaskTable() Table[entity.TaskStatus] { return taskTable }

// ShipmentTable exposes the shipment transitions.
func ShipmentTable() Table[entity.ShipmentStatus] { return shipmentTable }
