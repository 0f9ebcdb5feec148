package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderCreated   OrderStatus = "CREATED"
	OrderApproved  OrderStatus = "APPROVED"
	OrderAllocated OrderStatus = "ALLOCATED"
	OrderPicking   OrderStatus = "PICKING"
	OrderPacking   OrderStatus = "PACKING"
	OrderShipped   OrderStatus = "SHIPPED"
	OrderDelivered OrderStatus = "DELIVERED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderCreated, OrderApproved, OrderAllocated, OrderPicking,
		OrderPacking, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

// Priority ranks orders and the tasks generated from them.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// EntityOrder is the audit/event name of the Order aggregate.
const EntityOrder = "Order"

// Order is the aggregate root of the fulfillment workflow.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID             uuid.UUID       `bun:"id,pk,type:uuid" json:"id"`
	OrderNumber    string          `bun:"order_number,notnull,unique" json:"order_number"`
	CustomerID     uuid.UUID       `bun:"customer_id,type:uuid,notnull" json:"customer_id"`
	Status         OrderStatus     `bun:"status,notnull" json:"status"`
	Priority       Priority        `bun:"priority,notnull" json:"priority"`
	Subtotal       decimal.Decimal `bun:"subtotal,type:decimal(12,2),notnull" json:"subtotal"`
	TaxAmount      decimal.Decimal `bun:"tax_amount,type:decimal(12,2),notnull" json:"tax_amount"`
	ShippingAmount decimal.Decimal `bun:"shipping_amount,type:decimal(12,2),notnull" json:"shipping_amount"`
	TotalAmount    decimal.Decimal `bun:"total_amount,type:decimal(12,2),notnull" json:"total_amount"`
	WarehouseID    uuid.NullUUID   `bun:"warehouse_id,type:uuid" json:"warehouse_id"`
	Notes          string          `bun:"notes,notnull" json:"notes"`
	Metadata       map[string]any  `bun:"metadata" json:"metadata,omitempty"`
	CreatedBy      uuid.NullUUID   `bun:"created_by,type:uuid" json:"created_by"`
	UpdatedBy      uuid.NullUUID   `bun:"updated_by,type:uuid" json:"updated_by"`
	CreatedAt      time.Time       `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt      time.Time       `bun:"updated_at,notnull" json:"updated_at"`
}

// RecalculateTotal enforces total = subtotal + tax + shipping.
func (o *Order) RecalculateTotal() {
	o.TotalAmount = o.Subtotal.Add(o.TaxAmount).Add(o.ShippingAmount).Round(2)
}

// IsAllocated reports whether inventory has been reserved for the order.
func (o *Order) IsAllocated() bool {
	switch o.Status {
	case OrderAllocated, OrderPicking, OrderPacking, OrderShipped, OrderDelivered:
		return true
	}
	return false
}

// IsPickingStarted reports whether picking tasks exist for the order.
func (o *Order) IsPickingStarted() bool {
	switch o.Status {
	case OrderPicking, OrderPacking, OrderShipped, OrderDelivered:
		return true
	}
	return false
}

// IsPackingStarted reports whether packing has begun.
func (o *Order) IsPackingStarted() bool {
	switch o.Status {
	case OrderPacking, OrderShipped, OrderDelivered:
		return true
	}
	return false
}

// IsShipped reports whether the order has left the warehouse.
func (o *Order) IsShipped() bool {
	return o.Status == OrderShipped || o.Status == OrderDelivered
}

// IsDelivered reports whether the order reached the customer.
func (o *Order) IsDelivered() bool {
	return o.Status == OrderDelivered
}

// IsTerminal reports whether no further transitions are possible.
func (o *Order) IsTerminal() bool {
	return o.Status == OrderDelivered || o.Status == OrderCancelled
}

// CanBeCancelled reports whether the order may still be cancelled.
func (o *Order) CanBeCancelled() bool {
	return !o.IsShipped() && o.Status != OrderCancelled
}

// IsUpdatable reports whether header fields may still change.
func (o *Order) IsUpdatable() bool {
	return o.CanBeCancelled()
}

// OrderItem is a single product line of an order.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items,alias:oi"`

	ID                uuid.UUID           `bun:"id,pk,type:uuid" json:"id"`
	OrderID           uuid.UUID           `bun:"order_id,type:uuid,notnull,unique:order_items_order_product" json:"order_id"`
	LineNumber        int                 `bun:"line_number,notnull" json:"line_number"`
	ProductID         uuid.UUID           `bun:"product_id,type:uuid,notnull,unique:order_items_order_product" json:"product_id"`
	ProductSKU        string              `bun:"product_sku,notnull" json:"product_sku"`
	ProductName       string              `bun:"product_name,notnull" json:"product_name"`
	QuantityOrdered   decimal.Decimal     `bun:"quantity_ordered,type:decimal(12,4),notnull" json:"quantity_ordered"`
	QuantityAllocated decimal.Decimal     `bun:"quantity_allocated,type:decimal(12,4),notnull" json:"quantity_allocated"`
	QuantityPicked    decimal.Decimal     `bun:"quantity_picked,type:decimal(12,4),notnull" json:"quantity_picked"`
	QuantityPacked    decimal.Decimal     `bun:"quantity_packed,type:decimal(12,4),notnull" json:"quantity_packed"`
	QuantityShipped   decimal.Decimal     `bun:"quantity_shipped,type:decimal(12,4),notnull" json:"quantity_shipped"`
	UnitPrice         decimal.Decimal     `bun:"unit_price,type:decimal(12,2),notnull" json:"unit_price"`
	UnitWeight        decimal.NullDecimal `bun:"unit_weight,type:decimal(12,4)" json:"unit_weight"`
	LineTotal         decimal.Decimal     `bun:"line_total,type:decimal(12,2),notnull" json:"line_total"`
	TotalWeight       decimal.NullDecimal `bun:"total_weight,type:decimal(12,4)" json:"total_weight"`
	Metadata          map[string]any      `bun:"metadata" json:"metadata,omitempty"`
}

// Recalculate refreshes the derived line total and weight.
func (i *OrderItem) Recalculate() {
	i.LineTotal = i.QuantityOrdered.Mul(i.UnitPrice).Round(2)
	if i.UnitWeight.Valid {
		i.TotalWeight = decimal.NewNullDecimal(i.QuantityOrdered.Mul(i.UnitWeight.Decimal).Round(4))
	} else {
		i.TotalWeight = decimal.NullDecimal{}
	}
}

func (i *OrderItem) RemainingToAllocate() decimal.Decimal {
	return i.QuantityOrdered.Sub(i.QuantityAllocated)
}

func (i *OrderItem) RemainingToPick() decimal.Decimal {
	return i.QuantityAllocated.Sub(i.QuantityPicked)
}

func (i *OrderItem) RemainingToPack() decimal.Decimal {
	return i.QuantityPicked.Sub(i.QuantityPacked)
}

func (i *OrderItem) RemainingToShip() decimal.Decimal {
	return i.QuantityPacked.Sub(i.QuantityShipped)
}

func (i *OrderItem) IsFullyAllocated() bool {
	return i.QuantityAllocated.GreaterThanOrEqual(i.QuantityOrdered)
}

func (i *OrderItem) IsFullyPicked() bool {
	return i.QuantityPicked.GreaterThanOrEqual(i.QuantityAllocated)
}

func (i *OrderItem) IsFullyPacked() bool {
	return i.QuantityPacked.GreaterThanOrEqual(i.QuantityPicked)
}

func (i *OrderItem) IsFullyShipped() bool {
	return i.QuantityShipped.GreaterThanOrEqual(i.QuantityPacked)
}
