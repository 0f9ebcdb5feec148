package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Additional-Code/fulfillment/internal/entity"
	ordersvc "github.com/Additional-Code/fulfillment/internal/service/order"
)

// OrderItemRequest is one line of a new order.
type OrderItemRequest struct {
	ProductID   *uuid.UUID       `json:"product_id"`
	ProductSKU  string           `json:"product_sku" validate:"required,max=100"`
	ProductName string           `json:"product_name" validate:"required,max=255"`
	Quantity    decimal.Decimal  `json:"quantity"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	UnitWeight  *decimal.Decimal `json:"unit_weight"`
	Metadata    map[string]any   `json:"metadata"`
}

// CreateOrderRequest is the payload of POST /orders.
type CreateOrderRequest struct {
	CustomerID     uuid.UUID          `json:"customer_id" validate:"required"`
	WarehouseID    uuid.UUID          `json:"warehouse_id" validate:"required"`
	Priority       entity.Priority    `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	TaxAmount      decimal.Decimal    `json:"tax_amount"`
	ShippingAmount decimal.Decimal    `json:"shipping_amount"`
	Notes          string             `json:"notes"`
	Metadata       map[string]any     `json:"metadata"`
	Items          []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

// Input converts the request into the service input.
func (r CreateOrderRequest) Input() ordersvc.CreateOrderInput {
	items := make([]ordersvc.ItemInput, len(r.Items))
	for i, it := range r.Items {
		items[i] = ordersvc.ItemInput{
			ProductSKU:  it.ProductSKU,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Metadata:    it.Metadata,
		}
		if it.ProductID != nil {
			items[i].ProductID = *it.ProductID
		}
		if it.UnitWeight != nil {
			items[i].UnitWeight = decimal.NewNullDecimal(*it.UnitWeight)
		}
	}
	return ordersvc.CreateOrderInput{
		Priority:       r.Priority,
		WarehouseID:    r.WarehouseID,
		TaxAmount:      r.TaxAmount,
		ShippingAmount: r.ShippingAmount,
		Notes:          r.Notes,
		Metadata:       r.Metadata,
		Items:          items,
	}
}

// UpdateOrderRequest is the payload of PATCH /orders/:id.
type UpdateOrderRequest struct {
	Priority       *entity.Priority `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	Notes          *string          `json:"notes"`
	Metadata       map[string]any   `json:"metadata"`
	TaxAmount      *decimal.Decimal `json:"tax_amount"`
	ShippingAmount *decimal.Decimal `json:"shipping_amount"`
}

// Input converts the request into the service input.
func (r UpdateOrderRequest) Input() ordersvc.UpdateOrderInput {
	return ordersvc.UpdateOrderInput{
		Priority:       r.Priority,
		Notes:          r.Notes,
		Metadata:       r.Metadata,
		TaxAmount:      r.TaxAmount,
		ShippingAmount: r.ShippingAmount,
	}
}

// CancelOrderRequest is the payload of POST /orders/:id/cancel.
type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// OrderResponse represents an order with its lines.
type OrderResponse struct {
	*entity.Order
	Items []entity.OrderItem `json:"items,omitempty"`
}

// AuditEntry is one audit log row as exposed over HTTP.
type AuditEntry struct {
	ID           uuid.UUID      `json:"id"`
	Action       string         `json:"action"`
	UserID       *uuid.UUID     `json:"user_id,omitempty"`
	OldValues    map[string]any `json:"old_values,omitempty"`
	NewValues    map[string]any `json:"new_values,omitempty"`
	FieldChanges map[string]any `json:"field_changes,omitempty"`
	Notes        string         `json:"notes"`
	Timestamp    time.Time      `json:"timestamp"`
}

// AuditEntries converts audit rows for transport.
func AuditEntries(logs []entity.AuditLog) []AuditEntry {
	out := make([]AuditEntry, len(logs))
	for i, l := range logs {
		out[i] = AuditEntry{
			ID:           l.ID,
			Action:       l.Action,
			OldValues:    l.OldValues,
			NewValues:    l.NewValues,
			FieldChanges: l.FieldChanges,
			Notes:        l.Notes,
			Timestamp:    l.Timestamp,
		}
		if l.UserID.Valid {
			id := l.UserID.UUID
			out[i].UserID = &id
		}
	}
	return out
}
