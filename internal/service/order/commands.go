package order

import (
	"context"
	"fmt"
	"maps"
	"reflect"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/fulfillment/internal/audit"
	"github.com/Additional-Code/fulfillment/internal/entity"
	"github.com/Additional-Code/fulfillment/internal/event"
	"github.com/Additional-Code/fulfillment/pkg/errorbank"
)

// ItemInput describes one order line.
type ItemInput struct {
	// ProductID defaults to an id derived from ProductSKU.
	ProductID   uuid.UUID
	ProductSKU  string
	ProductName string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	UnitWeight  decimal.NullDecimal
	Metadata    map[string]any
}

// CreateOrderInput carries the data of a new order.
type CreateOrderInput struct {
	Priority       entity.Priority
	WarehouseID    uuid.UUID
	TaxAmount      decimal.Decimal
	ShippingAmount decimal.Decimal
	Notes          string
	Metadata       map[string]any
	Items          []ItemInput
}

// UpdateOrderInput lists the header fields to change; nil means unchanged.
type UpdateOrderInput struct {
	Priority       *entity.Priority
	Notes          *string
	Metadata       map[string]any
	TaxAmount      *decimal.Decimal
	ShippingAmount *decimal.Decimal
}

// ProductIDFor derives a stable product id from a SKU.
func ProductIDFor(sku string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("product:"+sku))
}

func (in *CreateOrderInput) validate() error {
	if len(in.Items) == 0 {
		return errorbank.Validation("order must contain at least one item")
	}
	if in.Priority == "" {
		in.Priority = entity.PriorityMedium
	}
	if !in.Priority.Valid() {
		return errorbank.Validation(fmt.Sprintf("unknown priority %s", in.Priority))
	}
	if in.TaxAmount.IsNegative() || in.ShippingAmount.IsNegative() {
		return errorbank.Validation("tax and shipping amounts must not be negative")
	}

	skus := make(map[string]struct{}, len(in.Items))
	products := make(map[uuid.UUID]struct{}, len(in.Items))
	for i := range in.Items {
		it := &in.Items[i]
		line := errorbank.WithDetail("line", i+1)
		if it.ProductSKU == "" || it.ProductName == "" {
			return errorbank.Validation("product sku and name are required", line)
		}
		if !it.Quantity.IsPositive() {
			return errorbank.Validation("quantity must be greater than zero", line, errorbank.WithDetail("product_sku", it.ProductSKU))
		}
		if it.UnitPrice.IsNegative() {
			return errorbank.Validation("unit price must not be negative", line, errorbank.WithDetail("product_sku", it.ProductSKU))
		}
		if it.UnitWeight.Valid && it.UnitWeight.Decimal.IsNegative() {
			return errorbank.Validation("unit weight must not be negative", line, errorbank.WithDetail("product_sku", it.ProductSKU))
		}
		if it.ProductID == uuid.Nil {
			it.ProductID = ProductIDFor(it.ProductSKU)
		}
		if _, dup := skus[it.ProductSKU]; dup {
			return errorbank.Validation("duplicate product in order", errorbank.WithDetail("product_sku", it.ProductSKU))
		}
		if _, dup := products[it.ProductID]; dup {
			return errorbank.Validation("duplicate product in order", errorbank.WithDetail("product_id", it.ProductID.String()))
		}
		skus[it.ProductSKU] = struct{}{}
		products[it.ProductID] = struct{}{}
	}
	return nil
}

// CreateOrder validates and persists a new order with its items.
func (s *Service) CreateOrder(ctx context.Context, customerID uuid.UUID, in CreateOrderInput, actor uuid.UUID) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.CreateOrder", trace.WithAttributes(
		attribute.String("customer.id", customerID.String()),
		attribute.Int("order.items", len(in.Items)),
	))
	defer span.End()

	if customerID == uuid.Nil {
		return nil, s.fail(span, errorbank.Validation("customer is required"), "invalid order")
	}
	if err := in.validate(); err != nil {
		return nil, s.fail(span, err, "invalid order")
	}

	now := s.now()
	order := &entity.Order{
		ID:             uuid.New(),
		CustomerID:     customerID,
		Status:         entity.OrderCreated,
		Priority:       in.Priority,
		TaxAmount:      in.TaxAmount.Round(2),
		ShippingAmount: in.ShippingAmount.Round(2),
		WarehouseID:    entity.NullID(in.WarehouseID),
		Notes:          in.Notes,
		Metadata:       in.Metadata,
		CreatedBy:      entity.NullID(actor),
		UpdatedBy:      entity.NullID(actor),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	order.OrderNumber = entity.Number("ORD", order.ID, now, 8)

	items := make([]entity.OrderItem, len(in.Items))
	subtotal := decimal.Zero
	for i, it := range in.Items {
		items[i] = entity.OrderItem{
			ID:                uuid.New(),
			OrderID:           order.ID,
			LineNumber:        i + 1,
			ProductID:         it.ProductID,
			ProductSKU:        it.ProductSKU,
			ProductName:       it.ProductName,
			QuantityOrdered:   it.Quantity,
			QuantityAllocated: decimal.Zero,
			QuantityPicked:    decimal.Zero,
			QuantityPacked:    decimal.Zero,
			QuantityShipped:   decimal.Zero,
			UnitPrice:         it.UnitPrice.Round(2),
			UnitWeight:        it.UnitWeight,
			Metadata:          it.Metadata,
		}
		items[i].Recalculate()
		subtotal = subtotal.Add(items[i].LineTotal)
	}
	order.Subtotal = subtotal.Round(2)
	order.RecalculateTotal()

	err := s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := s.repo.Create(ctx, tx, order, items); err != nil {
			return err
		}
		_, err := s.audit.Record(ctx, tx, audit.Entry{
			EntityType: entity.EntityOrder,
			EntityID:   order.ID,
			Action:     audit.ActionCreated,
			Actor:      actor,
			NewValues: map[string]any{
				"order_number": order.OrderNumber,
				"status":       string(order.Status),
				"priority":     string(order.Priority),
				"total_amount": order.TotalAmount.StringFixed(2),
				"items":        len(items),
			},
			Notes: fmt.Sprintf("Order created with %d items", len(items)),
		})
		return err
	})
	if err != nil {
		return nil, s.fail(span, err, "failed to create order")
	}

	if err := s.storeInCache(ctx, order); err != nil && s.logger != nil {
		s.logger.Warn("orders cache write failed", zap.String("id", order.ID.String()), zap.Error(err))
	}
	s.events.Publish(ctx, event.StatusChanged{
		EntityType: entity.EntityOrder,
		EntityID:   order.ID,
		OrderID:    order.ID,
		To:         string(order.Status),
		Actor:      actor,
		OccurredAt: now,
	})
	if s.logger != nil {
		s.logger.Info("order created", zap.String("order_number", order.OrderNumber), zap.Int("items", len(items)))
	}
	return order, nil
}

// ApproveOrder moves a CREATED order to APPROVED.
func (s *Service) ApproveOrder(ctx context.Context, id, actor uuid.UUID) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.ApproveOrder", trace.WithAttributes(attribute.String("order.id", id.String())))
	defer span.End()

	var (
		order *entity.Order
		ev    event.StatusChanged
	)
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if order, err = s.Load(ctx, tx, id, true); err != nil {
			return err
		}
		if order.Status != entity.OrderCreated {
			return errorbank.InvalidStatus(errorbank.CodeInvalidOrderStatus,
				fmt.Sprintf("order %s cannot be approved from status %s", order.OrderNumber, order.Status),
				errorbank.WithDetail("current_status", string(order.Status)),
			)
		}
		ev, err = s.Transition(ctx, tx, order, entity.OrderApproved, actor, "Order approved for fulfillment")
		return err
	})
	if err != nil {
		return nil, s.fail(span, err, "failed to approve order")
	}

	s.AfterCommit(ctx, order.ID, ev)
	if s.logger != nil {
		s.logger.Info("order approved", zap.String("order_number", order.OrderNumber))
	}
	return order, nil
}

// UpdateOrder changes header fields of an order that has not shipped.
func (s *Service) UpdateOrder(ctx context.Context, id uuid.UUID, in UpdateOrderInput, actor uuid.UUID) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.UpdateOrder", trace.WithAttributes(attribute.String("order.id", id.String())))
	defer span.End()

	if in.Priority != nil && !in.Priority.Valid() {
		return nil, s.fail(span, errorbank.Validation(fmt.Sprintf("unknown priority %s", *in.Priority)), "invalid update")
	}
	if (in.TaxAmount != nil && in.TaxAmount.IsNegative()) || (in.ShippingAmount != nil && in.ShippingAmount.IsNegative()) {
		return nil, s.fail(span, errorbank.Validation("tax and shipping amounts must not be negative"), "invalid update")
	}

	var (
		order   *entity.Order
		changed bool
	)
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if order, err = s.Load(ctx, tx, id, true); err != nil {
			return err
		}
		if !order.IsUpdatable() {
			return errorbank.Business(errorbank.CodeOrderNotUpdatable,
				fmt.Sprintf("order %s cannot be updated in status %s", order.OrderNumber, order.Status))
		}

		oldValues := map[string]any{}
		newValues := map[string]any{}
		var columns []string
		financial := false

		if in.Priority != nil && *in.Priority != order.Priority {
			oldValues["priority"], newValues["priority"] = string(order.Priority), string(*in.Priority)
			order.Priority = *in.Priority
			columns = append(columns, "priority")
		}
		if in.Notes != nil && *in.Notes != order.Notes {
			oldValues["notes"], newValues["notes"] = order.Notes, *in.Notes
			order.Notes = *in.Notes
			columns = append(columns, "notes")
		}
		if in.Metadata != nil && !reflect.DeepEqual(in.Metadata, order.Metadata) {
			oldValues["metadata"], newValues["metadata"] = order.Metadata, maps.Clone(in.Metadata)
			order.Metadata = in.Metadata
			columns = append(columns, "metadata")
		}
		if in.TaxAmount != nil && !in.TaxAmount.Round(2).Equal(order.TaxAmount) {
			oldValues["tax_amount"], newValues["tax_amount"] = order.TaxAmount.StringFixed(2), in.TaxAmount.StringFixed(2)
			order.TaxAmount = in.TaxAmount.Round(2)
			columns = append(columns, "tax_amount")
			financial = true
		}
		if in.ShippingAmount != nil && !in.ShippingAmount.Round(2).Equal(order.ShippingAmount) {
			oldValues["shipping_amount"], newValues["shipping_amount"] = order.ShippingAmount.StringFixed(2), in.ShippingAmount.StringFixed(2)
			order.ShippingAmount = in.ShippingAmount.Round(2)
			columns = append(columns, "shipping_amount")
			financial = true
		}
		if len(columns) == 0 {
			return nil
		}
		if financial {
			oldValues["total_amount"] = order.TotalAmount.StringFixed(2)
			order.RecalculateTotal()
			newValues["total_amount"] = order.TotalAmount.StringFixed(2)
			columns = append(columns, "total_amount")
		}
		changed = true
		order.UpdatedBy = entity.NullID(actor)
		if err := s.repo.Update(ctx, tx, order, append(columns, "updated_by")...); err != nil {
			return err
		}
		oldV, newV, fields := audit.Changes(oldValues, newValues)
		_, err = s.audit.Record(ctx, tx, audit.Entry{
			EntityType:   entity.EntityOrder,
			EntityID:     order.ID,
			Action:       audit.ActionUpdated,
			Actor:        actor,
			OldValues:    oldV,
			NewValues:    newV,
			FieldChanges: fields,
			Notes:        "Order updated",
		})
		return err
	})
	if err != nil {
		return nil, s.fail(span, err, "failed to update order")
	}
	if changed {
		s.Invalidate(ctx, order.ID)
	}
	return order, nil
}

// CancelOrder cancels an order that has not shipped.
func (s *Service) CancelOrder(ctx context.Context, id, actor uuid.UUID, reason string) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.CancelOrder", trace.WithAttributes(attribute.String("order.id", id.String())))
	defer span.End()

	var (
		order *entity.Order
		ev    event.StatusChanged
	)
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if order, err = s.Load(ctx, tx, id, true); err != nil {
			return err
		}
		if !order.CanBeCancelled() {
			return errorbank.Business(errorbank.CodeOrderNotCancellable,
				fmt.Sprintf("order %s cannot be cancelled in status %s", order.OrderNumber, order.Status))
		}
		ev, err = s.Transition(ctx, tx, order, entity.OrderCancelled, actor, "Order cancelled: "+reason)
		return err
	})
	if err != nil {
		return nil, s.fail(span, err, "failed to cancel order")
	}

	s.AfterCommit(ctx, order.ID, ev)
	if s.logger != nil {
		s.logger.Info("order cancelled", zap.String("order_number", order.OrderNumber), zap.String("reason", reason))
	}
	return order, nil
}
