package order

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/fulfillment/internal/entity"
)

// Totals is the financial and weight breakdown of an order.
type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	ShippingAmount decimal.Decimal `json:"shipping_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	TotalWeight    decimal.Decimal `json:"total_weight"`
}

// ItemSummary reports the progress counters of one order line.
type ItemSummary struct {
	ID                uuid.UUID       `json:"id"`
	LineNumber        int             `json:"line_number"`
	ProductSKU        string          `json:"product_sku"`
	ProductName       string          `json:"product_name"`
	QuantityOrdered   decimal.Decimal `json:"quantity_ordered"`
	QuantityAllocated decimal.Decimal `json:"quantity_allocated"`
	QuantityPicked    decimal.Decimal `json:"quantity_picked"`
	QuantityPacked    decimal.Decimal `json:"quantity_packed"`
	QuantityShipped   decimal.Decimal `json:"quantity_shipped"`
	LineTotal         decimal.Decimal `json:"line_total"`
}

// Summary is the reporting view of an order and its workflow artefacts.
type Summary struct {
	Order            *entity.Order `json:"order"`
	Totals           Totals        `json:"totals"`
	Items            []ItemSummary `json:"items"`
	AllocationCount  int           `json:"allocation_count"`
	PickingTaskCount int           `json:"picking_task_count"`
	PackingTaskCount int           `json:"packing_task_count"`
	ShipmentCount    int           `json:"shipment_count"`
	IsFullyAllocated bool          `json:"is_fully_allocated"`
	IsFullyPicked    bool          `json:"is_fully_picked"`
	IsFullyPacked    bool          `json:"is_fully_packed"`
	IsFullyShipped   bool          `json:"is_fully_shipped"`
}

// ListItems returns the order's items by line number.
func (s *Service) ListItems(ctx context.Context, orderID uuid.UUID) ([]entity.OrderItem, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.ListItems", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer span.End()

	if _, err := s.Load(ctx, s.db.Reader, orderID, false); err != nil {
		return nil, s.fail(span, err, "failed to load order")
	}
	items, err := s.repo.Items(ctx, s.db.Reader, orderID)
	if err != nil {
		return nil, s.fail(span, err, "failed to list order items")
	}
	return items, nil
}

// CalculateTotals recomputes the order totals from its stored items.
func (s *Service) CalculateTotals(ctx context.Context, orderID uuid.UUID) (Totals, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.CalculateTotals", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer span.End()

	order, err := s.Load(ctx, s.db.Reader, orderID, false)
	if err != nil {
		return Totals{}, s.fail(span, err, "failed to load order")
	}
	items, err := s.repo.Items(ctx, s.db.Reader, orderID)
	if err != nil {
		return Totals{}, s.fail(span, err, "failed to list order items")
	}
	return totals(order, items), nil
}

func totals(order *entity.Order, items []entity.OrderItem) Totals {
	subtotal := decimal.Zero
	weight := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.LineTotal)
		if it.TotalWeight.Valid {
			weight = weight.Add(it.TotalWeight.Decimal)
		}
	}
	subtotal = subtotal.Round(2)
	return Totals{
		Subtotal:       subtotal,
		TaxAmount:      order.TaxAmount,
		ShippingAmount: order.ShippingAmount,
		TotalAmount:    subtotal.Add(order.TaxAmount).Add(order.ShippingAmount).Round(2),
		TotalWeight:    weight,
	}
}

// GetOrderSummary reports an order with per-item progress and artefact counts.
func (s *Service) GetOrderSummary(ctx context.Context, orderID uuid.UUID) (*Summary, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.GetOrderSummary", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer span.End()

	db := s.db.Reader
	order, err := s.Load(ctx, db, orderID, false)
	if err != nil {
		return nil, s.fail(span, err, "failed to load order")
	}
	items, err := s.repo.Items(ctx, db, orderID)
	if err != nil {
		return nil, s.fail(span, err, "failed to list order items")
	}

	summary := &Summary{
		Order:            order,
		Totals:           totals(order, items),
		Items:            make([]ItemSummary, 0, len(items)),
		IsFullyAllocated: true,
		IsFullyPicked:    true,
		IsFullyPacked:    true,
		IsFullyShipped:   true,
	}
	for i := range items {
		it := &items[i]
		summary.Items = append(summary.Items, ItemSummary{
			ID:                it.ID,
			LineNumber:        it.LineNumber,
			ProductSKU:        it.ProductSKU,
			ProductName:       it.ProductName,
			QuantityOrdered:   it.QuantityOrdered,
			QuantityAllocated: it.QuantityAllocated,
			QuantityPicked:    it.QuantityPicked,
			QuantityPacked:    it.QuantityPacked,
			QuantityShipped:   it.QuantityShipped,
			LineTotal:         it.LineTotal,
		})
		summary.IsFullyAllocated = summary.IsFullyAllocated && it.IsFullyAllocated()
		summary.IsFullyPicked = summary.IsFullyPicked && it.IsFullyPicked()
		summary.IsFullyPacked = summary.IsFullyPacked && it.IsFullyPacked()
		summary.IsFullyShipped = summary.IsFullyShipped && it.IsFullyShipped()
	}

	if summary.AllocationCount, err = s.allocations.CountByOrder(ctx, db, orderID); err != nil {
		return nil, s.fail(span, err, "failed to count allocations")
	}
	if summary.PickingTaskCount, err = s.picking.CountTasksByOrder(ctx, db, orderID); err != nil {
		return nil, s.fail(span, err, "failed to count picking tasks")
	}
	packing, err := s.packing.ListTasksByOrder(ctx, db, orderID)
	if err != nil {
		return nil, s.fail(span, err, "failed to list packing tasks")
	}
	summary.PackingTaskCount = len(packing)
	shipments, err := s.shipments.ListByOrder(ctx, db, orderID)
	if err != nil {
		return nil, s.fail(span, err, "failed to list shipments")
	}
	summary.ShipmentCount = len(shipments)
	return summary, nil
}

// History lists the audit trail of an order, oldest first.
func (s *Service) History(ctx context.Context, orderID uuid.UUID) ([]entity.AuditLog, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.History", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer span.End()

	rows, err := s.audit.History(ctx, s.db.Reader, entity.EntityOrder, orderID)
	if err != nil {
		return nil, s.fail(span, err, "failed to read audit trail")
	}
	return rows, nil
}
