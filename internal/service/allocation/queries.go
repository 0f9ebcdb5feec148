package allocation

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/fulfillment/internal/entity"
)

// Issue is an order item whose allocation falls short of the ordered quantity.
type Issue struct {
	ItemID    uuid.UUID       `json:"item_id"`
	SKU       string          `json:"sku"`
	Ordered   decimal.Decimal `json:"ordered"`
	Allocated decimal.Decimal `json:"allocated"`
	Shortage  decimal.Decimal `json:"shortage"`
}

// Validation is the outcome of ValidateAllocation.
type Validation struct {
	OrderID uuid.UUID `json:"order_id"`
	IsValid bool      `json:"is_valid"`
	Issues  []Issue   `json:"issues"`
}

// LocationLine is one SKU held at a location.
type LocationLine struct {
	SKU      string          `json:"sku"`
	Quantity decimal.Decimal `json:"quantity"`
}

// LocationGroup aggregates the reservations held at one location.
type LocationGroup struct {
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	Items         []LocationLine  `json:"items"`
}

// ItemGroup aggregates the reservations of one SKU.
type ItemGroup struct {
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	Locations     []string        `json:"locations"`
}

// Summary groups an order's active allocations for operators.
type Summary struct {
	OrderID          uuid.UUID                `json:"order_id"`
	TotalAllocations int                      `json:"total_allocations"`
	ByLocation       map[string]LocationGroup `json:"by_location"`
	ByItem           map[string]ItemGroup     `json:"by_item"`
}

// ValidateAllocation reports every item allocated below its ordered quantity.
func (s *Service) ValidateAllocation(ctx context.Context, orderID uuid.UUID) (*Validation, error) {
	ctx, span := serviceTracer.Start(ctx, "AllocationService.ValidateAllocation", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer span.End()

	if _, err := s.orders.Load(ctx, s.db.Reader, orderID, false); err != nil {
		return nil, s.fail(span, err, "failed to load order")
	}
	items, err := s.items.Items(ctx, s.db.Reader, orderID)
	if err != nil {
		return nil, s.fail(span, err, "failed to list order items")
	}

	out := &Validation{OrderID: orderID, Issues: []Issue{}}
	for _, it := range items {
		if it.IsFullyAllocated() {
			continue
		}
		out.Issues = append(out.Issues, Issue{
			ItemID:    it.ID,
			SKU:       it.ProductSKU,
			Ordered:   it.QuantityOrdered,
			Allocated: it.QuantityAllocated,
			Shortage:  it.RemainingToAllocate(),
		})
	}
	out.IsValid = len(out.Issues) == 0
	return out, nil
}

// GetAllocationSummary groups the RESERVED allocations by location and by SKU.
func (s *Service) GetAllocationSummary(ctx context.Context, orderID uuid.UUID) (*Summary, error) {
	ctx, span := serviceTracer.Start(ctx, "AllocationService.GetAllocationSummary", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer span.End()

	if _, err := s.orders.Load(ctx, s.db.Reader, orderID, false); err != nil {
		return nil, s.fail(span, err, "failed to load order")
	}
	items, err := s.items.Items(ctx, s.db.Reader, orderID)
	if err != nil {
		return nil, s.fail(span, err, "failed to list order items")
	}
	active, err := s.allocations.ListByOrder(ctx, s.db.Reader, orderID, entity.AllocationReserved)
	if err != nil {
		return nil, s.fail(span, err, "failed to list allocations")
	}

	skus := make(map[uuid.UUID]string, len(items))
	for _, it := range items {
		skus[it.ID] = it.ProductSKU
	}

	out := &Summary{
		OrderID:          orderID,
		TotalAllocations: len(active),
		ByLocation:       make(map[string]LocationGroup),
		ByItem:           make(map[string]ItemGroup),
	}
	for _, a := range active {
		sku := skus[a.OrderItemID]

		loc := out.ByLocation[a.Location]
		loc.TotalQuantity = loc.TotalQuantity.Add(a.QuantityReserved)
		loc.Items = append(loc.Items, LocationLine{SKU: sku, Quantity: a.QuantityReserved})
		out.ByLocation[a.Location] = loc

		item := out.ByItem[sku]
		item.TotalQuantity = item.TotalQuantity.Add(a.QuantityReserved)
		item.Locations = append(item.Locations, a.Location)
		out.ByItem[sku] = item
	}
	return out, nil
}
