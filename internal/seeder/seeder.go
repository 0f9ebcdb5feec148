package seeder

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/fulfillment/internal/entity"
	"github.com/Additional-Code/fulfillment/internal/inventory"
	ordersvc "github.com/Additional-Code/fulfillment/internal/service/order"
)

// Module provides the Seeder to Fx.
var Module = fx.Provide(New)

// SystemUser is the actor recorded on seeded rows.
var SystemUser = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// Seeder creates demo data for local/dev setups.
type Seeder struct {
	orders *ordersvc.Service
	logger *zap.Logger
}

// New constructs a Seeder on top of the order service.
func New(orders *ordersvc.Service, logger *zap.Logger) *Seeder {
	return &Seeder{orders: orders, logger: logger}
}

func line(sku, name string, qty int64, price, weight string) ordersvc.ItemInput {
	return ordersvc.ItemInput{
		ProductSKU:  sku,
		ProductName: name,
		Quantity:    decimal.NewFromInt(qty),
		UnitPrice:   decimal.RequireFromString(price),
		UnitWeight:  decimal.NewNullDecimal(decimal.RequireFromString(weight)),
	}
}

// Orders creates and approves two demo orders against the main warehouse,
// ready for allocation.
func (s *Seeder) Orders(ctx context.Context) ([]*entity.Order, error) {
	samples := []ordersvc.CreateOrderInput{
		{
			WarehouseID:    inventory.WarehouseMain,
			Priority:       entity.PriorityHigh,
			TaxAmount:      decimal.RequireFromString("4.50"),
			ShippingAmount: decimal.RequireFromString("9.99"),
			Notes:          "demo order",
			Items: []ordersvc.ItemInput{
				line("PROD-001", "Wireless Mouse", 2, "19.99", "0.2000"),
				line("PROD-002", "USB-C Cable", 5, "7.50", "0.0500"),
			},
		},
		{
			WarehouseID: inventory.WarehouseMain,
			Notes:       "demo order",
			Items: []ordersvc.ItemInput{
				line("PROD-003", "Mechanical Keyboard", 1, "89.00", "1.1000"),
			},
		},
	}

	out := make([]*entity.Order, 0, len(samples))
	for _, in := range samples {
		order, err := s.orders.CreateOrder(ctx, uuid.New(), in, SystemUser)
		if err != nil {
			return out, err
		}
		if order, err = s.orders.ApproveOrder(ctx, order.ID, SystemUser); err != nil {
			return out, err
		}
		out = append(out, order)
	}

	if s.logger != nil {
		s.logger.Info("seeded orders", zap.Int("count", len(out)))
	}
	return out, nil
}
