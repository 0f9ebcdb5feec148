// Package inventory is the boundary to the external inventory system that
// answers availability queries and holds stock reservations.
package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/fulfillment/internal/config"
)

// Location is a warehouse location able to supply a product.
type Location struct {
	Location          string          `json:"location"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
}

// Reservation is a hold placed on stock at one location.
type Reservation struct {
	ReservationID    string          `json:"reservation_id"`
	ReservedQuantity decimal.Decimal `json:"reserved_quantity"`
}

// Adapter is the contract the allocation stage depends on.
//
// CheckAvailability returns the locations able to supply quantity, in the
// adapter's preferred order, or an inventory_unavailable error. Release of an
// unknown reservation id reports success.
type Adapter interface {
	CheckAvailability(ctx context.Context, sku string, quantity decimal.Decimal, warehouseID uuid.UUID) ([]Location, error)
	Reserve(ctx context.Context, sku string, quantity decimal.Decimal, location, reference string) (Reservation, error)
	Release(ctx context.Context, reservationID string) (bool, error)
}

// Module provides the configured Adapter to Fx.
var Module = fx.Provide(New)

// New selects the adapter named by INVENTORY_DRIVER.
func New(cfg config.Config, logger *zap.Logger) (Adapter, error) {
	switch cfg.Inventory.Driver {
	case "", "mock":
		if logger != nil {
			logger.Info("using in-memory inventory adapter")
		}
		return NewMockAdapter(), nil
	case "http":
		if logger != nil {
			logger.Info("using http inventory adapter", zap.String("base_url", cfg.Inventory.BaseURL))
		}
		return NewHTTPAdapter(cfg.Inventory.BaseURL, cfg.Inventory.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported inventory driver: %s", cfg.Inventory.Driver)
	}
}
