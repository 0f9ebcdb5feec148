package dto

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Additional-Code/fulfillment/internal/entity"
	packingsvc "github.com/Additional-Code/fulfillment/internal/service/packing"
	pickingsvc "github.com/Additional-Code/fulfillment/internal/service/picking"
)

// AssignRequest names the worker taking a picking or packing task.
type AssignRequest struct {
	WorkerID uuid.UUID `json:"worker_id" validate:"required"`
}

// PickUpdate sets the cumulative picked quantity of one item.
type PickUpdate struct {
	OrderItemID    uuid.UUID       `json:"order_item_id" validate:"required"`
	QuantityPicked decimal.Decimal `json:"quantity_picked"`
}

// PicksRequest is the payload of POST /picking-tasks/:id/picks.
type PicksRequest struct {
	Updates []PickUpdate `json:"updates" validate:"required,min=1,dive"`
}

// ItemUpdates converts the request into service updates.
func (r PicksRequest) ItemUpdates() []pickingsvc.ItemUpdate {
	out := make([]pickingsvc.ItemUpdate, len(r.Updates))
	for i, u := range r.Updates {
		out[i] = pickingsvc.ItemUpdate{OrderItemID: u.OrderItemID, QuantityPicked: u.QuantityPicked}
	}
	return out
}

// PackageRequest is the payload of POST /packing-tasks/:id/packages.
type PackageRequest struct {
	PackageType entity.PackageType `json:"package_type" validate:"omitempty,oneof=BOX PALLET CONTAINER ENVELOPE"`
	Length      *decimal.Decimal   `json:"length"`
	Width       *decimal.Decimal   `json:"width"`
	Height      *decimal.Decimal   `json:"height"`
	EmptyWeight decimal.Decimal    `json:"empty_weight"`
	MaxWeight   *decimal.Decimal   `json:"max_weight"`
	Notes       string             `json:"notes"`
	Metadata    map[string]any     `json:"metadata"`
}

// Input converts the request into the service input.
func (r PackageRequest) Input() packingsvc.PackageInput {
	return packingsvc.PackageInput{
		PackageType: r.PackageType,
		Length:      r.Length,
		Width:       r.Width,
		Height:      r.Height,
		EmptyWeight: r.EmptyWeight,
		MaxWeight:   r.MaxWeight,
		Notes:       r.Notes,
		Metadata:    r.Metadata,
	}
}

// PackageItemRequest is the payload of POST /packages/:id/items.
type PackageItemRequest struct {
	OrderItemID uuid.UUID        `json:"order_item_id" validate:"required"`
	Quantity    decimal.Decimal  `json:"quantity"`
	PositionX   *decimal.Decimal `json:"position_x"`
	PositionY   *decimal.Decimal `json:"position_y"`
	PositionZ   *decimal.Decimal `json:"position_z"`
}

// Position returns the optional placement inside the package.
func (r PackageItemRequest) Position() packingsvc.Position {
	return packingsvc.Position{X: r.PositionX, Y: r.PositionY, Z: r.PositionZ}
}
