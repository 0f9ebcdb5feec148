package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// AllocationStatus tracks a reservation through its life.
type AllocationStatus string

const (
	AllocationReserved AllocationStatus = "RESERVED"
	AllocationReleased AllocationStatus = "RELEASED"
	AllocationConsumed AllocationStatus = "CONSUMED"
)

// Allocation reserves a quantity of one order item at one warehouse location.
// Rows are never deleted; they move to RELEASED or CONSUMED.
type Allocation struct {
	bun.BaseModel `bun:"table:allocations,alias:al"`

	ID               uuid.UUID        `bun:"id,pk,type:uuid" json:"id"`
	OrderID          uuid.UUID        `bun:"order_id,type:uuid,notnull" json:"order_id"`
	OrderItemID      uuid.UUID        `bun:"order_item_id,type:uuid,notnull" json:"order_item_id"`
	WarehouseID      uuid.UUID        `bun:"warehouse_id,type:uuid,notnull" json:"warehouse_id"`
	Location         string           `bun:"location,notnull" json:"location"`
	QuantityReserved decimal.Decimal  `bun:"quantity_reserved,type:decimal(12,4),notnull" json:"quantity_reserved"`
	Status           AllocationStatus `bun:"status,notnull" json:"status"`
	ReservationID    string           `bun:"reservation_id,notnull,unique" json:"reservation_id"`
	AllocatedAt      time.Time        `bun:"allocated_at,notnull" json:"allocated_at"`
	ReleasedAt       bun.NullTime     `bun:"released_at" json:"released_at"`
	ConsumedAt       bun.NullTime     `bun:"consumed_at" json:"consumed_at"`
	Notes            string           `bun:"notes,notnull" json:"notes"`
}

// IsActive reports whether the reservation still holds stock.
func (a *Allocation) IsActive() bool {
	return a.Status == AllocationReserved
}

// Release marks a reserved allocation as released.
func (a *Allocation) Release(at time.Time) bool {
	if a.Status != AllocationReserved {
		return false
	}
	a.Status = AllocationReleased
	a.ReleasedAt = bun.NullTime{Time: at}
	return true
}

// Consume marks a reserved allocation as consumed by shipping.
func (a *Allocation) Consume(at time.Time) bool {
	if a.Status != AllocationReserved {
		return false
	}
	a.Status = AllocationConsumed
	a.ConsumedAt = bun.NullTime{Time: at}
	return true
}
