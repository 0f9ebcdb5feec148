package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// TaskStatus is shared by picking and packing tasks.
type TaskStatus string

const (
	TaskNotStarted TaskStatus = "NOT_STARTED"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskCompleted  TaskStatus = "COMPLETED"
	TaskCancelled  TaskStatus = "CANCELLED"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskNotStarted, TaskInProgress, TaskCompleted, TaskCancelled:
		return true
	}
	return false
}

// Open reports whether work may still be recorded against the task.
func (s TaskStatus) Open() bool {
	return s == TaskNotStarted || s == TaskInProgress
}

const (
	EntityPickingTask = "PickingTask"
	EntityPackingTask = "PackingTask"
	EntityPackage     = "Package"
)

// PickingTask groups order items picked together in one warehouse zone.
type PickingTask struct {
	bun.BaseModel `bun:"table:picking_tasks,alias:pt"`

	ID             uuid.UUID     `bun:"id,pk,type:uuid" json:"id"`
	TaskNumber     string        `bun:"task_number,notnull,unique" json:"task_number"`
	OrderID        uuid.UUID     `bun:"order_id,type:uuid,notnull" json:"order_id"`
	PickerID       uuid.NullUUID `bun:"picker_id,type:uuid" json:"picker_id"`
	Status         TaskStatus    `bun:"status,notnull" json:"status"`
	WarehouseID    uuid.UUID     `bun:"warehouse_id,type:uuid,notnull" json:"warehouse_id"`
	Zone           string        `bun:"zone,notnull" json:"zone"`
	Priority       Priority      `bun:"priority,notnull" json:"priority"`
	TotalItems     int           `bun:"total_items,notnull" json:"total_items"`
	CompletedItems int           `bun:"completed_items,notnull" json:"completed_items"`
	AssignedAt     bun.NullTime  `bun:"assigned_at" json:"assigned_at"`
	StartedAt      bun.NullTime  `bun:"started_at" json:"started_at"`
	CompletedAt    bun.NullTime  `bun:"completed_at" json:"completed_at"`
	Notes          string        `bun:"notes,notnull" json:"notes"`
	CreatedAt      time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt      time.Time     `bun:"updated_at,notnull" json:"updated_at"`
}

// ProgressPercentage reports completed items as a percentage of the total.
func (t *PickingTask) ProgressPercentage() float64 {
	return progress(t.CompletedItems, t.TotalItems)
}

// PickingItem tracks the pick of one order item within a task.
type PickingItem struct {
	bun.BaseModel `bun:"table:picking_items,alias:pi"`

	ID             uuid.UUID       `bun:"id,pk,type:uuid" json:"id"`
	PickingTaskID  uuid.UUID       `bun:"picking_task_id,type:uuid,notnull,unique:picking_items_task_item" json:"picking_task_id"`
	OrderItemID    uuid.UUID       `bun:"order_item_id,type:uuid,notnull,unique:picking_items_task_item" json:"order_item_id"`
	QuantityToPick decimal.Decimal `bun:"quantity_to_pick,type:decimal(12,4),notnull" json:"quantity_to_pick"`
	QuantityPicked decimal.Decimal `bun:"quantity_picked,type:decimal(12,4),notnull" json:"quantity_picked"`
	Location       string          `bun:"location,notnull" json:"location"`
	IsCompleted    bool            `bun:"is_completed,notnull" json:"is_completed"`
	PickedAt       bun.NullTime    `bun:"picked_at" json:"picked_at"`
	CreatedAt      time.Time       `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt      time.Time       `bun:"updated_at,notnull" json:"updated_at"`
}

// ApplyPicked records the picked quantity and flags completion.
func (i *PickingItem) ApplyPicked(quantity decimal.Decimal, at time.Time) {
	i.QuantityPicked = quantity
	i.UpdatedAt = at
	if i.QuantityPicked.GreaterThanOrEqual(i.QuantityToPick) {
		i.IsCompleted = true
		i.PickedAt = bun.NullTime{Time: at}
	}
}

// PackingTask collects the packages built for an order.
type PackingTask struct {
	bun.BaseModel `bun:"table:packing_tasks,alias:pat"`

	ID             uuid.UUID     `bun:"id,pk,type:uuid" json:"id"`
	TaskNumber     string        `bun:"task_number,notnull,unique" json:"task_number"`
	OrderID        uuid.UUID     `bun:"order_id,type:uuid,notnull" json:"order_id"`
	PackerID       uuid.NullUUID `bun:"packer_id,type:uuid" json:"packer_id"`
	Status         TaskStatus    `bun:"status,notnull" json:"status"`
	TotalItems     int           `bun:"total_items,notnull" json:"total_items"`
	CompletedItems int           `bun:"completed_items,notnull" json:"completed_items"`
	AssignedAt     bun.NullTime  `bun:"assigned_at" json:"assigned_at"`
	StartedAt      bun.NullTime  `bun:"started_at" json:"started_at"`
	CompletedAt    bun.NullTime  `bun:"completed_at" json:"completed_at"`
	Notes          string        `bun:"notes,notnull" json:"notes"`
	CreatedAt      time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt      time.Time     `bun:"updated_at,notnull" json:"updated_at"`
}

// ProgressPercentage reports completed items as a percentage of the total.
func (t *PackingTask) ProgressPercentage() float64 {
	return progress(t.CompletedItems, t.TotalItems)
}

func progress(done, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(done) / float64(total) * 100
}

// PackageType is the kind of physical container.
type PackageType string

const (
	PackageBox       PackageType = "BOX"
	PackagePallet    PackageType = "PALLET"
	PackageContainer PackageType = "CONTAINER"
	PackageEnvelope  PackageType = "ENVELOPE"
)

// Valid reports whether t is a known package type.
func (t PackageType) Valid() bool {
	switch t {
	case PackageBox, PackagePallet, PackageContainer, PackageEnvelope:
		return true
	}
	return false
}

// Package is a physical container. Sealing is irreversible.
type Package struct {
	bun.BaseModel `bun:"table:packages,alias:pkg"`

	ID            uuid.UUID           `bun:"id,pk,type:uuid" json:"id"`
	PackageNumber string              `bun:"package_number,notnull,unique" json:"package_number"`
	PackingTaskID uuid.UUID           `bun:"packing_task_id,type:uuid,notnull" json:"packing_task_id"`
	OrderID       uuid.UUID           `bun:"order_id,type:uuid,notnull" json:"order_id"`
	PackageType   PackageType         `bun:"package_type,notnull" json:"package_type"`
	Length        decimal.NullDecimal `bun:"length,type:decimal(8,2)" json:"length"`
	Width         decimal.NullDecimal `bun:"width,type:decimal(8,2)" json:"width"`
	Height        decimal.NullDecimal `bun:"height,type:decimal(8,2)" json:"height"`
	EmptyWeight   decimal.Decimal     `bun:"empty_weight,type:decimal(8,2),notnull" json:"empty_weight"`
	GrossWeight   decimal.Decimal     `bun:"gross_weight,type:decimal(8,2),notnull" json:"gross_weight"`
	MaxWeight     decimal.NullDecimal `bun:"max_weight,type:decimal(8,2)" json:"max_weight"`
	IsSealed      bool                `bun:"is_sealed,notnull" json:"is_sealed"`
	SealedAt      bun.NullTime        `bun:"sealed_at" json:"sealed_at"`
	Notes         string              `bun:"notes,notnull" json:"notes"`
	Metadata      map[string]any      `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time           `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time           `bun:"updated_at,notnull" json:"updated_at"`
}

// Volume returns length × width × height when all dimensions are known.
func (p *Package) Volume() decimal.NullDecimal {
	if !p.Length.Valid || !p.Width.Valid || !p.Height.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(p.Length.Decimal.Mul(p.Width.Decimal).Mul(p.Height.Decimal))
}

// NetWeight is the weight of the contents alone.
func (p *Package) NetWeight() decimal.Decimal {
	return p.GrossWeight.Sub(p.EmptyWeight)
}

// IsOverweight reports whether gross weight exceeds the configured maximum.
func (p *Package) IsOverweight() bool {
	return p.MaxWeight.Valid && p.GrossWeight.GreaterThan(p.MaxWeight.Decimal)
}

// PackageItem places a quantity of an order item inside a package.
type PackageItem struct {
	bun.BaseModel `bun:"table:package_items,alias:pki"`

	ID          uuid.UUID           `bun:"id,pk,type:uuid" json:"id"`
	PackageID   uuid.UUID           `bun:"package_id,type:uuid,notnull,unique:package_items_package_item" json:"package_id"`
	OrderItemID uuid.UUID           `bun:"order_item_id,type:uuid,notnull,unique:package_items_package_item" json:"order_item_id"`
	Quantity    decimal.Decimal     `bun:"quantity,type:decimal(12,4),notnull" json:"quantity"`
	PositionX   decimal.NullDecimal `bun:"position_x,type:decimal(8,2)" json:"position_x"`
	PositionY   decimal.NullDecimal `bun:"position_y,type:decimal(8,2)" json:"position_y"`
	PositionZ   decimal.NullDecimal `bun:"position_z,type:decimal(8,2)" json:"position_z"`
	CreatedAt   time.Time           `bun:"created_at,notnull" json:"created_at"`
}
