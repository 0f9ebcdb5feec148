package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// ShipmentStatus follows the delivery lifecycle of a shipment.
type ShipmentStatus string

const (
	ShipmentCreated        ShipmentStatus = "CREATED"
	ShipmentLoaded         ShipmentStatus = "LOADED"
	ShipmentDispatched     ShipmentStatus = "DISPATCHED"
	ShipmentInTransit      ShipmentStatus = "IN_TRANSIT"
	ShipmentOutForDelivery ShipmentStatus = "OUT_FOR_DELIVERY"
	ShipmentDelivered      ShipmentStatus = "DELIVERED"
	ShipmentCancelled      ShipmentStatus = "CANCELLED"
	ShipmentReturned       ShipmentStatus = "RETURNED"
)

// Valid reports whether s is a known shipment status.
func (s ShipmentStatus) Valid() bool {
	switch s {
	case ShipmentCreated, ShipmentLoaded, ShipmentDispatched, ShipmentInTransit,
		ShipmentOutForDelivery, ShipmentDelivered, ShipmentCancelled, ShipmentReturned:
		return true
	}
	return false
}

const EntityShipment = "Shipment"

// Shipment moves one or more sealed packages of an order to the customer.
type Shipment struct {
	bun.BaseModel `bun:"table:shipments,alias:sh"`

	ID                    uuid.UUID           `bun:"id,pk,type:uuid" json:"id"`
	ShipmentNumber        string              `bun:"shipment_number,notnull,unique" json:"shipment_number"`
	OrderID               uuid.UUID           `bun:"order_id,type:uuid,notnull" json:"order_id"`
	Carrier               string              `bun:"carrier,notnull" json:"carrier"`
	TrackingNumber        string              `bun:"tracking_number,notnull" json:"tracking_number"`
	Status                ShipmentStatus      `bun:"status,notnull" json:"status"`
	ShippingCost          decimal.Decimal     `bun:"shipping_cost,type:decimal(10,2),notnull" json:"shipping_cost"`
	InsuranceCost         decimal.Decimal     `bun:"insurance_cost,type:decimal(10,2),notnull" json:"insurance_cost"`
	TotalWeight           decimal.Decimal     `bun:"total_weight,type:decimal(8,2),notnull" json:"total_weight"`
	TotalVolume           decimal.NullDecimal `bun:"total_volume,type:decimal(12,2)" json:"total_volume"`
	ShipFromAddress       map[string]any      `bun:"ship_from_address" json:"ship_from_address"`
	ShipToAddress         map[string]any      `bun:"ship_to_address" json:"ship_to_address"`
	Manifest              *Manifest           `bun:"manifest,nullzero" json:"manifest,omitempty"`
	DispatcherID          uuid.NullUUID       `bun:"dispatcher_id,type:uuid" json:"dispatcher_id"`
	EstimatedDeliveryDate bun.NullTime        `bun:"estimated_delivery_date" json:"estimated_delivery_date"`
	ActualDeliveryDate    bun.NullTime        `bun:"actual_delivery_date" json:"actual_delivery_date"`
	DeliveredBy           string              `bun:"delivered_by,notnull" json:"delivered_by"`
	RecipientName         string              `bun:"recipient_name,notnull" json:"recipient_name"`
	DispatchedAt          bun.NullTime        `bun:"dispatched_at" json:"dispatched_at"`
	DeliveredAt           bun.NullTime        `bun:"delivered_at" json:"delivered_at"`
	Notes                 string              `bun:"notes,notnull" json:"notes"`
	Metadata              map[string]any      `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt             time.Time           `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt             time.Time           `bun:"updated_at,notnull" json:"updated_at"`
}

// IsDelivered reports whether the shipment reached its recipient.
func (s *Shipment) IsDelivered() bool {
	return s.Status == ShipmentDelivered
}

// IsInTransit reports whether the shipment is on the road.
func (s *Shipment) IsInTransit() bool {
	return s.Status == ShipmentInTransit || s.Status == ShipmentOutForDelivery
}

// DeliveryDelay is actual minus estimated delivery; ok is false when either is unknown.
func (s *Shipment) DeliveryDelay() (delay time.Duration, ok bool) {
	if s.ActualDeliveryDate.IsZero() || s.EstimatedDeliveryDate.IsZero() {
		return 0, false
	}
	return s.ActualDeliveryDate.Sub(s.EstimatedDeliveryDate.Time), true
}

// ShipmentItem places a package in a shipment at a load sequence.
type ShipmentItem struct {
	bun.BaseModel `bun:"table:shipment_items,alias:shi"`

	ID             uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	ShipmentID     uuid.UUID `bun:"shipment_id,type:uuid,notnull,unique:shipment_items_shipment_package" json:"shipment_id"`
	PackageID      uuid.UUID `bun:"package_id,type:uuid,notnull,unique:shipment_items_shipment_package" json:"package_id"`
	SequenceNumber int       `bun:"sequence_number,notnull" json:"sequence_number"`
}

// Manifest is the denormalised snapshot of a shipment's contents.
type Manifest struct {
	ShipmentNumber    string            `json:"shipment_number"`
	OrderNumber       string            `json:"order_number"`
	Carrier           string            `json:"carrier"`
	TrackingNumber    string            `json:"tracking_number"`
	Status            ShipmentStatus    `json:"status"`
	ShipFrom          map[string]any    `json:"ship_from"`
	ShipTo            map[string]any    `json:"ship_to"`
	TotalWeight       decimal.Decimal   `json:"total_weight"`
	TotalVolume       *decimal.Decimal  `json:"total_volume,omitempty"`
	EstimatedDelivery *time.Time        `json:"estimated_delivery,omitempty"`
	GeneratedAt       time.Time         `json:"generated_at"`
	Packages          []ManifestPackage `json:"packages"`
}

// ManifestPackage describes one package in a manifest.
type ManifestPackage struct {
	SequenceNumber int                `json:"sequence_number"`
	PackageNumber  string             `json:"package_number"`
	PackageType    PackageType        `json:"package_type"`
	Dimensions     ManifestDimensions `json:"dimensions"`
	Weight         decimal.Decimal    `json:"weight"`
	Items          []ManifestItem     `json:"items"`
}

// ManifestDimensions holds optional package dimensions in centimetres.
type ManifestDimensions struct {
	Length *decimal.Decimal `json:"length,omitempty"`
	Width  *decimal.Decimal `json:"width,omitempty"`
	Height *decimal.Decimal `json:"height,omitempty"`
}

// ManifestItem is one product line inside a manifest package.
type ManifestItem struct {
	ProductSKU  string          `json:"product_sku"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}
