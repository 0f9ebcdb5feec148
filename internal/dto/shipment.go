package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Additional-Code/fulfillment/internal/entity"
	shippingsvc "github.com/Additional-Code/fulfillment/internal/service/shipping"
)

// CreateShipmentRequest is the payload of POST /orders/:id/shipments.
type CreateShipmentRequest struct {
	Carrier               string          `json:"carrier" validate:"required,max=100"`
	ShippingCost          decimal.Decimal `json:"shipping_cost"`
	InsuranceCost         decimal.Decimal `json:"insurance_cost"`
	ShipFromAddress       map[string]any  `json:"ship_from_address"`
	ShipToAddress         map[string]any  `json:"ship_to_address"`
	EstimatedDeliveryDate *time.Time      `json:"estimated_delivery_date"`
	Notes                 string          `json:"notes"`
	Metadata              map[string]any  `json:"metadata"`
}

// Input converts the request into the service input.
func (r CreateShipmentRequest) Input() shippingsvc.ShipmentInput {
	return shippingsvc.ShipmentInput{
		Carrier:               r.Carrier,
		ShippingCost:          r.ShippingCost,
		InsuranceCost:         r.InsuranceCost,
		ShipFromAddress:       r.ShipFromAddress,
		ShipToAddress:         r.ShipToAddress,
		EstimatedDeliveryDate: r.EstimatedDeliveryDate,
		Notes:                 r.Notes,
		Metadata:              r.Metadata,
	}
}

// TrackingRequest is the payload of POST /shipments/:id/tracking.
type TrackingRequest struct {
	TrackingNumber string `json:"tracking_number" validate:"required,max=100"`
}

// ShipmentStatusRequest is the payload of POST /shipments/:id/status.
type ShipmentStatusRequest struct {
	Status         entity.ShipmentStatus `json:"status" validate:"required"`
	TrackingNumber string                `json:"tracking_number"`
	RecipientName  string                `json:"recipient_name"`
	DeliveredBy    string                `json:"delivered_by"`
	Notes          string                `json:"notes"`
}

// Input converts the request into the service input.
func (r ShipmentStatusRequest) Input() shippingsvc.StatusInput {
	return shippingsvc.StatusInput{
		TrackingNumber: r.TrackingNumber,
		RecipientName:  r.RecipientName,
		DeliveredBy:    r.DeliveredBy,
		Notes:          r.Notes,
	}
}
