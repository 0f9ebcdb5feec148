package shipping

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/fulfillment/internal/entity"
)

// ShipmentLine reports one shipment of an order.
type ShipmentLine struct {
	ShipmentID        uuid.UUID             `json:"shipment_id"`
	ShipmentNumber    string                `json:"shipment_number"`
	Carrier           string                `json:"carrier"`
	TrackingNumber    string                `json:"tracking_number"`
	Status            entity.ShipmentStatus `json:"status"`
	EstimatedDelivery bun.NullTime          `json:"estimated_delivery"`
	ActualDelivery    bun.NullTime          `json:"actual_delivery"`
	PackageCount      int                   `json:"package_count"`
	TotalWeight       decimal.Decimal       `json:"total_weight"`
	ShippingCost      decimal.Decimal       `json:"shipping_cost"`
}

// Summary reports the shipments of an order.
type Summary struct {
	OrderID            uuid.UUID      `json:"order_id"`
	TotalShipments     int            `json:"total_shipments"`
	DeliveredShipments int            `json:"delivered_shipments"`
	Shipments          []ShipmentLine `json:"shipments"`
}

// GetShipment fetches a single shipment.
func (s *Service) GetShipment(ctx context.Context, id uuid.UUID) (*entity.Shipment, error) {
	ctx, span := serviceTracer.Start(ctx, "ShippingService.GetShipment", trace.WithAttributes(attribute.String("shipment.id", id.String())))
	defer span.End()

	shipment, err := s.load(ctx, s.db.Reader, id, false)
	if err != nil {
		return nil, s.fail(span, err, "failed to load shipment")
	}
	return shipment, nil
}

// GetShipmentSummary reports every shipment of an order.
func (s *Service) GetShipmentSummary(ctx context.Context, orderID uuid.UUID) (*Summary, error) {
	ctx, span := serviceTracer.Start(ctx, "ShippingService.GetShipmentSummary", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer span.End()

	db := s.db.Reader
	if _, err := s.orders.Load(ctx, db, orderID, false); err != nil {
		return nil, s.fail(span, err, "failed to load order")
	}
	shipments, err := s.repo.ListByOrder(ctx, db, orderID)
	if err != nil {
		return nil, s.fail(span, err, "failed to list shipments")
	}

	out := &Summary{OrderID: orderID, TotalShipments: len(shipments), Shipments: make([]ShipmentLine, 0, len(shipments))}
	for i := range shipments {
		sh := &shipments[i]
		if sh.IsDelivered() {
			out.DeliveredShipments++
		}
		rows, err := s.repo.Items(ctx, db, sh.ID)
		if err != nil {
			return nil, s.fail(span, err, "failed to list shipment items")
		}
		out.Shipments = append(out.Shipments, ShipmentLine{
			ShipmentID:        sh.ID,
			ShipmentNumber:    sh.ShipmentNumber,
			Carrier:           sh.Carrier,
			TrackingNumber:    sh.TrackingNumber,
			Status:            sh.Status,
			EstimatedDelivery: sh.EstimatedDeliveryDate,
			ActualDelivery:    sh.ActualDeliveryDate,
			PackageCount:      len(rows),
			TotalWeight:       sh.TotalWeight,
			ShippingCost:      sh.ShippingCost,
		})
	}
	return out, nil
}
