// Package shipping ships sealed packages and follows the shipment to delivery.
package shipping

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/fulfillment/internal/audit"
	"github.com/Additional-Code/fulfillment/internal/cache"
	"github.com/Additional-Code/fulfillment/internal/config"
	"github.com/Additional-Code/fulfillment/internal/database"
	"github.com/Additional-Code/fulfillment/internal/entity"
	"github.com/Additional-Code/fulfillment/internal/event"
	allocationrepo "github.com/Additional-Code/fulfillment/internal/repository/allocation"
	orderrepo "github.com/Additional-Code/fulfillment/internal/repository/order"
	packingrepo "github.com/Additional-Code/fulfillment/internal/repository/packing"
	shipmentrepo "github.com/Additional-Code/fulfillment/internal/repository/shipment"
	ordersvc "github.com/Additional-Code/fulfillment/internal/service/order"
	"github.com/Additional-Code/fulfillment/internal/workflow"
	"github.com/Additional-Code/fulfillment/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/fulfillment/service/shipping")

// Module provides the shipping service to Fx.
var Module = fx.Provide(NewService)

// Service creates shipments and drives them through the delivery workflow.
type Service struct {
	db          *database.Connections
	orders      *ordersvc.Service
	items       *orderrepo.Repository
	allocations *allocationrepo.Repository
	packing     *packingrepo.Repository
	repo        *shipmentrepo.Repository
	audit       *audit.Recorder
	events      *event.Publisher
	cache       cache.Store
	manifestTTL time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	DB          *database.Connections
	Orders      *ordersvc.Service
	Items       *orderrepo.Repository
	Allocations *allocationrepo.Repository
	Packing     *packingrepo.Repository
	Repository  *shipmentrepo.Repository
	Audit       *audit.Recorder
	Config      config.Config
	Events      *event.Publisher `optional:"true"`
	Cache       cache.Store      `optional:"true"`
	Logger      *zap.Logger      `optional:"true"`
}

func NewService(p Params) *Service {
	return &Service{
		db:          p.DB,
		orders:      p.Orders,
		items:       p.Items,
		allocations: p.Allocations,
		packing:     p.Packing,
		repo:        p.Repository,
		audit:       p.Audit,
		events:      p.Events,
		cache:       p.Cache,
		manifestTTL: p.Config.Fulfillment.ManifestCacheTTL,
		logger:      p.Logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ManifestCacheKey is the cache entry of a shipment manifest.
func ManifestCacheKey(shipmentID uuid.UUID) string {
	return fmt.Sprintf("manifests:%s", shipmentID)
}

// ShipmentInput describes a new shipment.
type ShipmentInput struct {
	Carrier               string
	ShippingCost          decimal.Decimal
	InsuranceCost         decimal.Decimal
	ShipFromAddress       map[string]any
	ShipToAddress         map[string]any
	EstimatedDeliveryDate *time.Time
	Notes                 string
	Metadata              map[string]any
}

// StatusInput carries the data some shipment transitions need.
type StatusInput struct {
	TrackingNumber string
	RecipientName  string
	DeliveredBy    string
	Notes          string
}

// CreateShipment ships every sealed package of a fully packed order and moves
// the order to SHIPPED.
func (s *Service) CreateShipment(ctx context.Context, orderID uuid.UUID, in ShipmentInput, actor uuid.UUID) (*entity.Shipment, error) {
	ctx, span := serviceTracer.Start(ctx, "ShippingService.CreateShipment", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer span.End()

	in.Carrier = strings.TrimSpace(in.Carrier)
	if in.Carrier == "" {
		return nil, s.fail(span, errorbank.Validation("carrier is required", errorbank.WithDetail("field", "carrier")), "invalid shipment")
	}
	if in.ShippingCost.IsNegative() || in.InsuranceCost.IsNegative() {
		return nil, s.fail(span, errorbank.Validation("shipping and insurance costs must not be negative"), "invalid shipment")
	}

	var (
		shipment *entity.Shipment
		ev       event.StatusChanged
	)
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		order, err := s.orders.Load(ctx, tx, orderID, true)
		if err != nil {
			return err
		}
		if order.Status != entity.OrderPacking {
			return errorbank.InvalidStatus(errorbank.CodeInvalidOrderStatus,
				fmt.Sprintf("order %s must be in packing status to create a shipment", order.OrderNumber),
				errorbank.WithDetail("current_status", string(order.Status)),
			)
		}
		tasks, err := s.packing.ListTasksByOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		open := 0
		for _, t := range tasks {
			if t.Status != entity.TaskCompleted {
				open++
			}
		}
		if open > 0 {
			return errorbank.Business(errorbank.CodeIncompletePacking,
				fmt.Sprintf("cannot create shipment: %d packing tasks not completed", open))
		}
		pkgs, err := s.packing.ListPackages(ctx, tx, packingrepo.PackageFilter{OrderID: order.ID, SealedOnly: true})
		if err != nil {
			return err
		}
		if len(pkgs) == 0 {
			return errorbank.Business(errorbank.CodeNoPackages,
				fmt.Sprintf("no sealed packages found for order %s", order.OrderNumber))
		}

		now := s.now()
		shipment = &entity.Shipment{
			ID:              uuid.New(),
			OrderID:         order.ID,
			Carrier:         in.Carrier,
			Status:          entity.ShipmentCreated,
			ShippingCost:    in.ShippingCost.Round(2),
			InsuranceCost:   in.InsuranceCost.Round(2),
			ShipFromAddress: orEmpty(in.ShipFromAddress),
			ShipToAddress:   orEmpty(in.ShipToAddress),
			Notes:           in.Notes,
			Metadata:        in.Metadata,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		shipment.ShipmentNumber = entity.Number("SHP", shipment.ID, now, 6)
		if in.EstimatedDeliveryDate != nil {
			shipment.EstimatedDeliveryDate = bun.NullTime{Time: in.EstimatedDeliveryDate.UTC()}
		}

		weight, volume, hasVolume := decimal.Zero, decimal.Zero, false
		rows := make([]entity.ShipmentItem, len(pkgs))
		ids := make([]uuid.UUID, len(pkgs))
		for i := range pkgs {
			weight = weight.Add(pkgs[i].GrossWeight)
			if v := pkgs[i].Volume(); v.Valid {
				volume = volume.Add(v.Decimal)
				hasVolume = true
			}
			rows[i] = entity.ShipmentItem{
				ID:             uuid.New(),
				ShipmentID:     shipment.ID,
				PackageID:      pkgs[i].ID,
				SequenceNumber: i + 1,
			}
			ids[i] = pkgs[i].ID
		}
		shipment.TotalWeight = weight.Round(2)
		if hasVolume {
			shipment.TotalVolume = decimal.NewNullDecimal(volume.Round(2))
		}
		if err := s.repo.Create(ctx, tx, shipment, rows); err != nil {
			return err
		}
		if err := s.recordShipped(ctx, tx, order.ID, ids); err != nil {
			return err
		}

		ev, err = s.orders.Transition(ctx, tx, order, entity.OrderShipped, actor,
			fmt.Sprintf("Shipment %s created with %d packages", shipment.ShipmentNumber, len(pkgs)))
		return err
	})
	if err != nil {
		return nil, s.fail(span, err, "failed to create shipment")
	}

	s.orders.AfterCommit(ctx, orderID, ev)
	if s.logger != nil {
		s.logger.Info("shipment created", zap.String("shipment_number", shipment.ShipmentNumber), zap.String("order_id", orderID.String()))
	}
	return shipment, nil
}

// recordShipped adds the shipped package quantities to each order item and
// consumes the order's outstanding reservations.
func (s *Service) recordShipped(ctx context.Context, tx bun.IDB, orderID uuid.UUID, packageIDs []uuid.UUID) error {
	contents, err := s.packing.Items(ctx, tx, packageIDs...)
	if err != nil {
		return err
	}
	shipped := make(map[uuid.UUID]decimal.Decimal)
	for _, c := range contents {
		shipped[c.OrderItemID] = shipped[c.OrderItemID].Add(c.Quantity)
	}
	items, err := s.items.Items(ctx, tx, orderID)
	if err != nil {
		return err
	}
	for i := range items {
		qty, ok := shipped[items[i].ID]
		if !ok {
			continue
		}
		items[i].QuantityShipped = decimal.Min(items[i].QuantityPacked, items[i].QuantityShipped.Add(qty))
		if err := s.items.UpdateItem(ctx, tx, &items[i], "quantity_shipped"); err != nil {
			return err
		}
	}

	active, err := s.allocations.ListByOrder(ctx, tx, orderID, entity.AllocationReserved)
	if err != nil {
		return err
	}
	now := s.now()
	for i := range active {
		active[i].Consume(now)
		if err := s.allocations.Update(ctx, tx, &active[i], "status", "consumed_at"); err != nil {
			return err
		}
	}
	return nil
}

// AssignTracking sets the carrier tracking number of a shipment that has none.
func (s *Service) AssignTracking(ctx context.Context, shipmentID uuid.UUID, tracking string, actor uuid.UUID) (*entity.Shipment, error) {
	ctx, span := serviceTracer.Start(ctx, "ShippingService.AssignTracking", trace.WithAttributes(attribute.String("shipment.id", shipmentID.String())))
	defer span.End()

	tracking = strings.TrimSpace(tracking)
	if tracking == "" {
		return nil, s.fail(span, errorbank.Validation("tracking number is required", errorbank.WithDetail("field", "tracking_number")), "invalid tracking")
	}

	var shipment *entity.Shipment
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if shipment, err = s.load(ctx, tx, shipmentID, true); err != nil {
			return err
		}
		if shipment.TrackingNumber != "" {
			return errorbank.Business(errorbank.CodeTrackingAlreadyAssigned,
				fmt.Sprintf("shipment %s already has a tracking number assigned", shipment.ShipmentNumber))
		}
		shipment.TrackingNumber = tracking
		shipment.Manifest = nil
		if err := s.repo.Update(ctx, tx, shipment, "tracking_number", "manifest"); err != nil {
			return err
		}
		_, err = s.audit.Record(ctx, tx, audit.Entry{
			EntityType: entity.EntityShipment,
			EntityID:   shipment.ID,
			Action:     audit.ActionTrackingAssigned,
			Actor:      actor,
			NewValues:  map[string]any{"tracking_number": tracking},
			Notes:      fmt.Sprintf("Tracking number %s assigned", tracking),
		})
		return err
	})
	if err != nil {
		return nil, s.fail(span, err, "failed to assign tracking")
	}

	s.InvalidateManifest(ctx, shipmentID)
	if s.logger != nil {
		s.logger.Info("tracking assigned", zap.String("shipment_number", shipment.ShipmentNumber), zap.String("tracking", tracking))
	}
	return shipment, nil
}

// UpdateShipmentStatus moves a shipment along the delivery workflow. Delivery
// also delivers the order in the same transaction.
func (s *Service) UpdateShipmentStatus(ctx context.Context, shipmentID uuid.UUID, to entity.ShipmentStatus, in StatusInput, actor uuid.UUID) (*entity.Shipment, error) {
	ctx, span := serviceTracer.Start(ctx, "ShippingService.UpdateShipmentStatus", trace.WithAttributes(
		attribute.String("shipment.id", shipmentID.String()),
		attribute.String("shipment.status", string(to)),
	))
	defer span.End()

	if !to.Valid() {
		return nil, s.fail(span, errorbank.Validation(fmt.Sprintf("unknown shipment status %s", to)), "invalid status")
	}

	var (
		shipment *entity.Shipment
		evs      []event.StatusChanged
	)
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if shipment, err = s.load(ctx, tx, shipmentID, true); err != nil {
			return err
		}
		if err := workflow.ValidateShipment(shipment, to); err != nil {
			return err
		}
		if shipment.Status == to {
			return nil
		}
		if to == entity.ShipmentDelivered && strings.TrimSpace(in.RecipientName) == "" {
			return errorbank.Validation("recipient name is required for delivery", errorbank.WithDetail("field", "recipient_name"))
		}

		from := shipment.Status
		now := s.now()
		shipment.Status = to
		// The stored manifest snapshots the status, so it is regenerated on next read.
		shipment.Manifest = nil
		columns := []string{"status", "manifest"}
		switch to {
		case entity.ShipmentDispatched:
			shipment.DispatchedAt = bun.NullTime{Time: now}
			shipment.DispatcherID = entity.NullID(actor)
			columns = append(columns, "dispatched_at", "dispatcher_id")
			if tracking := strings.TrimSpace(in.TrackingNumber); tracking != "" && shipment.TrackingNumber == "" {
				shipment.TrackingNumber = tracking
				columns = append(columns, "tracking_number")
			}
		case entity.ShipmentDelivered:
			shipment.DeliveredAt = bun.NullTime{Time: now}
			shipment.ActualDeliveryDate = bun.NullTime{Time: now}
			shipment.RecipientName = strings.TrimSpace(in.RecipientName)
			shipment.DeliveredBy = in.DeliveredBy
			columns = append(columns, "delivered_at", "actual_delivery_date", "recipient_name", "delivered_by")
		}
		if err := s.repo.Update(ctx, tx, shipment, columns...); err != nil {
			return err
		}

		notes := fmt.Sprintf("Shipment status updated to %s", to)
		if in.Notes != "" {
			notes = in.Notes
		}
		if err := s.audit.StatusChanged(ctx, tx, entity.EntityShipment, shipment.ID, actor, string(from), string(to), notes); err != nil {
			return err
		}
		evs = append(evs, event.StatusChanged{
			EntityType: entity.EntityShipment,
			EntityID:   shipment.ID,
			OrderID:    shipment.OrderID,
			From:       string(from),
			To:         string(to),
			Actor:      actor,
			OccurredAt: now,
		})

		if to == entity.ShipmentDelivered {
			order, err := s.orders.Load(ctx, tx, shipment.OrderID, true)
			if err != nil {
				return err
			}
			if order.Status == entity.OrderShipped {
				ev, err := s.orders.Transition(ctx, tx, order, entity.OrderDelivered, actor,
					fmt.Sprintf("Order delivered via shipment %s", shipment.ShipmentNumber))
				if err != nil {
					return err
				}
				evs = append(evs, ev)
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(span, err, "failed to update shipment status")
	}

	if len(evs) > 0 {
		s.InvalidateManifest(ctx, shipmentID)
		s.orders.AfterCommit(ctx, shipment.OrderID, evs...)
		if s.logger != nil {
			s.logger.Info("shipment status updated", zap.String("shipment_number", shipment.ShipmentNumber), zap.String("status", string(to)))
		}
	}
	return shipment, nil
}

// InvalidateManifest drops the cached manifest of a shipment. Callers that
// change the shipment also clear the stored snapshot in their transaction.
func (s *Service) InvalidateManifest(ctx context.Context, shipmentID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, ManifestCacheKey(shipmentID)); err != nil && s.logger != nil {
		s.logger.Warn("manifest cache delete failed", zap.String("shipment_id", shipmentID.String()), zap.Error(err))
	}
}

func (s *Service) load(ctx context.Context, db bun.IDB, id uuid.UUID, lock bool) (*entity.Shipment, error) {
	shipment, err := s.repo.Get(ctx, db, id, lock)
	if errors.Is(err, shipmentrepo.ErrNotFound) {
		return nil, errorbank.NotFound("shipment not found", errorbank.WithDetail("shipment_id", id.String()))
	}
	return shipment, err
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func (s *Service) fail(span trace.Span, err error, msg string) error {
	err = errorbank.Wrap(err, msg)
	appErr := errorbank.From(err)
	if appErr.Kind() == errorbank.KindInternal {
		span.RecordError(err)
		if s.logger != nil {
			s.logger.Error(msg, zap.Error(err))
		}
	}
	span.SetStatus(codes.Error, appErr.Message())
	return err
}
