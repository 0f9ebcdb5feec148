// Package allocation reserves inventory for approved orders and releases it.
package allocation

import (
	"context"
	"fmt"
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
	"github.com/Additional-Code/fulfillment/internal/database"
	"github.com/Additional-Code/fulfillment/internal/entity"
	"github.com/Additional-Code/fulfillment/internal/event"
	"github.com/Additional-Code/fulfillment/internal/inventory"
	allocationrepo "github.com/Additional-Code/fulfillment/internal/repository/allocation"
	orderrepo "github.com/Additional-Code/fulfillment/internal/repository/order"
	ordersvc "github.com/Additional-Code/fulfillment/internal/service/order"
	"github.com/Additional-Code/fulfillment/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/fulfillment/service/allocation")

// Module provides the allocation service to Fx.
var Module = fx.Provide(NewService)

// Service reserves stock through the inventory adapter and tracks it as allocations.
type Service struct {
	db          *database.Connections
	orders      *ordersvc.Service
	items       *orderrepo.Repository
	allocations *allocationrepo.Repository
	inventory   inventory.Adapter
	audit       *audit.Recorder
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
	Inventory   inventory.Adapter
	Audit       *audit.Recorder
	Logger      *zap.Logger `optional:"true"`
}

func NewService(p Params) *Service {
	return &Service{
		db:          p.DB,
		orders:      p.Orders,
		items:       p.Items,
		allocations: p.Allocations,
		inventory:   p.Inventory,
		audit:       p.Audit,
		logger:      p.Logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Detail describes one reservation made by Allocate.
type Detail struct {
	ItemSKU       string          `json:"item_sku"`
	Location      string          `json:"location"`
	Quantity      decimal.Decimal `json:"quantity"`
	ReservationID string          `json:"reservation_id"`
}

// Failure is an order item that could not be fully allocated.
type Failure struct {
	ItemID     uuid.UUID `json:"item_id"`
	ProductSKU string    `json:"product_sku"`
	Error      string    `json:"error"`
}

// Result is the outcome of a successful Allocate.
type Result struct {
	Success            bool      `json:"success"`
	OrderID            uuid.UUID `json:"order_id"`
	AllocationsCreated int       `json:"allocations_created"`
	AllocationDetails  []Detail  `json:"allocation_details"`
}

// ReleaseFailure is an allocation the adapter refused to release.
type ReleaseFailure struct {
	AllocationID  uuid.UUID `json:"allocation_id"`
	ReservationID string    `json:"reservation_id"`
	Error         string    `json:"error"`
}

// ReleaseResult is the outcome of ReleaseAllocations.
type ReleaseResult struct {
	Success         bool             `json:"success"`
	ReleasedCount   int              `json:"released_count"`
	ReleaseFailures []ReleaseFailure `json:"release_failures"`
}

// Reference is the reservation reference of an order.
func Reference(order *entity.Order) string {
	return "ORDER-" + order.OrderNumber
}

// Allocate reserves stock for every unallocated quantity of an approved order.
// Either every item is fully reserved or nothing is: reservations made before
// a failing item are released and the transaction is rolled back.
func (s *Service) Allocate(ctx context.Context, orderID, actor uuid.UUID) (*Result, error) {
	ctx, span := serviceTracer.Start(ctx, "AllocationService.Allocate", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer span.End()

	var (
		result   *Result
		ev       event.StatusChanged
		reserved []string
	)
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		order, err := s.orders.Load(ctx, tx, orderID, true)
		if err != nil {
			return err
		}
		if order.IsAllocated() {
			return errorbank.Business(errorbank.CodeOrderAlreadyAllocated,
				fmt.Sprintf("order %s is already allocated", order.OrderNumber))
		}
		if order.Status != entity.OrderApproved {
			return errorbank.InvalidStatus(errorbank.CodeInvalidOrderStatus,
				fmt.Sprintf("order %s must be APPROVED to allocate, current status %s", order.OrderNumber, order.Status),
				errorbank.WithDetail("current_status", string(order.Status)),
			)
		}
		active, err := s.allocations.ListByOrder(ctx, tx, order.ID, entity.AllocationReserved)
		if err != nil {
			return err
		}
		if len(active) > 0 {
			return errorbank.Business(errorbank.CodeOrderAlreadyAllocated,
				fmt.Sprintf("order %s already holds %d reservations", order.OrderNumber, len(active)))
		}
		if !order.WarehouseID.Valid {
			return errorbank.Validation("order has no warehouse to allocate from",
				errorbank.WithDetail("order_id", order.ID.String()))
		}

		items, err := s.items.Items(ctx, tx, order.ID)
		if err != nil {
			return err
		}

		result = &Result{OrderID: order.ID, AllocationDetails: []Detail{}}
		var failures []Failure
		for i := range items {
			details, err := s.allocateItem(ctx, tx, order, &items[i])
			for _, d := range details {
				reserved = append(reserved, d.ReservationID)
			}
			if err != nil {
				if !isItemFailure(err) {
					return err
				}
				failures = append(failures, Failure{
					ItemID:     items[i].ID,
					ProductSKU: items[i].ProductSKU,
					Error:      errorbank.From(err).Message(),
				})
				continue
			}
			result.AllocationDetails = append(result.AllocationDetails, details...)
		}

		if len(failures) > 0 {
			return errorbank.New(errorbank.KindAllocation,
				fmt.Sprintf("failed to allocate %d of %d items for order %s", len(failures), len(items), order.OrderNumber),
				errorbank.WithCode(errorbank.CodeAllocationFailed),
				errorbank.WithDetail("allocation_failures", failures),
			)
		}

		result.AllocationsCreated = len(result.AllocationDetails)
		ev, err = s.orders.Transition(ctx, tx, order, entity.OrderAllocated, actor,
			fmt.Sprintf("Inventory allocated for %d items", len(items)))
		return err
	})
	if err != nil {
		// The rolled back rows no longer reference these holds.
		s.releaseAll(ctx, reserved)
		return nil, s.fail(span, err, "failed to allocate order")
	}

	result.Success = true
	s.orders.AfterCommit(ctx, orderID, ev)
	if s.logger != nil {
		s.logger.Info("order allocated",
			zap.String("order_id", orderID.String()),
			zap.Int("allocations", result.AllocationsCreated),
		)
	}
	return result, nil
}

// allocateItem reserves the item's remainder across candidate locations,
// first-fit in adapter order. Reservations made are returned even on error.
func (s *Service) allocateItem(ctx context.Context, tx bun.IDB, order *entity.Order, item *entity.OrderItem) ([]Detail, error) {
	need := item.RemainingToAllocate()
	remaining := need
	if !remaining.IsPositive() {
		return nil, nil
	}

	candidates, err := s.inventory.CheckAvailability(ctx, item.ProductSKU, remaining, order.WarehouseID.UUID)
	if err != nil {
		return nil, err
	}

	var details []Detail
	for _, loc := range candidates {
		if !remaining.IsPositive() {
			break
		}
		qty := decimal.Min(remaining, loc.AvailableQuantity)
		if !qty.IsPositive() {
			continue
		}
		res, err := s.inventory.Reserve(ctx, item.ProductSKU, qty, loc.Location, Reference(order))
		if err != nil {
			return details, err
		}
		if !res.ReservedQuantity.IsPositive() || res.ReservedQuantity.GreaterThan(qty) {
			if _, relErr := s.inventory.Release(ctx, res.ReservationID); relErr != nil && s.logger != nil {
				s.logger.Warn("failed to release mismatched reservation",
					zap.String("reservation_id", res.ReservationID), zap.Error(relErr))
			}
			return details, errorbank.Business(errorbank.CodeReservationMismatch,
				fmt.Sprintf("reservation %s for %s at %s holds %s, requested %s",
					res.ReservationID, item.ProductSKU, loc.Location, res.ReservedQuantity, qty))
		}
		details = append(details, Detail{
			ItemSKU:       item.ProductSKU,
			Location:      loc.Location,
			Quantity:      res.ReservedQuantity,
			ReservationID: res.ReservationID,
		})

		alloc := &entity.Allocation{
			ID:               uuid.New(),
			OrderID:          order.ID,
			OrderItemID:      item.ID,
			WarehouseID:      order.WarehouseID.UUID,
			Location:         loc.Location,
			QuantityReserved: res.ReservedQuantity,
			Status:           entity.AllocationReserved,
			ReservationID:    res.ReservationID,
			AllocatedAt:      s.now(),
		}
		if err := s.allocations.Create(ctx, tx, alloc); err != nil {
			return details, err
		}
		remaining = remaining.Sub(res.ReservedQuantity)
		item.QuantityAllocated = item.QuantityAllocated.Add(res.ReservedQuantity)
	}

	if len(details) > 0 {
		if err := s.items.UpdateItem(ctx, tx, item, "quantity_allocated"); err != nil {
			return details, err
		}
	}
	if remaining.IsPositive() {
		return details, errorbank.InventoryUnavailable(item.ProductSKU, need.String(), need.Sub(remaining).String())
	}
	return details, nil
}

// isItemFailure reports errors that belong in the per-item failure list.
// Storage errors abort the whole call instead.
func isItemFailure(err error) bool {
	switch errorbank.From(err).Kind() {
	case errorbank.KindInternal:
		return false
	}
	return true
}

func (s *Service) releaseAll(ctx context.Context, reservationIDs []string) {
	for _, id := range reservationIDs {
		if _, err := s.inventory.Release(ctx, id); err != nil && s.logger != nil {
			s.logger.Warn("failed to release reservation after allocation failure",
				zap.String("reservation_id", id), zap.Error(err))
		}
	}
}

// ReleaseAllocations returns every reserved quantity of an order to stock.
// Adapter failures are reported per allocation and leave that row RESERVED.
func (s *Service) ReleaseAllocations(ctx context.Context, orderID, actor uuid.UUID) (*ReleaseResult, error) {
	ctx, span := serviceTracer.Start(ctx, "AllocationService.ReleaseAllocations", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer span.End()

	result := &ReleaseResult{ReleaseFailures: []ReleaseFailure{}}
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		order, err := s.orders.Load(ctx, tx, orderID, true)
		if err != nil {
			return err
		}
		if order.IsPickingStarted() {
			return errorbank.Business(errorbank.CodeAllocationNotReleasable,
				fmt.Sprintf("allocations of order %s cannot be released in status %s", order.OrderNumber, order.Status))
		}

		active, err := s.allocations.ListByOrder(ctx, tx, order.ID, entity.AllocationReserved)
		if err != nil {
			return err
		}
		if len(active) == 0 {
			return nil
		}
		items, err := s.items.Items(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		byID := make(map[uuid.UUID]*entity.OrderItem, len(items))
		for i := range items {
			byID[items[i].ID] = &items[i]
		}

		touched := make(map[uuid.UUID]struct{})
		var released []string
		for i := range active {
			a := &active[i]
			ok, err := s.inventory.Release(ctx, a.ReservationID)
			if err == nil && !ok {
				err = fmt.Errorf("reservation %s was not released", a.ReservationID)
			}
			if err != nil {
				result.ReleaseFailures = append(result.ReleaseFailures, ReleaseFailure{
					AllocationID:  a.ID,
					ReservationID: a.ReservationID,
					Error:         errorbank.From(err).Message(),
				})
				continue
			}
			a.Release(s.now())
			if err := s.allocations.Update(ctx, tx, a, "status", "released_at"); err != nil {
				return err
			}
			if item, ok := byID[a.OrderItemID]; ok {
				// Units already picked stay allocated so picked never exceeds allocated.
				item.QuantityAllocated = decimal.Max(item.QuantityPicked, item.QuantityAllocated.Sub(a.QuantityReserved))
				touched[item.ID] = struct{}{}
			}
			released = append(released, a.ReservationID)
		}
		for id := range touched {
			if err := s.items.UpdateItem(ctx, tx, byID[id], "quantity_allocated"); err != nil {
				return err
			}
		}
		result.ReleasedCount = len(released)

		_, err = s.audit.Record(ctx, tx, audit.Entry{
			EntityType: entity.EntityOrder,
			EntityID:   order.ID,
			Action:     audit.ActionAllocationsReleased,
			Actor:      actor,
			NewValues: map[string]any{
				"released_count":  result.ReleasedCount,
				"reservation_ids": released,
				"failures":        len(result.ReleaseFailures),
			},
			Notes: fmt.Sprintf("Released %d allocations", result.ReleasedCount),
		})
		return err
	})
	if err != nil {
		return nil, s.fail(span, err, "failed to release allocations")
	}

	result.Success = true
	s.orders.Invalidate(ctx, orderID)
	if s.logger != nil {
		s.logger.Info("allocations released",
			zap.String("order_id", orderID.String()),
			zap.Int("released", result.ReleasedCount),
			zap.Int("failures", len(result.ReleaseFailures)),
		)
	}
	return result, nil
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
