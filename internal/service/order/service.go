package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
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
	repo "github.com/Additional-Code/fulfillment/internal/repository/order"
	packingrepo "github.com/Additional-Code/fulfillment/internal/repository/packing"
	pickingrepo "github.com/Additional-Code/fulfillment/internal/repository/picking"
	shipmentrepo "github.com/Additional-Code/fulfillment/internal/repository/shipment"
	"github.com/Additional-Code/fulfillment/internal/workflow"
	"github.com/Additional-Code/fulfillment/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/fulfillment/service/order")

// Module provides the order service to Fx.
var Module = fx.Provide(NewService)

// Service owns the order aggregate: creation, approval, updates, cancellation
// and the status transitions the downstream stages apply to it.
type Service struct {
	db          *database.Connections
	repo        *repo.Repository
	allocations *allocationrepo.Repository
	picking     *pickingrepo.Repository
	packing     *packingrepo.Repository
	shipments   *shipmentrepo.Repository
	audit       *audit.Recorder
	events      *event.Publisher
	cache       cache.Store
	cacheTTL    time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	DB          *database.Connections
	Repository  *repo.Repository
	Allocations *allocationrepo.Repository
	Picking     *pickingrepo.Repository
	Packing     *packingrepo.Repository
	Shipments   *shipmentrepo.Repository
	Audit       *audit.Recorder
	Events      *event.Publisher `optional:"true"`
	Cache       cache.Store      `optional:"true"`
	Config      config.Config
	Logger      *zap.Logger `optional:"true"`
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		db:          p.DB,
		repo:        p.Repository,
		allocations: p.Allocations,
		picking:     p.Picking,
		packing:     p.Packing,
		shipments:   p.Shipments,
		audit:       p.Audit,
		events:      p.Events,
		cache:       p.Cache,
		cacheTTL:    p.Config.Cache.DefaultTTL,
		logger:      p.Logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// GetOrder retrieves an order by id, consulting cache when available.
func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.GetOrder", trace.WithAttributes(attribute.String("order.id", id.String())))
	defer span.End()

	if order, err := s.getFromCache(ctx, id); err == nil {
		return order, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		if s.logger != nil {
			s.logger.Warn("orders cache read failed", zap.String("id", id.String()), zap.Error(err))
		}
	}

	order, err := s.Load(ctx, s.db.Reader, id, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return nil, err
	}

	if err := s.storeInCache(ctx, order); err != nil {
		if s.logger != nil {
			s.logger.Warn("orders cache write failed", zap.String("id", id.String()), zap.Error(err))
		}
	}

	return order, nil
}

// Load reads an order on db, locking it when lock is set. A missing order is
// reported as not_found.
func (s *Service) Load(ctx context.Context, db bun.IDB, id uuid.UUID, lock bool) (*entity.Order, error) {
	var (
		order *entity.Order
		err   error
	)
	if lock {
		order, err = s.repo.GetForUpdate(ctx, db, id)
	} else {
		order, err = s.repo.GetByID(ctx, db, id)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return nil, errorbank.NotFound("order not found", errorbank.WithDetail("order_id", id.String()))
	}
	if err != nil {
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}
	return order, nil
}

// RequireOpen loads the order behind a task or package and refuses further
// work once it has been cancelled.
func (s *Service) RequireOpen(ctx context.Context, db bun.IDB, id uuid.UUID) (*entity.Order, error) {
	order, err := s.Load(ctx, db, id, false)
	if err != nil {
		return nil, err
	}
	if order.Status == entity.OrderCancelled {
		return nil, errorbank.InvalidStatus(errorbank.CodeInvalidOrderStatus,
			fmt.Sprintf("order %s is cancelled", order.OrderNumber),
			errorbank.WithDetail("current_status", string(order.Status)),
		)
	}
	return order, nil
}

// Transition moves order to status inside the caller's transaction. It runs the
// workflow check, persists the status and writes the status_changed audit
// row. The returned event is to be published once the transaction commits.
func (s *Service) Transition(ctx context.Context, tx bun.IDB, order *entity.Order, to entity.OrderStatus, actor uuid.UUID, notes string) (event.StatusChanged, error) {
	if err := workflow.ValidateOrder(order, to); err != nil {
		return event.StatusChanged{}, err
	}
	from := order.Status
	order.Status = to
	order.UpdatedBy = entity.NullID(actor)
	if err := s.repo.Update(ctx, tx, order, "status", "updated_by"); err != nil {
		return event.StatusChanged{}, err
	}
	if err := s.audit.StatusChanged(ctx, tx, entity.EntityOrder, order.ID, actor, string(from), string(to), notes); err != nil {
		return event.StatusChanged{}, err
	}
	return event.StatusChanged{
		EntityType: entity.EntityOrder,
		EntityID:   order.ID,
		OrderID:    order.ID,
		From:       string(from),
		To:         string(to),
		Actor:      actor,
		OccurredAt: order.UpdatedAt,
	}, nil
}

// AfterCommit drops the cached order and publishes the committed events.
func (s *Service) AfterCommit(ctx context.Context, orderID uuid.UUID, events ...event.StatusChanged) {
	s.Invalidate(ctx, orderID)
	s.events.Publish(ctx, events...)
}

// Invalidate removes the cached copy of an order.
func (s *Service) Invalidate(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, CacheKey(id)); err != nil && s.logger != nil {
		s.logger.Warn("orders cache delete failed", zap.String("id", id.String()), zap.Error(err))
	}
}

// CacheKey is the cache entry of an order.
func CacheKey(id uuid.UUID) string {
	return fmt.Sprintf("orders:%s", id)
}

func (s *Service) getFromCache(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
	var order entity.Order
	if err := cache.GetJSON(ctx, s.cache, CacheKey(id), &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Service) storeInCache(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return nil
	}
	return cache.SetJSON(ctx, s.cache, CacheKey(order.ID), order, s.cacheTTL)
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
