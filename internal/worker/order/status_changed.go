package order

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/fulfillment/internal/entity"
	"github.com/Additional-Code/fulfillment/internal/event"
	"github.com/Additional-Code/fulfillment/internal/messaging"
	ordersvc "github.com/Additional-Code/fulfillment/internal/service/order"
	shippingsvc "github.com/Additional-Code/fulfillment/internal/service/shipping"
	"github.com/Additional-Code/fulfillment/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/fulfillment/worker/order")

// Module registers order-related worker handlers.
var Module = fx.Module("worker_order",
	fx.Provide(
		fx.Annotate(
			NewStatusChangedHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// Params collects the handler's dependencies.
type Params struct {
	fx.In

	Logger   *zap.Logger
	Orders   *ordersvc.Service
	Shipping *shippingsvc.Service
}

// NewStatusChangedHandler refreshes the cached read models touched by a
// status change: the order is evicted and reloaded, and a shipment change
// also drops the shipment's cached manifest.
func NewStatusChangedHandler(p Params) worker.HandlerRegistration {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.orders.status_changed", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
			attribute.Int64("messaging.offset", msg.Offset),
		))
		defer span.End()

		ev, err := event.Decode(msg.Value)
		if err != nil {
			logger.Error("failed to decode status change", zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}
		span.SetAttributes(
			attribute.String("entity.type", ev.EntityType),
			attribute.String("entity.id", ev.EntityID.String()),
			attribute.String("status.to", ev.To),
		)

		if ev.EntityType == entity.EntityShipment {
			p.Shipping.InvalidateManifest(ctx, ev.EntityID)
		}
		p.Orders.Invalidate(ctx, ev.OrderID)
		if _, err := p.Orders.GetOrder(ctx, ev.OrderID); err != nil {
			// the order may be gone; nothing left to refresh
			logger.Warn("order reload failed", zap.String("order_id", ev.OrderID.String()), zap.Error(err))
		}

		logger.Info("status change processed",
			zap.String("entity_type", ev.EntityType),
			zap.String("entity_id", ev.EntityID.String()),
			zap.String("order_id", ev.OrderID.String()),
			zap.String("from", ev.From),
			zap.String("to", ev.To),
		)

		return nil
	}

	return worker.HandlerRegistration{
		EventType: event.TypeStatusChanged,
		Handler:   handler,
	}
}
