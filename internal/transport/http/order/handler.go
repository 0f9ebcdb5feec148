package order

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/Additional-Code/fulfillment/internal/dto"
	"github.com/Additional-Code/fulfillment/internal/presentation/http/request"
	"github.com/Additional-Code/fulfillment/internal/presentation/http/response"
	allocationsvc "github.com/Additional-Code/fulfillment/internal/service/allocation"
	ordersvc "github.com/Additional-Code/fulfillment/internal/service/order"
	packingsvc "github.com/Additional-Code/fulfillment/internal/service/packing"
	pickingsvc "github.com/Additional-Code/fulfillment/internal/service/picking"
	shippingsvc "github.com/Additional-Code/fulfillment/internal/service/shipping"
	"github.com/Additional-Code/fulfillment/internal/transport/http/route"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/fulfillment/transport/http/order")

// Module registers the order routes on the shared Echo router.
var Module = fx.Module("http_orders",
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)

// Handler exposes order-scoped endpoints over HTTP.
type Handler struct {
	orders     *ordersvc.Service
	allocation *allocationsvc.Service
	picking    *pickingsvc.Service
	packing    *packingsvc.Service
	shipping   *shippingsvc.Service
}

// Params collects the services behind the order routes.
type Params struct {
	fx.In

	Orders     *ordersvc.Service
	Allocation *allocationsvc.Service
	Picking    *pickingsvc.Service
	Packing    *packingsvc.Service
	Shipping   *shippingsvc.Service
}

// NewHandler constructs an order Handler.
func NewHandler(p Params) *Handler {
	return &Handler{
		orders:     p.Orders,
		allocation: p.Allocation,
		picking:    p.Picking,
		packing:    p.Packing,
		shipping:   p.Shipping,
	}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/orders")
	g.POST("", h.create)
	g.GET("/:id", h.getByID)
	g.PATCH("/:id", h.update)

	g.POST("/:id/approve", h.approve)
	g.POST("/:id/cancel", h.cancel)
	g.POST("/:id/allocate", h.allocate)
	g.POST("/:id/release-allocations", h.releaseAllocations)
	g.POST("/:id/picking-tasks", h.generatePickingTasks)
	g.POST("/:id/packing-task", h.createPackingTask)
	g.POST("/:id/shipments", h.createShipment)

	g.GET("/:id/summary", h.summary)
	g.GET("/:id/totals", h.totals)
	g.GET("/:id/allocations/summary", h.allocationSummary)
	g.GET("/:id/allocations/validation", h.allocationValidation)
	g.GET("/:id/picking/summary", h.pickingSummary)
	g.GET("/:id/packing/summary", h.packingSummary)
	g.GET("/:id/shipping/summary", h.shippingSummary)
	g.GET("/:id/audit", h.audit)
}

func target(name string) route.Target {
	return route.Target{Tracer: httpTracer, Span: "orders." + name, Attr: "order.id"}
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	actor, err := request.Actor(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload dto.CreateOrderRequest
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create", trace.WithAttributes(
		attribute.String("customer.id", payload.CustomerID.String()),
		attribute.Int("order.items", len(payload.Items)),
	))
	defer span.End()

	order, err := h.orders.CreateOrder(ctx, payload.CustomerID, payload.Input(), actor)
	if err != nil {
		return b.WithError(err).Build()
	}
	items, err := h.orders.ListItems(ctx, order.ID)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.OrderResponse{Order: order, Items: items}).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	return route.Query(c, target("getByID"), func(ctx context.Context, id uuid.UUID) (any, error) {
		order, err := h.orders.GetOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		items, err := h.orders.ListItems(ctx, id)
		if err != nil {
			return nil, err
		}
		return dto.OrderResponse{Order: order, Items: items}, nil
	})
}

func (h *Handler) update(c echo.Context) error {
	return route.Command(c, target("update"), http.StatusOK, func(ctx context.Context, id, actor uuid.UUID) (any, error) {
		var payload dto.UpdateOrderRequest
		if err := request.Bind(c, &payload); err != nil {
			return nil, err
		}
		return h.orders.UpdateOrder(ctx, id, payload.Input(), actor)
	})
}

func (h *Handler) approve(c echo.Context) error {
	return route.Command(c, target("approve"), http.StatusOK, func(ctx context.Context, id, actor uuid.UUID) (any, error) {
		return h.orders.ApproveOrder(ctx, id, actor)
	})
}

func (h *Handler) cancel(c echo.Context) error {
	return route.Command(c, target("cancel"), http.StatusOK, func(ctx context.Context, id, actor uuid.UUID) (any, error) {
		var payload dto.CancelOrderRequest
		if err := request.Bind(c, &payload); err != nil {
			return nil, err
		}
		return h.orders.CancelOrder(ctx, id, actor, payload.Reason)
	})
}

func (h *Handler) allocate(c echo.Context) error {
	return route.Command(c, target("allocate"), http.StatusOK, func(ctx context.Context, id, actor uuid.UUID) (any, error) {
		return h.allocation.Allocate(ctx, id, actor)
	})
}

func (h *Handler) releaseAllocations(c echo.Context) error {
	return route.Command(c, target("releaseAllocations"), http.StatusOK, func(ctx context.Context, id, actor uuid.UUID) (any, error) {
		return h.allocation.ReleaseAllocations(ctx, id, actor)
	})
}

func (h *Handler) generatePickingTasks(c echo.Context) error {
	return route.Command(c, target("generatePickingTasks"), http.StatusCreated, func(ctx context.Context, id, actor uuid.UUID) (any, error) {
		return h.picking.GeneratePickingTasks(ctx, id, actor)
	})
}

func (h *Handler) createPackingTask(c echo.Context) error {
	return route.Command(c, target("createPackingTask"), http.StatusCreated, func(ctx context.Context, id, actor uuid.UUID) (any, error) {
		return h.packing.CreatePackingTask(ctx, id, actor)
	})
}

func (h *Handler) createShipment(c echo.Context) error {
	return route.Command(c, target("createShipment"), http.StatusCreated, func(ctx context.Context, id, actor uuid.UUID) (any, error) {
		var payload dto.CreateShipmentRequest
		if err := request.Bind(c, &payload); err != nil {
			return nil, err
		}
		return h.shipping.CreateShipment(ctx, id, payload.Input(), actor)
	})
}

func (h *Handler) summary(c echo.Context) error {
	return route.Query(c, target("summary"), func(ctx context.Context, id uuid.UUID) (any, error) {
		return h.orders.GetOrderSummary(ctx, id)
	})
}

func (h *Handler) totals(c echo.Context) error {
	return route.Query(c, target("totals"), func(ctx context.Context, id uuid.UUID) (any, error) {
		return h.orders.CalculateTotals(ctx, id)
	})
}

func (h *Handler) allocationSummary(c echo.Context) error {
	return route.Query(c, target("allocationSummary"), func(ctx context.Context, id uuid.UUID) (any, error) {
		return h.allocation.GetAllocationSummary(ctx, id)
	})
}

func (h *Handler) allocationValidation(c echo.Context) error {
	return route.Query(c, target("allocationValidation"), func(ctx context.Context, id uuid.UUID) (any, error) {
		return h.allocation.ValidateAllocation(ctx, id)
	})
}

func (h *Handler) pickingSummary(c echo.Context) error {
	return route.Query(c, target("pickingSummary"), func(ctx context.Context, id uuid.UUID) (any, error) {
		return h.picking.GetPickingSummary(ctx, id)
	})
}

func (h *Handler) packingSummary(c echo.Context) error {
	return route.Query(c, target("packingSummary"), func(ctx context.Context, id uuid.UUID) (any, error) {
		return h.packing.GetPackingSummary(ctx, id)
	})
}

func (h *Handler) shippingSummary(c echo.Context) error {
	return route.Query(c, target("shippingSummary"), func(ctx context.Context, id uuid.UUID) (any, error) {
		return h.shipping.GetShipmentSummary(ctx, id)
	})
}

func (h *Handler) audit(c echo.Context) error {
	return route.Query(c, target("audit"), func(ctx context.Context, id uuid.UUID) (any, error) {
		logs, err := h.orders.History(ctx, id)
		if err != nil {
			return nil, err
		}
		return dto.AuditEntries(logs), nil
	})
}
