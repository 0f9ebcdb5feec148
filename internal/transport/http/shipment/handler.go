package shipment

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"

	"github.com/Additional-Code/fulfillment/internal/dto"
	"github.com/Additional-Code/fulfillment/internal/presentation/http/request"
	shippingsvc "github.com/Additional-Code/fulfillment/internal/service/shipping"
	"github.com/Additional-Code/fulfillment/internal/transport/http/route"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/fulfillment/transport/http/shipment")

// Module registers the shipment routes on the shared Echo router.
var Module = fx.Module("http_shipments",
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)

// Handler exposes shipment endpoints over HTTP.
type Handler struct {
	svc *shippingsvc.Service
}

// NewHandler constructs a shipment Handler.
func NewHandler(svc *shippingsvc.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/shipments")
	g.GET("/:id", h.getByID)
	g.POST("/:id/tracking", h.assignTracking)
	g.POST("/:id/status", h.updateStatus)
	g.POST("/:id/manifest", h.generateManifest)
	g.GET("/:id/manifest", h.manifest)
}

func target(name string) route.Target {
	return route.Target{Tracer: httpTracer, Span: "shipments." + name, Attr: "shipment.id"}
}

func (h *Handler) getByID(c echo.Context) error {
	return route.Query(c, target("getByID"), func(ctx context.Context, id uuid.UUID) (any, error) {
		return h.svc.GetShipment(ctx, id)
	})
}

func (h *Handler) assignTracking(c echo.Context) error {
	return route.Command(c, target("assignTracking"), http.StatusOK, func(ctx context.Context, id, actor uuid.UUID) (any, error) {
		var payload dto.TrackingRequest
		if err := request.Bind(c, &payload); err != nil {
			return nil, err
		}
		return h.svc.AssignTracking(ctx, id, payload.TrackingNumber, actor)
	})
}

func (h *Handler) updateStatus(c echo.Context) error {
	return route.Command(c, target("updateStatus"), http.StatusOK, func(ctx context.Context, id, actor uuid.UUID) (any, error) {
		var payload dto.ShipmentStatusRequest
		if err := request.Bind(c, &payload); err != nil {
			return nil, err
		}
		return h.svc.UpdateShipmentStatus(ctx, id, payload.Status, payload.Input(), actor)
	})
}

func (h *Handler) generateManifest(c echo.Context) error {
	return route.Command(c, target("generateManifest"), http.StatusCreated, func(ctx context.Context, id, actor uuid.UUID) (any, error) {
		return h.svc.GenerateManifest(ctx, id, actor)
	})
}

// manifest serves the cached manifest, falling back to the stored copy.
func (h *Handler) manifest(c echo.Context) error {
	return route.Query(c, target("manifest"), func(ctx context.Context, id uuid.UUID) (any, error) {
		return h.svc.GetManifest(ctx, id)
	})
}
