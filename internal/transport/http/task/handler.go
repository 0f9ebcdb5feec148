package task

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"

	"github.com/Additional-Code/fulfillment/internal/dto"
	"github.com/Additional-Code/fulfillment/internal/presentation/http/request"
	packingsvc "github.com/Additional-Code/fulfillment/internal/service/packing"
	pickingsvc "github.com/Additional-Code/fulfillment/internal/service/picking"
	"github.com/Additional-Code/fulfillment/internal/transport/http/route"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/fulfillment/transport/http/task")

// Module registers the picking and packing task routes on the shared Echo router.
var Module = fx.Module("http_tasks",
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)

// Handler exposes warehouse task endpoints: picking tasks, packing tasks
// and the packages built during packing.
type Handler struct {
	picking *pickingsvc.Service
	packing *packingsvc.Service
}

// NewHandler constructs a task Handler.
func NewHandler(picking *pickingsvc.Service, packing *packingsvc.Service) *Handler {
	return &Handler{picking: picking, packing: packing}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	picks := e.Group("/picking-tasks")
	picks.POST("/:id/assign", h.assignPicker)
	picks.POST("/:id/picks", h.updatePicks)
	picks.POST("/:id/complete", h.completePicking)

	packs := e.Group("/packing-tasks")
	packs.POST("/:id/assign", h.assignPacker)
	packs.POST("/:id/packages", h.createPackage)
	packs.POST("/:id/complete", h.completePacking)

	pkgs := e.Group("/packages")
	pkgs.POST("/:id/items", h.addItem)
	pkgs.POST("/:id/finalize", h.finalizePackage)
}

var (
	pickingTask = func(name string) route.Target {
		return route.Target{Tracer: httpTracer, Span: "picking." + name, Attr: "picking_task.id"}
	}
	packingTask = func(name string) route.Target {
		return route.Target{Tracer: httpTracer, Span: "packing." + name, Attr: "packing_task.id"}
	}
	pkg = func(name string) route.Target {
		return route.Target{Tracer: httpTracer, Span: "packages." + name, Attr: "package.id"}
	}
)

func (h *Handler) assignPicker(c echo.Context) error {
	return route.Command(c, pickingTask("assign"), http.StatusOK, func(ctx context.Context, id, actor uuid.UUID) (any, error) {
		var payload dto.AssignRequest
		if err := request.Bind(c, &payload); err != nil {
			return nil, err
		}
		return h.picking.AssignPicker(ctx, id, payload.WorkerID, actor)
	})
}

func (h *Handler) updatePicks(c echo.Context) error {
	return route.Command(c, pickingTask("updatePicks"), http.StatusOK, func(ctx context.Context, id, actor uuid.UUID) (any, error) {
		var payload dto.PicksRequest
		if err := request.Bind(c, &payload); err != nil {
			return nil, err
		}
		return h.picking.UpdatePickedQuantity(ctx, id, payload.ItemUpdates(), actor)
	})
}

func (h *Handler) completePicking(c echo.Context) error {
	return route.Command(c, pickingTask("complete"), http.StatusOK, func(ctx context.Context, id, actor uuid.UUID) (any, error) {
		return h.picking.CompletePicking(ctx, id, actor)
	})
}

func (h *Handler) assignPacker(c echo.Context) error {
	return route.Command(c, packingTask("assign"), http.StatusOK, func(ctx context.Context, id, actor uuid.UUID) (any, error) {
		var payload dto.AssignRequest
		if err := request.Bind(c, &payload); err != nil {
			return nil, err
		}
		return h.packing.AssignPacker(ctx, id, payload.WorkerID, actor)
	})
}

func (h *Handler) createPackage(c echo.Context) error {
	return route.Command(c, packingTask("createPackage"), http.StatusCreated, func(ctx context.Context, id, actor uuid.UUID) (any, error) {
		var payload dto.PackageRequest
		if err := request.Bind(c, &payload); err != nil {
			return nil, err
		}
		return h.packing.CreatePackage(ctx, id, payload.Input(), actor)
	})
}

func (h *Handler) completePacking(c echo.Context) error {
	return route.Command(c, packingTask("complete"), http.StatusOK, func(ctx context.Context, id, actor uuid.UUID) (any, error) {
		return h.packing.CompletePacking(ctx, id, actor)
	})
}

func (h *Handler) addItem(c echo.Context) error {
	return route.Command(c, pkg("addItem"), http.StatusCreated, func(ctx context.Context, id, actor uuid.UUID) (any, error) {
		var payload dto.PackageItemRequest
		if err := request.Bind(c, &payload); err != nil {
			return nil, err
		}
		return h.packing.AddItemToPackage(ctx, id, payload.OrderItemID, payload.Quantity, payload.Position(), actor)
	})
}

func (h *Handler) finalizePackage(c echo.Context) error {
	return route.Command(c, pkg("finalize"), http.StatusOK, func(ctx context.Context, id, actor uuid.UUID) (any, error) {
		return h.packing.FinalizePackage(ctx, id, actor)
	})
}
