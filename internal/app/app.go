package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/fulfillment/internal/audit"
	"github.com/Additional-Code/fulfillment/internal/cache"
	"github.com/Additional-Code/fulfillment/internal/config"
	"github.com/Additional-Code/fulfillment/internal/database"
	"github.com/Additional-Code/fulfillment/internal/event"
	"github.com/Additional-Code/fulfillment/internal/inventory"
	"github.com/Additional-Code/fulfillment/internal/logger"
	"github.com/Additional-Code/fulfillment/internal/messaging"
	"github.com/Additional-Code/fulfillment/internal/observability"
	repositoryallocation "github.com/Additional-Code/fulfillment/internal/repository/allocation"
	repositoryorder "github.com/Additional-Code/fulfillment/internal/repository/order"
	repositorypacking "github.com/Additional-Code/fulfillment/internal/repository/packing"
	repositorypicking "github.com/Additional-Code/fulfillment/internal/repository/picking"
	repositoryshipment "github.com/Additional-Code/fulfillment/internal/repository/shipment"
	grpcserver "github.com/Additional-Code/fulfillment/internal/server/grpc"
	httpserver "github.com/Additional-Code/fulfillment/internal/server/http"
	serviceallocation "github.com/Additional-Code/fulfillment/internal/service/allocation"
	serviceorder "github.com/Additional-Code/fulfillment/internal/service/order"
	servicepacking "github.com/Additional-Code/fulfillment/internal/service/packing"
	servicepicking "github.com/Additional-Code/fulfillment/internal/service/picking"
	serviceshipping "github.com/Additional-Code/fulfillment/internal/service/shipping"
	transporthttp "github.com/Additional-Code/fulfillment/internal/transport/http"
	"github.com/Additional-Code/fulfillment/internal/worker"
	workerorder "github.com/Additional-Code/fulfillment/internal/worker/order"
	"github.com/Additional-Code/fulfillment/internal/worker/schedule"
)

// Infra provides configuration, storage and the ambient plumbing.
var Infra = fx.Options(
	config.Module,
	logger.Module,
	observability.Module,
	database.Module,
	cache.Module,
	messaging.Module,
	event.Module,
	audit.Module,
	inventory.Module,
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	Infra,
	repositoryorder.Module,
	repositoryallocation.Module,
	repositorypicking.Module,
	repositorypacking.Module,
	repositoryshipment.Module,
	serviceorder.Module,
	serviceallocation.Module,
	servicepicking.Module,
	servicepacking.Module,
	serviceshipping.Module,
)

// HTTP wires the HTTP transport and the gRPC health endpoint on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	transporthttp.Module,
	grpcserver.Module,
)

// Worker exposes background event processing and scheduled checks.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerorder.Module,
	schedule.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
