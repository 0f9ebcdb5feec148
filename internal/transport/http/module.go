package http

import (
	"go.uber.org/fx"

	ordertransport "github.com/Additional-Code/fulfillment/internal/transport/http/order"
	shipmenttransport "github.com/Additional-Code/fulfillment/internal/transport/http/shipment"
	tasktransport "github.com/Additional-Code/fulfillment/internal/transport/http/task"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	ordertransport.Module,
	tasktransport.Module,
	shipmenttransport.Module,
)
