// Package servicetest wires every fulfillment service over a throwaway SQLite
// database and a miniredis cache for tests.
package servicetest

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/fulfillment/internal/audit"
	"github.com/Additional-Code/fulfillment/internal/cache"
	"github.com/Additional-Code/fulfillment/internal/config"
	"github.com/Additional-Code/fulfillment/internal/database"
	"github.com/Additional-Code/fulfillment/internal/database/dbtest"
	"github.com/Additional-Code/fulfillment/internal/entity"
	"github.com/Additional-Code/fulfillment/internal/event"
	"github.com/Additional-Code/fulfillment/internal/inventory"
	allocationrepo "github.com/Additional-Code/fulfillment/internal/repository/allocation"
	orderrepo "github.com/Additional-Code/fulfillment/internal/repository/order"
	packingrepo "github.com/Additional-Code/fulfillment/internal/repository/packing"
	pickingrepo "github.com/Additional-Code/fulfillment/internal/repository/picking"
	shipmentrepo "github.com/Additional-Code/fulfillment/internal/repository/shipment"
	allocationsvc "github.com/Additional-Code/fulfillment/internal/service/allocation"
	ordersvc "github.com/Additional-Code/fulfillment/internal/service/order"
	packingsvc "github.com/Additional-Code/fulfillment/internal/service/packing"
	pickingsvc "github.com/Additional-Code/fulfillment/internal/service/picking"
	shippingsvc "github.com/Additional-Code/fulfillment/internal/service/shipping"
)

// Actor is the user every test mutation is attributed to.
var Actor = uuid.MustParse("99999999-9999-9999-9999-999999999999")

// Env holds the wired services and their backing stores.
type Env struct {
	DB        *database.Connections
	Redis     *miniredis.Miniredis
	Cache     cache.Store
	Inventory inventory.Adapter
	Audit     *audit.Recorder
	Config    config.Config

	OrderRepo      *orderrepo.Repository
	AllocationRepo *allocationrepo.Repository
	PickingRepo    *pickingrepo.Repository
	PackingRepo    *packingrepo.Repository
	ShipmentRepo   *shipmentrepo.Repository

	Orders     *ordersvc.Service
	Allocation *allocationsvc.Service
	Picking    *pickingsvc.Service
	Packing    *packingsvc.Service
	Shipping   *shippingsvc.Service
}

// Option customises New.
type Option func(*options)

type options struct {
	db        *database.Connections
	adapter   inventory.Adapter
	publisher *event.Publisher
	zones     pickingsvc.ZoneResolver
}

// WithInventory replaces the default in-memory inventory adapter.
func WithInventory(a inventory.Adapter) Option {
	return func(o *options) { o.adapter = a }
}

// WithDB runs the services on conns instead of a fresh SQLite database.
func WithDB(conns *database.Connections) Option {
	return func(o *options) { o.db = conns }
}

// WithPublisher routes committed status changes through p.
func WithPublisher(p *event.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithZones overrides the picking zone resolver.
func WithZones(z pickingsvc.ZoneResolver) Option {
	return func(o *options) { o.zones = z }
}

// New builds an Env. Everything is released when t finishes.
func New(t testing.TB, opts ...Option) *Env {
	t.Helper()

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.adapter == nil {
		o.adapter = inventory.NewMockAdapter()
	}
	if o.db == nil {
		o.db = dbtest.NewSQLite(t)
	}

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := config.Config{
		Cache: config.Cache{Enabled: true, Driver: "redis", DefaultTTL: 5 * time.Minute},
		Fulfillment: config.Fulfillment{
			ZoneSeparator:    "-",
			ManifestCacheTTL: time.Hour,
		},
	}

	env := &Env{
		DB:             o.db,
		Redis:          srv,
		Cache:          cache.NewRedisStore(client, cfg.Cache.DefaultTTL),
		Inventory:      o.adapter,
		Audit:          audit.NewRecorder(),
		Config:         cfg,
		OrderRepo:      orderrepo.NewRepository(),
		AllocationRepo: allocationrepo.NewRepository(),
		PickingRepo:    pickingrepo.NewRepository(),
		PackingRepo:    packingrepo.NewRepository(),
		ShipmentRepo:   shipmentrepo.NewRepository(),
	}

	env.Orders = ordersvc.NewService(ordersvc.Params{
		DB:          env.DB,
		Repository:  env.OrderRepo,
		Allocations: env.AllocationRepo,
		Picking:     env.PickingRepo,
		Packing:     env.PackingRepo,
		Shipments:   env.ShipmentRepo,
		Audit:       env.Audit,
		Events:      o.publisher,
		Cache:       env.Cache,
		Config:      cfg,
	})
	env.Allocation = allocationsvc.NewService(allocationsvc.Params{
		DB:          env.DB,
		Orders:      env.Orders,
		Items:       env.OrderRepo,
		Allocations: env.AllocationRepo,
		Inventory:   env.Inventory,
		Audit:       env.Audit,
	})
	env.Picking = pickingsvc.NewService(pickingsvc.Params{
		DB:          env.DB,
		Orders:      env.Orders,
		Items:       env.OrderRepo,
		Allocations: env.AllocationRepo,
		Tasks:       env.PickingRepo,
		Audit:       env.Audit,
		Config:      cfg,
		Events:      o.publisher,
		Zones:       o.zones,
	})
	env.Packing = packingsvc.NewService(packingsvc.Params{
		DB:         env.DB,
		Orders:     env.Orders,
		Items:      env.OrderRepo,
		Picking:    env.PickingRepo,
		Repository: env.PackingRepo,
		Audit:      env.Audit,
		Events:     o.publisher,
	})
	env.Shipping = shippingsvc.NewService(shippingsvc.Params{
		DB:          env.DB,
		Orders:      env.Orders,
		Items:       env.OrderRepo,
		Allocations: env.AllocationRepo,
		Packing:     env.PackingRepo,
		Repository:  env.ShipmentRepo,
		Audit:       env.Audit,
		Config:      cfg,
		Events:      o.publisher,
		Cache:       env.Cache,
	})
	return env
}

// Item is a shorthand order line with a unit weight of 0.5.
func Item(sku string, qty int64, price string) ordersvc.ItemInput {
	return ordersvc.ItemInput{
		ProductSKU:  sku,
		ProductName: "Product " + sku,
		Quantity:    decimal.NewFromInt(qty),
		UnitPrice:   decimal.RequireFromString(price),
		UnitWeight:  decimal.NewNullDecimal(decimal.RequireFromString("0.5")),
	}
}

// CreateOrder creates an order for the main warehouse.
func (e *Env) CreateOrder(t testing.TB, items ...ordersvc.ItemInput) *entity.Order {
	t.Helper()
	order, err := e.Orders.CreateOrder(t.Context(), uuid.New(), ordersvc.CreateOrderInput{
		WarehouseID: inventory.WarehouseMain,
		Items:       items,
	}, Actor)
	require.NoError(t, err)
	return order
}

// ApprovedOrder creates and approves an order.
func (e *Env) ApprovedOrder(t testing.TB, items ...ordersvc.ItemInput) *entity.Order {
	t.Helper()
	order := e.CreateOrder(t, items...)
	order, err := e.Orders.ApproveOrder(t.Context(), order.ID, Actor)
	require.NoError(t, err)
	return order
}

// PickedOrder drives an order through allocation and complete picking.
func (e *Env) PickedOrder(t testing.TB, items ...ordersvc.ItemInput) *entity.Order {
	t.Helper()
	ctx := t.Context()
	order := e.ApprovedOrder(t, items...)

	_, err := e.Allocation.Allocate(ctx, order.ID, Actor)
	require.NoError(t, err)
	generated, err := e.Picking.GeneratePickingTasks(ctx, order.ID, Actor)
	require.NoError(t, err)

	for _, detail := range generated.TaskDetails {
		rows, err := e.PickingRepo.Items(ctx, e.DB.Reader, detail.TaskID)
		require.NoError(t, err)
		updates := make([]pickingsvc.ItemUpdate, len(rows))
		for i, r := range rows {
			updates[i] = pickingsvc.ItemUpdate{OrderItemID: r.OrderItemID, QuantityPicked: r.QuantityToPick}
		}
		res, err := e.Picking.UpdatePickedQuantity(ctx, detail.TaskID, updates, Actor)
		require.NoError(t, err)
		require.True(t, res.Success)
		_, err = e.Picking.CompletePicking(ctx, detail.TaskID, Actor)
		require.NoError(t, err)
	}
	return e.Reload(t, order.ID)
}

// PackedOrder packs every picked item into one sealed box and completes packing.
func (e *Env) PackedOrder(t testing.TB, items ...ordersvc.ItemInput) *entity.Order {
	t.Helper()
	ctx := t.Context()
	order := e.PickedOrder(t, items...)

	task, err := e.Packing.CreatePackingTask(ctx, order.ID, Actor)
	require.NoError(t, err)
	pkg, err := e.Packing.CreatePackage(ctx, task.ID, packingsvc.PackageInput{
		PackageType: entity.PackageBox,
		EmptyWeight: decimal.RequireFromString("0.25"),
	}, Actor)
	require.NoError(t, err)

	lines, err := e.OrderRepo.Items(ctx, e.DB.Reader, order.ID)
	require.NoError(t, err)
	for _, l := range lines {
		_, err := e.Packing.AddItemToPackage(ctx, pkg.ID, l.ID, l.QuantityPicked, packingsvc.Position{}, Actor)
		require.NoError(t, err)
	}
	_, err = e.Packing.FinalizePackage(ctx, pkg.ID, Actor)
	require.NoError(t, err)
	_, err = e.Packing.CompletePacking(ctx, task.ID, Actor)
	require.NoError(t, err)
	return e.Reload(t, order.ID)
}

// Reload reads an order straight from the database.
func (e *Env) Reload(t testing.TB, id uuid.UUID) *entity.Order {
	t.Helper()
	order, err := e.Orders.Load(t.Context(), e.DB.Reader, id, false)
	require.NoError(t, err)
	return order
}

// Items reads the items of an order straight from the database.
func (e *Env) Items(t testing.TB, orderID uuid.UUID) []entity.OrderItem {
	t.Helper()
	items, err := e.OrderRepo.Items(t.Context(), e.DB.Reader, orderID)
	require.NoError(t, err)
	return items
}

// ShipmentInput is a ground shipment between two fixed addresses.
func ShipmentInput() shippingsvc.ShipmentInput {
	return shippingsvc.ShipmentInput{
		Carrier:         "ACME Freight",
		ShippingCost:    decimal.RequireFromString("12.50"),
		ShipFromAddress: map[string]any{"city": "Jakarta", "line1": "Warehouse 1"},
		ShipToAddress:   map[string]any{"city": "Bandung", "line1": "Jl. Merdeka 10"},
	}
}
