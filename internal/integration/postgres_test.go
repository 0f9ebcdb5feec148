//go:build integration

package integration_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"

	"github.com/Additional-Code/fulfillment/internal/database"
	"github.com/Additional-Code/fulfillment/internal/entity"
	"github.com/Additional-Code/fulfillment/internal/migration"
	"github.com/Additional-Code/fulfillment/internal/service/servicetest"
	shippingsvc "github.com/Additional-Code/fulfillment/internal/service/shipping"
	"github.com/Additional-Code/fulfillment/pkg/errorbank"
)

// PostgresSuite runs the migrations and the fulfillment workflow against a
// real PostgreSQL server.
type PostgresSuite struct {
	suite.Suite
	container *postgres.PostgresContainer
	db        *bun.DB
	migrator  *migration.Migrator
}

func TestPostgresSuite(t *testing.T) {
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("fulfillment"),
		postgres.WithUsername("fulfillment"),
		postgres.WithPassword("fulfillment"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	s.db = bun.NewDB(sqldb, pgdialect.New())

	s.migrator, err = migration.Open("postgres", s.db, zap.NewNop())
	s.Require().NoError(err)
	s.Require().NoError(s.migrator.Up(ctx))
}

func (s *PostgresSuite) TearDownSuite() {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.container != nil {
		s.Require().NoError(testcontainers.TerminateContainer(s.container))
	}
}

func (s *PostgresSuite) SetupTest() {
	_, err := s.db.ExecContext(context.Background(), `TRUNCATE TABLE
		audit_logs, shipment_items, shipments, package_items, packages, packing_tasks,
		picking_items, picking_tasks, allocations, order_items, orders`)
	s.Require().NoError(err)
}

func (s *PostgresSuite) env() *servicetest.Env {
	return servicetest.New(s.T(), servicetest.WithDB(&database.Connections{Writer: s.db, Reader: s.db}))
}

func (s *PostgresSuite) TestMigrationsRoundTrip() {
	ctx := context.Background()

	version, err := s.migrator.Version(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), version)

	s.Require().NoError(s.migrator.Up(ctx))

	s.Require().NoError(s.migrator.Down(ctx, 1, false))
	version, err = s.migrator.Version(ctx)
	s.Require().NoError(err)
	s.Zero(version)

	var tables int
	s.Require().NoError(s.db.NewRaw(
		"SELECT count(*) FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'orders'",
	).Scan(ctx, &tables))
	s.Zero(tables)

	s.Require().NoError(s.migrator.Up(ctx))
	version, err = s.migrator.Version(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), version)
}

func (s *PostgresSuite) TestConcurrentAllocationAllocatesOnce() {
	env := s.env()
	order := env.ApprovedOrder(s.T(), servicetest.Item("PROD-001", 5, "2.00"))

	const callers = 4
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Allocation.Allocate(context.Background(), order.ID, servicetest.Actor)
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		s.True(errorbank.HasCode(err, errorbank.CodeOrderAlreadyAllocated), err)
	}
	s.Equal(1, ok)

	summary, err := env.Allocation.GetAllocationSummary(context.Background(), order.ID)
	s.Require().NoError(err)
	s.Equal(1, summary.TotalAllocations)
	s.Equal(entity.OrderAllocated, env.Reload(s.T(), order.ID).Status)
}

func (s *PostgresSuite) TestFulfillmentLifecycle() {
	ctx := context.Background()
	env := s.env()
	order := env.PackedOrder(s.T(),
		servicetest.Item("PROD-001", 2, "10.00"),
		servicetest.Item("PROD-002", 3, "2.50"),
	)

	shipment, err := env.Shipping.CreateShipment(ctx, order.ID, servicetest.ShipmentInput(), servicetest.Actor)
	s.Require().NoError(err)
	s.Equal(entity.OrderShipped, env.Reload(s.T(), order.ID).Status)

	for _, to := range []entity.ShipmentStatus{
		entity.ShipmentLoaded,
		entity.ShipmentDispatched,
		entity.ShipmentInTransit,
		entity.ShipmentOutForDelivery,
	} {
		_, err = env.Shipping.UpdateShipmentStatus(ctx, shipment.ID, to, shippingsvc.StatusInput{}, servicetest.Actor)
		s.Require().NoError(err, to)
	}
	_, err = env.Shipping.UpdateShipmentStatus(ctx, shipment.ID, entity.ShipmentDelivered,
		shippingsvc.StatusInput{RecipientName: "J. Doe", DeliveredBy: "courier-7"}, servicetest.Actor)
	s.Require().NoError(err)

	s.Equal(entity.OrderDelivered, env.Reload(s.T(), order.ID).Status)
	for _, item := range env.Items(s.T(), order.ID) {
		s.True(item.QuantityShipped.Equal(item.QuantityOrdered), item.ProductSKU)
	}

	totals, err := env.Orders.CalculateTotals(ctx, order.ID)
	s.Require().NoError(err)
	s.True(totals.Subtotal.Equal(decimal.RequireFromString("27.50")), totals.Subtotal.String())

	history, err := env.Orders.History(ctx, order.ID)
	s.Require().NoError(err)
	s.NotEmpty(history)
	s.Equal(entity.EntityOrder, history[0].EntityType)
}
