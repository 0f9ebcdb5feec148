package allocation_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/fulfillment/internal/entity"
	"github.com/Additional-Code/fulfillment/internal/inventory"
	allocationsvc "github.com/Additional-Code/fulfillment/internal/service/allocation"
	"github.com/Additional-Code/fulfillment/internal/service/servicetest"
	"github.com/Additional-Code/fulfillment/pkg/errorbank"
)

// flakyInventory reserves through the in-memory adapter but lets tests script Release.
type flakyInventory struct {
	mock.Mock
	*inventory.MockAdapter
}

func (f *flakyInventory) Release(ctx context.Context, reservationID string) (bool, error) {
	args := f.Called(ctx, reservationID)
	return args.Bool(0), args.Error(1)
}

// scriptedInventory offers fixed locations and can over-report reserved quantities.
type scriptedInventory struct {
	locations []inventory.Location
	surplus   decimal.Decimal

	mu       sync.Mutex
	seq      int
	released []string
}

func (s *scriptedInventory) CheckAvailability(context.Context, string, decimal.Decimal, uuid.UUID) ([]inventory.Location, error) {
	return s.locations, nil
}

func (s *scriptedInventory) Reserve(_ context.Context, sku string, quantity decimal.Decimal, location, _ string) (inventory.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return inventory.Reservation{
		ReservationID:    fmt.Sprintf("RES-%s-%s-%d", sku, location, s.seq),
		ReservedQuantity: quantity.Add(s.surplus),
	}, nil
}

func (s *scriptedInventory) Release(_ context.Context, reservationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, reservationID)
	return true, nil
}

func TestAllocate(t *testing.T) {
	t.Run("should reserve every item and advance the order", func(t *testing.T) {
		env := servicetest.New(t)
		order := env.ApprovedOrder(t,
			servicetest.Item("PROD-001", 5, "10.00"),
			servicetest.Item("PROD-002", 10, "2.50"),
		)

		result, err := env.Allocation.Allocate(t.Context(), order.ID, servicetest.Actor)
		require.NoError(t, err)

		assert.True(t, result.Success)
		assert.Equal(t, 2, result.AllocationsCreated)
		require.Len(t, result.AllocationDetails, 2)
		assert.Equal(t, "PROD-001", result.AllocationDetails[0].ItemSKU)
		assert.Equal(t, "A-01-01", result.AllocationDetails[0].Location)
		assert.Equal(t, "B-02-01", result.AllocationDetails[1].Location)
		assert.Contains(t, result.AllocationDetails[0].ReservationID, allocationsvc.Reference(order))

		assert.Equal(t, entity.OrderAllocated, env.Reload(t, order.ID).Status)
		for _, it := range env.Items(t, order.ID) {
			assert.True(t, it.IsFullyAllocated(), it.ProductSKU)
		}
		assert.Equal(t, 2, env.Inventory.(*inventory.MockAdapter).ActiveReservations())
	})

	t.Run("should roll back and release holds when an item is short", func(t *testing.T) {
		env := servicetest.New(t)
		order := env.ApprovedOrder(t,
			servicetest.Item("PROD-001", 5, "10.00"),
			servicetest.Item("PROD-003", 30, "1.00"),
		)

		_, err := env.Allocation.Allocate(t.Context(), order.ID, servicetest.Actor)
		require.Error(t, err)
		assert.True(t, errorbank.IsKind(err, errorbank.KindAllocation))
		assert.True(t, errorbank.HasCode(err, errorbank.CodeAllocationFailed))

		failures, ok := errorbank.From(err).Details()["allocation_failures"].([]allocationsvc.Failure)
		require.True(t, ok)
		require.Len(t, failures, 1)
		assert.Equal(t, "PROD-003", failures[0].ProductSKU)

		assert.Equal(t, entity.OrderApproved, env.Reload(t, order.ID).Status)
		for _, it := range env.Items(t, order.ID) {
			assert.True(t, it.QuantityAllocated.IsZero(), it.ProductSKU)
		}
		count, err := env.AllocationRepo.CountByOrder(t.Context(), env.DB.Reader, order.ID)
		require.NoError(t, err)
		assert.Zero(t, count)
		assert.Zero(t, env.Inventory.(*inventory.MockAdapter).ActiveReservations())
	})

	t.Run("should split an item across locations first-fit", func(t *testing.T) {
		adapter := &scriptedInventory{locations: []inventory.Location{
			{Location: "A-01-01", AvailableQuantity: decimal.NewFromInt(3)},
			{Location: "B-02-01", AvailableQuantity: decimal.NewFromInt(10)},
			{Location: "C-03-01", AvailableQuantity: decimal.NewFromInt(10)},
		}}
		env := servicetest.New(t, servicetest.WithInventory(adapter))
		order := env.ApprovedOrder(t, servicetest.Item("PROD-001", 5, "10.00"))

		result, err := env.Allocation.Allocate(t.Context(), order.ID, servicetest.Actor)
		require.NoError(t, err)

		require.Len(t, result.AllocationDetails, 2)
		assert.Equal(t, "A-01-01", result.AllocationDetails[0].Location)
		assert.True(t, decimal.NewFromInt(3).Equal(result.AllocationDetails[0].Quantity))
		assert.Equal(t, "B-02-01", result.AllocationDetails[1].Location)
		assert.True(t, decimal.NewFromInt(2).Equal(result.AllocationDetails[1].Quantity))

		item := env.Items(t, order.ID)[0]
		assert.True(t, item.QuantityAllocated.Equal(item.QuantityOrdered), item.QuantityAllocated.String())
		rows, err := env.AllocationRepo.ListByOrder(t.Context(), env.DB.Reader, order.ID, entity.AllocationReserved)
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("should reject reservations larger than requested", func(t *testing.T) {
		adapter := &scriptedInventory{
			locations: []inventory.Location{{Location: "A-01-01", AvailableQuantity: decimal.NewFromInt(100)}},
			surplus:   decimal.NewFromInt(5),
		}
		env := servicetest.New(t, servicetest.WithInventory(adapter))
		order := env.ApprovedOrder(t, servicetest.Item("PROD-001", 5, "10.00"))

		_, err := env.Allocation.Allocate(t.Context(), order.ID, servicetest.Actor)
		require.Error(t, err)
		assert.True(t, errorbank.IsKind(err, errorbank.KindAllocation))

		failures, ok := errorbank.From(err).Details()["allocation_failures"].([]allocationsvc.Failure)
		require.True(t, ok)
		require.Len(t, failures, 1)
		assert.Contains(t, failures[0].Error, "requested 5")

		assert.Equal(t, entity.OrderApproved, env.Reload(t, order.ID).Status)
		assert.True(t, env.Items(t, order.ID)[0].QuantityAllocated.IsZero())
		count, err := env.AllocationRepo.CountByOrder(t.Context(), env.DB.Reader, order.ID)
		require.NoError(t, err)
		assert.Zero(t, count)
		assert.Equal(t, []string{"RES-PROD-001-A-01-01-1"}, adapter.released)
	})

	t.Run("should refuse an order that is not approved", func(t *testing.T) {
		env := servicetest.New(t)
		order := env.CreateOrder(t, servicetest.Item("PROD-001", 1, "1.00"))

		_, err := env.Allocation.Allocate(t.Context(), order.ID, servicetest.Actor)
		assert.True(t, errorbank.IsKind(err, errorbank.KindInvalidStatus))
	})

	t.Run("should refuse to allocate twice", func(t *testing.T) {
		env := servicetest.New(t)
		order := env.ApprovedOrder(t, servicetest.Item("PROD-001", 1, "1.00"))
		_, err := env.Allocation.Allocate(t.Context(), order.ID, servicetest.Actor)
		require.NoError(t, err)

		_, err = env.Allocation.Allocate(t.Context(), order.ID, servicetest.Actor)
		assert.True(t, errorbank.HasCode(err, errorbank.CodeOrderAlreadyAllocated))
	})
}

func TestReleaseAllocations(t *testing.T) {
	t.Run("should release reservations once", func(t *testing.T) {
		env := servicetest.New(t)
		order := env.ApprovedOrder(t, servicetest.Item("PROD-001", 5, "10.00"))
		_, err := env.Allocation.Allocate(t.Context(), order.ID, servicetest.Actor)
		require.NoError(t, err)

		first, err := env.Allocation.ReleaseAllocations(t.Context(), order.ID, servicetest.Actor)
		require.NoError(t, err)
		assert.True(t, first.Success)
		assert.Equal(t, 1, first.ReleasedCount)
		assert.Empty(t, first.ReleaseFailures)
		assert.True(t, env.Items(t, order.ID)[0].QuantityAllocated.IsZero())

		reserved, err := env.AllocationRepo.ListByOrder(t.Context(), env.DB.Reader, order.ID, entity.AllocationReserved)
		require.NoError(t, err)
		assert.Empty(t, reserved)
		releasedRows, err := env.AllocationRepo.ListByOrder(t.Context(), env.DB.Reader, order.ID, entity.AllocationReleased)
		require.NoError(t, err)
		require.Len(t, releasedRows, 1)
		assert.False(t, releasedRows[0].ReleasedAt.IsZero())
		assert.Zero(t, env.Inventory.(*inventory.MockAdapter).ActiveReservations())

		second, err := env.Allocation.ReleaseAllocations(t.Context(), order.ID, servicetest.Actor)
		require.NoError(t, err)
		assert.True(t, second.Success)
		assert.Zero(t, second.ReleasedCount)
	})

	t.Run("should report adapter failures without aborting", func(t *testing.T) {
		adapter := &flakyInventory{MockAdapter: inventory.NewMockAdapter()}
		env := servicetest.New(t, servicetest.WithInventory(adapter))
		order := env.ApprovedOrder(t,
			servicetest.Item("PROD-001", 5, "10.00"),
			servicetest.Item("PROD-002", 3, "2.50"),
		)
		result, err := env.Allocation.Allocate(t.Context(), order.ID, servicetest.Actor)
		require.NoError(t, err)

		failing := result.AllocationDetails[0].ReservationID
		adapter.On("Release", mock.Anything, failing).Return(false, errors.New("inventory service unavailable")).Once()
		adapter.On("Release", mock.Anything, mock.Anything).Return(true, nil)

		released, err := env.Allocation.ReleaseAllocations(t.Context(), order.ID, servicetest.Actor)
		require.NoError(t, err)
		assert.Equal(t, 1, released.ReleasedCount)
		require.Len(t, released.ReleaseFailures, 1)
		assert.Equal(t, failing, released.ReleaseFailures[0].ReservationID)
		adapter.AssertExpectations(t)

		active, err := env.AllocationRepo.ListByOrder(t.Context(), env.DB.Reader, order.ID, entity.AllocationReserved)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, failing, active[0].ReservationID)
	})

	t.Run("should refuse once picking has recorded units", func(t *testing.T) {
		env := servicetest.New(t)
		order := env.PickedOrder(t, servicetest.Item("PROD-001", 5, "10.00"))

		_, err := env.Allocation.ReleaseAllocations(t.Context(), order.ID, servicetest.Actor)
		assert.True(t, errorbank.HasCode(err, errorbank.CodeAllocationNotReleasable))

		assert.Equal(t, entity.OrderPicking, env.Reload(t, order.ID).Status)
		item := env.Items(t, order.ID)[0]
		assert.True(t, item.QuantityAllocated.Equal(decimal.NewFromInt(5)))
		assert.True(t, item.QuantityPicked.LessThanOrEqual(item.QuantityAllocated))
	})

	t.Run("should keep picked units allocated when a cancelled order releases", func(t *testing.T) {
		env := servicetest.New(t)
		order := env.PickedOrder(t, servicetest.Item("PROD-001", 5, "10.00"))
		_, err := env.Orders.CancelOrder(t.Context(), order.ID, servicetest.Actor, "customer request")
		require.NoError(t, err)

		result, err := env.Allocation.ReleaseAllocations(t.Context(), order.ID, servicetest.Actor)
		require.NoError(t, err)
		assert.Equal(t, 1, result.ReleasedCount)

		item := env.Items(t, order.ID)[0]
		assert.True(t, item.QuantityPicked.Equal(decimal.NewFromInt(5)))
		assert.True(t, item.QuantityPicked.LessThanOrEqual(item.QuantityAllocated), item.QuantityAllocated.String())
	})

	t.Run("should refuse once the order has shipped", func(t *testing.T) {
		env := servicetest.New(t)
		order := env.PackedOrder(t, servicetest.Item("PROD-001", 2, "10.00"))
		_, err := env.Shipping.CreateShipment(t.Context(), order.ID, servicetest.ShipmentInput(), servicetest.Actor)
		require.NoError(t, err)

		_, err = env.Allocation.ReleaseAllocations(t.Context(), order.ID, servicetest.Actor)
		assert.True(t, errorbank.HasCode(err, errorbank.CodeAllocationNotReleasable))
	})
}

func TestAllocationQueries(t *testing.T) {
	env := servicetest.New(t)
	order := env.ApprovedOrder(t,
		servicetest.Item("PROD-001", 5, "10.00"),
		servicetest.Item("PROD-002", 10, "2.50"),
	)

	t.Run("should report shortages before allocation", func(t *testing.T) {
		v, err := env.Allocation.ValidateAllocation(t.Context(), order.ID)
		require.NoError(t, err)
		assert.False(t, v.IsValid)
		require.Len(t, v.Issues, 2)
		assert.True(t, decimal.NewFromInt(5).Equal(v.Issues[0].Shortage))
	})

	_, err := env.Allocation.Allocate(t.Context(), order.ID, servicetest.Actor)
	require.NoError(t, err)

	t.Run("should be valid after allocation", func(t *testing.T) {
		v, err := env.Allocation.ValidateAllocation(t.Context(), order.ID)
		require.NoError(t, err)
		assert.True(t, v.IsValid)
		assert.Empty(t, v.Issues)
	})

	t.Run("should group reservations by location and sku", func(t *testing.T) {
		summary, err := env.Allocation.GetAllocationSummary(t.Context(), order.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, summary.TotalAllocations)
		assert.True(t, decimal.NewFromInt(5).Equal(summary.ByLocation["A-01-01"].TotalQuantity))
		assert.Equal(t, []string{"B-02-01"}, summary.ByItem["PROD-002"].Locations)
	})

	t.Run("should report a missing order", func(t *testing.T) {
		_, err := env.Allocation.ValidateAllocation(t.Context(), uuid.New())
		assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))
	})
}
