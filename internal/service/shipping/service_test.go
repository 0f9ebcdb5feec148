package shipping_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/fulfillment/internal/audit"
	"github.com/Additional-Code/fulfillment/internal/entity"
	"github.com/Additional-Code/fulfillment/internal/service/servicetest"
	shippingsvc "github.com/Additional-Code/fulfillment/internal/service/shipping"
	"github.com/Additional-Code/fulfillment/pkg/errorbank"
)

func shippedOrder(t *testing.T, env *servicetest.Env) (*entity.Order, *entity.Shipment) {
	t.Helper()
	order := env.PackedOrder(t,
		servicetest.Item("PROD-001", 2, "10.00"),
		servicetest.Item("PROD-002", 3, "2.50"),
	)
	shipment, err := env.Shipping.CreateShipment(t.Context(), order.ID, servicetest.ShipmentInput(), servicetest.Actor)
	require.NoError(t, err)
	return order, shipment
}

func advance(t *testing.T, env *servicetest.Env, id uuid.UUID, path ...entity.ShipmentStatus) {
	t.Helper()
	for _, to := range path {
		_, err := env.Shipping.UpdateShipmentStatus(t.Context(), id, to, shippingsvc.StatusInput{}, servicetest.Actor)
		require.NoError(t, err, to)
	}
}

func TestCreateShipment(t *testing.T) {
	t.Run("should ship every sealed package", func(t *testing.T) {
		env := servicetest.New(t)
		order, shipment := shippedOrder(t, env)

		assert.Equal(t, entity.ShipmentCreated, shipment.Status)
		assert.Regexp(t, `^SHP-\d{14}-[0-9A-F]{6}$`, shipment.ShipmentNumber)
		assert.True(t, decimal.RequireFromString("2.75").Equal(shipment.TotalWeight), shipment.TotalWeight.String())
		assert.False(t, shipment.TotalVolume.Valid)
		assert.True(t, decimal.RequireFromString("12.50").Equal(shipment.ShippingCost))

		reloaded := env.Reload(t, order.ID)
		assert.Equal(t, entity.OrderShipped, reloaded.Status)
		for _, it := range env.Items(t, order.ID) {
			assert.True(t, it.QuantityShipped.Equal(it.QuantityOrdered), it.ProductSKU)
		}

		reserved, err := env.AllocationRepo.ListByOrder(t.Context(), env.DB.Reader, order.ID, entity.AllocationReserved)
		require.NoError(t, err)
		assert.Empty(t, reserved)
		consumed, err := env.AllocationRepo.ListByOrder(t.Context(), env.DB.Reader, order.ID, entity.AllocationConsumed)
		require.NoError(t, err)
		assert.Len(t, consumed, 2)

		rows, err := env.ShipmentRepo.Items(t.Context(), env.DB.Reader, shipment.ID)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, 1, rows[0].SequenceNumber)

		history, err := env.Orders.History(t.Context(), order.ID)
		require.NoError(t, err)
		last := history[len(history)-1]
		assert.Equal(t, audit.ActionStatusChanged, last.Action)
		assert.Contains(t, last.Notes, shipment.ShipmentNumber)
	})

	t.Run("should refuse an order that is not packing", func(t *testing.T) {
		env := servicetest.New(t)
		order := env.PickedOrder(t, servicetest.Item("PROD-001", 1, "1.00"))

		_, err := env.Shipping.CreateShipment(t.Context(), order.ID, servicetest.ShipmentInput(), servicetest.Actor)
		assert.True(t, errorbank.HasCode(err, errorbank.CodeInvalidOrderStatus))
	})

	t.Run("should refuse while packing is open", func(t *testing.T) {
		env := servicetest.New(t)
		order := env.PickedOrder(t, servicetest.Item("PROD-001", 1, "1.00"))
		_, err := env.Packing.CreatePackingTask(t.Context(), order.ID, servicetest.Actor)
		require.NoError(t, err)

		_, err = env.Shipping.CreateShipment(t.Context(), order.ID, servicetest.ShipmentInput(), servicetest.Actor)
		assert.True(t, errorbank.HasCode(err, errorbank.CodeIncompletePacking))
		assert.Equal(t, entity.OrderPacking, env.Reload(t, order.ID).Status)
	})

	cases := []struct {
		name   string
		mutate func(*shippingsvc.ShipmentInput)
	}{
		{"should require a carrier", func(in *shippingsvc.ShipmentInput) { in.Carrier = "  " }},
		{"should reject a negative cost", func(in *shippingsvc.ShipmentInput) { in.ShippingCost = decimal.NewFromInt(-1) }},
		{"should reject a negative insurance", func(in *shippingsvc.ShipmentInput) { in.InsuranceCost = decimal.NewFromInt(-1) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := servicetest.New(t)
			in := servicetest.ShipmentInput()
			tc.mutate(&in)
			_, err := env.Shipping.CreateShipment(t.Context(), uuid.New(), in, servicetest.Actor)
			assert.True(t, errorbank.IsKind(err, errorbank.KindValidation))
		})
	}
}

func TestAssignTracking(t *testing.T) {
	env := servicetest.New(t)
	_, shipment := shippedOrder(t, env)

	t.Run("should require a tracking number", func(t *testing.T) {
		_, err := env.Shipping.AssignTracking(t.Context(), shipment.ID, " ", servicetest.Actor)
		assert.True(t, errorbank.IsKind(err, errorbank.KindValidation))
	})

	t.Run("should assign once", func(t *testing.T) {
		got, err := env.Shipping.AssignTracking(t.Context(), shipment.ID, "TRK123", servicetest.Actor)
		require.NoError(t, err)
		assert.Equal(t, "TRK123", got.TrackingNumber)

		_, err = env.Shipping.AssignTracking(t.Context(), shipment.ID, "TRK456", servicetest.Actor)
		assert.True(t, errorbank.HasCode(err, errorbank.CodeTrackingAlreadyAssigned))
	})

	t.Run("should report a missing shipment", func(t *testing.T) {
		_, err := env.Shipping.AssignTracking(t.Context(), uuid.New(), "TRK", servicetest.Actor)
		assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))
	})
}

func TestUpdateShipmentStatus(t *testing.T) {
	t.Run("should deliver the order with the shipment", func(t *testing.T) {
		env := servicetest.New(t)
		order, shipment := shippedOrder(t, env)

		advance(t, env, shipment.ID, entity.ShipmentLoaded)
		dispatched, err := env.Shipping.UpdateShipmentStatus(t.Context(), shipment.ID, entity.ShipmentDispatched,
			shippingsvc.StatusInput{TrackingNumber: "TRK-9"}, servicetest.Actor)
		require.NoError(t, err)
		assert.Equal(t, "TRK-9", dispatched.TrackingNumber)
		assert.False(t, dispatched.DispatchedAt.IsZero())
		assert.Equal(t, servicetest.Actor, dispatched.DispatcherID.UUID)

		advance(t, env, shipment.ID, entity.ShipmentInTransit, entity.ShipmentOutForDelivery)
		delivered, err := env.Shipping.UpdateShipmentStatus(t.Context(), shipment.ID, entity.ShipmentDelivered,
			shippingsvc.StatusInput{RecipientName: "Budi", DeliveredBy: "courier-7"}, servicetest.Actor)
		require.NoError(t, err)
		assert.True(t, delivered.IsDelivered())
		assert.Equal(t, "Budi", delivered.RecipientName)
		assert.False(t, delivered.ActualDeliveryDate.IsZero())

		assert.Equal(t, entity.OrderDelivered, env.Reload(t, order.ID).Status)

		history, err := env.Audit.History(t.Context(), env.DB.Reader, entity.EntityShipment, shipment.ID)
		require.NoError(t, err)
		assert.Len(t, history, 5)
	})

	t.Run("should require a recipient on delivery", func(t *testing.T) {
		env := servicetest.New(t)
		_, shipment := shippedOrder(t, env)
		advance(t, env, shipment.ID, entity.ShipmentLoaded, entity.ShipmentDispatched, entity.ShipmentInTransit, entity.ShipmentOutForDelivery)

		_, err := env.Shipping.UpdateShipmentStatus(t.Context(), shipment.ID, entity.ShipmentDelivered, shippingsvc.StatusInput{}, servicetest.Actor)
		assert.True(t, errorbank.IsKind(err, errorbank.KindValidation))
	})

	t.Run("should reject skipped steps", func(t *testing.T) {
		env := servicetest.New(t)
		_, shipment := shippedOrder(t, env)

		_, err := env.Shipping.UpdateShipmentStatus(t.Context(), shipment.ID, entity.ShipmentInTransit, shippingsvc.StatusInput{}, servicetest.Actor)
		assert.True(t, errorbank.IsKind(err, errorbank.KindInvalidTransition))
	})

	t.Run("should treat the current status as a no-op", func(t *testing.T) {
		env := servicetest.New(t)
		_, shipment := shippedOrder(t, env)

		got, err := env.Shipping.UpdateShipmentStatus(t.Context(), shipment.ID, entity.ShipmentCreated, shippingsvc.StatusInput{}, servicetest.Actor)
		require.NoError(t, err)
		assert.Equal(t, entity.ShipmentCreated, got.Status)

		history, err := env.Audit.History(t.Context(), env.DB.Reader, entity.EntityShipment, shipment.ID)
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("should reject an unknown status", func(t *testing.T) {
		env := servicetest.New(t)
		_, err := env.Shipping.UpdateShipmentStatus(t.Context(), uuid.New(), entity.ShipmentStatus("LOST"), shippingsvc.StatusInput{}, servicetest.Actor)
		assert.True(t, errorbank.IsKind(err, errorbank.KindValidation))
	})
}

func TestManifest(t *testing.T) {
	t.Run("should generate, store and cache the manifest", func(t *testing.T) {
		env := servicetest.New(t)
		order, shipment := shippedOrder(t, env)

		m, err := env.Shipping.GenerateManifest(t.Context(), shipment.ID, servicetest.Actor)
		require.NoError(t, err)
		assert.Equal(t, order.OrderNumber, m.OrderNumber)
		assert.Equal(t, "ACME Freight", m.Carrier)
		require.Len(t, m.Packages, 1)
		assert.Equal(t, 1, m.Packages[0].SequenceNumber)
		assert.Nil(t, m.Packages[0].Dimensions.Length)
		require.Len(t, m.Packages[0].Items, 2)

		lines := make(map[string]entity.ManifestItem)
		for _, it := range m.Packages[0].Items {
			lines[it.ProductSKU] = it
		}
		assert.True(t, decimal.RequireFromString("20.00").Equal(lines["PROD-001"].LineTotal))
		assert.True(t, decimal.RequireFromString("7.50").Equal(lines["PROD-002"].LineTotal))

		assert.True(t, env.Redis.Exists(shippingsvc.ManifestCacheKey(shipment.ID)))
		ttl := env.Redis.TTL(shippingsvc.ManifestCacheKey(shipment.ID))
		assert.InDelta(t, time.Hour.Seconds(), ttl.Seconds(), 1)

		stored, err := env.ShipmentRepo.Get(t.Context(), env.DB.Reader, shipment.ID, false)
		require.NoError(t, err)
		require.NotNil(t, stored.Manifest)
		assert.Equal(t, m.ShipmentNumber, stored.Manifest.ShipmentNumber)
	})

	t.Run("should fall back to the stored manifest", func(t *testing.T) {
		env := servicetest.New(t)
		_, shipment := shippedOrder(t, env)
		_, err := env.Shipping.GenerateManifest(t.Context(), shipment.ID, servicetest.Actor)
		require.NoError(t, err)
		env.Redis.FlushAll()

		m, err := env.Shipping.GetManifest(t.Context(), shipment.ID)
		require.NoError(t, err)
		assert.Equal(t, shipment.ShipmentNumber, m.ShipmentNumber)
		assert.True(t, env.Redis.Exists(shippingsvc.ManifestCacheKey(shipment.ID)))
	})

	t.Run("should generate on first read", func(t *testing.T) {
		env := servicetest.New(t)
		_, shipment := shippedOrder(t, env)

		m, err := env.Shipping.GetManifest(t.Context(), shipment.ID)
		require.NoError(t, err)
		assert.Len(t, m.Packages, 1)

		history, err := env.Audit.History(t.Context(), env.DB.Reader, entity.EntityShipment, shipment.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, audit.ActionManifestGenerated, history[0].Action)
	})

	t.Run("should drop the cache when tracking changes", func(t *testing.T) {
		env := servicetest.New(t)
		_, shipment := shippedOrder(t, env)
		_, err := env.Shipping.GetManifest(t.Context(), shipment.ID)
		require.NoError(t, err)

		_, err = env.Shipping.AssignTracking(t.Context(), shipment.ID, "TRK-1", servicetest.Actor)
		require.NoError(t, err)
		assert.False(t, env.Redis.Exists(shippingsvc.ManifestCacheKey(shipment.ID)))

		stored, err := env.ShipmentRepo.Get(t.Context(), env.DB.Reader, shipment.ID, false)
		require.NoError(t, err)
		assert.Nil(t, stored.Manifest)

		m, err := env.Shipping.GetManifest(t.Context(), shipment.ID)
		require.NoError(t, err)
		assert.Equal(t, "TRK-1", m.TrackingNumber)
	})

	t.Run("should serve the new status after a status change", func(t *testing.T) {
		env := servicetest.New(t)
		_, shipment := shippedOrder(t, env)
		before, err := env.Shipping.GetManifest(t.Context(), shipment.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.ShipmentCreated, before.Status)

		advance(t, env, shipment.ID, entity.ShipmentLoaded)

		after, err := env.Shipping.GetManifest(t.Context(), shipment.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.ShipmentLoaded, after.Status)
	})
}

func TestGetShipmentSummary(t *testing.T) {
	env := servicetest.New(t)
	order, shipment := shippedOrder(t, env)

	summary, err := env.Shipping.GetShipmentSummary(t.Context(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalShipments)
	assert.Zero(t, summary.DeliveredShipments)
	require.Len(t, summary.Shipments, 1)
	assert.Equal(t, shipment.ShipmentNumber, summary.Shipments[0].ShipmentNumber)
	assert.Equal(t, 1, summary.Shipments[0].PackageCount)

	got, err := env.Shipping.GetShipment(t.Context(), shipment.ID)
	require.NoError(t, err)
	assert.Equal(t, shipment.Carrier, got.Carrier)

	_, err = env.Shipping.GetShipmentSummary(t.Context(), uuid.New())
	assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))
}
