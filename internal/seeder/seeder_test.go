package seeder_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/fulfillment/internal/entity"
	"github.com/Additional-Code/fulfillment/internal/seeder"
	"github.com/Additional-Code/fulfillment/internal/service/servicetest"
)

func TestSeedOrders(t *testing.T) {
	env := servicetest.New(t)

	orders, err := seeder.New(env.Orders, nil).Orders(t.Context())
	require.NoError(t, err)
	require.Len(t, orders, 2)

	for _, o := range orders {
		assert.Equal(t, entity.OrderApproved, env.Reload(t, o.ID).Status)
		_, err := env.Allocation.Allocate(t.Context(), o.ID, seeder.SystemUser)
		assert.NoError(t, err, o.OrderNumber)
	}
}
