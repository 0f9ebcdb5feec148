package inventory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Additional-Code/fulfillment/pkg/errorbank"
)

// Warehouses stocked by DefaultStock.
var (
	WarehouseMain      = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	WarehouseSecondary = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

// StockLine is the on-hand quantity of a product at one location.
type StockLine struct {
	WarehouseID uuid.UUID
	SKU         string
	Location    string
	OnHand      decimal.Decimal
}

// DefaultStock is the deterministic stock used in development and tests.
func DefaultStock() []StockLine {
	return []StockLine{
		{WarehouseMain, "PROD-001", "A-01-01", decimal.NewFromInt(100)},
		{WarehouseMain, "PROD-001", "A-01-02", decimal.NewFromInt(50)},
		{WarehouseMain, "PROD-002", "B-02-01", decimal.NewFromInt(75)},
		{WarehouseMain, "PROD-003", "C-03-01", decimal.NewFromInt(25)},
		{WarehouseSecondary, "PROD-001", "A-01-01", decimal.NewFromInt(200)},
		{WarehouseSecondary, "PROD-004", "D-04-01", decimal.NewFromInt(10)},
	}
}

type stockKey struct {
	warehouse uuid.UUID
	sku       string
}

type holdKey struct {
	sku      string
	location string
}

type hold struct {
	key      holdKey
	quantity decimal.Decimal
}

// MockAdapter is an in-memory Adapter. Available stock is on-hand minus active
// reservations; reservations are keyed by product and location code.
type MockAdapter struct {
	mu    sync.Mutex
	stock map[stockKey][]StockLine
	held  map[holdKey]decimal.Decimal
	holds map[string]hold
	seq   int
}

// NewMockAdapter builds an adapter over lines, or DefaultStock when none are given.
func NewMockAdapter(lines ...StockLine) *MockAdapter {
	if len(lines) == 0 {
		lines = DefaultStock()
	}
	m := &MockAdapter{
		stock: make(map[stockKey][]StockLine),
		held:  make(map[holdKey]decimal.Decimal),
		holds: make(map[string]hold),
	}
	for _, l := range lines {
		k := stockKey{l.WarehouseID, l.SKU}
		m.stock[k] = append(m.stock[k], l)
	}
	return m
}

func (m *MockAdapter) CheckAvailability(_ context.Context, sku string, quantity decimal.Decimal, warehouseID uuid.UUID) ([]Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		out   []Location
		total = decimal.Zero
	)
	for _, line := range m.stock[stockKey{warehouseID, sku}] {
		available := line.OnHand.Sub(m.held[holdKey{sku, line.Location}])
		if available.IsNegative() {
			available = decimal.Zero
		}
		total = total.Add(available)
		if available.GreaterThanOrEqual(quantity) {
			out = append(out, Location{Location: line.Location, AvailableQuantity: available})
		}
	}
	if len(out) == 0 {
		return nil, errorbank.InventoryUnavailable(sku, quantity.String(), total.String())
	}
	return out, nil
}

func (m *MockAdapter) Reserve(_ context.Context, sku string, quantity decimal.Decimal, location, reference string) (Reservation, error) {
	if !quantity.IsPositive() {
		return Reservation{}, errorbank.Validation("reservation quantity must be positive")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	id := fmt.Sprintf("RES-%s-%s-%s-%s-%d", reference, sku, location, quantity.String(), m.seq)
	k := holdKey{sku, location}
	m.held[k] = m.held[k].Add(quantity)
	m.holds[id] = hold{key: k, quantity: quantity}

	return Reservation{ReservationID: id, ReservedQuantity: quantity}, nil
}

func (m *MockAdapter) Release(_ context.Context, reservationID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.holds[reservationID]
	if !ok {
		return true, nil
	}
	delete(m.holds, reservationID)
	m.held[h.key] = m.held[h.key].Sub(h.quantity)
	return true, nil
}

// ActiveReservations reports how many reservations are currently held.
func (m *MockAdapter) ActiveReservations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.holds)
}
