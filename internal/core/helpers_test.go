package core_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"inventory-ledger/internal/core"
	"inventory-ledger/internal/store/memory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func dayp(s string) *time.Time {
	t := day(s)
	return &t
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type eventSink struct {
	mu     sync.Mutex
	events []core.Event
}

func (s *eventSink) Publish(_ context.Context, events ...core.Event) error {
	s.mu.Lock()
	s.events = append(s.events, events...)
	s.mu.Unlock()
	return nil
}

func (s *eventSink) ofType(t core.EventType) []core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	ctx    context.Context
	eng    *core.Engine
	clock  *fakeClock
	events *eventSink
}

// newFixture wires an engine over a fresh memory store with the clock at
// 2025-06-01 and two warehouses: MAIN (receive and ship) and DOCK (receive
// only).
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:    context.Background(),
		clock:  &fakeClock{now: day("2025-06-01").Add(9 * time.Hour)},
		events: &eventSink{},
	}
	f.eng = core.NewEngine(memory.New(memory.WithLockTimeout(200*time.Millisecond)), core.Options{
		Clock:     f.clock.Now,
		Publisher: f.events,
		RetryBase: time.Millisecond,
	})
	require.NoError(t, f.eng.Catalog.UpsertWarehouse(f.ctx, core.Warehouse{ID: "MAIN", Name: "Main", CanReceive: true, CanShip: true}))
	require.NoError(t, f.eng.Catalog.UpsertWarehouse(f.ctx, core.Warehouse{ID: "DOCK", Name: "Dock", CanReceive: true}))
	return f
}

func (f *fixture) product(t *testing.T, id string, tracked bool) core.Product {
	t.Helper()
	p := core.Product{
		ID:            id,
		Name:          gofakeit.ProductName(),
		UnitOfMeasure: "pcs",
		UnitCost:      decimal.NewFromFloat(gofakeit.Price(1, 50)).Round(2),
		LotTracked:    tracked,
	}
	require.NoError(t, f.eng.Catalog.UpsertProduct(f.ctx, p))
	return p
}

// receive books an inbound of qty into MAIN and returns the lot id (empty
// for untracked products).
func (f *fixture) receive(t *testing.T, productID, qty string, spec core.LotSpec) string {
	t.Helper()
	res, err := f.eng.Receiving.ReceiveLot(f.ctx, core.ReceiptRequest{
		ProductID:   productID,
		WarehouseID: "MAIN",
		Quantity:    d(qty),
		ReceiptID:   gofakeit.UUID(),
		Lot:         spec,
		Actor:       gofakeit.Username(),
	})
	require.NoError(t, err)
	return res.LotID
}

func (f *fixture) level(t *testing.T, productID, warehouseID string) core.StockLevel {
	t.Helper()
	lvl, err := f.eng.Stock.GetLevel(f.ctx, productID, warehouseID)
	require.NoError(t, err)
	return lvl
}

func (f *fixture) lot(t *testing.T, id string) core.Lot {
	t.Helper()
	l, err := f.eng.Lots.Get(f.ctx, id)
	require.NoError(t, err)
	return l
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, d(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}
