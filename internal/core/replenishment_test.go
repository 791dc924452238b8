package core_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory-ledger/internal/core"
	"inventory-ledger/internal/store/memory"
)

func TestReplenishment_ThresholdShortfall(t *testing.T) {
	f := newFixture(t)
	x := f.product(t, "X", false)
	f.receive(t, "X", "8", core.LotSpec{})
	_, err := f.eng.Stock.SetThresholds(f.ctx, "X", "MAIN", core.Thresholds{
		MinStockAlert:   d("10"),
		ReorderPoint:    dp("15"),
		ReorderQuantity: d("50"),
	})
	require.NoError(t, err)

	got, err := f.eng.Replenishment.GenerateSuggestions(f.ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)

	s := got[0]
	assert.Equal(t, "X", s.ProductID)
	assert.Equal(t, "MAIN", s.WarehouseID)
	requireDecimal(t, "50", s.SuggestedQuantity)
	assert.Equal(t, core.PriorityHigh, s.Priority)
	requireDecimal(t, "8", s.ProjectedAvailable)
	assert.Empty(t, s.SupplierID)
	requireDecimal(t, x.UnitCost.Mul(d("50")).String(), s.EstimatedCost)
}

func TestReplenishment_IsIdempotent(t *testing.T) {
	f := bikeShop(t)
	f.order(t, "MO-1", "5")
	for _, p := range []string{"FRAME", "WHEEL"} {
		_, err := f.eng.Stock.SetThresholds(f.ctx, p, "MAIN", core.Thresholds{MinStockAlert: d("8"), ReorderQuantity: d("20")})
		require.NoError(t, err)
	}
	require.NoError(t, f.eng.Catalog.UpsertSupplierItem(f.ctx, core.SupplierItem{
		SupplierID: "ACME", ProductID: "FRAME", UnitPrice: d("40"), LeadTimeDays: 7, MinOrderQty: d("1"),
	}))

	first, err := f.eng.Replenishment.GenerateSuggestions(f.ctx)
	require.NoError(t, err)
	second, err := f.eng.Replenishment.GenerateSuggestions(f.ctx)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	require.NotEmpty(t, first)
}

func TestReplenishment_OpenOrderDemand(t *testing.T) {
	f := bikeShop(t)
	_, err := f.eng.Stock.SetThresholds(f.ctx, "WHEEL", "MAIN", core.Thresholds{MinStockAlert: d("5")})
	require.NoError(t, err)

	// 14 bikes need 28 wheels; 30 on hand leaves 2, below the minimum of 5.
	f.order(t, "MO-1", "14")

	reqs, err := f.eng.Replenishment.OpenOrderRequirements(f.ctx)
	require.NoError(t, err)
	requireDecimal(t, "28", reqs[core.PairKey{ProductID: "WHEEL", WarehouseID: "MAIN"}])
	requireDecimal(t, "14", reqs[core.PairKey{ProductID: "FRAME", WarehouseID: "MAIN"}])

	got, err := f.eng.Replenishment.GenerateSuggestions(f.ctx)
	require.NoError(t, err)

	byProduct := map[string]core.ReplenishmentSuggestion{}
	for _, s := range got {
		byProduct[s.ProductID] = s
	}
	wheel, ok := byProduct["WHEEL"]
	require.True(t, ok)
	requireDecimal(t, "28", wheel.OpenOrderRequirement)
	requireDecimal(t, "2", wheel.ProjectedAvailable)
	requireDecimal(t, "3", wheel.SuggestedQuantity)
	assert.Equal(t, core.PriorityHigh, wheel.Priority)

	// Frames have no thresholds but 14 needed against 10 on hand.
	frame, ok := byProduct["FRAME"]
	require.True(t, ok)
	requireDecimal(t, "-4", frame.ProjectedAvailable)
	requireDecimal(t, "4", frame.SuggestedQuantity)
}

func TestReplenishment_ReservedDemandIsNotCountedTwice(t *testing.T) {
	f := bikeShop(t)
	_, err := f.eng.Stock.SetThresholds(f.ctx, "WHEEL", "MAIN", core.Thresholds{MinStockAlert: d("5")})
	require.NoError(t, err)
	o := f.order(t, "MO-1", "5")

	before, err := f.eng.Replenishment.OpenOrderRequirements(f.ctx)
	require.NoError(t, err)
	requireDecimal(t, "10", before[core.PairKey{ProductID: "WHEEL", WarehouseID: "MAIN"}])

	_, err = f.eng.Production.ReserveMaterials(f.ctx, o.ID, "planner")
	require.NoError(t, err)

	after, err := f.eng.Replenishment.OpenOrderRequirements(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, after)

	// Available already nets the reservation: 30 - 10 = 20, above 5.
	got, err := f.eng.Replenishment.GenerateSuggestions(f.ctx)
	require.NoError(t, err)
	for _, s := range got {
		assert.NotEqual(t, "WHEEL", s.ProductID)
	}
}

func TestReplenishment_SupplierSelection(t *testing.T) {
	tests := []struct {
		name         string
		items        []core.SupplierItem
		wantSupplier string
		wantQty      string
		wantCost     string
	}{
		{
			name: "shortest lead time",
			items: []core.SupplierItem{
				{SupplierID: "SLOW", UnitPrice: d("1"), LeadTimeDays: 20},
				{SupplierID: "FAST", UnitPrice: d("2"), LeadTimeDays: 3},
			},
			wantSupplier: "FAST",
			wantQty:      "10",
			wantCost:     "20",
		},
		{
			name: "preferred wins",
			items: []core.SupplierItem{
				{SupplierID: "FAST", UnitPrice: d("2"), LeadTimeDays: 3},
				{SupplierID: "PREF", UnitPrice: d("3"), LeadTimeDays: 9, IsPreferred: true},
			},
			wantSupplier: "PREF",
			wantQty:      "10",
			wantCost:     "30",
		},
		{
			name: "minimum order quantity",
			items: []core.SupplierItem{
				{SupplierID: "BULK", UnitPrice: d("0.5"), LeadTimeDays: 5, MinOrderQty: d("100")},
			},
			wantSupplier: "BULK",
			wantQty:      "100",
			wantCost:     "50",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.product(t, "NUT", false)
			_, err := f.eng.Stock.SetThresholds(f.ctx, "NUT", "MAIN", core.Thresholds{MinStockAlert: d("5"), ReorderQuantity: d("10")})
			require.NoError(t, err)
			for _, si := range tt.items {
				si.ProductID = "NUT"
				require.NoError(t, f.eng.Catalog.UpsertSupplierItem(f.ctx, si))
			}

			got, err := f.eng.Replenishment.GenerateSuggestions(f.ctx)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, tt.wantSupplier, got[0].SupplierID)
			requireDecimal(t, tt.wantQty, got[0].SuggestedQuantity)
			requireDecimal(t, tt.wantCost, got[0].EstimatedCost)
			assert.Equal(t, core.PriorityCritical, got[0].Priority)
		})
	}
}

func TestReplenishment_CriticalRaisesEvent(t *testing.T) {
	f := newFixture(t)
	f.product(t, "NUT", false)
	_, err := f.eng.Stock.SetThresholds(f.ctx, "NUT", "MAIN", core.Thresholds{MinStockAlert: d("1")})
	require.NoError(t, err)

	_, err = f.eng.Replenishment.GenerateSuggestions(f.ctx)
	require.NoError(t, err)

	events := f.events.ofType(core.EventReplenishmentSuggestionCritical)
	require.Len(t, events, 1)
	assert.Equal(t, "NUT@MAIN", events[0].Key)
}

// gatedStore parks the first snapshot taken after arm until release is
// closed.
type gatedStore struct {
	core.Store
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Snapshot(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	if g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
	}
	return g.Store.Snapshot(ctx, fn)
}

func TestReplenishment_CancelledCallerDoesNotFailOthers(t *testing.T) {
	ctx := context.Background()
	gate := &gatedStore{Store: memory.New(), entered: make(chan struct{}), release: make(chan struct{})}
	eng := core.NewEngine(gate, core.Options{})
	require.NoError(t, eng.Catalog.UpsertWarehouse(ctx, core.Warehouse{ID: "MAIN", CanReceive: true, CanShip: true}))
	require.NoError(t, eng.Catalog.UpsertProduct(ctx, core.Product{ID: "X", UnitOfMeasure: "pcs"}))
	_, err := eng.Receiving.ReceiveLot(ctx, core.ReceiptRequest{ProductID: "X", WarehouseID: "MAIN", Quantity: d("8")})
	require.NoError(t, err)
	_, err = eng.Stock.SetThresholds(ctx, "X", "MAIN", core.Thresholds{MinStockAlert: d("10"), ReorderQuantity: d("50")})
	require.NoError(t, err)

	gate.armed.Store(true)
	first, cancel := context.WithCancel(ctx)
	firstErr := make(chan error, 1)
	go func() {
		_, err := eng.Replenishment.GenerateSuggestions(first)
		firstErr <- err
	}()
	<-gate.entered

	type result struct {
		suggestions []core.ReplenishmentSuggestion
		err         error
	}
	second := make(chan result, 1)
	go func() {
		s, err := eng.Replenishment.GenerateSuggestions(ctx)
		second <- result{s, err}
	}()

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(gate.release)
	got := <-second
	require.NoError(t, got.err)
	require.Len(t, got.suggestions, 1)
	assert.Equal(t, "X", got.suggestions[0].ProductID)

	_, err = eng.Replenishment.GenerateSuggestions(first)
	assert.ErrorIs(t, err, context.Canceled)
}
