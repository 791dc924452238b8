package core_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory-ledger/internal/core"
)

// fefoLots receives lot1..lot3 of 5 units each, expiring 2026-01-01,
// 2026-03-01 and never.
func fefoLots(t *testing.T, f *fixture, productID string) {
	t.Helper()
	f.receive(t, productID, "5", core.LotSpec{ID: "lot1", ExpiryDate: dayp("2026-01-01")})
	f.receive(t, productID, "5", core.LotSpec{ID: "lot2", ExpiryDate: dayp("2026-03-01")})
	f.receive(t, productID, "5", core.LotSpec{ID: "lot3"})
}

func lines(pairs ...string) []core.AllocationLine {
	var out []core.AllocationLine
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, core.AllocationLine{LotID: pairs[i], Quantity: d(pairs[i+1])})
	}
	return out
}

func assertLines(t *testing.T, want, got []core.AllocationLine) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].LotID, got[i].LotID, "line %d", i)
		requireDecimal(t, want[i].Quantity.String(), got[i].Quantity, "line", i)
	}
}

func TestAllocate_FEFO(t *testing.T) {
	f := newFixture(t)
	f.product(t, "MILK", true)
	fefoLots(t, f, "MILK")

	got, err := f.eng.Allocator.Allocate(f.ctx, core.AllocationRequest{
		ProductID: "MILK", WarehouseID: "MAIN", Quantity: d("8"), Policy: core.PolicyFEFO,
	})
	require.NoError(t, err)
	assertLines(t, lines("lot1", "5", "lot2", "3"), got)
}

func TestAllocate_FIFOUsesManufactureDate(t *testing.T) {
	f := newFixture(t)
	f.product(t, "BOLT", true)
	f.receive(t, "BOLT", "4", core.LotSpec{ID: "late", ManufactureDate: day("2025-05-20")})
	f.receive(t, "BOLT", "4", core.LotSpec{ID: "early", ManufactureDate: day("2025-04-01")})
	f.receive(t, "BOLT", "4", core.LotSpec{ID: "mid", ManufactureDate: day("2025-05-01")})

	got, err := f.eng.Allocator.Allocate(f.ctx, core.AllocationRequest{
		ProductID: "BOLT", WarehouseID: "MAIN", Quantity: d("6"), Policy: core.PolicyFIFO,
	})
	require.NoError(t, err)
	assertLines(t, lines("early", "4", "mid", "2"), got)
}

func TestAllocate_SkipsQuarantinedAndExpired(t *testing.T) {
	f := newFixture(t)
	f.product(t, "MILK", true)
	fefoLots(t, f, "MILK")

	_, err := f.eng.Lots.Quarantine(f.ctx, "lot2", "damaged seal", "qa")
	require.NoError(t, err)

	got, err := f.eng.Allocator.Allocate(f.ctx, core.AllocationRequest{
		ProductID: "MILK", WarehouseID: "MAIN", Quantity: d("8"), Policy: core.PolicyFEFO,
	})
	require.NoError(t, err)
	assertLines(t, lines("lot1", "5", "lot3", "3"), got)

	// lot1 expires; only lot3 is left.
	f.clock.Set(day("2026-01-02"))
	_, err = f.eng.Allocator.Allocate(f.ctx, core.AllocationRequest{
		ProductID: "MILK", WarehouseID: "MAIN", Quantity: d("6"), Policy: core.PolicyFEFO,
	})
	var qe *core.QuantityError
	require.True(t, errors.As(err, &qe))
	assert.ErrorIs(t, err, core.ErrInsufficientStock)
	requireDecimal(t, "5", qe.Available)
	requireDecimal(t, "6", qe.Requested)
}

func TestIssue_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	f.product(t, "MILK", true)
	fefoLots(t, f, "MILK")

	_, err := f.eng.Allocator.Issue(f.ctx, core.IssueRequest{
		AllocationRequest: core.AllocationRequest{ProductID: "MILK", WarehouseID: "MAIN", Quantity: d("16"), Policy: core.PolicyFEFO},
		Document:          core.DocumentRef{Kind: core.DocSalesShipment, ID: "SO-1"},
	})
	require.ErrorIs(t, err, core.ErrInsufficientStock)

	for _, id := range []string{"lot1", "lot2", "lot3"} {
		requireDecimal(t, "5", f.lot(t, id).RemainingQuantity, id)
	}
	history, err := f.eng.Journal.History(f.ctx, core.MovementFilter{ProductID: "MILK"})
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestIssue_RecordsOneOutboundPerLot(t *testing.T) {
	f := newFixture(t)
	f.product(t, "MILK", true)
	fefoLots(t, f, "MILK")

	res, err := f.eng.Allocator.Issue(f.ctx, core.IssueRequest{
		AllocationRequest: core.AllocationRequest{ProductID: "MILK", WarehouseID: "MAIN", Quantity: d("12"), Policy: core.PolicyFEFO},
		Document:          core.DocumentRef{Kind: core.DocSalesShipment, ID: "SO-2"},
		Actor:             "shipper",
	})
	require.NoError(t, err)
	require.Len(t, res.MovementIDs, 3)

	assert.Equal(t, core.LotDepleted, f.lot(t, "lot1").AvailabilityStatus)
	assert.Equal(t, core.LotDepleted, f.lot(t, "lot2").AvailabilityStatus)
	requireDecimal(t, "3", f.lot(t, "lot3").RemainingQuantity)

	lvl := f.level(t, "MILK", "MAIN")
	requireDecimal(t, "3", lvl.OnHand)
	requireDecimal(t, "3", lvl.Available)
}

func TestIssue_UntrackedProduct(t *testing.T) {
	f := newFixture(t)
	f.product(t, "SAND", false)
	f.receive(t, "SAND", "10", core.LotSpec{})

	res, err := f.eng.Allocator.Issue(f.ctx, core.IssueRequest{
		AllocationRequest: core.AllocationRequest{ProductID: "SAND", WarehouseID: "MAIN", Quantity: d("4")},
		Document:          core.DocumentRef{Kind: core.DocSalesShipment, ID: "SO-3"},
	})
	require.NoError(t, err)
	require.Len(t, res.Lines, 1)
	assert.Empty(t, res.Lines[0].LotID)
	requireDecimal(t, "6", f.level(t, "SAND", "MAIN").OnHand)
}

func TestIssue_ConcurrentRequestsNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	f.product(t, "CHIP", true)
	f.receive(t, "CHIP", "6", core.LotSpec{ID: "a"})
	f.receive(t, "CHIP", "4", core.LotSpec{ID: "b"})

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failures  []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.eng.Allocator.Issue(f.ctx, core.IssueRequest{
				AllocationRequest: core.AllocationRequest{ProductID: "CHIP", WarehouseID: "MAIN", Quantity: d("3"), Policy: core.PolicyFIFO},
				Document:          core.DocumentRef{Kind: core.DocSalesShipment, ID: "SO"},
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			succeeded++
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	for _, err := range failures {
		assert.ErrorIs(t, err, core.ErrInsufficientStock)
	}
	lvl := f.level(t, "CHIP", "MAIN")
	requireDecimal(t, "1", lvl.OnHand)
	assert.False(t, lvl.OnHand.IsNegative())
}

func TestPlan_OrdersWithoutStore(t *testing.T) {
	now := day("2025-06-01")
	lot := func(id string, qty string, expiry *time.Time) core.Lot {
		return core.Lot{
			ID: id, ProductID: "X", WarehouseID: "W",
			InitialQuantity: d(qty), RemainingQuantity: d(qty),
			ExpiryDate: expiry, AvailabilityStatus: core.LotAvailable, QualityStatus: core.QualityApproved,
		}
	}
	lots := []core.Lot{
		lot("c", "5", nil),
		lot("b", "5", dayp("2026-03-01")),
		lot("a", "5", dayp("2026-01-01")),
	}

	got, err := core.Plan(lots, d("8"), core.PolicyFEFO, now)
	require.NoError(t, err)
	assertLines(t, lines("a", "5", "b", "3"), got)

	held := lot("held", "50", nil)
	held.AwaitingApproval = true
	_, err = core.Plan([]core.Lot{held}, d("1"), core.PolicyFEFO, now)
	assert.ErrorIs(t, err, core.ErrInsufficientStock)

	_, err = core.Plan(lots, d("0"), core.PolicyFEFO, now)
	assert.ErrorIs(t, err, core.ErrInvalidQuantity)
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    core.AllocationPolicy
		wantErr bool
	}{
		{"", core.PolicyFIFO, false},
		{"FEFO", core.PolicyFEFO, false},
		{" fifo ", core.PolicyFIFO, false},
		{"lifo", "", true},
	}
	for _, tt := range tests {
		got, err := core.ParsePolicy(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, core.ErrInvalidArgument)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
