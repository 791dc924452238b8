package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory-ledger/internal/core"
)

func TestReceiving_OverReceiptIsHeld(t *testing.T) {
	f := newFixture(t)
	f.product(t, "FLOUR", true)

	res, err := f.eng.Receiving.ReceiveLot(f.ctx, core.ReceiptRequest{
		ProductID:       "FLOUR",
		WarehouseID:     "MAIN",
		Quantity:        d("120"),
		OrderedQuantity: dp("100"),
		ReceiptID:       "GR-1",
		Lot:             core.LotSpec{ExpiryDate: dayp("2026-06-01")},
		Actor:           "receiver",
	})
	require.NoError(t, err)
	require.Len(t, res.MovementIDs, 2)
	requireDecimal(t, "20", res.Excess)
	require.NotEmpty(t, res.HeldLotID)

	main := f.lot(t, res.LotID)
	requireDecimal(t, "100", main.RemainingQuantity)
	assert.Equal(t, core.LotAvailable, main.AvailabilityStatus)
	assert.Equal(t, core.OriginSupplierReceipt, main.Origin.Kind)
	assert.Equal(t, "GR-1", main.Origin.Reference)

	held := f.lot(t, res.HeldLotID)
	requireDecimal(t, "20", held.RemainingQuantity)
	assert.True(t, held.AwaitingApproval)
	assert.Equal(t, core.LotQuarantine, held.AvailabilityStatus)
	assert.Equal(t, core.HoldOverReceipt, held.HoldReason)

	lvl := f.level(t, "FLOUR", "MAIN")
	requireDecimal(t, "120", lvl.OnHand)
	requireDecimal(t, "20", lvl.QuarantinedQuantity)

	_, err = f.eng.Lots.Release(f.ctx, held.ID, "qa")
	require.ErrorIs(t, err, core.ErrInvalidTransition)

	approved, err := f.eng.Lots.ApproveOverReceipt(f.ctx, held.ID, "buyer")
	require.NoError(t, err)
	assert.False(t, approved.AwaitingApproval)
	assert.Equal(t, core.LotAvailable, approved.AvailabilityStatus)
	requireDecimal(t, "0", f.level(t, "FLOUR", "MAIN").QuarantinedQuantity)

	_, err = f.eng.Lots.ApproveOverReceipt(f.ctx, held.ID, "buyer")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}

func TestReceiving_UntrackedOverReceiptIsHeld(t *testing.T) {
	f := newFixture(t)
	f.product(t, "SEEDS", false)

	res, err := f.eng.Receiving.ReceiveLot(f.ctx, core.ReceiptRequest{
		ProductID:       "SEEDS",
		WarehouseID:     "MAIN",
		Quantity:        d("120"),
		OrderedQuantity: dp("100"),
		ReceiptID:       "GR-2",
		Actor:           "receiver",
	})
	require.NoError(t, err)
	require.Len(t, res.MovementIDs, 2)
	requireDecimal(t, "20", res.Excess)
	assert.Empty(t, res.HeldLotID)
	require.NotEmpty(t, res.HoldID)

	lvl := f.level(t, "SEEDS", "MAIN")
	requireDecimal(t, "120", lvl.OnHand)
	requireDecimal(t, "20", lvl.Reserved)
	requireDecimal(t, "100", lvl.Available)

	_, err = f.eng.Allocator.Issue(f.ctx, core.IssueRequest{
		AllocationRequest: core.AllocationRequest{ProductID: "SEEDS", WarehouseID: "MAIN", Quantity: d("120")},
	})
	require.ErrorIs(t, err, core.ErrInsufficientStock)

	_, err = f.eng.Receiving.ApproveOverReceipt(f.ctx, "GR-404", "buyer")
	require.ErrorIs(t, err, core.ErrInvalidTransition)

	released, err := f.eng.Receiving.ApproveOverReceipt(f.ctx, "GR-2", "buyer")
	require.NoError(t, err)
	require.Len(t, released, 1)
	assert.Equal(t, res.HoldID, released[0].ID)

	lvl = f.level(t, "SEEDS", "MAIN")
	requireDecimal(t, "0", lvl.Reserved)
	requireDecimal(t, "120", lvl.Available)

	_, err = f.eng.Allocator.Issue(f.ctx, core.IssueRequest{
		AllocationRequest: core.AllocationRequest{ProductID: "SEEDS", WarehouseID: "MAIN", Quantity: d("120")},
	})
	require.NoError(t, err)

	_, err = f.eng.Receiving.ApproveOverReceipt(f.ctx, "GR-2", "buyer")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}

func TestReceiving_WithinOrderedQuantity(t *testing.T) {
	f := newFixture(t)
	f.product(t, "FLOUR", true)

	res, err := f.eng.Receiving.ReceiveLot(f.ctx, core.ReceiptRequest{
		ProductID:       "FLOUR",
		WarehouseID:     "MAIN",
		Quantity:        d("80"),
		OrderedQuantity: dp("100"),
	})
	require.NoError(t, err)
	assert.Len(t, res.MovementIDs, 1)
	assert.Empty(t, res.HeldLotID)
	assert.True(t, res.Excess.IsZero())
}

func TestReceiving_Validation(t *testing.T) {
	f := newFixture(t)
	f.product(t, "FLOUR", true)

	tests := []struct {
		name    string
		req     core.ReceiptRequest
		wantErr error
	}{
		{"zero quantity", core.ReceiptRequest{ProductID: "FLOUR", WarehouseID: "MAIN", Quantity: d("0")}, core.ErrInvalidQuantity},
		{"zero ordered", core.ReceiptRequest{ProductID: "FLOUR", WarehouseID: "MAIN", Quantity: d("1"), OrderedQuantity: dp("0")}, core.ErrInvalidQuantity},
		{"unknown product", core.ReceiptRequest{ProductID: "GHOST", WarehouseID: "MAIN", Quantity: d("1")}, core.ErrUnknownReference},
		{"expiry before manufacture", core.ReceiptRequest{
			ProductID: "FLOUR", WarehouseID: "MAIN", Quantity: d("1"),
			Lot: core.LotSpec{ManufactureDate: day("2025-05-01"), ExpiryDate: dayp("2025-04-01")},
		}, core.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.eng.Receiving.ReceiveLot(f.ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	history, err := f.eng.Journal.History(f.ctx, core.MovementFilter{ProductID: "FLOUR"})
	require.NoError(t, err)
	assert.Empty(t, history)
}
