package core_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory-ledger/internal/core"
)

func TestLots_QuarantineAndRelease(t *testing.T) {
	f := newFixture(t)
	f.product(t, "MILK", true)
	lotID := f.receive(t, "MILK", "10", core.LotSpec{})

	_, err := f.eng.Lots.Quarantine(f.ctx, lotID, "", "qa")
	require.ErrorIs(t, err, core.ErrInvalidArgument)

	l, err := f.eng.Lots.Quarantine(f.ctx, lotID, "supplier recall", "qa")
	require.NoError(t, err)
	assert.Equal(t, core.LotQuarantine, l.AvailabilityStatus)
	assert.Equal(t, "supplier recall", l.HoldReason)

	lvl := f.level(t, "MILK", "MAIN")
	requireDecimal(t, "10", lvl.OnHand)
	requireDecimal(t, "10", lvl.QuarantinedQuantity)
	require.Len(t, f.events.ofType(core.EventLotQuarantined), 1)

	_, err = f.eng.Lots.Quarantine(f.ctx, lotID, "again", "qa")
	require.ErrorIs(t, err, core.ErrInvalidTransition)

	l, err = f.eng.Lots.Release(f.ctx, lotID, "qa")
	require.NoError(t, err)
	assert.Equal(t, core.LotAvailable, l.AvailabilityStatus)
	assert.Empty(t, l.HoldReason)
	require.Len(t, f.events.ofType(core.EventLotReleased), 1)

	_, err = f.eng.Lots.Release(f.ctx, lotID, "qa")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}

func TestLots_ReservedLotMustBeUnreservedFirst(t *testing.T) {
	f := newFixture(t)
	f.product(t, "MILK", true)
	lotID := f.receive(t, "MILK", "10", core.LotSpec{})

	l, err := f.eng.Lots.Reserve(f.ctx, lotID, "SO-5", "sales")
	require.NoError(t, err)
	assert.Equal(t, "reserved for SO-5", l.HoldReason)

	_, err = f.eng.Lots.Quarantine(f.ctx, lotID, "smell", "qa")
	var te *core.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, string(core.LotReserved), te.From)

	_, err = f.eng.Allocator.Allocate(f.ctx, core.AllocationRequest{ProductID: "MILK", WarehouseID: "MAIN", Quantity: d("1")})
	require.ErrorIs(t, err, core.ErrInsufficientStock)

	_, err = f.eng.Lots.Unreserve(f.ctx, lotID, "sales")
	require.NoError(t, err)
	_, err = f.eng.Lots.Quarantine(f.ctx, lotID, "smell", "qa")
	require.NoError(t, err)
}

func TestLots_UnknownLot(t *testing.T) {
	f := newFixture(t)

	_, err := f.eng.Lots.Get(f.ctx, "nope")
	assert.ErrorIs(t, err, core.ErrLotNotFound)
	_, err = f.eng.Lots.Quarantine(f.ctx, "nope", "why", "qa")
	assert.ErrorIs(t, err, core.ErrLotNotFound)
}

func TestLots_InspectionRequiredOnReceipt(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "SERUM", true)
	p.RequiresInspection = true
	require.NoError(t, f.eng.Catalog.UpsertProduct(f.ctx, p))

	lotID := f.receive(t, "SERUM", "6", core.LotSpec{})
	l := f.lot(t, lotID)
	assert.Equal(t, core.QualityPending, l.QualityStatus)
	assert.Equal(t, core.LotQuarantine, l.AvailabilityStatus)
	assert.Equal(t, core.HoldPendingInspection, l.HoldReason)

	_, err := f.eng.Lots.Release(f.ctx, lotID, "qa")
	require.ErrorIs(t, err, core.ErrInvalidTransition)
	lvl := f.level(t, "SERUM", "MAIN")
	requireDecimal(t, "6", lvl.OnHand)
	requireDecimal(t, "6", lvl.QuarantinedQuantity)

	_, err = f.eng.Allocator.Allocate(f.ctx, core.AllocationRequest{ProductID: "SERUM", WarehouseID: "MAIN", Quantity: d("1")})
	assert.ErrorIs(t, err, core.ErrInsufficientStock)
}

func TestLots_RestoredLotKeepsItsHold(t *testing.T) {
	tests := []struct {
		name       string
		hold       func(f *fixture, lotID string) error
		wantStatus core.AvailabilityStatus
		wantHold   string
	}{
		{
			name: "quarantined",
			hold: func(f *fixture, lotID string) error {
				_, err := f.eng.Lots.Quarantine(f.ctx, lotID, "supplier recall", "qa")
				return err
			},
			wantStatus: core.LotQuarantine,
			wantHold:   "supplier recall",
		},
		{
			name: "reserved",
			hold: func(f *fixture, lotID string) error {
				_, err := f.eng.Lots.Reserve(f.ctx, lotID, "SO-9", "sales")
				return err
			},
			wantStatus: core.LotReserved,
			wantHold:   "reserved for SO-9",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.product(t, "MILK", true)
			lotID := f.receive(t, "MILK", "10", core.LotSpec{})
			require.NoError(t, tt.hold(f, lotID))

			writeOff, err := f.eng.Quality.WriteOff(f.ctx, lotID, "spoiled", "qa")
			require.NoError(t, err)
			assert.Equal(t, core.LotDepleted, f.lot(t, lotID).AvailabilityStatus)

			_, err = f.eng.Journal.Reverse(f.ctx, writeOff, "qa", "write-off in error")
			require.NoError(t, err)

			l := f.lot(t, lotID)
			requireDecimal(t, "10", l.RemainingQuantity)
			assert.Equal(t, tt.wantStatus, l.AvailabilityStatus)
			assert.Equal(t, tt.wantHold, l.HoldReason)

			_, err = f.eng.Allocator.Allocate(f.ctx, core.AllocationRequest{ProductID: "MILK", WarehouseID: "MAIN", Quantity: d("5")})
			assert.ErrorIs(t, err, core.ErrInsufficientStock)
		})
	}
}

func TestLots_RestoredLotWithoutHoldIsAvailable(t *testing.T) {
	f := newFixture(t)
	f.product(t, "MILK", true)
	lotID := f.receive(t, "MILK", "10", core.LotSpec{})

	writeOff, err := f.eng.Quality.WriteOff(f.ctx, lotID, "spoiled", "qa")
	require.NoError(t, err)
	_, err = f.eng.Journal.Reverse(f.ctx, writeOff, "qa", "write-off in error")
	require.NoError(t, err)

	l := f.lot(t, lotID)
	assert.Equal(t, core.LotAvailable, l.AvailabilityStatus)
	assert.Empty(t, l.HoldReason)
}
