package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory-ledger/internal/core"
)

func inspectedProduct(t *testing.T, f *fixture, id string) {
	t.Helper()
	p := f.product(t, id, true)
	p.RequiresInspection = true
	require.NoError(t, f.eng.Catalog.UpsertProduct(f.ctx, p))
}

func TestQuality_InspectionOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		results     []core.InspectionResult
		wantQuality core.QualityStatus
		wantStatus  core.AvailabilityStatus
		wantHold    string
	}{
		{
			name:        "passed releases",
			results:     []core.InspectionResult{core.InspectionPassed},
			wantQuality: core.QualityApproved,
			wantStatus:  core.LotAvailable,
		},
		{
			name:        "failed rejects",
			results:     []core.InspectionResult{core.InspectionFailed},
			wantQuality: core.QualityRejected,
			wantStatus:  core.LotQuarantine,
			wantHold:    core.HoldRejected,
		},
		{
			name:        "conditional then passed",
			results:     []core.InspectionResult{core.InspectionConditional, core.InspectionPassed},
			wantQuality: core.QualityApproved,
			wantStatus:  core.LotAvailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			inspectedProduct(t, f, "SERUM")
			lotID := f.receive(t, "SERUM", "8", core.LotSpec{})

			var (
				l   core.Lot
				err error
			)
			for _, r := range tt.results {
				l, err = f.eng.Quality.RecordInspection(f.ctx, lotID, r, "inspector", "")
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantQuality, l.QualityStatus)
			assert.Equal(t, tt.wantStatus, l.AvailabilityStatus)
			assert.Equal(t, tt.wantHold, l.HoldReason)
		})
	}
}

func TestQuality_DecidedLotsAreFinal(t *testing.T) {
	f := newFixture(t)
	inspectedProduct(t, f, "SERUM")
	lotID := f.receive(t, "SERUM", "8", core.LotSpec{})

	_, err := f.eng.Quality.RecordInspection(f.ctx, lotID, core.InspectionFailed, "inspector", "contaminated")
	require.NoError(t, err)

	_, err = f.eng.Quality.RecordInspection(f.ctx, lotID, core.InspectionPassed, "inspector", "")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	_, err = f.eng.Lots.Release(f.ctx, lotID, "qa")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	_, err = f.eng.Quality.RecordInspection(f.ctx, lotID, "maybe", "inspector", "")
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestQuality_WriteOffRejectedLot(t *testing.T) {
	f := newFixture(t)
	inspectedProduct(t, f, "SERUM")
	lotID := f.receive(t, "SERUM", "8", core.LotSpec{})
	_, err := f.eng.Quality.RecordInspection(f.ctx, lotID, core.InspectionFailed, "inspector", "")
	require.NoError(t, err)

	_, err = f.eng.Quality.WriteOff(f.ctx, lotID, "", "qa")
	require.ErrorIs(t, err, core.ErrInvalidQuantity)

	id, err := f.eng.Quality.WriteOff(f.ctx, lotID, "destroyed per QA-17", "qa")
	require.NoError(t, err)
	assert.Positive(t, id)

	l := f.lot(t, lotID)
	assert.Equal(t, core.LotDepleted, l.AvailabilityStatus)
	assert.True(t, l.RemainingQuantity.IsZero())

	lvl := f.level(t, "SERUM", "MAIN")
	assert.True(t, lvl.OnHand.IsZero())
	assert.True(t, lvl.QuarantinedQuantity.IsZero())

	history, err := f.eng.Journal.History(f.ctx, core.MovementFilter{LotID: lotID})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, core.DocWriteOff, history[1].Document.Kind)
	requireDecimal(t, "-8", history[1].Quantity)

	_, err = f.eng.Quality.WriteOff(f.ctx, lotID, "twice", "qa")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}
