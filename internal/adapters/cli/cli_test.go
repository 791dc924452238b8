package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory-ledger/internal/adapters/cli"
	"inventory-ledger/internal/app"
	"inventory-ledger/internal/core"
	"inventory-ledger/internal/store/memory"
)

func newService(t *testing.T) app.ApplicationService {
	t.Helper()
	svc := app.NewAppService(core.NewEngine(memory.New(), core.Options{}), nil, nil)
	require.NoError(t, cli.Run(context.Background(), svc, []string{"seed", "-file", "../../seed/testdata/bakery.toml"}, nil, &bytes.Buffer{}))
	return svc
}

func run(t *testing.T, svc app.ApplicationService, args ...string) []byte {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, cli.Run(context.Background(), svc, args, strings.NewReader(""), &out))
	return out.Bytes()
}

func TestRun_ReceiveThenLevels(t *testing.T) {
	svc := newService(t)

	var receipt core.ReceiptResult
	require.NoError(t, json.Unmarshal(run(t, svc,
		"receive", "-product", "FLOUR", "-warehouse", "MAIN", "-qty", "120", "-ordered", "100",
		"-expiry", "2027-03-01", "-receipt", "GR-9", "-actor", "ana"), &receipt))
	assert.Len(t, receipt.MovementIDs, 2)
	assert.Equal(t, "20", receipt.Excess.String())
	require.NotEmpty(t, receipt.HeldLotID)

	var levels app.LevelsResult
	require.NoError(t, json.Unmarshal(run(t, svc, "levels"), &levels))
	require.Len(t, levels.Levels, 1)
	assert.Equal(t, "120", levels.Levels[0].Level.OnHand.String())
	assert.Equal(t, "20", levels.Levels[0].Level.QuarantinedQuantity.String())

	var lot core.Lot
	require.NoError(t, json.Unmarshal(run(t, svc, "approve", "-lot", receipt.HeldLotID), &lot))
	assert.Equal(t, core.LotAvailable, lot.AvailabilityStatus)
}

func TestRun_ApproveUntrackedReceipt(t *testing.T) {
	svc := newService(t)

	var receipt core.ReceiptResult
	require.NoError(t, json.Unmarshal(run(t, svc,
		"receive", "-product", "SEEDS", "-warehouse", "MAIN", "-qty", "30", "-ordered", "25", "-receipt", "GR-5"), &receipt))
	require.NotEmpty(t, receipt.HoldID)

	err := cli.Run(context.Background(), svc, []string{"issue", "-product", "SEEDS", "-warehouse", "MAIN", "-qty", "30"}, strings.NewReader(""), &bytes.Buffer{})
	require.ErrorIs(t, err, core.ErrInsufficientStock)

	var released app.ReservationsResult
	require.NoError(t, json.Unmarshal(run(t, svc, "approve", "-receipt", "GR-5"), &released))
	require.Len(t, released.Reservations, 1)
	assert.Equal(t, "5", released.Reservations[0].Quantity.String())

	run(t, svc, "issue", "-product", "SEEDS", "-warehouse", "MAIN", "-qty", "30")
}

func TestRun_Explode(t *testing.T) {
	svc := newService(t)

	var explosion core.Explosion
	require.NoError(t, json.Unmarshal(run(t, svc, "explode", "-product", "bread", "-qty", "10"), &explosion))
	q := explosion.Quantities()
	assert.Equal(t, "6", q["FLOUR"].String())
	assert.Equal(t, "0.2", q["YEAST"].String())
}

func TestRun_Errors(t *testing.T) {
	svc := newService(t)

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{"no command", nil, cli.ErrUsage},
		{"unknown command", []string{"frobnicate"}, cli.ErrUsage},
		{"missing flags", []string{"issue", "-product", "FLOUR"}, cli.ErrUsage},
		{"bad decimal", []string{"issue", "-product", "FLOUR", "-warehouse", "MAIN", "-qty", "lots"}, cli.ErrUsage},
		{"bad date", []string{"receive", "-product", "FLOUR", "-warehouse", "MAIN", "-qty", "1", "-expiry", "soon"}, cli.ErrUsage},
		{"insufficient stock", []string{"issue", "-product", "FLOUR", "-warehouse", "MAIN", "-qty", "1"}, core.ErrInsufficientStock},
		{"migrate without database", []string{"migrate"}, app.ErrNotConfigured},
		{"approve without target", []string{"approve"}, cli.ErrUsage},
		{"approve both targets", []string{"approve", "-lot", "L1", "-receipt", "GR-1"}, cli.ErrUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cli.Run(context.Background(), svc, tt.args, strings.NewReader(""), &bytes.Buffer{})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRun_ApplyCountFromStdin(t *testing.T) {
	svc := newService(t)
	run(t, svc, "receive", "-product", "SEEDS", "-warehouse", "MAIN", "-qty", "12")

	proposal := `{"lines":[{"product_id":"seeds","warehouse_id":"MAIN","counted_quantity":"9","note":"spill"}],"confidence":1,"reasoning":"clear"}`
	var out bytes.Buffer
	require.NoError(t, cli.Run(context.Background(), svc, []string{"apply-count", "-count-id", "PC-1"}, strings.NewReader(proposal), &out))

	var res app.CountSheetResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, 1, res.Recorded)
	require.NotNil(t, res.Lines[0].Result)
	assert.Equal(t, "-3", res.Lines[0].Result.Delta.String())
}
