package repl_test

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory-ledger/internal/adapters/repl"
	"inventory-ledger/internal/ai"
	"inventory-ledger/internal/app"
	"inventory-ledger/internal/core"
	"inventory-ledger/internal/store/memory"
)

type fixedInterpreter struct{ sheets []string }

func (f *fixedInterpreter) InterpretCountSheet(_ context.Context, sheet, _ string) (*ai.CountProposal, error) {
	f.sheets = append(f.sheets, sheet)
	return &ai.CountProposal{
		Lines:      []ai.CountLine{{ProductID: "SEEDS", WarehouseID: "MAIN", CountedQuantity: "4"}},
		Confidence: 0.95,
		Reasoning:  "one line",
	}, nil
}

func setup(t *testing.T) (app.ApplicationService, *fixedInterpreter) {
	t.Helper()
	interp := &fixedInterpreter{}
	svc := app.NewAppService(core.NewEngine(memory.New(), core.Options{}), interp, nil)
	ctx := context.Background()
	_, err := svc.Seed(ctx, "../../seed/testdata/bakery.toml")
	require.NoError(t, err)
	_, err = svc.Receive(ctx, app.ReceiveRequest{ProductID: "SEEDS", WarehouseID: "MAIN", Quantity: decimal.NewFromInt(5)})
	require.NoError(t, err)
	return svc, interp
}

func runScript(svc app.ApplicationService, lines ...string) string {
	var out bytes.Buffer
	in := bufio.NewReader(strings.NewReader(strings.Join(lines, "\n") + "\n"))
	repl.Run(context.Background(), svc, in, &out)
	return out.String()
}

func TestRun_SlashCommands(t *testing.T) {
	svc, _ := setup(t)
	out := runScript(svc, "/levels", "/explode bread 10", "/nope", "/exit")

	assert.Contains(t, out, "STOCK LEVELS")
	assert.Contains(t, out, "SEEDS")
	assert.Contains(t, out, "BREAD x 10 requires:")
	assert.Contains(t, out, "Unknown command: /nope")
	assert.Contains(t, out, "Goodbye!")
}

func TestRun_CountSheetNeedsConfirmation(t *testing.T) {
	svc, interp := setup(t)

	out := runScript(svc, "seeds main 4", "n")
	assert.Contains(t, out, "Cancelled.")
	assert.Equal(t, "5", seedsOnHand(t, svc))

	out = runScript(svc, "/count", "seeds main 4", "", "done", "yes")
	assert.Contains(t, out, "1 recorded, 0 failed")
	assert.Equal(t, []string{"seeds main 4", "seeds main 4"}, interp.sheets)

	assert.Equal(t, "4", seedsOnHand(t, svc))
}

func seedsOnHand(t *testing.T, svc app.ApplicationService) string {
	t.Helper()
	res, err := svc.ListLevels(context.Background())
	require.NoError(t, err)
	for _, l := range res.Levels {
		if l.Level.ProductID == "SEEDS" {
			return l.Level.OnHand.String()
		}
	}
	t.Fatal("no SEEDS level")
	return ""
}
