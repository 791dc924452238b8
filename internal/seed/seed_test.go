package seed_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory-ledger/internal/core"
	"inventory-ledger/internal/seed"
	"inventory-ledger/internal/store/memory"
)

func TestLoad_Bakery(t *testing.T) {
	f, err := seed.Load(filepath.Join("testdata", "bakery.toml"))
	require.NoError(t, err)

	require.Len(t, f.Warehouses, 2)
	assert.True(t, f.Warehouses[1].MinCelsius.Set)
	assert.True(t, f.Warehouses[1].MaxCelsius.Value.Equal(decimal.NewFromInt(8)))
	assert.False(t, f.Warehouses[0].MinCelsius.Set)

	require.Len(t, f.BOMs, 2)
	assert.True(t, f.BOMs[1].Components[1].PerUnit.Value.Equal(decimal.RequireFromString("0.05")))
	assert.True(t, f.BOMs[1].Components[1].Optional)
	assert.True(t, f.Suppliers[0].MinOrderQty.Value.Equal(decimal.NewFromInt(100)))
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := seed.Parse(`
[[products]]
id = "X"
lot_traked = true
`)
	require.Error(t, err)
	assert.ErrorContains(t, err, "lot_traked")
}

func TestParse_RejectsBadQuantity(t *testing.T) {
	_, err := seed.Parse(`
[[products]]
id = "X"
unit_cost = "cheap"
`)
	assert.Error(t, err)
}

func TestApply_IsRepeatable(t *testing.T) {
	ctx := context.Background()
	eng := core.NewEngine(memory.New(), core.Options{})
	f, err := seed.Load(filepath.Join("testdata", "bakery.toml"))
	require.NoError(t, err)

	sum, err := f.Apply(ctx, eng)
	require.NoError(t, err)
	assert.Equal(t, seed.Summary{Warehouses: 2, Products: 5, SupplierItems: 1, BOMs: 2, Thresholds: 1}, sum)

	again, err := f.Apply(ctx, eng)
	require.NoError(t, err)
	assert.Zero(t, again.BOMs)

	versions, err := eng.BOMs.Versions(ctx, "BREAD")
	require.NoError(t, err)
	assert.Len(t, versions, 1)

	exp, err := eng.BOMs.Explode(ctx, "BREAD", decimal.NewFromInt(10))
	require.NoError(t, err)
	q := exp.Quantities()
	assert.True(t, q["FLOUR"].Equal(decimal.NewFromInt(6)), "flour %s", q["FLOUR"])
	assert.True(t, q["YEAST"].Equal(decimal.RequireFromString("0.2")))

	lvl, err := eng.Stock.GetLevel(ctx, "FLOUR", "MAIN")
	require.NoError(t, err)
	require.NotNil(t, lvl.ReorderPoint)
	assert.True(t, lvl.ReorderPoint.Equal(decimal.NewFromInt(80)))

	whs, err := eng.Catalog.Warehouses(ctx)
	require.NoError(t, err)
	require.Len(t, whs, 2)
	assert.Equal(t, "COLD", whs[0].ID)
	require.NotNil(t, whs[0].TemperatureBand)
}

func TestApply_NormalizesCodes(t *testing.T) {
	ctx := context.Background()
	eng := core.NewEngine(memory.New(), core.Options{})
	f, err := seed.Parse(`
[[warehouses]]
id = " main "
can_receive = true
can_ship = true

[[products]]
id = "flour"
unit = "kg"

[[products]]
id = "dough"
unit = "kg"
lot_tracked = true

[[boms]]
product = "dough"
  [[boms.components]]
  product = "flour"
  per_unit = "0.6"

[[thresholds]]
product = "flour"
warehouse = "main"
min = 10
`)
	require.NoError(t, err)
	assert.Equal(t, "MAIN", f.Warehouses[0].ID)
	assert.Equal(t, "FLOUR", f.BOMs[0].Components[0].Product)

	_, err = f.Apply(ctx, eng)
	require.NoError(t, err)

	exp, err := eng.BOMs.Explode(ctx, "DOUGH", decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.True(t, exp.Quantities()["FLOUR"].Equal(decimal.NewFromInt(6)))

	lvl, err := eng.Stock.GetLevel(ctx, "FLOUR", "MAIN")
	require.NoError(t, err)
	assert.True(t, lvl.MinStockAlert.Equal(decimal.NewFromInt(10)))
}
