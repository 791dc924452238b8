package core_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory-ledger/internal/core"
)

func comp(productID, qty string) core.BOMComponent {
	return core.BOMComponent{ProductID: productID, QuantityPerUnit: d(qty)}
}

func active(productID string, comps ...core.BOMComponent) core.BillOfMaterials {
	return core.BillOfMaterials{ID: "bom-" + productID, ProductID: productID, Version: 1, Status: core.BOMActive, Components: comps}
}

func (f *fixture) activeBOM(t *testing.T, productID string, comps ...core.BOMComponent) core.BillOfMaterials {
	t.Helper()
	bom, err := f.eng.BOMs.SaveBOM(f.ctx, core.BOMInput{ProductID: productID, Components: comps})
	require.NoError(t, err)
	bom, err = f.eng.BOMs.Activate(f.ctx, bom.ID)
	require.NoError(t, err)
	return bom
}

func TestExplode_AccumulatesThroughSemiFinished(t *testing.T) {
	g := core.NewBOMGraph([]core.BillOfMaterials{
		active("P", comp("A", "2"), comp("B", "1")),
		active("A", comp("C", "3")),
	})

	exp, err := g.Explode("P", d("10"))
	require.NoError(t, err)

	got := exp.Quantities()
	require.Len(t, got, 3)
	requireDecimal(t, "20", got["A"])
	requireDecimal(t, "10", got["B"])
	requireDecimal(t, "60", got["C"])

	assert.False(t, exp.Requirements["A"].Leaf)
	assert.True(t, exp.Requirements["C"].Leaf)
	assert.Equal(t, 2, exp.Requirements["C"].MinLevel)

	raw := exp.RawMaterials()
	require.Len(t, raw, 2)
	assert.Equal(t, "B", raw[0].ProductID)
	assert.Equal(t, "C", raw[1].ProductID)
}

func TestExplode_SharedComponentAccumulates(t *testing.T) {
	g := core.NewBOMGraph([]core.BillOfMaterials{
		active("P", comp("A", "1"), comp("S", "2")),
		active("S", comp("A", "4")),
	})

	exp, err := g.Explode("P", d("3"))
	require.NoError(t, err)
	// 3*1 directly plus 3*2*4 through S.
	requireDecimal(t, "27", exp.Quantities()["A"])
	assert.Equal(t, 1, exp.Requirements["A"].MinLevel)
}

func TestExplode_OptionalComponentsAreFlagged(t *testing.T) {
	g := core.NewBOMGraph([]core.BillOfMaterials{
		active("P",
			comp("A", "1"),
			core.BOMComponent{ProductID: "GIFTBOX", QuantityPerUnit: d("1"), IsOptional: true},
		),
	})

	exp, err := g.Explode("P", d("5"))
	require.NoError(t, err)

	box := exp.Requirements["GIFTBOX"]
	require.NotNil(t, box)
	requireDecimal(t, "5", box.Quantity)
	assert.True(t, box.Optional())
	assert.True(t, box.MandatoryQuantity.IsZero())

	raw := exp.RawMaterials()
	require.Len(t, raw, 1)
	assert.Equal(t, "A", raw[0].ProductID)
}

func TestExplode_DetectsCycle(t *testing.T) {
	g := core.NewBOMGraph([]core.BillOfMaterials{
		active("P", comp("A", "1")),
		active("A", comp("B", "1")),
		active("B", comp("P", "1")),
	})

	_, err := g.Explode("P", d("1"))
	require.ErrorIs(t, err, core.ErrCircularBOM)

	var ce *core.CycleError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, []string{"P", "A", "B", "P"}, ce.Path)
}

func TestExplode_RejectsBadInput(t *testing.T) {
	g := core.NewBOMGraph([]core.BillOfMaterials{active("P", comp("A", "1"))})

	tests := []struct {
		name    string
		product string
		qty     string
		wantErr error
	}{
		{"zero quantity", "P", "0", core.ErrInvalidQuantity},
		{"negative quantity", "P", "-1", core.ErrInvalidQuantity},
		{"no recipe", "A", "1", core.ErrUnknownReference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Explode(tt.product, d(tt.qty))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTree_PerLevel(t *testing.T) {
	g := core.NewBOMGraph([]core.BillOfMaterials{
		active("P", comp("A", "2"), comp("B", "1")),
		active("A", comp("C", "3")),
	})

	root, err := g.Tree("P", d("10"))
	require.NoError(t, err)
	assert.Equal(t, 0, root.Level)
	require.Len(t, root.Children, 2)

	a := root.Children[0]
	assert.Equal(t, "A", a.ProductID)
	requireDecimal(t, "20", a.Quantity)
	require.Len(t, a.Children, 1)
	assert.Equal(t, 2, a.Children[0].Level)
	requireDecimal(t, "60", a.Children[0].Quantity)
}

func TestBOMService_SaveAndActivateVersions(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"P", "A", "B"} {
		f.product(t, id, false)
	}

	v1 := f.activeBOM(t, "P", comp("A", "2"))
	assert.Equal(t, 1, v1.Version)
	assert.Equal(t, core.BOMActive, v1.Status)

	v2, err := f.eng.BOMs.SaveBOM(f.ctx, core.BOMInput{ProductID: "P", Components: []core.BOMComponent{comp("B", "1")}})
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, core.BOMDraft, v2.Status)

	_, err = f.eng.BOMs.Activate(f.ctx, v2.ID)
	require.NoError(t, err)

	versions, err := f.eng.BOMs.Versions(f.ctx, "P")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, core.BOMObsolete, versions[0].Status)
	assert.Equal(t, core.BOMActive, versions[1].Status)

	exp, err := f.eng.BOMs.Explode(f.ctx, "P", d("4"))
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, keysOf(exp.Quantities()))
}

func TestBOMService_ActivationRejectsCycle(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"P", "A"} {
		f.product(t, id, false)
	}
	f.activeBOM(t, "P", comp("A", "1"))

	back, err := f.eng.BOMs.SaveBOM(f.ctx, core.BOMInput{ProductID: "A", Components: []core.BOMComponent{comp("P", "1")}})
	require.NoError(t, err)

	_, err = f.eng.BOMs.Activate(f.ctx, back.ID)
	require.ErrorIs(t, err, core.ErrCircularBOM)

	got, err := f.eng.BOMs.Get(f.ctx, back.ID)
	require.NoError(t, err)
	assert.Equal(t, core.BOMDraft, got.Status)
}

func TestBOMService_SaveValidation(t *testing.T) {
	f := newFixture(t)
	f.product(t, "P", false)
	f.product(t, "A", false)

	tests := []struct {
		name    string
		input   core.BOMInput
		wantErr error
	}{
		{"no components", core.BOMInput{ProductID: "P"}, core.ErrInvalidArgument},
		{"self reference", core.BOMInput{ProductID: "P", Components: []core.BOMComponent{comp("P", "1")}}, core.ErrCircularBOM},
		{"zero quantity", core.BOMInput{ProductID: "P", Components: []core.BOMComponent{comp("A", "0")}}, core.ErrInvalidQuantity},
		{"duplicate line", core.BOMInput{ProductID: "P", Components: []core.BOMComponent{comp("A", "1"), comp("A", "2")}}, core.ErrInvalidArgument},
		{"unknown component", core.BOMInput{ProductID: "P", Components: []core.BOMComponent{comp("GHOST", "1")}}, core.ErrUnknownReference},
		{"unknown product", core.BOMInput{ProductID: "GHOST", Components: []core.BOMComponent{comp("A", "1")}}, core.ErrUnknownReference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.eng.BOMs.SaveBOM(f.ctx, tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func keysOf[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
