// Package seed loads master data (warehouses, products, supplier terms,
// recipes and alert thresholds) from a TOML file into the engine.
package seed

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"inventory-ledger/internal/core"
	"inventory-ledger/internal/logger"
)

// Quantity decodes a TOML string, integer or float into a decimal. Strings
// are preferred for exact values such as "0.1".
type Quantity struct {
	Value decimal.Decimal
	Set   bool
}

func (q *Quantity) UnmarshalTOML(v any) error {
	var err error
	switch x := v.(type) {
	case string:
		q.Value, err = decimal.NewFromString(strings.TrimSpace(x))
	case int64:
		q.Value = decimal.NewFromInt(x)
	case float64:
		q.Value = decimal.NewFromFloat(x)
	default:
		return fmt.Errorf("quantity: unsupported TOML value %T", v)
	}
	if err != nil {
		return fmt.Errorf("quantity: %w", err)
	}
	q.Set = true
	return nil
}

func (q Quantity) ptr() *decimal.Decimal {
	if !q.Set {
		return nil
	}
	d := q.Value
	return &d
}

type Warehouse struct {
	ID         string   `toml:"id"`
	Name       string   `toml:"name"`
	CanReceive bool     `toml:"can_receive"`
	CanShip    bool     `toml:"can_ship"`
	MinCelsius Quantity `toml:"min_celsius"`
	MaxCelsius Quantity `toml:"max_celsius"`
}

type Product struct {
	ID                 string   `toml:"id"`
	Name               string   `toml:"name"`
	Unit               string   `toml:"unit"`
	UnitCost           Quantity `toml:"unit_cost"`
	LotTracked         bool     `toml:"lot_tracked"`
	RequiresInspection bool     `toml:"requires_inspection"`
}

type SupplierItem struct {
	Supplier     string   `toml:"supplier"`
	Product      string   `toml:"product"`
	UnitPrice    Quantity `toml:"unit_price"`
	LeadTimeDays int      `toml:"lead_time_days"`
	MinOrderQty  Quantity `toml:"min_order_qty"`
	Preferred    bool     `toml:"preferred"`
}

type Component struct {
	Product  string   `toml:"product"`
	PerUnit  Quantity `toml:"per_unit"`
	Optional bool     `toml:"optional"`
}

type BOM struct {
	Product    string      `toml:"product"`
	Components []Component `toml:"components"`
}

type Threshold struct {
	Product         string   `toml:"product"`
	Warehouse       string   `toml:"warehouse"`
	Min             Quantity `toml:"min"`
	Max             Quantity `toml:"max"`
	ReorderPoint    Quantity `toml:"reorder_point"`
	ReorderQuantity Quantity `toml:"reorder_quantity"`
}

type File struct {
	Warehouses []Warehouse    `toml:"warehouses"`
	Products   []Product      `toml:"products"`
	Suppliers  []SupplierItem `toml:"suppliers"`
	BOMs       []BOM          `toml:"boms"`
	Thresholds []Threshold    `toml:"thresholds"`
}

// Parse decodes a seed document. Unknown keys are rejected so a typo does
// not silently drop a setting.
func Parse(data string) (*File, error) {
	var f File
	md, err := toml.Decode(data, &f)
	if err != nil {
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown seed keys: %s", strings.Join(keys, ", "))
	}
	f.normalize()
	return &f, nil
}

// normalize brings every product and warehouse reference to the catalog's
// code form.
func (f *File) normalize() {
	for i := range f.Warehouses {
		f.Warehouses[i].ID = core.NormalizeID(f.Warehouses[i].ID)
	}
	for i := range f.Products {
		f.Products[i].ID = core.NormalizeID(f.Products[i].ID)
	}
	for i := range f.Suppliers {
		f.Suppliers[i].Product = core.NormalizeID(f.Suppliers[i].Product)
	}
	for i := range f.BOMs {
		b := &f.BOMs[i]
		b.Product = core.NormalizeID(b.Product)
		for j := range b.Components {
			b.Components[j].Product = core.NormalizeID(b.Components[j].Product)
		}
	}
	for i := range f.Thresholds {
		f.Thresholds[i].Product = core.NormalizeID(f.Thresholds[i].Product)
		f.Thresholds[i].Warehouse = core.NormalizeID(f.Thresholds[i].Warehouse)
	}
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	f, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

type Summary struct {
	Warehouses    int `json:"warehouses"`
	Products      int `json:"products"`
	SupplierItems int `json:"supplier_items"`
	BOMs          int `json:"boms"`
	Thresholds    int `json:"thresholds"`
}

// Apply upserts the file into the engine. Recipes whose components equal
// the product's active bill are left alone, so applying a file twice
// creates no new versions.
func (f *File) Apply(ctx context.Context, eng *core.Engine) (Summary, error) {
	const op = "seed.File.Apply"

	var sum Summary
	for _, w := range f.Warehouses {
		cw := core.Warehouse{ID: w.ID, Name: w.Name, CanReceive: w.CanReceive, CanShip: w.CanShip}
		if w.MinCelsius.Set && w.MaxCelsius.Set {
			cw.TemperatureBand = &core.TemperatureBand{MinCelsius: w.MinCelsius.Value, MaxCelsius: w.MaxCelsius.Value}
		}
		if err := eng.Catalog.UpsertWarehouse(ctx, cw); err != nil {
			return sum, err
		}
		sum.Warehouses++
	}
	for _, p := range f.Products {
		err := eng.Catalog.UpsertProduct(ctx, core.Product{
			ID:                 p.ID,
			Name:               p.Name,
			UnitOfMeasure:      p.Unit,
			UnitCost:           p.UnitCost.Value,
			LotTracked:         p.LotTracked,
			RequiresInspection: p.RequiresInspection,
		})
		if err != nil {
			return sum, err
		}
		sum.Products++
	}
	for _, si := range f.Suppliers {
		err := eng.Catalog.UpsertSupplierItem(ctx, core.SupplierItem{
			SupplierID:   si.Supplier,
			ProductID:    si.Product,
			UnitPrice:    si.UnitPrice.Value,
			LeadTimeDays: si.LeadTimeDays,
			MinOrderQty:  si.MinOrderQty.Value,
			IsPreferred:  si.Preferred,
		})
		if err != nil {
			return sum, err
		}
		sum.SupplierItems++
	}

	for _, b := range f.BOMs {
		created, err := applyBOM(ctx, eng, b)
		if err != nil {
			return sum, fmt.Errorf("bill of materials for %s: %w", b.Product, err)
		}
		if created {
			sum.BOMs++
		}
	}

	for _, t := range f.Thresholds {
		_, err := eng.Stock.SetThresholds(ctx, t.Product, t.Warehouse, core.Thresholds{
			MinStockAlert:   t.Min.Value,
			MaxStockAlert:   t.Max.ptr(),
			ReorderPoint:    t.ReorderPoint.ptr(),
			ReorderQuantity: t.ReorderQuantity.Value,
		})
		if err != nil {
			return sum, err
		}
		sum.Thresholds++
	}

	logger.Info(ctx, "seed applied",
		logger.String("op", op),
		logger.Int("warehouses", sum.Warehouses),
		logger.Int("products", sum.Products),
		logger.Int("boms", sum.BOMs),
		logger.Int("thresholds", sum.Thresholds))
	return sum, nil
}

func applyBOM(ctx context.Context, eng *core.Engine, b BOM) (bool, error) {
	comps := make([]core.BOMComponent, len(b.Components))
	for i, c := range b.Components {
		comps[i] = core.BOMComponent{ProductID: c.Product, QuantityPerUnit: c.PerUnit.Value, IsOptional: c.Optional}
	}

	versions, err := eng.BOMs.Versions(ctx, b.Product)
	if err != nil {
		return false, err
	}
	for _, v := range versions {
		if v.Status == core.BOMActive && sameComponents(v.Components, comps) {
			return false, nil
		}
	}

	draft, err := eng.BOMs.SaveBOM(ctx, core.BOMInput{ProductID: b.Product, Components: comps})
	if err != nil {
		return false, err
	}
	if _, err := eng.BOMs.Activate(ctx, draft.ID); err != nil {
		return false, err
	}
	return true, nil
}

func sameComponents(a, b []core.BOMComponent) bool {
	key := func(cs []core.BOMComponent) []string {
		out := make([]string, len(cs))
		for i, c := range cs {
			out[i] = fmt.Sprintf("%s|%s|%t", c.ProductID, c.QuantityPerUnit.String(), c.IsOptional)
		}
		sort.Strings(out)
		return out
	}
	return slices.Equal(key(a), key(b))
}
