package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"inventory-ledger/internal/core"
)

type catalogRepo struct{ t *tx }

var (
	productColumns   = []string{"id", "name", "unit_of_measure", "unit_cost", "lot_tracked", "requires_inspection"}
	warehouseColumns = []string{"id", "name", "can_receive", "can_ship", "min_celsius", "max_celsius"}
	supplierColumns  = []string{"supplier_id", "product_id", "unit_price", "lead_time_days", "min_order_qty", "is_preferred"}
)

func scanProduct(row pgx.Row) (core.Product, error) {
	var p core.Product
	err := row.Scan(&p.ID, &p.Name, &p.UnitOfMeasure, &p.UnitCost, &p.LotTracked, &p.RequiresInspection)
	return p, err
}

func scanWarehouse(row pgx.Row) (core.Warehouse, error) {
	var (
		w        core.Warehouse
		minC, maxC decimal.NullDecimal
	)
	if err := row.Scan(&w.ID, &w.Name, &w.CanReceive, &w.CanShip, &minC, &maxC); err != nil {
		return w, err
	}
	if minC.Valid && maxC.Valid {
		w.TemperatureBand = &core.TemperatureBand{MinCelsius: minC.Decimal, MaxCelsius: maxC.Decimal}
	}
	return w, nil
}

func scanSupplierItem(row pgx.Row) (core.SupplierItem, error) {
	var si core.SupplierItem
	err := row.Scan(&si.SupplierID, &si.ProductID, &si.UnitPrice, &si.LeadTimeDays, &si.MinOrderQty, &si.IsPreferred)
	return si, err
}

func (r catalogRepo) Product(ctx context.Context, id string) (core.Product, error) {
	q := r.t.sb.Select(productColumns...).From("products").Where("id = ?", id)
	p, err := one(ctx, r.t, q, scanProduct)
	if err != nil {
		return core.Product{}, notFound(err, core.ErrNotFound, "product %s", id)
	}
	return p, nil
}

func (r catalogRepo) Warehouse(ctx context.Context, id string) (core.Warehouse, error) {
	q := r.t.sb.Select(warehouseColumns...).From("warehouses").Where("id = ?", id)
	w, err := one(ctx, r.t, q, scanWarehouse)
	if err != nil {
		return core.Warehouse{}, notFound(err, core.ErrNotFound, "warehouse %s", id)
	}
	return w, nil
}

func (r catalogRepo) Products(ctx context.Context) ([]core.Product, error) {
	return collect(ctx, r.t, r.t.sb.Select(productColumns...).From("products").OrderBy("id"), scanProduct)
}

func (r catalogRepo) Warehouses(ctx context.Context) ([]core.Warehouse, error) {
	return collect(ctx, r.t, r.t.sb.Select(warehouseColumns...).From("warehouses").OrderBy("id"), scanWarehouse)
}

func (r catalogRepo) SupplierItems(ctx context.Context, productID string) ([]core.SupplierItem, error) {
	q := r.t.sb.Select(supplierColumns...).From("supplier_items").
		Where("product_id = ?", productID).
		OrderBy("supplier_id")
	return collect(ctx, r.t, q, scanSupplierItem)
}

func (r catalogRepo) UpsertProduct(ctx context.Context, p core.Product) error {
	q := r.t.sb.Insert("products").Columns(productColumns...).
		Values(p.ID, p.Name, p.UnitOfMeasure, p.UnitCost, p.LotTracked, p.RequiresInspection).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			unit_of_measure = EXCLUDED.unit_of_measure,
			unit_cost = EXCLUDED.unit_cost,
			lot_tracked = EXCLUDED.lot_tracked,
			requires_inspection = EXCLUDED.requires_inspection`)
	_, err := r.t.exec(ctx, q)
	return err
}

func (r catalogRepo) UpsertWarehouse(ctx context.Context, w core.Warehouse) error {
	var minC, maxC decimal.NullDecimal
	if b := w.TemperatureBand; b != nil {
		minC, maxC = decimal.NewNullDecimal(b.MinCelsius), decimal.NewNullDecimal(b.MaxCelsius)
	}
	q := r.t.sb.Insert("warehouses").Columns(warehouseColumns...).
		Values(w.ID, w.Name, w.CanReceive, w.CanShip, minC, maxC).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			can_receive = EXCLUDED.can_receive,
			can_ship = EXCLUDED.can_ship,
			min_celsius = EXCLUDED.min_celsius,
			max_celsius = EXCLUDED.max_celsius`)
	_, err := r.t.exec(ctx, q)
	return err
}

func (r catalogRepo) UpsertSupplierItem(ctx context.Context, si core.SupplierItem) error {
	q := r.t.sb.Insert("supplier_items").Columns(supplierColumns...).
		Values(si.SupplierID, si.ProductID, si.UnitPrice, si.LeadTimeDays, si.MinOrderQty, si.IsPreferred).
		Suffix(`ON CONFLICT (supplier_id, product_id) DO UPDATE SET
			unit_price = EXCLUDED.unit_price,
			lead_time_days = EXCLUDED.lead_time_days,
			min_order_qty = EXCLUDED.min_order_qty,
			is_preferred = EXCLUDED.is_preferred`)
	_, err := r.t.exec(ctx, q)
	return err
}
