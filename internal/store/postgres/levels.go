package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"inventory-ledger/internal/core"
)

type levelRepo struct{ t *tx }

var levelColumns = []string{
	"product_id", "warehouse_id", "on_hand", "reserved", "available", "quarantined_quantity",
	"expired_quantity", "min_stock_alert", "max_stock_alert", "reorder_point", "reorder_quantity",
	"last_movement_id", "updated_at",
}

func scanLevel(row pgx.Row) (core.StockLevel, error) {
	var (
		l                 core.StockLevel
		maxAlert, reorder decimal.NullDecimal
	)
	err := row.Scan(
		&l.ProductID, &l.WarehouseID, &l.OnHand, &l.Reserved, &l.Available, &l.QuarantinedQuantity,
		&l.ExpiredQuantity, &l.MinStockAlert, &maxAlert, &reorder, &l.ReorderQuantity,
		&l.LastMovementID, &l.UpdatedAt,
	)
	if err != nil {
		return l, err
	}
	l.MaxStockAlert = decimalPtr(maxAlert)
	l.ReorderPoint = decimalPtr(reorder)
	l.UpdatedAt = l.UpdatedAt.UTC()
	return l, nil
}

func (r levelRepo) Get(ctx context.Context, productID, warehouseID string) (core.StockLevel, error) {
	q := r.t.sb.Select(levelColumns...).From("stock_levels").
		Where("product_id = ? AND warehouse_id = ?", productID, warehouseID)
	l, err := one(ctx, r.t, q, scanLevel)
	if err != nil {
		return core.StockLevel{}, notFound(err, core.ErrNotFound, "level %s@%s", productID, warehouseID)
	}
	return l, nil
}

func (r levelRepo) List(ctx context.Context) ([]core.StockLevel, error) {
	q := r.t.sb.Select(levelColumns...).From("stock_levels").OrderBy("product_id", "warehouse_id")
	return collect(ctx, r.t, q, scanLevel)
}

func (r levelRepo) Save(ctx context.Context, l core.StockLevel) error {
	q := r.t.sb.Insert("stock_levels").Columns(levelColumns...).
		Values(
			l.ProductID, l.WarehouseID, l.OnHand, l.Reserved, l.Available, l.QuarantinedQuantity,
			l.ExpiredQuantity, l.MinStockAlert, nullDecimal(l.MaxStockAlert), nullDecimal(l.ReorderPoint), l.ReorderQuantity,
			l.LastMovementID, l.UpdatedAt,
		).
		Suffix(`ON CONFLICT (product_id, warehouse_id) DO UPDATE SET
			on_hand = EXCLUDED.on_hand,
			reserved = EXCLUDED.reserved,
			available = EXCLUDED.available,
			quarantined_quantity = EXCLUDED.quarantined_quantity,
			expired_quantity = EXCLUDED.expired_quantity,
			min_stock_alert = EXCLUDED.min_stock_alert,
			max_stock_alert = EXCLUDED.max_stock_alert,
			reorder_point = EXCLUDED.reorder_point,
			reorder_quantity = EXCLUDED.reorder_quantity,
			last_movement_id = EXCLUDED.last_movement_id,
			updated_at = EXCLUDED.updated_at`)
	if _, err := r.t.exec(ctx, q); err != nil {
		return fmt.Errorf("save level %s: %w", l.Key(), err)
	}
	return nil
}
