package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"inventory-ledger/internal/core"
)

type orderRepo struct{ t *tx }

var (
	orderColumns       = []string{"id", "product_id", "quantity", "warehouse_id", "status", "materials_issued", "created_at", "updated_at"}
	reservationColumns = []string{"id", "order_id", "receipt_id", "product_id", "warehouse_id", "quantity", "created_at"}
	// order_id is NULL on receipt holds.
	reservationSelect = []string{"id", "COALESCE(order_id, '')", "receipt_id", "product_id", "warehouse_id", "quantity", "created_at"}

	openStatuses = []core.ProductionOrderStatus{core.OrderPlanned, core.OrderReleased, core.OrderInProgress}
)

func scanOrder(row pgx.Row) (core.ProductionOrder, error) {
	var o core.ProductionOrder
	err := row.Scan(&o.ID, &o.ProductID, &o.Quantity, &o.WarehouseID, &o.Status, &o.MaterialsIssued, &o.CreatedAt, &o.UpdatedAt)
	o.CreatedAt, o.UpdatedAt = o.CreatedAt.UTC(), o.UpdatedAt.UTC()
	return o, err
}

func (r orderRepo) Get(ctx context.Context, id string) (core.ProductionOrder, error) {
	q := r.t.sb.Select(orderColumns...).From("production_orders").Where("id = ?", id)
	o, err := one(ctx, r.t, q, scanOrder)
	if err != nil {
		return core.ProductionOrder{}, notFound(err, core.ErrNotFound, "production order %s", id)
	}
	return o, nil
}

func (r orderRepo) ListOpen(ctx context.Context) ([]core.ProductionOrder, error) {
	q := r.t.sb.Select(orderColumns...).From("production_orders").
		Where(sq.Eq{"status": openStatuses}).
		OrderBy("id")
	return collect(ctx, r.t, q, scanOrder)
}

func (r orderRepo) Save(ctx context.Context, o core.ProductionOrder) error {
	q := r.t.sb.Insert("production_orders").Columns(orderColumns...).
		Values(o.ID, o.ProductID, o.Quantity, o.WarehouseID, o.Status, o.MaterialsIssued, o.CreatedAt, o.UpdatedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			materials_issued = EXCLUDED.materials_issued,
			updated_at = EXCLUDED.updated_at`)
	if _, err := r.t.exec(ctx, q); err != nil {
		return fmt.Errorf("save production order %s: %w", o.ID, err)
	}
	return nil
}

type reservationRepo struct{ t *tx }

func scanReservation(row pgx.Row) (core.Reservation, error) {
	var res core.Reservation
	err := row.Scan(&res.ID, &res.OrderID, &res.ReceiptID, &res.ProductID, &res.WarehouseID, &res.Quantity, &res.CreatedAt)
	res.CreatedAt = res.CreatedAt.UTC()
	return res, err
}

func (r reservationRepo) ListOpen(ctx context.Context, f core.ReservationFilter) ([]core.Reservation, error) {
	eq := sq.Eq{}
	if f.OrderID != "" {
		eq["order_id"] = f.OrderID
	}
	if f.ReceiptID != "" {
		eq["receipt_id"] = f.ReceiptID
	}
	if f.ProductID != "" {
		eq["product_id"] = f.ProductID
	}
	if f.WarehouseID != "" {
		eq["warehouse_id"] = f.WarehouseID
	}
	q := r.t.sb.Select(reservationSelect...).From("reservations").OrderBy("id")
	if len(eq) > 0 {
		q = q.Where(eq)
	}
	return collect(ctx, r.t, q, scanReservation)
}

func (r reservationRepo) Insert(ctx context.Context, res core.Reservation) error {
	q := r.t.sb.Insert("reservations").Columns(reservationColumns...).
		Values(res.ID, sq.Expr("NULLIF(?, '')", res.OrderID), res.ReceiptID, res.ProductID, res.WarehouseID, res.Quantity, res.CreatedAt)
	if _, err := r.t.exec(ctx, q); err != nil {
		return fmt.Errorf("insert reservation %s: %w", res.ID, err)
	}
	return nil
}

// Close removes the reservation; only open reservations are stored.
func (r reservationRepo) Close(ctx context.Context, id string) error {
	tag, err := r.t.exec(ctx, r.t.sb.Delete("reservations").Where("id = ?", id))
	if err != nil {
		return fmt.Errorf("close reservation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reservation %s: %w", id, core.ErrNotFound)
	}
	return nil
}
