package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"inventory-ledger/internal/core"
)

type movementRepo struct{ t *tx }

var movementColumns = []string{
	"id", "occurred_at", "type", "product_id", "quantity", "from_warehouse_id", "to_warehouse_id",
	"lot_id", "dest_lot_id", "document_kind", "document_id", "actor", "reason", "reverses_movement_id",
}

func scanMovement(row pgx.Row) (core.Movement, error) {
	var (
		m        core.Movement
		reverses *int64
	)
	err := row.Scan(
		&m.ID, &m.OccurredAt, &m.Type, &m.ProductID, &m.Quantity, &m.FromWarehouseID, &m.ToWarehouseID,
		&m.LotID, &m.DestLotID, &m.Document.Kind, &m.Document.ID, &m.Actor, &m.Reason, &reverses,
	)
	if err != nil {
		return m, err
	}
	m.OccurredAt = m.OccurredAt.UTC()
	if reverses != nil {
		m.ReversesMovementID = *reverses
	}
	return m, nil
}

func (r movementRepo) Insert(ctx context.Context, m core.Movement) (int64, error) {
	q := r.t.sb.Insert("movements").Columns(movementColumns[1:]...).
		Values(
			m.OccurredAt, m.Type, m.ProductID, m.Quantity, m.FromWarehouseID, m.ToWarehouseID,
			m.LotID, m.DestLotID, m.Document.Kind, m.Document.ID, m.Actor, m.Reason, nullID(m.ReversesMovementID),
		).
		Suffix("RETURNING id")

	var id int64
	if err := r.t.queryRow(ctx, q, &id); err != nil {
		return 0, fmt.Errorf("insert %s movement of %s: %w", m.Type, m.ProductID, err)
	}
	return id, nil
}

func (r movementRepo) Get(ctx context.Context, id int64) (core.Movement, error) {
	q := r.t.sb.Select(movementColumns...).From("movements").Where("id = ?", id)
	m, err := one(ctx, r.t, q, scanMovement)
	if err != nil {
		return core.Movement{}, notFound(err, core.ErrNotFound, "movement %d", id)
	}
	return m, nil
}

func (r movementRepo) List(ctx context.Context, f core.MovementFilter) ([]core.Movement, error) {
	q := r.t.sb.Select(movementColumns...).From("movements").OrderBy("id")
	if f.ProductID != "" {
		q = q.Where(sq.Eq{"product_id": f.ProductID})
	}
	if f.WarehouseID != "" {
		q = q.Where(sq.Or{sq.Eq{"from_warehouse_id": f.WarehouseID}, sq.Eq{"to_warehouse_id": f.WarehouseID}})
	}
	if f.LotID != "" {
		q = q.Where(sq.Or{sq.Eq{"lot_id": f.LotID}, sq.Eq{"dest_lot_id": f.LotID}})
	}
	if f.ReversesID != 0 {
		q = q.Where(sq.Eq{"reverses_movement_id": f.ReversesID})
	}
	if f.AfterID != 0 {
		q = q.Where(sq.Gt{"id": f.AfterID})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	return collect(ctx, r.t, q, scanMovement)
}

// PairSummary folds the signed effect of every movement touching the pair:
// inbound and adjustments count on the destination, outbound on the source,
// transfers on both sides.
func (r movementRepo) PairSummary(ctx context.Context, productID, warehouseID string) (decimal.Decimal, int64, error) {
	q := r.t.sb.
		Select().
		Column(sq.Expr("COALESCE(SUM(CASE WHEN type = 'outbound' OR (type = 'transfer' AND from_warehouse_id = ?) THEN -quantity ELSE quantity END), 0)", warehouseID)).
		Column("COALESCE(MAX(id), 0)").
		From("movements").
		Where(sq.Eq{"product_id": productID}).
		Where(sq.Or{
			sq.And{sq.Eq{"type": []core.MovementType{core.MovementInbound, core.MovementAdjustment}}, sq.Eq{"to_warehouse_id": warehouseID}},
			sq.And{sq.Eq{"type": core.MovementOutbound}, sq.Eq{"from_warehouse_id": warehouseID}},
			sq.And{sq.Eq{"type": core.MovementTransfer}, sq.Or{sq.Eq{"from_warehouse_id": warehouseID}, sq.Eq{"to_warehouse_id": warehouseID}}},
		})

	var (
		sum  decimal.Decimal
		last int64
	)
	if err := r.t.queryRow(ctx, q, &sum, &last); err != nil {
		return decimal.Zero, 0, fmt.Errorf("pair summary %s@%s: %w", productID, warehouseID, err)
	}
	return sum, last, nil
}
