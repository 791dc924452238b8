package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"inventory-ledger/internal/core"
)

type lotRepo struct{ t *tx }

var lotColumns = []string{
	"id", "product_id", "warehouse_id", "initial_quantity", "remaining_quantity", "unit_cost",
	"manufacture_date", "expiry_date", "received_at", "quality_status", "availability_status",
	"origin_kind", "origin_reference", "origin_movement_id", "parent_lot_id", "hold_reason",
	"awaiting_approval", "updated_at",
}

func scanLot(row pgx.Row) (core.Lot, error) {
	var (
		l      core.Lot
		expiry *time.Time
	)
	err := row.Scan(
		&l.ID, &l.ProductID, &l.WarehouseID, &l.InitialQuantity, &l.RemainingQuantity, &l.UnitCost,
		&l.ManufactureDate, &expiry, &l.ReceivedAt, &l.QualityStatus, &l.AvailabilityStatus,
		&l.Origin.Kind, &l.Origin.Reference, &l.OriginMovementID, &l.ParentLotID, &l.HoldReason,
		&l.AwaitingApproval, &l.UpdatedAt,
	)
	if err != nil {
		return l, err
	}
	l.ManufactureDate = l.ManufactureDate.UTC()
	l.ReceivedAt = l.ReceivedAt.UTC()
	l.UpdatedAt = l.UpdatedAt.UTC()
	if expiry != nil {
		e := expiry.UTC()
		l.ExpiryDate = &e
	}
	return l, nil
}

func lotValues(l core.Lot) []any {
	return []any{
		l.ID, l.ProductID, l.WarehouseID, l.InitialQuantity, l.RemainingQuantity, l.UnitCost,
		l.ManufactureDate, l.ExpiryDate, l.ReceivedAt, l.QualityStatus, l.AvailabilityStatus,
		l.Origin.Kind, l.Origin.Reference, l.OriginMovementID, l.ParentLotID, l.HoldReason,
		l.AwaitingApproval, l.UpdatedAt,
	}
}

func (r lotRepo) Get(ctx context.Context, id string) (core.Lot, error) {
	q := r.t.sb.Select(lotColumns...).From("lots").Where("id = ?", id)
	l, err := one(ctx, r.t, q, scanLot)
	if err != nil {
		return core.Lot{}, notFound(err, core.ErrLotNotFound, "lot %s", id)
	}
	return l, nil
}

func (r lotRepo) List(ctx context.Context, f core.LotFilter) ([]core.Lot, error) {
	q := r.t.sb.Select(lotColumns...).From("lots").OrderBy("id")
	if f.ProductID != "" {
		q = q.Where(sq.Eq{"product_id": f.ProductID})
	}
	if f.WarehouseID != "" {
		q = q.Where(sq.Eq{"warehouse_id": f.WarehouseID})
	}
	if !f.IncludeDepleted {
		q = q.Where(sq.NotEq{"availability_status": core.LotDepleted})
	}
	return collect(ctx, r.t, q, scanLot)
}

func (r lotRepo) Insert(ctx context.Context, l core.Lot) error {
	q := r.t.sb.Insert("lots").Columns(lotColumns...).Values(lotValues(l)...)
	if _, err := r.t.exec(ctx, q); err != nil {
		return fmt.Errorf("insert lot %s: %w", l.ID, err)
	}
	return nil
}

func (r lotRepo) Update(ctx context.Context, l core.Lot) error {
	set := make(map[string]any, len(lotColumns))
	for i, v := range lotValues(l) {
		if lotColumns[i] == "id" {
			continue
		}
		set[lotColumns[i]] = v
	}
	tag, err := r.t.exec(ctx, r.t.sb.Update("lots").SetMap(set).Where("id = ?", l.ID))
	if err != nil {
		return fmt.Errorf("update lot %s: %w", l.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lot %s: %w", l.ID, core.ErrLotNotFound)
	}
	return nil
}
