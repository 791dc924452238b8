package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"inventory-ledger/internal/core"
)

type bomRepo struct{ t *tx }

var bomColumns = []string{"id", "product_id", "version", "status", "created_at"}

func scanBOM(row pgx.Row) (core.BillOfMaterials, error) {
	var b core.BillOfMaterials
	if err := row.Scan(&b.ID, &b.ProductID, &b.Version, &b.Status, &b.CreatedAt); err != nil {
		return b, err
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return b, nil
}

type componentRow struct {
	bomID string
	core.BOMComponent
}

func scanComponent(row pgx.Row) (componentRow, error) {
	var c componentRow
	err := row.Scan(&c.bomID, &c.ProductID, &c.QuantityPerUnit, &c.IsOptional)
	return c, err
}

// withComponents loads the components of every bill in one query.
func (r bomRepo) withComponents(ctx context.Context, boms []core.BillOfMaterials) ([]core.BillOfMaterials, error) {
	if len(boms) == 0 {
		return boms, nil
	}
	ids := make([]string, len(boms))
	for i, b := range boms {
		ids[i] = b.ID
	}
	q := r.t.sb.Select("bom_id", "product_id", "quantity_per_unit", "is_optional").
		From("bom_components").
		Where(sq.Eq{"bom_id": ids}).
		OrderBy("bom_id", "position")
	rows, err := collect(ctx, r.t, q, scanComponent)
	if err != nil {
		return nil, fmt.Errorf("load bill components: %w", err)
	}
	byBOM := make(map[string][]core.BOMComponent, len(boms))
	for _, c := range rows {
		byBOM[c.bomID] = append(byBOM[c.bomID], c.BOMComponent)
	}
	for i := range boms {
		boms[i].Components = byBOM[boms[i].ID]
	}
	return boms, nil
}

func (r bomRepo) list(ctx context.Context, q sq.SelectBuilder) ([]core.BillOfMaterials, error) {
	boms, err := collect(ctx, r.t, q, scanBOM)
	if err != nil {
		return nil, err
	}
	return r.withComponents(ctx, boms)
}

func (r bomRepo) single(ctx context.Context, q sq.SelectBuilder, format string, args ...any) (core.BillOfMaterials, error) {
	b, err := one(ctx, r.t, q, scanBOM)
	if err != nil {
		return core.BillOfMaterials{}, notFound(err, core.ErrNotFound, format, args...)
	}
	out, err := r.withComponents(ctx, []core.BillOfMaterials{b})
	if err != nil {
		return core.BillOfMaterials{}, err
	}
	return out[0], nil
}

func (r bomRepo) Get(ctx context.Context, id string) (core.BillOfMaterials, error) {
	q := r.t.sb.Select(bomColumns...).From("boms").Where("id = ?", id)
	return r.single(ctx, q, "bill of materials %s", id)
}

func (r bomRepo) Active(ctx context.Context, productID string) (core.BillOfMaterials, error) {
	q := r.t.sb.Select(bomColumns...).From("boms").
		Where(sq.Eq{"product_id": productID, "status": core.BOMActive})
	return r.single(ctx, q, "active bill for %s", productID)
}

func (r bomRepo) ListActive(ctx context.Context) ([]core.BillOfMaterials, error) {
	q := r.t.sb.Select(bomColumns...).From("boms").
		Where(sq.Eq{"status": core.BOMActive}).
		OrderBy("product_id")
	return r.list(ctx, q)
}

func (r bomRepo) Versions(ctx context.Context, productID string) ([]core.BillOfMaterials, error) {
	q := r.t.sb.Select(bomColumns...).From("boms").
		Where(sq.Eq{"product_id": productID}).
		OrderBy("version")
	return r.list(ctx, q)
}

func (r bomRepo) Insert(ctx context.Context, b core.BillOfMaterials) error {
	q := r.t.sb.Insert("boms").Columns(bomColumns...).
		Values(b.ID, b.ProductID, b.Version, b.Status, b.CreatedAt)
	if _, err := r.t.exec(ctx, q); err != nil {
		return classify(fmt.Errorf("insert bill %s v%d: %w", b.ProductID, b.Version, err))
	}
	if len(b.Components) == 0 {
		return nil
	}
	cq := r.t.sb.Insert("bom_components").
		Columns("bom_id", "position", "product_id", "quantity_per_unit", "is_optional")
	for i, c := range b.Components {
		cq = cq.Values(b.ID, i, c.ProductID, c.QuantityPerUnit, c.IsOptional)
	}
	if _, err := r.t.exec(ctx, cq); err != nil {
		return fmt.Errorf("insert components of %s: %w", b.ID, err)
	}
	return nil
}

func (r bomRepo) UpdateStatus(ctx context.Context, id string, status core.BOMStatus) error {
	tag, err := r.t.exec(ctx, r.t.sb.Update("boms").Set("status", status).Where("id = ?", id))
	if err != nil {
		return classify(fmt.Errorf("set bill %s %s: %w", id, status, err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bill of materials %s: %w", id, core.ErrNotFound)
	}
	return nil
}
