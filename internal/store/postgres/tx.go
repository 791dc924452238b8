package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"inventory-ledger/internal/core"
)

type tx struct {
	q  pgx.Tx
	sb sq.StatementBuilderType
}

var _ core.Tx = (*tx)(nil)

func newTx(q pgx.Tx, sb sq.StatementBuilderType) *tx {
	return &tx{q: q, sb: sb}
}

func (t *tx) Catalog() core.CatalogRepository         { return catalogRepo{t} }
func (t *tx) Lots() core.LotRepository                 { return lotRepo{t} }
func (t *tx) Movements() core.MovementRepository       { return movementRepo{t} }
func (t *tx) Levels() core.LevelRepository             { return levelRepo{t} }
func (t *tx) BOMs() core.BOMRepository                 { return bomRepo{t} }
func (t *tx) Orders() core.OrderRepository             { return orderRepo{t} }
func (t *tx) Reservations() core.ReservationRepository { return reservationRepo{t} }

func (t *tx) exec(ctx context.Context, q sq.Sqlizer) (pgconn.CommandTag, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return t.q.Exec(ctx, sqlStr, args...)
}

func (t *tx) query(ctx context.Context, q sq.Sqlizer) (pgx.Rows, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	return t.q.Query(ctx, sqlStr, args...)
}

func (t *tx) queryRow(ctx context.Context, q sq.Sqlizer, dest ...any) error {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return err
	}
	return t.q.QueryRow(ctx, sqlStr, args...).Scan(dest...)
}

// collect runs q and scans every row with scan.
func collect[T any](ctx context.Context, t *tx, q sq.Sqlizer, scan func(row pgx.Row) (T, error)) ([]T, error) {
	rows, err := t.query(ctx, q)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (T, error) { return scan(row) })
}

// one scans the single row of q; pgx.ErrNoRows when there is none.
func one[T any](ctx context.Context, t *tx, q sq.Sqlizer, scan func(row pgx.Row) (T, error)) (T, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		var zero T
		return zero, err
	}
	return scan(t.q.QueryRow(ctx, sqlStr, args...))
}

func notFound(err error, target error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), target)
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

func decimalPtr(n decimal.NullDecimal) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	d := n.Decimal
	return &d
}

func nullID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
