// Package postgres is the durable Store. Each atomic scope is one
// READ COMMITTED transaction that first takes a transaction-level advisory
// lock per key, so writers of the same (product, warehouse) pair queue up
// while everything else proceeds in parallel. Snapshots are REPEATABLE READ
// read-only transactions.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"inventory-ledger/internal/core"
	"inventory-ledger/internal/logger"
)

const defaultLockTimeout = 2 * time.Second

// Postgres error codes the store translates.
const (
	codeLockNotAvailable     = "55P03"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

const activeBOMIndex = "boms_one_active"

type Store struct {
	pool        *pgxpool.Pool
	sb          sq.StatementBuilderType
	lockTimeout time.Duration
}

var _ core.Store = (*Store)(nil)

type Option func(*Store)

// WithLockTimeout bounds the wait for each advisory lock. A timeout aborts
// the scope with core.ErrConflict.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:        pool,
		sb:          sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		lockTimeout: defaultLockTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Atomic(ctx context.Context, keys []string, fn func(ctx context.Context, tx core.Tx) error) error {
	return s.inTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, q pgx.Tx) error {
		timeout := fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())
		if _, err := q.Exec(ctx, "SELECT set_config('lock_timeout', $1, true)", timeout); err != nil {
			return fmt.Errorf("set lock_timeout: %w", err)
		}
		for _, k := range keys {
			if _, err := q.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", k); err != nil {
				return fmt.Errorf("lock %s: %w", k, err)
			}
		}
		return fn(ctx, newTx(q, s.sb))
	})
}

func (s *Store) Snapshot(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	return s.inTx(ctx, opts, func(ctx context.Context, q pgx.Tx) error {
		return fn(ctx, newTx(q, s.sb))
	})
}

func (s *Store) inTx(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context, q pgx.Tx) error) error {
	q, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return classify(fmt.Errorf("begin: %w", err))
	}
	defer func() {
		if rbErr := q.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			logger.Debug(ctx, "rollback failed",
				logger.String("op", "postgres.Store.inTx"),
				logger.ErrorF(rbErr))
		}
	}()

	if err := fn(ctx, q); err != nil {
		return classify(err)
	}
	if err := q.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// classify maps lock and serialization failures to core.ErrConflict so the
// runner retries them, and a second active bill to core.ErrActiveBOMConflict.
// Other errors pass through unchanged.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeLockNotAvailable, codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%w: %w", core.ErrConflict, err)
	case codeUniqueViolation:
		if pgErr.ConstraintName == activeBOMIndex {
			return fmt.Errorf("%w: %w", core.ErrActiveBOMConflict, err)
		}
	}
	return err
}
