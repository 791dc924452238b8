package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"inventory-ledger/internal/logger"
	"inventory-ledger/migrations"
)

// Migrator applies the embedded goose migrations through a database/sql
// handle borrowed from the pool.
type Migrator struct {
	pool *pgxpool.Pool
}

func NewMigrator(pool *pgxpool.Pool) *Migrator {
	return &Migrator{pool: pool}
}

func (m *Migrator) provider() (*goose.Provider, func() error, error) {
	sqlDB := stdlib.OpenDBFromPool(m.pool)
	p, err := goose.NewProvider(goose.DialectPostgres, sqlDB, migrations.FS)
	if err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	return p, sqlDB.Close, nil
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) error {
	p, closeDB, err := m.provider()
	if err != nil {
		return err
	}
	defer closeDB()

	results, err := p.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	for _, r := range results {
		logger.Info(ctx, "migration applied",
			logger.String("source", r.Source.Path),
			logger.Duration("took", r.Duration))
	}
	return nil
}

// Version returns the current schema version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	p, closeDB, err := m.provider()
	if err != nil {
		return 0, err
	}
	defer closeDB()
	return p.GetDBVersion(ctx)
}

// Reset rolls every migration back and applies them again, leaving an empty
// schema at the latest version.
func (m *Migrator) Reset(ctx context.Context) error {
	p, closeDB, err := m.provider()
	if err != nil {
		return err
	}
	defer closeDB()

	if _, err := p.DownTo(ctx, 0); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	logger.Warn(ctx, "schema reset")
	return nil
}
