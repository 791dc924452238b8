package app

import (
	"context"
	"errors"
	"fmt"

	"inventory-ledger/internal/ai"
	"inventory-ledger/internal/config"
	"inventory-ledger/internal/core"
	"inventory-ledger/internal/db"
	"inventory-ledger/internal/events"
	"inventory-ledger/internal/logger"
	"inventory-ledger/internal/store/memory"
	"inventory-ledger/internal/store/postgres"
)

// Runtime owns the collaborators behind an ApplicationService and closes
// them in reverse order of creation.
type Runtime struct {
	Service  ApplicationService
	Engine   *core.Engine
	Migrator *db.Migrator // nil in memory mode

	closers []func() error
}

// Open wires the engine from cfg. In memory mode nothing outlives the
// process and the configured seed file is applied on start when present.
func Open(ctx context.Context, cfg config.Config, inMemory bool) (*Runtime, error) {
	rt := &Runtime{}

	var store core.Store
	if inMemory {
		store = memory.New(memory.WithLockTimeout(cfg.Database.LockTimeout))
	} else {
		pool, err := db.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() error { pool.Close(); return nil })
		rt.Migrator = db.NewMigrator(pool)
		store = postgres.New(pool, postgres.WithLockTimeout(cfg.Database.LockTimeout))
	}

	var publisher core.EventPublisher = events.NewLogPublisher(nil)
	if cfg.Kafka.Enabled() {
		kp, err := events.DialKafka(cfg.Kafka)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("kafka: %w", err)
		}
		rt.closers = append(rt.closers, kp.Close)
		publisher = kp
	}

	rt.Engine = core.NewEngine(store, core.Options{
		Publisher:  publisher,
		MaxRetries: cfg.Engine.MaxRetries,
		RetryBase:  cfg.Engine.RetryBase,
	})

	var interpreter ai.CountInterpreter
	if cfg.OpenAI.APIKey != "" {
		interpreter = ai.NewAgent(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	} else {
		logger.Warn(ctx, "OPENAI_API_KEY is not set, count sheet interpretation is disabled")
	}

	var migrator Migrator
	if rt.Migrator != nil {
		migrator = rt.Migrator
	}
	rt.Service = NewAppService(rt.Engine, interpreter, migrator)

	if inMemory && cfg.SeedFile != "" {
		if _, err := rt.Service.Seed(ctx, cfg.SeedFile); err != nil {
			logger.Warn(ctx, "seed file not applied", logger.String("path", cfg.SeedFile), logger.ErrorF(err))
		}
	}
	return rt, nil
}

// Close releases every collaborator and joins their errors.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
