package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"inventory-ledger/internal/logger"
)

// Options tune the runner. Zero values select the defaults.
type Options struct {
	Clock      func() time.Time
	Publisher  EventPublisher
	MaxRetries uint64
	RetryBase  time.Duration
}

const (
	defaultMaxRetries = 5
	defaultRetryBase  = 10 * time.Millisecond
)

// Runner executes service operations inside atomic scopes of a Store. It
// orders lock keys, retries conflicts with exponential backoff and publishes
// the scope's events once it has committed.
type Runner struct {
	store      Store
	clock      func() time.Time
	publisher  EventPublisher
	maxRetries uint64
	retryBase  time.Duration
}

func NewRunner(store Store, opts Options) *Runner {
	r := &Runner{
		store:      store,
		clock:      opts.Clock,
		publisher:  opts.Publisher,
		maxRetries: opts.MaxRetries,
		retryBase:  opts.RetryBase,
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	if r.publisher == nil {
		r.publisher = nopPublisher{}
	}
	if r.maxRetries == 0 {
		r.maxRetries = defaultMaxRetries
	}
	if r.retryBase <= 0 {
		r.retryBase = defaultRetryBase
	}
	return r
}

// Scope is the handle services receive inside a runner scope. It embeds the
// store transaction and buffers events until commit.
type Scope struct {
	Tx
	now      time.Time
	held     map[string]bool
	readOnly bool
	events   []Event
}

// Now is the scope's timestamp; every record written by the scope carries it.
func (s *Scope) Now() time.Time { return s.now }

// Emit queues events for publication after commit.
func (s *Scope) Emit(events ...Event) { s.events = append(s.events, events...) }

// require fails unless the scope holds every key. Keys computed from a
// snapshot can go stale; ErrConflict makes the runner recompute them.
func (s *Scope) require(keys ...string) error {
	if s.readOnly {
		return fmt.Errorf("%w: write attempted in a read-only scope", ErrInvalidArgument)
	}
	for _, k := range keys {
		if !s.held[k] {
			return fmt.Errorf("%w: scope does not hold %s", ErrConflict, k)
		}
	}
	return nil
}

func (s *Scope) requirePairs(pairs ...PairKey) error {
	keys := make([]string, len(pairs))
	for i, p := range pairs {
		keys[i] = StockKey(p.ProductID, p.WarehouseID)
	}
	return s.require(keys...)
}

// KeysFunc computes the lock keys of an operation from a snapshot.
type KeysFunc func(ctx context.Context, tx Tx) ([]string, error)

// ScopeFunc is the body of an atomic or read scope.
type ScopeFunc func(ctx context.Context, s *Scope) error

// Atomic runs fn holding keys.
func (r *Runner) Atomic(ctx context.Context, keys []string, fn ScopeFunc) error {
	return r.run(ctx, func(context.Context, Tx) ([]string, error) { return keys, nil }, false, fn)
}

// AtomicFor runs fn holding the keys keysFn derives from a snapshot taken
// before each attempt. Used when the keys depend on stored state, e.g. the
// pair of a lot.
func (r *Runner) AtomicFor(ctx context.Context, keysFn KeysFunc, fn ScopeFunc) error {
	return r.run(ctx, keysFn, true, fn)
}

// Read runs fn against a consistent snapshot. Writes through the scope fail.
func (r *Runner) Read(ctx context.Context, fn ScopeFunc) error {
	var events []Event
	err := r.store.Snapshot(ctx, func(ctx context.Context, tx Tx) error {
		s := &Scope{Tx: tx, now: r.now(), readOnly: true}
		if err := fn(ctx, s); err != nil {
			return err
		}
		events = s.events
		return nil
	})
	if err != nil {
		return err
	}
	r.publish(ctx, events)
	return nil
}

func (r *Runner) now() time.Time {
	return r.clock().UTC().Truncate(time.Microsecond)
}

func (r *Runner) backoff() retry.Backoff {
	b := retry.NewExponential(r.retryBase)
	b = retry.WithJitterPercent(20, b)
	return retry.WithMaxRetries(r.maxRetries, b)
}

func (r *Runner) run(ctx context.Context, keysFn KeysFunc, fromSnapshot bool, fn ScopeFunc) error {
	const op = "core.Runner.run"

	var (
		attempts int
		keys     []string
		events   []Event
	)
	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		attempts++
		var err error
		if fromSnapshot {
			err = r.store.Snapshot(ctx, func(ctx context.Context, tx Tx) error {
				keys, err = keysFn(ctx, tx)
				return err
			})
		} else {
			keys, err = keysFn(ctx, nil)
		}
		if err != nil {
			return err
		}
		keys = normalizeKeys(keys)

		var scope *Scope
		err = r.store.Atomic(ctx, keys, func(ctx context.Context, tx Tx) error {
			scope = &Scope{Tx: tx, now: r.now(), held: make(map[string]bool, len(keys))}
			for _, k := range keys {
				scope.held[k] = true
			}
			return fn(ctx, scope)
		})
		if err != nil {
			if errors.Is(err, ErrConflict) {
				logger.Debug(ctx, "scope conflict, retrying",
					logger.String("op", op),
					logger.Int("attempt", attempts),
					logger.Strings("keys", keys),
					logger.ErrorF(err))
				return retry.RetryableError(err)
			}
			return err
		}
		events = scope.events
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return fmt.Errorf("%w after %d attempts on [%s]: %w", ErrBusy, attempts, strings.Join(keys, " "), err)
		}
		return err
	}
	r.publish(ctx, events)
	return nil
}

// publish delivers committed events. The operation already succeeded, so a
// delivery failure is logged rather than returned.
func (r *Runner) publish(ctx context.Context, events []Event) {
	if len(events) == 0 {
		return
	}
	if err := r.publisher.Publish(ctx, events...); err != nil {
		logger.Warn(ctx, "event publish failed",
			logger.String("op", "core.Runner.publish"),
			logger.Int("events", len(events)),
			logger.ErrorF(err))
	}
}

func normalizeKeys(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}

// Engine bundles the inventory services wired over one store.
type Engine struct {
	Runner        *Runner
	Catalog       CatalogService
	Journal       JournalService
	Lots          LotService
	Quality       QualityService
	Stock         StockService
	Allocator     AllocatorService
	BOMs          BOMService
	Replenishment ReplenishmentService
	Receiving     ReceivingService
	Production    ProductionService
	Counts        CountService
}

// NewEngine wires every service over store.
func NewEngine(store Store, opts Options) *Engine {
	runner := NewRunner(store, opts)
	stock := NewStockService(runner)
	lots := NewLotService(runner, stock)
	journal := NewJournalService(runner, lots, stock)
	allocator := NewAllocatorService(runner, journal, stock)
	boms := NewBOMService(runner)
	return &Engine{
		Runner:        runner,
		Catalog:       NewCatalogService(runner),
		Journal:       journal,
		Lots:          lots,
		Quality:       NewQualityService(runner, lots, journal),
		Stock:         stock,
		Allocator:     allocator,
		BOMs:          boms,
		Replenishment: NewReplenishmentService(runner, boms, stock),
		Receiving:     NewReceivingService(runner, journal, stock),
		Production:    NewProductionService(runner, journal, allocator, boms, stock),
		Counts:        NewCountService(runner, journal, stock),
	}
}
