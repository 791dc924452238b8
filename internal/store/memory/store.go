// Package memory is an in-process Store with the same locking and
// atomicity semantics as the Postgres store. It backs unit tests and the
// CLI's --memory mode.
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"inventory-ledger/internal/core"
)

const defaultLockTimeout = 2 * time.Second

// Store keeps committed state in maps guarded by mu. Scopes write into
// private overlays that are merged on commit.
type Store struct {
	mu    sync.RWMutex
	state *state

	locksMu sync.Mutex
	locks   map[string]chan struct{}

	lockTimeout time.Duration
	movementSeq atomic.Int64
}

var _ core.Store = (*Store)(nil)

type Option func(*Store)

// WithLockTimeout bounds how long a scope waits for a key before the
// attempt fails with core.ErrConflict.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

func New(opts ...Option) *Store {
	s := &Store{
		state:       newState(),
		locks:       make(map[string]chan struct{}),
		lockTimeout: defaultLockTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type supplierKey struct {
	SupplierID string
	ProductID  string
}

type state struct {
	products     map[string]core.Product
	warehouses   map[string]core.Warehouse
	suppliers    map[supplierKey]core.SupplierItem
	lots         map[string]core.Lot
	levels       map[core.PairKey]core.StockLevel
	boms         map[string]core.BillOfMaterials
	orders       map[string]core.ProductionOrder
	reservations map[string]core.Reservation
	movements    []core.Movement
}

func newState() *state {
	return &state{
		products:     make(map[string]core.Product),
		warehouses:   make(map[string]core.Warehouse),
		suppliers:    make(map[supplierKey]core.SupplierItem),
		lots:         make(map[string]core.Lot),
		levels:       make(map[core.PairKey]core.StockLevel),
		boms:         make(map[string]core.BillOfMaterials),
		orders:       make(map[string]core.ProductionOrder),
		reservations: make(map[string]core.Reservation),
	}
}

func (st *state) clone() *state {
	return &state{
		products:     cloneMap(st.products),
		warehouses:   cloneMap(st.warehouses),
		suppliers:    cloneMap(st.suppliers),
		lots:         cloneMap(st.lots),
		levels:       cloneMap(st.levels),
		boms:         cloneMap(st.boms),
		orders:       cloneMap(st.orders),
		reservations: cloneMap(st.reservations),
		movements:    append([]core.Movement(nil), st.movements...),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Atomic acquires keys in order, runs fn and commits its overlay only when
// fn returns nil.
func (s *Store) Atomic(ctx context.Context, keys []string, fn func(ctx context.Context, tx core.Tx) error) error {
	release, err := s.acquire(ctx, keys)
	if err != nil {
		return err
	}
	defer release()

	tx := newTx(s, &s.mu, s.state, false)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.mu.Lock()
	tx.commit()
	s.mu.Unlock()
	return nil
}

// Snapshot runs fn over a private copy of the committed state.
func (s *Store) Snapshot(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	s.mu.RLock()
	snap := s.state.clone()
	s.mu.RUnlock()
	return fn(ctx, newTx(s, &sync.RWMutex{}, snap, true))
}

func (s *Store) lockChan(key string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	return ch
}

func (s *Store) acquire(ctx context.Context, keys []string) (func(), error) {
	held := make([]chan struct{}, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}
	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()
	for _, k := range keys {
		ch := s.lockChan(k)
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-timer.C:
			release()
			return nil, fmt.Errorf("%w: timed out waiting for %s", core.ErrConflict, k)
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}
	return release, nil
}

func (s *Store) nextMovementID() int64 {
	return s.movementSeq.Add(1)
}
