package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"inventory-ledger/internal/core"
)

var errReadOnly = errors.New("memory: write in snapshot")

// table overlays uncommitted writes on a committed map.
type table[K comparable, V any] struct {
	mu      *sync.RWMutex
	base    map[K]V
	pending map[K]V
	deleted map[K]bool
}

func newTable[K comparable, V any](mu *sync.RWMutex, base map[K]V) *table[K, V] {
	return &table[K, V]{mu: mu, base: base, pending: make(map[K]V), deleted: make(map[K]bool)}
}

func (t *table[K, V]) get(k K) (V, bool) {
	if v, ok := t.pending[k]; ok {
		return v, true
	}
	if t.deleted[k] {
		var zero V
		return zero, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.base[k]
	return v, ok
}

func (t *table[K, V]) put(k K, v V) {
	delete(t.deleted, k)
	t.pending[k] = v
}

func (t *table[K, V]) del(k K) {
	delete(t.pending, k)
	t.deleted[k] = true
}

func (t *table[K, V]) all() []V {
	t.mu.RLock()
	out := make([]V, 0, len(t.base)+len(t.pending))
	for k, v := range t.base {
		if _, over := t.pending[k]; over || t.deleted[k] {
			continue
		}
		out = append(out, v)
	}
	t.mu.RUnlock()
	for _, v := range t.pending {
		out = append(out, v)
	}
	return out
}

// commit must run with mu held for writing.
func (t *table[K, V]) commit() {
	for k := range t.deleted {
		delete(t.base, k)
	}
	for k, v := range t.pending {
		t.base[k] = v
	}
}

type tx struct {
	store    *Store
	mu       *sync.RWMutex
	st       *state
	readOnly bool

	products     *table[string, core.Product]
	warehouses   *table[string, core.Warehouse]
	suppliers    *table[supplierKey, core.SupplierItem]
	lots         *table[string, core.Lot]
	levels       *table[core.PairKey, core.StockLevel]
	boms         *table[string, core.BillOfMaterials]
	orders       *table[string, core.ProductionOrder]
	reservations *table[string, core.Reservation]
	movements    []core.Movement
}

var _ core.Tx = (*tx)(nil)

func newTx(s *Store, mu *sync.RWMutex, st *state, readOnly bool) *tx {
	return &tx{
		store:        s,
		mu:           mu,
		st:           st,
		readOnly:     readOnly,
		products:     newTable(mu, st.products),
		warehouses:   newTable(mu, st.warehouses),
		suppliers:    newTable(mu, st.suppliers),
		lots:         newTable(mu, st.lots),
		levels:       newTable(mu, st.levels),
		boms:         newTable(mu, st.boms),
		orders:       newTable(mu, st.orders),
		reservations: newTable(mu, st.reservations),
	}
}

func (t *tx) commit() {
	t.products.commit()
	t.warehouses.commit()
	t.suppliers.commit()
	t.lots.commit()
	t.levels.commit()
	t.boms.commit()
	t.orders.commit()
	t.reservations.commit()
	if len(t.movements) == 0 {
		return
	}
	// Readers may hold the old slice; build a new one instead of sorting in place.
	merged := make([]core.Movement, 0, len(t.st.movements)+len(t.movements))
	merged = append(merged, t.st.movements...)
	merged = append(merged, t.movements...)
	sort.Slice(merged, func(i, j int) bool { return merged[i].ID < merged[j].ID })
	t.st.movements = merged
}

func (t *tx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func (t *tx) Catalog() core.CatalogRepository         { return catalogRepo{t} }
func (t *tx) Lots() core.LotRepository                 { return lotRepo{t} }
func (t *tx) Movements() core.MovementRepository       { return movementRepo{t} }
func (t *tx) Levels() core.LevelRepository             { return levelRepo{t} }
func (t *tx) BOMs() core.BOMRepository                 { return bomRepo{t} }
func (t *tx) Orders() core.OrderRepository             { return orderRepo{t} }
func (t *tx) Reservations() core.ReservationRepository { return reservationRepo{t} }

type catalogRepo struct{ t *tx }

func (r catalogRepo) Product(_ context.Context, id string) (core.Product, error) {
	p, ok := r.t.products.get(id)
	if !ok {
		return core.Product{}, fmt.Errorf("product %s: %w", id, core.ErrNotFound)
	}
	return p, nil
}

func (r catalogRepo) Warehouse(_ context.Context, id string) (core.Warehouse, error) {
	w, ok := r.t.warehouses.get(id)
	if !ok {
		return core.Warehouse{}, fmt.Errorf("warehouse %s: %w", id, core.ErrNotFound)
	}
	return w, nil
}

func (r catalogRepo) Products(context.Context) ([]core.Product, error) {
	out := r.t.products.all()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r catalogRepo) Warehouses(context.Context) ([]core.Warehouse, error) {
	out := r.t.warehouses.all()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r catalogRepo) SupplierItems(_ context.Context, productID string) ([]core.SupplierItem, error) {
	var out []core.SupplierItem
	for _, si := range r.t.suppliers.all() {
		if si.ProductID == productID {
			out = append(out, si)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SupplierID < out[j].SupplierID })
	return out, nil
}

func (r catalogRepo) UpsertProduct(_ context.Context, p core.Product) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	r.t.products.put(p.ID, p)
	return nil
}

func (r catalogRepo) UpsertWarehouse(_ context.Context, w core.Warehouse) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	r.t.warehouses.put(w.ID, w)
	return nil
}

func (r catalogRepo) UpsertSupplierItem(_ context.Context, si core.SupplierItem) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	r.t.suppliers.put(supplierKey{si.SupplierID, si.ProductID}, si)
	return nil
}

type lotRepo struct{ t *tx }

func (r lotRepo) Get(_ context.Context, id string) (core.Lot, error) {
	l, ok := r.t.lots.get(id)
	if !ok {
		return core.Lot{}, fmt.Errorf("lot %s: %w", id, core.ErrLotNotFound)
	}
	return l, nil
}

func (r lotRepo) List(_ context.Context, f core.LotFilter) ([]core.Lot, error) {
	var out []core.Lot
	for _, l := range r.t.lots.all() {
		if f.ProductID != "" && l.ProductID != f.ProductID {
			continue
		}
		if f.WarehouseID != "" && l.WarehouseID != f.WarehouseID {
			continue
		}
		if !f.IncludeDepleted && l.AvailabilityStatus == core.LotDepleted {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r lotRepo) Insert(_ context.Context, l core.Lot) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	if _, ok := r.t.lots.get(l.ID); ok {
		return fmt.Errorf("lot %s already exists", l.ID)
	}
	r.t.lots.put(l.ID, l)
	return nil
}

func (r lotRepo) Update(_ context.Context, l core.Lot) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	if _, ok := r.t.lots.get(l.ID); !ok {
		return fmt.Errorf("lot %s: %w", l.ID, core.ErrLotNotFound)
	}
	r.t.lots.put(l.ID, l)
	return nil
}

type movementRepo struct{ t *tx }

// each visits committed then pending movements in id order.
func (r movementRepo) each(fn func(m core.Movement) bool) {
	r.t.mu.RLock()
	committed := r.t.st.movements
	r.t.mu.RUnlock()
	for _, m := range committed {
		if !fn(m) {
			return
		}
	}
	for _, m := range r.t.movements {
		if !fn(m) {
			return
		}
	}
}

func (r movementRepo) Insert(_ context.Context, m core.Movement) (int64, error) {
	if err := r.t.writable(); err != nil {
		return 0, err
	}
	m.ID = r.t.store.nextMovementID()
	m.NewLot = nil
	r.t.movements = append(r.t.movements, m)
	return m.ID, nil
}

func (r movementRepo) Get(_ context.Context, id int64) (core.Movement, error) {
	var (
		found core.Movement
		ok    bool
	)
	r.each(func(m core.Movement) bool {
		if m.ID == id {
			found, ok = m, true
			return false
		}
		return true
	})
	if !ok {
		return core.Movement{}, fmt.Errorf("movement %d: %w", id, core.ErrNotFound)
	}
	return found, nil
}

func (r movementRepo) List(_ context.Context, f core.MovementFilter) ([]core.Movement, error) {
	var out []core.Movement
	r.each(func(m core.Movement) bool {
		if matches(m, f) {
			out = append(out, m)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matches(m core.Movement, f core.MovementFilter) bool {
	switch {
	case f.ProductID != "" && m.ProductID != f.ProductID:
		return false
	case f.WarehouseID != "" && m.FromWarehouseID != f.WarehouseID && m.ToWarehouseID != f.WarehouseID:
		return false
	case f.LotID != "" && m.LotID != f.LotID && m.DestLotID != f.LotID:
		return false
	case f.ReversesID != 0 && m.ReversesMovementID != f.ReversesID:
		return false
	case f.AfterID != 0 && m.ID <= f.AfterID:
		return false
	}
	return true
}

func (r movementRepo) PairSummary(_ context.Context, productID, warehouseID string) (decimal.Decimal, int64, error) {
	key := core.PairKey{ProductID: productID, WarehouseID: warehouseID}
	sum := decimal.Zero
	var last int64
	r.each(func(m core.Movement) bool {
		if m.ProductID != productID {
			return true
		}
		if d, ok := m.PairDeltas()[key]; ok {
			sum = sum.Add(d)
			if m.ID > last {
				last = m.ID
			}
		}
		return true
	})
	return sum, last, nil
}

type levelRepo struct{ t *tx }

func (r levelRepo) Get(_ context.Context, productID, warehouseID string) (core.StockLevel, error) {
	l, ok := r.t.levels.get(core.PairKey{ProductID: productID, WarehouseID: warehouseID})
	if !ok {
		return core.StockLevel{}, fmt.Errorf("level %s@%s: %w", productID, warehouseID, core.ErrNotFound)
	}
	return l, nil
}

func (r levelRepo) List(context.Context) ([]core.StockLevel, error) {
	out := r.t.levels.all()
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].WarehouseID < out[j].WarehouseID
	})
	return out, nil
}

func (r levelRepo) Save(_ context.Context, l core.StockLevel) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	r.t.levels.put(l.Key(), l)
	return nil
}

type bomRepo struct{ t *tx }

func copyBOM(b core.BillOfMaterials) core.BillOfMaterials {
	b.Components = append([]core.BOMComponent(nil), b.Components...)
	return b
}

func (r bomRepo) Get(_ context.Context, id string) (core.BillOfMaterials, error) {
	b, ok := r.t.boms.get(id)
	if !ok {
		return core.BillOfMaterials{}, fmt.Errorf("bill of materials %s: %w", id, core.ErrNotFound)
	}
	return copyBOM(b), nil
}

func (r bomRepo) Active(_ context.Context, productID string) (core.BillOfMaterials, error) {
	for _, b := range r.t.boms.all() {
		if b.ProductID == productID && b.Status == core.BOMActive {
			return copyBOM(b), nil
		}
	}
	return core.BillOfMaterials{}, fmt.Errorf("active bill for %s: %w", productID, core.ErrNotFound)
}

func (r bomRepo) ListActive(context.Context) ([]core.BillOfMaterials, error) {
	var out []core.BillOfMaterials
	for _, b := range r.t.boms.all() {
		if b.Status == core.BOMActive {
			out = append(out, copyBOM(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (r bomRepo) Versions(_ context.Context, productID string) ([]core.BillOfMaterials, error) {
	var out []core.BillOfMaterials
	for _, b := range r.t.boms.all() {
		if b.ProductID == productID {
			out = append(out, copyBOM(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (r bomRepo) Insert(_ context.Context, b core.BillOfMaterials) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	for _, other := range r.t.boms.all() {
		if other.ProductID == b.ProductID && other.Version == b.Version {
			return fmt.Errorf("bill of materials %s version %d already exists", b.ProductID, b.Version)
		}
	}
	if b.Status == core.BOMActive {
		if _, err := r.Active(context.Background(), b.ProductID); err == nil {
			return fmt.Errorf("product %s: %w", b.ProductID, core.ErrActiveBOMConflict)
		}
	}
	r.t.boms.put(b.ID, copyBOM(b))
	return nil
}

func (r bomRepo) UpdateStatus(_ context.Context, id string, status core.BOMStatus) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	b, ok := r.t.boms.get(id)
	if !ok {
		return fmt.Errorf("bill of materials %s: %w", id, core.ErrNotFound)
	}
	if status == core.BOMActive {
		if cur, err := r.Active(context.Background(), b.ProductID); err == nil && cur.ID != id {
			return fmt.Errorf("product %s: %w", b.ProductID, core.ErrActiveBOMConflict)
		}
	}
	b.Status = status
	r.t.boms.put(id, b)
	return nil
}

type orderRepo struct{ t *tx }

func (r orderRepo) Get(_ context.Context, id string) (core.ProductionOrder, error) {
	o, ok := r.t.orders.get(id)
	if !ok {
		return core.ProductionOrder{}, fmt.Errorf("production order %s: %w", id, core.ErrNotFound)
	}
	return o, nil
}

func (r orderRepo) ListOpen(context.Context) ([]core.ProductionOrder, error) {
	var out []core.ProductionOrder
	for _, o := range r.t.orders.all() {
		if o.Status.Open() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r orderRepo) Save(_ context.Context, o core.ProductionOrder) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	r.t.orders.put(o.ID, o)
	return nil
}

type reservationRepo struct{ t *tx }

func (r reservationRepo) ListOpen(_ context.Context, f core.ReservationFilter) ([]core.Reservation, error) {
	var out []core.Reservation
	for _, res := range r.t.reservations.all() {
		if f.OrderID != "" && res.OrderID != f.OrderID {
			continue
		}
		if f.ReceiptID != "" && res.ReceiptID != f.ReceiptID {
			continue
		}
		if f.ProductID != "" && res.ProductID != f.ProductID {
			continue
		}
		if f.WarehouseID != "" && res.WarehouseID != f.WarehouseID {
			continue
		}
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r reservationRepo) Insert(_ context.Context, res core.Reservation) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	r.t.reservations.put(res.ID, res)
	return nil
}

func (r reservationRepo) Close(_ context.Context, id string) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	if _, ok := r.t.reservations.get(id); !ok {
		return fmt.Errorf("reservation %s: %w", id, core.ErrNotFound)
	}
	r.t.reservations.del(id)
	return nil
}
