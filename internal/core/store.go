package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// PairKey identifies a (product, warehouse) stock position, the unit of
// mutual exclusion for writers.
type PairKey struct {
	ProductID   string `json:"product_id"`
	WarehouseID string `json:"warehouse_id"`
}

func (k PairKey) String() string { return k.ProductID + "@" + k.WarehouseID }

// StockKey is the lock key guarding one (product, warehouse) pair.
func StockKey(productID, warehouseID string) string {
	return "stock:" + productID + "@" + warehouseID
}

// BOMKey is the lock key serializing bill-of-materials activation. Cycle
// detection spans products, so every activation takes the same key.
const BOMKey = "bom"

// Store opens atomic scopes over the persisted inventory state.
//
// Atomic holds every key in keys for the whole of fn and either commits all
// writes made through tx or none. Keys are acquired in the order given; the
// runner sorts them before calling. Lock timeouts and serialization failures
// surface as ErrConflict.
//
// Snapshot runs fn against a consistent read-only view.
type Store interface {
	Atomic(ctx context.Context, keys []string, fn func(ctx context.Context, tx Tx) error) error
	Snapshot(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx exposes the typed repositories of one scope.
type Tx interface {
	Catalog() CatalogRepository
	Lots() LotRepository
	Movements() MovementRepository
	Levels() LevelRepository
	BOMs() BOMRepository
	Orders() OrderRepository
	Reservations() ReservationRepository
}

// CatalogRepository holds the external master data. Lookups of unknown ids
// return ErrNotFound.
type CatalogRepository interface {
	Product(ctx context.Context, id string) (Product, error)
	Warehouse(ctx context.Context, id string) (Warehouse, error)
	Products(ctx context.Context) ([]Product, error)
	Warehouses(ctx context.Context) ([]Warehouse, error)
	SupplierItems(ctx context.Context, productID string) ([]SupplierItem, error)
	UpsertProduct(ctx context.Context, p Product) error
	UpsertWarehouse(ctx context.Context, w Warehouse) error
	UpsertSupplierItem(ctx context.Context, si SupplierItem) error
}

type LotRepository interface {
	// Get returns ErrLotNotFound for unknown ids.
	Get(ctx context.Context, id string) (Lot, error)
	List(ctx context.Context, f LotFilter) ([]Lot, error)
	Insert(ctx context.Context, l Lot) error
	Update(ctx context.Context, l Lot) error
}

type MovementRepository interface {
	// Insert assigns and returns the next movement id.
	Insert(ctx context.Context, m Movement) (int64, error)
	Get(ctx context.Context, id int64) (Movement, error)
	// List returns matching movements in ascending id order.
	List(ctx context.Context, f MovementFilter) ([]Movement, error)
	// PairSummary returns the signed quantity sum for the pair and the
	// highest movement id touching it.
	PairSummary(ctx context.Context, productID, warehouseID string) (decimal.Decimal, int64, error)
}

type LevelRepository interface {
	Get(ctx context.Context, productID, warehouseID string) (StockLevel, error)
	List(ctx context.Context) ([]StockLevel, error)
	Save(ctx context.Context, l StockLevel) error
}

type BOMRepository interface {
	Get(ctx context.Context, id string) (BillOfMaterials, error)
	// Active returns ErrNotFound when the product has no active bill.
	Active(ctx context.Context, productID string) (BillOfMaterials, error)
	ListActive(ctx context.Context) ([]BillOfMaterials, error)
	Versions(ctx context.Context, productID string) ([]BillOfMaterials, error)
	Insert(ctx context.Context, b BillOfMaterials) error
	// UpdateStatus returns ErrActiveBOMConflict when activating would leave
	// two active bills for one product.
	UpdateStatus(ctx context.Context, id string, status BOMStatus) error
}

type OrderRepository interface {
	Get(ctx context.Context, id string) (ProductionOrder, error)
	ListOpen(ctx context.Context) ([]ProductionOrder, error)
	Save(ctx context.Context, o ProductionOrder) error
}

type ReservationRepository interface {
	ListOpen(ctx context.Context, f ReservationFilter) ([]Reservation, error)
	Insert(ctx context.Context, r Reservation) error
	Close(ctx context.Context, id string) error
}
