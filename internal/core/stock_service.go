package core

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"inventory-ledger/internal/logger"
)

// LevelAlerts pairs a stock level with the alerts that currently hold for it.
type LevelAlerts struct {
	Level  StockLevel `json:"level"`
	Alerts []Alert    `json:"alerts"`
}

// StockService maintains the per (product, warehouse) aggregate.
type StockService interface {
	// GetLevel returns the pair's level folded as of now. Unknown pairs
	// return ErrNotFound.
	GetLevel(ctx context.Context, productID, warehouseID string) (StockLevel, error)
	ListLevels(ctx context.Context) ([]StockLevel, error)
	// Recompute refolds the pair from lots, movements and reservations and
	// stores the result.
	Recompute(ctx context.Context, productID, warehouseID string) (StockLevel, error)
	// SetThresholds updates the alert configuration, creating the level if
	// the pair has never moved.
	SetThresholds(ctx context.Context, productID, warehouseID string, t Thresholds) (StockLevel, error)
	// Alerts lists levels with at least one alert, most urgent first.
	Alerts(ctx context.Context) ([]LevelAlerts, error)

	// RecomputeTx is the scoped fold used by every writer. The scope must
	// hold the pair.
	RecomputeTx(ctx context.Context, s *Scope, productID, warehouseID string) (StockLevel, error)
	// LevelTx folds the pair without persisting.
	LevelTx(ctx context.Context, s *Scope, productID, warehouseID string) (StockLevel, error)
}

type stockService struct {
	runner *Runner
}

func NewStockService(runner *Runner) StockService {
	return &stockService{runner: runner}
}

func (s *stockService) GetLevel(ctx context.Context, productID, warehouseID string) (StockLevel, error) {
	var lvl StockLevel
	err := s.runner.Read(ctx, func(ctx context.Context, sc *Scope) error {
		if _, err := sc.Levels().Get(ctx, productID, warehouseID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("stock level %s@%s: %w", productID, warehouseID, ErrNotFound)
			}
			return err
		}
		l, _, err := s.fold(ctx, sc, productID, warehouseID)
		lvl = l
		return err
	})
	return lvl, err
}

func (s *stockService) ListLevels(ctx context.Context) ([]StockLevel, error) {
	var out []StockLevel
	err := s.runner.Read(ctx, func(ctx context.Context, sc *Scope) error {
		stored, err := sc.Levels().List(ctx)
		if err != nil {
			return fmt.Errorf("list levels: %w", err)
		}
		out = make([]StockLevel, 0, len(stored))
		for _, l := range stored {
			folded, _, err := s.fold(ctx, sc, l.ProductID, l.WarehouseID)
			if err != nil {
				return err
			}
			out = append(out, folded)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].WarehouseID < out[j].WarehouseID
	})
	return out, nil
}

func (s *stockService) Recompute(ctx context.Context, productID, warehouseID string) (StockLevel, error) {
	var lvl StockLevel
	err := s.runner.Atomic(ctx, []string{StockKey(productID, warehouseID)}, func(ctx context.Context, sc *Scope) error {
		var err error
		lvl, err = s.RecomputeTx(ctx, sc, productID, warehouseID)
		return err
	})
	return lvl, err
}

func (s *stockService) SetThresholds(ctx context.Context, productID, warehouseID string, t Thresholds) (StockLevel, error) {
	if err := validateThresholds(t); err != nil {
		return StockLevel{}, err
	}
	var lvl StockLevel
	err := s.runner.Atomic(ctx, []string{StockKey(productID, warehouseID)}, func(ctx context.Context, sc *Scope) error {
		if _, err := sc.Catalog().Product(ctx, productID); err != nil {
			return lookupErr(err, "product %s", productID)
		}
		if _, err := sc.Catalog().Warehouse(ctx, warehouseID); err != nil {
			return lookupErr(err, "warehouse %s", warehouseID)
		}
		cur, err := sc.Levels().Get(ctx, productID, warehouseID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		cur.ProductID, cur.WarehouseID = productID, warehouseID
		cur.Thresholds = t
		cur.UpdatedAt = sc.Now()
		if err := sc.Levels().Save(ctx, cur); err != nil {
			return fmt.Errorf("save thresholds: %w", err)
		}
		lvl, err = s.RecomputeTx(ctx, sc, productID, warehouseID)
		return err
	})
	return lvl, err
}

func validateThresholds(t Thresholds) error {
	if t.MinStockAlert.IsNegative() || t.ReorderQuantity.IsNegative() {
		return invalidQuantity("thresholds must not be negative")
	}
	if t.ReorderPoint != nil && t.ReorderPoint.IsNegative() {
		return invalidQuantity("reorder point must not be negative")
	}
	if t.MaxStockAlert != nil && t.MaxStockAlert.LessThan(t.MinStockAlert) {
		return invalidQuantity("max stock alert %s is below min stock alert %s", t.MaxStockAlert, t.MinStockAlert)
	}
	return nil
}

func (s *stockService) Alerts(ctx context.Context) ([]LevelAlerts, error) {
	levels, err := s.ListLevels(ctx)
	if err != nil {
		return nil, err
	}
	var out []LevelAlerts
	for _, l := range levels {
		if alerts := l.Alerts(); len(alerts) > 0 {
			out = append(out, LevelAlerts{Level: l, Alerts: alerts})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return alertRank(out[i].Alerts[0]) < alertRank(out[j].Alerts[0])
	})
	return out, nil
}

func alertRank(a Alert) int {
	switch a {
	case AlertCritical:
		return 0
	case AlertLow, AlertReorder:
		return 1
	}
	return 2
}

func (s *stockService) LevelTx(ctx context.Context, sc *Scope, productID, warehouseID string) (StockLevel, error) {
	l, _, err := s.fold(ctx, sc, productID, warehouseID)
	return l, err
}

func (s *stockService) RecomputeTx(ctx context.Context, sc *Scope, productID, warehouseID string) (StockLevel, error) {
	const op = "core.StockService.RecomputeTx"

	if err := sc.require(StockKey(productID, warehouseID)); err != nil {
		return StockLevel{}, err
	}
	prev, err := sc.Levels().Get(ctx, productID, warehouseID)
	existed := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return StockLevel{}, err
	}

	lvl, expired, err := s.fold(ctx, sc, productID, warehouseID)
	if err != nil {
		return StockLevel{}, err
	}
	for _, l := range expired {
		l.AvailabilityStatus = LotExpired
		l.UpdatedAt = sc.Now()
		if err := sc.Lots().Update(ctx, l); err != nil {
			return StockLevel{}, fmt.Errorf("persist expiry of lot %s: %w", l.ID, err)
		}
	}
	lvl.UpdatedAt = sc.Now()
	if err := sc.Levels().Save(ctx, lvl); err != nil {
		return StockLevel{}, fmt.Errorf("save level %s: %w", lvl.Key(), err)
	}

	var prevAlerts []Alert
	if existed {
		prevAlerts = prev.Alerts()
	}
	alerts := lvl.Alerts()
	if hasAlert(alerts, AlertCritical, AlertLow) && !hasAlert(prevAlerts, AlertCritical, AlertLow) {
		sc.Emit(newEvent(EventLowStock, sc.Now(), lvl.Key().String(), LowStockPayload{Level: lvl, Alerts: alerts}))
		logger.Info(ctx, "stock level entered low stock",
			logger.String("op", op),
			logger.String("product_id", productID),
			logger.String("warehouse_id", warehouseID),
			logger.String("available", lvl.Available.String()))
	}
	return lvl, nil
}

// fold derives the level of a pair from its stored thresholds and the
// current lots, movements and reservations. It also returns lots whose
// stored status lags their lazy expiry.
func (s *stockService) fold(ctx context.Context, sc *Scope, productID, warehouseID string) (StockLevel, []Lot, error) {
	product, err := sc.Catalog().Product(ctx, productID)
	if err != nil {
		return StockLevel{}, nil, lookupErr(err, "product %s", productID)
	}
	lvl, err := sc.Levels().Get(ctx, productID, warehouseID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return StockLevel{}, nil, err
	}
	lvl.ProductID, lvl.WarehouseID = productID, warehouseID

	sum, lastID, err := sc.Movements().PairSummary(ctx, productID, warehouseID)
	if err != nil {
		return StockLevel{}, nil, fmt.Errorf("pair summary %s@%s: %w", productID, warehouseID, err)
	}

	var (
		onHand, quarantined, expiredQty, reservedLots decimal.Decimal
		stale                                         []Lot
	)
	if product.LotTracked {
		lots, err := sc.Lots().List(ctx, LotFilter{ProductID: productID, WarehouseID: warehouseID})
		if err != nil {
			return StockLevel{}, nil, fmt.Errorf("list lots: %w", err)
		}
		for _, l := range lots {
			if !l.RemainingQuantity.IsPositive() {
				continue
			}
			onHand = onHand.Add(l.RemainingQuantity)
			status := l.EffectiveStatus(sc.Now())
			switch status {
			case LotQuarantine:
				quarantined = quarantined.Add(l.RemainingQuantity)
			case LotExpired:
				expiredQty = expiredQty.Add(l.RemainingQuantity)
			case LotReserved:
				reservedLots = reservedLots.Add(l.RemainingQuantity)
			}
			if status == LotExpired && l.AvailabilityStatus != LotExpired {
				stale = append(stale, l)
			}
		}
	} else {
		onHand = sum
	}

	resv, err := sc.Reservations().ListOpen(ctx, ReservationFilter{ProductID: productID, WarehouseID: warehouseID})
	if err != nil {
		return StockLevel{}, nil, fmt.Errorf("list reservations: %w", err)
	}
	reserved := reservedLots
	for _, r := range resv {
		reserved = reserved.Add(r.Quantity)
	}

	lvl.OnHand = onHand
	lvl.Reserved = reserved
	lvl.Available = onHand.Sub(reserved)
	lvl.QuarantinedQuantity = quarantined
	lvl.ExpiredQuantity = expiredQty
	lvl.LastMovementID = lastID
	return lvl, stale, nil
}
