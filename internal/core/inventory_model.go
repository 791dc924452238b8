package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the external catalog entry the engine stocks.
type Product struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	UnitOfMeasure      string          `json:"unit_of_measure"`
	UnitCost           decimal.Decimal `json:"unit_cost"`
	LotTracked         bool            `json:"lot_tracked"`
	RequiresInspection bool            `json:"requires_inspection"` // new lots start pending and quarantined
}

// TemperatureBand is the storage range a warehouse guarantees, in Celsius.
type TemperatureBand struct {
	MinCelsius decimal.Decimal `json:"min_celsius"`
	MaxCelsius decimal.Decimal `json:"max_celsius"`
}

// Warehouse represents a physical storage location.
type Warehouse struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	CanReceive      bool             `json:"can_receive"`
	CanShip         bool             `json:"can_ship"`
	TemperatureBand *TemperatureBand `json:"temperature_band,omitempty"`
}

// SupplierItem is one supplier's catalog offer for a product.
type SupplierItem struct {
	SupplierID   string          `json:"supplier_id"`
	ProductID    string          `json:"product_id"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LeadTimeDays int             `json:"lead_time_days"`
	MinOrderQty  decimal.Decimal `json:"min_order_qty"`
	IsPreferred  bool            `json:"is_preferred"`
}

// Thresholds configure alerting and replenishment for one stock level.
// Nil pointers mean "not set".
type Thresholds struct {
	MinStockAlert   decimal.Decimal  `json:"min_stock_alert"`
	MaxStockAlert   *decimal.Decimal `json:"max_stock_alert,omitempty"`
	ReorderPoint    *decimal.Decimal `json:"reorder_point,omitempty"`
	ReorderQuantity decimal.Decimal  `json:"reorder_quantity"`
}

// StockLevel is the cached aggregate for a (product, warehouse) pair.
// Quantity fields are only ever written by StockLedger.Recompute.
type StockLevel struct {
	ProductID           string          `json:"product_id"`
	WarehouseID         string          `json:"warehouse_id"`
	OnHand              decimal.Decimal `json:"on_hand"`
	Reserved            decimal.Decimal `json:"reserved"`
	Available           decimal.Decimal `json:"available"` // = OnHand - Reserved
	QuarantinedQuantity decimal.Decimal `json:"quarantined_quantity"`
	ExpiredQuantity     decimal.Decimal `json:"expired_quantity"`
	Thresholds
	LastMovementID int64     `json:"last_movement_id"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Key returns the pair the level aggregates.
func (l StockLevel) Key() PairKey {
	return PairKey{ProductID: l.ProductID, WarehouseID: l.WarehouseID}
}

// Alerts classifies the level against its thresholds.
func (l StockLevel) Alerts() []Alert {
	return ClassifyAlerts(l.OnHand, l.Available, l.Thresholds)
}

// Alert is a stock condition worth surfacing.
type Alert string

const (
	AlertCritical  Alert = "critical"
	AlertLow       Alert = "low"
	AlertReorder   Alert = "reorder"
	AlertOverstock Alert = "overstock"
)

// ClassifyAlerts returns every alert that holds, in display priority order
// (critical, low, reorder, overstock).
func ClassifyAlerts(onHand, available decimal.Decimal, t Thresholds) []Alert {
	var alerts []Alert
	if !onHand.IsPositive() {
		alerts = append(alerts, AlertCritical)
	}
	if available.LessThan(t.MinStockAlert) {
		alerts = append(alerts, AlertLow)
	}
	if t.ReorderPoint != nil && available.LessThanOrEqual(*t.ReorderPoint) {
		alerts = append(alerts, AlertReorder)
	}
	if t.MaxStockAlert != nil && onHand.GreaterThan(*t.MaxStockAlert) {
		alerts = append(alerts, AlertOverstock)
	}
	return alerts
}

func hasAlert(alerts []Alert, want ...Alert) bool {
	for _, a := range alerts {
		for _, w := range want {
			if a == w {
				return true
			}
		}
	}
	return false
}
