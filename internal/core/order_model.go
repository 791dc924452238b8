package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductionOrderStatus mirrors the external manufacturing workflow.
//
//	planned → released → in_progress → completed
//	planned/released → cancelled
type ProductionOrderStatus string

const (
	OrderPlanned    ProductionOrderStatus = "planned"
	OrderReleased   ProductionOrderStatus = "released"
	OrderInProgress ProductionOrderStatus = "in_progress"
	OrderCompleted  ProductionOrderStatus = "completed"
	OrderCancelled  ProductionOrderStatus = "cancelled"
)

// Open reports whether the order still contributes to material demand.
func (s ProductionOrderStatus) Open() bool {
	return s == OrderPlanned || s == OrderReleased || s == OrderInProgress
}

// ProductionOrder is the engine's read model of a manufacturing order.
type ProductionOrder struct {
	ID              string                `json:"id"`
	ProductID       string                `json:"product_id"`
	Quantity        decimal.Decimal       `json:"quantity"`
	WarehouseID     string                `json:"warehouse_id"`
	Status          ProductionOrderStatus `json:"status"`
	MaterialsIssued bool                  `json:"materials_issued"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// Reservation holds quantity on a pair. A production order holds its
// materials until they are issued or the order is cancelled; a receipt
// holds the over-received excess of an untracked product until approved.
// Exactly one of OrderID and ReceiptID is set.
type Reservation struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id,omitempty"`
	ReceiptID   string          `json:"receipt_id,omitempty"`
	ProductID   string          `json:"product_id"`
	WarehouseID string          `json:"warehouse_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ReservationFilter narrows open reservations. Empty fields match everything.
type ReservationFilter struct {
	OrderID     string
	ReceiptID   string
	ProductID   string
	WarehouseID string
}

// Priority ranks a replenishment suggestion.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Rank orders priorities for display, most urgent first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	}
	return 3
}

// ReplenishmentSuggestion is one derived purchase proposal. Suggestions are
// regenerated on demand and never mutated.
type ReplenishmentSuggestion struct {
	ProductID            string          `json:"product_id"`
	WarehouseID          string          `json:"warehouse_id"`
	OnHand               decimal.Decimal `json:"on_hand"`
	CurrentAvailable     decimal.Decimal `json:"current_available"`
	OpenOrderRequirement decimal.Decimal `json:"open_order_requirement"`
	ProjectedAvailable   decimal.Decimal `json:"projected_available"`
	SuggestedQuantity    decimal.Decimal `json:"suggested_quantity"`
	SupplierID           string          `json:"supplier_id,omitempty"`
	LeadTimeDays         int             `json:"lead_time_days"`
	EstimatedCost        decimal.Decimal `json:"estimated_cost"`
	Priority             Priority        `json:"priority"`
}
