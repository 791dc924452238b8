package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type QualityStatus string

const (
	QualityPending     QualityStatus = "pending"
	QualityApproved    QualityStatus = "approved"
	QualityRejected    QualityStatus = "rejected"
	QualityConditional QualityStatus = "conditional"
)

type AvailabilityStatus string

const (
	LotAvailable  AvailabilityStatus = "available"
	LotReserved   AvailabilityStatus = "reserved"
	LotQuarantine AvailabilityStatus = "quarantine"
	LotExpired    AvailabilityStatus = "expired"
	LotDepleted   AvailabilityStatus = "depleted"
)

type OriginKind string

const (
	OriginSupplierReceipt OriginKind = "supplier_receipt"
	OriginProductionOrder OriginKind = "production_order"
	OriginTransfer        OriginKind = "transfer"
	OriginAdjustment      OriginKind = "adjustment"
)

// LotOrigin points at the document that brought the lot into existence.
type LotOrigin struct {
	Kind      OriginKind `json:"kind"`
	Reference string     `json:"reference"`
}

// Hold reasons recorded on quarantined lots.
const (
	HoldOverReceipt       = "over-receipt pending approval"
	HoldPendingInspection = "pending inspection"
	HoldRejected          = "rejected by quality"
)

// Lot is a traceable batch of one product in one warehouse.
// Invariant: 0 <= RemainingQuantity <= InitialQuantity.
type Lot struct {
	ID                 string             `json:"id"`
	ProductID          string             `json:"product_id"`
	WarehouseID        string             `json:"warehouse_id"`
	InitialQuantity    decimal.Decimal    `json:"initial_quantity"`
	RemainingQuantity  decimal.Decimal    `json:"remaining_quantity"`
	UnitCost           decimal.Decimal    `json:"unit_cost"`
	ManufactureDate    time.Time          `json:"manufacture_date"`
	ExpiryDate         *time.Time         `json:"expiry_date,omitempty"`
	ReceivedAt         time.Time          `json:"received_at"`
	QualityStatus      QualityStatus      `json:"quality_status"`
	AvailabilityStatus AvailabilityStatus `json:"availability_status"`
	Origin             LotOrigin          `json:"origin"`
	OriginMovementID   int64              `json:"origin_movement_id,omitempty"`
	ParentLotID        string             `json:"parent_lot_id,omitempty"`
	HoldReason         string             `json:"hold_reason,omitempty"`
	AwaitingApproval   bool               `json:"awaiting_approval"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// LotSpec describes a lot to open. Quantity, product and warehouse come from
// the movement that opens it.
type LotSpec struct {
	ID               string // generated when empty
	ManufactureDate  time.Time
	ExpiryDate       *time.Time
	UnitCost         decimal.Decimal
	Origin           LotOrigin
	QualityStatus    QualityStatus // defaults from the product's inspection flag
	AwaitingApproval bool
}

// ExpiredAt reports whether the lot still holds quantity past its expiry date.
func (l Lot) ExpiredAt(now time.Time) bool {
	return l.ExpiryDate != nil && now.After(*l.ExpiryDate) && l.RemainingQuantity.IsPositive()
}

// EffectiveStatus applies the lazy expiry rule on top of the stored status.
func (l Lot) EffectiveStatus(now time.Time) AvailabilityStatus {
	switch l.AvailabilityStatus {
	case LotAvailable, LotReserved, LotQuarantine:
		if l.ExpiredAt(now) {
			return LotExpired
		}
	}
	return l.AvailabilityStatus
}

// Allocatable reports whether the allocator may draw from the lot.
func (l Lot) Allocatable(now time.Time) bool {
	return l.EffectiveStatus(now) == LotAvailable &&
		l.RemainingQuantity.IsPositive() &&
		!l.AwaitingApproval
}

// LotFilter narrows lot listings. Empty fields match everything.
type LotFilter struct {
	ProductID       string
	WarehouseID     string
	IncludeDepleted bool
}

// InspectionResult is the outcome reported by the quality workflow.
type InspectionResult string

const (
	InspectionPassed      InspectionResult = "passed"
	InspectionFailed      InspectionResult = "failed"
	InspectionConditional InspectionResult = "conditional"
)
