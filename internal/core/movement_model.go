package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type MovementType string

const (
	MovementInbound    MovementType = "inbound"
	MovementOutbound   MovementType = "outbound"
	MovementTransfer   MovementType = "transfer"
	MovementAdjustment MovementType = "adjustment"
)

type DocumentKind string

const (
	DocPurchaseReceipt    DocumentKind = "purchase_receipt"
	DocManufacturingOrder DocumentKind = "manufacturing_order"
	DocPhysicalCount      DocumentKind = "physical_count"
	DocWriteOff           DocumentKind = "write_off"
	DocReversal           DocumentKind = "reversal"
	DocTransferOrder      DocumentKind = "transfer_order"
	DocSalesShipment      DocumentKind = "sales_shipment"
)

// DocumentRef links a movement to the business document that caused it.
type DocumentRef struct {
	Kind DocumentKind `json:"kind"`
	ID   string       `json:"id"`
}

// Movement is one immutable journal record.
//
// Quantity is a positive magnitude for inbound, outbound and transfer
// movements and a signed delta for adjustments. Adjustments name their
// warehouse in ToWarehouseID.
type Movement struct {
	ID                 int64           `json:"id"`
	OccurredAt         time.Time       `json:"occurred_at"`
	Type               MovementType    `json:"type"`
	ProductID          string          `json:"product_id"`
	Quantity           decimal.Decimal `json:"quantity"`
	FromWarehouseID    string          `json:"from_warehouse_id,omitempty"`
	ToWarehouseID      string          `json:"to_warehouse_id,omitempty"`
	LotID              string          `json:"lot_id,omitempty"`
	DestLotID          string          `json:"dest_lot_id,omitempty"` // lot opened in the destination by a transfer
	Document           DocumentRef     `json:"document"`
	Actor              string          `json:"actor"`
	Reason             string          `json:"reason,omitempty"`
	ReversesMovementID int64           `json:"reverses_movement_id,omitempty"`

	// NewLot is input only: inbound movements of lot-tracked products (and
	// adjustments that bring in unlotted stock) open a lot described by it.
	NewLot *LotSpec `json:"-"`
}

// DrawnFrom returns the quantity the movement took out of lotID. Movements
// that opened the lot are excluded by the caller.
func (m Movement) DrawnFrom(lotID string) decimal.Decimal {
	if m.LotID != lotID {
		return decimal.Zero
	}
	switch m.Type {
	case MovementOutbound, MovementTransfer:
		return m.Quantity
	case MovementAdjustment:
		return m.Quantity.Neg()
	}
	return decimal.Zero
}

// PairDeltas returns the signed quantity change per (product, warehouse) pair.
func (m Movement) PairDeltas() map[PairKey]decimal.Decimal {
	out := make(map[PairKey]decimal.Decimal, 2)
	switch m.Type {
	case MovementInbound:
		out[PairKey{m.ProductID, m.ToWarehouseID}] = m.Quantity
	case MovementOutbound:
		out[PairKey{m.ProductID, m.FromWarehouseID}] = m.Quantity.Neg()
	case MovementTransfer:
		out[PairKey{m.ProductID, m.FromWarehouseID}] = m.Quantity.Neg()
		out[PairKey{m.ProductID, m.ToWarehouseID}] = m.Quantity
	case MovementAdjustment:
		out[PairKey{m.ProductID, m.ToWarehouseID}] = m.Quantity
	}
	return out
}

// Pairs lists the (product, warehouse) pairs the movement touches.
func (m Movement) Pairs() []PairKey {
	var keys []PairKey
	if m.FromWarehouseID != "" {
		keys = append(keys, PairKey{m.ProductID, m.FromWarehouseID})
	}
	if m.ToWarehouseID != "" && m.ToWarehouseID != m.FromWarehouseID {
		keys = append(keys, PairKey{m.ProductID, m.ToWarehouseID})
	}
	return keys
}

// MovementFilter narrows journal history. Zero fields match everything.
type MovementFilter struct {
	ProductID   string
	WarehouseID string // matches either side
	LotID       string // matches LotID or DestLotID
	ReversesID  int64
	AfterID     int64
	Limit       int
}
