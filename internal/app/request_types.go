package app

import (
	"time"

	"github.com/shopspring/decimal"
)

// LotQuery narrows ListLots. Empty fields match everything.
type LotQuery struct {
	ProductID       string
	WarehouseID     string
	IncludeDepleted bool
}

// HistoryQuery narrows History.
type HistoryQuery struct {
	ProductID   string
	WarehouseID string
	LotID       string
	AfterID     int64
	Limit       int
}

// ReceiveRequest is the input for a supplier receipt.
type ReceiveRequest struct {
	ProductID       string
	WarehouseID     string
	Quantity        decimal.Decimal
	OrderedQuantity *decimal.Decimal // nil means no purchase order limit
	ReceiptID       string
	LotID           string // generated when empty
	ManufactureDate time.Time
	ExpiryDate      *time.Time
	UnitCost        decimal.Decimal
	Actor           string
}

// IssueRequest is the input for an outbound shipment.
type IssueRequest struct {
	ProductID   string
	WarehouseID string
	Quantity    decimal.Decimal
	Policy      string // fifo or fefo, empty means fifo
	DocumentID  string
	Reason      string
	Actor       string
}

// TransferRequest moves quantity between warehouses. LotID pins the source
// lot of a lot-tracked product.
type TransferRequest struct {
	ProductID       string
	FromWarehouseID string
	ToWarehouseID   string
	Quantity        decimal.Decimal
	LotID           string
	DocumentID      string
	Reason          string
	Actor           string
}

// CountRequest is one counted pair or lot.
type CountRequest struct {
	ProductID       string
	WarehouseID     string
	LotID           string
	CountedQuantity decimal.Decimal
	CountID         string
	Reason          string
	Actor           string
}

// OrderRequest registers a production order.
type OrderRequest struct {
	ID          string
	ProductID   string
	WarehouseID string
	Quantity    decimal.Decimal
}

// CompleteRequest reports the output of a production order.
type CompleteRequest struct {
	Quantity   decimal.Decimal // zero means the ordered quantity
	LotID      string
	ExpiryDate *time.Time
	Actor      string
}
