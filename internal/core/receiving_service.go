package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"inventory-ledger/internal/logger"
)

// ReceiptRequest is a goods receipt from a supplier.
type ReceiptRequest struct {
	ProductID   string
	WarehouseID string
	Quantity    decimal.Decimal
	// OrderedQuantity is the purchase order line quantity. When set and
	// exceeded, the excess is held until approved: in a separate lot for
	// tracked products, as a reservation on the receipt otherwise.
	OrderedQuantity *decimal.Decimal
	ReceiptID       string
	Lot             LotSpec
	Actor           string
}

type ReceiptResult struct {
	MovementIDs []int64         `json:"movement_ids"`
	LotID       string          `json:"lot_id,omitempty"`
	HeldLotID   string          `json:"held_lot_id,omitempty"`
	HoldID      string          `json:"hold_id,omitempty"`
	Excess      decimal.Decimal `json:"excess"`
}

// ReceivingService is the entry point of the external receiving workflow.
type ReceivingService interface {
	ReceiveLot(ctx context.Context, req ReceiptRequest) (ReceiptResult, error)
	// ApproveOverReceipt releases the excess an untracked receipt holds.
	// Held lots of tracked products are approved on the lot registry.
	ApproveOverReceipt(ctx context.Context, receiptID, actor string) ([]Reservation, error)
}

type receivingService struct {
	runner  *Runner
	journal JournalService
	stock   StockService
}

func NewReceivingService(runner *Runner, journal JournalService, stock StockService) ReceivingService {
	return &receivingService{runner: runner, journal: journal, stock: stock}
}

func (s *receivingService) ReceiveLot(ctx context.Context, req ReceiptRequest) (ReceiptResult, error) {
	const op = "core.ReceivingService.ReceiveLot"

	if !req.Quantity.IsPositive() {
		return ReceiptResult{}, invalidQuantity("received quantity must be positive, got %s", req.Quantity)
	}
	if req.OrderedQuantity != nil && !req.OrderedQuantity.IsPositive() {
		return ReceiptResult{}, invalidQuantity("ordered quantity must be positive, got %s", req.OrderedQuantity)
	}
	if req.ReceiptID == "" {
		req.ReceiptID = uuid.NewString()
	}

	accepted, excess := req.Quantity, decimal.Zero
	if req.OrderedQuantity != nil && req.Quantity.GreaterThan(*req.OrderedQuantity) {
		accepted, excess = *req.OrderedQuantity, req.Quantity.Sub(*req.OrderedQuantity)
	}

	var res ReceiptResult
	err := s.runner.Atomic(ctx, []string{StockKey(req.ProductID, req.WarehouseID)}, func(ctx context.Context, sc *Scope) error {
		res = ReceiptResult{}
		product, err := sc.Catalog().Product(ctx, req.ProductID)
		if err != nil {
			return lookupErr(err, "product %s", req.ProductID)
		}
		doc := DocumentRef{Kind: DocPurchaseReceipt, ID: req.ReceiptID}

		in := Movement{
			Type:          MovementInbound,
			ProductID:     req.ProductID,
			ToWarehouseID: req.WarehouseID,
			Quantity:      accepted,
			Document:      doc,
			Actor:         req.Actor,
		}
		if product.LotTracked {
			spec := req.Lot
			spec.AwaitingApproval = false
			spec.Origin = LotOrigin{Kind: OriginSupplierReceipt, Reference: req.ReceiptID}
			if spec.ID == "" {
				spec.ID = uuid.NewString()
			}
			in.NewLot = &spec
			res.LotID = spec.ID
		}
		id, err := s.journal.AppendTx(ctx, sc, in)
		if err != nil {
			return err
		}
		res.MovementIDs = append(res.MovementIDs, id)

		if !excess.IsPositive() {
			return nil
		}
		over := Movement{
			Type:          MovementAdjustment,
			ProductID:     req.ProductID,
			ToWarehouseID: req.WarehouseID,
			Quantity:      excess,
			Document:      doc,
			Actor:         req.Actor,
			Reason:        fmt.Sprintf("over-receipt of %s against ordered %s", excess, req.OrderedQuantity),
		}
		if product.LotTracked {
			held := req.Lot
			held.ID = uuid.NewString()
			held.AwaitingApproval = true
			held.Origin = LotOrigin{Kind: OriginSupplierReceipt, Reference: req.ReceiptID}
			over.NewLot = &held
			res.HeldLotID = held.ID
		}
		id, err = s.journal.AppendTx(ctx, sc, over)
		if err != nil {
			return err
		}
		res.MovementIDs = append(res.MovementIDs, id)
		res.Excess = excess

		if product.LotTracked {
			return nil
		}
		hold := Reservation{
			ID:          uuid.NewString(),
			ReceiptID:   req.ReceiptID,
			ProductID:   req.ProductID,
			WarehouseID: req.WarehouseID,
			Quantity:    excess,
			CreatedAt:   sc.Now(),
		}
		if err := sc.Reservations().Insert(ctx, hold); err != nil {
			return fmt.Errorf("hold over-receipt: %w", err)
		}
		res.HoldID = hold.ID
		_, err = s.stock.RecomputeTx(ctx, sc, req.ProductID, req.WarehouseID)
		return err
	})
	if err != nil {
		return ReceiptResult{}, err
	}
	logger.Info(ctx, "goods received",
		logger.String("op", op),
		logger.String("receipt_id", req.ReceiptID),
		logger.String("product_id", req.ProductID),
		logger.String("quantity", req.Quantity.String()),
		logger.String("held_lot_id", res.HeldLotID),
		logger.String("hold_id", res.HoldID))
	return res, nil
}

func (s *receivingService) ApproveOverReceipt(ctx context.Context, receiptID, actor string) ([]Reservation, error) {
	const op = "core.ReceivingService.ApproveOverReceipt"

	if receiptID == "" {
		return nil, invalidArgument("approval needs a receipt id")
	}
	filter := ReservationFilter{ReceiptID: receiptID}
	keys := func(ctx context.Context, tx Tx) ([]string, error) {
		holds, err := tx.Reservations().ListOpen(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("list receipt holds: %w", err)
		}
		out := make([]string, 0, len(holds))
		for _, h := range holds {
			out = append(out, StockKey(h.ProductID, h.WarehouseID))
		}
		return out, nil
	}

	var released []Reservation
	err := s.runner.AtomicFor(ctx, keys, func(ctx context.Context, sc *Scope) error {
		holds, err := sc.Reservations().ListOpen(ctx, filter)
		if err != nil {
			return fmt.Errorf("list receipt holds: %w", err)
		}
		if len(holds) == 0 {
			return fmt.Errorf("%w: receipt %s holds no over-receipt", ErrInvalidTransition, receiptID)
		}
		for _, h := range holds {
			if err := sc.require(StockKey(h.ProductID, h.WarehouseID)); err != nil {
				return err
			}
			if err := sc.Reservations().Close(ctx, h.ID); err != nil {
				return err
			}
		}
		for _, h := range holds {
			if _, err := s.stock.RecomputeTx(ctx, sc, h.ProductID, h.WarehouseID); err != nil {
				return err
			}
		}
		released = holds
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "over-receipt approved",
		logger.String("op", op),
		logger.String("receipt_id", receiptID),
		logger.Int("holds", len(released)),
		logger.String("actor", actor))
	return released, nil
}
