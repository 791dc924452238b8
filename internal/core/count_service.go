package core

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"inventory-ledger/internal/logger"
)

// CountRequest reports a physical count. Lot-tracked products are counted
// per lot.
type CountRequest struct {
	ProductID       string
	WarehouseID     string
	LotID           string
	CountedQuantity decimal.Decimal
	CountID         string
	Reason          string
	Actor           string
}

type CountResult struct {
	Expected   decimal.Decimal `json:"expected"`
	Counted    decimal.Decimal `json:"counted"`
	Delta      decimal.Decimal `json:"delta"`
	MovementID int64           `json:"movement_id,omitempty"`
}

// CountService reconciles physical counts with the journal.
type CountService interface {
	// RecordCount appends an adjustment for the difference between the count
	// and the book quantity. A matching count records nothing.
	RecordCount(ctx context.Context, req CountRequest) (CountResult, error)
}

type countService struct {
	runner  *Runner
	journal JournalService
	stock   StockService
}

func NewCountService(runner *Runner, journal JournalService, stock StockService) CountService {
	return &countService{runner: runner, journal: journal, stock: stock}
}

func (s *countService) RecordCount(ctx context.Context, req CountRequest) (CountResult, error) {
	const op = "core.CountService.RecordCount"

	if req.CountedQuantity.IsNegative() {
		return CountResult{}, invalidQuantity("counted quantity must not be negative, got %s", req.CountedQuantity)
	}
	if strings.TrimSpace(req.Reason) == "" {
		return CountResult{}, invalidQuantity("physical count adjustment needs a reason")
	}
	if req.CountID == "" {
		req.CountID = uuid.NewString()
	}

	var res CountResult
	err := s.runner.Atomic(ctx, []string{StockKey(req.ProductID, req.WarehouseID)}, func(ctx context.Context, sc *Scope) error {
		product, err := sc.Catalog().Product(ctx, req.ProductID)
		if err != nil {
			return lookupErr(err, "product %s", req.ProductID)
		}

		var expected decimal.Decimal
		switch {
		case product.LotTracked && req.LotID == "":
			return invalidArgument("count of lot-tracked product %s must name a lot", product.ID)
		case product.LotTracked:
			l, err := sc.Lots().Get(ctx, req.LotID)
			if err != nil {
				return err
			}
			if l.ProductID != req.ProductID || l.WarehouseID != req.WarehouseID {
				return invalidArgument("lot %s holds %s in %s", l.ID, l.ProductID, l.WarehouseID)
			}
			expected = l.RemainingQuantity
		default:
			lvl, err := s.stock.LevelTx(ctx, sc, req.ProductID, req.WarehouseID)
			if err != nil {
				return err
			}
			expected = lvl.OnHand
		}

		res = CountResult{Expected: expected, Counted: req.CountedQuantity, Delta: req.CountedQuantity.Sub(expected)}
		if res.Delta.IsZero() {
			return nil
		}
		res.MovementID, err = s.journal.AppendTx(ctx, sc, Movement{
			Type:          MovementAdjustment,
			ProductID:     req.ProductID,
			ToWarehouseID: req.WarehouseID,
			LotID:         req.LotID,
			Quantity:      res.Delta,
			Document:      DocumentRef{Kind: DocPhysicalCount, ID: req.CountID},
			Actor:         req.Actor,
			Reason:        req.Reason,
		})
		return err
	})
	if err != nil {
		return CountResult{}, err
	}
	logger.Info(ctx, "count recorded",
		logger.String("op", op),
		logger.String("product_id", req.ProductID),
		logger.String("warehouse_id", req.WarehouseID),
		logger.String("delta", res.Delta.String()))
	return res, nil
}
