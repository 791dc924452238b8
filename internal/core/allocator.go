package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"inventory-ledger/internal/logger"
)

type AllocationPolicy string

const (
	PolicyFIFO AllocationPolicy = "fifo"
	PolicyFEFO AllocationPolicy = "fefo"
)

// ParsePolicy accepts "fifo" or "fefo" in any case. Empty means FIFO.
func ParsePolicy(s string) (AllocationPolicy, error) {
	switch p := AllocationPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyFIFO, nil
	case PolicyFIFO, PolicyFEFO:
		return p, nil
	}
	return "", invalidArgument("unknown allocation policy %q", s)
}

// AllocationLine is one lot's share of an allocation. LotID is empty for
// products that are not lot-tracked.
type AllocationLine struct {
	LotID    string          `json:"lot_id,omitempty"`
	Quantity decimal.Decimal `json:"quantity"`
}

// AllocationRequest asks for quantity of a product from one warehouse.
type AllocationRequest struct {
	ProductID   string
	WarehouseID string
	Quantity    decimal.Decimal
	Policy      AllocationPolicy
	// ReservedFor names the production order whose reservations may be
	// consumed. Reservations of other orders are kept out of reach.
	ReservedFor string
}

// IssueRequest allocates and records the outbound movements in one scope.
type IssueRequest struct {
	AllocationRequest
	Document DocumentRef
	Actor    string
	Reason   string
}

type IssueResult struct {
	Lines       []AllocationLine `json:"lines"`
	MovementIDs []int64          `json:"movement_ids"`
}

// AllocatorService selects the lots that satisfy an outbound request.
type AllocatorService interface {
	// Allocate returns a plan without recording movements.
	Allocate(ctx context.Context, req AllocationRequest) ([]AllocationLine, error)
	Issue(ctx context.Context, req IssueRequest) (IssueResult, error)

	AllocateTx(ctx context.Context, s *Scope, req AllocationRequest) ([]AllocationLine, error)
	IssueTx(ctx context.Context, s *Scope, req IssueRequest) (IssueResult, error)
}

type allocatorService struct {
	runner  *Runner
	journal JournalService
	stock   StockService
}

func NewAllocatorService(runner *Runner, journal JournalService, stock StockService) AllocatorService {
	return &allocatorService{runner: runner, journal: journal, stock: stock}
}

// Plan orders the allocatable lots by policy and takes greedily until qty is
// covered. It is all-or-nothing: on a shortfall no lines are returned.
func Plan(lots []Lot, qty decimal.Decimal, policy AllocationPolicy, now time.Time) ([]AllocationLine, error) {
	if !qty.IsPositive() {
		return nil, invalidQuantity("allocation quantity must be positive, got %s", qty)
	}
	eligible := lo.Filter(lots, func(l Lot, _ int) bool { return l.Allocatable(now) })
	sortLots(eligible, policy)

	total := lo.Reduce(eligible, func(acc decimal.Decimal, l Lot, _ int) decimal.Decimal {
		return acc.Add(l.RemainingQuantity)
	}, decimal.Zero)
	if total.LessThan(qty) {
		qe := &QuantityError{Err: ErrInsufficientStock, Available: total, Requested: qty}
		if len(lots) > 0 {
			qe.ProductID, qe.WarehouseID = lots[0].ProductID, lots[0].WarehouseID
		}
		return nil, qe
	}

	var lines []AllocationLine
	left := qty
	for _, l := range eligible {
		if !left.IsPositive() {
			break
		}
		take := decimal.Min(left, l.RemainingQuantity)
		lines = append(lines, AllocationLine{LotID: l.ID, Quantity: take})
		left = left.Sub(take)
	}
	return lines, nil
}

func sortLots(lots []Lot, policy AllocationPolicy) {
	sort.SliceStable(lots, func(i, j int) bool {
		a, b := lots[i], lots[j]
		if policy == PolicyFEFO {
			switch {
			case a.ExpiryDate == nil && b.ExpiryDate != nil:
				return false
			case a.ExpiryDate != nil && b.ExpiryDate == nil:
				return true
			case a.ExpiryDate != nil && !a.ExpiryDate.Equal(*b.ExpiryDate):
				return a.ExpiryDate.Before(*b.ExpiryDate)
			}
			return a.ID < b.ID
		}
		if !a.ManufactureDate.Equal(b.ManufactureDate) {
			return a.ManufactureDate.Before(b.ManufactureDate)
		}
		if !a.ReceivedAt.Equal(b.ReceivedAt) {
			return a.ReceivedAt.Before(b.ReceivedAt)
		}
		return a.ID < b.ID
	})
}

func (s *allocatorService) Allocate(ctx context.Context, req AllocationRequest) ([]AllocationLine, error) {
	var lines []AllocationLine
	err := s.runner.Atomic(ctx, []string{StockKey(req.ProductID, req.WarehouseID)}, func(ctx context.Context, sc *Scope) error {
		var err error
		lines, err = s.AllocateTx(ctx, sc, req)
		return err
	})
	return lines, err
}

func (s *allocatorService) AllocateTx(ctx context.Context, sc *Scope, req AllocationRequest) ([]AllocationLine, error) {
	if !req.Quantity.IsPositive() {
		return nil, invalidQuantity("allocation quantity must be positive, got %s", req.Quantity)
	}
	if req.Policy == "" {
		req.Policy = PolicyFIFO
	}
	product, err := sc.Catalog().Product(ctx, req.ProductID)
	if err != nil {
		return nil, lookupErr(err, "product %s", req.ProductID)
	}
	if _, err := sc.Catalog().Warehouse(ctx, req.WarehouseID); err != nil {
		return nil, lookupErr(err, "warehouse %s", req.WarehouseID)
	}

	held, err := s.heldForOthers(ctx, sc, req)
	if err != nil {
		return nil, err
	}

	if !product.LotTracked {
		lvl, err := s.stock.LevelTx(ctx, sc, req.ProductID, req.WarehouseID)
		if err != nil {
			return nil, err
		}
		capacity := lvl.OnHand.Sub(held)
		if capacity.LessThan(req.Quantity) {
			return nil, &QuantityError{Err: ErrInsufficientStock, ProductID: req.ProductID, WarehouseID: req.WarehouseID, Available: capacity, Requested: req.Quantity}
		}
		return []AllocationLine{{Quantity: req.Quantity}}, nil
	}

	lots, err := sc.Lots().List(ctx, LotFilter{ProductID: req.ProductID, WarehouseID: req.WarehouseID})
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	// Stock promised to other orders counts against the eligible total.
	lines, err := Plan(lots, req.Quantity.Add(held), req.Policy, sc.Now())
	if err != nil {
		var qe *QuantityError
		if errors.As(err, &qe) {
			qe.ProductID, qe.WarehouseID = req.ProductID, req.WarehouseID
			qe.Available = decimal.Max(qe.Available.Sub(held), decimal.Zero)
			qe.Requested = req.Quantity
		}
		return nil, err
	}
	if held.IsPositive() {
		lines, err = Plan(lots, req.Quantity, req.Policy, sc.Now())
		if err != nil {
			return nil, err
		}
	}
	return lines, nil
}

// heldForOthers sums open reservations on the pair that belong to orders
// other than req.ReservedFor.
func (s *allocatorService) heldForOthers(ctx context.Context, sc *Scope, req AllocationRequest) (decimal.Decimal, error) {
	resv, err := sc.Reservations().ListOpen(ctx, ReservationFilter{ProductID: req.ProductID, WarehouseID: req.WarehouseID})
	if err != nil {
		return decimal.Zero, fmt.Errorf("list reservations: %w", err)
	}
	held := decimal.Zero
	for _, r := range resv {
		if req.ReservedFor == "" || r.OrderID != req.ReservedFor {
			held = held.Add(r.Quantity)
		}
	}
	return held, nil
}

func (s *allocatorService) Issue(ctx context.Context, req IssueRequest) (IssueResult, error) {
	const op = "core.AllocatorService.Issue"

	var res IssueResult
	err := s.runner.Atomic(ctx, []string{StockKey(req.ProductID, req.WarehouseID)}, func(ctx context.Context, sc *Scope) error {
		var err error
		res, err = s.IssueTx(ctx, sc, req)
		return err
	})
	if err != nil {
		return IssueResult{}, err
	}
	logger.Info(ctx, "stock issued",
		logger.String("op", op),
		logger.String("product_id", req.ProductID),
		logger.String("warehouse_id", req.WarehouseID),
		logger.String("quantity", req.Quantity.String()),
		logger.Int("lots", len(res.Lines)))
	return res, nil
}

func (s *allocatorService) IssueTx(ctx context.Context, sc *Scope, req IssueRequest) (IssueResult, error) {
	lines, err := s.AllocateTx(ctx, sc, req.AllocationRequest)
	if err != nil {
		return IssueResult{}, err
	}
	res := IssueResult{Lines: lines}
	for _, line := range lines {
		id, err := s.journal.AppendTx(ctx, sc, Movement{
			Type:            MovementOutbound,
			ProductID:       req.ProductID,
			FromWarehouseID: req.WarehouseID,
			LotID:           line.LotID,
			Quantity:        line.Quantity,
			Document:        req.Document,
			Actor:           req.Actor,
			Reason:          req.Reason,
		})
		if err != nil {
			return IssueResult{}, err
		}
		res.MovementIDs = append(res.MovementIDs, id)
	}
	return res, nil
}
