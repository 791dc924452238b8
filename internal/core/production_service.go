package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"inventory-ledger/internal/logger"
)

// OrderKey serializes state changes of one production order.
func OrderKey(orderID string) string { return "order:" + orderID }

// StartResult lists what StartProduction issued per component.
type StartResult struct {
	Order  ProductionOrder        `json:"order"`
	Issued map[string]IssueResult `json:"issued"`
}

// CompletionRequest reports the output of a finished order. A zero
// Quantity means the ordered quantity.
type CompletionRequest struct {
	Quantity decimal.Decimal
	Lot      LotSpec
	Actor    string
}

// ProductionService is the entry point of the external manufacturing
// workflow. Each call is one atomic scope over the order and every pair it
// touches.
type ProductionService interface {
	RegisterProductionOrder(ctx context.Context, o ProductionOrder) (ProductionOrder, error)
	GetOrder(ctx context.Context, orderID string) (ProductionOrder, error)
	ListOpenOrders(ctx context.Context) ([]ProductionOrder, error)
	// ReserveMaterials holds the order's raw materials in its warehouse. It
	// fails without effect when any component is short.
	ReserveMaterials(ctx context.Context, orderID, actor string) ([]Reservation, error)
	// StartProduction converts reservations into outbound movements chosen
	// by the allocator.
	StartProduction(ctx context.Context, orderID string, policy AllocationPolicy, actor string) (StartResult, error)
	// CompleteProduction receives the finished goods as a new lot.
	CompleteProduction(ctx context.Context, orderID string, req CompletionRequest) (ProductionOrder, int64, error)
	// CancelProduction releases open reservations. Issued materials stay issued.
	CancelProduction(ctx context.Context, orderID, actor string) (ProductionOrder, error)
}

type productionService struct {
	runner    *Runner
	journal   JournalService
	allocator AllocatorService
	boms      BOMService
	stock     StockService
}

func NewProductionService(runner *Runner, journal JournalService, allocator AllocatorService, boms BOMService, stock StockService) ProductionService {
	return &productionService{runner: runner, journal: journal, allocator: allocator, boms: boms, stock: stock}
}

func (s *productionService) RegisterProductionOrder(ctx context.Context, o ProductionOrder) (ProductionOrder, error) {
	if !o.Quantity.IsPositive() {
		return ProductionOrder{}, invalidQuantity("order quantity must be positive, got %s", o.Quantity)
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	err := s.runner.Atomic(ctx, []string{OrderKey(o.ID)}, func(ctx context.Context, sc *Scope) error {
		if _, err := sc.Orders().Get(ctx, o.ID); err == nil {
			return invalidArgument("production order %s already exists", o.ID)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if _, err := sc.Catalog().Product(ctx, o.ProductID); err != nil {
			return lookupErr(err, "product %s", o.ProductID)
		}
		if _, err := sc.Catalog().Warehouse(ctx, o.WarehouseID); err != nil {
			return lookupErr(err, "warehouse %s", o.WarehouseID)
		}
		o.Status = OrderPlanned
		o.MaterialsIssued = false
		o.CreatedAt, o.UpdatedAt = sc.Now(), sc.Now()
		return sc.Orders().Save(ctx, o)
	})
	if err != nil {
		return ProductionOrder{}, err
	}
	return o, nil
}

func (s *productionService) GetOrder(ctx context.Context, orderID string) (ProductionOrder, error) {
	var o ProductionOrder
	err := s.runner.Read(ctx, func(ctx context.Context, sc *Scope) error {
		var err error
		o, err = s.order(ctx, sc, orderID)
		return err
	})
	return o, err
}

func (s *productionService) ListOpenOrders(ctx context.Context) ([]ProductionOrder, error) {
	var out []ProductionOrder
	err := s.runner.Read(ctx, func(ctx context.Context, sc *Scope) error {
		var err error
		out, err = sc.Orders().ListOpen(ctx)
		return err
	})
	return out, err
}

func (s *productionService) order(ctx context.Context, tx Tx, orderID string) (ProductionOrder, error) {
	o, err := tx.Orders().Get(ctx, orderID)
	if errors.Is(err, ErrNotFound) {
		return ProductionOrder{}, unknownReference("production order %s", orderID)
	}
	return o, err
}

// orderKeys locks the order and the pairs of its open reservations. With
// explode it adds the raw-material pairs in the order's warehouse; with
// output, the pair of the finished product.
func (s *productionService) orderKeys(orderID string, explode, output bool) KeysFunc {
	return func(ctx context.Context, tx Tx) ([]string, error) {
		o, err := s.order(ctx, tx, orderID)
		if err != nil {
			return nil, err
		}
		keys := []string{OrderKey(o.ID)}
		if output {
			keys = append(keys, StockKey(o.ProductID, o.WarehouseID))
		}
		resv, err := tx.Reservations().ListOpen(ctx, ReservationFilter{OrderID: o.ID})
		if err != nil {
			return nil, err
		}
		for _, r := range resv {
			keys = append(keys, StockKey(r.ProductID, r.WarehouseID))
		}
		if explode && o.Status.Open() && !o.MaterialsIssued {
			graph, err := s.boms.GraphTx(ctx, tx)
			if err != nil {
				return nil, err
			}
			exp, err := graph.Explode(o.ProductID, o.Quantity)
			if err != nil {
				return nil, err
			}
			for _, r := range exp.RawMaterials() {
				keys = append(keys, StockKey(r.ProductID, o.WarehouseID))
			}
		}
		return keys, nil
	}
}

func (s *productionService) ReserveMaterials(ctx context.Context, orderID, actor string) ([]Reservation, error) {
	const op = "core.ProductionService.ReserveMaterials"

	var out []Reservation
	err := s.runner.AtomicFor(ctx, s.orderKeys(orderID, true, false), func(ctx context.Context, sc *Scope) error {
		out = nil
		o, err := s.order(ctx, sc, orderID)
		if err != nil {
			return err
		}
		if o.Status != OrderPlanned {
			return invalidArgument("order %s is %s; materials are reserved once, while planned", o.ID, o.Status)
		}
		raw, err := s.rawMaterials(ctx, sc, o)
		if err != nil {
			return err
		}
		// Only stock the allocator would hand out at start can be reserved.
		for _, r := range raw {
			if err := sc.require(StockKey(r.ProductID, o.WarehouseID)); err != nil {
				return err
			}
			if _, err := s.allocator.AllocateTx(ctx, sc, AllocationRequest{
				ProductID:   r.ProductID,
				WarehouseID: o.WarehouseID,
				Quantity:    r.MandatoryQuantity,
				ReservedFor: o.ID,
			}); err != nil {
				return err
			}
		}
		for _, r := range raw {
			resv := Reservation{
				ID:          uuid.NewString(),
				OrderID:     o.ID,
				ProductID:   r.ProductID,
				WarehouseID: o.WarehouseID,
				Quantity:    r.MandatoryQuantity,
				CreatedAt:   sc.Now(),
			}
			if err := sc.Reservations().Insert(ctx, resv); err != nil {
				return fmt.Errorf("insert reservation: %w", err)
			}
			if _, err := s.stock.RecomputeTx(ctx, sc, r.ProductID, o.WarehouseID); err != nil {
				return err
			}
			out = append(out, resv)
		}
		o.Status = OrderReleased
		o.UpdatedAt = sc.Now()
		return sc.Orders().Save(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "materials reserved",
		logger.String("op", op),
		logger.String("order_id", orderID),
		logger.Int("components", len(out)),
		logger.String("actor", actor))
	return out, nil
}

func (s *productionService) rawMaterials(ctx context.Context, sc *Scope, o ProductionOrder) ([]Requirement, error) {
	graph, err := s.boms.GraphTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	exp, err := graph.Explode(o.ProductID, o.Quantity)
	if err != nil {
		return nil, err
	}
	return exp.RawMaterials(), nil
}

func (s *productionService) StartProduction(ctx context.Context, orderID string, policy AllocationPolicy, actor string) (StartResult, error) {
	const op = "core.ProductionService.StartProduction"

	var res StartResult
	err := s.runner.AtomicFor(ctx, s.orderKeys(orderID, true, false), func(ctx context.Context, sc *Scope) error {
		o, err := s.order(ctx, sc, orderID)
		if err != nil {
			return err
		}
		if (o.Status != OrderPlanned && o.Status != OrderReleased) || o.MaterialsIssued {
			return invalidArgument("order %s is %s and cannot start", o.ID, o.Status)
		}
		raw, err := s.rawMaterials(ctx, sc, o)
		if err != nil {
			return err
		}
		if err := s.closeReservations(ctx, sc, o.ID); err != nil {
			return err
		}
		res = StartResult{Issued: make(map[string]IssueResult, len(raw))}
		for _, r := range raw {
			issued, err := s.allocator.IssueTx(ctx, sc, IssueRequest{
				AllocationRequest: AllocationRequest{
					ProductID:   r.ProductID,
					WarehouseID: o.WarehouseID,
					Quantity:    r.MandatoryQuantity,
					Policy:      policy,
					ReservedFor: o.ID,
				},
				Document: DocumentRef{Kind: DocManufacturingOrder, ID: o.ID},
				Actor:    actor,
			})
			if err != nil {
				return fmt.Errorf("issue %s for order %s: %w", r.ProductID, o.ID, err)
			}
			res.Issued[r.ProductID] = issued
		}
		o.Status = OrderInProgress
		o.MaterialsIssued = true
		o.UpdatedAt = sc.Now()
		res.Order = o
		return sc.Orders().Save(ctx, o)
	})
	if err != nil {
		return StartResult{}, err
	}
	logger.Info(ctx, "production started",
		logger.String("op", op),
		logger.String("order_id", orderID),
		logger.Int("components", len(res.Issued)))
	return res, nil
}

// closeReservations closes the order's open reservations and refolds the
// affected pairs.
func (s *productionService) closeReservations(ctx context.Context, sc *Scope, orderID string) error {
	resv, err := sc.Reservations().ListOpen(ctx, ReservationFilter{OrderID: orderID})
	if err != nil {
		return fmt.Errorf("list reservations: %w", err)
	}
	for _, r := range resv {
		if err := sc.require(StockKey(r.ProductID, r.WarehouseID)); err != nil {
			return err
		}
		if err := sc.Reservations().Close(ctx, r.ID); err != nil {
			return fmt.Errorf("close reservation %s: %w", r.ID, err)
		}
		if _, err := s.stock.RecomputeTx(ctx, sc, r.ProductID, r.WarehouseID); err != nil {
			return err
		}
	}
	return nil
}

func (s *productionService) CompleteProduction(ctx context.Context, orderID string, req CompletionRequest) (ProductionOrder, int64, error) {
	const op = "core.ProductionService.CompleteProduction"

	var (
		order ProductionOrder
		id    int64
	)
	err := s.runner.AtomicFor(ctx, s.orderKeys(orderID, false, true), func(ctx context.Context, sc *Scope) error {
		o, err := s.order(ctx, sc, orderID)
		if err != nil {
			return err
		}
		if o.Status != OrderInProgress {
			return invalidArgument("order %s is %s; only in-progress orders complete", o.ID, o.Status)
		}
		qty := req.Quantity
		if qty.IsZero() {
			qty = o.Quantity
		}
		product, err := sc.Catalog().Product(ctx, o.ProductID)
		if err != nil {
			return lookupErr(err, "product %s", o.ProductID)
		}
		m := Movement{
			Type:          MovementInbound,
			ProductID:     o.ProductID,
			ToWarehouseID: o.WarehouseID,
			Quantity:      qty,
			Document:      DocumentRef{Kind: DocManufacturingOrder, ID: o.ID},
			Actor:         req.Actor,
		}
		if product.LotTracked {
			spec := req.Lot
			spec.Origin = LotOrigin{Kind: OriginProductionOrder, Reference: o.ID}
			m.NewLot = &spec
		}
		id, err = s.journal.AppendTx(ctx, sc, m)
		if err != nil {
			return err
		}
		o.Status = OrderCompleted
		o.UpdatedAt = sc.Now()
		order = o
		return sc.Orders().Save(ctx, o)
	})
	if err != nil {
		return ProductionOrder{}, 0, err
	}
	logger.Info(ctx, "production completed",
		logger.String("op", op),
		logger.String("order_id", orderID),
		logger.Int64("movement_id", id))
	return order, id, nil
}

func (s *productionService) CancelProduction(ctx context.Context, orderID, actor string) (ProductionOrder, error) {
	const op = "core.ProductionService.CancelProduction"

	var order ProductionOrder
	err := s.runner.AtomicFor(ctx, s.orderKeys(orderID, false, false), func(ctx context.Context, sc *Scope) error {
		o, err := s.order(ctx, sc, orderID)
		if err != nil {
			return err
		}
		if !o.Status.Open() {
			return invalidArgument("order %s is already %s", o.ID, o.Status)
		}
		if err := s.closeReservations(ctx, sc, o.ID); err != nil {
			return err
		}
		o.Status = OrderCancelled
		o.UpdatedAt = sc.Now()
		order = o
		return sc.Orders().Save(ctx, o)
	})
	if err != nil {
		return ProductionOrder{}, err
	}
	logger.Info(ctx, "production cancelled",
		logger.String("op", op),
		logger.String("order_id", orderID),
		logger.String("actor", actor))
	return order, nil
}
