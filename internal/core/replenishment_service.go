package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"inventory-ledger/internal/logger"
)

// ReplenishmentService ranks purchase suggestions from stock levels, open
// production demand and supplier offers.
type ReplenishmentService interface {
	// GenerateSuggestions is read-only. The same state always yields the same
	// suggestions in the same order.
	GenerateSuggestions(ctx context.Context) ([]ReplenishmentSuggestion, error)
	// OpenOrderRequirements returns the raw-material demand of open
	// production orders that has not been issued or reserved yet.
	OpenOrderRequirements(ctx context.Context) (map[PairKey]decimal.Decimal, error)
}

type replenishmentService struct {
	runner *Runner
	boms   BOMService
	stock  StockService
	group  singleflight.Group
}

func NewReplenishmentService(runner *Runner, boms BOMService, stock StockService) ReplenishmentService {
	return &replenishmentService{runner: runner, boms: boms, stock: stock}
}

// GenerateSuggestions coalesces concurrent callers onto one generation.
// The shared run is detached from any single caller's cancellation; each
// caller stops waiting when its own context ends.
func (s *replenishmentService) GenerateSuggestions(ctx context.Context) ([]ReplenishmentSuggestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := s.group.DoChan("suggestions", func() (any, error) {
		return s.generate(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		out := res.Val.([]ReplenishmentSuggestion)
		if res.Shared {
			out = slices.Clone(out)
		}
		return out, nil
	}
}

func (s *replenishmentService) generate(ctx context.Context) ([]ReplenishmentSuggestion, error) {
	const op = "core.ReplenishmentService.generate"

	var out []ReplenishmentSuggestion
	err := s.runner.Read(ctx, func(ctx context.Context, sc *Scope) error {
		reqs, err := s.requirementsTx(ctx, sc)
		if err != nil {
			return err
		}
		stored, err := sc.Levels().List(ctx)
		if err != nil {
			return fmt.Errorf("list levels: %w", err)
		}

		levels := make(map[PairKey]StockLevel, len(stored))
		for _, l := range stored {
			folded, err := s.stock.LevelTx(ctx, sc, l.ProductID, l.WarehouseID)
			if err != nil {
				return err
			}
			levels[l.Key()] = folded
		}
		// Demand on a pair that never moved still needs buying.
		for key := range reqs {
			if _, ok := levels[key]; !ok {
				levels[key] = StockLevel{ProductID: key.ProductID, WarehouseID: key.WarehouseID}
			}
		}

		for _, key := range sortedPairKeys(levels) {
			sug, ok, err := s.suggest(ctx, sc, levels[key], reqs[key])
			if err != nil {
				return err
			}
			if ok {
				out = append(out, sug)
			}
		}
		sort.SliceStable(out, func(i, j int) bool {
			a, b := out[i], out[j]
			if a.Priority.Rank() != b.Priority.Rank() {
				return a.Priority.Rank() < b.Priority.Rank()
			}
			if a.ProductID != b.ProductID {
				return a.ProductID < b.ProductID
			}
			return a.WarehouseID < b.WarehouseID
		})

		for _, sug := range out {
			if sug.Priority == PriorityCritical {
				sc.Emit(newEvent(EventReplenishmentSuggestionCritical, sc.Now(),
					PairKey{sug.ProductID, sug.WarehouseID}.String(), sug))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "replenishment suggestions generated",
		logger.String("op", op),
		logger.Int("count", len(out)))
	return out, nil
}

// suggest applies the threshold rules to one pair.
func (s *replenishmentService) suggest(ctx context.Context, sc *Scope, lvl StockLevel, requirement decimal.Decimal) (ReplenishmentSuggestion, bool, error) {
	projected := lvl.Available.Sub(requirement)
	threshold := lvl.MinStockAlert
	if lvl.ReorderPoint != nil {
		threshold = *lvl.ReorderPoint
	}
	if !projected.LessThan(threshold) {
		return ReplenishmentSuggestion{}, false, nil
	}

	shortfall := threshold.Sub(projected)
	qty := decimal.Max(lvl.ReorderQuantity, shortfall)

	product, err := sc.Catalog().Product(ctx, lvl.ProductID)
	if err != nil {
		return ReplenishmentSuggestion{}, false, lookupErr(err, "product %s", lvl.ProductID)
	}
	items, err := sc.Catalog().SupplierItems(ctx, lvl.ProductID)
	if err != nil {
		return ReplenishmentSuggestion{}, false, fmt.Errorf("supplier items of %s: %w", lvl.ProductID, err)
	}

	sug := ReplenishmentSuggestion{
		ProductID:            lvl.ProductID,
		WarehouseID:          lvl.WarehouseID,
		OnHand:               lvl.OnHand,
		CurrentAvailable:     lvl.Available,
		OpenOrderRequirement: requirement,
		ProjectedAvailable:   projected,
		Priority:             classifyPriority(lvl, projected),
	}
	price := product.UnitCost
	if supplier, ok := preferredSupplier(items); ok {
		sug.SupplierID = supplier.SupplierID
		sug.LeadTimeDays = supplier.LeadTimeDays
		if qty.LessThan(supplier.MinOrderQty) {
			qty = supplier.MinOrderQty
		}
		if supplier.UnitPrice.IsPositive() {
			price = supplier.UnitPrice
		}
	}
	sug.SuggestedQuantity = qty
	sug.EstimatedCost = qty.Mul(price)
	return sug, true, nil
}

func classifyPriority(lvl StockLevel, projected decimal.Decimal) Priority {
	switch {
	case !lvl.OnHand.IsPositive():
		return PriorityCritical
	case projected.LessThan(lvl.MinStockAlert):
		return PriorityHigh
	case lvl.ReorderPoint != nil && projected.LessThanOrEqual(*lvl.ReorderPoint):
		return PriorityNormal
	}
	return PriorityLow
}

// preferredSupplier picks the flagged offer, else the shortest lead time.
// Ties go to the lowest supplier id.
func preferredSupplier(items []SupplierItem) (SupplierItem, bool) {
	if len(items) == 0 {
		return SupplierItem{}, false
	}
	sorted := slices.Clone(items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SupplierID < sorted[j].SupplierID })
	if p, ok := lo.Find(sorted, func(si SupplierItem) bool { return si.IsPreferred }); ok {
		return p, true
	}
	return lo.MinBy(sorted, func(a, b SupplierItem) bool { return a.LeadTimeDays < b.LeadTimeDays }), true
}

func (s *replenishmentService) OpenOrderRequirements(ctx context.Context) (map[PairKey]decimal.Decimal, error) {
	var out map[PairKey]decimal.Decimal
	err := s.runner.Read(ctx, func(ctx context.Context, sc *Scope) error {
		var err error
		out, err = s.requirementsTx(ctx, sc)
		return err
	})
	return out, err
}

// requirementsTx explodes every open order whose materials are still to be
// issued, in parallel, and nets out what each order already reserved.
func (s *replenishmentService) requirementsTx(ctx context.Context, sc *Scope) (map[PairKey]decimal.Decimal, error) {
	const op = "core.ReplenishmentService.requirements"

	orders, err := sc.Orders().ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open orders: %w", err)
	}
	orders = lo.Filter(orders, func(o ProductionOrder, _ int) bool { return !o.MaterialsIssued })
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })

	graph, err := s.boms.GraphTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	reservations, err := sc.Reservations().ListOpen(ctx, ReservationFilter{})
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	reservedBy := lo.GroupBy(reservations, func(r Reservation) string { return r.OrderID })

	// Explode only reads the graph.
	results := make([][]Requirement, len(orders))
	var g errgroup.Group
	for i, o := range orders {
		g.Go(func() error {
			exp, err := graph.Explode(o.ProductID, o.Quantity)
			if err != nil {
				if errors.Is(err, ErrUnknownReference) {
					logger.Warn(ctx, "open order has no active bill of materials",
						logger.String("op", op),
						logger.String("order_id", o.ID),
						logger.String("product_id", o.ProductID))
					return nil
				}
				return fmt.Errorf("explode order %s: %w", o.ID, err)
			}
			results[i] = exp.RawMaterials()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[PairKey]decimal.Decimal)
	for i, o := range orders {
		held := make(map[string]decimal.Decimal)
		for _, r := range reservedBy[o.ID] {
			held[r.ProductID] = held[r.ProductID].Add(r.Quantity)
		}
		for _, req := range results[i] {
			need := req.MandatoryQuantity.Sub(held[req.ProductID])
			if !need.IsPositive() {
				continue
			}
			key := PairKey{ProductID: req.ProductID, WarehouseID: o.WarehouseID}
			out[key] = out[key].Add(need)
		}
	}
	return out, nil
}

func sortedPairKeys[V any](m map[PairKey]V) []PairKey {
	keys := lo.Keys(m)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ProductID != keys[j].ProductID {
			return keys[i].ProductID < keys[j].ProductID
		}
		return keys[i].WarehouseID < keys[j].WarehouseID
	})
	return keys
}
