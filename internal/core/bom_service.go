package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"inventory-ledger/internal/logger"
)

// BOMInput is the input for a new bill-of-materials version.
type BOMInput struct {
	ProductID  string
	Components []BOMComponent
}

// BOMService stores versioned recipes and explodes the active ones.
type BOMService interface {
	// SaveBOM stores a new draft version for the product.
	SaveBOM(ctx context.Context, d BOMInput) (BillOfMaterials, error)
	// Activate makes the bill the product's only active version. The
	// previous active version becomes obsolete. Cycles are rejected.
	Activate(ctx context.Context, bomID string) (BillOfMaterials, error)
	Obsolete(ctx context.Context, bomID string) (BillOfMaterials, error)
	Get(ctx context.Context, bomID string) (BillOfMaterials, error)
	Versions(ctx context.Context, productID string) ([]BillOfMaterials, error)

	Explode(ctx context.Context, productID string, qty decimal.Decimal) (*Explosion, error)
	Tree(ctx context.Context, productID string, qty decimal.Decimal) (*BOMNode, error)

	// GraphTx builds the active-recipe graph visible to a scope.
	GraphTx(ctx context.Context, tx Tx) (*BOMGraph, error)
}

type bomService struct {
	runner *Runner
}

func NewBOMService(runner *Runner) BOMService {
	return &bomService{runner: runner}
}

// BOMProductKey serializes draft saves for one output product.
func BOMProductKey(productID string) string { return "bom:" + productID }

func (s *bomService) SaveBOM(ctx context.Context, d BOMInput) (BillOfMaterials, error) {
	const op = "core.BOMService.SaveBOM"

	if d.ProductID == "" {
		return BillOfMaterials{}, unknownReference("bill of materials has no output product")
	}
	if len(d.Components) == 0 {
		return BillOfMaterials{}, invalidArgument("bill of materials for %s has no components", d.ProductID)
	}
	seen := make(map[string]bool, len(d.Components))
	for _, c := range d.Components {
		if !c.QuantityPerUnit.IsPositive() {
			return BillOfMaterials{}, invalidQuantity("component %s quantity per unit must be positive, got %s", c.ProductID, c.QuantityPerUnit)
		}
		if c.ProductID == d.ProductID {
			return BillOfMaterials{}, &CycleError{Path: []string{d.ProductID, d.ProductID}}
		}
		if seen[c.ProductID] {
			return BillOfMaterials{}, invalidArgument("component %s listed twice", c.ProductID)
		}
		seen[c.ProductID] = true
	}

	var bom BillOfMaterials
	err := s.runner.Atomic(ctx, []string{BOMProductKey(d.ProductID)}, func(ctx context.Context, sc *Scope) error {
		if _, err := sc.Catalog().Product(ctx, d.ProductID); err != nil {
			return lookupErr(err, "product %s", d.ProductID)
		}
		for _, c := range d.Components {
			if _, err := sc.Catalog().Product(ctx, c.ProductID); err != nil {
				return lookupErr(err, "component %s", c.ProductID)
			}
		}
		versions, err := sc.BOMs().Versions(ctx, d.ProductID)
		if err != nil {
			return fmt.Errorf("list versions: %w", err)
		}
		next := 1
		for _, v := range versions {
			if v.Version >= next {
				next = v.Version + 1
			}
		}
		bom = BillOfMaterials{
			ID:         uuid.NewString(),
			ProductID:  d.ProductID,
			Version:    next,
			Status:     BOMDraft,
			Components: append([]BOMComponent(nil), d.Components...),
			CreatedAt:  sc.Now(),
		}
		return sc.BOMs().Insert(ctx, bom)
	})
	if err != nil {
		return BillOfMaterials{}, err
	}
	logger.Info(ctx, "bill of materials saved",
		logger.String("op", op),
		logger.String("bom_id", bom.ID),
		logger.String("product_id", bom.ProductID),
		logger.Int("version", bom.Version))
	return bom, nil
}

func (s *bomService) Activate(ctx context.Context, bomID string) (BillOfMaterials, error) {
	const op = "core.BOMService.Activate"

	var bom BillOfMaterials
	err := s.runner.Atomic(ctx, []string{BOMKey}, func(ctx context.Context, sc *Scope) error {
		b, err := sc.BOMs().Get(ctx, bomID)
		if err != nil {
			return bomLookupErr(err, bomID)
		}
		if b.Status == BOMActive {
			bom = b
			return nil
		}
		graph, err := s.GraphTx(ctx, sc)
		if err != nil {
			return err
		}
		if err := graph.With(b.ProductID, b.Components).DetectCycle(b.ProductID); err != nil {
			return err
		}

		cur, err := sc.BOMs().Active(ctx, b.ProductID)
		switch {
		case err == nil:
			if err := sc.BOMs().UpdateStatus(ctx, cur.ID, BOMObsolete); err != nil {
				return fmt.Errorf("demote version %d: %w", cur.Version, err)
			}
		case !errors.Is(err, ErrNotFound):
			return err
		}
		if err := sc.BOMs().UpdateStatus(ctx, b.ID, BOMActive); err != nil {
			return err
		}
		b.Status = BOMActive
		bom = b
		return nil
	})
	if err != nil {
		return BillOfMaterials{}, err
	}
	logger.Info(ctx, "bill of materials activated",
		logger.String("op", op),
		logger.String("bom_id", bom.ID),
		logger.String("product_id", bom.ProductID),
		logger.Int("version", bom.Version))
	return bom, nil
}

func (s *bomService) Obsolete(ctx context.Context, bomID string) (BillOfMaterials, error) {
	var bom BillOfMaterials
	err := s.runner.Atomic(ctx, []string{BOMKey}, func(ctx context.Context, sc *Scope) error {
		b, err := sc.BOMs().Get(ctx, bomID)
		if err != nil {
			return bomLookupErr(err, bomID)
		}
		if b.Status != BOMObsolete {
			if err := sc.BOMs().UpdateStatus(ctx, b.ID, BOMObsolete); err != nil {
				return err
			}
			b.Status = BOMObsolete
		}
		bom = b
		return nil
	})
	return bom, err
}

func (s *bomService) Get(ctx context.Context, bomID string) (BillOfMaterials, error) {
	var bom BillOfMaterials
	err := s.runner.Read(ctx, func(ctx context.Context, sc *Scope) error {
		b, err := sc.BOMs().Get(ctx, bomID)
		if err != nil {
			return bomLookupErr(err, bomID)
		}
		bom = b
		return nil
	})
	return bom, err
}

func (s *bomService) Versions(ctx context.Context, productID string) ([]BillOfMaterials, error) {
	var out []BillOfMaterials
	err := s.runner.Read(ctx, func(ctx context.Context, sc *Scope) error {
		var err error
		out, err = sc.BOMs().Versions(ctx, productID)
		return err
	})
	return out, err
}

func (s *bomService) Explode(ctx context.Context, productID string, qty decimal.Decimal) (*Explosion, error) {
	var exp *Explosion
	err := s.runner.Read(ctx, func(ctx context.Context, sc *Scope) error {
		graph, err := s.GraphTx(ctx, sc)
		if err != nil {
			return err
		}
		exp, err = graph.Explode(productID, qty)
		return err
	})
	return exp, err
}

func (s *bomService) Tree(ctx context.Context, productID string, qty decimal.Decimal) (*BOMNode, error) {
	var root *BOMNode
	err := s.runner.Read(ctx, func(ctx context.Context, sc *Scope) error {
		graph, err := s.GraphTx(ctx, sc)
		if err != nil {
			return err
		}
		root, err = graph.Tree(productID, qty)
		return err
	})
	return root, err
}

func (s *bomService) GraphTx(ctx context.Context, tx Tx) (*BOMGraph, error) {
	active, err := tx.BOMs().ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active bills: %w", err)
	}
	return NewBOMGraph(active), nil
}

func bomLookupErr(err error, id string) error {
	if errors.Is(err, ErrNotFound) {
		return unknownReference("bill of materials %s", id)
	}
	return err
}
