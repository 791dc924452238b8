package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// CatalogService maintains the external reference data the engine stocks:
// products, warehouses and supplier offers.
type CatalogService interface {
	UpsertProduct(ctx context.Context, p Product) error
	UpsertWarehouse(ctx context.Context, w Warehouse) error
	UpsertSupplierItem(ctx context.Context, si SupplierItem) error
	Products(ctx context.Context) ([]Product, error)
	Warehouses(ctx context.Context) ([]Warehouse, error)
	SupplierItems(ctx context.Context, productID string) ([]SupplierItem, error)
}

type catalogService struct {
	runner *Runner
}

func NewCatalogService(runner *Runner) CatalogService {
	return &catalogService{runner: runner}
}

func catalogKey(kind, id string) string { return "catalog:" + kind + ":" + id }

// NormalizeID is the canonical form of product and warehouse codes.
func NormalizeID(id string) string { return strings.ToUpper(strings.TrimSpace(id)) }

func (s *catalogService) UpsertProduct(ctx context.Context, p Product) error {
	p.ID = NormalizeID(p.ID)
	if p.ID == "" {
		return invalidArgument("product id is required")
	}
	if p.UnitCost.IsNegative() {
		return invalidQuantity("unit cost of %s must not be negative", p.ID)
	}
	if p.UnitOfMeasure == "" {
		p.UnitOfMeasure = "unit"
	}
	return s.runner.Atomic(ctx, []string{catalogKey("product", p.ID)}, func(ctx context.Context, sc *Scope) error {
		if err := sc.Catalog().UpsertProduct(ctx, p); err != nil {
			return fmt.Errorf("upsert product %s: %w", p.ID, err)
		}
		return nil
	})
}

func (s *catalogService) UpsertWarehouse(ctx context.Context, w Warehouse) error {
	w.ID = NormalizeID(w.ID)
	if w.ID == "" {
		return invalidArgument("warehouse id is required")
	}
	if b := w.TemperatureBand; b != nil && b.MinCelsius.GreaterThan(b.MaxCelsius) {
		return invalidArgument("warehouse %s temperature band %s..%s is inverted", w.ID, b.MinCelsius, b.MaxCelsius)
	}
	return s.runner.Atomic(ctx, []string{catalogKey("warehouse", w.ID)}, func(ctx context.Context, sc *Scope) error {
		if err := sc.Catalog().UpsertWarehouse(ctx, w); err != nil {
			return fmt.Errorf("upsert warehouse %s: %w", w.ID, err)
		}
		return nil
	})
}

func (s *catalogService) UpsertSupplierItem(ctx context.Context, si SupplierItem) error {
	si.ProductID = NormalizeID(si.ProductID)
	if si.SupplierID == "" || si.ProductID == "" {
		return invalidArgument("supplier item needs supplier and product ids")
	}
	if si.UnitPrice.IsNegative() || si.MinOrderQty.IsNegative() || si.LeadTimeDays < 0 {
		return invalidQuantity("supplier item %s/%s has negative price, minimum or lead time", si.SupplierID, si.ProductID)
	}
	return s.runner.Atomic(ctx, []string{catalogKey("product", si.ProductID)}, func(ctx context.Context, sc *Scope) error {
		if _, err := sc.Catalog().Product(ctx, si.ProductID); err != nil {
			return lookupErr(err, "product %s", si.ProductID)
		}
		if err := sc.Catalog().UpsertSupplierItem(ctx, si); err != nil {
			return fmt.Errorf("upsert supplier item %s/%s: %w", si.SupplierID, si.ProductID, err)
		}
		return nil
	})
}

func (s *catalogService) Products(ctx context.Context) ([]Product, error) {
	var out []Product
	err := s.runner.Read(ctx, func(ctx context.Context, sc *Scope) error {
		var err error
		out, err = sc.Catalog().Products(ctx)
		return err
	})
	return out, err
}

func (s *catalogService) Warehouses(ctx context.Context) ([]Warehouse, error) {
	var out []Warehouse
	err := s.runner.Read(ctx, func(ctx context.Context, sc *Scope) error {
		var err error
		out, err = sc.Catalog().Warehouses(ctx)
		return err
	})
	return out, err
}

func (s *catalogService) SupplierItems(ctx context.Context, productID string) ([]SupplierItem, error) {
	var out []SupplierItem
	err := s.runner.Read(ctx, func(ctx context.Context, sc *Scope) error {
		var err error
		out, err = sc.Catalog().SupplierItems(ctx, productID)
		return err
	})
	return out, err
}

// lookupErr turns a repository miss into an UnknownReference validation error.
func lookupErr(err error, format string, args ...any) error {
	if errors.Is(err, ErrNotFound) {
		return unknownReference(format, args...)
	}
	return fmt.Errorf("lookup %s: %w", fmt.Sprintf(format, args...), err)
}
