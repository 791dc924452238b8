package core

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type BOMStatus string

const (
	BOMDraft    BOMStatus = "draft"
	BOMActive   BOMStatus = "active"
	BOMObsolete BOMStatus = "obsolete"
)

// BOMComponent is one line of a recipe: QuantityPerUnit of ProductID per
// unit of output.
type BOMComponent struct {
	ProductID       string          `json:"product_id"`
	QuantityPerUnit decimal.Decimal `json:"quantity_per_unit"`
	IsOptional      bool            `json:"is_optional"`
}

// BillOfMaterials is one version of a product's recipe.
type BillOfMaterials struct {
	ID         string         `json:"id"`
	ProductID  string         `json:"product_id"`
	Version    int            `json:"version"`
	Status     BOMStatus      `json:"status"`
	Components []BOMComponent `json:"components"`
	CreatedAt  time.Time      `json:"created_at"`
}

// BOMGraph is the directed graph of active recipes keyed by output product.
// It is immutable once built and safe for concurrent explosion.
type BOMGraph struct {
	edges map[string][]BOMComponent
}

// NewBOMGraph builds a graph from active bills. Non-active bills are ignored.
func NewBOMGraph(boms []BillOfMaterials) *BOMGraph {
	g := &BOMGraph{edges: make(map[string][]BOMComponent, len(boms))}
	for _, b := range boms {
		if b.Status != BOMActive {
			continue
		}
		comps := make([]BOMComponent, len(b.Components))
		copy(comps, b.Components)
		g.edges[b.ProductID] = comps
	}
	return g
}

// HasRecipe reports whether productID has an active bill.
func (g *BOMGraph) HasRecipe(productID string) bool {
	_, ok := g.edges[productID]
	return ok
}

// With returns a copy of g where productID uses comps. Used to vet a bill
// before activation.
func (g *BOMGraph) With(productID string, comps []BOMComponent) *BOMGraph {
	out := &BOMGraph{edges: make(map[string][]BOMComponent, len(g.edges)+1)}
	for k, v := range g.edges {
		out.edges[k] = v
	}
	out.edges[productID] = comps
	return out
}

// DetectCycle walks everything reachable from productID and returns a
// *CycleError for the first product found on its own ancestry path.
func (g *BOMGraph) DetectCycle(productID string) error {
	onPath := make(map[string]bool)
	done := make(map[string]bool)
	var path []string

	var visit func(p string) error
	visit = func(p string) error {
		if onPath[p] {
			return &CycleError{Path: append(cycleFrom(path, p), p)}
		}
		if done[p] {
			return nil
		}
		onPath[p] = true
		path = append(path, p)
		for _, c := range g.edges[p] {
			if err := visit(c.ProductID); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		onPath[p] = false
		done[p] = true
		return nil
	}
	return visit(productID)
}

func cycleFrom(path []string, p string) []string {
	for i, q := range path {
		if q == p {
			out := make([]string, len(path)-i)
			copy(out, path[i:])
			return out
		}
	}
	return append([]string(nil), path...)
}

// Requirement is the accumulated need for one component.
type Requirement struct {
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	// MandatoryQuantity excludes contributions reached through an optional line.
	MandatoryQuantity decimal.Decimal `json:"mandatory_quantity"`
	// Leaf is true for raw materials (no active bill of their own).
	Leaf     bool `json:"leaf"`
	MinLevel int  `json:"min_level"`
}

// Optional reports whether the component is only needed through optional lines.
func (r Requirement) Optional() bool {
	return r.MandatoryQuantity.IsZero() && r.Quantity.IsPositive()
}

// Explosion is the flattened result of exploding one product.
type Explosion struct {
	ProductID    string                  `json:"product_id"`
	Quantity     decimal.Decimal         `json:"quantity"`
	Requirements map[string]*Requirement `json:"requirements"`
}

// Quantities returns required quantity per component, intermediates included.
func (e *Explosion) Quantities() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(e.Requirements))
	for id, r := range e.Requirements {
		out[id] = r.Quantity
	}
	return out
}

// RawMaterials returns mandatory leaf requirements sorted by product id.
func (e *Explosion) RawMaterials() []Requirement {
	var out []Requirement
	for _, r := range e.Requirements {
		if r.Leaf && r.MandatoryQuantity.IsPositive() {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// Explode walks the active recipes below productID for qty units of output.
// Components with their own recipe are accumulated and recursed into.
func (g *BOMGraph) Explode(productID string, qty decimal.Decimal) (*Explosion, error) {
	if !qty.IsPositive() {
		return nil, invalidQuantity("explosion quantity must be positive, got %s", qty)
	}
	if !g.HasRecipe(productID) {
		return nil, unknownReference("no active bill of materials for product %s", productID)
	}

	exp := &Explosion{
		ProductID:    productID,
		Quantity:     qty,
		Requirements: make(map[string]*Requirement),
	}
	onPath := map[string]bool{}
	var path []string

	var walk func(p string, need decimal.Decimal, mandatory bool, level int) error
	walk = func(p string, need decimal.Decimal, mandatory bool, level int) error {
		if onPath[p] {
			return &CycleError{Path: append(cycleFrom(path, p), p)}
		}
		onPath[p] = true
		path = append(path, p)
		defer func() {
			path = path[:len(path)-1]
			onPath[p] = false
		}()

		for _, c := range g.edges[p] {
			childNeed := c.QuantityPerUnit.Mul(need)
			childMandatory := mandatory && !c.IsOptional

			r, ok := exp.Requirements[c.ProductID]
			if !ok {
				r = &Requirement{ProductID: c.ProductID, MinLevel: level, Leaf: !g.HasRecipe(c.ProductID)}
				exp.Requirements[c.ProductID] = r
			}
			r.Quantity = r.Quantity.Add(childNeed)
			if childMandatory {
				r.MandatoryQuantity = r.MandatoryQuantity.Add(childNeed)
			}
			if level < r.MinLevel {
				r.MinLevel = level
			}

			if g.HasRecipe(c.ProductID) {
				if err := walk(c.ProductID, childNeed, childMandatory, level+1); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(productID, qty, true, 1); err != nil {
		return nil, err
	}
	return exp, nil
}

// BOMNode is one node of a displayable requirement tree.
type BOMNode struct {
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Optional  bool            `json:"optional"`
	Level     int             `json:"level"`
	Children  []*BOMNode      `json:"children,omitempty"`
}

// Tree returns the per-level requirement tree below productID.
func (g *BOMGraph) Tree(productID string, qty decimal.Decimal) (*BOMNode, error) {
	if !qty.IsPositive() {
		return nil, invalidQuantity("tree quantity must be positive, got %s", qty)
	}
	onPath := map[string]bool{}
	var path []string

	var build func(p string, need decimal.Decimal, optional bool, level int) (*BOMNode, error)
	build = func(p string, need decimal.Decimal, optional bool, level int) (*BOMNode, error) {
		if onPath[p] {
			return nil, &CycleError{Path: append(cycleFrom(path, p), p)}
		}
		onPath[p] = true
		path = append(path, p)
		defer func() {
			path = path[:len(path)-1]
			onPath[p] = false
		}()

		node := &BOMNode{ProductID: p, Quantity: need, Optional: optional, Level: level}
		for _, c := range g.edges[p] {
			child, err := build(c.ProductID, c.QuantityPerUnit.Mul(need), optional || c.IsOptional, level+1)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
		}
		return node, nil
	}
	return build(productID, qty, false, 0)
}
