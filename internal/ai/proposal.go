package ai

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"inventory-ledger/internal/core"
)

// CountLine is one counted position read off a count sheet.
type CountLine struct {
	ProductID       string `json:"product_id" jsonschema_description:"Product id exactly as listed in the catalog"`
	WarehouseID     string `json:"warehouse_id" jsonschema_description:"Warehouse id exactly as listed in the catalog"`
	LotID           string `json:"lot_id" jsonschema_description:"Lot id when the sheet names one, otherwise an empty string"`
	CountedQuantity string `json:"counted_quantity" jsonschema_description:"Counted quantity as a decimal string in the product's unit, e.g. \"12.5\""`
	Note            string `json:"note" jsonschema_description:"Anything on the sheet the counter wrote about this line"`
}

// CountProposal is the model's reading of a count sheet. Nothing is
// recorded until a person confirms it.
type CountProposal struct {
	Lines      []CountLine `json:"lines"`
	Confidence float64     `json:"confidence" jsonschema_description:"Confidence between 0.0 and 1.0 that the lines match the sheet"`
	Reasoning  string      `json:"reasoning" jsonschema_description:"How ambiguous entries were resolved"`
}

func (p *CountProposal) Normalize() {
	for i := range p.Lines {
		l := &p.Lines[i]
		l.ProductID = strings.ToUpper(strings.TrimSpace(l.ProductID))
		l.WarehouseID = strings.ToUpper(strings.TrimSpace(l.WarehouseID))
		l.LotID = strings.TrimSpace(l.LotID)
		l.CountedQuantity = strings.TrimSpace(l.CountedQuantity)
	}
}

func (p *CountProposal) Validate() error {
	if len(p.Lines) == 0 {
		return fmt.Errorf("proposal has no count lines")
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("confidence %v outside 0..1", p.Confidence)
	}
	seen := make(map[string]bool, len(p.Lines))
	for i, l := range p.Lines {
		if l.ProductID == "" || l.WarehouseID == "" {
			return fmt.Errorf("line %d: product and warehouse are required", i+1)
		}
		q, err := decimal.NewFromString(l.CountedQuantity)
		if err != nil {
			return fmt.Errorf("line %d: counted quantity %q: %w", i+1, l.CountedQuantity, err)
		}
		if q.IsNegative() {
			return fmt.Errorf("line %d: counted quantity %s is negative", i+1, q)
		}
		key := l.ProductID + "@" + l.WarehouseID + "/" + l.LotID
		if seen[key] {
			return fmt.Errorf("line %d: %s counted twice", i+1, key)
		}
		seen[key] = true
	}
	return nil
}

// CountRequests turns a validated proposal into count requests sharing one
// count id.
func (p *CountProposal) CountRequests(countID, actor string) []core.CountRequest {
	out := make([]core.CountRequest, 0, len(p.Lines))
	for _, l := range p.Lines {
		reason := "count sheet"
		if l.Note != "" {
			reason += ": " + l.Note
		}
		out = append(out, core.CountRequest{
			ProductID:       l.ProductID,
			WarehouseID:     l.WarehouseID,
			LotID:           l.LotID,
			CountedQuantity: decimal.RequireFromString(l.CountedQuantity),
			CountID:         countID,
			Reason:          reason,
			Actor:           actor,
		})
	}
	return out
}
