package repl

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/samber/lo"

	"inventory-ledger/internal/ai"
	"inventory-ledger/internal/app"
	"inventory-ledger/internal/core"
)

func rule(w io.Writer, ch string, n int) { fmt.Fprintln(w, strings.Repeat(ch, n)) }

func printLevels(w io.Writer, title string, result *app.LevelsResult) {
	fmt.Fprintln(w)
	rule(w, "=", 86)
	fmt.Fprintf(w, "  %s\n", title)
	rule(w, "=", 86)
	if len(result.Levels) == 0 {
		fmt.Fprintln(w, "  Nothing to show.")
		rule(w, "=", 86)
		return
	}
	fmt.Fprintf(w, "  %-12s %-8s %12s %12s %12s %12s  %s\n", "PRODUCT", "WH", "ON HAND", "RESERVED", "AVAILABLE", "QUARANTINE", "ALERTS")
	rule(w, "-", 86)
	for _, la := range result.Levels {
		l := la.Level
		alerts := lo.Map(la.Alerts, func(a core.Alert, _ int) string { return string(a) })
		fmt.Fprintf(w, "  %-12s %-8s %12s %12s %12s %12s  %s\n",
			l.ProductID, l.WarehouseID, l.OnHand, l.Reserved, l.Available, l.QuarantinedQuantity, strings.Join(alerts, ","))
	}
	rule(w, "=", 86)
}

func printLots(w io.Writer, result *app.LotsResult) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-38s %-10s %-8s %10s %-11s %s\n", "LOT", "PRODUCT", "WH", "REMAINING", "STATUS", "EXPIRY")
	rule(w, "-", 96)
	for _, l := range result.Lots {
		expiry := "-"
		if l.ExpiryDate != nil {
			expiry = l.ExpiryDate.Format("2006-01-02")
		}
		fmt.Fprintf(w, "  %-38s %-10s %-8s %10s %-11s %s\n",
			l.ID, l.ProductID, l.WarehouseID, l.RemainingQuantity, l.AvailabilityStatus, expiry)
	}
}

func printHistory(w io.Writer, result *app.HistoryResult) {
	fmt.Fprintln(w)
	for _, m := range result.Movements {
		route := m.ToWarehouseID
		if m.FromWarehouseID != "" {
			route = m.FromWarehouseID + " -> " + m.ToWarehouseID
		}
		fmt.Fprintf(w, "  #%-6d %s  %-10s %-10s %10s  %-16s %s:%s\n",
			m.ID, m.OccurredAt.Format("2006-01-02 15:04"), m.Type, m.ProductID, m.Quantity,
			route, m.Document.Kind, m.Document.ID)
	}
}

func printSuggestions(w io.Writer, result *app.SuggestionsResult) {
	fmt.Fprintln(w)
	rule(w, "=", 80)
	fmt.Fprintln(w, "  REPLENISHMENT SUGGESTIONS")
	rule(w, "=", 80)
	if len(result.Suggestions) == 0 {
		fmt.Fprintln(w, "  Nothing to reorder.")
		rule(w, "=", 80)
		return
	}
	fmt.Fprintf(w, "  %-10s %-12s %-8s %10s %10s  %-10s %s\n", "PRIORITY", "PRODUCT", "WH", "PROJECTED", "ORDER", "SUPPLIER", "COST")
	rule(w, "-", 80)
	for _, s := range result.Suggestions {
		fmt.Fprintf(w, "  %-10s %-12s %-8s %10s %10s  %-10s %s\n",
			s.Priority, s.ProductID, s.WarehouseID, s.ProjectedAvailable, s.SuggestedQuantity,
			lo.Ternary(s.SupplierID == "", "-", s.SupplierID), s.EstimatedCost.StringFixed(2))
	}
	rule(w, "=", 80)
}

func printExplosion(w io.Writer, e *core.Explosion) {
	fmt.Fprintf(w, "\n  %s x %s requires:\n", e.ProductID, e.Quantity)
	ids := lo.Keys(e.Requirements)
	slices.Sort(ids)
	for _, id := range ids {
		r := e.Requirements[id]
		kind := lo.Ternary(r.Leaf, "raw", "sub-assembly")
		fmt.Fprintf(w, "  %-12s %12s  %s\n", id, r.Quantity, kind)
	}
}

func printProposal(w io.Writer, p *ai.CountProposal) {
	fmt.Fprintf(w, "\nREASONING:  %s\n", p.Reasoning)
	fmt.Fprintf(w, "CONFIDENCE: %.2f\n", p.Confidence)
	fmt.Fprintln(w, "COUNTS:")
	for _, l := range p.Lines {
		lot := lo.Ternary(l.LotID == "", "", " lot "+l.LotID)
		fmt.Fprintf(w, "  %-12s @ %-8s%s  counted %s\n", l.ProductID, l.WarehouseID, lot, l.CountedQuantity)
	}
}

func printCountSheet(w io.Writer, result *app.CountSheetResult) {
	fmt.Fprintf(w, "\nCount %s: %d recorded, %d failed\n", result.CountID, result.Recorded, result.Failed)
	for _, l := range result.Lines {
		if l.Error != "" {
			fmt.Fprintf(w, "  %-12s @ %-8s FAILED: %s\n", l.Line.ProductID, l.Line.WarehouseID, l.Error)
			continue
		}
		fmt.Fprintf(w, "  %-12s @ %-8s expected %s, counted %s, delta %s\n",
			l.Line.ProductID, l.Line.WarehouseID, l.Result.Expected, l.Result.Counted, l.Result.Delta)
	}
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "INVENTORY LEDGER — COMMANDS")
	rule(w, "=", 62)
	fmt.Fprintln(w, "  /levels                 Stock levels per product and warehouse")
	fmt.Fprintln(w, "  /alerts                 Levels below threshold or overstocked")
	fmt.Fprintln(w, "  /lots [product]         Open lots")
	fmt.Fprintln(w, "  /history <product>      Journal movements")
	fmt.Fprintln(w, "  /explode <product> <n>  Component requirements")
	fmt.Fprintln(w, "  /suggest                Replenishment suggestions")
	fmt.Fprintln(w, "  /count                  Enter a multi-line count sheet")
	fmt.Fprintln(w, "  /help                   Show this help")
	fmt.Fprintln(w, "  /exit                   Exit")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Any other input is read as a count sheet line and reconciled")
	fmt.Fprintln(w, "  after you confirm the proposal.")
	rule(w, "=", 62)
}
