package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"inventory-ledger/internal/ai"
	"inventory-ledger/internal/app"
	"inventory-ledger/internal/core"
)

// ErrUsage marks a malformed command line. The message carries the usage.
var ErrUsage = errors.New("usage")

const commands = "levels, alerts, lots, history, verify, audit, receive, issue, transfer, count, reverse, " +
	"quarantine, release, approve, inspect, writeoff, thresholds, explode, suggest, " +
	"orders, order-new, order-reserve, order-start, order-complete, order-cancel, " +
	"schema, migrate, seed, interpret-count, apply-count"

// Run executes a one-shot CLI command. args[0] is the subcommand name.
// Results are written to out as indented JSON. Count sheets and proposals
// are read from in.
func Run(ctx context.Context, svc app.ApplicationService, args []string, in io.Reader, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: app <command> [flags]\navailable: %s", ErrUsage, commands)
	}
	cmd, rest := args[0], args[1:]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	actor := fs.String("actor", "cli", "who performs the operation")

	parse := func(required ...string) error {
		if err := fs.Parse(rest); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrUsage, cmd, err)
		}
		set := map[string]bool{}
		fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
		var missing []string
		for _, name := range required {
			if !set[name] {
				missing = append(missing, "-"+name)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: %s requires %s", ErrUsage, cmd, strings.Join(missing, " "))
		}
		return nil
	}

	var (
		result any
		err    error
	)
	switch cmd {
	case "levels":
		if err := parse(); err != nil {
			return err
		}
		result, err = svc.ListLevels(ctx)

	case "alerts":
		if err := parse(); err != nil {
			return err
		}
		result, err = svc.ListAlerts(ctx)

	case "lots":
		product := fs.String("product", "", "product id")
		warehouse := fs.String("warehouse", "", "warehouse id")
		all := fs.Bool("all", false, "include depleted lots")
		if err := parse(); err != nil {
			return err
		}
		result, err = svc.ListLots(ctx, app.LotQuery{ProductID: *product, WarehouseID: *warehouse, IncludeDepleted: *all})

	case "history":
		product := fs.String("product", "", "product id")
		warehouse := fs.String("warehouse", "", "warehouse id on either side")
		lot := fs.String("lot", "", "lot id")
		after := fs.Int64("after", 0, "only movements with a greater id")
		limit := fs.Int("limit", 0, "maximum number of movements")
		if err := parse(); err != nil {
			return err
		}
		result, err = svc.History(ctx, app.HistoryQuery{
			ProductID: *product, WarehouseID: *warehouse, LotID: *lot, AfterID: *after, Limit: *limit,
		})

	case "verify":
		lot := fs.String("lot", "", "lot id")
		if err := parse("lot"); err != nil {
			return err
		}
		result, err = svc.VerifyLot(ctx, *lot)

	case "audit":
		if err := parse(); err != nil {
			return err
		}
		result, err = svc.Audit(ctx)

	case "receive":
		product := fs.String("product", "", "product id")
		warehouse := fs.String("warehouse", "", "receiving warehouse")
		var qty, cost decimalFlag
		var ordered optionalDecimalFlag
		fs.Var(&qty, "qty", "received quantity")
		fs.Var(&ordered, "ordered", "ordered quantity; excess is held for approval")
		fs.Var(&cost, "cost", "unit cost")
		receipt := fs.String("receipt", "", "receipt document id")
		lot := fs.String("lot", "", "lot id, generated when empty")
		made := fs.String("manufactured", "", "manufacture date YYYY-MM-DD")
		expiry := fs.String("expiry", "", "expiry date YYYY-MM-DD")
		if err := parse("product", "warehouse", "qty"); err != nil {
			return err
		}
		req := app.ReceiveRequest{
			ProductID: *product, WarehouseID: *warehouse, Quantity: qty.Decimal,
			OrderedQuantity: ordered.value, ReceiptID: *receipt, LotID: *lot,
			UnitCost: cost.Decimal, Actor: *actor,
		}
		if req.ExpiryDate, err = parseDate("expiry", *expiry); err != nil {
			return err
		}
		if m, err := parseDate("manufactured", *made); err != nil {
			return err
		} else if m != nil {
			req.ManufactureDate = *m
		}
		result, err = svc.Receive(ctx, req)

	case "issue":
		product := fs.String("product", "", "product id")
		warehouse := fs.String("warehouse", "", "shipping warehouse")
		var qty decimalFlag
		fs.Var(&qty, "qty", "quantity to issue")
		policy := fs.String("policy", "fifo", "fifo or fefo")
		doc := fs.String("doc", "", "sales document id")
		reason := fs.String("reason", "", "free-form reason")
		if err := parse("product", "warehouse", "qty"); err != nil {
			return err
		}
		result, err = svc.Issue(ctx, app.IssueRequest{
			ProductID: *product, WarehouseID: *warehouse, Quantity: qty.Decimal,
			Policy: *policy, DocumentID: *doc, Reason: *reason, Actor: *actor,
		})

	case "transfer":
		product := fs.String("product", "", "product id")
		from := fs.String("from", "", "source warehouse")
		to := fs.String("to", "", "destination warehouse")
		var qty decimalFlag
		fs.Var(&qty, "qty", "quantity to move")
		lot := fs.String("lot", "", "source lot of a lot-tracked product")
		doc := fs.String("doc", "", "transfer order id")
		reason := fs.String("reason", "", "free-form reason")
		if err := parse("product", "from", "to", "qty"); err != nil {
			return err
		}
		result, err = svc.Transfer(ctx, app.TransferRequest{
			ProductID: *product, FromWarehouseID: *from, ToWarehouseID: *to, Quantity: qty.Decimal,
			LotID: *lot, DocumentID: *doc, Reason: *reason, Actor: *actor,
		})

	case "count":
		product := fs.String("product", "", "product id")
		warehouse := fs.String("warehouse", "", "counted warehouse")
		lot := fs.String("lot", "", "counted lot of a lot-tracked product")
		var qty decimalFlag
		fs.Var(&qty, "qty", "counted quantity")
		countID := fs.String("count-id", "", "physical count document id")
		reason := fs.String("reason", "", "reason for any difference")
		if err := parse("product", "warehouse", "qty", "reason"); err != nil {
			return err
		}
		result, err = svc.Count(ctx, app.CountRequest{
			ProductID: *product, WarehouseID: *warehouse, LotID: *lot, CountedQuantity: qty.Decimal,
			CountID: *countID, Reason: *reason, Actor: *actor,
		})

	case "reverse":
		id := fs.Int64("movement", 0, "movement id to undo")
		reason := fs.String("reason", "", "why the movement is reversed")
		if err := parse("movement", "reason"); err != nil {
			return err
		}
		result, err = svc.Reverse(ctx, *id, *reason, *actor)

	case "quarantine":
		lot := fs.String("lot", "", "lot id")
		reason := fs.String("reason", "", "hold reason")
		if err := parse("lot", "reason"); err != nil {
			return err
		}
		result, err = svc.Quarantine(ctx, *lot, *reason, *actor)

	case "release":
		lot := fs.String("lot", "", "lot id")
		if err := parse("lot"); err != nil {
			return err
		}
		result, err = svc.Release(ctx, *lot, *actor)

	case "approve":
		lot := fs.String("lot", "", "held over-receipt lot id")
		receipt := fs.String("receipt", "", "receipt holding untracked over-receipt")
		if err := parse(); err != nil {
			return err
		}
		switch {
		case (*lot == "") == (*receipt == ""):
			return fmt.Errorf("%w: approve requires either -lot or -receipt", ErrUsage)
		case *lot != "":
			result, err = svc.ApproveOverReceipt(ctx, *lot, *actor)
		default:
			result, err = svc.ApproveReceipt(ctx, *receipt, *actor)
		}

	case "inspect":
		lot := fs.String("lot", "", "lot id")
		res := fs.String("result", "", "passed, failed or conditional")
		note := fs.String("note", "", "inspector note")
		if err := parse("lot", "result"); err != nil {
			return err
		}
		result, err = svc.Inspect(ctx, *lot, *res, *note, *actor)

	case "writeoff":
		lot := fs.String("lot", "", "lot id")
		reason := fs.String("reason", "", "why the stock is written off")
		if err := parse("lot", "reason"); err != nil {
			return err
		}
		result, err = svc.WriteOff(ctx, *lot, *reason, *actor)

	case "thresholds":
		product := fs.String("product", "", "product id")
		warehouse := fs.String("warehouse", "", "warehouse id")
		var minStock, reorderQty decimalFlag
		var maxStock, reorderPoint optionalDecimalFlag
		fs.Var(&minStock, "min", "minimum stock alert")
		fs.Var(&maxStock, "max", "overstock alert")
		fs.Var(&reorderPoint, "reorder-point", "reorder point")
		fs.Var(&reorderQty, "reorder-qty", "reorder quantity")
		if err := parse("product", "warehouse"); err != nil {
			return err
		}
		result, err = svc.SetThresholds(ctx, *product, *warehouse, core.Thresholds{
			MinStockAlert:   minStock.Decimal,
			MaxStockAlert:   maxStock.value,
			ReorderPoint:    reorderPoint.value,
			ReorderQuantity: reorderQty.Decimal,
		})

	case "explode":
		product := fs.String("product", "", "finished product id")
		qty := decimalFlag{Decimal: decimal.NewFromInt(1)}
		fs.Var(&qty, "qty", "quantity to produce")
		tree := fs.Bool("tree", false, "print the recipe tree instead of totals")
		if err := parse("product"); err != nil {
			return err
		}
		if *tree {
			result, err = svc.BOMTree(ctx, *product, qty.Decimal)
		} else {
			result, err = svc.Explode(ctx, *product, qty.Decimal)
		}

	case "suggest":
		if err := parse(); err != nil {
			return err
		}
		result, err = svc.Suggest(ctx)

	case "orders":
		if err := parse(); err != nil {
			return err
		}
		result, err = svc.ListOpenOrders(ctx)

	case "order-new":
		id := fs.String("id", "", "order id, generated when empty")
		product := fs.String("product", "", "product to make")
		warehouse := fs.String("warehouse", "", "production warehouse")
		var qty decimalFlag
		fs.Var(&qty, "qty", "quantity to make")
		if err := parse("product", "warehouse", "qty"); err != nil {
			return err
		}
		result, err = svc.RegisterOrder(ctx, app.OrderRequest{ID: *id, ProductID: *product, WarehouseID: *warehouse, Quantity: qty.Decimal})

	case "order-reserve":
		id := fs.String("id", "", "order id")
		if err := parse("id"); err != nil {
			return err
		}
		result, err = svc.ReserveMaterials(ctx, *id, *actor)

	case "order-start":
		id := fs.String("id", "", "order id")
		policy := fs.String("policy", "fefo", "fifo or fefo")
		if err := parse("id"); err != nil {
			return err
		}
		result, err = svc.StartOrder(ctx, *id, *policy, *actor)

	case "order-complete":
		id := fs.String("id", "", "order id")
		var qty decimalFlag
		fs.Var(&qty, "qty", "produced quantity, defaults to the ordered quantity")
		lot := fs.String("lot", "", "output lot id")
		expiry := fs.String("expiry", "", "expiry date YYYY-MM-DD")
		if err := parse("id"); err != nil {
			return err
		}
		exp, derr := parseDate("expiry", *expiry)
		if derr != nil {
			return derr
		}
		result, err = svc.CompleteOrder(ctx, *id, app.CompleteRequest{Quantity: qty.Decimal, LotID: *lot, ExpiryDate: exp, Actor: *actor})

	case "order-cancel":
		id := fs.String("id", "", "order id")
		if err := parse("id"); err != nil {
			return err
		}
		result, err = svc.CancelOrder(ctx, *id, *actor)

	case "schema":
		if err := parse(); err != nil {
			return err
		}
		result, err = svc.EventSchemas(ctx)

	case "migrate":
		if err := parse(); err != nil {
			return err
		}
		result, err = svc.Migrate(ctx)

	case "seed":
		file := fs.String("file", "seed.toml", "TOML master data file")
		if err := parse(); err != nil {
			return err
		}
		result, err = svc.Seed(ctx, *file)

	case "interpret-count":
		apply := fs.Bool("apply", false, "record the proposal without review")
		countID := fs.String("count-id", "", "physical count document id")
		if err := parse(); err != nil {
			return err
		}
		sheet, rerr := io.ReadAll(in)
		if rerr != nil {
			return fmt.Errorf("read count sheet: %w", rerr)
		}
		proposal, perr := svc.InterpretCountSheet(ctx, string(sheet))
		if perr != nil || !*apply {
			result, err = proposal, perr
			break
		}
		result, err = svc.ApplyCountProposal(ctx, proposal, *countID, *actor)

	case "apply-count":
		countID := fs.String("count-id", "", "physical count document id")
		if err := parse(); err != nil {
			return err
		}
		var proposal ai.CountProposal
		if err := json.NewDecoder(in).Decode(&proposal); err != nil {
			return fmt.Errorf("invalid proposal JSON: %w", err)
		}
		result, err = svc.ApplyCountProposal(ctx, &proposal, *countID, *actor)

	default:
		return fmt.Errorf("%w: unknown command %q\navailable: %s", ErrUsage, cmd, commands)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// decimalFlag is a flag.Value holding a decimal quantity.
type decimalFlag struct {
	decimal.Decimal
}

func (f *decimalFlag) Set(s string) error {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	f.Decimal = v
	return nil
}

// optionalDecimalFlag stays nil unless the flag is given.
type optionalDecimalFlag struct {
	value *decimal.Decimal
}

func (f *optionalDecimalFlag) String() string {
	if f.value == nil {
		return ""
	}
	return f.value.String()
}

func (f *optionalDecimalFlag) Set(s string) error {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	f.value = &v
	return nil
}

func parseDate(name, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, fmt.Errorf("%w: -%s wants YYYY-MM-DD: %v", ErrUsage, name, err)
	}
	return &t, nil
}
