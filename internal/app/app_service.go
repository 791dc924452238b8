package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
	"github.com/shopspring/decimal"

	"inventory-ledger/internal/ai"
	"inventory-ledger/internal/core"
	"inventory-ledger/internal/events"
	"inventory-ledger/internal/logger"
	"inventory-ledger/internal/seed"
)

// ErrNotConfigured is returned by operations whose collaborator was not
// provided, such as Migrate in memory mode.
var ErrNotConfigured = errors.New("not configured")

// Migrator applies the embedded schema migrations.
type Migrator interface {
	Up(ctx context.Context) error
	Version(ctx context.Context) (int64, error)
}

type appService struct {
	engine      *core.Engine
	interpreter ai.CountInterpreter
	migrator    Migrator
}

// NewAppService constructs an appService that satisfies ApplicationService.
// interpreter and migrator may be nil; the operations that need them then
// return ErrNotConfigured.
func NewAppService(engine *core.Engine, interpreter ai.CountInterpreter, migrator Migrator) ApplicationService {
	return &appService{
		engine:      engine,
		interpreter: interpreter,
		migrator:    migrator,
	}
}

func (s *appService) ListLevels(ctx context.Context) (*LevelsResult, error) {
	levels, err := s.engine.Stock.ListLevels(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.LevelAlerts, 0, len(levels))
	for _, l := range levels {
		out = append(out, core.LevelAlerts{Level: l, Alerts: l.Alerts()})
	}
	return &LevelsResult{Levels: out}, nil
}

func (s *appService) ListAlerts(ctx context.Context) (*LevelsResult, error) {
	alerts, err := s.engine.Stock.Alerts(ctx)
	if err != nil {
		return nil, err
	}
	return &LevelsResult{Levels: alerts}, nil
}

func (s *appService) ListLots(ctx context.Context, q LotQuery) (*LotsResult, error) {
	lots, err := s.engine.Lots.List(ctx, core.LotFilter{
		ProductID:       core.NormalizeID(q.ProductID),
		WarehouseID:     core.NormalizeID(q.WarehouseID),
		IncludeDepleted: q.IncludeDepleted,
	})
	if err != nil {
		return nil, err
	}
	return &LotsResult{Lots: lots}, nil
}

func (s *appService) History(ctx context.Context, q HistoryQuery) (*HistoryResult, error) {
	movements, err := s.engine.Journal.History(ctx, core.MovementFilter{
		ProductID:   core.NormalizeID(q.ProductID),
		WarehouseID: core.NormalizeID(q.WarehouseID),
		LotID:       q.LotID,
		AfterID:     q.AfterID,
		Limit:       q.Limit,
	})
	if err != nil {
		return nil, err
	}
	return &HistoryResult{Movements: movements}, nil
}

func (s *appService) VerifyLot(ctx context.Context, lotID string) (*core.ConservationReport, error) {
	rep, err := s.engine.Journal.VerifyConservation(ctx, lotID)
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

func (s *appService) Audit(ctx context.Context) (*AuditResult, error) {
	const op = "app.Audit"
	out := &AuditResult{}

	lots, err := s.engine.Lots.List(ctx, core.LotFilter{IncludeDepleted: true})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, l := range lots {
		rep, err := s.engine.Journal.VerifyConservation(ctx, l.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: lot %s: %w", op, l.ID, err)
		}
		out.LotsChecked++
		if !rep.Balanced {
			out.Unbalanced = append(out.Unbalanced, rep)
		}
	}

	levels, err := s.engine.Stock.ListLevels(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, cached := range levels {
		fresh, err := s.engine.Stock.Recompute(ctx, cached.ProductID, cached.WarehouseID)
		if err != nil {
			return nil, fmt.Errorf("%s: level %s@%s: %w", op, cached.ProductID, cached.WarehouseID, err)
		}
		out.LevelsChecked++
		if !fresh.OnHand.Equal(cached.OnHand) {
			out.Drift = append(out.Drift, LevelDrift{
				ProductID:   cached.ProductID,
				WarehouseID: cached.WarehouseID,
				Cached:      cached.OnHand,
				Journal:     fresh.OnHand,
			})
		}
	}
	if !out.OK() {
		logger.Warn(ctx, "audit found inconsistencies",
			logger.Int("unbalanced_lots", len(out.Unbalanced)),
			logger.Int("drifted_levels", len(out.Drift)))
	}
	return out, nil
}

// Receive books a supplier receipt through the receiving workflow.
func (s *appService) Receive(ctx context.Context, req ReceiveRequest) (*core.ReceiptResult, error) {
	res, err := s.engine.Receiving.ReceiveLot(ctx, core.ReceiptRequest{
		ProductID:       core.NormalizeID(req.ProductID),
		WarehouseID:     core.NormalizeID(req.WarehouseID),
		Quantity:        req.Quantity,
		OrderedQuantity: req.OrderedQuantity,
		ReceiptID:       req.ReceiptID,
		Lot: core.LotSpec{
			ID:              req.LotID,
			ManufactureDate: req.ManufactureDate,
			ExpiryDate:      req.ExpiryDate,
			UnitCost:        req.UnitCost,
		},
		Actor: req.Actor,
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Issue ships stock against a sales document. A missing document id gets a
// generated one so the movements stay traceable.
func (s *appService) Issue(ctx context.Context, req IssueRequest) (*core.IssueResult, error) {
	policy, err := core.ParsePolicy(req.Policy)
	if err != nil {
		return nil, err
	}
	docID := req.DocumentID
	if docID == "" {
		docID = "SO-" + uuid.NewString()[:8]
	}
	res, err := s.engine.Allocator.Issue(ctx, core.IssueRequest{
		AllocationRequest: core.AllocationRequest{
			ProductID:   core.NormalizeID(req.ProductID),
			WarehouseID: core.NormalizeID(req.WarehouseID),
			Quantity:    req.Quantity,
			Policy:      policy,
		},
		Document: core.DocumentRef{Kind: core.DocSalesShipment, ID: docID},
		Actor:    req.Actor,
		Reason:   req.Reason,
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *appService) Transfer(ctx context.Context, req TransferRequest) (*MovementResult, error) {
	docID := req.DocumentID
	if docID == "" {
		docID = "TO-" + uuid.NewString()[:8]
	}
	id, err := s.engine.Journal.Append(ctx, core.Movement{
		Type:            core.MovementTransfer,
		ProductID:       core.NormalizeID(req.ProductID),
		FromWarehouseID: core.NormalizeID(req.FromWarehouseID),
		ToWarehouseID:   core.NormalizeID(req.ToWarehouseID),
		Quantity:        req.Quantity,
		LotID:           req.LotID,
		Document:        core.DocumentRef{Kind: core.DocTransferOrder, ID: docID},
		Actor:           req.Actor,
		Reason:          req.Reason,
	})
	if err != nil {
		return nil, err
	}
	return &MovementResult{MovementIDs: []int64{id}}, nil
}

func (s *appService) Count(ctx context.Context, req CountRequest) (*core.CountResult, error) {
	res, err := s.engine.Counts.RecordCount(ctx, core.CountRequest{
		ProductID:       core.NormalizeID(req.ProductID),
		WarehouseID:     core.NormalizeID(req.WarehouseID),
		LotID:           req.LotID,
		CountedQuantity: req.CountedQuantity,
		CountID:         req.CountID,
		Reason:          req.Reason,
		Actor:           req.Actor,
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *appService) Reverse(ctx context.Context, movementID int64, reason, actor string) (*MovementResult, error) {
	ids, err := s.engine.Journal.Reverse(ctx, movementID, actor, reason)
	if err != nil {
		return nil, err
	}
	return &MovementResult{MovementIDs: ids}, nil
}

func (s *appService) Quarantine(ctx context.Context, lotID, reason, actor string) (*core.Lot, error) {
	return lotResult(s.engine.Lots.Quarantine(ctx, lotID, reason, actor))
}

func (s *appService) Release(ctx context.Context, lotID, actor string) (*core.Lot, error) {
	return lotResult(s.engine.Lots.Release(ctx, lotID, actor))
}

func (s *appService) ApproveOverReceipt(ctx context.Context, lotID, actor string) (*core.Lot, error) {
	return lotResult(s.engine.Lots.ApproveOverReceipt(ctx, lotID, actor))
}

func (s *appService) ApproveReceipt(ctx context.Context, receiptID, actor string) (*ReservationsResult, error) {
	released, err := s.engine.Receiving.ApproveOverReceipt(ctx, receiptID, actor)
	if err != nil {
		return nil, err
	}
	return &ReservationsResult{Reservations: released}, nil
}

func (s *appService) Inspect(ctx context.Context, lotID, result, note, actor string) (*core.Lot, error) {
	r := core.InspectionResult(strings.ToLower(strings.TrimSpace(result)))
	switch r {
	case core.InspectionPassed, core.InspectionFailed, core.InspectionConditional:
	default:
		return nil, fmt.Errorf("%w: inspection result %q", core.ErrInvalidArgument, result)
	}
	return lotResult(s.engine.Quality.RecordInspection(ctx, lotID, r, actor, note))
}

func (s *appService) WriteOff(ctx context.Context, lotID, reason, actor string) (*MovementResult, error) {
	id, err := s.engine.Quality.WriteOff(ctx, lotID, reason, actor)
	if err != nil {
		return nil, err
	}
	return &MovementResult{MovementIDs: []int64{id}}, nil
}

func (s *appService) SetThresholds(ctx context.Context, productID, warehouseID string, t core.Thresholds) (*core.StockLevel, error) {
	lvl, err := s.engine.Stock.SetThresholds(ctx, core.NormalizeID(productID), core.NormalizeID(warehouseID), t)
	if err != nil {
		return nil, err
	}
	return &lvl, nil
}

func (s *appService) Explode(ctx context.Context, productID string, qty decimal.Decimal) (*core.Explosion, error) {
	return s.engine.BOMs.Explode(ctx, core.NormalizeID(productID), qty)
}

func (s *appService) BOMTree(ctx context.Context, productID string, qty decimal.Decimal) (*core.BOMNode, error) {
	return s.engine.BOMs.Tree(ctx, core.NormalizeID(productID), qty)
}

func (s *appService) Suggest(ctx context.Context) (*SuggestionsResult, error) {
	suggestions, err := s.engine.Replenishment.GenerateSuggestions(ctx)
	if err != nil {
		return nil, err
	}
	return &SuggestionsResult{Suggestions: suggestions}, nil
}

func (s *appService) RegisterOrder(ctx context.Context, req OrderRequest) (*core.ProductionOrder, error) {
	o, err := s.engine.Production.RegisterProductionOrder(ctx, core.ProductionOrder{
		ID:          req.ID,
		ProductID:   core.NormalizeID(req.ProductID),
		WarehouseID: core.NormalizeID(req.WarehouseID),
		Quantity:    req.Quantity,
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *appService) ListOpenOrders(ctx context.Context) (*OrdersResult, error) {
	orders, err := s.engine.Production.ListOpenOrders(ctx)
	if err != nil {
		return nil, err
	}
	return &OrdersResult{Orders: orders}, nil
}

func (s *appService) ReserveMaterials(ctx context.Context, orderID, actor string) (*ReservationsResult, error) {
	resv, err := s.engine.Production.ReserveMaterials(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	return &ReservationsResult{Reservations: resv}, nil
}

func (s *appService) StartOrder(ctx context.Context, orderID, policy, actor string) (*core.StartResult, error) {
	p, err := core.ParsePolicy(policy)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.Production.StartProduction(ctx, orderID, p, actor)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *appService) CompleteOrder(ctx context.Context, orderID string, req CompleteRequest) (*CompletionResult, error) {
	o, id, err := s.engine.Production.CompleteProduction(ctx, orderID, core.CompletionRequest{
		Quantity: req.Quantity,
		Lot:      core.LotSpec{ID: req.LotID, ExpiryDate: req.ExpiryDate},
		Actor:    req.Actor,
	})
	if err != nil {
		return nil, err
	}
	return &CompletionResult{Order: o, MovementID: id}, nil
}

func (s *appService) CancelOrder(ctx context.Context, orderID, actor string) (*core.ProductionOrder, error) {
	o, err := s.engine.Production.CancelProduction(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *appService) EventSchemas(_ context.Context) (map[core.EventType]*jsonschema.Schema, error) {
	return events.Schemas()
}

func (s *appService) Seed(ctx context.Context, path string) (*SeedResult, error) {
	f, err := seed.Load(path)
	if err != nil {
		return nil, err
	}
	sum, err := f.Apply(ctx, s.engine)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "seed applied", logger.String("path", path), logger.Any("summary", sum))
	return &SeedResult{Path: path, Summary: sum}, nil
}

func (s *appService) Migrate(ctx context.Context) (*MigrateResult, error) {
	if s.migrator == nil {
		return nil, fmt.Errorf("%w: migrations need a database connection", ErrNotConfigured)
	}
	if err := s.migrator.Up(ctx); err != nil {
		return nil, err
	}
	v, err := s.migrator.Version(ctx)
	if err != nil {
		return nil, err
	}
	return &MigrateResult{Version: v}, nil
}

func (s *appService) InterpretCountSheet(ctx context.Context, sheet string) (*ai.CountProposal, error) {
	const op = "app.InterpretCountSheet"
	if s.interpreter == nil {
		return nil, fmt.Errorf("%w: set OPENAI_API_KEY to interpret count sheets", ErrNotConfigured)
	}
	if strings.TrimSpace(sheet) == "" {
		return nil, fmt.Errorf("%w: empty count sheet", core.ErrInvalidArgument)
	}

	catalog, err := s.countCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p, err := s.interpreter.InterpretCountSheet(ctx, sheet, catalog)
	if err != nil {
		return nil, err
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// countCatalog renders the products, warehouses and open lots the agent may
// reference, one per line.
func (s *appService) countCatalog(ctx context.Context) (string, error) {
	products, err := s.engine.Catalog.Products(ctx)
	if err != nil {
		return "", err
	}
	warehouses, err := s.engine.Catalog.Warehouses(ctx)
	if err != nil {
		return "", err
	}
	lots, err := s.engine.Lots.List(ctx, core.LotFilter{})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Warehouses:\n")
	for _, w := range warehouses {
		fmt.Fprintf(&b, "- %s %s\n", w.ID, w.Name)
	}
	b.WriteString("Products:\n")
	for _, p := range products {
		tracking := "untracked"
		if p.LotTracked {
			tracking = "lot-tracked"
		}
		fmt.Fprintf(&b, "- %s %s (%s, %s)\n", p.ID, p.Name, p.UnitOfMeasure, tracking)
	}
	b.WriteString("Open lots:\n")
	for _, l := range lots {
		fmt.Fprintf(&b, "- %s product=%s warehouse=%s remaining=%s\n", l.ID, l.ProductID, l.WarehouseID, l.RemainingQuantity)
	}
	return b.String(), nil
}

func (s *appService) ApplyCountProposal(ctx context.Context, p *ai.CountProposal, countID, actor string) (*CountSheetResult, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil proposal", core.ErrInvalidArgument)
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if countID == "" {
		countID = "PC-" + uuid.NewString()[:8]
	}

	out := &CountSheetResult{CountID: countID}
	for i, req := range p.CountRequests(countID, actor) {
		line := CountLineResult{Line: p.Lines[i]}
		res, err := s.engine.Counts.RecordCount(ctx, req)
		if err != nil {
			logger.Warn(ctx, "count line rejected",
				logger.String("count_id", countID),
				logger.String("product_id", req.ProductID),
				logger.ErrorF(err))
			line.Error = err.Error()
			out.Failed++
		} else {
			line.Result = &res
			out.Recorded++
		}
		out.Lines = append(out.Lines, line)
	}
	return out, nil
}

func lotResult(l core.Lot, err error) (*core.Lot, error) {
	if err != nil {
		return nil, err
	}
	return &l, nil
}
