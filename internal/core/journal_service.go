package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"inventory-ledger/internal/logger"
)

// ConservationReport compares a lot's quantities with what the journal says
// was drawn from it.
type ConservationReport struct {
	LotID     string          `json:"lot_id"`
	Initial   decimal.Decimal `json:"initial"`
	Remaining decimal.Decimal `json:"remaining"`
	Drawn     decimal.Decimal `json:"drawn"`
	Balanced  bool            `json:"balanced"`
}

// JournalService is the append-only movement log. Every quantity change in
// the engine is a movement appended here; the lot registry and the stock
// ledger are updated in the same scope.
type JournalService interface {
	// Append records m holding the locks of the pairs it touches and
	// returns the new movement id.
	Append(ctx context.Context, m Movement) (int64, error)
	// AppendTx records m inside an existing scope. The scope must hold
	// every pair m touches.
	AppendTx(ctx context.Context, s *Scope, m Movement) (int64, error)
	// Reverse appends the movements that undo id. A movement can be
	// reversed once.
	Reverse(ctx context.Context, id int64, actor, reason string) ([]int64, error)
	History(ctx context.Context, f MovementFilter) ([]Movement, error)
	VerifyConservation(ctx context.Context, lotID string) (ConservationReport, error)
}

type journalService struct {
	runner *Runner
	lots   LotService
	stock  StockService
}

func NewJournalService(runner *Runner, lots LotService, stock StockService) JournalService {
	return &journalService{runner: runner, lots: lots, stock: stock}
}

// MovementKeys returns the lock keys of the pairs m touches.
func MovementKeys(m Movement) []string {
	var keys []string
	for _, p := range m.Pairs() {
		keys = append(keys, StockKey(p.ProductID, p.WarehouseID))
	}
	return keys
}

func (s *journalService) Append(ctx context.Context, m Movement) (int64, error) {
	const op = "core.JournalService.Append"

	var id int64
	err := s.runner.Atomic(ctx, MovementKeys(m), func(ctx context.Context, sc *Scope) error {
		var err error
		id, err = s.AppendTx(ctx, sc, m)
		return err
	})
	if err != nil {
		logger.Warn(ctx, "movement rejected",
			logger.String("op", op),
			logger.String("type", string(m.Type)),
			logger.String("product_id", m.ProductID),
			logger.ErrorF(err))
		return 0, err
	}
	logger.Info(ctx, "movement appended",
		logger.String("op", op),
		logger.Int64("movement_id", id),
		logger.String("type", string(m.Type)),
		logger.String("product_id", m.ProductID),
		logger.String("quantity", m.Quantity.String()))
	return id, nil
}

func (s *journalService) AppendTx(ctx context.Context, sc *Scope, m Movement) (int64, error) {
	if err := validateShape(m); err != nil {
		return 0, err
	}
	if err := sc.requirePairs(m.Pairs()...); err != nil {
		return 0, err
	}

	product, err := sc.Catalog().Product(ctx, m.ProductID)
	if err != nil {
		return 0, lookupErr(err, "product %s", m.ProductID)
	}
	if err := s.checkWarehouses(ctx, sc, m); err != nil {
		return 0, err
	}

	m.ID = 0
	m.OccurredAt = sc.Now()
	if m.Actor == "" {
		m.Actor = "system"
	}

	var id int64
	if product.LotTracked {
		id, err = s.appendTracked(ctx, sc, product, m)
	} else {
		id, err = s.appendUntracked(ctx, sc, m)
	}
	if err != nil {
		return 0, err
	}

	for _, p := range m.Pairs() {
		if _, err := s.stock.RecomputeTx(ctx, sc, p.ProductID, p.WarehouseID); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// validateShape checks what can be checked without reading state.
func validateShape(m Movement) error {
	if m.ProductID == "" {
		return unknownReference("movement has no product")
	}
	switch m.Type {
	case MovementInbound:
		if m.ToWarehouseID == "" || m.FromWarehouseID != "" {
			return invalidArgument("inbound movements name only a destination warehouse")
		}
	case MovementOutbound:
		if m.FromWarehouseID == "" || m.ToWarehouseID != "" {
			return invalidArgument("outbound movements name only a source warehouse")
		}
	case MovementTransfer:
		if m.FromWarehouseID == "" || m.ToWarehouseID == "" {
			return invalidArgument("transfers name both warehouses")
		}
		if m.FromWarehouseID == m.ToWarehouseID {
			return invalidArgument("transfer source and destination are both %s", m.FromWarehouseID)
		}
	case MovementAdjustment:
		if m.ToWarehouseID == "" || m.FromWarehouseID != "" {
			return invalidArgument("adjustments name their warehouse as destination")
		}
		if m.Quantity.IsZero() {
			return invalidQuantity("adjustment delta must not be zero")
		}
		if strings.TrimSpace(m.Reason) == "" {
			return invalidQuantity("adjustment needs a reason")
		}
		return nil
	default:
		return invalidArgument("unknown movement type %q", m.Type)
	}
	if !m.Quantity.IsPositive() {
		return invalidQuantity("%s quantity must be positive, got %s", m.Type, m.Quantity)
	}
	return nil
}

func (s *journalService) checkWarehouses(ctx context.Context, sc *Scope, m Movement) error {
	if m.FromWarehouseID != "" {
		w, err := sc.Catalog().Warehouse(ctx, m.FromWarehouseID)
		if err != nil {
			return lookupErr(err, "warehouse %s", m.FromWarehouseID)
		}
		if !w.CanShip {
			return unknownReference("warehouse %s cannot ship", w.ID)
		}
	}
	if m.ToWarehouseID != "" {
		w, err := sc.Catalog().Warehouse(ctx, m.ToWarehouseID)
		if err != nil {
			return lookupErr(err, "warehouse %s", m.ToWarehouseID)
		}
		if m.Type != MovementAdjustment && !w.CanReceive {
			return unknownReference("warehouse %s cannot receive", w.ID)
		}
	}
	return nil
}

func (s *journalService) appendTracked(ctx context.Context, sc *Scope, product Product, m Movement) (int64, error) {
	switch m.Type {
	case MovementInbound:
		if m.LotID != "" {
			return 0, invalidArgument("inbound movements open their own lot; use NewLot")
		}
		if m.NewLot == nil {
			return 0, invalidArgument("inbound of lot-tracked product %s needs a lot spec", product.ID)
		}
		return s.openLot(ctx, sc, product, m, *m.NewLot)

	case MovementOutbound:
		if _, err := s.sourceLot(ctx, sc, m, m.FromWarehouseID); err != nil {
			return 0, err
		}
		id, err := sc.Movements().Insert(ctx, m)
		if err != nil {
			return 0, fmt.Errorf("insert movement: %w", err)
		}
		if _, err := s.lots.ApplyMovementTx(ctx, sc, m.LotID, m.Quantity.Neg()); err != nil {
			return 0, err
		}
		return id, nil

	case MovementTransfer:
		src, err := s.sourceLot(ctx, sc, m, m.FromWarehouseID)
		if err != nil {
			return 0, err
		}
		if m.DestLotID == "" {
			m.DestLotID = uuid.NewString()
		}
		id, err := sc.Movements().Insert(ctx, m)
		if err != nil {
			return 0, fmt.Errorf("insert movement: %w", err)
		}
		if _, err := s.lots.ApplyMovementTx(ctx, sc, src.ID, m.Quantity.Neg()); err != nil {
			return 0, err
		}
		spec := LotSpec{
			ID:               m.DestLotID,
			ManufactureDate:  src.ManufactureDate,
			ExpiryDate:       src.ExpiryDate,
			UnitCost:         src.UnitCost,
			Origin:           LotOrigin{Kind: OriginTransfer, Reference: strconv.FormatInt(id, 10)},
			QualityStatus:    src.QualityStatus,
			AwaitingApproval: src.AwaitingApproval,
		}
		child, err := s.lots.CreateLotTx(ctx, sc, product, m.ToWarehouseID, m.Quantity, spec, id)
		if err != nil {
			return 0, err
		}
		// A quarantined parent stays quarantined for the same reason at
		// the destination.
		if src.AvailabilityStatus == LotQuarantine && child.AvailabilityStatus != LotQuarantine {
			child.AvailabilityStatus = LotQuarantine
			child.HoldReason = src.HoldReason
		}
		child.ParentLotID = src.ID
		if err := sc.Lots().Update(ctx, child); err != nil {
			return 0, fmt.Errorf("link lot %s to parent: %w", child.ID, err)
		}
		return id, nil

	case MovementAdjustment:
		if m.LotID == "" {
			if m.Quantity.IsNegative() {
				return 0, invalidArgument("negative adjustment of lot-tracked product %s must name a lot", product.ID)
			}
			spec := LotSpec{Origin: LotOrigin{Kind: OriginAdjustment, Reference: m.Document.ID}}
			if m.NewLot != nil {
				spec = *m.NewLot
				if spec.Origin.Kind == "" {
					spec.Origin = LotOrigin{Kind: OriginAdjustment, Reference: m.Document.ID}
				}
			}
			return s.openLot(ctx, sc, product, m, spec)
		}
		l, err := sc.Lots().Get(ctx, m.LotID)
		if err != nil {
			return 0, err
		}
		if l.ProductID != m.ProductID || l.WarehouseID != m.ToWarehouseID {
			return 0, invalidArgument("lot %s holds %s in %s", l.ID, l.ProductID, l.WarehouseID)
		}
		id, err := sc.Movements().Insert(ctx, m)
		if err != nil {
			return 0, fmt.Errorf("insert movement: %w", err)
		}
		if _, err := s.lots.ApplyMovementTx(ctx, sc, l.ID, m.Quantity); err != nil {
			return 0, err
		}
		return id, nil
	}
	return 0, invalidArgument("unknown movement type %q", m.Type)
}

// openLot records m and the lot it opens. The lot id is fixed before the
// insert so the movement references it.
func (s *journalService) openLot(ctx context.Context, sc *Scope, product Product, m Movement, spec LotSpec) (int64, error) {
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	if spec.Origin.Kind == "" {
		spec.Origin = LotOrigin{Kind: OriginSupplierReceipt, Reference: m.Document.ID}
	}
	m.LotID = spec.ID
	id, err := sc.Movements().Insert(ctx, m)
	if err != nil {
		return 0, fmt.Errorf("insert movement: %w", err)
	}
	if _, err := s.lots.CreateLotTx(ctx, sc, product, m.ToWarehouseID, m.Quantity, spec, id); err != nil {
		return 0, err
	}
	return id, nil
}

// sourceLot loads the lot an outbound or transfer draws from and checks it
// can cover the quantity.
func (s *journalService) sourceLot(ctx context.Context, sc *Scope, m Movement, warehouseID string) (Lot, error) {
	if m.LotID == "" {
		return Lot{}, invalidArgument("%s of lot-tracked product %s must name a lot", m.Type, m.ProductID)
	}
	l, err := sc.Lots().Get(ctx, m.LotID)
	if err != nil {
		return Lot{}, err
	}
	if l.ProductID != m.ProductID || l.WarehouseID != warehouseID {
		return Lot{}, invalidArgument("lot %s holds %s in %s", l.ID, l.ProductID, l.WarehouseID)
	}
	if l.RemainingQuantity.LessThan(m.Quantity) {
		return Lot{}, &QuantityError{
			Err:         ErrInsufficientLotQuantity,
			ProductID:   l.ProductID,
			WarehouseID: l.WarehouseID,
			LotID:       l.ID,
			Available:   l.RemainingQuantity,
			Requested:   m.Quantity,
		}
	}
	return l, nil
}

func (s *journalService) appendUntracked(ctx context.Context, sc *Scope, m Movement) (int64, error) {
	if m.LotID != "" {
		return 0, invalidArgument("product %s is not lot-tracked", m.ProductID)
	}
	m.NewLot = nil

	var (
		drawFrom string
		need     decimal.Decimal
	)
	switch {
	case m.Type == MovementOutbound || m.Type == MovementTransfer:
		drawFrom, need = m.FromWarehouseID, m.Quantity
	case m.Type == MovementAdjustment && m.Quantity.IsNegative():
		drawFrom, need = m.ToWarehouseID, m.Quantity.Neg()
	}
	if drawFrom != "" {
		sum, _, err := sc.Movements().PairSummary(ctx, m.ProductID, drawFrom)
		if err != nil {
			return 0, fmt.Errorf("pair summary: %w", err)
		}
		if sum.LessThan(need) {
			return 0, &QuantityError{
				Err:         ErrInsufficientStock,
				ProductID:   m.ProductID,
				WarehouseID: drawFrom,
				Available:   sum,
				Requested:   need,
			}
		}
	}
	id, err := sc.Movements().Insert(ctx, m)
	if err != nil {
		return 0, fmt.Errorf("insert movement: %w", err)
	}
	return id, nil
}

func (s *journalService) Reverse(ctx context.Context, id int64, actor, reason string) ([]int64, error) {
	const op = "core.JournalService.Reverse"

	if strings.TrimSpace(reason) == "" {
		return nil, invalidQuantity("reversal of movement %d needs a reason", id)
	}
	keys := func(ctx context.Context, tx Tx) ([]string, error) {
		m, err := tx.Movements().Get(ctx, id)
		if err != nil {
			return nil, movementLookupErr(err, id)
		}
		return MovementKeys(m), nil
	}

	var ids []int64
	err := s.runner.AtomicFor(ctx, keys, func(ctx context.Context, sc *Scope) error {
		orig, err := sc.Movements().Get(ctx, id)
		if err != nil {
			return movementLookupErr(err, id)
		}
		prior, err := sc.Movements().List(ctx, MovementFilter{ReversesID: id, Limit: 1})
		if err != nil {
			return fmt.Errorf("check prior reversal: %w", err)
		}
		if len(prior) > 0 {
			return fmt.Errorf("%w: movement %d by movement %d", ErrAlreadyReversed, id, prior[0].ID)
		}

		ids = ids[:0]
		for _, c := range compensation(orig) {
			c.Document = DocumentRef{Kind: DocReversal, ID: strconv.FormatInt(id, 10)}
			c.Actor = actor
			c.Reason = reason
			c.ReversesMovementID = id
			newID, err := s.AppendTx(ctx, sc, c)
			if err != nil {
				return fmt.Errorf("reverse movement %d: %w", id, err)
			}
			ids = append(ids, newID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "movement reversed",
		logger.String("op", op),
		logger.Int64("movement_id", id),
		logger.Int("compensating", len(ids)))
	return ids, nil
}

// compensation builds the adjustments that cancel orig. Transfers are
// undone on both sides.
func compensation(orig Movement) []Movement {
	adj := func(warehouseID, lotID string, delta decimal.Decimal) Movement {
		return Movement{
			Type:          MovementAdjustment,
			ProductID:     orig.ProductID,
			ToWarehouseID: warehouseID,
			LotID:         lotID,
			Quantity:      delta,
		}
	}
	switch orig.Type {
	case MovementInbound:
		return []Movement{adj(orig.ToWarehouseID, orig.LotID, orig.Quantity.Neg())}
	case MovementOutbound:
		return []Movement{adj(orig.FromWarehouseID, orig.LotID, orig.Quantity)}
	case MovementTransfer:
		return []Movement{
			adj(orig.ToWarehouseID, orig.DestLotID, orig.Quantity.Neg()),
			adj(orig.FromWarehouseID, orig.LotID, orig.Quantity),
		}
	case MovementAdjustment:
		return []Movement{adj(orig.ToWarehouseID, orig.LotID, orig.Quantity.Neg())}
	}
	return nil
}

func movementLookupErr(err error, id int64) error {
	if errors.Is(err, ErrNotFound) {
		return unknownReference("movement %d", id)
	}
	return err
}

func (s *journalService) History(ctx context.Context, f MovementFilter) ([]Movement, error) {
	var out []Movement
	err := s.runner.Read(ctx, func(ctx context.Context, sc *Scope) error {
		var err error
		out, err = sc.Movements().List(ctx, f)
		return err
	})
	return out, err
}

func (s *journalService) VerifyConservation(ctx context.Context, lotID string) (ConservationReport, error) {
	var rep ConservationReport
	err := s.runner.Read(ctx, func(ctx context.Context, sc *Scope) error {
		l, err := sc.Lots().Get(ctx, lotID)
		if err != nil {
			return err
		}
		moves, err := sc.Movements().List(ctx, MovementFilter{LotID: lotID})
		if err != nil {
			return fmt.Errorf("list movements of lot %s: %w", lotID, err)
		}
		drawn := decimal.Zero
		for _, m := range moves {
			if m.ID == l.OriginMovementID {
				continue
			}
			drawn = drawn.Add(m.DrawnFrom(lotID))
		}
		rep = ConservationReport{
			LotID:     lotID,
			Initial:   l.InitialQuantity,
			Remaining: l.RemainingQuantity,
			Drawn:     drawn,
			Balanced:  l.InitialQuantity.Sub(l.RemainingQuantity).Equal(drawn),
		}
		return nil
	})
	return rep, err
}
