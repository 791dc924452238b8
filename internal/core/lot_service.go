package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"inventory-ledger/internal/logger"
)

// LotService is the lot registry. Quantities change only through
// ApplyMovementTx, which the journal calls; the remaining operations are
// explicit state transitions.
type LotService interface {
	Get(ctx context.Context, lotID string) (Lot, error)
	List(ctx context.Context, f LotFilter) ([]Lot, error)
	Quarantine(ctx context.Context, lotID, reason, actor string) (Lot, error)
	Release(ctx context.Context, lotID, actor string) (Lot, error)
	// Reserve holds the whole lot for ref. Reserved lots are not allocatable.
	Reserve(ctx context.Context, lotID, ref, actor string) (Lot, error)
	Unreserve(ctx context.Context, lotID, actor string) (Lot, error)
	// ApproveOverReceipt lifts the hold placed on stock received beyond the
	// ordered quantity.
	ApproveOverReceipt(ctx context.Context, lotID, actor string) (Lot, error)

	// CreateLotTx opens a lot for qty of product in warehouseID. The movement
	// that opens it must already be recorded.
	CreateLotTx(ctx context.Context, s *Scope, product Product, warehouseID string, qty decimal.Decimal, spec LotSpec, originMovementID int64) (Lot, error)
	// ApplyMovementTx changes the lot's remaining quantity by delta.
	ApplyMovementTx(ctx context.Context, s *Scope, lotID string, delta decimal.Decimal) (Lot, error)
	// TransitionTx runs a state change on a lot the scope already holds.
	TransitionTx(ctx context.Context, s *Scope, lotID string, change func(l *Lot) error) (Lot, error)
}

type lotService struct {
	runner *Runner
	stock  StockService
}

func NewLotService(runner *Runner, stock StockService) LotService {
	return &lotService{runner: runner, stock: stock}
}

// lotKeys locks the pair a lot lives in.
func lotKeys(lotID string) KeysFunc {
	return func(ctx context.Context, tx Tx) ([]string, error) {
		l, err := tx.Lots().Get(ctx, lotID)
		if err != nil {
			return nil, err
		}
		return []string{StockKey(l.ProductID, l.WarehouseID)}, nil
	}
}

func (s *lotService) Get(ctx context.Context, lotID string) (Lot, error) {
	var lot Lot
	err := s.runner.Read(ctx, func(ctx context.Context, sc *Scope) error {
		l, err := sc.Lots().Get(ctx, lotID)
		if err != nil {
			return err
		}
		l.AvailabilityStatus = l.EffectiveStatus(sc.Now())
		lot = l
		return nil
	})
	return lot, err
}

func (s *lotService) List(ctx context.Context, f LotFilter) ([]Lot, error) {
	var out []Lot
	err := s.runner.Read(ctx, func(ctx context.Context, sc *Scope) error {
		lots, err := sc.Lots().List(ctx, f)
		if err != nil {
			return fmt.Errorf("list lots: %w", err)
		}
		for i := range lots {
			lots[i].AvailabilityStatus = lots[i].EffectiveStatus(sc.Now())
		}
		out = lots
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *lotService) Quarantine(ctx context.Context, lotID, reason, actor string) (Lot, error) {
	if reason == "" {
		return Lot{}, invalidArgument("quarantine of lot %s needs a reason", lotID)
	}
	return s.transition(ctx, lotID, actor, "quarantine", func(sc *Scope, l *Lot) error {
		switch from := l.EffectiveStatus(sc.Now()); from {
		case LotAvailable:
		case LotReserved:
			return &TransitionError{LotID: l.ID, From: string(from), To: string(LotQuarantine), Reason: "unreserve the lot first"}
		default:
			return &TransitionError{LotID: l.ID, From: string(from), To: string(LotQuarantine)}
		}
		l.AvailabilityStatus = LotQuarantine
		l.HoldReason = reason
		sc.Emit(newEvent(EventLotQuarantined, sc.Now(), l.ID, LotPayload{Lot: *l, Reason: reason}))
		return nil
	})
}

func (s *lotService) Release(ctx context.Context, lotID, actor string) (Lot, error) {
	return s.transition(ctx, lotID, actor, "release", func(sc *Scope, l *Lot) error {
		from := l.EffectiveStatus(sc.Now())
		if from != LotQuarantine {
			return &TransitionError{LotID: l.ID, From: string(from), To: string(LotAvailable), Reason: "lot is not quarantined"}
		}
		switch {
		case l.QualityStatus == QualityRejected:
			return &TransitionError{LotID: l.ID, From: string(from), To: string(LotAvailable), Reason: "rejected lots must be written off"}
		case l.QualityStatus == QualityPending:
			return &TransitionError{LotID: l.ID, From: string(from), To: string(LotAvailable), Reason: "lot is awaiting inspection"}
		case l.AwaitingApproval:
			return &TransitionError{LotID: l.ID, From: string(from), To: string(LotAvailable), Reason: "over-receipt awaiting approval"}
		}
		l.AvailabilityStatus = LotAvailable
		l.HoldReason = ""
		sc.Emit(newEvent(EventLotReleased, sc.Now(), l.ID, LotPayload{Lot: *l}))
		return nil
	})
}

func (s *lotService) Reserve(ctx context.Context, lotID, ref, actor string) (Lot, error) {
	if ref == "" {
		return Lot{}, invalidArgument("reservation of lot %s needs a reference", lotID)
	}
	return s.transition(ctx, lotID, actor, "reserve", func(sc *Scope, l *Lot) error {
		if from := l.EffectiveStatus(sc.Now()); from != LotAvailable || l.AwaitingApproval {
			return &TransitionError{LotID: l.ID, From: string(from), To: string(LotReserved)}
		}
		l.AvailabilityStatus = LotReserved
		l.HoldReason = holdReservedPrefix + ref
		return nil
	})
}

func (s *lotService) Unreserve(ctx context.Context, lotID, actor string) (Lot, error) {
	return s.transition(ctx, lotID, actor, "unreserve", func(sc *Scope, l *Lot) error {
		if from := l.EffectiveStatus(sc.Now()); from != LotReserved {
			return &TransitionError{LotID: l.ID, From: string(from), To: string(LotAvailable)}
		}
		l.AvailabilityStatus = LotAvailable
		l.HoldReason = ""
		return nil
	})
}

func (s *lotService) ApproveOverReceipt(ctx context.Context, lotID, actor string) (Lot, error) {
	return s.transition(ctx, lotID, actor, "approve over-receipt", func(sc *Scope, l *Lot) error {
		if !l.AwaitingApproval {
			return &TransitionError{LotID: l.ID, From: string(l.AvailabilityStatus), To: string(LotAvailable), Reason: "lot is not awaiting approval"}
		}
		l.AwaitingApproval = false
		if l.EffectiveStatus(sc.Now()) != LotQuarantine {
			return nil
		}
		switch l.QualityStatus {
		case QualityApproved:
			l.AvailabilityStatus = LotAvailable
			l.HoldReason = ""
			sc.Emit(newEvent(EventLotReleased, sc.Now(), l.ID, LotPayload{Lot: *l}))
		case QualityPending:
			l.HoldReason = HoldPendingInspection
		case QualityRejected:
			l.HoldReason = HoldRejected
		}
		return nil
	})
}

func (s *lotService) transition(ctx context.Context, lotID, actor, name string, change func(sc *Scope, l *Lot) error) (Lot, error) {
	const op = "core.LotService.transition"

	var lot Lot
	err := s.runner.AtomicFor(ctx, lotKeys(lotID), func(ctx context.Context, sc *Scope) error {
		var err error
		lot, err = s.TransitionTx(ctx, sc, lotID, func(l *Lot) error { return change(sc, l) })
		return err
	})
	if err != nil {
		return Lot{}, err
	}
	logger.Info(ctx, "lot transition",
		logger.String("op", op),
		logger.String("transition", name),
		logger.String("lot_id", lot.ID),
		logger.String("status", string(lot.AvailabilityStatus)),
		logger.String("actor", actor))
	return lot, nil
}

func (s *lotService) TransitionTx(ctx context.Context, sc *Scope, lotID string, change func(l *Lot) error) (Lot, error) {
	l, err := sc.Lots().Get(ctx, lotID)
	if err != nil {
		return Lot{}, err
	}
	if err := sc.require(StockKey(l.ProductID, l.WarehouseID)); err != nil {
		return Lot{}, err
	}
	if err := change(&l); err != nil {
		return Lot{}, err
	}
	l.UpdatedAt = sc.Now()
	if err := sc.Lots().Update(ctx, l); err != nil {
		return Lot{}, fmt.Errorf("update lot %s: %w", l.ID, err)
	}
	if _, err := s.stock.RecomputeTx(ctx, sc, l.ProductID, l.WarehouseID); err != nil {
		return Lot{}, err
	}
	return l, nil
}

func (s *lotService) CreateLotTx(ctx context.Context, sc *Scope, product Product, warehouseID string, qty decimal.Decimal, spec LotSpec, originMovementID int64) (Lot, error) {
	if !qty.IsPositive() {
		return Lot{}, invalidQuantity("lot quantity must be positive, got %s", qty)
	}
	if err := sc.require(StockKey(product.ID, warehouseID)); err != nil {
		return Lot{}, err
	}
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	if _, err := sc.Lots().Get(ctx, spec.ID); err == nil {
		return Lot{}, invalidArgument("lot %s already exists", spec.ID)
	} else if !errors.Is(err, ErrLotNotFound) {
		return Lot{}, err
	}
	if spec.ExpiryDate != nil && !spec.ManufactureDate.IsZero() && spec.ExpiryDate.Before(spec.ManufactureDate) {
		return Lot{}, invalidArgument("lot %s expires before it was manufactured", spec.ID)
	}

	l := Lot{
		ID:                spec.ID,
		ProductID:         product.ID,
		WarehouseID:       warehouseID,
		InitialQuantity:   qty,
		RemainingQuantity: qty,
		UnitCost:          spec.UnitCost,
		ManufactureDate:   spec.ManufactureDate,
		ExpiryDate:        spec.ExpiryDate,
		ReceivedAt:        sc.Now(),
		QualityStatus:     spec.QualityStatus,
		Origin:            spec.Origin,
		OriginMovementID:  originMovementID,
		AwaitingApproval:  spec.AwaitingApproval,
		UpdatedAt:         sc.Now(),
	}
	if l.ManufactureDate.IsZero() {
		l.ManufactureDate = sc.Now()
	}
	if l.UnitCost.IsZero() {
		l.UnitCost = product.UnitCost
	}
	if l.QualityStatus == "" {
		l.QualityStatus = QualityApproved
		if product.RequiresInspection {
			l.QualityStatus = QualityPending
		}
	}
	l.AvailabilityStatus, l.HoldReason = initialAvailability(l)

	if err := sc.Lots().Insert(ctx, l); err != nil {
		return Lot{}, fmt.Errorf("insert lot %s: %w", l.ID, err)
	}
	if l.AvailabilityStatus == LotQuarantine {
		sc.Emit(newEvent(EventLotQuarantined, sc.Now(), l.ID, LotPayload{Lot: l, Reason: l.HoldReason}))
	}
	return l, nil
}

func initialAvailability(l Lot) (AvailabilityStatus, string) {
	switch {
	case l.AwaitingApproval:
		return LotQuarantine, HoldOverReceipt
	case l.QualityStatus == QualityPending:
		return LotQuarantine, HoldPendingInspection
	case l.QualityStatus == QualityRejected:
		return LotQuarantine, HoldRejected
	case l.QualityStatus == QualityConditional:
		return LotQuarantine, "conditional quality pending decision"
	}
	return LotAvailable, ""
}

const holdReservedPrefix = "reserved for "

// restoredAvailability is the status of a depleted lot that regains
// quantity. Depletion keeps the hold reason, so a manual quarantine or a
// whole-lot reservation comes back as it was.
func restoredAvailability(l Lot) (AvailabilityStatus, string) {
	switch {
	case strings.HasPrefix(l.HoldReason, holdReservedPrefix):
		return LotReserved, l.HoldReason
	case l.HoldReason != "":
		return LotQuarantine, l.HoldReason
	}
	return initialAvailability(l)
}

func (s *lotService) ApplyMovementTx(ctx context.Context, sc *Scope, lotID string, delta decimal.Decimal) (Lot, error) {
	l, err := sc.Lots().Get(ctx, lotID)
	if err != nil {
		return Lot{}, err
	}
	if err := sc.require(StockKey(l.ProductID, l.WarehouseID)); err != nil {
		return Lot{}, err
	}
	next := l.RemainingQuantity.Add(delta)
	if next.IsNegative() {
		return Lot{}, &QuantityError{
			Err:         ErrInsufficientLotQuantity,
			ProductID:   l.ProductID,
			WarehouseID: l.WarehouseID,
			LotID:       l.ID,
			Available:   l.RemainingQuantity,
			Requested:   delta.Neg(),
		}
	}
	if next.GreaterThan(l.InitialQuantity) {
		return Lot{}, invalidQuantity("lot %s would hold %s, above its initial %s", l.ID, next, l.InitialQuantity)
	}

	wasDepleted := l.AvailabilityStatus == LotDepleted
	l.RemainingQuantity = next
	switch {
	case next.IsZero():
		l.AvailabilityStatus = LotDepleted
	case wasDepleted:
		l.AvailabilityStatus, l.HoldReason = restoredAvailability(l)
	}
	l.UpdatedAt = sc.Now()
	if err := sc.Lots().Update(ctx, l); err != nil {
		return Lot{}, fmt.Errorf("update lot %s: %w", l.ID, err)
	}
	return l, nil
}
