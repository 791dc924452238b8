package core

import (
	"context"
	"strings"

	"inventory-ledger/internal/logger"
)

// QualityService applies inspection outcomes and write-offs reported by the
// external quality workflow.
type QualityService interface {
	// RecordInspection moves a pending or conditional lot along the quality
	// state machine. Passed lots are released unless another hold applies;
	// failed lots are rejected and quarantined.
	RecordInspection(ctx context.Context, lotID string, result InspectionResult, actor, note string) (Lot, error)
	// WriteOff adjusts the whole remaining quantity of a lot out of stock.
	WriteOff(ctx context.Context, lotID, reason, actor string) (int64, error)
}

type qualityService struct {
	runner  *Runner
	lots    LotService
	journal JournalService
}

func NewQualityService(runner *Runner, lots LotService, journal JournalService) QualityService {
	return &qualityService{runner: runner, lots: lots, journal: journal}
}

func (s *qualityService) RecordInspection(ctx context.Context, lotID string, result InspectionResult, actor, note string) (Lot, error) {
	const op = "core.QualityService.RecordInspection"

	switch result {
	case InspectionPassed, InspectionFailed, InspectionConditional:
	default:
		return Lot{}, invalidArgument("unknown inspection result %q", result)
	}

	var lot Lot
	err := s.runner.AtomicFor(ctx, lotKeys(lotID), func(ctx context.Context, sc *Scope) error {
		var err error
		lot, err = s.lots.TransitionTx(ctx, sc, lotID, func(l *Lot) error {
			if l.QualityStatus != QualityPending && l.QualityStatus != QualityConditional {
				return &TransitionError{LotID: l.ID, From: string(l.QualityStatus), To: string(result), Reason: "lot is not awaiting a quality decision"}
			}
			live := l.AvailabilityStatus != LotDepleted
			switch result {
			case InspectionPassed:
				l.QualityStatus = QualityApproved
				if live && !l.AwaitingApproval && l.EffectiveStatus(sc.Now()) == LotQuarantine {
					l.AvailabilityStatus = LotAvailable
					l.HoldReason = ""
					sc.Emit(newEvent(EventLotReleased, sc.Now(), l.ID, LotPayload{Lot: *l, Reason: note}))
				}
			case InspectionFailed:
				l.QualityStatus = QualityRejected
				if live {
					wasQuarantined := l.AvailabilityStatus == LotQuarantine
					l.AvailabilityStatus = LotQuarantine
					l.HoldReason = HoldRejected
					if !wasQuarantined {
						sc.Emit(newEvent(EventLotQuarantined, sc.Now(), l.ID, LotPayload{Lot: *l, Reason: HoldRejected}))
					}
				}
			case InspectionConditional:
				l.QualityStatus = QualityConditional
			}
			return nil
		})
		return err
	})
	if err != nil {
		return Lot{}, err
	}
	logger.Info(ctx, "inspection recorded",
		logger.String("op", op),
		logger.String("lot_id", lotID),
		logger.String("result", string(result)),
		logger.String("actor", actor))
	return lot, nil
}

func (s *qualityService) WriteOff(ctx context.Context, lotID, reason, actor string) (int64, error) {
	const op = "core.QualityService.WriteOff"

	if strings.TrimSpace(reason) == "" {
		return 0, invalidQuantity("write-off of lot %s needs a reason", lotID)
	}
	var id int64
	err := s.runner.AtomicFor(ctx, lotKeys(lotID), func(ctx context.Context, sc *Scope) error {
		l, err := sc.Lots().Get(ctx, lotID)
		if err != nil {
			return err
		}
		if !l.RemainingQuantity.IsPositive() {
			return &TransitionError{LotID: l.ID, From: string(l.AvailabilityStatus), To: string(LotDepleted), Reason: "nothing left to write off"}
		}
		id, err = s.journal.AppendTx(ctx, sc, Movement{
			Type:          MovementAdjustment,
			ProductID:     l.ProductID,
			ToWarehouseID: l.WarehouseID,
			LotID:         l.ID,
			Quantity:      l.RemainingQuantity.Neg(),
			Document:      DocumentRef{Kind: DocWriteOff, ID: l.ID},
			Actor:         actor,
			Reason:        reason,
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	logger.Info(ctx, "lot written off",
		logger.String("op", op),
		logger.String("lot_id", lotID),
		logger.Int64("movement_id", id))
	return id, nil
}
