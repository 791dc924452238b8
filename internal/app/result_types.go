package app

import (
	"github.com/shopspring/decimal"

	"inventory-ledger/internal/ai"
	"inventory-ledger/internal/core"
	"inventory-ledger/internal/seed"
)

// LevelsResult is returned by ListLevels and ListAlerts.
type LevelsResult struct {
	Levels []core.LevelAlerts `json:"levels"`
}

// LotsResult is returned by ListLots.
type LotsResult struct {
	Lots []core.Lot `json:"lots"`
}

// HistoryResult is returned by History.
type HistoryResult struct {
	Movements []core.Movement `json:"movements"`
}

// LevelDrift is a cached level that disagreed with the journal.
type LevelDrift struct {
	ProductID   string          `json:"product_id"`
	WarehouseID string          `json:"warehouse_id"`
	Cached      decimal.Decimal `json:"cached_on_hand"`
	Journal     decimal.Decimal `json:"journal_on_hand"`
}

// AuditResult is returned by Audit.
type AuditResult struct {
	LotsChecked   int                       `json:"lots_checked"`
	LevelsChecked int                       `json:"levels_checked"`
	Unbalanced    []core.ConservationReport `json:"unbalanced,omitempty"`
	Drift         []LevelDrift              `json:"drift,omitempty"`
}

// OK reports whether the audit found nothing.
func (r *AuditResult) OK() bool { return len(r.Unbalanced) == 0 && len(r.Drift) == 0 }

// MovementResult lists the journal ids an operation appended.
type MovementResult struct {
	MovementIDs []int64 `json:"movement_ids"`
}

// SuggestionsResult is returned by Suggest.
type SuggestionsResult struct {
	Suggestions []core.ReplenishmentSuggestion `json:"suggestions"`
}

type OrdersResult struct {
	Orders []core.ProductionOrder `json:"orders"`
}

type ReservationsResult struct {
	Reservations []core.Reservation `json:"reservations"`
}

// CompletionResult is returned by CompleteOrder.
type CompletionResult struct {
	Order      core.ProductionOrder `json:"order"`
	MovementID int64                `json:"movement_id"`
}

// SeedResult is returned by Seed.
type SeedResult struct {
	Path    string       `json:"path"`
	Summary seed.Summary `json:"summary"`
}

// MigrateResult is returned by Migrate.
type MigrateResult struct {
	Version int64 `json:"version"`
}

// CountLineResult is the outcome of one proposal line.
type CountLineResult struct {
	Line   ai.CountLine      `json:"line"`
	Result *core.CountResult `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// CountSheetResult is returned by ApplyCountProposal.
type CountSheetResult struct {
	CountID  string            `json:"count_id"`
	Lines    []CountLineResult `json:"lines"`
	Recorded int               `json:"recorded"`
	Failed   int               `json:"failed"`
}
