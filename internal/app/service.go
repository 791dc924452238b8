package app

import (
	"context"

	"github.com/invopop/jsonschema"
	"github.com/shopspring/decimal"

	"inventory-ledger/internal/ai"
	"inventory-ledger/internal/core"
)

// ApplicationService is the single interface the CLI adapter calls.
// It decouples presentation from the engine. Implementations must contain
// no fmt.Println and no display logic of any kind.
type ApplicationService interface {
	// ListLevels returns every cached stock level with its alerts.
	ListLevels(ctx context.Context) (*LevelsResult, error)

	// ListAlerts returns only the levels that currently raise an alert.
	ListAlerts(ctx context.Context) (*LevelsResult, error)

	// ListLots returns lots, optionally narrowed to a product and warehouse.
	ListLots(ctx context.Context, q LotQuery) (*LotsResult, error)

	// History returns journal movements matching q in id order.
	History(ctx context.Context, q HistoryQuery) (*HistoryResult, error)

	// VerifyLot checks that a lot's remaining quantity matches its journal.
	VerifyLot(ctx context.Context, lotID string) (*core.ConservationReport, error)

	// Audit checks every lot against its journal and recomputes every
	// cached level, reporting the pairs whose cache had drifted.
	Audit(ctx context.Context) (*AuditResult, error)

	// Receive books a supplier receipt. Quantity above the ordered quantity
	// is held in a separate lot awaiting approval.
	Receive(ctx context.Context, req ReceiveRequest) (*core.ReceiptResult, error)

	// Issue allocates lots by policy and records the outbound movements.
	Issue(ctx context.Context, req IssueRequest) (*core.IssueResult, error)

	// Transfer moves quantity between two warehouses.
	Transfer(ctx context.Context, req TransferRequest) (*MovementResult, error)

	// Count records a physical count and the adjustment it implies.
	Count(ctx context.Context, req CountRequest) (*core.CountResult, error)

	// Reverse appends the movements that undo an earlier one.
	Reverse(ctx context.Context, movementID int64, reason, actor string) (*MovementResult, error)

	Quarantine(ctx context.Context, lotID, reason, actor string) (*core.Lot, error)
	Release(ctx context.Context, lotID, actor string) (*core.Lot, error)
	ApproveOverReceipt(ctx context.Context, lotID, actor string) (*core.Lot, error)
	// ApproveReceipt releases the over-received excess an untracked receipt holds.
	ApproveReceipt(ctx context.Context, receiptID, actor string) (*ReservationsResult, error)

	// Inspect records a quality result. result is passed, failed or conditional.
	Inspect(ctx context.Context, lotID, result, note, actor string) (*core.Lot, error)

	// WriteOff removes a lot's remaining quantity from stock.
	WriteOff(ctx context.Context, lotID, reason, actor string) (*MovementResult, error)

	// SetThresholds replaces the alert and reorder settings of a pair.
	SetThresholds(ctx context.Context, productID, warehouseID string, t core.Thresholds) (*core.StockLevel, error)

	// Explode returns the total component requirements for qty of a product.
	Explode(ctx context.Context, productID string, qty decimal.Decimal) (*core.Explosion, error)

	// BOMTree returns the indented recipe tree for qty of a product.
	BOMTree(ctx context.Context, productID string, qty decimal.Decimal) (*core.BOMNode, error)

	// Suggest regenerates replenishment suggestions from current state.
	Suggest(ctx context.Context) (*SuggestionsResult, error)

	// Production order lifecycle.
	RegisterOrder(ctx context.Context, req OrderRequest) (*core.ProductionOrder, error)
	ListOpenOrders(ctx context.Context) (*OrdersResult, error)
	ReserveMaterials(ctx context.Context, orderID, actor string) (*ReservationsResult, error)
	StartOrder(ctx context.Context, orderID, policy, actor string) (*core.StartResult, error)
	CompleteOrder(ctx context.Context, orderID string, req CompleteRequest) (*CompletionResult, error)
	CancelOrder(ctx context.Context, orderID, actor string) (*core.ProductionOrder, error)

	// EventSchemas returns the JSON Schema of every outbound event type.
	EventSchemas(ctx context.Context) (map[core.EventType]*jsonschema.Schema, error)

	// Seed loads master data from a TOML file. Applying the same file twice
	// changes nothing the second time.
	Seed(ctx context.Context, path string) (*SeedResult, error)

	// Migrate applies pending schema migrations. It fails in memory mode.
	Migrate(ctx context.Context) (*MigrateResult, error)

	// InterpretCountSheet sends a free-form count sheet to the AI agent and
	// returns a validated proposal. Nothing is recorded until the proposal
	// is applied with ApplyCountProposal.
	InterpretCountSheet(ctx context.Context, sheet string) (*ai.CountProposal, error)

	// ApplyCountProposal records each line of a confirmed proposal as a
	// physical count. Lines are independent: one failure does not undo the
	// others.
	ApplyCountProposal(ctx context.Context, p *ai.CountProposal, countID, actor string) (*CountSheetResult, error)
}
