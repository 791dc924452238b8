package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Validation errors: malformed or out-of-range input. Never retried.
var (
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrUnknownReference = errors.New("unknown reference")
	ErrInvalidArgument  = errors.New("invalid argument")
)

// Invariant violations: the request is well-formed but the current state forbids it.
var (
	ErrInsufficientLotQuantity = errors.New("insufficient lot quantity")
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrLotNotFound             = errors.New("lot not found")
	ErrInvalidTransition       = errors.New("invalid transition")
	ErrCircularBOM             = errors.New("circular bill of materials")
	ErrActiveBOMConflict       = errors.New("another active bill of materials exists")
	ErrAlreadyReversed         = errors.New("movement already reversed")
)

// Storage-level errors.
var (
	// ErrNotFound is returned by repositories for rows that do not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by stores when a lock or serialization conflict
	// aborted the scope. The runner retries it.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrBusy is surfaced once conflict retries are exhausted.
	ErrBusy = errors.New("busy")
)

// QuantityError carries the numbers a caller needs to present a corrective
// action, e.g. "insufficient stock: 12 available, 20 requested".
type QuantityError struct {
	Err         error
	ProductID   string
	WarehouseID string
	LotID       string
	Available   decimal.Decimal
	Requested   decimal.Decimal
}

func (e *QuantityError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	b.WriteString(": ")
	b.WriteString(e.Available.String())
	b.WriteString(" available, ")
	b.WriteString(e.Requested.String())
	b.WriteString(" requested")
	if e.LotID != "" {
		fmt.Fprintf(&b, " (lot %s)", e.LotID)
	} else if e.ProductID != "" {
		fmt.Fprintf(&b, " (product %s in %s)", e.ProductID, e.WarehouseID)
	}
	return b.String()
}

func (e *QuantityError) Unwrap() error { return e.Err }

// TransitionError reports a lot state change the state machine does not allow.
type TransitionError struct {
	LotID  string
	From   string
	To     string
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("invalid transition: lot %s cannot go from %s to %s", e.LotID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// CycleError lists the recursion path on which a product reappeared.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular bill of materials: %s", strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCircularBOM }

func invalidQuantity(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuantity, fmt.Sprintf(format, args...))
}

func unknownReference(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnknownReference, fmt.Sprintf(format, args...))
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
