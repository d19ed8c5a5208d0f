package billrun

import (
	"errors"
	"fmt"

	"github.com/xraph/billrun/allocator"
	"github.com/xraph/billrun/id"
	"github.com/xraph/billrun/types"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("billrun: not found")
	ErrAlreadyExists = errors.New("billrun: already exists")
	ErrInvalidInput  = errors.New("billrun: invalid input")

	// Profile errors
	ErrProfileNotFound = errors.New("billrun: billing profile not found")
	ErrProfileInactive = errors.New("billrun: billing profile is inactive")

	// Run errors
	ErrRunNotFound  = errors.New("billrun: run not found")
	ErrRunExists    = errors.New("billrun: run already exists for this vendor and period")
	ErrPeriodOpen   = errors.New("billrun: billing period has not closed yet")
	ErrNothingToDo  = errors.New("billrun: no billable items for this period")
	ErrNoDispatcher = errors.New("billrun: no dispatcher configured")

	// Item errors
	ErrItemNotFound = errors.New("billrun: billable item not found")
	ErrChargeExists = errors.New("billrun: charge instance already exists for this period")

	// Invoice errors
	ErrInvoiceNotFound = errors.New("billrun: invoice not found")
	ErrInvoicePaid     = errors.New("billrun: invoice already paid")
	ErrInvoiceVoided   = errors.New("billrun: invoice is voided")

	// Store errors
	ErrStoreNotReady   = errors.New("billrun: store not ready")
	ErrStoreClosed     = errors.New("billrun: store is closed")
	ErrMigrationFailed = errors.New("billrun: migration failed")
)

// ErrTargetUnreachable mirrors the monetary inverse-search failure so
// callers can match it without importing types.
var ErrTargetUnreachable = types.ErrTargetUnreachable

// CapUnsatisfiableError is re-exported from the allocator: the cap is
// below the smallest billable unit and the run must stop.
type CapUnsatisfiableError = allocator.CapUnsatisfiableError

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("billrun: validation failed for %s: %s", e.Field, e.Message)
}

// PartialLockError reports an item lock that matched fewer rows than
// the allocation selected: another process claimed some items between
// selection and locking. The run releases what it took and fails.
type PartialLockError struct {
	RunID     id.RunID
	Requested int
	Locked    int64
}

func (e *PartialLockError) Error() string {
	return fmt.Sprintf("billrun: run %s locked %d of %d selected items", e.RunID, e.Locked, e.Requested)
}

// DispatchError wraps a downstream invoice delivery failure. The
// invoice and item locks survive it, so a re-run resumes at dispatch
// instead of re-billing.
type DispatchError struct {
	InvoiceID id.InvoiceID
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("billrun: dispatch of invoice %s failed: %v", e.InvoiceID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrProfileNotFound) ||
		errors.Is(err, ErrRunNotFound) ||
		errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrInvoiceNotFound)
}

// IsConflict returns true if the error is a uniqueness conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrRunExists) ||
		errors.Is(err, ErrChargeExists)
}

// IsCapUnsatisfiable returns true if the error reports a cap below the
// smallest billable unit.
func IsCapUnsatisfiable(err error) bool {
	var capErr *CapUnsatisfiableError
	return errors.As(err, &capErr)
}

// IsDispatchFailure returns true if the error is a downstream delivery
// failure that a re-run can resume from.
func IsDispatchFailure(err error) bool {
	var dispatchErr *DispatchError
	return errors.As(err, &dispatchErr)
}

// IsRetryable returns true if the error is temporary and the operation
// can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		IsDispatchFailure(err)
}
