// Package store defines the unified storage interface for Billrun.
// Implementations live in the memory, sqlite, postgres, and mongo
// sub-packages.
package store

import (
	"context"
	"time"

	"github.com/xraph/billrun/billable"
	"github.com/xraph/billrun/id"
	"github.com/xraph/billrun/invoice"
	"github.com/xraph/billrun/profile"
	"github.com/xraph/billrun/run"
	"github.com/xraph/billrun/types"
)

// Store is the unified storage interface for all Billrun entities.
// Instead of embedding sub-interfaces, all methods are declared
// explicitly to avoid naming conflicts.
type Store interface {
	// Profile methods
	SaveProfile(ctx context.Context, p *profile.Profile) error
	GetProfile(ctx context.Context, vendorID string) (*profile.Profile, error)
	ListVendors(ctx context.Context) ([]string, error)

	// Charge definition methods
	CreateChargeDefinition(ctx context.Context, d *billable.ChargeDefinition) error
	ListActiveChargeDefinitions(ctx context.Context, vendorID string) ([]*billable.ChargeDefinition, error)
	// EnsureChargeInstance creates this period's instance of a charge
	// definition if one does not already exist. Returns false when the
	// (charge, period) pair was already instantiated.
	EnsureChargeInstance(ctx context.Context, inst *billable.RecurringCharge) (bool, error)

	// Billable item methods
	CreateItems(ctx context.Context, items ...billable.Item) error
	GetItem(ctx context.Context, itemID id.ID) (billable.Item, error)
	ListUnbilledItems(ctx context.Context, vendorID string) ([]billable.Item, error)
	ListItemsByInvoice(ctx context.Context, invoiceID id.InvoiceID) ([]billable.Item, error)
	ListItemsByStatus(ctx context.Context, vendorID string, status billable.Status) ([]billable.Item, error)
	// ApplySplit persists a boundary split atomically: the retained
	// item overwrites the original, the remainder is inserted unbilled.
	ApplySplit(ctx context.Context, retained, remainder billable.Item) error
	// LockItems moves unbilled items to pending under runID with a
	// compare-and-swap on status, returning how many rows moved.
	LockItems(ctx context.Context, runID id.RunID, itemIDs []id.ID) (int64, error)
	// ReleasePending returns a run's pending items to unbilled.
	ReleasePending(ctx context.Context, runID id.RunID) (int64, error)
	// MarkBilled moves a run's pending items to billed on invoiceID.
	MarkBilled(ctx context.Context, runID id.RunID, invoiceID id.InvoiceID) (int64, error)

	// Run methods
	CreateRun(ctx context.Context, r *run.Run) error
	GetRun(ctx context.Context, runID id.RunID) (*run.Run, error)
	GetRunByPeriod(ctx context.Context, vendorID, periodLabel string) (*run.Run, error)
	UpdateRun(ctx context.Context, r *run.Run) error
	ListRuns(ctx context.Context, vendorID string) ([]*run.Run, error)

	// Invoice methods
	NextInvoiceNumber(ctx context.Context) (int64, error)
	CreateInvoice(ctx context.Context, inv *invoice.Invoice) error
	GetInvoice(ctx context.Context, invoiceID id.InvoiceID) (*invoice.Invoice, error)
	ListOutstandingInvoices(ctx context.Context, vendorID string) ([]*invoice.Invoice, error)
	MarkInvoiceSent(ctx context.Context, invoiceID id.InvoiceID, sentAt time.Time) error
	RecordPayment(ctx context.Context, invoiceID id.InvoiceID, amount types.Money, paidAt time.Time, paymentRef string) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
