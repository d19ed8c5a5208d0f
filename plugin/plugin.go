// Package plugin provides an extensible plugin system for the billing
// engine. Plugins can hook into run, item, and invoice lifecycle events
// to extend functionality.
package plugin

import (
	"context"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Run lifecycle hooks
// ──────────────────────────────────────────────────

// OnRunStarted is called when a billing run is admitted for a vendor.
type OnRunStarted interface {
	Plugin
	OnRunStarted(ctx context.Context, vendorID, period string) error
}

// OnRunRecovered is called when an interrupted run is picked back up.
// released is the number of item locks that were dropped before the
// run restarted.
type OnRunRecovered interface {
	Plugin
	OnRunRecovered(ctx context.Context, vendorID, period string, released int64) error
}

// OnRunSkipped is called when a run is admitted but does nothing.
type OnRunSkipped interface {
	Plugin
	OnRunSkipped(ctx context.Context, vendorID, period, reason string) error
}

// OnRunSent is called when a run completes with a dispatched invoice.
type OnRunSent interface {
	Plugin
	OnRunSent(ctx context.Context, r interface{}) error
}

// OnRunFailed is called when a run fails for a vendor.
type OnRunFailed interface {
	Plugin
	OnRunFailed(ctx context.Context, vendorID, period string, err error) error
}

// ──────────────────────────────────────────────────
// Item hooks
// ──────────────────────────────────────────────────

// OnItemsLocked is called after a run claims its selected items.
type OnItemsLocked interface {
	Plugin
	OnItemsLocked(ctx context.Context, runID string, count int64) error
}

// OnItemSplit is called when an allocation divides a boundary item.
type OnItemSplit interface {
	Plugin
	OnItemSplit(ctx context.Context, split interface{}) error
}

// OnCarryForward is called when a run defers items past the cap into a
// later period. deferredCents is the tax-inclusive amount held back.
type OnCarryForward interface {
	Plugin
	OnCarryForward(ctx context.Context, vendorID, period string, deferredCents int64, itemCount int) error
}

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated is called when an invoice is persisted.
type OnInvoiceCreated interface {
	Plugin
	OnInvoiceCreated(ctx context.Context, inv interface{}) error
}

// OnInvoiceDispatched is called when an invoice is handed to the
// dispatcher and marked sent.
type OnInvoiceDispatched interface {
	Plugin
	OnInvoiceDispatched(ctx context.Context, inv interface{}) error
}

// OnPaymentRecorded is called when a payment is applied to an invoice.
type OnPaymentRecorded interface {
	Plugin
	OnPaymentRecorded(ctx context.Context, inv interface{}) error
}
