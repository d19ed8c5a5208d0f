// Package audithook bridges Billrun lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/billrun/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnRunStarted        = (*Extension)(nil)
	_ plugin.OnRunRecovered      = (*Extension)(nil)
	_ plugin.OnRunSkipped        = (*Extension)(nil)
	_ plugin.OnRunSent           = (*Extension)(nil)
	_ plugin.OnRunFailed         = (*Extension)(nil)
	_ plugin.OnItemsLocked       = (*Extension)(nil)
	_ plugin.OnItemSplit         = (*Extension)(nil)
	_ plugin.OnCarryForward      = (*Extension)(nil)
	_ plugin.OnInvoiceCreated    = (*Extension)(nil)
	_ plugin.OnInvoiceDispatched = (*Extension)(nil)
	_ plugin.OnPaymentRecorded   = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly — callers inject
// the concrete *chronicle.Chronicle at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Billrun lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Run lifecycle hooks
// ──────────────────────────────────────────────────

// OnRunStarted implements plugin.OnRunStarted.
func (e *Extension) OnRunStarted(ctx context.Context, vendorID, period string) error {
	return e.record(ctx, ActionRunStarted, SeverityInfo, OutcomeSuccess,
		ResourceRun, "", CategoryBilling, nil,
		"vendor_id", vendorID,
		"period", period,
	)
}

// OnRunRecovered implements plugin.OnRunRecovered.
func (e *Extension) OnRunRecovered(ctx context.Context, vendorID, period string, released int64) error {
	return e.record(ctx, ActionRunRecovered, SeverityWarning, OutcomeSuccess,
		ResourceRun, "", CategoryBilling, nil,
		"vendor_id", vendorID,
		"period", period,
		"released_locks", released,
	)
}

// OnRunSkipped implements plugin.OnRunSkipped.
func (e *Extension) OnRunSkipped(ctx context.Context, vendorID, period, reason string) error {
	return e.record(ctx, ActionRunSkipped, SeverityInfo, OutcomeSuccess,
		ResourceRun, "", CategoryBilling, nil,
		"vendor_id", vendorID,
		"period", period,
		"reason", reason,
	)
}

// OnRunSent implements plugin.OnRunSent.
func (e *Extension) OnRunSent(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionRunSent, SeverityInfo, OutcomeSuccess,
		ResourceRun, "", CategoryBilling, nil,
		"event", "run_sent",
	)
}

// OnRunFailed implements plugin.OnRunFailed.
func (e *Extension) OnRunFailed(ctx context.Context, vendorID, period string, err error) error {
	return e.record(ctx, ActionRunFailed, SeverityCritical, OutcomeFailure,
		ResourceRun, "", CategoryBilling, err,
		"vendor_id", vendorID,
		"period", period,
	)
}

// ──────────────────────────────────────────────────
// Item hooks
// ──────────────────────────────────────────────────

// OnItemsLocked implements plugin.OnItemsLocked.
func (e *Extension) OnItemsLocked(ctx context.Context, runID string, count int64) error {
	return e.record(ctx, ActionItemsLocked, SeverityInfo, OutcomeSuccess,
		ResourceItem, runID, CategoryBilling, nil,
		"run_id", runID,
		"count", count,
	)
}

// OnItemSplit implements plugin.OnItemSplit.
func (e *Extension) OnItemSplit(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionItemSplit, SeverityInfo, OutcomeSuccess,
		ResourceItem, "", CategoryBilling, nil,
		"event", "item_split",
	)
}

// OnCarryForward implements plugin.OnCarryForward.
func (e *Extension) OnCarryForward(ctx context.Context, vendorID, period string, deferredCents int64, itemCount int) error {
	return e.record(ctx, ActionCarryForward, SeverityInfo, OutcomeSuccess,
		ResourceItem, vendorID, CategoryBilling, nil,
		"vendor_id", vendorID,
		"period", period,
		"deferred_cents", deferredCents,
		"item_count", itemCount,
	)
}

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated implements plugin.OnInvoiceCreated.
func (e *Extension) OnInvoiceCreated(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionInvoiceCreated, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, "", CategoryPayment, nil,
		"event", "invoice_created",
	)
}

// OnInvoiceDispatched implements plugin.OnInvoiceDispatched.
func (e *Extension) OnInvoiceDispatched(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionInvoiceDispatched, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, "", CategoryPayment, nil,
		"event", "invoice_dispatched",
	)
}

// OnPaymentRecorded implements plugin.OnPaymentRecorded.
func (e *Extension) OnPaymentRecorded(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionPaymentRecorded, SeverityInfo, OutcomeSuccess,
		ResourcePayment, "", CategoryPayment, nil,
		"event", "payment_recorded",
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
