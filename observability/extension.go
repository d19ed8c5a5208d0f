// Package observability provides a metrics extension for Billrun that
// records lifecycle event counts via a pluggable MetricFactory.
package observability

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/billrun/plugin"
	"github.com/xraph/billrun/run"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin              = (*MetricsExtension)(nil)
	_ plugin.OnInit              = (*MetricsExtension)(nil)
	_ plugin.OnRunStarted        = (*MetricsExtension)(nil)
	_ plugin.OnRunRecovered      = (*MetricsExtension)(nil)
	_ plugin.OnRunSkipped        = (*MetricsExtension)(nil)
	_ plugin.OnRunSent           = (*MetricsExtension)(nil)
	_ plugin.OnRunFailed         = (*MetricsExtension)(nil)
	_ plugin.OnItemsLocked       = (*MetricsExtension)(nil)
	_ plugin.OnItemSplit         = (*MetricsExtension)(nil)
	_ plugin.OnCarryForward      = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceCreated    = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceDispatched = (*MetricsExtension)(nil)
	_ plugin.OnPaymentRecorded   = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Billrun plugin to automatically track billing metrics.
type MetricsExtension struct {
	factory MetricFactory

	mu        sync.Mutex
	runStarts map[string]time.Time

	// Run metrics
	RunStarted    Counter
	RunRecovered  Counter
	RunSkipped    Counter
	RunSent       Counter
	RunFailed     Counter
	LocksReleased Counter
	RunDuration   Histogram

	// Item metrics
	ItemsLocked      Counter
	ItemSplits       Counter
	CarryForwardRuns Counter
	CarriedForward   Counter
	LockedBatch      Histogram

	// Invoice metrics
	InvoiceCreated    Counter
	InvoiceDispatched Counter
	PaymentRecorded   Counter

	// Error metrics
	StoreErrors  Counter
	PluginErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory:   factory,
		runStarts: make(map[string]time.Time),

		// Run metrics
		RunStarted:    factory.Counter("billrun.run.started"),
		RunRecovered:  factory.Counter("billrun.run.recovered"),
		RunSkipped:    factory.Counter("billrun.run.skipped"),
		RunSent:       factory.Counter("billrun.run.sent"),
		RunFailed:     factory.Counter("billrun.run.failed"),
		LocksReleased: factory.Counter("billrun.run.locks_released"),
		RunDuration:   factory.Histogram("billrun.run.duration_seconds"),

		// Item metrics
		ItemsLocked:      factory.Counter("billrun.items.locked"),
		ItemSplits:       factory.Counter("billrun.items.splits"),
		CarryForwardRuns: factory.Counter("billrun.items.carry_forward_runs"),
		CarriedForward:   factory.Counter("billrun.items.carried_forward_cents"),
		LockedBatch:      factory.Histogram("billrun.items.locked_batch_size"),

		// Invoice metrics
		InvoiceCreated:    factory.Counter("billrun.invoice.created"),
		InvoiceDispatched: factory.Counter("billrun.invoice.dispatched"),
		PaymentRecorded:   factory.Counter("billrun.payment.recorded"),

		// Error metrics
		StoreErrors:  factory.Counter("billrun.store.errors"),
		PluginErrors: factory.Counter("billrun.plugin.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Run lifecycle hooks
// ──────────────────────────────────────────────────

// OnRunStarted implements plugin.OnRunStarted.
func (m *MetricsExtension) OnRunStarted(_ context.Context, vendorID, period string) error {
	m.RunStarted.Inc()
	m.mu.Lock()
	m.runStarts[vendorID+"/"+period] = time.Now()
	m.mu.Unlock()
	return nil
}

// OnRunRecovered implements plugin.OnRunRecovered.
func (m *MetricsExtension) OnRunRecovered(_ context.Context, _, _ string, released int64) error {
	m.RunRecovered.Inc()
	m.LocksReleased.Add(float64(released))
	return nil
}

// OnRunSkipped implements plugin.OnRunSkipped.
func (m *MetricsExtension) OnRunSkipped(_ context.Context, _, _, _ string) error {
	m.RunSkipped.Inc()
	return nil
}

// OnRunSent implements plugin.OnRunSent.
func (m *MetricsExtension) OnRunSent(_ context.Context, v interface{}) error {
	m.RunSent.Inc()
	if r, ok := v.(*run.Run); ok {
		m.observeDuration(r.VendorID, r.PeriodLabel)
	}
	return nil
}

// OnRunFailed implements plugin.OnRunFailed.
func (m *MetricsExtension) OnRunFailed(_ context.Context, vendorID, period string, _ error) error {
	m.RunFailed.Inc()
	m.observeDuration(vendorID, period)
	return nil
}

// observeDuration records elapsed time since OnRunStarted for the pair,
// if a start was seen in this process.
func (m *MetricsExtension) observeDuration(vendorID, period string) {
	key := vendorID + "/" + period
	m.mu.Lock()
	started, ok := m.runStarts[key]
	if ok {
		delete(m.runStarts, key)
	}
	m.mu.Unlock()
	if ok {
		m.RunDuration.Observe(time.Since(started).Seconds())
	}
}

// ──────────────────────────────────────────────────
// Item hooks
// ──────────────────────────────────────────────────

// OnItemsLocked implements plugin.OnItemsLocked.
func (m *MetricsExtension) OnItemsLocked(_ context.Context, _ string, count int64) error {
	m.ItemsLocked.Add(float64(count))
	m.LockedBatch.Observe(float64(count))
	return nil
}

// OnItemSplit implements plugin.OnItemSplit.
func (m *MetricsExtension) OnItemSplit(_ context.Context, _ interface{}) error {
	m.ItemSplits.Inc()
	return nil
}

// OnCarryForward implements plugin.OnCarryForward.
func (m *MetricsExtension) OnCarryForward(_ context.Context, _, _ string, deferredCents int64, _ int) error {
	m.CarryForwardRuns.Inc()
	m.CarriedForward.Add(float64(deferredCents))
	return nil
}

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated implements plugin.OnInvoiceCreated.
func (m *MetricsExtension) OnInvoiceCreated(_ context.Context, _ interface{}) error {
	m.InvoiceCreated.Inc()
	return nil
}

// OnInvoiceDispatched implements plugin.OnInvoiceDispatched.
func (m *MetricsExtension) OnInvoiceDispatched(_ context.Context, _ interface{}) error {
	m.InvoiceDispatched.Inc()
	return nil
}

// OnPaymentRecorded implements plugin.OnPaymentRecorded.
func (m *MetricsExtension) OnPaymentRecorded(_ context.Context, _ interface{}) error {
	m.PaymentRecorded.Inc()
	return nil
}
