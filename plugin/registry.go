package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu          sync.RWMutex
	plugins     []Plugin
	logger      *slog.Logger
	hookTimeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit              []OnInit
	onShutdown          []OnShutdown
	onRunStarted        []OnRunStarted
	onRunRecovered      []OnRunRecovered
	onRunSkipped        []OnRunSkipped
	onRunSent           []OnRunSent
	onRunFailed         []OnRunFailed
	onItemsLocked       []OnItemsLocked
	onItemSplit         []OnItemSplit
	onCarryForward      []OnCarryForward
	onInvoiceCreated    []OnInvoiceCreated
	onInvoiceDispatched []OnInvoiceDispatched
	onPaymentRecorded   []OnPaymentRecorded
}

// DefaultHookTimeout bounds how long a single plugin hook may run.
const DefaultHookTimeout = 5 * time.Second

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:      slog.Default(),
		hookTimeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithHookTimeout overrides the per-hook timeout.
func (r *Registry) WithHookTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.hookTimeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnRunStarted); ok {
		r.onRunStarted = append(r.onRunStarted, v)
	}
	if v, ok := p.(OnRunRecovered); ok {
		r.onRunRecovered = append(r.onRunRecovered, v)
	}
	if v, ok := p.(OnRunSkipped); ok {
		r.onRunSkipped = append(r.onRunSkipped, v)
	}
	if v, ok := p.(OnRunSent); ok {
		r.onRunSent = append(r.onRunSent, v)
	}
	if v, ok := p.(OnRunFailed); ok {
		r.onRunFailed = append(r.onRunFailed, v)
	}
	if v, ok := p.(OnItemsLocked); ok {
		r.onItemsLocked = append(r.onItemsLocked, v)
	}
	if v, ok := p.(OnItemSplit); ok {
		r.onItemSplit = append(r.onItemSplit, v)
	}
	if v, ok := p.(OnCarryForward); ok {
		r.onCarryForward = append(r.onCarryForward, v)
	}
	if v, ok := p.(OnInvoiceCreated); ok {
		r.onInvoiceCreated = append(r.onInvoiceCreated, v)
	}
	if v, ok := p.(OnInvoiceDispatched); ok {
		r.onInvoiceDispatched = append(r.onInvoiceDispatched, v)
	}
	if v, ok := p.(OnPaymentRecorded); ok {
		r.onPaymentRecorded = append(r.onPaymentRecorded, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	// Check each interface
	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	// List all interfaces to check
	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnRunStarted)(nil)).Elem(), "OnRunStarted")
	checkInterface(reflect.TypeOf((*OnRunRecovered)(nil)).Elem(), "OnRunRecovered")
	checkInterface(reflect.TypeOf((*OnRunSkipped)(nil)).Elem(), "OnRunSkipped")
	checkInterface(reflect.TypeOf((*OnRunSent)(nil)).Elem(), "OnRunSent")
	checkInterface(reflect.TypeOf((*OnRunFailed)(nil)).Elem(), "OnRunFailed")
	checkInterface(reflect.TypeOf((*OnItemsLocked)(nil)).Elem(), "OnItemsLocked")
	checkInterface(reflect.TypeOf((*OnItemSplit)(nil)).Elem(), "OnItemSplit")
	checkInterface(reflect.TypeOf((*OnCarryForward)(nil)).Elem(), "OnCarryForward")
	checkInterface(reflect.TypeOf((*OnInvoiceCreated)(nil)).Elem(), "OnInvoiceCreated")
	checkInterface(reflect.TypeOf((*OnInvoiceDispatched)(nil)).Elem(), "OnInvoiceDispatched")
	checkInterface(reflect.TypeOf((*OnPaymentRecorded)(nil)).Elem(), "OnPaymentRecorded")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitRunStarted emits a run started event.
func (r *Registry) EmitRunStarted(ctx context.Context, vendorID, period string) {
	r.mu.RLock()
	plugins := r.onRunStarted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnRunStarted(ctx, vendorID, period)
		}); err != nil {
			r.logger.Warn("plugin OnRunStarted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitRunRecovered emits a run recovered event.
func (r *Registry) EmitRunRecovered(ctx context.Context, vendorID, period string, released int64) {
	r.mu.RLock()
	plugins := r.onRunRecovered
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnRunRecovered(ctx, vendorID, period, released)
		}); err != nil {
			r.logger.Warn("plugin OnRunRecovered failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitRunSkipped emits a run skipped event.
func (r *Registry) EmitRunSkipped(ctx context.Context, vendorID, period, reason string) {
	r.mu.RLock()
	plugins := r.onRunSkipped
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnRunSkipped(ctx, vendorID, period, reason)
		}); err != nil {
			r.logger.Warn("plugin OnRunSkipped failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitRunSent emits a run sent event.
func (r *Registry) EmitRunSent(ctx context.Context, run interface{}) {
	r.mu.RLock()
	plugins := r.onRunSent
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnRunSent(ctx, run)
		}); err != nil {
			r.logger.Warn("plugin OnRunSent failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitRunFailed emits a run failed event.
func (r *Registry) EmitRunFailed(ctx context.Context, vendorID, period string, cause error) {
	r.mu.RLock()
	plugins := r.onRunFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnRunFailed(ctx, vendorID, period, cause)
		}); err != nil {
			r.logger.Warn("plugin OnRunFailed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitItemsLocked emits an items locked event.
func (r *Registry) EmitItemsLocked(ctx context.Context, runID string, count int64) {
	r.mu.RLock()
	plugins := r.onItemsLocked
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnItemsLocked(ctx, runID, count)
		}); err != nil {
			r.logger.Warn("plugin OnItemsLocked failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitItemSplit emits an item split event.
func (r *Registry) EmitItemSplit(ctx context.Context, split interface{}) {
	r.mu.RLock()
	plugins := r.onItemSplit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnItemSplit(ctx, split)
		}); err != nil {
			r.logger.Warn("plugin OnItemSplit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCarryForward emits a carry-forward event.
func (r *Registry) EmitCarryForward(ctx context.Context, vendorID, period string, deferredCents int64, itemCount int) {
	r.mu.RLock()
	plugins := r.onCarryForward
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCarryForward(ctx, vendorID, period, deferredCents, itemCount)
		}); err != nil {
			r.logger.Warn("plugin OnCarryForward failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInvoiceCreated emits an invoice created event.
func (r *Registry) EmitInvoiceCreated(ctx context.Context, inv interface{}) {
	r.mu.RLock()
	plugins := r.onInvoiceCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInvoiceCreated(ctx, inv)
		}); err != nil {
			r.logger.Warn("plugin OnInvoiceCreated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInvoiceDispatched emits an invoice dispatched event.
func (r *Registry) EmitInvoiceDispatched(ctx context.Context, inv interface{}) {
	r.mu.RLock()
	plugins := r.onInvoiceDispatched
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInvoiceDispatched(ctx, inv)
		}); err != nil {
			r.logger.Warn("plugin OnInvoiceDispatched failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPaymentRecorded emits a payment recorded event.
func (r *Registry) EmitPaymentRecorded(ctx context.Context, inv interface{}) {
	r.mu.RLock()
	plugins := r.onPaymentRecorded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPaymentRecorded(ctx, inv)
		}); err != nil {
			r.logger.Warn("plugin OnPaymentRecorded failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the billing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.hookTimeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
