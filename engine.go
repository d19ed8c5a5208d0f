package billrun

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/xraph/billrun/billable"
	"github.com/xraph/billrun/id"
	"github.com/xraph/billrun/invoice"
	"github.com/xraph/billrun/plugin"
	"github.com/xraph/billrun/profile"
	"github.com/xraph/billrun/run"
	"github.com/xraph/billrun/store"
	"github.com/xraph/billrun/types"
)

// Dispatcher delivers a finished invoice to the outside world: email,
// webhook, accounting export. Dispatch must be safe to retry with the
// same invoice; a recovered run re-dispatches before marking sent.
type Dispatcher interface {
	Dispatch(ctx context.Context, inv *invoice.Invoice) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, inv *invoice.Invoice) error

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, inv *invoice.Invoice) error {
	return f(ctx, inv)
}

// Engine is the main billing engine.
type Engine struct {
	store      store.Store
	plugins    *plugin.Registry
	logger     *slog.Logger
	dispatcher Dispatcher
	currency   string

	// now is swappable so runs can be pinned to a period in tests.
	now func() time.Time
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		plugins:  plugin.NewRegistry(),
		logger:   slog.Default(),
		currency: "usd",
		now:      func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithDispatcher sets the invoice dispatcher. Without one, invoices
// are marked sent without leaving the process.
func WithDispatcher(d Dispatcher) Option {
	return func(e *Engine) {
		e.dispatcher = d
	}
}

// WithCurrency sets the currency assigned to profiles saved without
// one. Defaults to "usd".
func WithCurrency(code string) Option {
	return func(e *Engine) {
		if c := strings.ToLower(strings.TrimSpace(code)); c != "" {
			e.currency = c
		}
	}
}

// WithHookTimeout bounds how long a single plugin hook may run.
func WithHookTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.plugins.WithHookTimeout(d)
	}
}

// WithClock overrides the engine's clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Start migrates storage and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("billing engine started",
		"plugins", e.plugins.Count(),
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// Ping checks storage connectivity.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

// ──────────────────────────────────────────────────
// Vendor Profiles
// ──────────────────────────────────────────────────

// SaveProfile creates or replaces a vendor's billing profile.
func (e *Engine) SaveProfile(ctx context.Context, p *profile.Profile) error {
	if strings.TrimSpace(p.Currency) == "" {
		p.Currency = e.currency
	}
	if err := p.Validate(); err != nil {
		return err
	}

	if p.CreatedAt.IsZero() {
		p.Entity = types.NewEntity()
	} else {
		p.Touch()
	}

	return e.store.SaveProfile(ctx, p)
}

// GetProfile retrieves a vendor's billing profile.
func (e *Engine) GetProfile(ctx context.Context, vendorID string) (*profile.Profile, error) {
	return e.store.GetProfile(ctx, vendorID)
}

// ListVendors lists every vendor with a profile.
func (e *Engine) ListVendors(ctx context.Context) ([]string, error) {
	return e.store.ListVendors(ctx)
}

// ──────────────────────────────────────────────────
// Recurring Charges
// ──────────────────────────────────────────────────

// CreateChargeDefinition registers a standing monthly charge.
func (e *Engine) CreateChargeDefinition(ctx context.Context, d *billable.ChargeDefinition) error {
	if err := d.Validate(); err != nil {
		return err
	}

	if d.ID == (id.ChargeID{}) {
		d.ID = id.NewChargeID()
	}
	d.Entity = types.NewEntity()

	return e.store.CreateChargeDefinition(ctx, d)
}

// ListChargeDefinitions lists a vendor's active charge definitions.
func (e *Engine) ListChargeDefinitions(ctx context.Context, vendorID string) ([]*billable.ChargeDefinition, error) {
	return e.store.ListActiveChargeDefinitions(ctx, vendorID)
}

// ──────────────────────────────────────────────────
// Time and Mileage
// ──────────────────────────────────────────────────

// AddTimeEntry records billable time for a vendor.
func (e *Engine) AddTimeEntry(ctx context.Context, vendorID, projectID, description string, minutes int64, hourlyRate types.Money, rate types.TaxRate) (*billable.TimeEntry, error) {
	t, err := billable.NewTimeEntry(vendorID, projectID, description, minutes, hourlyRate, rate)
	if err != nil {
		return nil, err
	}

	if err := e.store.CreateItems(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// AddMileageEntry records billable mileage for a vendor. Distance is
// given in hundredths of a mile.
func (e *Engine) AddMileageEntry(ctx context.Context, vendorID, projectID, description string, hundredths int64, ratePerMile types.Money, rate types.TaxRate) (*billable.MileageEntry, error) {
	m, err := billable.NewMileageEntry(vendorID, projectID, description, hundredths, ratePerMile, rate)
	if err != nil {
		return nil, err
	}

	if err := e.store.CreateItems(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetItem retrieves any billable item by ID.
func (e *Engine) GetItem(ctx context.Context, itemID id.ID) (billable.Item, error) {
	return e.store.GetItem(ctx, itemID)
}

// ListUnbilledItems lists a vendor's unbilled items in billing order.
func (e *Engine) ListUnbilledItems(ctx context.Context, vendorID string) ([]billable.Item, error) {
	return e.store.ListUnbilledItems(ctx, vendorID)
}

// ──────────────────────────────────────────────────
// Runs and Invoices
// ──────────────────────────────────────────────────

// GetRun retrieves a billing run by ID.
func (e *Engine) GetRun(ctx context.Context, runID id.RunID) (*run.Run, error) {
	return e.store.GetRun(ctx, runID)
}

// ListRuns lists a vendor's billing runs.
func (e *Engine) ListRuns(ctx context.Context, vendorID string) ([]*run.Run, error) {
	return e.store.ListRuns(ctx, vendorID)
}

// GetInvoice retrieves an invoice by ID.
func (e *Engine) GetInvoice(ctx context.Context, invoiceID id.InvoiceID) (*invoice.Invoice, error) {
	return e.store.GetInvoice(ctx, invoiceID)
}

// ListOutstandingInvoices lists a vendor's open, unpaid invoices.
func (e *Engine) ListOutstandingInvoices(ctx context.Context, vendorID string) ([]*invoice.Invoice, error) {
	return e.store.ListOutstandingInvoices(ctx, vendorID)
}

// RecordPayment applies a payment to an invoice and returns the
// updated invoice. The invoice flips to paid once its balance reaches
// zero.
func (e *Engine) RecordPayment(ctx context.Context, invoiceID id.InvoiceID, amount types.Money, paymentRef string) (*invoice.Invoice, error) {
	if err := e.store.RecordPayment(ctx, invoiceID, amount, e.now(), paymentRef); err != nil {
		return nil, err
	}

	inv, err := e.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	e.plugins.EmitPaymentRecorded(ctx, inv)
	return inv, nil
}
