// Package sqlite implements the Billrun store on SQLite via Grove
// ORM.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	billrun "github.com/xraph/billrun"
	"github.com/xraph/billrun/billable"
	"github.com/xraph/billrun/id"
	"github.com/xraph/billrun/invoice"
	"github.com/xraph/billrun/profile"
	"github.com/xraph/billrun/run"
	billrunstore "github.com/xraph/billrun/store"
	"github.com/xraph/billrun/types"
)

// compile-time interface check
var _ billrunstore.Store = (*Store)(nil)

// billingOrder ranks items the way they appear on invoices: recurring
// charges first, oldest carried-forward period leading, then mileage,
// then time, entries in chronological order.
const billingOrder = "CASE kind WHEN 'charge' THEN 0 WHEN 'mileage' THEN 1 ELSE 2 END, period_label ASC, entry_date ASC, sort_order ASC, created_at ASC"

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("billrun/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("billrun/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Profile Store ====================

func (s *Store) SaveProfile(ctx context.Context, p *profile.Profile) error {
	m := toProfileModel(p)
	m.UpdatedAt = now()
	_, err := s.sdb.NewInsert(m).
		OnConflict("(vendor_id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("email = EXCLUDED.email").
		Set("currency = EXCLUDED.currency").
		Set("mode = EXCLUDED.mode").
		Set("monthly_cap_cents = EXCLUDED.monthly_cap_cents").
		Set("primary_tax = EXCLUDED.primary_tax").
		Set("due_days = EXCLUDED.due_days").
		Set("active = EXCLUDED.active").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetProfile(ctx context.Context, vendorID string) (*profile.Profile, error) {
	m := new(profileModel)
	err := s.sdb.NewSelect(m).
		Where("vendor_id = ?", vendorID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, billrun.ErrProfileNotFound
		}
		return nil, err
	}
	return fromProfileModel(m)
}

func (s *Store) ListVendors(ctx context.Context) ([]string, error) {
	var models []profileModel
	err := s.sdb.NewSelect(&models).
		OrderExpr("vendor_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	vendors := make([]string, len(models))
	for i := range models {
		vendors[i] = models[i].VendorID
	}
	return vendors, nil
}

// ==================== Charge Definition Store ====================

func (s *Store) CreateChargeDefinition(ctx context.Context, d *billable.ChargeDefinition) error {
	m := toChargeDefinitionModel(d)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) ListActiveChargeDefinitions(ctx context.Context, vendorID string) ([]*billable.ChargeDefinition, error) {
	var models []chargeDefinitionModel
	err := s.sdb.NewSelect(&models).
		Where("vendor_id = ?", vendorID).
		Where("active = ?", true).
		OrderExpr("sort_order ASC, created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*billable.ChargeDefinition, len(models))
	for i := range models {
		d, err := fromChargeDefinitionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}

func (s *Store) EnsureChargeInstance(ctx context.Context, inst *billable.RecurringCharge) (bool, error) {
	m := toItemModel(inst)
	// The partial unique index on (charge_id, period_label) only
	// covers original charge instances, so split remainders never
	// collide with the next period's insert.
	res, err := s.sdb.NewInsert(m).
		OnConflict("(charge_id, period_label) WHERE kind = 'charge' AND split_from = '' DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// ==================== Billable Item Store ====================

func (s *Store) CreateItems(ctx context.Context, items ...billable.Item) error {
	if len(items) == 0 {
		return nil
	}
	models := make([]itemModel, len(items))
	for i, item := range items {
		models[i] = *toItemModel(item)
	}
	_, err := s.sdb.NewInsert(&models).Exec(ctx)
	return err
}

func (s *Store) GetItem(ctx context.Context, itemID id.ID) (billable.Item, error) {
	m := new(itemModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", itemID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, billrun.ErrItemNotFound
		}
		return nil, err
	}
	return fromItemModel(m)
}

func (s *Store) ListUnbilledItems(ctx context.Context, vendorID string) ([]billable.Item, error) {
	return s.listItems(ctx, "vendor_id = ? AND status = ?", vendorID, string(billable.StatusUnbilled))
}

func (s *Store) ListItemsByStatus(ctx context.Context, vendorID string, status billable.Status) ([]billable.Item, error) {
	return s.listItems(ctx, "vendor_id = ? AND status = ?", vendorID, string(status))
}

func (s *Store) ListItemsByInvoice(ctx context.Context, invoiceID id.InvoiceID) ([]billable.Item, error) {
	return s.listItems(ctx, "invoice_id = ?", invoiceID.String())
}

func (s *Store) listItems(ctx context.Context, where string, args ...any) ([]billable.Item, error) {
	var models []itemModel
	err := s.sdb.NewSelect(&models).
		Where(where, args...).
		OrderExpr(billingOrder).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]billable.Item, len(models))
	for i := range models {
		item, err := fromItemModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = item
	}
	return result, nil
}

func (s *Store) ApplySplit(ctx context.Context, retained, remainder billable.Item) error {
	rm := toItemModel(retained)
	rm.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(rm).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return billrun.ErrItemNotFound
	}

	_, err = s.sdb.NewInsert(toItemModel(remainder)).Exec(ctx)
	return err
}

func (s *Store) LockItems(ctx context.Context, runID id.RunID, itemIDs []id.ID) (int64, error) {
	var locked int64
	t := now()
	for _, itemID := range itemIDs {
		res, err := s.sdb.NewUpdate((*itemModel)(nil)).
			Set("status = ?", string(billable.StatusPending)).
			Set("run_id = ?", runID.String()).
			Set("updated_at = ?", t).
			Where("id = ?", itemID.String()).
			Where("status = ?", string(billable.StatusUnbilled)).
			Exec(ctx)
		if err != nil {
			return locked, err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return locked, err
		}
		locked += rows
	}
	return locked, nil
}

func (s *Store) ReleasePending(ctx context.Context, runID id.RunID) (int64, error) {
	res, err := s.sdb.NewUpdate((*itemModel)(nil)).
		Set("status = ?", string(billable.StatusUnbilled)).
		Set("run_id = ?", "").
		Set("updated_at = ?", now()).
		Where("run_id = ?", runID.String()).
		Where("status = ?", string(billable.StatusPending)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) MarkBilled(ctx context.Context, runID id.RunID, invoiceID id.InvoiceID) (int64, error) {
	res, err := s.sdb.NewUpdate((*itemModel)(nil)).
		Set("status = ?", string(billable.StatusBilled)).
		Set("invoice_id = ?", invoiceID.String()).
		Set("updated_at = ?", now()).
		Where("run_id = ?", runID.String()).
		Where("status = ?", string(billable.StatusPending)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ==================== Run Store ====================

func (s *Store) CreateRun(ctx context.Context, r *run.Run) error {
	m := toRunModel(r)
	res, err := s.sdb.NewInsert(m).
		OnConflict("(vendor_id, period_label) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return billrun.ErrRunExists
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*run.Run, error) {
	m := new(runModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", runID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, billrun.ErrRunNotFound
		}
		return nil, err
	}
	return fromRunModel(m)
}

func (s *Store) GetRunByPeriod(ctx context.Context, vendorID, periodLabel string) (*run.Run, error) {
	m := new(runModel)
	err := s.sdb.NewSelect(m).
		Where("vendor_id = ?", vendorID).
		Where("period_label = ?", periodLabel).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, billrun.ErrRunNotFound
		}
		return nil, err
	}
	return fromRunModel(m)
}

func (s *Store) UpdateRun(ctx context.Context, r *run.Run) error {
	m := toRunModel(r)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return billrun.ErrRunNotFound
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, vendorID string) ([]*run.Run, error) {
	var models []runModel
	err := s.sdb.NewSelect(&models).
		Where("vendor_id = ?", vendorID).
		OrderExpr("period_label DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*run.Run, len(models))
	for i := range models {
		r, err := fromRunModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

// ==================== Invoice Store ====================

func (s *Store) NextInvoiceNumber(ctx context.Context) (int64, error) {
	var next int64
	err := s.sdb.NewRaw(`
		INSERT INTO billrun_counters (name, value) VALUES ('invoice_number', 1)
		ON CONFLICT (name) DO UPDATE SET value = value + 1
		RETURNING value
	`).Scan(ctx, &next)
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m := toInvoiceModel(inv)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetInvoice(ctx context.Context, invoiceID id.InvoiceID) (*invoice.Invoice, error) {
	m := new(invoiceModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", invoiceID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, billrun.ErrInvoiceNotFound
		}
		return nil, err
	}
	return fromInvoiceModel(m)
}

func (s *Store) ListOutstandingInvoices(ctx context.Context, vendorID string) ([]*invoice.Invoice, error) {
	var models []invoiceModel
	err := s.sdb.NewSelect(&models).
		Where("vendor_id = ?", vendorID).
		Where("status NOT IN (?, ?)", string(invoice.StatusPaid), string(invoice.StatusVoided)).
		Where("total_cents > amount_paid_cents").
		OrderExpr("number ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*invoice.Invoice, len(models))
	for i := range models {
		inv, err := fromInvoiceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = inv
	}
	return result, nil
}

func (s *Store) MarkInvoiceSent(ctx context.Context, invoiceID id.InvoiceID, sentAt time.Time) error {
	res, err := s.sdb.NewUpdate((*invoiceModel)(nil)).
		Set("status = ?", string(invoice.StatusSent)).
		Set("sent_at = ?", sentAt).
		Set("updated_at = ?", now()).
		Where("id = ?", invoiceID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return billrun.ErrInvoiceNotFound
	}
	return nil
}

func (s *Store) RecordPayment(ctx context.Context, invoiceID id.InvoiceID, amount types.Money, paidAt time.Time, paymentRef string) error {
	inv, err := s.GetInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}
	switch inv.Status {
	case invoice.StatusPaid:
		return billrun.ErrInvoicePaid
	case invoice.StatusVoided:
		return billrun.ErrInvoiceVoided
	}

	inv.AmountPaid = inv.AmountPaid.Add(amount)
	inv.PaymentRef = paymentRef
	if !inv.Balance().IsPositive() {
		inv.Status = invoice.StatusPaid
		inv.PaidAt = &paidAt
	}

	m := toInvoiceModel(inv)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return billrun.ErrInvoiceNotFound
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// errUnknownKind reports an item row whose kind column matches no
// known billable kind.
func errUnknownKind(kind string) error {
	return fmt.Errorf("billrun/sqlite: unknown item kind %q", kind)
}
