// Package mongo implements the Billrun store on MongoDB via Grove
// ORM.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	billrun "github.com/xraph/billrun"
	"github.com/xraph/billrun/billable"
	"github.com/xraph/billrun/id"
	"github.com/xraph/billrun/invoice"
	"github.com/xraph/billrun/profile"
	"github.com/xraph/billrun/run"
	billrunstore "github.com/xraph/billrun/store"
	"github.com/xraph/billrun/types"
)

// Collection name constants.
const (
	colProfiles   = "billrun_profiles"
	colChargeDefs = "billrun_charge_definitions"
	colItems      = "billrun_items"
	colRuns       = "billrun_runs"
	colInvoices   = "billrun_invoices"
	colCounters   = "billrun_counters"
)

// compile-time interface check
var _ billrunstore.Store = (*Store)(nil)

// billingSort fetches items in creation order; invoice ordering by
// kind rank needs a computed field, so the store sorts in memory
// after fetching instead.
var billingSort = bson.D{{Key: "created_at", Value: 1}}

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all billrun collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("billrun/mongo: migrate %s indexes: %w", col, err)
		}
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

	_, err := s.mdb.Collection(colProfiles).ReplaceOne(ctx,
		bson.M{"_id": m.VendorID},
		m,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("billrun/mongo: save profile: %w", err)
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, vendorID string) (*profile.Profile, error) {
	var m profileModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": vendorID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, billrun.ErrProfileNotFound
		}
		return nil, fmt.Errorf("billrun/mongo: get profile: %w", err)
	}
	return fromProfileModel(&m)
}

func (s *Store) ListVendors(ctx context.Context) ([]string, error) {
	var models []profileModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("billrun/mongo: list vendors: %w", err)
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
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("billrun/mongo: create charge definition: %w", err)
	}
	return nil
}

func (s *Store) ListActiveChargeDefinitions(ctx context.Context, vendorID string) ([]*billable.ChargeDefinition, error) {
	var models []chargeDefinitionModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"vendor_id": vendorID, "active": true}).
		Sort(bson.D{{Key: "sort_order", Value: 1}, {Key: "created_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("billrun/mongo: list charge definitions: %w", err)
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
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		// The partial unique index on (charge_id, period_label)
		// rejects a second instance for the same period.
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("billrun/mongo: ensure charge instance: %w", err)
	}
	return true, nil
}

// ==================== Billable Item Store ====================

func (s *Store) CreateItems(ctx context.Context, items ...billable.Item) error {
	for _, item := range items {
		m := toItemModel(item)
		if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
			return fmt.Errorf("billrun/mongo: create item: %w", err)
		}
	}
	return nil
}

func (s *Store) GetItem(ctx context.Context, itemID id.ID) (billable.Item, error) {
	var m itemModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": itemID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, billrun.ErrItemNotFound
		}
		return nil, fmt.Errorf("billrun/mongo: get item: %w", err)
	}
	return fromItemModel(&m)
}

func (s *Store) ListUnbilledItems(ctx context.Context, vendorID string) ([]billable.Item, error) {
	return s.listItems(ctx, bson.M{"vendor_id": vendorID, "status": string(billable.StatusUnbilled)})
}

func (s *Store) ListItemsByStatus(ctx context.Context, vendorID string, status billable.Status) ([]billable.Item, error) {
	return s.listItems(ctx, bson.M{"vendor_id": vendorID, "status": string(status)})
}

func (s *Store) ListItemsByInvoice(ctx context.Context, invoiceID id.InvoiceID) ([]billable.Item, error) {
	return s.listItems(ctx, bson.M{"invoice_id": invoiceID.String()})
}

func (s *Store) listItems(ctx context.Context, filter bson.M) ([]billable.Item, error) {
	var models []itemModel
	err := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(billingSort).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("billrun/mongo: list items: %w", err)
	}

	result := make([]billable.Item, len(models))
	for i := range models {
		item, err := fromItemModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = item
	}
	sortBillingOrder(result)
	return result, nil
}

func (s *Store) ApplySplit(ctx context.Context, retained, remainder billable.Item) error {
	rm := toItemModel(retained)
	rm.UpdatedAt = now()

	res, err := s.mdb.Collection(colItems).ReplaceOne(ctx, bson.M{"_id": rm.ID}, rm)
	if err != nil {
		return fmt.Errorf("billrun/mongo: apply split: %w", err)
	}
	if res.MatchedCount == 0 {
		return billrun.ErrItemNotFound
	}

	if _, err := s.mdb.NewInsert(toItemModel(remainder)).Exec(ctx); err != nil {
		return fmt.Errorf("billrun/mongo: insert split remainder: %w", err)
	}
	return nil
}

func (s *Store) LockItems(ctx context.Context, runID id.RunID, itemIDs []id.ID) (int64, error) {
	var locked int64
	t := now()
	for _, itemID := range itemIDs {
		res, err := s.mdb.Collection(colItems).UpdateOne(ctx,
			bson.M{"_id": itemID.String(), "status": string(billable.StatusUnbilled)},
			bson.M{"$set": bson.M{
				"status":     string(billable.StatusPending),
				"run_id":     runID.String(),
				"updated_at": t,
			}},
		)
		if err != nil {
			return locked, fmt.Errorf("billrun/mongo: lock items: %w", err)
		}
		locked += res.ModifiedCount
	}
	return locked, nil
}

func (s *Store) ReleasePending(ctx context.Context, runID id.RunID) (int64, error) {
	res, err := s.mdb.Collection(colItems).UpdateMany(ctx,
		bson.M{"run_id": runID.String(), "status": string(billable.StatusPending)},
		bson.M{"$set": bson.M{
			"status":     string(billable.StatusUnbilled),
			"run_id":     "",
			"updated_at": now(),
		}},
	)
	if err != nil {
		return 0, fmt.Errorf("billrun/mongo: release pending: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *Store) MarkBilled(ctx context.Context, runID id.RunID, invoiceID id.InvoiceID) (int64, error) {
	res, err := s.mdb.Collection(colItems).UpdateMany(ctx,
		bson.M{"run_id": runID.String(), "status": string(billable.StatusPending)},
		bson.M{"$set": bson.M{
			"status":     string(billable.StatusBilled),
			"invoice_id": invoiceID.String(),
			"updated_at": now(),
		}},
	)
	if err != nil {
		return 0, fmt.Errorf("billrun/mongo: mark billed: %w", err)
	}
	return res.ModifiedCount, nil
}

// ==================== Run Store ====================

func (s *Store) CreateRun(ctx context.Context, r *run.Run) error {
	m := toRunModel(r)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		// The unique index on (vendor_id, period_label) rejects a
		// second run for the same period.
		if mongo.IsDuplicateKeyError(err) {
			return billrun.ErrRunExists
		}
		return fmt.Errorf("billrun/mongo: create run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*run.Run, error) {
	var m runModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": runID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, billrun.ErrRunNotFound
		}
		return nil, fmt.Errorf("billrun/mongo: get run: %w", err)
	}
	return fromRunModel(&m)
}

func (s *Store) GetRunByPeriod(ctx context.Context, vendorID, periodLabel string) (*run.Run, error) {
	var m runModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"vendor_id": vendorID, "period_label": periodLabel}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, billrun.ErrRunNotFound
		}
		return nil, fmt.Errorf("billrun/mongo: get run by period: %w", err)
	}
	return fromRunModel(&m)
}

func (s *Store) UpdateRun(ctx context.Context, r *run.Run) error {
	m := toRunModel(r)
	m.UpdatedAt = now()

	res, err := s.mdb.Collection(colRuns).ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return fmt.Errorf("billrun/mongo: update run: %w", err)
	}
	if res.MatchedCount == 0 {
		return billrun.ErrRunNotFound
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, vendorID string) ([]*run.Run, error) {
	var models []runModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"vendor_id": vendorID}).
		Sort(bson.D{{Key: "period_label", Value: -1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("billrun/mongo: list runs: %w", err)
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
	var counter struct {
		Value int64 `bson:"value"`
	}
	err := s.mdb.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": "invoice_number"},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("billrun/mongo: next invoice number: %w", err)
	}
	return counter.Value, nil
}

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m := toInvoiceModel(inv)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("billrun/mongo: create invoice: %w", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invoiceID id.InvoiceID) (*invoice.Invoice, error) {
	var m invoiceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": invoiceID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, billrun.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("billrun/mongo: get invoice: %w", err)
	}
	return fromInvoiceModel(&m)
}

func (s *Store) ListOutstandingInvoices(ctx context.Context, vendorID string) ([]*invoice.Invoice, error) {
	var models []invoiceModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"vendor_id": vendorID,
			"status":    bson.M{"$nin": bson.A{string(invoice.StatusPaid), string(invoice.StatusVoided)}},
			"$expr":     bson.M{"$gt": bson.A{"$total_cents", "$amount_paid_cents"}},
		}).
		Sort(bson.D{{Key: "number", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("billrun/mongo: list outstanding invoices: %w", err)
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
	res, err := s.mdb.Collection(colInvoices).UpdateOne(ctx,
		bson.M{"_id": invoiceID.String()},
		bson.M{"$set": bson.M{
			"status":     string(invoice.StatusSent),
			"sent_at":    sentAt,
			"updated_at": now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("billrun/mongo: mark invoice sent: %w", err)
	}
	if res.MatchedCount == 0 {
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

	res, err := s.mdb.Collection(colInvoices).ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return fmt.Errorf("billrun/mongo: record payment: %w", err)
	}
	if res.MatchedCount == 0 {
		return billrun.ErrInvoiceNotFound
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// errUnknownKind reports an item document whose kind field matches no
// known billable kind.
func errUnknownKind(kind string) error {
	return fmt.Errorf("billrun/mongo: unknown item kind %q", kind)
}

// kindRank orders item kinds the way invoices list them.
func kindRank(k billable.Kind) int {
	switch k {
	case billable.KindCharge:
		return 0
	case billable.KindMileage:
		return 1
	default:
		return 2
	}
}

// entryDate returns the work date for time and mileage entries and
// the zero time for charges.
func entryDate(item billable.Item) time.Time {
	switch v := item.(type) {
	case *billable.TimeEntry:
		return v.EntryDate
	case *billable.MileageEntry:
		return v.EntryDate
	}
	return time.Time{}
}

// sortBillingOrder sorts fetched items into invoice order: charges
// first with carried-forward periods leading, then mileage, then
// time, entries in chronological order.
func sortBillingOrder(items []billable.Item) {
	sortSliceStable(items, func(a, b billable.Item) bool {
		ra, rb := kindRank(a.Kind()), kindRank(b.Kind())
		if ra != rb {
			return ra < rb
		}
		ca, aOK := a.(*billable.RecurringCharge)
		cb, bOK := b.(*billable.RecurringCharge)
		if aOK && bOK {
			if ca.PeriodLabel != cb.PeriodLabel {
				return ca.PeriodLabel < cb.PeriodLabel
			}
			return ca.SortOrder < cb.SortOrder
		}
		return entryDate(a).Before(entryDate(b))
	})
}

func sortSliceStable(items []billable.Item, less func(a, b billable.Item) bool) {
	// Insertion sort keeps the fetch order (created_at) for equal
	// ranks without pulling in a comparator adapter.
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && less(items[j], items[j-1]); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

// migrationIndexes returns the index definitions for all billrun collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colProfiles: {
			{Keys: bson.D{{Key: "active", Value: 1}}},
		},
		colChargeDefs: {
			{Keys: bson.D{{Key: "vendor_id", Value: 1}, {Key: "active", Value: 1}}},
		},
		colItems: {
			{Keys: bson.D{{Key: "vendor_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "run_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "invoice_id", Value: 1}}},
			{
				Keys: bson.D{{Key: "charge_id", Value: 1}, {Key: "period_label", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"kind": "charge", "split_from": ""}),
			},
		},
		colRuns: {
			{
				Keys:    bson.D{{Key: "vendor_id", Value: 1}, {Key: "period_label", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		colInvoices: {
			{
				Keys:    bson.D{{Key: "number", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "vendor_id", Value: 1}, {Key: "status", Value: 1}}},
		},
	}
}
