// Package memory provides an in-memory Store for tests and previews.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/billrun"
	"github.com/xraph/billrun/billable"
	"github.com/xraph/billrun/id"
	"github.com/xraph/billrun/invoice"
	"github.com/xraph/billrun/profile"
	"github.com/xraph/billrun/run"
	"github.com/xraph/billrun/store"
	"github.com/xraph/billrun/types"
)

type Store struct {
	mu sync.RWMutex

	// Profile storage
	profiles map[string]*profile.Profile

	// Charge definitions and (charge, period) instantiation index
	chargeDefs      map[string]*billable.ChargeDefinition
	chargeInstances map[string]bool

	// Billable item storage
	items     map[string]billable.Item
	itemOrder []string

	// Run storage, plus a (vendor, period) uniqueness index
	runs        map[string]*run.Run
	runByPeriod map[string]string

	// Invoice storage
	invoices map[string]*invoice.Invoice
	seq      int64
}

func New() *Store {
	return &Store{
		profiles:        make(map[string]*profile.Profile),
		chargeDefs:      make(map[string]*billable.ChargeDefinition),
		chargeInstances: make(map[string]bool),
		items:           make(map[string]billable.Item),
		runs:            make(map[string]*run.Run),
		runByPeriod:     make(map[string]string),
		invoices:        make(map[string]*invoice.Invoice),
	}
}

func periodKey(vendorID, periodLabel string) string {
	return vendorID + "|" + periodLabel
}

// ──────────────────────────────────────────────────
// Profiles
// ──────────────────────────────────────────────────

func (s *Store) SaveProfile(_ context.Context, p *profile.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[p.VendorID] = p
	return nil
}

func (s *Store) GetProfile(_ context.Context, vendorID string) (*profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.profiles[vendorID]; ok {
		return p, nil
	}
	return nil, billrun.ErrProfileNotFound
}

func (s *Store) ListVendors(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vendors := make([]string, 0, len(s.profiles))
	for v := range s.profiles {
		vendors = append(vendors, v)
	}
	sort.Strings(vendors)
	return vendors, nil
}

// ──────────────────────────────────────────────────
// Charge definitions
// ──────────────────────────────────────────────────

func (s *Store) CreateChargeDefinition(_ context.Context, d *billable.ChargeDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.chargeDefs[d.ID.String()]; exists {
		return billrun.ErrAlreadyExists
	}
	s.chargeDefs[d.ID.String()] = d
	return nil
}

func (s *Store) ListActiveChargeDefinitions(_ context.Context, vendorID string) ([]*billable.ChargeDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*billable.ChargeDefinition, 0)
	for _, d := range s.chargeDefs {
		if d.VendorID == vendorID && d.Active {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].SortOrder != result[j].SortOrder {
			return result[i].SortOrder < result[j].SortOrder
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

func (s *Store) EnsureChargeInstance(_ context.Context, inst *billable.RecurringCharge) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := periodKey(inst.ChargeID.String(), inst.PeriodLabel)
	if s.chargeInstances[key] {
		return false, nil
	}
	s.chargeInstances[key] = true
	s.items[inst.ID.String()] = inst
	s.itemOrder = append(s.itemOrder, inst.ID.String())
	return true, nil
}

// ──────────────────────────────────────────────────
// Billable items
// ──────────────────────────────────────────────────

func (s *Store) CreateItems(_ context.Context, items ...billable.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		if _, exists := s.items[item.ItemID().String()]; exists {
			return billrun.ErrAlreadyExists
		}
	}
	for _, item := range items {
		s.items[item.ItemID().String()] = item
		s.itemOrder = append(s.itemOrder, item.ItemID().String())
	}
	return nil
}

func (s *Store) GetItem(_ context.Context, itemID id.ID) (billable.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if item, ok := s.items[itemID.String()]; ok {
		return item, nil
	}
	return nil, billrun.ErrItemNotFound
}

// kindRank orders items for billing: charges, then mileage, then time.
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

func (s *Store) listItems(vendorID string, keep func(billable.Item) bool) []billable.Item {
	result := make([]billable.Item, 0)
	for _, key := range s.itemOrder {
		item := s.items[key]
		if item.Vendor() == vendorID && keep(item) {
			result = append(result, item)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		ri, rj := kindRank(result[i].Kind()), kindRank(result[j].Kind())
		if ri != rj {
			return ri < rj
		}
		ci, iOK := result[i].(*billable.RecurringCharge)
		cj, jOK := result[j].(*billable.RecurringCharge)
		if iOK && jOK {
			// Carried-forward charges from older periods bill first.
			if ci.PeriodLabel != cj.PeriodLabel {
				return ci.PeriodLabel < cj.PeriodLabel
			}
			return ci.SortOrder < cj.SortOrder
		}
		di, dj := entryDate(result[i]), entryDate(result[j])
		return di.Before(dj)
	})
	return result
}

func (s *Store) ListUnbilledItems(_ context.Context, vendorID string) ([]billable.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listItems(vendorID, func(item billable.Item) bool {
		return item.State() == billable.StatusUnbilled
	}), nil
}

func (s *Store) ListItemsByStatus(_ context.Context, vendorID string, status billable.Status) ([]billable.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listItems(vendorID, func(item billable.Item) bool {
		return item.State() == status
	}), nil
}

func (s *Store) ListItemsByInvoice(_ context.Context, invoiceID id.InvoiceID) ([]billable.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]billable.Item, 0)
	for _, key := range s.itemOrder {
		item := s.items[key]
		if itemInvoiceID(item) == invoiceID.String() {
			result = append(result, item)
		}
	}
	return result, nil
}

func (s *Store) ApplySplit(_ context.Context, retained, remainder billable.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[retained.ItemID().String()]; !exists {
		return billrun.ErrItemNotFound
	}
	s.items[retained.ItemID().String()] = retained
	s.items[remainder.ItemID().String()] = remainder
	s.itemOrder = append(s.itemOrder, remainder.ItemID().String())
	return nil
}

func (s *Store) LockItems(_ context.Context, runID id.RunID, itemIDs []id.ID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var locked int64
	for _, itemID := range itemIDs {
		item, ok := s.items[itemID.String()]
		if !ok || item.State() != billable.StatusUnbilled {
			continue
		}
		setItemState(item, billable.StatusPending, runID, id.Nil)
		locked++
	}
	return locked, nil
}

func (s *Store) ReleasePending(_ context.Context, runID id.RunID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var released int64
	for _, item := range s.items {
		if item.State() == billable.StatusPending && itemRunID(item) == runID.String() {
			setItemState(item, billable.StatusUnbilled, id.Nil, id.Nil)
			released++
		}
	}
	return released, nil
}

func (s *Store) MarkBilled(_ context.Context, runID id.RunID, invoiceID id.InvoiceID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var billed int64
	for _, item := range s.items {
		if item.State() == billable.StatusPending && itemRunID(item) == runID.String() {
			setItemState(item, billable.StatusBilled, runID, invoiceID)
			billed++
		}
	}
	return billed, nil
}

// setItemState mutates an item's lifecycle fields in place. The item
// set is closed, so the type switch is exhaustive.
func setItemState(item billable.Item, status billable.Status, runID id.RunID, invoiceID id.InvoiceID) {
	switch v := item.(type) {
	case *billable.RecurringCharge:
		v.Status, v.RunID, v.InvoiceID = status, runID, invoiceID
		v.Touch()
	case *billable.TimeEntry:
		v.Status, v.RunID, v.InvoiceID = status, runID, invoiceID
		v.Touch()
	case *billable.MileageEntry:
		v.Status, v.RunID, v.InvoiceID = status, runID, invoiceID
		v.Touch()
	}
}

func itemRunID(item billable.Item) string {
	switch v := item.(type) {
	case *billable.RecurringCharge:
		return v.RunID.String()
	case *billable.TimeEntry:
		return v.RunID.String()
	case *billable.MileageEntry:
		return v.RunID.String()
	}
	return ""
}

func itemInvoiceID(item billable.Item) string {
	switch v := item.(type) {
	case *billable.RecurringCharge:
		return v.InvoiceID.String()
	case *billable.TimeEntry:
		return v.InvoiceID.String()
	case *billable.MileageEntry:
		return v.InvoiceID.String()
	}
	return ""
}

// ──────────────────────────────────────────────────
// Runs
// ──────────────────────────────────────────────────

func (s *Store) CreateRun(_ context.Context, r *run.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := periodKey(r.VendorID, r.PeriodLabel)
	if _, exists := s.runByPeriod[key]; exists {
		return billrun.ErrRunExists
	}
	s.runs[r.ID.String()] = r
	s.runByPeriod[key] = r.ID.String()
	return nil
}

func (s *Store) GetRun(_ context.Context, runID id.RunID) (*run.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.runs[runID.String()]; ok {
		return r, nil
	}
	return nil, billrun.ErrRunNotFound
}

func (s *Store) GetRunByPeriod(_ context.Context, vendorID, periodLabel string) (*run.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if runID, ok := s.runByPeriod[periodKey(vendorID, periodLabel)]; ok {
		return s.runs[runID], nil
	}
	return nil, billrun.ErrRunNotFound
}

func (s *Store) UpdateRun(_ context.Context, r *run.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[r.ID.String()]; !exists {
		return billrun.ErrRunNotFound
	}
	s.runs[r.ID.String()] = r
	return nil
}

func (s *Store) ListRuns(_ context.Context, vendorID string) ([]*run.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*run.Run, 0)
	for _, r := range s.runs {
		if r.VendorID == vendorID {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PeriodLabel < result[j].PeriodLabel
	})
	return result, nil
}

// ──────────────────────────────────────────────────
// Invoices
// ──────────────────────────────────────────────────

func (s *Store) NextInvoiceNumber(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	return s.seq, nil
}

func (s *Store) CreateInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invoices[inv.ID.String()]; exists {
		return billrun.ErrAlreadyExists
	}
	s.invoices[inv.ID.String()] = inv
	return nil
}

func (s *Store) GetInvoice(_ context.Context, invoiceID id.InvoiceID) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if inv, ok := s.invoices[invoiceID.String()]; ok {
		return inv, nil
	}
	return nil, billrun.ErrInvoiceNotFound
}

func (s *Store) ListOutstandingInvoices(_ context.Context, vendorID string) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*invoice.Invoice, 0)
	for _, inv := range s.invoices {
		if inv.VendorID == vendorID && inv.Outstanding() {
			result = append(result, inv)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Number < result[j].Number
	})
	return result, nil
}

func (s *Store) MarkInvoiceSent(_ context.Context, invoiceID id.InvoiceID, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invoiceID.String()]
	if !ok {
		return billrun.ErrInvoiceNotFound
	}
	inv.Status = invoice.StatusSent
	inv.SentAt = &sentAt
	inv.Touch()
	return nil
}

func (s *Store) RecordPayment(_ context.Context, invoiceID id.InvoiceID, amount types.Money, paidAt time.Time, paymentRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invoiceID.String()]
	if !ok {
		return billrun.ErrInvoiceNotFound
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
	inv.Touch()
	return nil
}

// ──────────────────────────────────────────────────
// Core
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }

var _ store.Store = (*Store)(nil)
