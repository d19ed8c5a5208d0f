// Package billable defines the items a billing run can pick up: recurring
// charge instances, time entries, and mileage entries. Each kind knows its
// own smallest divisible unit, so the allocator never needs kind-specific
// split logic.
package billable

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/billrun/id"
	"github.com/xraph/billrun/types"
)

// Kind discriminates the billable item types.
type Kind string

const (
	KindCharge  Kind = "charge"
	KindTime    Kind = "time"
	KindMileage Kind = "mileage"
)

// Status is the billing lifecycle state of an item.
type Status string

const (
	// StatusUnbilled items are eligible for the next run.
	StatusUnbilled Status = "unbilled"
	// StatusPending items are locked by an in-flight run.
	StatusPending Status = "pending"
	// StatusBilled items appear on a dispatched invoice.
	StatusBilled Status = "billed"
)

// Item is the closed set of billable entry types. The three concrete
// implementations live in this package; nothing outside it can add a
// fourth.
//
// ExTax is authoritative. IncTax is always derived from ExTax via the
// item's tax rate, and is never stored independently.
type Item interface {
	ItemID() id.ID
	Kind() Kind
	Vendor() string
	Project() string
	Rate() types.TaxRate
	ExTax() types.Money
	IncTax() types.Money
	State() Status

	// SplitQuanta returns the number of smallest divisible units this
	// item can be cut into. An item with quanta <= 1 cannot be split.
	SplitQuanta() int64

	// AmountAt returns the re-priced ex-tax amount for the first
	// quanta units of the item. It is monotone in quanta, which lets
	// callers binary search for a split point.
	AmountAt(quanta int64) types.Money

	// SplitAt divides the item at the given quantum count. The retained
	// part keeps the original identity with a reduced amount; the
	// remainder is a new unbilled item carrying the rest. Their ex-tax
	// amounts sum exactly to the original.
	SplitAt(quanta int64) (retained, remainder Item, err error)

	item()
}

func splitBounds(quanta, total int64) error {
	if total <= 1 {
		return fmt.Errorf("billable: item with %d quanta cannot be split", total)
	}
	if quanta <= 0 || quanta >= total {
		return fmt.Errorf("billable: split point %d out of range (1..%d)", quanta, total-1)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Recurring charge instance
// ──────────────────────────────────────────────────

// RecurringCharge is one period's instance of a charge definition.
// Its split quantum is the minor currency unit itself.
type RecurringCharge struct {
	types.Entity
	ID          id.ChargeItemID `json:"id"`
	VendorID    string          `json:"vendor_id"`
	ChargeID    id.ChargeID     `json:"charge_id"`
	ProjectID   string          `json:"project_id"`
	Description string          `json:"description"`
	PeriodLabel string          `json:"period_label"`
	SortOrder   int             `json:"sort_order"`
	Amount      types.Money     `json:"amount"` // ex-tax
	TaxRate     types.TaxRate   `json:"tax_rate"`
	Status      Status          `json:"status"`
	RunID       id.RunID        `json:"run_id"`
	InvoiceID   id.InvoiceID    `json:"invoice_id"`
	SplitFrom   id.ID           `json:"split_from"`
}

func (c *RecurringCharge) ItemID() id.ID       { return c.ID }
func (c *RecurringCharge) Kind() Kind          { return KindCharge }
func (c *RecurringCharge) Vendor() string      { return c.VendorID }
func (c *RecurringCharge) Project() string     { return c.ProjectID }
func (c *RecurringCharge) Rate() types.TaxRate { return c.TaxRate }
func (c *RecurringCharge) ExTax() types.Money  { return c.Amount }
func (c *RecurringCharge) IncTax() types.Money { return types.IncTax(c.Amount, c.TaxRate) }
func (c *RecurringCharge) State() Status       { return c.Status }
func (c *RecurringCharge) SplitQuanta() int64  { return c.Amount.Amount }
func (c *RecurringCharge) item()               {}

// AmountAt returns the first quanta minor units of the charge.
func (c *RecurringCharge) AmountAt(quanta int64) types.Money {
	return types.Money{Amount: quanta, Currency: c.Amount.Currency}
}

// SplitAt cuts the charge at a minor-unit boundary.
func (c *RecurringCharge) SplitAt(quanta int64) (Item, Item, error) {
	if err := splitBounds(quanta, c.SplitQuanta()); err != nil {
		return nil, nil, err
	}

	retained := *c
	retained.Amount = types.Money{Amount: quanta, Currency: c.Amount.Currency}
	retained.Touch()

	remainder := *c
	remainder.Entity = types.NewEntity()
	remainder.ID = id.NewChargeItemID()
	remainder.Amount = c.Amount.Subtract(retained.Amount)
	remainder.Status = StatusUnbilled
	remainder.RunID = id.Nil
	remainder.InvoiceID = id.Nil
	remainder.SplitFrom = c.ID

	return &retained, &remainder, nil
}

// ──────────────────────────────────────────────────
// Time entry
// ──────────────────────────────────────────────────

// TimeEntry is billable time in minutes, priced by an hourly rate and
// divisible at block boundaries (15 minutes unless the entry says
// otherwise).
type TimeEntry struct {
	types.Entity
	ID           id.TimeEntryID `json:"id"`
	VendorID     string         `json:"vendor_id"`
	ProjectID    string         `json:"project_id"`
	Description  string         `json:"description"`
	EntryDate    time.Time      `json:"entry_date"`
	Minutes      int64          `json:"minutes"`
	BlockMinutes int64          `json:"block_minutes"`
	HourlyRate   types.Money    `json:"hourly_rate"` // ex-tax per hour
	Amount       types.Money    `json:"amount"`      // ex-tax
	TaxRate      types.TaxRate  `json:"tax_rate"`
	Status       Status         `json:"status"`
	RunID        id.RunID       `json:"run_id"`
	InvoiceID    id.InvoiceID   `json:"invoice_id"`
	SplitFrom    id.ID          `json:"split_from"`
}

// DefaultBlockMinutes is the split granularity for time entries that
// don't carry their own.
const DefaultBlockMinutes = 15

func (t *TimeEntry) ItemID() id.ID       { return t.ID }
func (t *TimeEntry) Kind() Kind          { return KindTime }
func (t *TimeEntry) Vendor() string      { return t.VendorID }
func (t *TimeEntry) Project() string     { return t.ProjectID }
func (t *TimeEntry) Rate() types.TaxRate { return t.TaxRate }
func (t *TimeEntry) ExTax() types.Money  { return t.Amount }
func (t *TimeEntry) IncTax() types.Money { return types.IncTax(t.Amount, t.TaxRate) }
func (t *TimeEntry) State() Status       { return t.Status }
func (t *TimeEntry) item()               {}

func (t *TimeEntry) blockMinutes() int64 {
	if t.BlockMinutes > 0 {
		return t.BlockMinutes
	}
	return DefaultBlockMinutes
}

// SplitQuanta returns the number of whole blocks in the entry.
func (t *TimeEntry) SplitQuanta() int64 { return t.Minutes / t.blockMinutes() }

// Hours returns the entry duration in decimal hours for presentation.
func (t *TimeEntry) Hours() decimal.Decimal {
	return decimal.NewFromInt(t.Minutes).Div(decimal.NewFromInt(60))
}

// AmountForMinutes prices a duration at the entry's hourly rate,
// rounded half-up to a minor unit.
func (t *TimeEntry) AmountForMinutes(minutes int64) types.Money {
	amt := decimal.NewFromInt(t.HourlyRate.Amount).
		Mul(decimal.NewFromInt(minutes)).
		Div(decimal.NewFromInt(60)).
		Round(0)
	return types.Money{Amount: amt.IntPart(), Currency: t.HourlyRate.Currency}
}

// AmountAt prices the first quanta blocks at the entry's hourly rate.
func (t *TimeEntry) AmountAt(quanta int64) types.Money {
	return t.AmountForMinutes(quanta * t.blockMinutes())
}

// SplitAt cuts the entry at a block boundary. The retained part is
// re-priced from the rate; the remainder takes the rest by subtraction
// so no minor unit is created or destroyed.
func (t *TimeEntry) SplitAt(quanta int64) (Item, Item, error) {
	if err := splitBounds(quanta, t.SplitQuanta()); err != nil {
		return nil, nil, err
	}

	block := t.blockMinutes()

	retained := *t
	retained.Minutes = quanta * block
	retained.Amount = t.AmountForMinutes(retained.Minutes)
	retained.Touch()

	remainder := *t
	remainder.Entity = types.NewEntity()
	remainder.ID = id.NewTimeEntryID()
	remainder.Minutes = t.Minutes - retained.Minutes
	remainder.Amount = t.Amount.Subtract(retained.Amount)
	remainder.Status = StatusUnbilled
	remainder.RunID = id.Nil
	remainder.InvoiceID = id.Nil
	remainder.SplitFrom = t.ID

	return &retained, &remainder, nil
}

// ──────────────────────────────────────────────────
// Mileage entry
// ──────────────────────────────────────────────────

// MileageEntry is billable distance held in hundredths of a mile,
// divisible at every hundredth.
type MileageEntry struct {
	types.Entity
	ID          id.MileageEntryID `json:"id"`
	VendorID    string            `json:"vendor_id"`
	ProjectID   string            `json:"project_id"`
	Description string            `json:"description"`
	EntryDate   time.Time         `json:"entry_date"`
	Hundredths  int64             `json:"hundredths"`
	RatePerMile types.Money       `json:"rate_per_mile"` // ex-tax
	Amount      types.Money       `json:"amount"`        // ex-tax
	TaxRate     types.TaxRate     `json:"tax_rate"`
	Status      Status            `json:"status"`
	RunID       id.RunID          `json:"run_id"`
	InvoiceID   id.InvoiceID      `json:"invoice_id"`
	SplitFrom   id.ID             `json:"split_from"`
}

func (m *MileageEntry) ItemID() id.ID       { return m.ID }
func (m *MileageEntry) Kind() Kind          { return KindMileage }
func (m *MileageEntry) Vendor() string      { return m.VendorID }
func (m *MileageEntry) Project() string     { return m.ProjectID }
func (m *MileageEntry) Rate() types.TaxRate { return m.TaxRate }
func (m *MileageEntry) ExTax() types.Money  { return m.Amount }
func (m *MileageEntry) IncTax() types.Money { return types.IncTax(m.Amount, m.TaxRate) }
func (m *MileageEntry) State() Status       { return m.Status }
func (m *MileageEntry) SplitQuanta() int64  { return m.Hundredths }
func (m *MileageEntry) item()               {}

// Miles returns the distance in decimal miles for presentation.
func (m *MileageEntry) Miles() decimal.Decimal {
	return decimal.NewFromInt(m.Hundredths).Div(decimal.NewFromInt(100))
}

// AmountAt prices the first quanta hundredths at the per-mile rate.
func (m *MileageEntry) AmountAt(quanta int64) types.Money {
	return m.AmountForHundredths(quanta)
}

// AmountForHundredths prices a distance at the entry's per-mile rate,
// rounded half-up to a minor unit.
func (m *MileageEntry) AmountForHundredths(hundredths int64) types.Money {
	amt := decimal.NewFromInt(m.RatePerMile.Amount).
		Mul(decimal.NewFromInt(hundredths)).
		Div(decimal.NewFromInt(100)).
		Round(0)
	return types.Money{Amount: amt.IntPart(), Currency: m.RatePerMile.Currency}
}

// SplitAt cuts the entry at a hundredth-of-a-mile boundary.
func (m *MileageEntry) SplitAt(quanta int64) (Item, Item, error) {
	if err := splitBounds(quanta, m.SplitQuanta()); err != nil {
		return nil, nil, err
	}

	retained := *m
	retained.Hundredths = quanta
	retained.Amount = m.AmountForHundredths(quanta)
	retained.Touch()

	remainder := *m
	remainder.Entity = types.NewEntity()
	remainder.ID = id.NewMileageEntryID()
	remainder.Hundredths = m.Hundredths - quanta
	remainder.Amount = m.Amount.Subtract(retained.Amount)
	remainder.Status = StatusUnbilled
	remainder.RunID = id.Nil
	remainder.InvoiceID = id.Nil
	remainder.SplitFrom = m.ID

	return &retained, &remainder, nil
}

// Compile-time interface checks.
var (
	_ Item = (*RecurringCharge)(nil)
	_ Item = (*TimeEntry)(nil)
	_ Item = (*MileageEntry)(nil)
)
