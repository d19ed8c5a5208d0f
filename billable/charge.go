package billable

import (
	"fmt"
	"strings"
	"time"

	"github.com/xraph/billrun/id"
	"github.com/xraph/billrun/types"
)

// ChargeDefinition is a standing monthly charge for a vendor. Each
// billing period it is instantiated into a RecurringCharge, exactly
// once per (definition, period).
type ChargeDefinition struct {
	types.Entity
	ID          id.ChargeID   `json:"id"`
	VendorID    string        `json:"vendor_id"`
	ProjectID   string        `json:"project_id"`
	Description string        `json:"description"`
	Amount      types.Money   `json:"amount"` // ex-tax
	TaxRate     types.TaxRate `json:"tax_rate"`
	SortOrder   int           `json:"sort_order"`
	Active      bool          `json:"active"`
}

// Validate checks the definition before it is stored.
func (d *ChargeDefinition) Validate() error {
	if strings.TrimSpace(d.VendorID) == "" {
		return fmt.Errorf("billable: charge definition requires a vendor")
	}
	if strings.TrimSpace(d.Description) == "" {
		return fmt.Errorf("billable: charge definition requires a description")
	}
	if !d.Amount.IsPositive() {
		return fmt.Errorf("billable: charge amount must be positive, got %s", d.Amount)
	}
	return nil
}

// Instance creates this period's RecurringCharge for the definition.
func (d *ChargeDefinition) Instance(periodLabel string) *RecurringCharge {
	return &RecurringCharge{
		Entity:      types.NewEntity(),
		ID:          id.NewChargeItemID(),
		VendorID:    d.VendorID,
		ChargeID:    d.ID,
		ProjectID:   d.ProjectID,
		Description: d.Description,
		PeriodLabel: periodLabel,
		SortOrder:   d.SortOrder,
		Amount:      d.Amount,
		TaxRate:     d.TaxRate,
		Status:      StatusUnbilled,
	}
}

// NewTimeEntry builds an unbilled time entry, deriving the ex-tax
// amount from the duration and hourly rate.
func NewTimeEntry(vendorID, projectID, description string, minutes int64, hourlyRate types.Money, rate types.TaxRate) (*TimeEntry, error) {
	if minutes <= 0 {
		return nil, fmt.Errorf("billable: time entry requires positive minutes, got %d", minutes)
	}
	if !hourlyRate.IsPositive() {
		return nil, fmt.Errorf("billable: time entry requires a positive hourly rate, got %s", hourlyRate)
	}

	t := &TimeEntry{
		Entity:       types.NewEntity(),
		ID:           id.NewTimeEntryID(),
		EntryDate:    time.Now().UTC(),
		VendorID:     vendorID,
		ProjectID:    projectID,
		Description:  description,
		Minutes:      minutes,
		BlockMinutes: DefaultBlockMinutes,
		HourlyRate:   hourlyRate,
		TaxRate:      rate,
		Status:       StatusUnbilled,
	}
	t.Amount = t.AmountForMinutes(minutes)
	return t, nil
}

// NewMileageEntry builds an unbilled mileage entry, deriving the
// ex-tax amount from the distance and per-mile rate.
func NewMileageEntry(vendorID, projectID, description string, hundredths int64, ratePerMile types.Money, rate types.TaxRate) (*MileageEntry, error) {
	if hundredths <= 0 {
		return nil, fmt.Errorf("billable: mileage entry requires positive distance, got %d", hundredths)
	}
	if !ratePerMile.IsPositive() {
		return nil, fmt.Errorf("billable: mileage entry requires a positive rate, got %s", ratePerMile)
	}

	m := &MileageEntry{
		Entity:      types.NewEntity(),
		ID:          id.NewMileageEntryID(),
		EntryDate:   time.Now().UTC(),
		VendorID:    vendorID,
		ProjectID:   projectID,
		Description: description,
		Hundredths:  hundredths,
		RatePerMile: ratePerMile,
		TaxRate:     rate,
		Status:      StatusUnbilled,
	}
	m.Amount = m.AmountForHundredths(hundredths)
	return m, nil
}
