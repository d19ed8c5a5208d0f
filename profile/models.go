// Package profile holds per-vendor billing configuration: how invoices
// are shaped and whether a monthly cap limits what a run may bill.
package profile

import (
	"fmt"
	"strings"

	"github.com/xraph/billrun/types"
)

// InvoiceMode selects how a vendor's invoice presents its contents.
type InvoiceMode string

const (
	// ModeItemized invoices carry one line per charge plus aggregated
	// time and mileage lines.
	ModeItemized InvoiceMode = "itemized"
	// ModeStatement invoices carry balance-style lines grouped by tax
	// rate, topped up to the capped total when a cap applies.
	ModeStatement InvoiceMode = "statement"
)

// Profile is a vendor's billing configuration.
type Profile struct {
	types.Entity
	VendorID   string        `json:"vendor_id"`
	Name       string        `json:"name"`
	Email      string        `json:"email"`
	Currency   string        `json:"currency"`
	Mode       InvoiceMode   `json:"mode"`
	MonthlyCap *types.Money  `json:"monthly_cap,omitempty"` // inc-tax; nil means uncapped
	PrimaryTax types.TaxRate `json:"primary_tax"`
	DueDays    int           `json:"due_days"`
	Active     bool          `json:"active"`
}

// Capped reports whether the profile carries a positive monthly cap.
func (p *Profile) Capped() bool {
	return p.MonthlyCap != nil && p.MonthlyCap.IsPositive()
}

// Validate checks the profile before it is stored. It normalizes the
// currency code to the lowercase form Money carries, so "USD" and
// "usd" name the same currency.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.VendorID) == "" {
		return fmt.Errorf("profile: vendor id is required")
	}
	p.Currency = strings.ToLower(strings.TrimSpace(p.Currency))
	if p.Currency == "" {
		return fmt.Errorf("profile: currency is required")
	}
	switch p.Mode {
	case ModeItemized, ModeStatement:
	default:
		return fmt.Errorf("profile: unknown invoice mode %q", p.Mode)
	}
	if p.MonthlyCap != nil {
		if !p.MonthlyCap.IsPositive() {
			return fmt.Errorf("profile: monthly cap must be positive, got %s", p.MonthlyCap)
		}
		if !strings.EqualFold(p.MonthlyCap.Currency, p.Currency) {
			return fmt.Errorf("profile: cap currency %q does not match profile currency %q", p.MonthlyCap.Currency, p.Currency)
		}
	}
	if p.DueDays < 0 {
		return fmt.Errorf("profile: due days cannot be negative, got %d", p.DueDays)
	}
	return nil
}
