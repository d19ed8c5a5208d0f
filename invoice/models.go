// Package invoice models drafted and persisted invoices. A draft is
// pure data computed from allocated items; persisting and dispatching
// it is the run coordinator's job, so the same draft can also serve a
// dry-run preview.
package invoice

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/billrun/id"
	"github.com/xraph/billrun/types"
)

// Status is the lifecycle state of an invoice.
type Status string

const (
	StatusOpen   Status = "open"
	StatusSent   Status = "sent"
	StatusPaid   Status = "paid"
	StatusVoided Status = "voided"
)

// Mode mirrors the vendor profile's invoice mode.
type Mode string

const (
	ModeItemized  Mode = "itemized"
	ModeStatement Mode = "statement"
)

// LineItem is one line on an invoice. Amount is the authoritative
// ex-tax value and Tax the authoritative tax: an aggregated line
// carries the exact sum of its members' per-item tax, because
// re-rounding tax on the grouped ex-tax can land one minor unit past
// what the allocation admitted under the cap. Quantity and UnitAmount
// are presentation only and never enter the totals arithmetic.
type LineItem struct {
	ID          id.LineItemID   `json:"id"`
	InvoiceID   id.InvoiceID    `json:"invoice_id"`
	ProjectID   string          `json:"project_id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitAmount  types.Money     `json:"unit_amount"`
	Amount      types.Money     `json:"amount"` // ex-tax, authoritative
	DiscountPct decimal.Decimal `json:"discount_pct"`
	Tax         types.Money     `json:"tax"`
	TaxRate     types.TaxRate   `json:"tax_rate"`
	SortOrder   int             `json:"sort_order"`
}

// DiscountAmount returns the discount on the line, rounded half up at
// the minor unit.
func (li LineItem) DiscountAmount() types.Money {
	if li.DiscountPct.IsZero() {
		return types.Zero(li.Amount.Currency)
	}
	d := decimal.NewFromInt(li.Amount.Amount).
		Mul(li.DiscountPct).
		Div(decimal.NewFromInt(100)).
		Round(0)
	return types.Money{Amount: d.IntPart(), Currency: li.Amount.Currency}
}

// NetAmount returns the ex-tax amount after discount.
func (li LineItem) NetAmount() types.Money {
	return li.Amount.Subtract(li.DiscountAmount())
}

// TaxAmount returns the tax due on the line. A discount invalidates
// the carried per-item sum, so discounted lines derive tax from the
// net amount instead.
func (li LineItem) TaxAmount() types.Money {
	if li.DiscountPct.IsZero() && li.Tax.Currency != "" {
		return li.Tax
	}
	return types.TaxOn(li.NetAmount(), li.TaxRate)
}

// TotalIncTax returns the line's tax-inclusive amount.
func (li LineItem) TotalIncTax() types.Money {
	return li.NetAmount().Add(li.TaxAmount())
}

// Totals aggregates an invoice's money columns. Each figure is a sum
// of per-line values that were already rounded, never a re-rounded
// aggregate.
type Totals struct {
	Subtotal types.Money `json:"subtotal"` // ex-tax, before discount
	Discount types.Money `json:"discount"`
	Tax      types.Money `json:"tax"`
	Total    types.Money `json:"total"` // inc-tax
}

// Invoice is a persisted invoice tied to the run that produced it.
type Invoice struct {
	types.Entity
	ID            id.InvoiceID `json:"id"`
	RunID         id.RunID     `json:"run_id"`
	VendorID      string       `json:"vendor_id"`
	Number        string       `json:"number"`
	Status        Status       `json:"status"`
	Mode          Mode         `json:"mode"`
	Currency      string       `json:"currency"`
	PeriodLabel   string       `json:"period_label"`
	Subtotal      types.Money  `json:"subtotal"`
	DiscountTotal types.Money  `json:"discount_total"`
	TaxTotal      types.Money  `json:"tax_total"`
	Total         types.Money  `json:"total"`
	AmountPaid    types.Money  `json:"amount_paid"`
	Lines         []LineItem   `json:"lines"`
	Memo          []string     `json:"memo,omitempty"`
	DueDate       *time.Time   `json:"due_date,omitempty"`
	SentAt        *time.Time   `json:"sent_at,omitempty"`
	PaidAt        *time.Time   `json:"paid_at,omitempty"`
	PaymentRef    string       `json:"payment_ref,omitempty"`
}

// Balance returns the unpaid inc-tax amount.
func (inv *Invoice) Balance() types.Money {
	return inv.Total.Subtract(inv.AmountPaid)
}

// Outstanding reports whether the invoice still expects payment.
func (inv *Invoice) Outstanding() bool {
	switch inv.Status {
	case StatusPaid, StatusVoided:
		return false
	}
	return inv.Balance().IsPositive()
}

// FormatNumber renders a sequential invoice number: "INV-000123".
func FormatNumber(seq int64) string {
	return fmt.Sprintf("INV-%06d", seq)
}

// ──────────────────────────────────────────────────
// Draft
// ──────────────────────────────────────────────────

// Draft is an invoice before persistence: lines and memo only. Drafts
// carry no invoice ID so previews never leak half-made identifiers.
type Draft struct {
	VendorID    string     `json:"vendor_id"`
	PeriodLabel string     `json:"period_label"`
	Currency    string     `json:"currency"`
	Mode        Mode       `json:"mode"`
	Lines       []LineItem `json:"lines"`
	Memo        []string   `json:"memo,omitempty"`
}

// Totalize sums the draft's lines.
func (d *Draft) Totalize() Totals {
	t := Totals{
		Subtotal: types.Zero(d.Currency),
		Discount: types.Zero(d.Currency),
		Tax:      types.Zero(d.Currency),
		Total:    types.Zero(d.Currency),
	}
	for _, li := range d.Lines {
		t.Subtotal = t.Subtotal.Add(li.Amount)
		t.Discount = t.Discount.Add(li.DiscountAmount())
		t.Tax = t.Tax.Add(li.TaxAmount())
		t.Total = t.Total.Add(li.TotalIncTax())
	}
	return t
}

// Materialize turns the draft into a persistable invoice. The number
// comes from the store's sequence; the run links the invoice back to
// the attempt that produced it.
func (d *Draft) Materialize(runID id.RunID, number string, dueDate *time.Time) *Invoice {
	invID := id.NewInvoiceID()
	totals := d.Totalize()

	lines := make([]LineItem, len(d.Lines))
	copy(lines, d.Lines)
	for i := range lines {
		lines[i].ID = id.NewLineItemID()
		lines[i].InvoiceID = invID
		lines[i].SortOrder = i
	}

	return &Invoice{
		Entity:        types.NewEntity(),
		ID:            invID,
		RunID:         runID,
		VendorID:      d.VendorID,
		Number:        number,
		Status:        StatusOpen,
		Mode:          d.Mode,
		Currency:      d.Currency,
		PeriodLabel:   d.PeriodLabel,
		Subtotal:      totals.Subtotal,
		DiscountTotal: totals.Discount,
		TaxTotal:      totals.Tax,
		Total:         totals.Total,
		AmountPaid:    types.Zero(d.Currency),
		Lines:         lines,
		Memo:          append([]string(nil), d.Memo...),
		DueDate:       dueDate,
	}
}
