package mongo

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/xraph/grove"

	"github.com/xraph/billrun/billable"
	"github.com/xraph/billrun/id"
	"github.com/xraph/billrun/invoice"
	"github.com/xraph/billrun/profile"
	"github.com/xraph/billrun/run"
	"github.com/xraph/billrun/types"
)

// ==================== Profile models ====================

type profileModel struct {
	grove.BaseModel `grove:"table:billrun_profiles"`

	VendorID        string    `grove:"vendor_id,pk"      bson:"_id"`
	Name            string    `grove:"name"              bson:"name"`
	Email           string    `grove:"email"             bson:"email"`
	Currency        string    `grove:"currency"          bson:"currency"`
	Mode            string    `grove:"mode"              bson:"mode"`
	MonthlyCapCents *int64    `grove:"monthly_cap_cents" bson:"monthly_cap_cents,omitempty"`
	PrimaryTax      string    `grove:"primary_tax"       bson:"primary_tax"`
	DueDays         int       `grove:"due_days"          bson:"due_days"`
	Active          bool      `grove:"active"            bson:"active"`
	CreatedAt       time.Time `grove:"created_at"        bson:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"        bson:"updated_at"`
}

func toProfileModel(p *profile.Profile) *profileModel {
	m := &profileModel{
		VendorID:   p.VendorID,
		Name:       p.Name,
		Email:      p.Email,
		Currency:   p.Currency,
		Mode:       string(p.Mode),
		PrimaryTax: p.PrimaryTax.Key(),
		DueDays:    p.DueDays,
		Active:     p.Active,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
	if p.MonthlyCap != nil {
		cents := p.MonthlyCap.Amount
		m.MonthlyCapCents = &cents
	}
	return m
}

func fromProfileModel(m *profileModel) (*profile.Profile, error) {
	primary, err := types.ParseTaxRate(m.PrimaryTax)
	if err != nil {
		return nil, err
	}

	p := &profile.Profile{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		VendorID:   m.VendorID,
		Name:       m.Name,
		Email:      m.Email,
		Currency:   m.Currency,
		Mode:       profile.InvoiceMode(m.Mode),
		PrimaryTax: primary,
		DueDays:    m.DueDays,
		Active:     m.Active,
	}
	if m.MonthlyCapCents != nil {
		cap := types.Money{Amount: *m.MonthlyCapCents, Currency: m.Currency}
		p.MonthlyCap = &cap
	}
	return p, nil
}

// ==================== Charge definition models ====================

type chargeDefinitionModel struct {
	grove.BaseModel `grove:"table:billrun_charge_definitions"`

	ID          string    `grove:"id,pk"        bson:"_id"`
	VendorID    string    `grove:"vendor_id"    bson:"vendor_id"`
	ProjectID   string    `grove:"project_id"   bson:"project_id"`
	Description string    `grove:"description"  bson:"description"`
	AmountCents int64     `grove:"amount_cents" bson:"amount_cents"`
	Currency    string    `grove:"currency"     bson:"currency"`
	TaxRate     string    `grove:"tax_rate"     bson:"tax_rate"`
	SortOrder   int       `grove:"sort_order"   bson:"sort_order"`
	Active      bool      `grove:"active"       bson:"active"`
	CreatedAt   time.Time `grove:"created_at"   bson:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"   bson:"updated_at"`
}

func toChargeDefinitionModel(d *billable.ChargeDefinition) *chargeDefinitionModel {
	return &chargeDefinitionModel{
		ID:          d.ID.String(),
		VendorID:    d.VendorID,
		ProjectID:   d.ProjectID,
		Description: d.Description,
		AmountCents: d.Amount.Amount,
		Currency:    d.Amount.Currency,
		TaxRate:     d.TaxRate.Key(),
		SortOrder:   d.SortOrder,
		Active:      d.Active,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func fromChargeDefinitionModel(m *chargeDefinitionModel) (*billable.ChargeDefinition, error) {
	chargeID, err := id.ParseChargeID(m.ID)
	if err != nil {
		return nil, err
	}
	rate, err := types.ParseTaxRate(m.TaxRate)
	if err != nil {
		return nil, err
	}

	return &billable.ChargeDefinition{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          chargeID,
		VendorID:    m.VendorID,
		ProjectID:   m.ProjectID,
		Description: m.Description,
		Amount:      types.Money{Amount: m.AmountCents, Currency: m.Currency},
		TaxRate:     rate,
		SortOrder:   m.SortOrder,
		Active:      m.Active,
	}, nil
}

// ==================== Billable item models ====================

// itemModel flattens the closed item set into one collection. The
// kind field discriminates; kind-specific fields are zero for the
// other kinds.
type itemModel struct {
	grove.BaseModel `grove:"table:billrun_items"`

	ID          string `grove:"id,pk"        bson:"_id"`
	Kind        string `grove:"kind"         bson:"kind"`
	VendorID    string `grove:"vendor_id"    bson:"vendor_id"`
	ProjectID   string `grove:"project_id"   bson:"project_id"`
	Description string `grove:"description"  bson:"description"`
	Status      string `grove:"status"       bson:"status"`
	Currency    string `grove:"currency"     bson:"currency"`
	AmountCents int64  `grove:"amount_cents" bson:"amount_cents"`
	TaxRate     string `grove:"tax_rate"     bson:"tax_rate"`

	ChargeID    string `grove:"charge_id"    bson:"charge_id"`
	PeriodLabel string `grove:"period_label" bson:"period_label"`
	SortOrder   int    `grove:"sort_order"   bson:"sort_order"`

	EntryDate       *time.Time `grove:"entry_date"        bson:"entry_date,omitempty"`
	Minutes         int64      `grove:"minutes"           bson:"minutes"`
	BlockMinutes    int64      `grove:"block_minutes"     bson:"block_minutes"`
	HourlyRateCents int64      `grove:"hourly_rate_cents" bson:"hourly_rate_cents"`

	Hundredths       int64 `grove:"hundredths"          bson:"hundredths"`
	RatePerMileCents int64 `grove:"rate_per_mile_cents" bson:"rate_per_mile_cents"`

	RunID     string    `grove:"run_id"     bson:"run_id"`
	InvoiceID string    `grove:"invoice_id" bson:"invoice_id"`
	SplitFrom string    `grove:"split_from" bson:"split_from"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func toItemModel(item billable.Item) *itemModel {
	m := &itemModel{
		ID:          item.ItemID().String(),
		Kind:        string(item.Kind()),
		VendorID:    item.Vendor(),
		ProjectID:   item.Project(),
		Status:      string(item.State()),
		Currency:    item.ExTax().Currency,
		AmountCents: item.ExTax().Amount,
		TaxRate:     item.Rate().Key(),
	}

	switch v := item.(type) {
	case *billable.RecurringCharge:
		m.Description = v.Description
		m.ChargeID = idString(v.ChargeID)
		m.PeriodLabel = v.PeriodLabel
		m.SortOrder = v.SortOrder
		m.RunID = idString(v.RunID)
		m.InvoiceID = idString(v.InvoiceID)
		m.SplitFrom = idString(v.SplitFrom)
		m.CreatedAt = v.CreatedAt
		m.UpdatedAt = v.UpdatedAt
	case *billable.TimeEntry:
		m.Description = v.Description
		if !v.EntryDate.IsZero() {
			d := v.EntryDate
			m.EntryDate = &d
		}
		m.Minutes = v.Minutes
		m.BlockMinutes = v.BlockMinutes
		m.HourlyRateCents = v.HourlyRate.Amount
		m.RunID = idString(v.RunID)
		m.InvoiceID = idString(v.InvoiceID)
		m.SplitFrom = idString(v.SplitFrom)
		m.CreatedAt = v.CreatedAt
		m.UpdatedAt = v.UpdatedAt
	case *billable.MileageEntry:
		m.Description = v.Description
		if !v.EntryDate.IsZero() {
			d := v.EntryDate
			m.EntryDate = &d
		}
		m.Hundredths = v.Hundredths
		m.RatePerMileCents = v.RatePerMile.Amount
		m.RunID = idString(v.RunID)
		m.InvoiceID = idString(v.InvoiceID)
		m.SplitFrom = idString(v.SplitFrom)
		m.CreatedAt = v.CreatedAt
		m.UpdatedAt = v.UpdatedAt
	}
	return m
}

func fromItemModel(m *itemModel) (billable.Item, error) {
	itemID, err := id.Parse(m.ID)
	if err != nil {
		return nil, err
	}
	rate, err := types.ParseTaxRate(m.TaxRate)
	if err != nil {
		return nil, err
	}
	runID, err := parseOptionalID(m.RunID)
	if err != nil {
		return nil, err
	}
	invoiceID, err := parseOptionalID(m.InvoiceID)
	if err != nil {
		return nil, err
	}
	splitFrom, err := parseOptionalID(m.SplitFrom)
	if err != nil {
		return nil, err
	}

	entity := types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}
	amount := types.Money{Amount: m.AmountCents, Currency: m.Currency}
	status := billable.Status(m.Status)

	var entryDate time.Time
	if m.EntryDate != nil {
		entryDate = *m.EntryDate
	}

	switch billable.Kind(m.Kind) {
	case billable.KindCharge:
		chargeID, err := parseOptionalID(m.ChargeID)
		if err != nil {
			return nil, err
		}
		return &billable.RecurringCharge{
			Entity:      entity,
			ID:          itemID,
			VendorID:    m.VendorID,
			ChargeID:    chargeID,
			ProjectID:   m.ProjectID,
			Description: m.Description,
			PeriodLabel: m.PeriodLabel,
			SortOrder:   m.SortOrder,
			Amount:      amount,
			TaxRate:     rate,
			Status:      status,
			RunID:       runID,
			InvoiceID:   invoiceID,
			SplitFrom:   splitFrom,
		}, nil
	case billable.KindTime:
		return &billable.TimeEntry{
			Entity:       entity,
			ID:           itemID,
			VendorID:     m.VendorID,
			ProjectID:    m.ProjectID,
			Description:  m.Description,
			EntryDate:    entryDate,
			Minutes:      m.Minutes,
			BlockMinutes: m.BlockMinutes,
			HourlyRate:   types.Money{Amount: m.HourlyRateCents, Currency: m.Currency},
			Amount:       amount,
			TaxRate:      rate,
			Status:       status,
			RunID:        runID,
			InvoiceID:    invoiceID,
			SplitFrom:    splitFrom,
		}, nil
	case billable.KindMileage:
		return &billable.MileageEntry{
			Entity:      entity,
			ID:          itemID,
			VendorID:    m.VendorID,
			ProjectID:   m.ProjectID,
			Description: m.Description,
			EntryDate:   entryDate,
			Hundredths:  m.Hundredths,
			RatePerMile: types.Money{Amount: m.RatePerMileCents, Currency: m.Currency},
			Amount:      amount,
			TaxRate:     rate,
			Status:      status,
			RunID:       runID,
			InvoiceID:   invoiceID,
			SplitFrom:   splitFrom,
		}, nil
	default:
		return nil, errUnknownKind(m.Kind)
	}
}

// ==================== Run models ====================

type runModel struct {
	grove.BaseModel `grove:"table:billrun_runs"`

	ID                  string     `grove:"id,pk"                 bson:"_id"`
	VendorID            string     `grove:"vendor_id"             bson:"vendor_id"`
	PeriodLabel         string     `grove:"period_label"          bson:"period_label"`
	Status              string     `grove:"status"                bson:"status"`
	InvoiceID           string     `grove:"invoice_id"            bson:"invoice_id"`
	SelectedItems       []string   `grove:"selected_items"        bson:"selected_items,omitempty"`
	CarriedForwardCents int64      `grove:"carried_forward_cents" bson:"carried_forward_cents"`
	Currency            string     `grove:"currency"              bson:"currency"`
	ErrorMessage        string     `grove:"error_message"         bson:"error_message"`
	StartedAt           time.Time  `grove:"started_at"            bson:"started_at"`
	CompletedAt         *time.Time `grove:"completed_at"          bson:"completed_at,omitempty"`
	CreatedAt           time.Time  `grove:"created_at"            bson:"created_at"`
	UpdatedAt           time.Time  `grove:"updated_at"            bson:"updated_at"`
}

func toRunModel(r *run.Run) *runModel {
	return &runModel{
		ID:                  r.ID.String(),
		VendorID:            r.VendorID,
		PeriodLabel:         r.PeriodLabel,
		Status:              string(r.Status),
		InvoiceID:           idString(r.InvoiceID),
		SelectedItems:       r.SelectedItems,
		CarriedForwardCents: r.CarriedForward.Amount,
		Currency:            r.CarriedForward.Currency,
		ErrorMessage:        r.ErrorMessage,
		StartedAt:           r.StartedAt,
		CompletedAt:         r.CompletedAt,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

func fromRunModel(m *runModel) (*run.Run, error) {
	runID, err := id.ParseRunID(m.ID)
	if err != nil {
		return nil, err
	}
	invoiceID, err := parseOptionalID(m.InvoiceID)
	if err != nil {
		return nil, err
	}

	return &run.Run{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             runID,
		VendorID:       m.VendorID,
		PeriodLabel:    m.PeriodLabel,
		Status:         run.Status(m.Status),
		InvoiceID:      invoiceID,
		SelectedItems:  m.SelectedItems,
		CarriedForward: types.Money{Amount: m.CarriedForwardCents, Currency: m.Currency},
		ErrorMessage:   m.ErrorMessage,
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
	}, nil
}

// ==================== Invoice models ====================

type invoiceModel struct {
	grove.BaseModel `grove:"table:billrun_invoices"`

	ID              string          `grove:"id,pk"             bson:"_id"`
	RunID           string          `grove:"run_id"            bson:"run_id"`
	VendorID        string          `grove:"vendor_id"         bson:"vendor_id"`
	Number          string          `grove:"number"            bson:"number"`
	Status          string          `grove:"status"            bson:"status"`
	Mode            string          `grove:"mode"              bson:"mode"`
	Currency        string          `grove:"currency"          bson:"currency"`
	PeriodLabel     string          `grove:"period_label"      bson:"period_label"`
	SubtotalCents   int64           `grove:"subtotal_cents"       bson:"subtotal_cents"`
	DiscountCents   int64           `grove:"discount_total_cents" bson:"discount_total_cents"`
	TaxTotalCents   int64           `grove:"tax_total_cents"      bson:"tax_total_cents"`
	TotalCents      int64           `grove:"total_cents"       bson:"total_cents"`
	AmountPaidCents int64           `grove:"amount_paid_cents" bson:"amount_paid_cents"`
	Lines           []lineItemModel `grove:"lines"             bson:"lines"`
	Memo            []string        `grove:"memo"              bson:"memo,omitempty"`
	DueDate         *time.Time      `grove:"due_date"          bson:"due_date,omitempty"`
	SentAt          *time.Time      `grove:"sent_at"           bson:"sent_at,omitempty"`
	PaidAt          *time.Time      `grove:"paid_at"           bson:"paid_at,omitempty"`
	PaymentRef      string          `grove:"payment_ref"       bson:"payment_ref"`
	CreatedAt       time.Time       `grove:"created_at"        bson:"created_at"`
	UpdatedAt       time.Time       `grove:"updated_at"        bson:"updated_at"`
}

type lineItemModel struct {
	ID              string `bson:"id"`
	InvoiceID       string `bson:"invoice_id"`
	ProjectID       string `bson:"project_id"`
	Description     string `bson:"description"`
	Quantity        string `bson:"quantity"`
	UnitAmountCents int64  `bson:"unit_amount_cents"`
	AmountCents     int64  `bson:"amount_cents"`
	DiscountPct     string `bson:"discount_pct"`
	TaxCents        int64  `bson:"tax_cents"`
	Currency        string `bson:"currency"`
	TaxRate         string `bson:"tax_rate"`
	SortOrder       int    `bson:"sort_order"`
}

func toInvoiceModel(inv *invoice.Invoice) *invoiceModel {
	lines := make([]lineItemModel, len(inv.Lines))
	for i, li := range inv.Lines {
		lines[i] = lineItemModel{
			ID:              li.ID.String(),
			InvoiceID:       idString(li.InvoiceID),
			ProjectID:       li.ProjectID,
			Description:     li.Description,
			Quantity:        li.Quantity.String(),
			UnitAmountCents: li.UnitAmount.Amount,
			AmountCents:     li.Amount.Amount,
			DiscountPct:     li.DiscountPct.String(),
			TaxCents:        li.Tax.Amount,
			Currency:        li.Amount.Currency,
			TaxRate:         li.TaxRate.Key(),
			SortOrder:       li.SortOrder,
		}
	}

	return &invoiceModel{
		ID:              inv.ID.String(),
		RunID:           idString(inv.RunID),
		VendorID:        inv.VendorID,
		Number:          inv.Number,
		Status:          string(inv.Status),
		Mode:            string(inv.Mode),
		Currency:        inv.Currency,
		PeriodLabel:     inv.PeriodLabel,
		SubtotalCents:   inv.Subtotal.Amount,
		DiscountCents:   inv.DiscountTotal.Amount,
		TaxTotalCents:   inv.TaxTotal.Amount,
		TotalCents:      inv.Total.Amount,
		AmountPaidCents: inv.AmountPaid.Amount,
		Lines:           lines,
		Memo:            inv.Memo,
		DueDate:         inv.DueDate,
		SentAt:          inv.SentAt,
		PaidAt:          inv.PaidAt,
		PaymentRef:      inv.PaymentRef,
		CreatedAt:       inv.CreatedAt,
		UpdatedAt:       inv.UpdatedAt,
	}
}

func fromInvoiceModel(m *invoiceModel) (*invoice.Invoice, error) {
	invoiceID, err := id.ParseInvoiceID(m.ID)
	if err != nil {
		return nil, err
	}
	runID, err := parseOptionalID(m.RunID)
	if err != nil {
		return nil, err
	}

	lines := make([]invoice.LineItem, len(m.Lines))
	for i, lm := range m.Lines {
		lineID, err := parseOptionalID(lm.ID)
		if err != nil {
			return nil, err
		}
		lineInvoiceID, err := parseOptionalID(lm.InvoiceID)
		if err != nil {
			return nil, err
		}
		qty, err := decimal.NewFromString(lm.Quantity)
		if err != nil {
			return nil, err
		}
		discount := decimal.Zero
		if lm.DiscountPct != "" {
			discount, err = decimal.NewFromString(lm.DiscountPct)
			if err != nil {
				return nil, err
			}
		}
		rate, err := types.ParseTaxRate(lm.TaxRate)
		if err != nil {
			return nil, err
		}
		lines[i] = invoice.LineItem{
			ID:          lineID,
			InvoiceID:   lineInvoiceID,
			ProjectID:   lm.ProjectID,
			Description: lm.Description,
			Quantity:    qty,
			UnitAmount:  types.Money{Amount: lm.UnitAmountCents, Currency: lm.Currency},
			Amount:      types.Money{Amount: lm.AmountCents, Currency: lm.Currency},
			DiscountPct: discount,
			Tax:         types.Money{Amount: lm.TaxCents, Currency: lm.Currency},
			TaxRate:     rate,
			SortOrder:   lm.SortOrder,
		}
	}

	return &invoice.Invoice{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            invoiceID,
		RunID:         runID,
		VendorID:      m.VendorID,
		Number:        m.Number,
		Status:        invoice.Status(m.Status),
		Mode:          invoice.Mode(m.Mode),
		Currency:      m.Currency,
		PeriodLabel:   m.PeriodLabel,
		Subtotal:      types.Money{Amount: m.SubtotalCents, Currency: m.Currency},
		DiscountTotal: types.Money{Amount: m.DiscountCents, Currency: m.Currency},
		TaxTotal:      types.Money{Amount: m.TaxTotalCents, Currency: m.Currency},
		Total:         types.Money{Amount: m.TotalCents, Currency: m.Currency},
		AmountPaid:    types.Money{Amount: m.AmountPaidCents, Currency: m.Currency},
		Lines:         lines,
		Memo:          m.Memo,
		DueDate:       m.DueDate,
		SentAt:        m.SentAt,
		PaidAt:        m.PaidAt,
		PaymentRef:    m.PaymentRef,
	}, nil
}

// ==================== Helpers ====================

// idString renders an ID as text, with nil IDs as the empty string.
func idString(v id.ID) string {
	if v.IsNil() {
		return ""
	}
	return v.String()
}

// parseOptionalID parses an ID field where the empty string means no
// reference.
func parseOptionalID(s string) (id.ID, error) {
	if s == "" {
		return id.Nil, nil
	}
	return id.Parse(s)
}
