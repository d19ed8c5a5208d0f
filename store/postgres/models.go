package postgres

import (
	"encoding/json"
	"time"

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

	VendorID        string    `grove:"vendor_id,pk"`
	Name            string    `grove:"name"`
	Email           string    `grove:"email"`
	Currency        string    `grove:"currency"`
	Mode            string    `grove:"mode"`
	MonthlyCapCents *int64    `grove:"monthly_cap_cents"`
	PrimaryTax      string    `grove:"primary_tax"`
	DueDays         int       `grove:"due_days"`
	Active          bool      `grove:"active"`
	CreatedAt       time.Time `grove:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"`
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

	ID          string    `grove:"id,pk"`
	VendorID    string    `grove:"vendor_id"`
	ProjectID   string    `grove:"project_id"`
	Description string    `grove:"description"`
	AmountCents int64     `grove:"amount_cents"`
	Currency    string    `grove:"currency"`
	TaxRate     string    `grove:"tax_rate"`
	SortOrder   int       `grove:"sort_order"`
	Active      bool      `grove:"active"`
	CreatedAt   time.Time `grove:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"`
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

// itemModel flattens the closed item set into one table. The kind
// column discriminates; kind-specific columns are zero for the other
// kinds.
type itemModel struct {
	grove.BaseModel `grove:"table:billrun_items"`

	ID          string `grove:"id,pk"`
	Kind        string `grove:"kind"`
	VendorID    string `grove:"vendor_id"`
	ProjectID   string `grove:"project_id"`
	Description string `grove:"description"`
	Status      string `grove:"status"`
	Currency    string `grove:"currency"`
	AmountCents int64  `grove:"amount_cents"`
	TaxRate     string `grove:"tax_rate"`

	// Charge instance columns
	ChargeID    string `grove:"charge_id"`
	PeriodLabel string `grove:"period_label"`
	SortOrder   int    `grove:"sort_order"`

	// Time entry columns
	EntryDate       *time.Time `grove:"entry_date"`
	Minutes         int64      `grove:"minutes"`
	BlockMinutes    int64      `grove:"block_minutes"`
	HourlyRateCents int64      `grove:"hourly_rate_cents"`

	// Mileage entry columns
	Hundredths       int64 `grove:"hundredths"`
	RatePerMileCents int64 `grove:"rate_per_mile_cents"`

	RunID     string    `grove:"run_id"`
	InvoiceID string    `grove:"invoice_id"`
	SplitFrom string    `grove:"split_from"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
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

	ID                  string          `grove:"id,pk"`
	VendorID            string          `grove:"vendor_id"`
	PeriodLabel         string          `grove:"period_label"`
	Status              string          `grove:"status"`
	InvoiceID           string          `grove:"invoice_id"`
	SelectedItems       json.RawMessage `grove:"selected_items,type:jsonb"`
	CarriedForwardCents int64           `grove:"carried_forward_cents"`
	Currency            string          `grove:"currency"`
	ErrorMessage        string          `grove:"error_message"`
	StartedAt           time.Time       `grove:"started_at"`
	CompletedAt         *time.Time      `grove:"completed_at"`
	CreatedAt           time.Time       `grove:"created_at"`
	UpdatedAt           time.Time       `grove:"updated_at"`
}

func toRunModel(r *run.Run) *runModel {
	selected, _ := json.Marshal(r.SelectedItems) //nolint:errcheck // best-effort

	return &runModel{
		ID:                  r.ID.String(),
		VendorID:            r.VendorID,
		PeriodLabel:         r.PeriodLabel,
		Status:              string(r.Status),
		InvoiceID:           idString(r.InvoiceID),
		SelectedItems:       selected,
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

	var selected []string
	if len(m.SelectedItems) > 0 {
		_ = json.Unmarshal(m.SelectedItems, &selected) //nolint:errcheck // best-effort
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
		SelectedItems:  selected,
		CarriedForward: types.Money{Amount: m.CarriedForwardCents, Currency: m.Currency},
		ErrorMessage:   m.ErrorMessage,
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
	}, nil
}

// ==================== Invoice models ====================

type invoiceModel struct {
	grove.BaseModel `grove:"table:billrun_invoices"`

	ID              string          `grove:"id,pk"`
	RunID           string          `grove:"run_id"`
	VendorID        string          `grove:"vendor_id"`
	Number          string          `grove:"number"`
	Status          string          `grove:"status"`
	Mode            string          `grove:"mode"`
	Currency        string          `grove:"currency"`
	PeriodLabel     string          `grove:"period_label"`
	SubtotalCents   int64           `grove:"subtotal_cents"`
	DiscountCents   int64           `grove:"discount_total_cents"`
	TaxTotalCents   int64           `grove:"tax_total_cents"`
	TotalCents      int64           `grove:"total_cents"`
	AmountPaidCents int64           `grove:"amount_paid_cents"`
	Lines           json.RawMessage `grove:"lines,type:jsonb"`
	Memo            json.RawMessage `grove:"memo,type:jsonb"`
	DueDate         *time.Time      `grove:"due_date"`
	SentAt          *time.Time      `grove:"sent_at"`
	PaidAt          *time.Time      `grove:"paid_at"`
	PaymentRef      string          `grove:"payment_ref"`
	CreatedAt       time.Time       `grove:"created_at"`
	UpdatedAt       time.Time       `grove:"updated_at"`
}

func toInvoiceModel(inv *invoice.Invoice) *invoiceModel {
	lines, _ := json.Marshal(inv.Lines) //nolint:errcheck // best-effort
	memo, _ := json.Marshal(inv.Memo)   //nolint:errcheck // best-effort

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
		Memo:            memo,
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

	var lines []invoice.LineItem
	if len(m.Lines) > 0 {
		_ = json.Unmarshal(m.Lines, &lines) //nolint:errcheck // best-effort
	}
	var memo []string
	if len(m.Memo) > 0 {
		_ = json.Unmarshal(m.Memo, &memo) //nolint:errcheck // best-effort
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
		Memo:          memo,
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

// parseOptionalID parses an ID column where the empty string means
// no reference.
func parseOptionalID(s string) (id.ID, error) {
	if s == "" {
		return id.Nil, nil
	}
	return id.Parse(s)
}
