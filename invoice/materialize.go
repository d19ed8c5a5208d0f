package invoice

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xraph/billrun/billable"
	"github.com/xraph/billrun/types"
)

// MaterializeInput carries the allocated items a draft is built from.
type MaterializeInput struct {
	VendorID    string
	PeriodLabel string
	Currency    string
	Items       []billable.Item
}

// Itemized builds a draft with one line per charge and aggregated time
// and mileage lines. Line amounts are the items' ex-tax amounts summed
// directly, so the invoice total always equals the allocation total.
func Itemized(in MaterializeInput) *Draft {
	d := &Draft{
		VendorID:    in.VendorID,
		PeriodLabel: in.PeriodLabel,
		Currency:    in.Currency,
		Mode:        ModeItemized,
	}

	var times []*billable.TimeEntry
	var miles []*billable.MileageEntry

	for _, item := range in.Items {
		switch v := item.(type) {
		case *billable.RecurringCharge:
			d.Lines = append(d.Lines, chargeLine(v, in.PeriodLabel))
		case *billable.TimeEntry:
			times = append(times, v)
		case *billable.MileageEntry:
			miles = append(miles, v)
		}
	}

	d.Lines = append(d.Lines, timeLines(times)...)
	d.Lines = append(d.Lines, mileageLines(miles, in.Currency)...)
	return d
}

func chargeLine(c *billable.RecurringCharge, invoicePeriod string) LineItem {
	desc := c.Description
	if c.PeriodLabel != "" && c.PeriodLabel != invoicePeriod {
		// Carried-forward charges say which period they came from.
		desc = fmt.Sprintf("%s (%s)", desc, c.PeriodLabel)
	}
	return LineItem{
		ProjectID:   c.ProjectID,
		Description: desc,
		Quantity:    decimal.NewFromInt(1),
		UnitAmount:  c.Amount,
		Amount:      c.Amount,
		Tax:         types.TaxOn(c.Amount, c.TaxRate),
		TaxRate:     c.TaxRate,
	}
}

// timeLines aggregates time entries into one line per (project, rate)
// group, preserving first-appearance order.
func timeLines(entries []*billable.TimeEntry) []LineItem {
	type key struct {
		project string
		rate    string
	}
	var order []key
	groups := make(map[key][]*billable.TimeEntry)

	for _, e := range entries {
		k := key{project: e.ProjectID, rate: e.TaxRate.Key()}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], e)
	}

	lines := make([]LineItem, 0, len(order))
	for _, k := range order {
		group := groups[k]

		var minutes int64
		amount := types.Zero(group[0].Amount.Currency)
		tax := types.Zero(group[0].Amount.Currency)
		uniformRate := group[0].HourlyRate
		uniform := true
		for _, e := range group {
			minutes += e.Minutes
			amount = amount.Add(e.Amount)
			tax = tax.Add(types.TaxOn(e.Amount, e.TaxRate))
			if !e.HourlyRate.Equal(uniformRate) {
				uniform = false
			}
		}

		unit := types.Zero(amount.Currency)
		if uniform {
			unit = uniformRate
		}

		desc := "Time charges"
		if k.project != "" {
			desc = fmt.Sprintf("Time charges — %s", k.project)
		}

		lines = append(lines, LineItem{
			ProjectID:   k.project,
			Description: desc,
			Quantity:    decimal.NewFromInt(minutes).Div(decimal.NewFromInt(60)),
			UnitAmount:  unit,
			Amount:      amount,
			Tax:         tax,
			TaxRate:     group[0].TaxRate,
		})
	}
	return lines
}

// mileageLines aggregates mileage. With a single per-mile rate the
// line shows it; mixed rates collapse into one aggregate line with no
// unit price.
func mileageLines(entries []*billable.MileageEntry, currency string) []LineItem {
	if len(entries) == 0 {
		return nil
	}

	uniform := true
	for _, e := range entries[1:] {
		if !e.RatePerMile.Equal(entries[0].RatePerMile) {
			uniform = false
			break
		}
	}

	var hundredths int64
	amount := types.Zero(currency)
	tax := types.Zero(currency)
	for _, e := range entries {
		hundredths += e.Hundredths
		amount = amount.Add(e.Amount)
		tax = tax.Add(types.TaxOn(e.Amount, e.TaxRate))
	}

	unit := types.Zero(currency)
	if uniform {
		unit = entries[0].RatePerMile
	}

	return []LineItem{{
		ProjectID:   entries[0].ProjectID,
		Description: "Mileage",
		Quantity:    decimal.NewFromInt(hundredths).Div(decimal.NewFromInt(100)),
		UnitAmount:  unit,
		Amount:      amount,
		Tax:         tax,
		TaxRate:     entries[0].TaxRate,
	}}
}

// Statement builds a balance-style draft: one line per tax rate
// summing the allocated ex-tax amounts. When target is non-nil (a
// capped vendor), the primary-rate line is adjusted so the invoice's
// inc-tax total lands exactly on the target; if no ex-tax amount can
// reach it, the error from types.ExTaxForTarget propagates and the
// run fails rather than billing a near-miss.
func Statement(in MaterializeInput, primary types.TaxRate, target *types.Money) (*Draft, error) {
	d := &Draft{
		VendorID:    in.VendorID,
		PeriodLabel: in.PeriodLabel,
		Currency:    in.Currency,
		Mode:        ModeStatement,
	}

	var order []string
	buckets := make(map[string]*LineItem)
	for _, item := range in.Items {
		k := item.Rate().Key()
		line, ok := buckets[k]
		if !ok {
			line = &LineItem{
				Description: fmt.Sprintf("Services for %s — tax %s", in.PeriodLabel, item.Rate()),
				Quantity:    decimal.NewFromInt(1),
				Amount:      types.Zero(in.Currency),
				Tax:         types.Zero(in.Currency),
				TaxRate:     item.Rate(),
			}
			buckets[k] = line
			order = append(order, k)
		}
		line.Amount = line.Amount.Add(item.ExTax())
		line.Tax = line.Tax.Add(types.TaxOn(item.ExTax(), item.Rate()))
	}

	if target != nil {
		primaryKey := primary.Key()
		otherInc := types.Zero(in.Currency)
		for k, line := range buckets {
			if k != primaryKey {
				otherInc = otherInc.Add(line.TotalIncTax())
			}
		}

		lineTarget := target.Subtract(otherInc)
		if lineTarget.IsNegative() {
			return nil, fmt.Errorf("invoice: statement target %s is below the non-primary tax lines (%s)", target, otherInc)
		}

		ex, err := types.ExTaxForTarget(lineTarget, primary)
		if err != nil {
			return nil, err
		}

		line, ok := buckets[primaryKey]
		if !ok {
			line = &LineItem{
				Description: fmt.Sprintf("Services for %s — tax %s", in.PeriodLabel, primary),
				Quantity:    decimal.NewFromInt(1),
				TaxRate:     primary,
			}
			buckets[primaryKey] = line
			order = append(order, primaryKey)
		}
		line.Amount = ex
		line.Tax = lineTarget.Subtract(ex)
	}

	for _, k := range order {
		line := *buckets[k]
		line.UnitAmount = line.Amount
		d.Lines = append(d.Lines, line)
	}
	return d, nil
}
