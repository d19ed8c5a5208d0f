package invoice_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/billrun/billable"
	"github.com/xraph/billrun/id"
	"github.com/xraph/billrun/invoice"
	"github.com/xraph/billrun/types"
)

func charge(amount int64, desc, period string, rate types.TaxRate) *billable.RecurringCharge {
	def := &billable.ChargeDefinition{
		Entity:      types.NewEntity(),
		ID:          id.NewChargeID(),
		VendorID:    "vendor-1",
		ProjectID:   "proj-a",
		Description: desc,
		Amount:      types.USD(amount),
		TaxRate:     rate,
		Active:      true,
	}
	return def.Instance(period)
}

func timeEntry(t *testing.T, project string, minutes, hourlyRate int64) *billable.TimeEntry {
	t.Helper()
	e, err := billable.NewTimeEntry("vendor-1", project, "Work", minutes, types.USD(hourlyRate), types.TaxPercent(20))
	require.NoError(t, err)
	return e
}

func TestItemizedDraft(t *testing.T) {
	mileage, err := billable.NewMileageEntry("vendor-1", "proj-a", "Visit", 1000, types.USD(67), types.TaxPercent(20))
	require.NoError(t, err)

	items := []billable.Item{
		charge(5000, "Hosting", "2026-07", types.TaxPercent(20)),
		charge(2000, "Backup", "2026-06", types.TaxPercent(20)), // carried forward
		timeEntry(t, "proj-a", 60, 12000),
		timeEntry(t, "proj-a", 30, 12000),
		timeEntry(t, "proj-b", 60, 9000),
		mileage,
	}

	d := invoice.Itemized(invoice.MaterializeInput{
		VendorID:    "vendor-1",
		PeriodLabel: "2026-07",
		Currency:    "usd",
		Items:       items,
	})

	require.Len(t, d.Lines, 5)

	assert.Equal(t, "Hosting", d.Lines[0].Description)
	assert.Equal(t, "Backup (2026-06)", d.Lines[1].Description, "carried-forward charge names its period")

	// Time grouped per project: 90 min at $120/hr.
	assert.Equal(t, "Time charges — proj-a", d.Lines[2].Description)
	assert.Equal(t, "1.5", d.Lines[2].Quantity.String())
	assert.Equal(t, int64(18000), d.Lines[2].Amount.Amount)
	assert.Equal(t, int64(12000), d.Lines[2].UnitAmount.Amount)

	assert.Equal(t, "Time charges — proj-b", d.Lines[3].Description)
	assert.Equal(t, int64(9000), d.Lines[3].Amount.Amount)

	assert.Equal(t, "Mileage", d.Lines[4].Description)
	assert.Equal(t, "10", d.Lines[4].Quantity.String())
	assert.Equal(t, int64(670), d.Lines[4].Amount.Amount)
}

func TestItemizedTotalMatchesItems(t *testing.T) {
	items := []billable.Item{
		charge(333, "A", "2026-07", types.TaxPercent(20)),
		charge(667, "B", "2026-07", types.TaxPercent(20)),
	}

	d := invoice.Itemized(invoice.MaterializeInput{
		VendorID: "vendor-1", PeriodLabel: "2026-07", Currency: "usd", Items: items,
	})
	totals := d.Totalize()

	assert.Equal(t, int64(1000), totals.Subtotal.Amount)
	// Per-line tax: 333 -> 400 (399.6), 667 -> 800 (800.4); totals are
	// sums of rounded lines, never a re-rounded aggregate.
	assert.Equal(t, int64(1200), totals.Total.Amount)
}

func TestGroupedLinesSumPerItemTax(t *testing.T) {
	// Two 2¢ entries at 20%: each rounds to 0¢ tax on its own, so the
	// grouped line must carry 0¢ tax, not TaxOn(4¢) = 1¢.
	items := []billable.Item{
		timeEntry(t, "proj-a", 15, 8),
		timeEntry(t, "proj-a", 15, 8),
	}

	d := invoice.Itemized(invoice.MaterializeInput{
		VendorID: "vendor-1", PeriodLabel: "2026-07", Currency: "usd", Items: items,
	})

	require.Len(t, d.Lines, 1)
	assert.Equal(t, int64(4), d.Lines[0].Amount.Amount)
	assert.Equal(t, int64(0), d.Lines[0].TaxAmount().Amount)

	totals := d.Totalize()
	assert.Equal(t, int64(4), totals.Total.Amount)
}

func TestMixedMileageRatesCollapse(t *testing.T) {
	m1, err := billable.NewMileageEntry("vendor-1", "proj-a", "A", 500, types.USD(67), types.TaxPercent(20))
	require.NoError(t, err)
	m2, err := billable.NewMileageEntry("vendor-1", "proj-a", "B", 500, types.USD(45), types.TaxPercent(20))
	require.NoError(t, err)

	d := invoice.Itemized(invoice.MaterializeInput{
		VendorID: "vendor-1", PeriodLabel: "2026-07", Currency: "usd",
		Items: []billable.Item{m1, m2},
	})

	require.Len(t, d.Lines, 1)
	assert.True(t, d.Lines[0].UnitAmount.IsZero(), "mixed rates show no unit price")
	assert.Equal(t, m1.Amount.Add(m2.Amount), d.Lines[0].Amount)
}

func TestStatementDraft(t *testing.T) {
	t.Run("groups by tax rate", func(t *testing.T) {
		items := []billable.Item{
			charge(10000, "A", "2026-07", types.TaxPercent(20)),
			charge(5000, "B", "2026-07", types.TaxPercent(0)),
			charge(2000, "C", "2026-07", types.TaxPercent(20)),
		}

		d, err := invoice.Statement(invoice.MaterializeInput{
			VendorID: "vendor-1", PeriodLabel: "2026-07", Currency: "usd", Items: items,
		}, types.TaxPercent(20), nil)
		require.NoError(t, err)

		require.Len(t, d.Lines, 2)
		assert.Equal(t, int64(12000), d.Lines[0].Amount.Amount)
		assert.Equal(t, int64(5000), d.Lines[1].Amount.Amount)
	})

	t.Run("tops up to the capped total exactly", func(t *testing.T) {
		items := []billable.Item{charge(58300, "A", "2026-07", types.TaxPercent(20))}
		target := types.USD(70000)

		d, err := invoice.Statement(invoice.MaterializeInput{
			VendorID: "vendor-1", PeriodLabel: "2026-07", Currency: "usd", Items: items,
		}, types.TaxPercent(20), &target)
		require.NoError(t, err)

		totals := d.Totalize()
		assert.Equal(t, int64(70000), totals.Total.Amount)
	})

	t.Run("unreachable target fails the draft", func(t *testing.T) {
		items := []billable.Item{charge(7, "A", "2026-07", types.TaxPercent(20))}
		target := types.USD(9) // no ex-tax amount rounds to 9 at 20%

		_, err := invoice.Statement(invoice.MaterializeInput{
			VendorID: "vendor-1", PeriodLabel: "2026-07", Currency: "usd", Items: items,
		}, types.TaxPercent(20), &target)
		require.ErrorIs(t, err, types.ErrTargetUnreachable)
	})
}

func TestDraftMaterialize(t *testing.T) {
	items := []billable.Item{charge(5000, "Hosting", "2026-07", types.TaxPercent(20))}
	d := invoice.Itemized(invoice.MaterializeInput{
		VendorID: "vendor-1", PeriodLabel: "2026-07", Currency: "usd", Items: items,
	})

	runID := id.NewRunID()
	inv := d.Materialize(runID, invoice.FormatNumber(42), nil)

	assert.Equal(t, "INV-000042", inv.Number)
	assert.Equal(t, runID, inv.RunID)
	assert.Equal(t, invoice.StatusOpen, inv.Status)
	assert.Equal(t, int64(5000), inv.Subtotal.Amount)
	assert.Equal(t, int64(6000), inv.Total.Amount)

	require.Len(t, inv.Lines, 1)
	assert.Equal(t, inv.ID, inv.Lines[0].InvoiceID)
	assert.False(t, inv.Lines[0].ID.IsNil())

	assert.Equal(t, int64(6000), inv.Balance().Amount)
	assert.True(t, inv.Outstanding())
}
