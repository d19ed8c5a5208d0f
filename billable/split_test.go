package billable_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/billrun/billable"
	"github.com/xraph/billrun/id"
	"github.com/xraph/billrun/types"
)

func testCharge(amount int64) *billable.RecurringCharge {
	def := &billable.ChargeDefinition{
		Entity:      types.NewEntity(),
		ID:          id.NewChargeID(),
		VendorID:    "vendor-1",
		ProjectID:   "proj-a",
		Description: "Monthly retainer",
		Amount:      types.USD(amount),
		TaxRate:     types.TaxPercent(20),
		Active:      true,
	}
	return def.Instance("2026-07")
}

func TestRecurringChargeSplit(t *testing.T) {
	t.Run("conserves the ex-tax amount", func(t *testing.T) {
		orig := testCharge(1000)
		retained, remainder, err := orig.SplitAt(301)
		require.NoError(t, err)

		assert.Equal(t, int64(301), retained.ExTax().Amount)
		assert.Equal(t, int64(699), remainder.ExTax().Amount)
		assert.Equal(t, orig.ExTax(), retained.ExTax().Add(remainder.ExTax()))
	})

	t.Run("retained keeps identity, remainder is new", func(t *testing.T) {
		orig := testCharge(1000)
		retained, remainder, err := orig.SplitAt(400)
		require.NoError(t, err)

		assert.Equal(t, orig.ID, retained.ItemID())
		assert.NotEqual(t, orig.ID, remainder.ItemID())

		rem := remainder.(*billable.RecurringCharge)
		assert.Equal(t, billable.StatusUnbilled, rem.Status)
		assert.True(t, rem.RunID.IsNil())
		assert.True(t, rem.InvoiceID.IsNil())
		assert.Equal(t, orig.ID, rem.SplitFrom)
		assert.Equal(t, orig.ChargeID, rem.ChargeID)
	})

	t.Run("rejects out-of-range split points", func(t *testing.T) {
		orig := testCharge(1000)
		for _, q := range []int64{0, -5, 1000, 1500} {
			_, _, err := orig.SplitAt(q)
			assert.Error(t, err, "split point %d", q)
		}
	})

	t.Run("single-unit item cannot be split", func(t *testing.T) {
		orig := testCharge(1)
		_, _, err := orig.SplitAt(1)
		assert.Error(t, err)
	})
}

func TestTimeEntrySplit(t *testing.T) {
	t.Run("splits at block boundaries with exact conservation", func(t *testing.T) {
		// $100.01/hr over 90 minutes: 15001.5 rounds to 15002.
		entry, err := billable.NewTimeEntry("vendor-1", "proj-a", "Consulting", 90, types.USD(10001), types.TaxPercent(20))
		require.NoError(t, err)
		require.Equal(t, int64(15002), entry.Amount.Amount)
		require.Equal(t, int64(6), entry.SplitQuanta())

		retained, remainder, err := entry.SplitAt(3)
		require.NoError(t, err)

		// Retained is re-priced from the rate: 45 min at $100.01/hr.
		assert.Equal(t, int64(7501), retained.ExTax().Amount)
		// Remainder takes whatever is left, so nothing leaks in rounding.
		assert.Equal(t, int64(7501), remainder.ExTax().Amount)
		assert.Equal(t, entry.Amount, retained.ExTax().Add(remainder.ExTax()))

		ret := retained.(*billable.TimeEntry)
		rem := remainder.(*billable.TimeEntry)
		assert.Equal(t, int64(45), ret.Minutes)
		assert.Equal(t, int64(45), rem.Minutes)
		assert.Equal(t, entry.ID, rem.SplitFrom)
	})

	t.Run("defaults to 15 minute blocks", func(t *testing.T) {
		entry, err := billable.NewTimeEntry("vendor-1", "proj-a", "Review", 60, types.USD(12000), types.TaxPercent(0))
		require.NoError(t, err)
		assert.Equal(t, int64(4), entry.SplitQuanta())
	})

	t.Run("custom block size changes granularity", func(t *testing.T) {
		entry, err := billable.NewTimeEntry("vendor-1", "proj-a", "Call", 60, types.USD(6000), types.TaxPercent(0))
		require.NoError(t, err)
		entry.BlockMinutes = 30
		assert.Equal(t, int64(2), entry.SplitQuanta())

		retained, remainder, splitErr := entry.SplitAt(1)
		require.NoError(t, splitErr)
		assert.Equal(t, int64(30), retained.(*billable.TimeEntry).Minutes)
		assert.Equal(t, int64(30), remainder.(*billable.TimeEntry).Minutes)
	})

	t.Run("rejects invalid construction", func(t *testing.T) {
		_, err := billable.NewTimeEntry("vendor-1", "proj-a", "Bad", 0, types.USD(6000), types.TaxPercent(0))
		assert.Error(t, err)

		_, err = billable.NewTimeEntry("vendor-1", "proj-a", "Bad", 60, types.USD(0), types.TaxPercent(0))
		assert.Error(t, err)
	})
}

func TestMileageEntrySplit(t *testing.T) {
	t.Run("splits at hundredth-of-a-mile boundaries", func(t *testing.T) {
		// 12.34 miles at $0.67/mile: 826.78 rounds to 827.
		entry, err := billable.NewMileageEntry("vendor-1", "proj-b", "Site visit", 1234, types.USD(67), types.TaxPercent(20))
		require.NoError(t, err)
		require.Equal(t, int64(827), entry.Amount.Amount)

		retained, remainder, err := entry.SplitAt(600)
		require.NoError(t, err)

		// 6.00 miles at $0.67 = 402 exactly.
		assert.Equal(t, int64(402), retained.ExTax().Amount)
		assert.Equal(t, int64(425), remainder.ExTax().Amount)
		assert.Equal(t, entry.Amount, retained.ExTax().Add(remainder.ExTax()))

		assert.Equal(t, int64(600), retained.(*billable.MileageEntry).Hundredths)
		assert.Equal(t, int64(634), remainder.(*billable.MileageEntry).Hundredths)
	})

	t.Run("miles presentation", func(t *testing.T) {
		entry, err := billable.NewMileageEntry("vendor-1", "proj-b", "Trip", 1250, types.USD(67), types.TaxPercent(0))
		require.NoError(t, err)
		assert.Equal(t, "12.5", entry.Miles().String())
	})
}

func TestChargeDefinition(t *testing.T) {
	t.Run("instance inherits definition fields", func(t *testing.T) {
		def := &billable.ChargeDefinition{
			Entity:      types.NewEntity(),
			ID:          id.NewChargeID(),
			VendorID:    "vendor-1",
			ProjectID:   "proj-a",
			Description: "Hosting",
			Amount:      types.USD(5000),
			TaxRate:     types.TaxPercent(20),
			SortOrder:   2,
			Active:      true,
		}

		inst := def.Instance("2026-07")
		assert.Equal(t, def.VendorID, inst.VendorID)
		assert.Equal(t, def.ID, inst.ChargeID)
		assert.Equal(t, "2026-07", inst.PeriodLabel)
		assert.Equal(t, def.Amount, inst.Amount)
		assert.Equal(t, billable.StatusUnbilled, inst.Status)
		assert.Equal(t, int64(6000), inst.IncTax().Amount)
	})

	t.Run("validate", func(t *testing.T) {
		def := &billable.ChargeDefinition{VendorID: "vendor-1", Description: "Hosting", Amount: types.USD(100)}
		assert.NoError(t, def.Validate())

		def.Amount = types.USD(0)
		assert.Error(t, def.Validate())

		def.Amount = types.USD(100)
		def.VendorID = " "
		assert.Error(t, def.Validate())
	})
}
