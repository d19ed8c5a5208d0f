package allocator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/billrun/allocator"
	"github.com/xraph/billrun/billable"
	"github.com/xraph/billrun/id"
	"github.com/xraph/billrun/types"
)

func charge(amount int64, rate types.TaxRate) *billable.RecurringCharge {
	def := &billable.ChargeDefinition{
		Entity:      types.NewEntity(),
		ID:          id.NewChargeID(),
		VendorID:    "vendor-1",
		ProjectID:   "proj-a",
		Description: "Service",
		Amount:      types.USD(amount),
		TaxRate:     rate,
		Active:      true,
	}
	return def.Instance("2026-07")
}

func singleBlockTime(amount int64) *billable.TimeEntry {
	// One 15-minute block priced to exactly amount; quanta 1, so the
	// entry cannot be split.
	entry, err := billable.NewTimeEntry("vendor-1", "proj-a", "Call", 15, types.USD(amount*4), types.TaxPercent(0))
	if err != nil {
		panic(err)
	}
	return entry
}

func noTax() types.TaxRate { return types.TaxPercent(0) }

func TestAllocateNoCap(t *testing.T) {
	items := []billable.Item{charge(200, noTax()), charge(300, noTax())}

	res, err := allocator.Allocate(items, nil)
	require.NoError(t, err)

	assert.Len(t, res.Selected, 2)
	assert.Empty(t, res.Deferred)
	assert.Nil(t, res.Split)
	assert.Equal(t, int64(500), res.SelectedIncTax.Amount)
}

func TestAllocateEmpty(t *testing.T) {
	res, err := allocator.Allocate(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Selected)
}

func TestAllocateSplitsBoundaryItem(t *testing.T) {
	// 200 + 200 fit under 500; the 220 item is cut at the remaining
	// headroom of 100.
	items := []billable.Item{
		charge(200, noTax()),
		charge(200, noTax()),
		charge(220, noTax()),
	}
	cap := types.USD(500)

	res, err := allocator.Allocate(items, &cap)
	require.NoError(t, err)

	require.Len(t, res.Selected, 3)
	require.NotNil(t, res.Split)
	assert.Equal(t, int64(100), res.Split.Retained.ExTax().Amount)
	assert.Equal(t, int64(120), res.Split.Remainder.ExTax().Amount)
	assert.Equal(t, int64(500), res.SelectedIncTax.Amount)

	require.Len(t, res.Deferred, 1)
	assert.Equal(t, res.Split.Remainder.ItemID(), res.Deferred[0].ItemID())
}

func TestAllocateSplitRespectsTax(t *testing.T) {
	// Cap is tax-inclusive: 583 ex at 20% rounds to exactly 700 inc,
	// 584 would round to 701 and burst the cap.
	items := []billable.Item{charge(1000, types.TaxPercent(20))}
	cap := types.USD(700)

	res, err := allocator.Allocate(items, &cap)
	require.NoError(t, err)

	require.NotNil(t, res.Split)
	assert.Equal(t, int64(583), res.Split.Retained.ExTax().Amount)
	assert.Equal(t, int64(417), res.Split.Remainder.ExTax().Amount)
	assert.Equal(t, int64(700), res.SelectedIncTax.Amount)
}

func TestAllocateAtMostOneSplit(t *testing.T) {
	items := []billable.Item{
		charge(450, noTax()),
		charge(300, noTax()),
		charge(300, noTax()),
	}
	cap := types.USD(500)

	res, err := allocator.Allocate(items, &cap)
	require.NoError(t, err)

	require.NotNil(t, res.Split)
	assert.Equal(t, int64(50), res.Split.Retained.ExTax().Amount)
	assert.Equal(t, int64(500), res.SelectedIncTax.Amount)

	// The third item is deferred whole: the one split is spent.
	require.Len(t, res.Deferred, 2)
	assert.Equal(t, int64(250), res.Deferred[0].ExTax().Amount)
	assert.Equal(t, int64(300), res.Deferred[1].ExTax().Amount)
}

func TestAllocateDefersUnsplittableAndContinues(t *testing.T) {
	items := []billable.Item{
		charge(450, noTax()),
		singleBlockTime(400), // cannot be split; skipped
		charge(30, noTax()),  // still fits after the skip
	}
	cap := types.USD(500)

	res, err := allocator.Allocate(items, &cap)
	require.NoError(t, err)

	require.Len(t, res.Selected, 2)
	assert.Equal(t, int64(480), res.SelectedIncTax.Amount)
	assert.Nil(t, res.Split)

	require.Len(t, res.Deferred, 1)
	assert.Equal(t, billable.KindTime, res.Deferred[0].Kind())
}

func TestAllocateSplitWaitsForWholeItems(t *testing.T) {
	// An oversized entry at the front must not grab cap headroom while
	// a later whole item still fits: 810 in 90-dollar blocks against a
	// 500 cap defers whole, and the 460 item is taken intact.
	big, err := billable.NewTimeEntry("vendor-1", "proj-a", "Retainer", 540, types.USD(9000), types.TaxPercent(0))
	require.NoError(t, err)
	big.BlockMinutes = 60

	small, err := billable.NewTimeEntry("vendor-1", "proj-a", "Support", 276, types.USD(10000), types.TaxPercent(0))
	require.NoError(t, err)

	cap := types.USD(50000)
	res, err := allocator.Allocate([]billable.Item{big, small}, &cap)
	require.NoError(t, err)

	require.Len(t, res.Selected, 1)
	assert.Equal(t, small.ItemID(), res.Selected[0].ItemID())
	assert.Equal(t, int64(46000), res.SelectedIncTax.Amount)
	assert.Nil(t, res.Split)

	require.Len(t, res.Deferred, 1)
	assert.Equal(t, big.ItemID(), res.Deferred[0].ItemID())
}

func TestAllocateSkipsSplitForOneMinorUnit(t *testing.T) {
	// A single leftover minor unit of headroom is not worth a split.
	items := []billable.Item{charge(499, noTax()), charge(220, noTax())}
	cap := types.USD(500)

	res, err := allocator.Allocate(items, &cap)
	require.NoError(t, err)

	assert.Nil(t, res.Split)
	assert.Equal(t, int64(499), res.SelectedIncTax.Amount)
	require.Len(t, res.Deferred, 1)
	assert.Equal(t, int64(220), res.Deferred[0].ExTax().Amount)
}

func TestAllocateCapUnsatisfiable(t *testing.T) {
	items := []billable.Item{singleBlockTime(7)}
	cap := types.USD(5)

	_, err := allocator.Allocate(items, &cap)
	require.Error(t, err)

	var capErr *allocator.CapUnsatisfiableError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, int64(5), capErr.Cap.Amount)
	assert.Equal(t, int64(7), capErr.SmallestUnit.Amount)
	assert.Contains(t, capErr.Error(), "raise the cap")
}

func TestAllocateCapUnsatisfiableReportsCheapestUnit(t *testing.T) {
	// The charge can be split down to a single minor unit, so the cap
	// is satisfiable even though no whole item fits.
	items := []billable.Item{charge(220, noTax())}
	cap := types.USD(5)

	res, err := allocator.Allocate(items, &cap)
	require.NoError(t, err)
	require.NotNil(t, res.Split)
	assert.Equal(t, int64(5), res.Split.Retained.ExTax().Amount)
}

func TestAllocateExactFit(t *testing.T) {
	items := []billable.Item{charge(300, noTax()), charge(200, noTax())}
	cap := types.USD(500)

	res, err := allocator.Allocate(items, &cap)
	require.NoError(t, err)

	assert.Len(t, res.Selected, 2)
	assert.Nil(t, res.Split)
	assert.Empty(t, res.Deferred)
	assert.Equal(t, int64(500), res.SelectedIncTax.Amount)
}
