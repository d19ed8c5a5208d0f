package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xraph/billrun/billable"
	"github.com/xraph/billrun/id"
	"github.com/xraph/billrun/store/memory"
	"github.com/xraph/billrun/types"
)

func chargeInstance(t *testing.T, desc, period string, sortOrder int) *billable.RecurringCharge {
	t.Helper()
	def := &billable.ChargeDefinition{
		Entity:      types.NewEntity(),
		ID:          id.NewChargeID(),
		VendorID:    "vendor-1",
		ProjectID:   "proj-a",
		Description: desc,
		Amount:      types.USD(1000),
		TaxRate:     types.TaxPercent(20),
		SortOrder:   sortOrder,
		Active:      true,
	}
	return def.Instance(period)
}

func TestListUnbilledItems_BillingOrder(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	timeLate, err := billable.NewTimeEntry("vendor-1", "proj-a", "Late work", 60, types.USD(10000), types.TaxPercent(20))
	require.NoError(t, err)
	timeLate.EntryDate = time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC)
	timeEarly, err := billable.NewTimeEntry("vendor-1", "proj-a", "Early work", 60, types.USD(10000), types.TaxPercent(20))
	require.NoError(t, err)
	timeEarly.EntryDate = time.Date(2026, 7, 5, 0, 0, 0, 0, time.UTC)

	mileage, err := billable.NewMileageEntry("vendor-1", "proj-a", "Site visit", 1000, types.USD(67), types.TaxPercent(20))
	require.NoError(t, err)
	mileage.EntryDate = time.Date(2026, 7, 12, 0, 0, 0, 0, time.UTC)

	// Inserted out of order on purpose. The carried-forward June
	// charge has the highest sort order but the oldest period.
	require.NoError(t, st.CreateItems(ctx,
		timeLate,
		chargeInstance(t, "Hosting", "2026-07", 1),
		mileage,
		chargeInstance(t, "Backup", "2026-06", 9),
		timeEarly,
	))

	items, err := st.ListUnbilledItems(ctx, "vendor-1")
	require.NoError(t, err)
	require.Len(t, items, 5)

	descriptions := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case *billable.RecurringCharge:
			descriptions = append(descriptions, v.Description)
		case *billable.TimeEntry:
			descriptions = append(descriptions, v.Description)
		case *billable.MileageEntry:
			descriptions = append(descriptions, v.Description)
		}
	}
	require.Equal(t, []string{
		"Backup",  // oldest charge period first
		"Hosting", // current period charge
		"Site visit",
		"Early work", // time entries chronologically
		"Late work",
	}, descriptions)
}
