package billrun

import (
	"context"

	"github.com/xraph/billrun/billable"
	"github.com/xraph/billrun/run"
)

// ensureChargeInstances instantiates the period's recurring charges
// for a vendor, exactly once per (definition, period). Re-runs find
// the instances already there and create nothing.
func (e *Engine) ensureChargeInstances(ctx context.Context, vendorID, periodLabel string) (int, error) {
	defs, err := e.store.ListActiveChargeDefinitions(ctx, vendorID)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, d := range defs {
		inserted, err := e.store.EnsureChargeInstance(ctx, d.Instance(periodLabel))
		if err != nil {
			return created, err
		}
		if inserted {
			created++
		}
	}
	return created, nil
}

// loadCandidates returns the vendor's unbilled items eligible for the
// period, in billing order: charge instances for this or any earlier
// period, plus time and mileage dated before the period closes.
func (e *Engine) loadCandidates(ctx context.Context, vendorID string, period run.Period) ([]billable.Item, error) {
	items, err := e.store.ListUnbilledItems(ctx, vendorID)
	if err != nil {
		return nil, err
	}

	eligible := make([]billable.Item, 0, len(items))
	for _, item := range items {
		if eligibleFor(item, period) {
			eligible = append(eligible, item)
		}
	}
	return eligible, nil
}

// eligibleFor gates entries dated after the billing window: work
// logged for the current month must not ride along on last month's
// invoice. Undated entries and charge instances always qualify.
func eligibleFor(item billable.Item, period run.Period) bool {
	switch v := item.(type) {
	case *billable.TimeEntry:
		return v.EntryDate.IsZero() || v.EntryDate.Before(period.End)
	case *billable.MileageEntry:
		return v.EntryDate.IsZero() || v.EntryDate.Before(period.End)
	default:
		return true
	}
}
