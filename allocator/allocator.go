// Package allocator decides which billable items fit under a vendor's
// monthly cap. The cap applies to the tax-inclusive total. The walk is
// greedy in candidate order: whole items that fit are taken and the
// rest are deferred. Only after every candidate has been considered is
// a single split attempted, cutting a deferred item at its quantum
// boundary to fill whatever headroom the whole items left.
package allocator

import (
	"fmt"

	"github.com/xraph/billrun/billable"
	"github.com/xraph/billrun/types"
)

// CapUnsatisfiableError reports a cap too small to bill anything:
// even the smallest divisible unit of the cheapest candidate exceeds
// it. Billing must stop rather than silently bill nothing forever.
type CapUnsatisfiableError struct {
	Cap          types.Money
	SmallestUnit types.Money // inc-tax cost of the cheapest billable unit
}

func (e *CapUnsatisfiableError) Error() string {
	return fmt.Sprintf(
		"allocator: cap %s is below the smallest billable unit %s; raise the cap or remove the item",
		e.Cap, e.SmallestUnit,
	)
}

// Split records the single boundary split an allocation may perform.
type Split struct {
	Original  billable.Item
	Retained  billable.Item
	Remainder billable.Item
}

// Result is the outcome of an allocation.
type Result struct {
	// Selected items go on this run's invoice, in candidate order.
	// If a split happened, the retained part appears here.
	Selected []billable.Item
	// Deferred items stay unbilled for a later period. A split
	// remainder appears here.
	Deferred []billable.Item
	// Split is non-nil when a boundary item was divided.
	Split *Split
	// SelectedIncTax is the tax-inclusive total of the selection.
	SelectedIncTax types.Money
}

// Allocate walks the candidates under cap. A nil cap selects
// everything. Candidates must already be in billing order and share
// one currency.
func Allocate(candidates []billable.Item, cap *types.Money) (*Result, error) {
	if len(candidates) == 0 {
		return &Result{}, nil
	}

	currency := candidates[0].ExTax().Currency
	res := &Result{SelectedIncTax: types.Zero(currency)}

	if cap == nil {
		res.Selected = append(res.Selected, candidates...)
		for _, it := range candidates {
			res.SelectedIncTax = res.SelectedIncTax.Add(it.IncTax())
		}
		return res, nil
	}

	headroom := *cap
	for _, item := range candidates {
		inc := item.IncTax()
		if !inc.GreaterThan(headroom) {
			res.Selected = append(res.Selected, item)
			res.SelectedIncTax = res.SelectedIncTax.Add(inc)
			headroom = headroom.Subtract(inc)
			continue
		}
		res.Deferred = append(res.Deferred, item)
	}

	// The one split happens after the whole-item walk, so headroom is
	// never spent on a fragment while a later whole item could still
	// have fit. A single leftover minor unit is not worth a split.
	if headroom.Amount > 1 {
		for i, item := range res.Deferred {
			split, ok := trySplit(item, headroom)
			if !ok {
				continue
			}
			res.Selected = append(res.Selected, split.Retained)
			res.SelectedIncTax = res.SelectedIncTax.Add(split.Retained.IncTax())
			res.Deferred[i] = split.Remainder
			res.Split = split
			break
		}
	}

	if len(res.Selected) == 0 {
		return nil, &CapUnsatisfiableError{
			Cap:          *cap,
			SmallestUnit: smallestUnit(candidates),
		}
	}
	return res, nil
}

// trySplit finds the largest quantum count whose retained inc-tax
// amount fits in headroom. The quanta -> inc-tax mapping is monotone,
// so a binary search over [1, quanta-1] finds the boundary.
func trySplit(item billable.Item, headroom types.Money) (*Split, bool) {
	total := item.SplitQuanta()
	if total <= 1 {
		return nil, false
	}

	fits := func(q int64) bool {
		inc := types.IncTax(item.AmountAt(q), item.Rate())
		return !inc.GreaterThan(headroom)
	}

	if !fits(1) {
		return nil, false
	}

	lo, hi := int64(1), total-1
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		if fits(mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}

	retained, remainder, err := item.SplitAt(lo)
	if err != nil {
		return nil, false
	}
	return &Split{Original: item, Retained: retained, Remainder: remainder}, true
}

// smallestUnit returns the cheapest inc-tax amount any candidate could
// contribute: one quantum for splittable items, the whole item
// otherwise.
func smallestUnit(candidates []billable.Item) types.Money {
	var smallest types.Money
	for i, item := range candidates {
		unit := item.IncTax()
		if item.SplitQuanta() > 1 {
			unit = types.IncTax(item.AmountAt(1), item.Rate())
		}
		if i == 0 || unit.LessThan(smallest) {
			smallest = unit
		}
	}
	return smallest
}
