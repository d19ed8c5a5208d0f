package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrTargetUnreachable is returned by ExTaxForTarget when no ex-tax
// amount in whole minor units rounds to the requested inclusive total.
// Callers must treat this as a hard failure rather than settle for a
// near-miss total.
var ErrTargetUnreachable = errors.New("tax: no ex-tax amount reaches the target inclusive total")

// TaxRate is a percentage applied on top of ex-tax amounts.
// It is exact: "17.5" means 17.5%, not a float approximation.
type TaxRate struct {
	pct decimal.Decimal
}

// TaxPercent builds a TaxRate from a whole percentage, e.g. TaxPercent(20).
func TaxPercent(pct int64) TaxRate {
	return TaxRate{pct: decimal.NewFromInt(pct)}
}

// ParseTaxRate builds a TaxRate from a decimal string, e.g. "17.5".
func ParseTaxRate(s string) (TaxRate, error) {
	d, err := decimal.NewFromString(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if err != nil {
		return TaxRate{}, fmt.Errorf("tax: invalid rate %q: %w", s, err)
	}
	if d.IsNegative() {
		return TaxRate{}, fmt.Errorf("tax: negative rate %q", s)
	}
	return TaxRate{pct: d}, nil
}

// MustTaxRate is like ParseTaxRate but panics on error. For tests and
// statically known rates.
func MustTaxRate(s string) TaxRate {
	r, err := ParseTaxRate(s)
	if err != nil {
		panic(err)
	}
	return r
}

// IsZero reports whether the rate is 0%.
func (r TaxRate) IsZero() bool { return r.pct.IsZero() }

// Equal reports whether two rates are numerically equal.
func (r TaxRate) Equal(other TaxRate) bool { return r.pct.Equal(other.pct) }

// Percent returns the rate as a decimal percentage.
func (r TaxRate) Percent() decimal.Decimal { return r.pct }

// Key returns a canonical string for grouping by rate.
func (r TaxRate) Key() string { return r.pct.String() }

// String renders the rate as "20%" or "17.5%".
func (r TaxRate) String() string { return r.pct.String() + "%" }

// MarshalJSON implements json.Marshaler.
func (r TaxRate) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.pct.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *TaxRate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTaxRate(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r TaxRate) multiplier() decimal.Decimal {
	return decimal.NewFromInt(1).Add(r.pct.Div(decimal.NewFromInt(100)))
}

// IncTax returns the tax-inclusive amount for an ex-tax amount,
// rounded half-up to a whole minor unit. This is the single rounding
// point for tax in the entire pipeline: totals are sums of already
// rounded per-line amounts, never re-rounded aggregates.
func IncTax(ex Money, rate TaxRate) Money {
	if rate.IsZero() {
		return ex
	}
	inc := decimal.NewFromInt(ex.Amount).Mul(rate.multiplier()).Round(0)
	return Money{Amount: inc.IntPart(), Currency: ex.Currency}
}

// TaxOn returns just the tax portion for an ex-tax amount.
func TaxOn(ex Money, rate TaxRate) Money {
	return IncTax(ex, rate).Subtract(ex)
}

// targetSearchBound caps the inverse search in ExTaxForTarget. The
// initial estimate is within one or two units of any solution, so
// hitting the bound means the mapping genuinely skips the target.
const targetSearchBound = 64

// ExTaxForTarget finds the ex-tax amount whose IncTax equals target
// exactly. Because IncTax rounds, some targets have no preimage; those
// return ErrTargetUnreachable. The caller decides whether to pick a
// different target, never this function.
func ExTaxForTarget(target Money, rate TaxRate) (Money, error) {
	if rate.IsZero() {
		return target, nil
	}

	est := decimal.NewFromInt(target.Amount).Div(rate.multiplier()).Round(0)
	ex := Money{Amount: est.IntPart(), Currency: target.Currency}

	prevDir := 0
	for i := 0; i < targetSearchBound; i++ {
		inc := IncTax(ex, rate)
		switch {
		case inc.Amount == target.Amount:
			return ex, nil
		case inc.Amount < target.Amount:
			if prevDir < 0 {
				// Crossed the target without landing on it.
				return Money{}, fmt.Errorf("%w: target %s at rate %s", ErrTargetUnreachable, target, rate)
			}
			prevDir = 1
			ex.Amount++
		default:
			if prevDir > 0 {
				return Money{}, fmt.Errorf("%w: target %s at rate %s", ErrTargetUnreachable, target, rate)
			}
			prevDir = -1
			ex.Amount--
		}
	}
	return Money{}, fmt.Errorf("%w: target %s at rate %s (search bound exhausted)", ErrTargetUnreachable, target, rate)
}
