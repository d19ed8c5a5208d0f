// Package types provides common value types used across Billrun.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Money is an exact monetary value held in the smallest currency unit.
// All arithmetic stays in integers; nothing in the billing pipeline
// ever touches floating point.
//
//	USD(4900)  // $49.00
//	GBP(25)    // £0.25
type Money struct {
	Amount   int64  `json:"amount"`   // minor units (cents, pence)
	Currency string `json:"currency"` // ISO 4217 lowercase: "usd", "eur", "gbp"
}

// USD creates a Money value in US Dollars (cents).
func USD(cents int64) Money { return Money{Amount: cents, Currency: "usd"} }

// EUR creates a Money value in Euros (cents).
func EUR(cents int64) Money { return Money{Amount: cents, Currency: "eur"} }

// GBP creates a Money value in British Pounds (pence).
func GBP(pence int64) Money { return Money{Amount: pence, Currency: "gbp"} }

// Zero returns a zero Money value in the given currency.
func Zero(currency string) Money { return Money{Currency: strings.ToLower(currency)} }

// Add returns m + other. Panics if currencies differ.
func (m Money) Add(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}
}

// Subtract returns m - other. Panics if currencies differ.
func (m Money) Subtract(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}
}

// Multiply returns m scaled by an integer quantity.
func (m Money) Multiply(qty int64) Money {
	return Money{Amount: m.Amount * qty, Currency: m.Currency}
}

// Negate returns -m.
func (m Money) Negate() Money {
	return Money{Amount: -m.Amount, Currency: m.Currency}
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsPositive reports whether the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Amount > 0 }

// IsNegative reports whether the amount is less than zero.
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Equal reports whether both amount and currency match.
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// LessThan reports m < other. Panics if currencies differ.
func (m Money) LessThan(other Money) bool {
	m.assertSameCurrency(other)
	return m.Amount < other.Amount
}

// GreaterThan reports m > other. Panics if currencies differ.
func (m Money) GreaterThan(other Money) bool {
	m.assertSameCurrency(other)
	return m.Amount > other.Amount
}

// Min returns the smaller of two Money values. Panics if currencies differ.
func (m Money) Min(other Money) Money {
	m.assertSameCurrency(other)
	if other.Amount < m.Amount {
		return other
	}
	return m
}

// Max returns the larger of two Money values. Panics if currencies differ.
func (m Money) Max(other Money) Money {
	m.assertSameCurrency(other)
	if other.Amount > m.Amount {
		return other
	}
	return m
}

// FormatMajor renders the value in major units without a symbol:
// "49.00" for USD(4900), "-0.05" for USD(-5).
func (m Money) FormatMajor() string {
	decimals := currencyDecimals(m.Currency)
	if decimals == 0 {
		return fmt.Sprintf("%d", m.Amount)
	}

	divisor := int64(1)
	for i := 0; i < decimals; i++ {
		divisor *= 10
	}

	abs := m.Amount
	neg := abs < 0
	if neg {
		abs = -abs
	}

	out := fmt.Sprintf(fmt.Sprintf("%%d.%%0%dd", decimals), abs/divisor, abs%divisor)
	if neg {
		return "-" + out
	}
	return out
}

// String renders the value with a currency symbol: "$49.00", "£0.25".
func (m Money) String() string {
	return currencySymbol(m.Currency) + m.FormatMajor()
}

// MarshalJSON implements json.Marshaler, adding a display string.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.String(),
	})
}

func (m Money) assertSameCurrency(other Money) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: currency mismatch: %s != %s", m.Currency, other.Currency))
	}
}

func currencySymbol(currency string) string {
	switch strings.ToLower(currency) {
	case "usd":
		return "$"
	case "eur":
		return "€"
	case "gbp":
		return "£"
	case "jpy":
		return "¥"
	case "cad":
		return "C$"
	case "aud":
		return "A$"
	default:
		return strings.ToUpper(currency) + " "
	}
}

func currencyDecimals(currency string) int {
	switch strings.ToLower(currency) {
	case "jpy", "krw", "vnd", "clp":
		return 0
	default:
		return 2
	}
}

// Sum folds multiple Money values. All must share a currency.
// Summing nothing yields a zero value with no currency.
func Sum(values ...Money) Money {
	if len(values) == 0 {
		return Money{}
	}

	result := values[0]
	for _, v := range values[1:] {
		result = result.Add(v)
	}
	return result
}
