package types

import (
	"encoding/json"
	"testing"
)

func TestMoneyArithmetic(t *testing.T) {
	t.Run("add", func(t *testing.T) {
		result := USD(4900).Add(USD(100))
		if result.Amount != 5000 {
			t.Errorf("expected 5000, got %d", result.Amount)
		}
	})

	t.Run("subtract", func(t *testing.T) {
		result := USD(5000).Subtract(USD(1500))
		if result.Amount != 3500 {
			t.Errorf("expected 3500, got %d", result.Amount)
		}
	})

	t.Run("subtract below zero", func(t *testing.T) {
		result := USD(100).Subtract(USD(250))
		if result.Amount != -150 {
			t.Errorf("expected -150, got %d", result.Amount)
		}
		if !result.IsNegative() {
			t.Error("expected negative")
		}
	})

	t.Run("multiply", func(t *testing.T) {
		result := USD(250).Multiply(4)
		if result.Amount != 1000 {
			t.Errorf("expected 1000, got %d", result.Amount)
		}
	})

	t.Run("min and max", func(t *testing.T) {
		if got := USD(100).Min(USD(200)); got.Amount != 100 {
			t.Errorf("min: expected 100, got %d", got.Amount)
		}
		if got := USD(100).Max(USD(200)); got.Amount != 200 {
			t.Errorf("max: expected 200, got %d", got.Amount)
		}
	})

	t.Run("currency mismatch panics", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected panic on currency mismatch")
			}
		}()
		USD(100).Add(EUR(100))
	})
}

func TestMoneyComparisons(t *testing.T) {
	tests := []struct {
		name string
		fn   func() bool
		want bool
	}{
		{"zero is zero", USD(0).IsZero, true},
		{"positive is not zero", USD(1).IsZero, false},
		{"positive", USD(1).IsPositive, true},
		{"negative", USD(-1).IsNegative, true},
		{"equal same currency", func() bool { return USD(100).Equal(USD(100)) }, true},
		{"equal different currency", func() bool { return USD(100).Equal(EUR(100)) }, false},
		{"less than", func() bool { return USD(99).LessThan(USD(100)) }, true},
		{"greater than", func() bool { return USD(101).GreaterThan(USD(100)) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestMoneyFormatting(t *testing.T) {
	tests := []struct {
		name  string
		money Money
		major string
		str   string
	}{
		{"usd", USD(4900), "49.00", "$49.00"},
		{"gbp pence", GBP(25), "0.25", "£0.25"},
		{"eur", EUR(19900), "199.00", "€199.00"},
		{"negative", USD(-5), "-0.05", "$-0.05"},
		{"yen no decimals", Money{Amount: 100, Currency: "jpy"}, "100", "¥100"},
		{"unknown currency", Money{Amount: 1234, Currency: "xyz"}, "12.34", "XYZ 12.34"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.money.FormatMajor(); got != tt.major {
				t.Errorf("FormatMajor: expected %q, got %q", tt.major, got)
			}
			if got := tt.money.String(); got != tt.str {
				t.Errorf("String: expected %q, got %q", tt.str, got)
			}
		})
	}
}

func TestMoneySum(t *testing.T) {
	t.Run("sums values", func(t *testing.T) {
		result := Sum(USD(100), USD(200), USD(300))
		if result.Amount != 600 {
			t.Errorf("expected 600, got %d", result.Amount)
		}
	})

	t.Run("empty sum is zero", func(t *testing.T) {
		if got := Sum(); !got.IsZero() {
			t.Errorf("expected zero, got %v", got)
		}
	})
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(USD(4900))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"amount":4900,"currency":"usd","display":"$49.00"}`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}
}
