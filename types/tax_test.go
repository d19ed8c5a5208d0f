package types

import (
	"errors"
	"testing"
)

func TestIncTax(t *testing.T) {
	tests := []struct {
		name string
		ex   int64
		rate TaxRate
		want int64
	}{
		{"zero rate passes through", 1000, TaxPercent(0), 1000},
		{"whole percent", 20000, TaxPercent(20), 24000},
		{"rounds half up", 5, TaxPercent(10), 6},                  // 5.5 -> 6
		{"rounds down", 4, TaxPercent(10), 4},                     // 4.4 -> 4
		{"fractional rate", 100, MustTaxRate("17.5"), 118},        // 117.5 -> 118
		{"fractional rate large", 999, MustTaxRate("17.5"), 1174}, // 1173.825 -> 1174
		{"zero amount", 0, TaxPercent(20), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IncTax(USD(tt.ex), tt.rate)
			if got.Amount != tt.want {
				t.Errorf("IncTax(%d, %s): expected %d, got %d", tt.ex, tt.rate, tt.want, got.Amount)
			}
			if got.Currency != "usd" {
				t.Errorf("currency not preserved: %s", got.Currency)
			}
		})
	}
}

func TestTaxOn(t *testing.T) {
	got := TaxOn(USD(20000), TaxPercent(20))
	if got.Amount != 4000 {
		t.Errorf("expected 4000, got %d", got.Amount)
	}
}

func TestExTaxForTarget(t *testing.T) {
	t.Run("inverts inc-tax exactly", func(t *testing.T) {
		ex, err := ExTaxForTarget(USD(24000), TaxPercent(20))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ex.Amount != 20000 {
			t.Errorf("expected 20000, got %d", ex.Amount)
		}
	})

	t.Run("zero rate is identity", func(t *testing.T) {
		ex, err := ExTaxForTarget(USD(777), TaxPercent(0))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ex.Amount != 777 {
			t.Errorf("expected 777, got %d", ex.Amount)
		}
	})

	t.Run("round trip across a range of targets", func(t *testing.T) {
		rate := MustTaxRate("17.5")
		for target := int64(100000); target < 100050; target++ {
			ex, err := ExTaxForTarget(USD(target), rate)
			if errors.Is(err, ErrTargetUnreachable) {
				continue // some targets have no preimage under rounding
			}
			if err != nil {
				t.Fatalf("target %d: %v", target, err)
			}
			if inc := IncTax(ex, rate); inc.Amount != target {
				t.Errorf("target %d: IncTax(%d) = %d", target, ex.Amount, inc.Amount)
			}
		}
	})

	t.Run("unreachable target fails loudly", func(t *testing.T) {
		// At 20%, ex 7 -> 8 and ex 8 -> 10 (9.6 rounds up); 9 is skipped.
		_, err := ExTaxForTarget(USD(9), TaxPercent(20))
		if !errors.Is(err, ErrTargetUnreachable) {
			t.Fatalf("expected ErrTargetUnreachable, got %v", err)
		}
	})
}

func TestTaxRateParsing(t *testing.T) {
	tests := []struct {
		in      string
		wantKey string
		wantErr bool
	}{
		{"20", "20", false},
		{"17.5", "17.5", false},
		{"0", "0", false},
		{"20%", "20", false},
		{"-5", "", true},
		{"abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r, err := ParseTaxRate(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if r.Key() != tt.wantKey {
				t.Errorf("expected key %q, got %q", tt.wantKey, r.Key())
			}
		})
	}
}

func TestTaxRateJSON(t *testing.T) {
	var r TaxRate
	if err := r.UnmarshalJSON([]byte(`"17.5"`)); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !r.Equal(MustTaxRate("17.5")) {
		t.Errorf("expected 17.5%%, got %s", r)
	}

	data, err := r.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"17.5"` {
		t.Errorf("expected \"17.5\", got %s", data)
	}
}
