package money

import (
	"encoding/json"
	"testing"
)

func TestPercentageRounding(t *testing.T) {
	tests := []struct {
		amount int64
		bps    int64
		want   int64
	}{
		{20000, 1500, 3000}, // 15% of $200.00
		{10000, 500, 500},   // 5%
		{10000, 7000, 7000}, // 70% child seat
		{33, 1500, 5},       // 4.95 rounds to 5
		{10, 1500, 2},       // 1.5 rounds half away from zero
		{0, 1500, 0},
	}

	for _, tt := range tests {
		got := New(tt.amount, USD).Percentage(tt.bps)
		if got.AmountMinor != tt.want {
			t.Errorf("Percentage(%d, %d bps) = %d, want %d", tt.amount, tt.bps, got.AmountMinor, tt.want)
		}
	}
}

func TestAddRejectsCurrencyMismatch(t *testing.T) {
	if _, err := New(100, USD).Add(New(100, KES)); err == nil {
		t.Fatal("expected currency mismatch error")
	}
	if _, err := New(100, USD).Sub(New(100, KES)); err == nil {
		t.Fatal("expected currency mismatch error")
	}
}

func TestSplitConservation(t *testing.T) {
	// A percentage split plus its remainder always reconstructs the total,
	// whatever the rounding did.
	for _, amount := range []int64{1, 33, 999, 20000, 1234567} {
		total := New(amount, USD)
		commission := total.Percentage(1500)
		earnings := total.MustSub(commission)
		if sum := earnings.MustAdd(commission); !sum.Equal(total) {
			t.Errorf("amount %d: %d + %d != %d", amount, earnings.AmountMinor, commission.AmountMinor, amount)
		}
	}
}

func TestJSONRoundTrip(t *testing.T) {
	m := New(12345, KES)
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got Money
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !got.Equal(m) {
		t.Errorf("round trip = %+v, want %+v", got, m)
	}
}

func TestUGXHasNoMinorUnits(t *testing.T) {
	m := New(5000, UGX)
	if got := m.ToMajor(); got != 5000 {
		t.Errorf("ToMajor = %v, want 5000", got)
	}
	if got := m.String(); got != "USh5000" {
		t.Errorf("String = %q, want USh5000", got)
	}
}
