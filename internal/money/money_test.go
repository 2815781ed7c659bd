package money_test

import (
	"math"
	"testing"

	"borlette/internal/money"
)

// ============================================================================
// Test: decimal conversion
// ============================================================================

func TestFromDecimal(t *testing.T) {
	cases := []struct {
		in   float64
		want int64
	}{
		{0, 0},
		{1, 100},
		{12.5, 1250},
		{0.01, 1},
		{0.005, 1},     // rounds half away from zero
		{-0.005, -1},   // and symmetrically for negatives
		{19.99, 1999},
		{-20, -2000},
	}
	for _, tc := range cases {
		got, err := money.FromDecimal(tc.in)
		if err != nil {
			t.Fatalf("FromDecimal(%v): unexpected error %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("FromDecimal(%v): got %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestFromDecimal_RejectsNonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), 1e18} {
		if _, err := money.FromDecimal(v); err == nil {
			t.Errorf("FromDecimal(%v): expected error", v)
		}
	}
}

func TestToDecimal_RoundTrip(t *testing.T) {
	for _, cents := range []int64{0, 1, 100, 1250, -2000, 999_999_99} {
		got, err := money.FromDecimal(money.ToDecimal(cents))
		if err != nil {
			t.Fatalf("round trip %d: %v", cents, err)
		}
		if got != cents {
			t.Errorf("round trip: got %d, want %d", got, cents)
		}
	}
}

// ============================================================================
// Test: Format
// ============================================================================

func TestFormat(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{0, "$0"},
		{2000, "$20"},
		{1250, "$12.50"},
		{5, "$0.05"},
		{-2000, "-$20"},
		{-1250, "-$12.50"},
		{500_000, "$5000"},
	}
	for _, tc := range cases {
		if got := money.Format(tc.cents); got != tc.want {
			t.Errorf("Format(%d): got %q, want %q", tc.cents, got, tc.want)
		}
	}
}

// ============================================================================
// Test: commission
// ============================================================================

func TestCommission(t *testing.T) {
	cases := []struct {
		amount, bps, want int64
	}{
		{10_000, 1000, 1000}, // 10% of $100
		{10_000, 0, 0},
		{10_000, 10_000, 10_000}, // 100%
		{333, 1000, 33},          // truncates toward zero
		{1, 1, 0},
	}
	for _, tc := range cases {
		if got := money.Commission(tc.amount, tc.bps); got != tc.want {
			t.Errorf("Commission(%d, %d): got %d, want %d", tc.amount, tc.bps, got, tc.want)
		}
	}
}

func TestCommission_ClampsRate(t *testing.T) {
	if got := money.Commission(10_000, -5); got != 0 {
		t.Errorf("negative rate: got %d, want 0", got)
	}
	if got := money.Commission(10_000, 20_000); got != 10_000 {
		t.Errorf("rate above 100%%: got %d, want 10000", got)
	}
}

func TestCommission_LargeAmountsDoNotOverflow(t *testing.T) {
	// amount * bps would overflow int64 without the big.Int intermediate.
	got := money.Commission(math.MaxInt64, 10_000)
	if got != math.MaxInt64 {
		t.Errorf("got %d, want MaxInt64", got)
	}
}

func TestClampBps(t *testing.T) {
	cases := []struct{ in, want int64 }{
		{-1, 0},
		{0, 0},
		{550, 550},
		{10_000, 10_000},
		{10_001, 10_000},
	}
	for _, tc := range cases {
		if got := money.ClampBps(tc.in); got != tc.want {
			t.Errorf("ClampBps(%d): got %d, want %d", tc.in, got, tc.want)
		}
	}
}

// ============================================================================
// Test: payout multiplication
// ============================================================================

func TestMulMultiplier(t *testing.T) {
	if got := money.MulMultiplier(1000, 50); got != 50_000 {
		t.Errorf("got %d, want 50000", got)
	}
	if got := money.MulMultiplier(0, 2000); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}

func TestMulMultiplier_SaturatesAtMaxInt64(t *testing.T) {
	if got := money.MulMultiplier(math.MaxInt64, 2); got != math.MaxInt64 {
		t.Errorf("got %d, want MaxInt64", got)
	}
}
