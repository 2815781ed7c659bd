package bet_test

import (
	"testing"

	"borlette/internal/bet"
)

// ============================================================================
// Test: Normalize
// ============================================================================

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"7", "7"},
		{"07", "7"},
		{"007", "7"},
		{" 7 ", "7"},
		{"0", "0"},
		{"00", "0"},
		{"99", "99"},
		{"123", "123"},
		{"1234", "1234"},
		{"abc", "abc"},   // non-numeric compares literally
		{" abc ", "abc"}, // after trimming
	}
	for _, tc := range cases {
		if got := bet.Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}

// ============================================================================
// Test: ParseCombination
// ============================================================================

func TestParseCombination(t *testing.T) {
	a, b, err := bet.ParseCombination("12-34")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != "12" || b != "34" {
		t.Errorf("got (%q, %q), want (12, 34)", a, b)
	}
}

func TestParseCombination_NormalizesMembers(t *testing.T) {
	a, b, err := bet.ParseCombination(" 07-4 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != "7" || b != "4" {
		t.Errorf("got (%q, %q), want (7, 4)", a, b)
	}
}

func TestParseCombination_Invalid(t *testing.T) {
	for _, combo := range []string{"", "12", "12-", "-34", "12-34-56", "-"} {
		if _, _, err := bet.ParseCombination(combo); err == nil {
			t.Errorf("ParseCombination(%q): expected error", combo)
		}
	}
}

// ============================================================================
// Test: Bet helpers
// ============================================================================

func TestStake(t *testing.T) {
	b := bet.Bet{Type: bet.TypeBolet, Numbers: []string{"7"}, Amounts: []int64{500}}
	if got := b.Stake(); got != 500 {
		t.Errorf("got %d, want 500", got)
	}

	empty := bet.Bet{Type: bet.TypeBolet, Numbers: []string{"7"}}
	if got := empty.Stake(); got != 0 {
		t.Errorf("empty amounts: got %d, want 0", got)
	}
}

func TestKeys_NormalizesNumbers(t *testing.T) {
	b := bet.Bet{Type: bet.TypeMariage, Numbers: []string{"07", " 34 "}, Amounts: []int64{1000}}

	keys := b.Keys()
	if len(keys) != 2 {
		t.Fatalf("got %d keys, want 2", len(keys))
	}
	want := []bet.Key{
		{Type: bet.TypeMariage, Number: "7"},
		{Type: bet.TypeMariage, Number: "34"},
	}
	for i, k := range keys {
		if k != want[i] {
			t.Errorf("key %d: got %+v, want %+v", i, k, want[i])
		}
	}
}

func TestTypeValid(t *testing.T) {
	for _, tt := range bet.AllTypes {
		if !tt.Valid() {
			t.Errorf("%s should be valid", tt)
		}
	}
	if bet.Type("lotto6").Valid() {
		t.Error("unknown type should not be valid")
	}
}

func TestRules_Cardinality(t *testing.T) {
	cases := []struct {
		typ  bet.Type
		want int
	}{
		{bet.TypeBolet, 1},
		{bet.TypeMariage, 2},
		{bet.TypePlay3, 1},
		{bet.TypePlay4, 1},
	}
	for _, tc := range cases {
		if got := bet.Rules[tc.typ].Cardinality; got != tc.want {
			t.Errorf("%s cardinality: got %d, want %d", tc.typ, got, tc.want)
		}
	}
}
