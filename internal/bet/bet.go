// Package bet models the four borlette wager types as a closed variant:
// every per-type rule (cardinality, range checking, jurisdiction scope,
// default payout multiplier) lives in one table instead of type-string
// branches scattered across validator, allocator and matcher.
package bet

import (
	"fmt"
	"strconv"
	"strings"
)

// Type identifies a wager variant.
type Type string

const (
	TypeBolet   Type = "bolet"
	TypeMariage Type = "mariage"
	TypePlay3   Type = "play3"
	TypePlay4   Type = "play4"
)

// StateHaiti is the implicit jurisdiction for bolet and mariage bets.
const StateHaiti = "haiti"

// Rule describes the invariants of one bet type.
type Rule struct {
	Cardinality   int   // exact number of numbers per bet
	RangeChecked  bool  // numbers must parse and fall in the lottery's range
	StateScoped   bool  // state must be one of the lottery's jurisdictions
	DefaultPayout int64 // multiplier used when payoutRules omits the type (0 = required)
}

// Rules is the closed per-type rule table.
var Rules = map[Type]Rule{
	TypeBolet:   {Cardinality: 1, RangeChecked: true, StateScoped: false, DefaultPayout: 0},
	TypeMariage: {Cardinality: 2, RangeChecked: true, StateScoped: false, DefaultPayout: 0},
	TypePlay3:   {Cardinality: 1, RangeChecked: false, StateScoped: true, DefaultPayout: 500},
	TypePlay4:   {Cardinality: 1, RangeChecked: false, StateScoped: true, DefaultPayout: 2000},
}

// AllTypes lists every bet type in declaration order.
var AllTypes = []Type{TypeBolet, TypeMariage, TypePlay3, TypePlay4}

// Valid reports whether t is a known bet type.
func (t Type) Valid() bool {
	_, ok := Rules[t]
	return ok
}

// Bet is one wager line on a ticket. Amounts is kept as a slice for
// forward compatibility; every current type carries exactly one stake.
type Bet struct {
	Type    Type     `json:"betType"`
	Numbers []string `json:"numbers"`
	Amounts []int64  `json:"amounts"` // cents
	State   string   `json:"state"`
}

// Stake returns the bet's single stake amount in cents.
func (b Bet) Stake() int64 {
	if len(b.Amounts) == 0 {
		return 0
	}
	return b.Amounts[0]
}

// Key identifies a (type, number) inventory bucket.
type Key struct {
	Type   Type
	Number string // normalized
}

// Keys returns the inventory buckets this bet consumes, one per number.
func (b Bet) Keys() []Key {
	keys := make([]Key, 0, len(b.Numbers))
	for _, n := range b.Numbers {
		keys = append(keys, Key{Type: b.Type, Number: Normalize(n)})
	}
	return keys
}

// Normalize canonicalizes a played number for comparison: whitespace is
// stripped and numeric strings collapse to their integer form, so "07"
// and "7" are the same number. Non-numeric strings compare literally
// after trimming.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return s
}

// ParseCombination splits a declared mariage combination "A-B" into its
// two normalized members.
func ParseCombination(combo string) (string, string, error) {
	parts := strings.Split(strings.TrimSpace(combo), "-")
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return "", "", fmt.Errorf("mariage combination %q must be two values separated by a dash", combo)
	}
	return Normalize(parts[0]), Normalize(parts[1]), nil
}
