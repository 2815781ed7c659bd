package engine

import (
	"strconv"
	"strings"

	"borlette/internal/bet"
	"borlette/internal/model"
	"borlette/internal/money"
)

// normalizeBets applies the boundary defaults before validation:
// bolet/mariage bets carry the implicit haiti jurisdiction when the
// caller leaves state empty. Returns a copy; the input is not mutated.
func normalizeBets(bets []bet.Bet) []bet.Bet {
	out := make([]bet.Bet, len(bets))
	for i, b := range bets {
		b.State = strings.TrimSpace(b.State)
		if !bet.Rules[b.Type].StateScoped && b.State == "" {
			b.State = bet.StateHaiti
		}
		out[i] = b
	}
	return out
}

// validateBets checks a candidate bet slice against the lottery's
// configuration. Pure: no storage access, no side effects. The checks
// run in a fixed order per bet and the first violation wins, so the
// same bad input always produces the same message.
func validateBets(lot *model.Lottery, bets []bet.Bet) error {
	if len(bets) == 0 {
		return Rejectf("ticket must contain at least one bet")
	}

	for _, b := range bets {
		rule, ok := bet.Rules[b.Type]
		if !ok {
			return Rejectf("unknown bet type %q", b.Type)
		}

		if len(b.Numbers) != rule.Cardinality {
			return Rejectf("%s bet requires exactly %d number(s), got %d",
				b.Type, rule.Cardinality, len(b.Numbers))
		}

		for _, n := range b.Numbers {
			if strings.TrimSpace(n) == "" {
				return Rejectf("%s bet has an empty number", b.Type)
			}
		}

		if rule.RangeChecked {
			for _, n := range b.Numbers {
				v, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
				if err != nil || !lot.NumberRange.Contains(v) {
					return Rejectf("%s number %q must be a number between %d and %d",
						b.Type, n, lot.NumberRange.Min, lot.NumberRange.Max)
				}
			}
		}

		if dup := firstDuplicate(b.Numbers); dup != "" {
			return Rejectf("%s bet has duplicate number %s", b.Type, dup)
		}

		if len(b.Amounts) != 1 {
			return Rejectf("%s bet must have exactly one amount", b.Type)
		}
		if b.Amounts[0] <= 0 {
			return Rejectf("%s bet amount must be positive", b.Type)
		}

		if limits, ok := lot.BetLimits[b.Type]; ok {
			if b.Amounts[0] < limits.Min || b.Amounts[0] > limits.Max {
				return Rejectf("%s bet amount %s must be between %s and %s",
					b.Type, money.Format(b.Amounts[0]),
					money.Format(limits.Min), money.Format(limits.Max))
			}
		}

		if rule.StateScoped {
			if !lot.HasState(b.State) {
				return Rejectf("state %q is not offered for this lottery", b.State)
			}
		} else if b.State != bet.StateHaiti {
			return Rejectf("%s bets are only valid in %s", b.Type, bet.StateHaiti)
		}
	}

	return nil
}

// firstDuplicate returns the first number that repeats within the bet,
// comparing normalized forms so "7" and "07" collide.
func firstDuplicate(numbers []string) string {
	seen := make(map[string]struct{}, len(numbers))
	for _, n := range numbers {
		key := bet.Normalize(n)
		if _, ok := seen[key]; ok {
			return key
		}
		seen[key] = struct{}{}
	}
	return ""
}
