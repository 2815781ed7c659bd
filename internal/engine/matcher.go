package engine

import (
	"borlette/internal/bet"
	"borlette/internal/model"
	"borlette/internal/money"
)

// ValidateWinningNumbers checks a declaration before any ticket is
// evaluated: every bet type must have a non-empty winning set, and the
// mariage declaration must be a single "A-B" combination.
func ValidateWinningNumbers(declared map[bet.Type][]string) error {
	for _, t := range bet.AllTypes {
		if len(declared[t]) == 0 {
			return Rejectf("winning numbers for %s are missing", t)
		}
	}
	if n := len(declared[bet.TypeMariage]); n != 1 {
		return Rejectf("mariage requires exactly one winning combination, got %d", n)
	}
	if _, _, err := bet.ParseCombination(declared[bet.TypeMariage][0]); err != nil {
		return Rejectf("%v", err)
	}
	return nil
}

// EvaluateTicket computes a ticket's result against the lottery's
// declared winning numbers. Pure and idempotent: identical inputs
// always yield the identical result. A ticket wins if any of its bets
// wins; the payout is the sum over all winning lines.
func EvaluateTicket(lot *model.Lottery, t *model.Ticket) (isWinner bool, payoutAmount int64) {
	for _, b := range t.Bets {
		if !betWins(lot.WinningNumbers, b) {
			continue
		}
		isWinner = true
		payoutAmount += money.MulMultiplier(b.Stake(), lot.PayoutFor(b.Type))
	}
	return isWinner, payoutAmount
}

func betWins(declared map[bet.Type][]string, b bet.Bet) bool {
	switch b.Type {
	case bet.TypeMariage:
		return mariageWins(declared[bet.TypeMariage], b.Numbers)
	default:
		if len(b.Numbers) != 1 {
			return false
		}
		return inWinningSet(declared[b.Type], b.Numbers[0])
	}
}

// inWinningSet reports membership under normalization, so a declared
// "07" matches a played "7" and vice versa.
func inWinningSet(winning []string, number string) bool {
	n := bet.Normalize(number)
	for _, w := range winning {
		if bet.Normalize(w) == n {
			return true
		}
	}
	return false
}

// mariageWins matches a two-number bet against the declared "A-B"
// combination as an unordered pair: [12 34] wins against "34-12" as
// well as "12-34".
func mariageWins(declared []string, numbers []string) bool {
	if len(declared) != 1 || len(numbers) != 2 {
		return false
	}
	a, b, err := bet.ParseCombination(declared[0])
	if err != nil {
		return false
	}
	pair := map[string]struct{}{a: {}, b: {}}
	for _, n := range numbers {
		if _, ok := pair[bet.Normalize(n)]; !ok {
			return false
		}
	}
	return true
}
