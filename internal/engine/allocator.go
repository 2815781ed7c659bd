package engine

import (
	"borlette/internal/bet"
	"borlette/internal/model"
	"borlette/internal/money"
)

// checkCapacity verifies that the requested bets fit within the
// lottery's per-(type, number) sales caps given what has already been
// sold. Pure. Must run under the per-lottery lock so the sold amounts
// cannot move between this check and the commit.
//
// Requested stake is aggregated first: two bets on the same number in
// one ticket count against the cap together.
func checkCapacity(lot *model.Lottery, sold map[bet.Key]int64, bets []bet.Bet) error {
	requested := make(map[bet.Key]int64)
	var order []bet.Key

	for _, b := range bets {
		for _, k := range b.Keys() {
			if _, seen := requested[k]; !seen {
				order = append(order, k)
			}
			requested[k] += b.Stake()
		}
	}

	for _, k := range order {
		limit := lot.CapFor(k.Type)
		remaining := limit - sold[k]
		if remaining < 0 {
			remaining = 0
		}
		if sold[k]+requested[k] > limit {
			return Rejectf("%s number %s is sold out. Only %s left.",
				k.Type, k.Number, money.Format(remaining))
		}
	}

	return nil
}
