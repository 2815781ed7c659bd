// Package money provides fixed-point currency arithmetic.
// All amounts in the system are int64 cents; conversion to and from
// decimal currency happens once at the API boundary.
package money

import (
	"fmt"
	"math"
	"math/big"
)

// Scale is the fixed-point scale: 100 cents per currency unit.
const Scale int64 = 100

// FromDecimal converts a decimal currency amount to cents, rounding
// half away from zero. Returns an error for non-finite inputs or
// values that would overflow int64.
func FromDecimal(v float64) (int64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("amount is not a finite number")
	}
	scaled := v * float64(Scale)
	if scaled >= math.MaxInt64 || scaled <= math.MinInt64 {
		return 0, fmt.Errorf("amount out of range: %v", v)
	}
	return int64(math.Round(scaled)), nil
}

// ToDecimal converts cents back to a decimal currency amount.
func ToDecimal(cents int64) float64 {
	return float64(cents) / float64(Scale)
}

// Format renders cents as a dollar string: whole amounts without
// decimals ("$50"), fractional amounts with two ("$12.50").
func Format(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	if cents%Scale == 0 {
		return fmt.Sprintf("%s$%d", sign, cents/Scale)
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/Scale, cents%Scale)
}

// BpsScale is the commission-rate scale: 10_000 basis points per 100%.
const BpsScale int64 = 10_000

// ClampBps clamps a commission rate to [0, 10000] basis points.
func ClampBps(bps int64) int64 {
	if bps < 0 {
		return 0
	}
	if bps > BpsScale {
		return BpsScale
	}
	return bps
}

// Commission computes amount * rateBps / 10000 using int128
// intermediates so large stakes cannot overflow.
func Commission(amount, rateBps int64) int64 {
	rateBps = ClampBps(rateBps)
	num := new(big.Int).Mul(big.NewInt(amount), big.NewInt(rateBps))
	return num.Div(num, big.NewInt(BpsScale)).Int64()
}

// MulMultiplier computes stake * multiplier for payout calculation,
// saturating at MaxInt64 rather than wrapping.
func MulMultiplier(stake, multiplier int64) int64 {
	prod := new(big.Int).Mul(big.NewInt(stake), big.NewInt(multiplier))
	if !prod.IsInt64() {
		return math.MaxInt64
	}
	return prod.Int64()
}
