package liquidation

import "math/big"

const displayScale = 2

var hundred = big.NewRat(100, 1)

// FormatPercent renders a ratio as a percentage rounded to two decimals.
// Nil renders as "n/a".
func FormatPercent(ratio *big.Rat) string {
	if ratio == nil {
		return "n/a"
	}
	return new(big.Rat).Mul(ratio, hundred).FloatString(displayScale)
}

// FormatPrice renders a price rounded to two decimals.
func FormatPrice(price *big.Rat) string {
	if price == nil {
		return "n/a"
	}
	return price.FloatString(displayScale)
}
