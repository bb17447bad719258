package maker

import "math/big"

const (
	wadDecimals = 18
	rayDecimals = 27
)

// fromFixed converts an on-chain fixed point integer into an exact rational.
func fromFixed(value *big.Int, decimals int64) *big.Rat {
	if value == nil {
		return new(big.Rat)
	}
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(decimals), nil)
	return new(big.Rat).SetFrac(value, denom)
}

func fromWad(value *big.Int) *big.Rat { return fromFixed(value, wadDecimals) }

func fromRay(value *big.Int) *big.Rat { return fromFixed(value, rayDecimals) }
