// Package liquidation derives collateralization metrics from raw CDP state.
package liquidation

import (
	"math/big"

	"cdpwatch/internal/model"
)

// Calculate computes the collateralization ratio and liquidation price of
// pos against the target price par:
//
//	ratio    = (ink * tag) / (art * par)
//	liqPrice = (art * mat) / (per * ink)
//
// Closed positions get nil metrics. Positions without collateral or debt,
// and inputs that would divide by zero, get zero metrics.
func Calculate(pos model.Position, par *big.Rat) model.Snapshot {
	snap := model.Snapshot{
		PositionID: pos.ID,
		Owner:      pos.Owner,
		Collateral: orZero(pos.Collateral),
		Debt:       orZero(pos.Debt),
	}

	if pos.Closed() {
		snap.Closed = true
		return snap
	}

	ink := snap.Collateral
	art := snap.Debt
	ratioDenom := new(big.Rat).Mul(art, orZero(par))
	priceDenom := new(big.Rat).Mul(orZero(pos.Per), ink)

	if ink.Sign() <= 0 || art.Sign() <= 0 || ratioDenom.Sign() == 0 || priceDenom.Sign() == 0 {
		snap.Ratio = new(big.Rat)
		snap.LiquidationPrice = new(big.Rat)
		return snap
	}

	ratio := new(big.Rat).Mul(ink, orZero(pos.Tag))
	snap.Ratio = ratio.Quo(ratio, ratioDenom)

	price := new(big.Rat).Mul(art, orZero(pos.Mat))
	snap.LiquidationPrice = price.Quo(price, priceDenom)

	return snap
}

// Below reports whether snap has a positive ratio strictly under threshold.
func Below(snap model.Snapshot, threshold *big.Rat) bool {
	if !snap.HasRatio() || threshold == nil {
		return false
	}
	return snap.Ratio.Cmp(threshold) < 0
}

func orZero(v *big.Rat) *big.Rat {
	if v == nil {
		return new(big.Rat)
	}
	return v
}
