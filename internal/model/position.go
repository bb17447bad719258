package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Position is the raw state of a CDP converted from on-chain fixed point.
type Position struct {
	ID         uint64
	Owner      common.Address
	Collateral *big.Rat // ink
	Debt       *big.Rat // art
	Tag        *big.Rat
	Mat        *big.Rat
	Per        *big.Rat
}

// Closed reports whether the CDP has been shut (owner burned).
func (p Position) Closed() bool {
	return p.Owner == (common.Address{})
}

// PriceFeed holds the global readings fetched once per cycle.
type PriceFeed struct {
	// Par is the target price of the debt unit.
	Par *big.Rat
	// Reference is the collateral feed price (ETH/USD), informational.
	Reference *big.Rat
}
