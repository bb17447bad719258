package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Snapshot is a position with its derived liquidation metrics. It lives
// for a single monitoring cycle or status request.
type Snapshot struct {
	PositionID       uint64
	Owner            common.Address
	Collateral       *big.Rat
	Debt             *big.Rat
	Closed           bool
	Ratio            *big.Rat
	LiquidationPrice *big.Rat
}

// HasRatio reports whether the snapshot carries a positive ratio.
func (s Snapshot) HasRatio() bool {
	return !s.Closed && s.Ratio != nil && s.Ratio.Sign() > 0
}
