package model

import (
	"fmt"
	"math/big"
)

// Position mirrors a position-manager NFT.
type Position struct {
	ID        *big.Int `json:"id"`
	Owner     string   `json:"owner"`
	Token0    string   `json:"token0"`
	Token1    string   `json:"token1"`
	Fee       uint32   `json:"fee"`
	TickLower int32    `json:"tick_lower"`
	TickUpper int32    `json:"tick_upper"`
	Liquidity *big.Int `json:"liquidity"`
}

// Validate checks the tick bounds against the pool's tick spacing.
func (p Position) Validate(tickSpacing int32) error {
	if p.TickLower >= p.TickUpper {
		return fmt.Errorf("tick lower %d must be below tick upper %d", p.TickLower, p.TickUpper)
	}
	if tickSpacing <= 0 {
		return fmt.Errorf("invalid tick spacing %d", tickSpacing)
	}
	if p.TickLower%tickSpacing != 0 || p.TickUpper%tickSpacing != 0 {
		return fmt.Errorf("ticks [%d, %d] are not multiples of spacing %d", p.TickLower, p.TickUpper, tickSpacing)
	}
	return nil
}
