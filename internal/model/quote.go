package model

import (
	"math/big"
	"time"
)

// QuoteRecord is one priced route, as appended to the quote log.
type QuoteRecord struct {
	Timestamp     time.Time `json:"ts"`
	ChainID       uint64    `json:"chain_id"`
	Dex           DexKind   `json:"dex"`
	Pool          string    `json:"pool"`
	Kind          string    `json:"kind"`
	TickLower     int32     `json:"tick_lower"`
	TickUpper     int32     `json:"tick_upper"`
	TokensIn      []string  `json:"tokens_in,omitempty"`
	AmountsIn     []string  `json:"amounts_in,omitempty"`
	SlippageBps   uint32    `json:"slippage_bps"`
	ImpactLevel   string    `json:"impact_level"`
	ImpactDisplay string    `json:"impact_display"`
	Amount0       *big.Int  `json:"amount0,omitempty"`
	Amount1       *big.Int  `json:"amount1,omitempty"`
	Route         *ZapRoute `json:"route"`
}
