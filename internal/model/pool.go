package model

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// DexKind discriminates the concentrated-liquidity pool variants.
type DexKind string

const (
	DexUniswapV3   DexKind = "uniswapv3"
	DexPancakeV3   DexKind = "pancakev3"
	DexSushiSwapV3 DexKind = "sushiv3"
)

// ParseDexKind validates a dex name.
func ParseDexKind(name string) (DexKind, error) {
	switch kind := DexKind(strings.ToLower(strings.TrimSpace(name))); kind {
	case DexUniswapV3, DexPancakeV3, DexSushiSwapV3:
		return kind, nil
	default:
		return "", fmt.Errorf("unsupported dex: %s", name)
	}
}

// APIName is the identifier the route service expects for the dex.
func (d DexKind) APIName() string {
	switch d {
	case DexUniswapV3:
		return "DEX_UNISWAPV3"
	case DexPancakeV3:
		return "DEX_PANCAKESWAPV3"
	case DexSushiSwapV3:
		return "DEX_SUSHISWAPV3"
	default:
		return ""
	}
}

// FeeBps converts an on-chain fee (hundredths of a bip for every supported
// variant) into basis points.
func (d DexKind) FeeBps(fee uint32) float64 {
	return float64(fee) / 100
}

// TickData is the liquidity bookkeeping of one initialized tick.
type TickData struct {
	Index          int32    `json:"index"`
	LiquidityGross *big.Int `json:"liquidity_gross"`
	LiquidityNet   *big.Int `json:"liquidity_net"`
}

// Pool is an immutable snapshot of a concentrated-liquidity pool. A refresh
// produces a new Pool; consumers never mutate one in place.
type Pool struct {
	ChainID      uint64     `json:"chain_id"`
	Address      string     `json:"address"`
	Dex          DexKind    `json:"dex"`
	Token0       Token      `json:"token0"`
	Token1       Token      `json:"token1"`
	Fee          uint32     `json:"fee"`
	TickSpacing  int32      `json:"tick_spacing"`
	Tick         int32      `json:"tick"`
	SqrtPriceX96 *big.Int   `json:"sqrt_price_x96"`
	Liquidity    *big.Int   `json:"liquidity"`
	Ticks        []TickData `json:"ticks,omitempty"`
	FetchedAt    time.Time  `json:"fetched_at"`
}

// FeeBps is the pool fee in basis points.
func (p *Pool) FeeBps() float64 {
	return p.Dex.FeeBps(p.Fee)
}

// Canonical reports whether token0 sorts before token1 by address, the
// ordering every supported dex uses.
func (p *Pool) Canonical() bool {
	return TokenKey(p.Token0.Address) < TokenKey(p.Token1.Address)
}

// HasToken reports whether address is one of the pool tokens.
func (p *Pool) HasToken(address string) bool {
	key := TokenKey(address)
	return key == p.Token0.Key() || key == p.Token1.Key()
}

// Clone returns a deep copy.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	out := *p
	out.SqrtPriceX96 = cloneInt(p.SqrtPriceX96)
	out.Liquidity = cloneInt(p.Liquidity)
	if p.Ticks != nil {
		out.Ticks = make([]TickData, len(p.Ticks))
		for i, tick := range p.Ticks {
			out.Ticks[i] = TickData{
				Index:          tick.Index,
				LiquidityGross: cloneInt(tick.LiquidityGross),
				LiquidityNet:   cloneInt(tick.LiquidityNet),
			}
		}
	}
	return &out
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
