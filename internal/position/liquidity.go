package position

import (
	"math/big"

	"github.com/shopspring/decimal"

	"zapScope/internal/tickmath"
)

// GetLiquidityForAmounts returns the largest liquidity that amount0 and amount1
// can fund between sqrtRatioAX96 and sqrtRatioBX96 at sqrtPriceX96.
func GetLiquidityForAmounts(sqrtPriceX96, sqrtRatioAX96, sqrtRatioBX96, amount0, amount1 *big.Int) *big.Int {
	a, b := sqrtRatioAX96, sqrtRatioBX96
	if a.Cmp(b) > 0 {
		a, b = b, a
	}

	switch {
	case sqrtPriceX96.Cmp(a) <= 0:
		return liquidityForAmount0(a, b, amount0)
	case sqrtPriceX96.Cmp(b) < 0:
		l0 := liquidityForAmount0(sqrtPriceX96, b, amount0)
		l1 := liquidityForAmount1(a, sqrtPriceX96, amount1)
		if l0.Cmp(l1) < 0 {
			return l0
		}
		return l1
	default:
		return liquidityForAmount1(a, b, amount1)
	}
}

func liquidityForAmount0(a, b, amount0 *big.Int) *big.Int {
	if amount0 == nil || amount0.Sign() <= 0 || a.Cmp(b) == 0 {
		return big.NewInt(0)
	}
	intermediate := new(big.Int).Mul(a, b)
	intermediate.Quo(intermediate, tickmath.Q96)
	out := new(big.Int).Mul(amount0, intermediate)
	return out.Quo(out, new(big.Int).Sub(b, a))
}

func liquidityForAmount1(a, b, amount1 *big.Int) *big.Int {
	if amount1 == nil || amount1.Sign() <= 0 || a.Cmp(b) == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount1, tickmath.Q96)
	return out.Quo(out, new(big.Int).Sub(b, a))
}

// FormatAmount renders a raw token amount in whole-token units.
func FormatAmount(raw *big.Int, decimals uint8) string {
	if raw == nil {
		return "0"
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).String()
}
