package position

import (
	"errors"
	"fmt"
	"math/big"

	"zapScope/internal/tickmath"
)

var (
	ErrInvalidRange      = errors.New("tick lower must be below tick upper")
	ErrInvalidSqrtPrice  = errors.New("sqrt price must be positive")
	ErrNegativeLiquidity = errors.New("liquidity must not be negative")
)

// GetPositionAmounts returns the raw token0/token1 amounts represented by
// liquidity between tickLower and tickUpper at the current pool price.
//
// A position is all token0 while currentTick < tickLower, all token1 once
// currentTick >= tickUpper, and split at currentSqrtPriceX96 in between.
// Amounts are rounded down.
func GetPositionAmounts(currentTick, tickLower, tickUpper int32, currentSqrtPriceX96, liquidity *big.Int) (*big.Int, *big.Int, error) {
	if liquidity == nil || liquidity.Sign() == 0 {
		return big.NewInt(0), big.NewInt(0), nil
	}
	if liquidity.Sign() < 0 {
		return nil, nil, ErrNegativeLiquidity
	}
	if tickLower >= tickUpper {
		return nil, nil, fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, tickLower, tickUpper)
	}

	sqrtLower, err := tickmath.GetSqrtRatioAtTick(tickLower)
	if err != nil {
		return nil, nil, fmt.Errorf("tick lower: %w", err)
	}
	sqrtUpper, err := tickmath.GetSqrtRatioAtTick(tickUpper)
	if err != nil {
		return nil, nil, fmt.Errorf("tick upper: %w", err)
	}

	switch {
	case currentTick < tickLower:
		amount0, err := GetAmount0Delta(sqrtLower, sqrtUpper, liquidity, false)
		if err != nil {
			return nil, nil, err
		}
		return amount0, big.NewInt(0), nil
	case currentTick >= tickUpper:
		return big.NewInt(0), GetAmount1Delta(sqrtLower, sqrtUpper, liquidity, false), nil
	default:
		if currentSqrtPriceX96 == nil || currentSqrtPriceX96.Sign() <= 0 {
			return nil, nil, ErrInvalidSqrtPrice
		}
		amount0, err := GetAmount0Delta(currentSqrtPriceX96, sqrtUpper, liquidity, false)
		if err != nil {
			return nil, nil, err
		}
		amount1 := GetAmount1Delta(sqrtLower, currentSqrtPriceX96, liquidity, false)
		return amount0, amount1, nil
	}
}

// GetAmount0Delta returns L * (sqrtB - sqrtA) / (sqrtA * sqrtB) in token0 units.
func GetAmount0Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) (*big.Int, error) {
	a, b := sqrtRatioAX96, sqrtRatioBX96
	if a.Cmp(b) > 0 {
		a, b = b, a
	}
	if a.Sign() <= 0 {
		return nil, ErrInvalidSqrtPrice
	}

	numerator1 := new(big.Int).Lsh(liquidity, 96)
	numerator2 := new(big.Int).Sub(b, a)

	if roundUp {
		term := mulDivRoundingUp(numerator1, numerator2, b)
		return divRoundingUp(term, a), nil
	}
	term := new(big.Int).Mul(numerator1, numerator2)
	term.Quo(term, b)
	return term.Quo(term, a), nil
}

// GetAmount1Delta returns L * (sqrtB - sqrtA) / 2^96 in token1 units.
func GetAmount1Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) *big.Int {
	a, b := sqrtRatioAX96, sqrtRatioBX96
	if a.Cmp(b) > 0 {
		a, b = b, a
	}
	diff := new(big.Int).Sub(b, a)
	if roundUp {
		return mulDivRoundingUp(liquidity, diff, tickmath.Q96)
	}
	out := new(big.Int).Mul(liquidity, diff)
	return out.Quo(out, tickmath.Q96)
}

func mulDivRoundingUp(a, b, denominator *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	return divRoundingUp(product, denominator)
}

func divRoundingUp(a, b *big.Int) *big.Int {
	quo, rem := new(big.Int).QuoRem(a, b, new(big.Int))
	if rem.Sign() > 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return quo
}
