package tickmath

import (
	"fmt"
	"math/big"
)

// pricePrecision is the mantissa size used for price conversions. 256 bits keeps
// roughly 77 significant decimal digits across the full tick range.
const pricePrecision = 256

var tickBase = new(big.Float).SetPrec(pricePrecision).Quo(
	new(big.Float).SetPrec(pricePrecision).SetInt64(10001),
	new(big.Float).SetPrec(pricePrecision).SetInt64(10000),
)

func newFloat() *big.Float {
	return new(big.Float).SetPrec(pricePrecision)
}

// TickToPrice returns the human price of token0 quoted in token1 at tick:
// 1.0001^tick * 10^(decimals0-decimals1). With invert the price of token1 in
// token0 is returned instead.
func TickToPrice(tick int32, decimals0, decimals1 uint8, invert bool) (*big.Float, error) {
	if !InRange(tick) {
		return nil, fmt.Errorf("%w: %d", ErrTickOutOfRange, tick)
	}

	price := rawPrice(tick)
	price.Mul(price, decimalScale(int(decimals0)-int(decimals1)))
	if invert {
		price.Quo(newFloat().SetInt64(1), price)
	}
	return price, nil
}

// PriceToClosestTick returns the largest tick whose price does not exceed price.
// With invert, price is quoted as token1 in token0 and the result is the largest
// tick whose inverted price is not below it.
func PriceToClosestTick(price *big.Float, decimals0, decimals1 uint8, invert bool) (int32, error) {
	if price == nil || price.Sign() <= 0 || price.IsInf() {
		return 0, ErrInvalidPrice
	}

	raw := newFloat().Set(price)
	if invert {
		raw.Quo(newFloat().SetInt64(1), raw)
	}
	raw.Quo(raw, decimalScale(int(decimals0)-int(decimals1)))

	upperLimit := rawPrice(MaxTick)
	upperLimit.Mul(upperLimit, tickBase)
	if raw.Cmp(upperLimit) >= 0 {
		return 0, fmt.Errorf("%w: %s", ErrPriceOutOfRange, price.Text('g', 10))
	}

	sqrtRatio := newFloat().Sqrt(raw)
	sqrtRatio.Mul(sqrtRatio, newFloat().SetInt(Q96))
	sqrtInt, _ := sqrtRatio.Int(nil)

	var tick int32
	switch {
	case sqrtInt.Cmp(MinSqrtRatio) < 0:
		tick = MinTick
	case sqrtInt.Cmp(MaxSqrtRatio) >= 0:
		tick = MaxTick
	default:
		seed, err := GetTickAtSqrtRatio(sqrtInt)
		if err != nil {
			return 0, err
		}
		tick = seed
	}

	// The sqrt seed can be one tick off; settle it against TickToPrice so that
	// converting a tick's own price returns that tick.
	exceeds := func(t int32) bool {
		p, _ := TickToPrice(t, decimals0, decimals1, invert)
		if invert {
			return p.Cmp(price) < 0
		}
		return p.Cmp(price) > 0
	}
	for tick < MaxTick && !exceeds(tick+1) {
		tick++
	}
	for exceeds(tick) {
		if tick == MinTick {
			return 0, fmt.Errorf("%w: %s", ErrPriceOutOfRange, price.Text('g', 10))
		}
		tick--
	}
	return tick, nil
}

// SqrtPriceX96ToPrice converts a pool sqrtPriceX96 into the human price of token0
// quoted in token1.
func SqrtPriceX96ToPrice(sqrtPriceX96 *big.Int, decimals0, decimals1 uint8, invert bool) (*big.Float, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return nil, ErrSqrtPriceOutOfRange
	}
	ratio := newFloat().SetInt(sqrtPriceX96)
	ratio.Quo(ratio, newFloat().SetInt(Q96))
	ratio.Mul(ratio, ratio)
	ratio.Mul(ratio, decimalScale(int(decimals0)-int(decimals1)))
	if invert {
		ratio.Quo(newFloat().SetInt64(1), ratio)
	}
	return ratio, nil
}

// rawPrice is 1.0001^tick without decimal scaling.
func rawPrice(tick int32) *big.Float {
	n := int64(tick)
	if n < 0 {
		n = -n
	}

	result := newFloat().SetInt64(1)
	base := newFloat().Set(tickBase)
	for n > 0 {
		if n&1 == 1 {
			result.Mul(result, base)
		}
		base.Mul(base, base)
		n >>= 1
	}

	if tick < 0 {
		result.Quo(newFloat().SetInt64(1), result)
	}
	return result
}

func decimalScale(exp int) *big.Float {
	if exp == 0 {
		return newFloat().SetInt64(1)
	}
	abs := exp
	if abs < 0 {
		abs = -abs
	}
	scale := newFloat().SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(abs)), nil))
	if exp < 0 {
		return newFloat().Quo(newFloat().SetInt64(1), scale)
	}
	return scale
}
