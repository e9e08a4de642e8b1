package tickmath

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

const (
	// MinTick is the lowest tick representable by the pool contracts.
	MinTick int32 = -887272
	// MaxTick is the highest tick representable by the pool contracts.
	MaxTick int32 = 887272
)

var (
	// MinSqrtRatio is GetSqrtRatioAtTick(MinTick).
	MinSqrtRatio = mustBig("4295128739")
	// MaxSqrtRatio is GetSqrtRatioAtTick(MaxTick).
	MaxSqrtRatio = mustBig("1461446703485210103287273052203988822378723970342")

	// Q96 is 2^96, the scale of sqrtPriceX96 values.
	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)

	ErrTickOutOfRange      = errors.New("tick out of range")
	ErrSqrtPriceOutOfRange = errors.New("sqrt price out of range")
	ErrPriceOutOfRange     = errors.New("price out of tick range")
	ErrInvalidPrice        = errors.New("price must be positive")
	ErrInvalidTickSpacing  = errors.New("tick spacing must be positive")
)

var (
	maxUint256 = new(uint256.Int).Not(new(uint256.Int))
	one256     = uint256.NewInt(1)
	lowMask32  = uint256.NewInt(0xffffffff)

	oddRatio = mustHex("0xfffcb933bd6fad37aa2d162d1a594001")
	q128     = mustHex("0x100000000000000000000000000000000")

	// bitRatios[i] is sqrt(1.0001^-(2^(i+1))) in Q128.128, applied when bit i+1 of |tick| is set.
	bitRatios = []*uint256.Int{
		mustHex("0xfff97272373d413259a46990580e213a"),
		mustHex("0xfff2e50f5f656932ef12357cf3c7fdcc"),
		mustHex("0xffe5caca7e10e4e61c3624eaa0941cd0"),
		mustHex("0xffcb9843d60f6159c9db58835c926644"),
		mustHex("0xff973b41fa98c081472e6896dfb254c0"),
		mustHex("0xff2ea16466c96a3843ec78b326b52861"),
		mustHex("0xfe5dee046a99a2a811c461f1969c3053"),
		mustHex("0xfcbe86c7900a88aedcffc83b479aa3a4"),
		mustHex("0xf987a7253ac413176f2b074cf7815e54"),
		mustHex("0xf3392b0822b70005940c7a398e4b70f3"),
		mustHex("0xe7159475a2c29b7443b29c7fa6e889d9"),
		mustHex("0xd097f3bdfd2022b8845ad8f792aa5825"),
		mustHex("0xa9f746462d870fdf8a65dc1f90e061e5"),
		mustHex("0x70d869a156d2a1b890bb3df62baf32f7"),
		mustHex("0x31be135f97d08fd981231505542fcfa6"),
		mustHex("0x9aa508b5b7a84e1c677de54f3e99bc9"),
		mustHex("0x5d6af8dedb81196699c329225ee604"),
		mustHex("0x2216e584f5fa1ea926041bedfe98"),
		mustHex("0x48a170391f7dc42444e8fa2"),
	}
)

// GetSqrtRatioAtTick returns sqrt(1.0001^tick) * 2^96, rounded up exactly as the
// pool contracts do.
func GetSqrtRatioAtTick(tick int32) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, fmt.Errorf("%w: %d", ErrTickOutOfRange, tick)
	}

	absTick := uint32(tick)
	if tick < 0 {
		absTick = uint32(-tick)
	}

	ratio := new(uint256.Int)
	if absTick&0x1 != 0 {
		ratio.Set(oddRatio)
	} else {
		ratio.Set(q128)
	}
	for i, factor := range bitRatios {
		if absTick&(1<<(i+1)) != 0 {
			ratio.Mul(ratio, factor)
			ratio.Rsh(ratio, 128)
		}
	}

	if tick > 0 {
		ratio.Div(maxUint256, ratio)
	}

	rem := new(uint256.Int).And(ratio, lowMask32)
	ratio.Rsh(ratio, 32)
	if !rem.IsZero() {
		ratio.Add(ratio, one256)
	}
	return ratio.ToBig(), nil
}

// GetTickAtSqrtRatio returns the greatest tick whose sqrt ratio is <= sqrtPriceX96.
func GetTickAtSqrtRatio(sqrtPriceX96 *big.Int) (int32, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Cmp(MinSqrtRatio) < 0 || sqrtPriceX96.Cmp(MaxSqrtRatio) >= 0 {
		return 0, ErrSqrtPriceOutOfRange
	}

	low, high := MinTick, MaxTick
	var tick int32
	for low <= high {
		mid := low + (high-low)/2
		ratio, err := GetSqrtRatioAtTick(mid)
		if err != nil {
			return 0, err
		}
		if ratio.Cmp(sqrtPriceX96) <= 0 {
			tick = mid
			low = mid + 1
		} else {
			high = mid - 1
		}
	}
	return tick, nil
}

// NearestUsableTick rounds tick to the nearest multiple of tickSpacing. Ties round
// half away from zero (5 -> 10, -5 -> -10 for spacing 10). A result outside the
// tick range is pulled back inward by one spacing.
func NearestUsableTick(tick, tickSpacing int32) (int32, error) {
	if tickSpacing <= 0 {
		return 0, ErrInvalidTickSpacing
	}
	if tick < MinTick || tick > MaxTick {
		return 0, fmt.Errorf("%w: %d", ErrTickOutOfRange, tick)
	}

	spacing := int64(tickSpacing)
	q := int64(tick) / spacing
	r := int64(tick) % spacing
	if r < 0 {
		r = -r
	}
	if 2*r >= spacing {
		if tick < 0 {
			q--
		} else {
			q++
		}
	}

	rounded := q * spacing
	if rounded < int64(MinTick) {
		rounded += spacing
	} else if rounded > int64(MaxTick) {
		rounded -= spacing
	}
	return int32(rounded), nil
}

// MinUsableTick is the lowest multiple of tickSpacing inside the tick range.
func MinUsableTick(tickSpacing int32) int32 {
	if tickSpacing <= 0 {
		return MinTick
	}
	return -(MaxTick / tickSpacing) * tickSpacing
}

// MaxUsableTick is the highest multiple of tickSpacing inside the tick range.
func MaxUsableTick(tickSpacing int32) int32 {
	if tickSpacing <= 0 {
		return MaxTick
	}
	return (MaxTick / tickSpacing) * tickSpacing
}

// InRange reports whether tick lies inside [MinTick, MaxTick].
func InRange(tick int32) bool {
	return tick >= MinTick && tick <= MaxTick
}

func mustBig(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("tickmath: invalid constant " + s)
	}
	return n
}

func mustHex(s string) *uint256.Int {
	n, err := uint256.FromHex(s)
	if err != nil {
		panic(fmt.Sprintf("tickmath: invalid constant %s: %v", s, err))
	}
	return n
}
