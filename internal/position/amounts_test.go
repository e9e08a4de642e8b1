package position

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapScope/internal/tickmath"
)

func sqrtAt(t *testing.T, tick int32) *big.Int {
	t.Helper()
	ratio, err := tickmath.GetSqrtRatioAtTick(tick)
	require.NoError(t, err)
	return ratio
}

func oneEther() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
}

func TestGetPositionAmountsAboveRange(t *testing.T) {
	liquidity := oneEther()
	amount0, amount1, err := GetPositionAmounts(500, -100, 100, sqrtAt(t, 500), liquidity)
	require.NoError(t, err)

	assert.Equal(t, 0, amount0.Sign())
	require.Equal(t, 1, amount1.Sign())

	f, _ := new(big.Float).SetInt(amount1).Float64()
	want := 1e18 * (math.Pow(1.0001, 50) - math.Pow(1.0001, -50))
	assert.InEpsilon(t, want, f, 1e-9)
}

func TestGetPositionAmountsBelowRange(t *testing.T) {
	amount0, amount1, err := GetPositionAmounts(-500, -100, 100, sqrtAt(t, -500), oneEther())
	require.NoError(t, err)

	assert.Equal(t, 1, amount0.Sign())
	assert.Equal(t, 0, amount1.Sign())
}

func TestGetPositionAmountsBoundaries(t *testing.T) {
	t.Run("at lower tick holds no token1", func(t *testing.T) {
		amount0, amount1, err := GetPositionAmounts(-60, -60, 60, sqrtAt(t, -60), oneEther())
		require.NoError(t, err)
		assert.Equal(t, 1, amount0.Sign())
		assert.Equal(t, 0, amount1.Sign())
	})

	t.Run("at upper tick holds no token0", func(t *testing.T) {
		amount0, amount1, err := GetPositionAmounts(60, -60, 60, sqrtAt(t, 60), oneEther())
		require.NoError(t, err)
		assert.Equal(t, 0, amount0.Sign())
		assert.Equal(t, 1, amount1.Sign())
	})
}

func TestGetPositionAmountsInRangeSymmetric(t *testing.T) {
	amount0, amount1, err := GetPositionAmounts(0, -60, 60, tickmath.Q96, oneEther())
	require.NoError(t, err)

	diff := new(big.Int).Sub(amount0, amount1)
	assert.LessOrEqual(t, new(big.Int).Abs(diff).Int64(), int64(2), "amount0 %s amount1 %s", amount0, amount1)

	f, _ := new(big.Float).SetInt(amount1).Float64()
	assert.InEpsilon(t, 1e18*(1-math.Pow(1.0001, -30)), f, 1e-9)
}

func TestGetPositionAmountsZeroLiquidity(t *testing.T) {
	inputs := []struct {
		current, lower, upper int32
	}{
		{current: 0, lower: -60, upper: 60},
		{current: 10, lower: 100, upper: 100},
		{current: 10, lower: 200, upper: -200},
		{current: 0, lower: tickmath.MinTick - 5, upper: tickmath.MaxTick + 5},
	}
	for _, in := range inputs {
		amount0, amount1, err := GetPositionAmounts(in.current, in.lower, in.upper, nil, big.NewInt(0))
		require.NoError(t, err)
		assert.Equal(t, 0, amount0.Sign())
		assert.Equal(t, 0, amount1.Sign())
	}
}

func TestGetPositionAmountsErrors(t *testing.T) {
	_, _, err := GetPositionAmounts(0, 60, 60, tickmath.Q96, oneEther())
	require.ErrorIs(t, err, ErrInvalidRange)

	_, _, err = GetPositionAmounts(0, 60, -60, tickmath.Q96, oneEther())
	require.ErrorIs(t, err, ErrInvalidRange)

	_, _, err = GetPositionAmounts(0, tickmath.MinTick-1, 60, tickmath.Q96, oneEther())
	require.ErrorIs(t, err, tickmath.ErrTickOutOfRange)

	_, _, err = GetPositionAmounts(0, -60, 60, nil, oneEther())
	require.ErrorIs(t, err, ErrInvalidSqrtPrice)

	_, _, err = GetPositionAmounts(0, -60, 60, tickmath.Q96, big.NewInt(-1))
	require.ErrorIs(t, err, ErrNegativeLiquidity)
}

func TestAmountDeltaRounding(t *testing.T) {
	a, b := sqrtAt(t, -1000), sqrtAt(t, 1000)
	liquidity := big.NewInt(123456789)

	down, err := GetAmount0Delta(a, b, liquidity, false)
	require.NoError(t, err)
	up, err := GetAmount0Delta(b, a, liquidity, true)
	require.NoError(t, err)
	assert.True(t, up.Cmp(down) >= 0)
	assert.True(t, new(big.Int).Sub(up, down).Cmp(big.NewInt(1)) <= 0)

	down1 := GetAmount1Delta(a, b, liquidity, false)
	up1 := GetAmount1Delta(b, a, liquidity, true)
	assert.True(t, up1.Cmp(down1) >= 0)
}

func TestGetLiquidityForAmounts(t *testing.T) {
	liquidity := oneEther()
	current := sqrtAt(t, 25)
	lower, upper := sqrtAt(t, -600), sqrtAt(t, 600)

	amount0, amount1, err := GetPositionAmounts(25, -600, 600, current, liquidity)
	require.NoError(t, err)

	got := GetLiquidityForAmounts(current, lower, upper, amount0, amount1)
	require.True(t, got.Cmp(liquidity) <= 0, "got %s", got)

	gap := new(big.Int).Sub(liquidity, got)
	tolerance := new(big.Int).Div(liquidity, big.NewInt(1_000_000_000))
	assert.True(t, gap.Cmp(tolerance) <= 0, "gap %s", gap)

	onlyToken1 := GetLiquidityForAmounts(sqrtAt(t, 700), lower, upper, nil, amount1)
	assert.Equal(t, 1, onlyToken1.Sign())
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1.5", FormatAmount(big.NewInt(1_500_000), 6))
	assert.Equal(t, "0", FormatAmount(nil, 18))
	assert.Equal(t, "42", FormatAmount(big.NewInt(42), 0))
	assert.Equal(t, "-0.000000000000000001", FormatAmount(big.NewInt(-1), 18))
}
