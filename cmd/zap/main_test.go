package main

import (
	"bytes"
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapScope/internal/controller"
	"zapScope/internal/impact"
	"zapScope/internal/model"
	"zapScope/internal/tickmath"
	"zapScope/internal/tokenlist"
	"zapScope/internal/zapapi"
)

func TestPriceCommand(t *testing.T) {
	cmd := newPriceCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--tick", "0", "--tick-spacing", "60"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "tick=0 price=1\nusable_tick=0 price=1\n", out.String())

	cmd = newPriceCmd()
	out.Reset()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--price", "1"})
	require.NoError(t, cmd.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "tick=0 "), out.String())

	cmd = newPriceCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--price", "-3"})
	assert.Error(t, cmd.Execute())
}

func TestRangeTicksFromPrices(t *testing.T) {
	pool := &model.Pool{
		Token0:      model.Token{Decimals: 18},
		Token1:      model.Token{Decimals: 6},
		TickSpacing: 60,
	}
	cmd := &cobra.Command{}
	addZapInFlags(cmd)

	lower, upper, err := rangeTicks(cmd, pool, -600, 600)
	require.NoError(t, err)
	assert.Equal(t, int32(-600), lower)
	assert.Equal(t, int32(600), upper)

	require.NoError(t, cmd.Flags().Set("price-lower", "1500"))
	require.NoError(t, cmd.Flags().Set("price-upper", "2500"))
	lower, upper, err = rangeTicks(cmd, pool, 0, 0)
	require.NoError(t, err)

	price, _ := new(big.Float).SetString("1500")
	want, err := tickmath.PriceToClosestTick(price, 18, 6, false)
	require.NoError(t, err)
	want, err = tickmath.NearestUsableTick(want, 60)
	require.NoError(t, err)
	assert.Equal(t, want, lower)
	assert.Less(t, lower, upper)
	assert.Zero(t, upper%60)
}

func TestLiquidityShare(t *testing.T) {
	got, err := liquidityShare(big.NewInt(1_000), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), got.Int64())

	got, err = liquidityShare(big.NewInt(1_000), 25)
	require.NoError(t, err)
	assert.Equal(t, int64(250), got.Int64())

	_, err = liquidityShare(big.NewInt(1_000), 0)
	assert.Error(t, err)
	_, err = liquidityShare(big.NewInt(1_000), 101)
	assert.Error(t, err)
	_, err = liquidityShare(new(big.Int), 50)
	assert.Error(t, err)
	_, err = liquidityShare(big.NewInt(1), 1)
	assert.Error(t, err)
}

func TestImpactGate(t *testing.T) {
	percent := 25.0
	veryHigh := impact.Classify(&percent, 1)
	assert.Error(t, impactGate(veryHigh, false))
	assert.NoError(t, impactGate(veryHigh, true))
	assert.Error(t, impactGate(impact.Classify(nil, 1), false))

	percent = 2
	assert.NoError(t, impactGate(impact.Classify(&percent, 1), false))
}

func TestDescribePool(t *testing.T) {
	pool := &model.Pool{
		Address:      "0x1111111111111111111111111111111111111111",
		Dex:          model.DexPancakeV3,
		Token0:       model.Token{Symbol: "WBNB", Decimals: 18},
		Token1:       model.Token{Symbol: "USDT", Decimals: 18},
		Fee:          500,
		TickSpacing:  10,
		SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96),
		Liquidity:    big.NewInt(42),
	}
	view := describePool(pool, impact.DefaultPolicy().WarningThreshold(pool.FeeBps()))
	assert.Equal(t, "1", view.Price)
	assert.Equal(t, 5.0, view.FeeBps)
	assert.Equal(t, 0.1, view.ImpactThreshold)
	assert.Equal(t, "42", view.Liquidity)
}

type stubRoutes struct {
	reqs chan zapapi.RouteRequest
}

func (s stubRoutes) GetRoute(_ context.Context, req zapapi.RouteRequest) (*model.ZapRoute, error) {
	s.reqs <- req
	return &model.ZapRoute{Route: "0x01"}, nil
}

func TestApplyEdit(t *testing.T) {
	pool := &model.Pool{
		Address:      "0x1111111111111111111111111111111111111111",
		Dex:          model.DexUniswapV3,
		Token0:       model.Token{Address: "0x00000000000000000000000000000000000000aa", Symbol: "A", Decimals: 18},
		Token1:       model.Token{Address: "0x00000000000000000000000000000000000000bb", Symbol: "B", Decimals: 6},
		Fee:          3000,
		TickSpacing:  60,
		SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96),
		Liquidity:    big.NewInt(1),
	}
	routes := stubRoutes{reqs: make(chan zapapi.RouteRequest, 4)}
	ctl := controller.New(routes, controller.Inputs{
		Pool:     pool,
		TokensIn: []model.Token{pool.Token1},
		Amounts:  []string{"1"},
		Wallet:   "0x00000000000000000000000000000000000000cc",
	}, controller.Options{Debounce: 200 * time.Millisecond})
	defer ctl.Close()

	a := &app{}
	ctx := context.Background()
	require.NoError(t, applyEdit(ctx, a, ctl, "range -120 120"))
	require.NoError(t, applyEdit(ctx, a, ctl, "slippage 30"))
	require.NoError(t, applyEdit(ctx, a, ctl, "amount 0x00000000000000000000000000000000000000BB 2.5"))
	assert.Error(t, applyEdit(ctx, a, ctl, "amount 0x00000000000000000000000000000000000000aa 1"))
	assert.Error(t, applyEdit(ctx, a, ctl, "range x 1"))
	assert.Error(t, applyEdit(ctx, a, ctl, "bogus"))

	select {
	case req := <-routes.reqs:
		assert.Equal(t, int32(-120), req.TickLower)
		assert.Equal(t, int32(120), req.TickUpper)
		assert.Equal(t, uint32(30), req.SlippageBps)
		assert.Equal(t, "2500000", req.AmountsIn[0].String())
	case <-time.After(2 * time.Second):
		t.Fatal("expected a route request")
	}
}

func TestBalancesFollowTokenEdits(t *testing.T) {
	tokenA := model.Token{Address: "0x00000000000000000000000000000000000000aa", Symbol: "A", Decimals: 18}
	tokenB := model.Token{Address: "0x00000000000000000000000000000000000000bb", Symbol: "B", Decimals: 6}
	pool := &model.Pool{
		Address:      "0x1111111111111111111111111111111111111111",
		Dex:          model.DexUniswapV3,
		Token0:       tokenA,
		Token1:       tokenB,
		Fee:          3000,
		TickSpacing:  60,
		SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96),
		Liquidity:    big.NewInt(1),
	}
	routes := stubRoutes{reqs: make(chan zapapi.RouteRequest, 8)}
	ctl := controller.New(routes, controller.Inputs{
		Pool:      pool,
		TokensIn:  []model.Token{tokenB},
		Amounts:   []string{"1"},
		TickLower: -120,
		TickUpper: 120,
		Wallet:    "0x00000000000000000000000000000000000000cc",
	}, controller.Options{Debounce: time.Hour})
	defer ctl.Close()

	cache := tokenlist.NewMemoryCache()
	require.NoError(t, cache.Set(context.Background(), tokenA))
	a := &app{tokens: tokenlist.NewResolver(nil, cache, nil, nil)}

	var polled []model.Token
	fetch := balanceFetch(ctl, "0x00000000000000000000000000000000000000cc", func(_ context.Context, _ string, tokens []model.Token) (map[string]*big.Int, error) {
		polled = tokens
		out := make(map[string]*big.Int, len(tokens))
		for _, token := range tokens {
			out[token.Key()] = big.NewInt(1)
		}
		return out, nil
	})

	ctx := context.Background()
	require.NoError(t, applyEdit(ctx, a, ctl, "tokens "+tokenA.Address))
	require.NoError(t, applyEdit(ctx, a, ctl, "amount "+tokenA.Address+" 5"))

	balances, err := fetch(ctx)
	require.NoError(t, err)
	require.Len(t, polled, 1)
	assert.Equal(t, tokenA.Key(), polled[0].Key())
	assert.Contains(t, balances, tokenA.Key())

	ctl.SetBalances(balances)
	err = ctl.Validate()
	require.Error(t, err)
	assert.Equal(t, "Insufficient A balance", err.Error())
}

func TestReadLinesSkipsBlank(t *testing.T) {
	out := make(chan string, 4)
	readLines(context.Background(), strings.NewReader("amount a 1\n\n  refresh  \n"), out)
	var got []string
	for line := range out {
		got = append(got, line)
	}
	assert.Equal(t, []string{"amount a 1", "refresh"}, got)
}
