package zapapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapScope/internal/model"
)

const routeFixture = `{
  "code": 0,
  "message": "OK",
  "data": {
    "poolDetails": {"tick": -200, "newTick": -190, "sqrtP": "79228162514264337593543950336", "newSqrtP": "79307426338960776842885539845"},
    "positionDetails": {"addedLiquidity": "1000000", "addedAmount0": "400", "addedAmount1": "600", "addedAmountUsd": "99.2"},
    "zapDetails": {
      "initialAmountUsd": "100",
      "finalAmountUsd": "99.2",
      "priceImpact": 0.8,
      "actions": [
        {"type": "ACTION_TYPE_PROTOCOL_FEE", "protocolFee": {"pcm": 10, "tokens": [{"address": "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "amount": "1", "amountUsd": "0.01"}]}},
        {"type": "ACTION_TYPE_AGGREGATOR_SWAP", "aggregatorSwap": {"swaps": [{
          "tokenIn": {"address": "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "amount": "500", "amountUsd": "50"},
          "tokenOut": {"address": "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", "amount": "600", "amountUsd": "49.9"}
        }]}},
        {"type": "ACTION_TYPE_ADD_LIQUIDITY", "addLiquidity": {
          "token0": {"address": "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "amount": "400", "amountUsd": "40"},
          "token1": {"address": "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", "amount": "600", "amountUsd": "59.2"}
        }},
        {"type": "ACTION_TYPE_REFUND", "refund": {"tokens": []}}
      ]
    },
    "route": "encoded-route",
    "routerAddress": "0x6666666666666666666666666666666666666666",
    "gas": "350000",
    "gasUsd": "0.12"
  }
}`

func testPool() *model.Pool {
	return &model.Pool{
		Address: "0x1111111111111111111111111111111111111111",
		Dex:     model.DexPancakeV3,
		Token0:  model.Token{Address: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
		Token1:  model.Token{Address: "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"},
		Fee:     2500,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(Options{BaseURL: server.URL + "/api/v1", ClientID: "zapscope-test", Timeout: 2 * time.Second})
	require.NoError(t, err)
	return client
}

func TestGetRouteQueryAndDecode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/in/route", r.URL.Path)
		assert.Equal(t, "zapscope-test", r.Header.Get("X-Client-Id"))
		q := r.URL.Query()
		assert.Equal(t, "DEX_PANCAKESWAPV3", q.Get("dex"))
		assert.Equal(t, "0x1111111111111111111111111111111111111111", q.Get("pool.id"))
		assert.Equal(t, "2500", q.Get("pool.fee"))
		assert.Equal(t, "-100", q.Get("position.tickLower"))
		assert.Equal(t, "100", q.Get("position.tickUpper"))
		assert.Equal(t, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", q.Get("tokensIn"))
		assert.Equal(t, "1000", q.Get("amountsIn"))
		assert.Equal(t, "50", q.Get("slippage"))
		assert.Equal(t, "0x7777777777777777777777777777777777777777", q.Get("feeAddress"))
		assert.Equal(t, "150", q.Get("feePcm"))
		_, _ = io.WriteString(w, routeFixture)
	})

	route, err := client.GetRoute(context.Background(), RouteRequest{
		Pool:        testPool(),
		TickLower:   -100,
		TickUpper:   100,
		TokensIn:    []string{"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
		AmountsIn:   []*big.Int{big.NewInt(1000)},
		SlippageBps: 50,
		Fee:         PartnerFee{Address: "0x7777777777777777777777777777777777777777", Bps: 15},
	})
	require.NoError(t, err)

	require.Len(t, route.Actions, 4)
	assert.Equal(t, model.ActionProtocolFee, route.Actions[0].Kind)
	assert.Equal(t, uint32(10), route.Actions[0].ProtocolFee.Pcm)
	require.NotNil(t, route.Actions[1].AggregatorSwap)
	assert.Equal(t, "600", route.Actions[1].AggregatorSwap.Swaps[0].TokenOut.Amount.String())
	assert.Len(t, route.ActionsOf(model.ActionAddLiquidity), 1)

	assert.Equal(t, int32(-190), route.PoolDetails.NewTick)
	assert.Equal(t, "1000000", route.PositionDetails.AddedLiquidity.String())
	require.NotNil(t, route.PriceImpact)
	assert.InDelta(t, 0.8, *route.PriceImpact, 1e-12)
	assert.InDelta(t, 99.2, route.FinalAmountUSD, 1e-9)
	assert.Equal(t, "350000", route.Gas.String())
	assert.Equal(t, "encoded-route", route.Route)
}

func TestGetRouteMultipleTokensComma(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa,0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", q.Get("tokensIn"))
		assert.Equal(t, "1,2", q.Get("amountsIn"))
		assert.Empty(t, q.Get("feeAddress"))
		_, _ = io.WriteString(w, routeFixture)
	})
	_, err := client.GetRoute(context.Background(), RouteRequest{
		Pool:      testPool(),
		TickLower: -100,
		TickUpper: 100,
		TokensIn:  []string{"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"},
		AmountsIn: []*big.Int{big.NewInt(1), big.NewInt(2)},
	})
	require.NoError(t, err)
}

func TestGetRouteAPIErrorNotRetried(t *testing.T) {
	var hits int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"code": 4008, "message": "insufficient liquidity in pool"}`)
	})

	_, err := client.GetRoute(context.Background(), RouteRequest{
		Pool:      testPool(),
		TokensIn:  []string{"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
		AmountsIn: []*big.Int{big.NewInt(1)},
	})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Equal(t, 4008, apiErr.Code)
	assert.Equal(t, "Insufficient liquidity, try increasing slippage", FriendlyMessage(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestGetRouteEnvelopeCodeError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"code": 4000, "message": "bad pool"}`)
	})
	_, err := client.GetRoute(context.Background(), RouteRequest{
		Pool:      testPool(),
		TokensIn:  []string{"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
		AmountsIn: []*big.Int{big.NewInt(1)},
	})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "bad pool", FriendlyMessage(err))
}

func TestGetRouteSchemaMismatch(t *testing.T) {
	cases := map[string]string{
		"missing pool details": `{"code":0,"data":{"positionDetails":{"addedLiquidity":"1"},"zapDetails":{"actions":[{"type":"ACTION_TYPE_REFUND","refund":{}}]},"route":"r","routerAddress":"0x6666666666666666666666666666666666666666"}}`,
		"negative amount":      strings.Replace(routeFixture, `"amount": "500"`, `"amount": "-500"`, 1),
		"unknown action":       strings.Replace(routeFixture, "ACTION_TYPE_REFUND", "ACTION_TYPE_TELEPORT", 1),
		"payload mismatch":     strings.Replace(routeFixture, `"type": "ACTION_TYPE_REFUND"`, `"type": "ACTION_TYPE_PARTNER_FEE"`, 1),
		"bad router":           strings.Replace(routeFixture, "0x6666666666666666666666666666666666666666", "router", 1),
		"not json":             `<html>oops</html>`,
		"null data":            `{"code":0,"data":null}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, body)
			})
			_, err := client.GetRoute(context.Background(), RouteRequest{
				Pool:      testPool(),
				TokensIn:  []string{"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
				AmountsIn: []*big.Int{big.NewInt(1)},
			})
			assert.ErrorIs(t, err, ErrInvalidResponse)
		})
	}
}

func TestRouteRequestValidation(t *testing.T) {
	_, err := RouteRequest{}.Query()
	assert.Error(t, err)

	_, err = RouteRequest{Pool: testPool(), TokensIn: []string{"a"}, AmountsIn: []*big.Int{big.NewInt(0)}}.Query()
	assert.Error(t, err)

	q, err := RouteRequest{
		Pool:       testPool(),
		PositionID: big.NewInt(42),
		TokensIn:   []string{"a"},
		AmountsIn:  []*big.Int{big.NewInt(3)},
	}.Query()
	require.NoError(t, err)
	assert.Equal(t, "42", q.Get("position.id"))
	assert.Empty(t, q.Get("position.tickLower"))
}

func TestZapOutAndMigrateRoutes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/api/v1/out/route":
			assert.Equal(t, "DEX_UNISWAPV3", q.Get("dexFrom"))
			assert.Equal(t, "9", q.Get("positionFrom.id"))
			assert.Equal(t, "500", q.Get("liquidityOut"))
			assert.Equal(t, "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", q.Get("tokenOut"))
		case "/api/v1/migrate/route":
			assert.Equal(t, "DEX_SUSHISWAPV3", q.Get("dexTo"))
			assert.Equal(t, "-60", q.Get("positionTo.tickLower"))
			assert.Equal(t, "60", q.Get("positionTo.tickUpper"))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, routeFixture)
	})

	_, err := client.GetZapOutRoute(context.Background(), ZapOutRequest{
		Dex:          model.DexUniswapV3,
		Pool:         "0x1111111111111111111111111111111111111111",
		PositionID:   big.NewInt(9),
		LiquidityOut: big.NewInt(500),
		TokenOut:     "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		SlippageBps:  100,
	})
	require.NoError(t, err)

	_, err = client.GetMigrateRoute(context.Background(), MigrateRequest{
		DexFrom:      model.DexUniswapV3,
		PoolFrom:     "0x1111111111111111111111111111111111111111",
		PositionID:   big.NewInt(9),
		DexTo:        model.DexSushiSwapV3,
		PoolTo:       "0x2222222222222222222222222222222222222222",
		TickLower:    -60,
		TickUpper:    60,
		LiquidityOut: big.NewInt(500),
	})
	require.NoError(t, err)

	_, err = client.GetMigrateRoute(context.Background(), MigrateRequest{PositionID: big.NewInt(1), LiquidityOut: big.NewInt(1), TickLower: 5, TickUpper: 5})
	assert.Error(t, err)
}

func TestBuildRoute(t *testing.T) {
	deadline := time.Unix(1_700_000_000, 0)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/in/route/build", r.URL.Path)
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "0x3333333333333333333333333333333333333333", body["sender"])
		assert.Equal(t, "0x3333333333333333333333333333333333333333", body["recipient"])
		assert.Equal(t, "encoded-route", body["route"])
		assert.Equal(t, float64(deadline.Unix()), body["deadline"])
		assert.Equal(t, "zapscope-test", body["source"])
		_, _ = io.WriteString(w, `{"code":0,"data":{"callData":"0xdeadbeef","routerAddress":"0x6666666666666666666666666666666666666666","value":"12"}}`)
	})

	res, err := client.BuildRoute(context.Background(), RouteIn, BuildRequest{
		Sender:   "0x3333333333333333333333333333333333333333",
		Route:    "encoded-route",
		Deadline: deadline,
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, res.CallData)
	assert.Equal(t, "12", res.Value.String())

	tx := res.Descriptor("0x3333333333333333333333333333333333333333")
	assert.Equal(t, res.RouterAddress, tx.To)
}

func TestBuildRouteRejectsBadCallData(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"code":0,"data":{"callData":"nothex","routerAddress":"0x6666666666666666666666666666666666666666"}}`)
	})
	_, err := client.BuildRoute(context.Background(), RouteIn, BuildRequest{
		Sender: "0x3333333333333333333333333333333333333333",
		Route:  "r",
	})
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestFriendlyMessage(t *testing.T) {
	assert.Equal(t, "", FriendlyMessage(nil))
	assert.Equal(t, "Price moved, try increasing slippage", FriendlyMessage(&APIError{Status: 400, Message: "Slippage exceeded"}))
	assert.Equal(t, "Route service timed out, please retry", FriendlyMessage(context.DeadlineExceeded))
	assert.Equal(t, "something odd", FriendlyMessage(errors.New("something odd")))
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient(Options{BaseURL: "not a url"})
	assert.Error(t, err)
}
