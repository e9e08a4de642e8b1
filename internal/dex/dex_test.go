package dex

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"zapScope/internal/model"
)

type fakeCaller struct {
	responses map[string][]byte
	calls     int
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{responses: make(map[string][]byte)}
}

func callKey(to common.Address, selector []byte) string {
	return strings.ToLower(to.Hex()) + ":" + hex.EncodeToString(selector)
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, fmt.Errorf("bad call")
	}
	resp, ok := f.responses[callKey(*msg.To, msg.Data[:4])]
	if !ok {
		return nil, fmt.Errorf("execution reverted")
	}
	return resp, nil
}

func (f *fakeCaller) set(t *testing.T, to common.Address, parsed abi.ABI, method string, values ...interface{}) {
	t.Helper()
	m, ok := parsed.Methods[method]
	if !ok {
		t.Fatalf("unknown method %s", method)
	}
	data, err := m.Outputs.Pack(values...)
	if err != nil {
		t.Fatalf("pack %s: %v", method, err)
	}
	f.responses[callKey(to, m.ID)] = data
}

var (
	poolAddr   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	token0Addr = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	token1Addr = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	manager    = common.HexToAddress("0x4444444444444444444444444444444444444444")
	owner      = common.HexToAddress("0x5555555555555555555555555555555555555555")
	router     = common.HexToAddress("0x6666666666666666666666666666666666666666")
)

func seedToken(t *testing.T, caller *fakeCaller, token common.Address, decimals uint8, symbol string) {
	t.Helper()
	erc20, err := ERC20ABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	caller.set(t, token, erc20, "decimals", decimals)
	caller.set(t, token, erc20, "symbol", symbol)
	caller.set(t, token, erc20, "name", symbol+" token")
}

func seedPool(t *testing.T, caller *fakeCaller, parsed abi.ABI, feeProtocol interface{}) {
	t.Helper()
	caller.set(t, poolAddr, parsed, "token0", token0Addr)
	caller.set(t, poolAddr, parsed, "token1", token1Addr)
	caller.set(t, poolAddr, parsed, "fee", big.NewInt(2500))
	caller.set(t, poolAddr, parsed, "tickSpacing", big.NewInt(50))
	caller.set(t, poolAddr, parsed, "liquidity", big.NewInt(123456789))
	caller.set(t, poolAddr, parsed, "slot0",
		new(big.Int).Lsh(big.NewInt(1), 96),
		big.NewInt(-15),
		uint16(1), uint16(1), uint16(1),
		feeProtocol,
		true,
	)
}

func TestFetchPoolPerDex(t *testing.T) {
	uniABI, err := UniswapV3PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	pancakeABI, err := PancakeV3PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	cases := []struct {
		dex         model.DexKind
		parsed      abi.ABI
		feeProtocol interface{}
	}{
		{model.DexUniswapV3, uniABI, uint8(0)},
		{model.DexSushiSwapV3, uniABI, uint8(68)},
		{model.DexPancakeV3, pancakeABI, uint32(216272100)},
	}

	for _, tc := range cases {
		caller := newFakeCaller()
		seedPool(t, caller, tc.parsed, tc.feeProtocol)
		seedToken(t, caller, token0Addr, 18, "WETH")
		seedToken(t, caller, token1Addr, 6, "USDC")

		pool, err := FetchPool(context.Background(), caller, tc.dex, 56, poolAddr, nil, zap.NewNop())
		if err != nil {
			t.Fatalf("%s: fetch pool: %v", tc.dex, err)
		}
		if pool.Dex != tc.dex || pool.ChainID != 56 {
			t.Fatalf("%s: identity mismatch: %+v", tc.dex, pool)
		}
		if pool.Fee != 2500 || pool.TickSpacing != 50 || pool.Tick != -15 {
			t.Fatalf("%s: state mismatch: fee=%d spacing=%d tick=%d", tc.dex, pool.Fee, pool.TickSpacing, pool.Tick)
		}
		if pool.Liquidity.String() != "123456789" {
			t.Fatalf("%s: liquidity mismatch: %s", tc.dex, pool.Liquidity)
		}
		if pool.Token0.Symbol != "WETH" || pool.Token0.Decimals != 18 || pool.Token1.Decimals != 6 {
			t.Fatalf("%s: token mismatch: %+v %+v", tc.dex, pool.Token0, pool.Token1)
		}
		if pool.FeeBps() != 25 {
			t.Fatalf("%s: fee bps mismatch: %v", tc.dex, pool.FeeBps())
		}
	}
}

type stubTokens map[string]model.Token

func (s stubTokens) Resolve(_ context.Context, _ uint64, addresses []string) (map[string]model.Token, error) {
	out := make(map[string]model.Token)
	for _, address := range addresses {
		if token, ok := s[model.TokenKey(address)]; ok {
			out[model.TokenKey(address)] = token
		}
	}
	return out, nil
}

func TestFetchPoolUsesTokenSource(t *testing.T) {
	uniABI, err := UniswapV3PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	caller := newFakeCaller()
	seedPool(t, caller, uniABI, uint8(0))

	tokens := stubTokens{
		model.TokenKey(token0Addr.Hex()): {Address: token0Addr.Hex(), Symbol: "A", Decimals: 8},
		model.TokenKey(token1Addr.Hex()): {Address: token1Addr.Hex(), Symbol: "B", Decimals: 9},
	}
	pool, err := FetchPool(context.Background(), caller, model.DexUniswapV3, 1, poolAddr, tokens, nil)
	if err != nil {
		t.Fatalf("fetch pool: %v", err)
	}
	if pool.Token0.Symbol != "A" || pool.Token1.Decimals != 9 {
		t.Fatalf("token source not used: %+v %+v", pool.Token0, pool.Token1)
	}
	// six pool reads, no erc20 reads
	if caller.calls != 6 {
		t.Fatalf("expected 6 calls, got %d", caller.calls)
	}
}

func TestFetchPoolUnsupportedDex(t *testing.T) {
	if _, err := FetchPool(context.Background(), newFakeCaller(), model.DexKind("curve"), 1, poolAddr, nil, nil); err == nil {
		t.Fatalf("expected error for unsupported dex")
	}
}

func TestFetchTokenMetaBytes32Fallback(t *testing.T) {
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	erc20, err := ERC20ABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	caller := newFakeCaller()
	caller.set(t, token0Addr, erc20, "decimals", uint8(18))
	var symbol [32]byte
	copy(symbol[:], "MKR")
	caller.set(t, token0Addr, bytes32ABI, "symbol", symbol)

	meta, err := FetchTokenMeta(context.Background(), caller, 1, token0Addr, zap.NewNop())
	if err != nil {
		t.Fatalf("fetch token meta: %v", err)
	}
	if meta.Symbol != "MKR" || meta.Name != "" || meta.Decimals != 18 {
		t.Fatalf("meta mismatch: %+v", meta)
	}
}

func TestFetchTokenMetaRequiresDecimals(t *testing.T) {
	if _, err := FetchTokenMeta(context.Background(), newFakeCaller(), 1, token0Addr, nil); err == nil {
		t.Fatalf("expected error when decimals call reverts")
	}
}

func TestFetchPosition(t *testing.T) {
	managerABI, err := PositionManagerABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	caller := newFakeCaller()
	caller.set(t, manager, managerABI, "positions",
		big.NewInt(0),
		common.Address{},
		token0Addr,
		token1Addr,
		big.NewInt(500),
		big.NewInt(-120),
		big.NewInt(240),
		big.NewInt(99999),
		big.NewInt(0),
		big.NewInt(0),
		big.NewInt(0),
		big.NewInt(0),
	)
	caller.set(t, manager, managerABI, "ownerOf", owner)

	pos, err := FetchPosition(context.Background(), caller, manager, big.NewInt(7))
	if err != nil {
		t.Fatalf("fetch position: %v", err)
	}
	if pos.ID.Int64() != 7 || pos.Owner != owner.Hex() {
		t.Fatalf("identity mismatch: %+v", pos)
	}
	if pos.TickLower != -120 || pos.TickUpper != 240 || pos.Fee != 500 {
		t.Fatalf("range mismatch: %+v", pos)
	}
	if pos.Liquidity.Int64() != 99999 || pos.Token0 != token0Addr.Hex() {
		t.Fatalf("liquidity mismatch: %+v", pos)
	}
}

func TestNFTApproved(t *testing.T) {
	managerABI, err := PositionManagerABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	caller := newFakeCaller()
	caller.set(t, manager, managerABI, "getApproved", router)
	ok, err := NFTApproved(context.Background(), caller, manager, big.NewInt(1), owner, router)
	if err != nil || !ok {
		t.Fatalf("expected single-token approval, got %v %v", ok, err)
	}

	caller = newFakeCaller()
	caller.set(t, manager, managerABI, "getApproved", common.Address{})
	caller.set(t, manager, managerABI, "isApprovedForAll", false)
	ok, err = NFTApproved(context.Background(), caller, manager, big.NewInt(1), owner, router)
	if err != nil || ok {
		t.Fatalf("expected not approved, got %v %v", ok, err)
	}

	caller.set(t, manager, managerABI, "isApprovedForAll", true)
	ok, err = NFTApproved(context.Background(), caller, manager, big.NewInt(1), owner, router)
	if err != nil || !ok {
		t.Fatalf("expected operator approval, got %v %v", ok, err)
	}
}

func TestAllowanceAndApprove(t *testing.T) {
	erc20, err := ERC20ABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	caller := newFakeCaller()
	caller.set(t, token0Addr, erc20, "allowance", big.NewInt(42))
	caller.set(t, token0Addr, erc20, "balanceOf", big.NewInt(1000))

	allowance, err := Allowance(context.Background(), caller, token0Addr, owner, router)
	if err != nil || allowance.Int64() != 42 {
		t.Fatalf("allowance mismatch: %v %v", allowance, err)
	}
	balance, err := BalanceOf(context.Background(), caller, token0Addr, owner)
	if err != nil || balance.Int64() != 1000 {
		t.Fatalf("balance mismatch: %v %v", balance, err)
	}

	data, err := PackApprove(router, MaxUint256)
	if err != nil {
		t.Fatalf("pack approve: %v", err)
	}
	args, err := erc20.Methods["approve"].Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack approve: %v", err)
	}
	if args[0].(common.Address) != router || args[1].(*big.Int).Cmp(MaxUint256) != 0 {
		t.Fatalf("approve args mismatch: %v", args)
	}
}

func TestFetchTicks(t *testing.T) {
	uniABI, err := UniswapV3PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	caller := newFakeCaller()
	caller.set(t, poolAddr, uniABI, "ticks", big.NewInt(500), big.NewInt(-500))

	ticks, err := FetchTicks(context.Background(), caller, model.DexUniswapV3, poolAddr, []int32{-60, 60})
	if err != nil {
		t.Fatalf("fetch ticks: %v", err)
	}
	if len(ticks) != 2 || ticks[1].Index != 60 || ticks[1].LiquidityNet.Int64() != -500 {
		t.Fatalf("ticks mismatch: %+v", ticks)
	}
}
