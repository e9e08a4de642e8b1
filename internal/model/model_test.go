package model

import (
	"math/big"
	"reflect"
	"testing"
)

func TestTokenKeyAndNative(t *testing.T) {
	token := Token{Address: "0xAbCdEf0000000000000000000000000000000001"}
	if token.Key() != "0xabcdef0000000000000000000000000000000001" {
		t.Fatalf("key mismatch: %s", token.Key())
	}
	if token.IsNative() {
		t.Fatalf("erc20 reported as native")
	}
	if !IsNativeAddress("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee") {
		t.Fatalf("native placeholder not detected")
	}
	if !IsNativeAddress(zeroAddress) {
		t.Fatalf("zero address not detected")
	}
}

func TestParseDexKind(t *testing.T) {
	kind, err := ParseDexKind(" UniswapV3 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != DexUniswapV3 || kind.APIName() != "DEX_UNISWAPV3" {
		t.Fatalf("dex mismatch: %s", kind)
	}
	if _, err := ParseDexKind("curve"); err == nil {
		t.Fatalf("expected error for unsupported dex")
	}
	if DexPancakeV3.FeeBps(2500) != 25 {
		t.Fatalf("fee bps mismatch")
	}
}

func TestPoolCloneIsDeep(t *testing.T) {
	pool := &Pool{
		Address:      "0x1111111111111111111111111111111111111111",
		Token0:       Token{Address: "0x0000000000000000000000000000000000000001"},
		Token1:       Token{Address: "0x0000000000000000000000000000000000000002"},
		SqrtPriceX96: big.NewInt(100),
		Liquidity:    big.NewInt(5),
		Ticks:        []TickData{{Index: 10, LiquidityGross: big.NewInt(1), LiquidityNet: big.NewInt(-1)}},
	}

	clone := pool.Clone()
	if !reflect.DeepEqual(pool, clone) {
		t.Fatalf("clone mismatch: %+v != %+v", pool, clone)
	}

	clone.SqrtPriceX96.SetInt64(7)
	clone.Ticks[0].LiquidityNet.SetInt64(9)
	if pool.SqrtPriceX96.Int64() != 100 || pool.Ticks[0].LiquidityNet.Int64() != -1 {
		t.Fatalf("clone shares state with original")
	}
	if !pool.Canonical() {
		t.Fatalf("expected canonical ordering")
	}
	if !pool.HasToken("0x0000000000000000000000000000000000000002") {
		t.Fatalf("expected token1 to be found")
	}
}

func TestPositionValidate(t *testing.T) {
	ok := Position{TickLower: -120, TickUpper: 60}
	if err := ok.Validate(60); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (Position{TickLower: 60, TickUpper: 60}).Validate(60); err == nil {
		t.Fatalf("expected error for empty range")
	}
	if err := (Position{TickLower: -100, TickUpper: 60}).Validate(60); err == nil {
		t.Fatalf("expected error for unaligned tick")
	}
}

func TestActionValidate(t *testing.T) {
	good := Action{Kind: ActionRefund, Refund: &RefundAction{}}
	if err := good.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wrong := Action{Kind: ActionRefund, PartnerFee: &FeeAction{}}
	if err := wrong.Validate(); err == nil {
		t.Fatalf("expected error for mismatched payload")
	}

	double := Action{Kind: ActionPoolSwap, PoolSwap: &SwapAction{}, AggregatorSwap: &SwapAction{}}
	if err := double.Validate(); err == nil {
		t.Fatalf("expected error for two payloads")
	}
}

func TestBuildResultDescriptor(t *testing.T) {
	res := BuildResult{CallData: []byte{0x01}, RouterAddress: "0x2222222222222222222222222222222222222222"}
	tx := res.Descriptor("0x3333333333333333333333333333333333333333")
	if tx.To != res.RouterAddress || tx.Value == nil || tx.Value.Sign() != 0 {
		t.Fatalf("descriptor mismatch: %+v", tx)
	}
}
