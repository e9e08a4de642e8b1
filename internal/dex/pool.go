package dex

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"zapScope/internal/model"
)

// PoolState is the raw on-chain state of a concentrated-liquidity pool.
type PoolState struct {
	Token0       common.Address
	Token1       common.Address
	Fee          uint32
	TickSpacing  int32
	Tick         int32
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
}

// PoolReader reads pool state for one dex variant.
type PoolReader interface {
	Dex() model.DexKind
	ReadPool(ctx context.Context, caller Caller, pool common.Address) (PoolState, error)
}

// TokenSource resolves token metadata by address, keyed by model.TokenKey.
type TokenSource interface {
	Resolve(ctx context.Context, chainID uint64, addresses []string) (map[string]model.Token, error)
}

type v3Reader struct {
	dex model.DexKind
}

// ReaderFor returns the pool reader for a dex variant.
func ReaderFor(dex model.DexKind) (PoolReader, error) {
	if _, err := poolABIFor(dex); err != nil {
		return nil, err
	}
	return v3Reader{dex: dex}, nil
}

func poolABIFor(dex model.DexKind) (abi.ABI, error) {
	switch dex {
	case model.DexUniswapV3, model.DexSushiSwapV3:
		return UniswapV3PoolABI()
	case model.DexPancakeV3:
		return PancakeV3PoolABI()
	default:
		return abi.ABI{}, fmt.Errorf("unsupported dex: %s", dex)
	}
}

func (r v3Reader) Dex() model.DexKind {
	return r.dex
}

func (r v3Reader) ReadPool(ctx context.Context, caller Caller, pool common.Address) (PoolState, error) {
	var state PoolState

	poolABI, err := poolABIFor(r.dex)
	if err != nil {
		return state, err
	}

	values, err := callMethod(ctx, caller, pool, poolABI, "token0", nil)
	if err != nil {
		return state, err
	}
	if state.Token0, err = asAddress(values[0]); err != nil {
		return state, fmt.Errorf("token0: %w", err)
	}

	values, err = callMethod(ctx, caller, pool, poolABI, "token1", nil)
	if err != nil {
		return state, err
	}
	if state.Token1, err = asAddress(values[0]); err != nil {
		return state, fmt.Errorf("token1: %w", err)
	}

	values, err = callMethod(ctx, caller, pool, poolABI, "fee", nil)
	if err != nil {
		return state, err
	}
	fee, err := asBigInt(values[0])
	if err != nil {
		return state, fmt.Errorf("fee: %w", err)
	}
	state.Fee = uint32(fee.Uint64())

	values, err = callMethod(ctx, caller, pool, poolABI, "tickSpacing", nil)
	if err != nil {
		return state, err
	}
	if state.TickSpacing, err = int24At(values, 0, "tick spacing"); err != nil {
		return state, err
	}

	values, err = callMethod(ctx, caller, pool, poolABI, "liquidity", nil)
	if err != nil {
		return state, err
	}
	if state.Liquidity, err = asBigInt(values[0]); err != nil {
		return state, fmt.Errorf("liquidity: %w", err)
	}

	values, err = callMethod(ctx, caller, pool, poolABI, "slot0", nil)
	if err != nil {
		return state, err
	}
	if len(values) < 2 {
		return state, fmt.Errorf("slot0: expected at least 2 values, got %d", len(values))
	}
	if state.SqrtPriceX96, err = asBigInt(values[0]); err != nil {
		return state, fmt.Errorf("slot0 sqrt price: %w", err)
	}
	if state.Tick, err = int24At(values, 1, "slot0 tick"); err != nil {
		return state, err
	}

	return state, nil
}

// FetchPool reads a pool snapshot and resolves its tokens. When tokens is nil
// token metadata is read on-chain.
func FetchPool(ctx context.Context, caller Caller, dex model.DexKind, chainID uint64, address common.Address, tokens TokenSource, logger *zap.Logger) (*model.Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	reader, err := ReaderFor(dex)
	if err != nil {
		return nil, err
	}
	state, err := reader.ReadPool(ctx, caller, address)
	if err != nil {
		return nil, fmt.Errorf("read pool %s: %w", address.Hex(), err)
	}

	token0, token1, err := resolvePair(ctx, caller, chainID, state.Token0, state.Token1, tokens, logger)
	if err != nil {
		return nil, err
	}

	return &model.Pool{
		ChainID:      chainID,
		Address:      address.Hex(),
		Dex:          dex,
		Token0:       token0,
		Token1:       token1,
		Fee:          state.Fee,
		TickSpacing:  state.TickSpacing,
		Tick:         state.Tick,
		SqrtPriceX96: state.SqrtPriceX96,
		Liquidity:    state.Liquidity,
		FetchedAt:    time.Now().UTC(),
	}, nil
}

func resolvePair(ctx context.Context, caller Caller, chainID uint64, addr0, addr1 common.Address, tokens TokenSource, logger *zap.Logger) (model.Token, model.Token, error) {
	if tokens != nil {
		resolved, err := tokens.Resolve(ctx, chainID, []string{addr0.Hex(), addr1.Hex()})
		if err == nil {
			token0, ok0 := resolved[model.TokenKey(addr0.Hex())]
			token1, ok1 := resolved[model.TokenKey(addr1.Hex())]
			if ok0 && ok1 {
				return token0, token1, nil
			}
		} else {
			logger.Warn("token resolution failed, reading on-chain", zap.Error(err))
		}
	}

	token0, err := FetchTokenMeta(ctx, caller, chainID, addr0, logger)
	if err != nil {
		return model.Token{}, model.Token{}, fmt.Errorf("token0 metadata: %w", err)
	}
	token1, err := FetchTokenMeta(ctx, caller, chainID, addr1, logger)
	if err != nil {
		return model.Token{}, model.Token{}, fmt.Errorf("token1 metadata: %w", err)
	}
	return token0, token1, nil
}

// FetchTicks reads the liquidity bookkeeping of the given initialized ticks.
func FetchTicks(ctx context.Context, caller Caller, dex model.DexKind, pool common.Address, indexes []int32) ([]model.TickData, error) {
	poolABI, err := poolABIFor(dex)
	if err != nil {
		return nil, err
	}

	out := make([]model.TickData, 0, len(indexes))
	for _, index := range indexes {
		values, err := callMethod(ctx, caller, pool, poolABI, "ticks", nil, big.NewInt(int64(index)))
		if err != nil {
			return nil, fmt.Errorf("tick %d: %w", index, err)
		}
		if len(values) < 2 {
			return nil, fmt.Errorf("tick %d: expected 2 values, got %d", index, len(values))
		}
		gross, err := asBigInt(values[0])
		if err != nil {
			return nil, fmt.Errorf("tick %d gross: %w", index, err)
		}
		net, err := asBigInt(values[1])
		if err != nil {
			return nil, fmt.Errorf("tick %d net: %w", index, err)
		}
		out = append(out, model.TickData{Index: index, LiquidityGross: gross, LiquidityNet: net})
	}
	return out, nil
}
