package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

// MaxUint256 is the unlimited allowance amount.
var MaxUint256 = new(big.Int).Set(math.MaxBig256)

// BalanceOf reads an ERC-20 balance.
func BalanceOf(ctx context.Context, caller Caller, token, account common.Address) (*big.Int, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := callMethod(ctx, caller, token, parsed, "balanceOf", nil, account)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// Allowance reads the ERC-20 allowance owner granted to spender.
func Allowance(ctx context.Context, caller Caller, token, owner, spender common.Address) (*big.Int, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := callMethod(ctx, caller, token, parsed, "allowance", nil, owner, spender)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// PackApprove encodes approve(spender, amount).
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return parsed.Pack("approve", spender, amount)
}
