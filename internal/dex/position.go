package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"zapScope/internal/model"
)

// FetchPosition reads a position-manager NFT and its owner.
func FetchPosition(ctx context.Context, caller Caller, manager common.Address, id *big.Int) (model.Position, error) {
	if id == nil || id.Sign() < 0 {
		return model.Position{}, fmt.Errorf("invalid position id")
	}
	managerABI, err := PositionManagerABI()
	if err != nil {
		return model.Position{}, fmt.Errorf("parse position manager abi: %w", err)
	}

	values, err := callMethod(ctx, caller, manager, managerABI, "positions", nil, id)
	if err != nil {
		return model.Position{}, err
	}
	if len(values) < 8 {
		return model.Position{}, fmt.Errorf("positions: expected 12 values, got %d", len(values))
	}

	pos := model.Position{ID: new(big.Int).Set(id)}
	token0, err := asAddress(values[2])
	if err != nil {
		return pos, fmt.Errorf("token0: %w", err)
	}
	token1, err := asAddress(values[3])
	if err != nil {
		return pos, fmt.Errorf("token1: %w", err)
	}
	pos.Token0 = token0.Hex()
	pos.Token1 = token1.Hex()

	fee, err := asBigInt(values[4])
	if err != nil {
		return pos, fmt.Errorf("fee: %w", err)
	}
	pos.Fee = uint32(fee.Uint64())

	if pos.TickLower, err = int24At(values, 5, "tick lower"); err != nil {
		return pos, err
	}
	if pos.TickUpper, err = int24At(values, 6, "tick upper"); err != nil {
		return pos, err
	}
	if pos.Liquidity, err = asBigInt(values[7]); err != nil {
		return pos, fmt.Errorf("liquidity: %w", err)
	}

	values, err = callMethod(ctx, caller, manager, managerABI, "ownerOf", nil, id)
	if err != nil {
		return pos, err
	}
	owner, err := asAddress(values[0])
	if err != nil {
		return pos, fmt.Errorf("owner: %w", err)
	}
	pos.Owner = owner.Hex()
	return pos, nil
}

// NFTApproved reports whether operator may move the position: either the
// single-token approval or an operator approval by owner.
func NFTApproved(ctx context.Context, caller Caller, manager common.Address, id *big.Int, owner, operator common.Address) (bool, error) {
	managerABI, err := PositionManagerABI()
	if err != nil {
		return false, fmt.Errorf("parse position manager abi: %w", err)
	}

	values, err := callMethod(ctx, caller, manager, managerABI, "getApproved", nil, id)
	if err != nil {
		return false, err
	}
	approved, err := asAddress(values[0])
	if err != nil {
		return false, fmt.Errorf("getApproved: %w", err)
	}
	if approved == operator {
		return true, nil
	}

	values, err = callMethod(ctx, caller, manager, managerABI, "isApprovedForAll", nil, owner, operator)
	if err != nil {
		return false, err
	}
	return asBool(values[0])
}

// PackNFTApprove encodes approve(to, tokenId) on the position manager.
func PackNFTApprove(to common.Address, id *big.Int) ([]byte, error) {
	managerABI, err := PositionManagerABI()
	if err != nil {
		return nil, fmt.Errorf("parse position manager abi: %w", err)
	}
	return managerABI.Pack("approve", to, id)
}
