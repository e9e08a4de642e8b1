package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"zapScope/internal/dex"
	"zapScope/internal/model"
	"zapScope/internal/position"
	"zapScope/internal/tickmath"
)

type poolView struct {
	Address         string  `json:"address"`
	Dex             string  `json:"dex"`
	Token0          string  `json:"token0"`
	Token1          string  `json:"token1"`
	FeeBps          float64 `json:"fee_bps"`
	TickSpacing     int32   `json:"tick_spacing"`
	Tick            int32   `json:"tick"`
	Price           string  `json:"price"`
	Liquidity       string  `json:"liquidity"`
	ImpactThreshold float64 `json:"impact_threshold_pct"`
}

func newPoolCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pool",
		Short: "Show the current state of a pool",
		RunE:  runPool,
	}
}

func runPool(cmd *cobra.Command, _ []string) error {
	ctx, a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	pool, err := a.loadPool(ctx, a.cfg.Pool)
	if err != nil {
		return err
	}
	return writeJSON(cmd, describePool(pool, a.cfg.Impact.WarningThreshold(pool.FeeBps())))
}

func describePool(pool *model.Pool, threshold float64) poolView {
	price := "--"
	if p, err := tickmath.SqrtPriceX96ToPrice(pool.SqrtPriceX96, pool.Token0.Decimals, pool.Token1.Decimals, false); err == nil {
		price = formatPrice(p)
	}
	return poolView{
		Address:         pool.Address,
		Dex:             string(pool.Dex),
		Token0:          pool.Token0.Symbol,
		Token1:          pool.Token1.Symbol,
		FeeBps:          pool.FeeBps(),
		TickSpacing:     pool.TickSpacing,
		Tick:            pool.Tick,
		Price:           price,
		Liquidity:       pool.Liquidity.String(),
		ImpactThreshold: threshold,
	}
}

type positionView struct {
	ID        string `json:"id"`
	Owner     string `json:"owner"`
	Pool      string `json:"pool"`
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
	InRange   bool   `json:"in_range"`
	Liquidity string `json:"liquidity"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
}

func newPositionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "position",
		Short: "Show a position and the token amounts it holds",
		RunE:  runPosition,
	}
}

func runPosition(cmd *cobra.Command, _ []string) error {
	ctx, a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	pos, pool, err := a.loadPosition(ctx)
	if err != nil {
		return err
	}
	amount0, amount1, err := position.GetPositionAmounts(pool.Tick, pos.TickLower, pos.TickUpper, pool.SqrtPriceX96, pos.Liquidity)
	if err != nil {
		return err
	}
	return writeJSON(cmd, positionView{
		ID:        pos.ID.String(),
		Owner:     pos.Owner,
		Pool:      pool.Address,
		TickLower: pos.TickLower,
		TickUpper: pos.TickUpper,
		InRange:   pos.TickLower <= pool.Tick && pool.Tick < pos.TickUpper,
		Liquidity: pos.Liquidity.String(),
		Amount0:   position.FormatAmount(amount0, pool.Token0.Decimals) + " " + pool.Token0.Symbol,
		Amount1:   position.FormatAmount(amount1, pool.Token1.Decimals) + " " + pool.Token1.Symbol,
	})
}

// loadPosition reads the configured position and its pool.
func (a *app) loadPosition(ctx context.Context) (model.Position, *model.Pool, error) {
	if err := a.requireChain(); err != nil {
		return model.Position{}, nil, err
	}
	id, err := a.positionID()
	if err != nil {
		return model.Position{}, nil, err
	}
	if id == nil || !common.IsHexAddress(a.cfg.PositionManager) {
		return model.Position{}, nil, fmt.Errorf("position-id and position-manager are required")
	}
	pos, err := dex.FetchPosition(ctx, a.chain, common.HexToAddress(a.cfg.PositionManager), id)
	if err != nil {
		return model.Position{}, nil, err
	}
	pool, err := a.loadPool(ctx, a.cfg.Pool)
	if err != nil {
		return model.Position{}, nil, err
	}
	if !pool.HasToken(pos.Token0) || !pool.HasToken(pos.Token1) || pool.Fee != pos.Fee {
		return model.Position{}, nil, fmt.Errorf("position %s does not belong to pool %s", id, pool.Address)
	}
	if pos.Liquidity == nil {
		pos.Liquidity = new(big.Int)
	}
	return pos, pool, nil
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
