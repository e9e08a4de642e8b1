package controller

import (
	"errors"
	"math/big"

	"zapScope/internal/impact"
	"zapScope/internal/model"
	"zapScope/internal/position"
)

var ErrNoRoute = errors.New("no route")

// Preview is the route summary shown before the user confirms.
type Preview struct {
	Impact         impact.Result       `json:"impact"`
	ImpactPercent  *float64            `json:"impact_percent,omitempty"`
	Amount0        *big.Int            `json:"amount0"`
	Amount1        *big.Int            `json:"amount1"`
	Amount0Display string              `json:"amount0_display"`
	Amount1Display string              `json:"amount1_display"`
	AddedUSD       float64             `json:"added_usd"`
	Refunds        []model.TokenAmount `json:"refunds,omitempty"`
}

// BuildPreview projects what the position holds after the zap, priced at the
// post-zap pool state. The route's own impact is preferred over one derived
// from USD values.
func BuildPreview(pool *model.Pool, route *model.ZapRoute, tickLower, tickUpper int32, policy impact.Policy) (Preview, error) {
	if pool == nil || route == nil {
		return Preview{}, ErrNoRoute
	}

	percent := route.PriceImpact
	if percent == nil {
		percent = impact.FromUSD(route.InitialAmountUSD, route.FinalAmountUSD)
	}
	preview := Preview{
		Impact:        policy.ClassifyForFee(percent, pool.FeeBps()),
		ImpactPercent: percent,
		AddedUSD:      route.PositionDetails.AddedAmountUSD,
	}
	for _, action := range route.ActionsOf(model.ActionRefund) {
		preview.Refunds = append(preview.Refunds, action.Refund.Tokens...)
	}

	sqrtP := route.PoolDetails.NewSqrtPriceX96
	tick := route.PoolDetails.NewTick
	if sqrtP == nil || sqrtP.Sign() == 0 {
		sqrtP, tick = pool.SqrtPriceX96, pool.Tick
	}
	liquidity := route.PositionDetails.AddedLiquidity
	if liquidity == nil {
		liquidity = new(big.Int)
	}
	amount0, amount1, err := position.GetPositionAmounts(tick, tickLower, tickUpper, sqrtP, liquidity)
	if err != nil {
		return Preview{}, err
	}
	preview.Amount0 = amount0
	preview.Amount1 = amount1
	preview.Amount0Display = position.FormatAmount(amount0, pool.Token0.Decimals)
	preview.Amount1Display = position.FormatAmount(amount1, pool.Token1.Decimals)
	return preview, nil
}
