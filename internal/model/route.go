package model

import (
	"fmt"
	"math/big"
)

// ActionKind tags the variant held by an Action.
type ActionKind string

const (
	ActionAggregatorSwap  ActionKind = "aggregator_swap"
	ActionPoolSwap        ActionKind = "pool_swap"
	ActionAddLiquidity    ActionKind = "add_liquidity"
	ActionRemoveLiquidity ActionKind = "remove_liquidity"
	ActionRefund          ActionKind = "refund"
	ActionProtocolFee     ActionKind = "protocol_fee"
	ActionPartnerFee      ActionKind = "partner_fee"
)

// TokenAmount is a raw token amount with its USD value.
type TokenAmount struct {
	Address   string   `json:"address"`
	Amount    *big.Int `json:"amount"`
	AmountUSD float64  `json:"amount_usd"`
}

// Swap is one leg of a swap action.
type Swap struct {
	TokenIn  TokenAmount `json:"token_in"`
	TokenOut TokenAmount `json:"token_out"`
}

type SwapAction struct {
	Swaps []Swap `json:"swaps"`
}

type AddLiquidityAction struct {
	Token0 TokenAmount `json:"token0"`
	Token1 TokenAmount `json:"token1"`
}

type RemoveLiquidityAction struct {
	Tokens []TokenAmount `json:"tokens"`
	Fees   []TokenAmount `json:"fees"`
}

type RefundAction struct {
	Tokens []TokenAmount `json:"tokens"`
}

// FeeAction is a protocol or partner fee, in per-cent-mille of the input.
type FeeAction struct {
	Pcm    uint32        `json:"pcm"`
	Tokens []TokenAmount `json:"tokens"`
}

// Action is one step of a zap route. Exactly one payload, the one matching
// Kind, is set.
type Action struct {
	Kind            ActionKind             `json:"kind"`
	AggregatorSwap  *SwapAction            `json:"aggregator_swap,omitempty"`
	PoolSwap        *SwapAction            `json:"pool_swap,omitempty"`
	AddLiquidity    *AddLiquidityAction    `json:"add_liquidity,omitempty"`
	RemoveLiquidity *RemoveLiquidityAction `json:"remove_liquidity,omitempty"`
	Refund          *RefundAction          `json:"refund,omitempty"`
	ProtocolFee     *FeeAction             `json:"protocol_fee,omitempty"`
	PartnerFee      *FeeAction             `json:"partner_fee,omitempty"`
}

// Validate enforces the one-payload-per-kind rule.
func (a Action) Validate() error {
	set := 0
	matches := false
	check := func(present bool, kind ActionKind) {
		if present {
			set++
			if kind == a.Kind {
				matches = true
			}
		}
	}
	check(a.AggregatorSwap != nil, ActionAggregatorSwap)
	check(a.PoolSwap != nil, ActionPoolSwap)
	check(a.AddLiquidity != nil, ActionAddLiquidity)
	check(a.RemoveLiquidity != nil, ActionRemoveLiquidity)
	check(a.Refund != nil, ActionRefund)
	check(a.ProtocolFee != nil, ActionProtocolFee)
	check(a.PartnerFee != nil, ActionPartnerFee)

	if set != 1 || !matches {
		return fmt.Errorf("action %q must carry exactly its own payload", a.Kind)
	}
	return nil
}

// PoolDetails is the pool state before and after the zap executes.
type PoolDetails struct {
	Tick            int32    `json:"tick"`
	NewTick         int32    `json:"new_tick"`
	SqrtPriceX96    *big.Int `json:"sqrt_price_x96"`
	NewSqrtPriceX96 *big.Int `json:"new_sqrt_price_x96"`
}

// PositionDetails describes what the zap adds to the position.
type PositionDetails struct {
	AddedLiquidity *big.Int `json:"added_liquidity"`
	AddedAmount0   *big.Int `json:"added_amount0"`
	AddedAmount1   *big.Int `json:"added_amount1"`
	AddedAmountUSD float64  `json:"added_amount_usd"`
}

// ZapRoute is a server-computed zap plan. A new fetch replaces it wholesale.
type ZapRoute struct {
	Actions          []Action        `json:"actions"`
	PoolDetails      PoolDetails     `json:"pool_details"`
	PositionDetails  PositionDetails `json:"position_details"`
	PriceImpact      *float64        `json:"price_impact,omitempty"`
	InitialAmountUSD float64         `json:"initial_amount_usd"`
	FinalAmountUSD   float64         `json:"final_amount_usd"`
	Route            string          `json:"route"`
	RouterAddress    string          `json:"router_address"`
	Gas              *big.Int        `json:"gas,omitempty"`
	GasUSD           float64         `json:"gas_usd"`
}

// ActionsOf returns the actions of the given kind in route order.
func (r *ZapRoute) ActionsOf(kind ActionKind) []Action {
	if r == nil {
		return nil
	}
	var out []Action
	for _, action := range r.Actions {
		if action.Kind == kind {
			out = append(out, action)
		}
	}
	return out
}
