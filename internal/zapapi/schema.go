package zapapi

import (
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"zapScope/internal/model"
)

func newValidator() *validator.Validate {
	v := validator.New()
	// uintstr: base-10 non-negative integer encoded as a string.
	_ = v.RegisterValidation("uintstr", func(fl validator.FieldLevel) bool {
		if fl.Field().Kind() != reflect.String {
			return false
		}
		n, ok := new(big.Int).SetString(fl.Field().String(), 10)
		return ok && n.Sign() >= 0
	})
	_ = v.RegisterValidation("hexdata", func(fl validator.FieldLevel) bool {
		if fl.Field().Kind() != reflect.String {
			return false
		}
		_, err := hexutil.Decode(fl.Field().String())
		return err == nil
	})
	return v
}

var actionKinds = map[string]model.ActionKind{
	"ACTION_TYPE_AGGREGATOR_SWAP":  model.ActionAggregatorSwap,
	"ACTION_TYPE_POOL_SWAP":        model.ActionPoolSwap,
	"ACTION_TYPE_ADD_LIQUIDITY":    model.ActionAddLiquidity,
	"ACTION_TYPE_REMOVE_LIQUIDITY": model.ActionRemoveLiquidity,
	"ACTION_TYPE_REFUND":           model.ActionRefund,
	"ACTION_TYPE_PROTOCOL_FEE":     model.ActionProtocolFee,
	"ACTION_TYPE_PARTNER_FEE":      model.ActionPartnerFee,
}

type wireTokenAmount struct {
	Address   string          `json:"address" validate:"required,eth_addr"`
	Amount    string          `json:"amount" validate:"required,uintstr"`
	AmountUSD decimal.Decimal `json:"amountUsd"`
}

type wireSwap struct {
	TokenIn  wireTokenAmount `json:"tokenIn"`
	TokenOut wireTokenAmount `json:"tokenOut"`
}

type wireSwapAction struct {
	Swaps []wireSwap `json:"swaps" validate:"required,min=1,dive"`
}

type wireAddLiquidity struct {
	Token0 wireTokenAmount `json:"token0"`
	Token1 wireTokenAmount `json:"token1"`
}

type wireRemoveLiquidity struct {
	Tokens []wireTokenAmount `json:"tokens" validate:"dive"`
	Fees   []wireTokenAmount `json:"fees" validate:"dive"`
}

type wireTokens struct {
	Tokens []wireTokenAmount `json:"tokens" validate:"dive"`
}

type wireFee struct {
	Pcm    uint32            `json:"pcm" validate:"lte=100000"`
	Tokens []wireTokenAmount `json:"tokens" validate:"dive"`
}

type wireAction struct {
	Type            string               `json:"type" validate:"required"`
	AggregatorSwap  *wireSwapAction      `json:"aggregatorSwap,omitempty" validate:"omitempty"`
	PoolSwap        *wireSwapAction      `json:"poolSwap,omitempty" validate:"omitempty"`
	AddLiquidity    *wireAddLiquidity    `json:"addLiquidity,omitempty" validate:"omitempty"`
	RemoveLiquidity *wireRemoveLiquidity `json:"removeLiquidity,omitempty" validate:"omitempty"`
	Refund          *wireTokens          `json:"refund,omitempty" validate:"omitempty"`
	ProtocolFee     *wireFee             `json:"protocolFee,omitempty" validate:"omitempty"`
	PartnerFee      *wireFee             `json:"partnerFee,omitempty" validate:"omitempty"`
}

type wirePoolDetails struct {
	Tick     int32  `json:"tick"`
	NewTick  int32  `json:"newTick"`
	SqrtP    string `json:"sqrtP" validate:"required,uintstr"`
	NewSqrtP string `json:"newSqrtP" validate:"required,uintstr"`
}

type wirePositionDetails struct {
	AddedLiquidity string          `json:"addedLiquidity" validate:"required,uintstr"`
	AddedAmount0   string          `json:"addedAmount0" validate:"omitempty,uintstr"`
	AddedAmount1   string          `json:"addedAmount1" validate:"omitempty,uintstr"`
	AddedAmountUSD decimal.Decimal `json:"addedAmountUsd"`
}

type wireZapDetails struct {
	InitialAmountUSD decimal.Decimal `json:"initialAmountUsd"`
	FinalAmountUSD   decimal.Decimal `json:"finalAmountUsd"`
	PriceImpact      *float64        `json:"priceImpact"`
	Actions          []wireAction    `json:"actions" validate:"required,min=1,dive"`
}

type wireRoute struct {
	PoolDetails     *wirePoolDetails     `json:"poolDetails" validate:"required"`
	PositionDetails *wirePositionDetails `json:"positionDetails" validate:"required"`
	ZapDetails      *wireZapDetails      `json:"zapDetails" validate:"required"`
	Route           string               `json:"route" validate:"required"`
	RouterAddress   string               `json:"routerAddress" validate:"required,eth_addr"`
	Gas             string               `json:"gas" validate:"omitempty,uintstr"`
	GasUSD          decimal.Decimal      `json:"gasUsd"`
}

type wireBuild struct {
	CallData      string `json:"callData" validate:"required,hexdata"`
	RouterAddress string `json:"routerAddress" validate:"required,eth_addr"`
	Value         string `json:"value" validate:"omitempty,uintstr"`
}

// parseUint assumes the value already passed the uintstr check; empty stays nil.
func parseUint(s string) *big.Int {
	if s == "" {
		return nil
	}
	n, _ := new(big.Int).SetString(s, 10)
	return n
}

func (w wireTokenAmount) toModel() model.TokenAmount {
	return model.TokenAmount{
		Address:   w.Address,
		Amount:    parseUint(w.Amount),
		AmountUSD: w.AmountUSD.InexactFloat64(),
	}
}

func tokenAmounts(in []wireTokenAmount) []model.TokenAmount {
	if len(in) == 0 {
		return nil
	}
	out := make([]model.TokenAmount, len(in))
	for i, item := range in {
		out[i] = item.toModel()
	}
	return out
}

func (w *wireSwapAction) toModel() *model.SwapAction {
	if w == nil {
		return nil
	}
	out := &model.SwapAction{Swaps: make([]model.Swap, len(w.Swaps))}
	for i, swap := range w.Swaps {
		out.Swaps[i] = model.Swap{TokenIn: swap.TokenIn.toModel(), TokenOut: swap.TokenOut.toModel()}
	}
	return out
}

func (w *wireFee) toModel() *model.FeeAction {
	if w == nil {
		return nil
	}
	return &model.FeeAction{Pcm: w.Pcm, Tokens: tokenAmounts(w.Tokens)}
}

func (w wireAction) toModel() (model.Action, error) {
	kind, ok := actionKinds[w.Type]
	if !ok {
		return model.Action{}, fmt.Errorf("%w: unknown action type %q", ErrInvalidResponse, w.Type)
	}
	action := model.Action{
		Kind:           kind,
		AggregatorSwap: w.AggregatorSwap.toModel(),
		PoolSwap:       w.PoolSwap.toModel(),
		ProtocolFee:    w.ProtocolFee.toModel(),
		PartnerFee:     w.PartnerFee.toModel(),
	}
	if w.AddLiquidity != nil {
		action.AddLiquidity = &model.AddLiquidityAction{
			Token0: w.AddLiquidity.Token0.toModel(),
			Token1: w.AddLiquidity.Token1.toModel(),
		}
	}
	if w.RemoveLiquidity != nil {
		action.RemoveLiquidity = &model.RemoveLiquidityAction{
			Tokens: tokenAmounts(w.RemoveLiquidity.Tokens),
			Fees:   tokenAmounts(w.RemoveLiquidity.Fees),
		}
	}
	if w.Refund != nil {
		action.Refund = &model.RefundAction{Tokens: tokenAmounts(w.Refund.Tokens)}
	}
	if err := action.Validate(); err != nil {
		return model.Action{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return action, nil
}

func (w *wireRoute) toModel() (*model.ZapRoute, error) {
	route := &model.ZapRoute{
		PoolDetails: model.PoolDetails{
			Tick:            w.PoolDetails.Tick,
			NewTick:         w.PoolDetails.NewTick,
			SqrtPriceX96:    parseUint(w.PoolDetails.SqrtP),
			NewSqrtPriceX96: parseUint(w.PoolDetails.NewSqrtP),
		},
		PositionDetails: model.PositionDetails{
			AddedLiquidity: parseUint(w.PositionDetails.AddedLiquidity),
			AddedAmount0:   parseUint(w.PositionDetails.AddedAmount0),
			AddedAmount1:   parseUint(w.PositionDetails.AddedAmount1),
			AddedAmountUSD: w.PositionDetails.AddedAmountUSD.InexactFloat64(),
		},
		PriceImpact:      w.ZapDetails.PriceImpact,
		InitialAmountUSD: w.ZapDetails.InitialAmountUSD.InexactFloat64(),
		FinalAmountUSD:   w.ZapDetails.FinalAmountUSD.InexactFloat64(),
		Route:            w.Route,
		RouterAddress:    w.RouterAddress,
		Gas:              parseUint(w.Gas),
		GasUSD:           w.GasUSD.InexactFloat64(),
		Actions:          make([]model.Action, 0, len(w.ZapDetails.Actions)),
	}
	for _, item := range w.ZapDetails.Actions {
		action, err := item.toModel()
		if err != nil {
			return nil, err
		}
		route.Actions = append(route.Actions, action)
	}
	return route, nil
}

func (w *wireBuild) toModel() (model.BuildResult, error) {
	data, err := hexutil.Decode(w.CallData)
	if err != nil {
		return model.BuildResult{}, fmt.Errorf("%w: call data: %v", ErrInvalidResponse, err)
	}
	value := parseUint(w.Value)
	if value == nil {
		value = new(big.Int)
	}
	return model.BuildResult{CallData: data, RouterAddress: w.RouterAddress, Value: value}, nil
}
