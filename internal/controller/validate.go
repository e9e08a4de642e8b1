package controller

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"zapScope/internal/model"
	"zapScope/internal/tickmath"
	"zapScope/internal/zapapi"
)

// Inputs is everything the user (or a poller) can change.
type Inputs struct {
	Pool        *model.Pool
	PositionID  *big.Int
	TokensIn    []model.Token
	Amounts     []string
	TickLower   int32
	TickUpper   int32
	SlippageBps uint32
	Wallet      string
	// Balances holds raw wallet balances keyed by model.TokenKey. A missing
	// entry means unknown and is not checked.
	Balances map[string]*big.Int
}

// Clone returns a copy that shares no mutable state with in.
func (in Inputs) Clone() Inputs {
	out := in
	out.TokensIn = append([]model.Token(nil), in.TokensIn...)
	out.Amounts = append([]string(nil), in.Amounts...)
	if in.Balances != nil {
		out.Balances = make(map[string]*big.Int, len(in.Balances))
		for k, v := range in.Balances {
			out.Balances[k] = v
		}
	}
	return out
}

// ValidationError is a local precondition failure, rendered as is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

const (
	MsgPoolNotLoaded   = "Pool is not loaded"
	MsgSelectToken     = "Select a token"
	MsgEnterAmount     = "Enter an amount"
	MsgInvalidAmount   = "Invalid amount"
	MsgInvalidRange    = "Invalid price range"
	MsgRangeOutOfBound = "Price range is out of bounds"
	MsgConnectWallet   = "Connect wallet"
)

// Request is a validated route request plus its identity key.
type Request struct {
	zapapi.RouteRequest
	Recipient string
	Key       string
}

// Validate checks in and builds the route request. The first failing check
// wins; it never touches the network.
func Validate(in Inputs, fee zapapi.PartnerFee) (Request, error) {
	if in.Pool == nil {
		return Request{}, invalid(MsgPoolNotLoaded)
	}
	if len(in.TokensIn) == 0 {
		return Request{}, invalid(MsgSelectToken)
	}

	amounts := make([]*big.Int, len(in.TokensIn))
	for i, token := range in.TokensIn {
		text := ""
		if i < len(in.Amounts) {
			text = strings.TrimSpace(in.Amounts[i])
		}
		if text == "" {
			return Request{}, invalid(MsgEnterAmount)
		}
		raw, err := ParseAmount(text, token.Decimals)
		if err != nil {
			return Request{}, invalid(MsgInvalidAmount)
		}
		amounts[i] = raw
	}

	for i, token := range in.TokensIn {
		balance, known := in.Balances[token.Key()]
		if known && balance != nil && amounts[i].Cmp(balance) > 0 {
			return Request{}, invalid("Insufficient %s balance", tokenLabel(token))
		}
	}

	if in.PositionID == nil {
		if in.TickLower >= in.TickUpper {
			return Request{}, invalid(MsgInvalidRange)
		}
		if !tickmath.InRange(in.TickLower) || !tickmath.InRange(in.TickUpper) {
			return Request{}, invalid(MsgRangeOutOfBound)
		}
	}

	if strings.TrimSpace(in.Wallet) == "" {
		return Request{}, invalid(MsgConnectWallet)
	}

	lower, upper := in.TickLower, in.TickUpper
	if in.PositionID == nil {
		var err error
		if lower, err = tickmath.NearestUsableTick(in.TickLower, in.Pool.TickSpacing); err != nil {
			return Request{}, invalid(MsgRangeOutOfBound)
		}
		if upper, err = tickmath.NearestUsableTick(in.TickUpper, in.Pool.TickSpacing); err != nil {
			return Request{}, invalid(MsgRangeOutOfBound)
		}
		if lower >= upper {
			return Request{}, invalid(MsgInvalidRange)
		}
	}

	tokens := make([]string, len(in.TokensIn))
	for i, token := range in.TokensIn {
		tokens[i] = token.Address
	}
	req := Request{
		RouteRequest: zapapi.RouteRequest{
			Pool:        in.Pool,
			PositionID:  in.PositionID,
			TickLower:   lower,
			TickUpper:   upper,
			TokensIn:    tokens,
			AmountsIn:   amounts,
			SlippageBps: in.SlippageBps,
			Fee:         fee,
		},
		Recipient: in.Wallet,
	}
	req.Key = requestKey(req)
	return req, nil
}

// ParseAmount converts a human amount into raw units. More fractional digits
// than the token supports is an error.
func ParseAmount(text string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return nil, err
	}
	raw := d.Shift(int32(decimals))
	if !raw.IsInteger() {
		return nil, fmt.Errorf("amount %s has more than %d decimals", text, decimals)
	}
	if raw.Sign() <= 0 {
		return nil, fmt.Errorf("amount %s must be positive", text)
	}
	return raw.BigInt(), nil
}

func tokenLabel(token model.Token) string {
	if token.Symbol != "" {
		return token.Symbol
	}
	return token.Address
}

// requestKey identifies a request independent of token order.
func requestKey(req Request) string {
	pairs := make([]string, len(req.TokensIn))
	for i, token := range req.TokensIn {
		pairs[i] = model.TokenKey(token) + "=" + req.AmountsIn[i].String()
	}
	sort.Strings(pairs)

	position := ""
	if req.PositionID != nil {
		position = req.PositionID.String()
	}
	return strings.Join([]string{
		model.TokenKey(req.Pool.Address),
		strings.Join(pairs, ","),
		strconv.FormatInt(int64(req.TickLower), 10),
		strconv.FormatInt(int64(req.TickUpper), 10),
		strconv.FormatUint(uint64(req.SlippageBps), 10),
		model.TokenKey(req.Recipient),
		position,
	}, "|")
}
