package zapapi

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"zapScope/internal/model"
)

// RouteKind selects the endpoint family.
type RouteKind string

const (
	RouteIn      RouteKind = "in"
	RouteOut     RouteKind = "out"
	RouteMigrate RouteKind = "migrate"
)

// PcmPerBps converts basis points into per-cent-mille.
const PcmPerBps = 10

// PartnerFee is the embedding application's fee config.
type PartnerFee struct {
	Address string
	Bps     uint32
}

// RouteRequest asks for a zap-in route into [TickLower, TickUpper] of Pool.
type RouteRequest struct {
	Pool        *model.Pool
	PositionID  *big.Int
	TickLower   int32
	TickUpper   int32
	TokensIn    []string
	AmountsIn   []*big.Int
	SlippageBps uint32
	Fee         PartnerFee
}

// Query encodes the request. Token and amount lists are comma-joined.
func (r RouteRequest) Query() (url.Values, error) {
	if r.Pool == nil {
		return nil, fmt.Errorf("route request: pool is required")
	}
	if len(r.TokensIn) == 0 || len(r.TokensIn) != len(r.AmountsIn) {
		return nil, fmt.Errorf("route request: %d tokens for %d amounts", len(r.TokensIn), len(r.AmountsIn))
	}
	amounts := make([]string, len(r.AmountsIn))
	for i, amount := range r.AmountsIn {
		if amount == nil || amount.Sign() <= 0 {
			return nil, fmt.Errorf("route request: amount %d must be positive", i)
		}
		amounts[i] = amount.String()
	}

	q := url.Values{}
	q.Set("dex", r.Pool.Dex.APIName())
	q.Set("pool.id", r.Pool.Address)
	q.Set("pool.token0", r.Pool.Token0.Address)
	q.Set("pool.token1", r.Pool.Token1.Address)
	q.Set("pool.fee", strconv.FormatUint(uint64(r.Pool.Fee), 10))
	if r.PositionID != nil {
		q.Set("position.id", r.PositionID.String())
	} else {
		q.Set("position.tickUpper", strconv.FormatInt(int64(r.TickUpper), 10))
		q.Set("position.tickLower", strconv.FormatInt(int64(r.TickLower), 10))
	}
	q.Set("tokensIn", strings.Join(r.TokensIn, ","))
	q.Set("amountsIn", strings.Join(amounts, ","))
	q.Set("slippage", strconv.FormatUint(uint64(r.SlippageBps), 10))
	setFee(q, r.Fee)
	return q, nil
}

func setFee(q url.Values, fee PartnerFee) {
	if fee.Bps == 0 || !common.IsHexAddress(fee.Address) {
		return
	}
	q.Set("feeAddress", fee.Address)
	q.Set("feePcm", strconv.FormatUint(uint64(fee.Bps)*PcmPerBps, 10))
}

// ZapOutRequest withdraws LiquidityOut of a position into TokenOut.
type ZapOutRequest struct {
	Dex          model.DexKind
	Pool         string
	PositionID   *big.Int
	LiquidityOut *big.Int
	TokenOut     string
	SlippageBps  uint32
	Fee          PartnerFee
}

func (r ZapOutRequest) Query() (url.Values, error) {
	if r.PositionID == nil || r.LiquidityOut == nil || r.LiquidityOut.Sign() <= 0 {
		return nil, fmt.Errorf("zap-out request: position and positive liquidity are required")
	}
	if r.TokenOut == "" {
		return nil, fmt.Errorf("zap-out request: token out is required")
	}
	q := url.Values{}
	q.Set("dexFrom", r.Dex.APIName())
	q.Set("poolFrom.id", r.Pool)
	q.Set("positionFrom.id", r.PositionID.String())
	q.Set("liquidityOut", r.LiquidityOut.String())
	q.Set("tokenOut", r.TokenOut)
	q.Set("slippage", strconv.FormatUint(uint64(r.SlippageBps), 10))
	setFee(q, r.Fee)
	return q, nil
}

// MigrateRequest moves LiquidityOut of a position into a range of another pool.
type MigrateRequest struct {
	DexFrom      model.DexKind
	PoolFrom     string
	PositionID   *big.Int
	DexTo        model.DexKind
	PoolTo       string
	TickLower    int32
	TickUpper    int32
	LiquidityOut *big.Int
	SlippageBps  uint32
	Fee          PartnerFee
}

func (r MigrateRequest) Query() (url.Values, error) {
	if r.PositionID == nil || r.LiquidityOut == nil || r.LiquidityOut.Sign() <= 0 {
		return nil, fmt.Errorf("migrate request: position and positive liquidity are required")
	}
	if r.TickLower >= r.TickUpper {
		return nil, fmt.Errorf("migrate request: tick lower %d must be below tick upper %d", r.TickLower, r.TickUpper)
	}
	q := url.Values{}
	q.Set("dexFrom", r.DexFrom.APIName())
	q.Set("poolFrom.id", r.PoolFrom)
	q.Set("positionFrom.id", r.PositionID.String())
	q.Set("dexTo", r.DexTo.APIName())
	q.Set("poolTo.id", r.PoolTo)
	q.Set("positionTo.tickLower", strconv.FormatInt(int64(r.TickLower), 10))
	q.Set("positionTo.tickUpper", strconv.FormatInt(int64(r.TickUpper), 10))
	q.Set("liquidityOut", r.LiquidityOut.String())
	q.Set("slippage", strconv.FormatUint(uint64(r.SlippageBps), 10))
	setFee(q, r.Fee)
	return q, nil
}

// GetRoute fetches a zap-in route.
func (c *Client) GetRoute(ctx context.Context, req RouteRequest) (*model.ZapRoute, error) {
	q, err := req.Query()
	if err != nil {
		return nil, err
	}
	return c.fetchRoute(ctx, RouteIn, q)
}

// GetZapOutRoute fetches a zap-out route.
func (c *Client) GetZapOutRoute(ctx context.Context, req ZapOutRequest) (*model.ZapRoute, error) {
	q, err := req.Query()
	if err != nil {
		return nil, err
	}
	return c.fetchRoute(ctx, RouteOut, q)
}

// GetMigrateRoute fetches a migration route.
func (c *Client) GetMigrateRoute(ctx context.Context, req MigrateRequest) (*model.ZapRoute, error) {
	q, err := req.Query()
	if err != nil {
		return nil, err
	}
	return c.fetchRoute(ctx, RouteMigrate, q)
}

func (c *Client) fetchRoute(ctx context.Context, kind RouteKind, q url.Values) (*model.ZapRoute, error) {
	var wire wireRoute
	if err := c.do(ctx, http.MethodGet, "/"+string(kind)+"/route", q, nil, &wire); err != nil {
		return nil, err
	}
	return wire.toModel()
}

// BuildRequest turns a route into calldata for sender.
type BuildRequest struct {
	Sender    string
	Recipient string
	Route     string
	Deadline  time.Time
	Source    string
}

type buildBody struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Route     string `json:"route"`
	Deadline  int64  `json:"deadline"`
	Source    string `json:"source,omitempty"`
}

// DefaultDeadline is how long a built route stays executable.
const DefaultDeadline = 20 * time.Minute

// BuildRoute encodes a previously fetched route into a transaction.
func (c *Client) BuildRoute(ctx context.Context, kind RouteKind, req BuildRequest) (model.BuildResult, error) {
	if !common.IsHexAddress(req.Sender) {
		return model.BuildResult{}, fmt.Errorf("build request: invalid sender %q", req.Sender)
	}
	if req.Route == "" {
		return model.BuildResult{}, fmt.Errorf("build request: route is required")
	}
	recipient := req.Recipient
	if recipient == "" {
		recipient = req.Sender
	}
	deadline := req.Deadline
	if deadline.IsZero() {
		deadline = time.Now().Add(DefaultDeadline)
	}
	body := buildBody{
		Sender:    req.Sender,
		Recipient: recipient,
		Route:     req.Route,
		Deadline:  deadline.Unix(),
		Source:    req.Source,
	}
	if body.Source == "" {
		body.Source = c.clientID
	}

	var wire wireBuild
	if err := c.do(ctx, http.MethodPost, "/"+string(kind)+"/route/build", nil, body, &wire); err != nil {
		return model.BuildResult{}, err
	}
	return wire.toModel()
}
