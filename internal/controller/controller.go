package controller

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"zapScope/internal/model"
	"zapScope/internal/zapapi"
)

// DefaultDebounce is the quiet period after the last edit before a route is
// requested.
const DefaultDebounce = 500 * time.Millisecond

// State is the lifecycle of the current route.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateFetchingRoute
	StateRouteReady
	StateRouteError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateFetchingRoute:
		return "fetching_route"
	case StateRouteReady:
		return "route_ready"
	case StateRouteError:
		return "route_error"
	default:
		return "unknown"
	}
}

var ErrUnknownToken = errors.New("token is not selected")

// RouteFetcher is the part of the route service the controller needs.
type RouteFetcher interface {
	GetRoute(ctx context.Context, req zapapi.RouteRequest) (*model.ZapRoute, error)
}

type Options struct {
	Debounce time.Duration
	Fee      zapapi.PartnerFee
	Logger   *zap.Logger
	// OnChange, when set, receives every snapshot after a transition. It is
	// called without the controller lock held.
	OnChange func(Snapshot)
}

// Snapshot is a consistent view of the controller.
type Snapshot struct {
	State   State
	Inputs  Inputs
	Route   *model.ZapRoute
	Request *Request
	Err     string
	Seq     uint64
}

// Controller turns a stream of edits into at most one route request per quiet
// period. Only the response to the latest request is ever applied.
type Controller struct {
	fetcher  RouteFetcher
	debounce time.Duration
	fee      zapapi.PartnerFee
	logger   *zap.Logger
	onChange func(Snapshot)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	inputs      Inputs
	state       State
	route       *model.ZapRoute
	request     *Request
	errMsg      string
	seq         uint64
	lastKey     string
	timer       *time.Timer
	timerGen    uint64
	cancelFetch context.CancelFunc
	closed      bool
}

func New(fetcher RouteFetcher, initial Inputs, opts Options) *Controller {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		fetcher:  fetcher,
		debounce: opts.Debounce,
		fee:      opts.Fee,
		logger:   opts.Logger.With(zap.String("component", "zap_controller")),
		onChange: opts.OnChange,
		ctx:      ctx,
		cancel:   cancel,
		inputs:   initial.Clone(),
		state:    StateIdle,
	}
}

// SetAmount sets the human-readable amount for a selected token.
func (c *Controller) SetAmount(token, amount string) error {
	key := model.TokenKey(token)
	return c.edit(true, func(in *Inputs) error {
		for i, t := range in.TokensIn {
			if t.Key() != key {
				continue
			}
			for len(in.Amounts) < len(in.TokensIn) {
				in.Amounts = append(in.Amounts, "")
			}
			in.Amounts[i] = amount
			return nil
		}
		return fmt.Errorf("%w: %s", ErrUnknownToken, token)
	})
}

// SetTokensIn replaces the input tokens. Amounts of tokens that stay selected
// are kept.
func (c *Controller) SetTokensIn(tokens []model.Token) {
	_ = c.edit(true, func(in *Inputs) error {
		previous := make(map[string]string, len(in.TokensIn))
		for i, t := range in.TokensIn {
			if i < len(in.Amounts) {
				previous[t.Key()] = in.Amounts[i]
			}
		}
		in.TokensIn = append([]model.Token(nil), tokens...)
		in.Amounts = make([]string, len(tokens))
		for i, t := range tokens {
			in.Amounts[i] = previous[t.Key()]
		}
		return nil
	})
}

func (c *Controller) SetTickRange(lower, upper int32) {
	_ = c.edit(true, func(in *Inputs) error {
		in.TickLower, in.TickUpper = lower, upper
		return nil
	})
}

func (c *Controller) SetSlippage(bps uint32) {
	_ = c.edit(true, func(in *Inputs) error {
		in.SlippageBps = bps
		return nil
	})
}

// SetPositionID targets an existing position; nil mints a new one.
func (c *Controller) SetPositionID(id *big.Int) {
	_ = c.edit(true, func(in *Inputs) error {
		in.PositionID = id
		return nil
	})
}

// SetWallet updates the connected account. An empty address disconnects.
func (c *Controller) SetWallet(address string) {
	_ = c.edit(false, func(in *Inputs) error {
		in.Wallet = strings.TrimSpace(address)
		return nil
	})
}

func (c *Controller) SetBalances(balances map[string]*big.Int) {
	_ = c.edit(false, func(in *Inputs) error {
		in.Balances = make(map[string]*big.Int, len(balances))
		for k, v := range balances {
			in.Balances[model.TokenKey(k)] = v
		}
		return nil
	})
}

// SetPool installs a refreshed pool snapshot. The current route survives
// unless the pool identity changes the request.
func (c *Controller) SetPool(pool *model.Pool) {
	_ = c.edit(false, func(in *Inputs) error {
		in.Pool = pool
		return nil
	})
}

// Validate runs the validation step on the current inputs. It has no side
// effects.
func (c *Controller) Validate() error {
	c.mu.Lock()
	in := c.inputs.Clone()
	c.mu.Unlock()
	_, err := Validate(in, c.fee)
	return err
}

// Refresh re-requests the route for the current inputs immediately. It is the
// only way a failed request is retried.
func (c *Controller) Refresh() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.lastKey = ""
	c.runLocked()
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Close stops the debounce timer, cancels any request in flight and waits for
// it to return. Later edits are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopTimerLocked()
	c.cancel()
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Controller) edit(invalidate bool, apply func(in *Inputs) error) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	next := c.inputs.Clone()
	if err := apply(&next); err != nil {
		c.mu.Unlock()
		return err
	}
	c.inputs = next

	if invalidate {
		c.supersedeLocked()
		c.route = nil
		c.request = nil
		c.errMsg = ""
		c.lastKey = ""
		c.state = StateValidating
	}
	c.armTimerLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if invalidate {
		c.notify(snap)
	}
	return nil
}

// evaluate is the debounce target.
func (c *Controller) evaluate(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.timerGen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.runLocked()
}

// runLocked validates, dedupes and fetches. It is entered with c.mu held and
// releases it.
func (c *Controller) runLocked() {
	req, err := Validate(c.inputs, c.fee)
	if err != nil {
		c.supersedeLocked()
		c.route = nil
		c.request = nil
		c.lastKey = ""
		c.state = StateRouteError
		c.errMsg = err.Error()
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.logger.Debug("zap inputs rejected", zap.String("reason", err.Error()))
		c.notify(snap)
		return
	}

	if req.Key == c.lastKey && c.state != StateValidating {
		c.mu.Unlock()
		return
	}

	c.supersedeLocked()
	seq := c.seq
	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelFetch = cancel
	c.lastKey = req.Key
	c.request = &req
	c.route = nil
	c.errMsg = ""
	c.state = StateFetchingRoute
	snap := c.snapshotLocked()
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Debug("requesting zap route",
		zap.Uint64("seq", seq),
		zap.String("pool", req.Pool.Address),
		zap.Int32("tick_lower", req.TickLower),
		zap.Int32("tick_upper", req.TickUpper),
	)
	c.notify(snap)
	go c.fetch(ctx, seq, req)
}

func (c *Controller) fetch(ctx context.Context, seq uint64, req Request) {
	defer c.wg.Done()
	route, err := c.fetcher.GetRoute(ctx, req.RouteRequest)

	c.mu.Lock()
	if c.closed || seq != c.seq {
		c.mu.Unlock()
		c.logger.Debug("discarding stale route response", zap.Uint64("seq", seq))
		return
	}
	c.cancelFetch = nil
	if err != nil {
		c.state = StateRouteError
		c.errMsg = zapapi.FriendlyMessage(err)
		c.route = nil
	} else {
		c.state = StateRouteReady
		c.errMsg = ""
		c.route = route
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("zap route request failed", zap.Uint64("seq", seq), zap.Error(err))
	} else {
		c.logger.Info("zap route ready", zap.Uint64("seq", seq), zap.Int("actions", len(route.Actions)))
	}
	c.notify(snap)
}

// supersedeLocked makes every outstanding request stale.
func (c *Controller) supersedeLocked() {
	c.seq++
	if c.cancelFetch != nil {
		c.cancelFetch()
		c.cancelFetch = nil
	}
}

func (c *Controller) armTimerLocked() {
	c.stopTimerLocked()
	gen := c.timerGen
	c.timer = time.AfterFunc(c.debounce, func() { c.evaluate(gen) })
}

func (c *Controller) stopTimerLocked() {
	c.timerGen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:  c.state,
		Inputs: c.inputs.Clone(),
		Route:  c.route,
		Err:    c.errMsg,
		Seq:    c.seq,
	}
	if c.request != nil {
		req := *c.request
		snap.Request = &req
	}
	return snap
}

func (c *Controller) notify(snap Snapshot) {
	if c.onChange != nil {
		c.onChange(snap)
	}
}
