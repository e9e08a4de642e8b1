package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"zapScope/internal/controller"
	"zapScope/internal/model"
	"zapScope/internal/poller"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep a zap-in route fresh while inputs are edited on stdin",
		Long: `Reads edits from stdin, one per line:

  amount <token> <value>
  tokens <token>[,<token>...]
  range <tick-lower> <tick-upper>
  slippage <bps>
  refresh

and prints every route state change as a JSON line.`,
		RunE: runWatch,
	}
	addZapInFlags(cmd)
	cmd.Flags().Duration("debounce", controller.DefaultDebounce, "quiet period before a route is requested")
	cmd.Flags().Duration("pool-interval", poller.DefaultPoolInterval, "pool refresh interval")
	cmd.Flags().Duration("balance-interval", poller.DefaultBalanceInterval, "balance refresh interval")
	return cmd
}

type watchEvent struct {
	State     string `json:"state"`
	Error     string `json:"error,omitempty"`
	Impact    string `json:"impact,omitempty"`
	Level     string `json:"impact_level,omitempty"`
	Message   string `json:"impact_message,omitempty"`
	Amount0   string `json:"amount0,omitempty"`
	Amount1   string `json:"amount1,omitempty"`
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	in, err := a.zapInInputs(ctx, cmd)
	if err != nil {
		return err
	}

	events := make(chan controller.Snapshot, 16)
	ctl := controller.New(a.routes, in, controller.Options{
		Debounce: a.cfg.Debounce,
		Fee:      a.fee(),
		Logger:   a.logger,
		OnChange: func(s controller.Snapshot) {
			select {
			case events <- s:
			default:
				a.logger.Warn("dropping route event, consumer is slow")
			}
		},
	})
	defer ctl.Close()

	pools, err := poller.New[*model.Pool]("pool", a.cfg.PoolInterval, func(ctx context.Context) (*model.Pool, error) {
		return a.loadPool(ctx, a.cfg.Pool)
	}, a.logger)
	if err != nil {
		return err
	}
	if err := pools.Start(ctx); err != nil {
		return err
	}
	defer pools.Stop()

	var balanceUpdates <-chan poller.Snapshot[map[string]*big.Int]
	if in.Wallet != "" {
		balances, err := poller.New[map[string]*big.Int]("balances", a.cfg.BalanceInterval, balanceFetch(ctl, in.Wallet, a.balances), a.logger)
		if err != nil {
			return err
		}
		if err := balances.Start(ctx); err != nil {
			return err
		}
		defer balances.Stop()
		balanceUpdates = balances.Updates()
	}

	edits := make(chan string)
	go readLines(ctx, cmd.InOrStdin(), edits)

	ctl.Refresh()
	pool := in.Pool
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap := <-pools.Updates():
			pool = snap.Value
			ctl.SetPool(snap.Value)
		case snap := <-balanceUpdates:
			ctl.SetBalances(snap.Value)
		case line, ok := <-edits:
			if !ok {
				edits = nil
				continue
			}
			if err := applyEdit(ctx, a, ctl, line); err != nil {
				a.logger.Warn("ignoring edit", zap.String("line", line), zap.Error(err))
			}
		case snap := <-events:
			if err := writeJSON(cmd, a.watchEvent(pool, snap)); err != nil {
				return err
			}
		}
	}
}

type balanceReader func(ctx context.Context, owner string, tokens []model.Token) (map[string]*big.Int, error)

// balanceFetch reads balances for the tokens selected at poll time, so a
// tokens edit is picked up on the next tick.
func balanceFetch(ctl *controller.Controller, owner string, read balanceReader) poller.FetchFunc[map[string]*big.Int] {
	return func(ctx context.Context) (map[string]*big.Int, error) {
		return read(ctx, owner, ctl.Snapshot().Inputs.TokensIn)
	}
}

func (a *app) watchEvent(pool *model.Pool, snap controller.Snapshot) watchEvent {
	ev := watchEvent{
		State:     snap.State.String(),
		Error:     snap.Err,
		TickLower: snap.Inputs.TickLower,
		TickUpper: snap.Inputs.TickUpper,
	}
	if snap.Request != nil {
		ev.TickLower, ev.TickUpper = snap.Request.TickLower, snap.Request.TickUpper
	}
	if snap.State != controller.StateRouteReady || snap.Route == nil {
		return ev
	}
	preview, err := controller.BuildPreview(pool, snap.Route, ev.TickLower, ev.TickUpper, a.cfg.Impact)
	if err != nil {
		ev.Error = err.Error()
		return ev
	}
	ev.Impact = preview.Impact.Display
	ev.Level = preview.Impact.Level.String()
	ev.Message = preview.Impact.Message
	ev.Amount0 = preview.Amount0Display + " " + pool.Token0.Symbol
	ev.Amount1 = preview.Amount1Display + " " + pool.Token1.Symbol
	return ev
}

func readLines(ctx context.Context, r io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case out <- line:
		case <-ctx.Done():
			return
		}
	}
}

// applyEdit parses one stdin edit and forwards it to the controller.
func applyEdit(ctx context.Context, a *app, ctl *controller.Controller, line string) error {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "amount":
		if len(fields) != 3 {
			return fmt.Errorf("usage: amount <token> <value>")
		}
		return ctl.SetAmount(fields[1], fields[2])
	case "tokens":
		if len(fields) != 2 {
			return fmt.Errorf("usage: tokens <token>[,<token>...]")
		}
		addresses := strings.Split(fields[1], ",")
		resolved, err := a.tokens.Resolve(ctx, a.chainID, addresses)
		if err != nil {
			return err
		}
		tokens := make([]model.Token, 0, len(addresses))
		for _, address := range addresses {
			tokens = append(tokens, resolved[model.TokenKey(address)])
		}
		ctl.SetTokensIn(tokens)
		return nil
	case "range":
		if len(fields) != 3 {
			return fmt.Errorf("usage: range <tick-lower> <tick-upper>")
		}
		lower, err := strconv.ParseInt(fields[1], 10, 32)
		if err != nil {
			return err
		}
		upper, err := strconv.ParseInt(fields[2], 10, 32)
		if err != nil {
			return err
		}
		ctl.SetTickRange(int32(lower), int32(upper))
		return nil
	case "slippage":
		if len(fields) != 2 {
			return fmt.Errorf("usage: slippage <bps>")
		}
		bps, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return err
		}
		ctl.SetSlippage(uint32(bps))
		return nil
	case "refresh":
		ctl.Refresh()
		return nil
	default:
		return fmt.Errorf("unknown edit %q", fields[0])
	}
}
