package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"zapScope/internal/approval"
	"zapScope/internal/chain"
	"zapScope/internal/impact"
	"zapScope/internal/model"
	"zapScope/internal/zapapi"
)

func newZapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zap",
		Short: "Quote, approve and execute a zap-in",
		RunE:  runZap,
	}
	addZapInFlags(cmd)
	cmd.Flags().Bool("accept-high-impact", false, "execute even when the price impact is very high or unknown")
	cmd.Flags().Duration("approval-interval", approval.DefaultPollInterval, "receipt polling interval")
	return cmd
}

func runZap(cmd *cobra.Command, _ []string) error {
	ctx, a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	w, err := a.wallet()
	if err != nil {
		return err
	}
	q, err := a.quoteZapIn(ctx, cmd)
	if err != nil {
		return err
	}
	accepted, _ := cmd.Flags().GetBool("accept-high-impact")
	if err := impactGate(q.preview.Impact, accepted); err != nil {
		return err
	}

	machine := a.approvals(w)
	defer machine.Close()
	for i, token := range q.req.TokensIn {
		if err := a.ensureTokenApproval(ctx, machine, token, q.route.RouterAddress, q.req.AmountsIn[i]); err != nil {
			return err
		}
	}

	_, err = a.execute(ctx, w, zapapi.RouteIn, q.route, q.req.Recipient)
	return err
}

func newZapOutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zapout",
		Short: "Withdraw a position into a single token",
		RunE:  runZapOut,
	}
	cmd.Flags().String("token-out", "", "token to receive")
	cmd.Flags().Float64("liquidity-pct", 100, "share of the position's liquidity to withdraw")
	cmd.Flags().Bool("execute", false, "approve and send the transaction")
	cmd.Flags().Bool("accept-high-impact", false, "execute even when the price impact is very high or unknown")
	cmd.Flags().String("out", "", "append the quote to this JSONL file instead of stdout")
	return cmd
}

func runZapOut(cmd *cobra.Command, _ []string) error {
	ctx, a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	pos, pool, err := a.loadPosition(ctx)
	if err != nil {
		return err
	}
	pct, _ := cmd.Flags().GetFloat64("liquidity-pct")
	liquidityOut, err := liquidityShare(pos.Liquidity, pct)
	if err != nil {
		return err
	}
	tokenOut, _ := cmd.Flags().GetString("token-out")
	if tokenOut == "" {
		tokenOut = pool.Token0.Address
	}

	route, err := a.routes.GetZapOutRoute(ctx, zapapi.ZapOutRequest{
		Dex:          pool.Dex,
		Pool:         pool.Address,
		PositionID:   pos.ID,
		LiquidityOut: liquidityOut,
		TokenOut:     tokenOut,
		SlippageBps:  a.cfg.SlippageBps,
		Fee:          a.fee(),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", zapapi.FriendlyMessage(err), err)
	}
	result := a.classifyRoute(pool, route)
	record := model.QuoteRecord{
		Timestamp:     time.Now().UTC(),
		ChainID:       pool.ChainID,
		Dex:           pool.Dex,
		Pool:          pool.Address,
		Kind:          string(zapapi.RouteOut),
		TickLower:     pos.TickLower,
		TickUpper:     pos.TickUpper,
		SlippageBps:   a.cfg.SlippageBps,
		ImpactLevel:   result.Level.String(),
		ImpactDisplay: result.Display,
		Route:         route,
	}
	if err := a.emit(cmd, record); err != nil {
		return err
	}
	return a.executePositionRoute(ctx, cmd, zapapi.RouteOut, pos, route, result)
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Move a position's liquidity into a range of another pool",
		RunE:  runMigrate,
	}
	cmd.Flags().String("pool-to", "", "destination pool address")
	cmd.Flags().String("dex-to", "", "destination pool variant, defaults to --dex")
	cmd.Flags().Int32("tick-lower", 0, "lower tick of the destination range")
	cmd.Flags().Int32("tick-upper", 0, "upper tick of the destination range")
	cmd.Flags().Float64("liquidity-pct", 100, "share of the position's liquidity to move")
	cmd.Flags().Bool("execute", false, "approve and send the transaction")
	cmd.Flags().Bool("accept-high-impact", false, "execute even when the price impact is very high or unknown")
	cmd.Flags().String("out", "", "append the quote to this JSONL file instead of stdout")
	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx, a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	pos, pool, err := a.loadPosition(ctx)
	if err != nil {
		return err
	}
	poolTo, _ := cmd.Flags().GetString("pool-to")
	if !common.IsHexAddress(poolTo) {
		return fmt.Errorf("invalid destination pool %q", poolTo)
	}
	dexTo := a.dex
	if name, _ := cmd.Flags().GetString("dex-to"); name != "" {
		if dexTo, err = model.ParseDexKind(name); err != nil {
			return err
		}
	}
	pct, _ := cmd.Flags().GetFloat64("liquidity-pct")
	liquidityOut, err := liquidityShare(pos.Liquidity, pct)
	if err != nil {
		return err
	}

	route, err := a.routes.GetMigrateRoute(ctx, zapapi.MigrateRequest{
		DexFrom:      pool.Dex,
		PoolFrom:     pool.Address,
		PositionID:   pos.ID,
		DexTo:        dexTo,
		PoolTo:       poolTo,
		TickLower:    a.cfg.TickLower,
		TickUpper:    a.cfg.TickUpper,
		LiquidityOut: liquidityOut,
		SlippageBps:  a.cfg.SlippageBps,
		Fee:          a.fee(),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", zapapi.FriendlyMessage(err), err)
	}
	result := a.classifyRoute(pool, route)
	record := model.QuoteRecord{
		Timestamp:     time.Now().UTC(),
		ChainID:       pool.ChainID,
		Dex:           dexTo,
		Pool:          poolTo,
		Kind:          string(zapapi.RouteMigrate),
		TickLower:     a.cfg.TickLower,
		TickUpper:     a.cfg.TickUpper,
		SlippageBps:   a.cfg.SlippageBps,
		ImpactLevel:   result.Level.String(),
		ImpactDisplay: result.Display,
		Route:         route,
	}
	if err := a.emit(cmd, record); err != nil {
		return err
	}
	return a.executePositionRoute(ctx, cmd, zapapi.RouteMigrate, pos, route, result)
}

func (a *app) classifyRoute(pool *model.Pool, route *model.ZapRoute) impact.Result {
	percent := route.PriceImpact
	if percent == nil {
		percent = impact.FromUSD(route.InitialAmountUSD, route.FinalAmountUSD)
	}
	return a.cfg.Impact.ClassifyForFee(percent, pool.FeeBps())
}

// executePositionRoute approves the position NFT for the router and sends a
// zap-out or migrate route when --execute is set.
func (a *app) executePositionRoute(ctx context.Context, cmd *cobra.Command, kind zapapi.RouteKind, pos model.Position, route *model.ZapRoute, result impact.Result) error {
	if execute, _ := cmd.Flags().GetBool("execute"); !execute {
		return nil
	}
	accepted, _ := cmd.Flags().GetBool("accept-high-impact")
	if err := impactGate(result, accepted); err != nil {
		return err
	}
	w, err := a.wallet()
	if err != nil {
		return err
	}
	if !strings.EqualFold(pos.Owner, w.Address().Hex()) {
		return fmt.Errorf("position %s is owned by %s, not %s", pos.ID, pos.Owner, w.Address().Hex())
	}

	machine := a.approvals(w)
	defer machine.Close()
	if err := a.ensureNFTApproval(ctx, machine, pos.ID, route.RouterAddress); err != nil {
		return err
	}
	_, err = a.execute(ctx, w, kind, route, w.Address().Hex())
	return err
}

func (a *app) approvals(w *chain.KeyWallet) *approval.Machine {
	return approval.NewMachine(a.chain, w, a.chain, approval.Options{
		Owner:        w.Address(),
		PollInterval: a.cfg.ApprovalInterval,
		Logger:       a.logger,
	})
}

func (a *app) ensureTokenApproval(ctx context.Context, machine *approval.Machine, token, spender string, amount *big.Int) error {
	state, err := machine.Check(ctx, token, spender, amount)
	if err != nil {
		return err
	}
	if state == approval.StateApproved {
		return nil
	}
	hash, err := machine.Approve(ctx, token, spender)
	if err != nil {
		return describeTxError("approve "+token, err, a.logger)
	}
	a.logger.Info("approval sent", zap.String("token", token), zap.String("hash", hash.Hex()))
	if state, err = machine.Wait(ctx, token, spender); err != nil {
		return describeTxError("approve "+token, err, a.logger)
	}
	if state != approval.StateApproved {
		return fmt.Errorf("approve %s: ended in state %s", token, state)
	}
	return nil
}

func (a *app) ensureNFTApproval(ctx context.Context, machine *approval.Machine, id *big.Int, spender string) error {
	manager := a.cfg.PositionManager
	state, err := machine.CheckNFT(ctx, manager, id, spender)
	if err != nil {
		return err
	}
	if state == approval.StateApproved {
		return nil
	}
	hash, err := machine.ApproveNFT(ctx, manager, id, spender)
	if err != nil {
		return describeTxError("approve position", err, a.logger)
	}
	a.logger.Info("position approval sent", zap.String("id", id.String()), zap.String("hash", hash.Hex()))
	if state, err = machine.WaitNFT(ctx, manager, id, spender); err != nil {
		return describeTxError("approve position", err, a.logger)
	}
	if state != approval.StateApproved {
		return fmt.Errorf("approve position: ended in state %s", state)
	}
	return nil
}

// execute builds the route for the wallet, sends it and waits for the receipt.
func (a *app) execute(ctx context.Context, w *chain.KeyWallet, kind zapapi.RouteKind, route *model.ZapRoute, recipient string) (common.Hash, error) {
	sender := w.Address().Hex()
	built, err := a.routes.BuildRoute(ctx, kind, zapapi.BuildRequest{
		Sender:    sender,
		Recipient: recipient,
		Route:     route.Route,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("%s: %w", zapapi.FriendlyMessage(err), err)
	}

	hash, err := w.SendTransaction(ctx, built.Descriptor(sender))
	if err != nil {
		return common.Hash{}, describeTxError("zap", err, a.logger)
	}
	a.logger.Info("zap sent", zap.String("kind", string(kind)), zap.String("hash", hash.Hex()))

	receipt, err := chain.WaitReceipt(ctx, a.chain, hash, a.cfg.ApprovalInterval, a.logger)
	if err != nil {
		return hash, describeTxError("zap", err, a.logger)
	}
	a.logger.Info("zap mined",
		zap.String("hash", hash.Hex()),
		zap.Uint64("block", receipt.BlockNumber.Uint64()),
		zap.Uint64("gas_used", receipt.GasUsed),
	)
	return hash, nil
}

// describeTxError keeps the short message for the user and logs the details.
func describeTxError(action string, err error, logger *zap.Logger) error {
	var txErr *chain.TxError
	if errors.As(err, &txErr) {
		logger.Debug("transaction error details", zap.String("action", action), zap.String("details", txErr.Details()))
	}
	return fmt.Errorf("%s: %w", action, err)
}

// liquidityShare returns pct percent of liquidity, rounded down.
func liquidityShare(liquidity *big.Int, pct float64) (*big.Int, error) {
	if pct <= 0 || pct > 100 {
		return nil, fmt.Errorf("liquidity share %v must be in (0, 100]", pct)
	}
	if liquidity == nil || liquidity.Sign() == 0 {
		return nil, fmt.Errorf("position has no liquidity")
	}
	bps := big.NewInt(int64(pct * 100))
	out := new(big.Int).Mul(liquidity, bps)
	out.Quo(out, big.NewInt(10_000))
	if out.Sign() == 0 {
		return nil, fmt.Errorf("liquidity share %v rounds to zero", pct)
	}
	return out, nil
}
