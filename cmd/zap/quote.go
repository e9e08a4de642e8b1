package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"zapScope/internal/controller"
	"zapScope/internal/impact"
	"zapScope/internal/model"
	"zapScope/internal/storage"
	"zapScope/internal/zapapi"
)

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Fetch a zap-in route and preview the resulting position",
		RunE:  runQuote,
	}
	addZapInFlags(cmd)
	cmd.Flags().String("out", "", "append the quote to this JSONL file instead of stdout")
	return cmd
}

func runQuote(cmd *cobra.Command, _ []string) error {
	ctx, a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	q, err := a.quoteZapIn(ctx, cmd)
	if err != nil {
		return err
	}
	return a.emit(cmd, q.record())
}

// zapInQuote is a validated zap-in request with its route and preview.
type zapInQuote struct {
	pool    *model.Pool
	req     controller.Request
	route   *model.ZapRoute
	preview controller.Preview
	at      time.Time
}

func (q zapInQuote) record() model.QuoteRecord {
	amounts := make([]string, len(q.req.AmountsIn))
	for i, amount := range q.req.AmountsIn {
		amounts[i] = amount.String()
	}
	return model.QuoteRecord{
		Timestamp:     q.at,
		ChainID:       q.pool.ChainID,
		Dex:           q.pool.Dex,
		Pool:          q.pool.Address,
		Kind:          string(zapapi.RouteIn),
		TickLower:     q.req.TickLower,
		TickUpper:     q.req.TickUpper,
		TokensIn:      q.req.TokensIn,
		AmountsIn:     amounts,
		SlippageBps:   q.req.SlippageBps,
		ImpactLevel:   q.preview.Impact.Level.String(),
		ImpactDisplay: q.preview.Impact.Display,
		Amount0:       q.preview.Amount0,
		Amount1:       q.preview.Amount1,
		Route:         q.route,
	}
}

// zapInInputs collects the zap-in inputs from config, flags and the chain.
func (a *app) zapInInputs(ctx context.Context, cmd *cobra.Command) (controller.Inputs, error) {
	pool, err := a.loadPool(ctx, a.cfg.Pool)
	if err != nil {
		return controller.Inputs{}, err
	}

	tokens, err := a.tokens.Resolve(ctx, a.chainID, a.cfg.TokensIn)
	if err != nil {
		return controller.Inputs{}, err
	}
	in := controller.Inputs{
		Pool:        pool,
		SlippageBps: a.cfg.SlippageBps,
		Amounts:     a.cfg.AmountsIn,
	}
	for _, address := range a.cfg.TokensIn {
		in.TokensIn = append(in.TokensIn, tokens[model.TokenKey(address)])
	}

	if in.TickLower, in.TickUpper, err = rangeTicks(cmd, pool, a.cfg.TickLower, a.cfg.TickUpper); err != nil {
		return controller.Inputs{}, err
	}
	if in.PositionID, err = a.positionID(); err != nil {
		return controller.Inputs{}, err
	}
	if in.Wallet, err = a.walletAddress(cmd); err != nil {
		return controller.Inputs{}, err
	}
	if in.Wallet != "" {
		if in.Balances, err = a.balances(ctx, in.Wallet, in.TokensIn); err != nil {
			return controller.Inputs{}, err
		}
	}
	return in, nil
}

func (a *app) quoteZapIn(ctx context.Context, cmd *cobra.Command) (zapInQuote, error) {
	in, err := a.zapInInputs(ctx, cmd)
	if err != nil {
		return zapInQuote{}, err
	}
	req, err := controller.Validate(in, a.fee())
	if err != nil {
		return zapInQuote{}, err
	}

	route, err := a.routes.GetRoute(ctx, req.RouteRequest)
	if err != nil {
		return zapInQuote{}, fmt.Errorf("%s: %w", zapapi.FriendlyMessage(err), err)
	}
	preview, err := controller.BuildPreview(in.Pool, route, req.TickLower, req.TickUpper, a.cfg.Impact)
	if err != nil {
		return zapInQuote{}, err
	}

	a.logger.Info("zap route quoted",
		zap.String("pool", in.Pool.Address),
		zap.Int32("tick_lower", req.TickLower),
		zap.Int32("tick_upper", req.TickUpper),
		zap.String("impact", preview.Impact.Display),
		zap.Stringer("impact_level", preview.Impact.Level),
		zap.String("amount0", preview.Amount0Display),
		zap.String("amount1", preview.Amount1Display),
	)
	if preview.Impact.Message != "" {
		a.logger.Warn(preview.Impact.Message, zap.String("impact", preview.Impact.Display))
	}
	return zapInQuote{pool: in.Pool, req: req, route: route, preview: preview, at: time.Now().UTC()}, nil
}

// emit writes a quote record to --out, or to stdout.
func (a *app) emit(cmd *cobra.Command, record model.QuoteRecord) error {
	var sink storage.Storage = storage.NewJsonlWriter(cmd.OutOrStdout())
	if path, _ := cmd.Flags().GetString("out"); path != "" {
		sink = storage.NewJsonlStorage(path)
	}
	return sink.PutQuoteBatch([]model.QuoteRecord{record})
}

// impactGate refuses to execute a risky route unless the user accepted it.
func impactGate(result impact.Result, accepted bool) error {
	switch result.Level {
	case impact.LevelVeryHigh, impact.LevelInvalid:
		if !accepted {
			return fmt.Errorf("%s (%s): pass --accept-high-impact to zap anyway", result.Message, result.Display)
		}
	}
	return nil
}
