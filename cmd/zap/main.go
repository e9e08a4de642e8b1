package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "zap",
		Short:        "Zap liquidity into concentrated-liquidity pools",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("rpc", "", "JSON-RPC URL")
	flags.Uint64("chain-id", 0, "chain id, 0 means ask the RPC")
	flags.String("dex", "uniswapv3", "pool variant (uniswapv3, pancakev3, sushiv3)")
	flags.String("pool", "", "pool address")
	flags.String("position-manager", "", "position manager (NFT) address")
	flags.String("position-id", "", "existing position id")
	flags.String("zap-api", "https://zap-api.kyberswap.com", "zap route service base URL")
	flags.String("token-api", "https://token-api.kyberswap.com", "token service base URL")
	flags.String("client-id", "zapscope", "client id sent to the services")
	flags.Duration("http-timeout", 15*time.Second, "HTTP request timeout")
	flags.String("redis-url", "", "optional redis URL for the token cache")
	flags.Uint32("slippage", 50, "slippage tolerance in bps")
	flags.String("fee-address", "", "partner fee recipient")
	flags.Uint32("fee-bps", 0, "partner fee in bps")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(newPriceCmd())
	root.AddCommand(newPoolCmd())
	root.AddCommand(newPositionCmd())
	root.AddCommand(newQuoteCmd())
	root.AddCommand(newZapCmd())
	root.AddCommand(newZapOutCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newWatchCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// addZapInFlags registers the inputs of a zap-in.
func addZapInFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("tokens-in", nil, "input token addresses (comma-separated)")
	cmd.Flags().StringSlice("amounts-in", nil, "human-readable amounts, one per input token")
	cmd.Flags().Int32("tick-lower", 0, "lower tick of the range")
	cmd.Flags().Int32("tick-upper", 0, "upper tick of the range")
	cmd.Flags().String("price-lower", "", "lower price of the range (token1 per token0), overrides tick-lower")
	cmd.Flags().String("price-upper", "", "upper price of the range, overrides tick-upper")
	cmd.Flags().String("wallet", "", "recipient address, defaults to the private key's address")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
