package main

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/spf13/cobra"

	"zapScope/internal/model"
	"zapScope/internal/tickmath"
)

func newPriceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Convert between ticks and human prices",
		RunE:  runPrice,
	}
	cmd.Flags().Int32("tick", 0, "tick to convert")
	cmd.Flags().String("price", "", "price to convert into the closest tick")
	cmd.Flags().String("sqrt-price", "", "sqrtPriceX96 to convert")
	cmd.Flags().Uint8("decimals0", 18, "token0 decimals")
	cmd.Flags().Uint8("decimals1", 18, "token1 decimals")
	cmd.Flags().Bool("invert", false, "quote token0 per token1")
	cmd.Flags().Int32("tick-spacing", 0, "also print the nearest usable tick for this spacing")
	return cmd
}

func runPrice(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	d0, _ := flags.GetUint8("decimals0")
	d1, _ := flags.GetUint8("decimals1")
	invert, _ := flags.GetBool("invert")
	spacing, _ := flags.GetInt32("tick-spacing")
	out := cmd.OutOrStdout()

	var tick int32
	switch {
	case flags.Changed("price"):
		text, _ := flags.GetString("price")
		price, err := parsePrice(text)
		if err != nil {
			return err
		}
		if tick, err = tickmath.PriceToClosestTick(price, d0, d1, invert); err != nil {
			return err
		}
	case flags.Changed("sqrt-price"):
		text, _ := flags.GetString("sqrt-price")
		sqrtP, ok := new(big.Int).SetString(strings.TrimSpace(text), 10)
		if !ok {
			return fmt.Errorf("invalid sqrt price %q", text)
		}
		var err error
		if tick, err = tickmath.GetTickAtSqrtRatio(sqrtP); err != nil {
			return err
		}
		price, err := tickmath.SqrtPriceX96ToPrice(sqrtP, d0, d1, invert)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "sqrt_price_x96=%s price=%s\n", sqrtP, formatPrice(price))
	default:
		tick, _ = flags.GetInt32("tick")
	}

	price, err := tickmath.TickToPrice(tick, d0, d1, invert)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "tick=%d price=%s\n", tick, formatPrice(price))

	if spacing > 0 {
		usable, err := tickmath.NearestUsableTick(tick, spacing)
		if err != nil {
			return err
		}
		usablePrice, err := tickmath.TickToPrice(usable, d0, d1, invert)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "usable_tick=%d price=%s\n", usable, formatPrice(usablePrice))
	}
	return nil
}

func parsePrice(text string) (*big.Float, error) {
	price, ok := new(big.Float).SetPrec(256).SetString(strings.TrimSpace(text))
	if !ok || price.Sign() <= 0 {
		return nil, fmt.Errorf("invalid price %q", text)
	}
	return price, nil
}

func formatPrice(price *big.Float) string {
	if price == nil {
		return "--"
	}
	return price.Text('g', 10)
}

// rangeTicks resolves the zap range from --price-lower/--price-upper, falling
// back to the configured ticks. Prices are token1 per token0.
func rangeTicks(cmd *cobra.Command, pool *model.Pool, lower, upper int32) (int32, int32, error) {
	flags := cmd.Flags()
	resolve := func(name string, fallback int32) (int32, error) {
		text, _ := flags.GetString(name)
		if strings.TrimSpace(text) == "" {
			return fallback, nil
		}
		price, err := parsePrice(text)
		if err != nil {
			return 0, err
		}
		tick, err := tickmath.PriceToClosestTick(price, pool.Token0.Decimals, pool.Token1.Decimals, false)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		return tickmath.NearestUsableTick(tick, pool.TickSpacing)
	}

	lo, err := resolve("price-lower", lower)
	if err != nil {
		return 0, 0, err
	}
	hi, err := resolve("price-upper", upper)
	if err != nil {
		return 0, 0, err
	}
	return lo, hi, nil
}
