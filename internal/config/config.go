package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"zapScope/internal/impact"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL          string `validate:"omitempty,url"`
	ChainID         uint64
	Dex             string `validate:"oneof=uniswapv3 pancakev3 sushiv3"`
	Pool            string `validate:"omitempty,eth_addr"`
	PositionManager string `validate:"omitempty,eth_addr"`
	PositionID      string `validate:"omitempty,number"`

	ZapAPI        string        `validate:"required,url"`
	TokenAPI      string        `validate:"required,url"`
	ClientID      string        `validate:"required"`
	HTTPTimeout   time.Duration `validate:"gt=0"`
	TokenRPS      float64       `validate:"gt=0"`
	RedisURL      string        `validate:"omitempty,url"`
	TokenCacheTTL time.Duration `validate:"gte=0"`

	TokensIn    []string `validate:"dive,eth_addr"`
	AmountsIn   []string
	TickLower   int32
	TickUpper   int32
	SlippageBps uint32 `validate:"lte=10000"`

	FeeAddress string `validate:"omitempty,eth_addr"`
	FeeBps     uint32 `validate:"lte=10000"`

	Debounce         time.Duration `validate:"gt=0"`
	PoolInterval     time.Duration `validate:"gt=0"`
	BalanceInterval  time.Duration `validate:"gt=0"`
	ApprovalInterval time.Duration `validate:"gt=0"`

	PrivateKey string
	Impact     impact.Policy
	LogLevel   string `validate:"oneof=debug info warn error"`
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ZAP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	policy := impact.DefaultPolicy()
	v.SetDefault("dex", "uniswapv3")
	v.SetDefault("zap-api", "https://zap-api.kyberswap.com")
	v.SetDefault("token-api", "https://token-api.kyberswap.com")
	v.SetDefault("client-id", "zapscope")
	v.SetDefault("http-timeout", 15*time.Second)
	v.SetDefault("token-rps", 5.0)
	v.SetDefault("token-cache-ttl", 24*time.Hour)
	v.SetDefault("slippage", uint32(50))
	v.SetDefault("debounce", 500*time.Millisecond)
	v.SetDefault("pool-interval", 15*time.Second)
	v.SetDefault("balance-interval", 8*time.Second)
	v.SetDefault("approval-interval", 8*time.Second)
	v.SetDefault("impact-stable-max-fee-bps", policy.StableMaxFeeBps)
	v.SetDefault("impact-correlated-max-fee-bps", policy.CorrelatedMaxFeeBps)
	v.SetDefault("impact-stable", policy.Stable)
	v.SetDefault("impact-correlated", policy.Correlated)
	v.SetDefault("impact-default", policy.Default)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	tokensIn, err := getStringSlice(v, "tokens-in")
	if err != nil {
		return Config{}, err
	}
	amountsIn, err := getStringSlice(v, "amounts-in")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		RPCURL:          v.GetString("rpc"),
		ChainID:         v.GetUint64("chain-id"),
		Dex:             strings.ToLower(strings.TrimSpace(v.GetString("dex"))),
		Pool:            strings.TrimSpace(v.GetString("pool")),
		PositionManager: strings.TrimSpace(v.GetString("position-manager")),
		PositionID:      strings.TrimSpace(v.GetString("position-id")),

		ZapAPI:        strings.TrimRight(v.GetString("zap-api"), "/"),
		TokenAPI:      strings.TrimRight(v.GetString("token-api"), "/"),
		ClientID:      v.GetString("client-id"),
		HTTPTimeout:   v.GetDuration("http-timeout"),
		TokenRPS:      v.GetFloat64("token-rps"),
		RedisURL:      v.GetString("redis-url"),
		TokenCacheTTL: v.GetDuration("token-cache-ttl"),

		TokensIn:    tokensIn,
		AmountsIn:   amountsIn,
		TickLower:   v.GetInt32("tick-lower"),
		TickUpper:   v.GetInt32("tick-upper"),
		SlippageBps: v.GetUint32("slippage"),

		FeeAddress: strings.TrimSpace(v.GetString("fee-address")),
		FeeBps:     v.GetUint32("fee-bps"),

		Debounce:         v.GetDuration("debounce"),
		PoolInterval:     v.GetDuration("pool-interval"),
		BalanceInterval:  v.GetDuration("balance-interval"),
		ApprovalInterval: v.GetDuration("approval-interval"),

		PrivateKey: strings.TrimPrefix(strings.TrimSpace(v.GetString("private-key")), "0x"),
		Impact: impact.Policy{
			StableMaxFeeBps:     v.GetFloat64("impact-stable-max-fee-bps"),
			CorrelatedMaxFeeBps: v.GetFloat64("impact-correlated-max-fee-bps"),
			Stable:              v.GetFloat64("impact-stable"),
			Correlated:          v.GetFloat64("impact-correlated"),
			Default:             v.GetFloat64("impact-default"),
		},
		LogLevel: strings.ToLower(v.GetString("log-level")),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field formats and cross-field rules.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.FeeBps > 0 && c.FeeAddress == "" {
		return fmt.Errorf("invalid config: fee-address is required when fee-bps is set")
	}
	if len(c.AmountsIn) > 0 && len(c.AmountsIn) != len(c.TokensIn) {
		return fmt.Errorf("invalid config: %d amounts for %d tokens", len(c.AmountsIn), len(c.TokensIn))
	}
	return nil
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	out := c
	if out.PrivateKey != "" {
		out.PrivateKey = "***"
	}
	if out.RedisURL != "" {
		if u, err := url.Parse(out.RedisURL); err == nil && u.User != nil {
			u.User = url.UserPassword(u.User.Username(), "***")
			out.RedisURL = u.String()
		}
	}
	return out
}

// getStringSlice reads a list given as a slice or a comma separated string.
// YAML list items must be strings: an unquoted 0x00..aa decodes as an integer.
func getStringSlice(v *viper.Viper, key string) ([]string, error) {
	if !v.IsSet(key) {
		return nil, nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed), nil
	case string:
		return splitAndClean(typed), nil
	case []interface{}:
		items := make([]string, 0, len(typed))
		for i, item := range typed {
			text, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("config %s[%d]: got %T %v, quote addresses and amounts in YAML", key, i, item, item)
			}
			items = append(items, text)
		}
		return cleanStrings(items), nil
	default:
		return nil, fmt.Errorf("config %s: unsupported type %T", key, val)
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
