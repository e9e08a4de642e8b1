package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"zapScope/internal/chain"
	"zapScope/internal/config"
	"zapScope/internal/dex"
	"zapScope/internal/model"
	"zapScope/internal/tokenlist"
	"zapScope/internal/zapapi"
)

// app bundles the clients a command needs.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	chain   *chain.Client
	chainID uint64
	dex     model.DexKind
	routes  *zapapi.Client
	tokens  *tokenlist.Resolver
	closers []func()
}

// newApp loads config, builds the logger and, when an RPC URL is configured,
// connects to the chain. The returned context is cancelled on SIGINT/SIGTERM.
func newApp(cmd *cobra.Command) (context.Context, *app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	kind, err := model.ParseDexKind(cfg.Dex)
	if err != nil {
		return nil, nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{cfg: cfg, logger: logger, dex: kind, chainID: cfg.ChainID}
	a.closers = append(a.closers, stop, func() { _ = logger.Sync() })

	if cfg.RPCURL != "" {
		client, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			a.close()
			return nil, nil, fmt.Errorf("connect rpc: %w", err)
		}
		a.chain = client
		a.closers = append(a.closers, client.Close)

		id, err := client.ChainID(ctx)
		if err != nil {
			a.close()
			return nil, nil, fmt.Errorf("chain id: %w", err)
		}
		if cfg.ChainID != 0 && cfg.ChainID != id.Uint64() {
			a.close()
			return nil, nil, fmt.Errorf("rpc serves chain %d, config expects %d", id.Uint64(), cfg.ChainID)
		}
		a.chainID = id.Uint64()
	}

	routes, err := zapapi.NewClient(zapapi.Options{
		BaseURL:  cfg.ZapAPI,
		ClientID: cfg.ClientID,
		Timeout:  cfg.HTTPTimeout,
		Logger:   logger,
	})
	if err != nil {
		a.close()
		return nil, nil, err
	}
	a.routes = routes

	service, err := tokenlist.NewClient(tokenlist.Options{
		BaseURL:           cfg.TokenAPI,
		ClientID:          cfg.ClientID,
		Timeout:           cfg.HTTPTimeout,
		RequestsPerSecond: cfg.TokenRPS,
		Logger:            logger,
	})
	if err != nil {
		a.close()
		return nil, nil, err
	}

	var cache tokenlist.Cache = tokenlist.NewMemoryCache()
	if cfg.RedisURL != "" {
		redisCache, err := tokenlist.NewRedisCacheFromURL(cfg.RedisURL, cfg.TokenCacheTTL)
		if err != nil {
			a.close()
			return nil, nil, err
		}
		cache = redisCache
		a.closers = append(a.closers, func() { _ = redisCache.Close() })
	}

	var caller dex.Caller
	if a.chain != nil {
		caller = a.chain
	}
	a.tokens = tokenlist.NewResolver(service, cache, caller, logger)

	logger.Debug("config loaded", zap.Any("config", cfg.Redacted()))
	return ctx, a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) requireChain() error {
	if a.chain == nil {
		return fmt.Errorf("rpc url is required")
	}
	return nil
}

func (a *app) fee() zapapi.PartnerFee {
	return zapapi.PartnerFee{Address: a.cfg.FeeAddress, Bps: a.cfg.FeeBps}
}

// loadPool reads the configured pool with resolved token metadata.
func (a *app) loadPool(ctx context.Context, address string) (*model.Pool, error) {
	if err := a.requireChain(); err != nil {
		return nil, err
	}
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid pool address %q", address)
	}
	return dex.FetchPool(ctx, a.chain, a.dex, a.chainID, common.HexToAddress(address), a.tokens, a.logger)
}

// wallet returns a signer when a private key is configured.
func (a *app) wallet() (*chain.KeyWallet, error) {
	if a.cfg.PrivateKey == "" {
		return nil, fmt.Errorf("private key is required (set ZAP_PRIVATE_KEY)")
	}
	if err := a.requireChain(); err != nil {
		return nil, err
	}
	return chain.NewKeyWallet(a.chain, a.cfg.PrivateKey, a.logger)
}

// walletAddress is the --wallet flag, or the private key's address.
func (a *app) walletAddress(cmd *cobra.Command) (string, error) {
	if address, _ := cmd.Flags().GetString("wallet"); address != "" {
		if !common.IsHexAddress(address) {
			return "", fmt.Errorf("invalid wallet address %q", address)
		}
		return address, nil
	}
	if a.cfg.PrivateKey == "" {
		return "", nil
	}
	w, err := a.wallet()
	if err != nil {
		return "", err
	}
	return w.Address().Hex(), nil
}

func (a *app) positionID() (*big.Int, error) {
	if a.cfg.PositionID == "" {
		return nil, nil
	}
	id, ok := new(big.Int).SetString(a.cfg.PositionID, 10)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("invalid position id %q", a.cfg.PositionID)
	}
	return id, nil
}

// balances reads raw balances of tokens for owner, keyed by model.TokenKey.
func (a *app) balances(ctx context.Context, owner string, tokens []model.Token) (map[string]*big.Int, error) {
	if err := a.requireChain(); err != nil {
		return nil, err
	}
	account := common.HexToAddress(owner)
	out := make(map[string]*big.Int, len(tokens))
	for _, token := range tokens {
		var (
			balance *big.Int
			err     error
		)
		if token.IsNative() {
			balance, err = a.chain.BalanceAt(ctx, account)
		} else {
			balance, err = dex.BalanceOf(ctx, a.chain, common.HexToAddress(token.Address), account)
		}
		if err != nil {
			return nil, fmt.Errorf("balance of %s: %w", token.Symbol, err)
		}
		out[token.Key()] = balance
	}
	return out, nil
}
