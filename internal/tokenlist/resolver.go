package tokenlist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"zapScope/internal/dex"
	"zapScope/internal/model"
)

// ErrUnresolved is returned when some addresses could not be resolved by any source.
var ErrUnresolved = errors.New("unresolved tokens")

// Service is the token metadata service surface the resolver needs.
type Service interface {
	Lookup(ctx context.Context, chainID uint64, addresses []string) ([]model.Token, error)
	Import(ctx context.Context, chainID uint64, addresses []string) ([]model.Token, error)
}

var nativeSymbols = map[uint64]string{
	1:     "ETH",
	10:    "ETH",
	56:    "BNB",
	137:   "POL",
	8453:  "ETH",
	42161: "ETH",
	43114: "AVAX",
}

// NativeToken describes the gas token of chainID.
func NativeToken(chainID uint64) model.Token {
	symbol, ok := nativeSymbols[chainID]
	if !ok {
		symbol = "ETH"
	}
	return model.Token{
		ChainID:  chainID,
		Address:  model.NativeTokenAddress,
		Symbol:   symbol,
		Name:     symbol,
		Decimals: 18,
	}
}

// Resolver resolves token metadata through cache, service, import and finally
// on-chain reads. Service and Caller may be nil.
type Resolver struct {
	service Service
	cache   Cache
	caller  dex.Caller
	logger  *zap.Logger
}

func NewResolver(service Service, cache Cache, caller dex.Caller, logger *zap.Logger) *Resolver {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{service: service, cache: cache, caller: caller, logger: logger}
}

// Resolve returns metadata keyed by model.TokenKey. On ErrUnresolved the map
// still holds every token that was found.
func (r *Resolver) Resolve(ctx context.Context, chainID uint64, addresses []string) (map[string]model.Token, error) {
	out := make(map[string]model.Token, len(addresses))
	var missing []string
	seen := make(map[string]struct{}, len(addresses))

	for _, address := range addresses {
		key := model.TokenKey(address)
		if _, dup := seen[key]; dup || key == "" {
			continue
		}
		seen[key] = struct{}{}

		if model.IsNativeAddress(address) {
			out[key] = NativeToken(chainID)
			continue
		}
		token, ok, err := r.cache.Get(ctx, chainID, address)
		if err != nil {
			r.logger.Warn("token cache read failed", zap.String("token", address), zap.Error(err))
		}
		if ok {
			out[key] = token
			continue
		}
		missing = append(missing, address)
	}

	if len(missing) > 0 && r.service != nil {
		missing = r.collect(ctx, chainID, missing, out, "lookup", r.service.Lookup)
	}
	if len(missing) > 0 && r.service != nil {
		missing = r.collect(ctx, chainID, missing, out, "import", r.service.Import)
	}
	if len(missing) > 0 && r.caller != nil {
		var still []string
		for _, address := range missing {
			if !common.IsHexAddress(address) {
				still = append(still, address)
				continue
			}
			token, err := dex.FetchTokenMeta(ctx, r.caller, chainID, common.HexToAddress(address), r.logger)
			if err != nil {
				r.logger.Warn("on-chain token read failed", zap.String("token", address), zap.Error(err))
				still = append(still, address)
				continue
			}
			r.store(ctx, token, out)
		}
		missing = still
	}

	if len(missing) > 0 {
		return out, fmt.Errorf("%w: %s", ErrUnresolved, strings.Join(missing, ","))
	}
	return out, nil
}

type fetchFunc func(ctx context.Context, chainID uint64, addresses []string) ([]model.Token, error)

func (r *Resolver) collect(ctx context.Context, chainID uint64, missing []string, out map[string]model.Token, source string, fetch fetchFunc) []string {
	tokens, err := fetch(ctx, chainID, missing)
	if err != nil {
		r.logger.Warn("token service failed", zap.String("source", source), zap.Int("tokens", len(missing)), zap.Error(err))
		return missing
	}
	for _, token := range tokens {
		token.ChainID = chainID
		r.store(ctx, token, out)
	}
	var still []string
	for _, address := range missing {
		if _, ok := out[model.TokenKey(address)]; !ok {
			still = append(still, address)
		}
	}
	return still
}

func (r *Resolver) store(ctx context.Context, token model.Token, out map[string]model.Token) {
	out[token.Key()] = token
	if err := r.cache.Set(ctx, token); err != nil {
		r.logger.Warn("token cache write failed", zap.String("token", token.Address), zap.Error(err))
	}
}
