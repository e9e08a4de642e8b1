package tokenlist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"zapScope/internal/httpclient"
	"zapScope/internal/model"
)

// ErrServiceResponse marks an unusable answer from the token service.
var ErrServiceResponse = errors.New("token service response")

// Options configures a Client.
type Options struct {
	BaseURL           string
	ClientID          string
	Timeout           time.Duration
	RequestsPerSecond float64
	Logger            *zap.Logger
}

// Client reads token metadata from the token service. Requests are rate
// limited and transient failures retried.
type Client struct {
	baseURL  *url.URL
	clientID string
	http     *retryablehttp.Client
	limiter  *rate.Limiter
	validate *validator.Validate
	logger   *zap.Logger
}

func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid token api url %q", opts.BaseURL)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Limit(opts.RequestsPerSecond)
	if opts.RequestsPerSecond <= 0 {
		limit = rate.Limit(5)
	}
	return &Client{
		baseURL:  base,
		clientID: opts.ClientID,
		http:     httpclient.New(httpclient.Options{Timeout: opts.Timeout, RetryMax: 2, Logger: logger}),
		limiter:  rate.NewLimiter(limit, 1),
		validate: validator.New(),
		logger:   logger,
	}, nil
}

type asset struct {
	ChainID  string   `json:"chainId"`
	Address  string   `json:"address" validate:"required,eth_addr"`
	Symbol   string   `json:"symbol"`
	Name     string   `json:"name"`
	Decimals *uint8   `json:"decimals" validate:"required"`
	LogoURL  string   `json:"logoURL" validate:"omitempty,url"`
	Price    *float64 `json:"price"`
}

type assetsData struct {
	Assets []asset `json:"assets" validate:"dive"`
}

type envelope struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    assetsData `json:"data"`
}

type importBody struct {
	Tokens []importToken `json:"tokens"`
}

type importToken struct {
	ChainID string `json:"chainId"`
	Address string `json:"address"`
}

// Lookup returns the known tokens among addresses. Unknown addresses are
// simply absent from the result.
func (c *Client) Lookup(ctx context.Context, chainID uint64, addresses []string) ([]model.Token, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	q := url.Values{}
	q.Set("chainIds", strconv.FormatUint(chainID, 10))
	q.Set("addresses", strings.Join(addresses, ","))
	return c.do(ctx, http.MethodGet, "/v1/public/assets", q, nil, chainID)
}

// Import registers addresses the service does not know yet and returns the
// resulting metadata.
func (c *Client) Import(ctx context.Context, chainID uint64, addresses []string) ([]model.Token, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	body := importBody{Tokens: make([]importToken, len(addresses))}
	for i, address := range addresses {
		body.Tokens[i] = importToken{ChainID: strconv.FormatUint(chainID, 10), Address: address}
	}
	return c.do(ctx, http.MethodPost, "/v1/public/tokens/import", nil, body, chainID)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}, chainID uint64) ([]model.Token, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("token service rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.clientID != "" {
		req.Header.Set("X-Client-Id", c.clientID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%w: status %d", ErrServiceResponse, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: decode: %v", ErrServiceResponse, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || env.Code != 0 {
		return nil, fmt.Errorf("%w: status %d code %d: %s", ErrServiceResponse, resp.StatusCode, env.Code, env.Message)
	}
	if err := c.validate.Struct(env.Data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceResponse, err)
	}

	out := make([]model.Token, 0, len(env.Data.Assets))
	for _, a := range env.Data.Assets {
		if a.ChainID != "" && a.ChainID != strconv.FormatUint(chainID, 10) {
			continue
		}
		out = append(out, model.Token{
			ChainID:  chainID,
			Address:  a.Address,
			Symbol:   a.Symbol,
			Name:     a.Name,
			Decimals: *a.Decimals,
			LogoURI:  a.LogoURL,
			Price:    a.Price,
		})
	}
	c.logger.Debug("token service call", zap.String("path", path), zap.Int("tokens", len(out)))
	return out, nil
}
