package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/predict-trader/internal/orderbook"
	"github.com/mselser95/predict-trader/pkg/cache"
	"github.com/mselser95/predict-trader/pkg/types"
	"go.uber.org/zap"
)

// ErrUnauthenticated is returned by endpoints that need a bearer token when none is set.
var ErrUnauthenticated = errors.New("not authenticated")

// StatusError is a non-2xx response that carried no usable envelope.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// EnvelopeError is a {success:false} response.
type EnvelopeError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *EnvelopeError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Description)
}

// Client reads markets, books and positions from the backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger

	markets   cache.Cache[*types.Market]
	marketTTL time.Duration

	maxRetries        int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64

	mu    sync.RWMutex
	token string
}

// Config holds API client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	// Token is an existing bearer token, if any.
	Token      string
	HTTPClient *http.Client
	// MarketCache is optional; markets are fetched on every call without it.
	MarketCache    cache.Cache[*types.Market]
	MarketCacheTTL time.Duration
	// MaxRetries applies to GET requests only. Defaults to 3.
	MaxRetries int
	Logger     *zap.Logger
}

// New creates an API client.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.BaseURL == "" {
		return nil, errors.New("base URL cannot be empty")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	ttl := cfg.MarketCacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &Client{
		baseURL:           strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:            cfg.APIKey,
		httpClient:        httpClient,
		logger:            cfg.Logger,
		markets:           cfg.MarketCache,
		marketTTL:         ttl,
		maxRetries:        maxRetries,
		initialBackoff:    200 * time.Millisecond,
		maxBackoff:        5 * time.Second,
		backoffMultiplier: 2.0,
		token:             cfg.Token,
	}, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient returns the underlying HTTP client.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// APIKey returns the configured API key.
func (c *Client) APIKey() string {
	return c.apiKey
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// GetMarkets lists markets and refreshes the market cache.
func (c *Client) GetMarkets(ctx context.Context) ([]*types.Market, error) {
	var dtos []marketDTO
	err := c.get(ctx, "markets", "/markets", false, &dtos)
	if err != nil {
		return nil, fmt.Errorf("get markets: %w", err)
	}

	markets := make([]*types.Market, 0, len(dtos))
	for i := range dtos {
		m, err := toMarket(&dtos[i])
		if err != nil {
			c.logger.Warn("market-skipped", zap.Error(err))
			continue
		}
		c.cacheMarket(m)
		markets = append(markets, m)
	}

	return markets, nil
}

// GetMarket returns one market, from cache when fresh.
func (c *Client) GetMarket(ctx context.Context, marketID string) (*types.Market, error) {
	if c.markets != nil {
		if m, ok := c.markets.Get(marketKey(marketID)); ok {
			return m, nil
		}
	}

	var dto marketDTO
	err := c.get(ctx, "market", "/markets/"+marketID, false, &dto)
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", marketID, err)
	}

	m, err := toMarket(&dto)
	if err != nil {
		return nil, err
	}
	c.cacheMarket(m)

	return m, nil
}

func (c *Client) cacheMarket(m *types.Market) {
	if c.markets != nil {
		c.markets.Set(marketKey(m.ID), m, c.marketTTL)
	}
}

// InvalidateMarket drops a cached market so the next read refetches it.
func (c *Client) InvalidateMarket(marketID string) {
	if c.markets != nil {
		c.markets.Delete(marketKey(marketID))
	}
}

func marketKey(id string) string {
	return "market:" + id
}

// GetOrderbook returns the outcome-0 book of a market.
func (c *Client) GetOrderbook(ctx context.Context, marketID string) (*orderbook.Book, error) {
	var dto orderbookDTO
	err := c.get(ctx, "orderbook", "/orderbook/"+marketID, false, &dto)
	if err != nil {
		return nil, fmt.Errorf("get orderbook %s: %w", marketID, err)
	}

	return toBook(&dto, marketID), nil
}

// GetPositions returns the authenticated account's positions.
func (c *Client) GetPositions(ctx context.Context, owner string) ([]*types.Position, error) {
	var dtos []positionDTO
	err := c.get(ctx, "positions", "/positions", true, &dtos)
	if err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}

	positions := make([]*types.Position, 0, len(dtos))
	for i := range dtos {
		p, err := toPosition(&dtos[i], owner)
		if err != nil {
			c.logger.Warn("position-skipped", zap.Error(err))
			continue
		}
		positions = append(positions, p)
	}

	return positions, nil
}

var _ orderbook.Source = (*Client)(nil)

func (c *Client) get(ctx context.Context, endpoint, path string, auth bool, out any) error {
	var lastErr error

	backoff := c.initialBackoff
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			RetriesTotal.WithLabelValues(endpoint).Inc()
			c.logger.Debug("api-request-retrying",
				zap.String("endpoint", endpoint),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))

			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", types.ErrTransport, ctx.Err())
			case <-time.After(backoff):
			}

			backoff = time.Duration(math.Min(float64(backoff)*c.backoffMultiplier, float64(c.maxBackoff)))
		}

		lastErr = c.do(ctx, endpoint, http.MethodGet, path, auth, nil, out)
		if lastErr == nil || !retryable(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// do performs a single request and decodes the envelope's data into out.
func (c *Client) do(ctx context.Context, endpoint, method, path string, auth bool, body any, out any) error {
	start := time.Now()
	defer func() {
		RequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	err := c.doRequest(ctx, method, path, auth, body, out)
	if err != nil {
		RequestErrorsTotal.WithLabelValues(endpoint).Inc()
	}
	return err
}

func (c *Client) doRequest(ctx context.Context, method, path string, auth bool, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	if auth {
		token := c.Token()
		if token == "" {
			return ErrUnauthenticated
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: send request: %w", types.ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %w", types.ErrTransport, err)
	}

	var env Envelope
	if json.Unmarshal(raw, &env) != nil {
		if resp.StatusCode < 300 && json.Valid(raw) {
			return decodeData(raw, out)
		}
		return &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 256)}
	}

	switch {
	case env.Success:
		if !env.HasData() {
			return nil
		}
		return decodeData(env.Data, out)
	case env.ErrorDescription() != "":
		return &EnvelopeError{
			StatusCode:  resp.StatusCode,
			Code:        env.ErrorCode(),
			Description: env.ErrorDescription(),
		}
	case resp.StatusCode >= 300:
		return &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 256)}
	case env.HasData():
		return decodeData(env.Data, out)
	default:
		// bare object without an envelope
		return decodeData(raw, out)
	}
}

func decodeData(data json.RawMessage, out any) error {
	if out == nil {
		return nil
	}
	err := json.Unmarshal(data, out)
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, types.ErrTransport) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	var envErr *EnvelopeError
	if errors.As(err, &envErr) {
		return envErr.StatusCode == http.StatusTooManyRequests || envErr.StatusCode >= 500
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
