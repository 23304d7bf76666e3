package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"
)

// Client fetches historical market charts from the CoinGecko REST API.
// It spaces requests through a RateLimiter and retries transient failures
// with exponential backoff; rate-limit responses get a fixed cooldown.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	limiter     *RateLimiter
	maxAttempts int
	cooldown    time.Duration
	backoffBase time.Duration
	backoffCap  time.Duration
	maxWindow   int

	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a new Client.
type Option func(*Client)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithAPIKey sets the demo-tier API key sent with each request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithRateLimiter replaces the default request spacing gate.
func WithRateLimiter(l *RateLimiter) Option {
	return func(c *Client) {
		if l != nil {
			c.limiter = l
		}
	}
}

// WithMaxAttempts adjusts the retry budget per fetch.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithCooldown sets the sleep applied after a rate-limit response.
func WithCooldown(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.cooldown = d
		}
	}
}

// WithBackoff sets the transient-failure backoff base and cap.
func WithBackoff(base, cap time.Duration) Option {
	return func(c *Client) {
		if base > 0 {
			c.backoffBase = base
		}
		if cap > 0 {
			c.backoffCap = cap
		}
	}
}

// WithMaxWindowDays overrides the historical depth ceiling.
func WithMaxWindowDays(days int) Option {
	return func(c *Client) {
		if days > 0 {
			c.maxWindow = days
		}
	}
}

// withSleep replaces the blocking sleep, for tests.
func withSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// NewClient constructs a client with free-tier defaults.
func NewClient(opts ...Option) *Client {
	client := &Client{
		baseURL:     DefaultBaseURL,
		httpClient:  &http.Client{Timeout: DefaultHTTPTimeout},
		limiter:     NewRateLimiter(DefaultConfig().RateInterval()),
		maxAttempts: DefaultMaxAttempts,
		cooldown:    DefaultCooldown,
		backoffBase: DefaultBackoffBase,
		backoffCap:  DefaultBackoffCap,
		maxWindow:   DefaultMaxWindowDays,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// NewClientFromConfig builds a client from a provider configuration.
func NewClientFromConfig(cfg *Config, opts ...Option) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	base := []Option{
		WithBaseURL(cfg.BaseURL),
		WithAPIKey(cfg.APIKey),
		WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		WithRateLimiter(NewRateLimiter(cfg.RateInterval())),
		WithMaxAttempts(cfg.MaxAttempts),
		WithCooldown(cfg.Cooldown),
		WithBackoff(cfg.BackoffBase, cfg.BackoffCap),
		WithMaxWindowDays(cfg.MaxWindowDays),
	}
	return NewClient(append(base, opts...)...)
}

// MarketChart fetches the daily price/market-cap/volume series for one asset
// over the trailing window. Windows beyond the depth ceiling are clamped, not
// rejected. The result is complete and time-ordered; on failure a *FetchError
// is returned and no partial data is surfaced.
func (c *Client) MarketChart(ctx context.Context, assetID string, days int) ([]RawPoint, error) {
	if assetID == "" {
		return nil, &FetchError{AssetID: assetID, Attempts: 0, Err: errors.New("empty asset id")}
	}
	if days <= 0 || days > c.maxWindow {
		days = c.maxWindow
	}

	endpoint := fmt.Sprintf("%s/coins/%s/market_chart", c.baseURL, url.PathEscape(assetID))
	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("days", strconv.Itoa(days))
	params.Set("interval", "daily")
	if c.apiKey != "" {
		params.Set("x_cg_demo_api_key", c.apiKey)
	}
	reqURL := endpoint + "?" + params.Encode()

	var lastErr error
	attempts := 0
	backoff := c.backoffBase
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		attempts = attempt
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &FetchError{AssetID: assetID, Attempts: attempt, Err: err}
		}

		payload, err := c.get(ctx, reqURL)
		if err == nil {
			points, perr := decodeMarketChart(payload)
			if perr != nil {
				return nil, &FetchError{AssetID: assetID, Attempts: attempt, Err: perr}
			}
			return points, nil
		}
		lastErr = err

		if !shouldRetry(err) || attempt == c.maxAttempts {
			break
		}

		var delay time.Duration
		if rateLimited(err) {
			delay = c.cooldown
			logx.WithContext(ctx).Infof("coingecko: rate limited fetching %s, cooling down %s (attempt %d/%d)",
				assetID, delay, attempt, c.maxAttempts)
		} else {
			delay = backoff
			if backoff *= 2; backoff > c.backoffCap {
				backoff = c.backoffCap
			}
			logx.WithContext(ctx).Infof("coingecko: transient failure fetching %s: %v, retrying in %s (attempt %d/%d)",
				assetID, err, delay, attempt, c.maxAttempts)
		}
		if err := c.sleep(ctx, delay); err != nil {
			return nil, &FetchError{AssetID: assetID, Attempts: attempt, Err: err}
		}
	}

	fe := &FetchError{AssetID: assetID, Attempts: attempts, Err: lastErr}
	var se *statusError
	if errors.As(lastErr, &se) {
		fe.StatusCode = se.code
	}
	return nil, fe
}

func (c *Client) get(ctx context.Context, reqURL string) (*marketChartResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("coingecko: build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coingecko: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{code: resp.StatusCode, body: truncate(string(body), 200)}
	}

	var payload marketChartResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("coingecko: decode response: %w", err)
	}
	return &payload, nil
}

// decodeMarketChart joins the three parallel series into timestamp-ordered
// points. The market cap series is the spine, matching how the provider
// aligns the chart; price and volume are matched by exact timestamp.
func decodeMarketChart(payload *marketChartResponse) ([]RawPoint, error) {
	if payload == nil || len(payload.MarketCaps) == 0 {
		return nil, errors.New("no market data in response")
	}

	prices := make(map[int64]*decimal.Decimal, len(payload.Prices))
	for _, p := range payload.Prices {
		ms, val, err := decodeSeriesPoint(p)
		if err != nil {
			return nil, fmt.Errorf("prices series: %w", err)
		}
		prices[ms] = val
	}
	volumes := make(map[int64]*decimal.Decimal, len(payload.TotalVolumes))
	for _, p := range payload.TotalVolumes {
		ms, val, err := decodeSeriesPoint(p)
		if err != nil {
			return nil, fmt.Errorf("total_volumes series: %w", err)
		}
		volumes[ms] = val
	}

	points := make([]RawPoint, 0, len(payload.MarketCaps))
	for _, p := range payload.MarketCaps {
		ms, mcap, err := decodeSeriesPoint(p)
		if err != nil {
			return nil, fmt.Errorf("market_caps series: %w", err)
		}
		points = append(points, RawPoint{
			Time:      time.UnixMilli(ms).UTC(),
			Price:     prices[ms],
			MarketCap: mcap,
			Volume:    volumes[ms],
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })
	return points, nil
}

// decodeSeriesPoint splits a [unix_ms, value] pair. A null value comes back
// as a nil decimal; the timestamp is mandatory.
func decodeSeriesPoint(p seriesPoint) (int64, *decimal.Decimal, error) {
	tsRaw := string(p[0])
	if tsRaw == "" {
		return 0, nil, errors.New("missing timestamp")
	}
	ms, err := p[0].Int64()
	if err != nil {
		// Some gateways emit scientific notation for the millisecond stamp.
		f, ferr := p[0].Float64()
		if ferr != nil {
			return 0, nil, fmt.Errorf("bad timestamp %q", tsRaw)
		}
		ms = int64(f)
	}
	if string(p[1]) == "" {
		return ms, nil, nil
	}
	val, err := decimal.NewFromString(string(p[1]))
	if err != nil {
		return 0, nil, fmt.Errorf("bad value %q at %d", string(p[1]), ms)
	}
	return ms, &val, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
