package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"

	"qyquant/internal/adapters/cache"
	"qyquant/internal/domain"
	"qyquant/internal/ports"
)

const (
	vendorName = "binance"

	// DefaultBaseURL is the public spot REST endpoint.
	DefaultBaseURL  = "https://api.binance.com"
	DefaultInterval = "1m"

	maxLimit = 1000

	defaultTimeout  = 10 * time.Second
	defaultKlineTTL = 300 * time.Second
	defaultPriceTTL = 2 * time.Second
)

// Client fetches spot klines and ticker prices through the go-binance
// library and caches the normalized results.
type Client struct {
	api      *binance.Client
	cache    ports.Cache
	logger   ports.Logger
	klineTTL time.Duration
	priceTTL time.Duration
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	BaseURL       string
	Timeout       time.Duration // per-request deadline
	KlineCacheTTL time.Duration
	PriceCacheTTL time.Duration
	Cache         ports.Cache
	Logger        ports.Logger
}

// KlinesRequest describes a kline query. Start and End are epoch ms, 0 means
// unbounded.
type KlinesRequest struct {
	Symbol   string
	Interval string
	Limit    int
	Start    int64
	End      int64
	NoCache  bool
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache is required for Binance client")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	klineTTL := cfg.KlineCacheTTL
	if klineTTL <= 0 {
		klineTTL = defaultKlineTTL
	}
	priceTTL := cfg.PriceCacheTTL
	if priceTTL <= 0 {
		priceTTL = defaultPriceTTL
	}

	// Public market data only, no API key needed.
	api := binance.NewClient("", "")
	api.BaseURL = baseURL
	api.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: &envelopeTransport{base: http.DefaultTransport},
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": baseURL, "timeout": timeout.String()})

	return &Client{
		api:      api,
		cache:    cfg.Cache,
		logger:   cfg.Logger,
		klineTTL: klineTTL,
		priceTTL: priceTTL,
	}, nil
}

// KlinesCacheKey builds the deterministic cache key for a kline query.
func KlinesCacheKey(symbol, interval string, start, end int64, limit int) string {
	return fmt.Sprintf("%s:klines:%s:%s:%s:%s:%d", vendorName, symbol, interval, orNone(start), orNone(end), limit)
}

// PriceCacheKey builds the cache key for a latest-price lookup.
func PriceCacheKey(symbol string) string {
	return fmt.Sprintf("%s:price:%s", vendorName, symbol)
}

func orNone(ms int64) string {
	if ms == 0 {
		return "none"
	}
	return strconv.FormatInt(ms, 10)
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// GetKlines retrieves historical klines for the given symbol.
func (c *Client) GetKlines(ctx context.Context, req KlinesRequest) ([]domain.Bar, error) {
	op := "GetKlines"
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%s: symbol is required: %w", op, ports.ErrInvalidRequest)
	}
	interval := strings.TrimSpace(req.Interval)
	if interval == "" {
		interval = DefaultInterval
	}
	limit := clampLimit(req.Limit)
	key := KlinesCacheKey(symbol, interval, req.Start, req.End, limit)

	if !req.NoCache {
		var cached []domain.Bar
		if c.readCache(ctx, key, &cached) {
			c.logger.Debug(ctx, op+" cache hit", map[string]interface{}{"key": key, "bars": len(cached)})
			return cached, nil
		}
	}

	svc := c.api.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit)
	if req.Start != 0 {
		svc = svc.StartTime(req.Start)
	}
	if req.End != 0 {
		svc = svc.EndTime(req.End)
	}
	klines, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	bars := make([]domain.Bar, 0, len(klines))
	for _, k := range klines {
		bar, err := translateKline(k)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate kline: %w", err), op)
		}
		bars = append(bars, bar)
	}

	if !req.NoCache {
		c.writeCache(ctx, key, bars, c.klineTTL)
	}
	c.logger.Debug(ctx, op+" fetched", map[string]interface{}{"symbol": symbol, "interval": interval, "bars": len(bars)})
	return bars, nil
}

type cachedPrice struct {
	Price float64 `json:"price"`
}

// GetLatestPrice retrieves the last traded price for a symbol.
func (c *Client) GetLatestPrice(ctx context.Context, symbol string, useCache bool) (float64, error) {
	op := "GetLatestPrice"
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return 0, fmt.Errorf("%s: symbol is required: %w", op, ports.ErrInvalidRequest)
	}
	key := PriceCacheKey(symbol)

	if useCache {
		var cached cachedPrice
		if c.readCache(ctx, key, &cached) {
			return cached.Price, nil
		}
	}

	prices, err := c.api.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(prices) == 0 {
		return 0, c.handleError(ctx, fmt.Errorf("no price data returned for symbol %s", symbol), op)
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, c.handleError(ctx, fmt.Errorf("could not parse price '%s': %w", prices[0].Price, err), op)
	}

	if useCache {
		c.writeCache(ctx, key, cachedPrice{Price: price}, c.priceTTL)
	}
	return price, nil
}

// readCache never fails the caller: backend errors are logged and count as a miss.
func (c *Client) readCache(ctx context.Context, key string, dst any) bool {
	ok, err := cache.GetJSON(ctx, c.cache, key, dst)
	if err != nil {
		c.logger.Warn(ctx, "Cache read failed", map[string]interface{}{"key": key, "error": err.Error()})
		return false
	}
	return ok
}

func (c *Client) writeCache(ctx context.Context, key string, v any, ttl time.Duration) {
	if err := cache.SetJSON(ctx, c.cache, key, v, ttl); err != nil {
		c.logger.Warn(ctx, "Cache write failed", map[string]interface{}{"key": key, "error": err.Error()})
	}
}

// handleError translates every failure into a *ports.UpstreamAPIError.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}
	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var upErr *ports.UpstreamAPIError
	var apiErr *common.APIError
	var netErr net.Error
	switch {
	case errors.As(err, &upErr):
		// already normalized by the transport
	case errors.As(err, &apiErr):
		fields["apiErrorCode"] = apiErr.Code
		upErr = &ports.UpstreamAPIError{
			Vendor:  vendorName,
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Err:     mapAPICode(apiErr.Code),
		}
	case errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()):
		upErr = &ports.UpstreamAPIError{
			Vendor:  vendorName,
			Message: "request timed out",
			Err:     fmt.Errorf("%w: %w", ports.ErrTimeout, err),
		}
	case errors.Is(err, context.Canceled):
		upErr = &ports.UpstreamAPIError{
			Vendor:  vendorName,
			Message: "request canceled",
			Err:     fmt.Errorf("%w: %w", ports.ErrContextCanceled, err),
		}
	case errors.As(err, &netErr):
		upErr = &ports.UpstreamAPIError{
			Vendor:  vendorName,
			Message: "request failed: " + err.Error(),
			Err:     fmt.Errorf("%w: %w", ports.ErrConnectionFailed, err),
		}
	default:
		// decoding and translation failures
		upErr = &ports.UpstreamAPIError{
			Vendor:  vendorName,
			Message: err.Error(),
			Err:     err,
		}
	}

	c.logger.Error(ctx, upErr, fmt.Sprintf("%s failed", operation), fields)
	return upErr
}

// mapAPICode classifies the Binance error codes the market data endpoints return.
func mapAPICode(code int64) error {
	switch code {
	case -1003: // Too many requests
		return ports.ErrRateLimited
	case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1120, -1121, -1127, -1128: // Parameter/Request format errors
		return ports.ErrInvalidRequest
	default:
		return ports.ErrUnknown
	}
}

func translateKline(bk *binance.Kline) (domain.Bar, error) {
	if bk == nil {
		return domain.Bar{}, errors.New("received nil historical kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	return domain.Bar{
		Time:   bk.OpenTime,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  cls,
		Volume: vol,
	}, nil
}
