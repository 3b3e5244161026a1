package freegold

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"qyquant/internal/domain"
	"qyquant/internal/ports"
	"qyquant/internal/timestamp"
)

const (
	vendorName = "freegold"

	// DefaultBaseURL is the public FreeGold endpoint.
	DefaultBaseURL = "https://freegoldapi.com"
	// DatasetCacheKey is where the full dataset snapshot is cached.
	DatasetCacheKey = "freegold:data:latest"

	datasetPath     = "/data/latest.json"
	maxLimit        = 10000
	maxErrorBody    = 512
	defaultTimeout  = 10 * time.Second
	defaultDataTTL  = 6 * time.Hour
	defaultInterval = "1d"
)

var dailyIntervals = map[string]struct{}{
	"1d": {}, "1day": {}, "day": {}, "daily": {},
}

// Client reads the FreeGold daily price dataset. The vendor publishes one
// document with the whole history, so range filtering and limiting happen
// locally on the cached snapshot.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cache      ports.Cache
	logger     ports.Logger
	dataTTL    time.Duration
}

// Config holds configuration specific to the FreeGold client adapter.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	DataCacheTTL time.Duration
	Cache        ports.Cache
	Logger       ports.Logger
	// HTTPClient overrides the default client. Timeout is ignored when set.
	HTTPClient *http.Client
}

// KlinesRequest describes a daily bar query. Start and End are epoch ms and
// inclusive, 0 means unbounded. Limit <= 0 keeps every matching point.
type KlinesRequest struct {
	Interval string
	Limit    int
	Start    int64
	End      int64
	NoCache  bool
}

// New creates a new FreeGold client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for FreeGold client")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache is required for FreeGold client")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	dataTTL := cfg.DataCacheTTL
	if dataTTL <= 0 {
		dataTTL = defaultDataTTL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		cache:      cfg.Cache,
		logger:     cfg.Logger,
		dataTTL:    dataTTL,
	}, nil
}

// GetKlines returns flat daily bars sorted by time ascending.
func (c *Client) GetKlines(ctx context.Context, req KlinesRequest) ([]domain.Bar, error) {
	interval := strings.ToLower(strings.TrimSpace(req.Interval))
	if interval == "" {
		interval = defaultInterval
	}
	if _, ok := dailyIntervals[interval]; !ok {
		c.logger.Warn(ctx, "FreeGold only supports daily data, ignoring interval", map[string]interface{}{"interval": interval})
	}

	dataset, err := c.loadDataset(ctx, !req.NoCache)
	if err != nil {
		return nil, err
	}
	bars := toBars(dataset)

	if req.Start != 0 || req.End != 0 {
		filtered := bars[:0]
		for _, b := range bars {
			if req.Start != 0 && b.Time < req.Start {
				continue
			}
			if req.End != 0 && b.Time > req.End {
				continue
			}
			filtered = append(filtered, b)
		}
		bars = filtered
	}

	limit := req.Limit
	if limit > maxLimit {
		limit = maxLimit
	}
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

// GetLatestPrice returns the price of the most recent dated point.
func (c *Client) GetLatestPrice(ctx context.Context, useCache bool) (float64, error) {
	dataset, err := c.loadDataset(ctx, useCache)
	if err != nil {
		return 0, err
	}
	bars := toBars(dataset)
	if len(bars) == 0 {
		return 0, c.handleError(ctx, &ports.UpstreamAPIError{
			Vendor:  vendorName,
			Message: "empty dataset",
			Err:     ports.ErrNotFound,
		}, "GetLatestPrice")
	}
	return bars[len(bars)-1].Close, nil
}

// loadDataset returns the raw dataset array, from cache when allowed.
func (c *Client) loadDataset(ctx context.Context, useCache bool) (gjson.Result, error) {
	if useCache {
		raw, ok, err := c.cache.Get(ctx, DatasetCacheKey)
		if err != nil {
			c.logger.Warn(ctx, "Cache read failed", map[string]interface{}{"key": DatasetCacheKey, "error": err.Error()})
		} else if ok && gjson.ValidBytes(raw) {
			if parsed := gjson.ParseBytes(raw); parsed.IsArray() {
				c.logger.Debug(ctx, "FreeGold dataset cache hit", map[string]interface{}{"key": DatasetCacheKey})
				return parsed, nil
			}
		}
	}

	body, err := c.fetch(ctx, datasetPath)
	if err != nil {
		return gjson.Result{}, c.handleError(ctx, err, "loadDataset")
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, c.handleError(ctx, &ports.UpstreamAPIError{
			Vendor:  vendorName,
			Message: "non-JSON response",
		}, "loadDataset")
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsArray() {
		return gjson.Result{}, c.handleError(ctx, &ports.UpstreamAPIError{
			Vendor:  vendorName,
			Message: "unexpected payload, expected a list of points",
		}, "loadDataset")
	}

	if useCache {
		if err := c.cache.Set(ctx, DatasetCacheKey, body, c.dataTTL); err != nil {
			c.logger.Warn(ctx, "Cache write failed", map[string]interface{}{"key": DatasetCacheKey, "error": err.Error()})
		}
	}
	return parsed, nil
}

func (c *Client) fetch(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody] + "..."
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		cause := ports.ErrInvalidRequest
		switch {
		case resp.StatusCode == http.StatusNotFound:
			cause = ports.ErrNotFound
		case resp.StatusCode == http.StatusTooManyRequests:
			cause = ports.ErrRateLimited
		case resp.StatusCode >= 500:
			cause = ports.ErrConnectionFailed
		}
		return nil, &ports.UpstreamAPIError{
			Vendor:     vendorName,
			StatusCode: resp.StatusCode,
			Message:    msg,
			Err:        cause,
		}
	}
	return body, nil
}

// toBars converts dataset points into flat bars sorted by time. Points with
// a missing or unparsable date or price are skipped. When a date repeats,
// the point listed last wins.
func toBars(dataset gjson.Result) []domain.Bar {
	bars := make([]domain.Bar, 0, len(dataset.Array()))
	dataset.ForEach(func(_, item gjson.Result) bool {
		date := item.Get("date")
		price := item.Get("price")
		if !date.Exists() || !price.Exists() {
			return true
		}
		p, ok := parsePrice(price)
		if !ok {
			return true
		}
		ts, err := timestamp.DateToMillis(date.String())
		if err != nil {
			return true
		}
		bars = append(bars, domain.FlatBar(ts, p))
		return true
	})
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time < bars[j].Time })

	deduped := bars[:0]
	for _, b := range bars {
		if n := len(deduped); n > 0 && deduped[n-1].Time == b.Time {
			deduped[n-1] = b
			continue
		}
		deduped = append(deduped, b)
	}
	return deduped
}

func parsePrice(v gjson.Result) (float64, bool) {
	switch v.Type {
	case gjson.Number:
		return v.Float(), true
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// handleError translates every failure into a *ports.UpstreamAPIError.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	var upErr *ports.UpstreamAPIError
	var netErr net.Error
	switch {
	case errors.As(err, &upErr):
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
	default:
		upErr = &ports.UpstreamAPIError{
			Vendor:  vendorName,
			Message: "request failed: " + err.Error(),
			Err:     fmt.Errorf("%w: %w", ports.ErrConnectionFailed, err),
		}
	}
	c.logger.Error(ctx, upErr, fmt.Sprintf("%s failed", operation), map[string]interface{}{"operation": operation})
	return upErr
}
