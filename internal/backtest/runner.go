// Package backtest runs a backtest end to end: fetch bars from the configured
// provider, then summarize them.
package backtest

import (
	"context"
	"fmt"
	"strings"

	"qyquant/internal/analytics"
	"qyquant/internal/domain"
	"qyquant/internal/ports"
	"qyquant/internal/timestamp"
)

// DefaultLimit is the number of bars requested when the caller gives none.
const DefaultLimit = 120

// Request holds the inputs of a single backtest run. Start and End accept any
// encoding timestamp.ToMillis understands; nil or "" means unbounded.
type Request struct {
	Symbol   string `json:"symbol"`
	Strategy string `json:"strategy,omitempty"` // accepted, not executed
	Interval string `json:"interval,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Start    any    `json:"start,omitempty"`
	End      any    `json:"end,omitempty"`
}

// Runner executes backtests against one market data provider.
type Runner struct {
	provider     ports.MarketDataProvider
	logger       ports.Logger
	defaultLimit int
}

// Config holds the Runner dependencies.
type Config struct {
	Provider     ports.MarketDataProvider
	Logger       ports.Logger
	DefaultLimit int
}

// NewRunner creates a Runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Provider == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for backtest runner")
	}
	limit := cfg.DefaultLimit
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Runner{provider: cfg.Provider, logger: cfg.Logger, defaultLimit: limit}, nil
}

// ProviderName returns the name of the provider backing the runner.
func (r *Runner) ProviderName() string { return r.provider.Name() }

// Normalize validates req and converts it into a provider query.
func (r *Runner) Normalize(req Request) (ports.BarsRequest, error) {
	symbol := strings.TrimSpace(req.Symbol)
	if symbol == "" {
		return ports.BarsRequest{}, fmt.Errorf("symbol is required: %w", ports.ErrInvalidRequest)
	}
	start, _, err := timestamp.ToMillis(req.Start)
	if err != nil {
		return ports.BarsRequest{}, fmt.Errorf("start: %w", err)
	}
	end, _, err := timestamp.ToMillis(req.End)
	if err != nil {
		return ports.BarsRequest{}, fmt.Errorf("end: %w", err)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = r.defaultLimit
	}
	return ports.BarsRequest{
		Symbol:   symbol,
		Interval: strings.TrimSpace(req.Interval),
		Limit:    limit,
		Start:    start,
		End:      end,
	}, nil
}

// Run fetches bars and returns them with their summary. Any provider failure
// fails the whole run; no partial result is returned.
func (r *Runner) Run(ctx context.Context, req Request) (*domain.BacktestResult, error) {
	query, err := r.Normalize(req)
	if err != nil {
		return nil, err
	}

	bars, err := r.provider.GetBars(ctx, query)
	if err != nil {
		r.logger.Error(ctx, err, "Failed to fetch bars for backtest", map[string]interface{}{
			"symbol":   query.Symbol,
			"provider": r.provider.Name(),
		})
		return nil, fmt.Errorf("fetch bars: %w", err)
	}
	if bars == nil {
		bars = []domain.Bar{}
	}

	summary := analytics.Summarize(bars)
	r.logger.Info(ctx, "Backtest completed", map[string]interface{}{
		"symbol":      query.Symbol,
		"interval":    query.Interval,
		"provider":    r.provider.Name(),
		"bars":        len(bars),
		"totalReturn": summary.TotalReturn,
	})

	return &domain.BacktestResult{
		Kline:   bars,
		Trades:  []domain.Trade{},
		Summary: summary,
	}, nil
}
