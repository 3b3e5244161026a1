// Package marketdata holds the market data providers the backtest engine can
// be configured with and the resolution of the configured provider alias.
package marketdata

import (
	"context"
	"fmt"
	"strings"

	"qyquant/internal/adapters/binanceclient"
	"qyquant/internal/adapters/freegold"
	"qyquant/internal/domain"
	"qyquant/internal/ports"
)

// Kind identifies a concrete provider variant.
type Kind string

const (
	KindMock    Kind = "mock"
	KindAuto    Kind = "auto"
	KindGold    Kind = "gold"
	KindBinance Kind = "binance"
)

var aliases = map[string]Kind{
	"mock":     KindMock,
	"demo":     KindMock,
	"auto":     KindAuto,
	"hybrid":   KindAuto,
	"mixed":    KindAuto,
	"gold":     KindGold,
	"xau":      KindGold,
	"freegold": KindGold,
	"binance":  KindBinance,
	"live":     KindBinance,
	"real":     KindBinance,
}

// ResolveKind maps a configuration alias to its provider kind.
func ResolveKind(alias string) (Kind, error) {
	kind, ok := aliases[strings.ToLower(strings.TrimSpace(alias))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ports.ErrUnknownProvider, alias)
	}
	return kind, nil
}

// BinanceSource is the subset of the Binance client the providers use.
type BinanceSource interface {
	GetKlines(ctx context.Context, req binanceclient.KlinesRequest) ([]domain.Bar, error)
	GetLatestPrice(ctx context.Context, symbol string, useCache bool) (float64, error)
}

// GoldSource is the subset of the FreeGold client the providers use.
type GoldSource interface {
	GetKlines(ctx context.Context, req freegold.KlinesRequest) ([]domain.Bar, error)
	GetLatestPrice(ctx context.Context, useCache bool) (float64, error)
}

// Config selects and wires the engine-wide provider.
type Config struct {
	Provider string // alias, see ResolveKind
	Binance  BinanceSource
	Gold     GoldSource
	Logger   ports.Logger
}

// New resolves cfg.Provider once and builds the matching provider. Unknown
// aliases and missing vendor clients are configuration errors.
func New(cfg Config) (ports.MarketDataProvider, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for market data provider")
	}
	kind, err := ResolveKind(cfg.Provider)
	if err != nil {
		return nil, err
	}

	var p ports.MarketDataProvider
	switch kind {
	case KindMock:
		p = NewMockProvider()
	case KindBinance:
		if cfg.Binance == nil {
			return nil, fmt.Errorf("%w: binance client is required for provider %q", ports.ErrConfigurationError, cfg.Provider)
		}
		p = NewBinanceProvider(cfg.Binance)
	case KindGold:
		if cfg.Gold == nil {
			return nil, fmt.Errorf("%w: freegold client is required for provider %q", ports.ErrConfigurationError, cfg.Provider)
		}
		p = NewGoldProvider(cfg.Gold)
	case KindAuto:
		if cfg.Binance == nil || cfg.Gold == nil {
			return nil, fmt.Errorf("%w: binance and freegold clients are required for provider %q", ports.ErrConfigurationError, cfg.Provider)
		}
		p = NewAutoProvider(NewGoldProvider(cfg.Gold), NewBinanceProvider(cfg.Binance))
	}

	cfg.Logger.Info(context.Background(), "Market data provider selected", map[string]interface{}{"alias": cfg.Provider, "provider": p.Name()})
	return p, nil
}

// commoditySymbols is the fixed set of symbols served by the commodity vendor.
var commoditySymbols = map[string]struct{}{
	"XAU":      {},
	"XAUUSD":   {},
	"XAUUSDT":  {},
	"GOLD":     {},
	"GOLDUSD":  {},
	"FREEGOLD": {},
}

// NormalizeSymbol upper-cases s and strips pair separators.
func NormalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer("/", "", "-", "").Replace(s)
}

// IsCommodity reports whether symbol names the commodity series.
func IsCommodity(symbol string) bool {
	_, ok := commoditySymbols[NormalizeSymbol(symbol)]
	return ok
}
