package marketdata

import (
	"context"
	"fmt"

	"qyquant/internal/adapters/binanceclient"
	"qyquant/internal/adapters/freegold"
	"qyquant/internal/domain"
	"qyquant/internal/ports"
)

// BinanceProvider serves crypto spot pairs.
type BinanceProvider struct {
	client BinanceSource
}

func NewBinanceProvider(client BinanceSource) *BinanceProvider {
	return &BinanceProvider{client: client}
}

func (p *BinanceProvider) Name() string { return string(KindBinance) }

func (p *BinanceProvider) GetBars(ctx context.Context, req ports.BarsRequest) ([]domain.Bar, error) {
	return p.client.GetKlines(ctx, binanceclient.KlinesRequest{
		Symbol:   req.Symbol,
		Interval: req.Interval,
		Limit:    req.Limit,
		Start:    req.Start,
		End:      req.End,
	})
}

func (p *BinanceProvider) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	return p.client.GetLatestPrice(ctx, symbol, true)
}

// GoldProvider serves the daily gold series and rejects every other symbol,
// including when called directly rather than through AutoProvider.
type GoldProvider struct {
	client GoldSource
}

func NewGoldProvider(client GoldSource) *GoldProvider {
	return &GoldProvider{client: client}
}

func (p *GoldProvider) Name() string { return string(KindGold) }

func (p *GoldProvider) GetBars(ctx context.Context, req ports.BarsRequest) ([]domain.Bar, error) {
	if err := checkCommodity(req.Symbol); err != nil {
		return nil, err
	}
	return p.client.GetKlines(ctx, freegold.KlinesRequest{
		Interval: req.Interval,
		Limit:    req.Limit,
		Start:    req.Start,
		End:      req.End,
	})
}

func (p *GoldProvider) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	if err := checkCommodity(symbol); err != nil {
		return 0, err
	}
	return p.client.GetLatestPrice(ctx, true)
}

func checkCommodity(symbol string) error {
	if !IsCommodity(symbol) {
		return fmt.Errorf("%w: %q is not served by the gold provider", ports.ErrUnsupportedSymbol, symbol)
	}
	return nil
}

// AutoProvider routes commodity symbols to one provider and everything else
// to another.
type AutoProvider struct {
	commodity ports.MarketDataProvider
	general   ports.MarketDataProvider
}

func NewAutoProvider(commodity, general ports.MarketDataProvider) *AutoProvider {
	return &AutoProvider{commodity: commodity, general: general}
}

func (p *AutoProvider) Name() string { return string(KindAuto) }

// Route returns the provider that serves symbol.
func (p *AutoProvider) Route(symbol string) ports.MarketDataProvider {
	if IsCommodity(symbol) {
		return p.commodity
	}
	return p.general
}

func (p *AutoProvider) GetBars(ctx context.Context, req ports.BarsRequest) ([]domain.Bar, error) {
	return p.Route(req.Symbol).GetBars(ctx, req)
}

func (p *AutoProvider) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	return p.Route(symbol).GetLatestPrice(ctx, symbol)
}
