package ports

import (
	"context"

	"qyquant/internal/domain"
)

// BarsRequest describes a historical bar query. Start and End are epoch
// milliseconds; 0 means unbounded.
type BarsRequest struct {
	Symbol   string
	Interval string
	Limit    int
	Start    int64
	End      int64
}

// MarketDataProvider defines the capability set shared by every market data
// source the engine can be configured with.
type MarketDataProvider interface {
	// Name returns the provider identifier used in logs and run records.
	Name() string

	// GetBars returns bars ordered by time ascending.
	GetBars(ctx context.Context, req BarsRequest) ([]domain.Bar, error)

	// GetLatestPrice returns the most recent price for the symbol.
	GetLatestPrice(ctx context.Context, symbol string) (float64, error)
}
