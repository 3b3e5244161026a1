package marketdata

import (
	"context"

	"qyquant/internal/domain"
	"qyquant/internal/ports"
)

const (
	mockStartTime = int64(1700000000000)
	mockStep      = int64(60_000)
	// DefaultMockLimit is the series length used when no limit is given.
	DefaultMockLimit = 120
	// MaxMockLimit caps the series length, matching the Binance kline limit.
	MaxMockLimit = 1000
)

// MockProvider synthesizes a deterministic, gently rising one-minute series.
// The symbol and time window are ignored.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) Name() string { return string(KindMock) }

func (p *MockProvider) GetBars(_ context.Context, req ports.BarsRequest) ([]domain.Bar, error) {
	return mockSeries(req.Limit), nil
}

// GetLatestPrice returns the last close of the default series.
func (p *MockProvider) GetLatestPrice(_ context.Context, _ string) (float64, error) {
	bars := mockSeries(DefaultMockLimit)
	return bars[len(bars)-1].Close, nil
}

func mockSeries(limit int) []domain.Bar {
	if limit <= 0 {
		limit = DefaultMockLimit
	}
	if limit > MaxMockLimit {
		limit = MaxMockLimit
	}
	bars := make([]domain.Bar, limit)
	for i := range bars {
		f := float64(i)
		bars[i] = domain.Bar{
			Time:   mockStartTime + int64(i)*mockStep,
			Open:   100 + f*0.1,
			High:   100 + f*0.2,
			Low:    100 + f*0.05,
			Close:  100 + f*0.15,
			Volume: 1000 + f,
		}
	}
	return bars
}
