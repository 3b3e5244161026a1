package domain

// Summary holds the headline statistics derived from a bar sequence.
// Percentages are expressed on a 0-100 scale.
type Summary struct {
	TotalReturn      float64 `json:"totalReturn"`
	AnnualizedReturn float64 `json:"annualizedReturn"`
	SharpeRatio      float64 `json:"sharpeRatio"`
	MaxDrawdown      float64 `json:"maxDrawdown"`
	WinRate          float64 `json:"winRate"`
	ProfitFactor     float64 `json:"profitFactor"`
	TotalTrades      int     `json:"totalTrades"`
	AvgHoldingDays   float64 `json:"avgHoldingDays"`
}

// BacktestResult is the payload returned by a backtest run.
type BacktestResult struct {
	Kline   []Bar   `json:"kline"`
	Trades  []Trade `json:"trades"`
	Summary Summary `json:"summary"`
}
