// Package analytics derives backtest summary statistics from a bar series.
package analytics

import (
	"math"

	"github.com/shopspring/decimal"

	"qyquant/internal/domain"
)

const (
	msPerDay       = 86_400_000.0
	secondsPerDay  = 86_400.0
	secondsPerYear = 31_536_000.0

	percentPlaces = 2
	ratioPlaces   = 4
)

// Summarize computes the summary for bars ordered by time ascending.
//
// Every consecutive bar pair counts as one observation: returns, win rate,
// profit factor and the trade count describe step-over-step price changes,
// not executed trades. Series shorter than two bars yield a zero Summary.
func Summarize(bars []domain.Bar) domain.Summary {
	n := len(bars)
	if n < 2 {
		return domain.Summary{}
	}
	first, last := bars[0], bars[n-1]

	totalReturn := (last.Close/first.Close - 1) * 100
	durationDays := math.Max(float64(last.Time-first.Time)/msPerDay, 1)
	annualized := (math.Pow(1+totalReturn/100, 365/durationDays) - 1) * 100

	periodSec := math.Max(float64(bars[1].Time-bars[0].Time)/1000, 1)

	returns := make([]float64, 0, n-1)
	var wins int
	var gains, losses float64
	for i := 1; i < n; i++ {
		r := bars[i].Close/bars[i-1].Close - 1
		returns = append(returns, r)
		switch {
		case r > 0:
			wins++
			gains += r
		case r < 0:
			losses += r
		}
	}

	var winRate float64
	if len(returns) > 0 {
		winRate = float64(wins) / float64(len(returns)) * 100
	}
	var profitFactor float64
	if losses < 0 {
		profitFactor = gains / math.Abs(losses)
	}

	var sharpe float64
	mean, std := meanStd(returns)
	if std > 0 {
		sharpe = mean / std * math.Sqrt(secondsPerYear/periodSec)
	}

	return domain.Summary{
		TotalReturn:      round(totalReturn, percentPlaces),
		AnnualizedReturn: round(annualized, percentPlaces),
		SharpeRatio:      round(sharpe, ratioPlaces),
		MaxDrawdown:      round(maxDrawdown(bars), percentPlaces),
		WinRate:          round(winRate, percentPlaces),
		ProfitFactor:     round(profitFactor, ratioPlaces),
		TotalTrades:      n - 1,
		AvgHoldingDays:   round(periodSec/secondsPerDay, ratioPlaces),
	}
}

// maxDrawdown returns the deepest close-to-running-peak decline in percent.
// The result is <= 0.
func maxDrawdown(bars []domain.Bar) float64 {
	peak := math.Inf(-1)
	var worst float64
	for _, b := range bars {
		if b.Close > peak {
			peak = b.Close
		}
		if peak == 0 {
			continue
		}
		if dd := (b.Close/peak - 1) * 100; dd < worst {
			worst = dd
		}
	}
	return worst
}

// meanStd returns the mean and population standard deviation of xs.
func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}

// round rounds half away from zero. Non-finite values collapse to 0.
func round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
