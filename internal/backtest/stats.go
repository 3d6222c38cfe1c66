package backtest

import (
	"math"

	"github.com/newthinker/rankfolio/internal/money"
)

// tradingDays is the number of sessions per year used for annualization.
const tradingDays = 252

// CalculateStats computes performance statistics from the equity curve and
// the trade ledger.
func CalculateStats(initial money.Money, curve []EquitySnapshot, trades []Trade) Stats {
	stats := Stats{TotalTrades: len(trades)}

	var sells int
	for _, t := range trades {
		if !t.IsSell() {
			continue
		}
		sells++
		if t.IsWin() {
			stats.WinTrades++
		} else {
			stats.LossTrades++
		}
	}
	if sells > 0 {
		stats.WinRate = float64(stats.WinTrades) / float64(sells)
	}

	if len(curve) == 0 {
		return stats
	}

	equity := make([]float64, len(curve))
	for i, p := range curve {
		equity[i] = p.Equity.Float64()
	}

	if tr, err := curve[len(curve)-1].Equity.Ratio(initial); err == nil {
		stats.TotalReturn = tr - 1
	}
	stats.AnnualizedReturn = annualize(stats.TotalReturn, len(curve))
	stats.MaxDrawdown = calculateMaxDrawdown(equity)
	stats.SharpeRatio = calculateSharpeRatio(dailyReturns(equity))
	return stats
}

// annualize converts a total return over days sessions into a yearly rate.
func annualize(total float64, days int) float64 {
	if days <= 0 || total <= -1 {
		return 0
	}
	return math.Pow(1+total, float64(tradingDays)/float64(days)) - 1
}

// calculateMaxDrawdown finds the largest peak-to-trough decline of an
// equity series, as a fraction of the running peak.
func calculateMaxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}

	var maxDD float64
	peak := equity[0]

	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			dd := (peak - e) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}

	return maxDD
}

func dailyReturns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, equity[i]/equity[i-1]-1)
	}
	return out
}

// calculateSharpeRatio computes the annualized mean-over-deviation of daily
// returns, using the population deviation. Zero when fewer than two
// returns exist or the deviation is zero.
func calculateSharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	stdDev := math.Sqrt(variance / float64(len(returns)))

	if stdDev < 1e-15 {
		return 0
	}

	return mean / stdDev * math.Sqrt(tradingDays)
}
