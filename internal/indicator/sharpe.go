package indicator

import "math"

// Defaults for the rolling score.
const (
	DefaultWindow       = 252
	DefaultRiskFreeRate = 0.04
)

// zeroStd is the deviation below which a window counts as flat.
const zeroStd = 1e-12

// Config controls the rolling score.
type Config struct {
	Window       int     // trailing observations per score
	RiskFreeRate float64 // annual; the daily rate is RiskFreeRate / Window
}

// DefaultConfig returns a 252-day window with a 4% annual risk-free rate.
func DefaultConfig() Config {
	return Config{Window: DefaultWindow, RiskFreeRate: DefaultRiskFreeRate}
}

// DailyRiskFree returns the per-observation risk-free rate.
func (c Config) DailyRiskFree() float64 {
	if c.Window <= 0 {
		return 0
	}
	return c.RiskFreeRate / float64(c.Window)
}

// Returns computes simple returns. The first element, and any element whose
// price or previous price is missing or non-positive, is NaN.
func Returns(prices []float64) []float64 {
	out := nanSlice(len(prices))
	for i := 1; i < len(prices); i++ {
		prev, cur := prices[i-1], prices[i]
		if math.IsNaN(prev) || math.IsNaN(cur) || prev <= 0 || cur <= 0 {
			continue
		}
		out[i] = cur/prev - 1
	}
	return out
}

// Sharpe computes the rolling Sharpe-style score of one price series:
// mean excess return over the window divided by its standard deviation,
// scaled by sqrt(window). Windows that are incomplete or flat produce no
// value; the gaps are back-filled then forward-filled so the series never
// carries NaN between defined values. A series with no defined value stays
// all NaN.
func Sharpe(prices []float64, cfg Config) []float64 {
	rf := cfg.DailyRiskFree()
	excess := Returns(prices)
	for i, r := range excess {
		if !math.IsNaN(r) {
			excess[i] = r - rf
		}
	}

	means := RollingMean(excess, cfg.Window)
	stds := RollingStd(excess, means, cfg.Window)
	scale := math.Sqrt(float64(cfg.Window))

	out := nanSlice(len(prices))
	for i := range out {
		m, s := means[i], stds[i]
		if math.IsNaN(m) || math.IsNaN(s) || s < zeroStd {
			continue
		}
		v := m / s * scale
		if math.IsInf(v, 0) || math.IsNaN(v) {
			continue
		}
		out[i] = v
	}

	FillGaps(out)
	return out
}
