package backtest

import (
	"time"

	"github.com/newthinker/rankfolio/internal/core"
	"github.com/newthinker/rankfolio/internal/money"
)

// Index symbols used as market benchmarks.
const (
	IndexNasdaq = "^IXIC"
	IndexTaiex  = "^TWII"
)

// BenchmarkName returns the display name of a market's benchmark.
func BenchmarkName(market core.Market) string {
	switch market {
	case core.MarketTW:
		return "TAIEX"
	case core.MarketGlobal:
		return "NASDAQ/TAIEX 50/50"
	}
	return "NASDAQ"
}

// BenchmarkCurve values a buy-and-hold of the market index in the base
// currency on each of dates. Each leg converts its share of initial into the
// index's currency on the first usable date and is converted back at each
// date's rate. Dates without an index close are skipped; a missing index
// yields an empty curve.
func BenchmarkCurve(m *core.PriceMatrix, fx *money.FX, market core.Market, dates []time.Time, initial money.Money) []BenchmarkPoint {
	if fx == nil {
		fx = money.NewFX(nil)
	}
	var legs []benchmarkLeg
	switch market {
	case core.MarketTW:
		legs = []benchmarkLeg{{symbol: IndexTaiex, weight: 1, currency: money.CurrencyTWD}}
	case core.MarketGlobal:
		legs = []benchmarkLeg{
			{symbol: IndexNasdaq, weight: 0.5, currency: money.CurrencyUSD},
			{symbol: IndexTaiex, weight: 0.5, currency: money.CurrencyTWD},
		}
	default:
		legs = []benchmarkLeg{{symbol: IndexNasdaq, weight: 1, currency: money.CurrencyUSD}}
	}
	for _, l := range legs {
		if !m.Has(l.symbol) {
			return nil
		}
	}

	var out []BenchmarkPoint
	for _, d := range dates {
		idx := m.IndexOnOrBefore(d)
		if idx < 0 || !m.Date(idx).Equal(d) {
			continue
		}
		prices := make([]float64, len(legs))
		usable := true
		for i, l := range legs {
			p, ok := m.Price(idx, l.symbol)
			if !ok || p <= 0 {
				usable = false
				break
			}
			prices[i] = p
		}
		if !usable {
			continue
		}

		if out == nil {
			for i := range legs {
				legs[i].first = prices[i]
				legs[i].stake = fx.To(initial.Mul(legs[i].weight), legs[i].currency, d)
			}
		}

		equity := money.Zero(money.Base)
		for i, l := range legs {
			value := fx.ToBase(l.stake.Mul(prices[i]/l.first), d)
			equity = equity.MustAdd(value)
		}
		out = append(out, BenchmarkPoint{Date: d, Equity: equity.Float64()})
	}
	return out
}

type benchmarkLeg struct {
	symbol   string
	weight   float64
	currency money.Currency
	first    float64
	stake    money.Money // initial allocation in currency
}
