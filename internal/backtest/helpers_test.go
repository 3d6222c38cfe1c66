package backtest

import (
	"testing"
	"time"

	"github.com/newthinker/rankfolio/internal/core"
	"github.com/newthinker/rankfolio/internal/indicator"
	"github.com/newthinker/rankfolio/internal/money"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func days(n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = day(i)
	}
	return out
}

// buildMatrix lays out per-symbol series as a matrix over consecutive days.
func buildMatrix(t *testing.T, symbols []string, series map[string][]float64) *core.PriceMatrix {
	t.Helper()
	n := len(series[symbols[0]])
	rows := make([][]float64, n)
	for r := range rows {
		rows[r] = make([]float64, len(symbols))
		for c, sym := range symbols {
			require.Len(t, series[sym], n, "series %s", sym)
			rows[r][c] = series[sym][r]
		}
	}
	m, err := core.NewPriceMatrix(days(n), symbols, rows)
	require.NoError(t, err)
	return m
}

func testSettings() Settings {
	return Settings{
		InitialCapital: money.TWD(1_000_000),
		AmountPerStock: money.TWD(100_000),
		MaxPositions:   10,
		Market:         core.MarketGlobal,
		Frequency:      Daily,
		Rebalance:      Immediate{},
		Fees: map[core.Market]FeeSchedule{
			core.MarketUS: {Rate: 0.003, MinFee: money.TWD(15)},
			core.MarketTW: {Rate: 0.006, MinFee: money.TWD(0)},
		},
		NonTradable: core.DefaultNonTradable(),
	}
}

func newTestSimulator(t *testing.T, m *core.PriceMatrix, meta core.SymbolMeta, fx *money.FX, window int, s Settings) *Simulator {
	t.Helper()
	engine := indicator.NewEngine(m, meta, indicator.Config{Window: window}, nil)
	sim, err := NewSimulator(engine, fx, s, nil)
	require.NoError(t, err)
	return sim
}

func tradesFor(trades []Trade, symbol string) []Trade {
	var out []Trade
	for _, tr := range trades {
		if tr.Symbol == symbol {
			out = append(out, tr)
		}
	}
	return out
}
