package backtest

import (
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/rankfolio/internal/core"
	"github.com/newthinker/rankfolio/internal/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulator_HoldsWithoutDrop(t *testing.T) {
	// flat from row 2 on; the score stays defined through forward fill
	m := buildMatrix(t, []string{"2330.TW"}, map[string][]float64{
		"2330.TW": {100, 102, 100, 100, 100, 100, 100},
	})
	meta := core.SymbolMeta{"2330.TW": {Country: core.CountryTW, Industry: "Semiconductors"}}

	s := testSettings()
	s.BuyRules = []BuyRule{SharpeRank{TopN: 1}}
	s.Rebalance = None{}
	s.SellRules = []SellRule{Drawdown{Threshold: 0.10}}

	result, err := newTestSimulator(t, m, meta, nil, 2, s).Run(2, 6)
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	buy := result.Trades[0]
	assert.Equal(t, SideBuy, buy.Side)
	assert.Equal(t, day(2), buy.Date)
	assert.Equal(t, int64(1000), buy.Shares)
	assert.True(t, buy.Fee.Equal(money.TWD(600)), "fee %s", buy.Fee)

	assert.True(t, result.FinalEquity.Equal(money.TWD(999_400)), "final %s", result.FinalEquity)
	for _, p := range result.EquityCurve {
		assert.True(t, p.Equity.Equal(money.TWD(999_400)), "%s equity %s", p.Date, p.Equity)
	}
	assert.Zero(t, result.MaxDrawdown)
	assert.Zero(t, result.WinTrades+result.LossTrades)
}

func TestSimulator_ThresholdKeepsWeakSymbolOut(t *testing.T) {
	m := buildMatrix(t, []string{"UP", "DOWN"}, map[string][]float64{
		"UP":   {100, 102, 103, 105, 106, 108, 109, 111, 112, 114},
		"DOWN": {100, 98, 97, 95, 94, 92, 91, 89, 88, 86},
	})
	meta := core.SymbolMeta{
		"UP":   {Country: core.CountryUS, Industry: "Tech"},
		"DOWN": {Country: core.CountryUS, Industry: "Tech"},
	}

	s := testSettings()
	s.BuyRules = []BuyRule{SharpeThreshold{Threshold: 0.5}}

	result, err := newTestSimulator(t, m, meta, nil, 4, s).Run(4, 9)
	require.NoError(t, err)

	assert.NotEmpty(t, tradesFor(result.Trades, "UP"))
	assert.Empty(t, tradesFor(result.Trades, "DOWN"))
	for _, p := range result.EquityCurve {
		for _, h := range p.Holdings {
			assert.Equal(t, "UP", h.Symbol)
		}
	}
}

func TestSimulator_BatchSplitsCashEvenly(t *testing.T) {
	series := []float64{100, 102, 100, 100}
	m := buildMatrix(t, []string{"1101.TW", "1102.TW"}, map[string][]float64{
		"1101.TW": series,
		"1102.TW": series,
	})
	meta := core.SymbolMeta{
		"1101.TW": {Country: core.CountryTW, Industry: "Cement"},
		"1102.TW": {Country: core.CountryTW, Industry: "Cement"},
	}

	s := testSettings()
	s.BuyRules = []BuyRule{SharpeRank{TopN: 2}}
	s.Rebalance = Batch{Ratio: 0.5}
	s.Fees[core.MarketTW] = FeeSchedule{Rate: 0, MinFee: money.TWD(0)}

	result, err := newTestSimulator(t, m, meta, nil, 2, s).Run(2, 3)
	require.NoError(t, err)

	require.Len(t, result.Trades, 2)
	for _, tr := range result.Trades {
		assert.Equal(t, int64(2500), tr.Shares, tr.Symbol)
		assert.True(t, tr.AmountBase.Equal(money.TWD(250_000)), "%s spent %s", tr.Symbol, tr.AmountBase)
	}
	assert.True(t, result.EquityCurve[0].Cash.Equal(money.TWD(500_000)))
}

func TestSimulator_ForeignProfitIncludesFXGain(t *testing.T) {
	m := buildMatrix(t, []string{"FOO"}, map[string][]float64{
		"FOO": {100, 101, 102, 204, 102},
	})
	meta := core.SymbolMeta{"FOO": {Country: core.CountryUS, Industry: "Tech"}}
	fx := money.NewFX(map[time.Time]float64{
		day(0): 30, day(1): 30, day(2): 30, day(3): 30, day(4): 60,
	})

	s := testSettings()
	s.Rebalance = None{}
	s.SellRules = []SellRule{Drawdown{Threshold: 0.4, FromHighest: true}}

	result, err := newTestSimulator(t, m, meta, fx, 2, s).Run(2, 4)
	require.NoError(t, err)
	require.Len(t, result.Trades, 2)

	buy, sell := result.Trades[0], result.Trades[1]
	require.Equal(t, SideBuy, buy.Side)
	require.Equal(t, SideSell, sell.Side)
	assert.Equal(t, day(4), sell.Date)
	assert.Equal(t, "drawdown(40%)", sell.Reason)

	// floor(100000 / 30 / 102)
	assert.Equal(t, int64(32), buy.Shares)
	assert.True(t, buy.Price.Equal(sell.Price))

	foreignCost := money.USD(32 * 102)
	gain := foreignCost.Mul(60 - 30).Float64()
	want := gain - buy.Fee.Float64() - sell.Fee.Float64()
	assert.InDelta(t, want, sell.Profit.Float64(), 1e-6)
	assert.InDelta(t, 97_038.72, sell.Profit.Float64(), 1e-6)
	assert.Equal(t, 1, result.WinTrades)
}

// mixedFixture is a multi-country universe with an index and a missing cell.
func mixedFixture(t *testing.T) (*core.PriceMatrix, core.SymbolMeta, *money.FX) {
	t.Helper()
	symbols := []string{"AAA", "BBB", "CCC", "2330.TW", "2317.TW", "1101.TW", "^IXIC"}
	const rows = 60
	series := make(map[string][]float64, len(symbols))
	for k, sym := range symbols {
		s := make([]float64, rows)
		base := 50 + 20*float64(k)
		for r := range s {
			s[r] = base*(1+0.12*math.Sin(float64(r)*0.35+float64(k))) + float64(k%3)*0.4*float64(r)
		}
		series[sym] = s
	}
	series["CCC"][30] = math.NaN()

	meta := core.SymbolMeta{
		"AAA":     {Country: core.CountryUS, Industry: "Tech"},
		"BBB":     {Country: core.CountryUS, Industry: "Tech"},
		"CCC":     {Country: core.CountryUS, Industry: "Energy"},
		"2330.TW": {Country: core.CountryTW, Industry: "Semiconductors"},
		"2317.TW": {Country: core.CountryTW, Industry: "Electronics"},
		"1101.TW": {Country: core.CountryTW, Industry: "Cement"},
		"^IXIC":   {Country: core.CountryUS, Industry: core.IndustryMarketIndex},
	}

	rates := make(map[time.Time]float64, rows)
	for r := 0; r < rows; r++ {
		rates[day(r)] = 30 + math.Sin(float64(r)*0.2)
	}
	return buildMatrix(t, symbols, series), meta, money.NewFX(rates)
}

func mixedSettings() Settings {
	s := testSettings()
	s.MaxPositions = 3
	s.Frequency = Weekly
	s.BuyRules = []BuyRule{SharpeRank{TopN: 3}, GrowthStreak{Days: 1, Percentile: 100}}
	s.Ordering = OrderByIndustry
	s.PerIndustry = 1
	s.SellRules = []SellRule{
		Weakness{RankK: 2, Periods: 2},
		Drawdown{Threshold: 0.05, FromHighest: true},
		SharpeFail{Periods: 2, TopN: 2},
		NotSelected{Periods: 3},
		GrowthFail{Days: 3, Threshold: -1},
	}
	return s
}

func TestSimulator_EquityMatchesLedgerReplay(t *testing.T) {
	m, meta, fx := mixedFixture(t)
	result, err := newTestSimulator(t, m, meta, fx, 5, mixedSettings()).Run(5, m.Len()-1)
	require.NoError(t, err)
	require.NotEmpty(t, result.Trades)
	require.Len(t, result.EquityCurve, m.Len()-5)

	cash := money.TWD(1_000_000)
	shares := map[string]int64{}
	cost := map[string]money.Money{}
	next := 0

	for _, snap := range result.EquityCurve {
		for ; next < len(result.Trades) && !result.Trades[next].Date.After(snap.Date); next++ {
			tr := result.Trades[next]
			if tr.Side == SideBuy {
				cash = cash.MustSub(tr.AmountBase).MustSub(tr.Fee)
				shares[tr.Symbol] += tr.Shares
				cost[tr.Symbol] = tr.Price
			} else {
				cash = cash.MustAdd(tr.AmountBase).MustSub(tr.Fee)
				delete(shares, tr.Symbol)
			}
		}

		holdings := money.Zero(money.Base)
		idx := m.IndexOnOrBefore(snap.Date)
		for sym, n := range shares {
			unit := cost[sym]
			if p, ok := m.Price(idx, sym); ok {
				unit = money.New(p, unit.Currency())
			}
			holdings = holdings.MustAdd(fx.ToBase(unit.MulInt(n), snap.Date))
		}

		assert.True(t, snap.Cash.Equal(cash), "%s cash %s, replay %s", snap.Date, snap.Cash, cash)
		assert.True(t, snap.HoldingsValue.Equal(holdings), "%s holdings %s, replay %s", snap.Date, snap.HoldingsValue, holdings)
		assert.True(t, snap.Equity.Equal(snap.Cash.MustAdd(snap.HoldingsValue)))
		assert.Len(t, snap.Holdings, len(shares))
		assert.LessOrEqual(t, len(snap.Holdings), 3)
	}
	assert.Empty(t, tradesFor(result.Trades, "^IXIC"))
}

func ledgerKey(r *Result) string {
	var b strings.Builder
	for _, tr := range r.Trades {
		fmt.Fprintf(&b, "%s|%s|%s|%d|%s|%s|%s|%s|%s|%s\n",
			tr.Date.Format(core.DateLayout), tr.Symbol, tr.Side, tr.Shares,
			tr.Price.Decimal(), tr.Amount.Decimal(), tr.AmountBase.Decimal(),
			tr.Fee.Decimal(), tr.Reason, tr.Profit.Decimal())
	}
	for _, p := range r.EquityCurve {
		fmt.Fprintf(&b, "%s|%s|%s|%s", p.Date.Format(core.DateLayout),
			p.Equity.Decimal(), p.Cash.Decimal(), p.HoldingsValue.Decimal())
		for _, h := range p.Holdings {
			fmt.Fprintf(&b, "|%s:%d:%s", h.Symbol, h.Shares, h.MarketValue.Decimal())
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func TestSimulator_Deterministic(t *testing.T) {
	m, meta, fx := mixedFixture(t)

	first, err := newTestSimulator(t, m, meta, fx, 5, mixedSettings()).Run(5, m.Len()-1)
	require.NoError(t, err)
	second, err := newTestSimulator(t, m, meta, fx, 5, mixedSettings()).Run(5, m.Len()-1)
	require.NoError(t, err)

	assert.Equal(t, ledgerKey(first), ledgerKey(second))
	assert.Equal(t, first.Stats, second.Stats)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestSimulator_RerunResetsState(t *testing.T) {
	m, meta, fx := mixedFixture(t)
	sim := newTestSimulator(t, m, meta, fx, 5, mixedSettings())

	first, err := sim.Run(5, m.Len()-1)
	require.NoError(t, err)
	second, err := sim.Run(5, m.Len()-1)
	require.NoError(t, err)
	assert.Equal(t, ledgerKey(first), ledgerKey(second))
}

func TestSimulator_RunRejectsBadRows(t *testing.T) {
	m, meta, fx := mixedFixture(t)
	sim := newTestSimulator(t, m, meta, fx, 5, mixedSettings())

	for _, rows := range [][2]int{{-1, 3}, {3, m.Len()}, {5, 4}} {
		_, err := sim.Run(rows[0], rows[1])
		assert.ErrorIs(t, err, core.ErrRange, "rows %v", rows)
	}
}

func TestSimulator_MaxPositionsCapsBuys(t *testing.T) {
	m, meta, fx := mixedFixture(t)
	s := testSettings()
	s.MaxPositions = 1

	result, err := newTestSimulator(t, m, meta, fx, 5, s).Run(5, 10)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	for _, p := range result.EquityCurve {
		assert.Len(t, p.Holdings, 1)
	}
}

func TestSimulator_StopsWhenCashBelowHalfBudget(t *testing.T) {
	m, meta, fx := mixedFixture(t)
	s := testSettings()
	s.InitialCapital = money.TWD(100_000)
	s.AmountPerStock = money.TWD(300_000)

	result, err := newTestSimulator(t, m, meta, fx, 5, s).Run(5, 10)
	require.NoError(t, err)
	assert.Empty(t, result.Trades)
	assert.True(t, result.FinalEquity.Equal(money.TWD(100_000)))
}

func TestSimulator_SkipsWhenSharesRoundToZero(t *testing.T) {
	m := buildMatrix(t, []string{"BRK"}, map[string][]float64{
		"BRK": {600_000, 610_000, 605_000, 620_000},
	})
	meta := core.SymbolMeta{"BRK": {Country: core.CountryTW, Industry: "Finance"}}

	result, err := newTestSimulator(t, m, meta, nil, 2, testSettings()).Run(1, 3)
	require.NoError(t, err)
	assert.Empty(t, result.Trades)
}

func TestSimulator_NoneBuysOnlyOnFirstDay(t *testing.T) {
	m, meta, fx := mixedFixture(t)
	s := testSettings()
	s.Rebalance = None{}
	s.SellRules = []SellRule{NotSelected{Periods: 1}}

	result, err := newTestSimulator(t, m, meta, fx, 5, s).Run(5, 30)
	require.NoError(t, err)
	require.NotEmpty(t, result.Trades)
	for _, tr := range result.Trades {
		if tr.Side == SideBuy {
			assert.Equal(t, day(5), tr.Date)
		}
	}
}

func TestSimulator_DelayedWaitsForStrength(t *testing.T) {
	m, meta, fx := mixedFixture(t)

	s := testSettings()
	s.Rebalance = Delayed{TopN: 2, Threshold: 1e9, Scope: ScopePerCountry}
	result, err := newTestSimulator(t, m, meta, fx, 5, s).Run(5, 20)
	require.NoError(t, err)
	assert.Empty(t, result.Trades)

	s.Rebalance = Delayed{TopN: 2, Threshold: -1e9, Scope: ScopePooled}
	result, err = newTestSimulator(t, m, meta, fx, 5, s).Run(5, 20)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Trades)
}

var (
	risingSeries  = []float64{100, 102, 103, 105, 106, 108, 109, 111, 112, 114}
	fallingSeries = []float64{100, 98, 97, 95, 94, 92, 91, 89, 88, 86}
)

// concentratedFixture has four US and four TW symbols. When spread is set
// the first two of each country rise and the rest fall, otherwise every
// symbol follows the same rising path and all scores tie.
func concentratedFixture(t *testing.T, spread bool) (*core.PriceMatrix, core.SymbolMeta) {
	t.Helper()
	symbols := []string{"US1", "US2", "US3", "US4", "TW1", "TW2", "TW3", "TW4"}
	series := make(map[string][]float64, len(symbols))
	meta := make(core.SymbolMeta, len(symbols))
	for i, sym := range symbols {
		series[sym] = risingSeries
		if spread && i%4 >= 2 {
			series[sym] = fallingSeries
		}
		country := core.CountryUS
		if strings.HasPrefix(sym, "TW") {
			country = core.CountryTW
		}
		meta[sym] = core.SymbolInfo{Country: country, Industry: "Industrials"}
	}
	return buildMatrix(t, symbols, series), meta
}

func TestSimulator_ConcentratedBuysTopKWhenLeadersLead(t *testing.T) {
	tests := []struct {
		scope Scope
		topK  int
	}{
		// two risers per country lead the two fallers per country
		{ScopePerCountry, 2},
		// four risers pooled lead the four fallers
		{ScopePooled, 4},
	}
	for _, tt := range tests {
		t.Run(string(tt.scope), func(t *testing.T) {
			m, meta := concentratedFixture(t, true)
			s := testSettings()
			s.Ordering = OrderByScore
			s.Rebalance = Concentrated{TopK: tt.topK, LeadMargin: 0.5, Scope: tt.scope}

			result, err := newTestSimulator(t, m, meta, nil, 4, s).Run(5, 5)
			require.NoError(t, err)

			require.Len(t, result.Trades, tt.topK)
			for _, tr := range result.Trades {
				assert.Equal(t, SideBuy, tr.Side)
				assert.Contains(t, []string{"US1", "US2", "TW1", "TW2"}, tr.Symbol, "only risers are bought")
			}
		})
	}
}

func TestSimulator_ConcentratedSkipsWithoutLead(t *testing.T) {
	for _, scope := range []Scope{ScopePerCountry, ScopePooled} {
		t.Run(string(scope), func(t *testing.T) {
			m, meta := concentratedFixture(t, false)
			s := testSettings()
			s.Ordering = OrderByScore
			s.Rebalance = Concentrated{TopK: 2, LeadMargin: 0.5, Scope: scope}

			result, err := newTestSimulator(t, m, meta, nil, 4, s).Run(5, 5)
			require.NoError(t, err)
			assert.Empty(t, result.Trades, "tied scores never clear the margin")
		})
	}
}

func TestSimulator_Snapshot(t *testing.T) {
	m := buildMatrix(t, []string{"2330.TW"}, map[string][]float64{
		"2330.TW": {100, 102, 100, 110},
	})
	meta := core.SymbolMeta{"2330.TW": {Country: core.CountryTW, Industry: "Semiconductors"}}
	s := testSettings()
	s.Rebalance = None{}
	s.Fees[core.MarketTW] = FeeSchedule{Rate: 0, MinFee: money.TWD(0)}

	result, err := newTestSimulator(t, m, meta, nil, 2, s).Run(2, 3)
	require.NoError(t, err)

	last := result.EquityCurve[1]
	require.Len(t, last.Holdings, 1)
	h := last.Holdings[0]
	assert.Equal(t, "2330.TW", h.Symbol)
	assert.Equal(t, int64(1000), h.Shares)
	assert.Equal(t, 100.0, h.AvgCost)
	assert.Equal(t, 110.0, h.CurrentPrice)
	assert.True(t, h.MarketValue.Equal(money.TWD(110_000)))
	assert.InDelta(t, 10.0, h.PnLPct, 1e-9)
	assert.Equal(t, "Semiconductors", h.Industry)
	assert.Equal(t, day(2), h.BuyDate)
}
