package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func symbolsOf(cands []candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.symbol
	}
	return out
}

func TestRoundRobin(t *testing.T) {
	cands := []candidate{
		{"T1", 1.0, "Tech"},
		{"E1", 2.5, "Energy"},
		{"T2", 3.0, "Tech"},
		{"F1", 0.5, "Finance"},
		{"E2", 0.7, "Energy"},
		{"T3", 2.0, "Tech"},
	}

	tests := []struct {
		name        string
		perIndustry int
		want        []string
	}{
		{"one each", 1, []string{"T2", "E1", "F1"}},
		{"two each", 2, []string{"T2", "E1", "F1", "T3", "E2"}},
		{"uncapped", 10, []string{"T2", "E1", "F1", "T3", "E2", "T1"}},
		{"zero means one", 0, []string{"T2", "E1", "F1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := append([]candidate(nil), cands...)
			assert.Equal(t, tt.want, symbolsOf(roundRobin(in, tt.perIndustry)))
		})
	}
}

func TestSelectCandidates_SkipsNonTradable(t *testing.T) {
	m, meta, fx := mixedFixture(t)
	sim := newTestSimulator(t, m, meta, fx, 5, testSettings())

	got := sim.selectCandidates(10)
	assert.NotContains(t, got, "^IXIC")
	assert.Len(t, got, 6)
	assert.Equal(t, []string{"AAA", "BBB", "CCC", "2330.TW", "2317.TW", "1101.TW"}, got, "column order without a policy")
}

func TestSelectCandidates_ScoreOrdering(t *testing.T) {
	m, meta, fx := mixedFixture(t)
	s := testSettings()
	s.Ordering = OrderByScore
	sim := newTestSimulator(t, m, meta, fx, 5, s)

	got := sim.selectCandidates(10)
	for i := 1; i < len(got); i++ {
		a, _ := sim.engine.Sharpe(got[i-1], 10)
		b, _ := sim.engine.Sharpe(got[i], 10)
		assert.GreaterOrEqual(t, a, b)
	}
}

func TestSelectCandidates_AllRulesMustPass(t *testing.T) {
	m, meta, fx := mixedFixture(t)
	s := testSettings()
	s.BuyRules = []BuyRule{SharpeRank{TopN: 1}, GrowthRank{TopN: 100}}
	sim := newTestSimulator(t, m, meta, fx, 5, s)

	for idx := 5; idx < 15; idx++ {
		for _, sym := range sim.selectCandidates(idx) {
			assert.True(t, sim.engine.InSharpeTopK(sym, idx, 1))
		}
	}

	s.BuyRules = []BuyRule{SharpeThreshold{Threshold: 1e9}}
	sim = newTestSimulator(t, m, meta, fx, 5, s)
	assert.Empty(t, sim.selectCandidates(10))

	s.BuyRules = []BuyRule{SharpeStreak{Days: 100, TopN: 10}}
	sim = newTestSimulator(t, m, meta, fx, 5, s)
	assert.Empty(t, sim.selectCandidates(10), "streak longer than history")
}

func TestLeaders_Scope(t *testing.T) {
	m, meta, fx := mixedFixture(t)
	sim := newTestSimulator(t, m, meta, fx, 5, testSettings())

	perCountry := sim.leaders(10, ScopePerCountry, 0, 2)
	assert.Len(t, perCountry, 4, "two per country")
	assert.Equal(t, sim.engine.CountryRanking(10, "TW")[:2], perCountry[:2], "countries in sorted order")

	pooled := sim.leaders(10, ScopePooled, 0, 2)
	assert.Equal(t, sim.engine.PooledRanking(10)[:2], pooled)

	assert.Empty(t, sim.leaders(10, ScopePooled, 50, 60))
	assert.Len(t, sim.leaders(10, ScopePooled, 5, 60), 2)
}
