package backtest

import (
	"math"
	"sort"
)

type candidate struct {
	symbol   string
	score    float64
	industry string
}

// selectCandidates returns the symbols eligible to buy on row idx, ordered
// by the configured policy.
func (s *Simulator) selectCandidates(idx int) []string {
	var cands []candidate
	for _, sym := range s.prices.Symbols() {
		industry := s.meta.Industry(sym)
		if !s.settings.tradable(industry) {
			continue
		}
		if !s.acceptsAll(sym, idx) {
			continue
		}
		score, ok := s.engine.Sharpe(sym, idx)
		if !ok {
			score = math.Inf(-1)
		}
		cands = append(cands, candidate{symbol: sym, score: score, industry: industry})
	}

	switch s.settings.Ordering {
	case OrderByScore:
		sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })
	case OrderByIndustry:
		cands = roundRobin(cands, s.settings.PerIndustry)
	}

	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.symbol
	}
	return out
}

func (s *Simulator) acceptsAll(symbol string, idx int) bool {
	for _, rule := range s.settings.BuyRules {
		if !s.accepts(rule, symbol, idx) {
			return false
		}
	}
	return true
}

func (s *Simulator) accepts(rule BuyRule, symbol string, idx int) bool {
	switch r := rule.(type) {
	case SharpeRank:
		return s.engine.InSharpeTopK(symbol, idx, r.TopN)
	case SharpeThreshold:
		v, ok := s.engine.Sharpe(symbol, idx)
		return ok && v >= r.Threshold
	case SharpeStreak:
		return s.engine.SharpeStreak(symbol, idx, r.Days, r.TopN)
	case GrowthRank:
		return s.engine.InGrowthTopK(symbol, idx, r.TopN)
	case GrowthStreak:
		return s.engine.GrowthStreak(symbol, idx, r.Days, r.Percentile)
	}
	return false
}

// roundRobin groups candidates by industry, orders each group and the groups
// themselves by best score, then takes one from each group per round until
// every group is exhausted or has given perIndustry symbols.
func roundRobin(cands []candidate, perIndustry int) []candidate {
	if perIndustry < 1 {
		perIndustry = 1
	}
	groups := make(map[string][]candidate)
	var industries []string
	for _, c := range cands {
		if _, ok := groups[c.industry]; !ok {
			industries = append(industries, c.industry)
		}
		groups[c.industry] = append(groups[c.industry], c)
	}
	for _, ind := range industries {
		g := groups[ind]
		sort.SliceStable(g, func(i, j int) bool { return g[i].score > g[j].score })
	}
	sort.SliceStable(industries, func(i, j int) bool {
		return groups[industries[i]][0].score > groups[industries[j]][0].score
	})

	out := make([]candidate, 0, len(cands))
	for round := 0; round < perIndustry; round++ {
		took := false
		for _, ind := range industries {
			if g := groups[ind]; round < len(g) {
				out = append(out, g[round])
				took = true
			}
		}
		if !took {
			break
		}
	}
	return out
}
