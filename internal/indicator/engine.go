// Package indicator derives rolling scores and cross-sectional rankings
// from a price matrix.
package indicator

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/newthinker/rankfolio/internal/core"
	"go.uber.org/zap"
)

// Engine computes and caches the derived matrices for one price matrix.
// All matrices are built once by EnsureComputed and are read-only after.
type Engine struct {
	prices *core.PriceMatrix
	meta   core.SymbolMeta
	cfg    Config
	logger *zap.Logger

	once sync.Once
	set  *set
}

// set holds the derived matrices, indexed [row][col] like the price matrix.
type set struct {
	sharpe     [][]float64
	rank       [][]float64
	growth     [][]float64
	growthRank [][]float64

	sharpeByCountry []map[core.Country][]string
	growthByCountry []map[core.Country][]string
	pooled          [][]string

	// 0-based position of each symbol within its country list
	sharpePos []map[string]int
	growthPos []map[string]int
}

// NewEngine creates an engine. Nothing is computed until first use.
func NewEngine(prices *core.PriceMatrix, meta core.SymbolMeta, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if meta == nil {
		meta = core.SymbolMeta{}
	}
	return &Engine{prices: prices, meta: meta, cfg: cfg, logger: logger}
}

// Prices returns the underlying price matrix.
func (e *Engine) Prices() *core.PriceMatrix { return e.prices }

// Meta returns the symbol metadata.
func (e *Engine) Meta() core.SymbolMeta { return e.meta }

// EnsureComputed builds every derived matrix on the first call.
func (e *Engine) EnsureComputed() {
	e.once.Do(func() {
		start := time.Now()
		e.set = e.compute()
		e.logger.Info("indicators computed",
			zap.Int("symbols", len(e.prices.Symbols())),
			zap.Int("dates", e.prices.Len()),
			zap.Int("window", e.cfg.Window),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (e *Engine) compute() *set {
	symbols := e.prices.Symbols()
	rows := e.prices.Len()

	sharpe := make([][]float64, rows)
	for r := range sharpe {
		sharpe[r] = make([]float64, len(symbols))
	}
	for c, sym := range symbols {
		for r, v := range Sharpe(e.prices.Column(sym), e.cfg) {
			sharpe[r][c] = v
		}
	}

	s := &set{
		sharpe:     sharpe,
		rank:       make([][]float64, rows),
		growth:     make([][]float64, rows),
		growthRank: make([][]float64, rows),
	}
	for r := 0; r < rows; r++ {
		s.rank[r] = Rank(sharpe[r])
		var prev []float64
		if r > 0 {
			prev = s.rank[r-1]
		}
		s.growth[r] = Delta(prev, s.rank[r])
		s.growthRank[r] = Rank(s.growth[r])
	}

	// column groups per country, in matrix order
	groups := make(map[core.Country][]int)
	all := make([]int, len(symbols))
	for c, sym := range symbols {
		country := e.meta.Country(sym)
		groups[country] = append(groups[country], c)
		all[c] = c
	}

	s.sharpeByCountry = make([]map[core.Country][]string, rows)
	s.growthByCountry = make([]map[core.Country][]string, rows)
	s.pooled = make([][]string, rows)
	s.sharpePos = make([]map[string]int, rows)
	s.growthPos = make([]map[string]int, rows)
	for r := 0; r < rows; r++ {
		s.sharpeByCountry[r] = make(map[core.Country][]string, len(groups))
		s.growthByCountry[r] = make(map[core.Country][]string, len(groups))
		s.sharpePos[r] = make(map[string]int)
		s.growthPos[r] = make(map[string]int)
		for country, cols := range groups {
			sl := Ordered(sharpe[r], cols, symbols)
			gl := Ordered(s.growth[r], cols, symbols)
			s.sharpeByCountry[r][country] = sl
			s.growthByCountry[r][country] = gl
			for i, sym := range sl {
				s.sharpePos[r][sym] = i
			}
			for i, sym := range gl {
				s.growthPos[r][sym] = i
			}
		}
		s.pooled[r] = Ordered(sharpe[r], all, symbols)
	}
	return s
}

func (e *Engine) cell(m [][]float64, symbol string, idx int) (float64, bool) {
	c, ok := e.prices.ColumnIndex(symbol)
	if !ok || idx < 0 || idx >= len(m) {
		return 0, false
	}
	v := m[idx][c]
	return v, !math.IsNaN(v)
}

// Sharpe returns the score of symbol at row idx.
func (e *Engine) Sharpe(symbol string, idx int) (float64, bool) {
	e.EnsureComputed()
	return e.cell(e.set.sharpe, symbol, idx)
}

// Rank returns the global rank of symbol at row idx (1 = best).
func (e *Engine) Rank(symbol string, idx int) (float64, bool) {
	e.EnsureComputed()
	return e.cell(e.set.rank, symbol, idx)
}

// Growth returns the rank change of symbol at row idx.
func (e *Engine) Growth(symbol string, idx int) (float64, bool) {
	e.EnsureComputed()
	return e.cell(e.set.growth, symbol, idx)
}

// GrowthRank returns the rank of symbol's growth at row idx (1 = best).
func (e *Engine) GrowthRank(symbol string, idx int) (float64, bool) {
	e.EnsureComputed()
	return e.cell(e.set.growthRank, symbol, idx)
}

// CountryRanking returns the country's symbols ordered by score at row idx.
// Callers must not modify the slice.
func (e *Engine) CountryRanking(idx int, country core.Country) []string {
	e.EnsureComputed()
	if idx < 0 || idx >= len(e.set.sharpeByCountry) {
		return nil
	}
	return e.set.sharpeByCountry[idx][country]
}

// GrowthRanking returns the country's symbols ordered by growth at row idx.
func (e *Engine) GrowthRanking(idx int, country core.Country) []string {
	e.EnsureComputed()
	if idx < 0 || idx >= len(e.set.growthByCountry) {
		return nil
	}
	return e.set.growthByCountry[idx][country]
}

// PooledRanking returns every symbol ordered by score at row idx,
// regardless of country.
func (e *Engine) PooledRanking(idx int) []string {
	e.EnsureComputed()
	if idx < 0 || idx >= len(e.set.pooled) {
		return nil
	}
	return e.set.pooled[idx]
}

// Countries returns the countries present in the matrix, sorted.
func (e *Engine) Countries() []core.Country {
	seen := make(map[core.Country]struct{})
	for _, sym := range e.prices.Symbols() {
		seen[e.meta.Country(sym)] = struct{}{}
	}
	out := make([]core.Country, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SharpeRankPosition returns the 0-based position of symbol in its
// country's score ranking at row idx, or -1 when absent.
func (e *Engine) SharpeRankPosition(symbol string, idx int) int {
	e.EnsureComputed()
	return position(e.set.sharpePos, symbol, idx)
}

// GrowthRankPosition returns the 0-based position of symbol in its
// country's growth ranking at row idx, or -1 when absent.
func (e *Engine) GrowthRankPosition(symbol string, idx int) int {
	e.EnsureComputed()
	return position(e.set.growthPos, symbol, idx)
}

func position(pos []map[string]int, symbol string, idx int) int {
	if idx < 0 || idx >= len(pos) {
		return -1
	}
	if p, ok := pos[idx][symbol]; ok {
		return p
	}
	return -1
}

// InSharpeTopK reports whether symbol is among the first k of its
// country's score ranking at row idx.
func (e *Engine) InSharpeTopK(symbol string, idx, k int) bool {
	p := e.SharpeRankPosition(symbol, idx)
	return p >= 0 && p < k
}

// InGrowthTopK reports whether symbol is among the first k of its
// country's growth ranking at row idx.
func (e *Engine) InGrowthTopK(symbol string, idx, k int) bool {
	p := e.GrowthRankPosition(symbol, idx)
	return p >= 0 && p < k
}

// InGrowthTopPercentile reports whether symbol falls within the top
// percentile of its country's growth ranking at row idx.
func (e *Engine) InGrowthTopPercentile(symbol string, idx int, percentile float64) bool {
	list := e.GrowthRanking(idx, e.meta.Country(symbol))
	if len(list) == 0 {
		return false
	}
	p := e.GrowthRankPosition(symbol, idx)
	return p >= 0 && p < PercentileCutoff(len(list), percentile)
}

// SharpeStreak reports whether symbol stayed in its country's score top-n
// for the days observations ending at idx.
func (e *Engine) SharpeStreak(symbol string, idx, days, topN int) bool {
	return e.streak(idx, days, func(i int) bool { return e.InSharpeTopK(symbol, i, topN) })
}

// GrowthStreak reports whether symbol stayed in its country's top growth
// percentile for the days observations ending at idx.
func (e *Engine) GrowthStreak(symbol string, idx, days int, percentile float64) bool {
	return e.streak(idx, days, func(i int) bool { return e.InGrowthTopPercentile(symbol, i, percentile) })
}

func (e *Engine) streak(idx, days int, member func(int) bool) bool {
	if days < 1 || idx < days-1 || idx >= e.prices.Len() {
		return false
	}
	for i := 0; i < days; i++ {
		if !member(idx - i) {
			return false
		}
	}
	return true
}
