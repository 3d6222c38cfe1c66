package backtest

import "fmt"

// BuyRule is a candidate filter. A symbol is a buy candidate only when every
// configured rule accepts it.
type BuyRule interface {
	Name() string
	buyRule()
}

// SharpeRank accepts symbols among the first TopN of their country's score
// ranking.
type SharpeRank struct{ TopN int }

// SharpeThreshold accepts symbols whose score is at least Threshold.
type SharpeThreshold struct{ Threshold float64 }

// SharpeStreak accepts symbols that stayed in the country's score top-N for
// Days consecutive observations.
type SharpeStreak struct {
	Days int
	TopN int
}

// GrowthRank accepts symbols among the first TopN of their country's growth
// ranking.
type GrowthRank struct{ TopN int }

// GrowthStreak accepts symbols that stayed in the country's top growth
// Percentile for Days consecutive observations.
type GrowthStreak struct {
	Days       int
	Percentile float64
}

func (SharpeRank) Name() string      { return "sharpe_rank" }
func (SharpeThreshold) Name() string { return "sharpe_threshold" }
func (SharpeStreak) Name() string    { return "sharpe_streak" }
func (GrowthRank) Name() string      { return "growth_rank" }
func (GrowthStreak) Name() string    { return "growth_streak" }

func (SharpeRank) buyRule()      {}
func (SharpeThreshold) buyRule() {}
func (SharpeStreak) buyRule()    {}
func (GrowthRank) buyRule()      {}
func (GrowthStreak) buyRule()    {}

// SellRule closes a position when it fires. Rules are evaluated in a fixed
// order and the first one to fire supplies the sell reason.
type SellRule interface {
	Name() string
	sellRule()
	order() int
}

// SharpeFail fires after the symbol has been outside its country's score
// top-N for Periods consecutive days.
type SharpeFail struct {
	Periods int
	TopN    int
}

// GrowthFail fires when the mean defined growth over the last Days
// observations is below Threshold.
type GrowthFail struct {
	Days      int
	Threshold float64
}

// NotSelected fires after the symbol has been missing from the day's
// candidate list for Periods consecutive days.
type NotSelected struct{ Periods int }

// Drawdown fires when the price has fallen Threshold (a fraction) below the
// buy price, or below the peak since purchase when FromHighest is set.
type Drawdown struct {
	Threshold   float64
	FromHighest bool
}

// Weakness fires after both the score and growth positions have been at or
// past RankK, or absent, for Periods consecutive days.
type Weakness struct {
	RankK   int
	Periods int
}

func (SharpeFail) Name() string  { return "sharpe_fail" }
func (GrowthFail) Name() string  { return "growth_fail" }
func (NotSelected) Name() string { return "not_selected" }
func (Drawdown) Name() string    { return "drawdown" }
func (Weakness) Name() string    { return "weakness" }

func (SharpeFail) sellRule()  {}
func (GrowthFail) sellRule()  {}
func (NotSelected) sellRule() {}
func (Drawdown) sellRule()    {}
func (Weakness) sellRule()    {}

func (SharpeFail) order() int  { return 0 }
func (GrowthFail) order() int  { return 1 }
func (NotSelected) order() int { return 2 }
func (Drawdown) order() int    { return 3 }
func (Weakness) order() int    { return 4 }

// Scope selects which ranking the delayed and concentrated strategies read.
type Scope string

const (
	// ScopePerCountry takes the leaders of each country's ranking and
	// merges them, countries in sorted order.
	ScopePerCountry Scope = "per_country"
	// ScopePooled takes the leaders of one ranking across all countries.
	ScopePooled Scope = "pooled"
)

// ParseScope parses a scope name. Empty means per_country.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopePerCountry:
		return ScopePerCountry, nil
	case ScopePooled:
		return ScopePooled, nil
	}
	return "", fmt.Errorf("unknown scope %q", s)
}

// RebalanceStrategy decides whether and how much to buy on a rebalance day.
type RebalanceStrategy interface {
	Name() string
	rebalance()
}

// Immediate buys every new candidate, up to the open slots, with the fixed
// per-stock amount.
type Immediate struct{}

// Batch invests Ratio of current cash, split evenly across the day's new
// candidates.
type Batch struct{ Ratio float64 }

// Delayed buys with the fixed amount only when the mean score of the top-N
// leaders exceeds Threshold.
type Delayed struct {
	TopN      int
	Threshold float64
	Scope     Scope
}

// Concentrated buys at most TopK candidates, and only when the top-K
// leaders clearly lead the next K.
type Concentrated struct {
	TopK       int
	LeadMargin float64
	Scope      Scope
}

// None makes a single initial allocation on the first simulated day and
// never buys again; positions only close through sell rules.
type None struct{}

func (Immediate) Name() string    { return "immediate" }
func (Batch) Name() string        { return "batch" }
func (Delayed) Name() string      { return "delayed" }
func (Concentrated) Name() string { return "concentrated" }
func (None) Name() string         { return "none" }

func (Immediate) rebalance()    {}
func (Batch) rebalance()        {}
func (Delayed) rebalance()      {}
func (Concentrated) rebalance() {}
func (None) rebalance()         {}
