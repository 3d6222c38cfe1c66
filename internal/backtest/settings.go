package backtest

import (
	"fmt"
	"math"
	"time"

	"github.com/newthinker/rankfolio/internal/core"
	"github.com/newthinker/rankfolio/internal/money"
)

// Frequency is how often the buy step runs.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// ParseFrequency parses a rebalance frequency.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(s); f {
	case Daily, Weekly, Monthly:
		return f, nil
	}
	return "", fmt.Errorf("unknown rebalance frequency %q", s)
}

// IsRebalanceDay reports whether row idx starts a new rebalance period:
// always for daily, on an ISO week change for weekly and on a calendar month
// change for monthly. Row 0 always qualifies.
func IsRebalanceDay(dates []time.Time, idx int, f Frequency) bool {
	if idx <= 0 || idx >= len(dates) {
		return idx == 0
	}
	cur, prev := dates[idx], dates[idx-1]
	switch f {
	case Daily:
		return true
	case Weekly:
		cy, cw := cur.ISOWeek()
		py, pw := prev.ISOWeek()
		return cy != py || cw != pw
	case Monthly:
		return cur.Year() != prev.Year() || cur.Month() != prev.Month()
	}
	return false
}

// Ordering is the policy applied to the candidate list.
type Ordering int

const (
	// OrderNone keeps matrix column order.
	OrderNone Ordering = iota
	// OrderByScore sorts by score, descending.
	OrderByScore
	// OrderByIndustry interleaves industries round-robin.
	OrderByIndustry
)

func (o Ordering) String() string {
	switch o {
	case OrderByScore:
		return "score"
	case OrderByIndustry:
		return "industry"
	}
	return "none"
}

// FeeSchedule is the commission of one market. MinFee is in the base
// currency.
type FeeSchedule struct {
	Rate   float64
	MinFee money.Money
}

// Fee returns max(amount × Rate, MinFee) for a base-currency amount.
func (f FeeSchedule) Fee(amount money.Money) money.Money {
	fee := amount.Mul(f.Rate)
	if f.MinFee.Currency() != fee.Currency() {
		return fee
	}
	if less, _ := fee.LessThan(f.MinFee); less {
		return f.MinFee
	}
	return fee
}

// Settings is a fully resolved simulator configuration.
type Settings struct {
	InitialCapital money.Money // base
	AmountPerStock money.Money // base
	MaxPositions   int
	Market         core.Market
	Frequency      Frequency

	BuyRules    []BuyRule
	Ordering    Ordering
	PerIndustry int // cap per industry for OrderByIndustry

	SellRules []SellRule
	Rebalance RebalanceStrategy

	Fees        map[core.Market]FeeSchedule
	NonTradable map[string]struct{} // industries never bought
}

// Validate checks the invariants the simulator relies on.
func (s Settings) Validate() error {
	if s.InitialCapital.Currency() != money.Base || !s.InitialCapital.Decimal().IsPositive() {
		return core.Errorf(core.ErrConfigInvalid, "initial capital must be a positive %s amount, got %s", money.Base, s.InitialCapital)
	}
	if s.AmountPerStock.Currency() != money.Base || !s.AmountPerStock.Decimal().IsPositive() {
		return core.Errorf(core.ErrConfigInvalid, "amount per stock must be a positive %s amount, got %s", money.Base, s.AmountPerStock)
	}
	if s.MaxPositions < 1 {
		return core.Errorf(core.ErrConfigInvalid, "max positions must be at least 1, got %d", s.MaxPositions)
	}
	if _, err := ParseFrequency(string(s.Frequency)); err != nil {
		return core.WrapError(core.ErrConfigInvalid, err)
	}
	if s.Rebalance == nil {
		return core.Errorf(core.ErrConfigInvalid, "rebalance strategy is required")
	}
	for _, m := range []core.Market{core.MarketUS, core.MarketTW} {
		f, ok := s.Fees[m]
		if !ok {
			return core.Errorf(core.ErrConfigInvalid, "fee schedule for %s is required", m)
		}
		if math.IsNaN(f.Rate) || f.Rate < 0 || f.Rate > 1 {
			return core.Errorf(core.ErrConfigInvalid, "fees.%s.rate must be within [0, 1], got %v", m, f.Rate)
		}
		if f.MinFee.Currency() != money.Base || f.MinFee.IsNegative() {
			return core.Errorf(core.ErrConfigInvalid, "fees.%s.min_fee must be a non-negative %s amount", m, money.Base)
		}
	}
	for _, r := range s.BuyRules {
		if err := validateBuyRule(r); err != nil {
			return err
		}
	}
	for _, r := range s.SellRules {
		if err := validateSellRule(r); err != nil {
			return err
		}
	}
	return validateStrategy(s.Rebalance)
}

func validateBuyRule(rule BuyRule) error {
	switch r := rule.(type) {
	case SharpeRank:
		return atLeastOne(r.Name()+".top_n", r.TopN)
	case SharpeThreshold:
		return finite(r.Name()+".threshold", r.Threshold)
	case SharpeStreak:
		if err := atLeastOne(r.Name()+".days", r.Days); err != nil {
			return err
		}
		return atLeastOne(r.Name()+".top_n", r.TopN)
	case GrowthRank:
		return atLeastOne(r.Name()+".top_n", r.TopN)
	case GrowthStreak:
		if err := atLeastOne(r.Name()+".days", r.Days); err != nil {
			return err
		}
		if math.IsNaN(r.Percentile) || r.Percentile <= 0 || r.Percentile > 100 {
			return core.Errorf(core.ErrConfigInvalid, "%s.percentile must be within (0, 100], got %v", r.Name(), r.Percentile)
		}
	}
	return nil
}

func validateSellRule(rule SellRule) error {
	switch r := rule.(type) {
	case SharpeFail:
		if err := atLeastOne(r.Name()+".periods", r.Periods); err != nil {
			return err
		}
		return nonNegative(r.Name()+".top_n", r.TopN)
	case GrowthFail:
		if err := atLeastOne(r.Name()+".days", r.Days); err != nil {
			return err
		}
		return finite(r.Name()+".threshold", r.Threshold)
	case NotSelected:
		return atLeastOne(r.Name()+".periods", r.Periods)
	case Drawdown:
		if math.IsNaN(r.Threshold) || r.Threshold <= 0 || r.Threshold >= 1 {
			return core.Errorf(core.ErrConfigInvalid, "%s.threshold must be within (0, 1), got %v", r.Name(), r.Threshold)
		}
	case Weakness:
		if err := nonNegative(r.Name()+".rank_k", r.RankK); err != nil {
			return err
		}
		return atLeastOne(r.Name()+".periods", r.Periods)
	}
	return nil
}

func validateStrategy(strategy RebalanceStrategy) error {
	switch r := strategy.(type) {
	case Batch:
		if math.IsNaN(r.Ratio) || r.Ratio <= 0 || r.Ratio > 1 {
			return core.Errorf(core.ErrConfigInvalid, "batch ratio must be within (0, 1], got %v", r.Ratio)
		}
	case Delayed:
		if err := atLeastOne("delayed top_n", r.TopN); err != nil {
			return err
		}
		if err := finite("delayed threshold", r.Threshold); err != nil {
			return err
		}
		return validScope(r.Scope)
	case Concentrated:
		if err := atLeastOne("concentrated top_k", r.TopK); err != nil {
			return err
		}
		if math.IsNaN(r.LeadMargin) || math.IsInf(r.LeadMargin, 0) || r.LeadMargin < 0 {
			return core.Errorf(core.ErrConfigInvalid, "concentrated lead margin must be a non-negative number, got %v", r.LeadMargin)
		}
		return validScope(r.Scope)
	}
	return nil
}

func validScope(s Scope) error {
	if _, err := ParseScope(string(s)); err != nil {
		return core.WrapError(core.ErrConfigInvalid, err)
	}
	return nil
}

func atLeastOne(field string, v int) error {
	if v < 1 {
		return core.Errorf(core.ErrConfigInvalid, "%s must be at least 1, got %d", field, v)
	}
	return nil
}

func nonNegative(field string, v int) error {
	if v < 0 {
		return core.Errorf(core.ErrConfigInvalid, "%s must not be negative, got %d", field, v)
	}
	return nil
}

func finite(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return core.Errorf(core.ErrConfigInvalid, "%s must be a finite number, got %v", field, v)
	}
	return nil
}

func (s Settings) fees(c core.Country) FeeSchedule {
	return s.Fees[c.FeeMarket()]
}

func (s Settings) tradable(industry string) bool {
	_, blocked := s.NonTradable[industry]
	return !blocked
}
