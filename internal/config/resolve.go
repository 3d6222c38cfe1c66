package config

import (
	"time"

	"github.com/newthinker/rankfolio/internal/backtest"
	"github.com/newthinker/rankfolio/internal/core"
	"github.com/newthinker/rankfolio/internal/indicator"
	"github.com/newthinker/rankfolio/internal/money"
)

// Resolve validates the configuration and turns the backtest section into
// simulator settings plus the requested date range. A zero end means the
// last available date.
func (c *Config) Resolve() (backtest.Settings, indicator.Config, time.Time, time.Time, error) {
	if err := c.Validate(); err != nil {
		return backtest.Settings{}, indicator.Config{}, time.Time{}, time.Time{}, err
	}
	b := c.Backtest

	market, _ := core.ParseMarket(b.Market)
	freq, err := backtest.ParseFrequency(b.RebalanceFreq)
	if err != nil {
		return backtest.Settings{}, indicator.Config{}, time.Time{}, time.Time{}, core.WrapError(core.ErrConfigInvalid, err)
	}
	strategy, err := b.RebalanceStrategy.strategy()
	if err != nil {
		return backtest.Settings{}, indicator.Config{}, time.Time{}, time.Time{}, err
	}
	start, _ := parseDate("start_date", b.StartDate)
	end, _ := parseDate("end_date", b.EndDate)

	s := backtest.Settings{
		InitialCapital: money.TWD(b.InitialCapital),
		AmountPerStock: money.TWD(b.AmountPerStock),
		MaxPositions:   b.MaxPositions,
		Market:         market,
		Frequency:      freq,
		BuyRules:       b.BuyConditions.rules(),
		SellRules:      b.SellConditions.rules(),
		Rebalance:      strategy,
		Fees: map[core.Market]backtest.FeeSchedule{
			core.MarketUS: {Rate: b.Fees.US.Rate, MinFee: money.TWD(b.Fees.US.MinFee)},
			core.MarketTW: {Rate: b.Fees.TW.Rate, MinFee: money.TWD(b.Fees.TW.MinFee)},
		},
		NonTradable: core.DefaultNonTradable(),
	}

	// Industry interleaving takes precedence over plain score order.
	switch {
	case b.BuyConditions.SortIndustry.Enabled:
		s.Ordering = backtest.OrderByIndustry
		s.PerIndustry = b.BuyConditions.SortIndustry.PerIndustry
	case b.BuyConditions.SortSharpe.Enabled:
		s.Ordering = backtest.OrderByScore
	}

	if len(b.NonTradable) > 0 {
		s.NonTradable = make(map[string]struct{}, len(b.NonTradable))
		for _, ind := range b.NonTradable {
			s.NonTradable[ind] = struct{}{}
		}
	}

	ind := indicator.Config{Window: c.Indicator.Window, RiskFreeRate: c.Indicator.RiskFreeRate}
	return s, ind, start, end, nil
}

func (b BuyConditions) rules() []backtest.BuyRule {
	var out []backtest.BuyRule
	if b.SharpeRank.Enabled {
		out = append(out, backtest.SharpeRank{TopN: b.SharpeRank.TopN})
	}
	if b.SharpeThreshold.Enabled {
		out = append(out, backtest.SharpeThreshold{Threshold: b.SharpeThreshold.Threshold})
	}
	if b.SharpeStreak.Enabled {
		out = append(out, backtest.SharpeStreak{Days: b.SharpeStreak.Days, TopN: b.SharpeStreak.TopN})
	}
	if b.GrowthStreak.Enabled {
		out = append(out, backtest.GrowthStreak{Days: b.GrowthStreak.Days, Percentile: b.GrowthStreak.Percentile})
	}
	if b.GrowthRank.Enabled {
		out = append(out, backtest.GrowthRank{TopN: b.GrowthRank.TopN})
	}
	return out
}

func (s SellConditions) rules() []backtest.SellRule {
	var out []backtest.SellRule
	if s.SharpeFail.Enabled {
		out = append(out, backtest.SharpeFail{Periods: s.SharpeFail.Periods, TopN: s.SharpeFail.TopN})
	}
	if s.GrowthFail.Enabled {
		out = append(out, backtest.GrowthFail{Days: s.GrowthFail.Days, Threshold: s.GrowthFail.Threshold})
	}
	if s.NotSelected.Enabled {
		out = append(out, backtest.NotSelected{Periods: s.NotSelected.Periods})
	}
	if s.Drawdown.Enabled {
		out = append(out, backtest.Drawdown{Threshold: s.Drawdown.Threshold, FromHighest: s.Drawdown.FromHighest})
	}
	if s.Weakness.Enabled {
		out = append(out, backtest.Weakness{RankK: s.Weakness.RankK, Periods: s.Weakness.Periods})
	}
	return out
}

func (r RebalanceConfig) strategy() (backtest.RebalanceStrategy, error) {
	switch r.Type {
	case "immediate":
		return backtest.Immediate{}, nil
	case "batch":
		return backtest.Batch{Ratio: r.BatchRatio}, nil
	case "none":
		return backtest.None{}, nil
	}

	scope, err := backtest.ParseScope(r.Scope)
	if err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, err)
	}
	switch r.Type {
	case "delayed":
		return backtest.Delayed{TopN: r.TopN, Threshold: r.SharpeThreshold, Scope: scope}, nil
	case "concentrated":
		return backtest.Concentrated{TopK: r.ConcentrateTopK, LeadMargin: r.LeadMargin, Scope: scope}, nil
	}
	return nil, core.Errorf(core.ErrConfigInvalid, "unknown rebalance strategy %q", r.Type)
}
