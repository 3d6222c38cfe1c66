package backtest

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/newthinker/rankfolio/internal/core"
	"github.com/newthinker/rankfolio/internal/indicator"
	"github.com/newthinker/rankfolio/internal/money"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Simulator replays a portfolio day by day over a price matrix. It owns its
// cash, positions and counters and is not safe for concurrent use; build one
// per run.
type Simulator struct {
	engine    *indicator.Engine
	prices    *core.PriceMatrix
	meta      core.SymbolMeta
	fx        *money.FX
	settings  Settings
	sellRules []SellRule
	logger    *zap.Logger

	cash      money.Money
	positions map[string]*Position
	counters  map[string]*ruleCounters
	trades    []Trade
	curve     []EquitySnapshot
}

// NewSimulator creates a simulator over the engine's price matrix.
func NewSimulator(engine *indicator.Engine, fx *money.FX, settings Settings, logger *zap.Logger) (*Simulator, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if fx == nil {
		fx = money.NewFX(nil)
	}

	rules := append([]SellRule(nil), settings.SellRules...)
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].order() < rules[j].order() })

	return &Simulator{
		engine:    engine,
		prices:    engine.Prices(),
		meta:      engine.Meta(),
		fx:        fx,
		settings:  settings,
		sellRules: rules,
		logger:    logger,
	}, nil
}

func (s *Simulator) reset() {
	s.cash = s.settings.InitialCapital
	s.positions = make(map[string]*Position)
	s.counters = make(map[string]*ruleCounters)
	s.trades = nil
	s.curve = nil
}

// Run simulates rows startIdx..endIdx inclusive and returns the result.
func (s *Simulator) Run(startIdx, endIdx int) (*Result, error) {
	if startIdx < 0 || endIdx >= s.prices.Len() || startIdx > endIdx {
		return nil, core.Errorf(core.ErrRange, "rows %d..%d outside 0..%d", startIdx, endIdx, s.prices.Len()-1)
	}

	s.reset()
	s.engine.EnsureComputed()

	for idx := startIdx; idx <= endIdx; idx++ {
		s.step(idx, idx == startIdx)
	}

	final := s.curve[len(s.curve)-1].Equity
	result := &Result{
		RunID:          uuid.NewString(),
		Market:         s.settings.Market,
		StartDate:      s.prices.Date(startIdx),
		EndDate:        s.prices.Date(endIdx),
		InitialCapital: s.settings.InitialCapital,
		FinalEquity:    final,
		Stats:          CalculateStats(s.settings.InitialCapital, s.curve, s.trades),
		Trades:         s.trades,
		EquityCurve:    s.curve,
	}

	s.logger.Debug("simulation finished",
		zap.String("start", s.prices.DateKey(startIdx)),
		zap.String("end", s.prices.DateKey(endIdx)),
		zap.Int("trades", len(s.trades)),
		zap.String("final_equity", final.String()),
	)
	return result, nil
}

func (s *Simulator) step(idx int, first bool) {
	s.updatePeaks(idx)

	candidates := s.selectCandidates(idx)
	selected := make(map[string]struct{}, len(candidates))
	for _, sym := range candidates {
		selected[sym] = struct{}{}
	}

	for _, sym := range s.heldSymbols() {
		if reason, ok := s.sellReason(sym, idx, selected); ok {
			s.sell(sym, idx, reason)
		}
	}

	if first || IsRebalanceDay(s.prices.Dates(), idx, s.settings.Frequency) {
		s.rebalance(idx, candidates, first)
	}

	s.curve = append(s.curve, s.snapshot(idx))
}

// heldSymbols returns open positions in symbol order.
func (s *Simulator) heldSymbols() []string {
	out := make([]string, 0, len(s.positions))
	for sym := range s.positions {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (s *Simulator) updatePeaks(idx int) {
	for sym, pos := range s.positions {
		if price, ok := s.prices.Price(idx, sym); ok && price > pos.PeakPrice {
			pos.PeakPrice = price
		}
	}
}

// priceOrCost returns the close of symbol at idx, or the position's average
// cost when the close is missing.
func (s *Simulator) priceOrCost(idx int, pos *Position) float64 {
	if price, ok := s.prices.Price(idx, pos.Symbol); ok {
		return price
	}
	return pos.AvgCost.Float64()
}

func (s *Simulator) sellReason(symbol string, idx int, selected map[string]struct{}) (string, bool) {
	pos := s.positions[symbol]
	c := s.countersFor(symbol)

	for _, rule := range s.sellRules {
		switch r := rule.(type) {
		case SharpeFail:
			out := !s.engine.InSharpeTopK(symbol, idx, r.TopN)
			if bump(&c.sharpeFail, out) >= r.Periods {
				return fmt.Sprintf("sharpe_fail(%d)", r.Periods), true
			}

		case GrowthFail:
			var sum float64
			var n int
			for i := 0; i < r.Days && idx-i >= 0; i++ {
				if g, ok := s.engine.Growth(symbol, idx-i); ok {
					sum += g
					n++
				}
			}
			if n > 0 {
				if avg := sum / float64(n); avg < r.Threshold {
					return fmt.Sprintf("growth_fail(%dd avg=%.3f)", r.Days, avg), true
				}
			}

		case NotSelected:
			_, in := selected[symbol]
			if bump(&c.notSelected, !in) >= r.Periods {
				return fmt.Sprintf("not_selected(%d)", r.Periods), true
			}

		case Drawdown:
			ref := pos.BuyPrice.Float64()
			if r.FromHighest && pos.PeakPrice > 0 {
				ref = pos.PeakPrice
			}
			price := s.priceOrCost(idx, pos)
			if ref > 0 && (ref-price)/ref >= r.Threshold {
				return fmt.Sprintf("drawdown(%.0f%%)", r.Threshold*100), true
			}

		case Weakness:
			sp := s.engine.SharpeRankPosition(symbol, idx)
			gp := s.engine.GrowthRankPosition(symbol, idx)
			weak := (sp < 0 || sp >= r.RankK) && (gp < 0 || gp >= r.RankK)
			if bump(&c.weakness, weak) >= r.Periods {
				return fmt.Sprintf("weakness(%d,%d)", r.RankK, r.Periods), true
			}
		}
	}
	return "", false
}

func (s *Simulator) rebalance(idx int, candidates []string, first bool) {
	var toBuy []string
	for _, sym := range candidates {
		if _, held := s.positions[sym]; !held {
			toBuy = append(toBuy, sym)
		}
	}
	if len(toBuy) == 0 {
		return
	}
	slots := s.settings.MaxPositions - len(s.positions)
	if slots <= 0 {
		return
	}
	if len(toBuy) > slots {
		toBuy = toBuy[:slots]
	}

	switch r := s.settings.Rebalance.(type) {
	case Immediate:
		s.buy(idx, toBuy, s.settings.AmountPerStock)

	case Batch:
		invest := s.cash.Mul(r.Ratio)
		s.buy(idx, toBuy, invest.Div(float64(len(toBuy))))

	case Delayed:
		avg := s.meanScore(s.leaders(idx, r.Scope, 0, r.TopN), idx)
		if avg <= r.Threshold {
			return
		}
		s.buy(idx, toBuy, s.settings.AmountPerStock)

	case Concentrated:
		top := s.meanScore(s.leaders(idx, r.Scope, 0, r.TopK), idx)
		next := s.meanScore(s.leaders(idx, r.Scope, r.TopK, 2*r.TopK), idx)
		if !leads(top, next, r.LeadMargin) {
			return
		}
		if len(toBuy) > r.TopK {
			toBuy = toBuy[:r.TopK]
		}
		s.buy(idx, toBuy, s.settings.AmountPerStock)

	case None:
		if first {
			s.buy(idx, toBuy, s.settings.AmountPerStock)
		}
	}
}

// leads reports whether the top group clearly leads the next one.
func leads(top, next, margin float64) bool {
	if next <= 0 {
		return top > 0
	}
	return (top-next)/next >= margin
}

// leaders returns ranking positions [from, to) at idx for the scope.
func (s *Simulator) leaders(idx int, scope Scope, from, to int) []string {
	if scope == ScopePooled {
		return window(s.engine.PooledRanking(idx), from, to)
	}
	var out []string
	for _, c := range s.engine.Countries() {
		out = append(out, window(s.engine.CountryRanking(idx, c), from, to)...)
	}
	return out
}

func window(list []string, from, to int) []string {
	if from >= len(list) {
		return nil
	}
	if to > len(list) {
		to = len(list)
	}
	return list[from:to]
}

// meanScore averages the defined scores of symbols; 0 when none is defined.
func (s *Simulator) meanScore(symbols []string, idx int) float64 {
	var sum float64
	var n int
	for _, sym := range symbols {
		if v, ok := s.engine.Sharpe(sym, idx); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// buy opens positions in order with a base-currency budget each. It stops
// once cash falls below half the budget.
func (s *Simulator) buy(idx int, symbols []string, budget money.Money) {
	half := budget.Mul(0.5)
	date := s.prices.Date(idx)

	for _, sym := range symbols {
		if short, _ := s.cash.LessThan(half); short {
			break
		}
		if _, held := s.positions[sym]; held {
			continue
		}
		price, ok := s.prices.Price(idx, sym)
		if !ok {
			continue
		}

		country := s.meta.Country(sym)
		cur := money.CurrencyFor(country)
		native := s.fx.To(budget, cur, date)
		shares := native.Decimal().Div(decimal.NewFromFloat(price)).IntPart()
		if shares <= 0 {
			continue
		}

		unit := money.New(price, cur)
		amount := unit.MulInt(shares)
		amountBase := s.fx.ToBase(amount, date)
		fee := s.settings.fees(country).Fee(amountBase)
		total := amountBase.MustAdd(fee)
		if over, _ := total.GreaterThan(s.cash); over {
			continue
		}

		s.cash = s.cash.MustSub(total)
		s.positions[sym] = &Position{
			Symbol:    sym,
			Shares:    shares,
			AvgCost:   unit,
			CostBasis: total,
			BuyDate:   date,
			BuyPrice:  unit,
			PeakPrice: price,
			Country:   country,
		}
		s.resetCounters(sym)
		s.record(Trade{
			Date:       date,
			Symbol:     sym,
			Side:       SideBuy,
			Shares:     shares,
			Price:      unit,
			Amount:     amount,
			AmountBase: amountBase,
			Fee:        fee,
			Reason:     "buy",
			Profit:     money.Zero(money.Base),
		})
	}
}

func (s *Simulator) sell(symbol string, idx int, reason string) {
	pos, ok := s.positions[symbol]
	if !ok {
		return
	}
	date := s.prices.Date(idx)
	cur := money.CurrencyFor(pos.Country)

	unit := money.New(s.priceOrCost(idx, pos), cur)
	amount := unit.MulInt(pos.Shares)
	amountBase := s.fx.ToBase(amount, date)
	fee := s.settings.fees(pos.Country).Fee(amountBase)
	profit := amountBase.MustSub(pos.CostBasis).MustSub(fee)

	s.cash = s.cash.MustAdd(amountBase).MustSub(fee)
	delete(s.positions, symbol)
	s.resetCounters(symbol)
	s.record(Trade{
		Date:       date,
		Symbol:     symbol,
		Side:       SideSell,
		Shares:     pos.Shares,
		Price:      unit,
		Amount:     amount,
		AmountBase: amountBase,
		Fee:        fee,
		Reason:     reason,
		Profit:     profit,
	})
}

func (s *Simulator) record(t Trade) {
	s.trades = append(s.trades, t)
	s.logger.Debug("trade",
		zap.String("date", t.Date.Format(core.DateLayout)),
		zap.String("symbol", t.Symbol),
		zap.String("side", string(t.Side)),
		zap.Int64("shares", t.Shares),
		zap.String("price", t.Price.String()),
		zap.String("reason", t.Reason),
	)
}

func (s *Simulator) snapshot(idx int) EquitySnapshot {
	date := s.prices.Date(idx)
	holdingsValue := money.Zero(money.Base)
	holdings := make([]HoldingSnapshot, 0, len(s.positions))

	for _, sym := range s.heldSymbols() {
		pos := s.positions[sym]
		price := s.priceOrCost(idx, pos)
		value := s.fx.ToBase(money.New(price, pos.AvgCost.Currency()).MulInt(pos.Shares), date)
		holdingsValue = holdingsValue.MustAdd(value)

		var pnl float64
		if r, err := value.MustSub(pos.CostBasis).Ratio(pos.CostBasis); err == nil {
			pnl = r * 100
		}
		holdings = append(holdings, HoldingSnapshot{
			Symbol:       sym,
			Shares:       pos.Shares,
			AvgCost:      pos.AvgCost.Float64(),
			CurrentPrice: price,
			MarketValue:  value,
			PnLPct:       pnl,
			BuyDate:      pos.BuyDate,
			Industry:     s.meta.Industry(sym),
			Country:      pos.Country,
		})
	}

	return EquitySnapshot{
		Date:          date,
		Equity:        s.cash.MustAdd(holdingsValue),
		Cash:          s.cash,
		HoldingsValue: holdingsValue,
		Holdings:      holdings,
	}
}

// Cash returns the current cash balance.
func (s *Simulator) Cash() money.Money { return s.cash }

// Positions returns a copy of the open positions, ordered by symbol.
func (s *Simulator) Positions() []Position {
	out := make([]Position, 0, len(s.positions))
	for _, sym := range s.heldSymbols() {
		out = append(out, *s.positions[sym])
	}
	return out
}
