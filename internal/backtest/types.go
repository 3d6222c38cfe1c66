package backtest

import (
	"time"

	"github.com/newthinker/rankfolio/internal/core"
	"github.com/newthinker/rankfolio/internal/money"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Position is an open holding. Native amounts are in the listing's
// currency, CostBasis is in the base currency.
type Position struct {
	Symbol    string
	Shares    int64
	AvgCost   money.Money // per share, native
	CostBasis money.Money // total paid including fee, base
	BuyDate   time.Time
	BuyPrice  money.Money // native
	PeakPrice float64     // highest native close seen while held
	Country   core.Country
}

// Trade is one entry of the append-only ledger.
type Trade struct {
	Date       time.Time
	Symbol     string
	Side       Side
	Shares     int64
	Price      money.Money // native
	Amount     money.Money // native
	AmountBase money.Money
	Fee        money.Money // base
	Reason     string
	Profit     money.Money // base, sells only
}

// IsWin returns true for a sell that realized a positive profit
func (t Trade) IsWin() bool {
	return t.Side == SideSell && t.Profit.Decimal().IsPositive()
}

// IsSell returns true if the trade closed a position
func (t Trade) IsSell() bool {
	return t.Side == SideSell
}

// HoldingSnapshot describes one position at the close of a day.
type HoldingSnapshot struct {
	Symbol       string
	Shares       int64
	AvgCost      float64 // native
	CurrentPrice float64 // native
	MarketValue  money.Money
	PnLPct       float64 // percent of cost basis
	BuyDate      time.Time
	Industry     string
	Country      core.Country
}

// EquitySnapshot is one point of the equity curve. All amounts are in the
// base currency and Equity always equals Cash + HoldingsValue.
type EquitySnapshot struct {
	Date          time.Time
	Equity        money.Money
	Cash          money.Money
	HoldingsValue money.Money
	Holdings      []HoldingSnapshot // ordered by symbol
}

// BenchmarkPoint is one point of the market index curve.
type BenchmarkPoint struct {
	Date   time.Time
	Equity float64 // base currency
}

// Stats holds performance statistics
type Stats struct {
	TotalReturn      float64 // fraction of initial capital
	AnnualizedReturn float64
	MaxDrawdown      float64 // magnitude, >= 0
	SharpeRatio      float64 // annualized, from daily equity returns
	TotalTrades      int
	WinTrades        int
	LossTrades       int
	WinRate          float64 // wins / sells
}

// Result holds the complete backtest output. It is not modified after Run
// returns it.
type Result struct {
	RunID          string
	Market         core.Market
	StartDate      time.Time
	EndDate        time.Time
	InitialCapital money.Money
	FinalEquity    money.Money
	Stats

	Trades        []Trade
	EquityCurve   []EquitySnapshot
	Benchmark     []BenchmarkPoint
	BenchmarkName string
}
