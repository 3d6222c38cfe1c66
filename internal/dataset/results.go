package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path"
	"strconv"

	"github.com/newthinker/rankfolio/internal/backtest"
	"github.com/newthinker/rankfolio/internal/core"
	"github.com/newthinker/rankfolio/internal/storage/archive"
)

// Summary is the JSON document saved next to a run's ledgers.
type Summary struct {
	RunID            string  `json:"run_id"`
	Market           string  `json:"market"`
	StartDate        string  `json:"start_date"`
	EndDate          string  `json:"end_date"`
	InitialCapital   float64 `json:"initial_capital"`
	FinalEquity      float64 `json:"final_equity"`
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	TotalTrades      int     `json:"total_trades"`
	WinTrades        int     `json:"win_trades"`
	LossTrades       int     `json:"loss_trades"`
	WinRate          float64 `json:"win_rate"`
	Benchmark        string  `json:"benchmark,omitempty"`
	BenchmarkReturn  float64 `json:"benchmark_return,omitempty"`
}

// NewSummary flattens a result into its JSON summary.
func NewSummary(r *backtest.Result) Summary {
	s := Summary{
		RunID:            r.RunID,
		Market:           string(r.Market),
		StartDate:        r.StartDate.Format(core.DateLayout),
		EndDate:          r.EndDate.Format(core.DateLayout),
		InitialCapital:   r.InitialCapital.Float64(),
		FinalEquity:      r.FinalEquity.Float64(),
		TotalReturn:      r.TotalReturn,
		AnnualizedReturn: r.AnnualizedReturn,
		MaxDrawdown:      r.MaxDrawdown,
		SharpeRatio:      r.SharpeRatio,
		TotalTrades:      r.TotalTrades,
		WinTrades:        r.WinTrades,
		LossTrades:       r.LossTrades,
		WinRate:          r.WinRate,
	}
	if n := len(r.Benchmark); n > 0 {
		s.Benchmark = r.BenchmarkName
		if first := r.Benchmark[0].Equity; first > 0 {
			s.BenchmarkReturn = r.Benchmark[n-1].Equity/first - 1
		}
	}
	return s
}

// SaveResult writes summary.json, trades.csv and equity.csv under
// prefix/<run id>/ and returns the keys written.
func SaveResult(ctx context.Context, store archive.Storage, prefix string, r *backtest.Result) ([]string, error) {
	dir := path.Join(prefix, r.RunID)

	summary, err := json.MarshalIndent(NewSummary(r), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding summary: %w", err)
	}
	trades, err := TradesCSV(r.Trades)
	if err != nil {
		return nil, err
	}
	equity, err := EquityCSV(r.EquityCurve)
	if err != nil {
		return nil, err
	}

	objects := []struct {
		name string
		data []byte
	}{
		{"summary.json", summary},
		{"trades.csv", trades},
		{"equity.csv", equity},
	}
	keys := make([]string, 0, len(objects))
	for _, o := range objects {
		key := path.Join(dir, o.name)
		if err := store.Write(ctx, key, o.data); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// TradesCSV renders the trade ledger, one row per trade in ledger order.
func TradesCSV(trades []backtest.Trade) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	_ = w.Write([]string{
		"date", "symbol", "side", "shares", "price", "currency",
		"amount", "amount_twd", "fee", "profit", "reason",
	})
	for _, t := range trades {
		profit := ""
		if t.IsSell() {
			profit = t.Profit.Decimal().StringFixed(2)
		}
		_ = w.Write([]string{
			t.Date.Format(core.DateLayout), t.Symbol, string(t.Side),
			strconv.FormatInt(t.Shares, 10),
			t.Price.Decimal().StringFixed(4), t.Price.Currency().String(),
			t.Amount.Decimal().StringFixed(2), t.AmountBase.Decimal().StringFixed(2),
			t.Fee.Decimal().StringFixed(2), profit, t.Reason,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("writing trades: %w", err)
	}
	return buf.Bytes(), nil
}

// EquityCSV renders the daily equity curve.
func EquityCSV(curve []backtest.EquitySnapshot) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	_ = w.Write([]string{"date", "equity", "cash", "holdings_value", "positions"})
	for _, p := range curve {
		_ = w.Write([]string{
			p.Date.Format(core.DateLayout),
			p.Equity.Decimal().StringFixed(2),
			p.Cash.Decimal().StringFixed(2),
			p.HoldingsValue.Decimal().StringFixed(2),
			strconv.Itoa(len(p.Holdings)),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("writing equity: %w", err)
	}
	return buf.Bytes(), nil
}
