package backtest

import (
	"context"
	"time"

	"github.com/newthinker/rankfolio/internal/core"
	"github.com/newthinker/rankfolio/internal/indicator"
	"github.com/newthinker/rankfolio/internal/metrics"
	"github.com/newthinker/rankfolio/internal/money"
	"go.uber.org/zap"
)

// Recorder persists finished runs.
type Recorder interface {
	RecordRun(ctx context.Context, result *Result) error
}

// Input is everything one run needs.
type Input struct {
	Prices    *core.PriceMatrix // every listing, index symbols included
	Meta      core.SymbolMeta
	FX        *money.FX
	Settings  Settings
	Indicator indicator.Config
	Start     time.Time
	End       time.Time // zero means the last available date
}

// Runner wires market filtering, indicators, range resolution, the
// simulator and the benchmark into one run.
type Runner struct {
	logger   *zap.Logger
	metrics  *metrics.Registry
	recorder Recorder
}

// NewRunner creates a runner. metrics and recorder may be nil.
func NewRunner(logger *zap.Logger, reg *metrics.Registry, rec Recorder) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{logger: logger, metrics: reg, recorder: rec}
}

// Run executes one backtest. The context is only checked before the
// simulation starts; a started simulation always runs to its end row.
func (r *Runner) Run(ctx context.Context, in Input) (*Result, error) {
	start := time.Now()
	result, err := r.run(ctx, in)
	elapsed := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
	}
	if r.metrics != nil {
		r.metrics.RecordBacktest(status, elapsed.Seconds())
	}
	if err != nil {
		r.logger.Error("backtest failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return nil, err
	}

	r.logger.Info("backtest finished",
		zap.String("run_id", result.RunID),
		zap.String("final_equity", result.FinalEquity.String()),
		zap.Float64("total_return", result.TotalReturn),
		zap.Float64("annualized_return", result.AnnualizedReturn),
		zap.Float64("max_drawdown", result.MaxDrawdown),
		zap.Float64("sharpe", result.SharpeRatio),
		zap.Int("trades", result.TotalTrades),
		zap.Float64("win_rate", result.WinRate),
		zap.Duration("elapsed", elapsed),
	)

	if r.metrics != nil {
		var buys, sells int
		for _, t := range result.Trades {
			if t.IsSell() {
				sells++
			} else {
				buys++
			}
		}
		r.metrics.RecordTrades(string(SideBuy), buys)
		r.metrics.RecordTrades(string(SideSell), sells)
		r.metrics.SetRunResult(string(result.Market), result.TotalReturn, result.MaxDrawdown)
	}
	if r.recorder != nil {
		if err := r.recorder.RecordRun(ctx, result); err != nil {
			r.logger.Warn("failed to record run", zap.String("run_id", result.RunID), zap.Error(err))
		}
	}
	return result, nil
}

func (r *Runner) run(ctx context.Context, in Input) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.Prices == nil {
		return nil, core.Errorf(core.ErrNoData, "no price matrix")
	}
	if err := in.Settings.Validate(); err != nil {
		return nil, err
	}

	filtered, err := FilterByMarket(in.Prices, in.Meta, in.Settings.Market)
	if err != nil {
		return nil, err
	}
	startIdx, endIdx, err := ResolveRange(filtered, in.Start, in.End)
	if err != nil {
		return nil, err
	}

	r.logger.Info("backtest input",
		zap.String("market", string(in.Settings.Market)),
		zap.String("start", filtered.DateKey(startIdx)),
		zap.String("end", filtered.DateKey(endIdx)),
		zap.Int("symbols", len(filtered.Symbols())),
		zap.String("initial_capital", in.Settings.InitialCapital.String()),
		zap.String("amount_per_stock", in.Settings.AmountPerStock.String()),
		zap.Int("max_positions", in.Settings.MaxPositions),
		zap.String("rebalance", in.Settings.Rebalance.Name()),
		zap.String("frequency", string(in.Settings.Frequency)),
		zap.Int("buy_rules", len(in.Settings.BuyRules)),
		zap.Int("sell_rules", len(in.Settings.SellRules)),
	)

	engine := indicator.NewEngine(filtered, in.Meta, in.Indicator, r.logger)
	engine.EnsureComputed()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sim, err := NewSimulator(engine, in.FX, in.Settings, r.logger)
	if err != nil {
		return nil, err
	}
	result, err := sim.Run(startIdx, endIdx)
	if err != nil {
		return nil, err
	}

	dates := make([]time.Time, len(result.EquityCurve))
	for i, p := range result.EquityCurve {
		dates[i] = p.Date
	}
	result.BenchmarkName = BenchmarkName(in.Settings.Market)
	result.Benchmark = BenchmarkCurve(in.Prices, in.FX, in.Settings.Market, dates, in.Settings.InitialCapital)
	if len(result.Benchmark) == 0 {
		r.logger.Warn("benchmark index not found", zap.String("benchmark", result.BenchmarkName))
	}
	return result, nil
}
