package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/newthinker/rankfolio/internal/backtest"
	"github.com/newthinker/rankfolio/internal/config"
	"github.com/newthinker/rankfolio/internal/core"
	"github.com/newthinker/rankfolio/internal/dataset"
	"github.com/newthinker/rankfolio/internal/metrics"
	"github.com/newthinker/rankfolio/internal/storage/archive"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	backtestFrom   string
	backtestTo     string
	backtestMarket string
	backtestSave   string
	backtestTrades bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run a backtest over the configured dataset",
	Long: `Load prices, symbol metadata and the USD/TWD series from the configured
store, simulate the configured rules and print performance statistics.`,
	Args: cobra.NoArgs,
	RunE: runBacktest,
}

func init() {
	backtestCmd.Flags().StringVar(&backtestFrom, "from", "", "start date YYYY-MM-DD (overrides backtest.start_date)")
	backtestCmd.Flags().StringVar(&backtestTo, "to", "", "end date YYYY-MM-DD (overrides backtest.end_date)")
	backtestCmd.Flags().StringVar(&backtestMarket, "market", "", "us, tw or global (overrides backtest.market)")
	backtestCmd.Flags().StringVar(&backtestSave, "save", "", "store key prefix for result files (overrides data.results)")
	backtestCmd.Flags().BoolVar(&backtestTrades, "trades", false, "print the trade ledger")

	rootCmd.AddCommand(backtestCmd)
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, fromFile, err := loadConfig()
	if err != nil {
		return err
	}
	applyBacktestFlags(cfg)

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()
	if !fromFile {
		log.Warn("no config file specified, using defaults")
	}

	settings, ind, start, end, err := cfg.Resolve()
	if err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := archive.Open(archive.Config{
		Type: cfg.Data.Storage.Type,
		Path: cfg.Data.Storage.Path,
		S3: archive.S3Config{
			Bucket:    cfg.Data.Storage.S3.Bucket,
			Endpoint:  cfg.Data.Storage.S3.Endpoint,
			Region:    cfg.Data.Storage.S3.Region,
			AccessKey: cfg.Data.Storage.S3.AccessKey,
			SecretKey: cfg.Data.Storage.S3.SecretKey,
			Prefix:    cfg.Data.Storage.S3.Prefix,
		},
	})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	reg := metrics.NewRegistry()
	rec, err := openRecorder(cfg, log)
	if err != nil {
		return fmt.Errorf("opening recorder: %w", err)
	}
	defer rec.Close()

	ds, err := dataset.NewLoader(store, reg, log).Load(ctx, dataset.Keys{
		Prices: cfg.Data.Prices,
		Meta:   cfg.Data.Meta,
		FX:     cfg.Data.FX,
	})
	if err != nil {
		return fmt.Errorf("loading dataset: %w", err)
	}

	result, err := backtest.NewRunner(log, reg, rec).Run(ctx, backtest.Input{
		Prices:    ds.Prices,
		Meta:      ds.Meta,
		FX:        ds.FX,
		Settings:  settings,
		Indicator: ind,
		Start:     start,
		End:       end,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printSummary(out, result)
	if backtestTrades {
		printTrades(out, result.Trades)
	}

	if cfg.Data.Results != "" {
		keys, err := dataset.SaveResult(ctx, store, cfg.Data.Results, result)
		if err != nil {
			return fmt.Errorf("saving result: %w", err)
		}
		log.Info("result saved", zap.Strings("keys", keys))
	}
	if cfg.Metrics.Enabled {
		if err := reg.WriteTextfile(cfg.Metrics.Path); err != nil {
			log.Warn("failed to write metrics textfile", zap.String("path", cfg.Metrics.Path), zap.Error(err))
		}
	}
	return nil
}

func applyBacktestFlags(cfg *config.Config) {
	if backtestFrom != "" {
		cfg.Backtest.StartDate = backtestFrom
	}
	if backtestTo != "" {
		cfg.Backtest.EndDate = backtestTo
	}
	if backtestMarket != "" {
		cfg.Backtest.Market = backtestMarket
	}
	if backtestSave != "" {
		cfg.Data.Results = backtestSave
	}
}

func printSummary(w io.Writer, r *backtest.Result) {
	fmt.Fprintln(w, "=== rankfolio backtest ===")
	fmt.Fprintf(w, "Run:          %s\n", r.RunID)
	fmt.Fprintf(w, "Market:       %s\n", r.Market)
	fmt.Fprintf(w, "Period:       %s to %s (%d days)\n",
		r.StartDate.Format(core.DateLayout), r.EndDate.Format(core.DateLayout), len(r.EquityCurve))
	fmt.Fprintf(w, "Initial:      %s\n", r.InitialCapital)
	fmt.Fprintf(w, "Final:        %s\n", r.FinalEquity)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total return: %7.2f%%\n", r.TotalReturn*100)
	fmt.Fprintf(w, "Annualized:   %7.2f%%\n", r.AnnualizedReturn*100)
	fmt.Fprintf(w, "Max drawdown: %7.2f%%\n", r.MaxDrawdown*100)
	fmt.Fprintf(w, "Sharpe:       %7.2f\n", r.SharpeRatio)
	fmt.Fprintf(w, "Trades:       %d (%d wins, %d losses, win rate %.1f%%)\n",
		r.TotalTrades, r.WinTrades, r.LossTrades, r.WinRate*100)

	if n := len(r.Benchmark); n > 0 && r.Benchmark[0].Equity > 0 {
		ret := r.Benchmark[n-1].Equity/r.Benchmark[0].Equity - 1
		fmt.Fprintf(w, "Benchmark:    %s %.2f%%\n", r.BenchmarkName, ret*100)
	}
}

func printTrades(w io.Writer, trades []backtest.Trade) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-10s  %-4s  %-10s  %8s  %12s  %14s  %10s  %s\n",
		"DATE", "SIDE", "SYMBOL", "SHARES", "PRICE", "AMOUNT (TWD)", "FEE", "REASON")
	for _, t := range trades {
		fmt.Fprintf(w, "%-10s  %-4s  %-10s  %8d  %12s  %14s  %10s  %s\n",
			t.Date.Format(core.DateLayout), t.Side, t.Symbol, t.Shares,
			t.Price.Decimal().StringFixed(2)+" "+t.Price.Currency().String(),
			t.AmountBase.Decimal().StringFixed(0), t.Fee.Decimal().StringFixed(0), t.Reason)
	}
}
