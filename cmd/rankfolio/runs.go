package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded backtest runs",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "number of runs to show")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Recorder.Enabled {
		return fmt.Errorf("run history is disabled (set recorder.enabled)")
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	rec, err := openRecorder(cfg, log)
	if err != nil {
		return fmt.Errorf("opening recorder: %w", err)
	}
	defer rec.Close()

	runs, err := rec.RecentRuns(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-36s  %-6s  %-10s  %-10s  %8s  %8s  %6s  %6s\n",
		"RUN", "MARKET", "START", "END", "RETURN", "MAX DD", "SHARPE", "TRADES")
	for _, r := range runs {
		fmt.Fprintf(out, "%-36s  %-6s  %-10s  %-10s  %7.2f%%  %7.2f%%  %6.2f  %6d\n",
			r.RunID, r.Market, r.StartDate, r.EndDate,
			r.TotalReturn*100, r.MaxDrawdown*100, r.SharpeRatio, r.TotalTrades)
	}
	return nil
}
