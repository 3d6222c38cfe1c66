package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "rankfolio",
	Short: "rankfolio - rank-driven portfolio backtester",
	Long: `rankfolio replays a rule-based equity strategy over daily closes of US and
Taiwan listings. Symbols are ranked by a rolling risk-adjusted return score and
bought and sold according to configurable rules, with all accounting in TWD.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
