// Package recorder keeps a history of finished backtest runs.
package recorder

import (
	"context"
	"time"

	"github.com/newthinker/rankfolio/internal/backtest"
)

// RunRecord is one row of the run history.
type RunRecord struct {
	RunID            string
	RecordedAt       time.Time
	Market           string
	StartDate        string
	EndDate          string
	InitialCapital   float64
	FinalEquity      float64
	TotalReturn      float64
	AnnualizedReturn float64
	MaxDrawdown      float64
	SharpeRatio      float64
	TotalTrades      int
	WinRate          float64
	Benchmark        string
}

// Recorder persists runs for later comparison.
type Recorder interface {
	RecordRun(ctx context.Context, result *backtest.Result) error
	RecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
	Close() error
}

var (
	_ Recorder          = (*SQLiteRecorder)(nil)
	_ Recorder          = (*NoopRecorder)(nil)
	_ backtest.Recorder = (Recorder)(nil)
)
