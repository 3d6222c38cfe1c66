package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/rankfolio/internal/backtest"
	"github.com/newthinker/rankfolio/internal/core"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists run summaries, trade ledgers and equity curves
// to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *zap.Logger) (*SQLiteRecorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("open sqlite: %w", err))
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("set WAL mode: %w", err))
	}

	r := &SQLiteRecorder{db: db, logger: logger}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("migrate: %w", err))
	}

	logger.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id            TEXT PRIMARY KEY,
			recorded_at       INTEGER NOT NULL,
			market            TEXT NOT NULL,
			start_date        TEXT NOT NULL,
			end_date          TEXT NOT NULL,
			initial_capital   REAL,
			final_equity      REAL,
			total_return      REAL,
			annualized_return REAL,
			max_drawdown      REAL,
			sharpe_ratio      REAL,
			total_trades      INTEGER,
			win_trades        INTEGER,
			loss_trades       INTEGER,
			win_rate          REAL,
			benchmark         TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_recorded ON runs(recorded_at)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id     TEXT NOT NULL,
			seq        INTEGER NOT NULL,
			date       TEXT NOT NULL,
			symbol     TEXT NOT NULL,
			side       TEXT NOT NULL,
			shares     INTEGER NOT NULL,
			price      REAL,
			currency   TEXT,
			amount_twd REAL,
			fee        REAL,
			profit     REAL,
			reason     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id, seq)`,

		`CREATE TABLE IF NOT EXISTS equity (
			run_id         TEXT NOT NULL,
			date           TEXT NOT NULL,
			equity         REAL,
			cash           REAL,
			holdings_value REAL,
			positions      INTEGER,
			PRIMARY KEY (run_id, date)
		)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordRun stores a result in one transaction. Recording the same run
// twice fails.
func (r *SQLiteRecorder) RecordRun(ctx context.Context, res *backtest.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.WrapError(core.ErrStorageFailed, fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(run_id, recorded_at, market, start_date, end_date,
		 initial_capital, final_equity, total_return, annualized_return,
		 max_drawdown, sharpe_ratio, total_trades, win_trades, loss_trades,
		 win_rate, benchmark)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, time.Now().Unix(), string(res.Market),
		res.StartDate.Format(core.DateLayout), res.EndDate.Format(core.DateLayout),
		res.InitialCapital.Float64(), res.FinalEquity.Float64(),
		res.TotalReturn, res.AnnualizedReturn, res.MaxDrawdown, res.SharpeRatio,
		res.TotalTrades, res.WinTrades, res.LossTrades, res.WinRate, res.BenchmarkName,
	)
	if err != nil {
		return core.WrapError(core.ErrStorageFailed, fmt.Errorf("insert run: %w", err))
	}

	tradeStmt, err := tx.PrepareContext(ctx, `INSERT INTO trades
		(run_id, seq, date, symbol, side, shares, price, currency, amount_twd, fee, profit, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return core.WrapError(core.ErrStorageFailed, fmt.Errorf("prepare trades: %w", err))
	}
	defer tradeStmt.Close()

	for i, t := range res.Trades {
		var profit any
		if t.IsSell() {
			profit = t.Profit.Float64()
		}
		if _, err := tradeStmt.ExecContext(ctx,
			res.RunID, i, t.Date.Format(core.DateLayout), t.Symbol, string(t.Side), t.Shares,
			t.Price.Float64(), t.Price.Currency().String(), t.AmountBase.Float64(), t.Fee.Float64(),
			profit, t.Reason,
		); err != nil {
			return core.WrapError(core.ErrStorageFailed, fmt.Errorf("insert trade %d: %w", i, err))
		}
	}

	equityStmt, err := tx.PrepareContext(ctx, `INSERT INTO equity
		(run_id, date, equity, cash, holdings_value, positions)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return core.WrapError(core.ErrStorageFailed, fmt.Errorf("prepare equity: %w", err))
	}
	defer equityStmt.Close()

	for _, p := range res.EquityCurve {
		if _, err := equityStmt.ExecContext(ctx,
			res.RunID, p.Date.Format(core.DateLayout),
			p.Equity.Float64(), p.Cash.Float64(), p.HoldingsValue.Float64(), len(p.Holdings),
		); err != nil {
			return core.WrapError(core.ErrStorageFailed, fmt.Errorf("insert equity %s: %w", p.Date.Format(core.DateLayout), err))
		}
	}

	if err := tx.Commit(); err != nil {
		return core.WrapError(core.ErrStorageFailed, fmt.Errorf("commit: %w", err))
	}
	r.logger.Debug("run recorded",
		zap.String("run_id", res.RunID),
		zap.Int("trades", len(res.Trades)),
		zap.Int("days", len(res.EquityCurve)),
	)
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (r *SQLiteRecorder) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT
		run_id, recorded_at, market, start_date, end_date,
		initial_capital, final_equity, total_return, annualized_return,
		max_drawdown, sharpe_ratio, total_trades, win_rate, benchmark
		FROM runs ORDER BY recorded_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("query runs: %w", err))
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var recordedAt int64
		var benchmark sql.NullString
		if err := rows.Scan(
			&rec.RunID, &recordedAt, &rec.Market, &rec.StartDate, &rec.EndDate,
			&rec.InitialCapital, &rec.FinalEquity, &rec.TotalReturn, &rec.AnnualizedReturn,
			&rec.MaxDrawdown, &rec.SharpeRatio, &rec.TotalTrades, &rec.WinRate, &benchmark,
		); err != nil {
			return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("scan run: %w", err))
		}
		rec.RecordedAt = time.Unix(recordedAt, 0)
		rec.Benchmark = benchmark.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}
	return out, nil
}

// TradeCount returns the number of ledger rows stored for a run.
func (r *SQLiteRecorder) TradeCount(ctx context.Context, runID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, core.WrapError(core.ErrStorageFailed, fmt.Errorf("count trades: %w", err))
	}
	return n, nil
}

func (r *SQLiteRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.Close()
}
