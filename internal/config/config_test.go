package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/newthinker/rankfolio/internal/backtest"
	"github.com/newthinker/rankfolio/internal/core"
	"github.com/newthinker/rankfolio/internal/money"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
backtest:
  market: tw
  max_positions: 5
  rebalance_freq: monthly
  fees:
    tw:
      rate: 0.004
  buy_conditions:
    sharpe_rank:
      top_n: 8
  rebalance_strategy:
    type: batch
    batch_ratio: 0.5
indicator:
  window: 120
data:
  storage:
    type: localfs
    path: "/tmp/rankfolio"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Backtest.Market != "tw" {
		t.Errorf("expected market tw, got %s", cfg.Backtest.Market)
	}
	if cfg.Backtest.MaxPositions != 5 {
		t.Errorf("expected max_positions 5, got %d", cfg.Backtest.MaxPositions)
	}
	if cfg.Backtest.Fees.TW.Rate != 0.004 {
		t.Errorf("expected tw rate 0.004, got %v", cfg.Backtest.Fees.TW.Rate)
	}
	// Untouched siblings keep their defaults.
	if cfg.Backtest.Fees.US.MinFee != 15 {
		t.Errorf("expected us min_fee 15, got %v", cfg.Backtest.Fees.US.MinFee)
	}
	if !cfg.Backtest.BuyConditions.SharpeRank.Enabled || cfg.Backtest.BuyConditions.SharpeRank.TopN != 8 {
		t.Errorf("unexpected sharpe_rank %+v", cfg.Backtest.BuyConditions.SharpeRank)
	}
	if cfg.Backtest.InitialCapital != 1_000_000 {
		t.Errorf("expected default capital, got %v", cfg.Backtest.InitialCapital)
	}
	if cfg.Indicator.Window != 120 {
		t.Errorf("expected window 120, got %d", cfg.Indicator.Window)
	}
	if cfg.Data.Storage.Path != "/tmp/rankfolio" {
		t.Errorf("expected storage path, got %s", cfg.Data.Storage.Path)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("RANKFOLIO_TEST_BUCKET", "prices-bucket")
	path := writeConfig(t, `
data:
  storage:
    type: s3
    s3:
      bucket: "${RANKFOLIO_TEST_BUCKET}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Data.Storage.S3.Bucket != "prices-bucket" {
		t.Errorf("expected expanded bucket, got %q", cfg.Data.Storage.S3.Bucket)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, core.ErrConfigMissing) {
		t.Errorf("expected ErrConfigMissing, got %v", err)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Backtest.InitialCapital != 1_000_000 {
		t.Errorf("expected default capital 1000000, got %v", cfg.Backtest.InitialCapital)
	}
	if cfg.Backtest.RebalanceStrategy.Type != "delayed" {
		t.Errorf("expected default strategy delayed, got %s", cfg.Backtest.RebalanceStrategy.Type)
	}
	if cfg.Indicator.Window != 252 {
		t.Errorf("expected default window 252, got %d", cfg.Indicator.Window)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr *core.Error
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "zero capital", mutate: func(c *Config) { c.Backtest.InitialCapital = 0 }, wantErr: core.ErrConfigInvalid},
		{name: "negative amount", mutate: func(c *Config) { c.Backtest.AmountPerStock = -1 }, wantErr: core.ErrConfigInvalid},
		{name: "max positions too high", mutate: func(c *Config) { c.Backtest.MaxPositions = 101 }, wantErr: core.ErrConfigInvalid},
		{name: "unknown market", mutate: func(c *Config) { c.Backtest.Market = "jp" }, wantErr: core.ErrConfigInvalid},
		{name: "unknown frequency", mutate: func(c *Config) { c.Backtest.RebalanceFreq = "hourly" }, wantErr: core.ErrConfigInvalid},
		{name: "missing start", mutate: func(c *Config) { c.Backtest.StartDate = "" }, wantErr: core.ErrConfigMissing},
		{name: "bad start", mutate: func(c *Config) { c.Backtest.StartDate = "2024/01/01" }, wantErr: core.ErrConfigInvalid},
		{name: "bad end", mutate: func(c *Config) { c.Backtest.EndDate = "soon" }, wantErr: core.ErrConfigInvalid},
		{name: "fee rate above one", mutate: func(c *Config) { c.Backtest.Fees.US.Rate = 1.5 }, wantErr: core.ErrConfigInvalid},
		{name: "negative min fee", mutate: func(c *Config) { c.Backtest.Fees.TW.MinFee = -1 }, wantErr: core.ErrConfigInvalid},
		{name: "top_n out of range", mutate: func(c *Config) { c.Backtest.BuyConditions.SharpeRank.TopN = 60 }, wantErr: core.ErrConfigInvalid},
		{
			name: "disabled condition is not range checked",
			mutate: func(c *Config) {
				c.Backtest.BuyConditions.GrowthRank = TopNCondition{Enabled: false, TopN: 999}
			},
		},
		{name: "drawdown too small", mutate: func(c *Config) { c.Backtest.SellConditions.Drawdown.Threshold = 0.01 }, wantErr: core.ErrConfigInvalid},
		{name: "unknown strategy", mutate: func(c *Config) { c.Backtest.RebalanceStrategy.Type = "yolo" }, wantErr: core.ErrConfigInvalid},
		{
			name: "batch ratio too small",
			mutate: func(c *Config) {
				c.Backtest.RebalanceStrategy.Type = "batch"
				c.Backtest.RebalanceStrategy.BatchRatio = 0.01
			},
			wantErr: core.ErrConfigInvalid,
		},
		{
			name: "NaN batch ratio",
			mutate: func(c *Config) {
				c.Backtest.RebalanceStrategy.Type = "batch"
				c.Backtest.RebalanceStrategy.BatchRatio = math.NaN()
			},
			wantErr: core.ErrConfigInvalid,
		},
		{name: "NaN capital", mutate: func(c *Config) { c.Backtest.InitialCapital = math.NaN() }, wantErr: core.ErrConfigInvalid},
		{name: "infinite capital", mutate: func(c *Config) { c.Backtest.InitialCapital = math.Inf(1) }, wantErr: core.ErrConfigInvalid},
		{name: "NaN amount", mutate: func(c *Config) { c.Backtest.AmountPerStock = math.NaN() }, wantErr: core.ErrConfigInvalid},
		{name: "NaN fee rate", mutate: func(c *Config) { c.Backtest.Fees.US.Rate = math.NaN() }, wantErr: core.ErrConfigInvalid},
		{name: "infinite min fee", mutate: func(c *Config) { c.Backtest.Fees.TW.MinFee = math.Inf(1) }, wantErr: core.ErrConfigInvalid},
		{name: "NaN risk free rate", mutate: func(c *Config) { c.Indicator.RiskFreeRate = math.NaN() }, wantErr: core.ErrConfigInvalid},
		{
			name: "NaN drawdown",
			mutate: func(c *Config) {
				c.Backtest.SellConditions.Drawdown.Enabled = true
				c.Backtest.SellConditions.Drawdown.Threshold = math.NaN()
			},
			wantErr: core.ErrConfigInvalid,
		},
		{name: "unknown scope", mutate: func(c *Config) { c.Backtest.RebalanceStrategy.Scope = "world" }, wantErr: core.ErrConfigInvalid},
		{name: "window too small", mutate: func(c *Config) { c.Indicator.Window = 1 }, wantErr: core.ErrConfigInvalid},
		{
			name: "s3 without bucket",
			mutate: func(c *Config) {
				c.Data.Storage.Type = "s3"
			},
			wantErr: core.ErrConfigMissing,
		},
		{name: "unknown storage", mutate: func(c *Config) { c.Data.Storage.Type = "ftp" }, wantErr: core.ErrConfigInvalid},
		{
			name: "recorder without path",
			mutate: func(c *Config) {
				c.Recorder.Enabled = true
				c.Recorder.Path = ""
			},
			wantErr: core.ErrConfigMissing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolve_Defaults(t *testing.T) {
	s, ind, start, end, err := Defaults().Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if !s.InitialCapital.Equal(money.TWD(1_000_000)) {
		t.Errorf("unexpected capital %s", s.InitialCapital)
	}
	if s.Market != core.MarketUS || s.Frequency != backtest.Weekly {
		t.Errorf("unexpected market/frequency %s/%s", s.Market, s.Frequency)
	}
	if s.Ordering != backtest.OrderByScore {
		t.Errorf("expected score ordering, got %s", s.Ordering)
	}
	if len(s.BuyRules) != 3 {
		t.Errorf("expected 3 buy rules, got %d", len(s.BuyRules))
	}
	if len(s.SellRules) != 2 {
		t.Errorf("expected 2 sell rules, got %d", len(s.SellRules))
	}
	d, ok := s.Rebalance.(backtest.Delayed)
	if !ok {
		t.Fatalf("expected delayed strategy, got %T", s.Rebalance)
	}
	if d.TopN != 5 || d.Scope != backtest.ScopePerCountry {
		t.Errorf("unexpected delayed %+v", d)
	}
	if !s.Fees[core.MarketUS].MinFee.Equal(money.TWD(15)) {
		t.Errorf("unexpected us min fee %s", s.Fees[core.MarketUS].MinFee)
	}
	if _, blocked := s.NonTradable[core.IndustryMarketIndex]; !blocked {
		t.Error("market index should not be tradable")
	}
	if ind.Window != 252 || ind.RiskFreeRate != 0.04 {
		t.Errorf("unexpected indicator config %+v", ind)
	}
	if start.Format(core.DateLayout) != "2024-01-01" {
		t.Errorf("unexpected start %s", start)
	}
	if !end.IsZero() {
		t.Errorf("expected open end, got %s", end)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("resolved settings should validate: %v", err)
	}
}

func TestResolve_Variants(t *testing.T) {
	cfg := Defaults()
	cfg.Backtest.BuyConditions.SortIndustry = IndustrySort{Enabled: true, PerIndustry: 3}
	cfg.Backtest.RebalanceStrategy = RebalanceConfig{Type: "concentrated", ConcentrateTopK: 2, LeadMargin: 0.5, Scope: "pooled"}
	cfg.Backtest.NonTradable = []string{"Utilities"}
	cfg.Backtest.EndDate = "2024-06-30"

	s, _, _, end, err := cfg.Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if s.Ordering != backtest.OrderByIndustry || s.PerIndustry != 3 {
		t.Errorf("industry ordering should win, got %s/%d", s.Ordering, s.PerIndustry)
	}
	c, ok := s.Rebalance.(backtest.Concentrated)
	if !ok {
		t.Fatalf("expected concentrated strategy, got %T", s.Rebalance)
	}
	if c.TopK != 2 || c.LeadMargin != 0.5 || c.Scope != backtest.ScopePooled {
		t.Errorf("unexpected concentrated %+v", c)
	}
	if _, blocked := s.NonTradable["Utilities"]; !blocked || len(s.NonTradable) != 1 {
		t.Errorf("unexpected non-tradable set %v", s.NonTradable)
	}
	if end.Format(core.DateLayout) != "2024-06-30" {
		t.Errorf("unexpected end %s", end)
	}
}

func TestResolve_NoOrdering(t *testing.T) {
	cfg := Defaults()
	cfg.Backtest.BuyConditions.SortSharpe.Enabled = false

	s, _, _, _, err := cfg.Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if s.Ordering != backtest.OrderNone {
		t.Errorf("expected no ordering, got %s", s.Ordering)
	}
}

func TestLoad_NaNBatchRatioFailsValidation(t *testing.T) {
	path := writeConfig(t, `
backtest:
  rebalance_strategy:
    type: batch
    batch_ratio: .nan
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if !math.IsNaN(cfg.Backtest.RebalanceStrategy.BatchRatio) {
		t.Fatalf("expected NaN batch_ratio, got %v", cfg.Backtest.RebalanceStrategy.BatchRatio)
	}
	if err := cfg.Validate(); !errors.Is(err, core.ErrConfigInvalid) {
		t.Errorf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestResolve_NaNCapital(t *testing.T) {
	cfg := Defaults()
	cfg.Backtest.InitialCapital = math.NaN()

	if _, _, _, _, err := cfg.Resolve(); !errors.Is(err, core.ErrConfigInvalid) {
		t.Errorf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestResolve_Invalid(t *testing.T) {
	cfg := Defaults()
	cfg.Backtest.Market = "mars"

	if _, _, _, _, err := cfg.Resolve(); !errors.Is(err, core.ErrConfigInvalid) {
		t.Errorf("expected ErrConfigInvalid, got %v", err)
	}
}
