package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/newthinker/rankfolio/internal/core"
	"github.com/spf13/viper"
)

type Config struct {
	Backtest  BacktestConfig  `mapstructure:"backtest"`
	Indicator IndicatorConfig `mapstructure:"indicator"`
	Data      DataConfig      `mapstructure:"data"`
	Recorder  RecorderConfig  `mapstructure:"recorder"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

type BacktestConfig struct {
	InitialCapital    float64         `mapstructure:"initial_capital"`
	AmountPerStock    float64         `mapstructure:"amount_per_stock"`
	MaxPositions      int             `mapstructure:"max_positions"`
	Market            string          `mapstructure:"market"`
	StartDate         string          `mapstructure:"start_date"`
	EndDate           string          `mapstructure:"end_date"` // empty means the last available date
	RebalanceFreq     string          `mapstructure:"rebalance_freq"`
	Fees              FeesConfig      `mapstructure:"fees"`
	BuyConditions     BuyConditions   `mapstructure:"buy_conditions"`
	SellConditions    SellConditions  `mapstructure:"sell_conditions"`
	RebalanceStrategy RebalanceConfig `mapstructure:"rebalance_strategy"`
	NonTradable       []string        `mapstructure:"non_tradable_industries"` // empty means the index industries
}

type FeesConfig struct {
	US FeeConfig `mapstructure:"us"`
	TW FeeConfig `mapstructure:"tw"`
}

// FeeConfig is one market's commission. MinFee is in TWD.
type FeeConfig struct {
	Rate   float64 `mapstructure:"rate"`
	MinFee float64 `mapstructure:"min_fee"`
}

type BuyConditions struct {
	SharpeRank      TopNCondition      `mapstructure:"sharpe_rank"`
	SharpeThreshold ThresholdCondition `mapstructure:"sharpe_threshold"`
	SharpeStreak    StreakCondition    `mapstructure:"sharpe_streak"`
	GrowthStreak    GrowthStreakCond   `mapstructure:"growth_streak"`
	GrowthRank      TopNCondition      `mapstructure:"growth_rank"`
	SortSharpe      Toggle             `mapstructure:"sort_sharpe"`
	SortIndustry    IndustrySort       `mapstructure:"sort_industry"`
}

type Toggle struct {
	Enabled bool `mapstructure:"enabled"`
}

type TopNCondition struct {
	Enabled bool `mapstructure:"enabled"`
	TopN    int  `mapstructure:"top_n"`
}

type ThresholdCondition struct {
	Enabled   bool    `mapstructure:"enabled"`
	Threshold float64 `mapstructure:"threshold"`
}

type StreakCondition struct {
	Enabled bool `mapstructure:"enabled"`
	Days    int  `mapstructure:"days"`
	TopN    int  `mapstructure:"top_n"`
}

type GrowthStreakCond struct {
	Enabled    bool    `mapstructure:"enabled"`
	Days       int     `mapstructure:"days"`
	Percentile float64 `mapstructure:"percentile"`
}

type IndustrySort struct {
	Enabled     bool `mapstructure:"enabled"`
	PerIndustry int  `mapstructure:"per_industry"`
}

type SellConditions struct {
	SharpeFail  SharpeFailCondition `mapstructure:"sharpe_fail"`
	GrowthFail  GrowthFailCondition `mapstructure:"growth_fail"`
	NotSelected PeriodsCondition    `mapstructure:"not_selected"`
	Drawdown    DrawdownCondition   `mapstructure:"drawdown"`
	Weakness    WeaknessCondition   `mapstructure:"weakness"`
}

type SharpeFailCondition struct {
	Enabled bool `mapstructure:"enabled"`
	Periods int  `mapstructure:"periods"`
	TopN    int  `mapstructure:"top_n"`
}

type GrowthFailCondition struct {
	Enabled   bool    `mapstructure:"enabled"`
	Days      int     `mapstructure:"days"`
	Threshold float64 `mapstructure:"threshold"`
}

type PeriodsCondition struct {
	Enabled bool `mapstructure:"enabled"`
	Periods int  `mapstructure:"periods"`
}

type DrawdownCondition struct {
	Enabled     bool    `mapstructure:"enabled"`
	Threshold   float64 `mapstructure:"threshold"`
	FromHighest bool    `mapstructure:"from_highest"`
}

type WeaknessCondition struct {
	Enabled bool `mapstructure:"enabled"`
	RankK   int  `mapstructure:"rank_k"`
	Periods int  `mapstructure:"periods"`
}

// RebalanceConfig carries the parameters of every strategy; only those of
// Type are read.
type RebalanceConfig struct {
	Type            string  `mapstructure:"type"`
	TopN            int     `mapstructure:"top_n"`
	SharpeThreshold float64 `mapstructure:"sharpe_threshold"`
	BatchRatio      float64 `mapstructure:"batch_ratio"`
	ConcentrateTopK int     `mapstructure:"concentrate_top_k"`
	LeadMargin      float64 `mapstructure:"lead_margin"`
	Scope           string  `mapstructure:"scope"` // "per_country" or "pooled"
}

type IndicatorConfig struct {
	Window       int     `mapstructure:"window"`
	RiskFreeRate float64 `mapstructure:"risk_free_rate"`
}

// DataConfig locates the dataset objects inside the archive store.
type DataConfig struct {
	Storage StorageConfig `mapstructure:"storage"`
	Prices  string        `mapstructure:"prices"`
	Meta    string        `mapstructure:"meta"`
	FX      string        `mapstructure:"fx"`
	Results string        `mapstructure:"results"` // key prefix for saved results; empty disables
}

type StorageConfig struct {
	Type string   `mapstructure:"type"` // "localfs" or "s3"
	Path string   `mapstructure:"path"` // For localfs
	S3   S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// RecorderConfig holds run history settings.
type RecorderConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"` // SQLite database file
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"` // textfile written after each run
}

type LogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"` // empty keeps the mode default
}

// Load reads configuration from file, layered over Defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("reading config: %w", err))
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unmarshaling config: %w", err))
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Backtest: BacktestConfig{
			InitialCapital: 1_000_000,
			AmountPerStock: 100_000,
			MaxPositions:   10,
			Market:         "us",
			StartDate:      "2024-01-01",
			RebalanceFreq:  "weekly",
			Fees: FeesConfig{
				US: FeeConfig{Rate: 0.003, MinFee: 15},
				TW: FeeConfig{Rate: 0.006, MinFee: 0},
			},
			BuyConditions: BuyConditions{
				SharpeRank:      TopNCondition{Enabled: true, TopN: 15},
				SharpeThreshold: ThresholdCondition{Enabled: true, Threshold: 1.0},
				SharpeStreak:    StreakCondition{Enabled: false, Days: 3, TopN: 10},
				GrowthStreak:    GrowthStreakCond{Enabled: true, Days: 2, Percentile: 30},
				GrowthRank:      TopNCondition{Enabled: false, TopN: 7},
				SortSharpe:      Toggle{Enabled: true},
				SortIndustry:    IndustrySort{Enabled: false, PerIndustry: 2},
			},
			SellConditions: SellConditions{
				SharpeFail:  SharpeFailCondition{Enabled: true, Periods: 2, TopN: 15},
				GrowthFail:  GrowthFailCondition{Enabled: false, Days: 5, Threshold: 0},
				NotSelected: PeriodsCondition{Enabled: false, Periods: 3},
				Drawdown:    DrawdownCondition{Enabled: true, Threshold: 0.40, FromHighest: false},
				Weakness:    WeaknessCondition{Enabled: false, RankK: 20, Periods: 3},
			},
			RebalanceStrategy: RebalanceConfig{
				Type:            "delayed",
				TopN:            5,
				SharpeThreshold: 0,
				BatchRatio:      0.20,
				ConcentrateTopK: 3,
				LeadMargin:      0.30,
				Scope:           "per_country",
			},
		},
		Indicator: IndicatorConfig{
			Window:       252,
			RiskFreeRate: 0.04,
		},
		Data: DataConfig{
			Storage: StorageConfig{
				Type: "localfs",
				Path: "data",
			},
			Prices: "prices.csv",
			Meta:   "symbols.yaml",
			FX:     "usdtwd.csv",
		},
		Recorder: RecorderConfig{
			Enabled: false,
			Path:    "rankfolio.db",
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	b := c.Backtest

	if !finite(b.InitialCapital) || b.InitialCapital <= 0 {
		return invalid("initial_capital must be positive, got %v", b.InitialCapital)
	}
	if !finite(b.AmountPerStock) || b.AmountPerStock <= 0 {
		return invalid("amount_per_stock must be positive, got %v", b.AmountPerStock)
	}
	if b.MaxPositions < 1 || b.MaxPositions > 100 {
		return invalid("max_positions must be between 1 and 100, got %d", b.MaxPositions)
	}
	if _, ok := core.ParseMarket(b.Market); !ok {
		return invalid("market must be one of us, tw, global, got %q", b.Market)
	}
	switch b.RebalanceFreq {
	case "daily", "weekly", "monthly":
	default:
		return invalid("rebalance_freq must be one of daily, weekly, monthly, got %q", b.RebalanceFreq)
	}
	if b.StartDate == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("start_date is required"))
	}
	if _, err := parseDate("start_date", b.StartDate); err != nil {
		return err
	}
	if _, err := parseDate("end_date", b.EndDate); err != nil {
		return err
	}

	for name, f := range map[string]FeeConfig{"us": b.Fees.US, "tw": b.Fees.TW} {
		if err := floatRange("fees."+name+".rate", f.Rate, 0, 1); err != nil {
			return err
		}
		if !finite(f.MinFee) || f.MinFee < 0 {
			return invalid("fees.%s.min_fee must be >= 0, got %v", name, f.MinFee)
		}
	}

	if err := b.BuyConditions.validate(); err != nil {
		return err
	}
	if err := b.SellConditions.validate(); err != nil {
		return err
	}
	if err := b.RebalanceStrategy.validate(); err != nil {
		return err
	}

	if c.Indicator.Window < 2 {
		return invalid("indicator.window must be at least 2, got %d", c.Indicator.Window)
	}
	if !finite(c.Indicator.RiskFreeRate) {
		return invalid("indicator.risk_free_rate must be a finite number, got %v", c.Indicator.RiskFreeRate)
	}

	switch c.Data.Storage.Type {
	case "localfs":
		if c.Data.Storage.Path == "" {
			return core.WrapError(core.ErrConfigMissing, fmt.Errorf("data.storage.path required for localfs"))
		}
	case "s3":
		if c.Data.Storage.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing, fmt.Errorf("data.storage.s3.bucket required for s3"))
		}
	default:
		return invalid("data.storage.type must be localfs or s3, got %q", c.Data.Storage.Type)
	}
	if c.Data.Prices == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("data.prices is required"))
	}

	if c.Recorder.Enabled && c.Recorder.Path == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("recorder.path required when recorder is enabled"))
	}
	if c.Metrics.Enabled && c.Metrics.Path == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("metrics.path required when metrics are enabled"))
	}

	return nil
}

func (b BuyConditions) validate() error {
	if b.SharpeRank.Enabled {
		if err := intRange("buy_conditions.sharpe_rank.top_n", b.SharpeRank.TopN, 1, 50); err != nil {
			return err
		}
	}
	if b.SharpeThreshold.Enabled {
		if err := floatRange("buy_conditions.sharpe_threshold.threshold", b.SharpeThreshold.Threshold, -2, 5); err != nil {
			return err
		}
	}
	if b.SharpeStreak.Enabled {
		if err := intRange("buy_conditions.sharpe_streak.days", b.SharpeStreak.Days, 1, 10); err != nil {
			return err
		}
		if err := intRange("buy_conditions.sharpe_streak.top_n", b.SharpeStreak.TopN, 1, 30); err != nil {
			return err
		}
	}
	if b.GrowthRank.Enabled {
		if err := intRange("buy_conditions.growth_rank.top_n", b.GrowthRank.TopN, 1, 30); err != nil {
			return err
		}
	}
	if b.GrowthStreak.Enabled {
		if err := intRange("buy_conditions.growth_streak.days", b.GrowthStreak.Days, 1, 10); err != nil {
			return err
		}
		if err := floatRange("buy_conditions.growth_streak.percentile", b.GrowthStreak.Percentile, 10, 100); err != nil {
			return err
		}
	}
	if b.SortIndustry.Enabled {
		if err := intRange("buy_conditions.sort_industry.per_industry", b.SortIndustry.PerIndustry, 1, 5); err != nil {
			return err
		}
	}
	return nil
}

func (s SellConditions) validate() error {
	if s.SharpeFail.Enabled {
		if err := intRange("sell_conditions.sharpe_fail.periods", s.SharpeFail.Periods, 1, 10); err != nil {
			return err
		}
		if err := intRange("sell_conditions.sharpe_fail.top_n", s.SharpeFail.TopN, 5, 50); err != nil {
			return err
		}
	}
	if s.GrowthFail.Enabled {
		if err := intRange("sell_conditions.growth_fail.days", s.GrowthFail.Days, 1, 20); err != nil {
			return err
		}
		if err := floatRange("sell_conditions.growth_fail.threshold", s.GrowthFail.Threshold, -10, 10); err != nil {
			return err
		}
	}
	if s.NotSelected.Enabled {
		if err := intRange("sell_conditions.not_selected.periods", s.NotSelected.Periods, 1, 10); err != nil {
			return err
		}
	}
	if s.Drawdown.Enabled {
		if err := floatRange("sell_conditions.drawdown.threshold", s.Drawdown.Threshold, 0.05, 0.80); err != nil {
			return err
		}
	}
	if s.Weakness.Enabled {
		if err := intRange("sell_conditions.weakness.rank_k", s.Weakness.RankK, 10, 50); err != nil {
			return err
		}
		if err := intRange("sell_conditions.weakness.periods", s.Weakness.Periods, 1, 10); err != nil {
			return err
		}
	}
	return nil
}

func (r RebalanceConfig) validate() error {
	switch r.Type {
	case "immediate", "none":
	case "batch":
		return floatRange("rebalance_strategy.batch_ratio", r.BatchRatio, 0.05, 1.0)
	case "delayed":
		if err := intRange("rebalance_strategy.top_n", r.TopN, 1, 20); err != nil {
			return err
		}
		if err := floatRange("rebalance_strategy.sharpe_threshold", r.SharpeThreshold, -2, 5); err != nil {
			return err
		}
		return r.validateScope()
	case "concentrated":
		if err := intRange("rebalance_strategy.concentrate_top_k", r.ConcentrateTopK, 1, 10); err != nil {
			return err
		}
		if err := floatRange("rebalance_strategy.lead_margin", r.LeadMargin, 0, 2); err != nil {
			return err
		}
		return r.validateScope()
	default:
		return invalid("rebalance_strategy.type must be one of immediate, batch, delayed, concentrated, none, got %q", r.Type)
	}
	return nil
}

func (r RebalanceConfig) validateScope() error {
	switch r.Scope {
	case "", "per_country", "pooled":
		return nil
	}
	return invalid("rebalance_strategy.scope must be per_country or pooled, got %q", r.Scope)
}

func invalid(format string, args ...any) error {
	return core.Errorf(core.ErrConfigInvalid, format, args...)
}

func intRange(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return invalid("%s must be between %d and %d, got %d", field, lo, hi, v)
	}
	return nil
}

func floatRange(field string, v, lo, hi float64) error {
	if !finite(v) || v < lo || v > hi {
		return invalid("%s must be between %v and %v, got %v", field, lo, hi, v)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// parseDate parses an optional YYYY-MM-DD field; empty yields the zero time.
func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(core.DateLayout, s)
	if err != nil {
		return time.Time{}, invalid("%s must be a YYYY-MM-DD date, got %q", field, s)
	}
	return d, nil
}
