// Package config provides configuration management for the backtester.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"

	apperrors "astock-backtest/internal/errors"
)

// ConfigFileName is the base name of the configuration file.
const ConfigFileName = "backtest"

// EnvPrefix is the prefix of environment overrides, e.g. BACKTEST_MARKET_PRESET.
const EnvPrefix = "BACKTEST"

// Config holds all application configuration.
type Config struct {
	Market   MarketConfig   `mapstructure:"market"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	Sizing   SizingConfig   `mapstructure:"sizing"`
	Strategy StrategyConfig `mapstructure:"strategy"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Store    StoreConfig    `mapstructure:"store"`

	// Path is the file the configuration was read from, if any.
	Path string `mapstructure:"-"`
}

// MarketConfig holds the trading rules of one market.
type MarketConfig struct {
	Preset          string  `mapstructure:"preset"`
	CommissionRate  float64 `mapstructure:"commission_rate"`
	MinCommission   float64 `mapstructure:"min_commission"`
	SlippageRate    float64 `mapstructure:"slippage_rate"`
	TaxRate         float64 `mapstructure:"tax_rate"`   // sells only
	LimitUp         float64 `mapstructure:"limit_up"`   // 0 disables
	LimitDown       float64 `mapstructure:"limit_down"` // 0 disables
	SettlementDelay int     `mapstructure:"settlement_delay"`
	LotSize         int64   `mapstructure:"lot_size"`
}

// BacktestConfig holds run-level parameters.
type BacktestConfig struct {
	InitialCapital float64 `mapstructure:"initial_capital"`
	PeriodsPerYear int     `mapstructure:"periods_per_year"`
	RiskFreeRate   float64 `mapstructure:"risk_free_rate"`
}

// SizingConfig selects how signals are turned into order sizes.
type SizingConfig struct {
	BuyFraction  float64 `mapstructure:"buy_fraction"`
	SellFraction float64 `mapstructure:"sell_fraction"`
	FixedAmount  float64 `mapstructure:"fixed_amount"` // > 0 switches to fixed-amount buys

	// Kelly sizing is used when kelly_avg_loss > 0.
	KellyWinRate     float64 `mapstructure:"kelly_win_rate"`
	KellyAvgWin      float64 `mapstructure:"kelly_avg_win"`
	KellyAvgLoss     float64 `mapstructure:"kelly_avg_loss"`
	KellyMaxFraction float64 `mapstructure:"kelly_max_fraction"`
}

// StrategyConfig names the strategy and its parameters.
type StrategyConfig struct {
	Name   string                 `mapstructure:"name"`
	Params map[string]interface{} `mapstructure:"params"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Console  bool   `mapstructure:"console"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
}

// StoreConfig holds persistence configuration.
type StoreConfig struct {
	DBPath string `mapstructure:"db_path"`
}

var presets = map[string]MarketConfig{
	"cn-a": {
		CommissionRate:  0.0003,
		MinCommission:   5,
		SlippageRate:    0.001,
		TaxRate:         0.001,
		LimitUp:         0.10,
		LimitDown:       0.10,
		SettlementDelay: 1,
		LotSize:         100,
	},
	"cn-star": {
		CommissionRate:  0.0003,
		MinCommission:   5,
		SlippageRate:    0.001,
		TaxRate:         0.001,
		LimitUp:         0.20,
		LimitDown:       0.20,
		SettlementDelay: 1,
		LotSize:         200,
	},
	"in-nse": {
		CommissionRate:  0.0003,
		MinCommission:   0,
		SlippageRate:    0.0005,
		TaxRate:         0.001,
		LimitUp:         0.20,
		LimitDown:       0.20,
		SettlementDelay: 1,
		LotSize:         1,
	},
	"us": {
		CommissionRate:  0,
		MinCommission:   0,
		SlippageRate:    0.0005,
		TaxRate:         0,
		LimitUp:         0,
		LimitDown:       0,
		SettlementDelay: 0,
		LotSize:         1,
	},
}

// DefaultPreset is used when no preset is configured.
const DefaultPreset = "cn-a"

// Preset returns the market rules of a named preset.
func Preset(name string) (MarketConfig, bool) {
	m, ok := presets[strings.ToLower(name)]
	if ok {
		m.Preset = strings.ToLower(name)
	}
	return m, ok
}

// PresetNames returns the known preset names, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/astock-backtest"
	}
	return filepath.Join(home, ".config", "astock-backtest")
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	market, _ := Preset(DefaultPreset)
	dir := DefaultConfigDir()
	return &Config{
		Market: market,
		Backtest: BacktestConfig{
			InitialCapital: 1000000,
			PeriodsPerYear: 252,
			RiskFreeRate:   0.03,
		},
		Sizing: SizingConfig{
			BuyFraction:      0.5,
			SellFraction:     0.5,
			KellyMaxFraction: 0.25,
		},
		Strategy: StrategyConfig{
			Name:   "sma_crossover",
			Params: map[string]interface{}{},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Console:  true,
			File:     false,
			FilePath: filepath.Join(dir, "logs", "backtest.log"),
		},
		Store: StoreConfig{
			DBPath: filepath.Join(dir, "backtest.db"),
		},
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing file
// is replaced by a commented template and the defaults are used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	path := filepath.Join(configDir, ConfigFileName+".toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := WriteTemplate(configDir); err != nil {
			return nil, err
		}
	}
	return LoadFile(path)
}

// LoadFile loads configuration from an explicit TOML file.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.Path = path

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv builds configuration from defaults and environment overrides
// only.
func LoadFromEnv() (*Config, error) {
	cfg, err := decode(newViper())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Market keys have no defaults so IsSet can tell an explicit value from
	// the preset.
	d := Default()
	v.SetDefault("backtest.initial_capital", d.Backtest.InitialCapital)
	v.SetDefault("backtest.periods_per_year", d.Backtest.PeriodsPerYear)
	v.SetDefault("backtest.risk_free_rate", d.Backtest.RiskFreeRate)
	v.SetDefault("sizing.buy_fraction", d.Sizing.BuyFraction)
	v.SetDefault("sizing.sell_fraction", d.Sizing.SellFraction)
	v.SetDefault("sizing.fixed_amount", d.Sizing.FixedAmount)
	v.SetDefault("sizing.kelly_win_rate", d.Sizing.KellyWinRate)
	v.SetDefault("sizing.kelly_avg_win", d.Sizing.KellyAvgWin)
	v.SetDefault("sizing.kelly_avg_loss", d.Sizing.KellyAvgLoss)
	v.SetDefault("sizing.kelly_max_fraction", d.Sizing.KellyMaxFraction)
	v.SetDefault("strategy.name", d.Strategy.Name)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.console", d.Logging.Console)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.file_path", d.Logging.FilePath)
	v.SetDefault("store.db_path", d.Store.DBPath)
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.Strategy.Params == nil {
		cfg.Strategy.Params = map[string]interface{}{}
	}

	market, err := resolveMarket(v)
	if err != nil {
		return nil, err
	}
	cfg.Market = market
	return cfg, nil
}

// resolveMarket starts from the preset and overlays every market key that
// was set explicitly in the file or the environment.
func resolveMarket(v *viper.Viper) (MarketConfig, error) {
	name := DefaultPreset
	if v.IsSet("market.preset") {
		name = strings.TrimSpace(v.GetString("market.preset"))
	}
	m, ok := Preset(name)
	if !ok {
		return MarketConfig{}, apperrors.NewValidationError("market.preset", name,
			fmt.Sprintf("unknown preset (known: %s)", strings.Join(PresetNames(), ", ")))
	}

	floats := map[string]*float64{
		"market.commission_rate": &m.CommissionRate,
		"market.min_commission":  &m.MinCommission,
		"market.slippage_rate":   &m.SlippageRate,
		"market.tax_rate":        &m.TaxRate,
		"market.limit_up":        &m.LimitUp,
		"market.limit_down":      &m.LimitDown,
	}
	for key, dst := range floats {
		if v.IsSet(key) {
			*dst = v.GetFloat64(key)
		}
	}
	if v.IsSet("market.settlement_delay") {
		m.SettlementDelay = v.GetInt("market.settlement_delay")
	}
	if v.IsSet("market.lot_size") {
		m.LotSize = v.GetInt64("market.lot_size")
	}
	return m, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Market.Validate(); err != nil {
		return err
	}

	if c.Backtest.InitialCapital <= 0 {
		return apperrors.NewValidationError("backtest.initial_capital", c.Backtest.InitialCapital, "must be positive")
	}
	if c.Backtest.PeriodsPerYear <= 0 {
		return apperrors.NewValidationError("backtest.periods_per_year", c.Backtest.PeriodsPerYear, "must be positive")
	}

	if c.Sizing.BuyFraction <= 0 || c.Sizing.BuyFraction > 1 {
		return apperrors.NewValidationError("sizing.buy_fraction", c.Sizing.BuyFraction, "must be in (0, 1]")
	}
	if c.Sizing.SellFraction <= 0 || c.Sizing.SellFraction > 1 {
		return apperrors.NewValidationError("sizing.sell_fraction", c.Sizing.SellFraction, "must be in (0, 1]")
	}
	if c.Sizing.FixedAmount < 0 {
		return apperrors.NewValidationError("sizing.fixed_amount", c.Sizing.FixedAmount, "must be non-negative")
	}
	if c.Sizing.KellyAvgLoss < 0 {
		return apperrors.NewValidationError("sizing.kelly_avg_loss", c.Sizing.KellyAvgLoss, "must be a non-negative magnitude")
	}
	if c.Sizing.KellyAvgLoss > 0 {
		if c.Sizing.FixedAmount > 0 {
			return apperrors.NewValidationError("sizing.kelly_avg_loss", c.Sizing.KellyAvgLoss, "conflicts with sizing.fixed_amount")
		}
		if c.Sizing.KellyWinRate < 0 || c.Sizing.KellyWinRate > 1 {
			return apperrors.NewValidationError("sizing.kelly_win_rate", c.Sizing.KellyWinRate, "must be in [0, 1]")
		}
		if c.Sizing.KellyAvgWin <= 0 {
			return apperrors.NewValidationError("sizing.kelly_avg_win", c.Sizing.KellyAvgWin, "must be positive")
		}
		if c.Sizing.KellyMaxFraction <= 0 || c.Sizing.KellyMaxFraction > 1 {
			return apperrors.NewValidationError("sizing.kelly_max_fraction", c.Sizing.KellyMaxFraction, "must be in (0, 1]")
		}
	}

	if strings.TrimSpace(c.Strategy.Name) == "" {
		return apperrors.NewValidationError("strategy.name", c.Strategy.Name, "must not be empty")
	}
	return nil
}

// Validate checks the market rules. Rates are fractions, so 0.001 is 0.1%.
func (m MarketConfig) Validate() error {
	rates := []struct {
		field string
		value float64
	}{
		{"market.commission_rate", m.CommissionRate},
		{"market.slippage_rate", m.SlippageRate},
		{"market.tax_rate", m.TaxRate},
	}
	for _, r := range rates {
		if r.value < 0 || r.value >= 1 {
			return apperrors.NewValidationError(r.field, r.value, "must be in [0, 1)")
		}
	}
	if m.MinCommission < 0 {
		return apperrors.NewValidationError("market.min_commission", m.MinCommission, "must be non-negative")
	}
	if m.LimitUp < 0 || m.LimitUp > 1 {
		return apperrors.NewValidationError("market.limit_up", m.LimitUp, "must be in [0, 1], 0 disables")
	}
	if m.LimitDown < 0 || m.LimitDown >= 1 {
		return apperrors.NewValidationError("market.limit_down", m.LimitDown, "must be in [0, 1), 0 disables")
	}
	if m.SettlementDelay < 0 {
		return apperrors.NewValidationError("market.settlement_delay", m.SettlementDelay, "must be non-negative")
	}
	if m.LotSize < 1 {
		return apperrors.NewValidationError("market.lot_size", m.LotSize, "must be at least 1")
	}
	return nil
}
