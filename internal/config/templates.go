package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# A-share Backtester Configuration

[market]
# Rule preset: cn-a, cn-star, in-nse, us
# Any key below overrides the preset value.
preset = "cn-a"
# commission_rate = 0.0003
# min_commission = 5.0
# slippage_rate = 0.001
# Stamp tax, charged on sells only
# tax_rate = 0.001
# Price-limit band as a fraction of the previous close (0 disables)
# limit_up = 0.10
# limit_down = 0.10
# Periods before bought shares can be sold (1 = T+1)
# settlement_delay = 1
# lot_size = 100

[backtest]
initial_capital = 1000000.0
# 252 for daily bars
periods_per_year = 252
# Annual risk-free rate used by Sharpe and Sortino
risk_free_rate = 0.03

[sizing]
# Fraction of cash spent on a BUY signal
buy_fraction = 0.5
# Fraction of available shares sold on a SELL signal
sell_fraction = 0.5
# Spend a fixed amount per BUY instead of a fraction (0 disables)
fixed_amount = 0.0
# Kelly sizing from an earlier run's win rate and average win/loss
# (kelly_avg_loss = 0 disables)
kelly_win_rate = 0.0
kelly_avg_win = 0.0
kelly_avg_loss = 0.0
kelly_max_fraction = 0.25

[strategy]
# sma_crossover, rsi, macd, buy_and_hold
name = "sma_crossover"

[strategy.params]
fast = 5
slow = 20

[logging]
# debug, info, warn, error
level = "info"
console = true
file = false
# file_path = "~/.config/astock-backtest/logs/backtest.log"

[store]
# db_path = "~/.config/astock-backtest/backtest.db"
`

// Template returns the commented configuration template.
func Template() string {
	return configTemplate
}

// WriteTemplate writes the configuration template into configDir.
func WriteTemplate(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, ConfigFileName+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}
