// Package trading provides the backtest accounting engine: cost model,
// position and cash ledgers, settlement, execution and the backtest driver.
package trading

import (
	"time"

	"github.com/rs/zerolog"

	"astock-backtest/internal/models"
	"astock-backtest/internal/performance"
)

// Strategy produces one signal per period from the price history up to and
// including that period.
type Strategy interface {
	Signal(period int, history []models.Candle) models.Signal
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(period int, history []models.Candle) models.Signal

// Signal implements Strategy.
func (f StrategyFunc) Signal(period int, history []models.Candle) models.Signal {
	return f(period, history)
}

// BacktestConfig represents backtesting configuration.
type BacktestConfig struct {
	Rules          MarketRules
	InitialCapital float64
	Sizing         SizingPolicy // nil uses DefaultSizer
	PeriodsPerYear int          // 0 uses 252
	RiskFreeRate   float64
	Benchmark      []float64 // optional, passed to the analyzer
	Logger         zerolog.Logger
}

// ReasonSignal and ReasonBacktestEnd label trades in the trade log.
const (
	ReasonSignal      = "signal"
	ReasonBacktestEnd = "backtest end"
)

// BacktestResult represents backtesting results.
type BacktestResult struct {
	Symbols          []string             `json:"symbols"`
	InitialCapital   float64              `json:"initial_capital"`
	FinalEquity      float64              `json:"final_equity"`
	StartTime        time.Time            `json:"start_time"`
	EndTime          time.Time            `json:"end_time"`
	Trades           []models.Trade       `json:"trades"`
	EquityCurve      []models.EquityPoint `json:"equity_curve"`
	Performance      performance.Report   `json:"performance"`
	Signals          map[string]int       `json:"signals"`
	Rejections       int                  `json:"rejections"`
	RejectionsByKind map[string]int       `json:"rejections_by_kind"`
	PriceGaps        int                  `json:"price_gaps"`
	Duration         time.Duration        `json:"duration"`
}
