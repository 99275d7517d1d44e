// Package store provides persistence for price series and backtest runs.
package store

import (
	"context"
	"time"

	"astock-backtest/internal/models"
	"astock-backtest/internal/performance"
	"astock-backtest/internal/trading"
)

// DefaultTimeframe is the timeframe used for daily bars.
const DefaultTimeframe = "1d"

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Candles
	SaveCandles(ctx context.Context, symbol, timeframe string, candles []models.Candle) error
	GetCandles(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Candle, error)
	ListSeries(ctx context.Context) ([]SeriesInfo, error)

	// Backtest runs
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]RunSummary, error)
	GetRunTrades(ctx context.Context, id string) ([]models.Trade, error)
	GetRunEquity(ctx context.Context, id string) ([]models.EquityPoint, error)
	DeleteRun(ctx context.Context, id string) error

	// Lifecycle
	Close() error
}

// SeriesInfo describes one stored price series.
type SeriesInfo struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Bars      int       `json:"bars"`
	First     time.Time `json:"first"`
	Last      time.Time `json:"last"`
}

// RunSummary is the row shown when listing runs.
type RunSummary struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	Strategy       string    `json:"strategy"`
	Symbols        []string  `json:"symbols"`
	Preset         string    `json:"preset"`
	InitialCapital float64   `json:"initial_capital"`
	FinalEquity    float64   `json:"final_equity"`
	TotalReturnPct float64   `json:"total_return_pct"`
	SharpeRatio    float64   `json:"sharpe_ratio"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct"`
	TotalTrades    int       `json:"total_trades"`
}

// Run is a persisted backtest: its summary, parameters, full metrics and
// the trade log and equity curve.
type Run struct {
	RunSummary
	Params      map[string]interface{} `json:"params,omitempty"`
	StartTime   time.Time              `json:"start_time"`
	EndTime     time.Time              `json:"end_time"`
	Rejections  int                    `json:"rejections"`
	PriceGaps   int                    `json:"price_gaps"`
	Performance performance.Report     `json:"performance"`
	Trades      []models.Trade         `json:"trades,omitempty"`
	Equity      []models.EquityPoint   `json:"equity,omitempty"`
}

// RunFilter represents filters for listing runs.
type RunFilter struct {
	Strategy string
	Symbol   string
	Limit    int
}

// NewRun builds a Run from a finished backtest. The ID is assigned when the
// run is saved.
func NewRun(strategy, preset string, params map[string]interface{}, result *trading.BacktestResult) *Run {
	p := result.Performance
	return &Run{
		RunSummary: RunSummary{
			Strategy:       strategy,
			Symbols:        result.Symbols,
			Preset:         preset,
			InitialCapital: result.InitialCapital,
			FinalEquity:    result.FinalEquity,
			TotalReturnPct: p.TotalReturnPct,
			SharpeRatio:    p.SharpeRatio,
			MaxDrawdownPct: p.MaxDrawdownPct,
			TotalTrades:    p.TotalTrades,
		},
		Params:      params,
		StartTime:   result.StartTime,
		EndTime:     result.EndTime,
		Rejections:  result.Rejections,
		PriceGaps:   result.PriceGaps,
		Performance: p,
		Trades:      result.Trades,
		Equity:      result.EquityCurve,
	}
}
