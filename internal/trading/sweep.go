package trading

import (
	"context"
	"sort"

	"github.com/sourcegraph/conc/pool"

	"astock-backtest/internal/logging"
	"astock-backtest/internal/models"
)

// SweepCase is one independent run of a sweep.
type SweepCase struct {
	Name     string
	Config   BacktestConfig
	Strategy Strategy
}

// SweepResult is the outcome of one case.
type SweepResult struct {
	Name   string
	Result *BacktestResult
	Err    error

	index int
}

// Sweep runs every case over the same candles with at most workers runs in
// flight. Each run builds its own ledgers. Results come back sorted by
// Sharpe ratio, highest first; failed cases sort last. Cancelling ctx stops
// new runs from starting; runs already started complete.
func Sweep(ctx context.Context, symbol string, candles []models.Candle, cases []SweepCase, workers int) ([]SweepResult, error) {
	if workers < 1 {
		workers = 1
	}

	p := pool.NewWithResults[SweepResult]().
		WithContext(ctx).
		WithMaxGoroutines(workers)

	for i, c := range cases {
		i, c := i, c
		p.Go(func(ctx context.Context) (SweepResult, error) {
			out := SweepResult{Name: c.Name, index: i}
			if err := ctx.Err(); err != nil {
				out.Err = err
				return out, nil
			}
			cfg := c.Config
			cfg.Logger = logging.WithRun(cfg.Logger, c.Name)
			driver, err := NewDriver(cfg, c.Strategy)
			if err != nil {
				out.Err = err
				return out, nil
			}
			out.Result, out.Err = driver.Run(symbol, candles)
			return out, nil
		})
	}

	results, err := p.Wait()
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if (a.Err == nil) != (b.Err == nil) {
			return a.Err == nil
		}
		if a.Err == nil {
			sa, sb := a.Result.Performance.SharpeRatio, b.Result.Performance.SharpeRatio
			if sa != sb {
				return sa > sb
			}
		}
		return a.index < b.index
	})
	return results, ctx.Err()
}

// StrategyComparison represents a comparison of strategy performance.
type StrategyComparison struct {
	Strategy        string
	TotalReturnPct  float64
	AnnualReturnPct float64
	WinRate         float64
	MaxDrawdownPct  float64
	SharpeRatio     float64
	SortinoRatio    float64
	TotalTrades     int
	ProfitFactor    float64
	Rejections      int
	Err             error
}

// CompareStrategies flattens sweep results for tabular display, keeping
// their order.
func CompareStrategies(results []SweepResult) []StrategyComparison {
	comparisons := make([]StrategyComparison, 0, len(results))
	for _, r := range results {
		c := StrategyComparison{Strategy: r.Name, Err: r.Err}
		if r.Result != nil {
			p := r.Result.Performance
			c.TotalReturnPct = p.TotalReturnPct
			c.AnnualReturnPct = p.AnnualReturn
			c.WinRate = p.WinRate
			c.MaxDrawdownPct = p.MaxDrawdownPct
			c.SharpeRatio = p.SharpeRatio
			c.SortinoRatio = p.SortinoRatio
			c.TotalTrades = p.TotalTrades
			c.ProfitFactor = float64(p.ProfitFactor)
			c.Rejections = r.Result.Rejections
		}
		comparisons = append(comparisons, c)
	}
	return comparisons
}
