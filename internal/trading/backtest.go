package trading

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "astock-backtest/internal/errors"
	"astock-backtest/internal/logging"
	"astock-backtest/internal/models"
	"astock-backtest/internal/performance"
)

// Driver runs a strategy over price series. A Driver holds no ledger state;
// every Run builds a fresh Engine, so one Driver can be reused.
type Driver struct {
	cfg      BacktestConfig
	strategy Strategy
	sizing   SizingPolicy
	logger   zerolog.Logger
}

// NewDriver validates the configuration and creates a driver.
func NewDriver(cfg BacktestConfig, strategy Strategy) (*Driver, error) {
	if strategy == nil {
		return nil, apperrors.NewValidationError("strategy", nil, "is required")
	}
	if err := cfg.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("market rules: %w", err)
	}
	if cfg.InitialCapital <= 0 || math.IsNaN(cfg.InitialCapital) || math.IsInf(cfg.InitialCapital, 0) {
		return nil, apperrors.NewValidationError("initial_capital", cfg.InitialCapital, "must be positive")
	}
	if cfg.PeriodsPerYear < 0 {
		return nil, apperrors.NewValidationError("periods_per_year", cfg.PeriodsPerYear, "must be positive")
	}
	if cfg.PeriodsPerYear == 0 {
		cfg.PeriodsPerYear = performance.DefaultOptions().PeriodsPerYear
	}

	sizing := cfg.Sizing
	if sizing == nil {
		sizing = DefaultSizer()
	}
	return &Driver{
		cfg:      cfg,
		strategy: strategy,
		sizing:   sizing,
		logger:   cfg.Logger,
	}, nil
}

// Run backtests one instrument.
func (d *Driver) Run(symbol string, candles []models.Candle) (*BacktestResult, error) {
	if symbol == "" {
		return nil, apperrors.NewValidationError("symbol", symbol, "is required")
	}
	return d.RunPool(map[string][]models.Candle{symbol: candles})
}

// RunPool backtests a pool of instruments whose series share timestamps.
// Each period the strategy is asked once per instrument, in symbol order.
func (d *Driver) RunPool(series map[string][]models.Candle) (*BacktestResult, error) {
	symbols, periods, err := alignSeries(series)
	if err != nil {
		return nil, err
	}

	engine, err := NewEngine(d.cfg.Rules, decimal.NewFromFloat(d.cfg.InitialCapital), d.logger)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	lead := series[symbols[0]]
	result := &BacktestResult{
		Symbols:          symbols,
		InitialCapital:   d.cfg.InitialCapital,
		StartTime:        lead[0].Timestamp,
		EndTime:          lead[periods-1].Timestamp,
		Signals:          make(map[string]int),
		RejectionsByKind: make(map[string]int),
	}

	// lastClose carries the most recent usable close per symbol so the run
	// can be closed out through a data gap on the final bar.
	lastClose := make(map[string]float64, len(symbols))
	last := periods - 1
	for t := 0; t < periods; t++ {
		at := lead[t].Timestamp
		for _, s := range symbols {
			if c := series[s][t].Close; usablePrice(c) {
				lastClose[s] = c
			}
		}

		if t > 0 {
			engine.AdvanceSettlement(t)
			for _, s := range symbols {
				engine.SetReferencePrice(s, series[s][t-1].Close)
			}
		}

		end := t + 1
		for _, s := range symbols {
			history := series[s][:end:end]
			signal := d.strategy.Signal(t, history)
			result.Signals[signal.Action.String()]++
			if err := d.act(engine, t, s, series[s][t], signal, result); err != nil {
				return nil, fmt.Errorf("period %d %s: %w", t, s, err)
			}
		}

		if t == last {
			for _, pos := range engine.Positions() {
				price, ok := lastClose[pos.Symbol]
				if !ok {
					return nil, apperrors.NewDataError("candles", pos.Symbol, "no usable close to liquidate at", apperrors.ErrIncompletePriceData)
				}
				if _, err := engine.Liquidate(t, at, pos.Symbol, price, ReasonBacktestEnd); err != nil {
					return nil, fmt.Errorf("liquidating %s: %w", pos.Symbol, err)
				}
			}
		}

		prices := make(map[string]float64, len(symbols))
		for _, s := range symbols {
			if c := series[s][t].Close; usablePrice(c) {
				prices[s] = c
			}
		}
		_, missing, err := engine.RecordEquity(t, at, prices)
		if err != nil {
			return nil, err
		}
		result.PriceGaps += len(missing)
	}

	result.Trades = engine.Trades()
	result.EquityCurve = engine.EquityCurve()
	result.FinalEquity = result.EquityCurve[len(result.EquityCurve)-1].Equity
	result.Performance = performance.Analyze(models.EquityValues(result.EquityCurve), result.Trades, performance.Options{
		PeriodsPerYear: d.cfg.PeriodsPerYear,
		RiskFreeRate:   d.cfg.RiskFreeRate,
		Benchmark:      d.cfg.Benchmark,
	})
	result.Duration = time.Since(started)

	logging.LogRunSummary(logging.WithSymbol(d.logger, strings.Join(symbols, ",")), periods, len(result.Trades), result.Rejections, result.FinalEquity, result.Duration)
	return result, nil
}

// act turns one signal into at most one engine call.
func (d *Driver) act(e *Engine, period int, symbol string, bar models.Candle, signal models.Signal, result *BacktestResult) error {
	pos, held := e.Position(symbol)
	ctx := SizingContext{
		Period:      period,
		Symbol:      symbol,
		Price:       bar.Close,
		Signal:      signal,
		Cash:        e.Cash(),
		Position:    pos,
		HasPosition: held,
	}
	reason := ReasonSignal + " " + signal.String()

	var err error
	switch signal.Action {
	case models.ActionBuy:
		size, ok := d.sizing.BuySize(ctx)
		if !ok {
			return nil
		}
		_, err = e.Buy(period, bar.Timestamp, symbol, bar.Close, size, reason)
	case models.ActionSell:
		size, ok := d.sizing.SellSize(ctx)
		if !ok {
			return nil
		}
		_, err = e.Sell(period, bar.Timestamp, symbol, bar.Close, size, reason)
	case models.ActionSellAll:
		_, err = e.Sell(period, bar.Timestamp, symbol, bar.Close, SellAll(), reason)
	default:
		return nil
	}
	return d.note(err, result)
}

// note counts rejections and passes every other error through.
func (d *Driver) note(err error, result *BacktestResult) error {
	if err == nil {
		return nil
	}
	if apperrors.IsRejection(err) {
		result.Rejections++
		result.RejectionsByKind[apperrors.RejectionKind(err)]++
		return nil
	}
	return err
}

func usablePrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

// alignSeries checks that every series is non-empty and shares the
// timestamps of the first symbol. Symbols are returned sorted.
func alignSeries(series map[string][]models.Candle) ([]string, int, error) {
	if len(series) == 0 {
		return nil, 0, fmt.Errorf("no price series: %w", apperrors.ErrInsufficientData)
	}
	symbols := make([]string, 0, len(series))
	for s := range series {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	lead := series[symbols[0]]
	if len(lead) == 0 {
		return nil, 0, apperrors.NewDataError("candles", symbols[0], "empty series", apperrors.ErrInsufficientData)
	}
	for _, s := range symbols[1:] {
		other := series[s]
		if len(other) != len(lead) {
			return nil, 0, apperrors.NewDataError("candles", s,
				fmt.Sprintf("%d bars, %s has %d", len(other), symbols[0], len(lead)), apperrors.ErrIncompletePriceData)
		}
		for i := range other {
			if !other[i].Timestamp.Equal(lead[i].Timestamp) {
				return nil, 0, apperrors.NewDataError("candles", s,
					fmt.Sprintf("bar %d at %s, %s at %s", i, other[i].Timestamp.Format(time.DateOnly),
						symbols[0], lead[i].Timestamp.Format(time.DateOnly)), apperrors.ErrIncompletePriceData)
			}
		}
	}
	return symbols, len(lead), nil
}
