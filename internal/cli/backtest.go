package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"astock-backtest/internal/config"
	apperrors "astock-backtest/internal/errors"
	"astock-backtest/internal/models"
	"astock-backtest/internal/store"
	"astock-backtest/internal/strategy"
	"astock-backtest/internal/trading"
)

// seriesFlags selects price data either from CSV files or from the store.
type seriesFlags struct {
	data      []string
	symbols   []string
	timeframe string
	from      string
	to        string
}

func (f *seriesFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.data, "data", nil, "CSV file(s) with date,open,high,low,close,volume columns")
	cmd.Flags().StringSliceVarP(&f.symbols, "symbol", "s", nil, "symbol(s); paired with --data in order, or read from the store")
	cmd.Flags().StringVar(&f.timeframe, "timeframe", store.DefaultTimeframe, "stored series timeframe")
	cmd.Flags().StringVar(&f.from, "from", "", "first date to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "last date to include (YYYY-MM-DD)")
}

func (f *seriesFlags) dateRange() (from, to time.Time, err error) {
	if f.from != "" {
		if from, err = time.Parse(time.DateOnly, f.from); err != nil {
			return from, to, apperrors.NewValidationError("from", f.from, "expected YYYY-MM-DD")
		}
	}
	if f.to != "" {
		if to, err = time.Parse(time.DateOnly, f.to); err != nil {
			return from, to, apperrors.NewValidationError("to", f.to, "expected YYYY-MM-DD")
		}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return from, to, apperrors.NewValidationError("to", f.to, "is before --from")
	}
	return from, to, nil
}

// load returns the selected series keyed by symbol.
func (f *seriesFlags) load(ctx context.Context, app *App) (map[string][]models.Candle, error) {
	from, to, err := f.dateRange()
	if err != nil {
		return nil, err
	}

	series := make(map[string][]models.Candle)
	switch {
	case len(f.data) > 0:
		symbols := f.symbols
		if len(symbols) == 0 {
			for _, path := range f.data {
				symbols = append(symbols, symbolFromPath(path))
			}
		}
		if len(symbols) != len(f.data) {
			return nil, apperrors.NewValidationError("symbol", f.symbols,
				fmt.Sprintf("got %d symbols for %d data files", len(symbols), len(f.data)))
		}
		if symbols, err = normalizeSymbols(symbols); err != nil {
			return nil, err
		}
		for i, path := range f.data {
			candles, err := readCandlesFile(path)
			if err != nil {
				return nil, err
			}
			candles = filterRange(candles, from, to)
			if len(candles) == 0 {
				return nil, apperrors.NewDataError("candles", symbols[i], "no bars in range", apperrors.ErrInsufficientData)
			}
			series[symbols[i]] = candles
		}

	case len(f.symbols) > 0:
		symbols, err := normalizeSymbols(f.symbols)
		if err != nil {
			return nil, err
		}
		st, err := app.Store()
		if err != nil {
			return nil, err
		}
		for _, symbol := range symbols {
			candles, err := st.GetCandles(ctx, symbol, f.timeframe, from, to)
			if err != nil {
				return nil, err
			}
			series[symbol] = candles
		}

	default:
		return nil, apperrors.NewValidationError("data", nil, "--data or --symbol is required")
	}
	return series, nil
}

func normalizeSymbols(symbols []string) ([]string, error) {
	out := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		symbol, err := store.NormalizeSymbol(s)
		if err != nil {
			return nil, err
		}
		if seen[symbol] {
			return nil, apperrors.NewValidationError("symbol", symbol, "listed twice")
		}
		seen[symbol] = true
		out = append(out, symbol)
	}
	return out, nil
}

func readCandlesFile(path string) ([]models.Candle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	candles, err := store.LoadCandlesCSV(file)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return candles, nil
}

func loadReplay(app *App, path string) (strategy.Replay, error) {
	file, err := os.Open(path)
	if err != nil {
		return strategy.Replay{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	signals, err := store.LoadSignalsCSV(file)
	if err != nil {
		return strategy.Replay{}, fmt.Errorf("reading %s: %w", path, err)
	}
	replay := strategy.NewReplay(signals)
	app.Logger.Debug().Str("path", path).Int("signals", replay.Len()).Msg("Signals loaded")
	return replay, nil
}

func symbolFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// filterRange keeps bars in [from, to]; a zero bound is open.
func filterRange(candles []models.Candle, from, to time.Time) []models.Candle {
	if from.IsZero() && to.IsZero() {
		return candles
	}
	out := make([]models.Candle, 0, len(candles))
	for _, c := range candles {
		if !from.IsZero() && c.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && c.Timestamp.After(to) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// backtestConfig builds the driver configuration from the loaded config,
// optionally switching to another market preset.
func backtestConfig(app *App, preset string, capital float64) (trading.BacktestConfig, string, error) {
	market := app.Config.Market
	if preset != "" {
		m, ok := config.Preset(preset)
		if !ok {
			return trading.BacktestConfig{}, "", apperrors.NewValidationError("preset", preset,
				"unknown preset (known: "+strings.Join(config.PresetNames(), ", ")+")")
		}
		market = m
	}

	rules, err := trading.NewMarketRules(market)
	if err != nil {
		return trading.BacktestConfig{}, "", err
	}

	var sizing trading.SizingPolicy = trading.FractionSizer{
		BuyFraction:  app.Config.Sizing.BuyFraction,
		SellFraction: app.Config.Sizing.SellFraction,
	}
	if app.Config.Sizing.FixedAmount > 0 {
		sizing = trading.FixedAmountSizer{
			Amount:       app.Config.Sizing.FixedAmount,
			SellFraction: app.Config.Sizing.SellFraction,
		}
	}
	if s := app.Config.Sizing; s.KellyAvgLoss > 0 {
		sizing = trading.KellySizer{
			WinRate:      s.KellyWinRate,
			AvgWin:       s.KellyAvgWin,
			AvgLoss:      s.KellyAvgLoss,
			MaxFraction:  s.KellyMaxFraction,
			SellFraction: s.SellFraction,
		}
	}

	if capital <= 0 {
		capital = app.Config.Backtest.InitialCapital
	}
	return trading.BacktestConfig{
		Rules:          rules,
		InitialCapital: capital,
		Sizing:         sizing,
		PeriodsPerYear: app.Config.Backtest.PeriodsPerYear,
		RiskFreeRate:   app.Config.Backtest.RiskFreeRate,
		Logger:         app.Logger,
	}, market.Preset, nil
}

// strategyParams merges configured parameters, when name is the configured
// strategy, with --param overrides.
func strategyParams(app *App, name string, overrides []string) (strategy.Params, error) {
	params := strategy.Params{}
	if strings.EqualFold(name, app.Config.Strategy.Name) {
		for k, v := range app.Config.Strategy.Params {
			params[k] = v
		}
	}
	extra, err := strategy.ParseParams(overrides)
	if err != nil {
		return nil, err
	}
	for k, v := range extra {
		params[k] = v
	}
	return params, nil
}

// runBacktest runs one instrument directly and several as a basket
// benchmarked against their equal-weight index.
func runBacktest(cfg trading.BacktestConfig, strat trading.Strategy, series map[string][]models.Candle) (*trading.BacktestResult, error) {
	if len(series) == 1 {
		for symbol, candles := range series {
			cfg.Benchmark = models.Closes(candles)
			driver, err := trading.NewDriver(cfg, strat)
			if err != nil {
				return nil, err
			}
			return driver.Run(symbol, candles)
		}
	}

	basket, err := trading.NewBasket("pool", series)
	if err != nil {
		return nil, err
	}
	cfg.Benchmark = basket.EqualWeightBenchmark()
	driver, err := trading.NewDriver(cfg, strat)
	if err != nil {
		return nil, err
	}
	return basket.Run(driver)
}

func displayBacktestResults(output *Output, name string, r *trading.BacktestResult) {
	p := r.Performance

	output.Bold("Backtest Results: %s on %s", name, strings.Join(r.Symbols, ", "))
	output.Dim("%s to %s, %d periods, %s", FormatDate(r.StartTime), FormatDate(r.EndTime), p.Periods, FormatDuration(r.Duration))
	output.Println()

	output.Bold("Capital")
	output.Printf("  Start:            %s\n", FormatMoney(r.InitialCapital))
	output.Printf("  End:              %s\n", FormatMoney(r.FinalEquity))
	output.Printf("  Net Profit:       %s\n", output.FormatPnL(r.FinalEquity-r.InitialCapital))
	output.Printf("  Total Return:     %s\n", output.FormatPercent(p.TotalReturnPct))
	output.Printf("  Annual Return:    %s\n", output.FormatPercent(p.AnnualReturn))
	output.Println()

	output.Bold("Risk")
	output.Printf("  Volatility:       %.2f%%\n", p.Volatility*100)
	output.Printf("  Sharpe Ratio:     %.2f\n", p.SharpeRatio)
	output.Printf("  Sortino Ratio:    %.2f\n", p.SortinoRatio)
	output.Printf("  Calmar Ratio:     %.2f\n", p.CalmarRatio)
	output.Printf("  Omega Ratio:      %s\n", FormatRatio(p.OmegaRatio))
	output.Printf("  Max Drawdown:     %s (%d periods)\n", output.Red(fmt.Sprintf("%.2f%%", p.MaxDrawdownPct)), p.MaxDrawdownDuration)
	if p.HasBenchmark {
		output.Printf("  Tracking Error:   %.2f%%\n", p.TrackingError*100)
		output.Printf("  Information:      %.2f\n", p.InformationRatio)
	}
	output.Println()

	output.Bold("Trades")
	output.Printf("  Executed:         %d (%d buys, %d sells)\n", p.TotalTrades, p.BuyTrades, p.SellTrades)
	output.Printf("  Round Trips:      %d (%d won, %d lost)\n", p.RoundTrips, p.WinningTrades, p.LosingTrades)
	output.Printf("  Win Rate:         %.1f%%\n", p.WinRate)
	output.Printf("  Profit Factor:    %s\n", FormatRatio(p.ProfitFactor))
	output.Printf("  Avg Win:          %s\n", FormatMoney(p.AvgWin))
	output.Printf("  Avg Loss:         %s\n", FormatMoney(p.AvgLoss))
	output.Printf("  Largest Win:      %s\n", FormatMoney(p.LargestWin))
	output.Printf("  Largest Loss:     %s\n", FormatMoney(p.LargestLoss))
	output.Printf("  Avg Holding:      %.1f periods\n", p.AvgHoldingPeriods)
	output.Printf("  Commission:       %s\n", FormatMoney(p.TotalCommission))
	output.Printf("  Stamp Tax:        %s\n", FormatMoney(p.TotalTax))
	output.Println()

	if r.Rejections > 0 || r.PriceGaps > 0 {
		output.Bold("Rejections")
		kinds := make([]string, 0, len(r.RejectionsByKind))
		for k := range r.RejectionsByKind {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			output.Printf("  %-18s%d\n", k+":", r.RejectionsByKind[k])
		}
		if r.PriceGaps > 0 {
			output.Warning("  %d held positions had no mark price", r.PriceGaps)
		}
		output.Println()
	}

	output.Bold("Equity Curve")
	drawEquityCurve(output, models.EquityValues(r.EquityCurve))
}

func displayTrades(output *Output, trades []models.Trade) {
	table := NewTable(output, "#", "DATE", "SYMBOL", "SIDE", "PRICE", "QTY", "COMMISSION", "TAX", "REASON")
	for i, t := range trades {
		side := string(t.Side)
		if t.Side == models.OrderSideBuy {
			side = output.Green(side)
		} else {
			side = output.Red(side)
		}
		table.AddRow(
			fmt.Sprintf("%d", i+1),
			FormatDate(t.Timestamp),
			t.Symbol,
			side,
			t.Price.StringFixed(3),
			FormatQuantity(t.Quantity),
			t.Commission.StringFixed(2),
			t.Tax.StringFixed(2),
			t.Reason,
		)
	}
	table.Render()
}

// exportRun writes trades and equity CSV files when paths are given.
func exportRun(output *Output, tradesPath, equityPath string, trades []models.Trade, curve []models.EquityPoint) error {
	if tradesPath != "" {
		if err := writeFile(tradesPath, func(f *os.File) error { return store.WriteTradesCSV(f, trades) }); err != nil {
			return err
		}
		if !output.IsJSON() {
			output.Success("✓ Trades written to %s", tradesPath)
		}
	}
	if equityPath != "" {
		if err := writeFile(equityPath, func(f *os.File) error { return store.WriteEquityCSV(f, curve) }); err != nil {
			return err
		}
		if !output.IsJSON() {
			output.Success("✓ Equity curve written to %s", equityPath)
		}
	}
	return nil
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
