package cli

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	apperrors "astock-backtest/internal/errors"
	"astock-backtest/internal/models"
	"astock-backtest/internal/performance"
	"astock-backtest/internal/strategy"
	"astock-backtest/internal/trading"
)

// sweepRow is one line of sweep output.
type sweepRow struct {
	Strategy        string  `json:"strategy"`
	TotalReturnPct  float64 `json:"total_return_pct"`
	AnnualReturnPct float64 `json:"annual_return_pct"`
	SharpeRatio     float64 `json:"sharpe_ratio"`
	SortinoRatio    float64 `json:"sortino_ratio"`
	MaxDrawdownPct  float64 `json:"max_drawdown_pct"`
	TotalTrades     int     `json:"total_trades"`
	WinRate         float64 `json:"win_rate"`
	ProfitFactor    string  `json:"profit_factor"`
	Rejections      int     `json:"rejections"`
	Error           string  `json:"error,omitempty"`
}

func newSweepCmd(app *App) *cobra.Command {
	var (
		series     seriesFlags
		strategies []string
		params     []string
		preset     string
		capital    float64
		workers    int
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Compare strategies on one instrument",
		Long: `Run several strategies over the same bars in parallel and rank them by
Sharpe ratio. Each run keeps its own ledgers. --param values are passed to
every strategy; keys a strategy does not use are ignored.`,
		Example: `  backtester sweep --data 600519.csv
  backtester sweep --data 600519.csv --strategies sma_crossover,macd --workers 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			data, err := series.load(ctx, app)
			if err != nil {
				return err
			}
			if len(data) != 1 {
				return apperrors.NewValidationError("symbol", series.symbols, "sweep takes exactly one instrument")
			}

			cfg, _, err := backtestConfig(app, preset, capital)
			if err != nil {
				return err
			}

			names := strategies
			if len(names) == 0 {
				names = strategy.Names()
			}
			cases := make([]trading.SweepCase, 0, len(names))
			for _, name := range names {
				p, err := strategyParams(app, name, params)
				if err != nil {
					return err
				}
				strat, err := strategy.New(name, p)
				if err != nil {
					return err
				}
				cases = append(cases, trading.SweepCase{Name: name, Config: cfg, Strategy: strat})
			}

			var symbol string
			for s := range data {
				symbol = s
			}
			candles := data[symbol]
			for i := range cases {
				cases[i].Config.Benchmark = models.Closes(candles)
			}

			results, err := trading.Sweep(ctx, symbol, candles, cases, workers)
			if err != nil {
				return err
			}
			rows := sweepRows(trading.CompareStrategies(results))

			if output.IsJSON() {
				return output.JSON(rows)
			}

			output.Bold("Strategy Comparison: %s (%d bars)", symbol, len(candles))
			output.Println()
			table := NewTable(output, "STRATEGY", "RETURN", "ANNUAL", "SHARPE", "SORTINO", "MAX DD", "TRADES", "WIN %", "PF", "REJ")
			for _, r := range rows {
				if r.Error != "" {
					table.AddRow(r.Strategy, output.Red("error: "+TruncateString(r.Error, 40)))
					continue
				}
				table.AddRow(
					r.Strategy,
					output.FormatPercent(r.TotalReturnPct),
					output.FormatPercent(r.AnnualReturnPct),
					fmt.Sprintf("%.2f", r.SharpeRatio),
					fmt.Sprintf("%.2f", r.SortinoRatio),
					fmt.Sprintf("%.2f%%", r.MaxDrawdownPct),
					fmt.Sprintf("%d", r.TotalTrades),
					fmt.Sprintf("%.1f", r.WinRate),
					r.ProfitFactor,
					fmt.Sprintf("%d", r.Rejections),
				)
			}
			table.Render()
			return nil
		},
	}

	series.register(cmd)
	cmd.Flags().StringSliceVar(&strategies, "strategies", nil, "strategies to compare (default: all registered)")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "strategy parameter key=value (repeatable)")
	cmd.Flags().StringVar(&preset, "preset", "", "market rule preset, overriding the config")
	cmd.Flags().Float64Var(&capital, "capital", 0, "initial capital (default from config)")
	cmd.Flags().IntVar(&workers, "workers", runtime.NumCPU(), "maximum runs in flight")

	return cmd
}

func sweepRows(comparisons []trading.StrategyComparison) []sweepRow {
	rows := make([]sweepRow, 0, len(comparisons))
	for _, c := range comparisons {
		row := sweepRow{Strategy: c.Strategy}
		if c.Err != nil {
			row.Error = c.Err.Error()
		} else {
			row.TotalReturnPct = c.TotalReturnPct
			row.AnnualReturnPct = c.AnnualReturnPct
			row.SharpeRatio = c.SharpeRatio
			row.SortinoRatio = c.SortinoRatio
			row.MaxDrawdownPct = c.MaxDrawdownPct
			row.TotalTrades = c.TotalTrades
			row.WinRate = c.WinRate
			row.ProfitFactor = FormatRatio(performance.Ratio(c.ProfitFactor))
			row.Rejections = c.Rejections
		}
		rows = append(rows, row)
	}
	return rows
}

func newStrategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List available strategies",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			names := strategy.Names()
			sort.Strings(names)
			if output.IsJSON() {
				return output.JSON(names)
			}
			output.Println(strings.Join(names, "\n"))
			return nil
		},
	}
}
