package cli

import (
	"github.com/spf13/cobra"

	apperrors "astock-backtest/internal/errors"
	"astock-backtest/internal/store"
	"astock-backtest/internal/strategy"
	"astock-backtest/internal/trading"
)

// replayStrategy names runs driven by a --signals file.
const replayStrategy = "replay"

// runOutput is the JSON document printed by run.
type runOutput struct {
	RunID    string                 `json:"run_id,omitempty"`
	Strategy string                 `json:"strategy"`
	Preset   string                 `json:"preset"`
	Params   map[string]interface{} `json:"params"`
	*trading.BacktestResult
}

func newRunCmd(app *App) *cobra.Command {
	var (
		series      seriesFlags
		name        string
		signalsPath string
		params     []string
		preset     string
		capital    float64
		save       bool
		showTrades bool
		tradesOut  string
		equityOut  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Backtest a strategy",
		Long: `Backtest a strategy over one instrument, or over several as a pool.

Prices come from CSV files (--data) or from series imported into the store
(--symbol without --data). Every position still open on the last bar is
sold at its last usable close, so the run ends in cash. --signals replays
BUY, SELL, SELL_ALL and HOLD decisions made by another tool.`,
		Example: `  backtester run --data 600519.csv
  backtester run --data 600519.csv --strategy rsi --param period=10 --param oversold=25
  backtester run --symbol 600519,000001 --preset cn-a --save
  backtester run --data 600519.csv --signals signals.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			var (
				strat trading.Strategy
				p     strategy.Params
				err   error
			)
			if signalsPath != "" {
				if name != "" || len(params) > 0 {
					return apperrors.NewValidationError("signals", signalsPath, "cannot be combined with --strategy or --param")
				}
				name = replayStrategy
				p = strategy.Params{"signals": signalsPath}
				if strat, err = loadReplay(app, signalsPath); err != nil {
					return err
				}
			} else {
				if name == "" {
					name = app.Config.Strategy.Name
				}
				if p, err = strategyParams(app, name, params); err != nil {
					return err
				}
				if strat, err = strategy.New(name, p); err != nil {
					return err
				}
			}

			cfg, presetName, err := backtestConfig(app, preset, capital)
			if err != nil {
				return err
			}
			data, err := series.load(ctx, app)
			if err != nil {
				return err
			}

			result, err := runBacktest(cfg, strat, data)
			if err != nil {
				return err
			}

			out := runOutput{Strategy: name, Preset: presetName, Params: p, BacktestResult: result}
			if save {
				st, err := app.Store()
				if err != nil {
					return err
				}
				run := store.NewRun(name, presetName, p, result)
				if err := st.SaveRun(ctx, run); err != nil {
					return err
				}
				out.RunID = run.ID
				app.Logger.Info().Str("run", run.ID).Str("strategy", name).Msg("Backtest saved")
			}

			if err := exportRun(output, tradesOut, equityOut, result.Trades, result.EquityCurve); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(out)
			}
			displayBacktestResults(output, name, result)
			if showTrades {
				output.Println()
				output.Bold("Trade Log")
				displayTrades(output, result.Trades)
			}
			if out.RunID != "" {
				output.Println()
				output.Success("✓ Saved as run %s", out.RunID)
			}
			return nil
		},
	}

	series.register(cmd)
	cmd.Flags().StringVar(&name, "strategy", "", "strategy name (default from config)")
	cmd.Flags().StringVar(&signalsPath, "signals", "", "replay a CSV of date,signal[,strength] rows instead of a strategy")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "strategy parameter key=value (repeatable)")
	cmd.Flags().StringVar(&preset, "preset", "", "market rule preset, overriding the config")
	cmd.Flags().Float64Var(&capital, "capital", 0, "initial capital (default from config)")
	cmd.Flags().BoolVar(&save, "save", false, "save the run to the store")
	cmd.Flags().BoolVar(&showTrades, "trades", false, "print the trade log")
	cmd.Flags().StringVar(&tradesOut, "trades-out", "", "write the trade log to a CSV file")
	cmd.Flags().StringVar(&equityOut, "equity-out", "", "write the equity curve to a CSV file")

	return cmd
}
