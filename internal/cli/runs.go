package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	apperrors "astock-backtest/internal/errors"
	"astock-backtest/internal/store"
	"astock-backtest/internal/trading"
)

func newRunsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect saved backtest runs",
	}

	cmd.AddCommand(newRunsListCmd(app))
	cmd.AddCommand(newRunsShowCmd(app))
	cmd.AddCommand(newRunsDeleteCmd(app))
	cmd.AddCommand(newRunsExportCmd(app))
	return cmd
}

func newRunsListCmd(app *App) *cobra.Command {
	var filter store.RunFilter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if filter.Symbol != "" {
				symbol, err := store.NormalizeSymbol(filter.Symbol)
				if err != nil {
					return err
				}
				filter.Symbol = symbol
			}
			st, err := app.Store()
			if err != nil {
				return err
			}
			runs, err := st.ListRuns(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				if runs == nil {
					runs = []store.RunSummary{}
				}
				return output.JSON(runs)
			}
			if len(runs) == 0 {
				output.Dim("No saved runs. Use 'backtester run --save' to keep one.")
				return nil
			}

			table := NewTable(output, "ID", "CREATED", "STRATEGY", "SYMBOLS", "PRESET", "RETURN", "SHARPE", "MAX DD", "TRADES")
			for _, r := range runs {
				table.AddRow(
					r.ID,
					r.CreatedAt.Local().Format("2006-01-02 15:04"),
					r.Strategy,
					TruncateString(strings.Join(r.Symbols, ","), 24),
					r.Preset,
					output.FormatPercent(r.TotalReturnPct),
					fmt.Sprintf("%.2f", r.SharpeRatio),
					fmt.Sprintf("%.2f%%", r.MaxDrawdownPct),
					fmt.Sprintf("%d", r.TotalTrades),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&filter.Strategy, "strategy", "", "only runs of this strategy")
	cmd.Flags().StringVarP(&filter.Symbol, "symbol", "s", "", "only runs including this symbol")
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 20, "maximum runs to list (0 for all)")
	return cmd
}

func newRunsShowCmd(app *App) *cobra.Command {
	var showTrades bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			run, err := loadRun(app, cmd, args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(run)
			}

			displayBacktestResults(output, run.Strategy, &trading.BacktestResult{
				Symbols:        run.Symbols,
				InitialCapital: run.InitialCapital,
				FinalEquity:    run.FinalEquity,
				StartTime:      run.StartTime,
				EndTime:        run.EndTime,
				Trades:         run.Trades,
				EquityCurve:    run.Equity,
				Performance:    run.Performance,
				Rejections:     run.Rejections,
				PriceGaps:      run.PriceGaps,
			})
			if len(run.Params) > 0 {
				output.Println()
				output.Dim("Params: %v", run.Params)
			}
			if showTrades {
				output.Println()
				output.Bold("Trade Log")
				displayTrades(output, run.Trades)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showTrades, "trades", false, "print the trade log")
	return cmd
}

func newRunsDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			st, err := app.Store()
			if err != nil {
				return err
			}
			if err := st.DeleteRun(cmd.Context(), args[0]); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"deleted": args[0]})
			}
			output.Success("✓ Deleted run %s", args[0])
			return nil
		},
	}
}

func newRunsExportCmd(app *App) *cobra.Command {
	var tradesOut, equityOut string

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a saved run's trades and equity curve to CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if tradesOut == "" && equityOut == "" {
				return apperrors.NewValidationError("trades-out", nil, "--trades-out or --equity-out is required")
			}
			run, err := loadRun(app, cmd, args[0])
			if err != nil {
				return err
			}
			if err := exportRun(output, tradesOut, equityOut, run.Trades, run.Equity); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"id": run.ID, "trades": tradesOut, "equity": equityOut})
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tradesOut, "trades-out", "", "trade log CSV path")
	cmd.Flags().StringVar(&equityOut, "equity-out", "", "equity curve CSV path")
	return cmd
}

func loadRun(app *App, cmd *cobra.Command, id string) (*store.Run, error) {
	if !store.ValidRunID(id) {
		return nil, apperrors.NewValidationError("id", id, "not a run id")
	}
	st, err := app.Store()
	if err != nil {
		return nil, err
	}
	return st.GetRun(cmd.Context(), id)
}
