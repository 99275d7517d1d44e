package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	apperrors "astock-backtest/internal/errors"
	"astock-backtest/internal/logging"
	"astock-backtest/internal/store"
)

func newImportCmd(app *App) *cobra.Command {
	var (
		path      string
		symbol    string
		timeframe string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a CSV price series into the store",
		Long: `Import bars from a CSV file with date, open, high, low, close and volume
columns. Bars already stored for the same timestamp are replaced.`,
		Example: `  backtester import --data 600519.csv
  backtester import --data prices.csv --symbol 000001 --timeframe 1d`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if path == "" {
				return apperrors.NewValidationError("data", path, "is required")
			}
			if symbol == "" {
				symbol = symbolFromPath(path)
			}
			symbol, err := store.NormalizeSymbol(symbol)
			if err != nil {
				return err
			}

			candles, err := readCandlesFile(path)
			if err != nil {
				return err
			}
			st, err := app.Store()
			if err != nil {
				return err
			}
			if err := st.SaveCandles(cmd.Context(), symbol, timeframe, candles); err != nil {
				return err
			}
			logger := logging.WithSymbol(app.Logger, symbol)
			logger.Info().Int("bars", len(candles)).Msg("Series imported")

			first, last := candles[0].Timestamp, candles[len(candles)-1].Timestamp
			if output.IsJSON() {
				return output.JSON(store.SeriesInfo{
					Symbol:    symbol,
					Timeframe: timeframe,
					Bars:      len(candles),
					First:     first,
					Last:      last,
				})
			}
			output.Success("✓ Imported %d bars of %s (%s to %s)", len(candles), symbol, FormatDate(first), FormatDate(last))
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "data", "", "CSV file to import")
	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "symbol (default: file name)")
	cmd.Flags().StringVar(&timeframe, "timeframe", store.DefaultTimeframe, "series timeframe")

	return cmd
}

func newSeriesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "series",
		Short: "List stored price series",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			st, err := app.Store()
			if err != nil {
				return err
			}
			series, err := st.ListSeries(cmd.Context())
			if err != nil {
				return err
			}

			if output.IsJSON() {
				if series == nil {
					series = []store.SeriesInfo{}
				}
				return output.JSON(series)
			}
			if len(series) == 0 {
				output.Dim("No series stored. Use 'backtester import' to add one.")
				return nil
			}

			table := NewTable(output, "SYMBOL", "TIMEFRAME", "BARS", "FIRST", "LAST")
			for _, s := range series {
				table.AddRow(s.Symbol, s.Timeframe, fmt.Sprintf("%d", s.Bars), FormatDate(s.First), FormatDate(s.Last))
			}
			table.Render()
			return nil
		},
	}
}
