package cli

import (
	"github.com/spf13/cobra"
)

func newExamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "Show common workflow examples",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			examples := []struct {
				title    string
				commands []string
			}{
				{
					title: "First Backtest",
					commands: []string{
						"backtester config init                    # Write ~/.config/astock-backtest/backtest.toml",
						"backtester run --data 600519.csv          # Configured strategy on one CSV",
						"backtester run --data 600519.csv --trades # Include the trade log",
					},
				},
				{
					title: "Tune a Strategy",
					commands: []string{
						"backtester strategies                     # List strategy names",
						"backtester run --data 600519.csv --strategy sma_crossover -p fast=10 -p slow=30",
						"backtester run --data 600519.csv --preset cn-star --capital 500000",
					},
				},
				{
					title: "Compare Strategies",
					commands: []string{
						"backtester sweep --data 600519.csv        # Every strategy, ranked by Sharpe",
						"backtester sweep --data 600519.csv --strategies rsi,macd --workers 2",
					},
				},
				{
					title: "Work from the Store",
					commands: []string{
						"backtester import --data 600519.csv       # Save bars under symbol 600519",
						"backtester series                         # List stored series",
						"backtester run -s 600519,000001 --from 2023-01-01 --save",
						"backtester runs list                      # Saved runs, newest first",
						"backtester runs show <id> --trades",
						"backtester runs export <id> --trades-out trades.csv --equity-out equity.csv",
					},
				},
			}

			if output.IsJSON() {
				out := make(map[string][]string, len(examples))
				for _, ex := range examples {
					out[ex.title] = ex.commands
				}
				return output.JSON(out)
			}

			output.Bold("Common Workflow Examples")
			output.Println()
			for _, ex := range examples {
				output.Info("%s", ex.title)
				for _, c := range ex.commands {
					output.Printf("  %s\n", c)
				}
				output.Println()
			}
			return nil
		},
	}
}
