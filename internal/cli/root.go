// Package cli provides the command-line interface for the backtester.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"astock-backtest/internal/config"
	"astock-backtest/internal/logging"
	"astock-backtest/internal/store"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2024-06-01"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	ConfigDir string

	store store.DataStore
}

// Store opens the SQLite store on first use.
func (a *App) Store() (store.DataStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	path := a.Config.Store.DBPath
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	a.Logger.Debug().Str("path", path).Msg("SQLite store initialized")
	a.store = s
	return s, nil
}

// Close releases the store if it was opened.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// NewRootCmd creates the root command for the CLI. A nil cfg is loaded from
// the --config directory before any command runs.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "backtester",
		Short: "Event-driven backtester for lot-based equity markets",
		Long: `backtester replays a trading strategy over historical bars under
market rules: commission with a floor, sell-side stamp tax, slippage,
price-limit bands, settlement delay (T+1) and lot sizes.

Use 'backtester run --help' to get started.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if app.Config == nil && cmd.Name() != "version" {
				dir, _ := cmd.Flags().GetString("config")
				loaded, err := config.Load(dir)
				if err != nil {
					return err
				}
				app.Config = loaded
				app.ConfigDir = dir
				app.Logger = logging.NewLoggerWithConfig(logConfig(loaded.Logging))
			}

			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/astock-backtest)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newSweepCmd(app))
	rootCmd.AddCommand(newStrategiesCmd())
	rootCmd.AddCommand(newImportCmd(app))
	rootCmd.AddCommand(newSeriesCmd(app))
	rootCmd.AddCommand(newRunsCmd(app))
	rootCmd.AddCommand(newExamplesCmd())

	return rootCmd
}

func logConfig(cfg config.LoggingConfig) logging.LogConfig {
	lc := logging.DefaultLogConfig()
	lc.Level = cfg.Level
	lc.Console = cfg.Console
	lc.File = cfg.File
	if cfg.FilePath != "" {
		lc.FilePath = cfg.FilePath
	}
	return lc
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("backtester v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View, validate and initialize the backtest.toml configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			path := configPath(app)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": path})
			}
			output.Println(path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented configuration template",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			dir := app.ConfigDir
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			path := filepath.Join(dir, config.ConfigFileName+".toml")

			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.WriteTemplate(dir); err != nil {
				return err
			}
			output.Success("✓ Wrote %s", path)
			return nil
		},
	}
	initCmd.Flags().Bool("force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)

	return cmd
}

func configPath(app *App) string {
	if app.Config != nil && app.Config.Path != "" {
		return app.Config.Path
	}
	dir := app.ConfigDir
	if dir == "" {
		dir = config.DefaultConfigDir()
	}
	return filepath.Join(dir, config.ConfigFileName+".toml")
}

func showConfig(output *Output, cfg *config.Config) {
	m := cfg.Market
	output.Bold("Market (%s)", m.Preset)
	output.Printf("  Commission:       %.4f%% (min %s)\n", m.CommissionRate*100, FormatMoney(m.MinCommission))
	output.Printf("  Stamp Tax:        %.4f%% (sells)\n", m.TaxRate*100)
	output.Printf("  Slippage:         %.4f%%\n", m.SlippageRate*100)
	output.Printf("  Price Band:       +%.0f%% / -%.0f%%\n", m.LimitUp*100, m.LimitDown*100)
	output.Printf("  Settlement:       T+%d\n", m.SettlementDelay)
	output.Printf("  Lot Size:         %d\n", m.LotSize)
	output.Println()

	output.Bold("Backtest")
	output.Printf("  Initial Capital:  %s\n", FormatMoney(cfg.Backtest.InitialCapital))
	output.Printf("  Periods/Year:     %d\n", cfg.Backtest.PeriodsPerYear)
	output.Printf("  Risk-free Rate:   %.2f%%\n", cfg.Backtest.RiskFreeRate*100)
	output.Println()

	output.Bold("Sizing")
	if cfg.Sizing.FixedAmount > 0 {
		output.Printf("  Buy:              fixed %s\n", FormatMoney(cfg.Sizing.FixedAmount))
	} else {
		output.Printf("  Buy:              %.0f%% of cash\n", cfg.Sizing.BuyFraction*100)
	}
	output.Printf("  Sell:             %.0f%% of available\n", cfg.Sizing.SellFraction*100)
	output.Println()

	output.Bold("Strategy")
	output.Printf("  Name:             %s\n", cfg.Strategy.Name)
	keys := make([]string, 0, len(cfg.Strategy.Params))
	for k := range cfg.Strategy.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		output.Printf("  %-17s %v\n", k+":", cfg.Strategy.Params[k])
	}
	output.Println()

	output.Bold("Storage")
	output.Printf("  Database:         %s\n", cfg.Store.DBPath)
	output.Printf("  Log Level:        %s\n", cfg.Logging.Level)
}
