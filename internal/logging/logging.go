// Package logging provides structured logging functionality.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       false,
		FilePath:   filepath.Join(home, ".config", "astock-backtest", "logs", "backtest.log"),
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     30,
	}
}

// NewLogger creates a new logger with default configuration.
func NewLogger() zerolog.Logger {
	return NewLoggerWithConfig(DefaultLogConfig())
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
// Console output goes to stderr so stdout stays free for reports.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			FormatLevel: func(i interface{}) string {
				if ll, ok := i.(string); ok {
					switch ll {
					case "debug":
						return "\033[36mDBG\033[0m"
					case "info":
						return "\033[32mINF\033[0m"
					case "warn":
						return "\033[33mWRN\033[0m"
					case "error":
						return "\033[31mERR\033[0m"
					default:
						return ll
					}
				}
				return "???"
			},
		}
		writers = append(writers, consoleWriter)
	}

	// File writer with rotation
	if cfg.File && cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	return zerolog.New(writer).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()
}

// ParseLevel maps a config level name to a zerolog level. Unknown names
// fall back to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// WithSymbol adds a symbol to the logger context.
func WithSymbol(logger zerolog.Logger, symbol string) zerolog.Logger {
	return logger.With().Str("symbol", symbol).Logger()
}

// WithRun adds a run label to the logger context.
func WithRun(logger zerolog.Logger, run string) zerolog.Logger {
	return logger.With().Str("run", run).Logger()
}

// LogFill logs an executed buy or sell.
func LogFill(logger zerolog.Logger, period int, symbol, side string, qty int64, price, commission, tax decimal.Decimal, reason string) {
	logger.Info().
		Str("event", "fill").
		Int("period", period).
		Str("symbol", symbol).
		Str("side", side).
		Int64("quantity", qty).
		Str("price", price.StringFixed(4)).
		Str("commission", commission.StringFixed(2)).
		Str("tax", tax.StringFixed(2)).
		Str("reason", reason).
		Msg("Trade executed")
}

// LogRejection logs a refused buy or sell. Rejections are routine during a
// backtest so they go to debug.
func LogRejection(logger zerolog.Logger, period int, symbol, side, kind string, err error) {
	logger.Debug().
		Str("event", "rejection").
		Int("period", period).
		Str("symbol", symbol).
		Str("side", side).
		Str("kind", kind).
		Err(err).
		Msg("Trade rejected")
}

// LogIncompletePrice logs a held instrument with no mark price.
func LogIncompletePrice(logger zerolog.Logger, period int, symbol string) {
	logger.Warn().
		Str("event", "incomplete_price").
		Int("period", period).
		Str("symbol", symbol).
		Msg("No price for held position, marked at zero")
}

// LogRunSummary logs the outcome of a backtest run.
func LogRunSummary(logger zerolog.Logger, periods, trades, rejections int, finalEquity float64, duration time.Duration) {
	logger.Info().
		Str("event", "backtest_summary").
		Int("periods", periods).
		Int("trades", trades).
		Int("rejections", rejections).
		Float64("final_equity", finalEquity).
		Dur("duration", duration).
		Msg("Backtest completed")
}
