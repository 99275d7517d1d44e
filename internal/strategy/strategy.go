// Package strategy provides reference strategies for the backtest driver and
// a registry that builds them by name.
package strategy

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	apperrors "astock-backtest/internal/errors"
	"astock-backtest/internal/trading"
)

// Params are strategy parameters as decoded from config or flags.
type Params map[string]interface{}

// Factory builds a strategy from params. Missing keys take defaults.
type Factory func(params Params) (trading.Strategy, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func init() {
	Register("sma_crossover", newSMACrossover)
	Register("rsi", newRSIReversion)
	Register("macd", newMACDCrossover)
	Register("bollinger", newBollingerReversion)
	Register("buy_and_hold", func(Params) (trading.Strategy, error) { return BuyAndHold{}, nil })
}

// Register adds or replaces a named factory.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = factory
}

// Names lists registered strategies in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the strategy registered under name.
func New(name string, params Params) (trading.Strategy, error) {
	registryMu.RLock()
	factory, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	registryMu.RUnlock()
	if !ok {
		return nil, apperrors.NewValidationError("strategy.name", name,
			fmt.Sprintf("unknown strategy (available: %s)", strings.Join(Names(), ", ")))
	}
	s, err := factory(params)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", name, err)
	}
	return s, nil
}

// Int returns params[key] as an int, or def when the key is absent.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, apperrors.NewValidationError(key, v, "must be a whole number")
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, apperrors.NewValidationError(key, v, "must be a whole number")
		}
		return i, nil
	default:
		return 0, apperrors.NewValidationError(key, v, "must be a whole number")
	}
}

// Float returns params[key] as a float64, or def when the key is absent.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, apperrors.NewValidationError(key, v, "must be a number")
		}
		return f, nil
	default:
		return 0, apperrors.NewValidationError(key, v, "must be a number")
	}
}

// ParseParams parses "key=value" pairs as given on the command line.
// Values stay strings; the typed getters convert them.
func ParseParams(pairs []string) (Params, error) {
	params := Params{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, apperrors.NewValidationError("param", pair, "expected key=value")
		}
		params[key] = strings.TrimSpace(value)
	}
	return params, nil
}

func positive(field string, v int) error {
	if v <= 0 {
		return apperrors.NewValidationError(field, v, "must be positive")
	}
	return nil
}

