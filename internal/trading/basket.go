package trading

import (
	"fmt"
	"sort"
	"time"

	apperrors "astock-backtest/internal/errors"
	"astock-backtest/internal/models"
)

// Basket is a named pool of instruments backtested together.
type Basket struct {
	Name   string
	Series map[string][]models.Candle
}

// NewBasket trims every series to the timestamps all of them share, so the
// pool can be run period by period. Bars outside the common set are dropped.
func NewBasket(name string, series map[string][]models.Candle) (*Basket, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("basket %s: %w", name, apperrors.ErrInsufficientData)
	}

	counts := make(map[time.Time]int)
	for _, candles := range series {
		seen := make(map[time.Time]bool, len(candles))
		for _, c := range candles {
			ts := c.Timestamp.UTC()
			if !seen[ts] {
				seen[ts] = true
				counts[ts]++
			}
		}
	}

	common := make(map[time.Time]bool)
	for ts, n := range counts {
		if n == len(series) {
			common[ts] = true
		}
	}
	if len(common) == 0 {
		return nil, fmt.Errorf("basket %s has no common dates: %w", name, apperrors.ErrInsufficientData)
	}

	trimmed := make(map[string][]models.Candle, len(series))
	for symbol, candles := range series {
		out := make([]models.Candle, 0, len(common))
		seen := make(map[time.Time]bool, len(common))
		for _, c := range candles {
			ts := c.Timestamp.UTC()
			if common[ts] && !seen[ts] {
				seen[ts] = true
				out = append(out, c)
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
		trimmed[symbol] = out
	}

	return &Basket{Name: name, Series: trimmed}, nil
}

// Symbols returns the basket's symbols, sorted.
func (b *Basket) Symbols() []string {
	symbols := make([]string, 0, len(b.Series))
	for s := range b.Series {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// Periods returns the number of common bars.
func (b *Basket) Periods() int {
	for _, candles := range b.Series {
		return len(candles)
	}
	return 0
}

// EqualWeightBenchmark returns an equal-weight index of the basket's closes,
// rebased to 1 at the first bar.
func (b *Basket) EqualWeightBenchmark() []float64 {
	n := b.Periods()
	if n == 0 {
		return nil
	}
	index := make([]float64, n)
	symbols := b.Symbols()
	for _, s := range symbols {
		candles := b.Series[s]
		base := candles[0].Close
		if base <= 0 {
			continue
		}
		for i, c := range candles {
			index[i] += c.Close / base / float64(len(symbols))
		}
	}
	return index
}

// Run backtests the basket with driver.
func (b *Basket) Run(driver *Driver) (*BacktestResult, error) {
	result, err := driver.RunPool(b.Series)
	if err != nil {
		return nil, fmt.Errorf("basket %s: %w", b.Name, err)
	}
	return result, nil
}
