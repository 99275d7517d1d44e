package store

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"astock-backtest/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "backtest.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// Property: saving candles and reading them back yields the same bars in
// time order.
func TestProperty_CandleRoundTripConsistency(t *testing.T) {
	store := newTestStore(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	symbols := []string{"600519", "000001", "300750", "601318", "688981"}
	seq := 0

	properties.Property("candle round-trip: save then retrieve produces equivalent data", prop.ForAll(
		func(symbolIdx int, count int, basePrice float64, baseVolume int64) bool {
			ctx := context.Background()
			seq++
			symbol := fmt.Sprintf("%s_%d", symbols[symbolIdx%len(symbols)], seq)

			candles := generateTestCandles(count, basePrice, baseVolume)
			if err := store.SaveCandles(ctx, symbol, DefaultTimeframe, candles); err != nil {
				t.Logf("Failed to save candles: %v", err)
				return false
			}

			retrieved, err := store.GetCandles(ctx, symbol, DefaultTimeframe, time.Time{}, time.Time{})
			if err != nil {
				t.Logf("Failed to get candles: %v", err)
				return false
			}
			if len(retrieved) != len(candles) {
				t.Logf("Count mismatch: expected %d, got %d", len(candles), len(retrieved))
				return false
			}
			for i := range candles {
				if !candlesEqual(candles[i], retrieved[i]) {
					t.Logf("Candle mismatch at index %d: original=%+v, retrieved=%+v", i, candles[i], retrieved[i])
					return false
				}
			}
			return true
		},
		gen.IntRange(0, len(symbols)-1),
		gen.IntRange(1, 30),
		gen.Float64Range(1.0, 2000.0),
		gen.Int64Range(100, 1000000),
	))

	properties.TestingRun(t)
}

// generateTestCandles creates daily bars with valid OHLC relationships.
func generateTestCandles(count int, basePrice float64, baseVolume int64) []models.Candle {
	candles := make([]models.Candle, count)
	baseTime := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	for i := 0; i < count; i++ {
		variation := float64(i%10) * 0.01 * basePrice
		open := basePrice + variation
		close := basePrice + variation*0.5
		candles[i] = models.Candle{
			Timestamp: baseTime.AddDate(0, 0, i),
			Open:      roundToDecimal(open, 2),
			High:      roundToDecimal(math.Max(open, close)*1.01, 2),
			Low:       roundToDecimal(math.Min(open, close)*0.99, 2),
			Close:     roundToDecimal(close, 2),
			Volume:    baseVolume + int64(i*1000),
		}
	}
	return candles
}

func roundToDecimal(val float64, places int) float64 {
	multiplier := math.Pow(10, float64(places))
	return math.Round(val*multiplier) / multiplier
}

// candlesEqual compares two candles; REAL columns round-trip float64 exactly.
func candlesEqual(a, b models.Candle) bool {
	return a.Timestamp.Equal(b.Timestamp) &&
		a.Open == b.Open &&
		a.High == b.High &&
		a.Low == b.Low &&
		a.Close == b.Close &&
		a.Volume == b.Volume
}
