package strategy

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

var (
	// ErrInsufficientData is returned when there are fewer values than the
	// indicator's warm-up period.
	ErrInsufficientData = errors.New("insufficient data for calculation")
	// ErrInvalidPeriod is returned when a period is not positive.
	ErrInvalidPeriod = errors.New("invalid period")
)

// SMA returns the simple moving average of values. Entries before
// period-1 are zero.
func SMA(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(values) < period {
		return nil, ErrInsufficientData
	}

	result := make([]float64, len(values))
	var window float64
	for i, v := range values {
		window += v
		if i >= period {
			window -= values[i-period]
		}
		if i >= period-1 {
			result[i] = window / float64(period)
		}
	}
	return result, nil
}

// EMA returns the exponential moving average of values, seeded with the
// SMA of the first period values.
func EMA(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(values) < period {
		return nil, ErrInsufficientData
	}

	result := make([]float64, len(values))
	multiplier := 2.0 / float64(period+1)

	// First EMA is SMA
	result[period-1] = stat.Mean(values[:period], nil)
	for i := period; i < len(values); i++ {
		result[i] = (values[i]-result[i-1])*multiplier + result[i-1]
	}
	return result, nil
}

// RSI returns Wilder's relative strength index. Entries before period are
// zero; a window with no losses is 100.
func RSI(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(values) < period+1 {
		return nil, ErrInsufficientData
	}

	n := len(values)
	result := make([]float64, n)
	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	avgGain := stat.Mean(gains[1:period+1], nil)
	avgLoss := stat.Mean(losses[1:period+1], nil)
	result[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < n; i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
		result[i] = rsiValue(avgGain, avgLoss)
	}
	return result, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}

// MACDSeries holds the MACD line, its signal line and the histogram.
type MACDSeries struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
	// Start is the first index where all three are defined.
	Start int
}

// MACD returns fast EMA minus slow EMA and an EMA signal line over it.
func MACD(values []float64, fast, slow, signal int) (MACDSeries, error) {
	if fast <= 0 || slow <= 0 || signal <= 0 || fast >= slow {
		return MACDSeries{}, ErrInvalidPeriod
	}
	start := slow + signal - 2
	if len(values) <= start {
		return MACDSeries{}, ErrInsufficientData
	}

	fastEMA, err := EMA(values, fast)
	if err != nil {
		return MACDSeries{}, err
	}
	slowEMA, err := EMA(values, slow)
	if err != nil {
		return MACDSeries{}, err
	}

	n := len(values)
	out := MACDSeries{
		MACD:      make([]float64, n),
		Signal:    make([]float64, n),
		Histogram: make([]float64, n),
		Start:     start,
	}
	for i := slow - 1; i < n; i++ {
		out.MACD[i] = fastEMA[i] - slowEMA[i]
	}

	signalEMA, err := EMA(out.MACD[slow-1:], signal)
	if err != nil {
		return MACDSeries{}, err
	}
	for i, v := range signalEMA {
		out.Signal[slow-1+i] = v
	}
	for i := start; i < n; i++ {
		out.Histogram[i] = out.MACD[i] - out.Signal[i]
	}
	return out, nil
}

// Bands holds Bollinger bands around a moving average.
type Bands struct {
	Middle []float64
	Upper  []float64
	Lower  []float64
}

// Bollinger returns bands k population standard deviations around the
// period SMA.
func Bollinger(values []float64, period int, k float64) (Bands, error) {
	if period <= 0 || k <= 0 || math.IsNaN(k) {
		return Bands{}, ErrInvalidPeriod
	}
	if len(values) < period {
		return Bands{}, ErrInsufficientData
	}

	n := len(values)
	b := Bands{
		Middle: make([]float64, n),
		Upper:  make([]float64, n),
		Lower:  make([]float64, n),
	}
	for i := period - 1; i < n; i++ {
		window := values[i-period+1 : i+1]
		mean, variance := stat.PopMeanVariance(window, nil)
		sd := math.Sqrt(variance)
		b.Middle[i] = mean
		b.Upper[i] = mean + k*sd
		b.Lower[i] = mean - k*sd
	}
	return b, nil
}

// crossedAbove reports whether a moved from at or below b to above b at i.
func crossedAbove(a, b []float64, i int) bool {
	return i > 0 && a[i-1] <= b[i-1] && a[i] > b[i]
}

// crossedBelow reports whether a moved from at or above b to below b at i.
func crossedBelow(a, b []float64, i int) bool {
	return i > 0 && a[i-1] >= b[i-1] && a[i] < b[i]
}
