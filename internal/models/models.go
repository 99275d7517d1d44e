// Package models provides domain models for the backtesting engine.
package models

import (
	"time"
)

// OrderSide represents the side of a trade.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Candle represents OHLCV data for one period of one instrument.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Closes returns the close prices of a candle series.
func Closes(candles []Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}

// EquityPoint represents the mark-to-market equity at the end of a period.
type EquityPoint struct {
	Period    int       `json:"period"`
	Timestamp time.Time `json:"timestamp"`
	Cash      float64   `json:"cash"`
	Equity    float64   `json:"equity"`
}

// EquityValues returns the equity column of a curve.
func EquityValues(curve []EquityPoint) []float64 {
	values := make([]float64, len(curve))
	for i, p := range curve {
		values[i] = p.Equity
	}
	return values
}
