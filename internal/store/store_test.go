package store

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	apperrors "astock-backtest/internal/errors"
	"astock-backtest/internal/models"
	"astock-backtest/internal/performance"
	"astock-backtest/internal/trading"
)

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func sampleResult() *trading.BacktestResult {
	trades := []models.Trade{
		{
			Period: 0, Timestamp: day0, Symbol: "600519", Side: models.OrderSideBuy,
			Price: decimal.RequireFromString("10.01"), Quantity: 1000,
			Gross: decimal.RequireFromString("10010"), Commission: decimal.RequireFromString("5"),
			Tax: decimal.Zero, Reason: "signal BUY",
		},
		{
			Period: 2, Timestamp: day0.AddDate(0, 0, 2), Symbol: "600519", Side: models.OrderSideSell,
			Price: decimal.RequireFromString("10.989"), Quantity: 1000,
			Gross: decimal.RequireFromString("10989"), Commission: decimal.RequireFromString("5"),
			Tax: decimal.RequireFromString("10.989"), Reason: trading.ReasonBacktestEnd,
		},
	}
	curve := []models.EquityPoint{
		{Period: 0, Timestamp: day0, Cash: 89985, Equity: 99995},
		{Period: 1, Timestamp: day0.AddDate(0, 0, 1), Cash: 89985, Equity: 100485},
		{Period: 2, Timestamp: day0.AddDate(0, 0, 2), Cash: 100958.011, Equity: 100958.011},
	}
	return &trading.BacktestResult{
		Symbols:        []string{"600519"},
		InitialCapital: 100000,
		FinalEquity:    100958.011,
		StartTime:      day0,
		EndTime:        day0.AddDate(0, 0, 2),
		Trades:         trades,
		EquityCurve:    curve,
		Performance:    performance.Analyze(models.EquityValues(curve), trades, performance.DefaultOptions()),
		Rejections:     1,
	}
}

func TestSaveAndGetRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := NewRun("sma_crossover", "cn-a", map[string]interface{}{"fast": 5, "slow": 20}, sampleResult())
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	if !ValidRunID(run.ID) {
		t.Fatalf("SaveRun() assigned id %q", run.ID)
	}

	got, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Strategy != "sma_crossover" || got.Preset != "cn-a" || got.Rejections != 1 {
		t.Errorf("GetRun() = %+v", got.RunSummary)
	}
	if len(got.Symbols) != 1 || got.Symbols[0] != "600519" {
		t.Errorf("Symbols = %v", got.Symbols)
	}
	if got.Params["slow"] != float64(20) {
		t.Errorf("Params = %v", got.Params)
	}
	if got.Performance.TotalTrades != 2 || got.Performance.RoundTrips != 1 {
		t.Errorf("metrics not restored: %+v", got.Performance)
	}
	if !got.StartTime.Equal(day0) {
		t.Errorf("StartTime = %v", got.StartTime)
	}

	if len(got.Trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(got.Trades))
	}
	sell := got.Trades[1]
	if !sell.Price.Equal(decimal.RequireFromString("10.989")) || !sell.Tax.Equal(decimal.RequireFromString("10.989")) {
		t.Errorf("decimal columns lost precision: %+v", sell)
	}
	if sell.Side != models.OrderSideSell || sell.Reason != trading.ReasonBacktestEnd || !sell.Timestamp.Equal(day0.AddDate(0, 0, 2)) {
		t.Errorf("sell = %+v", sell)
	}

	if len(got.Equity) != 3 || got.Equity[2].Equity != 100958.011 {
		t.Errorf("equity = %+v", got.Equity)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := NewRun("rsi", "cn-a", nil, sampleResult())
	first.CreatedAt = day0
	second := NewRun("macd", "us", nil, sampleResult())
	second.CreatedAt = day0.Add(time.Hour)
	second.Symbols = []string{"AAPL", "MSFT"}

	for _, r := range []*Run{first, second} {
		if err := store.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
	}

	runs, err := store.ListRuns(ctx, RunFilter{})
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 || runs[0].ID != second.ID {
		t.Fatalf("ListRuns() = %+v, want newest first", runs)
	}

	runs, err = store.ListRuns(ctx, RunFilter{Symbol: "MSFT"})
	if err != nil {
		t.Fatalf("ListRuns(symbol) error = %v", err)
	}
	if len(runs) != 1 || runs[0].Strategy != "macd" {
		t.Errorf("symbol filter = %+v", runs)
	}

	runs, err = store.ListRuns(ctx, RunFilter{Strategy: "rsi", Limit: 5})
	if err != nil {
		t.Fatalf("ListRuns(strategy) error = %v", err)
	}
	if len(runs) != 1 || runs[0].ID != first.ID {
		t.Errorf("strategy filter = %+v", runs)
	}
}

func TestDeleteRunCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := NewRun("rsi", "cn-a", nil, sampleResult())
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	if err := store.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("DeleteRun() error = %v", err)
	}

	if _, err := store.GetRun(ctx, run.ID); !errors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("GetRun() after delete error = %v", err)
	}
	trades, err := store.GetRunTrades(ctx, run.ID)
	if err != nil || len(trades) != 0 {
		t.Errorf("trades after delete = %d, %v", len(trades), err)
	}
	if err := store.DeleteRun(ctx, run.ID); !errors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("second DeleteRun() error = %v", err)
	}
}

func TestCandlesRangeAndSeries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	candles := generateTestCandles(10, 100, 1000)
	if err := store.SaveCandles(ctx, "600519", DefaultTimeframe, candles); err != nil {
		t.Fatalf("SaveCandles() error = %v", err)
	}
	// Re-saving replaces instead of duplicating.
	if err := store.SaveCandles(ctx, "600519", DefaultTimeframe, candles[:3]); err != nil {
		t.Fatalf("SaveCandles() error = %v", err)
	}

	got, err := store.GetCandles(ctx, "600519", DefaultTimeframe, day0.AddDate(0, 0, 2), day0.AddDate(0, 0, 4))
	if err != nil {
		t.Fatalf("GetCandles() error = %v", err)
	}
	if len(got) != 3 || !got[0].Timestamp.Equal(day0.AddDate(0, 0, 2)) {
		t.Errorf("range = %d bars starting %v", len(got), got[0].Timestamp)
	}

	series, err := store.ListSeries(ctx)
	if err != nil {
		t.Fatalf("ListSeries() error = %v", err)
	}
	if len(series) != 1 || series[0].Bars != 10 || !series[0].First.Equal(day0) {
		t.Errorf("ListSeries() = %+v", series)
	}

	if _, err := store.GetCandles(ctx, "000001", DefaultTimeframe, time.Time{}, time.Time{}); !errors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("unknown symbol error = %v", err)
	}
}

func TestLoadCandlesCSV(t *testing.T) {
	input := "Trade_Date,Open,High,Low,Close,Vol\r\n" +
		"20240104,10.2,10.6,10.1,10.5,12000\r\n" +
		"20240102,10.0,10.3,9.9,10.1,10000\r\n" +
		"20240103,10.1,10.4,10.0,10.2,11000.0\r\n"

	candles, err := LoadCandlesCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadCandlesCSV() error = %v", err)
	}
	if len(candles) != 3 {
		t.Fatalf("bars = %d, want 3", len(candles))
	}
	if !candles[0].Timestamp.Equal(day0) || candles[0].Close != 10.1 {
		t.Errorf("first bar = %+v", candles[0])
	}
	if candles[1].Volume != 11000 || candles[2].High != 10.6 {
		t.Errorf("bars = %+v", candles)
	}
}

func TestLoadCandlesCSVDropsSuspendedDays(t *testing.T) {
	input := "date,open,high,low,close,volume\n" +
		"2024-01-02,10.0,10.3,9.9,10.1,10000\n" +
		"2024-01-03,NaN,NaN,NaN,NaN,0\n" +
		"2024-01-04,10.2,10.6,10.1,10.5,12000\n" +
		"2024-01-05,nan,nan,nan,nan,nan\n" +
		"2024-01-08,,,,,\n"

	candles, err := LoadCandlesCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadCandlesCSV() error = %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("bars = %d, want 2", len(candles))
	}
	for _, c := range candles {
		if math.IsNaN(c.Close) {
			t.Errorf("NaN bar kept: %+v", c)
		}
	}
	if !candles[1].Timestamp.Equal(day0.AddDate(0, 0, 2)) {
		t.Errorf("second bar at %v", candles[1].Timestamp)
	}
}

func TestLoadCandlesCSVErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty", "", apperrors.ErrInsufficientData},
		{"bad date", "date,open,high,low,close,volume\nyesterday,1,1,1,1,1\n", apperrors.ErrIncompletePriceData},
		{"duplicate", "date,open,high,low,close,volume\n2024-01-02,1,1,1,1,1\n2024-01-02,1,1,1,1,1\n", apperrors.ErrIncompletePriceData},
		{"infinite close", "date,open,high,low,close,volume\n2024-01-02,1,1,1,Inf,1\n", apperrors.ErrIncompletePriceData},
		{"partial NaN", "date,open,high,low,close,volume\n2024-01-02,NaN,1,1,1,1\n", apperrors.ErrIncompletePriceData},
		{"zero close", "date,open,high,low,close,volume\n2024-01-02,1,1,1,0,1\n", apperrors.ErrIncompletePriceData},
		{"all suspended", "date,open,high,low,close,volume\n2024-01-02,NaN,NaN,NaN,NaN,0\n", apperrors.ErrInsufficientData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCandlesCSV(strings.NewReader(tt.input))
			if !errors.Is(err, tt.want) {
				t.Errorf("LoadCandlesCSV() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestWriteTradesAndEquityCSV(t *testing.T) {
	result := sampleResult()

	var trades bytes.Buffer
	if err := WriteTradesCSV(&trades, result.Trades); err != nil {
		t.Fatalf("WriteTradesCSV() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(trades.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("trade csv lines = %d, want header + 2", len(lines))
	}
	if !strings.HasPrefix(lines[0], "period,date,symbol,side,price") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[2], "2024-01-04,600519,SELL,10.989,1000,10989.00,5.00,10.99") {
		t.Errorf("sell row = %q", lines[2])
	}

	var equity bytes.Buffer
	if err := WriteEquityCSV(&equity, result.EquityCurve); err != nil {
		t.Fatalf("WriteEquityCSV() error = %v", err)
	}
	lines = strings.Split(strings.TrimSpace(equity.String()), "\n")
	if len(lines) != 4 || lines[0] != "period,date,cash,equity" {
		t.Errorf("equity csv = %q", equity.String())
	}
}

func TestLoadSignalsCSV(t *testing.T) {
	input := "date,signal,strength\n" +
		"2024-01-02,BUY,0.4\n" +
		"2024-01-03,hold,\n" +
		"2024-01-04,sell_all,\n"

	signals, err := LoadSignalsCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadSignalsCSV() error = %v", err)
	}
	if len(signals) != 3 {
		t.Fatalf("signals = %d, want 3", len(signals))
	}
	if s := signals[day0]; s.Action != models.ActionBuy || s.Strength != 0.4 {
		t.Errorf("first signal = %+v", s)
	}
	if s := signals[day0.AddDate(0, 0, 2)]; s.Action != models.ActionSellAll {
		t.Errorf("last signal = %+v", s)
	}

	for name, bad := range map[string]string{
		"unknown action": "date,signal\n2024-01-02,HODL\n",
		"strength":       "date,signal,strength\n2024-01-02,BUY,1.5\n",
		"duplicate":      "date,signal\n2024-01-02,BUY\n2024-01-02,SELL\n",
		"date":           "date,signal\nsoon,BUY\n",
	} {
		if _, err := LoadSignalsCSV(strings.NewReader(bad)); !errors.Is(err, apperrors.ErrConfigInvalid) {
			t.Errorf("%s: error = %v", name, err)
		}
	}
}
