package trading

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	apperrors "astock-backtest/internal/errors"
	"astock-backtest/internal/models"
)

func makeCandles(closes ...float64) []models.Candle {
	candles := make([]models.Candle, len(closes))
	for i, c := range closes {
		candles[i] = models.Candle{
			Timestamp: day0.AddDate(0, 0, i),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1000000,
		}
	}
	return candles
}

// script returns a strategy that plays the given actions by period.
func script(actions map[int]models.Signal) Strategy {
	return StrategyFunc(func(period int, history []models.Candle) models.Signal {
		if s, ok := actions[period]; ok {
			return s
		}
		return models.Hold()
	})
}

func cnRules() MarketRules {
	return MarketRules{
		CommissionRate:  d("0.0003"),
		MinCommission:   d("5"),
		TaxRate:         d("0.001"),
		LimitUp:         d("0.1"),
		LimitDown:       d("0.1"),
		SettlementDelay: 1,
		LotSize:         100,
	}
}

func newTestDriver(t *testing.T, rules MarketRules, strategy Strategy) *Driver {
	t.Helper()
	driver, err := NewDriver(BacktestConfig{
		Rules:          rules,
		InitialCapital: 100000,
		Logger:         zerolog.Nop(),
	}, strategy)
	if err != nil {
		t.Fatalf("NewDriver() error = %v", err)
	}
	return driver
}

func TestDriverBuyAndHoldEndsInCash(t *testing.T) {
	candles := makeCandles(10, 10.5, 11, 10.8, 11.2)
	driver := newTestDriver(t, cnRules(), script(map[int]models.Signal{0: models.Buy()}))

	result, err := driver.Run("600519", candles)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(result.EquityCurve) != len(candles) {
		t.Fatalf("equity points = %d, want %d", len(result.EquityCurve), len(candles))
	}
	for i, p := range result.EquityCurve {
		if p.Period != i {
			t.Errorf("point %d has period %d", i, p.Period)
		}
	}

	if len(result.Trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(result.Trades))
	}
	buy, sell := result.Trades[0], result.Trades[1]
	if buy.Quantity != 5000 || buy.Side != models.OrderSideBuy {
		t.Errorf("buy = %+v, want 5000 shares (half the cash)", buy)
	}
	if sell.Reason != ReasonBacktestEnd || sell.Period != 4 || sell.Quantity != 5000 {
		t.Errorf("final trade = %+v", sell)
	}

	// 100000 - 50015 + (56000 - 16.8 - 56)
	if math.Abs(result.FinalEquity-105912.2) > 1e-6 {
		t.Errorf("FinalEquity = %v, want 105912.2", result.FinalEquity)
	}
	last := result.EquityCurve[len(result.EquityCurve)-1]
	if last.Cash != last.Equity {
		t.Errorf("last point not all cash: %+v", last)
	}
	if math.Abs(result.EquityCurve[0].Equity-99985) > 1e-6 {
		t.Errorf("first equity = %v, want 99985", result.EquityCurve[0].Equity)
	}
	if result.Rejections != 0 {
		t.Errorf("rejections = %d (%v)", result.Rejections, result.RejectionsByKind)
	}
	if result.Performance.RoundTrips != 1 || result.Performance.WinningTrades != 1 {
		t.Errorf("performance = %+v", result.Performance.TradeStats)
	}
}

func TestDriverAdvancesSettlementBeforeSignal(t *testing.T) {
	candles := makeCandles(10, 10, 10, 10)
	driver := newTestDriver(t, cnRules(), script(map[int]models.Signal{
		0: models.Buy(),
		1: models.SellAll(),
	}))

	result, err := driver.Run("600519", candles)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Trades) != 2 || result.Trades[1].Period != 1 || result.Trades[1].Reason == ReasonBacktestEnd {
		t.Errorf("trades = %+v, want sell at period 1 from the signal", result.Trades)
	}
}

func TestDriverCountsRejectionsAndContinues(t *testing.T) {
	rules := cnRules()
	rules.SettlementDelay = 2
	candles := makeCandles(10, 11, 10, 10, 10)
	driver := newTestDriver(t, rules, script(map[int]models.Signal{
		0: models.Buy(),
		1: models.Buy(),     // 11 is limit-up from 10
		2: models.SellAll(), // bought at 0, releases at 2
		3: models.Sell(),    // no position left
	}))

	result, err := driver.Run("600519", candles)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.RejectionsByKind["PriceLimitBlocked"] != 1 {
		t.Errorf("rejections = %v, want one PriceLimitBlocked", result.RejectionsByKind)
	}
	if result.RejectionsByKind["NoPosition"] != 1 {
		t.Errorf("rejections = %v, want one NoPosition", result.RejectionsByKind)
	}
	if result.Rejections != 2 {
		t.Errorf("Rejections = %d, want 2", result.Rejections)
	}
	if len(result.EquityCurve) != len(candles) {
		t.Errorf("run stopped early: %d points", len(result.EquityCurve))
	}
}

func TestDriverCallsStrategyOncePerPeriod(t *testing.T) {
	candles := makeCandles(10, 11, 12, 13, 14, 15)
	var calls []int
	strategy := StrategyFunc(func(period int, history []models.Candle) models.Signal {
		calls = append(calls, period)
		if len(history) != period+1 {
			t.Errorf("period %d got %d bars of history", period, len(history))
		}
		if history[len(history)-1].Close != candles[period].Close {
			t.Errorf("period %d history does not end at the current bar", period)
		}
		return models.Hold()
	})

	result, err := newTestDriver(t, cnRules(), strategy).Run("600519", candles)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(calls) != len(candles) {
		t.Fatalf("strategy called %d times, want %d", len(calls), len(candles))
	}
	for i, p := range calls {
		if p != i {
			t.Errorf("call %d for period %d", i, p)
		}
	}
	if result.Signals["HOLD"] != len(candles) {
		t.Errorf("signals = %v", result.Signals)
	}
	if result.FinalEquity != 100000 {
		t.Errorf("idle run changed equity to %v", result.FinalEquity)
	}
}

func TestDriverPriceGapIsSoft(t *testing.T) {
	rules := plainRules()
	candles := makeCandles(10, 10, 0, 10)
	driver := newTestDriver(t, rules, script(map[int]models.Signal{0: models.Buy()}))

	result, err := driver.Run("X", candles)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.PriceGaps != 1 {
		t.Errorf("PriceGaps = %d, want 1", result.PriceGaps)
	}
	gap := result.EquityCurve[2]
	if gap.Equity != gap.Cash {
		t.Errorf("unpriced position should add nothing: %+v", gap)
	}
	if len(result.Trades) != 2 {
		t.Errorf("trades = %d, want buy and final sell", len(result.Trades))
	}
}

func TestDriverReusableAcrossRuns(t *testing.T) {
	candles := makeCandles(10, 10.5, 11, 10.8, 11.2)
	driver := newTestDriver(t, cnRules(), script(map[int]models.Signal{0: models.Buy()}))

	first, err := driver.Run("600519", candles)
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	second, err := driver.Run("600519", candles)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if first.FinalEquity != second.FinalEquity || len(first.Trades) != len(second.Trades) {
		t.Errorf("runs differ: %v/%d vs %v/%d", first.FinalEquity, len(first.Trades), second.FinalEquity, len(second.Trades))
	}
}

func TestRunPool(t *testing.T) {
	series := map[string][]models.Candle{
		"B": makeCandles(20, 21, 22),
		"A": makeCandles(10, 10, 11),
	}
	var order []string
	strategy := StrategyFunc(func(period int, history []models.Candle) models.Signal {
		if period == 0 {
			if history[0].Close == 10 {
				order = append(order, "A")
			} else {
				order = append(order, "B")
			}
			return models.Buy()
		}
		return models.Hold()
	})

	result, err := newTestDriver(t, plainRules(), strategy).RunPool(series)
	if err != nil {
		t.Fatalf("RunPool() error = %v", err)
	}
	if len(order) != 2 || order[0] != "A" || order[1] != "B" {
		t.Errorf("strategy order = %v, want [A B]", order)
	}
	if len(result.Symbols) != 2 || result.Symbols[0] != "A" {
		t.Errorf("Symbols = %v", result.Symbols)
	}
	if len(result.Trades) != 4 {
		t.Errorf("trades = %d, want 2 buys and 2 liquidations", len(result.Trades))
	}
	last := result.EquityCurve[len(result.EquityCurve)-1]
	if last.Cash != last.Equity || len(result.EquityCurve) != 3 {
		t.Errorf("pool did not end in cash: %+v", last)
	}
}

func TestRunPoolRejectsMisalignedSeries(t *testing.T) {
	b := makeCandles(20, 21, 22)
	b[1].Timestamp = b[1].Timestamp.AddDate(0, 0, 7)
	series := map[string][]models.Candle{
		"A": makeCandles(10, 10, 11),
		"B": b,
	}
	_, err := newTestDriver(t, plainRules(), script(nil)).RunPool(series)
	if !errors.Is(err, apperrors.ErrIncompletePriceData) {
		t.Errorf("RunPool() error = %v, want ErrIncompletePriceData", err)
	}

	_, err = newTestDriver(t, plainRules(), script(nil)).Run("A", nil)
	if !errors.Is(err, apperrors.ErrInsufficientData) {
		t.Errorf("Run(empty) error = %v, want ErrInsufficientData", err)
	}
}

func TestNewDriverValidation(t *testing.T) {
	if _, err := NewDriver(BacktestConfig{Rules: plainRules(), InitialCapital: 1000}, nil); !errors.Is(err, apperrors.ErrConfigInvalid) {
		t.Errorf("nil strategy error = %v", err)
	}
	if _, err := NewDriver(BacktestConfig{Rules: plainRules(), InitialCapital: 0}, script(nil)); !errors.Is(err, apperrors.ErrConfigInvalid) {
		t.Errorf("zero capital error = %v", err)
	}
	bad := plainRules()
	bad.MinCommission = d("-1")
	if _, err := NewDriver(BacktestConfig{Rules: bad, InitialCapital: 1000}, script(nil)); !errors.Is(err, apperrors.ErrConfigInvalid) {
		t.Errorf("negative floor error = %v", err)
	}
}

func TestBasketTrimsToCommonDates(t *testing.T) {
	a := makeCandles(10, 11, 12, 13)
	b := makeCandles(20, 21, 22)
	b = append(b[:1], b[2:]...) // drop day 1

	basket, err := NewBasket("pool", map[string][]models.Candle{"A": a, "B": b})
	if err != nil {
		t.Fatalf("NewBasket() error = %v", err)
	}
	if basket.Periods() != 2 {
		t.Fatalf("Periods() = %d, want 2", basket.Periods())
	}
	if basket.Series["A"][1].Close != 12 {
		t.Errorf("A trimmed wrong: %+v", basket.Series["A"])
	}

	bench := basket.EqualWeightBenchmark()
	if len(bench) != 2 || bench[0] != 1 {
		t.Errorf("benchmark = %v", bench)
	}

	result, err := basket.Run(newTestDriver(t, plainRules(), script(nil)))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.EquityCurve) != 2 {
		t.Errorf("equity points = %d, want 2", len(result.EquityCurve))
	}
}

func TestSweepSortsBySharpe(t *testing.T) {
	candles := makeCandles(10, 10.2, 10.1, 10.4, 10.6, 10.5, 10.9, 11.2)
	base := BacktestConfig{Rules: plainRules(), InitialCapital: 100000, Logger: zerolog.Nop()}

	cases := []SweepCase{
		{Name: "idle", Config: base, Strategy: script(nil)},
		{Name: "long", Config: base, Strategy: script(map[int]models.Signal{0: models.Buy()})},
		{Name: "broken", Config: BacktestConfig{Rules: plainRules()}, Strategy: script(nil)},
	}

	results, err := Sweep(context.Background(), "X", candles, cases, 2)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if results[0].Name != "long" || results[1].Name != "idle" {
		t.Errorf("order = %s, %s, %s", results[0].Name, results[1].Name, results[2].Name)
	}
	if results[2].Name != "broken" || !errors.Is(results[2].Err, apperrors.ErrConfigInvalid) {
		t.Errorf("failed case = %+v", results[2])
	}

	table := CompareStrategies(results)
	if len(table) != 3 || table[0].Strategy != "long" || table[0].TotalTrades != 2 {
		t.Errorf("comparison = %+v", table)
	}
}

func TestSweepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	base := BacktestConfig{Rules: plainRules(), InitialCapital: 100000, Logger: zerolog.Nop()}
	results, err := Sweep(ctx, "X", makeCandles(10, 11), []SweepCase{
		{Name: "a", Config: base, Strategy: script(nil)},
		{Name: "b", Config: base, Strategy: script(nil)},
	}, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Sweep() error = %v, want context.Canceled", err)
	}
	for _, r := range results {
		if r.Result != nil {
			t.Errorf("case %s ran after cancellation", r.Name)
		}
	}
}

func TestDriverRunsThroughNaNBars(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name   string
		closes []float64
		script map[int]models.Signal
		trades int
		gaps   int
	}{
		{"hold over gap", []float64{10, nan, 10}, nil, 0, 0},
		{"held over gap", []float64{10, nan, 10.5, 10.6}, map[int]models.Signal{0: models.Buy()}, 2, 1},
		{"buy on gap", []float64{10, nan, 10.5}, map[int]models.Signal{1: models.Buy(), 2: models.Buy()}, 2, 0},
		{"gap on last bar", []float64{10, 10.2, 10.5, nan}, map[int]models.Signal{0: models.Buy()}, 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver := newTestDriver(t, plainRules(), script(tt.script))
			result, err := driver.Run("X", makeCandles(tt.closes...))
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if len(result.EquityCurve) != len(tt.closes) {
				t.Errorf("equity points = %d, want %d", len(result.EquityCurve), len(tt.closes))
			}
			if len(result.Trades) != tt.trades {
				t.Errorf("trades = %d, want %d", len(result.Trades), tt.trades)
			}
			if result.PriceGaps != tt.gaps {
				t.Errorf("PriceGaps = %d, want %d", result.PriceGaps, tt.gaps)
			}
			end := result.EquityCurve[len(result.EquityCurve)-1]
			if end.Equity != end.Cash {
				t.Errorf("run did not end in cash: %+v", end)
			}
		})
	}
}

func TestDriverLiquidatesAtLastUsableClose(t *testing.T) {
	candles := makeCandles(10, 10.2, 10.3, 0)
	driver := newTestDriver(t, plainRules(), script(map[int]models.Signal{0: models.Buy()}))

	result, err := driver.Run("X", candles)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Rejections != 0 {
		t.Errorf("rejections = %v", result.RejectionsByKind)
	}
	if len(result.Trades) != 2 {
		t.Fatalf("trades = %d, want buy and final sell", len(result.Trades))
	}
	sell := result.Trades[1]
	if sell.Side != models.OrderSideSell || sell.Reason != ReasonBacktestEnd || !sell.Price.Equal(d("10.3")) {
		t.Errorf("final sell = %+v", sell)
	}
	if sell.Period != 3 || !sell.Timestamp.Equal(candles[3].Timestamp) {
		t.Errorf("final sell at period %d %v", sell.Period, sell.Timestamp)
	}
	if result.FinalEquity <= 100000 {
		t.Errorf("FinalEquity = %v, want the 10 -> 10.3 gain", result.FinalEquity)
	}
}

func TestSweepLabelsLogsByRun(t *testing.T) {
	var buf bytes.Buffer
	base := BacktestConfig{Rules: plainRules(), InitialCapital: 100000, Logger: zerolog.New(&buf)}

	_, err := Sweep(context.Background(), "X", makeCandles(10, 11), []SweepCase{
		{Name: "idle", Config: base, Strategy: script(nil)},
	}, 1)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"run":"idle"`, `"symbol":"X"`, `"event":"backtest_summary"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
}
