package performance

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"astock-backtest/internal/models"
)

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func trade(period int, side models.OrderSide, price float64, qty int64, commission, tax float64) models.Trade {
	p := decimal.NewFromFloat(price)
	return models.Trade{
		Period:     period,
		Symbol:     "600519",
		Side:       side,
		Price:      p,
		Quantity:   qty,
		Gross:      p.Mul(decimal.NewFromInt(qty)),
		Commission: decimal.NewFromFloat(commission),
		Tax:        decimal.NewFromFloat(tax),
	}
}

func TestMaxDrawdown(t *testing.T) {
	equity := []float64{100000, 105000, 98000, 102000}

	dd := MaxDrawdown(equity)
	if dd.Amount != 7000 {
		t.Errorf("Amount = %v, want 7000", dd.Amount)
	}
	if !approx(dd.Pct, 6.6667, 0.001) {
		t.Errorf("Pct = %v, want 6.67", dd.Pct)
	}
	if dd.Duration != 2 {
		t.Errorf("Duration = %d, want 2", dd.Duration)
	}
	if dd.Peak != 1 || dd.Trough != 2 {
		t.Errorf("Peak/Trough = %d/%d, want 1/2", dd.Peak, dd.Trough)
	}
}

func TestMaxDrawdownRecovered(t *testing.T) {
	dd := MaxDrawdown([]float64{100, 90, 95, 100, 110, 99, 120})
	// returning to the old peak ends the run
	if dd.Duration != 2 {
		t.Errorf("Duration = %d, want 2", dd.Duration)
	}
	if dd.Amount != 11 {
		t.Errorf("Amount = %v, want 11", dd.Amount)
	}
	if !approx(dd.Pct, 10, 1e-9) {
		t.Errorf("Pct = %v, want 10", dd.Pct)
	}

	if dd := MaxDrawdown([]float64{1, 2, 3}); dd.Amount != 0 || dd.Duration != 0 || dd.Pct != 0 {
		t.Errorf("rising curve has drawdown %+v", dd)
	}
}

func TestTradeStatsFromPairs(t *testing.T) {
	trades := []models.Trade{
		trade(0, models.OrderSideBuy, 10, 100, 0, 0),
		trade(1, models.OrderSideSell, 15, 100, 0, 0), // +500
		trade(2, models.OrderSideBuy, 10, 100, 0, 0),
		trade(3, models.OrderSideSell, 8, 100, 0, 0), // -200
		trade(4, models.OrderSideBuy, 10, 100, 0, 0),
		trade(6, models.OrderSideSell, 13, 100, 0, 0), // +300
	}

	realized := PairTrades(trades)
	if len(realized) != 3 {
		t.Fatalf("PairTrades() returned %d trades, want 3", len(realized))
	}
	want := []float64{500, -200, 300}
	for i, r := range realized {
		if !approx(r.PnL, want[i], 1e-9) {
			t.Errorf("trade %d PnL = %v, want %v", i, r.PnL, want[i])
		}
	}
	if realized[2].HoldingPeriods != 2 {
		t.Errorf("HoldingPeriods = %d, want 2", realized[2].HoldingPeriods)
	}

	stats := ComputeTradeStats(realized)
	if stats.WinningTrades != 2 || stats.LosingTrades != 1 {
		t.Errorf("wins/losses = %d/%d, want 2/1", stats.WinningTrades, stats.LosingTrades)
	}
	if !approx(stats.WinRate, 66.6667, 0.001) {
		t.Errorf("WinRate = %v, want 66.67", stats.WinRate)
	}
	if float64(stats.ProfitFactor) != 4 {
		t.Errorf("ProfitFactor = %v, want 4", stats.ProfitFactor)
	}
	if stats.MaxConsecutiveWins != 1 || stats.MaxConsecutiveLosses != 1 {
		t.Errorf("streaks = %d/%d, want 1/1", stats.MaxConsecutiveWins, stats.MaxConsecutiveLosses)
	}
	if stats.LargestWin != 500 || stats.LargestLoss != -200 {
		t.Errorf("largest win/loss = %v/%v", stats.LargestWin, stats.LargestLoss)
	}
	if stats.AvgWin != 400 || stats.AvgLoss != -200 {
		t.Errorf("avg win/loss = %v/%v", stats.AvgWin, stats.AvgLoss)
	}
}

func TestPairTradesUsesWeightedAverageCost(t *testing.T) {
	trades := []models.Trade{
		trade(0, models.OrderSideBuy, 10, 100, 5, 0),
		trade(1, models.OrderSideBuy, 20, 100, 5, 0),
		trade(2, models.OrderSideSell, 18, 100, 5, 1.8),
		trade(3, models.OrderSideBuy, 12, 100, 5, 0),
		trade(4, models.OrderSideSell, 14, 200, 5, 2.8),
	}

	realized := PairTrades(trades)
	if len(realized) != 2 {
		t.Fatalf("got %d realized trades, want 2", len(realized))
	}

	// avg 15, (18-15)*100 - 5 - 1.8
	if !approx(realized[0].PnL, 293.2, 1e-9) {
		t.Errorf("first PnL = %v, want 293.2", realized[0].PnL)
	}
	// remaining 100 @15 plus 100 @12 -> avg 13.5, (14-13.5)*200 - 5 - 2.8
	if !approx(realized[1].AvgCost, 13.5, 1e-9) {
		t.Errorf("second AvgCost = %v, want 13.5", realized[1].AvgCost)
	}
	if !approx(realized[1].PnL, 92.2, 1e-9) {
		t.Errorf("second PnL = %v, want 92.2", realized[1].PnL)
	}
}

func TestBreakEvenCountsAsLoss(t *testing.T) {
	stats := statsFromPnL([]float64{0, 100})
	if stats.LosingTrades != 1 || stats.WinningTrades != 1 {
		t.Errorf("wins/losses = %d/%d, want 1/1", stats.WinningTrades, stats.LosingTrades)
	}
	if !stats.ProfitFactor.IsInf() {
		t.Errorf("ProfitFactor = %v, want inf", stats.ProfitFactor)
	}

	empty := statsFromPnL(nil)
	if empty.ProfitFactor != 0 || empty.WinRate != 0 {
		t.Errorf("empty stats = %+v", empty)
	}
}

func TestZeroVarianceRatiosAreZero(t *testing.T) {
	flat := []float64{100000, 100000, 100000, 100000}
	returns := Returns(flat)

	if got := Sharpe(returns, 0.03, 252); got != 0 {
		t.Errorf("Sharpe = %v, want 0", got)
	}
	if got := Sortino(returns, 0.03, 252); got != 0 {
		t.Errorf("Sortino = %v, want 0", got)
	}
	if got := Volatility(returns, 252); got != 0 {
		t.Errorf("Volatility = %v, want 0", got)
	}
	if got := Sharpe([]float64{0.01}, 0, 252); got != 0 {
		t.Errorf("Sharpe with one return = %v, want 0", got)
	}
}

func TestSharpeAndSortino(t *testing.T) {
	returns := []float64{0.01, 0.02, -0.01, 0.03, -0.02}
	mean := 0.006
	// sample variance: sum((r-mean)^2)/4
	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / 4)

	want := mean / std * math.Sqrt(252)
	if got := Sharpe(returns, 0, 252); !approx(got, want, 1e-9) {
		t.Errorf("Sharpe = %v, want %v", got, want)
	}

	rf := 0.0252
	wantRF := (mean - rf/252) / std * math.Sqrt(252)
	if got := Sharpe(returns, rf, 252); !approx(got, wantRF, 1e-9) {
		t.Errorf("Sharpe with rf = %v, want %v", got, wantRF)
	}

	// downside {-0.01, -0.02}: mean -0.015, sample std sqrt(0.00005)
	downStd := math.Sqrt(0.00005)
	wantSortino := mean / downStd * math.Sqrt(252)
	if got := Sortino(returns, 0, 252); !approx(got, wantSortino, 1e-9) {
		t.Errorf("Sortino = %v, want %v", got, wantSortino)
	}

	if got := Sortino([]float64{0.01, 0.02, -0.01}, 0, 252); got != 0 {
		t.Errorf("Sortino with one negative return = %v, want 0", got)
	}
}

func TestReturnsAndAnnualization(t *testing.T) {
	equity := []float64{100, 110, 99}
	returns := Returns(equity)
	if len(returns) != 2 || !approx(returns[0], 0.1, 1e-12) || !approx(returns[1], -0.1, 1e-12) {
		t.Fatalf("Returns = %v", returns)
	}

	if got := TotalReturn(equity); !approx(got, -0.01, 1e-12) {
		t.Errorf("TotalReturn = %v, want -0.01", got)
	}

	curve := []float64{100, 105, 110, 121}
	want := math.Pow(1.21, 252.0/4) - 1
	if got := AnnualizedReturn(curve, 252); !approx(got, want, 1e-9) {
		t.Errorf("AnnualizedReturn = %v, want %v", got, want)
	}
}

func TestCalmar(t *testing.T) {
	if got := Calmar(20, 0); got != 0 {
		t.Errorf("Calmar with no drawdown = %v", got)
	}
	if got := Calmar(20, 10); got != 2 {
		t.Errorf("Calmar = %v, want 2", got)
	}
}

func TestOmegaAndTail(t *testing.T) {
	if got := Omega([]float64{0.01, 0.02}, 0); !got.IsInf() {
		t.Errorf("Omega with no losses = %v, want inf", got)
	}
	if got := Omega([]float64{0.03, -0.01, -0.02}, 0); !approx(float64(got), 1, 1e-12) {
		t.Errorf("Omega = %v, want 1", got)
	}
	if got := Omega(nil, 0); got != 0 {
		t.Errorf("Omega(nil) = %v", got)
	}

	if got := TailRatio([]float64{0.01, 0.01, 0.01}); !approx(got, 1, 1e-12) {
		t.Errorf("TailRatio of constant returns = %v, want 1", got)
	}
	if got := TailRatio([]float64{0, 0, 0}); got != 0 {
		t.Errorf("TailRatio with zero left tail = %v, want 0", got)
	}
}

func TestInformationRatioAgainstItself(t *testing.T) {
	returns := []float64{0.01, -0.02, 0.015}
	te, ir := InformationRatio(returns, returns, 252)
	if te != 0 || ir != 0 {
		t.Errorf("tracking itself: te=%v ir=%v, want 0/0", te, ir)
	}

	te, ir = InformationRatio([]float64{0.02, 0.01, 0.03}, []float64{0.01, 0.01, 0.01}, 252)
	if te <= 0 || ir <= 0 {
		t.Errorf("outperforming: te=%v ir=%v, want both positive", te, ir)
	}
}

func TestAnalyzeDegenerateInput(t *testing.T) {
	r := Analyze(nil, nil, DefaultOptions())
	if r.Periods != 0 || r.SharpeRatio != 0 || r.TotalReturnPct != 0 || r.ProfitFactor != 0 {
		t.Errorf("empty report = %+v", r)
	}

	r = Analyze([]float64{100000}, nil, DefaultOptions())
	if r.FinalEquity != 100000 || r.TotalReturnPct != 0 || r.MaxDrawdown != 0 {
		t.Errorf("single point report = %+v", r)
	}
}

func TestAnalyzeReport(t *testing.T) {
	equity := []float64{100000, 105000, 98000, 102000}
	trades := []models.Trade{
		trade(0, models.OrderSideBuy, 10, 1000, 5, 0),
		trade(3, models.OrderSideSell, 10.5, 1000, 5, 10.5),
	}
	r := Analyze(equity, trades, Options{PeriodsPerYear: 252, Benchmark: []float64{10, 10.2, 10.1, 10.4}})

	if r.MaxDrawdown != 7000 || r.MaxDrawdownDuration != 2 {
		t.Errorf("drawdown = %v/%d", r.MaxDrawdown, r.MaxDrawdownDuration)
	}
	if !approx(r.TotalReturnPct, 2, 1e-9) || r.TotalReturn != 2000 {
		t.Errorf("total return = %v (%v%%)", r.TotalReturn, r.TotalReturnPct)
	}
	if r.TotalTrades != 2 || r.BuyTrades != 1 || r.SellTrades != 1 || r.RoundTrips != 1 {
		t.Errorf("trade counts = %+v", r)
	}
	if !approx(r.TotalCommission, 10, 1e-9) || !approx(r.TotalTax, 10.5, 1e-9) {
		t.Errorf("fees = %v/%v", r.TotalCommission, r.TotalTax)
	}
	if !r.HasBenchmark {
		t.Errorf("benchmark not used")
	}
	if r.CalmarRatio == 0 {
		t.Errorf("Calmar should be set with a drawdown")
	}
}

func TestRatioJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		PF Ratio `json:"pf"`
		OK Ratio `json:"ok"`
	}{Inf, 1.5})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"pf":"inf","ok":1.5}` {
		t.Errorf("got %s", data)
	}

	var back struct {
		PF Ratio `json:"pf"`
		OK Ratio `json:"ok"`
	}
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !back.PF.IsInf() || back.OK != 1.5 {
		t.Errorf("round trip = %+v", back)
	}
}

// BenchmarkAnalyze benchmarks a ten-year daily report.
func BenchmarkAnalyze(b *testing.B) {
	equity := make([]float64, 2520)
	v := 1000000.0
	for i := range equity {
		v *= 1 + 0.001*math.Sin(float64(i))
		equity[i] = v
	}
	opts := DefaultOptions()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Analyze(equity, nil, opts)
	}
}
