// Package performance computes return, risk and trade statistics for a
// finished backtest.
package performance

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"astock-backtest/internal/models"
)

// zeroVariance is the standard deviation below which a series is treated as
// constant.
const zeroVariance = 1e-12

// Options configures annualization and the benchmark.
type Options struct {
	PeriodsPerYear int
	RiskFreeRate   float64   // annual
	Benchmark      []float64 // optional benchmark equity or price curve
}

// DefaultOptions returns options for daily bars and a zero risk-free rate.
func DefaultOptions() Options {
	return Options{PeriodsPerYear: 252}
}

// Report is the flat result of Analyze. Percent fields are in percent units;
// drawdowns are positive magnitudes.
type Report struct {
	Periods        int     `json:"periods"`
	InitialEquity  float64 `json:"initial_equity"`
	FinalEquity    float64 `json:"final_equity"`
	TotalReturn    float64 `json:"total_return"`
	TotalReturnPct float64 `json:"total_return_pct"`
	AnnualReturn   float64 `json:"annual_return_pct"`

	Volatility   float64 `json:"volatility"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	SortinoRatio float64 `json:"sortino_ratio"`
	CalmarRatio  float64 `json:"calmar_ratio"`
	OmegaRatio   Ratio   `json:"omega_ratio"`
	TailRatio    float64 `json:"tail_ratio"`
	Skewness     float64 `json:"skewness"`
	Kurtosis     float64 `json:"kurtosis"`

	MaxDrawdown         float64 `json:"max_drawdown"`
	MaxDrawdownPct      float64 `json:"max_drawdown_pct"`
	MaxDrawdownDuration int     `json:"max_drawdown_duration"`

	HasBenchmark     bool    `json:"has_benchmark"`
	TrackingError    float64 `json:"tracking_error"`
	InformationRatio float64 `json:"information_ratio"`

	TotalTrades     int     `json:"total_trades"`
	BuyTrades       int     `json:"buy_trades"`
	SellTrades      int     `json:"sell_trades"`
	TotalCommission float64 `json:"total_commission"`
	TotalTax        float64 `json:"total_tax"`

	TradeStats
}

// Analyze computes the full report. It never fails: degenerate input
// yields zero values.
func Analyze(equity []float64, trades []models.Trade, opts Options) Report {
	ppy := opts.PeriodsPerYear
	if ppy <= 0 {
		ppy = DefaultOptions().PeriodsPerYear
	}

	r := Report{Periods: len(equity)}
	if len(equity) > 0 {
		r.InitialEquity = equity[0]
		r.FinalEquity = equity[len(equity)-1]
		r.TotalReturn = r.FinalEquity - r.InitialEquity
	}
	r.TotalReturnPct = TotalReturn(equity) * 100
	r.AnnualReturn = AnnualizedReturn(equity, ppy) * 100

	returns := Returns(equity)
	r.Volatility = Volatility(returns, ppy)
	r.SharpeRatio = Sharpe(returns, opts.RiskFreeRate, ppy)
	r.SortinoRatio = Sortino(returns, opts.RiskFreeRate, ppy)
	r.OmegaRatio = Omega(returns, 0)
	r.TailRatio = TailRatio(returns)
	r.Skewness = Skewness(returns)
	r.Kurtosis = Kurtosis(returns)

	dd := MaxDrawdown(equity)
	r.MaxDrawdown = dd.Amount
	r.MaxDrawdownPct = dd.Pct
	r.MaxDrawdownDuration = dd.Duration
	r.CalmarRatio = Calmar(r.AnnualReturn, dd.Pct)

	if len(opts.Benchmark) > 1 {
		r.HasBenchmark = true
		r.TrackingError, r.InformationRatio = InformationRatio(returns, Returns(opts.Benchmark), ppy)
	}

	r.TotalTrades = len(trades)
	for _, t := range trades {
		if t.Side == models.OrderSideBuy {
			r.BuyTrades++
		} else {
			r.SellTrades++
		}
		r.TotalCommission += t.Commission.InexactFloat64()
		r.TotalTax += t.Tax.InexactFloat64()
	}
	r.TradeStats = ComputeTradeStats(PairTrades(trades))
	return r
}

// TotalReturn returns last/first - 1 as a fraction.
func TotalReturn(equity []float64) float64 {
	if len(equity) < 2 || equity[0] <= 0 {
		return 0
	}
	return equity[len(equity)-1]/equity[0] - 1
}

// AnnualizedReturn returns (last/first)^(periodsPerYear/n) - 1 where n is
// the number of equity points.
func AnnualizedReturn(equity []float64, periodsPerYear int) float64 {
	n := len(equity)
	if n < 2 || equity[0] <= 0 || periodsPerYear <= 0 {
		return 0
	}
	growth := equity[n-1] / equity[0]
	if growth <= 0 {
		return -1
	}
	return math.Pow(growth, float64(periodsPerYear)/float64(n)) - 1
}

// Returns returns the simple period-over-period returns. The first period
// has none; a zero previous value is skipped.
func Returns(series []float64) []float64 {
	if len(series) < 2 {
		return nil
	}
	out := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		if series[i-1] == 0 {
			continue
		}
		out = append(out, series[i]/series[i-1]-1)
	}
	return out
}

func sampleStd(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	std := stat.StdDev(x, nil)
	if math.IsNaN(std) || std < zeroVariance {
		return 0
	}
	return std
}

// Volatility returns the annualized sample standard deviation of returns.
func Volatility(returns []float64, periodsPerYear int) float64 {
	return sampleStd(returns) * math.Sqrt(float64(periodsPerYear))
}

func meanExcess(returns []float64, riskFree float64, periodsPerYear int) float64 {
	perPeriod := riskFree / float64(periodsPerYear)
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - perPeriod
	}
	return stat.Mean(excess, nil)
}

// Sharpe returns mean(excess returns) / std(returns) * sqrt(periodsPerYear),
// or 0 with fewer than two returns or zero variance.
func Sharpe(returns []float64, riskFree float64, periodsPerYear int) float64 {
	std := sampleStd(returns)
	if std == 0 || periodsPerYear <= 0 {
		return 0
	}
	return meanExcess(returns, riskFree, periodsPerYear) / std * math.Sqrt(float64(periodsPerYear))
}

// Sortino is Sharpe with the standard deviation of negative returns as the
// denominator. It is 0 when fewer than two returns are negative.
func Sortino(returns []float64, riskFree float64, periodsPerYear int) float64 {
	if periodsPerYear <= 0 {
		return 0
	}
	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	std := sampleStd(downside)
	if std == 0 {
		return 0
	}
	return meanExcess(returns, riskFree, periodsPerYear) / std * math.Sqrt(float64(periodsPerYear))
}

// Drawdown describes the worst decline from a running maximum.
type Drawdown struct {
	Amount   float64 // positive magnitude
	Pct      float64 // positive, percent of the running maximum
	Duration int     // longest run of periods strictly below the running maximum
	Peak     int     // index of the peak before the deepest trough
	Trough   int     // index of the deepest trough
}

// MaxDrawdown scans the equity curve. An open drawdown at the end counts.
func MaxDrawdown(equity []float64) Drawdown {
	var dd Drawdown
	if len(equity) == 0 {
		return dd
	}

	runMax := equity[0]
	peakIdx := 0
	run := 0
	for i, v := range equity {
		if v > runMax {
			runMax = v
			peakIdx = i
		}
		if v < runMax {
			run++
			if run > dd.Duration {
				dd.Duration = run
			}
		} else {
			run = 0
		}

		drop := runMax - v
		if drop > dd.Amount {
			dd.Amount = drop
			dd.Peak = peakIdx
			dd.Trough = i
		}
		if runMax > 0 {
			if pct := drop / runMax * 100; pct > dd.Pct {
				dd.Pct = pct
			}
		}
	}
	return dd
}

// Calmar returns annualized return pct / |max drawdown pct|, 0 without a
// drawdown.
func Calmar(annualReturnPct, maxDrawdownPct float64) float64 {
	if maxDrawdownPct == 0 {
		return 0
	}
	return annualReturnPct / math.Abs(maxDrawdownPct)
}

// Omega returns gains over losses relative to threshold. It is +Inf with
// gains and no losses and 0 with neither.
func Omega(returns []float64, threshold float64) Ratio {
	if len(returns) == 0 {
		return 0
	}
	var gains, losses []float64
	for _, r := range returns {
		d := r - threshold
		switch {
		case d > 0:
			gains = append(gains, d)
		case d < 0:
			losses = append(losses, -d)
		}
	}
	g, l := floats.Sum(gains), floats.Sum(losses)
	if l == 0 {
		if g > 0 {
			return Inf
		}
		return 0
	}
	return Ratio(g / l)
}

// TailRatio returns |95th percentile| / |5th percentile| of returns.
func TailRatio(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	right := math.Abs(stat.Quantile(0.95, stat.LinInterp, sorted, nil))
	left := math.Abs(stat.Quantile(0.05, stat.LinInterp, sorted, nil))
	if left == 0 {
		return 0
	}
	return right / left
}

// Skewness returns the sample skewness, 0 with fewer than three returns.
func Skewness(returns []float64) float64 {
	if len(returns) < 3 || sampleStd(returns) == 0 {
		return 0
	}
	return finite(stat.Skew(returns, nil))
}

// Kurtosis returns the excess kurtosis, 0 with fewer than four returns.
func Kurtosis(returns []float64) float64 {
	if len(returns) < 4 || sampleStd(returns) == 0 {
		return 0
	}
	return finite(stat.ExKurtosis(returns, nil))
}

// InformationRatio compares returns with benchmark returns over their common
// leading length. It returns the annualized tracking error and the ratio.
func InformationRatio(returns, benchmark []float64, periodsPerYear int) (trackingError, ratio float64) {
	n := len(returns)
	if len(benchmark) < n {
		n = len(benchmark)
	}
	if n < 2 || periodsPerYear <= 0 {
		return 0, 0
	}
	active := make([]float64, n)
	for i := 0; i < n; i++ {
		active[i] = returns[i] - benchmark[i]
	}
	std := sampleStd(active)
	if std == 0 {
		return 0, 0
	}
	trackingError = std * math.Sqrt(float64(periodsPerYear))
	ratio = stat.Mean(active, nil) * float64(periodsPerYear) / trackingError
	return trackingError, ratio
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
