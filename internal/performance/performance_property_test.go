package performance

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: for any positive equity curve, the drawdown percentage lies in
// [0, 100), the duration never exceeds n-1 periods and the absolute
// drawdown never exceeds the curve's peak.
func TestProperty_DrawdownBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("drawdown is bounded by the curve", prop.ForAll(
		func(equity []float64) bool {
			dd := MaxDrawdown(equity)
			if dd.Pct < 0 || dd.Pct >= 100 {
				t.Logf("pct out of range: %v", dd.Pct)
				return false
			}
			if len(equity) > 0 && dd.Duration > len(equity)-1 {
				t.Logf("duration %d for %d points", dd.Duration, len(equity))
				return false
			}
			var peak float64
			for _, v := range equity {
				if v > peak {
					peak = v
				}
			}
			return dd.Amount >= 0 && dd.Amount <= peak
		},
		gen.SliceOf(gen.Float64Range(1, 1e7)),
	))

	properties.TestingRun(t)
}

// Property: annualized return has the sign of total return.
func TestProperty_AnnualizedReturnSign(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("annualized and total return agree in sign", prop.ForAll(
		func(first, last float64, n int) bool {
			equity := make([]float64, n)
			for i := range equity {
				equity[i] = first
			}
			equity[n-1] = last

			total := TotalReturn(equity)
			annual := AnnualizedReturn(equity, 252)
			switch {
			case total > 0:
				return annual > 0
			case total < 0:
				return annual < 0
			default:
				return annual == 0
			}
		},
		gen.Float64Range(1000, 1e6),
		gen.Float64Range(1000, 1e6),
		gen.IntRange(2, 500),
	))

	properties.TestingRun(t)
}

// Property: win rate is in [0, 100] and wins plus losses equals round trips.
func TestProperty_TradeStatsCounts(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("counts add up", prop.ForAll(
		func(pnls []float64) bool {
			s := statsFromPnL(pnls)
			if s.WinningTrades+s.LosingTrades != len(pnls) {
				return false
			}
			if s.WinRate < 0 || s.WinRate > 100 {
				return false
			}
			return s.MaxConsecutiveWins <= s.WinningTrades && s.MaxConsecutiveLosses <= s.LosingTrades
		},
		gen.SliceOf(gen.Float64Range(-1000, 1000)),
	))

	properties.TestingRun(t)
}
