package performance

import (
	"time"

	"github.com/shopspring/decimal"

	"astock-backtest/internal/models"
)

// RealizedTrade is one SELL matched against the weighted-average cost of the
// shares it closed.
type RealizedTrade struct {
	Symbol         string    `json:"symbol"`
	Period         int       `json:"period"`
	Timestamp      time.Time `json:"timestamp"`
	Quantity       int64     `json:"quantity"`
	AvgCost        float64   `json:"avg_cost"`
	ExitPrice      float64   `json:"exit_price"`
	PnL            float64   `json:"pnl"`
	ReturnPct      float64   `json:"return_pct"`
	HoldingPeriods int       `json:"holding_periods"`
}

// Win reports whether the trade made money. Break-even counts as a loss.
func (t RealizedTrade) Win() bool {
	return t.PnL > 0
}

type lotState struct {
	qty         int64
	avgCost     decimal.Decimal
	entryPeriod int
}

// PairTrades replays trades in order and returns the realized P&L of every
// SELL: (exit - avg cost) * qty - sell commission - sell tax. Buy commissions
// do not enter the cost basis. A SELL with no tracked shares is skipped.
func PairTrades(trades []models.Trade) []RealizedTrade {
	books := make(map[string]*lotState)
	var realized []RealizedTrade

	for _, t := range trades {
		book, ok := books[t.Symbol]
		if !ok {
			book = &lotState{}
			books[t.Symbol] = book
		}

		switch t.Side {
		case models.OrderSideBuy:
			if t.Quantity <= 0 {
				continue
			}
			if book.qty == 0 {
				book.avgCost = t.Price
				book.entryPeriod = t.Period
			} else {
				basis := book.avgCost.Mul(decimal.NewFromInt(book.qty)).Add(t.Price.Mul(decimal.NewFromInt(t.Quantity)))
				book.avgCost = basis.Div(decimal.NewFromInt(book.qty + t.Quantity))
			}
			book.qty += t.Quantity

		case models.OrderSideSell:
			if book.qty == 0 || t.Quantity <= 0 {
				continue
			}
			qty := t.Quantity
			if qty > book.qty {
				qty = book.qty
			}
			q := decimal.NewFromInt(qty)
			pnl := t.Price.Sub(book.avgCost).Mul(q).Sub(t.Commission).Sub(t.Tax)

			var retPct float64
			if cost := book.avgCost.Mul(q); cost.IsPositive() {
				retPct = pnl.Div(cost).InexactFloat64() * 100
			}

			realized = append(realized, RealizedTrade{
				Symbol:         t.Symbol,
				Period:         t.Period,
				Timestamp:      t.Timestamp,
				Quantity:       qty,
				AvgCost:        book.avgCost.InexactFloat64(),
				ExitPrice:      t.Price.InexactFloat64(),
				PnL:            pnl.InexactFloat64(),
				ReturnPct:      retPct,
				HoldingPeriods: t.Period - book.entryPeriod,
			})

			book.qty -= qty
			if book.qty == 0 {
				book.avgCost = decimal.Zero
			}
		}
	}
	return realized
}

// TradeStats summarizes realized trades.
type TradeStats struct {
	RoundTrips           int     `json:"round_trips"`
	WinningTrades        int     `json:"winning_trades"`
	LosingTrades         int     `json:"losing_trades"`
	WinRate              float64 `json:"win_rate"` // percent
	GrossProfit          float64 `json:"gross_profit"`
	GrossLoss            float64 `json:"gross_loss"` // positive magnitude
	ProfitFactor         Ratio   `json:"profit_factor"`
	AvgWin               float64 `json:"avg_win"`
	AvgLoss              float64 `json:"avg_loss"` // negative or zero
	LargestWin           float64 `json:"largest_win"`
	LargestLoss          float64 `json:"largest_loss"` // negative or zero
	MaxConsecutiveWins   int     `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	AvgHoldingPeriods    float64 `json:"avg_holding_periods"`
}

// ComputeTradeStats derives win/loss statistics from realized trades in
// trade order.
func ComputeTradeStats(realized []RealizedTrade) TradeStats {
	pnls := make([]float64, len(realized))
	var holding int
	for i, r := range realized {
		pnls[i] = r.PnL
		holding += r.HoldingPeriods
	}
	stats := statsFromPnL(pnls)
	if len(realized) > 0 {
		stats.AvgHoldingPeriods = float64(holding) / float64(len(realized))
	}
	return stats
}

func statsFromPnL(pnls []float64) TradeStats {
	var s TradeStats
	s.RoundTrips = len(pnls)

	var winStreak, lossStreak int
	for _, pnl := range pnls {
		if pnl > 0 {
			s.WinningTrades++
			s.GrossProfit += pnl
			if pnl > s.LargestWin {
				s.LargestWin = pnl
			}
			winStreak++
			lossStreak = 0
		} else {
			s.LosingTrades++
			s.GrossLoss += -pnl
			if pnl < s.LargestLoss {
				s.LargestLoss = pnl
			}
			lossStreak++
			winStreak = 0
		}
		if winStreak > s.MaxConsecutiveWins {
			s.MaxConsecutiveWins = winStreak
		}
		if lossStreak > s.MaxConsecutiveLosses {
			s.MaxConsecutiveLosses = lossStreak
		}
	}

	if total := s.WinningTrades + s.LosingTrades; total > 0 {
		s.WinRate = float64(s.WinningTrades) / float64(total) * 100
	}
	if s.WinningTrades > 0 {
		s.AvgWin = s.GrossProfit / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		s.AvgLoss = -s.GrossLoss / float64(s.LosingTrades)
	}

	switch {
	case s.GrossLoss > 0:
		s.ProfitFactor = Ratio(s.GrossProfit / s.GrossLoss)
	case s.WinningTrades > 0:
		s.ProfitFactor = Inf
	default:
		s.ProfitFactor = 0
	}
	return s
}
