package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade represents one executed buy or sell. Trades are append-only and
// never modified after they are recorded.
type Trade struct {
	Period     int             `json:"period"`
	Timestamp  time.Time       `json:"timestamp"`
	Symbol     string          `json:"symbol"`
	Side       OrderSide       `json:"side"`
	Price      decimal.Decimal `json:"price"` // execution price after slippage
	Quantity   int64           `json:"quantity"`
	Gross      decimal.Decimal `json:"gross"`
	Commission decimal.Decimal `json:"commission"`
	Tax        decimal.Decimal `json:"tax"`
	Reason     string          `json:"reason"`
}

// CashDelta returns the signed change in cash caused by the trade.
func (t Trade) CashDelta() decimal.Decimal {
	if t.Side == OrderSideBuy {
		return t.Gross.Add(t.Commission).Neg()
	}
	return t.Gross.Sub(t.Commission).Sub(t.Tax)
}

// Position represents an open holding in one instrument.
type Position struct {
	Symbol      string          `json:"symbol"`
	Quantity    int64           `json:"quantity"`
	AvgCost     decimal.Decimal `json:"avg_cost"`
	Available   int64           `json:"available"` // settled quantity that may be sold
	EntryPeriod int             `json:"entry_period"`
	EntryTime   time.Time       `json:"entry_time"`
}

// Pending returns the quantity still waiting for settlement.
func (p Position) Pending() int64 {
	return p.Quantity - p.Available
}
