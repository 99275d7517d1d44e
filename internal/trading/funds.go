package trading

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	apperrors "astock-backtest/internal/errors"
	"astock-backtest/internal/models"
)

// Funds is the cash and equity ledger of one run. Cash never goes negative
// and the equity curve gets exactly one point per period, in order.
type Funds struct {
	initial decimal.Decimal
	cash    decimal.Decimal
	curve   []models.EquityPoint
}

// NewFunds creates a ledger holding the initial capital.
func NewFunds(initial decimal.Decimal) (*Funds, error) {
	if !initial.IsPositive() {
		return nil, apperrors.NewValidationError("initial_capital", initial, "must be positive")
	}
	return &Funds{initial: initial, cash: initial}, nil
}

// Initial returns the starting capital.
func (f *Funds) Initial() decimal.Decimal {
	return f.initial
}

// Cash returns the current cash balance.
func (f *Funds) Cash() decimal.Decimal {
	return f.cash
}

// CanAfford reports whether amount can be debited.
func (f *Funds) CanAfford(amount decimal.Decimal) bool {
	return amount.LessThanOrEqual(f.cash)
}

// Debit removes amount from cash, refusing to go negative.
func (f *Funds) Debit(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("debit of negative amount %s", amount)
	}
	if !f.CanAfford(amount) {
		return fmt.Errorf("need %s, have %s: %w", amount.StringFixed(2), f.cash.StringFixed(2), apperrors.ErrInsufficientFunds)
	}
	f.cash = f.cash.Sub(amount)
	return nil
}

// Credit adds amount to cash.
func (f *Funds) Credit(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("credit of negative amount %s", amount)
	}
	f.cash = f.cash.Add(amount)
	return nil
}

// RecordEquity appends the equity snapshot for a period. Periods must be
// strictly increasing.
func (f *Funds) RecordEquity(period int, at time.Time, positionValue decimal.Decimal) (models.EquityPoint, error) {
	if n := len(f.curve); n > 0 && period <= f.curve[n-1].Period {
		return models.EquityPoint{}, fmt.Errorf("equity for period %d after period %d: %w",
			period, f.curve[n-1].Period, apperrors.ErrPeriodOutOfOrder)
	}
	point := models.EquityPoint{
		Period:    period,
		Timestamp: at,
		Cash:      f.cash.InexactFloat64(),
		Equity:    f.cash.Add(positionValue).InexactFloat64(),
	}
	f.curve = append(f.curve, point)
	return point, nil
}

// Curve returns a copy of the equity curve.
func (f *Funds) Curve() []models.EquityPoint {
	out := make([]models.EquityPoint, len(f.curve))
	copy(out, f.curve)
	return out
}
