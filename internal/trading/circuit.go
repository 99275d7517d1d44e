package trading

import (
	"github.com/shopspring/decimal"

	"astock-backtest/internal/models"
)

// CircuitStatus represents where a quote sits against the price-limit band.
type CircuitStatus string

const (
	CircuitNone     CircuitStatus = "NONE"
	CircuitUpperHit CircuitStatus = "UPPER_CIRCUIT"
	CircuitLowerHit CircuitStatus = "LOWER_CIRCUIT"
)

// PriceBand caps the per-period move relative to a reference price, usually
// the previous close. A zero side is disabled.
type PriceBand struct {
	LimitUp   decimal.Decimal
	LimitDown decimal.Decimal
}

// UpperLimit returns ref * (1 + LimitUp) and false if the upper side is disabled.
func (b PriceBand) UpperLimit(ref decimal.Decimal) (decimal.Decimal, bool) {
	if !b.LimitUp.IsPositive() || !ref.IsPositive() {
		return decimal.Zero, false
	}
	return ref.Mul(decimal.NewFromInt(1).Add(b.LimitUp)), true
}

// LowerLimit returns ref * (1 - LimitDown) and false if the lower side is disabled.
func (b PriceBand) LowerLimit(ref decimal.Decimal) (decimal.Decimal, bool) {
	if !b.LimitDown.IsPositive() || !ref.IsPositive() {
		return decimal.Zero, false
	}
	return ref.Mul(decimal.NewFromInt(1).Sub(b.LimitDown)), true
}

// Status classifies a quote against the band.
func (b PriceBand) Status(quoted, ref decimal.Decimal) CircuitStatus {
	if upper, ok := b.UpperLimit(ref); ok && quoted.GreaterThanOrEqual(upper) {
		return CircuitUpperHit
	}
	if lower, ok := b.LowerLimit(ref); ok && quoted.LessThanOrEqual(lower) {
		return CircuitLowerHit
	}
	return CircuitNone
}

// Blocks reports whether a quote at or through the band stops the given side.
// Buys stop at the upper limit and sells at the lower limit.
func (b PriceBand) Blocks(side models.OrderSide, quoted, ref decimal.Decimal) bool {
	switch b.Status(quoted, ref) {
	case CircuitUpperHit:
		return side == models.OrderSideBuy
	case CircuitLowerHit:
		return side == models.OrderSideSell
	default:
		return false
	}
}
