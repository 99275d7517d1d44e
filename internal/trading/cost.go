package trading

import (
	"github.com/shopspring/decimal"

	"astock-backtest/internal/models"
)

// Cost is the priced outcome of one fill.
type Cost struct {
	ExecPrice  decimal.Decimal
	Gross      decimal.Decimal
	Commission decimal.Decimal
	Tax        decimal.Decimal
}

// CashDelta returns the signed change in cash for the given side.
func (c Cost) CashDelta(side models.OrderSide) decimal.Decimal {
	if side == models.OrderSideBuy {
		return c.Gross.Add(c.Commission).Neg()
	}
	return c.Gross.Sub(c.Commission).Sub(c.Tax)
}

// Fees returns commission plus tax.
func (c Cost) Fees() decimal.Decimal {
	return c.Commission.Add(c.Tax)
}

// ExecutionPrice applies slippage against the trader.
func ExecutionPrice(quoted decimal.Decimal, side models.OrderSide, rules MarketRules) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if side == models.OrderSideBuy {
		return quoted.Mul(one.Add(rules.SlippageRate))
	}
	return quoted.Mul(one.Sub(rules.SlippageRate))
}

// Commission returns max(notional * rate, floor).
func Commission(notional decimal.Decimal, rules MarketRules) decimal.Decimal {
	return decimal.Max(notional.Mul(rules.CommissionRate), rules.MinCommission)
}

// Tax returns the transfer tax, charged on sells only.
func Tax(notional decimal.Decimal, side models.OrderSide, rules MarketRules) decimal.Decimal {
	if side != models.OrderSideSell {
		return decimal.Zero
	}
	return notional.Mul(rules.TaxRate)
}

// PriceFill computes the cost of filling qty shares at a quoted price.
func PriceFill(quoted decimal.Decimal, qty int64, side models.OrderSide, rules MarketRules) Cost {
	exec := ExecutionPrice(quoted, side, rules)
	gross := exec.Mul(decimal.NewFromInt(qty))
	return Cost{
		ExecPrice:  exec,
		Gross:      gross,
		Commission: Commission(gross, rules),
		Tax:        Tax(gross, side, rules),
	}
}
