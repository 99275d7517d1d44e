// Package trading provides trading operations and utilities.
package trading

import (
	"fmt"

	"github.com/shopspring/decimal"

	"astock-backtest/internal/config"
	apperrors "astock-backtest/internal/errors"
)

// MarketRules is the immutable rule set of one market. Rates are fractions.
type MarketRules struct {
	CommissionRate  decimal.Decimal
	MinCommission   decimal.Decimal
	SlippageRate    decimal.Decimal
	TaxRate         decimal.Decimal // sells only
	LimitUp         decimal.Decimal // 0 disables
	LimitDown       decimal.Decimal // 0 disables
	SettlementDelay int
	LotSize         int64
}

// NewMarketRules converts and validates a market configuration.
func NewMarketRules(cfg config.MarketConfig) (MarketRules, error) {
	if err := cfg.Validate(); err != nil {
		return MarketRules{}, fmt.Errorf("market rules: %w", err)
	}
	return MarketRules{
		CommissionRate:  decimal.NewFromFloat(cfg.CommissionRate),
		MinCommission:   decimal.NewFromFloat(cfg.MinCommission),
		SlippageRate:    decimal.NewFromFloat(cfg.SlippageRate),
		TaxRate:         decimal.NewFromFloat(cfg.TaxRate),
		LimitUp:         decimal.NewFromFloat(cfg.LimitUp),
		LimitDown:       decimal.NewFromFloat(cfg.LimitDown),
		SettlementDelay: cfg.SettlementDelay,
		LotSize:         cfg.LotSize,
	}, nil
}

// MustMarketRules is NewMarketRules for presets known to be valid.
func MustMarketRules(preset string) MarketRules {
	cfg, ok := config.Preset(preset)
	if !ok {
		panic(fmt.Sprintf("unknown market preset %q", preset))
	}
	rules, err := NewMarketRules(cfg)
	if err != nil {
		panic(err)
	}
	return rules
}

// Validate checks rules built directly rather than from configuration.
func (r MarketRules) Validate() error {
	one := decimal.NewFromInt(1)
	switch {
	case r.CommissionRate.IsNegative() || r.CommissionRate.GreaterThanOrEqual(one):
		return apperrors.NewValidationError("commission_rate", r.CommissionRate, "must be in [0, 1)")
	case r.MinCommission.IsNegative():
		return apperrors.NewValidationError("min_commission", r.MinCommission, "must be non-negative")
	case r.SlippageRate.IsNegative() || r.SlippageRate.GreaterThanOrEqual(one):
		return apperrors.NewValidationError("slippage_rate", r.SlippageRate, "must be in [0, 1)")
	case r.TaxRate.IsNegative() || r.TaxRate.GreaterThanOrEqual(one):
		return apperrors.NewValidationError("tax_rate", r.TaxRate, "must be in [0, 1)")
	case r.LimitUp.IsNegative() || r.LimitUp.GreaterThan(one):
		return apperrors.NewValidationError("limit_up", r.LimitUp, "must be in [0, 1]")
	case r.LimitDown.IsNegative() || r.LimitDown.GreaterThanOrEqual(one):
		return apperrors.NewValidationError("limit_down", r.LimitDown, "must be in [0, 1)")
	case r.SettlementDelay < 0:
		return apperrors.NewValidationError("settlement_delay", r.SettlementDelay, "must be non-negative")
	case r.LotSize < 1:
		return apperrors.NewValidationError("lot_size", r.LotSize, "must be at least 1")
	}
	return nil
}

// Band returns the price-limit band of the rules.
func (r MarketRules) Band() PriceBand {
	return PriceBand{LimitUp: r.LimitUp, LimitDown: r.LimitDown}
}
