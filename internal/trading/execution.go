package trading

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "astock-backtest/internal/errors"
	"astock-backtest/internal/logging"
	"astock-backtest/internal/models"
)

// Engine executes buys and sells against the ledgers of one run. Each call
// either applies every mutation and appends one trade, or changes nothing
// and returns a *errors.RejectionError.
type Engine struct {
	rules      MarketRules
	band       PriceBand
	positions  *PositionLedger
	funds      *Funds
	settlement *SettlementScheduler
	refPrices  map[string]decimal.Decimal
	trades     []models.Trade
	logger     zerolog.Logger
}

// NewEngine creates an engine with fresh ledgers.
func NewEngine(rules MarketRules, initialCash decimal.Decimal, logger zerolog.Logger) (*Engine, error) {
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("market rules: %w", err)
	}
	funds, err := NewFunds(initialCash)
	if err != nil {
		return nil, err
	}
	return &Engine{
		rules:      rules,
		band:       rules.Band(),
		positions:  NewPositionLedger(),
		funds:      funds,
		settlement: NewSettlementScheduler(rules.SettlementDelay),
		refPrices:  make(map[string]decimal.Decimal),
		logger:     logger,
	}, nil
}

// Rules returns the market rules.
func (e *Engine) Rules() MarketRules {
	return e.rules
}

// Cash returns the current cash balance.
func (e *Engine) Cash() decimal.Decimal {
	return e.funds.Cash()
}

// Position returns the open position for symbol.
func (e *Engine) Position(symbol string) (models.Position, bool) {
	return e.positions.Get(symbol)
}

// Positions returns all open positions sorted by symbol.
func (e *Engine) Positions() []models.Position {
	return e.positions.Snapshot()
}

// Trades returns a copy of the trade log.
func (e *Engine) Trades() []models.Trade {
	out := make([]models.Trade, len(e.trades))
	copy(out, e.trades)
	return out
}

// EquityCurve returns a copy of the recorded equity curve.
func (e *Engine) EquityCurve() []models.EquityPoint {
	return e.funds.Curve()
}

// PendingSettlement returns the quantity of symbol not yet sellable.
func (e *Engine) PendingSettlement(symbol string) int64 {
	return e.settlement.Pending(symbol)
}

// SetReferencePrice sets the price the limit band is measured from,
// normally the previous close.
// A non-positive or non-finite price clears the reference, so no band applies.
func (e *Engine) SetReferencePrice(symbol string, price float64) {
	ref, ok := quotePrice(price)
	if !ok {
		delete(e.refPrices, symbol)
		return
	}
	e.refPrices[symbol] = ref
}

// AdvanceSettlement releases purchases due at period. Repeated calls for the
// same period are no-ops.
func (e *Engine) AdvanceSettlement(period int) map[string]int64 {
	return e.settlement.Advance(period, e.positions)
}

// Buy buys symbol at the quoted price.
func (e *Engine) Buy(period int, at time.Time, symbol string, quoted float64, size BuySize, reason string) (models.Trade, error) {
	side := models.OrderSideBuy
	price, ok := quotePrice(quoted)
	if !ok {
		return models.Trade{}, e.reject(apperrors.ErrInvalidQuantity, period, symbol, side, fmt.Sprintf("quoted price %v", quoted))
	}

	qty := size.resolve(price, e.rules.LotSize)
	if qty <= 0 {
		return models.Trade{}, e.reject(apperrors.ErrInvalidQuantity, period, symbol, side,
			fmt.Sprintf("%s resolves to 0 with lot size %d", size, e.rules.LotSize))
	}

	if ref, ok := e.refPrices[symbol]; ok && e.band.Blocks(side, price, ref) {
		upper, _ := e.band.UpperLimit(ref)
		return models.Trade{}, e.reject(apperrors.ErrPriceLimitBlocked, period, symbol, side,
			fmt.Sprintf("quote %s at or above limit %s", price, upper.StringFixed(4)))
	}

	cost := PriceFill(price, qty, side, e.rules)
	total := cost.CashDelta(side).Neg()
	if !e.funds.CanAfford(total) {
		return models.Trade{}, e.reject(apperrors.ErrInsufficientFunds, period, symbol, side,
			fmt.Sprintf("need %s, have %s", total.StringFixed(2), e.funds.Cash().StringFixed(2)))
	}

	if err := e.funds.Debit(total); err != nil {
		return models.Trade{}, err
	}
	if err := e.positions.ApplyBuy(symbol, cost.ExecPrice, qty, period, at, e.settlement.Immediate()); err != nil {
		_ = e.funds.Credit(total)
		return models.Trade{}, err
	}
	e.settlement.RecordBuy(symbol, qty, period)

	return e.record(period, at, symbol, side, qty, cost, reason), nil
}

// Sell sells symbol at the quoted price. Only settled shares can be sold.
func (e *Engine) Sell(period int, at time.Time, symbol string, quoted float64, size SellSize, reason string) (models.Trade, error) {
	return e.sell(period, at, symbol, quoted, size, reason, true)
}

// Liquidate sells the whole position of symbol, settling pending shares
// first and ignoring the limit band. Used to close the run.
func (e *Engine) Liquidate(period int, at time.Time, symbol string, quoted float64, reason string) (models.Trade, error) {
	if _, ok := e.positions.Get(symbol); ok {
		e.settlement.ReleaseSymbol(symbol, e.positions)
	}
	return e.sell(period, at, symbol, quoted, SellAll(), reason, false)
}

func (e *Engine) sell(period int, at time.Time, symbol string, quoted float64, size SellSize, reason string, checkBand bool) (models.Trade, error) {
	side := models.OrderSideSell
	if !size.valid() {
		return models.Trade{}, e.reject(apperrors.ErrInvalidQuantity, period, symbol, side, size.String())
	}
	pos, ok := e.positions.Get(symbol)
	if !ok {
		return models.Trade{}, e.reject(apperrors.ErrNoPosition, period, symbol, side, "")
	}

	price, ok := quotePrice(quoted)
	if !ok {
		return models.Trade{}, e.reject(apperrors.ErrInvalidQuantity, period, symbol, side, fmt.Sprintf("quoted price %v", quoted))
	}

	qty := size.resolve(pos.Available)
	if qty <= 0 {
		if pos.Available == 0 {
			return models.Trade{}, e.reject(apperrors.ErrInsufficientAvailable, period, symbol, side,
				fmt.Sprintf("0 of %d available", pos.Quantity))
		}
		return models.Trade{}, e.reject(apperrors.ErrInvalidQuantity, period, symbol, side,
			fmt.Sprintf("%s resolves to 0", size))
	}
	if qty > pos.Available {
		return models.Trade{}, e.reject(apperrors.ErrInsufficientAvailable, period, symbol, side,
			fmt.Sprintf("requested %d, available %d", qty, pos.Available))
	}

	if ref, ok := e.refPrices[symbol]; checkBand && ok && e.band.Blocks(side, price, ref) {
		lower, _ := e.band.LowerLimit(ref)
		return models.Trade{}, e.reject(apperrors.ErrPriceLimitBlocked, period, symbol, side,
			fmt.Sprintf("quote %s at or below limit %s", price, lower.StringFixed(4)))
	}

	cost := PriceFill(price, qty, side, e.rules)
	delta := cost.CashDelta(side)
	if delta.IsNegative() && !e.funds.CanAfford(delta.Neg()) {
		return models.Trade{}, e.reject(apperrors.ErrInsufficientFunds, period, symbol, side,
			fmt.Sprintf("fees exceed proceeds by %s", delta.Neg().StringFixed(2)))
	}

	if _, err := e.positions.ApplySell(symbol, qty); err != nil {
		return models.Trade{}, err
	}
	if delta.IsNegative() {
		_ = e.funds.Debit(delta.Neg())
	} else {
		_ = e.funds.Credit(delta)
	}

	return e.record(period, at, symbol, side, qty, cost, reason), nil
}

// RecordEquity marks held positions at prices and appends the period's
// equity point. Symbols with no price are valued at zero and returned.
func (e *Engine) RecordEquity(period int, at time.Time, prices map[string]float64) (models.EquityPoint, []string, error) {
	marks := make(map[string]decimal.Decimal, len(prices))
	for s, p := range prices {
		if mark, ok := quotePrice(p); ok {
			marks[s] = mark
		}
	}
	value, missing := e.positions.MarkToMarket(marks)
	for _, s := range missing {
		logging.LogIncompletePrice(e.logger, period, s)
	}
	point, err := e.funds.RecordEquity(period, at, value)
	if err != nil {
		return models.EquityPoint{}, missing, err
	}
	return point, missing, nil
}

// quotePrice converts a bar price; false for zero, negative, NaN or Inf.
func quotePrice(p float64) (decimal.Decimal, bool) {
	if !usablePrice(p) {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(p), true
}

func (e *Engine) record(period int, at time.Time, symbol string, side models.OrderSide, qty int64, cost Cost, reason string) models.Trade {
	trade := models.Trade{
		Period:     period,
		Timestamp:  at,
		Symbol:     symbol,
		Side:       side,
		Price:      cost.ExecPrice,
		Quantity:   qty,
		Gross:      cost.Gross,
		Commission: cost.Commission,
		Tax:        cost.Tax,
		Reason:     reason,
	}
	e.trades = append(e.trades, trade)
	logging.LogFill(e.logger, period, symbol, string(side), qty, cost.ExecPrice, cost.Commission, cost.Tax, reason)
	return trade
}

func (e *Engine) reject(kind error, period int, symbol string, side models.OrderSide, reason string) error {
	err := apperrors.NewRejectionError(kind, symbol, string(side), reason)
	logging.LogRejection(e.logger, period, symbol, string(side), apperrors.RejectionKind(err), err)
	return err
}
