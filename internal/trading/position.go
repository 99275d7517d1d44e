package trading

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	apperrors "astock-backtest/internal/errors"
	"astock-backtest/internal/models"
)

// PositionLedger owns the open positions of one backtest run. It is not safe
// for concurrent use; every run builds its own.
type PositionLedger struct {
	positions map[string]*models.Position
}

// NewPositionLedger creates an empty ledger.
func NewPositionLedger() *PositionLedger {
	return &PositionLedger{positions: make(map[string]*models.Position)}
}

// Get returns a copy of the position for symbol.
func (l *PositionLedger) Get(symbol string) (models.Position, bool) {
	p, ok := l.positions[symbol]
	if !ok {
		return models.Position{}, false
	}
	return *p, true
}

// Len returns the number of open positions.
func (l *PositionLedger) Len() int {
	return len(l.positions)
}

// Symbols returns the held symbols in sorted order.
func (l *PositionLedger) Symbols() []string {
	symbols := make([]string, 0, len(l.positions))
	for s := range l.positions {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// Snapshot returns copies of all positions, sorted by symbol.
func (l *PositionLedger) Snapshot() []models.Position {
	out := make([]models.Position, 0, len(l.positions))
	for _, s := range l.Symbols() {
		out = append(out, *l.positions[s])
	}
	return out
}

// ApplyBuy adds qty at price to the position, recomputing the weighted
// average cost. Settled shares are available at once; otherwise they wait
// for the settlement scheduler.
func (l *PositionLedger) ApplyBuy(symbol string, price decimal.Decimal, qty int64, period int, at time.Time, settled bool) error {
	if qty <= 0 {
		return apperrors.NewRejectionError(apperrors.ErrInvalidQuantity, symbol, string(models.OrderSideBuy),
			fmt.Sprintf("quantity %d", qty))
	}

	pos, ok := l.positions[symbol]
	if !ok {
		pos = &models.Position{
			Symbol:      symbol,
			AvgCost:     price,
			EntryPeriod: period,
			EntryTime:   at,
		}
		l.positions[symbol] = pos
	} else {
		oldQty := decimal.NewFromInt(pos.Quantity)
		newQty := decimal.NewFromInt(pos.Quantity + qty)
		basis := pos.AvgCost.Mul(oldQty).Add(price.Mul(decimal.NewFromInt(qty)))
		pos.AvgCost = basis.Div(newQty)
	}

	pos.Quantity += qty
	if settled {
		pos.Available += qty
	}
	return nil
}

// ApplySell removes qty from the position. qty must not exceed the available
// quantity. The position is deleted when its quantity reaches zero.
func (l *PositionLedger) ApplySell(symbol string, qty int64) (remaining int64, err error) {
	pos, ok := l.positions[symbol]
	if !ok {
		return 0, apperrors.NewRejectionError(apperrors.ErrNoPosition, symbol, string(models.OrderSideSell), "")
	}
	if qty <= 0 {
		return pos.Quantity, apperrors.NewRejectionError(apperrors.ErrInvalidQuantity, symbol, string(models.OrderSideSell),
			fmt.Sprintf("quantity %d", qty))
	}
	if qty > pos.Available {
		return pos.Quantity, apperrors.NewRejectionError(apperrors.ErrInsufficientAvailable, symbol, string(models.OrderSideSell),
			fmt.Sprintf("requested %d, available %d", qty, pos.Available))
	}

	pos.Quantity -= qty
	pos.Available -= qty
	if pos.Quantity == 0 {
		delete(l.positions, symbol)
	}
	return pos.Quantity, nil
}

// Release makes up to qty pending shares available and returns how many were
// released. Unknown symbols release nothing.
func (l *PositionLedger) Release(symbol string, qty int64) int64 {
	pos, ok := l.positions[symbol]
	if !ok || qty <= 0 {
		return 0
	}
	if pending := pos.Pending(); qty > pending {
		qty = pending
	}
	pos.Available += qty
	return qty
}

// MarkToMarket sums quantity * price over held positions. Positions with no
// price contribute zero and are returned in missing.
func (l *PositionLedger) MarkToMarket(prices map[string]decimal.Decimal) (value decimal.Decimal, missing []string) {
	value = decimal.Zero
	for _, s := range l.Symbols() {
		price, ok := prices[s]
		if !ok {
			missing = append(missing, s)
			continue
		}
		value = value.Add(price.Mul(decimal.NewFromInt(l.positions[s].Quantity)))
	}
	return value, missing
}
