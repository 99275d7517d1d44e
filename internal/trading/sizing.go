package trading

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"astock-backtest/internal/models"
)

// BuySize is a buy request: an explicit share count or a cash amount.
type BuySize struct {
	shares   int64
	amount   decimal.Decimal
	byAmount bool
}

// Shares requests n shares, floored to the lot size.
func Shares(n int64) BuySize {
	return BuySize{shares: n}
}

// Amount requests as many whole lots as amount buys at the quoted price,
// and at least one lot.
// A non-finite amount resolves to 0.
func Amount(amount float64) BuySize {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return BuySize{byAmount: true}
	}
	return BuySize{amount: decimal.NewFromFloat(amount), byAmount: true}
}

func (s BuySize) String() string {
	if s.byAmount {
		return "amount " + s.amount.StringFixed(2)
	}
	return fmt.Sprintf("%d shares", s.shares)
}

// resolve turns the request into a lot-rounded quantity; 0 means the
// request cannot be filled.
func (s BuySize) resolve(quoted decimal.Decimal, lot int64) int64 {
	if lot < 1 {
		lot = 1
	}
	if !s.byAmount {
		if s.shares <= 0 {
			return 0
		}
		return (s.shares / lot) * lot
	}

	if !s.amount.IsPositive() || !quoted.IsPositive() {
		return 0
	}
	raw := s.amount.Div(quoted).Floor().IntPart()
	qty := (raw / lot) * lot
	if qty < lot {
		qty = lot
	}
	return qty
}

type sellKind int

const (
	sellShares sellKind = iota
	sellPercent
	sellAll
)

// SellSize is a sell request resolved against the available quantity.
type SellSize struct {
	kind    sellKind
	shares  int64
	percent float64
}

// SellShares requests exactly n shares. More than available is rejected.
func SellShares(n int64) SellSize {
	return SellSize{kind: sellShares, shares: n}
}

// SellPercent requests floor(available * p) shares, p in (0, 1].
func SellPercent(p float64) SellSize {
	return SellSize{kind: sellPercent, percent: p}
}

// SellAll requests every available share.
func SellAll() SellSize {
	return SellSize{kind: sellAll}
}

func (s SellSize) String() string {
	switch s.kind {
	case sellPercent:
		return fmt.Sprintf("%.0f%% of available", s.percent*100)
	case sellAll:
		return "all available"
	default:
		return fmt.Sprintf("%d shares", s.shares)
	}
}

// valid reports whether the request can resolve to a positive quantity
// for some available amount.
func (s SellSize) valid() bool {
	switch s.kind {
	case sellAll:
		return true
	case sellPercent:
		return s.percent > 0 && s.percent <= 1
	default:
		return s.shares > 0
	}
}

func (s SellSize) resolve(available int64) int64 {
	switch s.kind {
	case sellAll:
		return available
	case sellPercent:
		if s.percent <= 0 || s.percent > 1 || math.IsNaN(s.percent) {
			return 0
		}
		return int64(math.Floor(float64(available) * s.percent))
	default:
		return s.shares
	}
}

// SizingContext is what a sizing policy sees when a signal fires.
type SizingContext struct {
	Period      int
	Symbol      string
	Price       float64
	Signal      models.Signal
	Cash        decimal.Decimal
	Position    models.Position
	HasPosition bool
}

// SizingPolicy turns BUY and SELL signals into size requests. Returning
// false skips the trade.
type SizingPolicy interface {
	BuySize(ctx SizingContext) (BuySize, bool)
	SellSize(ctx SizingContext) (SellSize, bool)
}

// FractionSizer buys a fraction of cash and sells a fraction of the
// available position, both scaled by signal strength.
type FractionSizer struct {
	BuyFraction  float64
	SellFraction float64
}

// DefaultSizer buys with half the cash and sells half the available shares.
func DefaultSizer() FractionSizer {
	return FractionSizer{BuyFraction: 0.5, SellFraction: 0.5}
}

// BuySize implements SizingPolicy.
func (f FractionSizer) BuySize(ctx SizingContext) (BuySize, bool) {
	fraction := f.BuyFraction * ctx.Signal.Scale()
	if !(fraction > 0) || math.IsInf(fraction, 0) {
		return BuySize{}, false
	}
	amount := ctx.Cash.Mul(decimal.NewFromFloat(fraction))
	if !amount.IsPositive() {
		return BuySize{}, false
	}
	return BuySize{amount: amount, byAmount: true}, true
}

// SellSize implements SizingPolicy.
func (f FractionSizer) SellSize(ctx SizingContext) (SellSize, bool) {
	fraction := f.SellFraction * ctx.Signal.Scale()
	if fraction <= 0 {
		return SellSize{}, false
	}
	return SellPercent(fraction), true
}

// FixedAmountSizer spends the same amount on every buy.
type FixedAmountSizer struct {
	Amount       float64
	SellFraction float64
}

// BuySize implements SizingPolicy.
func (f FixedAmountSizer) BuySize(ctx SizingContext) (BuySize, bool) {
	amount := f.Amount * ctx.Signal.Scale()
	if amount <= 0 {
		return BuySize{}, false
	}
	return Amount(amount), true
}

// SellSize implements SizingPolicy.
func (f FixedAmountSizer) SellSize(ctx SizingContext) (SellSize, bool) {
	fraction := f.SellFraction
	if fraction <= 0 {
		fraction = 1
	}
	return SellPercent(fraction * ctx.Signal.Scale()), true
}

// KellySizer stakes the Kelly fraction of cash, W - (1-W)/R where R is the
// average win over the average loss, capped at MaxFraction and scaled by
// signal strength. Sells follow SellFraction like FixedAmountSizer.
type KellySizer struct {
	WinRate      float64 // fraction of winning trades in [0, 1]
	AvgWin       float64
	AvgLoss      float64 // positive magnitude
	MaxFraction  float64 // 0 means 0.25
	SellFraction float64
}

// Fraction returns the capped Kelly fraction. A negative edge or unusable
// statistics give 0.
func (k KellySizer) Fraction() float64 {
	if !(k.WinRate >= 0 && k.WinRate <= 1) || !(k.AvgWin > 0) || !(k.AvgLoss > 0) {
		return 0
	}
	if math.IsInf(k.AvgWin, 0) || math.IsInf(k.AvgLoss, 0) {
		return 0
	}
	kelly := k.WinRate - (1-k.WinRate)/(k.AvgWin/k.AvgLoss)
	limit := k.MaxFraction
	if !(limit > 0) || limit > 1 {
		limit = 0.25
	}
	return math.Max(0, math.Min(kelly, limit))
}

// BuySize implements SizingPolicy.
func (k KellySizer) BuySize(ctx SizingContext) (BuySize, bool) {
	return FractionSizer{BuyFraction: k.Fraction()}.BuySize(ctx)
}

// SellSize implements SizingPolicy.
func (k KellySizer) SellSize(ctx SizingContext) (SellSize, bool) {
	return FixedAmountSizer{SellFraction: k.SellFraction}.SellSize(ctx)
}

// SizerFunc adapts caller functions to SizingPolicy. A nil side falls back
// to DefaultSizer.
type SizerFunc struct {
	Buy  func(ctx SizingContext) (BuySize, bool)
	Sell func(ctx SizingContext) (SellSize, bool)
}

// BuySize implements SizingPolicy.
func (f SizerFunc) BuySize(ctx SizingContext) (BuySize, bool) {
	if f.Buy == nil {
		return DefaultSizer().BuySize(ctx)
	}
	return f.Buy(ctx)
}

// SellSize implements SizingPolicy.
func (f SizerFunc) SellSize(ctx SizingContext) (SellSize, bool) {
	if f.Sell == nil {
		return DefaultSizer().SellSize(ctx)
	}
	return f.Sell(ctx)
}
