package strategy

import (
	"time"

	apperrors "astock-backtest/internal/errors"
	"astock-backtest/internal/models"
	"astock-backtest/internal/trading"
)

// SMACrossover buys when the fast SMA crosses above the slow SMA and sells
// everything when it crosses below.
type SMACrossover struct {
	Fast int
	Slow int
}

func newSMACrossover(p Params) (trading.Strategy, error) {
	fast, err := p.Int("fast", 5)
	if err != nil {
		return nil, err
	}
	slow, err := p.Int("slow", 20)
	if err != nil {
		return nil, err
	}
	s := SMACrossover{Fast: fast, Slow: slow}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s SMACrossover) validate() error {
	if err := positive("fast", s.Fast); err != nil {
		return err
	}
	if s.Slow <= s.Fast {
		return apperrors.NewValidationError("slow", s.Slow, "must be greater than fast")
	}
	return nil
}

// Signal implements trading.Strategy.
func (s SMACrossover) Signal(period int, history []models.Candle) models.Signal {
	if len(history) < s.Slow+1 {
		return models.Hold()
	}
	tail := models.Closes(history[len(history)-s.Slow-1:])
	fast, err := SMA(tail, s.Fast)
	if err != nil {
		return models.Hold()
	}
	slow, err := SMA(tail, s.Slow)
	if err != nil {
		return models.Hold()
	}

	last := len(tail) - 1
	switch {
	case crossedAbove(fast, slow, last):
		return models.Buy()
	case crossedBelow(fast, slow, last):
		return models.SellAll()
	}
	return models.Hold()
}

// RSIReversion buys when RSI is oversold and sells part of the position
// when it is overbought. Strength grows with distance past the threshold.
type RSIReversion struct {
	Period     int
	Oversold   float64
	Overbought float64
}

func newRSIReversion(p Params) (trading.Strategy, error) {
	period, err := p.Int("period", 14)
	if err != nil {
		return nil, err
	}
	oversold, err := p.Float("oversold", 35)
	if err != nil {
		return nil, err
	}
	overbought, err := p.Float("overbought", 65)
	if err != nil {
		return nil, err
	}
	s := RSIReversion{Period: period, Oversold: oversold, Overbought: overbought}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s RSIReversion) validate() error {
	if err := positive("period", s.Period); err != nil {
		return err
	}
	if s.Oversold <= 0 || s.Overbought >= 100 || s.Oversold >= s.Overbought {
		return apperrors.NewValidationError("oversold", s.Oversold, "need 0 < oversold < overbought < 100")
	}
	return nil
}

// Signal implements trading.Strategy.
func (s RSIReversion) Signal(period int, history []models.Candle) models.Signal {
	rsi, err := RSI(models.Closes(history), s.Period)
	if err != nil {
		return models.Hold()
	}
	v := rsi[len(rsi)-1]
	switch {
	case v < s.Oversold:
		return models.Buy().WithStrength((s.Oversold - v) / s.Oversold)
	case v > s.Overbought:
		return models.Sell().WithStrength((v - s.Overbought) / (100 - s.Overbought))
	}
	return models.Hold()
}

// MACDCrossover buys when the MACD line crosses above its signal line and
// sells everything when it crosses below.
type MACDCrossover struct {
	Fast         int
	Slow         int
	SignalPeriod int
}

func newMACDCrossover(p Params) (trading.Strategy, error) {
	fast, err := p.Int("fast", 12)
	if err != nil {
		return nil, err
	}
	slow, err := p.Int("slow", 26)
	if err != nil {
		return nil, err
	}
	signal, err := p.Int("signal", 9)
	if err != nil {
		return nil, err
	}
	if err := positive("fast", fast); err != nil {
		return nil, err
	}
	if err := positive("signal", signal); err != nil {
		return nil, err
	}
	if slow <= fast {
		return nil, apperrors.NewValidationError("slow", slow, "must be greater than fast")
	}
	return MACDCrossover{Fast: fast, Slow: slow, SignalPeriod: signal}, nil
}

// Signal implements trading.Strategy.
func (s MACDCrossover) Signal(period int, history []models.Candle) models.Signal {
	m, err := MACD(models.Closes(history), s.Fast, s.Slow, s.SignalPeriod)
	if err != nil {
		return models.Hold()
	}
	last := len(m.MACD) - 1
	if last <= m.Start {
		return models.Hold()
	}
	switch {
	case crossedAbove(m.MACD, m.Signal, last):
		return models.Buy()
	case crossedBelow(m.MACD, m.Signal, last):
		return models.SellAll()
	}
	return models.Hold()
}

// BollingerReversion buys a close below the lower band and sells everything
// on a close above the upper band.
type BollingerReversion struct {
	Period int
	K      float64
}

func newBollingerReversion(p Params) (trading.Strategy, error) {
	period, err := p.Int("period", 20)
	if err != nil {
		return nil, err
	}
	k, err := p.Float("k", 2)
	if err != nil {
		return nil, err
	}
	if err := positive("period", period); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, apperrors.NewValidationError("k", k, "must be positive")
	}
	return BollingerReversion{Period: period, K: k}, nil
}

// Signal implements trading.Strategy.
func (s BollingerReversion) Signal(period int, history []models.Candle) models.Signal {
	if len(history) < s.Period {
		return models.Hold()
	}
	tail := models.Closes(history[len(history)-s.Period:])
	bands, err := Bollinger(tail, s.Period, s.K)
	if err != nil {
		return models.Hold()
	}
	last := len(tail) - 1
	switch price := tail[last]; {
	case price < bands.Lower[last]:
		return models.Buy()
	case price > bands.Upper[last]:
		return models.SellAll()
	}
	return models.Hold()
}

// BuyAndHold buys on the first period and holds until the run liquidates.
type BuyAndHold struct{}

// Signal implements trading.Strategy.
func (BuyAndHold) Signal(period int, history []models.Candle) models.Signal {
	if period == 0 {
		return models.Buy()
	}
	return models.Hold()
}

// Replay plays back signals computed elsewhere, matched to bars by
// timestamp. Bars without a signal hold.
type Replay struct {
	signals map[int64]models.Signal
}

// NewReplay wraps precomputed signals keyed by bar time.
func NewReplay(signals map[time.Time]models.Signal) Replay {
	byUnix := make(map[int64]models.Signal, len(signals))
	for at, s := range signals {
		byUnix[at.Unix()] = s
	}
	return Replay{signals: byUnix}
}

// Len returns the number of signals loaded.
func (r Replay) Len() int {
	return len(r.signals)
}

// Signal implements trading.Strategy.
func (r Replay) Signal(period int, history []models.Candle) models.Signal {
	if len(history) == 0 {
		return models.Hold()
	}
	if s, ok := r.signals[history[len(history)-1].Timestamp.Unix()]; ok {
		return s
	}
	return models.Hold()
}
