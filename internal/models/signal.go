package models

import (
	"fmt"
	"strings"
)

// Action is the closed set of decisions a strategy can return.
type Action int

const (
	ActionHold Action = iota
	ActionBuy
	ActionSell
	ActionSellAll
)

// String returns the wire name of the action.
func (a Action) String() string {
	switch a {
	case ActionHold:
		return "HOLD"
	case ActionBuy:
		return "BUY"
	case ActionSell:
		return "SELL"
	case ActionSellAll:
		return "SELL_ALL"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// ParseAction parses a wire name into an Action.
func ParseAction(s string) (Action, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "HOLD":
		return ActionHold, nil
	case "BUY":
		return ActionBuy, nil
	case "SELL":
		return ActionSell, nil
	case "SELL_ALL":
		return ActionSellAll, nil
	default:
		return ActionHold, fmt.Errorf("unknown action %q", s)
	}
}

// Signal is a strategy decision for one period. Strength is in [0,1];
// zero means no strength was given and sizing uses the full fraction.
type Signal struct {
	Action   Action
	Strength float64
}

// Hold is the zero signal.
func Hold() Signal { return Signal{Action: ActionHold} }

// Buy returns a buy signal.
func Buy() Signal { return Signal{Action: ActionBuy} }

// Sell returns a partial sell signal.
func Sell() Signal { return Signal{Action: ActionSell} }

// SellAll returns a full liquidation signal.
func SellAll() Signal { return Signal{Action: ActionSellAll} }

// WithStrength returns a copy of s with strength clamped to [0,1].
func (s Signal) WithStrength(strength float64) Signal {
	switch {
	case strength < 0:
		strength = 0
	case strength > 1:
		strength = 1
	}
	s.Strength = strength
	return s
}

// Scale returns the multiplier sizing policies apply to their fraction.
func (s Signal) Scale() float64 {
	if s.Strength <= 0 || s.Strength > 1 {
		return 1
	}
	return s.Strength
}

func (s Signal) String() string {
	if s.Strength > 0 {
		return fmt.Sprintf("%s(%.2f)", s.Action, s.Strength)
	}
	return s.Action.String()
}
