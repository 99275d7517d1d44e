package trading

import (
	"sort"
)

// unsettledLot is a purchase waiting to become sellable.
type unsettledLot struct {
	Symbol        string
	Quantity      int64
	BuyPeriod     int
	ReleasePeriod int
}

// SettlementScheduler releases bought shares after a fixed number of
// periods. A delay of 1 models T+1.
type SettlementScheduler struct {
	delay    int
	pending  map[int][]unsettledLot // release period -> lots
	last     int
	advanced bool
}

// NewSettlementScheduler creates a scheduler with the given delay in periods.
func NewSettlementScheduler(delay int) *SettlementScheduler {
	return &SettlementScheduler{
		delay:   delay,
		pending: make(map[int][]unsettledLot),
	}
}

// Immediate reports whether purchases settle in the period they are made.
func (s *SettlementScheduler) Immediate() bool {
	return s.delay == 0
}

// RecordBuy queues qty shares bought in period.
func (s *SettlementScheduler) RecordBuy(symbol string, qty int64, period int) {
	if s.delay == 0 || qty <= 0 {
		return
	}
	release := period + s.delay
	s.pending[release] = append(s.pending[release], unsettledLot{
		Symbol:        symbol,
		Quantity:      qty,
		BuyPeriod:     period,
		ReleasePeriod: release,
	})
}

// Advance releases every lot due at or before period into the ledger and
// returns the released quantity per symbol. Calling it again for a period
// that was already advanced does nothing.
func (s *SettlementScheduler) Advance(period int, ledger *PositionLedger) map[string]int64 {
	if s.advanced && period <= s.last {
		return nil
	}
	s.advanced = true
	s.last = period

	released := make(map[string]int64)
	for _, due := range s.duePeriods(period) {
		for _, lot := range s.pending[due] {
			if n := ledger.Release(lot.Symbol, lot.Quantity); n > 0 {
				released[lot.Symbol] += n
			}
		}
		delete(s.pending, due)
	}
	return released
}

// ReleaseSymbol settles every pending lot of symbol at once. Used by the
// terminal liquidation.
func (s *SettlementScheduler) ReleaseSymbol(symbol string, ledger *PositionLedger) int64 {
	var total int64
	for due, lots := range s.pending {
		kept := lots[:0]
		for _, lot := range lots {
			if lot.Symbol == symbol {
				total += ledger.Release(lot.Symbol, lot.Quantity)
				continue
			}
			kept = append(kept, lot)
		}
		if len(kept) == 0 {
			delete(s.pending, due)
		} else {
			s.pending[due] = kept
		}
	}
	return total
}

// Pending returns the quantity of symbol not yet released.
func (s *SettlementScheduler) Pending(symbol string) int64 {
	var total int64
	for _, lots := range s.pending {
		for _, lot := range lots {
			if lot.Symbol == symbol {
				total += lot.Quantity
			}
		}
	}
	return total
}

func (s *SettlementScheduler) duePeriods(period int) []int {
	var due []int
	for release := range s.pending {
		if release <= period {
			due = append(due, release)
		}
	}
	sort.Ints(due)
	return due
}
