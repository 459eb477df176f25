// Package position tracks each user's net exposure and PnL per instrument
// within a room.
package position

import (
	"github.com/rishav/marketmaking-sim/internal/order"
)

// Position is one user's open exposure in one instrument.
type Position struct {
	UserID       uint64
	InstrumentID uint64
	NetQty       int64 // signed: positive = long, negative = short
	VWAP         int64 // minor-unit cost basis of the currently open exposure
	RealizedPnL  float64
	// UnrealizedPnL is recomputed on demand by Unrealized, not stored here,
	// since it depends on a mark price the ledger does not own.
}

// Ledger holds every (user, instrument) position in a room.
type Ledger struct {
	positions map[uint64]map[uint64]*Position // userID -> instrumentID -> *Position
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{positions: make(map[uint64]map[uint64]*Position)}
}

func (l *Ledger) get(userID, instrumentID uint64) *Position {
	byInst, ok := l.positions[userID]
	if !ok {
		byInst = make(map[uint64]*Position)
		l.positions[userID] = byInst
	}
	p, ok := byInst[instrumentID]
	if !ok {
		p = &Position{UserID: userID, InstrumentID: instrumentID}
		byInst[instrumentID] = p
	}
	return p
}

// Get returns a user's position in an instrument, or a zero-value position
// if none exists yet (does not create an entry).
func (l *Ledger) Get(userID, instrumentID uint64) Position {
	byInst, ok := l.positions[userID]
	if !ok {
		return Position{UserID: userID, InstrumentID: instrumentID}
	}
	p, ok := byInst[instrumentID]
	if !ok {
		return Position{UserID: userID, InstrumentID: instrumentID}
	}
	return *p
}

// ForInstrument returns every position held against instrumentID, for
// zero-sum checks and settlement closeout.
func (l *Ledger) ForInstrument(instrumentID uint64) []*Position {
	var out []*Position
	for _, byInst := range l.positions {
		if p, ok := byInst[instrumentID]; ok && p.NetQty != 0 {
			out = append(out, p)
		}
	}
	return out
}

// ForUser returns every position held by userID.
func (l *Ledger) ForUser(userID uint64) []*Position {
	byInst, ok := l.positions[userID]
	if !ok {
		return nil
	}
	out := make([]*Position, 0, len(byInst))
	for _, p := range byInst {
		out = append(out, p)
	}
	return out
}

// sign returns 1 for buy, -1 for sell.
func sign(s order.Side) int64 {
	if s == order.SideSell {
		return -1
	}
	return 1
}

// ApplyFill updates a position for one fill leg and returns the realized
// PnL delta from this fill (0 if the fill only opens/adds to a position).
// tickValue converts minor-unit price moves into display-unit PnL.
func (l *Ledger) ApplyFill(userID, instrumentID uint64, side order.Side, price, qty int64, tickValue float64) float64 {
	p := l.get(userID, instrumentID)
	signedQty := sign(side) * qty

	switch {
	case p.NetQty == 0 || sameSign(p.NetQty, signedQty):
		// Opening or adding in the same direction: blend VWAP.
		totalQty := abs64(p.NetQty) + qty
		p.VWAP = (abs64(p.NetQty)*p.VWAP + qty*price) / totalQty
		p.NetQty += signedQty
		return 0

	default:
		// Reducing, closing, or flipping.
		closeQty := min64(abs64(p.NetQty), qty)
		var delta float64
		if p.NetQty > 0 {
			delta = float64(price-p.VWAP) * float64(closeQty) * tickValue / 100
		} else {
			delta = float64(p.VWAP-price) * float64(closeQty) * tickValue / 100
		}
		p.RealizedPnL += delta
		p.NetQty += signedQty

		residual := qty - closeQty
		if residual > 0 {
			// The fill overshot the open position; the residual opens a new
			// position on the opposite side at this fill's price.
			p.VWAP = price
		} else if p.NetQty == 0 {
			p.VWAP = 0
		}
		return delta
	}
}

// Unrealized computes a position's unrealized PnL at markPrice.
func Unrealized(p Position, markPrice int64, tickValue float64) float64 {
	if p.NetQty == 0 {
		return 0
	}
	return float64(markPrice-p.VWAP) * float64(p.NetQty) * tickValue / 100
}

// SettleAt closes every open position in instrumentID at value (minor
// units), crediting realized PnL and zeroing net_qty, per the scalar/option
// settlement rule: the full (V-vwap)*net_qty*tick_value/100 is realized.
func (l *Ledger) SettleAt(instrumentID uint64, value int64, tickValue float64) {
	for _, byInst := range l.positions {
		p, ok := byInst[instrumentID]
		if !ok || p.NetQty == 0 {
			continue
		}
		p.RealizedPnL += float64(value-p.VWAP) * float64(p.NetQty) * tickValue / 100
		p.NetQty = 0
		p.VWAP = 0
	}
}

func sameSign(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
