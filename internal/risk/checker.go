// Package risk implements the pre-trade risk gate.
//
// Checks run in a fixed order and stop at the first failure, each carrying a
// machine-readable reason code so the router can surface a typed error
// instead of a free-text string. Because every mutation for a room runs on
// that room's single worker goroutine, Gate holds no internal lock: there is
// never more than one caller in flight at a time for a given instance.
package risk

import (
	"fmt"

	"github.com/rishav/marketmaking-sim/internal/instrument"
	"github.com/rishav/marketmaking-sim/internal/order"
)

// Code is a machine-readable rejection reason.
type Code string

const (
	CodeNone             Code = ""
	CodeInstrumentState  Code = "instrument_state"
	CodeTickMisaligned   Code = "tick_misaligned"
	CodeLotMisaligned    Code = "lot_misaligned"
	CodeQtyNonPositive   Code = "qty_non_positive"
	CodePriceNonPositive Code = "price_non_positive"
	CodeRateLimited      Code = "rate_limited"
	CodeMaxPosition      Code = "max_position"
	CodeMaxNotional      Code = "max_notional"
)

// Result is the outcome of a gate check.
type Result struct {
	Passed bool
	Code   Code
	Reason string
}

func reject(code Code, format string, args ...any) Result {
	return Result{Passed: false, Code: code, Reason: fmt.Sprintf(format, args...)}
}

var pass = Result{Passed: true}

// Limits are the per-user pre-trade limits, seeded with defaults on join.
type Limits struct {
	MaxPosition    int64
	MaxNotional    int64
	MaxOrdersPerSec int
}

// DefaultLimits mirrors the defaults a freshly joined user receives.
func DefaultLimits() Limits {
	return Limits{
		MaxPosition:     10000,
		MaxNotional:     1000000_00, // $1,000,000 in minor units
		MaxOrdersPerSec: 50,
	}
}

// PositionLookup returns a user's current net_qty and mark price for an
// instrument, used to evaluate hypothetical post-match exposure. The engine
// supplies this from the position ledger so Gate stays decoupled from it.
type PositionLookup func(userID, instrumentID uint64) (netQty int64, markPrice int64)

// window is a per-user sliding 1-second order counter.
type window struct {
	windowStart int64 // unix nanoseconds
	count       int
}

// Gate evaluates orders against a room's risk limits.
type Gate struct {
	limits     map[uint64]Limits // userID -> limits
	windows    map[uint64]*window
	lookupPos  PositionLookup
}

// NewGate creates a risk gate backed by the given position lookup.
func NewGate(lookup PositionLookup) *Gate {
	return &Gate{
		limits:    make(map[uint64]Limits),
		windows:   make(map[uint64]*window),
		lookupPos: lookup,
	}
}

// SetLimits installs (or replaces) a user's risk limits, typically called on
// join with DefaultLimits().
func (g *Gate) SetLimits(userID uint64, l Limits) {
	g.limits[userID] = l
}

// Limits returns a user's current limits.
func (g *Gate) Limits(userID uint64) Limits {
	if l, ok := g.limits[userID]; ok {
		return l
	}
	return DefaultLimits()
}

// Check runs the pre-trade gate in spec order: instrument state, tick/lot
// alignment, rate window, position, notional. nowNanos is the caller's
// clock reading so the gate never calls time.Now() itself, keeping it
// deterministic for tests.
func (g *Gate) Check(inst *instrument.Instrument, o *order.Order, nowNanos int64) Result {
	if inst == nil {
		return reject(CodeInstrumentState, "unknown instrument")
	}
	if inst.Settled {
		return reject(CodeInstrumentState, "instrument %d is settled", inst.ID)
	}
	if inst.Halted {
		return reject(CodeInstrumentState, "instrument %d is halted", inst.ID)
	}

	if o.LimitPrice <= 0 {
		return reject(CodePriceNonPositive, "price must be positive")
	}
	if o.LimitPrice%inst.TickSize != 0 {
		return reject(CodeTickMisaligned, "price %d not aligned to tick size %d", o.LimitPrice, inst.TickSize)
	}
	if o.OriginalQty <= 0 {
		return reject(CodeQtyNonPositive, "quantity must be positive")
	}
	if o.OriginalQty%inst.LotSize != 0 {
		return reject(CodeLotMisaligned, "quantity %d not aligned to lot size %d", o.OriginalQty, inst.LotSize)
	}

	limits := g.Limits(o.UserID)

	if !g.allowOrder(o.UserID, nowNanos, limits.MaxOrdersPerSec) {
		return reject(CodeRateLimited, "rate limit of %d orders/sec exceeded", limits.MaxOrdersPerSec)
	}

	netQty, markPrice := int64(0), int64(0)
	if g.lookupPos != nil {
		netQty, markPrice = g.lookupPos(o.UserID, o.InstrumentID)
	}

	delta := o.OriginalQty
	if o.Side == order.SideSell {
		delta = -delta
	}
	projected := netQty + delta
	if abs64(projected) > limits.MaxPosition {
		return reject(CodeMaxPosition, "projected position %d exceeds max %d", projected, limits.MaxPosition)
	}

	mark := markPrice
	if mark == 0 {
		mark = o.LimitPrice
	}
	notional := abs64(projected) * mark
	if notional > limits.MaxNotional {
		return reject(CodeMaxNotional, "projected notional %s exceeds max %s",
			order.FormatMinor(notional), order.FormatMinor(limits.MaxNotional))
	}

	return pass
}

// allowOrder applies the sliding-window submission counter and reports
// whether a new order is permitted right now. The window resets once a full
// second has elapsed since it started, mirroring a simple reset-on-expiry
// counter rather than a smoothed token bucket.
func (g *Gate) allowOrder(userID uint64, nowNanos int64, maxPerSec int) bool {
	const second = int64(1_000_000_000)

	w, ok := g.windows[userID]
	if !ok || nowNanos-w.windowStart >= second {
		g.windows[userID] = &window{windowStart: nowNanos, count: 1}
		return true
	}
	if w.count >= maxPerSec {
		return false
	}
	w.count++
	return true
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
