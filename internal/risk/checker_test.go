package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rishav/marketmaking-sim/internal/instrument"
	"github.com/rishav/marketmaking-sim/internal/order"
)

func flatLookup(userID, instrumentID uint64) (int64, int64) {
	return 0, 0
}

func baseInstrument() *instrument.Instrument {
	return &instrument.Instrument{ID: 1, TickSize: 5, LotSize: 10}
}

func baseOrder() *order.Order {
	return &order.Order{UserID: 1, InstrumentID: 1, Side: order.SideBuy, LimitPrice: 100, OriginalQty: 10}
}

func TestCheckPassesValidOrder(t *testing.T) {
	g := NewGate(flatLookup)
	g.SetLimits(1, DefaultLimits())
	res := g.Check(baseInstrument(), baseOrder(), 1)
	require.True(t, res.Passed, "expected pass, got reject: %+v", res)
}

func TestCheckRejectsHaltedInstrument(t *testing.T) {
	g := NewGate(flatLookup)
	inst := baseInstrument()
	inst.Halted = true
	res := g.Check(inst, baseOrder(), 1)
	assert.False(t, res.Passed)
	assert.Equal(t, CodeInstrumentState, res.Code)
}

func TestCheckRejectsSettledInstrument(t *testing.T) {
	g := NewGate(flatLookup)
	inst := baseInstrument()
	inst.Settled = true
	res := g.Check(inst, baseOrder(), 1)
	assert.False(t, res.Passed)
	assert.Equal(t, CodeInstrumentState, res.Code)
}

func TestCheckRejectsTickMisalignment(t *testing.T) {
	g := NewGate(flatLookup)
	o := baseOrder()
	o.LimitPrice = 101
	res := g.Check(baseInstrument(), o, 1)
	assert.False(t, res.Passed)
	assert.Equal(t, CodeTickMisaligned, res.Code)
}

func TestCheckRejectsLotMisalignment(t *testing.T) {
	g := NewGate(flatLookup)
	o := baseOrder()
	o.OriginalQty = 7
	res := g.Check(baseInstrument(), o, 1)
	assert.False(t, res.Passed)
	assert.Equal(t, CodeLotMisaligned, res.Code)
}

func TestCheckRejectsNonPositivePriceBeforeLot(t *testing.T) {
	g := NewGate(flatLookup)
	o := baseOrder()
	o.LimitPrice = 0
	o.OriginalQty = 7 // also lot-misaligned; the price check must fire first
	res := g.Check(baseInstrument(), o, 1)
	assert.False(t, res.Passed)
	assert.Equal(t, CodePriceNonPositive, res.Code)
}

func TestCheckRateLimitSlidingWindow(t *testing.T) {
	g := NewGate(flatLookup)
	g.SetLimits(1, Limits{MaxPosition: 10000, MaxNotional: 100000_00, MaxOrdersPerSec: 2})
	inst := baseInstrument()

	const second = int64(1_000_000_000)
	require.True(t, g.Check(inst, baseOrder(), 0).Passed, "order 1 should pass")
	require.True(t, g.Check(inst, baseOrder(), 100).Passed, "order 2 should pass")

	res := g.Check(inst, baseOrder(), 200)
	assert.False(t, res.Passed, "order 3 within the same window should be rate limited")
	assert.Equal(t, CodeRateLimited, res.Code)

	assert.True(t, g.Check(inst, baseOrder(), second+1).Passed, "order after window reset should pass")
}

func TestCheckRejectsMaxPosition(t *testing.T) {
	lookup := func(userID, instrumentID uint64) (int64, int64) { return 9995, 100 }
	g := NewGate(lookup)
	g.SetLimits(1, Limits{MaxPosition: 10000, MaxNotional: 1_000_000_00, MaxOrdersPerSec: 50})
	o := baseOrder()
	o.OriginalQty = 10 // 9995 + 10 = 10005 > 10000
	res := g.Check(baseInstrument(), o, 1)
	assert.False(t, res.Passed)
	assert.Equal(t, CodeMaxPosition, res.Code)
}

func TestCheckRejectsMaxNotional(t *testing.T) {
	lookup := func(userID, instrumentID uint64) (int64, int64) { return 0, 0 }
	g := NewGate(lookup)
	g.SetLimits(1, Limits{MaxPosition: 1_000_000, MaxNotional: 500, MaxOrdersPerSec: 50})
	o := baseOrder()
	o.LimitPrice = 100
	o.OriginalQty = 10
	res := g.Check(baseInstrument(), o, 1)
	assert.False(t, res.Passed)
	assert.Equal(t, CodeMaxNotional, res.Code)
}

func TestDefaultLimitsSeeded(t *testing.T) {
	g := NewGate(flatLookup)
	assert.Equal(t, DefaultLimits(), g.Limits(42))
}
