package position

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rishav/marketmaking-sim/internal/order"
)

func TestApplyFillOpeningBlendsVWAP(t *testing.T) {
	l := NewLedger()
	l.ApplyFill(1, 1, order.SideBuy, 10000, 10, 1)
	l.ApplyFill(1, 1, order.SideBuy, 10200, 10, 1)

	p := l.Get(1, 1)
	assert.Equal(t, int64(20), p.NetQty)
	assert.Equal(t, int64(10100), p.VWAP)
}

func TestApplyFillClosingRealizesPnL(t *testing.T) {
	l := NewLedger()
	l.ApplyFill(1, 1, order.SideBuy, 10000, 10, 1)
	delta := l.ApplyFill(1, 1, order.SideSell, 10100, 10, 1)

	assert.InDelta(t, 10.0, delta, 1e-9)
	p := l.Get(1, 1)
	assert.Equal(t, int64(0), p.NetQty)
	assert.InDelta(t, 10.0, p.RealizedPnL, 1e-9)
}

func TestApplyFillFlipOpensResidualAtNewPrice(t *testing.T) {
	l := NewLedger()
	l.ApplyFill(1, 1, order.SideBuy, 10000, 10, 1)
	l.ApplyFill(1, 1, order.SideSell, 10100, 15, 1)

	p := l.Get(1, 1)
	require.Equal(t, int64(-5), p.NetQty)
	assert.Equal(t, int64(10100), p.VWAP, "residual of a flip should open at the flip fill's price")
	assert.InDelta(t, 10.0, p.RealizedPnL, 1e-9)
}

func TestApplyFillPartialReduceKeepsVWAP(t *testing.T) {
	l := NewLedger()
	l.ApplyFill(1, 1, order.SideBuy, 10000, 10, 1)
	l.ApplyFill(1, 1, order.SideSell, 10050, 4, 1)

	p := l.Get(1, 1)
	assert.Equal(t, int64(6), p.NetQty)
	assert.Equal(t, int64(10000), p.VWAP, "partial reduce should not move the cost basis")
}

func TestUnrealizedZeroWhenFlat(t *testing.T) {
	p := Position{NetQty: 0, VWAP: 10000}
	assert.Equal(t, 0.0, Unrealized(p, 10500, 1))
}

func TestUnrealizedLongGain(t *testing.T) {
	p := Position{NetQty: 10, VWAP: 10000}
	assert.InDelta(t, 10.0, Unrealized(p, 10100, 1), 1e-9)
}

func TestSettleAtClosesEveryHolder(t *testing.T) {
	l := NewLedger()
	l.ApplyFill(1, 1, order.SideBuy, 10000, 10, 1)
	l.ApplyFill(2, 1, order.SideSell, 10000, 10, 1)

	l.SettleAt(1, 10500, 1)

	buyer := l.Get(1, 1)
	seller := l.Get(2, 1)
	require.Equal(t, int64(0), buyer.NetQty)
	require.Equal(t, int64(0), seller.NetQty)
	assert.InDelta(t, 0, buyer.RealizedPnL+seller.RealizedPnL, 1e-9, "settlement must be zero-sum")
	assert.InDelta(t, 50.0, buyer.RealizedPnL, 1e-9)
}

func TestForInstrumentExcludesFlatPositions(t *testing.T) {
	l := NewLedger()
	l.ApplyFill(1, 1, order.SideBuy, 100, 5, 1)
	l.ApplyFill(1, 1, order.SideSell, 100, 5, 1) // flattens back to 0

	l.ApplyFill(2, 1, order.SideBuy, 100, 3, 1)

	open := l.ForInstrument(1)
	require.Len(t, open, 1)
	assert.Equal(t, uint64(2), open[0].UserID)
}
