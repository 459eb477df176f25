// Package matching implements the per-room trading engine: the instrument
// registry, one order book per instrument, the position ledger, the risk
// gate, and the append-only trade/fill history, all behind a single
// synchronous API.
//
// An Engine is never called concurrently — the coordinator serializes every
// mutating call for a room through that room's worker goroutine (see
// internal/coordinator), so nothing here takes a lock. Engine methods run to
// completion before returning, which is what lets every invariant below be
// checked at a single, fully-committed point rather than mid-mutation.
package matching

import (
	"fmt"

	"github.com/rishav/marketmaking-sim/internal/apperrors"
	"github.com/rishav/marketmaking-sim/internal/book"
	"github.com/rishav/marketmaking-sim/internal/history"
	"github.com/rishav/marketmaking-sim/internal/instrument"
	"github.com/rishav/marketmaking-sim/internal/order"
	"github.com/rishav/marketmaking-sim/internal/position"
	"github.com/rishav/marketmaking-sim/internal/risk"
)

// Engine is one room's exchange: registry + books + positions + risk + history.
type Engine struct {
	Instruments *instrument.Registry
	Positions   *position.Ledger
	Risk        *risk.Gate
	History     *history.Log

	books map[uint64]*book.Book
	orders map[uint64]*order.Order

	lastTradePrice map[uint64]int64

	nextOrderID uint64
	nextTradeID uint64
	nextSeq     uint64

	fatalErr error
}

// FatalErr reports the engine invariant violation, if any, that aborted the
// room. Once set it is sticky: the coordinator checks it after every
// dispatched op and deactivates the session per §7's internal-error policy.
func (e *Engine) FatalErr() error {
	return e.fatalErr
}

// New creates an empty engine. It takes no clock; callers pass the current
// time to Submit and Replace instead.
func New() *Engine {
	e := &Engine{
		Instruments:    instrument.NewRegistry(),
		Positions:      position.NewLedger(),
		History:        history.New(),
		books:          make(map[uint64]*book.Book),
		orders:         make(map[uint64]*order.Order),
		lastTradePrice: make(map[uint64]int64),
	}
	e.Risk = risk.NewGate(e.positionLookup)
	return e
}

// positionLookup feeds the risk gate a user's current net position and mark
// price for an instrument, keeping risk.Gate decoupled from position/book.
func (e *Engine) positionLookup(userID, instrumentID uint64) (netQty int64, markPrice int64) {
	p := e.Positions.Get(userID, instrumentID)
	return p.NetQty, e.markPrice(instrumentID)
}

func (e *Engine) markPrice(instrumentID uint64) int64 {
	if p, ok := e.lastTradePrice[instrumentID]; ok && p != 0 {
		return p
	}
	if b, ok := e.books[instrumentID]; ok {
		if mid := b.MidPrice(); mid != 0 {
			return mid
		}
	}
	return 0
}

// AddInstrument validates and registers a new instrument, opening its book.
func (e *Engine) AddInstrument(spec instrument.Spec) (*instrument.Instrument, error) {
	inst, err := e.Instruments.Add(spec)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindEnvelope, "bad_instrument", err)
	}
	e.books[inst.ID] = book.New(inst.ID)
	return inst, nil
}

// Halt sets or clears an instrument's halted flag.
func (e *Engine) Halt(instrumentID uint64, on bool) error {
	if err := e.Instruments.Halt(instrumentID, on); err != nil {
		return apperrors.Wrap(apperrors.KindNotFound, "unknown_instrument", err)
	}
	return nil
}

// UpdateTickSize changes an instrument's tick size. The caller is
// responsible for pulling quotes first (see PullQuotes); the engine does
// not implicitly re-quantize resting orders.
func (e *Engine) UpdateTickSize(instrumentID uint64, newTick int64) error {
	if err := e.Instruments.UpdateTickSize(instrumentID, newTick); err != nil {
		return apperrors.Wrap(apperrors.KindEnvelope, "bad_tick_size", err)
	}
	return nil
}

// PullQuotes cancels every resting order in an instrument's book
// (regardless of owner) and returns them, for an admin tick-size change or
// an explicit pull_quotes op.
func (e *Engine) PullQuotes(instrumentID uint64) ([]*order.Order, error) {
	b, ok := e.books[instrumentID]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindNotFound, "unknown_instrument", "unknown instrument %d", instrumentID)
	}
	pulled := b.PullQuotes()
	for _, o := range pulled {
		o.Status = order.StatusCancelled
		o.RemainingQty = 0
	}
	return pulled, nil
}

// Submit validates and processes a new order, matching it against the
// resting book and either resting, discarding, or rejecting any remainder.
func (e *Engine) Submit(o *order.Order, nowNanos int64) *order.Result {
	result := &order.Result{Order: o}

	inst, tradeErr := e.Instruments.Tradable(o.InstrumentID)
	if tradeErr != nil {
		o.Status = order.StatusRejected
		result.RejectReason = tradeErr.Error()
		result.RejectCode = "instrument_state"
		return result
	}

	if check := e.Risk.Check(inst, o, nowNanos); !check.Passed {
		o.Status = order.StatusRejected
		result.RejectReason = check.Reason
		result.RejectCode = string(check.Code)
		return result
	}

	b := e.books[o.InstrumentID]

	if o.PostOnly && e.wouldCross(b, o) {
		o.Status = order.StatusRejected
		result.RejectReason = "post_only order would cross the book"
		result.RejectCode = "post_only_would_cross"
		return result
	}

	e.nextOrderID++
	o.ID = e.nextOrderID
	e.nextSeq++
	o.SequenceNum = e.nextSeq
	o.Status = order.StatusNew
	result.Accepted = true

	fills := e.match(o, b, inst)
	result.Fills = fills

	switch {
	case o.Filled():
		o.Status = order.StatusFilled
	case o.RemainingQty < o.OriginalQty:
		o.Status = order.StatusPartiallyFilled
	}

	if o.RemainingQty > 0 {
		switch o.TIF {
		case order.TIFIOC:
			o.Status = order.StatusCancelled
		case order.TIFGFD:
			_ = b.AddOrder(o)
			e.orders[o.ID] = o
		}
	} else {
		e.orders[o.ID] = o
	}

	return result
}

// wouldCross reports whether o would execute against the resting book
// immediately, used to enforce post_only.
func (e *Engine) wouldCross(b *book.Book, o *order.Order) bool {
	if o.Side == order.SideBuy {
		ask := b.BestAsk()
		return ask != nil && ask.Price <= o.LimitPrice
	}
	bid := b.BestBid()
	return bid != nil && bid.Price >= o.LimitPrice
}

// match walks the opposite side of the book while price allows, filling the
// FIFO head of each level first. Trade price is always the resting order's
// price: price improvement goes to the aggressor, never to the maker.
func (e *Engine) match(o *order.Order, b *book.Book, inst *instrument.Instrument) []order.Fill {
	var fills []order.Fill

	bestLevel := b.BestAsk
	priceOK := func(levelPrice int64) bool { return levelPrice <= o.LimitPrice }
	if o.Side == order.SideSell {
		bestLevel = b.BestBid
		priceOK = func(levelPrice int64) bool { return levelPrice >= o.LimitPrice }
	}

outer:
	for o.RemainingQty > 0 {
		level := bestLevel()
		if level == nil || !priceOK(level.Price) {
			break
		}

		for node := level.Head(); node != nil && o.RemainingQty > 0; {
			maker := node.Order
			next := node.Next()

			fillQty := minQty(o.RemainingQty, maker.RemainingQty)
			now := nowNanosFor(o)

			e.nextTradeID++
			tradeID := e.nextTradeID

			var buyOrderID, sellOrderID, buyerID, sellerID uint64
			if o.Side == order.SideBuy {
				buyOrderID, sellOrderID = o.ID, maker.ID
				buyerID, sellerID = o.UserID, maker.UserID
			} else {
				buyOrderID, sellOrderID = maker.ID, o.ID
				buyerID, sellerID = maker.UserID, o.UserID
			}

			trade := order.Trade{
				ID:           tradeID,
				InstrumentID: o.InstrumentID,
				Price:        level.Price,
				Qty:          fillQty,
				BuyOrderID:   buyOrderID,
				SellOrderID:  sellOrderID,
				BuyerID:      buyerID,
				SellerID:     sellerID,
				Timestamp:    now,
				SequenceNum:  e.bumpSeq(),
			}
			if err := e.History.AppendTrade(trade); err != nil {
				// An out-of-order trade sequence means the engine's own
				// bookkeeping is inconsistent; stop matching rather than
				// keep trading on top of a broken invariant.
				e.fatalErr = apperrors.Wrap(apperrors.KindInternal, "history_sequence_violation", err)
				break outer
			}

			takerFill := order.Fill{
				TradeID: tradeID, OrderID: o.ID, UserID: o.UserID,
				InstrumentID: o.InstrumentID, Side: o.Side, Price: level.Price,
				Qty: fillQty, Timestamp: now, Counterparty: maker.ID,
			}
			makerFill := order.Fill{
				TradeID: tradeID, OrderID: maker.ID, UserID: maker.UserID,
				InstrumentID: o.InstrumentID, Side: maker.Side, Price: level.Price,
				Qty: fillQty, Timestamp: now, Counterparty: o.ID,
			}
			e.History.AppendFill(takerFill)
			e.History.AppendFill(makerFill)
			fills = append(fills, takerFill)

			o.RemainingQty -= fillQty
			maker.RemainingQty -= fillQty

			e.Positions.ApplyFill(o.UserID, o.InstrumentID, o.Side, level.Price, fillQty, inst.TickValue)
			e.Positions.ApplyFill(maker.UserID, maker.InstrumentID, maker.Side, level.Price, fillQty, inst.TickValue)

			e.lastTradePrice[o.InstrumentID] = level.Price

			level.UpdateQuantity(-fillQty)
			if maker.Filled() {
				maker.Status = order.StatusFilled
				b.CancelOrder(maker.ID)
			} else {
				maker.Status = order.StatusPartiallyFilled
			}

			node = next
		}
	}

	return fills
}

// bumpSeq advances the shared sequence counter used for trade ordering.
func (e *Engine) bumpSeq() uint64 {
	e.nextSeq++
	return e.nextSeq
}

// nowNanosFor is a seam so match doesn't need its own clock parameter
// threaded through every call; Submit's caller supplies the authoritative
// clock reading on o.CreatedAt.
func nowNanosFor(o *order.Order) int64 {
	return o.CreatedAt
}

func minQty(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// GetOrder returns an order by id regardless of its current book
// membership, looking it up in the room-wide order table. Used by the
// coordinator to resolve a fill's counterparty to a user id.
func (e *Engine) GetOrder(orderID uint64) *order.Order {
	return e.orders[orderID]
}

// Cancel removes a resting order. Only the owner or an admin (the room's
// exchange, performing an explicit pull) may cancel another user's order.
// Cancelling a terminal or unknown order is a no-op failure, never an error.
func (e *Engine) Cancel(orderID, byUserID uint64, isAdmin bool) (*order.Order, bool) {
	o, ok := e.orders[orderID]
	if !ok || o.Status.IsTerminal() {
		return nil, false
	}
	if o.UserID != byUserID && !isAdmin {
		return nil, false
	}
	b, ok := e.books[o.InstrumentID]
	if !ok {
		return nil, false
	}
	cancelled := b.CancelOrder(orderID)
	if cancelled == nil {
		return nil, false
	}
	cancelled.Status = order.StatusCancelled
	return cancelled, true
}

// CancelAll cancels every live order belonging to userID, across every
// instrument in the room.
func (e *Engine) CancelAll(userID uint64) []*order.Order {
	var out []*order.Order
	for _, b := range e.books {
		for _, o := range b.CancelAll(userID) {
			o.Status = order.StatusCancelled
			out = append(out, o)
		}
	}
	return out
}

// CancelInstrument cancels the named order ids within one instrument,
// regardless of owner. The router's cancel_inst handler passes only ids the
// caller owns, or any ids when the caller is the room's exchange.
func (e *Engine) CancelInstrument(instrumentID uint64, orderIDs []uint64) []*order.Order {
	b, ok := e.books[instrumentID]
	if !ok {
		return nil
	}
	out := make([]*order.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		if o := b.CancelOrder(id); o != nil {
			o.Status = order.StatusCancelled
			out = append(out, o)
		}
	}
	return out
}

// Replace cancels an order and resubmits it at a new price and/or quantity,
// losing time priority. Either field may be nil to keep the current value.
// If the replacement would violate risk or post-only, the original order is
// restored at its prior price and quantity, re-queued at the back of its
// price level, so it does not keep its old time priority.
func (e *Engine) Replace(orderID, byUserID uint64, newPrice, newQty *int64, nowNanos int64) (*order.Result, bool) {
	existing, ok := e.orders[orderID]
	if !ok || existing.Status.IsTerminal() || existing.UserID != byUserID {
		return nil, false
	}

	b, ok := e.books[existing.InstrumentID]
	if !ok {
		return nil, false
	}

	origPrice, origQty, origTIF, origPostOnly := existing.LimitPrice, existing.OriginalQty, existing.TIF, existing.PostOnly
	if b.CancelOrder(orderID) == nil {
		return nil, false
	}
	delete(e.orders, orderID)

	price := origPrice
	if newPrice != nil {
		price = *newPrice
	}
	qty := origQty
	if newQty != nil {
		qty = *newQty
	}

	replacement := &order.Order{
		UserID:       existing.UserID,
		InstrumentID: existing.InstrumentID,
		Side:         existing.Side,
		LimitPrice:   price,
		OriginalQty:  qty,
		RemainingQty: qty,
		TIF:          origTIF,
		PostOnly:     origPostOnly,
		CreatedAt:    nowNanos,
	}

	result := e.Submit(replacement, nowNanos)
	if !result.Accepted {
		// Restore the original at its prior priority-losing-but-live state.
		existing.Status = order.StatusNew
		if err := b.AddOrder(existing); err != nil {
			// Restoration is impossible due to interleaving; treat as cancelled.
			existing.Status = order.StatusCancelled
			return result, false
		}
		e.orders[existing.ID] = existing
		return result, false
	}

	return result, true
}

// Snapshot is a depth-limited view of one instrument's book.
type Snapshot struct {
	InstrumentID uint64
	Bids         [][2]int64 // [price, size]
	Asks         [][2]int64
	LastPrice    int64
	HasLast      bool
}

// GetSnapshot returns the top `depth` levels on each side (0 = all).
func (e *Engine) GetSnapshot(instrumentID uint64, depth int) (Snapshot, error) {
	b, ok := e.books[instrumentID]
	if !ok {
		return Snapshot{}, apperrors.Newf(apperrors.KindNotFound, "unknown_instrument", "unknown instrument %d", instrumentID)
	}
	snap := Snapshot{InstrumentID: instrumentID}
	for _, lvl := range b.BidDepth(depth) {
		snap.Bids = append(snap.Bids, [2]int64{lvl.Price, lvl.TotalQty})
	}
	for _, lvl := range b.AskDepth(depth) {
		snap.Asks = append(snap.Asks, [2]int64{lvl.Price, lvl.TotalQty})
	}
	if p, ok := e.lastTradePrice[instrumentID]; ok {
		snap.LastPrice, snap.HasLast = p, true
	}
	return snap, nil
}

// OrdersOfInstrument returns every live order resting in an instrument's
// book, for the admin "pull" surface.
func (e *Engine) OrdersOfInstrument(instrumentID uint64) []*order.Order {
	b, ok := e.books[instrumentID]
	if !ok {
		return nil
	}
	var out []*order.Order
	walk := func(levels []*book.PriceLevel) {
		for _, lvl := range levels {
			out = append(out, lvl.Orders()...)
		}
	}
	walk(b.BidDepth(0))
	walk(b.AskDepth(0))
	return out
}

// Settle transitions an instrument into terminal settled state at the given
// value and closes out every open position against it. Returns the users
// whose positions were affected, so the caller can refresh their PnL.
func (e *Engine) Settle(instrumentID uint64, value int64) ([]uint64, error) {
	inst := e.Instruments.Get(instrumentID)
	if inst == nil {
		return nil, apperrors.Newf(apperrors.KindNotFound, "unknown_instrument", "unknown instrument %d", instrumentID)
	}

	var settleValue int64
	switch inst.Variant {
	case instrument.VariantScalar:
		settleValue = value
	default:
		settleValue = inst.Intrinsic(value)
	}

	affected := e.Positions.ForInstrument(instrumentID)
	userIDs := make([]uint64, 0, len(affected))
	for _, p := range affected {
		userIDs = append(userIDs, p.UserID)
	}

	if err := e.Instruments.Settle(instrumentID, settleValue); err != nil {
		return nil, apperrors.Wrap(apperrors.KindState, "already_settled", err)
	}
	e.Positions.SettleAt(instrumentID, settleValue, inst.TickValue)

	return userIDs, nil
}

// String renders every book's compact depth-5 view, for debugging.
func (e *Engine) String() string {
	out := ""
	for id, b := range e.books {
		out += fmt.Sprintf("-- instrument %d --\n%s", id, b.String())
	}
	return out
}
