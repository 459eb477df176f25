// router.go maps each inbound wire operation to an engine or coordinator
// call. It carries no business rules beyond envelope validation and the
// admin/member authority split — all of §4.4-4.6's actual decisions live in
// matching.Engine and Coordinator.
package coordinator

import (
	"strconv"

	"github.com/rishav/marketmaking-sim/internal/apperrors"
	"github.com/rishav/marketmaking-sim/internal/instrument"
	"github.com/rishav/marketmaking-sim/internal/order"
	"github.com/rishav/marketmaking-sim/internal/wire"
)

var adminOps = map[string]bool{
	"add_instrument":    true,
	"halt":              true,
	"settle":            true,
	"update_tick_size":  true,
	"expire_option":     true,
	"pull_quotes":       true,
	"export_data":       true,
}

var noAuthOps = map[string]bool{
	"create_room": true,
	"join":        true,
	"ping":        true,
}

// Dispatch handles one inbound envelope for an already-joined user and
// sends the resulting private/public envelopes. For create_room/join/ping
// (no-auth ops) the caller should use CreateSession/Join directly and answer
// ping itself instead of routing through here.
func (c *Coordinator) Dispatch(sess *Session, user *User, in wire.Inbound) {
	if adminOps[in.Op] && user.Role != RoleExchange {
		sendTo(user, errOutbound(apperrors.AuthZ("not_exchange", "op %q requires the exchange role", in.Op)))
		return
	}

	if in.Op == "export_data" {
		if err := c.ExportSession(sess.RoomCode); err != nil {
			sendTo(user, errOutbound(err))
			return
		}
	}

	var result wire.Outbound
	var fatal error
	sess.run(func() {
		result = dispatchLocked(sess, user, in)
		fatal = sess.Engine.FatalErr()
	})
	sendTo(user, result)

	if fatal != nil && apperrors.IsInternal(fatal) {
		c.abortSession(sess, fatal)
	}
}

// dispatchLocked executes op against sess.Engine. It must only be called
// from within sess.run, since it reads and mutates engine state directly.
func dispatchLocked(sess *Session, user *User, in wire.Inbound) wire.Outbound {
	switch in.Op {
	case "add_instrument":
		return doAddInstrument(sess, in)
	case "order_new":
		return doOrderNew(sess, user, in)
	case "cancel":
		return doCancel(sess, user, in)
	case "cancel_all":
		return doCancelAll(sess, user)
	case "cancel_inst":
		return doCancelInst(sess, user, in)
	case "replace":
		return doReplace(sess, user, in)
	case "settle":
		return doSettle(sess, in)
	case "halt":
		return doHalt(sess, in)
	case "update_tick_size":
		return doUpdateTickSize(sess, in)
	case "expire_option":
		return doExpireOption(sess, in)
	case "pull_quotes":
		return doPullQuotes(sess, in)
	case "get_snapshot":
		return doGetSnapshot(sess, in)
	case "get_positions":
		return doGetPositions(sess, user)
	case "get_pnl":
		return doGetPnL(sess, user)
	case "export_data":
		return doExportData(sess)
	default:
		return errOutbound(apperrors.Envelope("unknown_op", "unrecognized op %q", in.Op))
	}
}

func errOutbound(err error) wire.Outbound {
	return wire.Outbound{Type: "error", Message: err.Error()}
}

func toInstrumentView(inst *instrument.Instrument) wire.InstrumentView {
	v := wire.InstrumentView{
		ID: inst.ID, Symbol: inst.Symbol, Type: inst.Variant.String(),
		TickSize: wire.FromMinor(inst.TickSize), LotSize: inst.LotSize,
		TickValue: inst.TickValue, Halted: inst.Halted, ReferenceID: inst.ReferenceID,
	}
	if inst.Variant == instrument.VariantCall || inst.Variant == instrument.VariantPut {
		v.Strike = wire.FromMinor(inst.Strike)
	}
	return v
}

func doAddInstrument(sess *Session, in wire.Inbound) wire.Outbound {
	variant, ok := parseVariant(in.Type)
	if !ok {
		return errOutbound(apperrors.Envelope("bad_type", "unknown instrument type %q", in.Type))
	}
	tickSize, err := wire.ToMinor(in.TickSize)
	if err != nil {
		return errOutbound(apperrors.Envelope("bad_tick_size", "%v", err))
	}
	spec := instrument.Spec{
		Symbol: in.Symbol, Variant: variant, TickSize: tickSize,
		LotSize: in.LotSize, TickValue: in.TickValue,
	}
	if in.ReferenceID != nil {
		spec.ReferenceID = *in.ReferenceID
	}
	if in.Strike != nil {
		strike, err := wire.ToMinor(*in.Strike)
		if err != nil {
			return errOutbound(apperrors.Envelope("bad_strike", "%v", err))
		}
		spec.Strike = strike
	}

	inst, err := sess.Engine.AddInstrument(spec)
	if err != nil {
		return errOutbound(err)
	}
	view := toInstrumentView(inst)
	env := wire.Outbound{Type: "instrument_added", Instrument: &view}
	broadcastPublic(sess, env)
	return env
}

func parseVariant(s string) (instrument.Variant, bool) {
	switch s {
	case "SCALAR":
		return instrument.VariantScalar, true
	case "CALL":
		return instrument.VariantCall, true
	case "PUT":
		return instrument.VariantPut, true
	default:
		return 0, false
	}
}

func parseSide(s string) (order.Side, bool) {
	switch s {
	case "buy":
		return order.SideBuy, true
	case "sell":
		return order.SideSell, true
	default:
		return 0, false
	}
}

func parseTIF(s string) (order.TIF, bool) {
	switch s {
	case "", "GFD":
		return order.TIFGFD, true
	case "IOC":
		return order.TIFIOC, true
	default:
		return 0, false
	}
}

func fillView(f order.Fill) wire.FillView {
	return wire.FillView{
		OrderID: f.OrderID, InstrumentID: f.InstrumentID, Side: f.Side.String(),
		Price: wire.FromMinor(f.Price), Qty: f.Qty, Counterparty: f.Counterparty,
		Timestamp: f.Timestamp,
	}
}

func doOrderNew(sess *Session, user *User, in wire.Inbound) wire.Outbound {
	side, ok := parseSide(in.Side)
	if !ok {
		return errOutbound(apperrors.Envelope("bad_side", "unknown side %q", in.Side))
	}
	tif, ok := parseTIF(in.TIF)
	if !ok {
		return errOutbound(apperrors.Envelope("bad_tif", "unknown tif %q", in.TIF))
	}
	price, err := wire.ToMinor(in.Price)
	if err != nil {
		return errOutbound(apperrors.Envelope("bad_price", "%v", err))
	}

	o := &order.Order{
		UserID: user.ID, InstrumentID: in.Inst, Side: side,
		LimitPrice: price, OriginalQty: in.Qty, RemainingQty: in.Qty,
		TIF: tif, PostOnly: in.PostOnly, CreatedAt: nowNanos(),
	}

	result := sess.Engine.Submit(o, o.CreatedAt)

	env := wire.Outbound{Type: "order_ack", Accepted: result.Accepted}
	if result.Accepted {
		env.OrderID = o.ID
	} else {
		env.RejectReason = result.RejectReason
		env.RejectCode = result.RejectCode
	}

	for _, f := range result.Fills {
		fv := fillView(f)
		sendTo(user, wire.Outbound{Type: "fill", Fill: &fv})

		makerOrder := sess.Engine.GetOrder(f.Counterparty)
		if makerOrder != nil && makerOrder.UserID != user.ID {
			if cp := sess.GetUser(makerOrder.UserID); cp != nil {
				cpFill := f
				cpFill.UserID = makerOrder.UserID
				cpFill.OrderID = makerOrder.ID
				cpFill.Side = makerOrder.Side
				cpView := fillView(cpFill)
				sendTo(cp, wire.Outbound{Type: "fill", Fill: &cpView})
			}
		}
	}

	if len(result.Fills) > 0 {
		refreshPositionsAndPnL(sess, affectedUsers(sess, result.Fills, user.ID))
		broadcastMarketData(sess, []uint64{in.Inst})
	} else if result.Accepted && o.TIF == order.TIFGFD {
		broadcastMarketData(sess, []uint64{in.Inst})
	}

	return env
}

// affectedUsers returns every user whose position changed: the taker and
// every maker on the other side of a fill.
func affectedUsers(sess *Session, fills []order.Fill, takerID uint64) []uint64 {
	seen := map[uint64]bool{takerID: true}
	out := []uint64{takerID}
	for _, f := range fills {
		makerOrder := sess.Engine.GetOrder(f.Counterparty)
		if makerOrder == nil || seen[makerOrder.UserID] {
			continue
		}
		seen[makerOrder.UserID] = true
		out = append(out, makerOrder.UserID)
	}
	return out
}

func refreshPositionsAndPnL(sess *Session, userIDs []uint64) {
	for _, uid := range userIDs {
		u := sess.GetUser(uid)
		if u == nil {
			continue
		}
		posEnv, pnlEnv := positionsAndPnL(sess, uid)
		sendTo(u, posEnv)
		sendTo(u, pnlEnv)
	}
}

func doCancel(sess *Session, user *User, in wire.Inbound) wire.Outbound {
	o, ok := sess.Engine.Cancel(in.OrderID, user.ID, user.Role == RoleExchange)
	env := wire.Outbound{Type: "cancel_ack", Cancelled: ok, OrderID: in.OrderID}
	if ok {
		broadcastMarketData(sess, []uint64{o.InstrumentID})
	}
	return env
}

func doCancelAll(sess *Session, user *User) wire.Outbound {
	cancelled := sess.Engine.CancelAll(user.ID)
	insts := make([]uint64, 0, len(cancelled))
	for _, o := range cancelled {
		insts = append(insts, o.InstrumentID)
	}
	broadcastMarketData(sess, insts)
	return wire.Outbound{Type: "cancel_all_ack", Count: len(cancelled)}
}

func doCancelInst(sess *Session, user *User, in wire.Inbound) wire.Outbound {
	ids := make([]uint64, 0, len(in.OrderIDs))
	for _, id := range in.OrderIDs {
		if o := sess.Engine.GetOrder(id); o != nil && (user.Role == RoleExchange || o.UserID == user.ID) {
			ids = append(ids, id)
		}
	}
	cancelled := sess.Engine.CancelInstrument(in.Inst, ids)
	broadcastMarketData(sess, []uint64{in.Inst})
	return wire.Outbound{Type: "cancel_inst_ack", Count: len(cancelled)}
}

func doReplace(sess *Session, user *User, in wire.Inbound) wire.Outbound {
	var newPrice, newQty *int64
	if in.Price != "" {
		p, err := wire.ToMinor(in.Price)
		if err != nil {
			return errOutbound(apperrors.Envelope("bad_price", "%v", err))
		}
		newPrice = &p
	}
	if in.Qty != 0 {
		q := in.Qty
		newQty = &q
	}

	result, ok := sess.Engine.Replace(in.OrderID, user.ID, newPrice, newQty, nowNanos())
	env := wire.Outbound{Type: "replace_ack", Accepted: ok}
	if result != nil {
		env.OrderID = result.Order.ID
		if !ok {
			env.RejectReason = result.RejectReason
			env.RejectCode = result.RejectCode
		}
		if ok {
			broadcastMarketData(sess, []uint64{result.Order.InstrumentID})
		}
	}
	return env
}

func doSettle(sess *Session, in wire.Inbound) wire.Outbound {
	value, err := wire.ToMinor(in.Value)
	if err != nil {
		return errOutbound(apperrors.Envelope("bad_value", "%v", err))
	}

	affected, err := sess.Engine.Settle(in.Inst, value)
	if err != nil {
		return errOutbound(err)
	}

	env := wire.Outbound{Type: "settlement", InstrumentID: in.Inst, SettlementValue: wire.FromMinor(value)}
	broadcastPublic(sess, env)
	refreshPositionsAndPnL(sess, affected)

	for _, opt := range sess.Engine.Instruments.OptionsReferencing(in.Inst) {
		optAffected, err := sess.Engine.Settle(opt.ID, value)
		if err != nil {
			continue
		}
		optEnv := wire.Outbound{Type: "option_expired", InstrumentID: opt.ID, SettlementValue: wire.FromMinor(opt.SettleValue)}
		broadcastPublic(sess, optEnv)
		refreshPositionsAndPnL(sess, optAffected)
	}

	return env
}

func doHalt(sess *Session, in wire.Inbound) wire.Outbound {
	if err := sess.Engine.Halt(in.Inst, in.On); err != nil {
		return errOutbound(err)
	}
	env := wire.Outbound{Type: "halt", InstrumentID: in.Inst, On: in.On}
	broadcastPublic(sess, env)
	return env
}

func doUpdateTickSize(sess *Session, in wire.Inbound) wire.Outbound {
	pulled, err := sess.Engine.PullQuotes(in.InstrumentID)
	if err != nil {
		return errOutbound(err)
	}
	quotesPulled := wire.Outbound{Type: "quotes_pulled", InstrumentID: in.InstrumentID, Count: len(pulled)}
	broadcastPublic(sess, quotesPulled)

	tickSize, err := wire.ToMinor(in.TickSize)
	if err != nil {
		return errOutbound(apperrors.Envelope("bad_tick_size", "%v", err))
	}
	if err := sess.Engine.UpdateTickSize(in.InstrumentID, tickSize); err != nil {
		return errOutbound(err)
	}
	env := wire.Outbound{Type: "tick_size_updated", InstrumentID: in.InstrumentID, TickSize: in.TickSize}
	broadcastPublic(sess, env)
	broadcastMarketData(sess, []uint64{in.InstrumentID})
	return env
}

func doExpireOption(sess *Session, in wire.Inbound) wire.Outbound {
	spot, err := wire.ToMinor(in.SpotPrice)
	if err != nil {
		return errOutbound(apperrors.Envelope("bad_spot_price", "%v", err))
	}
	affected, err := sess.Engine.Settle(in.Inst, spot)
	if err != nil {
		return errOutbound(err)
	}
	inst := sess.Engine.Instruments.Get(in.Inst)
	env := wire.Outbound{Type: "option_expired", InstrumentID: in.Inst, SettlementValue: wire.FromMinor(inst.SettleValue)}
	broadcastPublic(sess, env)
	refreshPositionsAndPnL(sess, affected)
	return env
}

func doPullQuotes(sess *Session, in wire.Inbound) wire.Outbound {
	pulled, err := sess.Engine.PullQuotes(in.Inst)
	if err != nil {
		return errOutbound(err)
	}
	env := wire.Outbound{Type: "quotes_pulled", InstrumentID: in.Inst, Count: len(pulled)}
	broadcastPublic(sess, env)
	broadcastMarketData(sess, []uint64{in.Inst})
	return env
}

func doGetSnapshot(sess *Session, in wire.Inbound) wire.Outbound {
	snap, err := sess.Engine.GetSnapshot(in.Inst, 0)
	if err != nil {
		return errOutbound(err)
	}
	env := wire.Outbound{Type: "snapshot", Inst: in.Inst}
	for _, lvl := range snap.Bids {
		env.Bids = append(env.Bids, [2]string{wire.FromMinor(lvl[0]), strconv.FormatInt(lvl[1], 10)})
	}
	for _, lvl := range snap.Asks {
		env.Asks = append(env.Asks, [2]string{wire.FromMinor(lvl[0]), strconv.FormatInt(lvl[1], 10)})
	}
	if snap.HasLast {
		env.Last = wire.FromMinor(snap.LastPrice)
	}
	return env
}

func doGetPositions(sess *Session, user *User) wire.Outbound {
	env, _ := positionsAndPnL(sess, user.ID)
	return env
}

func doGetPnL(sess *Session, user *User) wire.Outbound {
	_, env := positionsAndPnL(sess, user.ID)
	return env
}

func doExportData(sess *Session) wire.Outbound {
	return wire.Outbound{Type: "export_complete", Path: sess.RoomCode}
}
