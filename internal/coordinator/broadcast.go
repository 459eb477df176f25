package coordinator

import (
	"log"
	"strconv"

	"github.com/rishav/marketmaking-sim/internal/position"
	"github.com/rishav/marketmaking-sim/internal/wire"
)

// sendTo delivers one envelope to a single user. Outbound sends that fail
// never roll back engine state; the failure is only logged. The user is not
// removed from the session and stays a recipient of later sends.
func sendTo(u *User, env wire.Outbound) {
	if u == nil || u.Conn == nil {
		return
	}
	if err := u.Conn.Send(env); err != nil {
		log.Printf("coordinator: send to user %d failed: %v", u.ID, err)
	}
}

// broadcastPublic sends env to every user currently joined to sess.
func broadcastPublic(sess *Session, env wire.Outbound) {
	for _, u := range sess.ListUsers() {
		sendTo(u, env)
	}
}

// mdIncEnvelope builds the public market-data increment for one instrument
// at the given depth (0 = all levels): reactive (post-mutation) broadcasts
// pass 0, the ticker passes 5.
func mdIncEnvelope(sess *Session, instrumentID uint64, depth int) (wire.Outbound, bool) {
	snap, err := sess.Engine.GetSnapshot(instrumentID, depth)
	if err != nil {
		return wire.Outbound{}, false
	}
	env := wire.Outbound{Type: "md_inc", Inst: instrumentID, Ts: nowNanos()}
	for _, lvl := range snap.Bids {
		env.Bids = append(env.Bids, [2]string{wire.FromMinor(lvl[0]), strconv.FormatInt(lvl[1], 10)})
	}
	for _, lvl := range snap.Asks {
		env.Asks = append(env.Asks, [2]string{wire.FromMinor(lvl[0]), strconv.FormatInt(lvl[1], 10)})
	}
	if snap.HasLast {
		env.Last = wire.FromMinor(snap.LastPrice)
	}
	return env, true
}

// broadcastMarketData emits a full-depth md_inc for every instrument id in
// instrumentIDs, deduplicating repeats within one call.
func broadcastMarketData(sess *Session, instrumentIDs []uint64) {
	seen := make(map[uint64]bool)
	for _, id := range instrumentIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if env, ok := mdIncEnvelope(sess, id, 0); ok {
			broadcastPublic(sess, env)
		}
	}
}

// positionsAndPnL builds the positions/pnl refresh envelopes for one user.
func positionsAndPnL(sess *Session, userID uint64) (wire.Outbound, wire.Outbound) {
	positions := sess.Engine.Positions.ForUser(userID)

	posEnv := wire.Outbound{Type: "positions"}
	pnlEnv := wire.Outbound{Type: "pnl"}

	for _, p := range positions {
		posEnv.Positions = append(posEnv.Positions, wire.PositionView{
			InstrumentID: p.InstrumentID,
			NetQty:       p.NetQty,
			VWAP:         wire.FromMinor(p.VWAP),
		})

		inst := sess.Engine.Instruments.Get(p.InstrumentID)
		var mark int64
		if inst != nil {
			if snap, err := sess.Engine.GetSnapshot(p.InstrumentID, 1); err == nil && snap.HasLast {
				mark = snap.LastPrice
			}
		}
		tickValue := 1.0
		if inst != nil {
			tickValue = inst.TickValue
		}
		unrealized := position.Unrealized(*p, mark, tickValue)
		pnlEnv.PnL = append(pnlEnv.PnL, wire.PnLView{
			InstrumentID:  p.InstrumentID,
			RealizedPnL:   p.RealizedPnL,
			UnrealizedPnL: unrealized,
			TotalPnL:      p.RealizedPnL + unrealized,
		})
	}

	return posEnv, pnlEnv
}
