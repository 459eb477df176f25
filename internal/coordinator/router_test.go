package coordinator

import (
	"testing"

	"github.com/rishav/marketmaking-sim/internal/wire"
)

func addInstrument(t *testing.T, c *Coordinator, sess *Session, admin *User) uint64 {
	t.Helper()
	var instID uint64
	sess.run(func() {
		env := dispatchLocked(sess, admin, wire.Inbound{
			Op: "add_instrument", Symbol: "SPX", Type: "SCALAR",
			TickSize: "1.00", LotSize: 1, TickValue: 1,
		})
		if env.Type == "error" {
			t.Fatalf("add_instrument failed: %s", env.Message)
		}
		instID = env.Instrument.ID
	})
	return instID
}

func TestDispatchRejectsAdminOpForNonExchange(t *testing.T) {
	c := testCoordinator(t)
	sess, _ := c.CreateSession("")
	_, trader, _ := c.Join(sess.RoomCode, "alice", "trader", "", &fakeConn{})

	conn := trader.Conn.(*fakeConn)
	c.Dispatch(sess, trader, wire.Inbound{Op: "add_instrument", Symbol: "X", Type: "SCALAR", TickSize: "1.00", LotSize: 1})

	if len(conn.sent) != 1 || conn.sent[0].Type != "error" {
		t.Fatalf("expected an error envelope for a non-exchange admin op, got %+v", conn.sent)
	}
}

func TestDispatchOrderNewCrossAndBroadcastsFills(t *testing.T) {
	c := testCoordinator(t)
	sess, _ := c.CreateSession("")
	_, exchange, _ := c.Join(sess.RoomCode, "ex", "exchange", "", &fakeConn{})
	instID := addInstrument(t, c, sess, exchange)

	_, seller, _ := c.Join(sess.RoomCode, "seller", "trader", "", &fakeConn{})
	_, buyer, _ := c.Join(sess.RoomCode, "buyer", "trader", "", &fakeConn{})

	c.Dispatch(sess, seller, wire.Inbound{
		Op: "order_new", Inst: instID, Side: "sell", Price: "100.00", Qty: 10, TIF: "GFD",
	})
	c.Dispatch(sess, buyer, wire.Inbound{
		Op: "order_new", Inst: instID, Side: "buy", Price: "100.00", Qty: 10, TIF: "GFD",
	})

	buyerConn := buyer.Conn.(*fakeConn)
	sellerConn := seller.Conn.(*fakeConn)

	var buyerGotFill, sellerGotFill bool
	for _, env := range buyerConn.sent {
		if env.Type == "fill" {
			buyerGotFill = true
		}
	}
	for _, env := range sellerConn.sent {
		if env.Type == "fill" {
			sellerGotFill = true
		}
	}
	if !buyerGotFill {
		t.Fatal("taker (buyer) should receive a fill notification")
	}
	if !sellerGotFill {
		t.Fatal("maker (seller) should also receive a fill notification")
	}
}

func TestDispatchCancelAck(t *testing.T) {
	c := testCoordinator(t)
	sess, _ := c.CreateSession("")
	_, exchange, _ := c.Join(sess.RoomCode, "ex", "exchange", "", &fakeConn{})
	instID := addInstrument(t, c, sess, exchange)

	_, trader, _ := c.Join(sess.RoomCode, "alice", "trader", "", &fakeConn{})
	conn := trader.Conn.(*fakeConn)

	c.Dispatch(sess, trader, wire.Inbound{Op: "order_new", Inst: instID, Side: "buy", Price: "100.00", Qty: 5, TIF: "GFD"})
	var orderID uint64
	for _, env := range conn.sent {
		if env.Type == "order_ack" {
			orderID = env.OrderID
		}
	}
	if orderID == 0 {
		t.Fatal("expected a non-zero order id from order_ack")
	}

	conn.sent = nil
	c.Dispatch(sess, trader, wire.Inbound{Op: "cancel", OrderID: orderID})
	var cancelled bool
	for _, env := range conn.sent {
		if env.Type == "cancel_ack" && env.Cancelled {
			cancelled = true
		}
	}
	if !cancelled {
		t.Fatal("expected a successful cancel_ack")
	}
}

func TestDispatchSettleCascadesToOptions(t *testing.T) {
	c := testCoordinator(t)
	sess, _ := c.CreateSession("")
	_, exchange, _ := c.Join(sess.RoomCode, "ex", "exchange", "", &fakeConn{})
	scalarID := addInstrument(t, c, sess, exchange)

	var callID uint64
	sess.run(func() {
		refID := scalarID
		env := dispatchLocked(sess, exchange, wire.Inbound{
			Op: "add_instrument", Symbol: "SPX-C", Type: "CALL",
			TickSize: "1.00", LotSize: 1, TickValue: 1,
			ReferenceID: &refID, Strike: strPtr("100.00"),
		})
		if env.Type == "error" {
			t.Fatalf("add_instrument (call) failed: %s", env.Message)
		}
		callID = env.Instrument.ID
	})

	conn := exchange.Conn.(*fakeConn)
	conn.sent = nil
	c.Dispatch(sess, exchange, wire.Inbound{Op: "settle", Inst: scalarID, Value: "105.00"})

	var sawScalarSettle, sawOptionExpiry bool
	for _, env := range conn.sent {
		if env.Type == "settlement" && env.InstrumentID == scalarID {
			sawScalarSettle = true
		}
		if env.Type == "option_expired" && env.InstrumentID == callID {
			sawOptionExpiry = true
		}
	}
	if !sawScalarSettle {
		t.Fatal("expected a settlement envelope for the scalar")
	}
	if !sawOptionExpiry {
		t.Fatal("expected a cascaded option_expired envelope for the referencing call")
	}
}

func strPtr(s string) *string { return &s }
