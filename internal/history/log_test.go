package history

import (
	"testing"

	"github.com/rishav/marketmaking-sim/internal/order"
)

func TestAppendTradeRejectsOutOfOrderSequence(t *testing.T) {
	l := New()
	if err := l.AppendTrade(order.Trade{SequenceNum: 1}); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := l.AppendTrade(order.Trade{SequenceNum: 2}); err != nil {
		t.Fatalf("second append: %v", err)
	}
	if err := l.AppendTrade(order.Trade{SequenceNum: 2}); err == nil {
		t.Fatal("expected an error for a repeated sequence number")
	}
	if err := l.AppendTrade(order.Trade{SequenceNum: 1}); err == nil {
		t.Fatal("expected an error for a sequence number going backwards")
	}
}

func TestFillsForFiltersByUser(t *testing.T) {
	l := New()
	l.AppendFill(order.Fill{UserID: 1, OrderID: 10})
	l.AppendFill(order.Fill{UserID: 2, OrderID: 11})
	l.AppendFill(order.Fill{UserID: 1, OrderID: 12})

	fills := l.FillsFor(1)
	if len(fills) != 2 {
		t.Fatalf("expected 2 fills for user 1, got %d", len(fills))
	}
	if fills[0].OrderID != 10 || fills[1].OrderID != 12 {
		t.Fatalf("expected fills in append order, got %+v", fills)
	}
}

func TestChecksumChangesWithContent(t *testing.T) {
	l := New()
	before := l.Checksum()
	l.AppendFill(order.Fill{UserID: 1, OrderID: 1, Qty: 5})
	after := l.Checksum()
	if before == after {
		t.Fatal("checksum should change after appending a record")
	}
}

func TestTradesAndFillsPreserveOrder(t *testing.T) {
	l := New()
	l.AppendTrade(order.Trade{SequenceNum: 1, ID: 100})
	l.AppendTrade(order.Trade{SequenceNum: 2, ID: 101})
	trades := l.Trades()
	if len(trades) != 2 || trades[0].ID != 100 || trades[1].ID != 101 {
		t.Fatalf("expected trades in append order, got %+v", trades)
	}
}
