package book

import (
	"testing"

	"github.com/rishav/marketmaking-sim/internal/order"
)

func newOrder(id uint64, side order.Side, price, qty int64, userID uint64) *order.Order {
	return &order.Order{
		ID:           id,
		UserID:       userID,
		Side:         side,
		LimitPrice:   price,
		OriginalQty:  qty,
		RemainingQty: qty,
		Status:       order.StatusNew,
	}
}

func TestBestBidAskAndSpread(t *testing.T) {
	b := New(1)
	if err := b.AddOrder(newOrder(1, order.SideBuy, 9900, 10, 1)); err != nil {
		t.Fatalf("add bid: %v", err)
	}
	if err := b.AddOrder(newOrder(2, order.SideBuy, 9800, 10, 1)); err != nil {
		t.Fatalf("add bid: %v", err)
	}
	if err := b.AddOrder(newOrder(3, order.SideSell, 10100, 10, 2)); err != nil {
		t.Fatalf("add ask: %v", err)
	}

	if got := b.BestBid(); got == nil || got.Price != 9900 {
		t.Fatalf("expected best bid 9900, got %+v", got)
	}
	if got := b.BestAsk(); got == nil || got.Price != 10100 {
		t.Fatalf("expected best ask 10100, got %+v", got)
	}
	if got := b.Spread(); got != 200 {
		t.Fatalf("expected spread 200, got %d", got)
	}
	if got := b.MidPrice(); got != 10000 {
		t.Fatalf("expected mid 10000, got %d", got)
	}
}

func TestFIFOWithinLevel(t *testing.T) {
	b := New(1)
	b.AddOrder(newOrder(1, order.SideBuy, 100, 5, 1))
	b.AddOrder(newOrder(2, order.SideBuy, 100, 5, 2))
	b.AddOrder(newOrder(3, order.SideBuy, 100, 5, 3))

	level := b.BestBid()
	orders := level.Orders()
	if len(orders) != 3 {
		t.Fatalf("expected 3 orders at level, got %d", len(orders))
	}
	for i, want := range []uint64{1, 2, 3} {
		if orders[i].ID != want {
			t.Errorf("FIFO order[%d].ID = %d, want %d", i, orders[i].ID, want)
		}
	}
}

func TestCancelOrderRemovesEmptyLevel(t *testing.T) {
	b := New(1)
	b.AddOrder(newOrder(1, order.SideBuy, 100, 5, 1))
	if b.BidLevels() != 1 {
		t.Fatalf("expected 1 bid level, got %d", b.BidLevels())
	}

	cancelled := b.CancelOrder(1)
	if cancelled == nil || cancelled.ID != 1 {
		t.Fatalf("expected to cancel order 1, got %+v", cancelled)
	}
	if b.BidLevels() != 0 {
		t.Fatalf("expected empty level to be pruned, got %d levels", b.BidLevels())
	}
	if b.CancelOrder(1) != nil {
		t.Fatal("cancelling an already-cancelled id should be a no-op")
	}
}

func TestCancelAllScopesToUser(t *testing.T) {
	b := New(1)
	b.AddOrder(newOrder(1, order.SideBuy, 100, 5, 1))
	b.AddOrder(newOrder(2, order.SideBuy, 101, 5, 2))
	b.AddOrder(newOrder(3, order.SideSell, 200, 5, 1))

	cancelled := b.CancelAll(1)
	if len(cancelled) != 2 {
		t.Fatalf("expected 2 orders cancelled for user 1, got %d", len(cancelled))
	}
	if b.TotalOrders() != 1 {
		t.Fatalf("expected 1 remaining order, got %d", b.TotalOrders())
	}
	if b.GetOrder(2) == nil {
		t.Fatal("user 2's order should remain resting")
	}
}

func TestPullQuotesClearsBothSides(t *testing.T) {
	b := New(1)
	b.AddOrder(newOrder(1, order.SideBuy, 100, 5, 1))
	b.AddOrder(newOrder(2, order.SideSell, 200, 5, 2))

	pulled := b.PullQuotes()
	if len(pulled) != 2 {
		t.Fatalf("expected 2 pulled orders, got %d", len(pulled))
	}
	if b.TotalOrders() != 0 {
		t.Fatalf("expected empty book after pull, got %d orders", b.TotalOrders())
	}
}

func TestDepthOrderingBestFirst(t *testing.T) {
	b := New(1)
	b.AddOrder(newOrder(1, order.SideBuy, 100, 5, 1))
	b.AddOrder(newOrder(2, order.SideBuy, 102, 5, 1))
	b.AddOrder(newOrder(3, order.SideBuy, 101, 5, 1))

	depth := b.BidDepth(0)
	if len(depth) != 3 {
		t.Fatalf("expected 3 levels, got %d", len(depth))
	}
	prices := []int64{depth[0].Price, depth[1].Price, depth[2].Price}
	if prices[0] != 102 || prices[1] != 101 || prices[2] != 100 {
		t.Fatalf("expected descending bid depth, got %v", prices)
	}

	b2 := New(2)
	b2.AddOrder(newOrder(4, order.SideSell, 105, 5, 1))
	b2.AddOrder(newOrder(5, order.SideSell, 103, 5, 1))
	b2.AddOrder(newOrder(6, order.SideSell, 104, 5, 1))
	askDepth := b2.AskDepth(0)
	askPrices := []int64{askDepth[0].Price, askDepth[1].Price, askDepth[2].Price}
	if askPrices[0] != 103 || askPrices[1] != 104 || askPrices[2] != 105 {
		t.Fatalf("expected ascending ask depth, got %v", askPrices)
	}
}

func TestAddOrderRejectsDuplicateID(t *testing.T) {
	b := New(1)
	b.AddOrder(newOrder(1, order.SideBuy, 100, 5, 1))
	if err := b.AddOrder(newOrder(1, order.SideBuy, 101, 5, 2)); err == nil {
		t.Fatal("expected error adding a duplicate order id")
	}
}
