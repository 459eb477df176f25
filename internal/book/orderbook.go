package book

import (
	"fmt"
	"strings"

	"github.com/rishav/marketmaking-sim/internal/order"
)

// Book maintains the bid and ask sides of a single instrument's market
// within a room. Bids are a red-black tree ordered highest-price-first;
// asks are ordered lowest-price-first. Each price level is a FIFO queue, so
// matching walks price-then-time priority.
type Book struct {
	instrumentID uint64
	bids         *RBTree
	asks         *RBTree
	orders       map[uint64]*OrderNode
}

// New creates an empty book for one instrument.
func New(instrumentID uint64) *Book {
	return &Book{
		instrumentID: instrumentID,
		bids:         NewRBTree(true),
		asks:         NewRBTree(false),
		orders:       make(map[uint64]*OrderNode),
	}
}

// InstrumentID returns the instrument this book belongs to.
func (b *Book) InstrumentID() uint64 {
	return b.instrumentID
}

// AddOrder rests an order on the appropriate side. Returns an error if the
// order id is already present.
func (b *Book) AddOrder(o *order.Order) error {
	if _, exists := b.orders[o.ID]; exists {
		return fmt.Errorf("order %d already exists", o.ID)
	}

	tree := b.getTree(o.Side)
	level := tree.Get(o.LimitPrice)
	if level == nil {
		level = NewPriceLevel(o.LimitPrice)
		tree.Insert(level)
	}

	node := level.Append(o)
	b.orders[o.ID] = node
	return nil
}

// CancelOrder removes an order from the book, returning it, or nil if the
// order id is not resting.
func (b *Book) CancelOrder(orderID uint64) *order.Order {
	node, exists := b.orders[orderID]
	if !exists {
		return nil
	}

	o := node.Order
	level := node.level
	tree := b.getTree(o.Side)

	level.Remove(node)
	delete(b.orders, orderID)

	if level.IsEmpty() {
		tree.Delete(level.Price)
	}
	return o
}

// GetOrder returns a resting order by id, or nil.
func (b *Book) GetOrder(orderID uint64) *order.Order {
	node, exists := b.orders[orderID]
	if !exists {
		return nil
	}
	return node.Order
}

// BestBid returns the highest bid level, or nil.
func (b *Book) BestBid() *PriceLevel {
	return b.bids.Min()
}

// BestAsk returns the lowest ask level, or nil.
func (b *Book) BestAsk() *PriceLevel {
	return b.asks.Min()
}

// Spread returns best ask minus best bid, or 0 if either side is empty.
func (b *Book) Spread() int64 {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid == nil || ask == nil {
		return 0
	}
	return ask.Price - bid.Price
}

// MidPrice returns the midpoint of best bid and ask, or 0 if either side is
// empty.
func (b *Book) MidPrice() int64 {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid == nil || ask == nil {
		return 0
	}
	return (bid.Price + ask.Price) / 2
}

// BidLevels returns the number of distinct bid price levels.
func (b *Book) BidLevels() int {
	return b.bids.Size()
}

// AskLevels returns the number of distinct ask price levels.
func (b *Book) AskLevels() int {
	return b.asks.Size()
}

// TotalOrders returns the number of resting orders in the book.
func (b *Book) TotalOrders() int {
	return len(b.orders)
}

// BidDepth returns the top N bid levels, best first. N<=0 returns all.
func (b *Book) BidDepth(n int) []*PriceLevel {
	return b.getDepth(b.bids, n)
}

// AskDepth returns the top N ask levels, best first. N<=0 returns all.
func (b *Book) AskDepth(n int) []*PriceLevel {
	return b.getDepth(b.asks, n)
}

func (b *Book) getDepth(tree *RBTree, maxLevels int) []*PriceLevel {
	result := make([]*PriceLevel, 0)
	count := 0
	tree.ForEach(func(level *PriceLevel) bool {
		result = append(result, level)
		count++
		if maxLevels > 0 && count >= maxLevels {
			return false
		}
		return true
	})
	return result
}

// CancelAll removes every resting order belonging to userID, returning the
// cancelled orders.
func (b *Book) CancelAll(userID uint64) []*order.Order {
	ids := make([]uint64, 0)
	for id, node := range b.orders {
		if node.Order.UserID == userID {
			ids = append(ids, id)
		}
	}
	out := make([]*order.Order, 0, len(ids))
	for _, id := range ids {
		if o := b.CancelOrder(id); o != nil {
			out = append(out, o)
		}
	}
	return out
}

// PullQuotes cancels every resting order in the book, regardless of owner,
// and returns them. Used when an instrument's tick size changes.
func (b *Book) PullQuotes() []*order.Order {
	ids := make([]uint64, 0, len(b.orders))
	for id := range b.orders {
		ids = append(ids, id)
	}
	out := make([]*order.Order, 0, len(ids))
	for _, id := range ids {
		if o := b.CancelOrder(id); o != nil {
			out = append(out, o)
		}
	}
	return out
}

func (b *Book) getTree(side order.Side) *RBTree {
	if side == order.SideBuy {
		return b.bids
	}
	return b.asks
}

// String renders a compact depth-5 snapshot for logging.
func (b *Book) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== instrument %d book ===\n", b.instrumentID)

	asks := b.AskDepth(5)
	sb.WriteString("ASKS:\n")
	for i := len(asks) - 1; i >= 0; i-- {
		level := asks[i]
		fmt.Fprintf(&sb, "  %s: %d (%d orders)\n", order.FormatMinor(level.Price), level.TotalQty, level.Count())
	}

	if spread := b.Spread(); spread > 0 {
		fmt.Fprintf(&sb, "--- spread: %s ---\n", order.FormatMinor(spread))
	} else {
		sb.WriteString("--- no spread ---\n")
	}

	bids := b.BidDepth(5)
	sb.WriteString("BIDS:\n")
	for _, level := range bids {
		fmt.Fprintf(&sb, "  %s: %d (%d orders)\n", order.FormatMinor(level.Price), level.TotalQty, level.Count())
	}

	return sb.String()
}
