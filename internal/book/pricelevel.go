// Package book implements the limit order book: price levels organized by a
// red-black tree, with FIFO queues at each level for price-time priority.
package book

import (
	"github.com/rishav/marketmaking-sim/internal/order"
)

// OrderNode is a node in the doubly-linked list of orders at a price level.
// A doubly-linked list gives O(1) removal from anywhere in the queue, which
// matters for fast cancellation.
type OrderNode struct {
	Order *order.Order
	prev  *OrderNode
	next  *OrderNode
	level *PriceLevel
}

// Next returns the next node in the queue.
func (n *OrderNode) Next() *OrderNode {
	return n.next
}

// PriceLevel holds every order resting at one price, in arrival order.
type PriceLevel struct {
	Price    int64
	head     *OrderNode
	tail     *OrderNode
	count    int
	TotalQty int64
}

// NewPriceLevel creates an empty price level.
func NewPriceLevel(price int64) *PriceLevel {
	return &PriceLevel{Price: price}
}

// Count returns the number of orders at this level.
func (pl *PriceLevel) Count() int {
	return pl.count
}

// IsEmpty reports whether the level has no resting orders.
func (pl *PriceLevel) IsEmpty() bool {
	return pl.count == 0
}

// Head returns the first (oldest, highest-priority) node.
func (pl *PriceLevel) Head() *OrderNode {
	return pl.head
}

// Append adds an order to the back of the queue. O(1).
func (pl *PriceLevel) Append(o *order.Order) *OrderNode {
	node := &OrderNode{Order: o, level: pl}
	if pl.tail == nil {
		pl.head = node
		pl.tail = node
	} else {
		node.prev = pl.tail
		pl.tail.next = node
		pl.tail = node
	}
	pl.count++
	pl.TotalQty += o.RemainingQty
	return node
}

// Remove deletes a node from the queue in place. O(1).
func (pl *PriceLevel) Remove(node *OrderNode) {
	if node == nil {
		return
	}
	pl.TotalQty -= node.Order.RemainingQty
	pl.count--

	if node.prev != nil {
		node.prev.next = node.next
	} else {
		pl.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		pl.tail = node.prev
	}
	node.prev = nil
	node.next = nil
	node.level = nil
}

// PopFront removes and returns the oldest order at this level.
func (pl *PriceLevel) PopFront() *order.Order {
	if pl.head == nil {
		return nil
	}
	node := pl.head
	o := node.Order

	pl.TotalQty -= o.RemainingQty
	pl.count--
	pl.head = node.next
	if pl.head != nil {
		pl.head.prev = nil
	} else {
		pl.tail = nil
	}
	node.next = nil
	node.level = nil
	return o
}

// UpdateQuantity adjusts TotalQty after a partial fill on a resting order.
func (pl *PriceLevel) UpdateQuantity(delta int64) {
	pl.TotalQty += delta
}

// Orders returns every order at this level, oldest first. Allocates; use for
// snapshots, not the hot path.
func (pl *PriceLevel) Orders() []*order.Order {
	out := make([]*order.Order, 0, pl.count)
	for n := pl.head; n != nil; n = n.next {
		out = append(out, n.Order)
	}
	return out
}
