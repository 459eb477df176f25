// Package order defines the core order, fill, and trade types shared by the
// matching engine.
//
// Prices are stored as signed integer minor units ("cents"): $100.25 is
// 10025. Quantities are plain non-negative integers. Conversion to/from
// decimal display units happens only at the wire boundary (see
// internal/wire), never inside the engine.
package order

import "fmt"

// Side is which side of the book an order rests on.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// TIF is the time-in-force of an order.
type TIF int

const (
	// TIFGFD rests until the room ends (good-for-day).
	TIFGFD TIF = iota
	// TIFIOC fills what it can immediately, discards the rest.
	TIFIOC
)

func (t TIF) String() string {
	if t == TIFIOC {
		return "IOC"
	}
	return "GFD"
}

// Status is the lifecycle state of an order.
type Status int

const (
	StatusNew Status = iota
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case StatusFilled:
		return "FILLED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether the order can no longer be matched, cancelled,
// or replaced.
func (s Status) IsTerminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// Order is a single resting or terminal order, unique by ID within a room.
// Order IDs are never reused.
type Order struct {
	ID            uint64
	SequenceNum   uint64 // monotonic across the whole room, the FIFO tiebreaker
	UserID        uint64
	InstrumentID  uint64
	Side          Side
	LimitPrice    int64 // minor units
	OriginalQty   int64
	RemainingQty  int64
	TIF           TIF
	PostOnly      bool
	Status        Status
	CreatedAt     int64 // unix nanoseconds
}

// Filled reports whether the order has no remaining quantity.
func (o *Order) Filled() bool {
	return o.RemainingQty <= 0
}

func (o *Order) String() string {
	return fmt.Sprintf("Order{ID:%d, %s inst:%d %d/%d@%d, %s}",
		o.ID, o.Side, o.InstrumentID, o.RemainingQty, o.OriginalQty, o.LimitPrice, o.Status)
}

// Fill is one side of a trade execution, as seen by the named user.
type Fill struct {
	TradeID      uint64
	OrderID      uint64
	UserID       uint64
	InstrumentID uint64
	Side         Side
	Price        int64 // minor units; always the resting (maker) order's price
	Qty          int64
	Timestamp    int64
	Counterparty uint64 // the other side's order id
}

// Trade is the immutable record of a single crossing event, from the
// perspective of reporting and export rather than either side's fill.
type Trade struct {
	ID           uint64
	InstrumentID uint64
	Price        int64
	Qty          int64
	BuyOrderID   uint64
	SellOrderID  uint64
	BuyerID      uint64
	SellerID     uint64
	Timestamp    int64
	SequenceNum  uint64
}

// Result is the outcome of a submit/replace call.
type Result struct {
	Accepted     bool
	Order        *Order
	Fills        []Fill
	RejectReason string
	RejectCode   string
}

// FormatMinor renders a minor-unit integer price as a display string, e.g.
// 10025 -> "100.25". Used for logging, risk messages and the CSV export;
// wire formatting goes through internal/wire so the boundary conversion is
// in one place.
func FormatMinor(minor int64) string {
	whole := minor / 100
	frac := minor % 100
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%02d", whole, frac)
}
