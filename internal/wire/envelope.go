// Package wire defines the JSON envelope taxonomy exchanged with clients
// and the one place decimal display-unit prices are converted to and from
// the engine's integer minor units.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Inbound is a client-to-server envelope. Fields not used by Op are left
// zero/empty; the router validates required fields per op.
type Inbound struct {
	Op string `json:"op"`

	Passcode string `json:"passcode,omitempty"`
	Room     string `json:"room,omitempty"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role,omitempty"`

	Timestamp int64 `json:"timestamp,omitempty"`

	Symbol      string  `json:"symbol,omitempty"`
	Type        string  `json:"type,omitempty"`
	TickSize    string  `json:"tick_size,omitempty"`
	LotSize     int64   `json:"lot_size,omitempty"`
	TickValue   float64 `json:"tick_value,omitempty"`
	Strike      *string `json:"strike,omitempty"`
	ReferenceID *uint64 `json:"reference_id,omitempty"`

	Inst uint64 `json:"inst,omitempty"`
	Side string `json:"side,omitempty"`
	Price string `json:"price,omitempty"`
	Qty   int64  `json:"qty,omitempty"`
	TIF   string `json:"tif,omitempty"`
	PostOnly bool `json:"post_only,omitempty"`

	OrderID  uint64   `json:"order_id,omitempty"`
	OrderIDs []uint64 `json:"order_ids,omitempty"`

	Value string `json:"value,omitempty"`
	On    bool   `json:"on,omitempty"`

	InstrumentID uint64 `json:"instrument_id,omitempty"`
	SpotPrice    string `json:"spot_price,omitempty"`
}

// Outbound is a server-to-client envelope. Type selects which payload
// fields are populated; unused fields are omitted via omitempty.
type Outbound struct {
	Type string `json:"type"`

	RoomCode string `json:"room_code,omitempty"`

	UserID       uint64   `json:"user_id,omitempty"`
	Role         string   `json:"role,omitempty"`
	ResumeToken  string   `json:"resume_token,omitempty"`
	Instruments  []InstrumentView `json:"instruments,omitempty"`

	Timestamp  int64 `json:"timestamp,omitempty"`
	ServerTime int64 `json:"server_time,omitempty"`

	Instrument *InstrumentView `json:"instrument,omitempty"`

	OrderID      uint64 `json:"order_id,omitempty"`
	Accepted     bool   `json:"accepted,omitempty"`
	RejectReason string `json:"reject_reason,omitempty"`
	RejectCode   string `json:"reject_code,omitempty"`

	Fill *FillView `json:"fill,omitempty"`

	Cancelled bool `json:"cancelled,omitempty"`
	Count     int  `json:"count,omitempty"`

	Inst  uint64     `json:"inst,omitempty"`
	Bids  [][2]string `json:"bids,omitempty"`
	Asks  [][2]string `json:"asks,omitempty"`
	Last  string     `json:"last,omitempty"`
	Ts    int64      `json:"ts,omitempty"`

	Positions []PositionView `json:"positions,omitempty"`
	PnL       []PnLView      `json:"pnl,omitempty"`

	InstrumentID    uint64 `json:"instrument_id,omitempty"`
	SettlementValue string `json:"settlement_value,omitempty"`

	On bool `json:"on,omitempty"`

	TickSize string `json:"tick_size,omitempty"`

	UserName string `json:"user_name,omitempty"`

	Message string `json:"message,omitempty"`

	Path string `json:"path,omitempty"`
}

// InstrumentView is the wire shape of an instrument.
type InstrumentView struct {
	ID          uint64  `json:"id"`
	Symbol      string  `json:"symbol"`
	Type        string  `json:"type"`
	TickSize    string  `json:"tick_size"`
	LotSize     int64   `json:"lot_size"`
	TickValue   float64 `json:"tick_value"`
	Halted      bool    `json:"halted"`
	Strike      string  `json:"strike,omitempty"`
	ReferenceID uint64  `json:"reference_id,omitempty"`
}

// FillView is the wire shape of one fill leg.
type FillView struct {
	OrderID      uint64 `json:"order_id"`
	InstrumentID uint64 `json:"instrument_id"`
	Side         string `json:"side"`
	Price        string `json:"price"`
	Qty          int64  `json:"qty"`
	Counterparty uint64 `json:"counterparty"`
	Timestamp    int64  `json:"timestamp"`
}

// PositionView is the wire shape of a user's position.
type PositionView struct {
	InstrumentID uint64 `json:"instrument_id"`
	NetQty       int64  `json:"net_qty"`
	VWAP         string `json:"vwap"`
}

// PnLView is the wire shape of a user's PnL.
type PnLView struct {
	InstrumentID  uint64  `json:"instrument_id"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	TotalPnL      float64 `json:"total_pnl"`
}

// ToMinor converts a wire decimal display-unit string (e.g. "100.01") to
// integer minor units (10001). This is the one conversion boundary the
// engine core never crosses itself.
func ToMinor(display string) (int64, error) {
	d, err := decimal.NewFromString(display)
	if err != nil {
		return 0, fmt.Errorf("invalid decimal price %q: %w", display, err)
	}
	return d.Mul(decimal.NewFromInt(100)).IntPart(), nil
}

// FromMinor converts an integer minor-unit price back to a wire decimal
// display-unit string.
func FromMinor(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// Marshal encodes an Outbound envelope as JSON bytes.
func Marshal(o Outbound) ([]byte, error) {
	return json.Marshal(o)
}

// Unmarshal decodes a client frame into an Inbound envelope.
func Unmarshal(data []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, fmt.Errorf("malformed envelope: %w", err)
	}
	if in.Op == "" {
		return Inbound{}, fmt.Errorf("missing op field")
	}
	return in, nil
}
