// Package history is the room's append-only trade and fill record, kept
// in memory for the lifetime of a session and flushed to CSV on export.
//
// There is no cross-restart durability here — the teacher's gob-encoded,
// fsync-capable event log is not needed since sessions are not replayed
// across process restarts. What is kept from that idiom is the
// monotonic-sequence/checksum discipline, repurposed as a cheap internal
// consistency check rather than a crash-recovery mechanism.
package history

import (
	"fmt"
	"hash/crc32"

	"github.com/rishav/marketmaking-sim/internal/order"
)

// Log accumulates every trade and fill produced by a room's engine.
type Log struct {
	trades      []order.Trade
	fills       []order.Fill
	lastSeq     uint64
	checksum    uint32
}

// New creates an empty log.
func New() *Log {
	return &Log{}
}

// AppendTrade records a trade. Sequence numbers must arrive in increasing
// order; a repeat or a step backwards indicates an engine invariant
// violation. Gaps are accepted, since the engine draws trade and order
// sequence numbers from one shared counter.
func (l *Log) AppendTrade(t order.Trade) error {
	if l.lastSeq != 0 && t.SequenceNum <= l.lastSeq {
		return fmt.Errorf("history: out-of-order trade sequence %d after %d", t.SequenceNum, l.lastSeq)
	}
	l.lastSeq = t.SequenceNum
	l.trades = append(l.trades, t)
	l.checksum = crc32.Update(l.checksum, crc32.IEEETable, []byte(fmt.Sprintf("%+v", t)))
	return nil
}

// AppendFill records one side's fill leg of a trade.
func (l *Log) AppendFill(f order.Fill) {
	l.fills = append(l.fills, f)
	l.checksum = crc32.Update(l.checksum, crc32.IEEETable, []byte(fmt.Sprintf("%+v", f)))
}

// Trades returns every recorded trade, oldest first.
func (l *Log) Trades() []order.Trade {
	return l.trades
}

// Fills returns every recorded fill, oldest first.
func (l *Log) Fills() []order.Fill {
	return l.fills
}

// FillsFor returns the fills belonging to one user, oldest first.
func (l *Log) FillsFor(userID uint64) []order.Fill {
	var out []order.Fill
	for _, f := range l.fills {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	return out
}

// Checksum returns the running CRC32 over every appended record, a cheap
// consistency value over what was recorded. It is not used for replay, and
// the CSV export does not read it.
func (l *Log) Checksum() uint32 {
	return l.checksum
}
