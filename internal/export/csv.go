// Package export writes a room's trade/fill/pnl history to CSV on
// shutdown, matching the original gateway's export_session_data output:
// three files per room under exports/<room_code>/, each timestamped.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rishav/marketmaking-sim/internal/matching"
	"github.com/rishav/marketmaking-sim/internal/order"
	"github.com/rishav/marketmaking-sim/internal/position"
)

// WriteSession writes trades_*.csv, fills_*.csv, and pnl_*.csv for one room
// into <dir>/<roomCode>/, using userNames to label the pnl rows.
func WriteSession(dir, roomCode string, engine *matching.Engine, userNames map[uint64]string) error {
	roomDir := filepath.Join(dir, roomCode)
	if err := os.MkdirAll(roomDir, 0o755); err != nil {
		return fmt.Errorf("export: creating %s: %w", roomDir, err)
	}

	stamp := time.Now().Format("20060102T150405")

	if err := writeTrades(filepath.Join(roomDir, "trades_"+stamp+".csv"), engine.History.Trades()); err != nil {
		return err
	}
	if err := writeFills(filepath.Join(roomDir, "fills_"+stamp+".csv"), engine.History.Fills()); err != nil {
		return err
	}
	if err := writePnL(filepath.Join(roomDir, "pnl_"+stamp+".csv"), engine, userNames); err != nil {
		return err
	}
	return nil
}

func writeTrades(path string, trades []order.Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"timestamp", "instrument_id", "buyer_id", "seller_id", "price", "quantity", "buy_order_id", "sell_order_id"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, t := range trades {
		row := []string{
			strconv.FormatInt(t.Timestamp, 10),
			strconv.FormatUint(t.InstrumentID, 10),
			strconv.FormatUint(t.BuyerID, 10),
			strconv.FormatUint(t.SellerID, 10),
			order.FormatMinor(t.Price),
			strconv.FormatInt(t.Qty, 10),
			strconv.FormatUint(t.BuyOrderID, 10),
			strconv.FormatUint(t.SellOrderID, 10),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

func writeFills(path string, fills []order.Fill) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"timestamp", "order_id", "user_id", "instrument_id", "side", "price", "quantity"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, fl := range fills {
		row := []string{
			strconv.FormatInt(fl.Timestamp, 10),
			strconv.FormatUint(fl.OrderID, 10),
			strconv.FormatUint(fl.UserID, 10),
			strconv.FormatUint(fl.InstrumentID, 10),
			fl.Side.String(),
			order.FormatMinor(fl.Price),
			strconv.FormatInt(fl.Qty, 10),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

func writePnL(path string, engine *matching.Engine, userNames map[uint64]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"user_id", "user_name", "total_pnl", "positions"}
	if err := w.Write(header); err != nil {
		return err
	}

	for userID, name := range userNames {
		positions := engine.Positions.ForUser(userID)
		total := 0.0
		var summary string
		for i, p := range positions {
			inst := engine.Instruments.Get(p.InstrumentID)
			tickValue := 1.0
			if inst != nil {
				tickValue = inst.TickValue
			}
			mark := p.VWAP
			if snap, err := engine.GetSnapshot(p.InstrumentID, 1); err == nil && snap.HasLast {
				mark = snap.LastPrice
			}
			unrealized := position.Unrealized(*p, mark, tickValue)
			total += p.RealizedPnL + unrealized
			if i > 0 {
				summary += ";"
			}
			summary += fmt.Sprintf("%d:%d@%s", p.InstrumentID, p.NetQty, order.FormatMinor(p.VWAP))
		}
		row := []string{
			strconv.FormatUint(userID, 10),
			name,
			strconv.FormatFloat(total, 'f', 2, 64),
			summary,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}
