// Package transport wires the coordinator to the outside world: one
// gorilla/websocket connection per client, plus health/stats HTTP endpoints.
// The Prometheus /metrics endpoint is served separately, by cmd/roomd
// through internal/metrics.
package transport

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rishav/marketmaking-sim/internal/coordinator"
	"github.com/rishav/marketmaking-sim/internal/instrument"
	"github.com/rishav/marketmaking-sim/internal/wire"
)

func nowNanos() int64 {
	return time.Now().UnixNano()
}

func toInstrumentView(inst *instrument.Instrument) wire.InstrumentView {
	v := wire.InstrumentView{
		ID: inst.ID, Symbol: inst.Symbol, Type: inst.Variant.String(),
		TickSize: wire.FromMinor(inst.TickSize), LotSize: inst.LotSize,
		TickValue: inst.TickValue, Halted: inst.Halted, ReferenceID: inst.ReferenceID,
	}
	if inst.Variant == instrument.VariantCall || inst.Variant == instrument.VariantPut {
		v.Strike = wire.FromMinor(inst.Strike)
	}
	return v
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsConn adapts a gorilla websocket connection to coordinator.Conn. Writes
// are serialized with a mutex since gorilla forbids concurrent writers on
// one connection, but the room worker (which also runs the ticker's
// broadcasts) and this connection's own read loop can both send to the same
// user concurrently.
type wsConn struct {
	mu sync.Mutex
	c  *websocket.Conn
}

func (w *wsConn) Send(env wire.Outbound) error {
	data, err := wire.Marshal(env)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) Close() error {
	return w.c.Close()
}

// Server binds a coordinator to HTTP handlers.
type Server struct {
	Coordinator *coordinator.Coordinator
}

// NewServer creates a transport server over an existing coordinator.
func NewServer(c *coordinator.Coordinator) *Server {
	return &Server{Coordinator: c}
}

// Routes registers the websocket endpoint and health/stats handlers on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/stats", s.handleStats)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":   "ok",
		"service":  "room-based market-making trading simulator",
		"sessions": s.Coordinator.SessionCount(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Coordinator.GetStats())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("transport: failed writing response: %v", err)
	}
}

// handleWS upgrades the connection and runs the per-client read loop. A
// client that hasn't joined a room may only invoke create_room/join/ping;
// everything else requires an active session + user.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("transport: upgrade failed: %v", err)
		return
	}
	conn := &wsConn{c: raw}
	defer conn.Close()

	var sess *clientSession
	defer func() {
		if sess != nil {
			s.Coordinator.Leave(sess.session, sess.user.ID)
		}
	}()

	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			return
		}

		in, err := wire.Unmarshal(data)
		if err != nil {
			conn.Send(wire.Outbound{Type: "error", Message: err.Error()})
			continue
		}

		switch {
		case in.Op == "create_room":
			s.handleCreateRoom(conn, in)
		case in.Op == "join":
			sess = s.handleJoin(conn, in)
		case in.Op == "ping":
			handlePing(conn, in)
		case sess == nil:
			conn.Send(wire.Outbound{Type: "error", Message: "join a room before sending " + in.Op})
		default:
			s.Coordinator.Dispatch(sess.session, sess.user, in)
		}
	}
}

type clientSession struct {
	session *coordinator.Session
	user    *coordinator.User
}

func (s *Server) handleCreateRoom(conn *wsConn, in wire.Inbound) {
	sess, err := s.Coordinator.CreateSession(in.Passcode)
	if err != nil {
		conn.Send(wire.Outbound{Type: "error", Message: err.Error()})
		return
	}
	conn.Send(wire.Outbound{Type: "room_created", RoomCode: sess.RoomCode})
}

func (s *Server) handleJoin(conn *wsConn, in wire.Inbound) *clientSession {
	sess, user, err := s.Coordinator.Join(in.Room, in.Name, in.Role, in.Passcode, conn)
	if err != nil {
		conn.Send(wire.Outbound{Type: "error", Message: err.Error()})
		return nil
	}

	var views []wire.InstrumentView
	for _, inst := range sess.Engine.Instruments.List() {
		views = append(views, toInstrumentView(inst))
	}

	conn.Send(wire.Outbound{
		Type: "join_ack", UserID: user.ID, Role: user.Role.String(),
		ResumeToken: user.ResumeToken, RoomCode: sess.RoomCode, Instruments: views,
	})
	return &clientSession{session: sess, user: user}
}

func handlePing(conn *wsConn, in wire.Inbound) {
	conn.Send(wire.Outbound{Type: "pong", Timestamp: in.Timestamp, ServerTime: nowNanos()})
}
