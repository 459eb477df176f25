package coordinator

import (
	"crypto/subtle"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rishav/marketmaking-sim/internal/apperrors"
	"github.com/rishav/marketmaking-sim/internal/config"
	"github.com/rishav/marketmaking-sim/internal/export"
)

// Coordinator owns the process-wide table of sessions keyed by room code.
// It exists only for routing; per-room state lives entirely on the Session
// and its Engine.
type Coordinator struct {
	cfg config.Config

	mu       sync.Mutex // guards sessions — held only for create/delete, not per-op
	sessions map[string]*Session
}

// New creates an empty coordinator.
func New(cfg config.Config) *Coordinator {
	return &Coordinator{cfg: cfg, sessions: make(map[string]*Session)}
}

// CreateSession generates a fresh room code, unique among live rooms, and
// starts its engine and ticker.
func (c *Coordinator) CreateSession(passcode string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var code string
	for attempt := 0; attempt < 8; attempt++ {
		candidate, err := newRoomCode()
		if err != nil {
			return nil, apperrors.Internal("room_code_gen", "could not generate room code: %v", err)
		}
		if _, exists := c.sessions[candidate]; !exists {
			code = candidate
			break
		}
	}
	if code == "" {
		return nil, apperrors.Internal("room_code_exhausted", "could not find an unused room code")
	}

	sess := newSession(code, passcode, nowNanos())
	sess.startWorker()
	c.sessions[code] = sess
	startTicker(sess, c.cfg.TickerIntervalMS)
	return sess, nil
}

// Get returns a session by room code, or nil.
func (c *Coordinator) Get(roomCode string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[roomCode]
}

// Join validates the passcode, enforces the single-exchange-per-room
// invariant, and seats a new user with a resume token.
func (c *Coordinator) Join(roomCode, name, roleStr, passcode string, conn Conn) (*Session, *User, error) {
	sess := c.Get(roomCode)
	if sess == nil {
		return nil, nil, apperrors.NotFound("unknown_room", "no session for room %q", roomCode)
	}
	if !sess.Active() {
		return nil, nil, apperrors.State("room_inactive", "room %q is no longer active", roomCode)
	}
	if sess.Passcode != "" && subtle.ConstantTimeCompare([]byte(sess.Passcode), []byte(passcode)) != 1 {
		return nil, nil, apperrors.AuthZ("bad_passcode", "incorrect passcode")
	}
	role, ok := parseRole(roleStr)
	if !ok {
		return nil, nil, apperrors.Envelope("bad_role", "unknown role %q", roleStr)
	}

	token := uuid.NewString()
	user, err := sess.SeatUser(name, role, token, conn, nowNanos(), c.cfg.DefaultLimits())
	if err != nil {
		return nil, nil, err
	}
	return sess, user, nil
}

// Leave removes a user from their session. If it was the session's last
// user, the session is deactivated (but retained until shutdown export).
func (c *Coordinator) Leave(sess *Session, userID uint64) {
	sess.RemoveUser(userID)
	if sess.UserCount() == 0 {
		sess.Deactivate()
	}
}

// Stats is the process-wide summary returned by a /stats query.
type Stats struct {
	SessionCount int            `json:"session_count"`
	ActiveRooms  []string       `json:"active_rooms"`
	UsersByRoom  map[string]int `json:"users_by_room"`
}

// GetStats returns a snapshot of every live session.
func (c *Coordinator) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{SessionCount: len(c.sessions), UsersByRoom: make(map[string]int)}
	for code, sess := range c.sessions {
		if sess.Active() {
			stats.ActiveRooms = append(stats.ActiveRooms, code)
		}
		stats.UsersByRoom[code] = sess.UserCount()
	}
	return stats
}

// SessionCount returns the number of known sessions (active and inactive).
func (c *Coordinator) SessionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// ExportSession writes trades/fills/pnl CSVs for one room, mirroring the
// original gateway's export_session_data output shape.
func (c *Coordinator) ExportSession(roomCode string) error {
	sess := c.Get(roomCode)
	if sess == nil {
		return fmt.Errorf("unknown room %q", roomCode)
	}
	var err error
	sess.run(func() {
		err = export.WriteSession(c.cfg.ExportDir, sess.RoomCode, sess.Engine, sess.userNames())
	})
	return err
}

// abortSession marks sess inactive and exports its data after an engine
// invariant violation, per §7's "internal errors mark the room inactive and
// begin export" policy. Called from Dispatch right after the op that
// tripped the violation has already replied to its caller.
func (c *Coordinator) abortSession(sess *Session, cause error) {
	sess.Deactivate()
	log.Printf("coordinator: room %s aborted on internal error: %v", sess.RoomCode, cause)
	if err := c.ExportSession(sess.RoomCode); err != nil {
		log.Printf("coordinator: export failed for aborted room %s: %v", sess.RoomCode, err)
	}
}

// userNames snapshots user id -> display name for the pnl CSV.
func (s *Session) userNames() map[uint64]string {
	out := make(map[uint64]string)
	for _, u := range s.ListUsers() {
		out[u.ID] = u.Name
	}
	return out
}

// Shutdown exports every session and stops their tickers and workers.
// Called from the server's graceful-shutdown hook.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	codes := make([]string, 0, len(c.sessions))
	for code := range c.sessions {
		codes = append(codes, code)
	}
	c.mu.Unlock()

	for _, code := range codes {
		sess := c.Get(code)
		if sess == nil {
			continue
		}
		close(sess.stopTicker)
		if err := c.ExportSession(code); err != nil {
			fmt.Printf("export failed for room %s: %v\n", code, err)
		}
		sess.closeWorker()
	}
}

func nowNanos() int64 {
	return time.Now().UnixNano()
}
