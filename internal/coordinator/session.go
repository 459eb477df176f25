package coordinator

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/rishav/marketmaking-sim/internal/apperrors"
	"github.com/rishav/marketmaking-sim/internal/matching"
	"github.com/rishav/marketmaking-sim/internal/risk"
	"github.com/rishav/marketmaking-sim/internal/wire"
)

// Role is a user's authority within a room.
type Role int

const (
	RoleTrader Role = iota
	RoleExchange
)

func (r Role) String() string {
	if r == RoleExchange {
		return "exchange"
	}
	return "trader"
}

func parseRole(s string) (Role, bool) {
	switch strings.ToLower(s) {
	case "exchange":
		return RoleExchange, true
	case "trader":
		return RoleTrader, true
	default:
		return 0, false
	}
}

// Conn is the transport-agnostic outbound sink for one user's connection.
// internal/transport supplies the concrete websocket implementation.
type Conn interface {
	Send(wire.Outbound) error
}

// User is one participant in a session.
type User struct {
	ID          uint64
	Name        string
	Role        Role
	ResumeToken string
	JoinedAt    int64
	Conn        Conn
}

// Session is one isolated trading venue: a room code, its engine, and its
// user table. Per spec, a session exclusively owns its engine and its user
// entries, and at most one user may hold RoleExchange.
type Session struct {
	RoomCode string
	Passcode string
	Engine   *matching.Engine
	CreatedAt int64

	mu         sync.Mutex // guards Users/nextUserID/active — structural changes only
	Users      map[uint64]*User
	nextUserID uint64
	active     bool

	cmdCh      chan func()
	stopTicker chan struct{}
}

// newRoomCode generates a 6-character uppercase hex code, matching the
// original gateway's secrets.token_hex(3).upper() scheme.
func newRoomCode() (string, error) {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

func newSession(roomCode, passcode string, now int64) *Session {
	return &Session{
		RoomCode:   roomCode,
		Passcode:   passcode,
		Engine:     matching.New(),
		CreatedAt:  now,
		Users:      make(map[uint64]*User),
		active:     true,
		cmdCh:      make(chan func(), 256),
		stopTicker: make(chan struct{}),
	}
}

// hasExchangeLocked reports whether a user with RoleExchange is already
// seated. Callers must hold s.mu.
func (s *Session) hasExchangeLocked() bool {
	for _, u := range s.Users {
		if u.Role == RoleExchange {
			return true
		}
	}
	return false
}

// SeatUser checks the single-exchange-per-room invariant and registers the
// new user atomically under one lock, so two concurrent joins racing for
// the exchange seat cannot both observe it as vacant.
func (s *Session) SeatUser(name string, role Role, resumeToken string, conn Conn, now int64, limits risk.Limits) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if role == RoleExchange && s.hasExchangeLocked() {
		return nil, apperrors.AuthZ("exchange_seat_taken", "room %q already has an exchange", s.RoomCode)
	}
	s.nextUserID++
	u := &User{ID: s.nextUserID, Name: name, Role: role, ResumeToken: resumeToken, JoinedAt: now, Conn: conn}
	s.Users[u.ID] = u
	s.Engine.Risk.SetLimits(u.ID, limits)
	return u, nil
}

// RemoveUser deletes a user from the session's table. Resting orders are
// left untouched — a disconnected client's orders are not auto-cancelled,
// mirroring a real exchange.
func (s *Session) RemoveUser(userID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Users, userID)
}

// UserCount returns the number of currently joined users.
func (s *Session) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Users)
}

// ListUsers returns a snapshot of every joined user.
func (s *Session) ListUsers() []*User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*User, 0, len(s.Users))
	for _, u := range s.Users {
		out = append(out, u)
	}
	return out
}

// GetUser returns a user by id, or nil.
func (s *Session) GetUser(userID uint64) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Users[userID]
}

// Deactivate marks the session inactive; called when its last user leaves
// or an internal engine error aborts it.
func (s *Session) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
}

// Active reports whether the session still accepts work.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// run executes fn on the session's single worker goroutine and blocks until
// it completes, serializing every mutation (and, for simplicity, every
// query) through one logical queue per room. This is the channel-based
// per-room worker the concurrency model calls for in place of a process-wide
// lock-free ring buffer: inter-room work is fully independent since each
// session owns its own channel and goroutine.
func (s *Session) run(fn func()) {
	done := make(chan struct{})
	s.cmdCh <- func() {
		fn()
		close(done)
	}
	<-done
}

// startWorker launches the session's single command-processing goroutine.
// It exits when cmdCh is closed.
func (s *Session) startWorker() {
	go func() {
		for fn := range s.cmdCh {
			fn()
		}
	}()
}

// closeWorker shuts down the session's worker goroutine.
func (s *Session) closeWorker() {
	close(s.cmdCh)
}
