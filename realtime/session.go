package realtime

import (
	"sync"

	"chat-relay/domain/chat"

	"github.com/samber/lo"
)

// Conn is the subset of the websocket connection the session needs.
// *websocket.Conn from gorilla satisfies it; tests use in-memory fakes.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Session is the live state of one connected client: its verified identity,
// open/closed status and the set of rooms it is subscribed to. It is owned
// by the connection's lifecycle; the room set is mutated only through the
// Registry so the index invariant is enforced in one place.
type Session struct {
	writeMu  sync.Mutex // serializes frames on the wire
	mu       sync.Mutex // guards closed and rooms
	conn     Conn
	identity chat.Identity
	closed   bool
	rooms    map[string]struct{}
}

func NewSession(conn Conn, identity chat.Identity) *Session {
	return &Session{
		conn:     conn,
		identity: identity,
		rooms:    make(map[string]struct{}),
	}
}

func (s *Session) Identity() chat.Identity {
	return s.identity
}

// Send serializes a frame onto the transport. Sending on a closed session is
// a silent no-op: broadcast paths must never fail because a client raced a
// disconnect. Concurrent senders never interleave partial frames.
func (s *Session) Send(v any) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

// Close marks the session closed and closes the underlying transport.
// Idempotent; any Send racing past this point becomes a no-op.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.conn.Close()
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Rooms returns a snapshot of the subscribed room ids.
func (s *Session) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Keys(s.rooms)
}

func (s *Session) subscribe(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[roomID] = struct{}{}
}

func (s *Session) unsubscribe(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

func (s *Session) subscribed(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[roomID]
	return ok
}
