package realtime

import (
	"log/slog"
	"sync"

	"chat-relay/domain/chat"
)

type sessionSet map[*Session]struct{}

// Registry is the process-local index from room id to its currently
// subscribed sessions. It owns every mutation of that index and of each
// session's own room set, so that
//
//	session ∈ rooms[roomID]  iff  roomID ∈ session.rooms
//
// holds at every quiescent point. It also keeps a per-room, per-identity
// connection count so join/leave notices are suppressed while the same user
// is still represented in the room through another connection.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]sessionSet
	presence map[string]map[string]int // roomID -> identity id -> live connections
	log      *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		rooms:    make(map[string]sessionSet),
		presence: make(map[string]map[string]int),
		log:      log,
	}
}

// RegisterSubscription indexes the session under roomID and broadcasts a
// USER_JOIN to the room's local members unless the joining identity already
// holds another subscribed connection. Subscribing twice is a no-op: no
// duplicate entry, no duplicate notice.
func (r *Registry) RegisterSubscription(s *Session, roomID string) {
	identity := s.Identity()

	r.mu.Lock()
	members, ok := r.rooms[roomID]
	if !ok {
		members = make(sessionSet)
		r.rooms[roomID] = members
	}
	if _, already := members[s]; already {
		r.mu.Unlock()
		return
	}
	members[s] = struct{}{}
	s.subscribe(roomID)

	if _, ok := r.presence[roomID]; !ok {
		r.presence[roomID] = make(map[string]int)
	}
	r.presence[roomID][identity.ID]++
	first := r.presence[roomID][identity.ID] == 1

	targets := snapshot(members)
	r.mu.Unlock()

	if !first {
		r.log.Debug("join notice suppressed", "room", roomID, "user", identity.Username)
		return
	}
	frame := chat.NewUserJoinFrame(identity.Username, roomID)
	for _, member := range targets {
		_ = member.Send(frame)
	}
}

// RemoveSubscription drops the session from roomID, symmetric to
// RegisterSubscription: a USER_LEAVE goes to the remaining local members only
// once the identity's last subscribed connection is gone. Removing an absent
// subscription is a silent no-op.
func (r *Registry) RemoveSubscription(s *Session, roomID string) {
	identity := s.Identity()

	r.mu.Lock()
	members, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, present := members[s]; !present {
		r.mu.Unlock()
		return
	}
	delete(members, s)
	s.unsubscribe(roomID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}

	last := false
	if counts, ok := r.presence[roomID]; ok {
		counts[identity.ID]--
		if counts[identity.ID] <= 0 {
			delete(counts, identity.ID)
			last = true
		}
		if len(counts) == 0 {
			delete(r.presence, roomID)
		}
	}

	targets := snapshot(members)
	r.mu.Unlock()

	if !last {
		r.log.Debug("leave notice suppressed", "room", roomID, "user", identity.Username)
		return
	}
	frame := chat.NewUserLeaveFrame(identity.Username, roomID)
	for _, member := range targets {
		_ = member.Send(frame)
	}
}

// DropSession removes the session from every room it is subscribed to,
// applying the same dedup rule as an explicit unsubscribe. Called by the
// disconnect handler; the session must not be used afterwards.
func (r *Registry) DropSession(s *Session) {
	for _, roomID := range s.Rooms() {
		r.RemoveSubscription(s, roomID)
	}
}

// BroadcastToRoom sends a frame to every session currently indexed under
// roomID. Sessions whose transport already closed are skipped silently.
// Iteration works on a snapshot so registry mutation may proceed
// concurrently with the sends.
func (r *Registry) BroadcastToRoom(roomID string, frame any) {
	r.mu.RLock()
	targets := snapshot(r.rooms[roomID])
	r.mu.RUnlock()

	for _, s := range targets {
		_ = s.Send(frame)
	}
}

// RoomSize reports how many sessions are indexed under roomID.
func (r *Registry) RoomSize(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

func snapshot(members sessionSet) []*Session {
	out := make([]*Session, 0, len(members))
	for s := range members {
		out = append(out, s)
	}
	return out
}
