package realtime

import (
	"sync"
)

// Hub routes events to rooms. A room is created lazily on first join and
// garbage-collected when its last member leaves. Fan-out writes each frame
// to every member's buffered send channel under the hub lock, which keeps
// delivery FIFO per room.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Session]struct{}
	all   map[*Session]struct{}

	// dropped counts frames discarded because a member's buffer was full.
	dropped uint64
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[*Session]struct{}),
		all:   make(map[*Session]struct{}),
	}
}

// Register adds a session to the hub.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[s] = struct{}{}
}

// Unregister removes a session from the hub and every room it joined, and
// closes its send channel. Safe to call once per session only; the gateway
// guards it with the session's teardown Once.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[s]; !ok {
		return
	}

	for room := range s.rooms {
		h.removeMember(room, s)
	}
	s.rooms = make(map[string]struct{})

	delete(h.all, s)
	close(s.send)
}

// Join subscribes the session to a room.
func (h *Hub) Join(s *Session, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[s]; !ok {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Session]struct{})
	}
	h.rooms[room][s] = struct{}{}
	s.rooms[room] = struct{}{}
}

// Leave unsubscribes the session from a room.
func (h *Hub) Leave(s *Session, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeMember(room, s)
	delete(s.rooms, room)
}

// removeMember drops s from a room and GCs the room if empty. Caller holds h.mu.
func (h *Hub) removeMember(room string, s *Session) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, s)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Broadcast sends an event to every current member of the room. A nil
// except delivers to all members; otherwise that session is skipped.
func (h *Hub) Broadcast(room string, event OutboundEvent, except *Session) {
	frame, err := EncodeEvent(event)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.rooms[room] {
		if s == except {
			continue
		}
		h.push(s, frame)
	}
}

// BroadcastAll sends an event to every connected session except the given one.
func (h *Hub) BroadcastAll(event OutboundEvent, except *Session) {
	frame, err := EncodeEvent(event)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.all {
		if s == except {
			continue
		}
		h.push(s, frame)
	}
}

// SendTo delivers an event to one session only.
func (h *Hub) SendTo(s *Session, event OutboundEvent) {
	frame, err := EncodeEvent(event)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[s]; !ok {
		return
	}
	h.push(s, frame)
}

// push writes a frame to the session's buffer without blocking. A member
// that cannot keep up loses frames rather than stalling the room. Caller
// holds h.mu.
func (h *Hub) push(s *Session, frame []byte) {
	select {
	case s.send <- frame:
	default:
		h.dropped++
	}
}

// SessionCount returns the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// MemberCount returns the number of sessions in a room.
func (h *Hub) MemberCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
