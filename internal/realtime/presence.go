package realtime

import (
	"sort"
	"sync"
)

// Presence tracks which users currently hold at least one open connection.
// A user with several tabs open stays online until the last one closes.
type Presence struct {
	mu    sync.Mutex
	conns map[string]int // user id -> open connection count
}

func NewPresence() *Presence {
	return &Presence{conns: make(map[string]int)}
}

// Add records an open connection for the user. It reports whether this is
// the user's first connection, i.e. the user just came online.
func (p *Presence) Add(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns[userID]++
	return p.conns[userID] == 1
}

// Remove records a closed connection for the user. It reports whether this
// was the user's last connection, i.e. the user just went offline. Removing
// an unknown user is a no-op.
func (p *Presence) Remove(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.conns[userID]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(p.conns, userID)
		return true
	}
	p.conns[userID] = n - 1
	return false
}

// IsOnline reports whether the user has any open connection.
func (p *Presence) IsOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conns[userID] > 0
}

// OnlineUsers returns the ids of all online users, sorted for stable output.
func (p *Presence) OnlineUsers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.conns))
	for id := range p.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of online users.
func (p *Presence) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}
