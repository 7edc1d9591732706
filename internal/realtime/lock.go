package realtime

import (
	"sync"
	"time"
)

// SlotKey identifies one bookable opening.
type SlotKey struct {
	ScheduleID string
	TimeSlotID string
}

// LockInfo describes a granted hold on a slot.
type LockInfo struct {
	Key      SlotKey
	HolderID string
	Room     string
	Deadline time.Time
}

// LockResult is the outcome of a TryLock call.
type LockResult struct {
	Granted bool
	HeldBy  string // set on rejection: the current holder
}

// ExpiryFunc is invoked, outside the lock table's critical section, when a
// hold's deadline fires without a renew or release.
type ExpiryFunc func(LockInfo)

type lockEntry struct {
	holder   string
	room     string
	deadline time.Time
	timer    *time.Timer
	gen      uint64
}

// LockManager owns the in-memory slot lock table. At most one holder exists
// per key at any instant; all transitions happen under a single mutex, so no
// two TryLock calls for the same key can both observe it unlocked.
//
// The table lives in this one process. Running more than one replica would
// require moving it to a shared store with compare-and-swap semantics.
type LockManager struct {
	mu       sync.Mutex
	ttl      time.Duration
	locks    map[SlotKey]*lockEntry
	byHolder map[string]map[SlotKey]struct{}
	onExpire ExpiryFunc
	gen      uint64
}

func NewLockManager(ttl time.Duration, onExpire ExpiryFunc) *LockManager {
	return &LockManager{
		ttl:      ttl,
		locks:    make(map[SlotKey]*lockEntry),
		byHolder: make(map[string]map[SlotKey]struct{}),
		onExpire: onExpire,
	}
}

// TryLock grants a hold on the slot to holderID, or refreshes the deadline
// if holderID already holds it. A slot held by anyone else is rejected
// without mutating state.
func (m *LockManager) TryLock(key SlotKey, holderID, room string) LockResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.locks[key]; ok && e.holder != holderID {
		return LockResult{Granted: false, HeldBy: e.holder}
	}

	// New hold or idempotent re-lock: cancel any armed deadline before
	// installing a fresh one so a stale expiry can never fire.
	if e, ok := m.locks[key]; ok {
		e.timer.Stop()
	}

	m.gen++
	gen := m.gen
	e := &lockEntry{
		holder:   holderID,
		room:     room,
		deadline: time.Now().Add(m.ttl),
		gen:      gen,
	}
	e.timer = time.AfterFunc(m.ttl, func() { m.expire(key, gen) })
	m.locks[key] = e

	if m.byHolder[holderID] == nil {
		m.byHolder[holderID] = make(map[SlotKey]struct{})
	}
	m.byHolder[holderID][key] = struct{}{}

	return LockResult{Granted: true}
}

// Unlock releases the hold on key if holderID is the recorded holder. A
// request by anyone else is a stale operation and leaves the lock untouched.
func (m *LockManager) Unlock(key SlotKey, holderID string) (LockInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.locks[key]
	if !ok || e.holder != holderID {
		return LockInfo{}, false
	}

	e.timer.Stop()
	m.remove(key, e)
	return LockInfo{Key: key, HolderID: e.holder, Room: e.room, Deadline: e.deadline}, true
}

// ReleaseAll drops every hold belonging to holderID and returns them, one
// per key, so the caller can emit one unlock notification each.
func (m *LockManager) ReleaseAll(holderID string) []LockInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	var released []LockInfo
	for key := range m.byHolder[holderID] {
		e := m.locks[key]
		e.timer.Stop()
		m.remove(key, e)
		released = append(released, LockInfo{Key: key, HolderID: e.holder, Room: e.room, Deadline: e.deadline})
	}
	return released
}

// Snapshot returns all currently-held locks scoped to the given room, for
// the consistent view sent to a late joiner.
func (m *LockManager) Snapshot(room string) []LockInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []LockInfo
	for key, e := range m.locks {
		if e.room == room {
			out = append(out, LockInfo{Key: key, HolderID: e.holder, Room: e.room, Deadline: e.deadline})
		}
	}
	return out
}

// HolderOf returns the current holder of key, if any.
func (m *LockManager) HolderOf(key SlotKey) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.locks[key]
	if !ok {
		return "", false
	}
	return e.holder, true
}

// Len returns the number of held slots.
func (m *LockManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// expire fires when a deadline timer goes off. The generation check makes a
// timer that lost the race against a renew, release, or re-grant a no-op.
func (m *LockManager) expire(key SlotKey, gen uint64) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok || e.gen != gen {
		m.mu.Unlock()
		return
	}
	m.remove(key, e)
	info := LockInfo{Key: key, HolderID: e.holder, Room: e.room, Deadline: e.deadline}
	m.mu.Unlock()

	if m.onExpire != nil {
		m.onExpire(info)
	}
}

// remove deletes the entry from both indexes. Caller holds m.mu.
func (m *LockManager) remove(key SlotKey, e *lockEntry) {
	delete(m.locks, key)
	if held := m.byHolder[e.holder]; held != nil {
		delete(held, key)
		if len(held) == 0 {
			delete(m.byHolder, e.holder)
		}
	}
}
