package realtime

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

var testKey = SlotKey{ScheduleID: "sched-1", TimeSlotID: "slot-1"}

const testRoom = "appointments:doc-1:2026-09-01"

func TestTryLock_GrantsWhenUnlocked(t *testing.T) {
	m := NewLockManager(time.Minute, nil)

	res := m.TryLock(testKey, "alice", testRoom)
	if !res.Granted {
		t.Fatal("expected grant on unlocked slot")
	}
	if holder, ok := m.HolderOf(testKey); !ok || holder != "alice" {
		t.Errorf("expected alice to hold the slot, got %q (%v)", holder, ok)
	}
}

func TestTryLock_RejectsOtherHolder(t *testing.T) {
	m := NewLockManager(time.Minute, nil)

	m.TryLock(testKey, "alice", testRoom)
	res := m.TryLock(testKey, "bob", testRoom)

	if res.Granted {
		t.Fatal("expected rejection while held by alice")
	}
	if res.HeldBy != "alice" {
		t.Errorf("expected HeldBy=alice, got %q", res.HeldBy)
	}
	if holder, _ := m.HolderOf(testKey); holder != "alice" {
		t.Errorf("rejection must not mutate state; holder is %q", holder)
	}
}

func TestTryLock_IdempotentRelock(t *testing.T) {
	m := NewLockManager(time.Minute, nil)

	m.TryLock(testKey, "alice", testRoom)
	res := m.TryLock(testKey, "alice", testRoom)
	if !res.Granted {
		t.Fatal("expected re-lock by holder to be granted")
	}
	if m.Len() != 1 {
		t.Errorf("expected 1 lock, got %d", m.Len())
	}
}

func TestUnlock_OnlyHolderReleases(t *testing.T) {
	m := NewLockManager(time.Minute, nil)
	m.TryLock(testKey, "alice", testRoom)

	if _, released := m.Unlock(testKey, "bob"); released {
		t.Error("expected unlock by non-holder to be ignored")
	}
	if holder, _ := m.HolderOf(testKey); holder != "alice" {
		t.Errorf("expected alice to still hold the slot, got %q", holder)
	}

	info, released := m.Unlock(testKey, "alice")
	if !released {
		t.Fatal("expected unlock by holder to release")
	}
	if info.Room != testRoom {
		t.Errorf("expected room %q, got %q", testRoom, info.Room)
	}
	if m.Len() != 0 {
		t.Errorf("expected 0 locks, got %d", m.Len())
	}
}

func TestUnlock_UnknownKey(t *testing.T) {
	m := NewLockManager(time.Minute, nil)
	if _, released := m.Unlock(testKey, "alice"); released {
		t.Error("expected unlock of unknown key to be ignored")
	}
}

func TestDeadlineExpiry_ReleasesAndNotifies(t *testing.T) {
	expired := make(chan LockInfo, 1)
	m := NewLockManager(20*time.Millisecond, func(info LockInfo) {
		expired <- info
	})

	m.TryLock(testKey, "alice", testRoom)

	select {
	case info := <-expired:
		if info.HolderID != "alice" || info.Key != testKey {
			t.Errorf("unexpected expiry info: %+v", info)
		}
	case <-time.After(time.Second):
		t.Fatal("deadline did not fire")
	}

	if m.Len() != 0 {
		t.Errorf("expected 0 locks after expiry, got %d", m.Len())
	}
}

func TestUnlock_CancelsDeadline(t *testing.T) {
	expired := make(chan LockInfo, 1)
	m := NewLockManager(30*time.Millisecond, func(info LockInfo) {
		expired <- info
	})

	m.TryLock(testKey, "alice", testRoom)
	m.Unlock(testKey, "alice")

	select {
	case <-expired:
		t.Fatal("cancelled deadline must not fire")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRelock_RefreshesDeadline(t *testing.T) {
	var mu sync.Mutex
	fired := 0
	m := NewLockManager(80*time.Millisecond, func(LockInfo) {
		mu.Lock()
		fired++
		mu.Unlock()
	})

	m.TryLock(testKey, "alice", testRoom)
	time.Sleep(50 * time.Millisecond)
	m.TryLock(testKey, "alice", testRoom) // refresh

	// The original deadline would have fired by now; the refreshed one not yet.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	early := fired
	mu.Unlock()
	if early != 0 {
		t.Fatalf("stale deadline fired after refresh (%d times)", early)
	}

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	total := fired
	mu.Unlock()
	if total != 1 {
		t.Errorf("expected exactly one expiry, got %d", total)
	}
}

func TestStaleTimer_DoesNotReleaseNewHolder(t *testing.T) {
	expired := make(chan LockInfo, 2)
	m := NewLockManager(40*time.Millisecond, func(info LockInfo) {
		expired <- info
	})

	m.TryLock(testKey, "alice", testRoom)
	m.Unlock(testKey, "alice")
	m.TryLock(testKey, "bob", testRoom)

	// Only bob's own deadline may fire; alice's cancelled timer must not
	// produce a second release.
	select {
	case info := <-expired:
		if info.HolderID != "bob" {
			t.Errorf("expected bob's expiry, got %s", info.HolderID)
		}
	case <-time.After(time.Second):
		t.Fatal("bob's deadline did not fire")
	}

	select {
	case info := <-expired:
		t.Fatalf("unexpected extra expiry: %+v", info)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReleaseAll(t *testing.T) {
	m := NewLockManager(time.Minute, nil)
	for i := 0; i < 3; i++ {
		key := SlotKey{ScheduleID: "sched-1", TimeSlotID: fmt.Sprintf("slot-%d", i)}
		m.TryLock(key, "alice", testRoom)
	}
	m.TryLock(SlotKey{ScheduleID: "sched-2", TimeSlotID: "slot-9"}, "bob", testRoom)

	released := m.ReleaseAll("alice")
	if len(released) != 3 {
		t.Fatalf("expected 3 released locks, got %d", len(released))
	}
	if m.Len() != 1 {
		t.Errorf("expected bob's lock to survive, got %d locks", m.Len())
	}
	if holder, _ := m.HolderOf(SlotKey{ScheduleID: "sched-2", TimeSlotID: "slot-9"}); holder != "bob" {
		t.Errorf("expected bob's lock intact, holder %q", holder)
	}
}

func TestReleaseAll_NoLocks(t *testing.T) {
	m := NewLockManager(time.Minute, nil)
	if released := m.ReleaseAll("nobody"); len(released) != 0 {
		t.Errorf("expected no releases, got %d", len(released))
	}
}

func TestSnapshot_ScopedToRoom(t *testing.T) {
	m := NewLockManager(time.Minute, nil)
	otherRoom := "appointments:doc-2:2026-09-01"

	m.TryLock(SlotKey{ScheduleID: "s1", TimeSlotID: "t1"}, "alice", testRoom)
	m.TryLock(SlotKey{ScheduleID: "s1", TimeSlotID: "t2"}, "bob", testRoom)
	m.TryLock(SlotKey{ScheduleID: "s2", TimeSlotID: "t1"}, "carol", otherRoom)

	snapshot := m.Snapshot(testRoom)
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 locks in room snapshot, got %d", len(snapshot))
	}
	for _, info := range snapshot {
		if info.Room != testRoom {
			t.Errorf("snapshot leaked lock from room %q", info.Room)
		}
	}
}

func TestTryLock_SingleWinnerUnderContention(t *testing.T) {
	m := NewLockManager(time.Minute, nil)

	const contenders = 50
	var wg sync.WaitGroup
	granted := make(chan string, contenders)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			holder := fmt.Sprintf("user-%d", i)
			if res := m.TryLock(testKey, holder, testRoom); res.Granted {
				granted <- holder
			}
		}(i)
	}
	wg.Wait()
	close(granted)

	var winners []string
	for w := range granted {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %d: %v", len(winners), winners)
	}
	if holder, _ := m.HolderOf(testKey); holder != winners[0] {
		t.Errorf("holder %q does not match winner %q", holder, winners[0])
	}
}
