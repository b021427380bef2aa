package server

import (
	"errors"
	"testing"
	"time"
)

func TestCreateRoomDuplicateName(t *testing.T) {
	engine, _, _ := newTestEngine()
	if _, err := engine.CreateRoom("Alpha", "bob", time.Hour, nil); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := engine.CreateRoom("Alpha", "carol", time.Hour, nil); !errors.Is(err, ErrDuplicateRoom) {
		t.Fatalf("duplicate create: got %v, want ErrDuplicateRoom", err)
	}
	// Case-sensitive exact match: a differently-cased name is a new room.
	if _, err := engine.CreateRoom("alpha", "carol", time.Hour, nil); err != nil {
		t.Fatalf("differently-cased create: %v", err)
	}
}

func TestJoinRoomIdempotent(t *testing.T) {
	engine, _, _ := newTestEngine()
	room, err := engine.CreateRoom("Alpha", "bob", time.Hour, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := engine.JoinRoom("Alpha", "alice", "conn-1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := engine.JoinRoom("Alpha", "alice", "conn-2"); err != nil {
		t.Fatalf("re-join: %v", err)
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	count := 0
	for _, p := range room.Players {
		if p.Username == "alice" {
			count++
			if p.connID != "conn-2" {
				t.Fatalf("re-join did not re-associate connection: %q", p.connID)
			}
		}
	}
	if count != 1 {
		t.Fatalf("got %d player entries for alice, want 1", count)
	}
}

func TestJoinRoomNotFoundAndBanned(t *testing.T) {
	engine, _, _ := newTestEngine()
	if _, err := engine.JoinRoom("Nowhere", "alice", "c"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("absent room: got %v, want ErrRoomNotFound", err)
	}

	room, _ := engine.CreateRoom("Alpha", "bob", time.Hour, nil)
	room.mu.Lock()
	room.Banned["mallory"] = struct{}{}
	room.mu.Unlock()
	if _, err := engine.JoinRoom("Alpha", "mallory", "c"); !errors.Is(err, ErrBanned) {
		t.Fatalf("banned join: got %v, want ErrBanned", err)
	}
}

func TestLeaveRoom(t *testing.T) {
	engine, _, notify := newTestEngine()
	room, _ := engine.CreateRoom("Alpha", "bob", time.Hour, nil)
	engine.JoinRoom("Alpha", "alice", "c1")

	engine.LeaveRoom("alice")

	room.mu.Lock()
	for _, p := range room.Players {
		if p.Username == "alice" {
			t.Fatal("alice still in room after leave")
		}
	}
	room.mu.Unlock()
	if _, ok := engine.RoomOf("alice"); ok {
		t.Fatal("user-to-room binding survived leave")
	}
	if len(notify.left) != 1 || notify.left[0] != "alice" {
		t.Fatalf("left notifications: %v", notify.left)
	}

	// Leaving with no binding is a no-op.
	engine.LeaveRoom("alice")
	if len(notify.left) != 1 {
		t.Fatal("no-op leave emitted a notification")
	}
}

func TestBanPlayerOwnerOnly(t *testing.T) {
	engine, _, _ := newTestEngine()
	room, _ := engine.CreateRoom("Alpha", "bob", time.Hour, nil)
	engine.JoinRoom("Alpha", "alice", "c1")

	if err := engine.BanPlayer("Alpha", "alice", "bob"); !errors.Is(err, ErrNotRoomOwner) {
		t.Fatalf("non-owner ban: got %v, want ErrNotRoomOwner", err)
	}
	if err := engine.BanPlayer("Alpha", "bob", "alice"); err != nil {
		t.Fatalf("owner ban: %v", err)
	}

	room.mu.Lock()
	_, banned := room.Banned["alice"]
	stillThere := room.findPlayerLocked("alice") != nil
	room.mu.Unlock()
	if !banned || stillThere {
		t.Fatalf("banned=%v stillThere=%v", banned, stillThere)
	}
	if _, err := engine.JoinRoom("Alpha", "alice", "c2"); !errors.Is(err, ErrBanned) {
		t.Fatalf("banned re-join: got %v, want ErrBanned", err)
	}
}

func TestExpirationFiresOnceAfterGrace(t *testing.T) {
	engine, clock, _ := newTestEngine()
	duration := 10 * time.Minute
	engine.CreateRoom("Alpha", "bob", duration, nil)

	// Nominal duration alone must not expire the room; the grace period
	// has not elapsed yet.
	clock.Advance(duration)
	if _, ok := engine.Registry().Get("Alpha"); !ok {
		t.Fatal("room expired before the grace period")
	}

	clock.Advance(30 * time.Second)
	if _, ok := engine.Registry().Get("Alpha"); ok {
		t.Fatal("room survived duration + grace")
	}

	// A duplicate firing is a silent no-op.
	engine.ExpireRoom("Alpha")
	if got := engine.Registry().Len(); got != 0 {
		t.Fatalf("registry len after duplicate expire: %d", got)
	}
}

func TestExpireRoomClearsUserBindings(t *testing.T) {
	engine, _, _ := newTestEngine()
	engine.CreateRoom("Alpha", "bob", time.Hour, nil)
	engine.JoinRoom("Alpha", "alice", "c1")

	engine.ExpireRoom("Alpha")
	if _, ok := engine.RoomOf("alice"); ok {
		t.Fatal("user binding survived expiration")
	}
}

func TestScheduleExpirationReplacesTimer(t *testing.T) {
	engine, clock, _ := newTestEngine()
	engine.CreateRoom("Alpha", "bob", 10*time.Minute, nil)

	// Re-arm with a longer duration; the original timer must not fire.
	engine.ScheduleExpiration("Alpha", time.Hour)
	clock.Advance(10*time.Minute + 30*time.Second)
	if _, ok := engine.Registry().Get("Alpha"); !ok {
		t.Fatal("replaced timer still fired")
	}

	clock.Advance(90 * time.Minute)
	if _, ok := engine.Registry().Get("Alpha"); ok {
		t.Fatal("re-armed timer never fired")
	}
}

func TestCancelExpiration(t *testing.T) {
	engine, clock, _ := newTestEngine()
	engine.CreateRoom("Alpha", "bob", 10*time.Minute, nil)
	engine.CancelExpiration("Alpha")

	clock.Advance(24 * time.Hour)
	if _, ok := engine.Registry().Get("Alpha"); !ok {
		t.Fatal("room expired despite cancelled timer")
	}
}

func TestShutdownCleanupStopsAllTimers(t *testing.T) {
	engine, clock, _ := newTestEngine()
	engine.CreateRoom("Alpha", "bob", 10*time.Minute, nil)
	engine.CreateRoom("Bravo", "carol", 20*time.Minute, nil)

	engine.ShutdownCleanup()
	clock.Advance(24 * time.Hour)
	if got := engine.Registry().Len(); got != 2 {
		t.Fatalf("rooms expired after shutdown cleanup: %d left", got)
	}
}
