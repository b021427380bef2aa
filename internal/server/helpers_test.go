package server

import (
	"sync"
	"time"
)

// fakeClock drives timers with virtual time so expiration tests never sleep.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock    *fakeClock
	deadline time.Time
	fn       func()
	stopped  bool
	fired    bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) TimerHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves virtual time forward and fires due timers synchronously.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.fired && !t.stopped && !t.deadline.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.fn()
	}
}

// recordingNotifier captures outbound notifications for assertions.
type recordingNotifier struct {
	mu         sync.Mutex
	roomsLists [][]RoomSummary
	joined     []string
	left       []string
	updated    []RoomView
	cardEvents []string
}

func (n *recordingNotifier) RoomsList(rooms []RoomSummary) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.roomsLists = append(n.roomsLists, rooms)
}

func (n *recordingNotifier) RoomJoined(username string, view RoomView) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.joined = append(n.joined, username)
}

func (n *recordingNotifier) RoomLeft(roomName, username string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.left = append(n.left, username)
}

func (n *recordingNotifier) RoomUpdated(view RoomView) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updated = append(n.updated, view)
}

func (n *recordingNotifier) CardsUpdated(roomName, action string, cards []Card) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cardEvents = append(n.cardEvents, action)
}

func newTestEngine() (*Engine, *fakeClock, *recordingNotifier) {
	clock := newFakeClock()
	notify := &recordingNotifier{}
	engine := NewEngine(EngineOptions{
		Clock:           clock,
		Notify:          notify,
		ExpirationGrace: 30 * time.Second,
	})
	return engine, clock, notify
}
