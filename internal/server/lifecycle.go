package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"
)

// Failure classes surfaced by lifecycle operations.
var (
	ErrDuplicateRoom = errors.New("room name already in use")
	ErrRoomNotFound  = errors.New("room not found")
	ErrBanned        = errors.New("user is banned from this room")
	ErrNotRoomOwner  = errors.New("operation restricted to the room owner")
)

// snapshotKey is the fixed logical key the room registry is persisted under.
const snapshotKey = "rooms"

// SnapshotStore is the persistence boundary for registry snapshots. Writes
// are best-effort; failures are logged and never roll back memory state.
type SnapshotStore interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
}

// Notifier is the outbound notification boundary. Implementations fan state
// changes out to connected clients; the engine never blocks on them.
type Notifier interface {
	RoomsList(rooms []RoomSummary)
	RoomJoined(username string, view RoomView)
	RoomLeft(roomName, username string)
	RoomUpdated(view RoomView)
	CardsUpdated(roomName, action string, cards []Card)
}

// Engine owns the session registry, the user-to-room bindings, the trade
// ledger, and the per-room expiration timers. All mutation of a given room
// runs under that room's mutex.
type Engine struct {
	registry *Registry
	clock    Clock
	store    SnapshotStore
	notify   Notifier
	cards    CardService
	grace    time.Duration

	usersMu   sync.Mutex
	userRooms map[string]string // username -> room name

	timersMu sync.Mutex
	timers   map[string]TimerHandle
}

// EngineOptions carries the injected collaborators. Store, Notify and Cards
// may be nil; the engine degrades to in-memory-only, silent operation.
type EngineOptions struct {
	Clock           Clock
	Store           SnapshotStore
	Notify          Notifier
	Cards           CardService
	ExpirationGrace time.Duration
}

func NewEngine(opts EngineOptions) *Engine {
	clock := opts.Clock
	if clock == nil {
		clock = NewRealClock()
	}
	return &Engine{
		registry:  NewRegistry(),
		clock:     clock,
		store:     opts.Store,
		notify:    opts.Notify,
		cards:     opts.Cards,
		grace:     opts.ExpirationGrace,
		userRooms: make(map[string]string),
		timers:    make(map[string]TimerHandle),
	}
}

func (e *Engine) Registry() *Registry { return e.registry }

// CreateRoom inserts a new empty room and arms its expiration timer. Room
// names are case-sensitive exact-match unique.
func (e *Engine) CreateRoom(name, owner string, duration time.Duration, countries []string) (*Room, error) {
	now := e.clock.Now()
	room := &Room{
		Name:      name,
		Owner:     owner,
		Countries: append([]string(nil), countries...),
		CreatedAt: now,
		Duration:  duration,
		ExpiresAt: now.Add(duration),
		Banned:    make(map[string]struct{}),
		Settings:  make(map[string]any),
		Economies: make(map[string]*CountryEconomy),
	}
	if !e.registry.PutIfAbsent(name, room) {
		return nil, ErrDuplicateRoom
	}
	e.ScheduleExpiration(name, duration)
	e.persistSnapshot()
	e.notifyRoomsList()
	return room, nil
}

// JoinRoom adds username to the room, or re-associates the connection when
// the player is already present. One player entry per username per room.
func (e *Engine) JoinRoom(roomName, username, connID string) (RoomView, error) {
	room, ok := e.registry.Get(roomName)
	if !ok {
		return RoomView{}, ErrRoomNotFound
	}

	room.mu.Lock()
	if _, banned := room.Banned[username]; banned {
		room.mu.Unlock()
		return RoomView{}, ErrBanned
	}
	if p := room.findPlayerLocked(username); p != nil {
		p.Online = true
		p.connID = connID
	} else {
		room.Players = append(room.Players, &Player{Username: username, Online: true, connID: connID})
	}
	room.mu.Unlock()

	e.usersMu.Lock()
	e.userRooms[username] = roomName
	e.usersMu.Unlock()

	e.persistSnapshot()
	view := room.View()
	if e.notify != nil {
		e.notify.RoomJoined(username, view)
		e.notify.RoomUpdated(view)
	}
	return view, nil
}

// LeaveRoom removes the user from their current room, if any.
func (e *Engine) LeaveRoom(username string) {
	e.usersMu.Lock()
	roomName, ok := e.userRooms[username]
	if ok {
		delete(e.userRooms, username)
	}
	e.usersMu.Unlock()
	if !ok {
		return
	}

	room, ok := e.registry.Get(roomName)
	if !ok {
		return
	}
	room.mu.Lock()
	removePlayerLocked(room, username)
	room.mu.Unlock()

	e.persistSnapshot()
	if e.notify != nil {
		e.notify.RoomLeft(roomName, username)
		e.notify.RoomUpdated(room.View())
	}
}

// MarkOffline flags the player without removing them, used on disconnect.
func (e *Engine) MarkOffline(username string) {
	e.usersMu.Lock()
	roomName, ok := e.userRooms[username]
	e.usersMu.Unlock()
	if !ok {
		return
	}
	room, ok := e.registry.Get(roomName)
	if !ok {
		return
	}
	room.mu.Lock()
	if p := room.findPlayerLocked(username); p != nil {
		p.Online = false
		p.connID = ""
	}
	room.mu.Unlock()
	if e.notify != nil {
		e.notify.RoomUpdated(room.View())
	}
}

// BanPlayer adds username to the ban set and force-removes them from the
// room. Only the room owner may ban.
func (e *Engine) BanPlayer(roomName, requester, username string) error {
	room, ok := e.registry.Get(roomName)
	if !ok {
		return ErrRoomNotFound
	}
	room.mu.Lock()
	if room.Owner != requester {
		room.mu.Unlock()
		return ErrNotRoomOwner
	}
	room.Banned[username] = struct{}{}
	removePlayerLocked(room, username)
	room.mu.Unlock()

	e.usersMu.Lock()
	if e.userRooms[username] == roomName {
		delete(e.userRooms, username)
	}
	e.usersMu.Unlock()

	e.persistSnapshot()
	if e.notify != nil {
		e.notify.RoomLeft(roomName, username)
		e.notify.RoomUpdated(room.View())
	}
	return nil
}

// ScheduleExpiration (re)arms the room's single expiration timer. The grace
// period absorbs turn-timer drift. Re-arming replaces any prior timer.
func (e *Engine) ScheduleExpiration(roomName string, duration time.Duration) {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()
	if prev, ok := e.timers[roomName]; ok {
		prev.Stop()
	}
	e.timers[roomName] = e.clock.AfterFunc(duration+e.grace, func() {
		e.ExpireRoom(roomName)
	})
}

// ExpireRoom tears the room down. Idempotent: an absent room is a silent
// no-op, so a duplicate timer firing is harmless.
func (e *Engine) ExpireRoom(roomName string) {
	room, ok := e.registry.Get(roomName)
	if !ok {
		return
	}

	room.mu.Lock()
	room.Economies = nil
	room.TradeAgreements = nil
	players := make([]string, 0, len(room.Players))
	for _, p := range room.Players {
		players = append(players, p.Username)
	}
	room.mu.Unlock()

	e.registry.Delete(roomName)

	e.usersMu.Lock()
	for _, username := range players {
		if e.userRooms[username] == roomName {
			delete(e.userRooms, username)
		}
	}
	e.usersMu.Unlock()

	e.CancelExpiration(roomName)
	log.Printf("expire: room %q removed", roomName)
	e.persistSnapshot()
	e.notifyRoomsList()
}

// CancelExpiration stops and clears the room's timer if present.
func (e *Engine) CancelExpiration(roomName string) {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()
	if handle, ok := e.timers[roomName]; ok {
		handle.Stop()
		delete(e.timers, roomName)
	}
}

// ShutdownCleanup cancels every outstanding timer. Called once during
// orderly shutdown so no timer fires against a torn-down registry.
func (e *Engine) ShutdownCleanup() {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()
	for name, handle := range e.timers {
		handle.Stop()
		delete(e.timers, name)
	}
}

// RoomOf reports the user's current room binding.
func (e *Engine) RoomOf(username string) (string, bool) {
	e.usersMu.Lock()
	defer e.usersMu.Unlock()
	roomName, ok := e.userRooms[username]
	return roomName, ok
}

// Summaries lists the lobby view of every room.
func (e *Engine) Summaries() []RoomSummary {
	rooms := e.registry.List()
	out := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, room.Summary())
	}
	return out
}

// AppendChat records a public chat message and rebroadcasts the room.
func (e *Engine) AppendChat(roomName, from, message string) error {
	room, ok := e.registry.Get(roomName)
	if !ok {
		return ErrRoomNotFound
	}
	room.mu.Lock()
	room.Chat = append(room.Chat, ChatMessage{From: from, Message: message, SentAt: e.clock.Now()})
	room.mu.Unlock()
	if e.notify != nil {
		e.notify.RoomUpdated(room.View())
	}
	return nil
}

// AppendPrivateChat records a message in the sorted user-pair history.
func (e *Engine) AppendPrivateChat(roomName, from, to, message string) error {
	room, ok := e.registry.Get(roomName)
	if !ok {
		return ErrRoomNotFound
	}
	room.mu.Lock()
	if room.PrivateChats == nil {
		room.PrivateChats = make(map[string][]ChatMessage)
	}
	key := privateChatKey(from, to)
	room.PrivateChats[key] = append(room.PrivateChats[key], ChatMessage{From: from, Message: message, SentAt: e.clock.Now()})
	room.mu.Unlock()
	return nil
}

func removePlayerLocked(room *Room, username string) {
	for i, p := range room.Players {
		if p.Username == username {
			room.Players = append(room.Players[:i], room.Players[i+1:]...)
			return
		}
	}
}

func (e *Engine) notifyRoomsList() {
	if e.notify != nil {
		e.notify.RoomsList(e.Summaries())
	}
}

// persistSnapshot serializes every room and writes the registry under the
// fixed "rooms" key. Best-effort: failures are logged, never propagated.
func (e *Engine) persistSnapshot() {
	if e.store == nil {
		return
	}
	rooms := e.registry.List()
	blobs := make([]json.RawMessage, 0, len(rooms))
	for _, room := range rooms {
		room.mu.Lock()
		blob, err := json.Marshal(room)
		room.mu.Unlock()
		if err != nil {
			log.Printf("snapshot: marshal room %q: %v", room.Name, err)
			continue
		}
		blobs = append(blobs, blob)
	}
	data, err := json.Marshal(blobs)
	if err != nil {
		log.Printf("snapshot: marshal registry: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.store.Save(ctx, snapshotKey, data); err != nil {
		log.Printf("snapshot: save: %v", err)
	}
}

// RestoreSnapshot loads the persisted registry, used at process start. Rooms
// come back with players marked offline and their timers re-armed from the
// remaining lifetime.
func (e *Engine) RestoreSnapshot(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	data, err := e.store.Load(ctx, snapshotKey)
	if err != nil {
		return err
	}
	var blobs []json.RawMessage
	if err := json.Unmarshal(data, &blobs); err != nil {
		return err
	}
	now := e.clock.Now()
	for _, blob := range blobs {
		var room Room
		if err := json.Unmarshal(blob, &room); err != nil {
			log.Printf("snapshot: restore room: %v", err)
			continue
		}
		if room.Name == "" {
			continue
		}
		for _, p := range room.Players {
			p.Online = false
			p.connID = ""
		}
		if room.Banned == nil {
			room.Banned = make(map[string]struct{})
		}
		if !e.registry.PutIfAbsent(room.Name, &room) {
			continue
		}
		remaining := room.ExpiresAt.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		e.ScheduleExpiration(room.Name, remaining)
	}
	return nil
}
