package server

import (
	"sort"
	"sync"
)

// Registry is the authoritative in-memory map of room name to room. It does
// no validation; callers enforce invariants and serialize per-room mutation
// through the room's own mutex.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

func (reg *Registry) Get(name string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[name]
	return room, ok
}

func (reg *Registry) Put(name string, room *Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.rooms[name] = room
}

// PutIfAbsent inserts the room only when the name is free, reporting whether
// the insert happened. Name comparison is case-sensitive exact match.
func (reg *Registry) PutIfAbsent(name string, room *Room) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.rooms[name]; exists {
		return false
	}
	reg.rooms[name] = room
	return true
}

func (reg *Registry) Delete(name string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.rooms, name)
}

// List returns every room in stable name order for listing UIs.
func (reg *Registry) List() []*Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		out = append(out, room)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}
