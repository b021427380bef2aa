// Package store provides the snapshot persistence boundary. Snapshots are
// opaque JSON blobs written under fixed logical keys; the in-memory engine
// remains the source of truth and treats writes as best-effort.
package store

import (
	"context"
	"sync"
)

// Errors returned by snapshot stores.
var (
	ErrNotFound = &StoreError{Message: "snapshot not found"}
)

// StoreError represents a storage error.
type StoreError struct {
	Message string
}

func (e *StoreError) Error() string {
	return e.Message
}

// Memory is an in-process snapshot store used in tests and for running
// without an external store configured.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Save(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.data[key] = cp
	return nil
}

func (m *Memory) Load(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}
