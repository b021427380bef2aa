package server

import (
	"context"
	"testing"
	"time"

	"github.com/example/statecraft/internal/store"
)

func TestSnapshotWriteThroughAndRestore(t *testing.T) {
	snapshots := store.NewMemory()
	clock := newFakeClock()
	engine := NewEngine(EngineOptions{
		Clock:           clock,
		Store:           snapshots,
		ExpirationGrace: 30 * time.Second,
	})
	engine.CreateRoom("Alpha", "bob", time.Hour, []string{"Brazil", "Germany"})
	engine.JoinRoom("Alpha", "alice", "c1")
	engine.CreateAgreement("Alpha", TradeRequest{
		Type: TradeExport, Product: ProductCommodity,
		Country: "Germany", Value: 50, OriginCountry: "Brazil",
	})

	if _, err := snapshots.Load(context.Background(), "rooms"); err != nil {
		t.Fatalf("no snapshot written under the rooms key: %v", err)
	}

	// A fresh engine restores the registry from the store; players come
	// back offline and the expiration timer is re-armed from the
	// remaining lifetime.
	clock2 := newFakeClock()
	restored := NewEngine(EngineOptions{
		Clock:           clock2,
		Store:           snapshots,
		ExpirationGrace: 30 * time.Second,
	})
	if err := restored.RestoreSnapshot(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}

	room, ok := restored.Registry().Get("Alpha")
	if !ok {
		t.Fatal("room not restored")
	}
	room.mu.Lock()
	if len(room.TradeAgreements) != 2 {
		t.Fatalf("restored ledger size %d, want 2", len(room.TradeAgreements))
	}
	for _, p := range room.Players {
		if p.Online {
			t.Fatalf("restored player %q marked online", p.Username)
		}
	}
	room.mu.Unlock()

	clock2.Advance(time.Hour + 31*time.Second)
	if _, ok := restored.Registry().Get("Alpha"); ok {
		t.Fatal("restored room never re-armed its expiration timer")
	}
}

func TestSnapshotFailureDoesNotBlockMutation(t *testing.T) {
	engine := NewEngine(EngineOptions{
		Clock: newFakeClock(),
		Store: failingStore{},
	})
	if _, err := engine.CreateRoom("Alpha", "bob", time.Hour, nil); err != nil {
		t.Fatalf("create with failing store: %v", err)
	}
	if _, ok := engine.Registry().Get("Alpha"); !ok {
		t.Fatal("in-memory registry must stay authoritative on store failure")
	}
}

type failingStore struct{}

func (failingStore) Save(ctx context.Context, key string, data []byte) error {
	return &store.StoreError{Message: "store offline"}
}

func (failingStore) Load(ctx context.Context, key string) ([]byte, error) {
	return nil, store.ErrNotFound
}
