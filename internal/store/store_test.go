package store

import (
	"context"
	"errors"
	"testing"
)

func TestMemorySaveLoad(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.Load(ctx, "rooms"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing key: got %v, want ErrNotFound", err)
	}

	if err := m.Save(ctx, "rooms", []byte(`[{"name":"Alpha"}]`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := m.Load(ctx, "rooms")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != `[{"name":"Alpha"}]` {
		t.Fatalf("loaded %q", got)
	}
}

func TestMemoryCopiesData(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	data := []byte("abc")
	m.Save(ctx, "k", data)
	data[0] = 'z'

	got, _ := m.Load(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("store shares caller memory: %q", got)
	}
}
