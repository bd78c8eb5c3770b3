package store

import (
	"context"
	"testing"
	"time"
)

func newTestMemory(start time.Time) (*Memory, *time.Time) {
	m := NewMemory()
	now := start
	m.now = func() time.Time { return now }
	return m, &now
}

func TestMemoryGetPut(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(time.Unix(1000, 0))

	if _, err := m.Get(ctx, "k"); err != ErrNotFound {
		t.Fatalf("Get missing key: got %v, want ErrNotFound", err)
	}
	if err := m.Put(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := m.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Get = %q, %v; want v, nil", got, err)
	}
	if err := m.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get(ctx, "k"); err != ErrNotFound {
		t.Fatalf("Get after delete: got %v, want ErrNotFound", err)
	}
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	m, now := newTestMemory(time.Unix(1000, 0))

	if err := m.Put(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	*now = now.Add(59 * time.Second)
	if _, err := m.Get(ctx, "k"); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}
	*now = now.Add(2 * time.Second)
	if _, err := m.Get(ctx, "k"); err != ErrNotFound {
		t.Fatalf("Get after expiry: got %v, want ErrNotFound", err)
	}
}

func TestMemoryListAppendRefreshesExpiry(t *testing.T) {
	ctx := context.Background()
	m, now := newTestMemory(time.Unix(1000, 0))

	if err := m.ListAppend(ctx, "l", []byte("a"), time.Minute); err != nil {
		t.Fatalf("ListAppend: %v", err)
	}
	*now = now.Add(40 * time.Second)
	if err := m.ListAppend(ctx, "l", []byte("b"), time.Minute); err != nil {
		t.Fatalf("ListAppend: %v", err)
	}

	// 70s after the first append, 30s after the second: still visible.
	*now = now.Add(30 * time.Second)
	items, err := m.ListRange(ctx, "l")
	if err != nil {
		t.Fatalf("ListRange: %v", err)
	}
	if len(items) != 2 || string(items[0]) != "a" || string(items[1]) != "b" {
		t.Fatalf("ListRange = %v, want [a b]", items)
	}

	*now = now.Add(2 * time.Minute)
	items, err = m.ListRange(ctx, "l")
	if err != nil {
		t.Fatalf("ListRange: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("ListRange after expiry = %d items, want 0", len(items))
	}
}

func TestMemoryListTrim(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(time.Unix(1000, 0))

	for _, s := range []string{"a", "b", "c", "d"} {
		if err := m.ListAppend(ctx, "l", []byte(s), 0); err != nil {
			t.Fatalf("ListAppend: %v", err)
		}
	}
	if err := m.ListTrim(ctx, "l", 2); err != nil {
		t.Fatalf("ListTrim: %v", err)
	}
	items, err := m.ListRange(ctx, "l")
	if err != nil {
		t.Fatalf("ListRange: %v", err)
	}
	if len(items) != 2 || string(items[0]) != "c" || string(items[1]) != "d" {
		t.Fatalf("ListTrim kept %v, want [c d]", items)
	}
}
